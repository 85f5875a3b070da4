// Package files provides encoding-aware file reading, text writes and
// the temporary directory lifecycle for conversion runs.
package files

import (
	"bytes"
	"fmt"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// Encoding identifies a detected text encoding
type Encoding string

const (
	EncodingUTF8    Encoding = "UTF-8"
	EncodingUTF8BOM Encoding = "UTF-8-BOM"
	EncodingUTF16LE Encoding = "UTF-16LE"
	EncodingUTF16BE Encoding = "UTF-16BE"
	EncodingGBK     Encoding = "GBK"
	EncodingUnknown Encoding = "UNKNOWN"
)

// utf8BOM is the UTF-8 byte order mark
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectEncoding detects the encoding of raw file data by BOM markers,
// UTF-8 validity and a GBK decode attempt, in that order
func DetectEncoding(data []byte) Encoding {
	if len(data) >= 3 && bytes.Equal(data[:3], utf8BOM) {
		return EncodingUTF8BOM
	}
	if len(data) >= 2 && bytes.Equal(data[:2], []byte{0xFF, 0xFE}) {
		return EncodingUTF16LE
	}
	if len(data) >= 2 && bytes.Equal(data[:2], []byte{0xFE, 0xFF}) {
		return EncodingUTF16BE
	}
	if utf8.Valid(data) {
		return EncodingUTF8
	}
	if isValidGBK(data) {
		return EncodingGBK
	}
	return EncodingUnknown
}

// isValidGBK checks if data is valid GBK encoding
func isValidGBK(data []byte) bool {
	decoder := simplifiedchinese.GBK.NewDecoder()
	decoded, err := decoder.Bytes(data)
	if err != nil {
		return false
	}
	return utf8.Valid(decoded)
}

// DecodeToUTF8 converts raw file data to a UTF-8 string, returning the
// encoding it was decoded from
func DecodeToUTF8(data []byte) (string, Encoding, error) {
	enc := DetectEncoding(data)

	switch enc {
	case EncodingUTF8:
		return string(data), enc, nil
	case EncodingUTF8BOM:
		return string(data[3:]), enc, nil
	case EncodingUTF16LE:
		decoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		decoded, err := decoder.Bytes(data)
		if err != nil {
			return "", enc, fmt.Errorf("failed to decode UTF-16LE: %w", err)
		}
		return string(decoded), enc, nil
	case EncodingUTF16BE:
		decoder := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
		decoded, err := decoder.Bytes(data)
		if err != nil {
			return "", enc, fmt.Errorf("failed to decode UTF-16BE: %w", err)
		}
		return string(decoded), enc, nil
	case EncodingGBK:
		decoder := simplifiedchinese.GBK.NewDecoder()
		decoded, err := decoder.Bytes(data)
		if err != nil {
			return "", enc, fmt.Errorf("failed to decode GBK: %w", err)
		}
		return string(decoded), enc, nil
	default:
		return "", enc, fmt.Errorf("unsupported encoding")
	}
}

// ReadTextFile reads a file and returns its content as a UTF-8 string.
// TeX sources from older toolchains are often GBK or UTF-16 encoded,
// so the encoding is detected and converted transparently.
func ReadTextFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	content, enc, err := DecodeToUTF8(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s as %s: %w", path, enc, err)
	}
	return content, nil
}
