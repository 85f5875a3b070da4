package latex

import (
	"strings"
	"unicode"
)

// RemoveComments strips LaTeX comments from content. A comment runs from an
// unescaped % through the end of the line, and the newline is removed with
// it. A % at the very end of the file with no trailing newline is kept, and
// \% is never treated as a comment start.
func RemoveComments(content string) string {
	var sb strings.Builder
	sb.Grow(len(content))

	for i := 0; i < len(content); i++ {
		c := content[i]
		if c == '%' && (i == 0 || content[i-1] != '\\') {
			if nl := strings.IndexByte(content[i:], '\n'); nl >= 0 {
				i += nl
				continue
			}
		}
		sb.WriteByte(c)
	}

	return sb.String()
}

// CommentOutCaptions prefixes every line of each \caption{...} block with
// "% ". Captions must not render inside the standalone image, but keeping
// them commented preserves the source for inspection.
func CommentOutCaptions(content string) string {
	matches := FindBracedCommand(content, "caption")
	if len(matches) == 0 {
		return content
	}

	var sb strings.Builder
	sb.Grow(len(content) + len(matches)*2)

	last := 0
	for _, m := range matches {
		sb.WriteString(content[last:m.Start])

		block := strings.TrimSpace(content[m.Start:m.End])
		for i, line := range strings.Split(block, "\n") {
			if i > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString("% ")
			sb.WriteString(line)
		}

		last = m.End
	}
	sb.WriteString(content[last:])

	return sb.String()
}

// RemoveContinuedFloat drops \ContinuedFloat commands, which only compile
// inside a surrounding float sequence and break standalone documents
func RemoveContinuedFloat(content string) string {
	return ContinuedFloatPattern.ReplaceAllString(content, "")
}

// RepairSplitCommands rejoins \ref{ and \label{ commands whose backslash
// was separated from the command name by a line break. It returns the
// repaired content and the number of commands fixed.
func RepairSplitCommands(content string) (string, int) {
	fixed := len(brokenRefPattern.FindAllStringIndex(content, -1)) +
		len(brokenLabelPattern.FindAllStringIndex(content, -1))
	if fixed == 0 {
		return content, 0
	}
	content = brokenRefPattern.ReplaceAllString(content, `\ref{`)
	content = brokenLabelPattern.ReplaceAllString(content, `\label{`)
	return content, fixed
}

// SanitizeFilename replaces characters that are invalid in filenames with
// underscores
func SanitizeFilename(name string) string {
	return invalidFilenameChars.ReplaceAllString(name, "_")
}

// ContainsChinese checks if the given text contains Chinese characters.
// Documents with Chinese text need the xeCJK package to compile.
func ContainsChinese(text string) bool {
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
