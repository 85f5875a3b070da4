package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteTextFile writes content to path as UTF-8 with 0644 permissions
func WriteTextFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// PrepareDir removes dir and everything under it, then recreates it
// empty. Used for the per-run temporary directory so stale artifacts
// from a previous run never leak into the current one.
func PrepareDir(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to clear directory %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// RemoveDir removes dir and everything under it
func RemoveDir(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove directory %s: %w", path, err)
	}
	return nil
}

// RemoveFile removes a file, ignoring the case where it does not exist
func RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FindFirstWithExt returns the first file in dir with the given
// extension (including the dot), in lexical order. Returns false when
// the directory cannot be read or holds no match.
func FindFirstWithExt(dir, ext string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			return filepath.Join(dir, entry.Name()), true
		}
	}
	return "", false
}
