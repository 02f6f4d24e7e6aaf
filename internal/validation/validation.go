// Package validation checks names that end up inside bundles and sniffs the
// compression of document files that carry no telling extension.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode"
)

const (
	// MaxFilenameLength is the maximum length of one path segment.
	MaxFilenameLength = 255
	// MaxEntryNameLength is the maximum length of a bundle entry name.
	MaxEntryNameLength = 4096
)

var (
	ErrInvalidFilename  = errors.New("invalid filename")
	ErrFilenameTooLong  = errors.New("filename too long")
	ErrPathTraversal    = errors.New("path traversal detected")
	ErrEntryNameTooLong = errors.New("entry name too long")
)

// ValidateFilename checks a single path segment. It rejects separators,
// control characters, reserved names and a leading hyphen.
func ValidateFilename(filename string) error {
	switch {
	case filename == "":
		return ErrInvalidFilename
	case len(filename) > MaxFilenameLength:
		return ErrFilenameTooLong
	case filename == "." || filename == "..":
		return fmt.Errorf("%w: reserved name", ErrInvalidFilename)
	case strings.ContainsAny(filename, "/\\"):
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidFilename)
	case strings.HasPrefix(filename, "-"):
		return fmt.Errorf("%w: filename cannot start with hyphen", ErrInvalidFilename)
	}
	for _, r := range filename {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
		}
	}
	return nil
}

// SanitizeFilename turns a document name into a safe path segment: spaces
// are trimmed, separators become underscores, control characters and
// leading hyphens are dropped.
func SanitizeFilename(filename string) (string, error) {
	filename = strings.TrimSpace(filename)
	filename = strings.NewReplacer("/", "_", "\\", "_").Replace(filename)
	filename = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, filename)
	filename = strings.TrimLeft(filename, "-")

	if err := ValidateFilename(filename); err != nil {
		return "", err
	}
	return filename, nil
}

// ValidateEntryName checks a slash separated bundle entry name. The name must
// be relative, must stay inside the bundle and every segment must pass
// ValidateFilename.
func ValidateEntryName(name string) error {
	if len(name) > MaxEntryNameLength {
		return ErrEntryNameTooLong
	}
	if strings.HasPrefix(name, "/") {
		return fmt.Errorf("%w: absolute entry name %q", ErrPathTraversal, name)
	}
	if cleaned := path.Clean(name); cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return fmt.Errorf("%w: %q", ErrPathTraversal, name)
		}
		if err := ValidateFilename(seg); err != nil {
			return fmt.Errorf("entry %q: %w", name, err)
		}
	}
	return nil
}

// Compression is the encoding of a file as told by its leading bytes.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionXZ   Compression = "xz"
	CompressionGzip Compression = "gzip"
)

// SniffLength is the number of leading bytes SniffCompression looks at.
const SniffLength = 6

var magicBytes = []struct {
	magic       []byte
	compression Compression
}{
	{[]byte{0xFD, '7', 'z', 'X', 'Z', 0x00}, CompressionXZ},
	{[]byte{0x1F, 0x8B}, CompressionGzip},
}

// SniffCompression reports the compression of a file from its first bytes.
func SniffCompression(prefix []byte) Compression {
	for _, m := range magicBytes {
		if bytes.HasPrefix(prefix, m.magic) {
			return m.compression
		}
	}
	return CompressionNone
}
