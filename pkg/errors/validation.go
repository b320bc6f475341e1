package errors

import (
	"strings"
	"unicode"
)

// ValidateCoordinatePart validates one segment of an artifact coordinate
// (group, artifact, version, classifier or extension).
//
// Segments end up as path components in repository layouts, so the rules
// reject anything that could escape a directory:
//   - No empty segments (unless allowEmpty)
//   - No control characters
//   - No path separators, colons or ".." sequences
//   - Maximum length of 256 characters
func ValidateCoordinatePart(kind, part string, allowEmpty bool) error {
	if part == "" {
		if allowEmpty {
			return nil
		}
		return New(ErrCodeInvalidCoordinate, "%s cannot be empty", kind)
	}
	if len(part) > 256 {
		return New(ErrCodeInvalidCoordinate, "%s too long (max 256 characters)", kind)
	}
	for _, r := range part {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidCoordinate, "%s contains invalid characters: %q", kind, part)
		}
	}
	for _, pattern := range []string{"..", "/", "\\", ":"} {
		if strings.Contains(part, pattern) {
			return New(ErrCodeInvalidCoordinate, "%s contains invalid characters: %q", kind, pattern)
		}
	}
	return nil
}

// ValidatePath validates a resource path relative to a repository root.
// It prevents path traversal and ensures reasonable path length.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 1024 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 1024
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
		}
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}

// ValidateURL validates a repository URL string.
// Supported schemes are file, http, https and mongodb.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}
	for _, scheme := range []string{"file://", "http://", "https://", "mongodb://", "mongodb+srv://"} {
		if strings.HasPrefix(rawURL, scheme) {
			return nil
		}
	}
	return New(ErrCodeInvalidInput, "unsupported URL scheme: %q", rawURL)
}
