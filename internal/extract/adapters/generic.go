package adapters

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

// GenericAdapter is the fallback adapter for plain-text reports
type GenericAdapter struct{}

// NewGenericAdapter creates a new generic adapter
func NewGenericAdapter() *GenericAdapter {
	return &GenericAdapter{}
}

// Name returns the adapter name
func (a *GenericAdapter) Name() string {
	return "generic"
}

// CanHandle always returns true (fallback adapter)
func (a *GenericAdapter) CanHandle(name string, contentType string) bool {
	return true
}

// Text returns the content with line endings normalised. Binary formats
// (scans, PDFs) are rejected: the text must arrive already transcribed.
func (a *GenericAdapter) Text(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(content) || bytes.IndexByte(content, 0) >= 0 {
		return "", fmt.Errorf("%w: binary content", ErrUnsupportedFormat)
	}
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n"), nil
}
