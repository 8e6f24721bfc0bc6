package adapters

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// FormAdapter reads URL-encoded form submissions (people=3&cars=2&weapon=no)
type FormAdapter struct {
	// Narrative fields are emitted as free text after the labelled fields
	narrativeFields map[string]bool
}

// NewFormAdapter creates a new form submission adapter
func NewFormAdapter() *FormAdapter {
	return &FormAdapter{
		narrativeFields: map[string]bool{
			"description": true, "narrative": true, "statement": true,
			"text": true, "details": true, "report": true,
		},
	}
}

// Name returns the adapter name
func (a *FormAdapter) Name() string {
	return "form"
}

// CanHandle checks for form content types and .form files
func (a *FormAdapter) CanHandle(name string, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "x-www-form-urlencoded") {
		return true
	}
	return hasSuffixFold(name, ".form")
}

// Text renders each field as a "label: value" line. Keys are sorted so the
// same submission always yields the same text.
func (a *FormAdapter) Text(content []byte) (string, error) {
	values, err := url.ParseQuery(strings.TrimSpace(string(content)))
	if err != nil {
		return "", fmt.Errorf("parse form: %w", err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var fields, narrative []string
	for _, k := range keys {
		for _, v := range values[k] {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if a.narrativeFields[strings.ToLower(k)] {
				narrative = append(narrative, v)
				continue
			}
			fields = append(fields, fmt.Sprintf("%s: %s", fieldLabel(k), v))
		}
	}

	return strings.Join(append(fields, narrative...), "\n"), nil
}

// fieldLabel turns "num_vehicles" or "weapon-present" into "num vehicles"
func fieldLabel(key string) string {
	return strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(key)
}
