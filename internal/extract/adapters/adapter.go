package adapters

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ErrUnsupportedFormat is returned for report formats that need OCR or decoding
var ErrUnsupportedFormat = errors.New("unsupported report format")

// Adapter turns one report document format into plain narrative text
type Adapter interface {
	// Name returns the adapter name
	Name() string

	// CanHandle checks if this adapter can handle the given file name/URL and content type
	CanHandle(name string, contentType string) bool

	// Text returns the narrative text of the document
	Text(content []byte) (string, error)
}

// Registry manages format adapters
type Registry struct {
	adapters []Adapter
	generic  Adapter
}

// NewRegistry creates a new adapter registry
func NewRegistry() *Registry {
	registry := &Registry{
		adapters: make([]Adapter, 0),
	}

	// Register built-in adapters
	registry.Register(NewHTMLAdapter())
	registry.Register(NewFormAdapter())

	// Plain text is the fallback
	registry.generic = NewGenericAdapter()

	return registry
}

// Register registers a new adapter
func (r *Registry) Register(adapter Adapter) {
	r.adapters = append(r.adapters, adapter)
}

// FindAdapter finds the best adapter for the given name and content type
func (r *Registry) FindAdapter(name string, contentType string) Adapter {
	for _, adapter := range r.adapters {
		if adapter.CanHandle(name, contentType) {
			return adapter
		}
	}
	return r.generic
}

// Text picks an adapter and returns the document's narrative text
func (r *Registry) Text(name, contentType string, content []byte) (string, error) {
	ct := strings.ToLower(contentType)
	if strings.HasPrefix(ct, "image/") || strings.HasPrefix(ct, "video/") || strings.Contains(ct, "pdf") ||
		hasSuffixFold(name, ".pdf", ".png", ".jpg", ".jpeg", ".tiff", ".mp4") {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, firstNonEmpty(contentType, name))
	}
	return r.FindAdapter(name, contentType).Text(content)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// BaseAdapter provides common HTML helpers for adapters
type BaseAdapter struct{}

// ParseHTML parses HTML bytes into a node tree
func (b *BaseAdapter) ParseHTML(content []byte) (*html.Node, error) {
	return html.Parse(strings.NewReader(string(content)))
}

// ExtractText extracts text content from a node
func (b *BaseAdapter) ExtractText(n *html.Node) string {
	if n.Type == html.TextNode {
		return strings.TrimSpace(n.Data)
	}

	var buf strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if text := b.ExtractText(c); text != "" {
			buf.WriteString(text)
			buf.WriteString(" ")
		}
	}
	return strings.TrimSpace(buf.String())
}

// HasClass checks if a node has a specific CSS class
func (b *BaseAdapter) HasClass(n *html.Node, className string) bool {
	if n.Type != html.ElementNode {
		return false
	}

	for _, attr := range n.Attr {
		if attr.Key == "class" {
			for _, class := range strings.Fields(attr.Val) {
				if class == className {
					return true
				}
			}
		}
	}
	return false
}

// GetAttribute gets an attribute value from a node
func (b *BaseAdapter) GetAttribute(n *html.Node, attrKey string) string {
	for _, attr := range n.Attr {
		if attr.Key == attrKey {
			return attr.Val
		}
	}
	return ""
}

// FindAll finds all nodes matching a predicate
func (b *BaseAdapter) FindAll(n *html.Node, predicate func(*html.Node) bool) []*html.Node {
	var results []*html.Node

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if predicate(node) {
			results = append(results, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return results
}

// FindFirst finds the first node matching a predicate
func (b *BaseAdapter) FindFirst(n *html.Node, predicate func(*html.Node) bool) *html.Node {
	var result *html.Node

	var walk func(*html.Node) bool
	walk = func(node *html.Node) bool {
		if predicate(node) {
			result = node
			return true
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}

	walk(n)
	return result
}

func hasSuffixFold(name string, suffixes ...string) bool {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}
