package adapters

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// HTMLAdapter extracts the visible narrative from HTML incident reports
type HTMLAdapter struct {
	BaseAdapter
	skipTags  map[string]bool
	blockTags map[string]bool
}

// NewHTMLAdapter creates a new HTML report adapter
func NewHTMLAdapter() *HTMLAdapter {
	return &HTMLAdapter{
		skipTags: map[string]bool{
			"script": true, "style": true, "noscript": true, "iframe": true,
			"nav": true, "header": true, "footer": true, "template": true,
			"select": true,
		},
		blockTags: map[string]bool{
			"p": true, "div": true, "br": true, "li": true, "tr": true,
			"h1": true, "h2": true, "h3": true, "h4": true, "section": true,
			"article": true, "table": true, "dt": true, "dd": true,
		},
	}
}

// Name returns the adapter name
func (a *HTMLAdapter) Name() string {
	return "html"
}

// CanHandle checks for HTML content types and file extensions
func (a *HTMLAdapter) CanHandle(name string, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "html") {
		return true
	}
	return hasSuffixFold(name, ".html", ".htm", ".xhtml")
}

// Text returns the visible text of the report body. Block elements end a
// line so sentence windows never run across table cells or paragraphs.
func (a *HTMLAdapter) Text(content []byte) (string, error) {
	doc, err := a.ParseHTML(content)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	// Focus on main content areas
	root := a.FindFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "main"
	})
	if root == nil {
		root = a.FindFirst(doc, func(n *html.Node) bool {
			return n.Type == html.ElementNode &&
				(n.Data == "article" || a.GetAttribute(n, "role") == "main" || a.HasClass(n, "report"))
		})
	}
	if root == nil {
		root = doc
	}

	var buf strings.Builder
	a.writeVisible(&buf, root)
	buf.WriteString(a.formFields(root))

	return collapseLines(buf.String()), nil
}

func (a *HTMLAdapter) writeVisible(buf *strings.Builder, n *html.Node) {
	if n.Type == html.ElementNode && a.skipTags[n.Data] {
		return
	}

	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			buf.WriteString(text)
			buf.WriteString(" ")
		}
		return
	}

	// Table headers pair with their cell: "People: 3"
	if n.Type == html.ElementNode && n.Data == "th" {
		buf.WriteString(a.ExtractText(n))
		buf.WriteString(": ")
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		a.writeVisible(buf, c)
	}

	if n.Type == html.ElementNode && a.blockTags[n.Data] {
		buf.WriteString("\n")
	}
}

// formFields renders filled-in <input> and <textarea> values as labelled lines
func (a *HTMLAdapter) formFields(root *html.Node) string {
	inputs := a.FindAll(root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && (n.Data == "input" || n.Data == "select")
	})

	var buf strings.Builder
	for _, input := range inputs {
		name := a.GetAttribute(input, "name")
		value := a.GetAttribute(input, "value")
		if input.Data == "select" {
			if selected := a.FindFirst(input, func(n *html.Node) bool {
				return n.Type == html.ElementNode && n.Data == "option" && hasAttr(n, "selected")
			}); selected != nil {
				value = a.ExtractText(selected)
			}
		}
		if name == "" || strings.TrimSpace(value) == "" {
			continue
		}
		switch strings.ToLower(a.GetAttribute(input, "type")) {
		case "hidden", "submit", "button", "password":
			continue
		}
		fmt.Fprintf(&buf, "%s: %s\n", fieldLabel(name), value)
	}
	return buf.String()
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}

// collapseLines trims every line and drops empty ones
func collapseLines(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
