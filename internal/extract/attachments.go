package extract

import (
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// AttachmentKind classifies a link found in an incident report page
type AttachmentKind string

const (
	AttachmentClip       AttachmentKind = "clip"       // Video file
	AttachmentDetections AttachmentKind = "detections" // Detector output (JSON / JSONL)
	AttachmentOther      AttachmentKind = "other"
)

// Attachment is a link from a report page to supporting material
type Attachment struct {
	URL  string         `json:"url"`
	Kind AttachmentKind `json:"kind"`
	Text string         `json:"text,omitempty"`
}

var clipExtensions = map[string]bool{".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true, ".m4v": true}

// ExtractAttachments lists the http(s) links of an HTML report, resolved against sourceURL.
// <video>/<source> elements count as clips.
func ExtractAttachments(htmlContent, sourceURL string) ([]Attachment, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}

	baseURL, err := url.Parse(sourceURL)
	if err != nil {
		return nil, err
	}

	var attachments []Attachment
	var walk func(*html.Node)

	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				if resolved := resolveURL(baseURL, attr(n, "href")); resolved != "" {
					attachments = append(attachments, Attachment{
						URL:  resolved,
						Kind: classifyAttachment(resolved, attr(n, "type")),
						Text: linkText(n),
					})
				}
			case "video", "source":
				if resolved := resolveURL(baseURL, attr(n, "src")); resolved != "" {
					attachments = append(attachments, Attachment{URL: resolved, Kind: AttachmentClip})
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)

	return dedupeAttachments(attachments), nil
}

// FirstOfKind returns the first attachment of the given kind
func FirstOfKind(attachments []Attachment, kind AttachmentKind) (Attachment, bool) {
	for _, a := range attachments {
		if a.Kind == kind {
			return a, true
		}
	}
	return Attachment{}, false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func linkText(n *html.Node) string {
	if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	return ""
}

// resolveURL resolves a relative URL against a base URL
func resolveURL(base *url.URL, href string) string {
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	// Skip javascript: and mailto: links
	if strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(parsed)

	// Only keep http/https URLs
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}

	return resolved.String()
}

func classifyAttachment(rawURL, mimeType string) AttachmentKind {
	mimeType = strings.ToLower(mimeType)
	if strings.HasPrefix(mimeType, "video/") {
		return AttachmentClip
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return AttachmentOther
	}
	p := strings.ToLower(u.Path)
	ext := path.Ext(p)

	switch {
	case clipExtensions[ext]:
		return AttachmentClip
	case ext == ".jsonl" || ext == ".ndjson":
		return AttachmentDetections
	case ext == ".json" && strings.Contains(path.Base(p), "detect"):
		return AttachmentDetections
	default:
		return AttachmentOther
	}
}

func dedupeAttachments(attachments []Attachment) []Attachment {
	seen := make(map[string]bool)
	var unique []Attachment

	for _, a := range attachments {
		if !seen[a.URL] {
			seen[a.URL] = true
			unique = append(unique, a)
		}
	}

	return unique
}
