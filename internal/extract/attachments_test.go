package extract

import (
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractAttachments(t *testing.T) {
	page := `
	<html>
	<body>
		<h1>Incident 7</h1>
		<p>Footage: <a href="/media/cam-3.mp4">camera 3</a></p>
		<p>Detector output: <a href="files/cam-3.jsonl">detections</a></p>
		<p><a href="https://other.example.net/detections-cam3.json">mirror</a></p>
		<video src="https://cdn.example.org/clip.webm"></video>
		<p><a href="#top">top</a> <a href="mailto:desk@example.org">mail</a> <a href="ftp://x/y">ftp</a></p>
		<p><a href="/media/cam-3.mp4">duplicate</a> <a href="/about">about</a></p>
	</body>
	</html>`

	attachments, err := ExtractAttachments(page, "https://example.org/incidents/7")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := []Attachment{
		{URL: "https://example.org/media/cam-3.mp4", Kind: AttachmentClip, Text: "camera 3"},
		{URL: "https://example.org/incidents/files/cam-3.jsonl", Kind: AttachmentDetections, Text: "detections"},
		{URL: "https://other.example.net/detections-cam3.json", Kind: AttachmentDetections, Text: "mirror"},
		{URL: "https://cdn.example.org/clip.webm", Kind: AttachmentClip},
		{URL: "https://example.org/about", Kind: AttachmentOther, Text: "about"},
	}
	if diff := cmp.Diff(want, attachments); diff != "" {
		t.Errorf("Attachments mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractAttachments_InvalidBase(t *testing.T) {
	if _, err := ExtractAttachments("<a href='x.mp4'>x</a>", "://bad"); err == nil {
		t.Error("Expected error for invalid base URL")
	}
}

func TestFirstOfKind(t *testing.T) {
	attachments := []Attachment{
		{URL: "a", Kind: AttachmentOther},
		{URL: "b", Kind: AttachmentDetections},
		{URL: "c", Kind: AttachmentDetections},
	}

	if got, ok := FirstOfKind(attachments, AttachmentDetections); !ok || got.URL != "b" {
		t.Errorf("Expected b, got %+v (found=%v)", got, ok)
	}
	if _, ok := FirstOfKind(attachments, AttachmentClip); ok {
		t.Error("Expected no clip")
	}
}

func TestClassifyAttachment(t *testing.T) {
	tests := []struct {
		url      string
		mimeType string
		want     AttachmentKind
	}{
		{"https://x.org/a.MOV", "", AttachmentClip},
		{"https://x.org/stream", "video/mp4", AttachmentClip},
		{"https://x.org/out.ndjson", "", AttachmentDetections},
		{"https://x.org/detections.json?v=2", "", AttachmentDetections},
		{"https://x.org/metadata.json", "", AttachmentOther},
		{"https://x.org/report.pdf", "", AttachmentOther},
	}

	for _, tt := range tests {
		if got := classifyAttachment(tt.url, tt.mimeType); got != tt.want {
			t.Errorf("classifyAttachment(%q, %q): expected %s, got %s", tt.url, tt.mimeType, tt.want, got)
		}
	}
}

func TestResolveURL(t *testing.T) {
	base, _ := url.Parse("https://example.org/incidents/7")

	tests := []struct {
		href string
		want string
	}{
		{"../media/a.mp4", "https://example.org/media/a.mp4"},
		{"//cdn.example.org/b.mp4", "https://cdn.example.org/b.mp4"},
		{"#section", ""},
		{"javascript:void(0)", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := resolveURL(base, tt.href); got != tt.want {
			t.Errorf("resolveURL(%q): expected %q, got %q", tt.href, tt.want, got)
		}
	}
}
