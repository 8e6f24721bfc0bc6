package adapters

import (
	"errors"
	"strings"
	"testing"
)

func TestRegistry_FindAdapter(t *testing.T) {
	registry := NewRegistry()

	tests := []struct {
		name        string
		contentType string
		want        string
	}{
		{"report.html", "", "html"},
		{"https://example.org/incidents/42", "text/html; charset=utf-8", "html"},
		{"submission.form", "", "form"},
		{"", "application/x-www-form-urlencoded", "form"},
		{"statement.txt", "text/plain", "generic"},
		{"", "", "generic"},
	}

	for _, tt := range tests {
		got := registry.FindAdapter(tt.name, tt.contentType).Name()
		if got != tt.want {
			t.Errorf("FindAdapter(%q, %q): expected %s, got %s", tt.name, tt.contentType, tt.want, got)
		}
	}
}

func TestRegistry_RejectsBinaryFormats(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Text("scan.pdf", "", []byte("%PDF-1.4"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat for PDF, got %v", err)
	}

	_, err = registry.Text("", "image/png", []byte{0x89, 'P', 'N', 'G'})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat for image, got %v", err)
	}

	_, err = registry.Text("blob.bin", "", []byte{0xff, 0xfe, 0x00, 0x01})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat for binary content, got %v", err)
	}
}

func TestHTMLAdapter_VisibleText(t *testing.T) {
	adapter := NewHTMLAdapter()

	content := `
	<html>
	<head><style>.x { color: red }</style><script>var people = 99;</script></head>
	<body>
		<nav>Home | Reports</nav>
		<main>
			<h1>Incident 42</h1>
			<p>Two cars collided at 10:30 am.</p>
			<table>
				<tr><th>People</th><td>3</td></tr>
				<tr><th>Weapon</th><td>none</td></tr>
			</table>
		</main>
	</body>
	</html>`

	text, err := adapter.Text([]byte(content))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	for _, want := range []string{"Two cars collided at 10:30 am.", "People: 3", "Weapon: none"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected text to contain %q, got:\n%s", want, text)
		}
	}
	for _, unwanted := range []string{"var people", "color", "Home"} {
		if strings.Contains(text, unwanted) {
			t.Errorf("Expected %q to be skipped, got:\n%s", unwanted, text)
		}
	}
}

func TestHTMLAdapter_FormInputs(t *testing.T) {
	adapter := NewHTMLAdapter()

	content := `<form>
		<input type="text" name="num_vehicles" value="2">
		<input type="hidden" name="csrf" value="abc123">
		<select name="severity"><option>minor</option><option selected>severe</option></select>
	</form>`

	text, err := adapter.Text([]byte(content))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(text, "num vehicles: 2") {
		t.Errorf("Expected input field line, got:\n%s", text)
	}
	if !strings.Contains(text, "severity: severe") {
		t.Errorf("Expected selected option line, got:\n%s", text)
	}
	if strings.Contains(text, "abc123") {
		t.Errorf("Expected hidden inputs to be skipped, got:\n%s", text)
	}
}

func TestFormAdapter_Text(t *testing.T) {
	adapter := NewFormAdapter()

	text, err := adapter.Text([]byte("weapon=no&people=3&description=Two+cars+collided.&cars="))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := "people: 3\nweapon: no\nTwo cars collided."
	if text != want {
		t.Errorf("Expected %q, got %q", want, text)
	}
}

func TestGenericAdapter_NormalisesLineEndings(t *testing.T) {
	adapter := NewGenericAdapter()

	text, err := adapter.Text([]byte("\xef\xbb\xbfPeople: 3\r\nCars: 2"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if text != "People: 3\nCars: 2" {
		t.Errorf("Expected normalised text, got %q", text)
	}
}
