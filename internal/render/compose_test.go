package render

import (
	"strings"
	"testing"
)

func TestComposeDocument_Deterministic(t *testing.T) {
	style := CompileStyles(Styles{PrimaryColor: "#123456"})
	body := `<h1>Jane</h1>`
	css := `h1 { color: var(--primary-color); }`

	first := ComposeDocument(style, css, body)
	for i := 0; i < 10; i++ {
		if got := ComposeDocument(style, css, body); got != first {
			t.Fatal("composed document not byte-identical across invocations")
		}
	}
}

func TestComposeDocument_CascadeOrder(t *testing.T) {
	doc := ComposeDocument(":root {\n  --primary-color: #000;\n}\n", "h1 { margin: 0; }", "<h1>x</h1>")

	rootIdx := strings.Index(doc, "--primary-color")
	baseIdx := strings.Index(doc, "font-family: var(--font-family")
	tmplIdx := strings.Index(doc, "h1 { margin: 0; }")
	if rootIdx < 0 || baseIdx < 0 || tmplIdx < 0 {
		t.Fatalf("missing style layer:\n%s", doc)
	}
	if !(rootIdx < baseIdx && baseIdx < tmplIdx) {
		t.Errorf("cascade order must be custom properties, base, template CSS:\n%s", doc)
	}
}

func TestComposeDocument_SelfContained(t *testing.T) {
	doc := ComposeDocument("", "", "<p>hi</p>")

	if !strings.HasPrefix(doc, "<!DOCTYPE html>") {
		t.Error("document must be standalone HTML")
	}
	if !strings.Contains(doc, `<div id="document-root">`) {
		t.Error("body must be wrapped in the document root container")
	}
	if strings.Contains(doc, "<link") || strings.Contains(doc, "src=") {
		t.Errorf("document must not reference external resources:\n%s", doc)
	}
}
