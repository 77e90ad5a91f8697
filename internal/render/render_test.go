package render

import (
	"strings"
	"testing"
)

func TestToHTML_WrapsConvertedMarkdown(t *testing.T) {
	html, err := ToHTML("# Title\n\nSome *text*.")
	if err != nil {
		t.Fatalf("ToHTML: %v", err)
	}
	if !strings.Contains(html, "<h1>Title</h1>") {
		t.Fatalf("expected a rendered heading, got %q", html)
	}
	if !strings.Contains(html, "<em>text</em>") {
		t.Fatalf("expected rendered emphasis, got %q", html)
	}
	if !strings.Contains(html, "<!DOCTYPE html>") {
		t.Fatalf("expected an HTML document envelope, got %q", html)
	}
}

func TestToHTML_EmptyInput(t *testing.T) {
	html, err := ToHTML("")
	if err != nil {
		t.Fatalf("ToHTML: %v", err)
	}
	if !strings.Contains(html, "<!DOCTYPE html>") {
		t.Fatalf("expected an envelope even for empty input, got %q", html)
	}
}
