// Package render converts a published markdown artifact to an HTML
// document for human review, backing the "o render <path>" CLI
// subcommand. It is read-only and off the publish
// write path — "publish" still appends raw bytes.
package render

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
)

// ToHTML renders markdown source to a minimal, self-contained HTML
// document with no external resources.
func ToHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render: converting markdown: %w", err)
	}

	html := fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5;">
%s
</body></html>`, buf.String())

	return html, nil
}
