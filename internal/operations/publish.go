package operations

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mutantcacti/o/internal/grammar"
)

// Publish implements "\publish filename content ---": the first
// whitespace-delimited token of the content is a filename relative to
// OutputRoot; the remainder, with surrounding whitespace trimmed, is
// appended to it, creating parent directories as needed and always
// ending in a newline. Absolute paths and any path that resolves outside
// OutputRoot are rejected.
func Publish(cmd *grammar.Command, oc *Context) string {
	raw := strings.TrimSpace(textOf(cmd.Content))
	sep := strings.IndexAny(raw, " \t\n\r")
	var filename, body string
	if sep < 0 {
		filename, body = raw, ""
	} else {
		filename, body = raw[:sep], strings.TrimLeft(raw[sep+1:], " \t\n\r")
	}
	if filename == "" {
		return "ERROR: Invalid filename"
	}

	path, ok := resolveUnderRoot(oc.OutputRoot, filename)
	if !ok {
		return "ERROR: Invalid filename"
	}

	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "ERROR: " + err.Error()
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "ERROR: " + err.Error()
	}
	defer f.Close()
	if _, err := f.WriteString(body); err != nil {
		return "ERROR: " + err.Error()
	}

	return "Published: " + filename
}

// resolveUnderRoot joins name onto root and confirms the resolved
// absolute path stays within root, rejecting absolute names and any
// "../" traversal regardless of how it is spelled.
func resolveUnderRoot(root, name string) (string, bool) {
	if filepath.IsAbs(name) {
		return "", false
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}
	joined := filepath.Join(rootAbs, name)
	if joined != rootAbs && !strings.HasPrefix(joined, rootAbs+string(filepath.Separator)) {
		return "", false
	}
	return joined, true
}
