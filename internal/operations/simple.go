package operations

import (
	"strings"

	"github.com/mutantcacti/o/internal/grammar"
)

// Echo concatenates the Text nodes of the command, trims surrounding
// whitespace, and returns "Echo: <text>".
func Echo(cmd *grammar.Command, oc *Context) string {
	return "Echo: " + strings.TrimSpace(textOf(cmd.Content))
}

// Up is the always-satisfied predicate: it returns literal "true",
// used as the simplest possible wake/eval condition ($(\up---)).
func Up(cmd *grammar.Command, oc *Context) string {
	return "true"
}
