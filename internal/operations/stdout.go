package operations

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mutantcacti/o/internal/grammar"
	"github.com/mutantcacti/o/internal/world"
)

// stdoutHelp is returned by "op:help" and on unrecognized subcommands.
const stdoutHelp = "stdout subcommands: write <text>, read [last N], between A B, query <substring>, help"

// Stdout implements the per-entity log operation. Content beginning
// with "op:" selects one of the structured subcommands (write, read,
// between, query, help); anything else is freeform text appended
// as-is.
func Stdout(cmd *grammar.Command, oc *Context) string {
	raw := strings.TrimSpace(textOf(cmd.Content))
	if !strings.HasPrefix(raw, "op:") {
		return stdoutWrite(oc, raw)
	}

	rest := strings.TrimSpace(strings.TrimPrefix(raw, "op:"))
	fields := strings.SplitN(rest, " ", 2)
	sub := fields[0]
	args := ""
	if len(fields) == 2 {
		args = strings.TrimSpace(fields[1])
	}

	switch sub {
	case "write":
		return stdoutWrite(oc, args)
	case "read":
		return stdoutRead(oc, args)
	case "between":
		return stdoutBetween(oc, args)
	case "query":
		return stdoutQuery(oc, args)
	case "help":
		return stdoutHelp
	default:
		return "ERROR: unknown stdout subcommand " + strconv.Quote(sub) + " (" + stdoutHelp + ")"
	}
}

func stdoutWrite(oc *Context, content string) string {
	if content == "" {
		return "ERROR: stdout write requires content"
	}
	entry := world.StdoutEntry{Tick: oc.World.Clock(), Entity: oc.Executor, Content: content, Timestamp: time.Now().UTC()}
	if oc.Store != nil {
		if err := oc.Store.AppendStdout(entry); err != nil {
			return "ERROR: " + err.Error()
		}
	}
	return "Logged"
}

func stdoutRead(oc *Context, args string) string {
	entries, err := loadStdout(oc)
	if err != nil {
		return "ERROR: " + err.Error()
	}
	n := len(entries)
	if fields := strings.Fields(args); len(fields) == 2 && fields[0] == "last" {
		if k, perr := strconv.Atoi(fields[1]); perr == nil && k >= 0 && k < n {
			entries = entries[n-k:]
		}
	}
	return formatStdoutEntries(entries)
}

func stdoutBetween(oc *Context, args string) string {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return "ERROR: stdout between requires two tick bounds"
	}
	a, aerr := strconv.Atoi(fields[0])
	b, berr := strconv.Atoi(fields[1])
	if aerr != nil || berr != nil {
		return "ERROR: stdout between requires integer tick bounds"
	}
	entries, err := loadStdout(oc)
	if err != nil {
		return "ERROR: " + err.Error()
	}
	var out []world.StdoutEntry
	for _, e := range entries {
		if e.Tick >= a && e.Tick <= b {
			out = append(out, e)
		}
	}
	return formatStdoutEntries(out)
}

func stdoutQuery(oc *Context, substr string) string {
	if substr == "" {
		return "ERROR: stdout query requires a substring"
	}
	entries, err := loadStdout(oc)
	if err != nil {
		return "ERROR: " + err.Error()
	}
	needle := strings.ToLower(substr)
	var out []world.StdoutEntry
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Content), needle) {
			out = append(out, e)
		}
	}
	return formatStdoutEntries(out)
}

func loadStdout(oc *Context) ([]world.StdoutEntry, error) {
	if oc.Store == nil {
		return nil, nil
	}
	return oc.Store.ReadStdout(oc.Executor)
}

func formatStdoutEntries(entries []world.StdoutEntry) string {
	if len(entries) == 0 {
		return "No entries"
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("[%d] %s", e.Tick, e.Content)
	}
	return strings.Join(lines, "\n")
}
