package operations

import (
	"fmt"
	"strings"

	"github.com/mutantcacti/o/internal/grammar"
)

// Spawn registers one entity per EntityRef argument. Duplicate spawns
// and provider hook failures are reported per-entity; partial success
// is possible and is reported rather than rolled back.
func Spawn(cmd *grammar.Command, oc *Context) string {
	refs := entityRefs(cmd.Content)
	if len(refs) == 0 {
		return "ERROR: spawn requires at least one @entity argument"
	}

	var spawned []string
	var errs []string
	for _, e := range refs {
		if err := oc.World.Spawn(e); err != nil {
			errs = append(errs, fmt.Sprintf("%s: already exists", e))
			continue
		}
		if oc.Hooks != nil {
			if err := oc.Hooks.EnsureChannels(oc.Ctx, e); err != nil {
				errs = append(errs, fmt.Sprintf("%s: provider hook failed: %v", e, err))
				continue
			}
		}
		spawned = append(spawned, string(e))
	}

	switch {
	case len(errs) == 0:
		return "Spawned: " + strings.Join(spawned, ", ")
	case len(spawned) == 0:
		return "ERROR: " + strings.Join(errs, "; ")
	default:
		return fmt.Sprintf("Spawned: %s (errors: %s)", strings.Join(spawned, ", "), strings.Join(errs, "; "))
	}
}
