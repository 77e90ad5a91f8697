package operations

import (
	"github.com/mutantcacti/o/internal/grammar"
)

// Name implements "\name #S @(e1,...) ---": overwrites spaces[#S] with
// the given member set and ensures each member's entitySpaces entry
// contains #S.
func Name(cmd *grammar.Command, oc *Context) string {
	spaces := spaceRefs(cmd.Content)
	if len(spaces) == 0 {
		return "ERROR: name requires a #space argument"
	}
	members := entityRefs(cmd.Content)
	if len(members) == 0 {
		return "ERROR: name requires at least one @entity member"
	}

	id := spaces[0]
	if err := oc.World.SetSpaceMembers(id, members); err != nil {
		return "ERROR: " + err.Error()
	}
	return "Named: " + string(id)
}
