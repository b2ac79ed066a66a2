package resolver

import (
	"github.com/xraph/bastion/errs"
	"github.com/xraph/bastion/role"
)

// ChainReason tags why an inheritance chain is invalid.
type ChainReason string

const (
	// ChainCycle means a role name repeated while following inheritsFrom.
	ChainCycle ChainReason = "cycle"
	// ChainUnknownRole means a name is neither a custom nor a base role.
	ChainUnknownRole ChainReason = "unknown_role"
	// ChainDepthExceeded means the chain needs more hops than allowed.
	ChainDepthExceeded ChainReason = "depth_exceeded"
)

// Chain is the ordered path from a role up to its terminal base role.
// Roles[0] is the queried role; when Valid, the last entry is a base role.
type Chain struct {
	Roles  []string    `json:"roles"`
	Valid  bool        `json:"valid"`
	Reason ChainReason `json:"reason,omitempty"`
	Detail string      `json:"detail,omitempty"`
}

// Includes reports whether name appears anywhere in the chain.
func (c Chain) Includes(name string) bool {
	for _, r := range c.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// err converts an invalid chain into the registration error for roleName.
func (c Chain) err(roleName string) error {
	var cause error
	switch c.Reason {
	case ChainCycle:
		cause = errs.ErrCyclicRoleInheritance
	case ChainDepthExceeded:
		cause = errs.ErrInheritanceDepthExceeded
	default:
		cause = errs.ErrUnknownParentRole
	}
	return &errs.CycleError{Role: roleName, Chain: c.Roles, Cause: cause}
}

type lookupFunc func(name string) (*role.Definition, bool)

// buildChain follows inheritsFrom from name with a visited set. It never
// follows more than maxDepth hops and always terminates.
func buildChain(name string, maxDepth int, lookup lookupFunc) Chain {
	visited := make(map[string]struct{}, maxDepth+1)
	roles := make([]string, 0, maxDepth+1)
	hops := 0
	cur := name

	for {
		if _, seen := visited[cur]; seen {
			return Chain{Roles: append(roles, cur), Reason: ChainCycle, Detail: cur}
		}
		visited[cur] = struct{}{}
		roles = append(roles, cur)

		def, ok := lookup(cur)
		if !ok {
			if role.IsBase(cur) {
				return Chain{Roles: roles, Valid: true}
			}
			return Chain{Roles: roles, Reason: ChainUnknownRole, Detail: cur}
		}
		if hops == maxDepth {
			return Chain{Roles: roles, Reason: ChainDepthExceeded, Detail: def.InheritsFrom}
		}
		hops++
		cur = def.InheritsFrom
	}
}
