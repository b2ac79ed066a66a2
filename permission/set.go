package permission

import (
	"slices"
)

// Set is an unordered collection of permissions. The zero value is not
// usable; construct with NewSet.
type Set map[Permission]struct{}

// NewSet returns a set holding perms.
func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Add inserts p.
func (s Set) Add(p Permission) { s[p] = struct{}{} }

// Remove deletes p.
func (s Set) Remove(p Permission) { delete(s, p) }

// Contains reports whether p is literally present.
func (s Set) Contains(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Grants reports whether the set allows p: via Wildcard, an exact match, or,
// when scope is non-empty, the scoped variant of p.
func (s Set) Grants(p Permission, scope string) bool {
	if s.Contains(Wildcard) || s.Contains(p) {
		return true
	}
	if scope != "" {
		if scoped := p.WithScope(scope); scoped != p && s.Contains(scoped) {
			return true
		}
	}
	return false
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	c := make(Set, len(s))
	for p := range s {
		c[p] = struct{}{}
	}
	return c
}

// Union adds every permission of other to s.
func (s Set) Union(other Set) {
	for p := range other {
		s[p] = struct{}{}
	}
}

// Slice returns the permissions sorted lexically.
func (s Set) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
