// Package permission defines the closed Permission enumeration shared by the
// resolver, the credential service and the authorization gate.
//
// A Permission is a "resource:action" token, the Wildcard "*", or a
// blueprint-scoped variant "resource:<slug>:action". Values only enter the
// system through Parse and ParseList; code holding a Permission never needs
// to re-validate it.
package permission

import (
	"regexp"
	"slices"
	"strings"

	"github.com/xraph/bastion/errs"
)

// Permission is a validated capability token.
type Permission string

// Wildcard grants every permission.
const Wildcard Permission = "*"

// Blueprint permissions.
const (
	BlueprintRead   Permission = "blueprint:read"
	BlueprintCreate Permission = "blueprint:create"
	BlueprintUpdate Permission = "blueprint:update"
	BlueprintDelete Permission = "blueprint:delete"
)

// Content permissions.
const (
	ContentRead      Permission = "content:read"
	ContentCreate    Permission = "content:create"
	ContentUpdate    Permission = "content:update"
	ContentDelete    Permission = "content:delete"
	ContentPublish   Permission = "content:publish"
	ContentUnpublish Permission = "content:unpublish"
)

// Media permissions.
const (
	MediaRead   Permission = "media:read"
	MediaCreate Permission = "media:create"
	MediaUpdate Permission = "media:update"
	MediaDelete Permission = "media:delete"
)

// Webhook permissions.
const (
	WebhookRead   Permission = "webhook:read"
	WebhookCreate Permission = "webhook:create"
	WebhookUpdate Permission = "webhook:update"
	WebhookDelete Permission = "webhook:delete"
)

// User permissions.
const (
	UserRead   Permission = "user:read"
	UserCreate Permission = "user:create"
	UserUpdate Permission = "user:update"
	UserDelete Permission = "user:delete"
)

// Role management permissions.
const (
	RoleRead   Permission = "role:read"
	RoleCreate Permission = "role:create"
	RoleUpdate Permission = "role:update"
	RoleDelete Permission = "role:delete"
)

// API key management permissions.
const (
	APIKeyRead   Permission = "apikey:read"
	APIKeyCreate Permission = "apikey:create"
	APIKeyUpdate Permission = "apikey:update"
	APIKeyDelete Permission = "apikey:delete"
)

// Settings permissions.
const (
	SettingsRead   Permission = "settings:read"
	SettingsUpdate Permission = "settings:update"
)

// ScopedResource is the only resource whose permissions accept a
// blueprint scope segment.
const ScopedResource = "content"

var enumeration = []Permission{
	Wildcard,
	BlueprintRead, BlueprintCreate, BlueprintUpdate, BlueprintDelete,
	ContentRead, ContentCreate, ContentUpdate, ContentDelete, ContentPublish, ContentUnpublish,
	MediaRead, MediaCreate, MediaUpdate, MediaDelete,
	WebhookRead, WebhookCreate, WebhookUpdate, WebhookDelete,
	UserRead, UserCreate, UserUpdate, UserDelete,
	RoleRead, RoleCreate, RoleUpdate, RoleDelete,
	APIKeyRead, APIKeyCreate, APIKeyUpdate, APIKeyDelete,
	SettingsRead, SettingsUpdate,
}

var known = func() map[Permission]struct{} {
	m := make(map[Permission]struct{}, len(enumeration))
	for _, p := range enumeration {
		m[p] = struct{}{}
	}
	return m
}()

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Enumeration returns every unscoped permission, including Wildcard.
func Enumeration() []Permission {
	return slices.Clone(enumeration)
}

// ValidScope reports whether s is usable as a blueprint scope segment.
func ValidScope(s string) bool {
	return slugPattern.MatchString(s)
}

// Parse validates s against the closed enumeration. Scoped forms are
// accepted for content permissions only.
func Parse(s string) (Permission, error) {
	p := Permission(s)
	if _, ok := known[p]; ok {
		return p, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) == 3 && parts[0] == ScopedResource && ValidScope(parts[1]) {
		if _, ok := known[Permission(parts[0]+":"+parts[2])]; ok {
			return p, nil
		}
	}
	return "", &errs.ValidationError{Field: "permission", Value: s}
}

// MustParse is like Parse but panics on error. Use for hardcoded values.
func MustParse(s string) Permission {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseList validates every entry and fails on the first invalid one.
// Duplicates are dropped; order of first occurrence is preserved.
func ParseList(ss []string) ([]Permission, error) {
	out := make([]Permission, 0, len(ss))
	seen := make(map[Permission]struct{}, len(ss))
	for _, s := range ss {
		p, err := Parse(s)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// Strings converts permissions to plain strings for serialization.
func Strings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// String implements fmt.Stringer.
func (p Permission) String() string { return string(p) }

// UnmarshalText implements encoding.TextUnmarshaler so decoded JSON and
// YAML pass through Parse.
func (p *Permission) UnmarshalText(data []byte) error {
	v, err := Parse(string(data))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Resource returns the resource segment ("content" for "content:read").
func (p Permission) Resource() string {
	r, _, _ := strings.Cut(string(p), ":")
	return r
}

// Action returns the action segment, ignoring any scope.
func (p Permission) Action() string {
	i := strings.LastIndexByte(string(p), ':')
	if i < 0 {
		return ""
	}
	return string(p)[i+1:]
}

// Scope returns the blueprint scope of a scoped permission, or "".
func (p Permission) Scope() string {
	parts := strings.Split(string(p), ":")
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}

// Unscoped strips a scope segment, returning the base permission.
func (p Permission) Unscoped() Permission {
	if p.Scope() == "" {
		return p
	}
	return Permission(p.Resource() + ":" + p.Action())
}

// WithScope returns the scoped variant formed by inserting scope into the
// action segment. It returns p unchanged when p cannot be scoped.
func (p Permission) WithScope(scope string) Permission {
	if scope == "" || p == Wildcard || p.Scope() != "" || p.Resource() != ScopedResource {
		return p
	}
	return Permission(p.Resource() + ":" + scope + ":" + p.Action())
}
