// Package errs declares the sentinel and typed errors shared by every
// Bastion package. The root bastion package re-exports them; subpackages
// import this leaf package directly to avoid import cycles.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAccessDenied is returned by Enforce when an authorization check fails.
	ErrAccessDenied = errors.New("bastion: access denied")

	// ErrRoleNotFound is returned when a custom role cannot be found.
	ErrRoleNotFound = errors.New("bastion: role not found")

	// ErrCredentialNotFound is returned when a credential cannot be found
	// or is not owned by the calling principal.
	ErrCredentialNotFound = errors.New("bastion: credential not found")

	// ErrRoleExists is returned when a custom role name is already taken.
	ErrRoleExists = errors.New("bastion: role already exists")

	// ErrBaseRoleImmutable is returned when a custom role would shadow,
	// modify or delete a built-in base role.
	ErrBaseRoleImmutable = errors.New("bastion: base role cannot be modified")

	// ErrCyclicRoleInheritance is returned when role inheritance would create a cycle.
	ErrCyclicRoleInheritance = errors.New("bastion: cyclic role inheritance detected")

	// ErrSelfInheritance is returned when a role names itself as its parent.
	ErrSelfInheritance = errors.New("bastion: role cannot inherit from itself")

	// ErrUnknownParentRole is returned when inheritsFrom names a role that does not exist.
	ErrUnknownParentRole = errors.New("bastion: unknown parent role")

	// ErrInheritanceDepthExceeded is returned when an inheritance chain is too deep.
	ErrInheritanceDepthExceeded = errors.New("bastion: role inheritance depth exceeded")

	// ErrRoleHasDependents is returned when deleting a role other roles inherit from.
	ErrRoleHasDependents = errors.New("bastion: role has dependent roles")

	// ErrInvalidPermission is returned for permission strings outside the
	// closed permission enumeration.
	ErrInvalidPermission = errors.New("bastion: invalid permission")

	// ErrInvalidRoleName is returned for empty or malformed role names.
	ErrInvalidRoleName = errors.New("bastion: invalid role name")

	// ErrInvalidRateLimit is returned for a negative credential rate limit.
	ErrInvalidRateLimit = errors.New("bastion: invalid rate limit")

	// ErrCorruptPermissions is returned when persisted permission data cannot
	// be decoded into the permission enumeration.
	ErrCorruptPermissions = errors.New("bastion: corrupt persisted permissions")

	// ErrNotStarted is returned when a component is used before Start.
	ErrNotStarted = errors.New("bastion: component not started")
)

// ValidationError reports a value rejected at the system boundary.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %q", ErrInvalidPermission, e.Value)
	}
	return fmt.Sprintf("%s: %s %q", ErrInvalidPermission, e.Field, e.Value)
}

// Unwrap returns ErrInvalidPermission.
func (e *ValidationError) Unwrap() error { return ErrInvalidPermission }

// CycleError reports an inheritance graph problem found at registration:
// a cycle, an unknown parent or an over-deep chain. Cause is one of
// ErrCyclicRoleInheritance, ErrUnknownParentRole, ErrSelfInheritance or
// ErrInheritanceDepthExceeded.
type CycleError struct {
	Role  string
	Chain []string
	Cause error
}

func (e *CycleError) Error() string {
	if len(e.Chain) == 0 {
		return fmt.Sprintf("%s: role %q", e.Cause, e.Role)
	}
	return fmt.Sprintf("%s: role %q (%s)", e.Cause, e.Role, strings.Join(e.Chain, " -> "))
}

// Unwrap returns the underlying cause sentinel.
func (e *CycleError) Unwrap() error { return e.Cause }

// IntegrityError reports persisted data that no longer decodes into valid
// domain values. It is always a hard failure.
type IntegrityError struct {
	Entity string
	ID     string
	Err    error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrCorruptPermissions, e.Entity, e.ID, e.Err)
}

// Unwrap exposes both ErrCorruptPermissions and the decoding error.
func (e *IntegrityError) Unwrap() []error { return []error{ErrCorruptPermissions, e.Err} }

// DependentsError lists the custom roles that still inherit from Role.
type DependentsError struct {
	Role       string
	Dependents []string
}

func (e *DependentsError) Error() string {
	return fmt.Sprintf("%s: %q is inherited by %s; delete them first",
		ErrRoleHasDependents, e.Role, strings.Join(e.Dependents, ", "))
}

// Unwrap returns ErrRoleHasDependents.
func (e *DependentsError) Unwrap() error { return ErrRoleHasDependents }
