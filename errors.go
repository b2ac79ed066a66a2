package bastion

import "github.com/xraph/bastion/errs"

// Sentinel errors. They are declared in package errs so subpackages can
// return them without importing the root package.
var (
	ErrAccessDenied             = errs.ErrAccessDenied
	ErrRoleNotFound             = errs.ErrRoleNotFound
	ErrCredentialNotFound       = errs.ErrCredentialNotFound
	ErrRoleExists               = errs.ErrRoleExists
	ErrBaseRoleImmutable        = errs.ErrBaseRoleImmutable
	ErrCyclicRoleInheritance    = errs.ErrCyclicRoleInheritance
	ErrSelfInheritance          = errs.ErrSelfInheritance
	ErrUnknownParentRole        = errs.ErrUnknownParentRole
	ErrInheritanceDepthExceeded = errs.ErrInheritanceDepthExceeded
	ErrRoleHasDependents        = errs.ErrRoleHasDependents
	ErrInvalidPermission        = errs.ErrInvalidPermission
	ErrInvalidRoleName          = errs.ErrInvalidRoleName
	ErrInvalidRateLimit         = errs.ErrInvalidRateLimit
	ErrCorruptPermissions       = errs.ErrCorruptPermissions
	ErrNotStarted               = errs.ErrNotStarted
)

// Typed errors.
type (
	ValidationError = errs.ValidationError
	CycleError      = errs.CycleError
	IntegrityError  = errs.IntegrityError
	DependentsError = errs.DependentsError
)
