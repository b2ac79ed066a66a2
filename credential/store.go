package credential

import (
	"context"
	"time"

	"github.com/xraph/bastion/errs"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
)

// Store defines persistence operations for credentials. Implementations
// return errs.ErrCredentialNotFound for missing rows and decode persisted
// permissions with DecodePermissions.
type Store interface {
	// CreateCredential persists a new credential. The ID is already set.
	CreateCredential(ctx context.Context, c *Credential) error

	// GetCredential retrieves a credential by ID.
	GetCredential(ctx context.Context, credID id.CredentialID) (*Credential, error)

	// GetCredentialByHash retrieves a credential by its secret digest.
	GetCredentialByHash(ctx context.Context, hash string) (*Credential, error)

	// UpdateCredential persists changes to a credential.
	UpdateCredential(ctx context.Context, c *Credential) error

	// TouchCredential records a successful use.
	TouchCredential(ctx context.Context, credID id.CredentialID, at time.Time) error

	// ListCredentials returns the owner's credentials, newest first.
	ListCredentials(ctx context.Context, ownerID string) ([]*Credential, error)

	// DeactivateExpired clears the active flag of every active credential
	// whose non-zero expiry is at or before now and returns the count.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// DecodePermissions converts persisted permission strings back into the
// enumeration. Any unknown entry is reported as an *errs.IntegrityError.
func DecodePermissions(credID string, raw []string) ([]permission.Permission, error) {
	perms, err := permission.ParseList(raw)
	if err != nil {
		return nil, &errs.IntegrityError{Entity: "credential", ID: credID, Err: err}
	}
	return perms, nil
}
