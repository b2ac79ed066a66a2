package customrole

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/bastion/errs"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
)

// ImportStatus is the per-role outcome of Import.
type ImportStatus string

const (
	ImportCreated ImportStatus = "created"
	ImportUpdated ImportStatus = "updated"
	ImportSkipped ImportStatus = "skipped"
	ImportError   ImportStatus = "error"
)

// ImportOptions controls Import.
type ImportOptions struct {
	// Overwrite replaces existing roles of the same name. Without it they
	// are skipped.
	Overwrite bool `json:"overwrite"`
}

// ImportResult reports what happened to one definition.
type ImportResult struct {
	Name   string       `json:"name"`
	Status ImportStatus `json:"status"`
	Err    error        `json:"-"`
	Error  string       `json:"error,omitempty"`
}

// Export returns every custom role ordered so that parents precede the
// roles inheriting from them.
func (m *Manager) Export(_ context.Context) []*role.Definition {
	return orderParentsFirst(m.resolver.Definitions())
}

// Import creates or updates each definition, parents first. A failing
// definition is reported in its result and never aborts the batch.
func (m *Manager) Import(ctx context.Context, defs []*role.Definition, opts ImportOptions) ([]ImportResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil, errs.ErrNotStarted
	}

	results := make([]ImportResult, 0, len(defs))
	for _, d := range orderParentsFirst(defs) {
		res := ImportResult{Name: d.Name}

		var (
			out     *role.Definition
			err     error
			created bool
		)
		switch {
		case !m.resolver.Exists(d.Name):
			out, err = m.create(ctx, d.Name, d.InheritsFrom, CreateOptions{
				Permissions:       permission.Strings(d.Permissions),
				DeniedPermissions: permission.Strings(d.DeniedPermissions),
				Description:       d.Description,
				Metadata:          d.Metadata,
			})
			created = true
			res.Status = ImportCreated
		case role.IsBase(d.Name):
			err = fmt.Errorf("import role %q: %w", d.Name, errs.ErrBaseRoleImmutable)
		case !opts.Overwrite:
			res.Status = ImportSkipped
			results = append(results, res)
			continue
		default:
			inherits, desc := d.InheritsFrom, d.Description
			out, err = m.update(ctx, d.Name, UpdateOptions{
				InheritsFrom:      &inherits,
				Permissions:       permission.Strings(d.Permissions),
				DeniedPermissions: permission.Strings(d.DeniedPermissions),
				Description:       &desc,
				Metadata:          metadataOrEmpty(d.Metadata),
			})
			res.Status = ImportUpdated
		}

		if err != nil {
			res.Status, res.Err, res.Error = ImportError, err, err.Error()
		} else {
			m.notifyChange(ctx, out, created)
		}
		results = append(results, res)
	}
	return results, nil
}

// Failed returns the results whose status is ImportError.
func Failed(results []ImportResult) []ImportResult {
	var out []ImportResult
	for _, r := range results {
		if r.Status == ImportError {
			out = append(out, r)
		}
	}
	return out
}

// JoinErrors combines the errors of failed results, or returns nil.
func JoinErrors(results []ImportResult) error {
	var all []error
	for _, r := range Failed(results) {
		all = append(all, r.Err)
	}
	return errors.Join(all...)
}

func metadataOrEmpty(md map[string]any) map[string]any {
	if md == nil {
		return map[string]any{}
	}
	return md
}

// orderParentsFirst sorts defs so that each definition follows its parent
// when the parent is part of the same batch. Definitions caught in a cycle
// keep their relative order at the end, where registration rejects them.
func orderParentsFirst(defs []*role.Definition) []*role.Definition {
	pending := make(map[string]bool, len(defs))
	for _, d := range defs {
		pending[d.Name] = true
	}

	out := make([]*role.Definition, 0, len(defs))
	placed := make([]bool, len(defs))
	for progress := true; progress; {
		progress = false
		for i, d := range defs {
			if placed[i] || pending[d.InheritsFrom] && d.InheritsFrom != d.Name {
				continue
			}
			placed[i] = true
			pending[d.Name] = false
			out = append(out, d)
			progress = true
		}
	}
	for i, d := range defs {
		if !placed[i] {
			out = append(out, d)
		}
	}
	return out
}
