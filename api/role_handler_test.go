package api

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/customrole"
	"github.com/xraph/bastion/resolver"
)

func TestImportDefinitionsReportsInvalidEntries(t *testing.T) {
	reqs := []CreateRoleRequest{
		{Name: "reviewer", InheritsFrom: "viewer", Permissions: []string{"content:publish"}},
		{Name: "broken", InheritsFrom: "viewer", Permissions: []string{"root:everything"}},
		{Name: "no-media", InheritsFrom: "editor", DeniedPermissions: []string{"media:delete", "media:nuke"}},
		{Name: "publisher", InheritsFrom: "reviewer", Permissions: []string{"content:unpublish"}},
	}

	defs, rejected := importDefinitions(reqs)
	if len(defs) != 2 || defs[0].Name != "reviewer" || defs[1].Name != "publisher" {
		t.Fatalf("expected the two valid definitions, got %v", defs)
	}
	if len(rejected) != 2 {
		t.Fatalf("expected 2 rejected entries, got %d", len(rejected))
	}
	for _, r := range rejected {
		if r.Status != customrole.ImportError || r.Error == "" {
			t.Fatalf("rejected entry %q should carry an error status, got %+v", r.Name, r)
		}
		if !errors.Is(r.Err, bastion.ErrInvalidPermission) {
			t.Fatalf("rejected entry %q should wrap ErrInvalidPermission, got %v", r.Name, r.Err)
		}
	}

	m := customrole.New(resolver.New())
	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	results, err := m.Import(ctx, defs, customrole.ImportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Status != customrole.ImportCreated {
			t.Fatalf("valid entry %q should be created despite invalid siblings, got %+v", r.Name, r)
		}
	}
	if _, err := m.Get(ctx, "broken"); err == nil {
		t.Fatal("an entry with an invalid permission must not be created")
	}
}
