package role

import (
	"testing"

	"github.com/xraph/bastion/permission"
)

func TestBasePermissions(t *testing.T) {
	editor, ok := BasePermissions("editor")
	if !ok {
		t.Fatal("editor should be a base role")
	}
	if len(editor) != 11 {
		t.Fatalf("expected 11 editor permissions, got %d", len(editor))
	}
	if editor.Contains(permission.UserRead) {
		t.Fatal("editor must not hold user:read")
	}

	admin, _ := BasePermissions("admin")
	if !admin.Contains(permission.Wildcard) || len(admin) != 1 {
		t.Fatalf("admin should hold exactly the wildcard, got %v", admin.Slice())
	}

	if _, ok := BasePermissions("content-manager"); ok {
		t.Fatal("custom names are not base roles")
	}
}

func TestBasePermissionsReturnsCopy(t *testing.T) {
	viewer, _ := BasePermissions("viewer")
	viewer.Add(permission.ContentDelete)

	again, _ := BasePermissions("viewer")
	if again.Contains(permission.ContentDelete) {
		t.Fatal("mutating a returned set leaked into the static table")
	}
}

func TestValidName(t *testing.T) {
	for _, name := range []string{"content-manager", "ops_team", "a"} {
		if !ValidName(name) {
			t.Fatalf("%q should be valid", name)
		}
	}
	for _, name := range []string{"", "-lead", "Upper", "has space"} {
		if ValidName(name) {
			t.Fatalf("%q should be invalid", name)
		}
	}
}

func TestDefinitionClone(t *testing.T) {
	d := &Definition{
		Name:        "reviewer",
		Permissions: []permission.Permission{permission.UserRead},
		Metadata:    map[string]any{"team": "docs"},
	}
	c := d.Clone()
	c.Permissions[0] = permission.UserDelete
	c.Metadata["team"] = "ops"

	if d.Permissions[0] != permission.UserRead || d.Metadata["team"] != "docs" {
		t.Fatal("clone shares state with the original")
	}
}
