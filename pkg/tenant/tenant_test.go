package tenant

import (
	"reflect"
	"testing"
)

func TestParseType(t *testing.T) {
	cases := map[string]Type{
		"Platform": TypePlatform,
		"PARENT":   TypeParent,
		"child":    TypeChild,
		"instance": TypeInstance,
		"bogus":    TypeChild,
	}
	for in, want := range cases {
		if got := ParseType(in); got != want {
			t.Errorf("ParseType(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDeriveRoot(t *testing.T) {
	d := DeriveRoot("root-1")
	if d.HierarchyDepth != 0 {
		t.Errorf("HierarchyDepth = %d, want 0", d.HierarchyDepth)
	}
	if d.RootExternalID != "root-1" {
		t.Errorf("RootExternalID = %q, want root-1", d.RootExternalID)
	}
	if !reflect.DeepEqual(d.HierarchyPath, []string{"root-1"}) {
		t.Errorf("HierarchyPath = %v, want [root-1]", d.HierarchyPath)
	}
}

func TestDeriveChild(t *testing.T) {
	root := DeriveRoot("root-1")
	child := DeriveChild("child-1", root)
	if child.HierarchyDepth != 1 {
		t.Errorf("HierarchyDepth = %d, want 1", child.HierarchyDepth)
	}
	if child.RootExternalID != "root-1" {
		t.Errorf("RootExternalID = %q, want root-1", child.RootExternalID)
	}
	if !reflect.DeepEqual(child.HierarchyPath, []string{"root-1", "child-1"}) {
		t.Errorf("HierarchyPath = %v, want [root-1 child-1]", child.HierarchyPath)
	}

	grandchild := DeriveChild("grandchild-1", child)
	if grandchild.HierarchyDepth != 2 {
		t.Errorf("HierarchyDepth = %d, want 2", grandchild.HierarchyDepth)
	}
	if !reflect.DeepEqual(grandchild.HierarchyPath, []string{"root-1", "child-1", "grandchild-1"}) {
		t.Errorf("HierarchyPath = %v, want three-element path", grandchild.HierarchyPath)
	}
}

func TestDeriveChildDoesNotMutateParentPath(t *testing.T) {
	root := DeriveRoot("root-1")
	_ = DeriveChild("child-1", root)
	if !reflect.DeepEqual(root.HierarchyPath, []string{"root-1"}) {
		t.Errorf("parent path mutated: %v", root.HierarchyPath)
	}
}

func TestDefaultGovernance(t *testing.T) {
	if string(DefaultGovernance(true)) != `{"policy_scope":"root"}` {
		t.Errorf("root governance = %s", DefaultGovernance(true))
	}
	if string(DefaultGovernance(false)) != `{"policy_scope":"inherit"}` {
		t.Errorf("non-root governance = %s", DefaultGovernance(false))
	}
}

func TestAncestors(t *testing.T) {
	if got := Ancestors([]string{"root-1"}); got != nil {
		t.Errorf("single-element path should have no ancestors, got %v", got)
	}
	got := Ancestors([]string{"root-1", "child-1", "grandchild-1"})
	want := []string{"root-1", "child-1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Ancestors() = %v, want %v", got, want)
	}
}

func TestRelationshipValidate(t *testing.T) {
	r := Relationship{Source: "a", Target: "a", Type: RelationOwns}
	if err := r.Validate(); err == nil {
		t.Fatal("expected self-loop to be rejected")
	}

	r.Target = "b"
	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected error for distinct source/target: %v", err)
	}
}
