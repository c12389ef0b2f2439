// Package tenant implements the tenant hierarchy model: a rooted tree
// of tenants where depth, root, and path are derived from the parent
// link and recomputed on any parent change.
package tenant

import (
	"encoding/json"
	"errors"
)

var errSelfLoop = errors.New("tenant relationship cannot target itself")

// Type is one of the four tenant tiers.
type Type string

const (
	TypePlatform Type = "platform"
	TypeParent   Type = "parent"
	TypeChild    Type = "child"
	TypeInstance Type = "instance"
)

// ParseType maps a loosely-cased string to a Type, defaulting to child
// for anything unrecognized.
func ParseType(s string) Type {
	switch Type(lower(s)) {
	case TypePlatform:
		return TypePlatform
	case TypeParent:
		return TypeParent
	case TypeChild:
		return TypeChild
	case TypeInstance:
		return TypeInstance
	default:
		return TypeChild
	}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Derived holds the fields recomputed on any parent change: depth,
// root, and the root-to-self path of external IDs.
type Derived struct {
	HierarchyDepth int
	RootExternalID string
	HierarchyPath  []string
}

// DeriveRoot returns the Derived fields for a tenant with no parent: a
// root of depth 0 whose path is just itself.
func DeriveRoot(externalID string) Derived {
	return Derived{
		HierarchyDepth: 0,
		RootExternalID: externalID,
		HierarchyPath:  []string{externalID},
	}
}

// DeriveChild returns the Derived fields for a tenant whose parent has
// parentDerived, appending externalID to the parent's path.
func DeriveChild(externalID string, parentDerived Derived) Derived {
	path := make([]string, len(parentDerived.HierarchyPath)+1)
	copy(path, parentDerived.HierarchyPath)
	path[len(path)-1] = externalID
	return Derived{
		HierarchyDepth: parentDerived.HierarchyDepth + 1,
		RootExternalID: parentDerived.RootExternalID,
		HierarchyPath:  path,
	}
}

// DefaultGovernance returns the default governance_config document: a
// root tenant gets {"policy_scope":"root"}, a non-root tenant gets
// {"policy_scope":"inherit"}.
func DefaultGovernance(isRoot bool) json.RawMessage {
	if isRoot {
		return json.RawMessage(`{"policy_scope":"root"}`)
	}
	return json.RawMessage(`{"policy_scope":"inherit"}`)
}

// DefaultVisibility returns the default visibility_config document,
// the same regardless of root-ness.
func DefaultVisibility() json.RawMessage {
	return json.RawMessage(`{"cross_tenant_visibility":"none"}`)
}

// Ancestors extracts the ancestor external IDs from a hierarchy path,
// excluding the tenant itself (the last element).
func Ancestors(path []string) []string {
	if len(path) <= 1 {
		return nil
	}
	return append([]string(nil), path[:len(path)-1]...)
}

// RelationshipType enumerates the tenant relationship kinds.
type RelationshipType string

const (
	RelationOwns     RelationshipType = "owns"
	RelationGoverns  RelationshipType = "governs"
	RelationDelegates RelationshipType = "delegates"
	RelationObserves RelationshipType = "observes"
)

// Relationship is a directed edge between two tenants; self-loops are
// forbidden and only one active relationship of a given type may exist
// per (source, target) pair.
type Relationship struct {
	Source      string
	Target      string
	Type        RelationshipType
	Permissions json.RawMessage
	Constraints json.RawMessage
}

// Validate enforces the structural invariants that don't require a
// database round trip (no self-loops). Uniqueness of (source, target,
// type) is enforced at the storage layer.
func (r Relationship) Validate() error {
	if r.Source == r.Target {
		return errSelfLoop
	}
	return nil
}
