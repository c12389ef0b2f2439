package identity

import (
	"testing"
	"time"
)

func TestAgentRevoked(t *testing.T) {
	a := Agent{AgentID: "a1"}
	if a.Revoked() {
		t.Fatal("fresh agent should not be revoked")
	}
	now := time.Now()
	a.RevokedAt = &now
	if !a.Revoked() {
		t.Fatal("agent with RevokedAt set should be revoked")
	}
}

func TestValidate(t *testing.T) {
	a := Agent{AgentID: "a1", DeveloperID: "d1"}
	result := Validate(a)
	if !result.Valid || result.Revoked {
		t.Fatalf("expected valid, unrevoked result, got %+v", result)
	}

	now := time.Now()
	a.RevokedAt = &now
	result = Validate(a)
	if result.Valid || !result.Revoked {
		t.Fatalf("expected invalid, revoked result, got %+v", result)
	}
}

func TestEnterpriseMismatch(t *testing.T) {
	e1 := "ent-1"
	e2 := "ent-2"

	if EnterpriseMismatch(nil, &e1) {
		t.Error("nil developer enterprise should never mismatch")
	}
	if EnterpriseMismatch(&e1, nil) {
		t.Error("nil requested enterprise should never mismatch")
	}
	if EnterpriseMismatch(&e1, &e1) {
		t.Error("matching enterprise IDs should not mismatch")
	}
	if !EnterpriseMismatch(&e1, &e2) {
		t.Error("differing enterprise IDs should mismatch")
	}
}

func TestNewAttribution(t *testing.T) {
	ent := "ent-1"
	a := Agent{AgentID: "a1", DeveloperID: "d1", EnterpriseID: &ent}
	attr := NewAttribution(a)
	if attr.Source != AttributionAgent {
		t.Errorf("Source = %v, want agent", attr.Source)
	}
	if attr.AgentID != "a1" || attr.DeveloperID != "d1" || attr.EnterpriseID == nil || *attr.EnterpriseID != "ent-1" {
		t.Errorf("unexpected attribution: %+v", attr)
	}
}
