// Package registry implements the identity registry: the HTTP service
// that owns enterprises, developers, agents, tenants, and trust
// scores. It is the only component that talks to the certificate
// authority, and the only source of truth for agent revocation.
package registry

import (
	"encoding/json"
	"time"

	"github.com/pathwell/agentcore/pkg/tenant"
	"github.com/pathwell/agentcore/pkg/trust"
)

// RegisterDeveloperInput is the write-path request for a new developer.
type RegisterDeveloperInput struct {
	DeveloperID  string  `json:"developer_id" validate:"required"`
	EnterpriseID *string `json:"enterprise_id"`
	TenantID     *string `json:"tenant_id"`
	PublicKey    string  `json:"public_key" validate:"required"`
}

// RegisterAgentInput is the write-path request for a new agent.
type RegisterAgentInput struct {
	AgentID      string  `json:"agent_id" validate:"required"`
	DeveloperID  string  `json:"developer_id" validate:"required"`
	EnterpriseID *string `json:"enterprise_id"`
	TenantID     *string `json:"tenant_id"`
	PublicKey    string  `json:"public_key" validate:"required"`
}

// TenantRecord is the full persisted tenant row.
type TenantRecord struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"tenant_id"`
	TenantType       tenant.Type     `json:"tenant_type"`
	DisplayName      *string         `json:"display_name,omitempty"`
	ParentTenantID   *string         `json:"parent_tenant_id,omitempty"`
	RootTenantID     *string         `json:"root_tenant_id,omitempty"`
	HierarchyDepth   int             `json:"hierarchy_depth"`
	HierarchyPath    []string        `json:"hierarchy_path"`
	GovernanceConfig json.RawMessage `json:"governance_config,omitempty"`
	VisibilityConfig json.RawMessage `json:"visibility_config,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DeactivatedAt    *time.Time      `json:"deactivated_at,omitempty"`
}

// TenantSummary is the abbreviated projection used in hierarchy
// listings.
type TenantSummary struct {
	ID             string      `json:"id"`
	TenantID       string      `json:"tenant_id"`
	TenantType     tenant.Type `json:"tenant_type"`
	DisplayName    *string     `json:"display_name,omitempty"`
	HierarchyDepth int         `json:"hierarchy_depth"`
}

// CreateTenantInput is the write-path request for a new tenant.
type CreateTenantInput struct {
	TenantID         string          `json:"tenant_id" validate:"required"`
	TenantType       *string         `json:"tenant_type"`
	DisplayName      *string         `json:"display_name"`
	ParentTenantID   *string         `json:"parent_tenant_id"`
	GovernanceConfig json.RawMessage `json:"governance_config"`
	VisibilityConfig json.RawMessage `json:"visibility_config"`
	Metadata         json.RawMessage `json:"metadata"`
}

// TenantPatch is the COALESCE-style partial update for an existing
// tenant; nil fields are left untouched.
type TenantPatch struct {
	DisplayName      *string
	GovernanceConfig json.RawMessage
	VisibilityConfig json.RawMessage
	Metadata         json.RawMessage
}

// CreateTrustScoreInput is the write-path request for a new trust
// score row.
type CreateTrustScoreInput struct {
	Behavior         *float64                `json:"behavior"`
	Validation       *float64                `json:"validation"`
	Provenance       *float64                `json:"provenance"`
	Alignment        *float64                `json:"alignment"`
	Reputation       *float64                `json:"reputation"`
	MinimumThreshold *float64                `json:"minimum_threshold"`
	ThresholdAction  *trust.ThresholdAction  `json:"threshold_action"`
}

// UpdateTrustDimensionInput is the write-path request for a trust
// dimension adjustment.
type UpdateTrustDimensionInput struct {
	Dimension string  `json:"dimension" validate:"required"`
	Delta     float64 `json:"delta"`
	Reason    *string `json:"reason"`
}

// TrustRiskEventStatus enumerates the lifecycle of a recorded risk
// event.
type TrustRiskEventStatus string

const (
	RiskEventOpen          TrustRiskEventStatus = "open"
	RiskEventInvestigating TrustRiskEventStatus = "investigating"
	RiskEventMitigated     TrustRiskEventStatus = "mitigated"
	RiskEventResolved      TrustRiskEventStatus = "resolved"
	RiskEventAccepted      TrustRiskEventStatus = "accepted"
)

// TrustRiskEvent is a risk signal recorded alongside trust score
// changes, backed by the trust_risk_events table.
type TrustRiskEvent struct {
	ID         string               `json:"id"`
	EntityType string               `json:"entity_type"`
	EntityID   string               `json:"entity_id"`
	RiskType   string               `json:"risk_type"`
	Severity   string               `json:"severity"`
	Code       string               `json:"code"`
	Status     TrustRiskEventStatus `json:"status"`
	Detail     *string              `json:"detail,omitempty"`
	Evidence   json.RawMessage      `json:"evidence,omitempty"`
	Mitigation json.RawMessage      `json:"mitigation,omitempty"`
	RecordedAt time.Time            `json:"recorded_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// CreateTrustRiskEventInput is the write-path request to record a new
// risk event against an entity's trust score.
type CreateTrustRiskEventInput struct {
	RiskType string          `json:"risk_type" validate:"required"`
	Severity string          `json:"severity" validate:"required"`
	Code     string          `json:"code" validate:"required"`
	Detail   *string         `json:"detail"`
	Evidence json.RawMessage `json:"evidence"`
}

// TenantRelationshipInput is the write-path request to link two
// tenants.
type TenantRelationshipInput struct {
	SourceTenantID string                  `json:"source_tenant_id" validate:"required"`
	TargetTenantID string                  `json:"target_tenant_id" validate:"required"`
	Type           tenant.RelationshipType `json:"type" validate:"required"`
	Permissions    json.RawMessage         `json:"permissions"`
	Constraints    json.RawMessage         `json:"constraints"`
}

// TenantRelationshipRecord is the read projection of a persisted
// relationship between two tenants.
type TenantRelationshipRecord struct {
	ID             string                  `json:"id"`
	SourceTenantID string                  `json:"source_tenant_id"`
	TargetTenantID string                  `json:"target_tenant_id"`
	Type           tenant.RelationshipType `json:"type"`
	Permissions    json.RawMessage         `json:"permissions,omitempty"`
	Constraints    json.RawMessage         `json:"constraints,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
}

// TrustScoreHistoryEntry is one recorded change to an entity's trust
// score, backed by trust_score_history.
type TrustScoreHistoryEntry struct {
	ID                  string                `json:"id"`
	CompositeAtChange   string                `json:"composite_at_change"`
	DimensionsAtChange  trust.DimensionScores `json:"dimensions_at_change"`
	ChangeReason        *string               `json:"change_reason,omitempty"`
	RecordedAt          time.Time             `json:"recorded_at"`
}
