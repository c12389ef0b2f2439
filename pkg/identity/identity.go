// Package identity holds the core identity model shared by the
// registry's HTTP layer and storage layer: enterprises, developers,
// agents, and the attribution chain that links a request back to the
// human-owned credential behind it.
package identity

import (
	"encoding/json"
	"time"
)

// Enterprise is the top of the ownership chain: an organization that
// owns developers and, transitively, agents.
type Enterprise struct {
	ID           string
	EnterpriseID string
	Name         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Developer owns zero or more agents and optionally belongs to an
// enterprise.
type Developer struct {
	ID           string    `json:"id"`
	DeveloperID  string    `json:"developer_id"`
	EnterpriseID *string   `json:"enterprise_id,omitempty"`
	TenantID     *string   `json:"tenant_id,omitempty"`
	PublicKey    string    `json:"public_key"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Agent is a single non-human caller enrolled with the registry. It
// always has a developer; the enterprise link is optional and, when
// present, must agree with the developer's own enterprise.
type Agent struct {
	ID               string     `json:"id"`
	AgentID          string     `json:"agent_id"`
	DeveloperID      string     `json:"developer_id"`
	EnterpriseID     *string    `json:"enterprise_id,omitempty"`
	TenantID         *string    `json:"tenant_id,omitempty"`
	PublicKey        string     `json:"public_key"`
	CertificateChain string     `json:"certificate_chain"`
	CreatedAt        time.Time  `json:"created_at"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Revoked reports whether the agent has been revoked.
func (a Agent) Revoked() bool { return a.RevokedAt != nil }

// ValidationResult is the shape returned by agent validation: whether
// the agent is currently usable and, if not, why.
type ValidationResult struct {
	Valid        bool
	AgentID      string
	DeveloperID  string
	EnterpriseID *string
	Revoked      bool
}

// Validate turns an Agent into its ValidationResult. An agent is valid
// exactly when it has not been revoked; certificate expiry is checked
// separately by the CA.
func Validate(a Agent) ValidationResult {
	return ValidationResult{
		Valid:        !a.Revoked(),
		AgentID:      a.AgentID,
		DeveloperID:  a.DeveloperID,
		EnterpriseID: a.EnterpriseID,
		Revoked:      a.Revoked(),
	}
}

// EnterpriseMismatch reports whether a registration request's explicit
// enterprise ID conflicts with the developer's own enterprise. A nil
// developer enterprise never conflicts: the developer is unaffiliated
// and the request's enterprise is accepted as-is.
func EnterpriseMismatch(developerEnterpriseID *string, requestedEnterpriseID *string) bool {
	if requestedEnterpriseID == nil || developerEnterpriseID == nil {
		return false
	}
	return *developerEnterpriseID != *requestedEnterpriseID
}

// AttributionSource identifies which credential layer produced an
// attribution record.
type AttributionSource string

const (
	AttributionAgent     AttributionSource = "agent"
	AttributionDeveloper AttributionSource = "developer"
	AttributionEnterprise AttributionSource = "enterprise"
)

// Attribution links a single gateway request to the full chain of
// responsibility behind it: the agent that made the call, the
// developer that owns the agent, the enterprise (if any) that owns the
// developer, and the revenue/licensing/provenance metadata that chain
// carries downstream of the agent (e.g. to a marketplace or billing
// system consuming the agent's output).
type Attribution struct {
	AgentID      string
	DeveloperID  string
	EnterpriseID *string
	Source       AttributionSource

	// ConsumerChain is the ordered list of downstream consumers (other
	// agents, services, or end users) this request's output is known to
	// flow through, root-first.
	ConsumerChain []string
	// RevenueToken identifies the monetization grant, if any, under
	// which this call was attributed.
	RevenueToken *string
	// RoyaltyDistributionMap is the opaque split configuration (payee ->
	// share) recorded at attribution time.
	RoyaltyDistributionMap json.RawMessage
	// LicensingTerms names the license governing reuse of the agent's
	// output for this call.
	LicensingTerms *string
	// AttributionProtocolURI points at the machine-readable attribution
	// scheme this record conforms to.
	AttributionProtocolURI *string
	// VersionLineage is the agent/model version chain that produced this
	// call's output, oldest first.
	VersionLineage []string
	// AuditVisibilityScope names who may see this attribution record in
	// the audit UI (e.g. "enterprise", "developer", "public").
	AuditVisibilityScope *string
}

// NewAttribution builds the attribution chain for an agent, always
// sourced from the agent's own credential since the gateway only ever
// authenticates agents directly. The monetization and lineage fields
// are left unset; callers that have that context populate it onto the
// returned value.
func NewAttribution(a Agent) Attribution {
	return Attribution{
		AgentID:      a.AgentID,
		DeveloperID:  a.DeveloperID,
		EnterpriseID: a.EnterpriseID,
		Source:       AttributionAgent,
	}
}
