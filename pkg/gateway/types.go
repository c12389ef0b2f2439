// Package gateway implements the proxy gateway: the fail-closed
// interceptor that sits in front of every upstream call an agent makes,
// validating identity, evaluating policy, forwarding on success, and
// emitting a fire-and-forget audit receipt for every request that
// reaches the identity check, whatever its outcome.
package gateway

import "time"

// AgentHeaderPrefix is stripped from every header before the request is
// forwarded upstream.
const AgentHeaderPrefix = "x-pathwell-"

const (
	HeaderAgentID       = "x-pathwell-agent-id"
	HeaderSignature     = "x-pathwell-signature"
	HeaderTraceID       = "x-pathwell-trace-id"
	HeaderCorrelationID = "x-correlation-id"
)

// IdentityResult is the gateway's interpretation of C2's validate_agent
// response, enriched with the tenant context the v2 validate contract
// carries.
type IdentityResult struct {
	Valid               bool
	Revoked             bool
	AgentID             string
	DeveloperID         string
	EnterpriseID        *string
	TenantID            *string
	TenantHierarchyPath []string
	TenantGovernance    map[string]interface{}
}

// DenialReason enumerates the machine-readable reasons a request is
// denied before reaching the upstream.
type DenialReason string

const (
	ReasonMissingAgentID    DenialReason = "missing_agent_id"
	ReasonIdentityInvalid   DenialReason = "identity_invalid"
	ReasonIdentityError     DenialReason = "identity_error"
	ReasonPolicyDenied      DenialReason = "request_denied"
	ReasonPolicyError       DenialReason = "policy_error"
	ReasonMethodNotAllowed  DenialReason = "method_not_allowed"
)

var forwardableMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

// Config holds the gateway's runtime wiring.
type Config struct {
	UpstreamBaseURL string
	UpstreamTimeout time.Duration
}
