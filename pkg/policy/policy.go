// Package policy implements the policy engine's decision contract: the
// request envelopes sent to the external decision point and the
// interpretation rules applied to its response. Transport lives in
// client.go; this file is the pure request/response shaping that both
// the HTTP adapter and any embedded evaluator share.
package policy

import "time"

// AgentInfo is the v1 identity projection packed under input.agent.
type AgentInfo struct {
	Valid        bool    `json:"valid"`
	Revoked      bool    `json:"revoked"`
	AgentID      string  `json:"agent_id"`
	DeveloperID  string  `json:"developer_id"`
	EnterpriseID *string `json:"enterprise_id"`
}

// RequestInfo is the request envelope packed under input.request.
type RequestInfo struct {
	Method   string            `json:"method"`
	Path     string            `json:"path"`
	Headers  map[string]string `json:"headers"`
	BodyHash *string           `json:"body_hash"`
}

// Warning is one entry in a v2 decision's warnings list.
type Warning struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// TrustEvaluation is the caller-facing trust adjunct synthesized from
// a v2 decision document when the input carried a trust score.
type TrustEvaluation struct {
	Checked      bool    `json:"checked"`
	TrustScore   float64 `json:"trust_score"`
	Threshold    float64 `json:"threshold"`
	Passed       bool    `json:"passed"`
	ActionTaken  string  `json:"action_taken"`
}

// Decision is the caller-facing result of an evaluate call, common to
// v1 and v2.
type Decision struct {
	Allowed            bool
	Reason             string
	EvaluationTimeMs   int64
	TrustEvaluation    *TrustEvaluation
	TenantPolicyApplied *string
	Warnings           []Warning
}

// V1Request packs an identity result and request envelope for the
// boolean /v1/data/pathwell/authz/allow contract.
type V1Request struct {
	Agent   AgentInfo   `json:"agent"`
	Request RequestInfo `json:"request"`
}

// V1Response is OPA's raw {result: bool} shape.
type V1Response struct {
	Result bool `json:"result"`
}

// DecisionFromV1 interprets a successful v1 evaluator response.
func DecisionFromV1(resp V1Response, elapsed time.Duration) Decision {
	reason := "Policy denies request"
	if resp.Result {
		reason = "Policy allows request"
	}
	return Decision{
		Allowed:          resp.Result,
		Reason:           reason,
		EvaluationTimeMs: elapsed.Milliseconds(),
	}
}

// DecisionFromV1Failure builds the denial decision used when the
// evaluator itself returns a non-2xx status.
func DecisionFromV1Failure(status string, elapsed time.Duration) Decision {
	return Decision{
		Allowed:          false,
		Reason:           "OPA evaluation failed: " + status,
		EvaluationTimeMs: elapsed.Milliseconds(),
	}
}

// AgentEnrichedInfo is the v2 identity projection, adding the trust
// and attribution context the v1 contract lacks.
type AgentEnrichedInfo struct {
	AgentInfo
	TrustScore          *float64 `json:"trust_score"`
	Attribution         *AttributionInfo `json:"attribution"`
	TenantHierarchyPath []string `json:"tenant_hierarchy_path"`
}

// AttributionInfo is the credential chain packed into a v2 request.
type AttributionInfo struct {
	AgentID      string  `json:"agent_id"`
	DeveloperID  string  `json:"developer_id"`
	EnterpriseID *string `json:"enterprise_id"`
}

// Context carries tenant governance into a v2 evaluation.
type Context struct {
	TenantGovernance map[string]interface{} `json:"tenant_governance,omitempty"`
}

// V2Request packs the enriched agent, request, and context for the
// document-returning /v1/data/pathwell/authz/v2 contract.
type V2Request struct {
	Agent   AgentEnrichedInfo `json:"agent"`
	Request RequestInfo       `json:"request"`
	Context Context           `json:"context"`
}

// V2Document is the decision document OPA returns for the v2 contract.
type V2Document struct {
	Allow               bool      `json:"allow"`
	TrustAction         string    `json:"trust_action,omitempty"`
	AppliedThreshold    *float64  `json:"applied_threshold,omitempty"`
	AppliedTenantPolicy *string   `json:"applied_tenant_policy,omitempty"`
	Warnings            []Warning `json:"warnings,omitempty"`
}

const defaultThreshold = 0.3

// DecisionFromV2 interprets a v2 decision document. trustScore is the
// score that was carried in the request (nil if none was), which
// gates whether a TrustEvaluation adjunct is synthesized at all.
func DecisionFromV2(doc V2Document, trustScore *float64, elapsed time.Duration) Decision {
	threshold := defaultThreshold
	if doc.AppliedThreshold != nil {
		threshold = *doc.AppliedThreshold
	}

	reason := "Policy denies request"
	switch {
	case doc.Allow:
		reason = "Policy allows request"
	case doc.TrustAction == "block":
		reason = "Trust score below minimum threshold"
	}

	d := Decision{
		Allowed:             doc.Allow,
		Reason:              reason,
		EvaluationTimeMs:    elapsed.Milliseconds(),
		TenantPolicyApplied: doc.AppliedTenantPolicy,
		Warnings:            doc.Warnings,
	}

	if trustScore != nil {
		d.TrustEvaluation = &TrustEvaluation{
			Checked:     true,
			TrustScore:  *trustScore,
			Threshold:   threshold,
			Passed:      *trustScore >= threshold,
			ActionTaken: doc.TrustAction,
		}
	}

	return d
}
