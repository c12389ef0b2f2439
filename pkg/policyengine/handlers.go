// Package policyengine exposes C3's own HTTP surface: the two evaluate
// contracts the gateway calls, backed by a policy.Engine that in turn
// talks to the external decision point. This package owns request
// decoding and response shaping; policy.Engine owns the OPA wire
// format.
package policyengine

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pathwell/agentcore/pkg/apierror"
	"github.com/pathwell/agentcore/pkg/policy"
)

// Handlers implements the policy engine's HTTP surface.
type Handlers struct {
	engine   policy.Engine
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandlers wires a Handlers against the engine that performs the
// actual evaluation.
func NewHandlers(engine policy.Engine, logger *zap.Logger) *Handlers {
	return &Handlers{engine: engine, validate: validator.New(), logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decisionResponse is the caller-facing shape of a Decision, matching
// §4.3's evaluate() return contract for both v1 and v2.
type decisionResponse struct {
	Allowed             bool                    `json:"allowed"`
	Reason              string                  `json:"reason"`
	EvaluationTimeMs    int64                   `json:"evaluation_time_ms"`
	TrustEvaluation     *policy.TrustEvaluation `json:"trust_evaluation,omitempty"`
	TenantPolicyApplied *string                 `json:"tenant_policy_applied,omitempty"`
	Warnings            []policy.Warning        `json:"warnings,omitempty"`
}

func fromDecision(d policy.Decision) decisionResponse {
	return decisionResponse{
		Allowed:             d.Allowed,
		Reason:              d.Reason,
		EvaluationTimeMs:    d.EvaluationTimeMs,
		TrustEvaluation:     d.TrustEvaluation,
		TenantPolicyApplied: d.TenantPolicyApplied,
		Warnings:            d.Warnings,
	}
}

// EvaluateV1 handles POST /v1/evaluate: the boolean allow/deny
// contract with no trust context.
func (h *Handlers) EvaluateV1(w http.ResponseWriter, r *http.Request) {
	var req policy.V1Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.WriteCode(w, apierror.InvalidRequest, "malformed request body")
		return
	}
	decision, err := h.engine.EvaluateV1(r.Context(), req)
	if err != nil {
		h.logger.Error("v1 policy evaluation failed", zap.Error(err))
		apierror.WriteCode(w, apierror.PolicyEvaluationError, "policy evaluation failed")
		return
	}
	writeJSON(w, http.StatusOK, fromDecision(decision))
}

// v2EvaluateRequest carries the trust score alongside the v2 envelope
// so the handler can pass it through to DecisionFromV2's synthesis
// without re-deriving it from the agent payload.
type v2EvaluateRequest struct {
	policy.V2Request
	TrustScore *float64 `json:"trust_score,omitempty"`
}

// EvaluateV2 handles POST /v2/evaluate: the document-returning
// contract that synthesizes a trust evaluation adjunct when the
// request carries a trust score.
func (h *Handlers) EvaluateV2(w http.ResponseWriter, r *http.Request) {
	var req v2EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.WriteCode(w, apierror.InvalidRequest, "malformed request body")
		return
	}
	trustScore := req.TrustScore
	if trustScore == nil {
		trustScore = req.Agent.TrustScore
	}
	decision, err := h.engine.EvaluateV2(r.Context(), req.V2Request, trustScore)
	if err != nil {
		h.logger.Error("v2 policy evaluation failed", zap.Error(err))
		apierror.WriteCode(w, apierror.PolicyEvaluationError, "policy evaluation failed")
		return
	}
	writeJSON(w, http.StatusOK, fromDecision(decision))
}
