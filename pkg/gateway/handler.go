package gateway

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pathwell/agentcore/pkg/policy"
	"github.com/pathwell/agentcore/pkg/receipt"
)

// Handler is the proxy gateway's fallback route: every inbound request
// other than /health runs the full identity -> policy -> forward ->
// receipt pipeline.
type Handler struct {
	identity IdentityClient
	policy   policy.Engine
	receipts ReceiptClient
	upstream *url.URL
	client   *http.Client
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewHandler wires a Handler against its dependencies. upstreamTimeout
// bounds the forwarded request; zero selects a 30s default.
func NewHandler(identity IdentityClient, engine policy.Engine, receipts ReceiptClient, upstreamBaseURL string, upstreamTimeout time.Duration, logger *zap.Logger) (*Handler, error) {
	u, err := url.Parse(upstreamBaseURL)
	if err != nil {
		return nil, err
	}
	if upstreamTimeout <= 0 {
		upstreamTimeout = 30 * time.Second
	}
	return &Handler{
		identity: identity,
		policy:   engine,
		receipts: receipts,
		upstream: u,
		client:   &http.Client{Timeout: upstreamTimeout},
		logger:   logger,
		tracer:   otel.Tracer("pathwell/gateway"),
	}, nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	Status  int    `json:"status"`
	TraceID string `json:"trace_id"`
}

func writeError(w http.ResponseWriter, traceID string, status int, code, reason, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderTraceID, traceID)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: code, Reason: reason, Message: message, Status: status, TraceID: traceID})
}

// ServeHTTP implements the §4.5 algorithm: extract identity, extract or
// mint trace context, hash the body, validate identity, evaluate
// policy, forward on success, relay the response, and emit a
// fire-and-forget receipt for every outcome from the identity check
// on. A request rejected earlier (missing agent header, unreadable
// body) gets a 400 and no receipt.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	agentID := r.Header.Get(HeaderAgentID)
	if agentID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "", "missing "+HeaderAgentID+" header")
		return
	}

	traceID := r.Header.Get(HeaderTraceID)
	if traceID == "" || uuid.Validate(traceID) != nil {
		traceID = uuid.NewString()
	}
	var correlationID *string
	if v := r.Header.Get(HeaderCorrelationID); v != "" {
		correlationID = &v
	}
	spanID := uuid.NewString()

	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, traceID, http.StatusBadRequest, "invalid_request", "", "failed to read request body")
		return
	}
	sum := sha256.Sum256(bodyBytes)
	bodyHash := hex.EncodeToString(sum[:])

	headers := forwardableHeaders(r.Header)
	reqInfo := receipt.RequestInfo{Method: r.Method, Path: r.URL.Path, Headers: headers, BodyHash: &bodyHash}

	ctx, rootSpan := h.tracer.Start(r.Context(), "gateway.request")
	defer rootSpan.End()

	identCtx, identSpan := h.tracer.Start(ctx, "gateway.identity_check")
	identityResult, identErr := h.identity.ValidateAgent(identCtx, agentID)
	identSpan.End()
	if identErr != nil {
		h.emitReceipt(ctx, traceID, correlationID, spanID, agentID, "", reqInfo,
			receipt.PolicyResult{Allowed: false}, receipt.IdentityResult{Valid: false},
			map[string]interface{}{"error_reason": "identity_error", "status_code": http.StatusForbidden})
		writeError(w, traceID, http.StatusForbidden, "request_denied", "", identErr.Error())
		return
	}
	if !identityResult.Valid || identityResult.Revoked {
		h.emitReceipt(ctx, traceID, correlationID, spanID, agentID, identityResult.DeveloperID, reqInfo,
			receipt.PolicyResult{Allowed: false},
			receipt.IdentityResult{Valid: false, DeveloperID: identityResult.DeveloperID, EnterpriseID: identityResult.EnterpriseID},
			map[string]interface{}{"error_reason": "identity_invalid", "status_code": http.StatusForbidden})
		writeError(w, traceID, http.StatusForbidden, "request_denied", "Agent identity invalid or revoked", "")
		return
	}

	idResultRecord := receipt.IdentityResult{Valid: true, DeveloperID: identityResult.DeveloperID, EnterpriseID: identityResult.EnterpriseID}

	trustScore, trustErr := h.identity.GetTrustScore(ctx, agentID)
	if trustErr != nil {
		h.logger.Warn("trust score lookup failed, evaluating without trust context", zap.String("agent_id", agentID), zap.Error(trustErr))
		trustScore = nil
	}

	policyCtx, policySpan := h.tracer.Start(ctx, "gateway.policy_check")
	decision, decErr := h.evaluatePolicy(policyCtx, identityResult, reqInfo, trustScore)
	policySpan.End()
	if decErr != nil {
		h.emitReceipt(ctx, traceID, correlationID, spanID, agentID, identityResult.DeveloperID, reqInfo,
			receipt.PolicyResult{Allowed: false}, idResultRecord,
			map[string]interface{}{"error_reason": "policy_error", "status_code": http.StatusInternalServerError})
		writeError(w, traceID, http.StatusInternalServerError, "policy_evaluation_error", "", decErr.Error())
		return
	}
	policyRecord := policyResultToReceipt(decision)
	if !decision.Allowed {
		h.emitReceipt(ctx, traceID, correlationID, spanID, agentID, identityResult.DeveloperID, reqInfo,
			policyRecord, idResultRecord,
			map[string]interface{}{"error_reason": "request_denied", "status_code": http.StatusForbidden})
		writeError(w, traceID, http.StatusForbidden, "request_denied", decision.Reason, "")
		return
	}

	if !forwardableMethods[r.Method] {
		h.emitReceipt(ctx, traceID, correlationID, spanID, agentID, identityResult.DeveloperID, reqInfo,
			policyRecord, idResultRecord,
			map[string]interface{}{"error_reason": "method_not_allowed", "status_code": http.StatusMethodNotAllowed})
		writeError(w, traceID, http.StatusMethodNotAllowed, "method_not_allowed", "", "method not forwarded")
		return
	}

	fwdCtx, fwdSpan := h.tracer.Start(ctx, "gateway.upstream_forward")
	status, respHeaders, respBody, fwdErr := h.forward(fwdCtx, r, bodyBytes, traceID, correlationID)
	fwdSpan.End()
	if fwdErr != nil {
		h.emitReceipt(ctx, traceID, correlationID, spanID, agentID, identityResult.DeveloperID, reqInfo,
			policyRecord, idResultRecord,
			map[string]interface{}{"error_reason": "bad_gateway", "status_code": http.StatusBadGateway})
		writeError(w, traceID, http.StatusBadGateway, "bad_gateway", "", fwdErr.Error())
		return
	}

	for k, vs := range respHeaders {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set(HeaderTraceID, traceID)
	w.WriteHeader(status)
	_, _ = w.Write(respBody)

	h.emitReceipt(ctx, traceID, correlationID, spanID, agentID, identityResult.DeveloperID, reqInfo, policyRecord, idResultRecord, nil)
}

func (h *Handler) evaluatePolicy(ctx context.Context, identity IdentityResult, reqInfo receipt.RequestInfo, trustScore *float64) (policy.Decision, error) {
	policyReqInfo := policy.RequestInfo{Method: reqInfo.Method, Path: reqInfo.Path, Headers: reqInfo.Headers, BodyHash: reqInfo.BodyHash}

	if trustScore == nil {
		return h.policy.EvaluateV1(ctx, policy.V1Request{
			Agent: policy.AgentInfo{
				Valid: identity.Valid, Revoked: identity.Revoked, AgentID: identity.AgentID,
				DeveloperID: identity.DeveloperID, EnterpriseID: identity.EnterpriseID,
			},
			Request: policyReqInfo,
		})
	}

	return h.policy.EvaluateV2(ctx, policy.V2Request{
		Agent: policy.AgentEnrichedInfo{
			AgentInfo: policy.AgentInfo{
				Valid: identity.Valid, Revoked: identity.Revoked, AgentID: identity.AgentID,
				DeveloperID: identity.DeveloperID, EnterpriseID: identity.EnterpriseID,
			},
			TrustScore: trustScore,
			Attribution: &policy.AttributionInfo{
				AgentID: identity.AgentID, DeveloperID: identity.DeveloperID, EnterpriseID: identity.EnterpriseID,
			},
			TenantHierarchyPath: identity.TenantHierarchyPath,
		},
		Request: policyReqInfo,
		Context: policy.Context{
			TenantGovernance: identity.TenantGovernance,
		},
	}, trustScore)
}

func policyResultToReceipt(d policy.Decision) receipt.PolicyResult {
	reason := d.Reason
	pr := receipt.PolicyResult{
		Allowed:          d.Allowed,
		EvaluationTimeMs: d.EvaluationTimeMs,
		Reason:           &reason,
	}
	if d.TrustEvaluation != nil {
		scoreStr := decimalString(d.TrustEvaluation.TrustScore)
		warnings := make([]string, 0, len(d.Warnings))
		for _, w := range d.Warnings {
			warnings = append(warnings, w.Code)
		}
		pr.TrustEvaluation = &receipt.TrustEvaluation{
			Passed:   d.TrustEvaluation.Passed,
			Score:    &scoreStr,
			Warnings: warnings,
		}
	}
	return pr
}

func decimalString(f float64) string {
	return strings.TrimRight(strings.TrimRight(jsonNumber(f), "0"), ".")
}

func jsonNumber(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

func (h *Handler) forward(ctx context.Context, original *http.Request, body []byte, traceID string, correlationID *string) (int, http.Header, []byte, error) {
	target := *h.upstream
	target.Path = original.URL.Path
	target.RawQuery = original.URL.RawQuery

	req, err := http.NewRequestWithContext(ctx, original.Method, target.String(), bytes.NewReader(body))
	if err != nil {
		return 0, nil, nil, err
	}
	for k, vs := range original.Header {
		lower := strings.ToLower(k)
		if lower == "host" || lower == "content-length" || strings.HasPrefix(lower, AgentHeaderPrefix) {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set(HeaderTraceID, traceID)
	if correlationID != nil {
		req.Header.Set(HeaderCorrelationID, *correlationID)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.StatusCode, resp.Header, respBody, nil
}

func forwardableHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) == 0 {
			continue
		}
		lower := strings.ToLower(k)
		if lower == "host" || lower == "content-length" {
			continue
		}
		out[lower] = vs[0]
	}
	return out
}

func (h *Handler) emitReceipt(ctx context.Context, traceID string, correlationID *string, spanID, agentID, developerID string, reqInfo receipt.RequestInfo, policyResult receipt.PolicyResult, identityResult receipt.IdentityResult, metadata map[string]interface{}) {
	var metaJSON json.RawMessage
	if metadata != nil {
		if b, err := json.Marshal(metadata); err == nil {
			metaJSON = b
		}
	}
	h.receipts.WriteReceipt(ctx, receiptWriteInput{
		TraceID:        traceID,
		CorrelationID:  correlationID,
		SpanID:         spanID,
		AgentID:        agentID,
		DeveloperID:    developerID,
		EventType:      receipt.EventGatewayRequest,
		EventSource:    receipt.DefaultEventSource("proxy-gateway"),
		Request:        reqInfo,
		PolicyResult:   policyResult,
		IdentityResult: identityResult,
		Metadata:       metaJSON,
	})
}
