package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	pwerrors "github.com/pathwell/agentcore/pkg/shared/errors"
	pwhttp "github.com/pathwell/agentcore/pkg/shared/http"
)

// EngineClient is a client for C3's own HTTP surface (POST
// /v1/evaluate, POST /v2/evaluate), as opposed to OPAAdapter which
// talks directly to the underlying decision point. The gateway uses
// this so policy evaluation stays a network hop to C3 rather than a
// direct dependency on whatever C3 happens to delegate to.
type EngineClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewEngineClient builds a client pointed at the policy engine service
// (e.g. http://policy-engine:3002).
func NewEngineClient(baseURL string) *EngineClient {
	return &EngineClient{
		baseURL: baseURL,
		client:  pwhttp.NewClient(pwhttp.PolicyClientConfig()),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "policy-engine-client",
			MaxRequests: 1,
			Interval:    0,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

type engineDecisionResponse struct {
	Allowed             bool             `json:"allowed"`
	Reason              string           `json:"reason"`
	EvaluationTimeMs    int64            `json:"evaluation_time_ms"`
	TrustEvaluation     *TrustEvaluation `json:"trust_evaluation,omitempty"`
	TenantPolicyApplied *string          `json:"tenant_policy_applied,omitempty"`
	Warnings            []Warning        `json:"warnings,omitempty"`
}

func (r engineDecisionResponse) toDecision() Decision {
	return Decision{
		Allowed:             r.Allowed,
		Reason:              r.Reason,
		EvaluationTimeMs:    r.EvaluationTimeMs,
		TrustEvaluation:     r.TrustEvaluation,
		TenantPolicyApplied: r.TenantPolicyApplied,
		Warnings:            r.Warnings,
	}
}

// EvaluateV1 calls the engine's POST /v1/evaluate.
func (c *EngineClient) EvaluateV1(ctx context.Context, req V1Request) (Decision, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Decision{}, pwerrors.FailedTo("marshal v1 evaluate request", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, "/v1/evaluate", body)
	})
	if err != nil {
		return Decision{}, pwerrors.FailedTo("call policy engine v1 evaluate", err)
	}

	resp := result.(httpResult)
	if resp.status < 200 || resp.status >= 300 {
		return Decision{}, pwerrors.FailedTo("call policy engine v1 evaluate", fmtStatusErr(resp.status))
	}

	var out engineDecisionResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return Decision{}, pwerrors.FailedTo("decode v1 evaluate response", err)
	}
	return out.toDecision(), nil
}

// evaluateV2Request mirrors policyengine's v2EvaluateRequest wire shape.
type evaluateV2Request struct {
	V2Request
	TrustScore *float64 `json:"trust_score,omitempty"`
}

// EvaluateV2 calls the engine's POST /v2/evaluate.
func (c *EngineClient) EvaluateV2(ctx context.Context, req V2Request, trustScore *float64) (Decision, error) {
	body, err := json.Marshal(evaluateV2Request{V2Request: req, TrustScore: trustScore})
	if err != nil {
		return Decision{}, pwerrors.FailedTo("marshal v2 evaluate request", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, "/v2/evaluate", body)
	})
	if err != nil {
		return Decision{}, pwerrors.FailedTo("call policy engine v2 evaluate", err)
	}

	resp := result.(httpResult)
	if resp.status < 200 || resp.status >= 300 {
		return Decision{}, pwerrors.FailedTo("call policy engine v2 evaluate", fmtStatusErr(resp.status))
	}

	var out engineDecisionResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return Decision{}, pwerrors.FailedTo("decode v2 evaluate response", err)
	}
	return out.toDecision(), nil
}

func (c *EngineClient) post(ctx context.Context, path string, body []byte) (httpResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return httpResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return httpResult{}, err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return httpResult{}, err
	}
	return httpResult{status: resp.StatusCode, body: buf.Bytes()}, nil
}

type statusErr int

func (s statusErr) Error() string {
	return "policy engine responded with a non-2xx status"
}

func fmtStatusErr(status int) error {
	return statusErr(status)
}
