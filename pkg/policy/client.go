package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	pwerrors "github.com/pathwell/agentcore/pkg/shared/errors"
	pwhttp "github.com/pathwell/agentcore/pkg/shared/http"
)

// Engine is the interface the gateway depends on. OPAAdapter,
// RegoEvaluator and EngineClient implement it, and tests swap in a fake.
type Engine interface {
	EvaluateV1(ctx context.Context, req V1Request) (Decision, error)
	EvaluateV2(ctx context.Context, req V2Request, trustScore *float64) (Decision, error)
}

// OPAAdapter is a stateless HTTP adapter to an external OPA-shaped
// decision point, guarded by a circuit breaker so a wedged evaluator
// fails requests fast instead of piling up in-flight calls.
type OPAAdapter struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewOPAAdapter builds an adapter pointed at baseURL (e.g.
// http://opa:8181).
func NewOPAAdapter(baseURL string) *OPAAdapter {
	return &OPAAdapter{
		baseURL: baseURL,
		client:  pwhttp.NewClient(pwhttp.PolicyClientConfig()),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "policy-engine",
			MaxRequests: 1,
			Interval:    0,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// EvaluateV1 calls /v1/data/pathwell/authz/allow and returns the
// interpreted Decision. A non-2xx evaluator response is reported as a
// denial decision (not a Go error); a network error is an error, which
// the gateway must treat as fail-closed.
func (o *OPAAdapter) EvaluateV1(ctx context.Context, req V1Request) (Decision, error) {
	start := time.Now()

	body, err := json.Marshal(req)
	if err != nil {
		return Decision{}, pwerrors.FailedTo("marshal v1 policy request", err)
	}

	result, err := o.breaker.Execute(func() (interface{}, error) {
		return o.post(ctx, "/v1/data/pathwell/authz/allow", body)
	})
	if err != nil {
		return Decision{}, pwerrors.FailedTo("evaluate v1 policy", err)
	}

	resp := result.(httpResult)
	elapsed := time.Since(start)
	if resp.status < 200 || resp.status >= 300 {
		return DecisionFromV1Failure(resp.status1xxText(), elapsed), nil
	}

	var v1resp V1Response
	if err := json.Unmarshal(resp.body, &v1resp); err != nil {
		return Decision{}, pwerrors.FailedTo("decode v1 policy response", err)
	}
	return DecisionFromV1(v1resp, elapsed), nil
}

// EvaluateV2 calls /v1/data/pathwell/authz/v2 and returns the
// interpreted Decision, synthesizing the trust evaluation adjunct when
// trustScore is non-nil.
func (o *OPAAdapter) EvaluateV2(ctx context.Context, req V2Request, trustScore *float64) (Decision, error) {
	start := time.Now()

	body, err := json.Marshal(req)
	if err != nil {
		return Decision{}, pwerrors.FailedTo("marshal v2 policy request", err)
	}

	result, err := o.breaker.Execute(func() (interface{}, error) {
		return o.post(ctx, "/v1/data/pathwell/authz/v2", body)
	})
	if err != nil {
		return Decision{}, pwerrors.FailedTo("evaluate v2 policy", err)
	}

	resp := result.(httpResult)
	elapsed := time.Since(start)
	if resp.status < 200 || resp.status >= 300 {
		return DecisionFromV1Failure(resp.status1xxText(), elapsed), nil
	}

	var doc struct {
		Result V2Document `json:"result"`
	}
	if err := json.Unmarshal(resp.body, &doc); err != nil {
		return Decision{}, pwerrors.FailedTo("decode v2 policy response", err)
	}
	return DecisionFromV2(doc.Result, trustScore, elapsed), nil
}

type httpResult struct {
	status int
	body   []byte
}

func (r httpResult) status1xxText() string {
	return fmt.Sprintf("%d", r.status)
}

func (o *OPAAdapter) post(ctx context.Context, path string, body []byte) (httpResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return httpResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
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
