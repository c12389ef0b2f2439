package policyengine_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pathwell/agentcore/pkg/policy"
	"github.com/pathwell/agentcore/pkg/policyengine"
)

func TestPolicyEngine(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Policy Engine Handlers Suite")
}

type fakeEngine struct {
	v1 policy.Decision
	v2 policy.Decision
	v2TrustScoreSeen *float64
	err error
}

func (f *fakeEngine) EvaluateV1(_ context.Context, _ policy.V1Request) (policy.Decision, error) {
	if f.err != nil {
		return policy.Decision{}, f.err
	}
	return f.v1, nil
}

func (f *fakeEngine) EvaluateV2(_ context.Context, _ policy.V2Request, trustScore *float64) (policy.Decision, error) {
	if f.err != nil {
		return policy.Decision{}, f.err
	}
	f.v2TrustScoreSeen = trustScore
	return f.v2, nil
}

var _ = Describe("Policy engine HTTP handlers", func() {
	var (
		engine *fakeEngine
		srv    *httptest.Server
	)

	BeforeEach(func() {
		engine = &fakeEngine{}
		h := policyengine.NewHandlers(engine, zap.NewNop())
		reg := prometheus.NewRegistry()
		router := policyengine.NewRouter(h, zap.NewNop(), reg)
		srv = httptest.NewServer(router)
	})

	AfterEach(func() {
		srv.Close()
	})

	postJSON := func(path string, payload interface{}) *http.Response {
		body, err := json.Marshal(payload)
		Expect(err).ToNot(HaveOccurred())
		resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(body))
		Expect(err).ToNot(HaveOccurred())
		return resp
	}

	Describe("POST /v1/evaluate", func() {
		It("returns the boolean decision", func() {
			engine.v1 = policy.Decision{Allowed: true, Reason: "Policy allows request", EvaluationTimeMs: 3}
			resp := postJSON("/v1/evaluate", policy.V1Request{
				Agent:   policy.AgentInfo{Valid: true, AgentID: "agent-1", DeveloperID: "dev-1"},
				Request: policy.RequestInfo{Method: "GET", Path: "/foo"},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var got map[string]interface{}
			Expect(json.NewDecoder(resp.Body).Decode(&got)).To(Succeed())
			Expect(got["allowed"]).To(BeTrue())
			Expect(got["reason"]).To(Equal("Policy allows request"))
		})

		It("returns policy_evaluation_error on an engine failure", func() {
			engine.err = context.DeadlineExceeded
			resp := postJSON("/v1/evaluate", policy.V1Request{})
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		})

		It("returns invalid_request on malformed JSON", func() {
			resp, err := http.Post(srv.URL+"/v1/evaluate", "application/json", bytes.NewReader([]byte("{")))
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /v2/evaluate", func() {
		It("forwards the request's trust score into the decision", func() {
			engine.v2 = policy.Decision{
				Allowed: false,
				Reason:  "Trust score below minimum threshold",
				TrustEvaluation: &policy.TrustEvaluation{Checked: true, TrustScore: 0.2, Threshold: 0.3, Passed: false, ActionTaken: "block"},
			}
			score := 0.2
			resp := postJSON("/v2/evaluate", map[string]interface{}{
				"agent": map[string]interface{}{
					"valid": true, "agent_id": "agent-x", "developer_id": "dev-x", "trust_score": score,
				},
				"request":     map[string]interface{}{"method": "GET", "path": "/foo"},
				"trust_score": score,
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(engine.v2TrustScoreSeen).ToNot(BeNil())
			Expect(*engine.v2TrustScoreSeen).To(Equal(score))

			var got map[string]interface{}
			Expect(json.NewDecoder(resp.Body).Decode(&got)).To(Succeed())
			Expect(got["allowed"]).To(BeFalse())
			Expect(got["reason"]).To(Equal("Trust score below minimum threshold"))
		})
	})

	Describe("GET /health", func() {
		It("returns 200", func() {
			resp, err := http.Get(srv.URL + "/health")
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})
