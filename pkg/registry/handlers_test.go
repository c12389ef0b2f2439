package registry_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pathwell/agentcore/pkg/ca"
	"github.com/pathwell/agentcore/pkg/identity"
	"github.com/pathwell/agentcore/pkg/registry"
	"github.com/pathwell/agentcore/pkg/trust"
)

func TestRegistry(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Identity Registry Handlers Suite")
}

// fakeStore is an in-memory registry.Store used only by these specs.
type fakeStore struct {
	developers map[string]identity.Developer
	agents     map[string]identity.Agent
	tenants    map[string]registry.TenantRecord
	scores     map[string]trust.Score
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		developers: map[string]identity.Developer{},
		agents:     map[string]identity.Agent{},
		tenants:    map[string]registry.TenantRecord{},
		scores:     map[string]trust.Score{},
	}
}

func (f *fakeStore) RegisterDeveloper(_ context.Context, in registry.RegisterDeveloperInput) (identity.Developer, error) {
	if _, exists := f.developers[in.DeveloperID]; exists {
		return identity.Developer{}, registry.ErrConflict
	}
	d := identity.Developer{ID: "row-" + in.DeveloperID, DeveloperID: in.DeveloperID, EnterpriseID: in.EnterpriseID, TenantID: in.TenantID, PublicKey: in.PublicKey}
	f.developers[in.DeveloperID] = d
	return d, nil
}

func (f *fakeStore) GetDeveloperByExternalID(_ context.Context, externalID string) (identity.Developer, error) {
	d, ok := f.developers[externalID]
	if !ok {
		return identity.Developer{}, registry.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) RegisterAgent(_ context.Context, in registry.RegisterAgentInput) (identity.Agent, error) {
	dev, ok := f.developers[in.DeveloperID]
	if !ok {
		return identity.Agent{}, registry.ErrNotFound
	}
	if identity.EnterpriseMismatch(dev.EnterpriseID, in.EnterpriseID) {
		return identity.Agent{}, registry.ErrMismatch
	}
	a := identity.Agent{ID: "row-" + in.AgentID, AgentID: in.AgentID, DeveloperID: in.DeveloperID, EnterpriseID: in.EnterpriseID, TenantID: in.TenantID, PublicKey: in.PublicKey, CertificateChain: "chain"}
	f.agents[in.AgentID] = a
	return a, nil
}

func (f *fakeStore) GetAgentByExternalID(_ context.Context, externalID string) (identity.Agent, error) {
	a, ok := f.agents[externalID]
	if !ok {
		return identity.Agent{}, registry.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) RevokeAgent(_ context.Context, externalID string) error {
	a, ok := f.agents[externalID]
	if !ok {
		return registry.ErrNotFound
	}
	now := time.Now()
	a.RevokedAt = &now
	f.agents[externalID] = a
	return nil
}

func (f *fakeStore) CreateTenant(_ context.Context, in registry.CreateTenantInput) (registry.TenantRecord, error) {
	if _, exists := f.tenants[in.TenantID]; exists {
		return registry.TenantRecord{}, registry.ErrConflict
	}
	rec := registry.TenantRecord{ID: "row-" + in.TenantID, TenantID: in.TenantID, HierarchyPath: []string{in.TenantID}}
	f.tenants[in.TenantID] = rec
	return rec, nil
}

func (f *fakeStore) GetTenant(_ context.Context, externalID string) (registry.TenantRecord, error) {
	t, ok := f.tenants[externalID]
	if !ok {
		return registry.TenantRecord{}, registry.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) GetTenantAncestors(_ context.Context, _ []string) ([]registry.TenantSummary, error) {
	return nil, nil
}

func (f *fakeStore) GetTenantChildren(_ context.Context, _ string) ([]registry.TenantSummary, error) {
	return nil, nil
}

func (f *fakeStore) UpdateTenant(_ context.Context, externalID string, patch registry.TenantPatch) (registry.TenantRecord, error) {
	t, ok := f.tenants[externalID]
	if !ok {
		return registry.TenantRecord{}, registry.ErrNotFound
	}
	if patch.DisplayName != nil {
		t.DisplayName = patch.DisplayName
	}
	f.tenants[externalID] = t
	return t, nil
}

func (f *fakeStore) DeactivateTenant(_ context.Context, externalID string) error {
	if _, ok := f.tenants[externalID]; !ok {
		return registry.ErrNotFound
	}
	delete(f.tenants, externalID)
	return nil
}

func (f *fakeStore) CreateTenantRelationship(_ context.Context, _ registry.TenantRelationshipInput) error {
	return nil
}

func (f *fakeStore) GetTenantRelationships(_ context.Context, _ string) ([]registry.TenantRelationshipRecord, error) {
	return nil, nil
}

func (f *fakeStore) CreateTrustScore(_ context.Context, entityType, entityID string, in registry.CreateTrustScoreInput) (trust.Score, error) {
	key := entityType + ":" + entityID
	if _, exists := f.scores[key]; exists {
		return trust.Score{}, registry.ErrConflict
	}
	dims := trust.NewDimensionScores(in.Behavior, in.Validation, in.Provenance, in.Alignment, in.Reputation)
	score := trust.Score{ID: "row-" + key, EntityType: entityType, EntityID: entityID, Dimensions: dims, Composite: dims.Composite()}
	f.scores[key] = score
	return score, nil
}

func (f *fakeStore) GetTrustScore(_ context.Context, entityType, entityID string) (trust.Score, error) {
	s, ok := f.scores[entityType+":"+entityID]
	if !ok {
		return trust.Score{}, registry.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) UpdateTrustDimension(_ context.Context, entityType, entityID string, in registry.UpdateTrustDimensionInput) (trust.Score, error) {
	key := entityType + ":" + entityID
	s, ok := f.scores[key]
	if !ok {
		return trust.Score{}, registry.ErrNotFound
	}
	updated, ok := s.Dimensions.WithDelta(in.Dimension, in.Delta)
	if !ok {
		return trust.Score{}, registry.ErrMismatch
	}
	s.Dimensions = updated
	s.Composite = updated.Composite()
	f.scores[key] = s
	return s, nil
}

func (f *fakeStore) GetTrustScoreHistory(_ context.Context, _, _ string, _ int) ([]registry.TrustScoreHistoryEntry, error) {
	return nil, nil
}

func (f *fakeStore) ListTrustRiskEvents(_ context.Context, _, _ string, _ int) ([]registry.TrustRiskEvent, error) {
	return nil, nil
}

func (f *fakeStore) CreateTrustRiskEvent(_ context.Context, entityType, entityID string, in registry.CreateTrustRiskEventInput) (registry.TrustRiskEvent, error) {
	return registry.TrustRiskEvent{
		ID: "row-risk", EntityType: entityType, EntityID: entityID,
		RiskType: in.RiskType, Severity: in.Severity, Code: in.Code, Status: registry.RiskEventOpen,
	}, nil
}

var _ = Describe("Identity Registry HTTP handlers", func() {
	var (
		store *fakeStore
		h     *registry.Handlers
		srv   *httptest.Server
	)

	BeforeEach(func() {
		store = newFakeStore()
		authority, err := ca.New()
		Expect(err).ToNot(HaveOccurred())
		h = registry.NewHandlers(store, authority, zap.NewNop())
		reg := prometheus.NewRegistry()
		router := registry.NewRouter(h, zap.NewNop(), reg)
		srv = httptest.NewServer(router)
	})

	AfterEach(func() {
		srv.Close()
	})

	postJSON := func(path string, body interface{}) *http.Response {
		raw, err := json.Marshal(body)
		Expect(err).ToNot(HaveOccurred())
		resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(raw))
		Expect(err).ToNot(HaveOccurred())
		return resp
	}

	Describe("developer registration", func() {
		It("returns 201 for a new developer", func() {
			resp := postJSON("/v1/developers/register", registry.RegisterDeveloperInput{DeveloperID: "dev-1", PublicKey: "pk"})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		})

		It("returns 409 for a duplicate developer", func() {
			postJSON("/v1/developers/register", registry.RegisterDeveloperInput{DeveloperID: "dev-1", PublicKey: "pk"})
			resp := postJSON("/v1/developers/register", registry.RegisterDeveloperInput{DeveloperID: "dev-1", PublicKey: "pk"})
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("returns 400 when the public key is missing", func() {
			resp := postJSON("/v1/developers/register", registry.RegisterDeveloperInput{DeveloperID: "dev-2"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("agent enrollment and validation", func() {
		BeforeEach(func() {
			postJSON("/v1/developers/register", registry.RegisterDeveloperInput{DeveloperID: "dev-1", PublicKey: "pk"})
		})

		It("enrolls an agent under its developer", func() {
			resp := postJSON("/v1/agents/register", registry.RegisterAgentInput{AgentID: "agent-1", DeveloperID: "dev-1", PublicKey: "pk"})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		})

		It("accepts any request enterprise when the developer has none", func() {
			requestEnterprise := "ent-x"
			resp := postJSON("/v1/agents/register", registry.RegisterAgentInput{AgentID: "agent-2", DeveloperID: "dev-1", EnterpriseID: &requestEnterprise, PublicKey: "pk"})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated)) // dev-1 has no enterprise, so any request enterprise is accepted
		})
	})

	Describe("trust score dimension updates", func() {
		It("rejects an unknown dimension with 400", func() {
			postJSON("/v1/trust/agent/agent-1", registry.CreateTrustScoreInput{})
			req, err := http.NewRequest(http.MethodPatch, srv.URL+"/v1/trust/agent/agent-1", bytes.NewReader(mustJSON(registry.UpdateTrustDimensionInput{Dimension: "not-a-real-dimension", Delta: 0.1})))
			Expect(err).ToNot(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("applies a delta to a known dimension", func() {
			postJSON("/v1/trust/agent/agent-1", registry.CreateTrustScoreInput{})
			req, err := http.NewRequest(http.MethodPatch, srv.URL+"/v1/trust/agent/agent-1", bytes.NewReader(mustJSON(registry.UpdateTrustDimensionInput{Dimension: "behavior", Delta: 0.1})))
			Expect(err).ToNot(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var score trust.Score
			Expect(json.NewDecoder(resp.Body).Decode(&score)).To(Succeed())
			Expect(score.Dimensions.Behavior.String()).To(Equal("0.6"))
		})
	})
})

func mustJSON(v interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
