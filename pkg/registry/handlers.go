package registry

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pathwell/agentcore/pkg/apierror"
	"github.com/pathwell/agentcore/pkg/ca"
	"github.com/pathwell/agentcore/pkg/trust"
)

// Handlers implements the identity registry's HTTP surface: developer
// and agent enrollment, agent validation, tenant CRUD and hierarchy
// lookups, and trust score read/write.
type Handlers struct {
	store    Store
	ca       *ca.Authority
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandlers wires a Handlers against its dependencies.
func NewHandlers(store Store, authority *ca.Authority, logger *zap.Logger) *Handlers {
	return &Handlers{
		store:    store,
		ca:       authority,
		validate: validator.New(),
		logger:   logger,
	}
}

func (h *Handlers) decodeAndValidate(r *http.Request, dst interface{}) *apierror.Error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apierror.New(apierror.InvalidRequest, "malformed request body")
	}
	if err := h.validate.Struct(dst); err != nil {
		return apierror.New(apierror.InvalidRequest, err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handlers) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		apierror.WriteCode(w, apierror.NotFound, "resource not found")
	case errors.Is(err, ErrConflict):
		apierror.WriteCode(w, apierror.Conflict, "resource already exists")
	case errors.Is(err, ErrMismatch):
		apierror.WriteCode(w, apierror.InvalidRequest, "enterprise mismatch")
	default:
		h.logger.Error("registry store error", zap.Error(err))
		apierror.WriteCode(w, apierror.DatabaseError, "internal storage error")
	}
}

// RegisterDeveloper handles POST /v1/developers/register.
func (h *Handlers) RegisterDeveloper(w http.ResponseWriter, r *http.Request) {
	var in RegisterDeveloperInput
	if apiErr := h.decodeAndValidate(r, &in); apiErr != nil {
		apierror.Write(w, apiErr)
		return
	}
	developer, err := h.store.RegisterDeveloper(r.Context(), in)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, developer)
}

// RegisterAgent handles POST /v1/agents/register.
func (h *Handlers) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	var in RegisterAgentInput
	if apiErr := h.decodeAndValidate(r, &in); apiErr != nil {
		apierror.Write(w, apiErr)
		return
	}
	agent, err := h.store.RegisterAgent(r.Context(), in)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

// ValidateAgent handles GET /v1/agents/{agent_id}/validate. The gateway
// calls the v2 variant, ValidateAgentV2, on every proxied request.
func (h *Handlers) ValidateAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent_id")
	agent, err := h.store.GetAgentByExternalID(r.Context(), agentID)
	if err != nil {
		h.storeError(w, err)
		return
	}
	valid, err := h.ca.Validate(agent.CertificateChain)
	if err != nil {
		h.logger.Error("certificate validation failed", zap.String("agent_id", agentID), zap.Error(err))
		apierror.WriteCode(w, apierror.CertificateError, "certificate validation failed")
		return
	}
	result := struct {
		Valid        bool    `json:"valid"`
		AgentID      string  `json:"agent_id"`
		DeveloperID  string  `json:"developer_id"`
		EnterpriseID *string `json:"enterprise_id,omitempty"`
		TenantID     *string `json:"tenant_id,omitempty"`
		Revoked      bool    `json:"revoked"`
	}{
		Valid:        valid && !agent.Revoked(),
		AgentID:      agent.AgentID,
		DeveloperID:  agent.DeveloperID,
		EnterpriseID: agent.EnterpriseID,
		TenantID:     agent.TenantID,
		Revoked:      agent.Revoked(),
	}
	writeJSON(w, http.StatusOK, result)
}

// validateAgentV2Response is the v2 validate contract: the v1 fields
// plus the tenant hierarchy and governance context the v2 policy
// evaluation path needs to make tenant-aware decisions.
type validateAgentV2Response struct {
	Valid               bool                   `json:"valid"`
	AgentID             string                 `json:"agent_id"`
	DeveloperID         string                 `json:"developer_id"`
	EnterpriseID        *string                `json:"enterprise_id,omitempty"`
	TenantID            *string                `json:"tenant_id,omitempty"`
	Revoked             bool                   `json:"revoked"`
	TenantHierarchyPath []string               `json:"tenant_hierarchy_path,omitempty"`
	TenantGovernance    map[string]interface{} `json:"tenant_governance,omitempty"`
}

// ValidateAgentV2 handles GET /v2/agents/{agent_id}/validate, the
// tenant-aware validation contract the v2 policy path consumes.
func (h *Handlers) ValidateAgentV2(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent_id")
	agent, err := h.store.GetAgentByExternalID(r.Context(), agentID)
	if err != nil {
		h.storeError(w, err)
		return
	}
	valid, err := h.ca.Validate(agent.CertificateChain)
	if err != nil {
		h.logger.Error("certificate validation failed", zap.String("agent_id", agentID), zap.Error(err))
		apierror.WriteCode(w, apierror.CertificateError, "certificate validation failed")
		return
	}

	result := validateAgentV2Response{
		Valid:        valid && !agent.Revoked(),
		AgentID:      agent.AgentID,
		DeveloperID:  agent.DeveloperID,
		EnterpriseID: agent.EnterpriseID,
		TenantID:     agent.TenantID,
		Revoked:      agent.Revoked(),
	}

	if agent.TenantID != nil {
		tenantRecord, err := h.store.GetTenant(r.Context(), *agent.TenantID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			h.storeError(w, err)
			return
		}
		if err == nil {
			result.TenantHierarchyPath = tenantRecord.HierarchyPath
			if len(tenantRecord.GovernanceConfig) > 0 {
				var governance map[string]interface{}
				if err := json.Unmarshal(tenantRecord.GovernanceConfig, &governance); err == nil {
					result.TenantGovernance = governance
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// RevokeAgent handles POST /v1/agents/{agent_id}/revoke.
func (h *Handlers) RevokeAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent_id")
	if err := h.store.RevokeAgent(r.Context(), agentID); err != nil {
		h.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateTenant handles POST /v1/tenants.
func (h *Handlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var in CreateTenantInput
	if apiErr := h.decodeAndValidate(r, &in); apiErr != nil {
		apierror.Write(w, apiErr)
		return
	}
	tenant, err := h.store.CreateTenant(r.Context(), in)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tenant)
}

// GetTenant handles GET /v1/tenants/{tenant_id}.
func (h *Handlers) GetTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	tenant, err := h.store.GetTenant(r.Context(), tenantID)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

// GetTenantHierarchy handles GET /v1/tenants/{tenant_id}/hierarchy,
// returning ancestors (root-first) and direct children.
func (h *Handlers) GetTenantHierarchy(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	tenant, err := h.store.GetTenant(r.Context(), tenantID)
	if err != nil {
		h.storeError(w, err)
		return
	}
	ancestors, err := h.store.GetTenantAncestors(r.Context(), tenant.HierarchyPath)
	if err != nil {
		h.storeError(w, err)
		return
	}
	children, err := h.store.GetTenantChildren(r.Context(), tenant.ID)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Tenant    TenantRecord    `json:"tenant"`
		Ancestors []TenantSummary `json:"ancestors"`
		Children  []TenantSummary `json:"children"`
	}{Tenant: tenant, Ancestors: ancestors, Children: children})
}

// UpdateTenant handles PATCH /v1/tenants/{tenant_id}.
func (h *Handlers) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	var patch TenantPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		apierror.WriteCode(w, apierror.InvalidRequest, "malformed request body")
		return
	}
	tenant, err := h.store.UpdateTenant(r.Context(), tenantID, patch)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

// DeactivateTenant handles DELETE /v1/tenants/{tenant_id}.
func (h *Handlers) DeactivateTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	if err := h.store.DeactivateTenant(r.Context(), tenantID); err != nil {
		h.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateTenantRelationship handles POST /v1/tenants/{tenant_id}/relationships.
// The source side of the relationship is always the tenant named in
// the path; the request body names the target and relationship type.
func (h *Handlers) CreateTenantRelationship(w http.ResponseWriter, r *http.Request) {
	var in TenantRelationshipInput
	if apiErr := h.decodeAndValidate(r, &in); apiErr != nil {
		apierror.Write(w, apiErr)
		return
	}
	in.SourceTenantID = chi.URLParam(r, "tenant_id")
	if err := h.store.CreateTenantRelationship(r.Context(), in); err != nil {
		h.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// ListTenantRelationships handles GET /v1/tenants/{tenant_id}/relationships,
// returning every relationship where the tenant is either source or
// target.
func (h *Handlers) ListTenantRelationships(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant_id")
	relationships, err := h.store.GetTenantRelationships(r.Context(), tenantID)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, relationships)
}

// CreateTrustScore handles POST /v1/trust/{entity_type}/{entity_id}.
func (h *Handlers) CreateTrustScore(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entity_type")
	entityID := chi.URLParam(r, "entity_id")
	var in CreateTrustScoreInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		apierror.WriteCode(w, apierror.InvalidRequest, "malformed request body")
		return
	}
	score, err := h.store.CreateTrustScore(r.Context(), entityType, entityID, in)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, score)
}

// GetTrustScore handles GET /v1/trust/{entity_type}/{entity_id}.
func (h *Handlers) GetTrustScore(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entity_type")
	entityID := chi.URLParam(r, "entity_id")
	score, err := h.store.GetTrustScore(r.Context(), entityType, entityID)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

// UpdateTrustDimension handles PATCH /v1/trust/{entity_type}/{entity_id}.
func (h *Handlers) UpdateTrustDimension(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entity_type")
	entityID := chi.URLParam(r, "entity_id")
	var in UpdateTrustDimensionInput
	if apiErr := h.decodeAndValidate(r, &in); apiErr != nil {
		apierror.Write(w, apiErr)
		return
	}
	if _, ok := (trust.DimensionScores{}).Get(in.Dimension); !ok {
		apierror.WriteCode(w, apierror.InvalidRequest, "invalid_dimension")
		return
	}
	score, err := h.store.UpdateTrustDimension(r.Context(), entityType, entityID, in)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

// GetTrustScoreHistory handles GET
// /v1/trust/{entity_type}/{entity_id}/history.
func (h *Handlers) GetTrustScoreHistory(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entity_type")
	entityID := chi.URLParam(r, "entity_id")
	history, err := h.store.GetTrustScoreHistory(r.Context(), entityType, entityID, 50)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// ListTrustRiskEvents handles GET
// /v1/trust/{entity_type}/{entity_id}/risk-events.
func (h *Handlers) ListTrustRiskEvents(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entity_type")
	entityID := chi.URLParam(r, "entity_id")
	events, err := h.store.ListTrustRiskEvents(r.Context(), entityType, entityID, 50)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// CreateTrustRiskEvent handles POST
// /v1/trust/{entity_type}/{entity_id}/risk-events.
func (h *Handlers) CreateTrustRiskEvent(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entity_type")
	entityID := chi.URLParam(r, "entity_id")
	var in CreateTrustRiskEventInput
	if apiErr := h.decodeAndValidate(r, &in); apiErr != nil {
		apierror.Write(w, apiErr)
		return
	}
	event, err := h.store.CreateTrustRiskEvent(r.Context(), entityType, entityID, in)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}
