package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	pwerrors "github.com/pathwell/agentcore/pkg/shared/errors"
	pwhttp "github.com/pathwell/agentcore/pkg/shared/http"
)

// IdentityClient is the gateway's dependency on the identity registry.
type IdentityClient interface {
	ValidateAgent(ctx context.Context, agentID string) (IdentityResult, error)
	GetTrustScore(ctx context.Context, agentID string) (*float64, error)
}

// RegistryIdentityClient calls the identity registry's HTTP surface,
// guarded by a circuit breaker and an optional short-TTL cache so a
// wedged registry fails fast instead of piling up in-flight calls.
type RegistryIdentityClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	cache   ValidationCache
}

// NewRegistryIdentityClient builds a client pointed at the identity
// registry's baseURL. cache may be nil, in which case every call hits
// the registry directly.
func NewRegistryIdentityClient(baseURL string, cache ValidationCache) *RegistryIdentityClient {
	return &RegistryIdentityClient{
		baseURL: baseURL,
		client:  pwhttp.NewClient(pwhttp.IdentityClientConfig()),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "identity-registry",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		cache: cache,
	}
}

type validateAgentResponse struct {
	Valid               bool                   `json:"valid"`
	AgentID             string                 `json:"agent_id"`
	DeveloperID         string                 `json:"developer_id"`
	EnterpriseID        *string                `json:"enterprise_id,omitempty"`
	TenantID            *string                `json:"tenant_id,omitempty"`
	Revoked             bool                   `json:"revoked"`
	TenantHierarchyPath []string               `json:"tenant_hierarchy_path,omitempty"`
	TenantGovernance    map[string]interface{} `json:"tenant_governance,omitempty"`
}

// ValidateAgent checks an agent's identity against the v2 contract, so
// every validation carries the tenant hierarchy and governance context
// the v2 policy path needs. A cache hit never masks a revocation:
// cached entries carry a short TTL enforced by the cache implementation
// itself, so a miss always falls through to the registry.
func (c *RegistryIdentityClient) ValidateAgent(ctx context.Context, agentID string) (IdentityResult, error) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, agentID); ok {
			return cached, nil
		}
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx, "/v2/agents/"+url.PathEscape(agentID)+"/validate")
	})
	if err != nil {
		return IdentityResult{}, pwerrors.FailedToWithDetails("validate agent", "identity_registry", agentID, err)
	}

	var resp validateAgentResponse
	if err := json.Unmarshal(result.([]byte), &resp); err != nil {
		return IdentityResult{}, pwerrors.FailedTo("decode validate agent response", err)
	}
	out := IdentityResult{
		Valid:               resp.Valid,
		Revoked:             resp.Revoked,
		AgentID:             resp.AgentID,
		DeveloperID:         resp.DeveloperID,
		EnterpriseID:        resp.EnterpriseID,
		TenantID:            resp.TenantID,
		TenantHierarchyPath: resp.TenantHierarchyPath,
		TenantGovernance:    resp.TenantGovernance,
	}

	if c.cache != nil {
		c.cache.Set(ctx, agentID, out)
	}
	return out, nil
}

type trustScoreResponse struct {
	Composite string `json:"composite_score"`
}

// GetTrustScore fetches the agent's current composite trust score.
// Absence of a score (404) is not an error: the gateway falls back to
// the non-trust-aware v1 policy contract.
func (c *RegistryIdentityClient) GetTrustScore(ctx context.Context, agentID string) (*float64, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		body, err := c.get(ctx, "/v1/trust/agent/"+url.PathEscape(agentID))
		if err == errNotFound {
			// Absence of a score is a well-formed outcome, not a
			// dependency failure, so it must not count toward the
			// breaker's trip threshold.
			return []byte(nil), nil
		}
		return body, err
	})
	if err != nil {
		return nil, pwerrors.FailedToWithDetails("get trust score", "identity_registry", agentID, err)
	}

	body := result.([]byte)
	if body == nil {
		return nil, nil
	}

	var resp trustScoreResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, pwerrors.FailedTo("decode trust score response", err)
	}
	var f float64
	if _, err := fmt.Sscan(resp.Composite, &f); err != nil {
		return nil, pwerrors.FailedTo("parse trust score", err)
	}
	return &f, nil
}

var errNotFound = fmt.Errorf("not found")

func (c *RegistryIdentityClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("identity registry responded %d", resp.StatusCode)
	}
	return body, nil
}
