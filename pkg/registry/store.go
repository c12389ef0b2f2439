package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/pathwell/agentcore/pkg/ca"
	pwerrors "github.com/pathwell/agentcore/pkg/shared/errors"
	"github.com/pathwell/agentcore/pkg/identity"
	"github.com/pathwell/agentcore/pkg/tenant"
	"github.com/pathwell/agentcore/pkg/trust"
)

// ErrNotFound is returned by Store methods when the requested row does
// not exist; handlers translate it to a 404.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by Store methods when a uniqueness
// constraint the caller should have checked for was violated; handlers
// translate it to a 409.
var ErrConflict = errors.New("conflict")

// ErrMismatch is returned when a registration request's enterprise
// does not agree with its developer's, and also for a tenant
// relationship from a tenant to itself and for an unknown trust
// dimension; handlers translate it to a 400.
var ErrMismatch = errors.New("enterprise mismatch")

// Store is the persistence surface the HTTP layer depends on. The
// production implementation is *SQLStore; tests substitute a fake.
type Store interface {
	RegisterDeveloper(ctx context.Context, in RegisterDeveloperInput) (identity.Developer, error)
	GetDeveloperByExternalID(ctx context.Context, externalID string) (identity.Developer, error)

	RegisterAgent(ctx context.Context, in RegisterAgentInput) (identity.Agent, error)
	GetAgentByExternalID(ctx context.Context, externalID string) (identity.Agent, error)
	RevokeAgent(ctx context.Context, externalID string) error

	CreateTenant(ctx context.Context, in CreateTenantInput) (TenantRecord, error)
	GetTenant(ctx context.Context, externalID string) (TenantRecord, error)
	GetTenantAncestors(ctx context.Context, path []string) ([]TenantSummary, error)
	GetTenantChildren(ctx context.Context, tenantRowID string) ([]TenantSummary, error)
	UpdateTenant(ctx context.Context, externalID string, patch TenantPatch) (TenantRecord, error)
	DeactivateTenant(ctx context.Context, externalID string) error
	CreateTenantRelationship(ctx context.Context, in TenantRelationshipInput) error
	GetTenantRelationships(ctx context.Context, tenantExternalID string) ([]TenantRelationshipRecord, error)

	CreateTrustScore(ctx context.Context, entityType, entityID string, in CreateTrustScoreInput) (trust.Score, error)
	GetTrustScore(ctx context.Context, entityType, entityID string) (trust.Score, error)
	UpdateTrustDimension(ctx context.Context, entityType, entityID string, in UpdateTrustDimensionInput) (trust.Score, error)
	GetTrustScoreHistory(ctx context.Context, entityType, entityID string, limit int) ([]TrustScoreHistoryEntry, error)
	ListTrustRiskEvents(ctx context.Context, entityType, entityID string, limit int) ([]TrustRiskEvent, error)
	CreateTrustRiskEvent(ctx context.Context, entityType, entityID string, in CreateTrustRiskEventInput) (TrustRiskEvent, error)
}

// SQLStore is the Postgres-backed implementation of Store, using sqlx
// over the database/sql interface and the pgx stdlib driver.
type SQLStore struct {
	db *sqlx.DB
	ca *ca.Authority
}

// NewSQLStore wraps an already-open *sqlx.DB.
func NewSQLStore(db *sqlx.DB, authority *ca.Authority) *SQLStore {
	return &SQLStore{db: db, ca: authority}
}

func (s *SQLStore) RegisterDeveloper(ctx context.Context, in RegisterDeveloperInput) (identity.Developer, error) {
	var existing string
	err := s.db.GetContext(ctx, &existing, `SELECT id FROM developers WHERE developer_id = $1`, in.DeveloperID)
	switch {
	case err == nil:
		return identity.Developer{}, ErrConflict
	case !errors.Is(err, sql.ErrNoRows):
		return identity.Developer{}, pwerrors.FailedToWithDetails("check existing developer", "registry", in.DeveloperID, err)
	}

	var enterpriseRowID *string
	if in.EnterpriseID != nil {
		enterpriseRowID, err = s.lookupEnterpriseRowID(ctx, *in.EnterpriseID)
		if err != nil {
			return identity.Developer{}, err
		}
	}

	var tenantRowID *string
	if in.TenantID != nil {
		tenantRowID, err = s.lookupTenantRowID(ctx, *in.TenantID)
		if err != nil {
			return identity.Developer{}, err
		}
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO developers (id, developer_id, enterprise_id, public_key, tenant_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, in.DeveloperID, enterpriseRowID, in.PublicKey, tenantRowID, now, now)
	if err != nil {
		return identity.Developer{}, pwerrors.FailedToWithDetails("insert developer", "registry", in.DeveloperID, err)
	}

	return identity.Developer{
		ID:           id,
		DeveloperID:  in.DeveloperID,
		EnterpriseID: in.EnterpriseID,
		TenantID:     in.TenantID,
		PublicKey:    in.PublicKey,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *SQLStore) lookupEnterpriseRowID(ctx context.Context, externalID string) (*string, error) {
	var id string
	err := s.db.GetContext(ctx, &id, `SELECT id FROM enterprises WHERE enterprise_id = $1`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pwerrors.FailedToWithDetails("lookup enterprise", "registry", externalID, err)
	}
	return &id, nil
}

func (s *SQLStore) lookupTenantRowID(ctx context.Context, externalID string) (*string, error) {
	var id string
	err := s.db.GetContext(ctx, &id, `SELECT id FROM tenants WHERE tenant_id = $1 AND deactivated_at IS NULL`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pwerrors.FailedToWithDetails("lookup tenant", "registry", externalID, err)
	}
	return &id, nil
}

func (s *SQLStore) GetDeveloperByExternalID(ctx context.Context, externalID string) (identity.Developer, error) {
	var row developerRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, developer_id, enterprise_id, public_key, tenant_id, created_at, updated_at
		FROM developers WHERE developer_id = $1`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Developer{}, ErrNotFound
	}
	if err != nil {
		return identity.Developer{}, pwerrors.FailedToWithDetails("get developer", "registry", externalID, err)
	}
	return row.toDomain(), nil
}

type developerRow struct {
	ID           string         `db:"id"`
	DeveloperID  string         `db:"developer_id"`
	EnterpriseID sql.NullString `db:"enterprise_id"`
	PublicKey    string         `db:"public_key"`
	TenantID     sql.NullString `db:"tenant_id"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r developerRow) toDomain() identity.Developer {
	d := identity.Developer{
		ID:          r.ID,
		DeveloperID: r.DeveloperID,
		PublicKey:   r.PublicKey,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.EnterpriseID.Valid {
		v := r.EnterpriseID.String
		d.EnterpriseID = &v
	}
	if r.TenantID.Valid {
		v := r.TenantID.String
		d.TenantID = &v
	}
	return d
}

func (s *SQLStore) RegisterAgent(ctx context.Context, in RegisterAgentInput) (identity.Agent, error) {
	developer, err := s.GetDeveloperByExternalID(ctx, in.DeveloperID)
	if err != nil {
		return identity.Agent{}, err
	}

	if identity.EnterpriseMismatch(developer.EnterpriseID, in.EnterpriseID) {
		return identity.Agent{}, ErrMismatch
	}

	var existing string
	err = s.db.GetContext(ctx, &existing, `SELECT id FROM agents WHERE agent_id = $1`, in.AgentID)
	switch {
	case err == nil:
		return identity.Agent{}, ErrConflict
	case !errors.Is(err, sql.ErrNoRows):
		return identity.Agent{}, pwerrors.FailedToWithDetails("check existing agent", "registry", in.AgentID, err)
	}

	chain, err := s.ca.Issue(in.AgentID, in.PublicKey)
	if err != nil {
		return identity.Agent{}, pwerrors.FailedToWithDetails("issue agent certificate", "registry", in.AgentID, err)
	}

	var enterpriseRowID *string
	if in.EnterpriseID != nil {
		enterpriseRowID, err = s.lookupEnterpriseRowID(ctx, *in.EnterpriseID)
		if err != nil {
			return identity.Agent{}, err
		}
	}

	tenantID := in.TenantID
	if tenantID == nil {
		tenantID = developer.TenantID
	}
	var tenantRowID *string
	if tenantID != nil {
		tenantRowID, err = s.lookupTenantRowID(ctx, *tenantID)
		if err != nil {
			return identity.Agent{}, err
		}
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, agent_id, developer_id, enterprise_id, public_key, certificate_chain, tenant_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, in.AgentID, developer.ID, enterpriseRowID, in.PublicKey, chain, tenantRowID, now, now)
	if err != nil {
		return identity.Agent{}, pwerrors.FailedToWithDetails("insert agent", "registry", in.AgentID, err)
	}

	return identity.Agent{
		ID:               id,
		AgentID:          in.AgentID,
		DeveloperID:      in.DeveloperID,
		EnterpriseID:     in.EnterpriseID,
		TenantID:         tenantID,
		PublicKey:        in.PublicKey,
		CertificateChain: chain,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func (s *SQLStore) GetAgentByExternalID(ctx context.Context, externalID string) (identity.Agent, error) {
	var row agentRow
	err := s.db.GetContext(ctx, &row, `
		SELECT a.id, a.agent_id, d.developer_id AS developer_external_id, a.enterprise_id,
		       t.tenant_id AS tenant_external_id,
		       a.public_key, a.certificate_chain, a.created_at, a.revoked_at, a.updated_at
		FROM agents a
		JOIN developers d ON d.id = a.developer_id
		LEFT JOIN tenants t ON t.id = a.tenant_id
		WHERE a.agent_id = $1`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Agent{}, ErrNotFound
	}
	if err != nil {
		return identity.Agent{}, pwerrors.FailedToWithDetails("get agent", "registry", externalID, err)
	}
	return row.toDomain(), nil
}

type agentRow struct {
	ID                  string         `db:"id"`
	AgentID             string         `db:"agent_id"`
	DeveloperExternalID string         `db:"developer_external_id"`
	EnterpriseID        sql.NullString `db:"enterprise_id"`
	TenantExternalID    sql.NullString `db:"tenant_external_id"`
	PublicKey           string         `db:"public_key"`
	CertificateChain    string         `db:"certificate_chain"`
	CreatedAt           time.Time      `db:"created_at"`
	RevokedAt           sql.NullTime   `db:"revoked_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

func (r agentRow) toDomain() identity.Agent {
	a := identity.Agent{
		ID:               r.ID,
		AgentID:          r.AgentID,
		DeveloperID:      r.DeveloperExternalID,
		PublicKey:        r.PublicKey,
		CertificateChain: r.CertificateChain,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.EnterpriseID.Valid {
		v := r.EnterpriseID.String
		a.EnterpriseID = &v
	}
	if r.TenantExternalID.Valid {
		v := r.TenantExternalID.String
		a.TenantID = &v
	}
	if r.RevokedAt.Valid {
		t := r.RevokedAt.Time
		a.RevokedAt = &t
	}
	return a
}

func (s *SQLStore) RevokeAgent(ctx context.Context, externalID string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE agents SET revoked_at = $1, updated_at = $1 WHERE agent_id = $2 AND revoked_at IS NULL`,
		now, externalID)
	if err != nil {
		return pwerrors.FailedToWithDetails("revoke agent", "registry", externalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return pwerrors.FailedToWithDetails("revoke agent", "registry", externalID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) CreateTenant(ctx context.Context, in CreateTenantInput) (TenantRecord, error) {
	var existing string
	err := s.db.GetContext(ctx, &existing, `SELECT id FROM tenants WHERE tenant_id = $1`, in.TenantID)
	switch {
	case err == nil:
		return TenantRecord{}, ErrConflict
	case !errors.Is(err, sql.ErrNoRows):
		return TenantRecord{}, pwerrors.FailedToWithDetails("check existing tenant", "registry", in.TenantID, err)
	}

	typ := tenant.TypeChild
	if in.TenantType != nil {
		typ = tenant.ParseType(*in.TenantType)
	}

	id := uuid.NewString()
	now := time.Now().UTC()

	if in.ParentTenantID == nil {
		if in.TenantType == nil {
			typ = tenant.TypePlatform
		}
		derived := tenant.DeriveRoot(in.TenantID)
		governance := in.GovernanceConfig
		if governance == nil {
			governance = tenant.DefaultGovernance(true)
		}
		visibility := in.VisibilityConfig
		if visibility == nil {
			visibility = tenant.DefaultVisibility()
		}
		return s.insertTenant(ctx, id, in.TenantID, typ, in.DisplayName, nil, &in.TenantID, derived, governance, visibility, in.Metadata, now)
	}

	parent, err := s.GetTenant(ctx, *in.ParentTenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TenantRecord{}, ErrNotFound
		}
		return TenantRecord{}, err
	}

	parentDerived := tenant.Derived{
		HierarchyDepth: parent.HierarchyDepth,
		RootExternalID: derefOr(parent.RootTenantID, parent.TenantID),
		HierarchyPath:  parent.HierarchyPath,
	}
	derived := tenant.DeriveChild(in.TenantID, parentDerived)

	governance := in.GovernanceConfig
	if governance == nil {
		governance = tenant.DefaultGovernance(false)
	}
	visibility := in.VisibilityConfig
	if visibility == nil {
		visibility = tenant.DefaultVisibility()
	}

	return s.insertTenant(ctx, id, in.TenantID, typ, in.DisplayName, &parent.ID, &derived.RootExternalID, derived, governance, visibility, in.Metadata, now)
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func (s *SQLStore) insertTenant(ctx context.Context, id, tenantID string, typ tenant.Type, displayName *string, parentRowID, rootExternalID *string, derived tenant.Derived, governance, visibility, metadata json.RawMessage, now time.Time) (TenantRecord, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (
			id, tenant_id, tenant_type, display_name, parent_tenant_id, root_tenant_id,
			hierarchy_depth, hierarchy_path, governance_config, visibility_config, metadata,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		id, tenantID, string(typ), displayName, parentRowID, rootExternalID,
		derived.HierarchyDepth, pq.Array(derived.HierarchyPath), governance, visibility, metadata,
		now, now)
	if err != nil {
		return TenantRecord{}, pwerrors.FailedToWithDetails("insert tenant", "registry", tenantID, err)
	}
	return TenantRecord{
		ID:               id,
		TenantID:         tenantID,
		TenantType:       typ,
		DisplayName:      displayName,
		ParentTenantID:   parentRowID,
		RootTenantID:     rootExternalID,
		HierarchyDepth:   derived.HierarchyDepth,
		HierarchyPath:    derived.HierarchyPath,
		GovernanceConfig: governance,
		VisibilityConfig: visibility,
		Metadata:         metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func (s *SQLStore) GetTenant(ctx context.Context, externalID string) (TenantRecord, error) {
	var row tenantRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, tenant_id, tenant_type, display_name, parent_tenant_id, root_tenant_id,
		       hierarchy_depth, hierarchy_path, governance_config, visibility_config, metadata,
		       created_at, updated_at, deactivated_at
		FROM tenants WHERE tenant_id = $1 AND deactivated_at IS NULL`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return TenantRecord{}, ErrNotFound
	}
	if err != nil {
		return TenantRecord{}, pwerrors.FailedToWithDetails("get tenant", "registry", externalID, err)
	}
	return row.toDomain(), nil
}

type tenantRow struct {
	ID               string         `db:"id"`
	TenantID         string         `db:"tenant_id"`
	TenantType       string         `db:"tenant_type"`
	DisplayName      sql.NullString `db:"display_name"`
	ParentTenantID   sql.NullString `db:"parent_tenant_id"`
	RootTenantID     sql.NullString `db:"root_tenant_id"`
	HierarchyDepth   int            `db:"hierarchy_depth"`
	HierarchyPath    pq.StringArray `db:"hierarchy_path"`
	GovernanceConfig json.RawMessage `db:"governance_config"`
	VisibilityConfig json.RawMessage `db:"visibility_config"`
	Metadata         json.RawMessage `db:"metadata"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
	DeactivatedAt    sql.NullTime   `db:"deactivated_at"`
}

func (r tenantRow) toDomain() TenantRecord {
	t := TenantRecord{
		ID:               r.ID,
		TenantID:         r.TenantID,
		TenantType:       tenant.Type(r.TenantType),
		HierarchyDepth:   r.HierarchyDepth,
		HierarchyPath:    []string(r.HierarchyPath),
		GovernanceConfig: r.GovernanceConfig,
		VisibilityConfig: r.VisibilityConfig,
		Metadata:         r.Metadata,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.DisplayName.Valid {
		v := r.DisplayName.String
		t.DisplayName = &v
	}
	if r.ParentTenantID.Valid {
		v := r.ParentTenantID.String
		t.ParentTenantID = &v
	}
	if r.RootTenantID.Valid {
		v := r.RootTenantID.String
		t.RootTenantID = &v
	}
	if r.DeactivatedAt.Valid {
		v := r.DeactivatedAt.Time
		t.DeactivatedAt = &v
	}
	return t
}

func (s *SQLStore) GetTenantAncestors(ctx context.Context, path []string) ([]TenantSummary, error) {
	ids := tenant.Ancestors(path)
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []tenantSummaryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, tenant_id, tenant_type, display_name, hierarchy_depth
		FROM tenants WHERE tenant_id = ANY($1) AND deactivated_at IS NULL
		ORDER BY hierarchy_depth`, pq.Array(ids))
	if err != nil {
		return nil, pwerrors.FailedTo("get tenant ancestors", err)
	}
	return toSummaries(rows), nil
}

func (s *SQLStore) GetTenantChildren(ctx context.Context, tenantRowID string) ([]TenantSummary, error) {
	var rows []tenantSummaryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, tenant_id, tenant_type, display_name, hierarchy_depth
		FROM tenants WHERE parent_tenant_id = $1 AND deactivated_at IS NULL
		ORDER BY tenant_id`, tenantRowID)
	if err != nil {
		return nil, pwerrors.FailedTo("get tenant children", err)
	}
	return toSummaries(rows), nil
}

type tenantSummaryRow struct {
	ID             string         `db:"id"`
	TenantID       string         `db:"tenant_id"`
	TenantType     string         `db:"tenant_type"`
	DisplayName    sql.NullString `db:"display_name"`
	HierarchyDepth int            `db:"hierarchy_depth"`
}

func toSummaries(rows []tenantSummaryRow) []TenantSummary {
	out := make([]TenantSummary, 0, len(rows))
	for _, r := range rows {
		s := TenantSummary{ID: r.ID, TenantID: r.TenantID, TenantType: tenant.Type(r.TenantType), HierarchyDepth: r.HierarchyDepth}
		if r.DisplayName.Valid {
			v := r.DisplayName.String
			s.DisplayName = &v
		}
		out = append(out, s)
	}
	return out
}

func (s *SQLStore) UpdateTenant(ctx context.Context, externalID string, patch TenantPatch) (TenantRecord, error) {
	var row tenantRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE tenants SET
			display_name = COALESCE($2, display_name),
			governance_config = COALESCE($3, governance_config),
			visibility_config = COALESCE($4, visibility_config),
			metadata = COALESCE($5, metadata),
			updated_at = $6
		WHERE tenant_id = $1 AND deactivated_at IS NULL
		RETURNING id, tenant_id, tenant_type, display_name, parent_tenant_id, root_tenant_id,
		          hierarchy_depth, hierarchy_path, governance_config, visibility_config, metadata,
		          created_at, updated_at, deactivated_at`,
		externalID, patch.DisplayName, nullableJSON(patch.GovernanceConfig), nullableJSON(patch.VisibilityConfig), nullableJSON(patch.Metadata), time.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return TenantRecord{}, ErrNotFound
	}
	if err != nil {
		return TenantRecord{}, pwerrors.FailedToWithDetails("update tenant", "registry", externalID, err)
	}
	return row.toDomain(), nil
}

func nullableJSON(raw json.RawMessage) interface{} {
	if raw == nil {
		return nil
	}
	return []byte(raw)
}

func (s *SQLStore) DeactivateTenant(ctx context.Context, externalID string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tenants SET deactivated_at = $1, updated_at = $1 WHERE tenant_id = $2 AND deactivated_at IS NULL`,
		now, externalID)
	if err != nil {
		return pwerrors.FailedToWithDetails("deactivate tenant", "registry", externalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return pwerrors.FailedToWithDetails("deactivate tenant", "registry", externalID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) CreateTenantRelationship(ctx context.Context, in TenantRelationshipInput) error {
	rel := tenant.Relationship{Source: in.SourceTenantID, Target: in.TargetTenantID, Type: in.Type}
	if err := rel.Validate(); err != nil {
		return ErrMismatch
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenant_relationships (id, source_tenant_id, target_tenant_id, relationship_type, permissions, constraints, created_at)
		SELECT $1, s.id, t.id, $4, $5, $6, $7
		FROM tenants s, tenants t
		WHERE s.tenant_id = $2 AND t.tenant_id = $3
		ON CONFLICT (source_tenant_id, target_tenant_id, relationship_type) DO NOTHING`,
		id, in.SourceTenantID, in.TargetTenantID, string(in.Type), in.Permissions, in.Constraints, now)
	if err != nil {
		return pwerrors.FailedTo("create tenant relationship", err)
	}
	return nil
}

func (s *SQLStore) GetTenantRelationships(ctx context.Context, tenantExternalID string) ([]TenantRelationshipRecord, error) {
	var rows []tenantRelationshipRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT r.id, s.tenant_id AS source_tenant_id, t.tenant_id AS target_tenant_id,
		       r.relationship_type, r.permissions, r.constraints, r.created_at
		FROM tenant_relationships r
		JOIN tenants s ON s.id = r.source_tenant_id
		JOIN tenants t ON t.id = r.target_tenant_id
		WHERE s.tenant_id = $1 OR t.tenant_id = $1
		ORDER BY r.created_at DESC`, tenantExternalID)
	if err != nil {
		return nil, pwerrors.FailedTo("list tenant relationships", err)
	}
	out := make([]TenantRelationshipRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, TenantRelationshipRecord{
			ID:             r.ID,
			SourceTenantID: r.SourceTenantID,
			TargetTenantID: r.TargetTenantID,
			Type:           tenant.RelationshipType(r.Type),
			Permissions:    r.Permissions,
			Constraints:    r.Constraints,
			CreatedAt:      r.CreatedAt,
		})
	}
	return out, nil
}

type tenantRelationshipRow struct {
	ID             string          `db:"id"`
	SourceTenantID string          `db:"source_tenant_id"`
	TargetTenantID string          `db:"target_tenant_id"`
	Type           string          `db:"relationship_type"`
	Permissions    json.RawMessage `db:"permissions"`
	Constraints    json.RawMessage `db:"constraints"`
	CreatedAt      time.Time       `db:"created_at"`
}

func (s *SQLStore) CreateTrustScore(ctx context.Context, entityType, entityID string, in CreateTrustScoreInput) (trust.Score, error) {
	var existing string
	err := s.db.GetContext(ctx, &existing, `SELECT id FROM trust_scores WHERE entity_type = $1 AND entity_id = $2`, entityType, entityID)
	switch {
	case err == nil:
		return trust.Score{}, ErrConflict
	case !errors.Is(err, sql.ErrNoRows):
		return trust.Score{}, pwerrors.FailedTo("check existing trust score", err)
	}

	dims := trust.NewDimensionScores(in.Behavior, in.Validation, in.Provenance, in.Alignment, in.Reputation)
	composite := dims.Composite()

	id := uuid.NewString()
	now := time.Now().UTC()
	action := trust.ActionNone
	if in.ThresholdAction != nil {
		action = *in.ThresholdAction
	}

	dimJSON, err := json.Marshal(dims)
	if err != nil {
		return trust.Score{}, pwerrors.FailedTo("marshal trust dimensions", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trust_scores (
			id, entity_type, entity_id, composite_score, confidence_level, dimension_scores,
			calculation_version, last_calculated_at, minimum_threshold, threshold_action, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		id, entityType, entityID, composite.String(), "0.5", dimJSON, "v1.0.0", now, thresholdParam(in.MinimumThreshold), string(action), now, now)
	if err != nil {
		return trust.Score{}, pwerrors.FailedTo("insert trust score", err)
	}

	score := trust.Score{
		ID: id, EntityType: entityType, EntityID: entityID,
		Composite: composite, Confidence: decimal.NewFromFloat(0.5), Dimensions: dims,
		CalculationVersion: "v1.0.0", ThresholdAction: action,
	}
	if in.MinimumThreshold != nil {
		t := decimal.NewFromFloat(*in.MinimumThreshold)
		score.MinimumThreshold = &t
	}
	return score, nil
}

func thresholdParam(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return decimal.NewFromFloat(*f).String()
}

func (s *SQLStore) GetTrustScore(ctx context.Context, entityType, entityID string) (trust.Score, error) {
	var row trustScoreRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, entity_type, entity_id, composite_score, confidence_level, dimension_scores,
		       calculation_version, minimum_threshold, threshold_action
		FROM trust_scores WHERE entity_type = $1 AND entity_id = $2`, entityType, entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return trust.Score{}, ErrNotFound
	}
	if err != nil {
		return trust.Score{}, pwerrors.FailedTo("get trust score", err)
	}
	return row.toDomain()
}

func (s *SQLStore) UpdateTrustDimension(ctx context.Context, entityType, entityID string, in UpdateTrustDimensionInput) (trust.Score, error) {
	current, err := s.GetTrustScore(ctx, entityType, entityID)
	if err != nil {
		return trust.Score{}, err
	}

	updated, ok := current.Dimensions.WithDelta(in.Dimension, in.Delta)
	if !ok {
		return trust.Score{}, ErrMismatch
	}
	newComposite := updated.Composite()

	historyID := uuid.NewString()
	now := time.Now().UTC()
	preChangeJSON, err := json.Marshal(current.Dimensions)
	if err != nil {
		return trust.Score{}, pwerrors.FailedTo("marshal pre-change dimensions", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trust_score_history (id, trust_score_id, composite_at_change, dimensions_at_change, change_reason, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		historyID, current.ID, current.Composite.String(), preChangeJSON, in.Reason, now)
	if err != nil {
		return trust.Score{}, pwerrors.FailedTo("write trust score history", err)
	}

	newJSON, err := json.Marshal(updated)
	if err != nil {
		return trust.Score{}, pwerrors.FailedTo("marshal updated dimensions", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE trust_scores SET composite_score = $1, dimension_scores = $2, last_calculated_at = $3, updated_at = $3
		WHERE id = $4`, newComposite.String(), newJSON, now, current.ID)
	if err != nil {
		return trust.Score{}, pwerrors.FailedTo("update trust score", err)
	}

	current.Dimensions = updated
	current.Composite = newComposite
	return current, nil
}

func (s *SQLStore) ListTrustRiskEvents(ctx context.Context, entityType, entityID string, limit int) ([]TrustRiskEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var rows []trustRiskEventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, entity_type, entity_id, risk_type, severity, code, status, detail, evidence, mitigation, recorded_at, updated_at
		FROM trust_risk_events WHERE entity_type = $1 AND entity_id = $2
		ORDER BY recorded_at DESC LIMIT $3`, entityType, entityID, limit)
	if err != nil {
		return nil, pwerrors.FailedTo("list trust risk events", err)
	}
	out := make([]TrustRiskEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// CreateTrustRiskEvent records a new risk event against an entity,
// defaulting its status to open.
func (s *SQLStore) CreateTrustRiskEvent(ctx context.Context, entityType, entityID string, in CreateTrustRiskEventInput) (TrustRiskEvent, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trust_risk_events (id, entity_type, entity_id, risk_type, severity, code, status, detail, evidence, recorded_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		id, entityType, entityID, in.RiskType, in.Severity, in.Code, string(RiskEventOpen), in.Detail, []byte(in.Evidence), now)
	if err != nil {
		return TrustRiskEvent{}, pwerrors.FailedTo("insert trust risk event", err)
	}
	e := TrustRiskEvent{
		ID: id, EntityType: entityType, EntityID: entityID, RiskType: in.RiskType,
		Severity: in.Severity, Code: in.Code, Status: RiskEventOpen, Detail: in.Detail,
		Evidence: in.Evidence, RecordedAt: now, UpdatedAt: now,
	}
	return e, nil
}

type trustRiskEventRow struct {
	ID         string          `db:"id"`
	EntityType string          `db:"entity_type"`
	EntityID   string          `db:"entity_id"`
	RiskType   string          `db:"risk_type"`
	Severity   string          `db:"severity"`
	Code       string          `db:"code"`
	Status     string          `db:"status"`
	Detail     sql.NullString  `db:"detail"`
	Evidence   json.RawMessage `db:"evidence"`
	Mitigation json.RawMessage `db:"mitigation"`
	RecordedAt time.Time       `db:"recorded_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

func (r trustRiskEventRow) toDomain() TrustRiskEvent {
	e := TrustRiskEvent{
		ID: r.ID, EntityType: r.EntityType, EntityID: r.EntityID, RiskType: r.RiskType,
		Severity: r.Severity, Code: r.Code, Status: TrustRiskEventStatus(r.Status),
		Evidence: r.Evidence, Mitigation: r.Mitigation, RecordedAt: r.RecordedAt, UpdatedAt: r.UpdatedAt,
	}
	if r.Detail.Valid {
		v := r.Detail.String
		e.Detail = &v
	}
	return e
}

// GetTrustScoreHistory returns an entity's trust score change history,
// most recent first.
func (s *SQLStore) GetTrustScoreHistory(ctx context.Context, entityType, entityID string, limit int) ([]TrustScoreHistoryEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var rows []trustScoreHistoryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT h.id, h.composite_at_change, h.dimensions_at_change, h.change_reason, h.recorded_at
		FROM trust_score_history h
		JOIN trust_scores s ON s.id = h.trust_score_id
		WHERE s.entity_type = $1 AND s.entity_id = $2
		ORDER BY h.recorded_at DESC LIMIT $3`, entityType, entityID, limit)
	if err != nil {
		return nil, pwerrors.FailedTo("get trust score history", err)
	}
	out := make([]TrustScoreHistoryEntry, 0, len(rows))
	for _, r := range rows {
		var dims trust.DimensionScores
		if err := json.Unmarshal(r.DimensionsAtChange, &dims); err != nil {
			return nil, pwerrors.FailedTo("unmarshal trust score history dimensions", err)
		}
		entry := TrustScoreHistoryEntry{ID: r.ID, CompositeAtChange: r.CompositeAtChange, DimensionsAtChange: dims, RecordedAt: r.RecordedAt}
		if r.ChangeReason.Valid {
			v := r.ChangeReason.String
			entry.ChangeReason = &v
		}
		out = append(out, entry)
	}
	return out, nil
}

type trustScoreHistoryRow struct {
	ID                 string          `db:"id"`
	CompositeAtChange  string          `db:"composite_at_change"`
	DimensionsAtChange json.RawMessage `db:"dimensions_at_change"`
	ChangeReason       sql.NullString  `db:"change_reason"`
	RecordedAt         time.Time       `db:"recorded_at"`
}

type trustScoreRow struct {
	ID                 string          `db:"id"`
	EntityType         string          `db:"entity_type"`
	EntityID           string          `db:"entity_id"`
	CompositeScore     string          `db:"composite_score"`
	ConfidenceLevel    string          `db:"confidence_level"`
	DimensionScores    json.RawMessage `db:"dimension_scores"`
	CalculationVersion string          `db:"calculation_version"`
	MinimumThreshold   sql.NullString  `db:"minimum_threshold"`
	ThresholdAction    sql.NullString  `db:"threshold_action"`
}

func (r trustScoreRow) toDomain() (trust.Score, error) {
	var dims trust.DimensionScores
	if err := json.Unmarshal(r.DimensionScores, &dims); err != nil {
		return trust.Score{}, pwerrors.FailedTo("unmarshal trust dimensions", err)
	}
	composite, err := decimal.NewFromString(r.CompositeScore)
	if err != nil {
		return trust.Score{}, pwerrors.FailedTo("parse composite score", err)
	}
	confidence, err := decimal.NewFromString(r.ConfidenceLevel)
	if err != nil {
		return trust.Score{}, pwerrors.FailedTo("parse confidence level", err)
	}
	score := trust.Score{
		ID: r.ID, EntityType: r.EntityType, EntityID: r.EntityID,
		Composite: composite, Confidence: confidence, Dimensions: dims,
		CalculationVersion: r.CalculationVersion,
	}
	if r.ThresholdAction.Valid {
		score.ThresholdAction = trust.ThresholdAction(r.ThresholdAction.String)
	}
	if r.MinimumThreshold.Valid {
		t, err := decimal.NewFromString(r.MinimumThreshold.String)
		if err != nil {
			return trust.Score{}, pwerrors.FailedTo("parse minimum threshold", err)
		}
		score.MinimumThreshold = &t
	}
	return score, nil
}
