package registry

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/pathwell/agentcore/pkg/ca"
)

func newTestStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	authority, err := ca.New()
	if err != nil {
		t.Fatalf("ca.New: %v", err)
	}
	return NewSQLStore(sqlx.NewDb(db, "postgres"), authority), mock
}

func TestRegisterDeveloperConflict(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM developers WHERE developer_id = $1`)).
		WithArgs("dev-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("existing-row-id"))

	_, err := store.RegisterDeveloper(context.Background(), RegisterDeveloperInput{DeveloperID: "dev-1", PublicKey: "pk"})
	if err != ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRegisterDeveloperInserts(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM developers WHERE developer_id = $1`)).
		WithArgs("dev-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO developers`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	developer, err := store.RegisterDeveloper(context.Background(), RegisterDeveloperInput{DeveloperID: "dev-1", PublicKey: "pk"})
	if err != nil {
		t.Fatalf("RegisterDeveloper: %v", err)
	}
	if developer.DeveloperID != "dev-1" {
		t.Fatalf("unexpected developer_id: %s", developer.DeveloperID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRegisterAgentEnterpriseMismatch(t *testing.T) {
	store, mock := newTestStore(t)
	devEnterprise := "ent-a"
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, developer_id, enterprise_id, public_key, tenant_id, created_at, updated_at`)).
		WithArgs("dev-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "developer_id", "enterprise_id", "public_key", "tenant_id", "created_at", "updated_at"}).
			AddRow("dev-row-id", "dev-1", devEnterprise, "pk", nil, now, now))

	requestEnterprise := "ent-b"
	_, err := store.RegisterAgent(context.Background(), RegisterAgentInput{
		AgentID: "agent-1", DeveloperID: "dev-1", EnterpriseID: &requestEnterprise, PublicKey: "pk",
	})
	if err != ErrMismatch {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}

func TestCreateTenantRoot(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM tenants WHERE tenant_id = $1`)).
		WithArgs("root-tenant").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO tenants`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record, err := store.CreateTenant(context.Background(), CreateTenantInput{TenantID: "root-tenant"})
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	if record.HierarchyDepth != 0 {
		t.Fatalf("expected root depth 0, got %d", record.HierarchyDepth)
	}
	if len(record.HierarchyPath) != 1 || record.HierarchyPath[0] != "root-tenant" {
		t.Fatalf("unexpected hierarchy path: %v", record.HierarchyPath)
	}
}

func TestCreateTenantChildDerivesFromParent(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM tenants WHERE tenant_id = $1`)).
		WithArgs("child-tenant").
		WillReturnError(sql.ErrNoRows)

	parentID := "parent-tenant"
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, tenant_id, tenant_type, display_name, parent_tenant_id, root_tenant_id`)).
		WithArgs(parentID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "tenant_type", "display_name", "parent_tenant_id", "root_tenant_id",
			"hierarchy_depth", "hierarchy_path", "governance_config", "visibility_config", "metadata",
			"created_at", "updated_at", "deactivated_at",
		}).AddRow("parent-row-id", parentID, "platform", nil, nil, parentID,
			0, pqArray([]string{parentID}), []byte(`{}`), []byte(`{}`), []byte(`{}`),
			time.Now(), time.Now(), nil))

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO tenants`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record, err := store.CreateTenant(context.Background(), CreateTenantInput{TenantID: "child-tenant", ParentTenantID: &parentID})
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	if record.HierarchyDepth != 1 {
		t.Fatalf("expected depth 1, got %d", record.HierarchyDepth)
	}
	if len(record.HierarchyPath) != 2 || record.HierarchyPath[1] != "child-tenant" {
		t.Fatalf("unexpected hierarchy path: %v", record.HierarchyPath)
	}
}

// pqArray renders a Go string slice the way lib/pq encodes a text[]
// column, for use in mocked row data.
func pqArray(vals []string) string {
	out := "{"
	for i, v := range vals {
		if i > 0 {
			out += ","
		}
		out += v
	}
	return out + "}"
}

func TestUpdateTrustDimensionWritesHistoryBeforeUpdate(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, entity_type, entity_id, composite_score, confidence_level, dimension_scores`)).
		WithArgs("agent", "agent-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "entity_type", "entity_id", "composite_score", "confidence_level", "dimension_scores",
			"calculation_version", "minimum_threshold", "threshold_action",
		}).AddRow("score-id", "agent", "agent-1", "0.50", "0.50",
			[]byte(`{"behavior":0.5,"validation":0.5,"provenance":0.5,"alignment":0.5,"reputation":0.5}`),
			"v1.0.0", nil, nil))

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO trust_score_history`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE trust_scores SET composite_score`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	score, err := store.UpdateTrustDimension(context.Background(), "agent", "agent-1", UpdateTrustDimensionInput{
		Dimension: "behavior", Delta: 0.1,
	})
	if err != nil {
		t.Fatalf("UpdateTrustDimension: %v", err)
	}
	if score.Dimensions.Behavior.String() != "0.6" {
		t.Fatalf("expected behavior 0.6, got %s", score.Dimensions.Behavior.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations, history must be written before the update: %v", err)
	}
}

func TestUpdateTrustDimensionUnknownDimension(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, entity_type, entity_id, composite_score, confidence_level, dimension_scores`)).
		WithArgs("agent", "agent-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "entity_type", "entity_id", "composite_score", "confidence_level", "dimension_scores",
			"calculation_version", "minimum_threshold", "threshold_action",
		}).AddRow("score-id", "agent", "agent-1", "0.50", "0.50",
			[]byte(`{"behavior":0.5,"validation":0.5,"provenance":0.5,"alignment":0.5,"reputation":0.5}`),
			"v1.0.0", nil, nil))

	_, err := store.UpdateTrustDimension(context.Background(), "agent", "agent-1", UpdateTrustDimensionInput{
		Dimension: "not-a-dimension", Delta: 0.1,
	})
	if err != ErrMismatch {
		t.Fatalf("expected ErrMismatch for unknown dimension, got %v", err)
	}
}
