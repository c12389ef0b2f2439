package receiptstore

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/pathwell/agentcore/pkg/receipt"
)

func newTestStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStore(sqlx.NewDb(db, "postgres"), zap.NewNop()), mock
}

func baseInput(traceID string) WriteReceiptInput {
	return WriteReceiptInput{
		TraceID:     traceID,
		SpanID:      "span-1",
		AgentID:     "agent-1",
		DeveloperID: "dev-1",
		EventType:   receipt.EventGatewayRequest,
		Request:     receipt.RequestInfo{Method: "GET", Path: "/things"},
		PolicyResult: receipt.PolicyResult{
			Allowed:       true,
			PolicyVersion: "v1",
		},
		IdentityResult: receipt.IdentityResult{Valid: true, DeveloperID: "dev-1"},
	}
}

func TestWriteReceiptChainsToFirstReceipt(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT receipt_hash FROM receipts ORDER BY timestamp DESC, receipt_id DESC LIMIT 1`)).
		WillReturnError(sql.ErrNoRows)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT trace_id, correlation_id, started_at, last_event_at, status, event_count, policy_deny_count,
			tenant_id, min_trust_score, avg_trust_score, trust_violations,
			initiating_agent_id, initiating_developer_id, initiating_enterprise_id
		FROM traces WHERE trace_id = $1`)).
		WithArgs("trace-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO traces`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO receipts`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	r, err := store.WriteReceipt(context.Background(), baseInput("trace-1"))
	if err != nil {
		t.Fatalf("WriteReceipt: %v", err)
	}
	if r.PreviousReceiptHash != nil {
		t.Fatalf("expected the first receipt in an empty store to have no previous hash, got %v", *r.PreviousReceiptHash)
	}
	if r.ReceiptHash == "" {
		t.Fatalf("expected a non-empty receipt hash")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWriteReceiptChainsToPreviousReceipt(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT receipt_hash FROM receipts ORDER BY timestamp DESC, receipt_id DESC LIMIT 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"receipt_hash"}).AddRow("previous-hash-value"))

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT trace_id, correlation_id, started_at, last_event_at, status, event_count, policy_deny_count,
			tenant_id, min_trust_score, avg_trust_score, trust_violations,
			initiating_agent_id, initiating_developer_id, initiating_enterprise_id
		FROM traces WHERE trace_id = $1`)).
		WithArgs("trace-2").
		WillReturnRows(sqlmock.NewRows([]string{
			"trace_id", "correlation_id", "started_at", "last_event_at", "status", "event_count", "policy_deny_count",
			"tenant_id", "min_trust_score", "avg_trust_score", "trust_violations",
			"initiating_agent_id", "initiating_developer_id", "initiating_enterprise_id",
		}).AddRow("trace-2", nil, now, now, "active", 1, 0, nil, nil, nil, 0, "agent-1", "dev-1", nil))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE traces SET last_event_at`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO receipts`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	r, err := store.WriteReceipt(context.Background(), baseInput("trace-2"))
	if err != nil {
		t.Fatalf("WriteReceipt: %v", err)
	}
	if r.PreviousReceiptHash == nil || *r.PreviousReceiptHash != "previous-hash-value" {
		t.Fatalf("expected chained previous hash, got %v", r.PreviousReceiptHash)
	}
}

func TestWriteReceiptWithTrustEvaluationInsertsTrustEvent(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT receipt_hash FROM receipts ORDER BY timestamp DESC, receipt_id DESC LIMIT 1`)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT trace_id, correlation_id, started_at, last_event_at, status, event_count, policy_deny_count,
			tenant_id, min_trust_score, avg_trust_score, trust_violations,
			initiating_agent_id, initiating_developer_id, initiating_enterprise_id
		FROM traces WHERE trace_id = $1`)).
		WithArgs("trace-3").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO traces`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO receipts`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO trust_events`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	in := baseInput("trace-3")
	score := "0.2"
	in.PolicyResult.TrustEvaluation = &receipt.TrustEvaluation{Passed: false, Score: &score}
	in.TrustSnapshot = &receipt.TrustSnapshot{Composite: "0.2", IsAboveThreshold: false}

	if _, err := store.WriteReceipt(context.Background(), in); err != nil {
		t.Fatalf("WriteReceipt: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations, trust event must be inserted for a v2 trust evaluation: %v", err)
	}
}

func TestGetTraceNotFound(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT trace_id, correlation_id, started_at, last_event_at, status, event_count, policy_deny_count,
			tenant_id, min_trust_score, avg_trust_score, trust_violations,
			initiating_agent_id, initiating_developer_id, initiating_enterprise_id
		FROM traces WHERE trace_id = $1`)).
		WithArgs("missing-trace").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetTrace(context.Background(), "missing-trace")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
