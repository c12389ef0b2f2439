package receiptstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	pwerrors "github.com/pathwell/agentcore/pkg/shared/errors"
	"github.com/pathwell/agentcore/pkg/receipt"
)

// ErrNotFound is returned when the requested trace/receipt does not
// exist; handlers translate it to a 404.
var ErrNotFound = errors.New("not found")

// Store is the persistence surface the HTTP layer depends on.
type Store interface {
	WriteReceipt(ctx context.Context, in WriteReceiptInput) (receipt.Receipt, error)
	WriteExternalEvent(ctx context.Context, in WriteExternalEventInput) (receipt.ExternalEvent, error)

	ListTraces(ctx context.Context, filter TraceFilter) ([]receipt.Trace, error)
	GetTrace(ctx context.Context, traceID string) (receipt.Trace, error)
	GetTimeline(ctx context.Context, traceID string) (Timeline, error)
	BuildDecisionTree(ctx context.Context, traceID string) (DecisionTree, error)
	LookupByCorrelation(ctx context.Context, correlationID string) ([]receipt.Trace, error)
	ListTrustEvents(ctx context.Context, traceID string) ([]receipt.TrustEvent, error)
}

// SQLStore is the Postgres-backed implementation of Store.
type SQLStore struct {
	db     *sqlx.DB
	sinks  []Sink
	logger *zap.Logger
}

// NewSQLStore wraps an already-open *sqlx.DB and fans every written
// receipt out to sinks (Kafka, S3) on a best-effort basis.
func NewSQLStore(db *sqlx.DB, logger *zap.Logger, sinks ...Sink) *SQLStore {
	return &SQLStore{db: db, sinks: sinks, logger: logger}
}

func (s *SQLStore) WriteReceipt(ctx context.Context, in WriteReceiptInput) (receipt.Receipt, error) {
	var previousHash sql.NullString
	err := s.db.GetContext(ctx, &previousHash, `
		SELECT receipt_hash FROM receipts ORDER BY timestamp DESC, receipt_id DESC LIMIT 1`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return receipt.Receipt{}, pwerrors.FailedTo("lookup previous receipt hash", err)
	}

	newInput := receipt.NewInput{
		TraceID:             in.TraceID,
		CorrelationID:       in.CorrelationID,
		SpanID:              in.SpanID,
		ParentSpanID:        in.ParentSpanID,
		AgentID:             in.AgentID,
		EventType:           in.EventType,
		EventSource:         in.EventSource,
		Request:             in.Request,
		PolicyResult:        in.PolicyResult,
		IdentityResult:      in.IdentityResult,
		Metadata:            in.Metadata,
		TenantID:            in.TenantID,
		TrustSnapshot:       in.TrustSnapshot,
		AttributionSnapshot: in.AttributionSnapshot,
	}
	if previousHash.Valid {
		h := previousHash.String
		newInput.PreviousReceiptHash = &h
	}

	r, err := receipt.New(newInput)
	if err != nil {
		return receipt.Receipt{}, pwerrors.FailedTo("build receipt", err)
	}

	if err := s.upsertTrace(ctx, r, in.DeveloperID); err != nil {
		return receipt.Receipt{}, err
	}

	if err := s.insertReceipt(ctx, r); err != nil {
		return receipt.Receipt{}, err
	}

	if eval := r.PolicyResult.TrustEvaluation; eval != nil {
		if err := s.insertTrustEvent(ctx, r, eval); err != nil {
			return receipt.Receipt{}, err
		}
	}

	fanOut(ctx, s.sinks, r, s.logger)

	return r, nil
}

func (s *SQLStore) insertReceipt(ctx context.Context, r receipt.Receipt) error {
	requestJSON, err := json.Marshal(r.Request)
	if err != nil {
		return pwerrors.FailedTo("marshal request info", err)
	}
	policyJSON, err := json.Marshal(r.PolicyResult)
	if err != nil {
		return pwerrors.FailedTo("marshal policy result", err)
	}
	identityJSON, err := json.Marshal(r.IdentityResult)
	if err != nil {
		return pwerrors.FailedTo("marshal identity result", err)
	}
	sourceJSON, err := json.Marshal(r.EventSource)
	if err != nil {
		return pwerrors.FailedTo("marshal event source", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO receipts (
			receipt_id, trace_id, correlation_id, span_id, parent_span_id, timestamp, agent_id,
			event_type, event_source, request, policy_result, identity_result, metadata,
			receipt_hash, previous_receipt_hash, tenant_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		r.ReceiptID, r.TraceID, r.CorrelationID, r.SpanID, r.ParentSpanID, r.Timestamp, r.AgentID,
		string(r.EventType), sourceJSON, requestJSON, policyJSON, identityJSON, r.Metadata,
		r.ReceiptHash, r.PreviousReceiptHash, r.TenantID)
	if err != nil {
		return pwerrors.FailedToWithDetails("insert receipt", "receiptstore", r.ReceiptID, err)
	}
	return nil
}

func (s *SQLStore) upsertTrace(ctx context.Context, r receipt.Receipt, developerID string) error {
	existing, err := s.GetTrace(ctx, r.TraceID)
	if errors.Is(err, ErrNotFound) {
		fresh := receipt.NewTrace(r, developerID)
		return s.insertTrace(ctx, fresh)
	}
	if err != nil {
		return err
	}
	updated := existing.ApplyReceipt(r)
	return s.updateTrace(ctx, updated)
}

func (s *SQLStore) insertTrace(ctx context.Context, t receipt.Trace) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO traces (
			trace_id, correlation_id, started_at, last_event_at, status, event_count, policy_deny_count,
			tenant_id, min_trust_score, avg_trust_score, trust_violations,
			initiating_agent_id, initiating_developer_id, initiating_enterprise_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		t.TraceID, t.CorrelationID, t.StartedAt, t.LastEventAt, string(t.Status), t.EventCount, t.PolicyDenyCount,
		t.TenantID, t.MinTrustScore, t.AvgTrustScore, t.TrustViolations,
		t.InitiatingAgentID, t.InitiatingDeveloperID, t.InitiatingEnterpriseID)
	if err != nil {
		return pwerrors.FailedToWithDetails("insert trace", "receiptstore", t.TraceID, err)
	}
	return nil
}

func (s *SQLStore) updateTrace(ctx context.Context, t receipt.Trace) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE traces SET last_event_at = $2, status = $3, event_count = $4, policy_deny_count = $5,
			min_trust_score = $6, avg_trust_score = $7, trust_violations = $8
		WHERE trace_id = $1`,
		t.TraceID, t.LastEventAt, string(t.Status), t.EventCount, t.PolicyDenyCount,
		t.MinTrustScore, t.AvgTrustScore, t.TrustViolations)
	if err != nil {
		return pwerrors.FailedToWithDetails("update trace", "receiptstore", t.TraceID, err)
	}
	return nil
}

func (s *SQLStore) insertTrustEvent(ctx context.Context, r receipt.Receipt, eval *receipt.TrustEvaluation) error {
	eventType := receipt.ClassifyTrustEvent(*eval)
	threshold := ""
	if r.TrustSnapshot != nil {
		threshold = r.TrustSnapshot.Composite
	}
	score := ""
	if eval.Score != nil {
		score = *eval.Score
	}
	var actionTaken *string
	if r.TrustSnapshot != nil {
		actionTaken = r.TrustSnapshot.ThresholdAction
	}
	details, err := json.Marshal(eval)
	if err != nil {
		return pwerrors.FailedTo("marshal trust event details", err)
	}
	ev := receipt.NewTrustEvent(r.TraceID, r.AgentID, eventType, nil, score, threshold, eval.Passed, actionTaken, details)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trust_events (
			event_id, trace_id, agent_id, event_type, timestamp, previous_score, new_score,
			threshold, passed, action_taken, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ev.EventID, ev.TraceID, ev.AgentID, string(ev.EventType), ev.Timestamp, ev.PreviousScore, ev.NewScore,
		ev.Threshold, ev.Passed, ev.ActionTaken, ev.Details)
	if err != nil {
		return pwerrors.FailedToWithDetails("insert trust event", "receiptstore", ev.EventID, err)
	}
	return nil
}

func (s *SQLStore) WriteExternalEvent(ctx context.Context, in WriteExternalEventInput) (receipt.ExternalEvent, error) {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	e := receipt.NewExternalEvent(in.TraceID, in.CorrelationID, in.EventType, in.SourceSystem, in.SourceID, ts, in.Actor, in.Payload, in.Metadata)

	var actorJSON []byte
	if e.Actor != nil {
		var err error
		actorJSON, err = json.Marshal(e.Actor)
		if err != nil {
			return receipt.ExternalEvent{}, pwerrors.FailedTo("marshal actor", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO external_events (
			event_id, trace_id, correlation_id, event_type, source_system, source_id, timestamp,
			actor, payload, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.EventID, e.TraceID, e.CorrelationID, e.EventType, e.SourceSystem, e.SourceID, e.Timestamp,
		actorJSON, e.Payload, e.Metadata, e.CreatedAt)
	if err != nil {
		return receipt.ExternalEvent{}, pwerrors.FailedToWithDetails("insert external event", "receiptstore", e.EventID, err)
	}
	return e, nil
}

func (s *SQLStore) ListTraces(ctx context.Context, filter TraceFilter) ([]receipt.Trace, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT trace_id, correlation_id, started_at, last_event_at, status, event_count, policy_deny_count,
		tenant_id, min_trust_score, avg_trust_score, trust_violations,
		initiating_agent_id, initiating_developer_id, initiating_enterprise_id
		FROM traces WHERE ($1 = '' OR tenant_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY last_event_at DESC LIMIT $3`
	var rows []traceRow
	if err := s.db.SelectContext(ctx, &rows, query, filter.TenantID, string(filter.Status), limit); err != nil {
		return nil, pwerrors.FailedTo("list traces", err)
	}
	out := make([]receipt.Trace, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *SQLStore) GetTrace(ctx context.Context, traceID string) (receipt.Trace, error) {
	var row traceRow
	err := s.db.GetContext(ctx, &row, `
		SELECT trace_id, correlation_id, started_at, last_event_at, status, event_count, policy_deny_count,
			tenant_id, min_trust_score, avg_trust_score, trust_violations,
			initiating_agent_id, initiating_developer_id, initiating_enterprise_id
		FROM traces WHERE trace_id = $1`, traceID)
	if errors.Is(err, sql.ErrNoRows) {
		return receipt.Trace{}, ErrNotFound
	}
	if err != nil {
		return receipt.Trace{}, pwerrors.FailedToWithDetails("get trace", "receiptstore", traceID, err)
	}
	return row.toDomain(), nil
}

type traceRow struct {
	TraceID                string         `db:"trace_id"`
	CorrelationID          sql.NullString `db:"correlation_id"`
	StartedAt              time.Time      `db:"started_at"`
	LastEventAt            time.Time      `db:"last_event_at"`
	Status                 string         `db:"status"`
	EventCount             int            `db:"event_count"`
	PolicyDenyCount        int            `db:"policy_deny_count"`
	TenantID               sql.NullString `db:"tenant_id"`
	MinTrustScore          sql.NullFloat64 `db:"min_trust_score"`
	AvgTrustScore          sql.NullFloat64 `db:"avg_trust_score"`
	TrustViolations        int            `db:"trust_violations"`
	InitiatingAgentID      string         `db:"initiating_agent_id"`
	InitiatingDeveloperID  string         `db:"initiating_developer_id"`
	InitiatingEnterpriseID sql.NullString `db:"initiating_enterprise_id"`
}

func (r traceRow) toDomain() receipt.Trace {
	t := receipt.Trace{
		TraceID:               r.TraceID,
		StartedAt:             r.StartedAt,
		LastEventAt:           r.LastEventAt,
		Status:                receipt.TraceStatus(r.Status),
		EventCount:            r.EventCount,
		PolicyDenyCount:       r.PolicyDenyCount,
		TrustViolations:       r.TrustViolations,
		InitiatingAgentID:     r.InitiatingAgentID,
		InitiatingDeveloperID: r.InitiatingDeveloperID,
	}
	if r.CorrelationID.Valid {
		v := r.CorrelationID.String
		t.CorrelationID = &v
	}
	if r.TenantID.Valid {
		v := r.TenantID.String
		t.TenantID = &v
	}
	if r.MinTrustScore.Valid {
		v := r.MinTrustScore.Float64
		t.MinTrustScore = &v
	}
	if r.AvgTrustScore.Valid {
		v := r.AvgTrustScore.Float64
		t.AvgTrustScore = &v
	}
	if r.InitiatingEnterpriseID.Valid {
		v := r.InitiatingEnterpriseID.String
		t.InitiatingEnterpriseID = &v
	}
	return t
}

func (s *SQLStore) LookupByCorrelation(ctx context.Context, correlationID string) ([]receipt.Trace, error) {
	var rows []traceRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT trace_id, correlation_id, started_at, last_event_at, status, event_count, policy_deny_count,
			tenant_id, min_trust_score, avg_trust_score, trust_violations,
			initiating_agent_id, initiating_developer_id, initiating_enterprise_id
		FROM traces WHERE correlation_id = $1 ORDER BY started_at`, correlationID)
	if err != nil {
		return nil, pwerrors.FailedTo("lookup traces by correlation id", err)
	}
	out := make([]receipt.Trace, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *SQLStore) receiptsForTrace(ctx context.Context, traceID string) ([]receipt.Receipt, error) {
	var rows []receiptRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT receipt_id, trace_id, correlation_id, span_id, parent_span_id, timestamp, agent_id,
			event_type, event_source, request, policy_result, identity_result, metadata,
			receipt_hash, previous_receipt_hash, tenant_id
		FROM receipts WHERE trace_id = $1 ORDER BY timestamp`, traceID)
	if err != nil {
		return nil, pwerrors.FailedTo("list receipts for trace", err)
	}
	out := make([]receipt.Receipt, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

type receiptRow struct {
	ReceiptID           string          `db:"receipt_id"`
	TraceID             string          `db:"trace_id"`
	CorrelationID       sql.NullString  `db:"correlation_id"`
	SpanID              string          `db:"span_id"`
	ParentSpanID        sql.NullString  `db:"parent_span_id"`
	Timestamp           time.Time       `db:"timestamp"`
	AgentID             string          `db:"agent_id"`
	EventType           string          `db:"event_type"`
	EventSource         json.RawMessage `db:"event_source"`
	Request             json.RawMessage `db:"request"`
	PolicyResult        json.RawMessage `db:"policy_result"`
	IdentityResult      json.RawMessage `db:"identity_result"`
	Metadata            json.RawMessage `db:"metadata"`
	ReceiptHash         string          `db:"receipt_hash"`
	PreviousReceiptHash sql.NullString  `db:"previous_receipt_hash"`
	TenantID            sql.NullString  `db:"tenant_id"`
}

func (r receiptRow) toDomain() (receipt.Receipt, error) {
	rec := receipt.Receipt{
		ReceiptID:   r.ReceiptID,
		TraceID:     r.TraceID,
		SpanID:      r.SpanID,
		Timestamp:   r.Timestamp,
		AgentID:     r.AgentID,
		EventType:   receipt.EventType(r.EventType),
		Metadata:    r.Metadata,
		ReceiptHash: r.ReceiptHash,
	}
	if err := json.Unmarshal(r.EventSource, &rec.EventSource); err != nil {
		return receipt.Receipt{}, pwerrors.FailedTo("unmarshal event source", err)
	}
	if err := json.Unmarshal(r.Request, &rec.Request); err != nil {
		return receipt.Receipt{}, pwerrors.FailedTo("unmarshal request info", err)
	}
	if err := json.Unmarshal(r.PolicyResult, &rec.PolicyResult); err != nil {
		return receipt.Receipt{}, pwerrors.FailedTo("unmarshal policy result", err)
	}
	if err := json.Unmarshal(r.IdentityResult, &rec.IdentityResult); err != nil {
		return receipt.Receipt{}, pwerrors.FailedTo("unmarshal identity result", err)
	}
	if r.CorrelationID.Valid {
		v := r.CorrelationID.String
		rec.CorrelationID = &v
	}
	if r.ParentSpanID.Valid {
		v := r.ParentSpanID.String
		rec.ParentSpanID = &v
	}
	if r.PreviousReceiptHash.Valid {
		v := r.PreviousReceiptHash.String
		rec.PreviousReceiptHash = &v
	}
	if r.TenantID.Valid {
		v := r.TenantID.String
		rec.TenantID = &v
	}
	return rec, nil
}

func (s *SQLStore) externalEventsForTrace(ctx context.Context, traceID string) ([]receipt.ExternalEvent, error) {
	var rows []externalEventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT event_id, trace_id, correlation_id, event_type, source_system, source_id, timestamp,
			actor, payload, metadata, created_at
		FROM external_events WHERE trace_id = $1 ORDER BY timestamp`, traceID)
	if err != nil {
		return nil, pwerrors.FailedTo("list external events for trace", err)
	}
	out := make([]receipt.ExternalEvent, 0, len(rows))
	for _, r := range rows {
		ev, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

type externalEventRow struct {
	EventID       string          `db:"event_id"`
	TraceID       string          `db:"trace_id"`
	CorrelationID sql.NullString  `db:"correlation_id"`
	EventType     string          `db:"event_type"`
	SourceSystem  string          `db:"source_system"`
	SourceID      string          `db:"source_id"`
	Timestamp     time.Time       `db:"timestamp"`
	Actor         json.RawMessage `db:"actor"`
	Payload       json.RawMessage `db:"payload"`
	Metadata      json.RawMessage `db:"metadata"`
	CreatedAt     time.Time       `db:"created_at"`
}

func (r externalEventRow) toDomain() (receipt.ExternalEvent, error) {
	ev := receipt.ExternalEvent{
		EventID:      r.EventID,
		TraceID:      r.TraceID,
		EventType:    r.EventType,
		SourceSystem: r.SourceSystem,
		SourceID:     r.SourceID,
		Timestamp:    r.Timestamp,
		Payload:      r.Payload,
		Metadata:     r.Metadata,
		CreatedAt:    r.CreatedAt,
	}
	if r.CorrelationID.Valid {
		v := r.CorrelationID.String
		ev.CorrelationID = &v
	}
	if len(r.Actor) > 0 {
		var actor receipt.Actor
		if err := json.Unmarshal(r.Actor, &actor); err != nil {
			return receipt.ExternalEvent{}, pwerrors.FailedTo("unmarshal actor", err)
		}
		ev.Actor = &actor
	}
	return ev, nil
}

func receiptSummary(r receipt.Receipt) string {
	outcome := "Denied"
	if r.PolicyResult.Allowed {
		outcome = "Allowed"
	}
	return r.Request.Method + " " + r.Request.Path + " - " + outcome
}

func (s *SQLStore) GetTimeline(ctx context.Context, traceID string) (Timeline, error) {
	receipts, err := s.receiptsForTrace(ctx, traceID)
	if err != nil {
		return Timeline{}, err
	}
	externals, err := s.externalEventsForTrace(ctx, traceID)
	if err != nil {
		return Timeline{}, err
	}

	entries := make([]TimelineEntry, 0, len(receipts)+len(externals))
	for i := range receipts {
		r := receipts[i]
		entries = append(entries, TimelineEntry{
			Timestamp: r.Timestamp,
			Kind:      "receipt",
			Summary:   receiptSummary(r),
			Receipt:   &r,
		})
	}
	for i := range externals {
		e := externals[i]
		entries = append(entries, TimelineEntry{
			Timestamp: e.Timestamp,
			Kind:      "external_event",
			Summary:   e.Summary(),
			External:  &e,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp.Before(entries[j].Timestamp) })

	return Timeline{TraceID: traceID, Entries: entries}, nil
}

func (s *SQLStore) BuildDecisionTree(ctx context.Context, traceID string) (DecisionTree, error) {
	receipts, err := s.receiptsForTrace(ctx, traceID)
	if err != nil {
		return DecisionTree{}, err
	}

	tree := DecisionTree{TraceID: traceID}
	for i, r := range receipts {
		identityID := r.ReceiptID + ":identity"
		policyID := r.ReceiptID + ":policy"
		actionID := r.ReceiptID + ":action"

		identityOutcome := "valid"
		if !r.IdentityResult.Valid {
			identityOutcome = "invalid"
		}
		tree.Nodes = append(tree.Nodes, DecisionNode{ID: identityID, Kind: "identity", Label: "identity check " + r.AgentID, Outcome: identityOutcome})

		policyOutcome := "denied"
		if r.PolicyResult.Allowed {
			policyOutcome = "allowed"
		}
		tree.Nodes = append(tree.Nodes, DecisionNode{ID: policyID, Kind: "policy", Label: "policy evaluation", Outcome: policyOutcome})
		tree.Edges = append(tree.Edges, DecisionEdge{From: identityID, To: policyID, Label: identityOutcome})

		actionOutcome := "forwarded"
		if !r.PolicyResult.Allowed {
			actionOutcome = "blocked"
		}
		tree.Nodes = append(tree.Nodes, DecisionNode{ID: actionID, Kind: "action", Label: "request " + r.Request.Method + " " + r.Request.Path, Outcome: actionOutcome})
		tree.Edges = append(tree.Edges, DecisionEdge{From: policyID, To: actionID, Label: policyOutcome})

		if i > 0 {
			prev := receipts[i-1]
			tree.Edges = append(tree.Edges, DecisionEdge{From: prev.ReceiptID + ":action", To: identityID, Label: "next"})
		}
	}
	return tree, nil
}

func (s *SQLStore) ListTrustEvents(ctx context.Context, traceID string) ([]receipt.TrustEvent, error) {
	var rows []trustEventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT event_id, trace_id, agent_id, event_type, timestamp, previous_score, new_score,
			threshold, passed, action_taken, details
		FROM trust_events WHERE trace_id = $1 ORDER BY timestamp`, traceID)
	if err != nil {
		return nil, pwerrors.FailedTo("list trust events", err)
	}
	out := make([]receipt.TrustEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

type trustEventRow struct {
	EventID       string          `db:"event_id"`
	TraceID       string          `db:"trace_id"`
	AgentID       string          `db:"agent_id"`
	EventType     string          `db:"event_type"`
	Timestamp     time.Time       `db:"timestamp"`
	PreviousScore sql.NullString  `db:"previous_score"`
	NewScore      string          `db:"new_score"`
	Threshold     string          `db:"threshold"`
	Passed        bool            `db:"passed"`
	ActionTaken   sql.NullString  `db:"action_taken"`
	Details       json.RawMessage `db:"details"`
}

func (r trustEventRow) toDomain() receipt.TrustEvent {
	ev := receipt.TrustEvent{
		EventID:   r.EventID,
		TraceID:   r.TraceID,
		AgentID:   r.AgentID,
		EventType: receipt.TrustEventType(r.EventType),
		Timestamp: r.Timestamp,
		NewScore:  r.NewScore,
		Threshold: r.Threshold,
		Passed:    r.Passed,
		Details:   r.Details,
	}
	if r.PreviousScore.Valid {
		v := r.PreviousScore.String
		ev.PreviousScore = &v
	}
	if r.ActionTaken.Valid {
		v := r.ActionTaken.String
		ev.ActionTaken = &v
	}
	return ev
}
