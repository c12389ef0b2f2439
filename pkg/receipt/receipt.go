// Package receipt implements the hash-chained, tamper-evident audit
// record at the center of the receipt store: receipts, the traces
// they roll up into, external events, and trust events. The hash of a
// receipt is computed over a canonically field-ordered JSON encoding
// so that any two implementations hashing the same logical receipt
// produce the same digest.
package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the kinds of event a receipt can record.
type EventType string

const (
	EventGatewayRequest     EventType = "gateway_request"
	EventPolicyEvaluation   EventType = "policy_evaluation"
	EventIdentityValidation EventType = "identity_validation"
	EventExternalEvent      EventType = "external_event"
	EventHumanAction        EventType = "human_action"
)

// EventSource identifies the producing system, service, and version.
type EventSource struct {
	System  string `json:"system"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// DefaultEventSource is used when a caller does not specify one.
func DefaultEventSource(service string) EventSource {
	return EventSource{System: "pathwell", Service: service, Version: "1.0.0"}
}

// RequestInfo captures the inbound request a receipt is attesting to.
type RequestInfo struct {
	Method   string            `json:"method"`
	Path     string            `json:"path"`
	Headers  map[string]string `json:"headers"`
	BodyHash *string           `json:"body_hash"`
}

// TrustEvaluation is the trust-scoring adjunct a policy decision may
// carry; its presence triggers the trust-event side effect on write.
type TrustEvaluation struct {
	Passed   bool     `json:"passed"`
	Score    *string  `json:"score"`
	Warnings []string `json:"warnings"`
}

// PolicyResult captures the policy engine's verdict for this event.
type PolicyResult struct {
	Allowed          bool             `json:"allowed"`
	PolicyVersion    string           `json:"policy_version"`
	EvaluationTimeMs int64            `json:"evaluation_time_ms"`
	Reason           *string          `json:"reason"`
	TrustEvaluation  *TrustEvaluation `json:"trust_evaluation"`
}

// IdentityResult captures the identity registry's verdict for this
// event.
type IdentityResult struct {
	Valid        bool    `json:"valid"`
	DeveloperID  string  `json:"developer_id"`
	EnterpriseID *string `json:"enterprise_id"`
}

// TrustSnapshot is the v2 adjunct recording the trust state observed
// at receipt time.
type TrustSnapshot struct {
	Composite        string  `json:"composite"`
	IsAboveThreshold bool    `json:"is_above_threshold"`
	ThresholdAction  *string `json:"threshold_action"`
}

// AttributionSnapshot is the v2 adjunct recording the full credential
// chain behind the request.
type AttributionSnapshot struct {
	AgentID      string  `json:"agent_id"`
	DeveloperID  string  `json:"developer_id"`
	EnterpriseID *string `json:"enterprise_id"`
}

// Receipt is one immutable, hash-chained audit record.
type Receipt struct {
	ReceiptID            string
	TraceID              string
	CorrelationID        *string
	SpanID               string
	ParentSpanID         *string
	Timestamp            time.Time
	AgentID              string
	EventType            EventType
	EventSource          EventSource
	Request              RequestInfo
	PolicyResult         PolicyResult
	IdentityResult       IdentityResult
	Metadata             json.RawMessage
	ReceiptHash          string
	PreviousReceiptHash  *string
	TenantID             *string
	TrustSnapshot        *TrustSnapshot
	AttributionSnapshot  *AttributionSnapshot
}

// IsV2 reports whether r carries any of the v2 adjunct fields.
func (r Receipt) IsV2() bool {
	return r.TenantID != nil || r.TrustSnapshot != nil || r.AttributionSnapshot != nil
}

// canonicalV1 mirrors the normative field order for the hash payload.
// Field order here IS the contract: encoding/json preserves struct
// declaration order, and every field lacks omitempty so that an unset
// optional renders as JSON null rather than disappearing.
type canonicalV1 struct {
	ReceiptID           string          `json:"receipt_id"`
	TraceID             string          `json:"trace_id"`
	CorrelationID       *string         `json:"correlation_id"`
	SpanID              string          `json:"span_id"`
	ParentSpanID        *string         `json:"parent_span_id"`
	Timestamp           string          `json:"timestamp"`
	AgentID             string          `json:"agent_id"`
	EventType           EventType       `json:"event_type"`
	EventSource         EventSource     `json:"event_source"`
	Request             RequestInfo     `json:"request"`
	PolicyResult        PolicyResult    `json:"policy_result"`
	IdentityResult      IdentityResult  `json:"identity_result"`
	Metadata            json.RawMessage `json:"metadata"`
	PreviousReceiptHash *string         `json:"previous_receipt_hash"`
}

type canonicalV2 struct {
	canonicalV1
	TenantID            *string              `json:"tenant_id"`
	TrustSnapshot        *TrustSnapshot       `json:"trust_snapshot"`
	AttributionSnapshot  *AttributionSnapshot `json:"attribution_snapshot"`
}

// CanonicalJSON renders r, minus its own receipt_hash, in the
// normative field order used for hashing.
func (r Receipt) CanonicalJSON() ([]byte, error) {
	v1 := canonicalV1{
		ReceiptID:           r.ReceiptID,
		TraceID:             r.TraceID,
		CorrelationID:       r.CorrelationID,
		SpanID:              r.SpanID,
		ParentSpanID:        r.ParentSpanID,
		Timestamp:           r.Timestamp.UTC().Format(time.RFC3339Nano),
		AgentID:             r.AgentID,
		EventType:           r.EventType,
		EventSource:         r.EventSource,
		Request:             r.Request,
		PolicyResult:        r.PolicyResult,
		IdentityResult:      r.IdentityResult,
		Metadata:            r.Metadata,
		PreviousReceiptHash: r.PreviousReceiptHash,
	}
	if !r.IsV2() {
		return json.Marshal(v1)
	}
	return json.Marshal(canonicalV2{
		canonicalV1:         v1,
		TenantID:            r.TenantID,
		TrustSnapshot:       r.TrustSnapshot,
		AttributionSnapshot: r.AttributionSnapshot,
	})
}

// ComputeHash returns the hex SHA-256 digest of r's canonical JSON.
func (r Receipt) ComputeHash() (string, error) {
	b, err := r.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyHash recomputes r's hash and reports whether it matches the
// stored ReceiptHash.
func (r Receipt) VerifyHash() (bool, error) {
	computed, err := r.ComputeHash()
	if err != nil {
		return false, err
	}
	return computed == r.ReceiptHash, nil
}

// VerifyChain reports whether r correctly links to previous: true only
// when r's previous hash equals previous's receipt hash. A receipt with
// no previous hash never verifies against a predecessor.
func (r Receipt) VerifyChain(previous Receipt) bool {
	if r.PreviousReceiptHash == nil {
		return false
	}
	return *r.PreviousReceiptHash == previous.ReceiptHash
}

// NewInput carries everything the caller supplies; ReceiptID,
// Timestamp, and ReceiptHash are computed by New.
type NewInput struct {
	TraceID              string
	CorrelationID        *string
	SpanID               string
	ParentSpanID         *string
	AgentID              string
	EventType            EventType
	EventSource          EventSource
	Request              RequestInfo
	PolicyResult         PolicyResult
	IdentityResult       IdentityResult
	Metadata             json.RawMessage
	PreviousReceiptHash  *string
	TenantID             *string
	TrustSnapshot        *TrustSnapshot
	AttributionSnapshot  *AttributionSnapshot
}

// New builds and hashes a fresh Receipt.
func New(in NewInput) (Receipt, error) {
	r := Receipt{
		ReceiptID:           uuid.NewString(),
		TraceID:             in.TraceID,
		CorrelationID:       in.CorrelationID,
		SpanID:              in.SpanID,
		ParentSpanID:        in.ParentSpanID,
		Timestamp:           time.Now().UTC(),
		AgentID:             in.AgentID,
		EventType:           in.EventType,
		EventSource:         in.EventSource,
		Request:             in.Request,
		PolicyResult:        in.PolicyResult,
		IdentityResult:      in.IdentityResult,
		Metadata:            in.Metadata,
		PreviousReceiptHash: in.PreviousReceiptHash,
		TenantID:            in.TenantID,
		TrustSnapshot:       in.TrustSnapshot,
		AttributionSnapshot: in.AttributionSnapshot,
	}
	hash, err := r.ComputeHash()
	if err != nil {
		return Receipt{}, err
	}
	r.ReceiptHash = hash
	return r, nil
}

// TrustEventType classifies the side-effect trust event a policy
// decision's trust evaluation produces.
type TrustEventType string

const (
	TrustEventScoreChecked       TrustEventType = "score_checked"
	TrustEventThresholdViolation TrustEventType = "threshold_violation"
	TrustEventWarning            TrustEventType = "trust_warning"
	TrustEventScoreUpdated       TrustEventType = "score_updated"
)

// ClassifyTrustEvent implements the v2 trust-event side-effect rule:
// threshold_violation when the evaluation failed, trust_warning when
// any warning code is a TRUST_-prefixed code, score_checked otherwise.
func ClassifyTrustEvent(eval TrustEvaluation) TrustEventType {
	if !eval.Passed {
		return TrustEventThresholdViolation
	}
	for _, w := range eval.Warnings {
		if strings.HasPrefix(w, "TRUST_") {
			return TrustEventWarning
		}
	}
	return TrustEventScoreChecked
}

// TraceStatus enumerates the lifecycle states of a Trace.
type TraceStatus string

const (
	TraceActive    TraceStatus = "active"
	TraceCompleted TraceStatus = "completed"
	TraceFailed    TraceStatus = "failed"
)

// Trace is the rolling aggregate of all receipts sharing a trace_id.
type Trace struct {
	TraceID                string
	CorrelationID          *string
	StartedAt              time.Time
	LastEventAt            time.Time
	Status                 TraceStatus
	EventCount             int
	PolicyDenyCount        int
	TenantID               *string
	MinTrustScore          *float64
	AvgTrustScore          *float64
	TrustViolations        int
	InitiatingAgentID      string
	InitiatingDeveloperID  string
	InitiatingEnterpriseID *string
}

// NewTrace opens a trace from its first receipt.
func NewTrace(r Receipt, developerID string) Trace {
	status := TraceActive
	if !r.IdentityResult.Valid || !r.PolicyResult.Allowed {
		status = TraceFailed
	}
	denyCount := 0
	if !r.PolicyResult.Allowed {
		denyCount = 1
	}
	t := Trace{
		TraceID:               r.TraceID,
		CorrelationID:         r.CorrelationID,
		StartedAt:             r.Timestamp,
		LastEventAt:           r.Timestamp,
		Status:                status,
		EventCount:            1,
		PolicyDenyCount:       denyCount,
		TenantID:              r.TenantID,
		InitiatingAgentID:     r.AgentID,
		InitiatingDeveloperID: developerID,
		InitiatingEnterpriseID: r.IdentityResult.EnterpriseID,
	}
	if eval := r.PolicyResult.TrustEvaluation; eval != nil {
		if score, ok := parseTrustScore(eval.Score); ok {
			t.MinTrustScore = &score
			t.AvgTrustScore = &score
		}
		if !eval.Passed {
			t.TrustViolations = 1
		}
	}
	return t
}

// ApplyReceipt folds a new receipt into an existing trace's
// aggregates: event_count increments, min_trust_score is monotonic
// non-increasing, avg_trust_score is the running mean over
// event_count, and trust_violations counts failed trust evaluations.
func (t Trace) ApplyReceipt(r Receipt) Trace {
	t.LastEventAt = r.Timestamp
	t.EventCount++
	if !r.PolicyResult.Allowed {
		t.PolicyDenyCount++
	}

	if eval := r.PolicyResult.TrustEvaluation; eval != nil {
		score, ok := parseTrustScore(eval.Score)
		if ok {
			if t.MinTrustScore == nil || score < *t.MinTrustScore {
				t.MinTrustScore = &score
			}
			priorCount := t.EventCount - 1
			avg := score
			if t.AvgTrustScore != nil {
				avg = runningMean(*t.AvgTrustScore, priorCount, score)
			}
			t.AvgTrustScore = &avg
		}
		if !eval.Passed {
			t.TrustViolations++
		}
	}

	return t
}

func runningMean(priorMean float64, priorCount int, next float64) float64 {
	if priorCount < 0 {
		priorCount = 0
	}
	return (priorMean*float64(priorCount) + next) / float64(priorCount+1)
}

func parseTrustScore(s *string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	var f float64
	if _, err := fmt.Sscan(*s, &f); err != nil {
		return 0, false
	}
	return f, true
}

// ActorType enumerates who performed an external action.
type ActorType string

const (
	ActorAgent  ActorType = "agent"
	ActorHuman  ActorType = "human"
	ActorSystem ActorType = "system"
)

// Actor identifies who performed an external event.
type Actor struct {
	Type        ActorType `json:"type"`
	ID          string    `json:"id"`
	DisplayName *string   `json:"display_name,omitempty"`
}

// ExternalEvent is an append-only record of activity observed outside
// the gateway's own request/response cycle (e.g. a SaaS webhook).
type ExternalEvent struct {
	EventID       string
	TraceID       string
	CorrelationID *string
	EventType     string
	SourceSystem  string
	SourceID      string
	Timestamp     time.Time
	Actor         *Actor
	Payload       json.RawMessage
	Metadata      json.RawMessage
	CreatedAt     time.Time
}

// NewExternalEvent stamps EventID and CreatedAt for a freshly received
// external event.
func NewExternalEvent(traceID string, correlationID *string, eventType, sourceSystem, sourceID string, timestamp time.Time, actor *Actor, payload, metadata json.RawMessage) ExternalEvent {
	return ExternalEvent{
		EventID:       uuid.NewString(),
		TraceID:       traceID,
		CorrelationID: correlationID,
		EventType:     eventType,
		SourceSystem:  sourceSystem,
		SourceID:      sourceID,
		Timestamp:     timestamp,
		Actor:         actor,
		Payload:       payload,
		Metadata:      metadata,
		CreatedAt:     time.Now().UTC(),
	}
}

// Summary renders the human-readable timeline summary for an external
// event: "<event_type> by <actor_display_name|actor_id|System>
// (<source_system>)".
func (e ExternalEvent) Summary() string {
	who := "System"
	if e.Actor != nil {
		if e.Actor.DisplayName != nil && *e.Actor.DisplayName != "" {
			who = *e.Actor.DisplayName
		} else if e.Actor.ID != "" {
			who = e.Actor.ID
		}
	}
	return e.EventType + " by " + who + " (" + e.SourceSystem + ")"
}

// TrustEvent is an append-only record of a trust-scoring decision.
type TrustEvent struct {
	EventID       string
	TraceID       string
	AgentID       string
	EventType     TrustEventType
	Timestamp     time.Time
	PreviousScore *string
	NewScore      string
	Threshold     string
	Passed        bool
	ActionTaken   *string
	Details       json.RawMessage
}

// NewTrustEvent stamps EventID and Timestamp for a freshly observed
// trust event.
func NewTrustEvent(traceID, agentID string, eventType TrustEventType, previousScore *string, newScore, threshold string, passed bool, actionTaken *string, details json.RawMessage) TrustEvent {
	return TrustEvent{
		EventID:       uuid.NewString(),
		TraceID:       traceID,
		AgentID:       agentID,
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
		PreviousScore: previousScore,
		NewScore:      newScore,
		Threshold:     threshold,
		Passed:        passed,
		ActionTaken:   actionTaken,
		Details:       details,
	}
}
