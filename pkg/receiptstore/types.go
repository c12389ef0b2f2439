// Package receiptstore implements the receipt store: the only
// component permitted to write receipts, traces, external events, and
// trust events, and the read surface that reconstructs a trace's
// timeline and decision tree for audit.
package receiptstore

import (
	"encoding/json"
	"time"

	"github.com/pathwell/agentcore/pkg/receipt"
)

// WriteReceiptInput is the gateway's fire-and-forget write request.
type WriteReceiptInput struct {
	TraceID             string                  `json:"trace_id" validate:"required"`
	CorrelationID       *string                 `json:"correlation_id"`
	SpanID              string                  `json:"span_id" validate:"required"`
	ParentSpanID        *string                 `json:"parent_span_id"`
	AgentID             string                  `json:"agent_id" validate:"required"`
	DeveloperID         string                  `json:"developer_id"`
	EventType           receipt.EventType       `json:"event_type" validate:"required"`
	EventSource         receipt.EventSource     `json:"event_source"`
	Request             receipt.RequestInfo     `json:"request"`
	PolicyResult        receipt.PolicyResult    `json:"policy_result"`
	IdentityResult      receipt.IdentityResult  `json:"identity_result"`
	Metadata            json.RawMessage         `json:"metadata"`
	TenantID            *string                 `json:"tenant_id"`
	TrustSnapshot       *receipt.TrustSnapshot  `json:"trust_snapshot"`
	AttributionSnapshot *receipt.AttributionSnapshot `json:"attribution_snapshot"`
}

// WriteExternalEventInput is the write request for an externally
// observed event (e.g. a SaaS webhook fired by the same agent).
type WriteExternalEventInput struct {
	TraceID       string          `json:"trace_id" validate:"required"`
	CorrelationID *string         `json:"correlation_id"`
	EventType     string          `json:"event_type" validate:"required"`
	SourceSystem  string          `json:"source_system" validate:"required"`
	SourceID      string          `json:"source_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Actor         *receipt.Actor  `json:"actor"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      json.RawMessage `json:"metadata"`
}

// TimelineEntry is one merged row in a trace's reconstructed timeline:
// either a receipt or an external event, ordered by timestamp.
type TimelineEntry struct {
	Timestamp time.Time        `json:"timestamp"`
	Kind      string           `json:"kind"` // "receipt" or "external_event"
	Summary   string           `json:"summary"`
	Receipt   *receipt.Receipt `json:"receipt,omitempty"`
	External  *receipt.ExternalEvent `json:"external_event,omitempty"`
}

// Timeline is the full reconstructed timeline for one trace.
type Timeline struct {
	TraceID string          `json:"trace_id"`
	Entries []TimelineEntry `json:"entries"`
}

// DecisionNode is one node in a trace's decision tree: an identity
// check, a policy evaluation, or the resulting allow/deny action.
type DecisionNode struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"` // "identity", "policy", "action"
	Label   string `json:"label"`
	Outcome string `json:"outcome"`
}

// DecisionEdge links two nodes with a labeled relationship.
type DecisionEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label"`
}

// DecisionTree is the reconstructed identity -> policy -> action graph
// for one trace, built from its receipts in order.
type DecisionTree struct {
	TraceID string         `json:"trace_id"`
	Nodes   []DecisionNode `json:"nodes"`
	Edges   []DecisionEdge `json:"edges"`
}

// TraceFilter narrows ListTraces; zero values are unfiltered.
type TraceFilter struct {
	TenantID string
	Status   receipt.TraceStatus
	Limit    int
}
