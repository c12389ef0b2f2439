package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	pwhttp "github.com/pathwell/agentcore/pkg/shared/http"
	"github.com/pathwell/agentcore/pkg/receipt"
)

// ReceiptClient is the gateway's dependency on the receipt store.
type ReceiptClient interface {
	WriteReceipt(ctx context.Context, in receiptWriteInput)
}

// receiptWriteInput mirrors receiptstore.WriteReceiptInput without
// importing that package, so the gateway's receipt emission stays
// decoupled from the receipt store's internal wiring.
type receiptWriteInput struct {
	TraceID        string                 `json:"trace_id"`
	CorrelationID  *string                `json:"correlation_id,omitempty"`
	SpanID         string                 `json:"span_id"`
	AgentID        string                 `json:"agent_id"`
	DeveloperID    string                 `json:"developer_id"`
	EventType      receipt.EventType      `json:"event_type"`
	EventSource    receipt.EventSource    `json:"event_source"`
	Request        receipt.RequestInfo    `json:"request"`
	PolicyResult   receipt.PolicyResult   `json:"policy_result"`
	IdentityResult receipt.IdentityResult `json:"identity_result"`
	Metadata       json.RawMessage        `json:"metadata,omitempty"`
}

// ReceiptStoreClient posts receipts to the receipt store over HTTP,
// fire-and-forget: the caller's response is never delayed by this
// call, and a failure is logged, not surfaced.
type ReceiptStoreClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewReceiptStoreClient builds a client pointed at the receipt store's
// baseURL.
func NewReceiptStoreClient(baseURL string, logger *zap.Logger) *ReceiptStoreClient {
	return &ReceiptStoreClient{
		baseURL: baseURL,
		client:  pwhttp.NewClientWithTimeout(5 * time.Second),
		logger:  logger,
	}
}

// WriteReceipt fires the write in its own goroutine with a bounded
// deadline so the gateway's caller never waits on it.
func (c *ReceiptStoreClient) WriteReceipt(ctx context.Context, in receiptWriteInput) {
	go func() {
		deadline, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		body, err := json.Marshal(in)
		if err != nil {
			c.logger.Warn("receipt marshal failed", zap.String("trace_id", in.TraceID), zap.Error(err))
			return
		}
		req, err := http.NewRequestWithContext(deadline, http.MethodPost, c.baseURL+"/v1/receipts", bytes.NewReader(body))
		if err != nil {
			c.logger.Warn("receipt request build failed", zap.String("trace_id", in.TraceID), zap.Error(err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			c.logger.Warn("receipt post failed", zap.String("trace_id", in.TraceID), zap.Error(err))
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.logger.Warn("receipt store rejected receipt", zap.String("trace_id", in.TraceID), zap.Int("status", resp.StatusCode))
		}
	}()
}
