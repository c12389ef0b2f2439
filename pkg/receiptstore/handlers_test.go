package receiptstore_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pathwell/agentcore/pkg/receipt"
	"github.com/pathwell/agentcore/pkg/receiptstore"
)

func TestReceiptStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Receipt Store Handlers Suite")
}

// fakeStore is an in-memory receiptstore.Store used only by these specs.
type fakeStore struct {
	receipts map[string][]receipt.Receipt
	traces   map[string]receipt.Trace
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		receipts: map[string][]receipt.Receipt{},
		traces:   map[string]receipt.Trace{},
	}
}

func (f *fakeStore) WriteReceipt(_ context.Context, in receiptstore.WriteReceiptInput) (receipt.Receipt, error) {
	existing := f.receipts[in.TraceID]
	var previous *string
	if len(existing) > 0 {
		h := existing[len(existing)-1].ReceiptHash
		previous = &h
	}
	r, err := receipt.New(receipt.NewInput{
		TraceID:             in.TraceID,
		SpanID:              in.SpanID,
		AgentID:             in.AgentID,
		EventType:           in.EventType,
		EventSource:         in.EventSource,
		Request:             in.Request,
		PolicyResult:        in.PolicyResult,
		IdentityResult:      in.IdentityResult,
		Metadata:            in.Metadata,
		PreviousReceiptHash: previous,
		TenantID:            in.TenantID,
		TrustSnapshot:       in.TrustSnapshot,
		AttributionSnapshot: in.AttributionSnapshot,
	})
	if err != nil {
		return receipt.Receipt{}, err
	}
	f.receipts[in.TraceID] = append(f.receipts[in.TraceID], r)

	trace, ok := f.traces[in.TraceID]
	if !ok {
		trace = receipt.NewTrace(r, in.DeveloperID)
	} else {
		trace = trace.ApplyReceipt(r)
	}
	f.traces[in.TraceID] = trace

	return r, nil
}

func (f *fakeStore) WriteExternalEvent(_ context.Context, in receiptstore.WriteExternalEventInput) (receipt.ExternalEvent, error) {
	return receipt.NewExternalEvent(in.TraceID, in.CorrelationID, in.EventType, in.SourceSystem, in.SourceID, in.Timestamp, in.Actor, in.Payload, in.Metadata), nil
}

func (f *fakeStore) ListTraces(_ context.Context, _ receiptstore.TraceFilter) ([]receipt.Trace, error) {
	out := make([]receipt.Trace, 0, len(f.traces))
	for _, t := range f.traces {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) GetTrace(_ context.Context, traceID string) (receipt.Trace, error) {
	t, ok := f.traces[traceID]
	if !ok {
		return receipt.Trace{}, receiptstore.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) GetTimeline(_ context.Context, traceID string) (receiptstore.Timeline, error) {
	entries := make([]receiptstore.TimelineEntry, 0)
	for _, r := range f.receipts[traceID] {
		r := r
		entries = append(entries, receiptstore.TimelineEntry{Timestamp: r.Timestamp, Kind: "receipt", Summary: string(r.EventType), Receipt: &r})
	}
	return receiptstore.Timeline{TraceID: traceID, Entries: entries}, nil
}

func (f *fakeStore) BuildDecisionTree(_ context.Context, traceID string) (receiptstore.DecisionTree, error) {
	return receiptstore.DecisionTree{TraceID: traceID}, nil
}

func (f *fakeStore) LookupByCorrelation(_ context.Context, correlationID string) ([]receipt.Trace, error) {
	out := make([]receipt.Trace, 0)
	for _, t := range f.traces {
		if t.CorrelationID != nil && *t.CorrelationID == correlationID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) ListTrustEvents(_ context.Context, _ string) ([]receipt.TrustEvent, error) {
	return nil, nil
}

var _ = Describe("Receipt Store HTTP handlers", func() {
	var (
		store *fakeStore
		srv   *httptest.Server
	)

	BeforeEach(func() {
		store = newFakeStore()
		h := receiptstore.NewHandlers(store, zap.NewNop())
		reg := prometheus.NewRegistry()
		router := receiptstore.NewRouter(h, zap.NewNop(), reg)
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

	validReceipt := func(traceID string) receiptstore.WriteReceiptInput {
		return receiptstore.WriteReceiptInput{
			TraceID:     traceID,
			SpanID:      "span-1",
			AgentID:     "agent-1",
			DeveloperID: "dev-1",
			EventType:   receipt.EventGatewayRequest,
			Request:     receipt.RequestInfo{Method: "GET", Path: "/things"},
		}
	}

	Describe("writing receipts", func() {
		It("returns 201 and a hash-chained receipt", func() {
			resp := postJSON("/v1/receipts", validReceipt("trace-1"))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var first receipt.Receipt
			Expect(json.NewDecoder(resp.Body).Decode(&first)).To(Succeed())
			Expect(first.PreviousReceiptHash).To(BeNil())

			resp2 := postJSON("/v1/receipts", validReceipt("trace-1"))
			var second receipt.Receipt
			Expect(json.NewDecoder(resp2.Body).Decode(&second)).To(Succeed())
			Expect(second.PreviousReceiptHash).ToNot(BeNil())
			Expect(*second.PreviousReceiptHash).To(Equal(first.ReceiptHash))
		})

		It("rejects a receipt missing required fields with 400", func() {
			resp := postJSON("/v1/receipts", receiptstore.WriteReceiptInput{})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("reading a trace", func() {
		It("returns 404 for a trace that was never written", func() {
			resp, err := http.Get(srv.URL + "/v1/traces/never-written")
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("returns the aggregate after a receipt is written", func() {
			postJSON("/v1/receipts", validReceipt("trace-2"))
			resp, err := http.Get(srv.URL + "/v1/traces/trace-2")
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var trace receipt.Trace
			Expect(json.NewDecoder(resp.Body).Decode(&trace)).To(Succeed())
			Expect(trace.EventCount).To(Equal(1))
		})
	})

	Describe("timeline reconstruction", func() {
		It("returns a timeline entry per written receipt", func() {
			postJSON("/v1/receipts", validReceipt("trace-3"))
			postJSON("/v1/receipts", validReceipt("trace-3"))

			resp, err := http.Get(srv.URL + "/v1/traces/trace-3/timeline")
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var timeline receiptstore.Timeline
			Expect(json.NewDecoder(resp.Body).Decode(&timeline)).To(Succeed())
			Expect(timeline.Entries).To(HaveLen(2))
		})
	})
})
