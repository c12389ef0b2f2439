package receiptstore

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pathwell/agentcore/pkg/apierror"
	"github.com/pathwell/agentcore/pkg/receipt"
)

// Handlers implements the receipt store's HTTP surface: fire-and-forget
// receipt and external event writes, and the read surface that
// reconstructs a trace's timeline and decision tree.
type Handlers struct {
	store    Store
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandlers wires a Handlers against its dependencies.
func NewHandlers(store Store, logger *zap.Logger) *Handlers {
	return &Handlers{store: store, validate: validator.New(), logger: logger}
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
	default:
		h.logger.Error("receipt store error", zap.Error(err))
		apierror.WriteCode(w, apierror.DatabaseError, "internal storage error")
	}
}

// WriteReceipt handles POST /v1/receipts, the gateway's fire-and-forget
// audit write.
func (h *Handlers) WriteReceipt(w http.ResponseWriter, r *http.Request) {
	var in WriteReceiptInput
	if apiErr := h.decodeAndValidate(r, &in); apiErr != nil {
		apierror.Write(w, apiErr)
		return
	}
	rec, err := h.store.WriteReceipt(r.Context(), in)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// WriteExternalEvent handles POST /v1/events/external.
func (h *Handlers) WriteExternalEvent(w http.ResponseWriter, r *http.Request) {
	var in WriteExternalEventInput
	if apiErr := h.decodeAndValidate(r, &in); apiErr != nil {
		apierror.Write(w, apiErr)
		return
	}
	ev, err := h.store.WriteExternalEvent(r.Context(), in)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// ListTraces handles GET /v1/traces?tenant_id=&status=&limit=.
func (h *Handlers) ListTraces(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	filter := TraceFilter{
		TenantID: r.URL.Query().Get("tenant_id"),
		Status:   receipt.TraceStatus(r.URL.Query().Get("status")),
		Limit:    limit,
	}
	traces, err := h.store.ListTraces(r.Context(), filter)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, traces)
}

// GetTrace handles GET /v1/traces/{trace_id}.
func (h *Handlers) GetTrace(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "trace_id")
	t, err := h.store.GetTrace(r.Context(), traceID)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// GetTimeline handles GET /v1/traces/{trace_id}/timeline.
func (h *Handlers) GetTimeline(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "trace_id")
	timeline, err := h.store.GetTimeline(r.Context(), traceID)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, timeline)
}

// GetDecisionTree handles GET /v1/traces/{trace_id}/decisions.
func (h *Handlers) GetDecisionTree(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "trace_id")
	tree, err := h.store.BuildDecisionTree(r.Context(), traceID)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// LookupByCorrelation handles GET /v1/lookup/{correlation_id}.
func (h *Handlers) LookupByCorrelation(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlation_id")
	traces, err := h.store.LookupByCorrelation(r.Context(), correlationID)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, traces)
}

// ListTrustEvents handles GET /v1/traces/{trace_id}/trust-events.
func (h *Handlers) ListTrustEvents(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "trace_id")
	events, err := h.store.ListTrustEvents(r.Context(), traceID)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
