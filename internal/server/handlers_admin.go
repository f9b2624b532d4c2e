package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/yakkyoku-ai/yakkyoku/internal/model"
	"github.com/yakkyoku-ai/yakkyoku/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// HandleListMedicines returns the full medicine catalog with current stock.
func (h *Handlers) HandleListMedicines(w http.ResponseWriter, r *http.Request) {
	medicines, err := h.db.ListMedicines(r.Context())
	if err != nil {
		h.logger.Error("list medicines failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to list medicines")
		return
	}
	writeJSON(w, r, http.StatusOK, medicines)
}

// HandleListCustomers returns all registered customers.
func (h *Handlers) HandleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.db.ListCustomers(r.Context())
	if err != nil {
		h.logger.Error("list customers failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to list customers")
		return
	}
	writeJSON(w, r, http.StatusOK, customers)
}

// HandleGetCustomer returns one customer by ID.
func (h *Handlers) HandleGetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid customer id")
		return
	}

	customer, err := h.db.GetCustomer(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "customer not found")
			return
		}
		h.logger.Error("get customer failed", "error", err, "customer_id", id)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to get customer")
		return
	}
	writeJSON(w, r, http.StatusOK, customer)
}

// HandleCustomerHistory returns a customer's order history, newest first.
func (h *Handlers) HandleCustomerHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid customer id")
		return
	}

	limit := parseLimit(r, defaultListLimit)
	history, err := h.db.RecentHistory(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("customer history failed", "error", err, "customer_id", id)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to load history")
		return
	}
	writeJSON(w, r, http.StatusOK, history)
}

// HandleListOrders returns recent orders, newest first.
func (h *Handlers) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, defaultListLimit)
	orders, err := h.db.ListOrders(r.Context(), limit)
	if err != nil {
		h.logger.Error("list orders failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to list orders")
		return
	}
	writeJSON(w, r, http.StatusOK, orders)
}

// HandleGetOrder returns one order with its items.
func (h *Handlers) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid order id")
		return
	}

	order, err := h.db.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "order not found")
			return
		}
		h.logger.Error("get order failed", "error", err, "order_id", id)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to get order")
		return
	}
	writeJSON(w, r, http.StatusOK, order)
}

// HandleListTraces returns trace records filtered by agent name and time
// window. Query parameters: agent, from, to (RFC 3339), limit.
func (h *Handlers) HandleListTraces(w http.ResponseWriter, r *http.Request) {
	filter := model.TraceFilter{
		AgentName: r.URL.Query().Get("agent"),
		Limit:     parseLimit(r, defaultListLimit),
	}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid from timestamp, expected RFC 3339")
			return
		}
		filter.From = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid to timestamp, expected RFC 3339")
			return
		}
		filter.To = &t
	}

	traces, err := h.db.ListTraces(r.Context(), filter)
	if err != nil {
		h.logger.Error("list traces failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to list traces")
		return
	}
	writeJSON(w, r, http.StatusOK, traces)
}

// HandleGetTrace returns one trace record by ID.
func (h *Handlers) HandleGetTrace(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid trace id")
		return
	}

	rec, err := h.db.GetTrace(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "trace not found")
			return
		}
		h.logger.Error("get trace failed", "error", err, "trace_id", id)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to get trace")
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// HandleRequestTrace returns every stage record of one pipeline run, in
// stage order.
func (h *Handlers) HandleRequestTrace(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request id")
		return
	}

	traces, err := h.db.TracesByRequest(r.Context(), id)
	if err != nil {
		h.logger.Error("request trace failed", "error", err, "request_id", id)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to load trace")
		return
	}
	writeJSON(w, r, http.StatusOK, traces)
}

// parseLimit reads the limit query parameter, clamped to maxListLimit.
func parseLimit(r *http.Request, fallback int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
