package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/cnfstore/commerce-core/internal/payment"
)

type PaymentsHandler struct {
	Coordinator *payment.Coordinator
}

func (h *PaymentsHandler) Register(r *chi.Mux) {
	r.Post("/payments", h.record)
	r.Get("/payments", h.list)
	r.Get("/payments/{id}", h.get)
	r.Post("/payments/{id}/outcome", h.outcome)
	r.Post("/payments/{id}/refunds", h.refund)
	r.Post("/refunds/{id}/advance", h.advanceRefund)
	r.Get("/refunds", h.listRefunds)
}

type recordPaymentReq struct {
	OrderID  string          `json:"order_id"`
	Provider string          `json:"provider"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
}

func (h *PaymentsHandler) record(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.OrderID == "" || req.Provider == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order_id and provider are required"})
		return
	}
	p, err := h.Coordinator.Record(r.Context(), req.OrderID, req.Provider, req.Amount, req.Currency)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type paymentOutcomeReq struct {
	Success       bool    `json:"success"`
	TransactionID *string `json:"transaction_id,omitempty"`
}

func (h *PaymentsHandler) outcome(w http.ResponseWriter, r *http.Request) {
	var req paymentOutcomeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	p, err := h.Coordinator.MarkOutcome(r.Context(), chi.URLParam(r, "id"), req.Success, req.TransactionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PaymentsHandler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Coordinator.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type refundReq struct {
	Amount decimal.Decimal `json:"amount"`
	Reason *string         `json:"reason,omitempty"`
}

func (h *PaymentsHandler) refund(w http.ResponseWriter, r *http.Request) {
	var req refundReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ref, err := h.Coordinator.Refund(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

type advanceRefundReq struct {
	Status string `json:"status"`
}

func (h *PaymentsHandler) advanceRefund(w http.ResponseWriter, r *http.Request) {
	var req advanceRefundReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ref, err := h.Coordinator.Advance(r.Context(), chi.URLParam(r, "id"), payment.RefundStatus(req.Status))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

func (h *PaymentsHandler) list(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	payments, total, err := h.Coordinator.ListPayments(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pagedResponse{Data: payments, Page: page, PageSize: pageSize, Total: total})
}

func (h *PaymentsHandler) listRefunds(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	refunds, total, err := h.Coordinator.ListRefunds(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pagedResponse{Data: refunds, Page: page, PageSize: pageSize, Total: total})
}
