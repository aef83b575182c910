package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cnfstore/commerce-core/internal/ledger"
	"github.com/cnfstore/commerce-core/internal/reservation"
)

type InventoryHandler struct {
	Ledger *ledger.Ledger
	Resv   *reservation.Manager
}

func (h *InventoryHandler) Register(r *chi.Mux) {
	r.Put("/variants/{id}", h.registerVariant)
	r.Get("/variants/{id}/balance", h.getBalance)
	r.Get("/variants/{id}/available", h.getAvailable)
	r.Post("/inventory/adjustments", h.adjust)
	r.Get("/inventory/movements", h.listMovements)
}

type pagedResponse struct {
	Data     any `json:"data"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

func pageParams(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return page, pageSize
}

type registerVariantReq struct {
	LowStockThreshold int `json:"low_stock_threshold"`
}

func (h *InventoryHandler) registerVariant(w http.ResponseWriter, r *http.Request) {
	var req registerVariantReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.Ledger.RegisterVariant(r.Context(), id, req.LowStockThreshold); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"variant_id": id})
}

func (h *InventoryHandler) getBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.Ledger.Balance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *InventoryHandler) getAvailable(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.Resv.Available(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"variant_id": id, "available": n})
}

type adjustReq struct {
	VariantID     string  `json:"variant_id"`
	Delta         int     `json:"delta"`
	Reason        string  `json:"reason"`
	ActorID       *string `json:"actor_id,omitempty"`
	AllowNegative bool    `json:"allow_negative"`
}

func (h *InventoryHandler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.VariantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "variant_id is required"})
		return
	}
	reason := ledger.Reason(req.Reason)
	if reason == "" {
		reason = ledger.ReasonAdminAdjustment
	}
	ref := ledger.RefManual
	balance, err := h.Ledger.Append(r.Context(), ledger.AppendInput{
		VariantID:     req.VariantID,
		Delta:         req.Delta,
		Reason:        reason,
		RefType:       &ref,
		ActorID:       req.ActorID,
		AllowNegative: req.AllowNegative,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"variant_id": req.VariantID, "balance": balance})
}

func (h *InventoryHandler) listMovements(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	f := ledger.ListFilter{
		VariantID: r.URL.Query().Get("variant_id"),
		Page:      page,
		PageSize:  pageSize,
	}
	movements, total, err := h.Ledger.List(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pagedResponse{Data: movements, Page: page, PageSize: pageSize, Total: total})
}
