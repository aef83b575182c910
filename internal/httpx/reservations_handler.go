package httpx

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cnfstore/commerce-core/internal/reservation"
)

type ReservationsHandler struct {
	Resv *reservation.Manager
}

func (h *ReservationsHandler) Register(r *chi.Mux) {
	r.Post("/reservations", h.create)
	r.Get("/reservations", h.list)
	r.Get("/reservations/{id}", h.get)
	r.Delete("/reservations/{id}", h.release)
}

type createReservationReq struct {
	VariantID  string  `json:"variant_id"`
	Quantity   int     `json:"quantity"`
	CartID     *string `json:"cart_id,omitempty"`
	TTLSeconds int     `json:"ttl_seconds,omitempty"`
}

func (h *ReservationsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createReservationReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.VariantID == "" || req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "variant_id and a positive quantity are required"})
		return
	}
	res, err := h.Resv.Create(r.Context(), req.VariantID, req.Quantity, req.CartID,
		time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *ReservationsHandler) get(w http.ResponseWriter, r *http.Request) {
	res, err := h.Resv.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ReservationsHandler) release(w http.ResponseWriter, r *http.Request) {
	if err := h.Resv.Release(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func (h *ReservationsHandler) list(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	f := reservation.ListFilter{
		VariantID: r.URL.Query().Get("variant_id"),
		Page:      page,
		PageSize:  pageSize,
	}
	res, total, err := h.Resv.List(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pagedResponse{Data: res, Page: page, PageSize: pageSize, Total: total})
}
