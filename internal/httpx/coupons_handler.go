package httpx

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/cnfstore/commerce-core/internal/coupon"
)

type CouponsHandler struct {
	Engine *coupon.Engine
}

func (h *CouponsHandler) Register(r *chi.Mux) {
	r.Post("/coupons", h.create)
	r.Get("/coupons", h.list)
	r.Post("/coupons/validate", h.validate)
	r.Delete("/coupons/{id}", h.deactivate)
}

type createCouponReq struct {
	Code           string           `json:"code"`
	Type           string           `json:"type"`
	Value          decimal.Decimal  `json:"value"`
	MinOrderAmount *decimal.Decimal `json:"min_order_amount,omitempty"`
	MaxDiscount    *decimal.Decimal `json:"max_discount,omitempty"`
	ValidFrom      *time.Time       `json:"valid_from,omitempty"`
	ValidTo        *time.Time       `json:"valid_to,omitempty"`
	UsageLimit     *int             `json:"usage_limit,omitempty"`
}

func (h *CouponsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createCouponReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code is required"})
		return
	}
	c, err := h.Engine.Create(r.Context(), coupon.CreateInput{
		Code:           req.Code,
		Type:           coupon.Type(req.Type),
		Value:          req.Value,
		MinOrderAmount: req.MinOrderAmount,
		MaxDiscount:    req.MaxDiscount,
		ValidFrom:      req.ValidFrom,
		ValidTo:        req.ValidTo,
		UsageLimit:     req.UsageLimit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

type validateCouponReq struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

func (h *CouponsHandler) validate(w http.ResponseWriter, r *http.Request) {
	var req validateCouponReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	c, discount, err := h.Engine.Validate(r.Context(), req.Code, req.Subtotal, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"coupon": c, "discount": discount})
}

func (h *CouponsHandler) deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *CouponsHandler) list(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	coupons, total, err := h.Engine.List(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pagedResponse{Data: coupons, Page: page, PageSize: pageSize, Total: total})
}
