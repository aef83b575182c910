package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/cnfstore/commerce-core/internal/order"
	"github.com/cnfstore/commerce-core/internal/redisx"
)

type OrdersHandler struct {
	Service *order.Service
	Redis   *redis.Client
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/checkout", h.checkout)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Get("/orders/{id}/history", h.listHistory)
	r.Post("/orders/{id}/notes", h.addNote)
	r.Get("/orders/{id}/notes", h.listNotes)
}

type checkoutLineReq struct {
	ReservationID string          `json:"reservation_id"`
	VariantID     string          `json:"variant_id"`
	ProductName   string          `json:"product_name"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

type checkoutReq struct {
	CheckoutRef *string           `json:"checkout_ref,omitempty"`
	CartID      *string           `json:"cart_id,omitempty"`
	UserID      *string           `json:"user_id,omitempty"`
	CouponCode  *string           `json:"coupon_code,omitempty"`
	Lines       []checkoutLineReq `json:"lines"`
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Lines) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lines must not be empty"})
		return
	}

	lines := make([]order.CheckoutLine, 0, len(req.Lines))
	for _, ln := range req.Lines {
		lines = append(lines, order.CheckoutLine{
			ReservationID: ln.ReservationID,
			VariantID:     ln.VariantID,
			ProductName:   ln.ProductName,
			Quantity:      ln.Quantity,
			UnitPrice:     ln.UnitPrice,
		})
	}

	actor := order.Actor{Type: order.ActorUser, ID: req.UserID}
	o, err := h.Service.Checkout(r.Context(), order.CheckoutInput{
		CheckoutRef: req.CheckoutRef,
		CartID:      req.CartID,
		UserID:      req.UserID,
		Actor:       actor,
		Lines:       lines,
		CouponCode:  req.CouponCode,
		TraceID:     r.Header.Get("X-Request-Id"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	if req.CheckoutRef != nil {
		idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, *req.CheckoutRef)
		_ = h.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
	}
	h.cacheStatus(r, o.ID, o.Status)

	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) cacheStatus(r *http.Request, orderID string, status order.Status) {
	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	_ = h.Redis.Set(r.Context(), statusKey, fmt.Sprintf(`{"status":%q}`, status), redisx.TTLStatusCache).Err()
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, items, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": o, "items": items})
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, id)
	if cached, err := h.Redis.Get(r.Context(), statusKey).Result(); err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(cached))
		return
	}

	o, _, err := h.Service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(r, o.ID, o.Status)
	writeJSON(w, http.StatusOK, map[string]string{"status": string(o.Status)})
}

type updateStatusReq struct {
	Status    string  `json:"status"`
	Note      *string `json:"note,omitempty"`
	ActorType string  `json:"actor_type,omitempty"`
	ActorID   *string `json:"actor_id,omitempty"`
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	actorType := order.ActorAdmin
	if req.ActorType != "" {
		actorType = order.ActorType(req.ActorType)
	}

	id := chi.URLParam(r, "id")
	o, err := h.Service.Transition(r.Context(), id, order.Status(req.Status),
		order.Actor{Type: actorType, ID: req.ActorID}, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(r, o.ID, o.Status)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listHistory(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	hist, total, err := h.Service.ListHistory(r.Context(), chi.URLParam(r, "id"), page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pagedResponse{Data: hist, Page: page, PageSize: pageSize, Total: total})
}

type addNoteReq struct {
	Body      string  `json:"body"`
	ActorType string  `json:"actor_type,omitempty"`
	ActorID   *string `json:"actor_id,omitempty"`
}

func (h *OrdersHandler) addNote(w http.ResponseWriter, r *http.Request) {
	var req addNoteReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	actorType := order.ActorAdmin
	if req.ActorType != "" {
		actorType = order.ActorType(req.ActorType)
	}
	n, err := h.Service.AddNote(r.Context(), chi.URLParam(r, "id"), req.Body,
		order.Actor{Type: actorType, ID: req.ActorID})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *OrdersHandler) listNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.Service.ListNotes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": notes})
}
