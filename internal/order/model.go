package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID           string          `json:"id"`
	Number       string          `json:"number"`
	CartID       *string         `json:"cart_id,omitempty"`
	UserID       *string         `json:"user_id,omitempty"`
	CheckoutRef  *string         `json:"checkout_ref,omitempty"`
	Status       Status          `json:"status"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	Tax          decimal.Decimal `json:"tax"`
	Total        decimal.Decimal `json:"total"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// OrderItem snapshots price and name at checkout time, independent of later
// catalog changes.
type OrderItem struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	VariantID   string          `json:"variant_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// StatusHistory is append-only: one row per transition, never mutated.
// FromStatus is nil for the creation row.
type StatusHistory struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	FromStatus *Status   `json:"from_status,omitempty"`
	ToStatus   Status    `json:"to_status"`
	ActorType  ActorType `json:"actor_type"`
	ActorID    *string   `json:"actor_id,omitempty"`
	Note       *string   `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Note is a free-text audit note on an order, separate from the status trail.
type Note struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Body      string    `json:"body"`
	ActorType ActorType `json:"actor_type"`
	ActorID   *string   `json:"actor_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
