package reservation

import "time"

// Status of a stock hold. Active is the only non-terminal state; a
// reservation transitions exactly once into expired, converted or released.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusConverted Status = "converted"
	StatusReleased  Status = "released"
)

// Reservation is a short-lived hold against future stock. It never touches
// the ledger balance itself, only the available-stock view; conversion is the
// point where stock is actually debited.
type Reservation struct {
	ID         string     `json:"id"`
	VariantID  string     `json:"variant_id"`
	CartID     *string    `json:"cart_id,omitempty"`
	OrderID    *string    `json:"order_id,omitempty"`
	Quantity   int        `json:"quantity"`
	Status     Status     `json:"status"`
	ReservedAt time.Time  `json:"reserved_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
}

func (r Reservation) ExpiredAt(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
