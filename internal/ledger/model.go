package ledger

import "time"

// Reason classifies a stock movement. Movements are immutable once written;
// corrections are new compensating entries.
type Reason string

const (
	ReasonOrder           Reason = "order"
	ReasonCancel          Reason = "cancel"
	ReasonReturn          Reason = "return"
	ReasonAdminAdjustment Reason = "admin_adjustment"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonOrder, ReasonCancel, ReasonReturn, ReasonAdminAdjustment:
		return true
	}
	return false
}

// RefType links a movement to the record that caused it.
type RefType string

const (
	RefOrder     RefType = "order"
	RefOrderItem RefType = "order_item"
	RefReturn    RefType = "return"
	RefManual    RefType = "manual"
)

type Movement struct {
	ID        string    `json:"id"`
	VariantID string    `json:"variant_id"`
	Delta     int       `json:"delta"`
	Reason    Reason    `json:"reason"`
	RefType   *RefType  `json:"ref_type,omitempty"`
	RefID     *string   `json:"ref_id,omitempty"`
	ActorID   *string   `json:"actor_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Balance is the cached counter for a variant, kept in lockstep with the sum
// of its movements.
type Balance struct {
	VariantID         string `json:"variant_id"`
	Stock             int    `json:"stock"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	LowStock          bool   `json:"low_stock"`
}
