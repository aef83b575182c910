package order

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:    {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

// Restocks reports whether cancelling from this status must append
// compensating ledger movements. Goods already shipped come back through the
// return flow instead.
func (s Status) Restocks() bool {
	return s == StatusPending || s == StatusProcessing
}

type ActorType string

const (
	ActorSystem ActorType = "system"
	ActorAdmin  ActorType = "admin"
	ActorUser   ActorType = "user"
)

// Actor is the opaque identity stamped on history rows; auth is an external
// collaborator.
type Actor struct {
	Type ActorType `json:"type"`
	ID   *string   `json:"id,omitempty"`
}
