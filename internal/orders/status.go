package orders

type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusPaid           Status = "PAID"
	StatusPreparing      Status = "PREPARING"
	StatusShipped        Status = "SHIPPED"
	StatusDelivered      Status = "DELIVERED"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
)

// Forward transitions plus CANCELLED from any non-terminal state.
// CANCELLED, DELIVERED and COMPLETED are terminal.
var validNext = map[Status]map[Status]bool{
	StatusPendingPayment: {StatusPaid: true, StatusPreparing: true, StatusShipped: true, StatusDelivered: true, StatusCompleted: true, StatusCancelled: true},
	StatusPaid:           {StatusPreparing: true, StatusShipped: true, StatusDelivered: true, StatusCompleted: true, StatusCancelled: true},
	StatusPreparing:      {StatusShipped: true, StatusDelivered: true, StatusCompleted: true, StatusCancelled: true},
	StatusShipped:        {StatusDelivered: true, StatusCompleted: true, StatusCancelled: true},
	StatusDelivered:      {},
	StatusCompleted:      {},
	StatusCancelled:      {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	_, known := validNext[st]
	return st, known
}
