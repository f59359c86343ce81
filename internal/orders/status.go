package orders

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// PaymentState mirrors payment settlement onto the order itself.
type PaymentState string

const (
	PayStatePending  PaymentState = "pending"
	PayStatePaid     PaymentState = "paid"
	PayStateFailed   PaymentState = "failed"
	PayStateRefunded PaymentState = "refunded"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusCompleted: true, StatusCancelled: true},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
