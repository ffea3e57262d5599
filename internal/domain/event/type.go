package event

// Type identifies the type of domain event
type Type string

const (
	TypeRequestCreated         Type = "request.created"
	TypeRequestUpdated         Type = "request.updated"
	TypeRequestDecided         Type = "request.decided"
	TypeRequestFinanceApproved Type = "request.finance_approved"
	TypeOrderGenerated         Type = "order.generated"
	TypeOrderRendered          Type = "order.rendered"
	TypeReceiptSubmitted       Type = "receipt.submitted"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRequestCreated,
		TypeRequestUpdated,
		TypeRequestDecided,
		TypeRequestFinanceApproved,
		TypeOrderGenerated,
		TypeOrderRendered,
		TypeReceiptSubmitted:
		return true
	default:
		return false
	}
}
