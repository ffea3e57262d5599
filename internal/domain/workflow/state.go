package workflow

// State represents a purchase request state in the approval lifecycle
type State string

const (
	StatePending           State = "PENDING"
	StateLevel1Approved    State = "LEVEL1_APPROVED"
	StateLevel2Approved    State = "LEVEL2_APPROVED"
	StateRejected          State = "REJECTED"
	StateFinanceApproved   State = "FINANCE_APPROVED"
	StateReceiptValidated  State = "RECEIPT_VALIDATED"
	StateReceiptDiscrepant State = "RECEIPT_DISCREPANT"
)

var validStates = map[State]bool{
	StatePending:           true,
	StateLevel1Approved:    true,
	StateLevel2Approved:    true,
	StateRejected:          true,
	StateFinanceApproved:   true,
	StateReceiptValidated:  true,
	StateReceiptDiscrepant: true,
}

// RECEIPT_DISCREPANT is not terminal: the receipt may be resubmitted
var terminalStates = map[State]bool{
	StateRejected:         true,
	StateReceiptValidated: true,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}
