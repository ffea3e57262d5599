package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is a single purchase line
type LineItem struct {
	Description string          `json:"description" validate:"required,max=255"`
	Quantity    int             `json:"quantity" validate:"gte=1"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"gte=0"`
}

// Total returns quantity x unit price
func (i LineItem) Total() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// PurchaseRequest is a request for goods moving through the approval chain.
// State is the authoritative workflow state; Status is derived from it.
type PurchaseRequest struct {
	ID              int64           `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Items           []LineItem      `json:"items"`
	Amount          decimal.Decimal `json:"amount"`
	Status          RequestStatus   `json:"status"`
	State           string          `json:"state"`
	CreatedBy       string          `json:"created_by"`
	Proforma        string          `json:"proforma,omitempty"`
	PurchaseOrderID *int64          `json:"purchase_order_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// EditableState is the only workflow state in which the requester may change
// items or documents: no manager has decided yet
const EditableState = "PENDING"

// IsEditable reports whether no decision has been recorded against the request
func (r *PurchaseRequest) IsEditable() bool {
	return r.State == EditableState
}

// IsOwnedBy reports whether actor created the request
func (r *PurchaseRequest) IsOwnedBy(actor string) bool {
	return r.CreatedBy == actor
}

// ComputeAmount sums quantity x unit price over items
func ComputeAmount(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Total())
	}
	return total
}

// RequestFilter narrows request listings
type RequestFilter struct {
	OwnedBy        string
	Status         RequestStatus
	State          string
	FinancePending bool
	// ApproverLevel selects requests awaiting a decision at that level (0 = off)
	ApproverLevel int
	Limit         int
	Offset        int
}
