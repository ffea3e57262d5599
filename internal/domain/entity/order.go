package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseOrder is generated once per request on finance approval.
// Only the render fields change after creation.
type PurchaseOrder struct {
	ID             int64           `json:"id"`
	RequestID      int64           `json:"request_id"`
	PONumber       string          `json:"po_number"`
	Vendor         string          `json:"vendor,omitempty"`
	Items          []LineItem      `json:"items"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	POFile         string          `json:"po_file,omitempty"`
	RenderStatus   RenderStatus    `json:"render_status"`
	RenderAttempts int             `json:"render_attempts"`
	RenderError    string          `json:"render_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
