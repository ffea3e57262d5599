package entity

import "time"

// Discrepancy is a single mismatch between a receipt and its purchase order
type Discrepancy struct {
	Type        DiscrepancyType `json:"type"`
	Description string          `json:"description,omitempty"`
	Message     string          `json:"message"`
}

// ValidationResult is the outcome of checking a receipt against an order
type ValidationResult struct {
	Validated     bool          `json:"validated"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

// Receipt is the latest receipt submitted for a request. Resubmission
// replaces the document, items and validation result.
type Receipt struct {
	ID            int64         `json:"id"`
	RequestID     int64         `json:"request_id"`
	UploadedBy    string        `json:"uploaded_by"`
	Document      string        `json:"document"`
	Seller        string        `json:"seller,omitempty"`
	Items         []LineItem    `json:"items"`
	Validated     bool          `json:"validated"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	Submissions   int           `json:"submissions"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
