package entity

// RequestStatus is the coarse status projection of a purchase request
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

// Approval levels
const (
	LevelOne = 1
	LevelTwo = 2
)

// RenderStatus tracks purchase order document rendering
type RenderStatus string

const (
	RenderStatusPending  RenderStatus = "pending"
	RenderStatusRendered RenderStatus = "rendered"
	RenderStatusFailed   RenderStatus = "failed"
)

// DiscrepancyType classifies a receipt/order mismatch
type DiscrepancyType string

const (
	DiscrepancyMissingItem      DiscrepancyType = "missing_item"
	DiscrepancyUnexpectedItem   DiscrepancyType = "unexpected_item"
	DiscrepancyQuantityMismatch DiscrepancyType = "quantity_mismatch"
	DiscrepancyPriceMismatch    DiscrepancyType = "price_mismatch"
	DiscrepancyVendorMismatch   DiscrepancyType = "vendor_mismatch"
)
