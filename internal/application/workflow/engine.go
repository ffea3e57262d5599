package workflow

import (
	"context"

	"github.com/garyjia/p2p-approval/internal/domain/entity"
)

// WorkflowEngine drives purchase requests through the approval lifecycle.
// It is the only writer of request state, approvals, orders and receipts.
type WorkflowEngine interface {
	CreateRequest(ctx context.Context, actor string, in CreateInput) (*entity.PurchaseRequest, error)

	// UpdateRequest edits a pending request. Only the owner may update.
	UpdateRequest(ctx context.Context, actor string, id int64, in UpdateInput) (*entity.PurchaseRequest, error)

	AttachProforma(ctx context.Context, actor string, id int64, doc Document) (*entity.PurchaseRequest, error)

	// Decide records an approval or rejection at the level implied by the actor's role
	Decide(ctx context.Context, actor string, id int64, approved bool, comments string) (*entity.PurchaseRequest, error)

	// FinanceApprove approves a request cleared at both levels and generates its purchase order
	FinanceApprove(ctx context.Context, actor string, id int64, comments string) (*entity.PurchaseRequest, error)

	// SubmitReceipt validates a receipt against the purchase order. Resubmission replaces the previous result.
	SubmitReceipt(ctx context.Context, actor string, id int64, in ReceiptInput) (*entity.ValidationResult, error)

	ListRequests(ctx context.Context, actor string, filter ListFilter) ([]*entity.PurchaseRequest, error)

	GetRequest(ctx context.Context, actor string, id int64) (*entity.PurchaseRequest, error)
	ListApprovals(ctx context.Context, actor string, id int64) ([]*entity.Approval, error)
	GetPurchaseOrder(ctx context.Context, actor string, id int64) (*entity.PurchaseOrder, error)

	// PurchaseOrderDocument returns the rendered order document
	PurchaseOrderDocument(ctx context.Context, actor string, id int64) ([]byte, *entity.PurchaseOrder, error)

	GetReceipt(ctx context.Context, actor string, id int64) (*entity.Receipt, error)
	History(ctx context.Context, actor string, id int64) ([]*entity.TransitionRecord, error)
}

// Document is an uploaded file
type Document struct {
	Content     []byte
	ContentType string
}

// CreateInput holds the fields of a new purchase request
type CreateInput struct {
	Title       string            `json:"title" validate:"required,max=200"`
	Description string            `json:"description" validate:"max=2000"`
	Items       []entity.LineItem `json:"items" validate:"required,min=1,dive"`
	Proforma    *Document         `json:"-"`
}

// UpdateInput replaces the editable fields of a pending request
type UpdateInput struct {
	Title       string            `json:"title" validate:"required,max=200"`
	Description string            `json:"description" validate:"max=2000"`
	Items       []entity.LineItem `json:"items" validate:"required,min=1,dive"`
}

// ReceiptInput is a receipt submission. When Items is empty the items are
// extracted from the document.
type ReceiptInput struct {
	Document Document          `json:"-"`
	Seller   string            `json:"seller" validate:"max=255"`
	Items    []entity.LineItem `json:"items" validate:"dive"`
}

// ListView selects a derived listing
type ListView string

const (
	ViewAll             ListView = ""
	ViewFinancePending  ListView = "finance-pending"
	ViewApproverPending ListView = "approver-pending"
)

// ListFilter narrows ListRequests
type ListFilter struct {
	OwnedBy string
	Status  entity.RequestStatus
	State   string
	View    ListView
	Limit   int
	Offset  int
}
