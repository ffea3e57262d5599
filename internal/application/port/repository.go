package port

import (
	"context"
	"errors"

	"github.com/garyjia/p2p-approval/internal/domain/entity"
)

// RequestRepository defines persistence operations for PurchaseRequest.
// Get methods return (nil, nil) when the row does not exist.
type RequestRepository interface {
	Create(ctx context.Context, req *entity.PurchaseRequest) error
	GetByID(ctx context.Context, id int64) (*entity.PurchaseRequest, error)

	// Update rewrites title, description, items and amount. Fails with an
	// InvalidState error unless the stored state is still PENDING.
	Update(ctx context.Context, req *entity.PurchaseRequest) error

	SetState(ctx context.Context, id int64, state string, status entity.RequestStatus) error
	AttachPurchaseOrder(ctx context.Context, id int64, orderID int64) error

	// SetProforma has the same PENDING guard as Update
	SetProforma(ctx context.Context, id int64, ref string) error
	List(ctx context.Context, filter entity.RequestFilter) ([]*entity.PurchaseRequest, error)
}

// ApprovalRepository defines persistence operations for Approval
type ApprovalRepository interface {
	// Create fails with a DuplicateDecision error if the (request, level) pair exists
	Create(ctx context.Context, approval *entity.Approval) error

	// GetByRequestID returns approvals ordered by level then creation time
	GetByRequestID(ctx context.Context, requestID int64) ([]*entity.Approval, error)
}

// OrderRepository defines persistence operations for PurchaseOrder
type OrderRepository interface {
	Create(ctx context.Context, order *entity.PurchaseOrder) error
	GetByID(ctx context.Context, id int64) (*entity.PurchaseOrder, error)
	GetByRequestID(ctx context.Context, requestID int64) (*entity.PurchaseOrder, error)

	// LatestNumber returns the highest po_number starting with prefix, or ""
	LatestNumber(ctx context.Context, prefix string) (string, error)

	// GetPendingRender returns orders still waiting for a document
	GetPendingRender(ctx context.Context, limit int) ([]*entity.PurchaseOrder, error)
	MarkRendered(ctx context.Context, id int64, ref string) error

	// MarkRenderFailed records a failed attempt; final marks the order failed
	MarkRenderFailed(ctx context.Context, id int64, errMsg string, final bool) error

	List(ctx context.Context, limit, offset int) ([]*entity.PurchaseOrder, error)
}

// ReceiptRepository defines persistence operations for Receipt
type ReceiptRepository interface {
	// Upsert stores the receipt, replacing any previous submission for the request
	Upsert(ctx context.Context, receipt *entity.Receipt) error
	GetByRequestID(ctx context.Context, requestID int64) (*entity.Receipt, error)
}

// HistoryRepository defines persistence operations for TransitionRecord
type HistoryRepository interface {
	Create(ctx context.Context, record *entity.TransitionRecord) error
	GetByRequestID(ctx context.Context, requestID int64) ([]*entity.TransitionRecord, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ErrDuplicateKey is wrapped by repositories when a unique constraint rejects a write
var ErrDuplicateKey = errors.New("duplicate key")
