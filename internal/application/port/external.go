package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/p2p-approval/internal/domain/entity"
	domainwf "github.com/garyjia/p2p-approval/internal/domain/workflow"
)

// RoleProvider resolves the workflow role of an actor
type RoleProvider interface {
	Role(ctx context.Context, actor string) (domainwf.Role, error)
}

// DocumentRenderer produces the purchase order document and returns its reference
type DocumentRenderer interface {
	Render(ctx context.Context, order *entity.PurchaseOrder, request *entity.PurchaseRequest) (string, error)
}

// ExtractedReceipt is structured data read from a receipt document
type ExtractedReceipt struct {
	Seller      string
	Items       []entity.LineItem
	TotalAmount decimal.Decimal
}

// ReceiptExtractor reads line items out of an uploaded receipt
type ReceiptExtractor interface {
	Extract(ctx context.Context, content []byte, contentType string) (*ExtractedReceipt, error)
}

// MetricsRecorder receives workflow instrumentation
type MetricsRecorder interface {
	ObserveTransition(trigger string, outcome string)
	ObserveLockWait(wait time.Duration)
	ObserveRender(outcome string)
}

// RegisterWriter formats purchase orders as a downloadable register
type RegisterWriter interface {
	Write(orders []*entity.PurchaseOrder) ([]byte, error)
	ContentType() string
}
