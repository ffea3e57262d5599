package render

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/p2p-approval/internal/domain/entity"
)

type memBlobs struct {
	stored map[string][]byte
	err    error
}

func (m *memBlobs) Store(ctx context.Context, content []byte, contentType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	ref := "po/" + contentType
	m.stored[ref] = content
	return ref, nil
}

func (m *memBlobs) Retrieve(ctx context.Context, ref string) ([]byte, error) {
	return m.stored[ref], nil
}

func sampleOrder() (*entity.PurchaseOrder, *entity.PurchaseRequest) {
	items := []entity.LineItem{
		{Description: "Laptop", Quantity: 2, UnitPrice: decimal.RequireFromString("999.50")},
		{Description: "Café table", Quantity: 1, UnitPrice: decimal.RequireFromString("120")},
	}
	req := &entity.PurchaseRequest{ID: 4, Title: "Office kit", CreatedBy: "alice", Items: items}
	order := &entity.PurchaseOrder{
		ID:          1,
		RequestID:   4,
		PONumber:    "PO-2026-00001",
		Vendor:      "Acme",
		Items:       items,
		TotalAmount: entity.ComputeAmount(items),
		CreatedAt:   time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	return order, req
}

func TestPDFRenderer_Render(t *testing.T) {
	blobs := &memBlobs{stored: map[string][]byte{}}
	r := NewPDFRenderer(blobs, Config{CompanyName: "Example Ltd"}, zap.NewNop())
	order, req := sampleOrder()

	ref, err := r.Render(context.Background(), order, req)
	require.NoError(t, err)
	assert.Equal(t, "po/application/pdf", ref)
	assert.True(t, bytes.HasPrefix(blobs.stored[ref], []byte("%PDF-")))
}

func TestPDFRenderer_StoreFailure(t *testing.T) {
	blobs := &memBlobs{stored: map[string][]byte{}, err: errors.New("bucket gone")}
	r := NewPDFRenderer(blobs, Config{}, zap.NewNop())
	order, req := sampleOrder()

	_, err := r.Render(context.Background(), order, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store po document")
}
