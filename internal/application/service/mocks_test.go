package service

import (
	"context"
	"sort"
	"strings"

	"github.com/garyjia/p2p-approval/internal/application/port"
	"github.com/garyjia/p2p-approval/internal/domain/entity"
)

type mockApprovalRepo struct {
	createFunc func(ctx context.Context, approval *entity.Approval) error
	approvals  []*entity.Approval
}

func (m *mockApprovalRepo) Create(ctx context.Context, approval *entity.Approval) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, approval)
	}
	for _, a := range m.approvals {
		if a.RequestID == approval.RequestID && a.Level == approval.Level {
			return port.ErrDuplicateKey
		}
	}
	approval.ID = int64(len(m.approvals) + 1)
	m.approvals = append(m.approvals, approval)
	return nil
}

func (m *mockApprovalRepo) GetByRequestID(ctx context.Context, requestID int64) ([]*entity.Approval, error) {
	var out []*entity.Approval
	for _, a := range m.approvals {
		if a.RequestID == requestID {
			out = append(out, a)
		}
	}
	return out, nil
}

type mockOrderRepo struct {
	orders    []*entity.PurchaseOrder
	createErr error
	// conflicts lists po_numbers that fail with a duplicate key on insert
	conflicts map[string]bool
	creates   int
}

func (m *mockOrderRepo) Create(ctx context.Context, order *entity.PurchaseOrder) error {
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	if m.conflicts[order.PONumber] {
		return port.ErrDuplicateKey
	}
	for _, o := range m.orders {
		if o.PONumber == order.PONumber || o.RequestID == order.RequestID {
			return port.ErrDuplicateKey
		}
	}
	order.ID = int64(len(m.orders) + 1)
	m.orders = append(m.orders, order)
	return nil
}

func (m *mockOrderRepo) GetByID(ctx context.Context, id int64) (*entity.PurchaseOrder, error) {
	for _, o := range m.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, nil
}

func (m *mockOrderRepo) GetByRequestID(ctx context.Context, requestID int64) (*entity.PurchaseOrder, error) {
	for _, o := range m.orders {
		if o.RequestID == requestID {
			return o, nil
		}
	}
	return nil, nil
}

func (m *mockOrderRepo) LatestNumber(ctx context.Context, prefix string) (string, error) {
	var numbers []string
	for _, o := range m.orders {
		if strings.HasPrefix(o.PONumber, prefix) {
			numbers = append(numbers, o.PONumber)
		}
	}
	if len(numbers) == 0 {
		return "", nil
	}
	sort.Strings(numbers)
	return numbers[len(numbers)-1], nil
}

func (m *mockOrderRepo) GetPendingRender(ctx context.Context, limit int) ([]*entity.PurchaseOrder, error) {
	return nil, nil
}

func (m *mockOrderRepo) MarkRendered(ctx context.Context, id int64, ref string) error {
	return nil
}

func (m *mockOrderRepo) MarkRenderFailed(ctx context.Context, id int64, errMsg string, final bool) error {
	return nil
}

func (m *mockOrderRepo) List(ctx context.Context, limit, offset int) ([]*entity.PurchaseOrder, error) {
	return m.orders, nil
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}
