package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/p2p-approval/internal/application/port"
	"github.com/garyjia/p2p-approval/internal/domain/entity"
	"github.com/garyjia/p2p-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/p2p-approval/migrations"
	"github.com/garyjia/p2p-approval/pkg/apperr"
	"github.com/garyjia/p2p-approval/pkg/database"
)

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "p2p.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = database.NewMigrator(db, logger).RunMigrations(context.Background(), migrations.FS)
	require.NoError(t, err)
	return sqlite.NewDB(db.DB, logger)
}

func seedRequest(t *testing.T, repo port.RequestRepository, owner string) *entity.PurchaseRequest {
	t.Helper()
	now := time.Now()
	items := []entity.LineItem{
		{Description: "Laptop", Quantity: 2, UnitPrice: decimal.RequireFromString("999.50")},
		{Description: "Dock", Quantity: 1, UnitPrice: decimal.RequireFromString("120")},
	}
	req := &entity.PurchaseRequest{
		Title:     "Team laptops",
		Items:     items,
		Amount:    entity.ComputeAmount(items),
		Status:    entity.RequestStatusPending,
		State:     "PENDING",
		CreatedBy: owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Create(context.Background(), req))
	return req
}

func TestSQLite_RequestLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	requests := NewRequestRepository(db, zap.NewNop())
	approvals := NewApprovalRepository(db, zap.NewNop())

	req := seedRequest(t, requests, "alice")
	require.NotZero(t, req.ID)

	got, err := requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, decimal.RequireFromString("2119").Equal(got.Amount))
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Laptop", got.Items[0].Description)
	assert.Nil(t, got.PurchaseOrderID)

	got.Title = "Team laptops v2"
	got.Items = got.Items[:1]
	got.Amount = entity.ComputeAmount(got.Items)
	require.NoError(t, requests.Update(ctx, got))

	got, err = requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "Team laptops v2", got.Title)
	assert.Len(t, got.Items, 1)

	require.NoError(t, approvals.Create(ctx, &entity.Approval{RequestID: req.ID, Approver: "m1", Level: entity.LevelOne, Approved: true, CreatedAt: time.Now()}))
	err = approvals.Create(ctx, &entity.Approval{RequestID: req.ID, Approver: "m1b", Level: entity.LevelOne, Approved: false, CreatedAt: time.Now()})
	assert.True(t, errors.Is(err, port.ErrDuplicateKey))

	pending, err := requests.List(ctx, entity.RequestFilter{ApproverLevel: entity.LevelTwo, Limit: 10})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)

	require.NoError(t, requests.SetProforma(ctx, req.ID, "2026/10/quote.pdf"))
	require.NoError(t, requests.SetState(ctx, req.ID, "LEVEL1_APPROVED", entity.RequestStatusPending))

	got.Title = "after level one"
	err = requests.Update(ctx, got)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	err = requests.SetProforma(ctx, req.ID, "2026/10/other.pdf")
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	got, err = requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "Team laptops v2", got.Title)
	assert.Equal(t, "2026/10/quote.pdf", got.Proforma)

	require.NoError(t, requests.SetState(ctx, req.ID, "REJECTED", entity.RequestStatusRejected))
	got.Title = "too late"
	err = requests.Update(ctx, got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can no longer be edited")
}

func TestSQLite_ListFilters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	requests := NewRequestRepository(db, zap.NewNop())
	approvals := NewApprovalRepository(db, zap.NewNop())

	a := seedRequest(t, requests, "alice")
	b := seedRequest(t, requests, "bob")

	for _, level := range []int{entity.LevelOne, entity.LevelTwo} {
		require.NoError(t, approvals.Create(ctx, &entity.Approval{RequestID: b.ID, Approver: "m", Level: level, Approved: true, CreatedAt: time.Now()}))
	}

	owned, err := requests.List(ctx, entity.RequestFilter{OwnedBy: "alice", Limit: 10})
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, a.ID, owned[0].ID)

	finance, err := requests.List(ctx, entity.RequestFilter{FinancePending: true, Limit: 10})
	require.NoError(t, err)
	require.Len(t, finance, 1)
	assert.Equal(t, b.ID, finance[0].ID)
	assert.Len(t, finance[0].Items, 2)

	level1, err := requests.List(ctx, entity.RequestFilter{ApproverLevel: entity.LevelOne, Limit: 10})
	require.NoError(t, err)
	require.Len(t, level1, 1)
	assert.Equal(t, a.ID, level1[0].ID)

	page, err := requests.List(ctx, entity.RequestFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestSQLite_OrdersAndReceipts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	requests := NewRequestRepository(db, zap.NewNop())
	orders := NewOrderRepository(db, zap.NewNop())
	receipts := NewReceiptRepository(db, zap.NewNop())

	req := seedRequest(t, requests, "alice")
	other := seedRequest(t, requests, "bob")

	order := &entity.PurchaseOrder{
		RequestID:   req.ID,
		PONumber:    "PO-2026-00001",
		Items:       req.Items,
		TotalAmount: req.Amount,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, orders.Create(ctx, order))
	require.NoError(t, requests.AttachPurchaseOrder(ctx, req.ID, order.ID))

	clash := &entity.PurchaseOrder{RequestID: other.ID, PONumber: "PO-2026-00001", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	assert.True(t, errors.Is(orders.Create(ctx, clash), port.ErrDuplicateKey))

	latest, err := orders.LatestNumber(ctx, "PO-2026-")
	require.NoError(t, err)
	assert.Equal(t, "PO-2026-00001", latest)

	pending, err := orders.GetPendingRender(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Len(t, pending[0].Items, 2)
	assert.True(t, req.Items[0].UnitPrice.Equal(pending[0].Items[0].UnitPrice))

	require.NoError(t, orders.MarkRenderFailed(ctx, order.ID, "font missing", false))
	require.NoError(t, orders.MarkRendered(ctx, order.ID, "po/PO-2026-00001.pdf"))

	stored, err := orders.GetByRequestID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.RenderStatusRendered, stored.RenderStatus)
	assert.Equal(t, 2, stored.RenderAttempts)
	assert.Equal(t, "po/PO-2026-00001.pdf", stored.POFile)

	linked, err := requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, linked.PurchaseOrderID)
	assert.Equal(t, order.ID, *linked.PurchaseOrderID)

	first := &entity.Receipt{
		RequestID:  req.ID,
		UploadedBy: "alice",
		Document:   "receipts/a.pdf",
		Items:      req.Items[:1],
		Discrepancies: []entity.Discrepancy{
			{Type: entity.DiscrepancyMissingItem, Description: "Dock", Message: "PO item 'Dock' not found in receipt"},
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, receipts.Upsert(ctx, first))
	assert.Equal(t, 1, first.Submissions)

	second := &entity.Receipt{
		RequestID:  req.ID,
		UploadedBy: "alice",
		Document:   "receipts/b.pdf",
		Items:      req.Items,
		Validated:  true,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, receipts.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Submissions)

	stored2, err := receipts.GetByRequestID(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, stored2.Validated)
	assert.Equal(t, "receipts/b.pdf", stored2.Document)
	assert.Empty(t, stored2.Discrepancies)

	missing, err := receipts.GetByRequestID(ctx, other.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_TransactionRollback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	requests := NewRequestRepository(db, zap.NewNop())
	history := NewHistoryRepository(db, zap.NewNop())
	req := seedRequest(t, requests, "alice")

	boom := errors.New("boom")
	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		if err := requests.SetState(ctx, req.ID, "LEVEL1_APPROVED", entity.RequestStatusPending); err != nil {
			return err
		}
		if err := history.Create(ctx, &entity.TransitionRecord{RequestID: req.ID, Actor: "m1", Action: "APPROVE", PreviousState: "PENDING", NewState: "LEVEL1_APPROVED", CreatedAt: time.Now()}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", got.State)

	records, err := history.GetByRequestID(ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSQLite_LatestNumber(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	requests := NewRequestRepository(db, zap.NewNop())
	orders := NewOrderRepository(db, zap.NewNop())

	for _, number := range []string{"PO-2026-99999", "PO-2026-100000", "PO-2026-2026-00007", "POX2026-99999999"} {
		owner := seedRequest(t, requests, "carol")
		require.NoError(t, orders.Create(ctx, &entity.PurchaseOrder{
			RequestID: owner.ID, PONumber: number, CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}))
	}

	latest, err := orders.LatestNumber(ctx, "PO-2026-")
	require.NoError(t, err)
	assert.Equal(t, "PO-2026-100000", latest, "numeric order past five digits, non-numeric suffixes skipped")

	latest, err = orders.LatestNumber(ctx, "PO_2026-")
	require.NoError(t, err)
	assert.Empty(t, latest, "underscore in the prefix is literal")

	latest, err = orders.LatestNumber(ctx, "PO-2025-")
	require.NoError(t, err)
	assert.Empty(t, latest)
}
