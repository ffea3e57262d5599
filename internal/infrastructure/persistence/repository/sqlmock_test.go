package repository

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/p2p-approval/internal/application/port"
	"github.com/garyjia/p2p-approval/internal/domain/entity"
	"github.com/garyjia/p2p-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/p2p-approval/pkg/apperr"
)

func newMockDB(t *testing.T) (*sqlite.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return sqlite.NewDB(sqlDB, zap.NewNop()), mock
}

func TestApprovalRepository_Create(t *testing.T) {
	t.Run("assigns id", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewApprovalRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approvals")).
			WithArgs(int64(7), "m1@acme", entity.LevelOne, true, "ok", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(3, 1))

		approval := &entity.Approval{RequestID: 7, Approver: "m1@acme", Level: entity.LevelOne, Approved: true, Comments: "ok", CreatedAt: time.Now()}
		require.NoError(t, repo.Create(context.Background(), approval))
		assert.Equal(t, int64(3), approval.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation maps to duplicate key", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewApprovalRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approvals")).
			WillReturnError(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique})

		err := repo.Create(context.Background(), &entity.Approval{RequestID: 7, Level: entity.LevelOne})
		assert.True(t, errors.Is(err, port.ErrDuplicateKey))
	})

	t.Run("other errors are wrapped", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewApprovalRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approvals")).
			WillReturnError(errors.New("disk I/O error"))

		err := repo.Create(context.Background(), &entity.Approval{RequestID: 7, Level: entity.LevelOne})
		require.Error(t, err)
		assert.False(t, errors.Is(err, port.ErrDuplicateKey))
		assert.Contains(t, err.Error(), "failed to create approval")
	})
}

func TestApprovalRepository_GetByRequestID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewApprovalRepository(db, zap.NewNop())
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "request_id", "approver", "level", "approved", "comments", "created_at"}).
		AddRow(1, 7, "m1@acme", 1, true, "", now).
		AddRow(2, 7, "m2@acme", 2, false, "too expensive", now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM approvals")).WithArgs(int64(7)).WillReturnRows(rows)

	approvals, err := repo.GetByRequestID(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, approvals, 2)
	assert.Equal(t, "m2@acme", approvals[1].Approver)
	assert.False(t, approvals[1].Approved)
	assert.Equal(t, "too expensive", approvals[1].Comments)
}

func TestRequestRepository_GetByIDMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRequestRepository(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("FROM purchase_requests r")).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	req, err := repo.GetByID(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, req)
}

func TestRequestRepository_UpdateNotPending(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRequestRepository(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE purchase_requests")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT state, status FROM purchase_requests")).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"state", "status"}).AddRow("LEVEL1_APPROVED", "pending"))
	mock.ExpectRollback()

	err := repo.Update(context.Background(), &entity.PurchaseRequest{ID: 4, Title: "x", Amount: decimal.Zero})
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildRequestFilter(t *testing.T) {
	tests := []struct {
		name      string
		filter    entity.RequestFilter
		contains  []string
		wantArgs  int
		wantWhere int
	}{
		{
			name: "no filter",
		},
		{
			name:      "owner and status",
			filter:    entity.RequestFilter{OwnedBy: "alice", Status: entity.RequestStatusPending},
			contains:  []string{"r.created_by = ?", "r.status = ?"},
			wantArgs:  2,
			wantWhere: 2,
		},
		{
			name:      "finance pending",
			filter:    entity.RequestFilter{FinancePending: true},
			contains:  []string{"a.level = 1 AND a.approved = 1", "a.level = 2 AND a.approved = 1"},
			wantWhere: 3,
		},
		{
			name:      "level one approver",
			filter:    entity.RequestFilter{ApproverLevel: entity.LevelOne},
			contains:  []string{"NOT EXISTS (SELECT 1 FROM approvals a WHERE a.request_id = r.id AND a.level = 1)"},
			wantWhere: 2,
		},
		{
			name:      "level two approver",
			filter:    entity.RequestFilter{ApproverLevel: entity.LevelTwo, State: "LEVEL1_APPROVED"},
			contains:  []string{"r.state = ?", "NOT EXISTS (SELECT 1 FROM approvals a WHERE a.request_id = r.id AND a.level = 2)"},
			wantArgs:  1,
			wantWhere: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := buildRequestFilter(tt.filter)
			assert.Len(t, where, tt.wantWhere)
			assert.Len(t, args, tt.wantArgs)
			joined := strings.Join(where, " AND ")
			for _, c := range tt.contains {
				assert.Contains(t, joined, c)
			}
		})
	}
}

func TestOrderRepository_LatestNumber(t *testing.T) {
	t.Run("returns highest", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("SELECT po_number FROM purchase_orders")).
			WithArgs("PO-2026-%", 8, 9, 9).
			WillReturnRows(sqlmock.NewRows([]string{"po_number"}).AddRow("PO-2026-00012"))

		number, err := repo.LatestNumber(context.Background(), "PO-2026-")
		require.NoError(t, err)
		assert.Equal(t, "PO-2026-00012", number)
	})

	t.Run("empty when none", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("SELECT po_number FROM purchase_orders")).
			WillReturnRows(sqlmock.NewRows([]string{"po_number"}))

		number, err := repo.LatestNumber(context.Background(), "PO-2026-")
		require.NoError(t, err)
		assert.Empty(t, number)
	})
}

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"PO-2026-", "PO-2026-"},
		{"PO_2026-", `PO\_2026-`},
		{"100%-", `100\%-`},
		{`A\B-`, `A\\B-`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeLike(tt.in))
		})
	}
}

func TestOrderRepository_MarkRenderFailed(t *testing.T) {
	tests := []struct {
		name   string
		final  bool
		status entity.RenderStatus
	}{
		{"retryable", false, entity.RenderStatusPending},
		{"final", true, entity.RenderStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewOrderRepository(db, zap.NewNop())

			mock.ExpectExec(regexp.QuoteMeta("UPDATE purchase_orders")).
				WithArgs(string(tt.status), "pdf failed", sqlmock.AnyArg(), int64(5)).
				WillReturnResult(sqlmock.NewResult(0, 1))

			require.NoError(t, repo.MarkRenderFailed(context.Background(), 5, "pdf failed", tt.final))
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHistoryRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewHistoryRepository(db, zap.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transition_history")).
		WithArgs(int64(1), "fin@acme", "FINANCE_APPROVE", "LEVEL2_APPROVED", "FINANCE_APPROVED", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(10, 1))

	record := &entity.TransitionRecord{
		RequestID:     1,
		Actor:         "fin@acme",
		Action:        "FINANCE_APPROVE",
		PreviousState: "LEVEL2_APPROVED",
		NewState:      "FINANCE_APPROVED",
		CreatedAt:     time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), record))
	assert.Equal(t, int64(10), record.ID)
}
