package repository

import (
	"context"
	"fmt"

	"github.com/garyjia/p2p-approval/internal/application/port"
	"github.com/garyjia/p2p-approval/internal/domain/entity"
	"github.com/garyjia/p2p-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// ApprovalRepository implements port.ApprovalRepository
type ApprovalRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *sqlite.DB, logger *zap.Logger) port.ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

// Create records a decision. A second decision at the same level
// fails with port.ErrDuplicateKey.
func (r *ApprovalRepository) Create(ctx context.Context, approval *entity.Approval) error {
	query := `
		INSERT INTO approvals (request_id, approver, level, approved, comments, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query,
		approval.RequestID,
		approval.Approver,
		approval.Level,
		approval.Approved,
		approval.Comments,
		approval.CreatedAt,
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return fmt.Errorf("approval for request %d level %d: %w", approval.RequestID, approval.Level, port.ErrDuplicateKey)
		}
		r.logger.Error("Failed to create approval", zap.Int64("request_id", approval.RequestID), zap.Error(err))
		return fmt.Errorf("failed to create approval: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	approval.ID = id
	return nil
}

// GetByRequestID retrieves the decisions for a request ordered by level
func (r *ApprovalRepository) GetByRequestID(ctx context.Context, requestID int64) ([]*entity.Approval, error) {
	query := `
		SELECT id, request_id, approver, level, approved, comments, created_at
		FROM approvals
		WHERE request_id = ?
		ORDER BY level ASC, created_at ASC
	`

	rows, err := r.db.Conn(ctx).QueryContext(ctx, query, requestID)
	if err != nil {
		r.logger.Error("Failed to get approvals by request ID", zap.Int64("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to get approvals: %w", err)
	}
	defer rows.Close()

	approvals := []*entity.Approval{}
	for rows.Next() {
		var a entity.Approval
		if err := rows.Scan(&a.ID, &a.RequestID, &a.Approver, &a.Level, &a.Approved, &a.Comments, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, &a)
	}

	return approvals, rows.Err()
}

// Verify interface compliance
var _ port.ApprovalRepository = (*ApprovalRepository)(nil)
