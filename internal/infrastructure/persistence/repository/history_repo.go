package repository

import (
	"context"
	"fmt"

	"github.com/garyjia/p2p-approval/internal/application/port"
	"github.com/garyjia/p2p-approval/internal/domain/entity"
	"github.com/garyjia/p2p-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sqlite.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new history record
func (r *HistoryRepository) Create(ctx context.Context, record *entity.TransitionRecord) error {
	query := `
		INSERT INTO transition_history (
			request_id, actor, action, previous_state, new_state, comments, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query,
		record.RequestID,
		record.Actor,
		record.Action,
		record.PreviousState,
		record.NewState,
		record.Comments,
		record.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	record.ID = id
	return nil
}

// GetByRequestID retrieves all history records for a request in the order they were written
func (r *HistoryRepository) GetByRequestID(ctx context.Context, requestID int64) ([]*entity.TransitionRecord, error) {
	query := `
		SELECT id, request_id, actor, action, previous_state, new_state, comments, created_at
		FROM transition_history
		WHERE request_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Conn(ctx).QueryContext(ctx, query, requestID)
	if err != nil {
		r.logger.Error("Failed to get history by request ID", zap.Int64("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	records := []*entity.TransitionRecord{}
	for rows.Next() {
		var record entity.TransitionRecord
		err := rows.Scan(
			&record.ID,
			&record.RequestID,
			&record.Actor,
			&record.Action,
			&record.PreviousState,
			&record.NewState,
			&record.Comments,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, &record)
	}

	return records, rows.Err()
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
