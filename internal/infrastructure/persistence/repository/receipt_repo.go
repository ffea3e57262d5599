package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/garyjia/p2p-approval/internal/application/port"
	"github.com/garyjia/p2p-approval/internal/domain/entity"
	"github.com/garyjia/p2p-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// ReceiptRepository implements port.ReceiptRepository
type ReceiptRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewReceiptRepository creates a new receipt repository
func NewReceiptRepository(db *sqlite.DB, logger *zap.Logger) port.ReceiptRepository {
	return &ReceiptRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert stores the latest submission for the request. The row keeps its
// id and created_at; submissions counts every upload.
func (r *ReceiptRepository) Upsert(ctx context.Context, receipt *entity.Receipt) error {
	items, err := json.Marshal(receipt.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt items: %w", err)
	}
	discrepancies, err := json.Marshal(receipt.Discrepancies)
	if err != nil {
		return fmt.Errorf("failed to marshal discrepancies: %w", err)
	}

	query := `
		INSERT INTO receipts (
			request_id, uploaded_by, document, seller, items, validated,
			discrepancies, submissions, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			uploaded_by = excluded.uploaded_by,
			document = excluded.document,
			seller = excluded.seller,
			items = excluded.items,
			validated = excluded.validated,
			discrepancies = excluded.discrepancies,
			submissions = receipts.submissions + 1,
			updated_at = excluded.updated_at
		RETURNING id, submissions
	`

	err = r.db.Conn(ctx).QueryRowContext(ctx, query,
		receipt.RequestID,
		receipt.UploadedBy,
		receipt.Document,
		receipt.Seller,
		string(items),
		receipt.Validated,
		string(discrepancies),
		receipt.CreatedAt,
		receipt.UpdatedAt,
	).Scan(&receipt.ID, &receipt.Submissions)
	if err != nil {
		r.logger.Error("Failed to upsert receipt", zap.Int64("request_id", receipt.RequestID), zap.Error(err))
		return fmt.Errorf("failed to upsert receipt: %w", err)
	}

	err = r.db.Conn(ctx).QueryRowContext(ctx, `SELECT created_at FROM receipts WHERE id = ?`, receipt.ID).Scan(&receipt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to read receipt: %w", err)
	}

	return nil
}

// GetByRequestID retrieves the receipt for a request
func (r *ReceiptRepository) GetByRequestID(ctx context.Context, requestID int64) (*entity.Receipt, error) {
	query := `
		SELECT id, request_id, uploaded_by, document, seller, items, validated,
			discrepancies, submissions, created_at, updated_at
		FROM receipts
		WHERE request_id = ?
	`

	var receipt entity.Receipt
	var items, discrepancies string
	err := r.db.Conn(ctx).QueryRowContext(ctx, query, requestID).Scan(
		&receipt.ID,
		&receipt.RequestID,
		&receipt.UploadedBy,
		&receipt.Document,
		&receipt.Seller,
		&items,
		&receipt.Validated,
		&discrepancies,
		&receipt.Submissions,
		&receipt.CreatedAt,
		&receipt.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get receipt", zap.Int64("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}

	if err := json.Unmarshal([]byte(items), &receipt.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt items: %w", err)
	}
	if err := json.Unmarshal([]byte(discrepancies), &receipt.Discrepancies); err != nil {
		return nil, fmt.Errorf("failed to unmarshal discrepancies: %w", err)
	}

	return &receipt, nil
}

// Verify interface compliance
var _ port.ReceiptRepository = (*ReceiptRepository)(nil)
