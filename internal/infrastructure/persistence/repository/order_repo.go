package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/garyjia/p2p-approval/internal/application/port"
	"github.com/garyjia/p2p-approval/internal/domain/entity"
	"github.com/garyjia/p2p-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/p2p-approval/pkg/apperr"
	"go.uber.org/zap"
)

const orderColumns = `id, request_id, po_number, vendor, items, total_amount, po_file,
			render_status, render_attempts, render_error, created_at, updated_at`

// OrderRepository implements port.OrderRepository
type OrderRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewOrderRepository creates a new purchase order repository
func NewOrderRepository(db *sqlite.DB, logger *zap.Logger) port.OrderRepository {
	return &OrderRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a purchase order. A clash on po_number or request_id
// fails with port.ErrDuplicateKey.
func (r *OrderRepository) Create(ctx context.Context, order *entity.PurchaseOrder) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	if order.RenderStatus == "" {
		order.RenderStatus = entity.RenderStatusPending
	}

	query := `
		INSERT INTO purchase_orders (
			request_id, po_number, vendor, items, total_amount,
			render_status, render_attempts, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
	`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query,
		order.RequestID,
		order.PONumber,
		order.Vendor,
		string(items),
		order.TotalAmount,
		string(order.RenderStatus),
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return fmt.Errorf("purchase order %s: %w", order.PONumber, port.ErrDuplicateKey)
		}
		r.logger.Error("Failed to create purchase order", zap.Int64("request_id", order.RequestID), zap.Error(err))
		return fmt.Errorf("failed to create purchase order: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	order.ID = id
	return nil
}

// GetByID retrieves a purchase order by ID
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*entity.PurchaseOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE id = ?`
	return r.getOne(ctx, query, id)
}

// GetByRequestID retrieves the order generated for a request
func (r *OrderRepository) GetByRequestID(ctx context.Context, requestID int64) (*entity.PurchaseOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE request_id = ?`
	return r.getOne(ctx, query, requestID)
}

// LatestNumber returns the po_number with the given prefix and the highest
// numeric suffix. Numbers whose suffix is not all digits are ignored.
func (r *OrderRepository) LatestNumber(ctx context.Context, prefix string) (string, error) {
	query := `
		SELECT po_number FROM purchase_orders
		WHERE po_number LIKE ? ESCAPE '\'
		  AND length(po_number) > ?
		  AND substr(po_number, ?) NOT GLOB '*[^0-9]*'
		ORDER BY CAST(substr(po_number, ?) AS INTEGER) DESC
		LIMIT 1
	`

	// sqlite length and substr count characters
	prefixLen := utf8.RuneCountInString(prefix)
	var number string
	err := r.db.Conn(ctx).QueryRowContext(ctx, query,
		escapeLike(prefix)+"%", prefixLen, prefixLen+1, prefixLen+1,
	).Scan(&number)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest po number: %w", err)
	}
	return number, nil
}

// escapeLike quotes LIKE wildcards so prefix matches literally
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// GetPendingRender returns orders whose document has not been rendered yet, oldest first
func (r *OrderRepository) GetPendingRender(ctx context.Context, limit int) ([]*entity.PurchaseOrder, error) {
	query := `SELECT ` + orderColumns + `
		FROM purchase_orders
		WHERE render_status = ?
		ORDER BY id ASC
		LIMIT ?
	`
	return r.getMany(ctx, query, string(entity.RenderStatusPending), limit)
}

// MarkRendered stores the rendered document reference
func (r *OrderRepository) MarkRendered(ctx context.Context, id int64, ref string) error {
	query := `
		UPDATE purchase_orders
		SET po_file = ?, render_status = ?, render_attempts = render_attempts + 1,
			render_error = '', updated_at = ?
		WHERE id = ?
	`
	return r.update(ctx, "mark order rendered", query, ref, string(entity.RenderStatusRendered), time.Now(), id)
}

// MarkRenderFailed records a failed attempt. Final failures leave the order
// out of the pending queue.
func (r *OrderRepository) MarkRenderFailed(ctx context.Context, id int64, errMsg string, final bool) error {
	status := entity.RenderStatusPending
	if final {
		status = entity.RenderStatusFailed
	}

	query := `
		UPDATE purchase_orders
		SET render_status = ?, render_attempts = render_attempts + 1,
			render_error = ?, updated_at = ?
		WHERE id = ?
	`
	return r.update(ctx, "mark order render failed", query, string(status), errMsg, time.Now(), id)
}

// List returns orders newest first
func (r *OrderRepository) List(ctx context.Context, limit, offset int) ([]*entity.PurchaseOrder, error) {
	query := `SELECT ` + orderColumns + `
		FROM purchase_orders
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`
	return r.getMany(ctx, query, limit, offset)
}

func (r *OrderRepository) getOne(ctx context.Context, query string, args ...interface{}) (*entity.PurchaseOrder, error) {
	order, err := scanOrder(r.db.Conn(ctx).QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get purchase order", zap.Error(err))
		return nil, fmt.Errorf("failed to get purchase order: %w", err)
	}
	return order, nil
}

func (r *OrderRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]*entity.PurchaseOrder, error) {
	rows, err := r.db.Conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list purchase orders", zap.Error(err))
		return nil, fmt.Errorf("failed to list purchase orders: %w", err)
	}
	defer rows.Close()

	orders := []*entity.PurchaseOrder{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase order: %w", err)
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

func (r *OrderRepository) update(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, zap.Error(err))
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("purchase order not found")
	}
	return nil
}

func scanOrder(row rowScanner) (*entity.PurchaseOrder, error) {
	var order entity.PurchaseOrder
	var items string
	var status string

	err := row.Scan(
		&order.ID,
		&order.RequestID,
		&order.PONumber,
		&order.Vendor,
		&items,
		&order.TotalAmount,
		&order.POFile,
		&status,
		&order.RenderAttempts,
		&order.RenderError,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(items), &order.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order items: %w", err)
	}
	order.RenderStatus = entity.RenderStatus(status)
	return &order, nil
}

// Verify interface compliance
var _ port.OrderRepository = (*OrderRepository)(nil)
