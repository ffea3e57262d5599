package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/p2p-approval/internal/application/port"
	"github.com/garyjia/p2p-approval/internal/domain/entity"
	"github.com/garyjia/p2p-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/p2p-approval/pkg/apperr"
)

const requestColumns = `r.id, r.title, r.description, r.amount, r.status, r.state, r.created_by,
			r.proforma, r.purchase_order_id, r.created_at, r.updated_at`

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sqlite.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the request and its items
func (r *RequestRepository) Create(ctx context.Context, req *entity.PurchaseRequest) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO purchase_requests (
				title, description, amount, status, state, created_by,
				proforma, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`

		result, err := r.db.Conn(ctx).ExecContext(ctx, query,
			req.Title,
			req.Description,
			req.Amount,
			string(req.Status),
			req.State,
			req.CreatedBy,
			req.Proforma,
			req.CreatedAt,
			req.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create request", zap.Error(err))
			return fmt.Errorf("failed to create request: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		req.ID = id

		return r.insertItems(ctx, id, req.Items)
	})
}

// GetByID retrieves a request with its items
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*entity.PurchaseRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM purchase_requests r
		WHERE r.id = ?
	`

	req, err := scanRequest(r.db.Conn(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	items, err := r.loadItems(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	req.Items = items[id]

	return req, nil
}

// Update rewrites the editable fields of a request still in its initial state
func (r *RequestRepository) Update(ctx context.Context, req *entity.PurchaseRequest) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		query := `
			UPDATE purchase_requests
			SET title = ?, description = ?, amount = ?, updated_at = ?
			WHERE id = ? AND state = ?
		`

		result, err := r.db.Conn(ctx).ExecContext(ctx, query,
			req.Title,
			req.Description,
			req.Amount,
			req.UpdatedAt,
			req.ID,
			entity.EditableState,
		)
		if err != nil {
			r.logger.Error("Failed to update request", zap.Int64("id", req.ID), zap.Error(err))
			return fmt.Errorf("failed to update request: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return r.notPending(ctx, req.ID)
		}

		if _, err := r.db.Conn(ctx).ExecContext(ctx, `DELETE FROM request_items WHERE request_id = ?`, req.ID); err != nil {
			return fmt.Errorf("failed to clear request items: %w", err)
		}
		return r.insertItems(ctx, req.ID, req.Items)
	})
}

// SetState updates the workflow state and its status projection
func (r *RequestRepository) SetState(ctx context.Context, id int64, state string, status entity.RequestStatus) error {
	query := `UPDATE purchase_requests SET state = ?, status = ?, updated_at = ? WHERE id = ?`
	return r.exec(ctx, "set request state", query, state, string(status), time.Now(), id)
}

// AttachPurchaseOrder links the generated order to the request
func (r *RequestRepository) AttachPurchaseOrder(ctx context.Context, id int64, orderID int64) error {
	query := `UPDATE purchase_requests SET purchase_order_id = ?, updated_at = ? WHERE id = ?`
	return r.exec(ctx, "attach purchase order", query, orderID, time.Now(), id)
}

// SetProforma stores the proforma document reference
func (r *RequestRepository) SetProforma(ctx context.Context, id int64, ref string) error {
	query := `UPDATE purchase_requests SET proforma = ?, updated_at = ? WHERE id = ? AND state = ?`
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, ref, time.Now(), id, entity.EditableState)
	if err != nil {
		r.logger.Error("Failed to set proforma", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to set proforma: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return r.notPending(ctx, id)
	}
	return nil
}

// List returns requests matching the filter, newest first
func (r *RequestRepository) List(ctx context.Context, filter entity.RequestFilter) ([]*entity.PurchaseRequest, error) {
	where, args := buildRequestFilter(filter)

	query := `SELECT ` + requestColumns + `
		FROM purchase_requests r`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY r.created_at DESC, r.id DESC\n\t\tLIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	requests := []*entity.PurchaseRequest{}
	ids := []int64{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
		ids = append(ids, req.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, req := range requests {
		req.Items = items[req.ID]
	}

	return requests, nil
}

// buildRequestFilter translates the filter into WHERE clauses
func buildRequestFilter(filter entity.RequestFilter) ([]string, []interface{}) {
	var where []string
	var args []interface{}

	if filter.OwnedBy != "" {
		where = append(where, "r.created_by = ?")
		args = append(args, filter.OwnedBy)
	}
	if filter.Status != "" {
		where = append(where, "r.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.State != "" {
		where = append(where, "r.state = ?")
		args = append(args, filter.State)
	}

	const decided = "EXISTS (SELECT 1 FROM approvals a WHERE a.request_id = r.id AND a.level = %d%s)"
	if filter.FinancePending {
		where = append(where,
			"r.status = 'pending'",
			fmt.Sprintf(decided, entity.LevelOne, " AND a.approved = 1"),
			fmt.Sprintf(decided, entity.LevelTwo, " AND a.approved = 1"))
	}
	switch filter.ApproverLevel {
	case entity.LevelOne:
		where = append(where,
			"r.status = 'pending'",
			"NOT "+fmt.Sprintf(decided, entity.LevelOne, ""))
	case entity.LevelTwo:
		where = append(where,
			"r.status = 'pending'",
			fmt.Sprintf(decided, entity.LevelOne, " AND a.approved = 1"),
			"NOT "+fmt.Sprintf(decided, entity.LevelTwo, ""))
	}

	return where, args
}

func (r *RequestRepository) insertItems(ctx context.Context, requestID int64, items []entity.LineItem) error {
	query := `
		INSERT INTO request_items (request_id, position, description, quantity, unit_price)
		VALUES (?, ?, ?, ?, ?)
	`
	for i, item := range items {
		if _, err := r.db.Conn(ctx).ExecContext(ctx, query, requestID, i, item.Description, item.Quantity, item.UnitPrice); err != nil {
			r.logger.Error("Failed to insert request item", zap.Int64("request_id", requestID), zap.Error(err))
			return fmt.Errorf("failed to insert request item: %w", err)
		}
	}
	return nil
}

func (r *RequestRepository) loadItems(ctx context.Context, ids []int64) (map[int64][]entity.LineItem, error) {
	items := make(map[int64][]entity.LineItem, len(ids))
	if len(ids) == 0 {
		return items, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := `
		SELECT request_id, description, quantity, unit_price
		FROM request_items
		WHERE request_id IN (` + placeholders + `)
		ORDER BY request_id, position
	`
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.Conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load request items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var requestID int64
		var item entity.LineItem
		if err := rows.Scan(&requestID, &item.Description, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan request item: %w", err)
		}
		items[requestID] = append(items[requestID], item)
	}

	return items, rows.Err()
}

// notPending explains why a guarded update touched no rows
func (r *RequestRepository) notPending(ctx context.Context, id int64) error {
	var state string
	var status string
	err := r.db.Conn(ctx).QueryRowContext(ctx, `SELECT state, status FROM purchase_requests WHERE id = ?`, id).Scan(&state, &status)
	if err == sql.ErrNoRows {
		return apperr.NotFound("purchase request %d not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to get request state: %w", err)
	}
	return apperr.InvalidState(state, "request %d is %s and can no longer be edited", id, state)
}

func (r *RequestRepository) exec(ctx context.Context, op, query string, args ...interface{}) error {
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
		return apperr.NotFound("purchase request not found")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*entity.PurchaseRequest, error) {
	var req entity.PurchaseRequest
	var status string
	var orderID sql.NullInt64

	err := row.Scan(
		&req.ID,
		&req.Title,
		&req.Description,
		&req.Amount,
		&status,
		&req.State,
		&req.CreatedBy,
		&req.Proforma,
		&orderID,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Status = entity.RequestStatus(status)
	if orderID.Valid {
		req.PurchaseOrderID = &orderID.Int64
	}
	return &req, nil
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
