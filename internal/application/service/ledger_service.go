package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/p2p-approval/internal/application/port"
	"github.com/garyjia/p2p-approval/internal/domain/entity"
	"github.com/garyjia/p2p-approval/pkg/apperr"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// LedgerService records manager decisions. At most one decision exists per
// (request, level); a second write is a DuplicateDecision.
type LedgerService interface {
	Record(ctx context.Context, requestID int64, level int, approver string, approved bool, comments string) (*entity.Approval, error)
	ListFor(ctx context.Context, requestID int64) ([]*entity.Approval, error)
	Level1Approved(ctx context.Context, requestID int64) (bool, error)
	Level2Approved(ctx context.Context, requestID int64) (bool, error)
	Snapshot(ctx context.Context, requestID int64) (entity.LedgerSnapshot, error)
}

type ledgerServiceImpl struct {
	approvalRepo port.ApprovalRepository
	logger       Logger
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(approvalRepo port.ApprovalRepository, logger Logger) LedgerService {
	return &ledgerServiceImpl{
		approvalRepo: approvalRepo,
		logger:       logger,
	}
}

// Record appends a decision to the ledger
func (s *ledgerServiceImpl) Record(ctx context.Context, requestID int64, level int, approver string, approved bool, comments string) (*entity.Approval, error) {
	if level != entity.LevelOne && level != entity.LevelTwo {
		return nil, apperr.ValidationFailed(map[string]string{"level": "must be 1 or 2"})
	}

	snapshot, err := s.Snapshot(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if snapshot.Decided(level) {
		return nil, apperr.DuplicateDecision("level %d already decided for request %d", level, requestID)
	}

	approval := &entity.Approval{
		RequestID: requestID,
		Approver:  approver,
		Level:     level,
		Approved:  approved,
		Comments:  comments,
		CreatedAt: time.Now(),
	}

	if err := s.approvalRepo.Create(ctx, approval); err != nil {
		if errors.Is(err, port.ErrDuplicateKey) {
			return nil, apperr.DuplicateDecision("level %d already decided for request %d", level, requestID)
		}
		s.logger.Error("Failed to record decision", "error", err, "request_id", requestID, "level", level)
		return nil, fmt.Errorf("record decision: %w", err)
	}

	s.logger.Info("Decision recorded",
		"request_id", requestID,
		"level", level,
		"approved", approved,
		"approver", approver)
	return approval, nil
}

// ListFor returns the decisions for a request ordered by level then creation time
func (s *ledgerServiceImpl) ListFor(ctx context.Context, requestID int64) ([]*entity.Approval, error) {
	approvals, err := s.approvalRepo.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get approvals: %w", err)
	}
	return approvals, nil
}

func (s *ledgerServiceImpl) Level1Approved(ctx context.Context, requestID int64) (bool, error) {
	snapshot, err := s.Snapshot(ctx, requestID)
	return snapshot.Level1Approved, err
}

func (s *ledgerServiceImpl) Level2Approved(ctx context.Context, requestID int64) (bool, error) {
	snapshot, err := s.Snapshot(ctx, requestID)
	return snapshot.Level2Approved, err
}

// Snapshot folds the recorded decisions for a request
func (s *ledgerServiceImpl) Snapshot(ctx context.Context, requestID int64) (entity.LedgerSnapshot, error) {
	approvals, err := s.ListFor(ctx, requestID)
	if err != nil {
		return entity.LedgerSnapshot{}, err
	}
	return entity.NewLedgerSnapshot(approvals), nil
}
