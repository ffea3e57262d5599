package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/p2p-approval/internal/application/port"
	"github.com/garyjia/p2p-approval/internal/domain/entity"
)

const defaultNumberPrefix = "PO"

// OrderConfig holds purchase order generation settings
type OrderConfig struct {
	NumberPrefix  string
	DefaultVendor string
	// MaxAttempts bounds po_number collision retries
	MaxAttempts int
}

// OrderGenerator creates the purchase order for a finance-approved request
type OrderGenerator interface {
	// Generate returns the existing order for the request or creates one.
	// The bool is true when a new order was created.
	Generate(ctx context.Context, req *entity.PurchaseRequest) (*entity.PurchaseOrder, bool, error)
}

type orderGeneratorImpl struct {
	orderRepo port.OrderRepository
	config    OrderConfig
	logger    Logger
	now       func() time.Time
}

// OrderOption configures the order generator
type OrderOption func(*orderGeneratorImpl)

// WithClock overrides the time source used for numbering and timestamps
func WithClock(now func() time.Time) OrderOption {
	return func(g *orderGeneratorImpl) {
		g.now = now
	}
}

// NewOrderGenerator creates a new OrderGenerator
func NewOrderGenerator(orderRepo port.OrderRepository, config OrderConfig, logger Logger, opts ...OrderOption) OrderGenerator {
	if config.NumberPrefix == "" {
		config.NumberPrefix = defaultNumberPrefix
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}

	g := &orderGeneratorImpl{
		orderRepo: orderRepo,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate allocates PO-{yyyy}-{seq} and snapshots the request items
func (g *orderGeneratorImpl) Generate(ctx context.Context, req *entity.PurchaseRequest) (*entity.PurchaseOrder, bool, error) {
	existing, err := g.orderRepo.GetByRequestID(ctx, req.ID)
	if err != nil {
		return nil, false, fmt.Errorf("get existing order: %w", err)
	}
	if existing != nil {
		g.logger.Info("Purchase order already exists", "request_id", req.ID, "po_number", existing.PONumber)
		return existing, false, nil
	}

	now := g.now()
	base := fmt.Sprintf("%s-%d-", g.config.NumberPrefix, now.Year())

	seq, err := g.latestSequence(ctx, base)
	if err != nil {
		return nil, false, err
	}

	items := make([]entity.LineItem, len(req.Items))
	copy(items, req.Items)

	for attempt := 1; attempt <= g.config.MaxAttempts; attempt++ {
		seq++
		order := &entity.PurchaseOrder{
			RequestID:    req.ID,
			PONumber:     fmt.Sprintf("%s%05d", base, seq),
			Vendor:       g.config.DefaultVendor,
			Items:        items,
			TotalAmount:  req.Amount,
			RenderStatus: entity.RenderStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		err := g.orderRepo.Create(ctx, order)
		if err == nil {
			g.logger.Info("Purchase order generated", "request_id", req.ID, "po_number", order.PONumber)
			return order, true, nil
		}
		if !errors.Is(err, port.ErrDuplicateKey) {
			return nil, false, fmt.Errorf("create order: %w", err)
		}

		// the conflict may be on request_id rather than po_number
		if existing, lookupErr := g.orderRepo.GetByRequestID(ctx, req.ID); lookupErr == nil && existing != nil {
			return existing, false, nil
		}
		g.logger.Info("PO number collision, retrying", "po_number", order.PONumber, "attempt", attempt)
	}

	return nil, false, fmt.Errorf("allocate po number for request %d: exhausted %d attempts", req.ID, g.config.MaxAttempts)
}

func (g *orderGeneratorImpl) latestSequence(ctx context.Context, base string) (int, error) {
	latest, err := g.orderRepo.LatestNumber(ctx, base)
	if err != nil {
		return 0, fmt.Errorf("get latest po number: %w", err)
	}
	if latest == "" {
		return 0, nil
	}

	seq, err := strconv.Atoi(strings.TrimPrefix(latest, base))
	if err != nil {
		return 0, fmt.Errorf("parse po number %q: %w", latest, err)
	}
	return seq, nil
}
