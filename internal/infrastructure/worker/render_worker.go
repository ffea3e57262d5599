package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/p2p-approval/internal/application/port"
	"github.com/garyjia/p2p-approval/internal/domain/entity"
	"github.com/garyjia/p2p-approval/internal/domain/event"
)

// RenderWorkerConfig holds configuration for the purchase order render worker
type RenderWorkerConfig struct {
	PollInterval  time.Duration
	BatchSize     int
	MaxAttempts   int
	RenderTimeout time.Duration
}

// DefaultRenderWorkerConfig returns default configuration
func DefaultRenderWorkerConfig() RenderWorkerConfig {
	return RenderWorkerConfig{
		PollInterval:  10 * time.Second,
		BatchSize:     10,
		MaxAttempts:   5,
		RenderTimeout: 30 * time.Second,
	}
}

// EventPublisher is the dispatcher side the worker emits on
type EventPublisher interface {
	DispatchAsync(ctx context.Context, evt *event.Event)
}

// RenderWorker renders documents for orders left pending by finance
// approval. Rendering runs outside any request lock; a failed attempt leaves
// the order pending until MaxAttempts is reached.
type RenderWorker struct {
	config RenderWorkerConfig

	orders    port.OrderRepository
	requests  port.RequestRepository
	renderer  port.DocumentRenderer
	metrics   port.MetricsRecorder
	publisher EventPublisher
	logger    *zap.Logger

	nudge chan struct{}

	mu            sync.RWMutex
	cancel        context.CancelFunc
	done          chan struct{}
	isRunning     bool
	renderedCount int
	failedCount   int
	lastError     error
	lastProcessed time.Time
}

// NewRenderWorker creates a new render worker. metrics and publisher may be nil.
func NewRenderWorker(
	config RenderWorkerConfig,
	orders port.OrderRepository,
	requests port.RequestRepository,
	renderer port.DocumentRenderer,
	metrics port.MetricsRecorder,
	publisher EventPublisher,
	logger *zap.Logger,
) *RenderWorker {
	defaults := DefaultRenderWorkerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.RenderTimeout <= 0 {
		config.RenderTimeout = defaults.RenderTimeout
	}

	return &RenderWorker{
		config:    config,
		orders:    orders,
		requests:  requests,
		renderer:  renderer,
		metrics:   metrics,
		publisher: publisher,
		logger:    logger,
		nudge:     make(chan struct{}, 1),
	}
}

// Start begins the polling loop
func (w *RenderWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("render worker already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("RenderWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize),
		zap.Int("max_attempts", w.config.MaxAttempts))

	go w.pollLoop(loopCtx)
	return nil
}

// Stop cancels the loop and waits for the in-flight batch
func (w *RenderWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.mu.RLock()
	defer w.mu.RUnlock()
	w.logger.Info("RenderWorker stopped",
		zap.Int("rendered_count", w.renderedCount),
		zap.Int("failed_count", w.failedCount))
	return nil
}

// Name returns the worker name for identification
func (w *RenderWorker) Name() string {
	return "RenderWorker"
}

// Nudge asks the loop to run a batch now instead of waiting for the ticker
func (w *RenderWorker) Nudge() {
	select {
	case w.nudge <- struct{}{}:
	default:
	}
}

// HandleOrderGenerated is the dispatcher handler for order.generated
func (w *RenderWorker) HandleOrderGenerated(ctx context.Context, evt *event.Event) error {
	w.Nudge()
	return nil
}

// Stats returns counters for health reporting
func (w *RenderWorker) Stats() (rendered, failed int, lastError error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.renderedCount, w.failedCount, w.lastError
}

func (w *RenderWorker) pollLoop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Render loop context cancelled")
			return
		case <-ticker.C:
		case <-w.nudge:
		}

		if _, err := w.ProcessBatch(ctx); err != nil {
			w.mu.Lock()
			w.lastError = err
			w.mu.Unlock()
			w.logger.Error("Failed to process render batch", zap.Error(err))
		}
	}
}

// ProcessBatch renders up to BatchSize pending orders and returns how many succeeded
func (w *RenderWorker) ProcessBatch(ctx context.Context) (int, error) {
	orders, err := w.orders.GetPendingRender(ctx, w.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending orders: %w", err)
	}

	rendered := 0
	for _, order := range orders {
		if ctx.Err() != nil {
			break
		}
		if w.renderOne(ctx, order) {
			rendered++
		}
	}

	w.mu.Lock()
	w.lastProcessed = time.Now()
	w.mu.Unlock()
	return rendered, nil
}

func (w *RenderWorker) renderOne(ctx context.Context, order *entity.PurchaseOrder) bool {
	renderCtx, cancel := context.WithTimeout(ctx, w.config.RenderTimeout)
	defer cancel()

	ref, err := w.render(renderCtx, order)
	if err != nil {
		final := order.RenderAttempts+1 >= w.config.MaxAttempts
		w.logger.Error("Failed to render purchase order",
			zap.Int64("order_id", order.ID),
			zap.String("po_number", order.PONumber),
			zap.Int("attempt", order.RenderAttempts+1),
			zap.Bool("final", final),
			zap.Error(err))

		if markErr := w.orders.MarkRenderFailed(ctx, order.ID, err.Error(), final); markErr != nil {
			w.logger.Error("Failed to record render failure", zap.Int64("order_id", order.ID), zap.Error(markErr))
		}

		outcome := "retry"
		if final {
			outcome = "failed"
		}
		w.observe(outcome)

		w.mu.Lock()
		w.failedCount++
		w.lastError = err
		w.mu.Unlock()
		return false
	}

	if err := w.orders.MarkRendered(ctx, order.ID, ref); err != nil {
		w.logger.Error("Failed to record rendered document", zap.Int64("order_id", order.ID), zap.Error(err))
		w.observe("retry")
		return false
	}

	w.observe("rendered")
	w.mu.Lock()
	w.renderedCount++
	w.mu.Unlock()

	if w.publisher != nil {
		w.publisher.DispatchAsync(ctx, event.NewEvent(event.TypeOrderRendered, order.RequestID, "system", map[string]interface{}{
			"order_id":  order.ID,
			"po_number": order.PONumber,
			"ref":       ref,
		}))
	}
	return true
}

func (w *RenderWorker) render(ctx context.Context, order *entity.PurchaseOrder) (string, error) {
	req, err := w.requests.GetByID(ctx, order.RequestID)
	if err != nil {
		return "", fmt.Errorf("load request %d: %w", order.RequestID, err)
	}
	if req == nil {
		return "", fmt.Errorf("request %d not found", order.RequestID)
	}
	return w.renderer.Render(ctx, order, req)
}

func (w *RenderWorker) observe(outcome string) {
	if w.metrics != nil {
		w.metrics.ObserveRender(outcome)
	}
}

var _ Worker = (*RenderWorker)(nil)
