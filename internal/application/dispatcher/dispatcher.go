// Package dispatcher fans committed workflow events out to subscribers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/p2p-approval/internal/domain/event"
)

// ErrClosed is returned once Close has been called
var ErrClosed = errors.New("dispatcher is closed")

// Dispatcher routes committed-transition events to subscribers
type Dispatcher interface {
	// Subscribe registers a named handler for an event type
	Subscribe(eventType event.Type, name string, handler Handler)

	// Dispatch runs all handlers for the event in order and returns the first error
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync runs handlers in the background, detached from ctx cancellation
	DispatchAsync(ctx context.Context, evt *event.Event)

	// Handlers returns the names of handlers registered for an event type
	Handlers(eventType event.Type) []string

	// Close stops accepting events and waits for in-flight async handlers
	Close() error
}

// Logger is the logging surface the dispatcher needs
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type eventDispatcher struct {
	logger       Logger
	asyncTimeout time.Duration

	mu     sync.RWMutex
	subs   map[event.Type][]subscription
	closed bool
	wg     sync.WaitGroup
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithAsyncTimeout bounds each background handler run. Zero means no bound.
func WithAsyncTimeout(timeout time.Duration) Option {
	return func(d *eventDispatcher) {
		d.asyncTimeout = timeout
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		logger: nopLogger{},
		subs:   make(map[event.Type][]subscription),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	d.subs[eventType] = append(d.subs[eventType], subscription{name: name, handler: handler})
	d.mu.Unlock()

	d.logger.Info("Handler registered", "event_type", eventType, "handler_name", name)
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	subs, err := d.subscribers(evt.Type)
	if err != nil {
		return err
	}

	for _, s := range subs {
		if err := s.call(ctx, evt); err != nil {
			d.logFailure("Handler error", evt, s.name, err)
			return fmt.Errorf("handler %s failed: %w", s.name, err)
		}
	}
	return nil
}

func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Error("Dropping event, dispatcher is closed", "event_type", evt.Type, "event_id", evt.ID)
		return
	}

	// the originating request usually finishes before handlers do
	detached := context.WithoutCancel(ctx)

	for _, s := range d.subs[evt.Type] {
		d.wg.Add(1)
		go d.runAsync(detached, evt, s)
	}
}

func (d *eventDispatcher) runAsync(ctx context.Context, evt *event.Event, s subscription) {
	defer d.wg.Done()

	if d.asyncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.asyncTimeout)
		defer cancel()
	}

	if err := s.call(ctx, evt); err != nil {
		d.logFailure("Async handler error", evt, s.name, err)
	}
}

func (d *eventDispatcher) Handlers(eventType event.Type) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.subs[eventType]))
	for _, s := range d.subs[eventType] {
		names = append(names, s.name)
	}
	return names
}

func (d *eventDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	d.mu.Unlock()

	d.logger.Info("Closing dispatcher, waiting for async handlers")
	d.wg.Wait()
	return nil
}

func (d *eventDispatcher) subscribers(eventType event.Type) ([]subscription, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	return append([]subscription(nil), d.subs[eventType]...), nil
}

func (d *eventDispatcher) logFailure(msg string, evt *event.Event, handler string, err error) {
	d.logger.Error(msg,
		"event_type", evt.Type,
		"event_id", evt.ID,
		"handler_name", handler,
		"error", err,
	)
}
