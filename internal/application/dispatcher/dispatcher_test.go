package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/p2p-approval/internal/domain/event"
)

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) HasInfo(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range m.infos {
		if info == msg {
			return true
		}
	}
	return false
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func TestSubscribe(t *testing.T) {
	t.Run("runs handlers in registration order", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var order []string

		d.Subscribe(event.TypeOrderGenerated, "first", func(ctx context.Context, evt *event.Event) error {
			order = append(order, "first")
			return nil
		})
		d.Subscribe(event.TypeOrderGenerated, "second", func(ctx context.Context, evt *event.Event) error {
			order = append(order, "second")
			return nil
		})

		evt := event.NewEvent(event.TypeOrderGenerated, 1, "finance", nil)
		if err := d.Dispatch(context.Background(), evt); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}

		if len(order) != 2 || order[0] != "first" || order[1] != "second" {
			t.Errorf("handler order = %v, want [first second]", order)
		}
		if !logger.HasInfo("Handler registered") {
			t.Error("expected registration to be logged")
		}
	})

	t.Run("lists handler names", func(t *testing.T) {
		d := NewDispatcher()
		d.Subscribe(event.TypeReceiptSubmitted, "metrics", func(ctx context.Context, evt *event.Event) error { return nil })

		names := d.Handlers(event.TypeReceiptSubmitted)
		if len(names) != 1 || names[0] != "metrics" {
			t.Errorf("Handlers() = %v, want [metrics]", names)
		}
		if len(d.Handlers(event.TypeOrderRendered)) != 0 {
			t.Error("expected no handlers for unsubscribed type")
		}
	})
}

func TestDispatch(t *testing.T) {
	t.Run("stops at first handler error", func(t *testing.T) {
		d := NewDispatcher()
		secondCalled := false
		boom := errors.New("boom")

		d.Subscribe(event.TypeRequestDecided, "failing", func(ctx context.Context, evt *event.Event) error {
			return boom
		})
		d.Subscribe(event.TypeRequestDecided, "after", func(ctx context.Context, evt *event.Event) error {
			secondCalled = true
			return nil
		})

		err := d.Dispatch(context.Background(), event.NewEvent(event.TypeRequestDecided, 1, "m1", nil))
		if !errors.Is(err, boom) {
			t.Fatalf("Dispatch() error = %v, want %v", err, boom)
		}
		if secondCalled {
			t.Error("expected later handlers to be skipped")
		}
	})

	t.Run("recovers handler panic", func(t *testing.T) {
		d := NewDispatcher()
		d.Subscribe(event.TypeRequestDecided, "panicky", func(ctx context.Context, evt *event.Event) error {
			panic("unexpected")
		})

		err := d.Dispatch(context.Background(), event.NewEvent(event.TypeRequestDecided, 1, "m1", nil))
		if err == nil {
			t.Fatal("expected panic to surface as error")
		}
	})

	t.Run("no handlers is not an error", func(t *testing.T) {
		d := NewDispatcher()
		if err := d.Dispatch(context.Background(), event.NewEvent(event.TypeRequestCreated, 1, "s", nil)); err != nil {
			t.Errorf("Dispatch() error = %v", err)
		}
	})
}

func TestDispatchAsync(t *testing.T) {
	t.Run("handlers outlive a cancelled caller context", func(t *testing.T) {
		d := NewDispatcher()
		var sawCancel atomic.Bool
		done := make(chan struct{})

		d.Subscribe(event.TypeOrderGenerated, "render", func(ctx context.Context, evt *event.Event) error {
			defer close(done)
			time.Sleep(10 * time.Millisecond)
			if ctx.Err() != nil {
				sawCancel.Store(true)
			}
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		d.DispatchAsync(ctx, event.NewEvent(event.TypeOrderGenerated, 1, "finance", nil))
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("async handler did not run")
		}
		if sawCancel.Load() {
			t.Error("async handler should not observe caller cancellation")
		}
	})

	t.Run("logs async handler errors", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		d.Subscribe(event.TypeOrderGenerated, "failing", func(ctx context.Context, evt *event.Event) error {
			return errors.New("render unavailable")
		})

		d.DispatchAsync(context.Background(), event.NewEvent(event.TypeOrderGenerated, 1, "finance", nil))
		if err := d.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}

		if logger.ErrorCount() != 1 {
			t.Errorf("expected 1 logged error, got %d", logger.ErrorCount())
		}
	})
}

func TestDispatchAsync_Timeout(t *testing.T) {
	d := NewDispatcher(WithAsyncTimeout(5 * time.Millisecond))
	var expired atomic.Bool

	d.Subscribe(event.TypeOrderGenerated, "slow", func(ctx context.Context, evt *event.Event) error {
		select {
		case <-ctx.Done():
			expired.Store(true)
		case <-time.After(time.Second):
		}
		return nil
	})

	d.DispatchAsync(context.Background(), event.NewEvent(event.TypeOrderGenerated, 1, "finance", nil))
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !expired.Load() {
		t.Error("expected handler context to expire")
	}
}

func TestClose(t *testing.T) {
	t.Run("waits for async handlers", func(t *testing.T) {
		d := NewDispatcher()
		var finished atomic.Bool

		d.Subscribe(event.TypeReceiptSubmitted, "slow", func(ctx context.Context, evt *event.Event) error {
			time.Sleep(20 * time.Millisecond)
			finished.Store(true)
			return nil
		})

		d.DispatchAsync(context.Background(), event.NewEvent(event.TypeReceiptSubmitted, 1, "s", nil))
		if err := d.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if !finished.Load() {
			t.Error("Close() returned before async handler finished")
		}
	})

	t.Run("rejects dispatch after close", func(t *testing.T) {
		d := NewDispatcher()
		_ = d.Close()

		if err := d.Dispatch(context.Background(), event.NewEvent(event.TypeRequestCreated, 1, "s", nil)); !errors.Is(err, ErrClosed) {
			t.Errorf("Dispatch() error = %v, want %v", err, ErrClosed)
		}
		if err := d.Close(); !errors.Is(err, ErrClosed) {
			t.Errorf("second Close() error = %v, want %v", err, ErrClosed)
		}
	})
}
