// Package worker runs background jobs alongside the HTTP server.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Worker is a background job with an explicit lifecycle
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// Status is a point-in-time view of one worker
type Status struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	Err     string `json:"error,omitempty"`
}

type slot struct {
	worker  Worker
	running bool
	err     error
}

// Manager starts workers in registration order and stops the ones that
// came up in reverse order
type Manager struct {
	logger *zap.Logger

	mu      sync.RWMutex
	slots   []*slot
	started bool
}

// NewManager creates an empty manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger}
}

// Register adds w. Workers registered after StartAll are not started.
func (m *Manager) Register(w Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots = append(m.slots, &slot{worker: w})
	m.logger.Debug("Worker registered", zap.String("worker", w.Name()))
}

// StartAll starts every worker. Failures do not stop the rest; they are
// joined into the returned error and kept in the worker's Status.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return errors.New("workers already started")
	}
	m.started = true

	var errs []error
	for _, s := range m.slots {
		s.err = s.worker.Start(ctx)
		s.running = s.err == nil
		if s.err != nil {
			m.logger.Error("Worker failed to start", zap.String("worker", s.worker.Name()), zap.Error(s.err))
			errs = append(errs, fmt.Errorf("%s: %w", s.worker.Name(), s.err))
			continue
		}
		m.logger.Info("Worker started", zap.String("worker", s.worker.Name()))
	}
	return errors.Join(errs...)
}

// StopAll stops running workers. It is a no-op before StartAll.
func (m *Manager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}
	m.started = false

	var errs []error
	for i := len(m.slots) - 1; i >= 0; i-- {
		s := m.slots[i]
		if !s.running {
			continue
		}
		s.running = false
		if err := s.worker.Stop(); err != nil {
			s.err = err
			m.logger.Error("Worker failed to stop", zap.String("worker", s.worker.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.worker.Name(), err))
			continue
		}
		m.logger.Info("Worker stopped", zap.String("worker", s.worker.Name()))
	}
	return errors.Join(errs...)
}

// Started reports whether StartAll ran without a matching StopAll
func (m *Manager) Started() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}

// Statuses lists workers in registration order
func (m *Manager) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Status, 0, len(m.slots))
	for _, s := range m.slots {
		st := Status{Name: s.worker.Name(), Running: s.running}
		if s.err != nil {
			st.Err = s.err.Error()
		}
		out = append(out, st)
	}
	return out
}

// Healthy is true when started and every worker is running
func (m *Manager) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.started {
		return false
	}
	for _, s := range m.slots {
		if !s.running {
			return false
		}
	}
	return true
}
