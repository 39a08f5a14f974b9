package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/astrobridge/internal/event"
)

// Watcher adapts one source of host activity.
type Watcher interface {
	Name() string
	StartWatchers(ctx context.Context) error
	StopWatchers() error
}

// Publisher is the broadcaster surface watchers use.
type Publisher interface {
	SubmitAndStoreEvent(e event.Event)
	SubmitEvent(e event.Event)
}

// TelemetrySink receives numeric samples for the time-series store.
type TelemetrySink interface {
	WriteTelemetry(device string, fields map[string]float64, ts time.Time)
	WriteProcessDuration(processType, status string, duration time.Duration)
}

// Logger is the logging surface watchers need.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager starts and stops a set of watchers as one.
type Manager struct {
	logger Logger

	mu       sync.Mutex
	watchers []Watcher
	running  []Watcher
}

// NewManager creates a manager for ws.
func NewManager(ws ...Watcher) *Manager {
	return &Manager{watchers: ws, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (m *Manager) SetLogger(l Logger) {
	if l != nil {
		m.logger = l
	}
}

// Add registers more watchers. They start with the next StartWatchers.
func (m *Manager) Add(ws ...Watcher) {
	m.mu.Lock()
	m.watchers = append(m.watchers, ws...)
	m.mu.Unlock()
}

// Name implements Watcher.
func (m *Manager) Name() string { return "manager" }

// StartWatchers starts every watcher concurrently. If any fails, the ones
// that started are stopped again and the first error is returned.
func (m *Manager) StartWatchers(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.running) > 0 {
		return nil
	}

	started := make([]bool, len(m.watchers))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range m.watchers {
		g.Go(func() error {
			if err := w.StartWatchers(gctx); err != nil {
				return fmt.Errorf("starting %s watcher: %w", w.Name(), err)
			}
			started[i] = true
			return nil
		})
	}

	err := g.Wait()
	for i, w := range m.watchers {
		if started[i] {
			m.running = append(m.running, w)
		}
	}
	if err != nil {
		m.stopLocked()
		return err
	}

	m.logger.Info("watchers started", "count", len(m.running))
	return nil
}

// StopWatchers stops every running watcher and joins their errors.
func (m *Manager) StopWatchers() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked()
}

func (m *Manager) stopLocked() error {
	var errs []error
	for i := len(m.running) - 1; i >= 0; i-- {
		w := m.running[i]
		if err := w.StopWatchers(); err != nil {
			errs = append(errs, fmt.Errorf("stopping %s watcher: %w", w.Name(), err))
		}
	}
	if len(m.running) > 0 {
		m.logger.Info("watchers stopped", "count", len(m.running))
	}
	m.running = nil
	return errors.Join(errs...)
}
