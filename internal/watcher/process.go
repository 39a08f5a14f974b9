package watcher

import (
	"context"
	"sync"

	"github.com/nerrad567/astrobridge/internal/event"
	"github.com/nerrad567/astrobridge/internal/process"
)

// Process event names.
const (
	EventProcessStarted  = "PROCESS-STARTED"
	EventProcessFinished = "PROCESS-FINISHED"
)

// ProcessWatcher publishes registry lifecycle notifications.
type ProcessWatcher struct {
	registry *process.Registry
	pub      Publisher
	sink     TelemetrySink

	mu     sync.Mutex
	remove func()
}

// NewProcessWatcher creates a watcher over registry. sink may be nil.
func NewProcessWatcher(registry *process.Registry, pub Publisher, sink TelemetrySink) *ProcessWatcher {
	return &ProcessWatcher{registry: registry, pub: pub, sink: sink}
}

// Name identifies the watcher in logs.
func (w *ProcessWatcher) Name() string { return "process" }

// StartWatchers registers with the registry. Calling it twice is a no-op.
func (w *ProcessWatcher) StartWatchers(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.remove == nil {
		w.remove = w.registry.AddListener(w)
	}
	return nil
}

// StopWatchers detaches from the registry.
func (w *ProcessWatcher) StopWatchers() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.remove != nil {
		w.remove()
		w.remove = nil
	}
	return nil
}

// ProcessStarted implements process.Listener.
func (w *ProcessWatcher) ProcessStarted(info process.Info) {
	w.pub.SubmitAndStoreEvent(event.New(EventProcessStarted, event.Process, info))
}

// ProcessFinished implements process.Listener.
func (w *ProcessWatcher) ProcessFinished(info process.Info) {
	if w.sink != nil {
		w.sink.WriteProcessDuration(info.Type.Name(), string(info.Status), info.Duration())
	}
	w.pub.SubmitAndStoreEvent(event.New(EventProcessFinished, event.Process, info))
}
