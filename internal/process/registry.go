package process

import (
	"context"
	"sort"
	"sync"
	"time"
)

// StartOutcome is the result category of Registry.Start.
type StartOutcome int

const (
	// Started means the process moved from Pending to Running.
	Started StartOutcome = iota
	// AlreadyRunning means the process had already been started.
	AlreadyRunning
	// Conflict means a conflicting process is running.
	Conflict
	// NotFound means no process has the identifier.
	NotFound
)

func (o StartOutcome) String() string {
	switch o {
	case Started:
		return "Started"
	case AlreadyRunning:
		return "AlreadyRunning"
	case Conflict:
		return "Conflict"
	case NotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// StartResult is returned by Registry.Start. Conflicts is set only for the
// Conflict outcome.
type StartResult struct {
	Outcome   StartOutcome
	Conflicts []Info
}

// Listener is notified when registered processes start and finish.
// Callbacks run on the goroutine that caused the transition and must not
// block.
type Listener interface {
	ProcessStarted(Info)
	ProcessFinished(Info)
}

// Logger defines the logging interface for the registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RegistryConfig holds registry settings.
type RegistryConfig struct {
	// Retention is how long a terminal process stays registered before
	// Prune removes it. Zero disables pruning.
	Retention time.Duration
}

// Registry owns every tracked process, keyed by identifier.
//
// Start performs the conflict check and the Pending to Running transition
// under one lock, so two conflicting starts can never both succeed.
//
// Lock order: Registry.mu before Process.mu. Listeners are called with no
// registry lock held.
type Registry struct {
	cfg    RegistryConfig
	logger Logger
	now    func() time.Time

	mu        sync.RWMutex
	processes map[string]*Process

	listenerMu sync.RWMutex
	listeners  map[int]Listener
	nextID     int
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		cfg:       cfg,
		logger:    noopLogger{},
		now:       time.Now,
		processes: make(map[string]*Process),
		listeners: make(map[int]Listener),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// AddListener registers l and returns a function that removes it.
func (r *Registry) AddListener(l Listener) (remove func()) {
	r.listenerMu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	r.listenerMu.Unlock()

	return func() {
		r.listenerMu.Lock()
		delete(r.listeners, id)
		r.listenerMu.Unlock()
	}
}

func (r *Registry) snapshotListeners() []Listener {
	r.listenerMu.RLock()
	defer r.listenerMu.RUnlock()

	ids := make([]int, 0, len(r.listeners))
	for id := range r.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.listeners[id])
	}
	return out
}

func (r *Registry) notifyStarted(info Info) {
	for _, l := range r.snapshotListeners() {
		l.ProcessStarted(info)
	}
}

func (r *Registry) notifyFinished(info Info) {
	r.logger.Info("process finished",
		"process_id", info.ID,
		"type", info.Type,
		"status", info.Status,
		"duration", info.Duration(),
	)
	for _, l := range r.snapshotListeners() {
		l.ProcessFinished(info)
	}
}

// AddProcess registers p under its identifier and returns it. A process
// already registered under the same identifier is replaced.
func (r *Registry) AddProcess(p *Process) string {
	p.setFinishHook(r.notifyFinished)

	r.mu.Lock()
	if _, exists := r.processes[p.ID()]; exists {
		r.logger.Warn("replacing registered process", "process_id", p.ID())
	}
	r.processes[p.ID()] = p
	r.mu.Unlock()

	r.logger.Debug("process added", "process_id", p.ID(), "type", p.Type())
	return p.ID()
}

// Add creates a process for work and registers it.
func (r *Registry) Add(work Work, t Type) string {
	return r.AddProcess(New(work, t))
}

// Remove unregisters a process and reports whether one was removed.
// A running process is not stopped.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.processes[id]; !ok {
		return false
	}
	delete(r.processes, id)
	return true
}

// Get returns the process registered under id.
func (r *Registry) Get(id string) (*Process, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processes[id]
	return p, ok
}

// List returns a snapshot of every registered process, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.processes))
	for _, p := range r.processes {
		out = append(out, p.Info())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Start starts the process registered under id unless a conflicting
// process is running.
func (r *Registry) Start(id string) StartResult {
	r.mu.Lock()

	p, ok := r.processes[id]
	if !ok {
		r.mu.Unlock()
		return StartResult{Outcome: NotFound}
	}

	if p.Status() != StatusPending {
		r.mu.Unlock()
		return StartResult{Outcome: AlreadyRunning}
	}

	if conflicts := r.conflictsLocked(p.Type(), id); len(conflicts) > 0 {
		r.mu.Unlock()
		r.logger.Info("process start refused",
			"process_id", id,
			"type", p.Type(),
			"conflicts", len(conflicts),
		)
		return StartResult{Outcome: Conflict, Conflicts: conflicts}
	}

	// The work waits for the gate so listeners always see the start before
	// the finish.
	gate := make(chan struct{})
	defer close(gate)
	p.start(gate)
	info := p.Info()
	r.mu.Unlock()

	r.logger.Info("process started", "process_id", id, "type", info.Type)
	r.notifyStarted(info)
	return StartResult{Outcome: Started}
}

// Stop requests cancellation of the process and reports whether it exists.
func (r *Registry) Stop(id string) bool {
	p, ok := r.Get(id)
	if !ok {
		return false
	}
	p.Stop()
	return true
}

// StopAll requests cancellation of every registered process without
// waiting for any of them.
func (r *Registry) StopAll() {
	r.mu.RLock()
	procs := make([]*Process, 0, len(r.processes))
	for _, p := range r.processes {
		procs = append(procs, p)
	}
	r.mu.RUnlock()

	for _, p := range procs {
		p.Stop()
	}
	r.logger.Info("stop requested for all processes", "count", len(procs))
}

// Status returns the status of the process, or StatusNotFound.
func (r *Registry) Status(id string) Status {
	p, ok := r.Get(id)
	if !ok {
		return StatusNotFound
	}
	return p.Status()
}

// Progress returns the process's progress snapshot, or nil if it is not
// registered.
func (r *Registry) Progress(id string) any {
	p, ok := r.Get(id)
	if !ok {
		return nil
	}
	return p.Progress()
}

// CheckForConflicts returns the running processes that would block starting
// a process of type t. The process registered under excludingID is never
// included.
func (r *Registry) CheckForConflicts(t Type, excludingID string) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conflictsLocked(t, excludingID)
}

func (r *Registry) conflictsLocked(t Type, excludingID string) []Info {
	var out []Info
	for id, other := range r.processes {
		if id == excludingID {
			continue
		}
		if other.Status() != StatusRunning {
			continue
		}
		if blocks(t, other.Type()) {
			out = append(out, other.Info())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Prune removes processes that have been terminal for longer than the
// configured retention and returns how many were removed.
func (r *Registry) Prune() int {
	if r.cfg.Retention <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.cfg.Retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, p := range r.processes {
		info := p.Info()
		if info.Status.Terminal() && info.FinishedAt.Before(cutoff) {
			delete(r.processes, id)
			removed++
		}
	}
	return removed
}

// RunPruner calls Prune every interval until ctx is cancelled.
// It returns immediately when retention or interval is not positive.
func (r *Registry) RunPruner(ctx context.Context, interval time.Duration) {
	if r.cfg.Retention <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Prune(); n > 0 {
				r.logger.Debug("pruned finished processes", "count", n)
			}
		}
	}
}

// Len returns the number of registered processes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.processes)
}
