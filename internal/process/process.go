package process

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle stage of a process.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusRunning  Status = "Running"
	StatusFinished Status = "Finished"
	StatusFailed   Status = "Failed"

	// StatusNotFound is reported by the Registry for unknown identifiers.
	StatusNotFound Status = "NotFound"
)

// Terminal reports whether s is Finished or Failed.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// ReportFunc publishes a progress snapshot from inside running work.
type ReportFunc func(snapshot any)

// Work is one cancellable unit of work. It must return promptly once ctx is
// cancelled. Returning ctx.Err() after cancellation is a normal finish.
type Work func(ctx context.Context, report ReportFunc) error

// Info is a point-in-time view of a process.
type Info struct {
	ID         string    `json:"ProcessId"`
	Type       Type      `json:"ProcessType"`
	Status     Status    `json:"Status"`
	CreatedAt  time.Time `json:"CreatedAt"`
	StartedAt  time.Time `json:"StartedAt,omitzero"`
	FinishedAt time.Time `json:"FinishedAt,omitzero"`
	Error      string    `json:"Error,omitempty"`
}

// Duration is the run time of a terminal process, zero otherwise.
func (i Info) Duration() time.Duration {
	if i.StartedAt.IsZero() || i.FinishedAt.IsZero() {
		return 0
	}
	return i.FinishedAt.Sub(i.StartedAt)
}

// Process is a single-use, cancellable unit of work with a Type.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Process struct {
	id   string
	typ  Type
	work Work

	mu         sync.Mutex
	status     Status
	cancel     context.CancelFunc
	err        error
	progress   any
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
	done       chan struct{}
	onFinish   func(Info)
}

// Option customises a new Process.
type Option func(*Process)

// WithID overrides the generated identifier.
func WithID(id string) Option {
	return func(p *Process) { p.id = id }
}

// New creates a Pending process. It does not start the work.
func New(work Work, t Type, opts ...Option) *Process {
	p := &Process{
		id:        uuid.NewString(),
		typ:       t,
		work:      work,
		status:    StatusPending,
		createdAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID returns the process identifier.
func (p *Process) ID() string { return p.id }

// Type returns the process type.
func (p *Process) Type() Type { return p.typ }

// Start runs the work in a new goroutine and reports whether it did.
// Only a Pending process starts; any other state is a no-op.
func (p *Process) Start() bool {
	return p.start(nil)
}

// start marks the process Running. When gate is non-nil the work does not
// begin until gate is closed.
func (p *Process) start(gate <-chan struct{}) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != StatusPending {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.status = StatusRunning
	p.startedAt = time.Now().UTC()

	go p.run(ctx, gate)
	return true
}

func (p *Process) run(ctx context.Context, gate <-chan struct{}) {
	if gate != nil {
		<-gate
	}
	err := p.execute(ctx)

	p.mu.Lock()
	p.cancel()
	p.finishedAt = time.Now().UTC()
	switch {
	case err == nil:
		p.status = StatusFinished
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// Cancelled on request.
		p.status = StatusFinished
	default:
		p.status = StatusFailed
		p.err = err
	}
	info := p.infoLocked()
	hook := p.onFinish
	close(p.done)
	p.mu.Unlock()

	if hook != nil {
		hook(info)
	}
}

func (p *Process) execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrWorkPanicked, r)
		}
	}()
	if p.work == nil {
		return nil
	}
	return p.work(ctx, p.report)
}

func (p *Process) report(snapshot any) {
	p.mu.Lock()
	p.progress = snapshot
	p.mu.Unlock()
}

// Stop requests cooperative cancellation. It is a no-op unless the process
// is Running, and safe to call any number of times.
func (p *Process) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status == StatusRunning && p.cancel != nil {
		p.cancel()
	}
}

// Status returns the current lifecycle stage.
func (p *Process) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Err returns the failure of a Failed process, nil otherwise.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Progress returns the latest snapshot reported by the work while it is
// Running or after it Finished, stamped with the current status. In every
// other case it returns a StatusProgress.
func (p *Process) Progress() any {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.progress != nil && (p.status == StatusRunning || p.status == StatusFinished) {
		if s, ok := p.progress.(statusStamper); ok {
			return s.withStatus(p.status)
		}
		return p.progress
	}
	return StatusProgress{Status: p.status}
}

// Done is closed once the process reaches a terminal state.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process is terminal or ctx is done.
// A process that was never started blocks until ctx is done.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Info returns a snapshot of the process.
func (p *Process) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.infoLocked()
}

func (p *Process) infoLocked() Info {
	info := Info{
		ID:         p.id,
		Type:       p.typ,
		Status:     p.status,
		CreatedAt:  p.createdAt,
		StartedAt:  p.startedAt,
		FinishedAt: p.finishedAt,
	}
	if p.err != nil {
		info.Error = p.err.Error()
	}
	return info
}

func (p *Process) setFinishHook(hook func(Info)) {
	p.mu.Lock()
	p.onFinish = hook
	p.mu.Unlock()
}
