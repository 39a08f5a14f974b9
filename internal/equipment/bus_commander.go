package equipment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/astrobridge/internal/bus"
	"github.com/nerrad567/astrobridge/internal/infrastructure/mqtt"
)

type pendingCommand struct {
	cmd      Command
	progress ProgressFunc
	result   chan Result
}

// BusCommander forwards commands to the host application over a bus.
//
// Thread Safety:
//   - Execute may be called concurrently; results are routed by request ID.
type BusCommander struct {
	bus     bus.Bus
	topics  mqtt.Topics
	timeout time.Duration
	logger  Logger

	mu      sync.Mutex
	pending map[string]*pendingCommand
	started bool
}

// NewBusCommander creates a commander. A positive timeout bounds every
// command; zero waits indefinitely.
func NewBusCommander(b bus.Bus, topics mqtt.Topics, timeout time.Duration) *BusCommander {
	return &BusCommander{
		bus:     b,
		topics:  topics,
		timeout: timeout,
		logger:  noopLogger{},
		pending: make(map[string]*pendingCommand),
	}
}

// SetLogger sets the logger.
func (c *BusCommander) SetLogger(l Logger) {
	if l != nil {
		c.logger = l
	}
}

// Start subscribes to command results and progress.
func (c *BusCommander) Start() error {
	if err := c.bus.Subscribe(c.topics.AllCommandResults(), c.handleResult); err != nil {
		return fmt.Errorf("subscribing to command results: %w", err)
	}
	if err := c.bus.Subscribe(c.topics.AllCommandProgress(), c.handleProgress); err != nil {
		_ = c.bus.Unsubscribe(c.topics.AllCommandResults()) //nolint:errcheck // Best effort rollback
		return fmt.Errorf("subscribing to command progress: %w", err)
	}

	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	return nil
}

// Stop unsubscribes. Commands still waiting run into their context or
// timeout.
func (c *BusCommander) Stop() error {
	c.mu.Lock()
	c.started = false
	c.mu.Unlock()

	return errors.Join(
		c.bus.Unsubscribe(c.topics.AllCommandResults()),
		c.bus.Unsubscribe(c.topics.AllCommandProgress()),
	)
}

// Execute publishes cmd and waits for its result.
func (c *BusCommander) Execute(ctx context.Context, cmd Command, progress ProgressFunc) error {
	if cmd.RequestID == "" {
		cmd.RequestID = uuid.NewString()
	}

	parent := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	p := &pendingCommand{cmd: cmd, progress: progress, result: make(chan Result, 1)}
	if err := c.register(p); err != nil {
		return err
	}
	defer c.unregister(cmd.RequestID)

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	if err := c.bus.Publish(c.topics.Command(cmd.Device, cmd.Action), payload); err != nil {
		return fmt.Errorf("publishing %s/%s: %w", cmd.Device, cmd.Action, err)
	}
	c.logger.Debug("command sent", "request_id", cmd.RequestID, "device", cmd.Device, "action", cmd.Action)

	select {
	case res := <-p.result:
		if !res.Success {
			return fmt.Errorf("%w: %s/%s: %s", ErrCommandFailed, cmd.Device, cmd.Action, res.Error)
		}
		return nil

	case <-ctx.Done():
		c.abort(cmd)
		if parent.Err() == nil {
			return fmt.Errorf("%w: %s/%s after %s", ErrCommandTimeout, cmd.Device, cmd.Action, c.timeout)
		}
		return parent.Err()
	}
}

func (c *BusCommander) register(p *pendingCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return ErrNotStarted
	}
	c.pending[p.cmd.RequestID] = p
	return nil
}

func (c *BusCommander) unregister(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *BusCommander) lookup(id string) (*pendingCommand, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	return p, ok
}

func (c *BusCommander) abort(cmd Command) {
	payload, _ := json.Marshal(struct { //nolint:errcheck // Marshalling a string field cannot fail
		RequestID string `json:"request_id"`
	}{cmd.RequestID})

	if err := c.bus.Publish(c.topics.CommandAbort(cmd.Device), payload); err != nil {
		c.logger.Warn("publishing abort failed", "request_id", cmd.RequestID, "error", err)
		return
	}
	c.logger.Info("command aborted", "request_id", cmd.RequestID, "device", cmd.Device, "action", cmd.Action)
}

func (c *BusCommander) handleResult(topic string, payload []byte) error {
	var res Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return fmt.Errorf("decoding command result: %w", err)
	}
	if res.RequestID == "" {
		res.RequestID = path.Base(topic)
	}

	p, ok := c.lookup(res.RequestID)
	if !ok {
		c.logger.Debug("result for unknown command", "request_id", res.RequestID)
		return nil
	}

	select {
	case p.result <- res:
	default:
	}
	return nil
}

func (c *BusCommander) handleProgress(topic string, payload []byte) error {
	p, ok := c.lookup(path.Base(topic))
	if !ok || p.progress == nil {
		return nil
	}

	snapshot, err := decodeProgress(p.cmd.Action, payload)
	if err != nil {
		return fmt.Errorf("decoding %s progress: %w", p.cmd.Action, err)
	}
	if snapshot != nil {
		p.progress(snapshot)
	}
	return nil
}
