package bus

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInvalidTopic is returned for empty topics or filters.
	ErrInvalidTopic = errors.New("bus: invalid topic")

	// ErrNilHandler is returned when subscribing without a handler.
	ErrNilHandler = errors.New("bus: nil handler")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("bus: closed")
)

// Local is an in-process Bus. Publish delivers synchronously to every
// matching handler on the caller's goroutine, outside the bus lock, so
// handlers may publish in turn.
type Local struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	closed   bool
	logger   Logger
}

// NewLocal creates an empty local bus.
func NewLocal() *Local {
	return &Local{handlers: make(map[string]Handler), logger: noopLogger{}}
}

// SetLogger sets the logger used for handler errors.
func (l *Local) SetLogger(logger Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// Publish delivers payload to every handler whose filter matches topic.
func (l *Local) Publish(topic string, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return ErrClosed
	}
	var matched []Handler
	for filter, h := range l.handlers {
		if Match(filter, topic) {
			matched = append(matched, h)
		}
	}
	l.mu.RUnlock()

	for _, h := range matched {
		if err := h(topic, payload); err != nil {
			l.logger.Warn("bus handler error", "topic", topic, "error", err)
		}
	}
	return nil
}

// Subscribe registers h for filter, replacing any earlier handler.
func (l *Local) Subscribe(filter string, h Handler) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	if h == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, filter)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.handlers[filter] = h
	l.logger.Debug("bus subscribed", "filter", filter)
	return nil
}

// Unsubscribe removes the handler for filter. Unknown filters are ignored.
func (l *Local) Unsubscribe(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	l.mu.Lock()
	delete(l.handlers, filter)
	l.mu.Unlock()
	return nil
}

// Close drops every handler and rejects further use.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	clear(l.handlers)
	return nil
}
