package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// archiveTimeout bounds one archive write on the producer's goroutine.
const archiveTimeout = 2 * time.Second

// Client is a connected consumer of events.
//
// Deliver hands one serialised frame to the client. It must not block on
// the network; implementations queue the frame and return. Returning any
// error (typically ErrClientGone) removes the client from the broadcaster.
type Client interface {
	ID() string
	Deliver(frame []byte) error
}

// Archive persists stored events beyond the in-memory history.
type Archive interface {
	Record(ctx context.Context, e HistoryEvent) error
}

// Observer receives broadcaster activity for metrics.
type Observer interface {
	EventSubmitted(ch Channel, stored bool)
	ClientsChanged(n int)
	ClientRemoved()
}

// Logger is the logging surface the broadcaster needs.
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

type noopObserver struct{}

func (noopObserver) EventSubmitted(Channel, bool) {}
func (noopObserver) ClientsChanged(int)           {}
func (noopObserver) ClientRemoved()               {}

type clientEntry struct {
	client Client
	subs   *Subscriptions
}

// Broadcaster delivers events to subscribed clients and keeps the history.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Delivery runs on the submitting goroutine, so events submitted by one
//     producer reach each client in submission order.
//   - A failing client is removed and never affects the producer or other
//     clients.
type Broadcaster struct {
	history  *History
	archive  Archive
	logger   Logger
	observer Observer

	mu      sync.RWMutex
	clients map[string]*clientEntry
}

// NewBroadcaster creates a broadcaster recording into history. A nil
// history is replaced by an unbounded one.
func NewBroadcaster(history *History) *Broadcaster {
	if history == nil {
		history = NewHistory(0)
	}
	return &Broadcaster{
		history:  history,
		logger:   noopLogger{},
		observer: noopObserver{},
		clients:  make(map[string]*clientEntry),
	}
}

// SetLogger sets the logger. Call before use.
func (b *Broadcaster) SetLogger(l Logger) {
	if l != nil {
		b.logger = l
	}
}

// SetArchive mirrors every stored event into a. Call before use.
func (b *Broadcaster) SetArchive(a Archive) {
	b.archive = a
}

// SetObserver sets the metrics observer. Call before use.
func (b *Broadcaster) SetObserver(o Observer) {
	if o != nil {
		b.observer = o
	}
}

// RegisterClient adds c subscribed to every channel. Registering an
// already registered client keeps its current subscriptions.
func (b *Broadcaster) RegisterClient(c Client) {
	b.mu.Lock()
	if _, ok := b.clients[c.ID()]; !ok {
		b.clients[c.ID()] = &clientEntry{client: c, subs: NewSubscriptions()}
	}
	n := len(b.clients)
	b.mu.Unlock()

	b.observer.ClientsChanged(n)
	b.logger.Debug("event client registered", "client_id", c.ID(), "clients", n)
}

// UnregisterClient removes c. Removing an unknown client is a no-op.
func (b *Broadcaster) UnregisterClient(c Client) {
	b.removeClient(c.ID())
}

func (b *Broadcaster) removeClient(id string) bool {
	b.mu.Lock()
	_, ok := b.clients[id]
	delete(b.clients, id)
	n := len(b.clients)
	b.mu.Unlock()

	if ok {
		b.observer.ClientsChanged(n)
		b.logger.Debug("event client removed", "client_id", id, "clients", n)
	}
	return ok
}

// Subscribe adds ch to the client's subscriptions.
func (b *Broadcaster) Subscribe(c Client, ch Channel) error {
	subs, err := b.subscriptions(c)
	if err != nil {
		return err
	}
	subs.Add(ch)
	return nil
}

// Unsubscribe removes ch from the client's subscriptions.
func (b *Broadcaster) Unsubscribe(c Client, ch Channel) error {
	subs, err := b.subscriptions(c)
	if err != nil {
		return err
	}
	subs.Remove(ch)
	return nil
}

// SubscribedChannels lists the channels c currently receives.
func (b *Broadcaster) SubscribedChannels(c Client) ([]Channel, error) {
	subs, err := b.subscriptions(c)
	if err != nil {
		return nil, err
	}
	return subs.List(), nil
}

func (b *Broadcaster) subscriptions(c Client) (*Subscriptions, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.clients[c.ID()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, c.ID())
	}
	return entry.subs, nil
}

// ClientCount returns the number of registered clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// SubmitAndStoreEvent appends e to the history, mirrors it to the archive
// and delivers it to subscribed clients.
func (b *Broadcaster) SubmitAndStoreEvent(e Event) {
	he := FromEvent(e)
	b.history.Append(he)

	if b.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		if err := b.archive.Record(ctx, he); err != nil {
			b.logger.Warn("archiving event failed", "event", e.Name, "error", err)
		}
		cancel()
	}

	b.observer.EventSubmitted(e.Channel, true)
	b.deliver(e)
}

// SubmitEvent delivers e to subscribed clients without recording it.
func (b *Broadcaster) SubmitEvent(e Event) {
	b.observer.EventSubmitted(e.Channel, false)
	b.deliver(e)
}

// History returns every stored event, oldest first.
func (b *Broadcaster) History() []HistoryEvent {
	return b.history.All()
}

// HistoryPage returns one 1-based page of stored events.
func (b *Broadcaster) HistoryPage(page, size int) []HistoryEvent {
	return b.history.Page(page, size)
}

// HistoryLen returns the number of stored events.
func (b *Broadcaster) HistoryLen() int {
	return b.history.Len()
}

func (b *Broadcaster) deliver(e Event) {
	b.mu.RLock()
	targets := make([]Client, 0, len(b.clients))
	for _, entry := range b.clients {
		if entry.subs.Has(e.Channel) {
			targets = append(targets, entry.client)
		}
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	frame, err := json.Marshal(e)
	if err != nil {
		b.logger.Error("serialising event failed", "event", e.Name, "channel", e.Channel, "error", err)
		return
	}

	for _, c := range targets {
		if err := safeDeliver(c, frame); err != nil {
			if b.removeClient(c.ID()) {
				b.observer.ClientRemoved()
				b.logger.Info("dropping event client", "client_id", c.ID(), "error", err)
			}
		}
	}
}

func safeDeliver(c Client, frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("deliver panicked: %v", r)
		}
	}()
	return c.Deliver(frame)
}
