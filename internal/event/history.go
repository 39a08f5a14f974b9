package event

import "sync"

// History is an append-only, chronologically ordered event log.
//
// Thread Safety:
//   - Appends and reads may run concurrently; readers get copies.
type History struct {
	mu     sync.RWMutex
	events []HistoryEvent
	max    int
}

// NewHistory creates a history. A positive max caps its length by
// discarding the oldest entries; zero means unbounded.
func NewHistory(max int) *History {
	if max < 0 {
		max = 0
	}
	return &History{max: max}
}

// Append adds e at the end.
func (h *History) Append(e HistoryEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.max > 0 && len(h.events) >= h.max {
		n := copy(h.events, h.events[len(h.events)-h.max+1:])
		clear(h.events[n:])
		h.events = h.events[:n]
	}
	h.events = append(h.events, e)
}

// Len returns the number of recorded events.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events)
}

// All returns a copy of every recorded event, oldest first.
func (h *History) All() []HistoryEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]HistoryEvent{}, h.events...)
}

// Page returns one page of events. Pages are 1-based. An invalid page or
// size, or a page past the end, yields an empty slice. The last page may
// be short.
func (h *History) Page(page, size int) []HistoryEvent {
	if page < 1 || size < 1 {
		return []HistoryEvent{}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	start := (page - 1) * size
	if start/size != page-1 || start >= len(h.events) {
		return []HistoryEvent{}
	}
	end := min(start+size, len(h.events))
	return append([]HistoryEvent{}, h.events[start:end]...)
}
