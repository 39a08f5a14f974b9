package event

import "time"

// Event is one observable state change. Treat it as immutable.
type Event struct {
	Name    string  `json:"Event"`
	Channel Channel `json:"Channel"`
	Data    any     `json:"Data"`
}

// New constructs an Event.
func New(name string, ch Channel, data any) Event {
	return Event{Name: name, Channel: ch, Data: data}
}

// HistoryEvent is an Event stamped with the UTC time it was recorded.
type HistoryEvent struct {
	Event
	Timestamp time.Time `json:"Timestamp"`
}

// FromEvent copies e and stamps it with the current UTC time.
func FromEvent(e Event) HistoryEvent {
	return HistoryEvent{Event: e, Timestamp: time.Now().UTC()}
}
