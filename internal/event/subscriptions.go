package event

import "sync"

// Subscriptions is the set of channels one client wants delivered.
type Subscriptions struct {
	mu  sync.RWMutex
	set map[Channel]struct{}
}

// NewSubscriptions returns a set containing every channel.
func NewSubscriptions() *Subscriptions {
	s := &Subscriptions{set: make(map[Channel]struct{}, len(allChannels))}
	for _, ch := range allChannels {
		s.set[ch] = struct{}{}
	}
	return s
}

// Add subscribes to ch. It reports whether the set changed.
func (s *Subscriptions) Add(ch Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[ch]; ok {
		return false
	}
	s.set[ch] = struct{}{}
	return true
}

// Remove unsubscribes from ch. It reports whether the set changed.
func (s *Subscriptions) Remove(ch Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[ch]; !ok {
		return false
	}
	delete(s.set, ch)
	return true
}

// Has reports whether ch is subscribed.
func (s *Subscriptions) Has(ch Channel) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.set[ch]
	return ok
}

// List returns the subscribed channels in declaration order.
func (s *Subscriptions) List() []Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Channel, 0, len(s.set))
	for _, ch := range allChannels {
		if _, ok := s.set[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}
