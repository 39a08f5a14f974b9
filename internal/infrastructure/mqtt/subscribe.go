package mqtt

import "fmt"

// Subscribe routes messages matching filter to handler. Filters may use the
// + and # wildcards. The subscription is remembered and restored after a
// reconnect; a failed subscribe leaves no trace.
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	switch {
	case filter == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	case !c.IsConnected():
		return ErrNotConnected
	}

	c.mu.Lock()
	c.subscriptions[filter] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if err := await(c.client.Subscribe(filter, qos, c.wrapHandler(handler)), opTimeout); err != nil {
		c.forget(filter)
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, filter, err)
	}
	return nil
}

// Unsubscribe drops the subscription for filter. Messages already in flight
// may still reach the handler.
func (c *Client) Unsubscribe(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(filter)
	if err := await(c.client.Unsubscribe(filter), opTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, filter, err)
	}
	return nil
}

func (c *Client) forget(filter string) {
	c.mu.Lock()
	delete(c.subscriptions, filter)
	c.mu.Unlock()
}

// SubscriptionCount returns the number of remembered subscriptions.
func (c *Client) SubscriptionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription reports whether filter, compared literally, is subscribed.
func (c *Client) HasSubscription(filter string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[filter]
	return ok
}
