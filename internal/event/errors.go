package event

import "errors"

var (
	// ErrClientGone is returned by Client.Deliver when the connection is closed.
	ErrClientGone = errors.New("event: client gone")

	// ErrClientNotFound is returned for operations on an unregistered client.
	ErrClientNotFound = errors.New("event: client not registered")

	// ErrUnknownChannel is returned when a channel name is not recognised.
	ErrUnknownChannel = errors.New("event: unknown channel")
)
