// Package event fans out state-change events to connected clients.
//
// An Event is an immutable (name, channel, payload) tuple. The Broadcaster
// keeps the connected clients with a Subscriptions set each, delivers every
// submitted event to the clients subscribed to its channel, and records
// stored events in an append-only History.
//
//	b := event.NewBroadcaster(event.NewHistory(0))
//	b.RegisterClient(client)          // subscribed to every channel
//	b.Unsubscribe(client, event.Image)
//
//	b.SubmitAndStoreEvent(event.New("CAMERA-CONNECTED", event.Equipment, nil))
//	b.SubmitEvent(event.New("FOCUSER-INFO", event.FocuserInfo, info)) // live only
//
// Clients implement Client. A client whose Deliver fails is treated as gone
// and removed; the failure never reaches the producer.
package event
