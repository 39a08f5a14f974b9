// Package api implements the HTTP REST API and WebSocket server for astrobridge.
//
// This package provides:
//   - REST endpoints for the process registry (create, start, stop, conflicts)
//   - Event history, archive and channel listing endpoints
//   - A WebSocket endpoint where each connection is an event.Client
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between observatory front ends and the bridge core.
// Process requests go to the process.Registry, whose work drives equipment
// through an equipment.Commander. Events flow the other way: watchers submit
// them to the event.Broadcaster, which fans them out to WebSocket clients
// according to each client's subscriptions.
//
// # WebSocket Protocol
//
// Clients send {Type, RequestId, Data} with Type one of Subscribe,
// Unsubscribe, AvailableChannels or SubscribedChannels. The server replies
// with {Type: "Server", RequestId, Data}. Events arrive as
// {Event, Channel, Data}. A new client is subscribed to every channel.
//
// # Graceful Degradation
//
// The archive and equipment endpoints answer 503 when their backing feature
// is disabled. Everything else works with the in-process bus alone.
package api
