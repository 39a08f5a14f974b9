// Package bus is the host message bus the bridge listens to and commands
// devices over.
//
// Topics follow MQTT conventions: levels separated by "/", with "+"
// matching one level and "#" matching the rest. Two implementations exist:
//
//   - MQTT wraps the infrastructure MQTT client for a real host.
//   - Local routes messages in-process, for simulated mode and tests.
//
// Handlers are registered per topic filter; subscribing the same filter
// again replaces the previous handler.
package bus
