// Package mqtt provides MQTT client connectivity for astrobridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The imaging host and astrobridge talk over a broker. The host publishes
// device notifications and command results; astrobridge publishes device
// commands and its own status. Topics are built with Topics.
//
//	Imaging host ↔ MQTT Broker ↔ astrobridge ↔ REST / WebSocket clients
//
// When MQTT is disabled the bridge runs on the in-process bus in
// internal/bus and this package is not used.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix)
//	err = client.Subscribe(topics.AllEquipment(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(topic, payload)
//	    })
//
//	client.Publish(topics.Command("dome", "open-shutter"), payload, 1, false)
package mqtt
