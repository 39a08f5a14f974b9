package bus

import "strings"

// Handler processes one message. Returned errors are logged by the bus.
type Handler func(topic string, payload []byte) error

// Bus publishes and subscribes to topics.
type Bus interface {
	Publish(topic string, payload []byte) error
	Subscribe(filter string, h Handler) error
	Unsubscribe(filter string) error
}

// Logger is the logging surface the bus needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Match reports whether topic matches the MQTT topic filter. Wildcards in
// the first level never match topics beginning with "$".
func Match(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, "+") || strings.HasPrefix(filter, "#")) {
		return false
	}

	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")

	for i, f := range fl {
		switch {
		case f == "#":
			return i == len(fl)-1
		case i >= len(tl):
			return false
		case f == "+":
			continue
		case f != tl[i]:
			return false
		}
	}
	return len(fl) == len(tl)
}
