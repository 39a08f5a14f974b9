package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/astrobridge/internal/bus"
	"github.com/nerrad567/astrobridge/internal/event"
	"github.com/nerrad567/astrobridge/internal/infrastructure/mqtt"
)

type routeKind int

const (
	routeStored routeKind = iota
	routeInfo
	routeTelemetry
)

type route struct {
	filter  string
	domain  string
	channel event.Channel
	kind    routeKind
}

// TopicWatcher maps host bus topics to events:
//
//	equipment/{device}/{event}  Equipment  stored  DEVICE-EVENT
//	sequence/{event}            Sequence   stored  SEQUENCE-EVENT
//	image/{event}               Image      stored  IMAGE-EVENT
//	general/{event}             General    stored  EVENT
//	info/{device}               {Device}Info  live  DEVICE-INFO
//	telemetry/{device}          {Device}Info  live  DEVICE-TELEMETRY
//
// Telemetry numbers and booleans are also written to the telemetry sink.
type TopicWatcher struct {
	bus    bus.Bus
	topics mqtt.Topics
	pub    Publisher
	sink   TelemetrySink
	logger Logger
	now    func() time.Time

	mu         sync.Mutex
	subscribed []string
}

// NewTopicWatcher creates a watcher over b. sink may be nil.
func NewTopicWatcher(b bus.Bus, topics mqtt.Topics, pub Publisher, sink TelemetrySink) *TopicWatcher {
	return &TopicWatcher{
		bus:    b,
		topics: mqtt.NewTopics(topics.Prefix),
		pub:    pub,
		sink:   sink,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger.
func (w *TopicWatcher) SetLogger(l Logger) {
	if l != nil {
		w.logger = l
	}
}

func (w *TopicWatcher) Name() string { return "topic" }

func (w *TopicWatcher) routes() []route {
	return []route{
		{filter: w.topics.AllEquipment(), domain: "equipment", channel: event.Equipment, kind: routeStored},
		{filter: w.topics.AllSequence(), domain: "sequence", channel: event.Sequence, kind: routeStored},
		{filter: w.topics.AllImage(), domain: "image", channel: event.Image, kind: routeStored},
		{filter: w.topics.AllGeneral(), domain: "general", channel: event.General, kind: routeStored},
		{filter: w.topics.AllInfo(), domain: "info", kind: routeInfo},
		{filter: w.topics.AllTelemetry(), domain: "telemetry", kind: routeTelemetry},
	}
}

// StartWatchers subscribes every route. On failure the routes already
// subscribed are released.
func (w *TopicWatcher) StartWatchers(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.subscribed) > 0 {
		return nil
	}
	for _, r := range w.routes() {
		if err := w.bus.Subscribe(r.filter, w.handler(r)); err != nil {
			w.unsubscribeLocked()
			return fmt.Errorf("subscribing %s: %w", r.filter, err)
		}
		w.subscribed = append(w.subscribed, r.filter)
		w.logger.Debug("watching topic", "filter", r.filter)
	}
	return nil
}

// StopWatchers unsubscribes every route.
func (w *TopicWatcher) StopWatchers() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unsubscribeLocked()
}

func (w *TopicWatcher) unsubscribeLocked() error {
	var errs []error
	for _, f := range w.subscribed {
		if err := w.bus.Unsubscribe(f); err != nil {
			errs = append(errs, err)
		}
	}
	w.subscribed = nil
	return errors.Join(errs...)
}

func (w *TopicWatcher) handler(r route) bus.Handler {
	return func(topic string, payload []byte) error {
		levels := w.levels(topic, r.domain)
		if levels == nil {
			w.logger.Debug("ignoring topic outside route", "topic", topic)
			return nil
		}

		data, err := decode(payload)
		if err != nil {
			w.logger.Warn("dropping malformed payload", "topic", topic, "error", err)
			return nil
		}

		switch r.kind {
		case routeStored:
			w.pub.SubmitAndStoreEvent(event.New(eventName(r.domain, levels), r.channel, data))

		case routeInfo, routeTelemetry:
			device := levels[0]
			ch, ok := event.InfoChannel(device)
			if !ok {
				w.logger.Debug("no info channel for device", "device", device, "topic", topic)
				return nil
			}
			suffix := "-INFO"
			if r.kind == routeTelemetry {
				suffix = "-TELEMETRY"
				w.writeTelemetry(device, data)
			}
			w.pub.SubmitEvent(event.New(strings.ToUpper(device)+suffix, ch, data))
		}
		return nil
	}
}

// levels returns the topic levels after {prefix}/{domain}.
func (w *TopicWatcher) levels(topic, domain string) []string {
	rest, ok := strings.CutPrefix(topic, w.topics.Prefix+"/"+domain+"/")
	if !ok || rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func (w *TopicWatcher) writeTelemetry(device string, data any) {
	if w.sink == nil {
		return
	}
	fields := numericFields(data)
	if len(fields) == 0 {
		return
	}
	w.sink.WriteTelemetry(device, fields, w.now())
}

func eventName(domain string, levels []string) string {
	parts := levels
	if domain == "sequence" || domain == "image" {
		parts = append([]string{domain}, levels...)
	}
	return strings.ToUpper(strings.Join(parts, "-"))
}

func decode(payload []byte) (any, error) {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// numericFields extracts the number and boolean members of a JSON object.
// Booleans map to 0 and 1.
func numericFields(data any) map[string]float64 {
	obj, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	fields := make(map[string]float64)
	for k, v := range obj {
		switch n := v.(type) {
		case float64:
			fields[k] = n
		case bool:
			if n {
				fields[k] = 1
			} else {
				fields[k] = 0
			}
		}
	}
	return fields
}
