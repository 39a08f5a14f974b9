package bus

import (
	"errors"
	"sync"
	"testing"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"astrobridge/equipment/+/+", "astrobridge/equipment/camera/connected", true},
		{"astrobridge/equipment/+/+", "astrobridge/equipment/camera", false},
		{"astrobridge/equipment/+/+", "astrobridge/equipment/camera/connected/extra", false},
		{"astrobridge/info/+", "astrobridge/info/focuser", true},
		{"astrobridge/#", "astrobridge/info/focuser", true},
		{"astrobridge/#", "astrobridge", true},
		{"#", "anything/at/all", true},
		{"a/b", "a/b", true},
		{"a/b", "a/c", false},
		{"a/+/c", "a//c", true},
		{"+/status", "$SYS/status", false},
		{"#", "$SYS/uptime", false},
		{"$SYS/#", "$SYS/uptime", true},
		{"", "a", false},
		{"a", "", false},
	}

	for _, tt := range tests {
		if got := Match(tt.filter, tt.topic); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}

func TestLocal_PublishSubscribe(t *testing.T) {
	b := NewLocal()

	var mu sync.Mutex
	got := map[string]string{}
	record := func(topic string, payload []byte) error {
		mu.Lock()
		got[topic] = string(payload)
		mu.Unlock()
		return nil
	}

	if err := b.Subscribe("obs/equipment/+/+", record); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := b.Publish("obs/equipment/dome/opened", []byte(`{}`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := b.Publish("obs/info/dome", []byte(`{}`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(got) != 1 || got["obs/equipment/dome/opened"] != "{}" {
		t.Errorf("received = %v", got)
	}
}

func TestLocal_HandlerMayPublish(t *testing.T) {
	b := NewLocal()
	done := false

	_ = b.Subscribe("req", func(string, []byte) error {
		return b.Publish("resp", nil)
	})
	_ = b.Subscribe("resp", func(string, []byte) error {
		done = true
		return nil
	})

	if err := b.Publish("req", nil); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if !done {
		t.Error("nested publish was not delivered")
	}
}

func TestLocal_ResubscribeReplaces(t *testing.T) {
	b := NewLocal()
	var first, second int
	_ = b.Subscribe("t", func(string, []byte) error { first++; return nil })
	_ = b.Subscribe("t", func(string, []byte) error { second++; return nil })

	_ = b.Publish("t", nil)
	if first != 0 || second != 1 {
		t.Errorf("first = %d, second = %d, want 0 and 1", first, second)
	}

	_ = b.Unsubscribe("t")
	_ = b.Publish("t", nil)
	if second != 1 {
		t.Errorf("handler ran after Unsubscribe")
	}
}

func TestLocal_HandlerErrorDoesNotStopOthers(t *testing.T) {
	b := NewLocal()
	calls := 0
	_ = b.Subscribe("x/+", func(string, []byte) error { calls++; return errors.New("boom") })
	_ = b.Subscribe("x/#", func(string, []byte) error { calls++; return nil })

	if err := b.Publish("x/y", nil); err != nil {
		t.Errorf("Publish() error = %v, want nil", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestLocal_Validation(t *testing.T) {
	b := NewLocal()

	if err := b.Publish("", nil); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish(empty) error = %v", err)
	}
	if err := b.Subscribe("", func(string, []byte) error { return nil }); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) error = %v", err)
	}
	if err := b.Subscribe("a", nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("Subscribe(nil) error = %v", err)
	}

	_ = b.Close()
	if err := b.Publish("a", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close error = %v, want ErrClosed", err)
	}
	if err := b.Subscribe("a", func(string, []byte) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Close error = %v, want ErrClosed", err)
	}
}

var (
	_ Bus = (*Local)(nil)
	_ Bus = (*MQTT)(nil)
)
