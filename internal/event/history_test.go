package event

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

func storeN(h *History, n int) {
	for i := range n {
		h.Append(FromEvent(New(fmt.Sprintf("E%d", i), General, i)))
	}
}

func TestHistory_AppendGrowsByOne(t *testing.T) {
	h := NewHistory(0)
	for i := range 5 {
		before := h.Len()
		h.Append(FromEvent(New("X", Equipment, i)))
		if got := h.Len(); got != before+1 {
			t.Fatalf("Len() after append %d = %d, want %d", i, got, before+1)
		}
	}
}

func TestHistory_AllIsChronologicalCopy(t *testing.T) {
	h := NewHistory(0)
	storeN(h, 3)

	all := h.All()
	for i, e := range all {
		if want := fmt.Sprintf("E%d", i); e.Name != want {
			t.Errorf("All()[%d].Name = %q, want %q", i, e.Name, want)
		}
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.Before(all[i-1].Timestamp) {
			t.Errorf("timestamps out of order at %d", i)
		}
	}

	all[0].Name = "mutated"
	if h.All()[0].Name != "E0" {
		t.Error("mutating All() result changed the history")
	}
}

func TestHistory_Page(t *testing.T) {
	h := NewHistory(0)
	storeN(h, 7)

	tests := []struct {
		name  string
		page  int
		size  int
		names []string
	}{
		{"first page", 1, 3, []string{"E0", "E1", "E2"}},
		{"second page", 2, 3, []string{"E3", "E4", "E5"}},
		{"short last page", 3, 3, []string{"E6"}},
		{"past end", 4, 3, nil},
		{"far past end", 100, 3, nil},
		{"page zero", 0, 3, nil},
		{"negative page", -1, 3, nil},
		{"zero size", 1, 0, nil},
		{"size larger than history", 1, 50, []string{"E0", "E1", "E2", "E3", "E4", "E5", "E6"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := h.Page(tt.page, tt.size)
			if got == nil {
				t.Fatal("Page() returned nil, want empty slice")
			}
			if len(got) != len(tt.names) {
				t.Fatalf("Page(%d, %d) len = %d, want %d", tt.page, tt.size, len(got), len(tt.names))
			}
			for i, e := range got {
				if e.Name != tt.names[i] {
					t.Errorf("Page(%d, %d)[%d] = %q, want %q", tt.page, tt.size, i, e.Name, tt.names[i])
				}
			}
		})
	}
}

func TestHistory_MaxEventsDiscardsOldest(t *testing.T) {
	h := NewHistory(3)
	storeN(h, 5)

	if h.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", h.Len())
	}
	all := h.All()
	for i, want := range []string{"E2", "E3", "E4"} {
		if all[i].Name != want {
			t.Errorf("All()[%d] = %q, want %q", i, all[i].Name, want)
		}
	}
}

func TestHistory_ConcurrentAppend(t *testing.T) {
	h := NewHistory(0)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			storeN(h, 100)
		}()
	}
	wg.Wait()

	if h.Len() != 800 {
		t.Errorf("Len() = %d, want 800", h.Len())
	}
}

func TestFromEvent(t *testing.T) {
	before := time.Now()
	e := New("FOCUSER-MOVED", Equipment, map[string]int{"Position": 1200})
	he := FromEvent(e)

	if he.Name != e.Name || he.Channel != e.Channel {
		t.Errorf("FromEvent() = %+v, want fields of %+v", he, e)
	}
	if he.Timestamp.Location() != time.UTC {
		t.Errorf("Timestamp location = %v, want UTC", he.Timestamp.Location())
	}
	if he.Timestamp.Before(before.Add(-time.Second)) {
		t.Errorf("Timestamp %v older than creation", he.Timestamp)
	}
}

func TestHistoryEvent_JSON(t *testing.T) {
	ts := time.Date(2026, 3, 1, 22, 15, 0, 123456789, time.UTC)
	he := HistoryEvent{Event: New("IMAGE-SAVE", Image, map[string]string{"File": "a.fits"}), Timestamp: ts}

	raw, err := json.Marshal(he)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got["Event"] != "IMAGE-SAVE" || got["Channel"] != "Image" {
		t.Errorf("frame = %s", raw)
	}
	if got["Timestamp"] != "2026-03-01T22:15:00.123456789Z" {
		t.Errorf("Timestamp = %v", got["Timestamp"])
	}

	var back HistoryEvent
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal(HistoryEvent) error = %v", err)
	}
	if back.Name != he.Name || back.Channel != he.Channel || !back.Timestamp.Equal(ts) {
		t.Errorf("round trip = %+v, want %+v", back, he)
	}
}
