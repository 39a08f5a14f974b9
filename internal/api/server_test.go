package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/astrobridge/internal/dispatch"
	"github.com/nerrad567/astrobridge/internal/equipment"
	"github.com/nerrad567/astrobridge/internal/event"
	"github.com/nerrad567/astrobridge/internal/infrastructure/config"
	"github.com/nerrad567/astrobridge/internal/infrastructure/database"
	"github.com/nerrad567/astrobridge/internal/infrastructure/logging"
	"github.com/nerrad567/astrobridge/internal/metrics"
	"github.com/nerrad567/astrobridge/internal/process"
	_ "github.com/nerrad567/astrobridge/migrations"
)

// blockingCommander runs every command until its context is cancelled.
type blockingCommander struct{}

func (blockingCommander) Execute(ctx context.Context, _ equipment.Command, _ equipment.ProgressFunc) error {
	<-ctx.Done()
	return ctx.Err()
}

// testOption customises the dependencies used by testServer.
type testOption func(t *testing.T, d *Deps)

func withArchive() testOption {
	return func(t *testing.T, d *Deps) {
		db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath, BusyTimeout: 1})
		if err != nil {
			t.Fatalf("database.Open: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		if err := db.Migrate(context.Background()); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
		archive := event.NewSQLiteArchive(db)
		d.Broadcaster.SetArchive(archive)
		d.Archive = archive
		d.DB = db
	}
}

func withSimulator() testOption {
	return func(t *testing.T, d *Deps) {
		disp := dispatch.New(8)
		ctx, cancel := context.WithCancel(context.Background())
		go disp.Run(ctx)
		t.Cleanup(func() {
			cancel()
			<-disp.Stopped()
		})
		sim := equipment.NewSimulatedCommander(disp, time.Millisecond)
		d.Simulator = sim
		d.Commander = sim
	}
}

func withMetrics() testOption {
	return func(_ *testing.T, d *Deps) {
		m := metrics.New()
		d.Registry.AddListener(m)
		d.Broadcaster.SetObserver(m)
		d.Metrics = m
	}
}

// testServer creates a Server around a fresh registry and broadcaster.
func testServer(t *testing.T, opts ...testOption) *Server {
	t.Helper()

	registry := process.NewRegistry(process.RegistryConfig{})
	t.Cleanup(registry.StopAll)

	deps := Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			SendBuffer:     64,
		},
		History:     config.HistoryConfig{DefaultPageSize: 2},
		Logger:      logging.Discard(),
		Registry:    registry,
		Broadcaster: event.NewBroadcaster(event.NewHistory(100)),
		Commander:   blockingCommander{},
		Version:     "test",
	}
	for _, opt := range opts {
		opt(t, &deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

// do runs one request against the router and returns the recorder.
func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	base := Deps{
		Logger:      logging.Discard(),
		Registry:    process.NewRegistry(process.RegistryConfig{}),
		Broadcaster: event.NewBroadcaster(nil),
		Commander:   blockingCommander{},
	}

	tests := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"logger", func(d *Deps) { d.Logger = nil }},
		{"registry", func(d *Deps) { d.Registry = nil }},
		{"broadcaster", func(d *Deps) { d.Broadcaster = nil }},
		{"commander", func(d *Deps) { d.Commander = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base
			tt.mutate(&d)
			if _, err := New(d); err == nil {
				t.Errorf("New() without %s should fail", tt.name)
			}
		})
	}

	if _, err := New(base); err != nil {
		t.Errorf("New() with all deps error = %v", err)
	}
}

// ─── Health, Metrics and Middleware ────────────────────────────────

func TestHealth(t *testing.T) {
	srv := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp map[string]any
	decode(t, w, &resp)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodGet, "/api/v1/health", nil)
	if id := w.Header().Get("X-Request-ID"); uuid.Validate(id) != nil {
		t.Errorf("generated X-Request-ID = %q, want a UUID", id)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-supplied" {
		t.Errorf("X-Request-ID = %q, want client-supplied", got)
	}
}

func TestCORS(t *testing.T) {
	srv := testServer(t)
	srv.cfg.CORS.AllowedOrigins = []string{"http://allsky.local"}
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/processes", nil)
	req.Header.Set("Origin", "http://allsky.local")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://allsky.local" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://elsewhere")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin for disallowed origin = %q, want empty", got)
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/nope", nil)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var e Error
	decode(t, w, &e)
	if e.Code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeNotFound)
	}
}

func TestSystemMetrics(t *testing.T) {
	srv := testServer(t, withArchive())
	router := srv.buildRouter()

	do(t, router, http.MethodPost, "/api/v1/processes", map[string]any{"type": "PlateSolve"})
	srv.broadcaster.SubmitAndStoreEvent(event.New("CAMERA-CONNECTED", event.Equipment, nil))

	w := do(t, router, http.MethodGet, "/api/v1/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var m SystemMetrics
	decode(t, w, &m)

	if m.Processes.Total != 1 || m.Processes.ByStatus["Pending"] != 1 {
		t.Errorf("processes = %+v, want 1 pending", m.Processes)
	}
	if m.Events.HistoryLength != 1 {
		t.Errorf("history_length = %d, want 1", m.Events.HistoryLength)
	}
	if m.Events.AvailableChannels != len(event.Channels()) {
		t.Errorf("available_channels = %d", m.Events.AvailableChannels)
	}
	if m.Database == nil {
		t.Error("database metrics missing with archive enabled")
	}
	if m.MQTT.Enabled {
		t.Error("mqtt reported enabled without a client")
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	srv := testServer(t, withMetrics())
	router := srv.buildRouter()

	w := do(t, router, http.MethodPost, "/api/v1/processes", map[string]any{"type": "MountSlew", "start": true})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}

	do(t, router, http.MethodGet, "/api/v1/health", nil)

	w = do(t, router, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`astrobridge_process_starts_total{type="MountSlew"} 1`,
		`astrobridge_http_requests_total{method="GET",route="/api/v1/health",status="200"} 1`,
		"astrobridge_process_running 1",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics missing %q", want)
		}
	}
}

func TestPrometheusEndpoint_DisabledWithoutMetrics(t *testing.T) {
	srv := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("/metrics status = %d, want 404 without metrics", w.Code)
	}
}

// ─── Processes ─────────────────────────────────────────────────────

func createProcess(t *testing.T, h http.Handler, typ string, start bool) string {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/v1/processes", map[string]any{"type": typ, "start": start})
	if w.Code != http.StatusCreated {
		t.Fatalf("create %s status = %d body = %s", typ, w.Code, w.Body.String())
	}
	var resp struct {
		ProcessID string         `json:"ProcessId"`
		Status    process.Status `json:"Status"`
	}
	decode(t, w, &resp)
	if resp.ProcessID == "" {
		t.Fatal("create returned empty ProcessId")
	}
	return resp.ProcessID
}

func TestCreateProcess(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	id := createProcess(t, router, "FocuserMove", false)
	if got := srv.registry.Status(id); got != process.StatusPending {
		t.Errorf("status after create = %s, want Pending", got)
	}

	started := createProcess(t, router, "AutoFocus", true)
	if got := srv.registry.Status(started); got != process.StatusRunning {
		t.Errorf("status after create+start = %s, want Running", got)
	}
}

func TestCreateProcess_BadRequests(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodPost, "/api/v1/processes", map[string]any{"type": "Teleport"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown type status = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/processes", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON status = %d, want 400", rec.Code)
	}

	if srv.registry.Len() != 0 {
		t.Errorf("registry has %d processes after bad requests", srv.registry.Len())
	}
}

func TestCreateProcess_StartConflict(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	slewID := createProcess(t, router, "MountSlew", true)

	w := do(t, router, http.MethodPost, "/api/v1/processes", map[string]any{"type": "MeridianFlip", "start": true})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}

	var resp struct {
		Conflicts []struct {
			ProcessID   string `json:"ProcessId"`
			ProcessType struct {
				Name string `json:"Name"`
			} `json:"ProcessType"`
		} `json:"conflicts"`
	}
	decode(t, w, &resp)
	if len(resp.Conflicts) != 1 {
		t.Fatalf("conflicts = %+v, want 1", resp.Conflicts)
	}
	if resp.Conflicts[0].ProcessID != slewID || resp.Conflicts[0].ProcessType.Name != "MountSlew" {
		t.Errorf("conflict = %+v, want MountSlew %s", resp.Conflicts[0], slewID)
	}
	if srv.registry.Len() != 1 {
		t.Errorf("refused process was kept: registry has %d", srv.registry.Len())
	}
}

func TestStartProcess(t *testing.T) {
	srv := testServer(t, withMetrics())
	router := srv.buildRouter()

	slew := createProcess(t, router, "MountSlew", false)
	park := createProcess(t, router, "MountPark", false)

	tests := []struct {
		name    string
		id      string
		want    int
		outcome string
	}{
		{"pending starts", slew, http.StatusOK, "Started"},
		{"second start", slew, http.StatusOK, "AlreadyRunning"},
		{"conflicting start", park, http.StatusConflict, ""},
		{"unknown id", "missing", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/api/v1/processes/"+tt.id+"/start", nil)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if tt.outcome == "" {
				return
			}
			var resp map[string]any
			decode(t, w, &resp)
			if resp["Outcome"] != tt.outcome {
				t.Errorf("Outcome = %v, want %s", resp["Outcome"], tt.outcome)
			}
		})
	}

	if got := srv.registry.Status(park); got != process.StatusPending {
		t.Errorf("refused process status = %s, want Pending", got)
	}
}

func TestStopAndRemoveProcess(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	id := createProcess(t, router, "DomeSlew", true)

	w := do(t, router, http.MethodPost, "/api/v1/processes/"+id+"/stop", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stop status = %d", w.Code)
	}

	p, _ := srv.registry.Get(id)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got := p.Status(); got != process.StatusFinished {
		t.Errorf("status after stop = %s, want Finished", got)
	}

	if w := do(t, router, http.MethodDelete, "/api/v1/processes/"+id, nil); w.Code != http.StatusOK {
		t.Errorf("delete status = %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/api/v1/processes/"+id, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/api/v1/processes/"+id, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/api/v1/processes/missing/stop", nil); w.Code != http.StatusNotFound {
		t.Errorf("stop unknown status = %d, want 404", w.Code)
	}
}

func TestDeleteRunningProcessStopsIt(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	id := createProcess(t, router, "GuiderStart", true)
	p, _ := srv.registry.Get(id)

	if w := do(t, router, http.MethodDelete, "/api/v1/processes/"+id, nil); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("deleted process still running")
	}
}

func TestProcessQueries(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	id := createProcess(t, router, "CameraCool", false)

	w := do(t, router, http.MethodGet, "/api/v1/processes/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var info process.Info
	decode(t, w, &info)
	if info.ID != id || info.Type != process.CameraCool || info.Status != process.StatusPending {
		t.Errorf("info = %+v", info)
	}

	w = do(t, router, http.MethodGet, "/api/v1/processes/"+id+"/status", nil)
	var status map[string]string
	decode(t, w, &status)
	if status["Status"] != "Pending" {
		t.Errorf("status = %v", status)
	}

	w = do(t, router, http.MethodGet, "/api/v1/processes/"+id+"/progress", nil)
	if w.Code != http.StatusOK {
		t.Errorf("progress status = %d", w.Code)
	}

	for _, path := range []string{"/status", "/progress", ""} {
		if w := do(t, router, http.MethodGet, "/api/v1/processes/missing"+path, nil); w.Code != http.StatusNotFound {
			t.Errorf("GET missing%s = %d, want 404", path, w.Code)
		}
	}

	w = do(t, router, http.MethodGet, "/api/v1/processes", nil)
	var list struct {
		Processes []process.Info `json:"processes"`
		Count     int            `json:"count"`
	}
	decode(t, w, &list)
	if list.Count != 1 || len(list.Processes) != 1 {
		t.Errorf("list = %+v", list)
	}
}

func TestListProcessTypes(t *testing.T) {
	srv := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/processes/types", nil)

	var resp struct {
		Types []typeDTO `json:"types"`
		Count int       `json:"count"`
	}
	decode(t, w, &resp)
	if resp.Count != len(process.Types()) {
		t.Fatalf("count = %d, want %d", resp.Count, len(process.Types()))
	}

	byName := map[string]typeDTO{}
	for _, dto := range resp.Types {
		byName[dto.Name] = dto
	}
	if !byName["PlateSolve"].AllowMultiple {
		t.Error("PlateSolve should allow multiple")
	}
	flip := byName["MeridianFlip"]
	if flip.Device != "mount" {
		t.Errorf("MeridianFlip device = %q, want mount", flip.Device)
	}
	found := false
	for _, c := range flip.ConflictsWith {
		if c == "MountSlew" {
			found = true
		}
	}
	if !found {
		t.Errorf("MeridianFlip conflicts = %v, want MountSlew listed", flip.ConflictsWith)
	}
}

func TestCheckConflicts(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	slew := createProcess(t, router, "MountSlew", true)

	tests := []struct {
		name  string
		query string
		code  int
		count int
	}{
		{"conflicting type", "?type=MountPark", http.StatusOK, 1},
		{"unrelated type", "?type=FocuserMove", http.StatusOK, 0},
		{"excluded", "?type=MountPark&exclude=" + slew, http.StatusOK, 0},
		{"missing type", "", http.StatusBadRequest, 0},
		{"unknown type", "?type=Warp", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodGet, "/api/v1/processes/conflicts"+tt.query, nil)
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d", w.Code, tt.code)
			}
			if tt.code != http.StatusOK {
				return
			}
			var resp struct {
				Conflicts []conflictDTO `json:"conflicts"`
			}
			decode(t, w, &resp)
			if len(resp.Conflicts) != tt.count {
				t.Errorf("conflicts = %+v, want %d", resp.Conflicts, tt.count)
			}
		})
	}
}

func TestStopAll(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	ids := []string{
		createProcess(t, router, "PlateSolve", true),
		createProcess(t, router, "PlateSolve", true),
		createProcess(t, router, "RotatorMove", true),
	}

	if w := do(t, router, http.MethodPost, "/api/v1/processes/stop-all", nil); w.Code != http.StatusOK {
		t.Fatalf("stop-all status = %d", w.Code)
	}

	for _, id := range ids {
		p, _ := srv.registry.Get(id)
		select {
		case <-p.Done():
		case <-time.After(2 * time.Second):
			t.Fatalf("process %s still running after stop-all", id)
		}
	}
}

// ─── Events ────────────────────────────────────────────────────────

func TestListChannels(t *testing.T) {
	srv := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/events/channels", nil)

	var resp struct {
		Channels []event.Channel `json:"channels"`
	}
	decode(t, w, &resp)
	if len(resp.Channels) != len(event.Channels()) {
		t.Errorf("channels = %v", resp.Channels)
	}
}

func TestEventHistory(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	for i := 0; i < 5; i++ {
		srv.broadcaster.SubmitAndStoreEvent(event.New(fmt.Sprintf("E%d", i), event.General, nil))
	}
	srv.broadcaster.SubmitEvent(event.New("LIVE-ONLY", event.General, nil))

	type historyResp struct {
		Events []event.HistoryEvent `json:"events"`
		Count  int                  `json:"count"`
		Total  int                  `json:"total"`
	}

	var all historyResp
	decode(t, do(t, router, http.MethodGet, "/api/v1/events/history", nil), &all)
	if all.Count != 5 {
		t.Fatalf("full history count = %d, want 5", all.Count)
	}

	tests := []struct {
		query string
		names []string
	}{
		{"?page=1&pageSize=2", []string{"E0", "E1"}},
		{"?page=3&pageSize=2", []string{"E4"}},
		{"?page=2", []string{"E2", "E3"}}, // default page size 2
		{"?page=4&pageSize=2", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var resp historyResp
			decode(t, do(t, router, http.MethodGet, "/api/v1/events/history"+tt.query, nil), &resp)
			if resp.Total != 5 {
				t.Errorf("total = %d, want 5", resp.Total)
			}
			if len(resp.Events) != len(tt.names) {
				t.Fatalf("events = %d, want %d", len(resp.Events), len(tt.names))
			}
			for i, name := range tt.names {
				if resp.Events[i].Name != name {
					t.Errorf("events[%d] = %s, want %s", i, resp.Events[i].Name, name)
				}
			}
		})
	}

	for _, q := range []string{"?page=0", "?page=x", "?page=1&pageSize=-1"} {
		if w := do(t, router, http.MethodGet, "/api/v1/events/history"+q, nil); w.Code != http.StatusBadRequest {
			t.Errorf("history%s status = %d, want 400", q, w.Code)
		}
	}
}

func TestEventArchive(t *testing.T) {
	srv := testServer(t, withArchive())
	router := srv.buildRouter()

	srv.broadcaster.SubmitAndStoreEvent(event.New("IMAGE-SAVE", event.Image, map[string]string{"File": "m31.fits"}))
	srv.broadcaster.SubmitEvent(event.New("CAMERA-INFO", event.CameraInfo, nil))

	w := do(t, router, http.MethodGet, "/api/v1/events/archive", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("archive status = %d", w.Code)
	}
	var resp struct {
		Events []struct {
			Event   string          `json:"Event"`
			Channel string          `json:"Channel"`
			Data    json.RawMessage `json:"Data"`
		} `json:"events"`
	}
	decode(t, w, &resp)
	if len(resp.Events) != 1 {
		t.Fatalf("archived events = %d, want 1 (live events are not archived)", len(resp.Events))
	}
	if resp.Events[0].Event != "IMAGE-SAVE" || !strings.Contains(string(resp.Events[0].Data), "m31.fits") {
		t.Errorf("archived = %+v", resp.Events[0])
	}

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	w = do(t, router, http.MethodGet, "/api/v1/events/archive?since="+future, nil)
	decode(t, w, &resp)
	if len(resp.Events) != 0 {
		t.Errorf("events since the future = %d, want 0", len(resp.Events))
	}

	for _, q := range []string{"?since=yesterday", "?limit=0", "?limit=5000"} {
		if w := do(t, router, http.MethodGet, "/api/v1/events/archive"+q, nil); w.Code != http.StatusBadRequest {
			t.Errorf("archive%s status = %d, want 400", q, w.Code)
		}
	}
}

func TestEventArchive_Disabled(t *testing.T) {
	srv := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/events/archive", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// ─── Equipment ─────────────────────────────────────────────────────

func TestEquipmentSnapshot(t *testing.T) {
	srv := testServer(t, withSimulator())
	router := srv.buildRouter()

	id := createProcess(t, router, "DomeOpenShutter", true)
	p, _ := srv.registry.Get(id)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	w := do(t, router, http.MethodGet, "/api/v1/equipment", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Devices []equipment.DeviceState `json:"devices"`
	}
	decode(t, w, &resp)

	var dome *equipment.DeviceState
	for i := range resp.Devices {
		if i > 0 && resp.Devices[i-1].Device > resp.Devices[i].Device {
			t.Error("devices not sorted by name")
		}
		if resp.Devices[i].Device == "dome" {
			dome = &resp.Devices[i]
		}
	}
	if dome == nil {
		t.Fatalf("dome missing from %+v", resp.Devices)
	}
	if dome.LastAction != process.DomeOpenShutter.Action() {
		t.Errorf("dome LastAction = %q, want %q", dome.LastAction, process.DomeOpenShutter.Action())
	}
}

func TestEquipmentSnapshot_NotSimulated(t *testing.T) {
	srv := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/equipment", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────

// connectWebSocket dials the /ws endpoint of an httptest server.
func connectWebSocket(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func wsServer(t *testing.T, srv *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(func() {
		srv.hub.closeAll()
		ts.Close()
	})
	return ts
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(v); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
}

// request sends one protocol message and returns the matching reply.
func request(t *testing.T, conn *websocket.Conn, typ, requestID string, data any) WSMessage {
	t.Helper()
	msg := map[string]any{"Type": typ, "RequestId": requestID}
	if data != nil {
		msg["Data"] = data
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var reply WSMessage
	readJSON(t, conn, &reply)
	if reply.Type != WSTypeServer || reply.RequestID != requestID {
		t.Fatalf("reply = %+v, want Server reply to %s", reply, requestID)
	}
	return reply
}

// waitForClients blocks until the broadcaster has n clients.
func waitForClients(t *testing.T, srv *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for srv.broadcaster.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("broadcaster clients = %d, want %d", srv.broadcaster.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func channelNames(data any) []string {
	items, _ := data.([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, _ := it.(string)
		out = append(out, s)
	}
	return out
}

func TestWebSocket_Protocol(t *testing.T) {
	srv := testServer(t)
	ts := wsServer(t, srv)
	conn := connectWebSocket(t, ts)

	reply := request(t, conn, WSTypeAvailableChannels, "r1", nil)
	if got := channelNames(reply.Data); len(got) != len(event.Channels()) {
		t.Errorf("AvailableChannels = %v", got)
	}

	reply = request(t, conn, WSTypeSubscribedChannels, "r2", nil)
	if got := channelNames(reply.Data); len(got) != len(event.Channels()) {
		t.Errorf("default subscriptions = %v, want all channels", got)
	}

	reply = request(t, conn, WSTypeUnsubscribe, "r3", "Equipment")
	if s, _ := reply.Data.(string); !strings.Contains(s, "Equipment") {
		t.Errorf("Unsubscribe reply = %v", reply.Data)
	}

	reply = request(t, conn, WSTypeSubscribedChannels, "r4", nil)
	for _, name := range channelNames(reply.Data) {
		if name == "Equipment" {
			t.Error("Equipment still subscribed after Unsubscribe")
		}
	}

	reply = request(t, conn, WSTypeSubscribe, "r5", "equipment")
	if s, _ := reply.Data.(string); s != "Subscribed to Equipment" {
		t.Errorf("Subscribe reply = %v", reply.Data)
	}

	errorCases := []struct {
		typ  string
		data any
		want string
	}{
		{WSTypeSubscribe, "Galaxy", "unknown channel"},
		{WSTypeUnsubscribe, nil, "channel"},
		{"Dance", nil, "unknown message type"},
	}
	for i, tc := range errorCases {
		reply := request(t, conn, tc.typ, fmt.Sprintf("e%d", i), tc.data)
		if s, _ := reply.Data.(string); !strings.Contains(s, tc.want) {
			t.Errorf("%s reply = %v, want error containing %q", tc.typ, reply.Data, tc.want)
		}
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{broken")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	var bad WSMessage
	readJSON(t, conn, &bad)
	if s, _ := bad.Data.(string); bad.Type != WSTypeServer || !strings.Contains(s, "invalid JSON") {
		t.Errorf("invalid JSON reply = %+v", bad)
	}
}

// Two clients connect; A keeps only Process, B keeps every channel. An
// Equipment event is stored once, skipped for A and delivered to B.
func TestWebSocket_SubscriptionFiltering(t *testing.T) {
	srv := testServer(t)
	ts := wsServer(t, srv)

	a := connectWebSocket(t, ts)
	b := connectWebSocket(t, ts)
	waitForClients(t, srv, 2)

	for i, ch := range event.Channels() {
		if ch == event.Process {
			continue
		}
		request(t, a, WSTypeUnsubscribe, fmt.Sprintf("u%d", i), string(ch))
	}

	before := srv.broadcaster.HistoryLen()
	srv.broadcaster.SubmitAndStoreEvent(event.New("CAMERA-CONNECTED", event.Equipment, map[string]string{"Device": "camera"}))
	if got := srv.broadcaster.HistoryLen(); got != before+1 {
		t.Errorf("history length = %d, want %d", got, before+1)
	}

	var frame event.Event
	readJSON(t, b, &frame)
	if frame.Name != "CAMERA-CONNECTED" || frame.Channel != event.Equipment {
		t.Errorf("B received %+v", frame)
	}

	// A's next frame must be the Process event, not the Equipment one.
	srv.broadcaster.SubmitAndStoreEvent(event.New("PROCESS-STARTED", event.Process, nil))
	readJSON(t, a, &frame)
	if frame.Name != "PROCESS-STARTED" {
		t.Errorf("A received %s first, want PROCESS-STARTED", frame.Name)
	}
}

func TestWebSocket_DisconnectUnregisters(t *testing.T) {
	srv := testServer(t)
	ts := wsServer(t, srv)

	conn := connectWebSocket(t, ts)
	waitForClients(t, srv, 1)
	if srv.hub.ClientCount() != 1 {
		t.Errorf("hub clients = %d, want 1", srv.hub.ClientCount())
	}

	conn.Close()
	waitForClients(t, srv, 0)

	// Submitting after the disconnect must not block or panic.
	srv.broadcaster.SubmitAndStoreEvent(event.New("IMAGE-SAVE", event.Image, nil))
}

func TestWSClient_DeliverAfterClose(t *testing.T) {
	srv := testServer(t)
	c := newWSClient(srv.hub, nil)

	if err := c.Deliver([]byte("{}")); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	c.close()
	c.close()
	if err := c.Deliver([]byte("{}")); err != event.ErrClientGone {
		t.Errorf("Deliver() after close = %v, want ErrClientGone", err)
	}
}

func TestWSClient_FullBufferDropsFrame(t *testing.T) {
	srv := testServer(t)
	dropped := 0
	srv.hub.onDrop = func() { dropped++ }
	c := newWSClient(srv.hub, nil)

	for i := 0; i < cap(c.send)+3; i++ {
		if err := c.Deliver([]byte("{}")); err != nil {
			t.Fatalf("Deliver() error = %v", err)
		}
	}
	if dropped != 3 {
		t.Errorf("dropped = %d, want 3", dropped)
	}
	if len(c.send) != cap(c.send) {
		t.Errorf("queued = %d, want %d", len(c.send), cap(c.send))
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func TestServerStartClose(t *testing.T) {
	srv := testServer(t)
	srv.cfg.Port = 19180

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var resp *http.Response
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get("http://127.0.0.1:19180/api/v1/health")
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestClose_NotStarted(t *testing.T) {
	srv := testServer(t)
	if err := srv.Close(); err != nil {
		t.Errorf("Close() before Start = %v, want nil", err)
	}
}
