package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-tpuart/internal/gateway"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
	"github.com/nerrad567/gray-logic-tpuart/internal/tpuart"
	"github.com/nerrad567/gray-logic-tpuart/migrations"
)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func testDeps(gw Gateway) Deps {
	return Deps{
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
		},
		Logger:  testLogger(),
		Gateway: gw,
		Version: "test",
	}
}

// testServer creates a Server over a fake gateway with no recorder or
// history source.
func testServer(t *testing.T) (*Server, *fakeGateway) {
	t.Helper()

	gw := newFakeGateway()
	srv, err := New(testDeps(gw))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, gw
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{Gateway: newFakeGateway()}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without gateway should fail")
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp struct {
		Status  string                `json:"status"`
		Version string                `json:"version"`
		Gateway gateway.HealthMessage `json:"gateway"`
	}
	decode(t, w, &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.Version != "test" {
		t.Errorf("version = %q, want test", resp.Version)
	}
	if resp.Gateway.Status != gateway.HealthOnline {
		t.Errorf("gateway status = %q, want online", resp.Gateway.Status)
	}
}

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-id-123")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-id-123" {
		t.Errorf("X-Request-ID = %q, want client-id-123", got)
	}
}

func TestRequestID_OversizedReplaced(t *testing.T) {
	srv, _ := testServer(t)

	long := strings.Repeat("x", maxRequestIDLen+1)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", long)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got == long || got == "" {
		t.Errorf("oversized request ID was not replaced: %q", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/groups/1/2/3", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestCORS_RejectsUnlistedOrigin(t *testing.T) {
	gw := newFakeGateway()
	deps := testDeps(gw)
	deps.Config.CORS.AllowedOrigins = []string{"http://panel.local"}
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/nonexistent", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestPanel(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/panel", "")
	if w.Code != http.StatusMovedPermanently {
		t.Errorf("/panel status = %d, want %d", w.Code, http.StatusMovedPermanently)
	}

	w = do(t, srv, http.MethodGet, "/panel/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("/panel/ status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "Bus monitor") {
		t.Error("/panel/ did not serve the monitor page")
	}
}

// ─── Stats ─────────────────────────────────────────────────────────

func TestStats(t *testing.T) {
	srv, gw := testServer(t)
	gw.stats = tpuart.Stats{TelegramsRx: 7, TelegramsTx: 3, NegativeAcks: 1}

	w := do(t, srv, http.MethodGet, "/api/v1/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp SystemStats
	decode(t, w, &resp)
	if resp.Engine == nil {
		t.Fatal("engine statistics missing")
	}
	if resp.Engine.TelegramsReceived != 7 || resp.Engine.TelegramsSent != 3 || resp.Engine.NegativeAcks != 1 {
		t.Errorf("engine = %+v", resp.Engine)
	}
	if !resp.Bridge.Running {
		t.Error("bridge running = false, want true")
	}
	if resp.Runtime.Goroutines == 0 {
		t.Error("runtime goroutines = 0")
	}
}

// ─── Listen Table ──────────────────────────────────────────────────

func TestListen_AddAndGet(t *testing.T) {
	srv, gw := testServer(t)

	w := do(t, srv, http.MethodPost, "/api/v1/listen", `{"group_address":"1/2/3"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("add status = %d, body %s", w.Code, w.Body.String())
	}
	if len(gw.ListenGroupAddresses()) != 1 {
		t.Fatalf("listen table size = %d, want 1", len(gw.ListenGroupAddresses()))
	}

	w = do(t, srv, http.MethodGet, "/api/v1/listen", "")
	var resp listenResponse
	decode(t, w, &resp)
	if len(resp.GroupAddresses) != 1 || resp.GroupAddresses[0] != "1/2/3" {
		t.Errorf("group_addresses = %v, want [1/2/3]", resp.GroupAddresses)
	}
	if resp.Capacity != tpuart.MaxListenGroupAddresses {
		t.Errorf("capacity = %d, want %d", resp.Capacity, tpuart.MaxListenGroupAddresses)
	}
}

func TestListen_AddInvalid(t *testing.T) {
	srv, _ := testServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"bad address", `{"group_address":"32/0/0"}`},
		{"missing address", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, "/api/v1/listen", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestListen_TableFull(t *testing.T) {
	srv, gw := testServer(t)
	for i := range tpuart.MaxListenGroupAddresses {
		if err := gw.AddListenGroupAddress(knx.GroupAddress{Main: 1, Sub: uint8(i)}); err != nil {
			t.Fatalf("seeding listen table: %v", err)
		}
	}

	w := do(t, srv, http.MethodPost, "/api/v1/listen", `{"group_address":"2/0/0"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestListen_SetBroadcast(t *testing.T) {
	srv, gw := testServer(t)

	w := do(t, srv, http.MethodPut, "/api/v1/listen/broadcast", `{"enabled":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !gw.ListeningToBroadcasts() {
		t.Error("broadcast listening not enabled")
	}

	w = do(t, srv, http.MethodPut, "/api/v1/listen/broadcast", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing enabled status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// ─── Datapoints and Groups ─────────────────────────────────────────

func TestListDatapoints(t *testing.T) {
	srv, gw := testServer(t)
	gw.states[knx.MustParseGroupAddress("1/2/3")] = gateway.StateMessage{Address: "1/2/3", Value: true}

	w := do(t, srv, http.MethodGet, "/api/v1/datapoints", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Datapoints []struct {
			Address string                `json:"address"`
			DPT     string                `json:"dpt"`
			Name    string                `json:"name"`
			State   *gateway.StateMessage `json:"state"`
		} `json:"datapoints"`
		Count int `json:"count"`
	}
	decode(t, w, &resp)
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
	dp := resp.Datapoints[0]
	if dp.Address != "1/2/3" || dp.DPT != "1.001" || dp.Name != "Kitchen light" {
		t.Errorf("datapoint = %+v", dp)
	}
	if dp.State == nil || dp.State.Value != true {
		t.Errorf("state = %+v, want value true", dp.State)
	}
}

func TestGetGroup(t *testing.T) {
	srv, gw := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/groups/1/2/3", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown state status = %d, want %d", w.Code, http.StatusNotFound)
	}

	gw.states[knx.MustParseGroupAddress("1/2/3")] = gateway.StateMessage{Address: "1/2/3", DPT: knx.DPTSwitch, Value: false}
	w = do(t, srv, http.MethodGet, "/api/v1/groups/1/2/3", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var st gateway.StateMessage
	decode(t, w, &st)
	if st.Address != "1/2/3" || st.Value != false {
		t.Errorf("state = %+v", st)
	}

	w = do(t, srv, http.MethodGet, "/api/v1/groups/40/2/3", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid address status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSendGroup_Write(t *testing.T) {
	srv, gw := testServer(t)

	w := do(t, srv, http.MethodPost, "/api/v1/groups/1/2/3", `{"id":"req-1","dpt":"1.001","value":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	req, ok := gw.lastRequest()
	if !ok {
		t.Fatal("gateway received no request")
	}
	if req.ID != "req-1" {
		t.Errorf("id = %q, want req-1", req.ID)
	}
	if req.GroupAddress != knx.MustParseGroupAddress("1/2/3") {
		t.Errorf("group address = %s, want 1/2/3", req.GroupAddress)
	}
	if req.Action != gateway.ActionWrite {
		t.Errorf("action = %q, want write", req.Action)
	}
	if req.DPT != knx.DPTSwitch || req.Value != true {
		t.Errorf("dpt/value = %q/%v", req.DPT, req.Value)
	}
	if req.Origin != "api" {
		t.Errorf("origin = %q, want api", req.Origin)
	}

	var res gateway.Result
	decode(t, w, &res)
	if res.ID != "req-1" || res.Address != "1/2/3" {
		t.Errorf("result = %+v", res)
	}
}

func TestSendGroup_Answer(t *testing.T) {
	srv, gw := testServer(t)

	w := do(t, srv, http.MethodPost, "/api/v1/groups/1/2/3", `{"action":"Answer","value":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	req, _ := gw.lastRequest()
	if req.Action != gateway.ActionAnswer {
		t.Errorf("action = %q, want answer", req.Action)
	}
}

func TestSendGroup_BadRequests(t *testing.T) {
	srv, gw := testServer(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"malformed json", "/api/v1/groups/1/2/3", `{"value":`},
		{"unknown action", "/api/v1/groups/1/2/3", `{"action":"toggle","value":true}`},
		{"bad address", "/api/v1/groups/1/9/3", `{"value":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
	if _, ok := gw.lastRequest(); ok {
		t.Error("invalid requests reached the gateway")
	}
}

func TestSendGroup_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"missing dpt", gateway.ErrMissingDPT, http.StatusBadRequest, ErrCodeValidation},
		{"unknown dpt", fmt.Errorf("encoding: %w", knx.ErrUnknownDPT), http.StatusBadRequest, ErrCodeValidation},
		{"out of range", knx.ErrValueOutOfRange, http.StatusBadRequest, ErrCodeValidation},
		{"negative ack", fmt.Errorf("sending to 1/2/3: %w", tpuart.ErrNegativeAck), http.StatusBadGateway, ErrCodeBusRejected},
		{"timeout", fmt.Errorf("sending to 1/2/3: %w", tpuart.ErrReadTimeout), http.StatusGatewayTimeout, ErrCodeBusTimeout},
		{"not running", gateway.ErrNotRunning, http.StatusServiceUnavailable, ErrCodeNotRunning},
		{"other", errors.New("boom"), http.StatusInternalServerError, ErrCodeGatewayError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, gw := testServer(t)
			gw.sendErr = tt.err

			w := do(t, srv, http.MethodPost, "/api/v1/groups/1/2/3", `{"value":true}`)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var apiErr Error
			decode(t, w, &apiErr)
			if apiErr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", apiErr.Code, tt.wantCode)
			}
			if apiErr.RequestID == "" {
				t.Error("error response missing request_id")
			}
		})
	}
}

func TestReadGroup(t *testing.T) {
	srv, gw := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/groups/3/1/0/read", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	req, _ := gw.lastRequest()
	if req.Action != gateway.ActionRead {
		t.Errorf("action = %q, want read", req.Action)
	}
	if req.GroupAddress != knx.MustParseGroupAddress("3/1/0") {
		t.Errorf("group address = %s, want 3/1/0", req.GroupAddress)
	}
}

// ─── History ───────────────────────────────────────────────────────

func TestGroupHistory_Unavailable(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/groups/1/2/3/history", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestGroupHistory(t *testing.T) {
	gw := newFakeGateway()
	hist := &fakeHistory{points: []influxdb.HistoryPoint{
		{Time: time.Now().Add(-time.Minute).UTC(), Field: "value", Value: 21.5},
	}}
	deps := testDeps(gw)
	deps.History = hist
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	before := time.Now()
	w := do(t, srv, http.MethodGet, "/api/v1/groups/3/1/0/history?since=6h", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Address string `json:"address"`
		Count   int    `json:"count"`
	}
	decode(t, w, &resp)
	if resp.Address != "3/1/0" || resp.Count != 1 {
		t.Errorf("response = %+v", resp)
	}
	if hist.ga != knx.MustParseGroupAddress("3/1/0") {
		t.Errorf("queried %s, want 3/1/0", hist.ga)
	}
	if d := before.Sub(hist.since); d < 6*time.Hour-time.Second || d > 6*time.Hour+time.Second {
		t.Errorf("since offset = %v, want about 6h", d)
	}

	w = do(t, srv, http.MethodGet, "/api/v1/groups/3/1/0/history?since=yesterday", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad since status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	hist.err = errors.New("influx down")
	w = do(t, srv, http.MethodGet, "/api/v1/groups/3/1/0/history", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("query error status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// ─── Recorded addresses ────────────────────────────────────────────

func TestAddresses_Unavailable(t *testing.T) {
	srv, _ := testServer(t)

	for _, path := range []string{"/api/v1/addresses/groups", "/api/v1/addresses/devices", "/api/v1/sent"} {
		w := do(t, srv, http.MethodGet, path, "")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want %d", path, w.Code, http.StatusServiceUnavailable)
		}
	}
}

// setupRecorder opens an in-memory database with the embedded schema.
func setupRecorder(t *testing.T) *gateway.Recorder {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	all, err := migrations.All()
	if err != nil {
		t.Fatalf("loading migrations: %v", err)
	}
	if _, err := db.Migrate(context.Background(), all); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	rec := gateway.NewRecorder(db.DB)
	if err := rec.Start(); err != nil {
		t.Fatalf("starting recorder: %v", err)
	}
	t.Cleanup(rec.Stop)
	return rec
}

func TestAddresses_FromRecorder(t *testing.T) {
	rec := setupRecorder(t)

	tel := knx.NewTelegram()
	tel.SetSourceAddress(knx.IndividualAddress{Area: 1, Line: 1, Member: 5})
	tel.SetTargetGroupAddress(knx.MustParseGroupAddress("1/2/3"))
	tel.SetCommand(knx.CommandWrite)
	tel.SetBool(true)
	tel.CreateChecksum()
	rec.RecordTelegram(tel, time.Now())
	rec.RecordSent(gateway.SentRecord{
		RequestID: "req-1",
		Target:    "1/2/3",
		Command:   "write",
		Raw:       tel.Bytes(),
		Status:    gateway.AckAccepted,
		SentAt:    time.Now(),
	})
	if err := rec.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	deps := testDeps(newFakeGateway())
	deps.Addresses = rec
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	tests := []struct {
		path string
		key  string
	}{
		{"/api/v1/addresses/groups", "group_addresses"},
		{"/api/v1/addresses/devices", "devices"},
		{"/api/v1/sent", "sent"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			w := do(t, srv, http.MethodGet, tt.path+"?limit=10", "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}
			var resp map[string]any
			decode(t, w, &resp)
			if resp["count"] != float64(1) {
				t.Errorf("count = %v, want 1", resp["count"])
			}
			if _, ok := resp[tt.key]; !ok {
				t.Errorf("response missing %q", tt.key)
			}
		})
	}

	w := do(t, srv, http.MethodGet, "/api/v1/sent?limit=-1", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", defaultListLimit, false},
		{"25", 25, false},
		{"5000", maxListLimit, false},
		{"0", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseLimit(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLimit(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	srv, _ := testServer(t)

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := srv.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
