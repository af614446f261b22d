package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-ezviz/internal/audit"
	"github.com/nerrad567/gray-logic-ezviz/internal/command"
	"github.com/nerrad567/gray-logic-ezviz/internal/coordinator"
	"github.com/nerrad567/gray-logic-ezviz/internal/history"
	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-ezviz/internal/integration"
	"github.com/nerrad567/gray-logic-ezviz/internal/metrics"
	"github.com/nerrad567/gray-logic-ezviz/internal/observation"
	"github.com/nerrad567/gray-logic-ezviz/internal/status"
	"github.com/nerrad567/gray-logic-ezviz/migrations"
)

const (
	testSerial = "Q12345678"
	testSecret = "test-secret-key-at-least-32-characters-long"
)

// jpegBytes starts with the JPEG magic so content sniffing reports image/jpeg.
var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

// mockDevice implements Device for testing.
type mockDevice struct {
	mu         sync.Mutex
	ready      bool
	healthy    bool
	snapshot   status.Snapshot
	obs        []observation.Observation
	image      []byte
	imageErr   error
	result     command.Result
	executeErr error
	refreshErr error
	executed   []command.Action
	refreshes  int
}

func newMockDevice() *mockDevice {
	return &mockDevice{
		ready:   true,
		healthy: true,
		snapshot: status.Normalize(map[string]any{
			"name":   "Front Door",
			"status": float64(1),
		}, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		obs: []observation.Observation{
			{Key: "battery_level", Kind: observation.KindSensor, Name: "Battery", Value: 87.0, Available: true},
			{Key: "doorbell_ringing", Kind: observation.KindBinarySensor, Name: "Doorbell ringing", Value: false, Available: true},
		},
		image: jpegBytes,
	}
}

func (d *mockDevice) Serial() string { return testSerial }

func (d *mockDevice) Identity() integration.Identity {
	return integration.Identity{Serial: testSerial, Name: "Front Door"}
}

func (d *mockDevice) Capabilities() command.Capabilities {
	return command.Capabilities{Door: true, Gate: true}
}

func (d *mockDevice) Snapshot() (status.Snapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return status.Snapshot{}, false
	}
	return d.snapshot, true
}

func (d *mockDevice) Observations() []observation.Observation {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return nil
	}
	return d.obs
}

func (d *mockDevice) Observation(key string) (observation.Observation, bool) {
	for _, o := range d.Observations() {
		if o.Key == key {
			return o, true
		}
	}
	return observation.Observation{}, false
}

func (d *mockDevice) SnapshotImage(context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return nil, integration.ErrNotSetUp
	}
	return d.image, d.imageErr
}

func (d *mockDevice) Execute(_ context.Context, action command.Action) (command.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return command.Result{Action: action}, integration.ErrNotSetUp
	}
	d.executed = append(d.executed, action)
	if d.executeErr != nil {
		return command.Result{Action: action}, d.executeErr
	}
	res := d.result
	res.Action = action
	return res, nil
}

func (d *mockDevice) Refresh(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return integration.ErrNotSetUp
	}
	d.refreshes++
	return d.refreshErr
}

func (d *mockDevice) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

func (d *mockDevice) Healthy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready && d.healthy
}

func (d *mockDevice) Stats() coordinator.Stats {
	return coordinator.Stats{Polls: 3, Failures: 1, Ready: d.Ready(), LastError: "timeout"}
}

func (d *mockDevice) setReady(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ready = v
}

type mockConn struct{ connected bool }

func (m mockConn) IsConnected() bool { return m.connected }

// testServer creates a Server with a mock device and in-memory history.
// secret enables JWT authentication when non-empty.
func testServer(t *testing.T, secret string) (*Server, *mockDevice, *history.SQLiteRepository) {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	repo := history.NewSQLiteRepository(db.DB)

	device := newMockDevice()
	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: secret, AccessTokenTTL: 15},
		},
		Logger:  logging.Discard(),
		Device:  device,
		History: repo,
		Audit:   audit.NewSQLiteRepository(db.DB),
		Metrics: metrics.New(),
		MQTT:    mockConn{connected: true},
		DB:      db,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, device, repo
}

// do sends a request through the router and returns the recorder.
func do(t *testing.T, srv *Server, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Deps{Device: newMockDevice()}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without device should fail")
	}
}

func TestHealth(t *testing.T) {
	srv, device, _ := testServer(t, "")

	rec := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" || body["ready"] != true || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}

	device.setReady(false)
	body = decodeBody(t, do(t, srv, http.MethodGet, "/api/v1/health", ""))
	if body["status"] != "degraded" || body["ready"] != false {
		t.Errorf("body = %v", body)
	}
}

func TestRequestID(t *testing.T) {
	srv, _, _ := testServer(t, "")

	rec := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID should be generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-id")
	rec = httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-id" {
		t.Errorf("X-Request-ID = %q, want client-id", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _, _ := testServer(t, "")
	srv.cfg.CORS.AllowedOrigins = []string{"http://panel.local"}

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/commands/unlock_door", nil)
	req.Header.Set("Origin", "http://panel.local")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://panel.local" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin for unknown origin = %q", got)
	}
}

func TestGetDevice(t *testing.T) {
	srv, _, _ := testServer(t, "")

	body := decodeBody(t, do(t, srv, http.MethodGet, "/api/v1/device", ""))
	dev, ok := body["device"].(map[string]any)
	if !ok {
		t.Fatalf("device = %v", body["device"])
	}
	if dev["title"] != "EZVIZ HP7 (Q12345678)" || dev["manufacturer"] != "EZVIZ" || dev["name"] != "Front Door" {
		t.Errorf("device = %v", dev)
	}
	caps, _ := body["capabilities"].(map[string]any)
	if caps["door"] != true || caps["gate"] != true {
		t.Errorf("capabilities = %v", caps)
	}
}

func TestGetStatus(t *testing.T) {
	srv, device, _ := testServer(t, "")

	rec := do(t, srv, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	st, _ := decodeBody(t, rec)["status"].(map[string]any)
	if st["name"] != "Front Door" || st["fetched_at"] != "2026-03-01T12:00:00Z" {
		t.Errorf("status = %v", st)
	}
	if _, ok := st["local_ip"]; !ok {
		t.Error("every field should be present, local_ip missing")
	}

	device.setReady(false)
	if rec := do(t, srv, http.MethodGet, "/api/v1/status", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not ready status = %d, want 503", rec.Code)
	}
}

func TestObservations(t *testing.T) {
	srv, device, _ := testServer(t, "")

	body := decodeBody(t, do(t, srv, http.MethodGet, "/api/v1/observations", ""))
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}

	rec := do(t, srv, http.MethodGet, "/api/v1/observations/battery_level", "")
	if rec.Code != http.StatusOK || decodeBody(t, rec)["value"] != 87.0 {
		t.Errorf("battery = %d %s", rec.Code, rec.Body.String())
	}

	if rec := do(t, srv, http.MethodGet, "/api/v1/observations/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown key status = %d, want 404", rec.Code)
	}

	device.setReady(false)
	rec = do(t, srv, http.MethodGet, "/api/v1/observations", "")
	if rec.Code != http.StatusServiceUnavailable || decodeBody(t, rec)["code"] != ErrCodeNotReady {
		t.Errorf("not ready = %d %s", rec.Code, rec.Body.String())
	}
}

func TestSnapshotImage(t *testing.T) {
	srv, device, _ := testServer(t, "")

	rec := do(t, srv, http.MethodGet, "/api/v1/snapshot", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}
	if rec.Body.Len() != len(jpegBytes) {
		t.Errorf("body length = %d", rec.Body.Len())
	}

	device.imageErr = fmt.Errorf("wrapped: %w", observation.ErrNoImage)
	rec = do(t, srv, http.MethodGet, "/api/v1/snapshot", "")
	if rec.Code != http.StatusNotFound || decodeBody(t, rec)["code"] != ErrCodeNoData {
		t.Errorf("no image = %d %s", rec.Code, rec.Body.String())
	}

	device.imageErr = errors.New("connection reset")
	if rec := do(t, srv, http.MethodGet, "/api/v1/snapshot", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("fetch error status = %d, want 502", rec.Code)
	}
}

func TestRefresh(t *testing.T) {
	srv, device, _ := testServer(t, "")

	rec := do(t, srv, http.MethodPost, "/api/v1/refresh", "")
	if rec.Code != http.StatusOK || device.refreshes != 1 {
		t.Errorf("refresh = %d refreshes = %d", rec.Code, device.refreshes)
	}

	device.refreshErr = coordinator.ErrFetchFailed
	if rec := do(t, srv, http.MethodPost, "/api/v1/refresh", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("failed refresh status = %d, want 502", rec.Code)
	}

	device.setReady(false)
	if rec := do(t, srv, http.MethodPost, "/api/v1/refresh", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not ready status = %d, want 503", rec.Code)
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		result     command.Result
		execErr    error
		wantStatus int
		wantAction command.Action
	}{
		{
			name:       "door ok",
			path:       "/api/v1/commands/unlock_door",
			result:     command.Result{Success: true, LockNo: 2},
			wantStatus: http.StatusOK,
			wantAction: command.ActionUnlockDoor,
		},
		{
			name:       "gate short form",
			path:       "/api/v1/commands/gate",
			result:     command.Result{Success: true, LockNo: 1},
			wantStatus: http.StatusOK,
			wantAction: command.ActionUnlockGate,
		},
		{
			name:       "every lock refused",
			path:       "/api/v1/commands/unlock_door",
			result:     command.Result{Attempts: []command.Attempt{{LockNo: 2, Error: "x"}, {LockNo: 1, Error: "y"}}},
			wantStatus: http.StatusBadGateway,
			wantAction: command.ActionUnlockDoor,
		},
		{
			name:       "unsupported",
			path:       "/api/v1/commands/unlock_gate",
			execErr:    observation.ErrUnsupported,
			wantStatus: http.StatusUnprocessableEntity,
			wantAction: command.ActionUnlockGate,
		},
		{
			name:       "unknown action",
			path:       "/api/v1/commands/open_sesame",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, device, _ := testServer(t, "")
			device.result = tt.result
			device.executeErr = tt.execErr

			rec := do(t, srv, http.MethodPost, tt.path, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantAction == "" {
				if len(device.executed) != 0 {
					t.Errorf("executed = %v, want none", device.executed)
				}
				return
			}
			if len(device.executed) != 1 || device.executed[0] != tt.wantAction {
				t.Errorf("executed = %v, want [%s]", device.executed, tt.wantAction)
			}
		})
	}
}

func TestCommand_ResultBody(t *testing.T) {
	srv, device, _ := testServer(t, "")
	device.result = command.Result{
		Success:  true,
		LockNo:   1,
		Attempts: []command.Attempt{{LockNo: 2, Error: "refused"}, {LockNo: 1}},
	}

	body := decodeBody(t, do(t, srv, http.MethodPost, "/api/v1/commands/door", ""))
	res, _ := body["result"].(map[string]any)
	if res["success"] != true || res["lock_no"] != float64(1) {
		t.Errorf("result = %v", res)
	}
	if attempts, _ := res["attempts"].([]any); len(attempts) != 2 {
		t.Errorf("attempts = %v", res["attempts"])
	}
}

func TestCommand_RecordsUnlock(t *testing.T) {
	srv, device, _ := testServer(t, testSecret)
	token, err := IssueToken(testSecret, "panel-hallway", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	device.result = command.Result{Success: true, LockNo: 1, Attempts: []command.Attempt{{LockNo: 1}}}
	if rec := do(t, srv, http.MethodPost, "/api/v1/commands/gate", token); rec.Code != http.StatusOK {
		t.Fatalf("gate status = %d, want 200", rec.Code)
	}
	device.result = command.Result{Attempts: []command.Attempt{{LockNo: 2, Error: "refused"}, {LockNo: 1, Error: "refused"}}}
	if rec := do(t, srv, http.MethodPost, "/api/v1/commands/door", token); rec.Code != http.StatusBadGateway {
		t.Fatalf("door status = %d, want 502", rec.Code)
	}

	body := decodeBody(t, do(t, srv, http.MethodGet, "/api/v1/history/unlocks", token))
	if body["total"] != float64(2) {
		t.Fatalf("total = %v, want 2", body["total"])
	}
	entries, _ := body["entries"].([]any)
	if len(entries) != 2 {
		t.Fatalf("entries = %v", body["entries"])
	}
	for _, raw := range entries {
		e := raw.(map[string]any)
		if e["actor"] != "panel-hallway" || e["source"] != audit.SourceAPI || e["serial"] != testSerial {
			t.Errorf("entry = %v", e)
		}
		details, _ := e["details"].(map[string]any)
		if details["request_id"] == nil {
			t.Errorf("entry details missing request_id: %v", details)
		}
	}

	body = decodeBody(t, do(t, srv, http.MethodGet, "/api/v1/history/unlocks?action=unlock_door", token))
	entries, _ = body["entries"].([]any)
	if len(entries) != 1 || entries[0].(map[string]any)["success"] != false {
		t.Errorf("filtered entries = %v, want the failed door unlock", entries)
	}

	if rec := do(t, srv, http.MethodGet, "/api/v1/history/unlocks?offset=-1", token); rec.Code != http.StatusBadRequest {
		t.Errorf("bad offset status = %d, want 400", rec.Code)
	}
}

func TestCommand_NotReadyNotAudited(t *testing.T) {
	srv, device, _ := testServer(t, "")
	device.ready = false

	if rec := do(t, srv, http.MethodPost, "/api/v1/commands/door", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	body := decodeBody(t, do(t, srv, http.MethodGet, "/api/v1/history/unlocks", ""))
	if body["total"] != float64(0) {
		t.Errorf("total = %v, want 0", body["total"])
	}
}

func TestAuth(t *testing.T) {
	srv, device, _ := testServer(t, testSecret)
	device.result = command.Result{Success: true, LockNo: 2}

	// Read-only routes stay open.
	if rec := do(t, srv, http.MethodGet, "/api/v1/observations", ""); rec.Code != http.StatusOK {
		t.Errorf("observations status = %d, want 200", rec.Code)
	}

	if rec := do(t, srv, http.MethodPost, "/api/v1/commands/door", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/api/v1/commands/door", "garbage"); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", rec.Code)
	}

	wrong, err := IssueToken("another-secret", "panel", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if rec := do(t, srv, http.MethodPost, "/api/v1/commands/door", wrong); rec.Code != http.StatusUnauthorized {
		t.Errorf("foreign token status = %d, want 401", rec.Code)
	}

	token, err := IssueToken(testSecret, "panel", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if rec := do(t, srv, http.MethodPost, "/api/v1/commands/door", token); rec.Code != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", rec.Code)
	}
	if len(device.executed) != 1 {
		t.Errorf("executed = %v, want one unlock", device.executed)
	}
}

func TestIssueToken(t *testing.T) {
	if _, err := IssueToken("", "x", time.Hour); err == nil {
		t.Error("IssueToken() with empty secret should fail")
	}

	token, err := IssueToken(testSecret, "automation", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "automation" || claims.ID == "" || claims.ExpiresAt == nil {
		t.Errorf("claims = %+v", claims)
	}

	forever, err := IssueToken(testSecret, "x", 0)
	if err != nil {
		t.Fatal(err)
	}
	if c, err := ParseToken(testSecret, forever); err != nil || c.ExpiresAt != nil {
		t.Errorf("non-positive ttl should mean no expiry: %v %+v", err, c)
	}
}

func TestParseToken_Expired(t *testing.T) {
	token, err := IssueToken(testSecret, "x", time.Nanosecond)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(1100 * time.Millisecond)
	if _, err := ParseToken(testSecret, token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}

func TestHistory(t *testing.T) {
	srv, _, repo := testServer(t, "")
	ctx := context.Background()
	fetched := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := range 3 {
		values := map[string]any{"status": float64(i)}
		if err := repo.RecordSnapshot(ctx, testSerial, values, fetched.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.RecordAlarm(ctx, history.AlarmEvent{
		Serial:      testSerial,
		Category:    "doorbell_ringing",
		AlarmName:   "Your doorbell is ringing",
		TriggeredAt: fetched,
	}); err != nil {
		t.Fatal(err)
	}

	body := decodeBody(t, do(t, srv, http.MethodGet, "/api/v1/history/snapshots?limit=2", ""))
	if body["count"] != float64(2) {
		t.Errorf("snapshot count = %v, want 2", body["count"])
	}

	body = decodeBody(t, do(t, srv, http.MethodGet, "/api/v1/history/alarms", ""))
	alarms, _ := body["alarms"].([]any)
	if len(alarms) != 1 || alarms[0].(map[string]any)["category"] != "doorbell_ringing" {
		t.Errorf("alarms = %v", body["alarms"])
	}

	if rec := do(t, srv, http.MethodGet, "/api/v1/history/alarms?limit=zero", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}

func TestHistory_Unavailable(t *testing.T) {
	srv, _, _ := testServer(t, "")
	srv.history = nil

	if rec := do(t, srv, http.MethodGet, "/api/v1/history/snapshots", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestParseHistoryLimit(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", defaultHistoryLimit, false},
		{"10", 10, false},
		{"1000", maxHistoryLimit, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"ten", 0, true},
	}
	for _, tt := range tests {
		got, err := parseHistoryLimit(tt.raw)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseHistoryLimit(%q) = %d, %v; want %d, err=%v", tt.raw, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestMetrics(t *testing.T) {
	srv, _, _ := testServer(t, "")

	body := decodeBody(t, do(t, srv, http.MethodGet, "/api/v1/metrics", ""))
	dev, _ := body["device"].(map[string]any)
	if dev["serial"] != testSerial || dev["polls"] != float64(3) || dev["last_error"] != "timeout" {
		t.Errorf("device = %v", dev)
	}
	if mq, _ := body["mqtt"].(map[string]any); mq["connected"] != true {
		t.Errorf("mqtt = %v", body["mqtt"])
	}
	if _, ok := body["database"]; !ok {
		t.Error("database section missing")
	}

	rec := do(t, srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("prometheus status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("prometheus output missing runtime metrics")
	}
}

func TestRecovery(t *testing.T) {
	srv, _, _ := testServer(t, "")
	handler := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestServer_StartAndClose(t *testing.T) {
	srv, _, _ := testServer(t, "")
	srv.cfg.Port = 0

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// dialWS opens a WebSocket against an httptest server running the router.
func dialWS(t *testing.T, srv *Server, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws" + query
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Cleanup(func() { ws.Close() })
	}
	return ws, resp, err
}

func readWS(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read websocket: %v", err)
	}
	return msg
}

func TestWebSocket_ObservationBroadcast(t *testing.T) {
	srv, _, _ := testServer(t, "")

	ws, _, err := dialWS(t, srv, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	sub := WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelObservationChanged, ChannelAlarmTriggered}},
	}
	if err := ws.WriteJSON(sub); err != nil {
		t.Fatal(err)
	}
	if resp := readWS(t, ws); resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", resp)
	}

	srv.Hub().ObservationChanged(testSerial, observation.Observation{
		Key:       "doorbell_ringing",
		Kind:      observation.KindBinarySensor,
		Value:     true,
		Available: true,
	})

	first := readWS(t, ws)
	second := readWS(t, ws)
	if first.EventType != ChannelObservationChanged || second.EventType != ChannelAlarmTriggered {
		t.Errorf("events = %q, %q", first.EventType, second.EventType)
	}
	payload, _ := first.Payload.(map[string]any)
	if payload["serial"] != testSerial {
		t.Errorf("payload = %v", payload)
	}
}

func TestWebSocket_Ping(t *testing.T) {
	srv, _, _ := testServer(t, "")
	ws, _, err := dialWS(t, srv, "")
	if err != nil {
		t.Fatal(err)
	}

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatal(err)
	}
	if msg := readWS(t, ws); msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("response = %+v", msg)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if msg := readWS(t, ws); msg.Type != WSTypeError {
		t.Errorf("response = %+v, want error", msg)
	}
}

func TestWebSocket_NoBroadcastWithoutSubscription(t *testing.T) {
	srv, _, _ := testServer(t, "")
	ws, _, err := dialWS(t, srv, "")
	if err != nil {
		t.Fatal(err)
	}

	// Wait for registration before broadcasting.
	deadline := time.Now().Add(time.Second)
	for srv.Hub().ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	srv.Hub().ObservationChanged(testSerial, observation.Observation{Key: "battery_level", Value: 50.0})

	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Error("unsubscribed client received a broadcast")
	}
}

func TestWebSocket_TicketAuth(t *testing.T) {
	srv, _, _ := testServer(t, testSecret)

	if _, resp, err := dialWS(t, srv, ""); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no ticket: err = %v resp = %v", err, resp)
	}
	if _, resp, err := dialWS(t, srv, "?ticket=bogus"); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bogus ticket: err = %v resp = %v", err, resp)
	}

	token, err := IssueToken(testSecret, "panel", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	rec := do(t, srv, http.MethodPost, "/api/v1/auth/ws-ticket", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("ticket status = %d", rec.Code)
	}
	ticket, _ := decodeBody(t, rec)["ticket"].(string)

	if _, _, err := dialWS(t, srv, "?ticket="+ticket); err != nil {
		t.Fatalf("dial with ticket: %v", err)
	}

	// Tickets are single-use.
	if _, resp, err := dialWS(t, srv, "?ticket="+ticket); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("reused ticket: err = %v", err)
	}
}

func TestTicketStore_Expiry(t *testing.T) {
	store := newTicketStore()
	ticket := store.issue("x")

	store.mu.Lock()
	entry := store.tickets[ticket]
	entry.expiresAt = time.Now().Add(-time.Second)
	store.tickets[ticket] = entry
	store.mu.Unlock()

	store.cleanExpired()
	if _, ok := store.consume(ticket); ok {
		t.Error("expired ticket accepted")
	}
}

func TestSnapshotImage_RawBytes(t *testing.T) {
	srv, _, _ := testServer(t, "")
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(jpegBytes) {
		t.Errorf("body = %x, want %x", data, jpegBytes)
	}
}
