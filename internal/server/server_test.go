package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/apimonitor/internal/history"
	"github.com/jpalmerr/apimonitor/internal/poller"
	"github.com/jpalmerr/apimonitor/internal/settings"
	"github.com/jpalmerr/apimonitor/internal/status"
	"github.com/jpalmerr/apimonitor/internal/store"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeController implements Controller for testing.
type fakeController struct {
	mu         sync.Mutex
	status     poller.Status
	state      poller.State
	history    []history.Entry
	settings   settings.Settings
	configured bool
	refreshes  int
	validated  []string
	clearErr   error
}

func newFakeController() *fakeController {
	return &fakeController{settings: settings.Defaults()}
}

func (f *fakeController) Status() poller.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeController) State() poller.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) Configured() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configured
}

func (f *fakeController) History() []history.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]history.Entry(nil), f.history...)
}

func (f *fakeController) Settings() settings.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

func (f *fakeController) RefreshNow() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
}

func (f *fakeController) SaveSettings(s settings.Settings) (settings.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = s.Normalize()
	f.configured = true
	return f.settings, nil
}

func (f *fakeController) ValidateURL(rawURL string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validated = append(f.validated, rawURL)
	return uint64(len(f.validated))
}

func (f *fakeController) ClearHistory() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = nil
	return f.clearErr
}

func newTestServer(ctrl Controller, st store.Store, assets fs.FS, title string) *Server {
	return NewServer(ctrl, st, 0, assets, title, testLogger())
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleStatus(t *testing.T) {
	ctrl := newFakeController()
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctrl.status = poller.Status{Result: status.Fail, Message: "db down", UpdatedAt: updated}
	ctrl.state = poller.Cooldown

	srv := newTestServer(ctrl, store.NewMemoryStore(), nil, "")
	srv.now = func() time.Time { return updated.Add(3 * time.Second) }

	rec := do(t, srv.Handler(), http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}

	var got struct {
		Result    string     `json:"result"`
		Label     string     `json:"label"`
		Message   string     `json:"message"`
		UpdatedAt *time.Time `json:"updated_at"`
		State     string     `json:"state"`
		Tooltip   string     `json:"tooltip"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Result != "fail" || got.Label != "Fail" || got.Message != "db down" || got.State != "cooldown" {
		t.Errorf("response = %+v", got)
	}
	if got.UpdatedAt == nil || !got.UpdatedAt.Equal(updated) {
		t.Errorf("updated_at = %v, want %v", got.UpdatedAt, updated)
	}
	if got.Tooltip != "Updated 3 seconds ago\ndb down" {
		t.Errorf("tooltip = %q", got.Tooltip)
	}
}

func TestHandleStatus_BeforeFirstCycle(t *testing.T) {
	srv := newTestServer(newFakeController(), store.NewMemoryStore(), nil, "")

	rec := do(t, srv.Handler(), http.MethodGet, "/api/status", "")
	if !strings.Contains(rec.Body.String(), `"updated_at":null`) {
		t.Errorf("body = %s, want null updated_at", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"result":"none"`) {
		t.Errorf("body = %s, want result none", rec.Body.String())
	}
}

func TestHandleHistory(t *testing.T) {
	ctrl := newFakeController()
	ctrl.history = []history.Entry{
		{Time: time.Unix(200, 0), OldResult: status.Fail, OldMessage: "x", NewResult: status.Success},
		{Time: time.Unix(100, 0), OldResult: status.Success, NewResult: status.Fail, NewMessage: "x"},
	}
	h := newTestServer(ctrl, store.NewMemoryStore(), nil, "").Handler()

	rec := do(t, h, http.MethodGet, "/api/history", "")
	var got store.HistoryView
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(got.Entries))
	}
	if got.Entries[0].From != "Fail" || got.Entries[0].To != "Success" || got.Entries[0].OldMessage != "x" {
		t.Errorf("entries[0] = %+v", got.Entries[0])
	}
	if got.Entries[1].Message != "x" {
		t.Errorf("entries[1] = %+v", got.Entries[1])
	}

	rec = do(t, h, http.MethodDelete, "/api/history", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", rec.Code)
	}
	if len(ctrl.History()) != 0 {
		t.Error("history should be cleared")
	}

	ctrl.clearErr = errors.New("disk full")
	rec = do(t, h, http.MethodDelete, "/api/history", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("DELETE with failing store status = %d, want 500", rec.Code)
	}
}

func TestHandleSettings(t *testing.T) {
	ctrl := newFakeController()
	h := newTestServer(ctrl, store.NewMemoryStore(), nil, "").Handler()

	rec := do(t, h, http.MethodGet, "/api/settings", "")
	var got store.SettingsView
	_ = json.NewDecoder(rec.Body).Decode(&got)
	if got.URL != settings.DefaultURL || got.IntervalSeconds != 60 || got.Configured {
		t.Errorf("GET settings = %+v", got)
	}

	rec = do(t, h, http.MethodPut, "/api/settings",
		`{"url":" http://api.test/status ","interval_seconds":120,"logging_enabled":false,"history_limit":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", rec.Code, rec.Body.String())
	}
	got = store.SettingsView{}
	_ = json.NewDecoder(rec.Body).Decode(&got)
	want := store.SettingsView{URL: "http://api.test/status", IntervalSeconds: 120, HistoryLimit: 10, Configured: true}
	if got != want {
		t.Errorf("PUT settings = %+v, want %+v", got, want)
	}
}

func TestHandleSettings_BadRequests(t *testing.T) {
	h := newTestServer(newFakeController(), store.NewMemoryStore(), nil, "").Handler()

	tests := []struct {
		name string
		body string
	}{
		{"empty url", `{"url":"  ","interval_seconds":60}`},
		{"not json", `url=x`},
		{"unknown field", `{"url":"http://a","bogus":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPut, "/api/settings", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleValidateAndRefresh(t *testing.T) {
	ctrl := newFakeController()
	h := newTestServer(ctrl, store.NewMemoryStore(), nil, "").Handler()

	rec := do(t, h, http.MethodPost, "/api/validate", `{"url":"http://candidate.test"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("validate status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"generation":1`) {
		t.Errorf("validate body = %s", rec.Body.String())
	}
	if len(ctrl.validated) != 1 || ctrl.validated[0] != "http://candidate.test" {
		t.Errorf("validated = %v", ctrl.validated)
	}

	rec = do(t, h, http.MethodPost, "/api/refresh", "")
	if rec.Code != http.StatusAccepted || ctrl.refreshes != 1 {
		t.Errorf("refresh status = %d, refreshes = %d", rec.Code, ctrl.refreshes)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	h := newTestServer(newFakeController(), store.NewMemoryStore(), nil, "").Handler()

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/status"},
		{http.MethodGet, "/api/refresh"},
		{http.MethodPatch, "/api/settings"},
	} {
		if rec := do(t, h, tc.method, tc.path, ""); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s = %d, want 405", tc.method, tc.path, rec.Code)
		}
	}
	if rec := do(t, h, http.MethodGet, "/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", rec.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	h := newTestServer(newFakeController(), store.NewMemoryStore(), nil, "").Handler()

	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("GET /metrics = %d", rec.Code)
	}
}

// --- SSE ---

func TestHandleSSE_ReplaysLatestEvents(t *testing.T) {
	ms := store.NewMemoryStore()
	ms.Publish(store.Event{Kind: store.KindStatus, Data: store.NewStatusView(status.Success, "", time.Now())})
	ms.Publish(store.Event{Kind: store.KindHistory, Data: store.HistoryView{}})

	srv := newTestServer(newFakeController(), ms, nil, "")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "event: status\ndata: ") || !strings.Contains(body, `"result":"success"`) {
		t.Errorf("missing status event: %s", body)
	}
	if !strings.Contains(body, "event: history\n") {
		t.Errorf("missing history event: %s", body)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestHandleSSE_ServerShutdown(t *testing.T) {
	srv := newTestServer(newFakeController(), store.NewMemoryStore(), nil, "")

	serverCtx, serverCancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(serverCtx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	serverCancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not exit after server shutdown")
	}
}

// nonFlushWriter is a ResponseWriter without http.Flusher.
type nonFlushWriter struct {
	header http.Header
	code   int
}

func (n *nonFlushWriter) Header() http.Header         { return n.header }
func (n *nonFlushWriter) Write(b []byte) (int, error) { return len(b), nil }
func (n *nonFlushWriter) WriteHeader(statusCode int)  { n.code = statusCode }

func TestHandleSSE_SSENotSupported(t *testing.T) {
	srv := newTestServer(newFakeController(), store.NewMemoryStore(), nil, "")
	w := &nonFlushWriter{header: http.Header{}}

	srv.handleSSE(w, httptest.NewRequest(http.MethodGet, "/api/sse", nil))

	if w.code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.code)
	}
}

func TestServer_SSEIntegration(t *testing.T) {
	ms := store.NewMemoryStore()
	srv := newTestServer(newFakeController(), ms, nil, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr().String() + "/api/sse")
	if err != nil {
		t.Fatalf("GET /api/sse: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// publish after the stream is open
	go func() {
		time.Sleep(50 * time.Millisecond)
		ms.Publish(store.Event{Kind: store.KindValidation, Data: store.ValidationView{Generation: 7, Valid: true}})
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed before validation event")
			}
			if strings.HasPrefix(line, "data: ") && strings.Contains(line, `"generation":7`) {
				return
			}
		case <-deadline:
			t.Fatal("validation event not received")
		}
	}
}

// --- Start ---

func TestStart_AvailablePort_ReturnsNil(t *testing.T) {
	srv := newTestServer(newFakeController(), store.NewMemoryStore(), nil, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Errorf("Start() on available port returned error: %v", err)
	}
	if srv.Addr() == nil {
		t.Error("Addr() should be set after Start")
	}
}

func TestStart_PortInUse_ReturnsError(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	port := ln.Addr().(*net.TCPAddr).Port
	srv := NewServer(newFakeController(), store.NewMemoryStore(), port, nil, "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = srv.Start(ctx)
	if err == nil {
		t.Fatal("Start() on occupied port should return error")
	}
	if !strings.Contains(err.Error(), "failed to bind") {
		t.Errorf("expected bind error, got: %v", err)
	}
}

// --- Dashboard ---

// mockFS implements fs.ReadFileFS for testing dashboard rendering.
type mockFS struct {
	content string
}

func (m *mockFS) Open(name string) (fs.File, error) {
	return nil, fs.ErrNotExist
}

func (m *mockFS) ReadFile(name string) ([]byte, error) {
	if name == "assets/index.html" {
		return []byte(m.content), nil
	}
	return nil, fs.ErrNotExist
}

func TestHandleDashboard_Title(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"custom", "Payments API", "<title>Payments API</title>"},
		{"default", "", "<title>API Monitor</title>"},
		{"escaped", "<script>alert('xss')</script>", "<title>&lt;script&gt;alert(&#39;xss&#39;)&lt;/script&gt;</title>"},
		{"ampersand", "Health & Status", "<title>Health &amp; Status</title>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assets := &mockFS{content: "<title>{{.Title}}</title>"}
			h := newTestServer(newFakeController(), store.NewMemoryStore(), assets, tt.title).Handler()

			rec := do(t, h, http.MethodGet, "/", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if body := rec.Body.String(); body != tt.want {
				t.Errorf("body = %q, want %q", body, tt.want)
			}
		})
	}
}

func TestHandleDashboard_NoAssets(t *testing.T) {
	h := newTestServer(newFakeController(), store.NewMemoryStore(), nil, "Custom").Handler()

	if rec := do(t, h, http.MethodGet, "/", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
