package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// mockStatus is the state reported by the mock status endpoint.
type mockStatus struct {
	mu           sync.Mutex
	idx          int
	nextChangeAt time.Time
}

// responses cycles through what a real status page tends to serve.
var responses = []struct {
	name string
	code int
	body string
}{
	{"success", http.StatusOK, "<r>success</r><message>All systems operational</message>"},
	{"fail", http.StatusOK, "<result>fail</result><message>Database replica lagging</message>"},
	{"invalid", http.StatusOK, "<html><body>maintenance page</body></html>"},
	{"error", http.StatusServiceUnavailable, "service unavailable"},
}

// current advances the state when its change time has passed.
func (m *mockStatus) current() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nextChangeAt.IsZero() {
		m.nextChangeAt = time.Now().Add(randomDelay())
	}
	if time.Now().After(m.nextChangeAt) {
		old := responses[m.idx].name
		m.idx = (m.idx + 1) % len(responses)
		m.nextChangeAt = time.Now().Add(randomDelay())
		slog.Info("status change", "from", old, "to", responses[m.idx].name)
	}
	return m.idx
}

// force pins the state to the named response for another random period.
func (m *mockStatus) force(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range responses {
		if r.name == name {
			m.idx = i
			m.nextChangeAt = time.Now().Add(randomDelay())
			return true
		}
	}
	return false
}

// randomDelay returns 20-60 seconds.
func randomDelay() time.Duration {
	return time.Duration(20+rand.Intn(41)) * time.Second
}

// newMockRouter serves GET /status and POST /status/{result}, which forces
// success, fail, invalid or error.
func newMockRouter() *mux.Router {
	state := &mockStatus{}
	r := mux.NewRouter()

	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		// simulate small latency variance
		time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)

		resp := responses[state.current()]
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(resp.code)
		if _, err := fmt.Fprint(w, resp.body); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	}).Methods(http.MethodGet)

	r.HandleFunc("/status/{result}", func(w http.ResponseWriter, req *http.Request) {
		name := mux.Vars(req)["result"]
		if !state.force(name) {
			http.Error(w, "unknown result "+name, http.StatusBadRequest)
			return
		}
		slog.Info("status forced", "to", name)
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)

	return r
}

// StartMockStatusServer runs the mock status endpoint on addr.
// Call this in a goroutine before starting the monitor.
func StartMockStatusServer(addr string) {
	if err := http.ListenAndServe(addr, newMockRouter()); err != nil {
		slog.Error("mock server error", "error", err)
	}
}
