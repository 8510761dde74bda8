package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/jpalmerr/apimonitor/internal/history"
	"github.com/jpalmerr/apimonitor/internal/metrics"
	"github.com/jpalmerr/apimonitor/internal/poller"
	"github.com/jpalmerr/apimonitor/internal/settings"
	"github.com/jpalmerr/apimonitor/internal/status"
	"github.com/jpalmerr/apimonitor/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown.
	shutdownTimeout = 5 * time.Second

	// maxRequestBody bounds JSON request bodies.
	maxRequestBody = 64 << 10

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "API Monitor"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// Controller is the part of the monitor the dashboard drives.
type Controller interface {
	Status() poller.Status
	State() poller.State
	History() []history.Entry
	Settings() settings.Settings
	Configured() bool

	RefreshNow()
	SaveSettings(s settings.Settings) (settings.Settings, error)
	ValidateURL(rawURL string) uint64
	ClearHistory() error
}

// Server handles HTTP requests for the dashboard and its JSON API.
//
// Routes:
//   - GET /: embedded dashboard HTML
//   - GET /api/status: current status with state and tooltip
//   - GET, DELETE /api/history: list or clear the transition history
//   - GET, PUT /api/settings: read or save settings
//   - POST /api/validate: start a URL validation, verdict arrives over SSE
//   - POST /api/refresh: poll now
//   - GET /api/sse: Server-Sent Events stream
//   - GET /metrics: Prometheus metrics
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	ctrl       Controller
	store      store.Store
	port       int
	httpServer *http.Server
	addr       net.Addr
	assets     fs.FS
	title      string
	logger     *slog.Logger
	now        func() time.Time
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - ctrl: the monitor operations behind the API
//   - st: event hub feeding the SSE stream
//   - port: TCP port to listen on (0 picks a free port)
//   - assets: Embedded filesystem containing dashboard assets (may be nil)
//   - title: Dashboard title (defaults to "API Monitor" if empty)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(ctrl Controller, st store.Store, port int, assets fs.FS, title string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ctrl:   ctrl,
		store:  st,
		port:   port,
		assets: assets,
		title:  title,
		logger: logger,
		now:    time.Now,
	}
}

// Handler returns the router with all routes registered.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/history", s.handleClearHistory).Methods(http.MethodDelete)
	r.HandleFunc("/api/settings", s.handleGetSettings).Methods(http.MethodGet)
	r.HandleFunc("/api/settings", s.handleSaveSettings).Methods(http.MethodPut)
	r.HandleFunc("/api/validate", s.handleValidate).Methods(http.MethodPost)
	r.HandleFunc("/api/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/api/sse", s.handleSSE).Methods(http.MethodGet)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/", s.handleDashboard).Methods(http.MethodGet)

	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}
	s.addr = ln.Addr()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("dashboard listening", "addr", s.addr.String())
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	if s.assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// statusResponse is the body of GET /api/status.
type statusResponse struct {
	store.StatusView
	State   string `json:"state"`
	Tooltip string `json:"tooltip"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.ctrl.Status()
	s.writeJSON(w, http.StatusOK, statusResponse{
		StatusView: store.NewStatusView(st.Result, st.Message, st.UpdatedAt),
		State:      s.ctrl.State().String(),
		Tooltip:    status.Tooltip(st.Result, st.Message, st.UpdatedAt, s.now()),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, store.NewHistoryView(s.ctrl.History()))
}

func (s *Server) handleClearHistory(w http.ResponseWriter, _ *http.Request) {
	if err := s.ctrl.ClearHistory(); err != nil {
		// the in-memory log is already cleared; only persisting failed
		s.logger.Error("failed to persist cleared history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "history cleared but could not be saved")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) settingsView() store.SettingsView {
	return SettingsView(s.ctrl.Settings(), s.ctrl.Configured())
}

// SettingsView converts settings into their JSON form.
func SettingsView(st settings.Settings, configured bool) store.SettingsView {
	return store.SettingsView{
		URL:             st.URL,
		IntervalSeconds: int(st.Interval / time.Second),
		LoggingEnabled:  st.LoggingEnabled,
		HistoryLimit:    st.HistoryLimit,
		Configured:      configured,
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.settingsView())
}

// settingsRequest is the body of PUT /api/settings.
type settingsRequest struct {
	URL             string `json:"url"`
	IntervalSeconds int    `json:"interval_seconds"`
	LoggingEnabled  bool   `json:"logging_enabled"`
	HistoryLimit    int    `json:"history_limit"`
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		s.writeError(w, http.StatusBadRequest, "url: required")
		return
	}

	_, err := s.ctrl.SaveSettings(settings.Settings{
		URL:            req.URL,
		Interval:       time.Duration(req.IntervalSeconds) * time.Second,
		LoggingEnabled: req.LoggingEnabled,
		HistoryLimit:   req.HistoryLimit,
	})
	if err != nil {
		s.logger.Error("failed to save settings", "error", err)
		s.writeError(w, http.StatusInternalServerError, "settings could not be saved")
		return
	}
	s.writeJSON(w, http.StatusOK, s.settingsView())
}

type validateRequest struct {
	URL string `json:"url"`
}

type validateResponse struct {
	Generation uint64 `json:"generation"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	gen := s.ctrl.ValidateURL(req.URL)
	s.writeJSON(w, http.StatusAccepted, validateResponse{Generation: gen})
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.RefreshNow()
	w.WriteHeader(http.StatusAccepted)
}

// handleSSE streams events via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(e store.Event) error {
		data, err := json.Marshal(e)
		if err != nil {
			s.logger.Error("failed to encode event", "kind", e.Kind, "error", err)
			return nil
		}

		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				// deadline not supported by underlying connection, continue without
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// subscribe before replaying so nothing published in between is lost
	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	for _, e := range s.store.GetAll() {
		if err := writeAndFlush(e); err != nil {
			return
		}
	}

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := writeAndFlush(e); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, errorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
