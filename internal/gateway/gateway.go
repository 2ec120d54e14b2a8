// Package gateway is the HTTP surface of the translation assistant: the
// WebSocket endpoint browsers hold a session over, plus REST routes for
// status, transcript retrieval and export, and the operational endpoints.
package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Twaha07/voice-interactive-translation-assistant/internal/app"
	"github.com/Twaha07/voice-interactive-translation-assistant/internal/health"
	"github.com/Twaha07/voice-interactive-translation-assistant/internal/transcript"
)

// Server handles the browser-facing routes.
type Server struct {
	manager *app.Manager
	store   *transcript.Store
	health  *health.Handler
}

// ServerConfig holds the dependencies for a [Server]. Store may be nil when
// persistence is disabled.
type ServerConfig struct {
	Manager *app.Manager
	Store   *transcript.Store
	Health  *health.Handler
}

// New creates a Server with the given dependencies.
func New(cfg ServerConfig) *Server {
	h := cfg.Health
	if h == nil {
		h = health.New()
	}
	return &Server{manager: cfg.Manager, store: cfg.Store, health: h}
}

// Register adds all routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleSession)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/transcript", s.handleTranscript)
	mux.HandleFunc("GET /api/transcript/export", s.handleExport)
	mux.HandleFunc("GET /api/sessions/{sessionID}", s.handleStoredSession)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)
}

// handleSession upgrades the connection and runs the client message loop
// until the browser disconnects.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The browser front end may be served from a different origin in
		// development; session access control is not handled at this layer.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("gateway: websocket accept", "err", err)
		return
	}
	defer ws.CloseNow()

	c := newClient(ws, s.manager)
	c.run(r.Context())
	ws.Close(websocket.StatusNormalClosure, "session ended")
}

// statusResponse is the JSON body of /api/status.
type statusResponse struct {
	Status   string          `json:"status"`
	Error    string          `json:"error,omitempty"`
	Speaking bool            `json:"speaking"`
	Session  app.SessionInfo `json:"session"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st, cause := s.manager.Status()
	res := statusResponse{
		Status:   st.String(),
		Speaking: s.manager.Speaking(),
		Session:  s.manager.Info(),
	}
	if cause != nil {
		res.Error = cause.Error()
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	entries := s.manager.Entries()
	if entries == nil {
		entries = []transcript.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleExport serves the current transcript as a plain-text download.
func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="transcript.txt"`)
	if err := transcript.WriteText(w, s.manager.Entries()); err != nil {
		slog.Warn("gateway: write transcript export", "err", err)
	}
}

// handleStoredSession returns the persisted transcript of a past session.
func (s *Server) handleStoredSession(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "transcript store not configured", http.StatusNotImplemented)
		return
	}
	entries, err := s.store.Session(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		slog.Warn("gateway: load stored session", "err", err)
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []transcript.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("gateway: encode response", "err", err)
	}
}
