// Package server provides the local HTTP surface: health, client config,
// the control plane API, the HUD websocket and static files.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayusman/thumbtrial/internal/config"
	"github.com/ayusman/thumbtrial/internal/gesture"
	"github.com/ayusman/thumbtrial/internal/server/api"
	"github.com/ayusman/thumbtrial/internal/store"
	"github.com/ayusman/thumbtrial/internal/transport"
)

// Config holds the server configuration. Routes whose dependency is nil are
// not registered.
type Config struct {
	StaticDir    string
	Store        *store.Store
	Settings     api.SettingsApplier
	Trials       api.Controller
	ClientConfig func() *config.Config
	Delivery     func() transport.Stats
	Hub          *Hub
	Stream       SnapshotSource
}

// Server represents the HTTP server.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.ClientConfig != nil {
		s.mux.HandleFunc("/config.json", s.handleConfig)
	}

	if s.config.Store != nil {
		settingsHandler := api.NewSettingsHandler(s.config.Store, s.config.Settings)
		s.mux.Handle("/api/settings", settingsHandler)
		s.mux.Handle("/api/settings/", settingsHandler)
	}

	if s.config.Trials != nil {
		trialHandler := api.NewTrialHandler(s.config.Trials)
		s.mux.HandleFunc("/api/trial-meta", trialHandler.Meta)
		s.mux.HandleFunc("/api/simulate", trialHandler.Simulate)
	}

	if s.config.Hub != nil {
		s.mux.Handle("/api/hud", s.config.Hub)
	}

	if s.config.Stream != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Stream))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Hub != nil {
		response["hud_clients"] = s.config.Hub.Clients()
	}
	if s.config.Delivery != nil {
		response["delivery"] = s.config.Delivery()
	}

	writeJSON(w, response)
}

// clientConfig adds the always-denied categories so the client can explain
// rejections the configured deny list does not cover.
type clientConfig struct {
	*config.Config
	BuiltinDenyList []string `json:"builtin_deny_list"`
}

// handleConfig handles GET /config.json, the browser client's settings.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, clientConfig{
		Config:          s.config.ClientConfig(),
		BuiltinDenyList: gesture.BuiltinDenyList(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
