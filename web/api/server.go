// Package api exposes the bot over HTTP: account management, run triggers,
// and live event streaming for the dashboard.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/discuzbot/discuzbot/internal/orchestrator"
	"github.com/discuzbot/discuzbot/internal/schedule"
)

// Server is the HTTP API server
type Server struct {
	orch      *orchestrator.Orchestrator
	sched     *schedule.Scheduler
	addr      string
	staticDir string
	mux       *http.ServeMux
	sseHub    *SSEHub
	wsHub     *WSHub
}

// NewServer creates an API server around the orchestrator. sched may be nil
// when no cron loop is running.
func NewServer(orch *orchestrator.Orchestrator, sched *schedule.Scheduler, addr, staticDir string) *Server {
	s := &Server{
		orch:      orch,
		sched:     sched,
		addr:      addr,
		staticDir: staticDir,
		mux:       http.NewServeMux(),
		sseHub:    NewSSEHub(),
		wsHub:     NewWSHub(),
	}
	s.setupRoutes()
	go s.sseHub.Run()

	// Orchestrator progress fans out to both streaming transports.
	orch.SetEventHandler(func(ev orchestrator.Event) {
		s.sseHub.Broadcast(SSEEvent{Type: ev.Type, Data: ev})
		s.wsHub.Broadcast(ev)
	})
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/accounts", s.accountsHandler())
	s.mux.HandleFunc("/api/accounts/", s.accountHandler())
	s.mux.HandleFunc("/api/run", s.runAllHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
	s.mux.HandleFunc("/api/ws", s.wsHandler())

	if s.staticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	}
}

// Handler exposes the routing table, mainly for tests
func (s *Server) Handler() http.Handler { return s.mux }

// Start blocks serving HTTP
func (s *Server) Start() error {
	return http.ListenAndServe(s.addr, s.mux)
}

// Broadcast sends an event to all SSE clients
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
