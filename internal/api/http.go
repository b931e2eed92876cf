// Package api exposes a read-only HTTP admin surface over a registrar,
// adapted from the teacher's cmd/dplaned router wiring: gorilla/mux for
// routing and a WebSocket monitor handler copied nearly verbatim from
// internal/handlers/websocket.go's HandleMonitor.
//
// Every handler here only reads from the registrar (WhereIs, enumeration);
// nothing in this package can mutate registry state, keeping mutation on
// its one sanctioned path (the registrar's own Go API and peer wire
// messages).
package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"regnode/internal/registry"
	"regnode/internal/wsevents"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Server serves the admin HTTP API for a Registrar.
type Server struct {
	registrar *registry.Registrar
	hub       *wsevents.Hub
	logger    *log.Logger
}

// NewServer creates a Server. hub may be nil to disable the /monitor
// WebSocket event stream.
func NewServer(registrar *registry.Registrar, hub *wsevents.Hub, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{registrar: registrar, hub: hub, logger: logger}
}

// Router builds the gorilla/mux router for this Server.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/registry/names", s.handleNames).Methods(http.MethodGet)
	r.HandleFunc("/registry/info", s.handleInfo).Methods(http.MethodGet)
	r.HandleFunc("/whereis/{name}", s.handleWhereIs).Methods(http.MethodGet)
	if s.hub != nil {
		r.HandleFunc("/monitor", s.handleMonitor).Methods(http.MethodGet)
	}
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "node": string(s.registrar.Self())})
}

func (s *Server) handleNames(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	var names []registry.Name
	if scope == "local" {
		names = s.registrar.LocalRegisteredNames()
	} else {
		names = s.registrar.RegisteredNames()
	}
	writeJSON(w, names)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	if scope == "local" {
		writeJSON(w, s.registrar.LocalRegisteredInfo())
		return
	}
	writeJSON(w, s.registrar.RegisteredInfo())
}

func (s *Server) handleWhereIs(w http.ResponseWriter, r *http.Request) {
	name := registry.Name(mux.Vars(r)["name"])
	principal, err := s.registrar.WhereIs(name)
	if err != nil {
		http.Error(w, "absent", http.StatusNotFound)
		return
	}
	writeJSON(w, principal)
}

// handleMonitor upgrades the request to a WebSocket observer of registry
// change events. Copied from the teacher's
// internal/handlers/websocket.go:HandleMonitor.
func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("api: websocket upgrade error: %v", err)
		return
	}
	s.hub.Register(conn)
	go func() {
		defer s.hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}
