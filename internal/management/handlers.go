package management

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nanoagent/nanoagent/internal/model"
)

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Version: s.Version})
}

// handleConfig returns the current config with tokens and sensitive fields
// stripped. It never reuses config.Config's yaml/toml tags directly for the
// wire shape -- it builds a redacted view so a future config field can't
// leak by omission-failure.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	type redactedEndpoint struct {
		Host       string               `json:"host"`
		Port       int                  `json:"port"`
		Permission model.PermissionLevel `json:"permission"`
		TLSEnabled bool                 `json:"tls_enabled"`
		TLSVerify  bool                 `json:"tls_verify"`
	}
	unlock := s.rlockConfig()
	defer unlock()
	servers := make([]redactedEndpoint, 0, len(s.Cfg.Servers))
	for _, ep := range s.Cfg.Servers {
		servers = append(servers, redactedEndpoint{Host: ep.Host, Port: ep.Port, Permission: ep.Permission, TLSEnabled: ep.TLSEnabled, TLSVerify: ep.TLSVerify})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"config_version": s.Cfg.ConfigVersion,
		"collector":      s.Cfg.Collector,
		"buffer":         s.Cfg.Buffer,
		"servers":        servers,
		"management": map[string]any{
			"enabled":   s.Cfg.Management.Enabled,
			"bind_addr": s.Cfg.Management.BindAddr,
		},
	})
}

// handleServers dispatches GET (list), POST (add), and DELETE (remove) on
// /api/servers.
func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listServers(w, r)
	case http.MethodPost:
		s.addServer(w, r)
	case http.MethodDelete:
		s.removeServer(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}
}

func (s *Server) listServers(w http.ResponseWriter, r *http.Request) {
	var statuses []model.EndpointStatus
	if s.Status != nil {
		statuses = s.Status()
	}
	writeJSON(w, http.StatusOK, statuses)
}

type serverRequest struct {
	Host       string               `json:"host"`
	Port       int                  `json:"port"`
	Token      string               `json:"token"`
	Permission model.PermissionLevel `json:"permission"`
	TLSEnabled bool                 `json:"tls_enabled"`
	TLSVerify  bool                 `json:"tls_verify"`
}

func (s *Server) addServer(w http.ResponseWriter, r *http.Request) {
	var req serverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed request body"})
		return
	}
	if req.Permission < model.ReadOnly || req.Permission > model.SystemAdmin {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "permission out of range [0,3]"})
		return
	}

	ep := model.Endpoint{Host: req.Host, Port: req.Port, Token: req.Token, Permission: req.Permission, TLSEnabled: req.TLSEnabled, TLSVerify: req.TLSVerify}

	unlock := s.lockConfig()
	defer unlock()

	for _, existing := range s.Cfg.Servers {
		if existing.Key() == ep.Key() {
			writeJSON(w, http.StatusConflict, map[string]any{"error": "endpoint already exists"})
			return
		}
	}

	s.Cfg.Servers = append(s.Cfg.Servers, ep)
	if err := s.Cfg.Save(s.ConfigPath); err != nil {
		// Persistence failure must not leave the in-memory config changed.
		s.Cfg.Servers = s.Cfg.Servers[:len(s.Cfg.Servers)-1]
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to persist config"})
		return
	}
	s.broadcast(Event{Kind: EventAdd, Endpoint: ep})
	writeJSON(w, http.StatusOK, ep)
}

func (s *Server) handleServersUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	var req serverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed request body"})
		return
	}
	if req.Permission < model.ReadOnly || req.Permission > model.SystemAdmin {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "permission out of range [0,3]"})
		return
	}

	ep := model.Endpoint{Host: req.Host, Port: req.Port, Token: req.Token, Permission: req.Permission, TLSEnabled: req.TLSEnabled, TLSVerify: req.TLSVerify}

	unlock := s.lockConfig()
	defer unlock()

	for i, existing := range s.Cfg.Servers {
		if existing.Key() == ep.Key() {
			prior := s.Cfg.Servers[i]
			s.Cfg.Servers[i] = ep
			if err := s.Cfg.Save(s.ConfigPath); err != nil {
				s.Cfg.Servers[i] = prior
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to persist config"})
				return
			}
			s.broadcast(Event{Kind: EventUpdate, Endpoint: ep})
			writeJSON(w, http.StatusOK, ep)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "endpoint not found"})
}

func (s *Server) removeServer(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	port, err := parsePort(r.URL.Query().Get("port"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid port"})
		return
	}
	key := model.Endpoint{Host: host, Port: port}.Key()

	unlock := s.lockConfig()
	defer unlock()

	if len(s.Cfg.Servers) <= 1 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "cannot remove the last endpoint"})
		return
	}

	for i, existing := range s.Cfg.Servers {
		if existing.Key() == key {
			removed := s.Cfg.Servers[i]
			prior := append([]model.Endpoint(nil), s.Cfg.Servers...)
			s.Cfg.Servers = append(s.Cfg.Servers[:i], s.Cfg.Servers[i+1:]...)
			if err := s.Cfg.Save(s.ConfigPath); err != nil {
				s.Cfg.Servers = prior
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to persist config"})
				return
			}
			s.broadcast(Event{Kind: EventRemove, Endpoint: removed})
			writeJSON(w, http.StatusOK, map[string]any{"removed": key})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "endpoint not found"})
}

func (s *Server) broadcast(ev Event) {
	if s.Events == nil {
		return
	}
	select {
	case s.Events <- ev:
	default:
		if s.Log != nil {
			s.Log.Warnw("server-change event dropped, broadcast channel full", "kind", ev.Kind, "endpoint", ev.Endpoint.Key())
		}
	}
}

func parsePort(s string) (int, error) {
	return strconv.Atoi(s)
}
