package management

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/nanoagent/nanoagent/internal/config"
	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Servers = []model.Endpoint{{Host: "seed.example.com", Port: 9000, Permission: model.ReadOnly}}
	return &Server{
		Version:    "test",
		ConfigPath: filepath.Join(t.TempDir(), "config.yaml"),
		Cfg:        cfg,
		Events:     make(chan Event, 4),
	}
}

func do(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.wrap(routeFor(s, path, method))(rec, req)
	return rec
}

func routeFor(s *Server, path, method string) http.HandlerFunc {
	switch path {
	case "/api/health":
		return s.handleHealth
	case "/api/config":
		return s.handleConfig
	case "/api/servers/update":
		return s.handleServersUpdate
	default:
		return s.handleServers
	}
}

func TestHealthReturnsHealthy(t *testing.T) {
	s := testServer(t)
	rec := do(s, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)
}

func TestAddServerRejectsDuplicate(t *testing.T) {
	s := testServer(t)
	rec := do(s, http.MethodPost, "/api/servers", serverRequest{Host: "seed.example.com", Port: 9000, Permission: model.ReadOnly})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAddServerRejectsInvalidPermission(t *testing.T) {
	s := testServer(t)
	rec := do(s, http.MethodPost, "/api/servers", serverRequest{Host: "new.example.com", Port: 9001, Permission: model.PermissionLevel(9)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddServerPersistsAndBroadcasts(t *testing.T) {
	s := testServer(t)
	rec := do(s, http.MethodPost, "/api/servers", serverRequest{Host: "new.example.com", Port: 9001, Permission: model.BasicWrite})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, s.Cfg.Servers, 2)

	select {
	case ev := <-s.Events:
		assert.Equal(t, EventAdd, ev.Kind)
		assert.Equal(t, "new.example.com:9001", ev.Endpoint.Key())
	default:
		t.Fatal("expected an Add event to be broadcast")
	}

	persisted, err := config.Load(s.ConfigPath)
	require.NoError(t, err)
	require.Len(t, persisted.Servers, 2)
	assert.Equal(t, "seed.example.com", persisted.Servers[0].Host)
	assert.Equal(t, "new.example.com", persisted.Servers[1].Host)
}

func TestAddServerPersistFailureLeavesConfigUnchanged(t *testing.T) {
	s := testServer(t)
	// A config path whose parent cannot be created forces Save to fail.
	s.ConfigPath = filepath.Join(string([]byte{0}), "config.yaml")
	rec := do(s, http.MethodPost, "/api/servers", serverRequest{Host: "new.example.com", Port: 9001, Permission: model.BasicWrite})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Len(t, s.Cfg.Servers, 1, "in-memory change must be rolled back on persistence failure")

	select {
	case <-s.Events:
		t.Fatal("no event must be broadcast when persistence fails")
	default:
	}
}

func TestRemoveServerRefusesLastEndpoint(t *testing.T) {
	s := testServer(t)
	rec := do(s, http.MethodDelete, "/api/servers?host=seed.example.com&port=9000", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateServerReturns404WhenAbsent(t *testing.T) {
	s := testServer(t)
	rec := do(s, http.MethodPost, "/api/servers/update", serverRequest{Host: "missing.example.com", Port: 1, Permission: model.ReadOnly})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBearerTokenRequiredWhenConfigured(t *testing.T) {
	s := testServer(t)
	s.APIToken = "secret-token"

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.wrap(s.handleHealth)(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req2.Header.Set("Authorization", "Bearer secret-token")
	rec2 := httptest.NewRecorder()
	s.wrap(s.handleHealth)(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestConfigEndpointStripsTokens(t *testing.T) {
	s := testServer(t)
	s.Cfg.Servers[0].Token = "super-secret-endpoint-token"
	rec := do(s, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "super-secret-endpoint-token")
}
