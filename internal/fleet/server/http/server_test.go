package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/agvfleet/internal/agv"
	"github.com/autopeer-io/agvfleet/internal/fleet"
	"github.com/autopeer-io/agvfleet/internal/link"
	"github.com/autopeer-io/agvfleet/internal/protocol"
	"github.com/autopeer-io/agvfleet/pkg/options"
)

func newTestServer(t *testing.T) (*fleet.Fleet, http.Handler) {
	t.Helper()
	cfg := link.DefaultConfig()
	cfg.PeerAddr = "127.0.0.1"
	cfg.PeerPort = 4001
	f, err := fleet.New(fleet.Config{Members: []fleet.Member{{
		Identity: agv.Identity{
			ID:         1,
			Name:       "agv-1",
			Capability: agv.CapabilityLifting,
			Protocol:   protocol.VariantSTM32,
			MaxSpeed:   60,
		},
		Link: cfg,
	}}})
	require.NoError(t, err)
	return f, NewServer(options.NewHttpOptions(), f, nil).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code, rec.Body.String()
}

func TestProbes(t *testing.T) {
	_, h := newTestServer(t)

	code, body := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, _ = do(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, code, "fleet is not running")

	code, body = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "agvfleet_link_connected")
}

func TestVehicles(t *testing.T) {
	_, h := newTestServer(t)

	code, body := do(t, h, http.MethodGet, "/api/v1/vehicles", "")
	require.Equal(t, http.StatusOK, code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "agv-1", list[0]["name"])
	assert.Equal(t, "lifting", list[0]["capability"])
	assert.Equal(t, false, list[0]["connected"])

	code, _ = do(t, h, http.MethodGet, "/api/v1/vehicles/1", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, h, http.MethodGet, "/api/v1/vehicles/2", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, h, http.MethodGet, "/api/v1/vehicles/70000", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCommands(t *testing.T) {
	f, h := newTestServer(t)

	tests := []struct {
		name string
		path string
		body string
		code int
		want string
	}{
		{"disconnected move", "/api/v1/vehicles/1/commands", `{"kind":"move","target":42}`, http.StatusConflict, "net-error"},
		{"named action", "/api/v1/vehicles/1/commands", `{"kind":"action","name":"lifter-up"}`, http.StatusConflict, "net-error"},
		{"action not on this model", "/api/v1/vehicles/1/commands", `{"kind":"action","name":"load"}`, http.StatusBadRequest, "not available"},
		{"status", "/api/v1/vehicles/1/commands", `{"kind":"status","status":"sleep"}`, http.StatusConflict, "net-error"},
		{"unknown status", "/api/v1/vehicles/1/commands", `{"kind":"status","status":"dance"}`, http.StatusBadRequest, "dance"},
		{"unknown kind", "/api/v1/vehicles/1/commands", `{"kind":"fly"}`, http.StatusBadRequest, "fly"},
		{"bad json", "/api/v1/vehicles/1/commands", `{`, http.StatusBadRequest, "error"},
		{"unknown vehicle", "/api/v1/vehicles/8/commands", `{"kind":"move","target":1}`, http.StatusNotFound, "unknown vehicle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, code, body)
			assert.Contains(t, body, tt.want)
		})
	}

	require.True(t, f.Landmarks().Lock(12, "agv-2"))
	code, body := do(t, h, http.MethodPost, "/api/v1/vehicles/1/commands", `{"kind":"traffic-pass","landmark":12}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, body, "held by another vehicle")
}

func TestLandmarks(t *testing.T) {
	_, h := newTestServer(t)

	code, body := do(t, h, http.MethodPost, "/api/v1/landmarks/5/lock", `{"token":"agv-1"}`)
	require.Equal(t, http.StatusOK, code, body)
	var resp LandmarkResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "agv-1", string(resp.Landmark.Locker))

	code, _ = do(t, h, http.MethodPost, "/api/v1/landmarks/5/lock", `{"token":"agv-2"}`)
	assert.Equal(t, http.StatusConflict, code)
	code, _ = do(t, h, http.MethodPost, "/api/v1/landmarks/5/peer-lock", `{"token":"agv-2"}`)
	assert.Equal(t, http.StatusOK, code)

	code, body = do(t, h, http.MethodGet, "/api/v1/landmarks/5", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"peerLocker":"agv-2"`)

	code, _ = do(t, h, http.MethodPost, "/api/v1/landmarks/5/free", `{"token":"agv-2"}`)
	assert.Equal(t, http.StatusConflict, code)
	code, _ = do(t, h, http.MethodPost, "/api/v1/landmarks/5/clear", "")
	assert.Equal(t, http.StatusOK, code)

	code, body = do(t, h, http.MethodGet, "/api/v1/landmarks", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[{"id":5}]`, body)

	code, _ = do(t, h, http.MethodPost, "/api/v1/landmarks/5/steal", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, h, http.MethodGet, "/api/v1/landmarks/0", "")
	assert.Equal(t, http.StatusBadRequest, code)
}
