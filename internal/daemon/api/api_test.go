package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carpit680/openbot-go/internal/daemon/armconfig"
	"github.com/carpit680/openbot-go/internal/daemon/calfiles"
	"github.com/carpit680/openbot-go/internal/daemon/envstore"
	"github.com/carpit680/openbot-go/internal/daemon/history"
	"github.com/carpit680/openbot-go/internal/daemon/hub"
	"github.com/carpit680/openbot-go/internal/daemon/ports"
	"github.com/carpit680/openbot-go/internal/daemon/services"
	"github.com/carpit680/openbot-go/internal/daemon/session"
	"github.com/carpit680/openbot-go/internal/daemon/training"
	"github.com/carpit680/openbot-go/pkg/openbot/device/camera"
	"github.com/carpit680/openbot-go/pkg/openbot/logging"
)

const testOrigin = "http://localhost:5173"

// newTestComponents wires every component against temp resources. The
// services run "true" instead of a python interpreter so start
// endpoints spawn a real process that exits immediately; tests that
// need a live process start sessions on the runner directly.
func newTestComponents(t *testing.T) Components {
	t.Helper()
	log := logging.New(nil)

	hist, err := history.Open(log, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = hist.Close() })

	runner := session.NewRunner(log, nil, hist.Recorder())
	t.Cleanup(runner.Shutdown)

	ix, err := calfiles.NewIndex(log, filepath.Join(t.TempDir(), "calibration"), 20*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(ix.Stop)

	env := envstore.New(log)

	hubClient, err := hub.NewClient(log, "http://127.0.0.1:1", time.Second)
	require.NoError(t, err)

	return Components{
		Runner:      runner,
		Calibration: services.NewCalibration(runner, "true", env),
		Teleop:      services.NewTeleoperation(runner, "true"),
		MotorSetup:  services.NewMotorSetup(runner, "true"),
		Recording:   services.NewRecording(runner, "true", env),
		Replay:      services.NewReplay(runner, "true", env),
		Training:    training.New(log, "true", nil),
		Env:         env,
		Arms:        armconfig.NewStore(log, filepath.Join(t.TempDir(), "arm_config.json")),
		CalFiles:    ix,
		Ports:       ports.NewScanner(t.TempDir()),
		History:     hist,
		Hub:         hubClient,
		Camera:      camera.Config{Width: 64, Height: 48, FrameRate: 30},
		MaxScan:     3,
		OpenSource: func(_ int, cfg camera.Config) (camera.Source, error) {
			return camera.NewTestPattern(cfg.Width, cfg.Height), nil
		},
		Probe: func(index int) bool { return index == 0 },
	}
}

func newTestServer(t *testing.T, c Components) *httptest.Server {
	t.Helper()
	srv := NewServer(logging.New(nil), c, []string{testOrigin})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

// doJSON sends a request with an optional JSON body and decodes the
// JSON response.
func doJSON(t *testing.T, ts *httptest.Server, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func getJSON(t *testing.T, ts *httptest.Server, path string) map[string]any {
	t.Helper()
	code, out := doJSON(t, ts, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, code)
	return out
}

func TestRootAndHealth(t *testing.T) {
	ts := newTestServer(t, newTestComponents(t))

	root := getJSON(t, ts, "/")
	assert.Equal(t, "OpenBot Dashboard API", root["message"])

	health := getJSON(t, ts, "/health")
	assert.Equal(t, "healthy", health["status"])
}

func TestCORSAllowedOrigin(t *testing.T) {
	ts := newTestServer(t, newTestComponents(t))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", testOrigin)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, testOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestCORSUnknownOriginGetsNoHeaders(t *testing.T) {
	ts := newTestServer(t, newTestComponents(t))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, newTestComponents(t))

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/calibrate/start", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, testOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestInvalidBodyRejected(t *testing.T) {
	ts := newTestServer(t, newTestComponents(t))

	resp, err := http.Post(ts.URL+"/calibrate/start", "application/json",
		bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out["detail"], "Invalid request body")
}
