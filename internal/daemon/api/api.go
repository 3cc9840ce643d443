// Package api is the HTTP surface of the openbot daemon. It exposes
// the dashboard REST endpoints for session control and device
// inspection, WebSocket streams for live process output, and MJPEG
// camera video.
//
// Wire shapes follow what the dashboard frontend already speaks:
// start/stop envelopes with success and message fields, a
// {"detail": ...} object on error statuses, and {"type", "data"}
// WebSocket frames.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

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

// Components are the daemon services the HTTP layer fronts.
type Components struct {
	Runner      *session.Runner
	Calibration *services.Calibration
	Teleop      *services.Teleoperation
	MotorSetup  *services.MotorSetup
	Recording   *services.Recording
	Replay      *services.Replay
	Training    *training.Service
	Env         *envstore.Store
	Arms        *armconfig.Store
	CalFiles    *calfiles.Index
	Ports       *ports.Scanner
	History     *history.Store
	Hub         *hub.Client

	// Camera supplies the stream geometry; its Index field is ignored,
	// the request path picks the device. MaxScan bounds /scan-cameras,
	// zero meaning camera.DefaultMaxIndex.
	Camera  camera.Config
	MaxScan int

	// OpenSource builds a capture backend for one device index.
	// Probe reports whether an index looks usable without holding the
	// device open; nil falls back to the /dev/video check.
	OpenSource func(index int, cfg camera.Config) (camera.Source, error)
	Probe      func(index int) bool
}

// Server routes dashboard requests to the daemon components.
type Server struct {
	log      logging.Logger
	c        Components
	origins  map[string]struct{}
	streams  *streamHub
	upgrader websocket.Upgrader
}

// NewServer wires the handler set. origins is the exact-match CORS
// allow list; WebSocket upgrades accept the same origins.
func NewServer(log logging.Logger, c Components, origins []string) *Server {
	if log == nil {
		log = logging.New(nil)
	}
	if c.Probe == nil {
		c.Probe = camera.DevicePresent
	}
	s := &Server{
		log:     log,
		c:       c,
		origins: make(map[string]struct{}, len(origins)),
		streams: newStreamHub(),
	}
	for _, o := range origins {
		s.origins[o] = struct{}{}
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := s.origins[origin]
			return ok
		},
	}
	return s
}

// Routes builds the full dashboard handler, CORS middleware included.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /calibrate/start", s.handleCalibrateStart)
	mux.HandleFunc("POST /calibrate/input", s.handleCalibrateInput)
	mux.HandleFunc("GET /calibrate/status/{id}", s.handleCalibrateStatus)
	mux.HandleFunc("DELETE /calibrate/stop/{id}", s.handleCalibrateStop)
	mux.HandleFunc("GET /check-calibration-files/{robotID}", s.handleCheckCalibrationFiles)

	mux.HandleFunc("GET /list-ports", s.handleListPorts)
	mux.HandleFunc("GET /detect-ports", s.handleListPorts)

	mux.HandleFunc("POST /teleop/start", s.handleTeleopStart)
	mux.HandleFunc("GET /teleop/status/{id}", s.handleTeleopStatus)
	mux.HandleFunc("DELETE /teleop/stop/{id}", s.handleTeleopStop)

	mux.HandleFunc("POST /motor-setup/start", s.handleMotorSetupStart)
	mux.HandleFunc("GET /motor-setup/status/{id}", s.handleMotorSetupStatus)
	mux.HandleFunc("POST /motor-setup/input", s.handleMotorSetupInput)
	mux.HandleFunc("DELETE /motor-setup/stop/{id}", s.handleMotorSetupStop)

	mux.HandleFunc("POST /record/start", s.handleRecordStart)
	mux.HandleFunc("GET /record/status/{id}", s.handleRecordStatus)
	mux.HandleFunc("DELETE /record/stop/{id}", s.handleRecordStop)

	mux.HandleFunc("POST /replay/start", s.handleReplayStart)
	mux.HandleFunc("GET /replay/status/{id}", s.handleReplayStatus)
	mux.HandleFunc("DELETE /replay/stop/{id}", s.handleReplayStop)

	mux.HandleFunc("POST /training/start", s.handleTrainingStart)
	mux.HandleFunc("POST /training/stop", s.handleTrainingStop)
	mux.HandleFunc("GET /training/status", s.handleTrainingStatus)

	mux.HandleFunc("GET /env/huggingface", s.handleEnvGet)
	mux.HandleFunc("POST /env/huggingface", s.handleEnvSet)

	mux.HandleFunc("GET /arm-config", s.handleArmConfigGet)
	mux.HandleFunc("PUT /arm-config/{arm}", s.handleArmConfigUpdate)

	mux.HandleFunc("GET /sessions/history", s.handleHistory)

	mux.HandleFunc("GET /datasets", s.handleDatasetsList)
	mux.HandleFunc("GET /datasets/search", s.handleDatasetsSearch)
	mux.HandleFunc("GET /datasets/{id...}", s.handleDatasetDetails)

	mux.HandleFunc("GET /scan-cameras", s.handleScanCameras)
	mux.HandleFunc("POST /camera/{index}/start", s.handleCameraStart)
	mux.HandleFunc("DELETE /camera/{index}/stop", s.handleCameraStop)
	mux.HandleFunc("GET /camera/{index}/status", s.handleCameraStatus)
	mux.HandleFunc("GET /video/camera/{index}", s.handleVideo)

	mux.HandleFunc("GET /ws/calibration/{id}", s.handleCalibrationWS)
	mux.HandleFunc("GET /ws/teleop/{id}", s.handleTeleopWS)
	mux.HandleFunc("GET /ws/motor-setup/{id}", s.handleMotorSetupWS)

	return s.cors(mux)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "OpenBot Dashboard API"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// cors answers the dashboard dev setup: exact-origin allow list with
// credentials, wildcard methods and headers on preflight.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if _, ok := s.origins[origin]; ok {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "*")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn(context.Background(), "response encode failed", "error", err)
	}
}

// httpError writes the {"detail": ...} error object the dashboard
// expects on non-2xx responses.
func (s *Server) httpError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}

// decode parses a JSON request body into v, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.httpError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}
