package api

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/time/rate"

	"github.com/carpit680/openbot-go/pkg/openbot/device/camera"
)

const streamJPEGQuality = 80

// streamHub tracks the live MJPEG stream per camera index. At most one
// stream per index; a new viewer displaces the old one.
type streamHub struct {
	mu     sync.Mutex
	active map[int]*stream
}

type stream struct {
	cancel context.CancelFunc
}

func newStreamHub() *streamHub {
	return &streamHub{active: make(map[int]*stream)}
}

// replace registers st for index, cancelling any previous stream.
func (h *streamHub) replace(index int, st *stream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old := h.active[index]; old != nil {
		old.cancel()
	}
	h.active[index] = st
}

// drop removes st if it is still the registered stream for index.
func (h *streamHub) drop(index int, st *stream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active[index] == st {
		delete(h.active, index)
	}
}

// stop cancels and removes the stream for index, reporting whether one
// was active.
func (h *streamHub) stop(index int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.active[index]
	if !ok {
		return false
	}
	delete(h.active, index)
	st.cancel()
	return true
}

func (h *streamHub) running(index int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.active[index]
	return ok
}

// cameraInfo is one /scan-cameras entry.
type cameraInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Index  int    `json:"index"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	FPS    int    `json:"fps"`
}

func (s *Server) maxScan() int {
	if s.c.MaxScan > 0 {
		return s.c.MaxScan
	}
	return camera.DefaultMaxIndex
}

func (s *Server) handleScanCameras(w http.ResponseWriter, _ *http.Request) {
	cfg := s.c.Camera
	found := camera.Scan(s.maxScan(), s.c.Probe)
	cams := make([]cameraInfo, 0, len(found))
	for _, index := range found {
		cams = append(cams, cameraInfo{
			ID:     fmt.Sprintf("camera%d", index),
			Name:   fmt.Sprintf("Camera %d", index),
			Index:  index,
			URL:    fmt.Sprintf("/video/camera/%d", index),
			Width:  cfg.Width,
			Height: cfg.Height,
			FPS:    cfg.FrameRate,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"cameras": cams})
}

// cameraIndex parses the {index} path segment.
func (s *Server) cameraIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.PathValue("index")
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		s.httpError(w, http.StatusBadRequest, "Invalid camera index: "+raw)
		return 0, false
	}
	return index, true
}

// handleCameraStart only verifies the device is usable. The stream
// itself is owned by the /video/camera endpoint, so there is nothing
// to hold open here.
func (s *Server) handleCameraStart(w http.ResponseWriter, r *http.Request) {
	index, ok := s.cameraIndex(w, r)
	if !ok {
		return
	}
	if s.streams.running(index) {
		s.writeJSON(w, http.StatusOK, actionResponse{
			Success: true, Message: fmt.Sprintf("Camera %d stream already active", index),
		})
		return
	}
	if !s.c.Probe(index) {
		s.writeJSON(w, http.StatusOK, actionResponse{
			Success: false, Message: fmt.Sprintf("Camera %d not available", index),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, actionResponse{
		Success: true, Message: fmt.Sprintf("Camera %d stream started", index),
	})
}

func (s *Server) handleCameraStop(w http.ResponseWriter, r *http.Request) {
	index, ok := s.cameraIndex(w, r)
	if !ok {
		return
	}
	if s.streams.stop(index) {
		s.writeJSON(w, http.StatusOK, actionResponse{
			Success: true, Message: fmt.Sprintf("Camera %d stream stopped and released", index),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, actionResponse{
		Success: false, Message: fmt.Sprintf("Camera %d stream not active", index),
	})
}

func (s *Server) handleCameraStatus(w http.ResponseWriter, r *http.Request) {
	index, ok := s.cameraIndex(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"camera_index": index,
		"is_streaming": s.streams.running(index),
	})
}

// handleVideo serves an MJPEG stream for one camera. The response stays
// open until the client disconnects or the stop endpoint kills the
// stream.
func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	index, ok := s.cameraIndex(w, r)
	if !ok {
		return
	}
	if s.c.OpenSource == nil {
		s.httpError(w, http.StatusServiceUnavailable, "No camera backend configured")
		return
	}
	cfg := s.c.Camera
	cfg.Index = index
	src, err := s.c.OpenSource(index, cfg)
	if err != nil {
		s.httpError(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Camera %d not available: %v", index, err))
		return
	}
	cam := camera.New(src, cfg, s.log)
	cfg = cam.Config()
	if err := cam.Start(r.Context()); err != nil {
		_ = src.Close()
		s.httpError(w, http.StatusInternalServerError,
			fmt.Sprintf("Camera %d start failed: %v", index, err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	st := &stream{cancel: cancel}
	s.streams.replace(index, st)
	defer func() {
		s.streams.drop(index, st)
		cancel()
		if err := cam.Stop(); err != nil {
			s.log.Warn(context.Background(), "camera stop failed", "index", index, "error", err)
		}
		s.log.Info(context.Background(), "camera stream closed", "index", index)
	}()

	h := w.Header()
	h.Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "close")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET")
	h.Set("Access-Control-Allow-Headers", "*")
	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	s.log.Info(r.Context(), "camera stream started",
		"index", index, "width", cfg.Width, "height", cfg.Height, "fps", cfg.FrameRate)

	var buf bytes.Buffer
	lim := rate.NewLimiter(rate.Limit(cfg.FrameRate), 1)
	for {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		frame, ok := cam.Latest()
		if !ok {
			continue
		}
		buf.Reset()
		if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: streamJPEGQuality}); err != nil {
			s.log.Warn(ctx, "frame encode failed", "index", index, "error", err)
			continue
		}
		if _, err := io.WriteString(w, "--frame\r\nContent-Type: image/jpeg\r\n\r\n"); err != nil {
			return
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
}
