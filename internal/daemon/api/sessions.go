package api

import (
	"net/http"

	"github.com/carpit680/openbot-go/internal/daemon/services"
)

// startResponse is the envelope every start endpoint answers with.
type startResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// actionResponse is shared by stop, input, and other one-shot actions.
// Acting on an unknown session reports success false with a 200 rather
// than an error status; the dashboard branches on the flag.
type actionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// sessionStatus answers status polls for flows without stdin prompts.
type sessionStatus struct {
	SessionID string `json:"session_id"`
	IsRunning bool   `json:"is_running"`
	Status    string `json:"status"`
}

// promptStatus adds the waiting flag for flows that pause on stdin.
type promptStatus struct {
	SessionID         string `json:"session_id"`
	IsRunning         bool   `json:"is_running"`
	IsWaitingForInput bool   `json:"is_waiting_for_input"`
	Status            string `json:"status"`
}

type inputRequest struct {
	SessionID string `json:"session_id"`
	InputData string `json:"input_data"`
}

// sessionState reports the live flags for one session ID. A missing
// session reads as finished.
func (s *Server) sessionState(id string) (running, waiting bool) {
	sess, ok := s.c.Runner.Get(id)
	if !ok {
		return false, false
	}
	return sess.Running(), sess.WaitingForInput()
}

func statusWord(running bool) string {
	if running {
		return "running"
	}
	return "finished"
}

func (s *Server) stopSession(w http.ResponseWriter, id, stopped, failed string) {
	if err := s.c.Runner.Stop(id); err != nil {
		s.writeJSON(w, http.StatusOK, actionResponse{Success: false, Message: failed})
		return
	}
	s.writeJSON(w, http.StatusOK, actionResponse{Success: true, Message: stopped})
}

func (s *Server) handleCalibrateStart(w http.ResponseWriter, r *http.Request) {
	var req services.CalibrationRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.c.Calibration.Start(req)
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "Failed to start calibration: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, startResponse{
		Success:   true,
		SessionID: id,
		Message:   "Calibration started for " + req.RobotID,
	})
}

func (s *Server) handleCalibrateInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.c.Runner.SendInput(req.SessionID, req.InputData)
	msg := "Input sent successfully"
	if err != nil {
		msg = "Failed to send input"
	}
	s.writeJSON(w, http.StatusOK, actionResponse{Success: err == nil, Message: msg})
}

func (s *Server) handleCalibrateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	running, waiting := s.sessionState(id)
	s.writeJSON(w, http.StatusOK, promptStatus{
		SessionID:         id,
		IsRunning:         running,
		IsWaitingForInput: waiting,
		Status:            statusWord(running),
	})
}

func (s *Server) handleCalibrateStop(w http.ResponseWriter, r *http.Request) {
	s.stopSession(w, r.PathValue("id"),
		"Calibration stopped successfully", "Failed to stop calibration")
}

func (s *Server) handleCheckCalibrationFiles(w http.ResponseWriter, r *http.Request) {
	armType := r.URL.Query().Get("arm_type")
	if armType == "" {
		armType = "follower"
	}
	s.writeJSON(w, http.StatusOK, s.c.CalFiles.Check(r.PathValue("robotID"), armType))
}

func (s *Server) handleListPorts(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.c.Ports.List())
}

func (s *Server) handleTeleopStart(w http.ResponseWriter, r *http.Request) {
	var req services.TeleoperationRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.c.Teleop.Start(req)
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "Failed to start teleoperation: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, startResponse{
		Success:   true,
		SessionID: id,
		Message:   "Teleoperation started for leader " + req.LeaderID + " and follower " + req.FollowerID,
	})
}

func (s *Server) handleTeleopStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	running, _ := s.sessionState(id)
	s.writeJSON(w, http.StatusOK, sessionStatus{
		SessionID: id, IsRunning: running, Status: statusWord(running),
	})
}

func (s *Server) handleTeleopStop(w http.ResponseWriter, r *http.Request) {
	s.stopSession(w, r.PathValue("id"),
		"Teleoperation stopped successfully", "Failed to stop teleoperation")
}

func (s *Server) handleMotorSetupStart(w http.ResponseWriter, r *http.Request) {
	var req services.MotorSetupRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.c.MotorSetup.Start(req)
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "Failed to start motor setup: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, startResponse{
		Success:   true,
		SessionID: id,
		Message:   "Motor setup started for " + req.RobotType,
	})
}

func (s *Server) handleMotorSetupStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	running, waiting := s.sessionState(id)
	s.writeJSON(w, http.StatusOK, promptStatus{
		SessionID:         id,
		IsRunning:         running,
		IsWaitingForInput: waiting,
		Status:            statusWord(running),
	})
}

func (s *Server) handleMotorSetupInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.c.Runner.SendInput(req.SessionID, req.InputData)
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": err == nil})
}

func (s *Server) handleMotorSetupStop(w http.ResponseWriter, r *http.Request) {
	s.stopSession(w, r.PathValue("id"),
		"Motor setup stopped", "Failed to stop motor setup")
}

func (s *Server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	var req services.RecordingRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.c.Recording.Start(req)
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "Failed to start recording: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, startResponse{
		Success:   true,
		SessionID: id,
		Message:   "Dataset recording started for " + req.RobotID,
	})
}

func (s *Server) handleRecordStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	running, _ := s.sessionState(id)
	s.writeJSON(w, http.StatusOK, sessionStatus{
		SessionID: id, IsRunning: running, Status: statusWord(running),
	})
}

func (s *Server) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	s.stopSession(w, r.PathValue("id"),
		"Recording stopped successfully", "Failed to stop recording")
}

func (s *Server) handleReplayStart(w http.ResponseWriter, r *http.Request) {
	var req services.ReplayRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.c.Replay.Start(req)
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "Failed to start replay: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, startResponse{
		Success:   true,
		SessionID: id,
		Message:   "Replay started for " + req.RobotID,
	})
}

func (s *Server) handleReplayStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	running, _ := s.sessionState(id)
	s.writeJSON(w, http.StatusOK, sessionStatus{
		SessionID: id, IsRunning: running, Status: statusWord(running),
	})
}

func (s *Server) handleReplayStop(w http.ResponseWriter, r *http.Request) {
	s.stopSession(w, r.PathValue("id"),
		"Replay stopped successfully", "Failed to stop replay")
}
