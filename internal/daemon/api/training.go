package api

import (
	"errors"
	"net/http"

	"github.com/carpit680/openbot-go/internal/daemon/training"
)

type trainingStartRequest struct {
	training.Config
	// HFToken overrides the stored hub token for this run.
	HFToken string `json:"hf_token"`
}

func (s *Server) handleTrainingStart(w http.ResponseWriter, r *http.Request) {
	var req trainingStartRequest
	if !s.decode(w, r, &req) {
		return
	}
	token := req.HFToken
	if token == "" {
		token = s.c.Env.Token()
	}
	if err := s.c.Training.Start(req.Config, token); err != nil {
		if errors.Is(err, training.ErrAlreadyRunning) {
			s.httpError(w, http.StatusConflict, "Training already in progress")
			return
		}
		s.httpError(w, http.StatusInternalServerError, "Failed to start training: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, actionResponse{Success: true, Message: "Training started"})
}

func (s *Server) handleTrainingStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.c.Training.Stop(); err != nil {
		if errors.Is(err, training.ErrNotRunning) {
			s.writeJSON(w, http.StatusOK, actionResponse{Success: false, Message: "No training in progress"})
			return
		}
		s.httpError(w, http.StatusInternalServerError, "Failed to stop training: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, actionResponse{Success: true, Message: "Training stopped"})
}

func (s *Server) handleTrainingStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.c.Training.Status())
}
