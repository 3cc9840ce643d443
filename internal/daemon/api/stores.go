package api

import (
	"net/http"
	"strconv"

	"github.com/carpit680/openbot-go/internal/daemon/armconfig"
	"github.com/carpit680/openbot-go/internal/daemon/history"
)

type credentialsRequest struct {
	HFUser  string `json:"hf_user"`
	HFToken string `json:"hf_token"`
}

func (s *Server) handleEnvGet(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.c.Env.Credentials())
}

func (s *Server) handleEnvSet(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.c.Env.Set(req.HFUser, req.HFToken)
	s.writeJSON(w, http.StatusOK, actionResponse{Success: true, Message: "Credentials updated"})
}

func (s *Server) handleArmConfigGet(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.c.Arms.Config())
}

// armConfigResponse returns the whole pairing after an update so the
// dashboard can refresh both panes from one response.
type armConfigResponse struct {
	Success bool             `json:"success"`
	Config  armconfig.Config `json:"config"`
}

func (s *Server) handleArmConfigUpdate(w http.ResponseWriter, r *http.Request) {
	var u armconfig.Update
	if !s.decode(w, r, &u) {
		return
	}
	var (
		cfg armconfig.Config
		err error
	)
	switch arm := r.PathValue("arm"); arm {
	case "leader":
		cfg, err = s.c.Arms.UpdateLeader(u)
	case "follower":
		cfg, err = s.c.Arms.UpdateFollower(u)
	default:
		s.httpError(w, http.StatusNotFound, "Unknown arm: "+arm)
		return
	}
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "Failed to update arm configuration: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, armConfigResponse{Success: true, Config: cfg})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.httpError(w, http.StatusBadRequest, "Invalid limit: "+v)
			return
		}
		limit = n
	}
	var (
		entries []history.Entry
		err     error
	)
	if kind := q.Get("kind"); kind != "" {
		entries, err = s.c.History.ByKind(r.Context(), kind, limit)
	} else {
		entries, err = s.c.History.Recent(r.Context(), limit)
	}
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "Failed to load session history: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": entries, "count": len(entries)})
}
