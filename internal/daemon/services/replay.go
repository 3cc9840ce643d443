package services

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/carpit680/openbot-go/internal/daemon/session"
)

// Replay starts and supervises lerobot.replay runs.
type Replay struct {
	runner *session.Runner
	python string
	creds  CredentialSource
	suffix func() string
}

// NewReplay returns a Replay service spawning processes with the given
// interpreter. creds may be nil.
func NewReplay(runner *session.Runner, python string, creds CredentialSource) *Replay {
	if python == "" {
		python = "python"
	}
	return &Replay{runner: runner, python: python, creds: creds, suffix: newSuffix}
}

// ReplayRequest names the robot and the recorded episode to play back.
type ReplayRequest struct {
	RobotType     string `json:"robot_type"`
	RobotPort     string `json:"robot_port"`
	RobotID       string `json:"robot_id"`
	DatasetRepoID string `json:"dataset_repo_id"`
	Episode       int    `json:"episode"`
}

func (r *ReplayRequest) validate() error {
	switch {
	case r.RobotType == "" || r.RobotPort == "" || r.RobotID == "":
		return errors.New("services: replay request missing robot fields")
	case r.DatasetRepoID == "":
		return errors.New("services: replay request missing dataset_repo_id")
	}
	return nil
}

// Start launches a dataset replay process and returns its session ID.
func (r *Replay) Start(req ReplayRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	id := fmt.Sprintf("%s_replay_%s", req.RobotID, r.suffix())
	_, err := r.runner.Start(session.Config{
		ID:      id,
		Kind:    "Dataset replay",
		Target:  req.RobotID,
		Command: r.command(req),
		Env:     credEnv(baseEnv(), r.creds),
		Banner:  fmt.Sprintf("Dataset replay started for robot %s with dataset %s", req.RobotID, req.DatasetRepoID),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Replay) command(req ReplayRequest) []string {
	return []string{
		r.python, "-m", "lerobot.replay",
		"--robot.type=" + req.RobotType,
		"--robot.port=" + req.RobotPort,
		"--robot.id=" + req.RobotID,
		"--dataset.repo_id=" + req.DatasetRepoID,
		"--dataset.episode=" + strconv.Itoa(req.Episode),
	}
}
