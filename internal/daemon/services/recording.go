package services

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/carpit680/openbot-go/internal/daemon/session"
)

// Recording defaults, matching what the dashboard sends when a field is
// left untouched.
const (
	defaultNumEpisodes  = 5
	defaultEpisodeTimeS = 60
	defaultResetTimeS   = 60
)

// Recording starts and supervises lerobot.record runs.
type Recording struct {
	runner *session.Runner
	python string
	creds  CredentialSource
	suffix func() string
}

// NewRecording returns a Recording service spawning processes with the
// given interpreter. creds may be nil.
func NewRecording(runner *session.Runner, python string, creds CredentialSource) *Recording {
	if python == "" {
		python = "python"
	}
	return &Recording{runner: runner, python: python, creds: creds, suffix: newSuffix}
}

// RecordingRequest describes a dataset recording run. DisplayData and
// Resume are pointers because their defaults are true: an absent field
// must not read as false.
type RecordingRequest struct {
	RobotType     string       `json:"robot_type"`
	RobotPort     string       `json:"robot_port"`
	RobotID       string       `json:"robot_id"`
	TeleopType    string       `json:"teleop_type"`
	TeleopPort    string       `json:"teleop_port"`
	TeleopID      string       `json:"teleop_id"`
	Cameras       []CameraSpec `json:"cameras"`
	DisplayData   *bool        `json:"display_data"`
	DatasetRepoID string       `json:"dataset_repo_id"`
	NumEpisodes   int          `json:"num_episodes"`
	SingleTask    string       `json:"single_task"`
	PushToHub     bool         `json:"push_to_hub"`
	Resume        *bool        `json:"resume"`
	EpisodeTimeS  int          `json:"episode_time_s"`
	ResetTimeS    int          `json:"reset_time_s"`
}

func (r *RecordingRequest) validate() error {
	switch {
	case r.RobotType == "" || r.RobotPort == "" || r.RobotID == "":
		return errors.New("services: recording request missing robot fields")
	case r.TeleopType == "" || r.TeleopPort == "" || r.TeleopID == "":
		return errors.New("services: recording request missing teleop fields")
	}
	return nil
}

// Start launches a dataset recording process and returns its session
// ID.
func (r *Recording) Start(req RecordingRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	command, err := r.command(req)
	if err != nil {
		return "", err
	}
	id := fmt.Sprintf("%s_%s_recording_%s", req.RobotID, req.TeleopID, r.suffix())
	_, err = r.runner.Start(session.Config{
		ID:      id,
		Kind:    "Dataset recording",
		Target:  req.RobotID,
		Command: command,
		Env:     credEnv(baseEnv(), r.creds),
		Banner:  fmt.Sprintf("Dataset recording started for robot %s and teleop %s", req.RobotID, req.TeleopID),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Recording) command(req RecordingRequest) ([]string, error) {
	display := req.DisplayData == nil || *req.DisplayData
	resume := req.Resume == nil || *req.Resume
	episodes := req.NumEpisodes
	if episodes == 0 {
		episodes = defaultNumEpisodes
	}
	episodeTime := req.EpisodeTimeS
	if episodeTime == 0 {
		episodeTime = defaultEpisodeTimeS
	}
	resetTime := req.ResetTimeS
	if resetTime == 0 {
		resetTime = defaultResetTimeS
	}

	args := []string{
		r.python, "-m", "lerobot.record",
		"--robot.type=" + req.RobotType,
		"--robot.port=" + req.RobotPort,
		"--robot.id=" + req.RobotID,
		"--teleop.type=" + req.TeleopType,
		"--teleop.port=" + req.TeleopPort,
		"--teleop.id=" + req.TeleopID,
		"--display_data=" + strconv.FormatBool(display),
		"--dataset.num_episodes=" + strconv.Itoa(episodes),
		"--dataset.push_to_hub=" + strconv.FormatBool(req.PushToHub),
		"--resume=" + strconv.FormatBool(resume),
		"--dataset.episode_time_s=" + strconv.Itoa(episodeTime),
		"--dataset.reset_time_s=" + strconv.Itoa(resetTime),
	}
	flag, err := cameraFlag(req.Cameras)
	if err != nil {
		return nil, err
	}
	if flag != "" {
		args = append(args, flag)
	}
	if req.DatasetRepoID != "" {
		args = append(args, "--dataset.repo_id="+req.DatasetRepoID)
	}
	if req.SingleTask != "" {
		args = append(args, "--dataset.single_task="+req.SingleTask)
	}
	return args, nil
}
