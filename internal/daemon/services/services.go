// Package services builds and supervises the lerobot CLI invocations
// behind the dashboard endpoints. Each service derives a session ID,
// assembles the command line the corresponding lerobot entry point
// expects, and hands the process to a shared session.Runner.
package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CredentialSource supplies Hugging Face credentials as KEY=VALUE pairs
// for spawned CLI processes.
type CredentialSource interface {
	CLIEnv() []string
}

// CameraSpec describes one camera attached to a teleoperation or
// recording run, as submitted by the dashboard.
type CameraSpec struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Index  int    `json:"index"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	FPS    int    `json:"fps"`
}

// cameraEntry is the per-camera object lerobot parses out of the
// --robot.cameras JSON flag.
type cameraEntry struct {
	Type        string `json:"type"`
	IndexOrPath int    `json:"index_or_path"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	FPS         int    `json:"fps"`
}

// cameraFlag serializes cameras into the --robot.cameras flag. It
// returns "" when no cameras are configured.
func cameraFlag(cameras []CameraSpec) (string, error) {
	if len(cameras) == 0 {
		return "", nil
	}
	config := make(map[string]cameraEntry, len(cameras))
	for i, cam := range cameras {
		name := cam.Name
		if name == "" {
			name = fmt.Sprintf("camera_%d", i)
		}
		entry := cameraEntry{
			Type:        cam.Type,
			IndexOrPath: cam.Index,
			Width:       cam.Width,
			Height:      cam.Height,
			FPS:         cam.FPS,
		}
		if entry.Type == "" {
			entry.Type = "opencv"
		}
		if entry.Width == 0 {
			entry.Width = 1920
		}
		if entry.Height == 0 {
			entry.Height = 1080
		}
		if entry.FPS == 0 {
			entry.FPS = 30
		}
		config[name] = entry
	}
	raw, err := json.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("services: marshal cameras: %w", err)
	}
	return "--robot.cameras=" + string(raw), nil
}

// baseEnv is the environment every lerobot process gets: unbuffered
// interpreter output and a color-capable terminal, so progress lines
// arrive promptly and look the way the CLI renders them.
func baseEnv() []string {
	return []string{
		"PYTHONUNBUFFERED=1",
		"TERM=xterm-256color",
		"FORCE_COLOR=1",
	}
}

// credEnv appends the credential environment when a source is set.
func credEnv(env []string, creds CredentialSource) []string {
	if creds == nil {
		return env
	}
	return append(env, creds.CLIEnv()...)
}

// normalizeArmType converts dashboard robot types such as
// "SO100Follower" to the lerobot naming "so100_follower".
func normalizeArmType(robotType string) string {
	s := strings.ReplaceAll(robotType, "Follower", "_follower")
	s = strings.ReplaceAll(s, "Leader", "_leader")
	return strings.ToLower(s)
}

// sanitizePort makes a serial port path usable inside a session ID.
func sanitizePort(port string) string {
	return strings.ReplaceAll(port, "/", "_")
}

func newSuffix() string {
	return uuid.NewString()
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
