package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/carpit680/openbot-go/internal/daemon/session"
)

// tableSeparator marks the telemetry tables the teleoperate CLI
// redraws continuously.
const tableSeparator = "---------------------------"

// Teleoperation starts and supervises lerobot.teleoperate runs.
type Teleoperation struct {
	runner *session.Runner
	python string
}

// NewTeleoperation returns a Teleoperation service spawning processes
// with the given interpreter.
func NewTeleoperation(runner *session.Runner, python string) *Teleoperation {
	if python == "" {
		python = "python"
	}
	return &Teleoperation{runner: runner, python: python}
}

// TeleoperationRequest pairs a leader arm with the follower it drives.
type TeleoperationRequest struct {
	LeaderType   string       `json:"leader_type"`
	LeaderPort   string       `json:"leader_port"`
	LeaderID     string       `json:"leader_id"`
	FollowerType string       `json:"follower_type"`
	FollowerPort string       `json:"follower_port"`
	FollowerID   string       `json:"follower_id"`
	Cameras      []CameraSpec `json:"cameras"`
}

func (r *TeleoperationRequest) validate() error {
	switch {
	case r.LeaderType == "" || r.LeaderPort == "" || r.LeaderID == "":
		return errors.New("services: teleoperation request missing leader fields")
	case r.FollowerType == "" || r.FollowerPort == "" || r.FollowerID == "":
		return errors.New("services: teleoperation request missing follower fields")
	}
	return nil
}

// Start launches a teleoperation process and returns its session ID.
func (t *Teleoperation) Start(req TeleoperationRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	command, err := t.command(req)
	if err != nil {
		return "", err
	}
	id := req.LeaderID + "_" + req.FollowerID + "_teleop"
	_, err = t.runner.Start(session.Config{
		ID:          id,
		Kind:        "Teleoperation",
		Target:      fmt.Sprintf("%s/%s", req.LeaderID, req.FollowerID),
		Command:     command,
		Env:         baseEnv(),
		Banner:      fmt.Sprintf("Teleoperation started for leader %s and follower %s", req.LeaderID, req.FollowerID),
		Interceptor: &tableInterceptor{},
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (t *Teleoperation) command(req TeleoperationRequest) ([]string, error) {
	args := []string{
		t.python, "-m", "lerobot.teleoperate",
		"--robot.type=" + req.FollowerType,
		"--robot.port=" + req.FollowerPort,
		"--robot.id=" + req.FollowerID,
		"--teleop.type=" + req.LeaderType,
		"--teleop.port=" + req.LeaderPort,
		"--teleop.id=" + req.LeaderID,
	}
	flag, err := cameraFlag(req.Cameras)
	if err != nil {
		return nil, err
	}
	if flag != "" {
		args = append(args, flag, "--display_data=true")
	}
	return args, nil
}

// tableInterceptor coalesces the multi-line telemetry tables the
// teleoperate CLI redraws. A separator line opens a table (flushing any
// previous one) and the "time: ...ms (...)" line closes it; everything
// between is buffered raw so the joined block can be cleaned as one
// unit. Stray table fragments outside a block are suppressed.
type tableInterceptor struct {
	inTable bool
	buffer  []string
}

func (ti *tableInterceptor) Line(raw, _ string) ([]session.Item, bool) {
	var items []session.Item
	switch {
	case strings.Contains(raw, tableSeparator):
		if ti.inTable && len(ti.buffer) > 0 {
			if it, ok := classifyBlock(strings.Join(ti.buffer, "\n")); ok {
				items = append(items, it)
			}
		}
		ti.inTable = true
		ti.buffer = []string{raw}
	case ti.inTable:
		ti.buffer = append(ti.buffer, raw)
		if strings.Contains(raw, "time:") && strings.Contains(raw, "ms") && strings.Contains(raw, "(") {
			if it, ok := classifyBlock(strings.Join(ti.buffer, "\n")); ok {
				items = append(items, it)
			}
			ti.inTable = false
			ti.buffer = nil
		}
	default:
		if it, ok := classifyBlock(raw); ok {
			items = append(items, it)
		}
	}
	return items, false
}

func (ti *tableInterceptor) InputSent() {}

// classifyBlock cleans a buffered block or single line and decides how
// to publish it: a complete table, a suppressed fragment, or a plain
// line.
func classifyBlock(text string) (session.Item, bool) {
	cleaned := session.CleanANSI(text)
	if cleaned == "" {
		return session.Item{}, false
	}
	if strings.Contains(cleaned, tableSeparator) && strings.Contains(cleaned, "time:") {
		return session.Item{Kind: session.ItemTable, Text: cleaned}, true
	}
	if isTableFragment(cleaned) {
		return session.Item{}, false
	}
	return session.Item{Kind: session.ItemLine, Text: cleaned}, true
}

func isTableFragment(text string) bool {
	return strings.Contains(text, tableSeparator) ||
		strings.Contains(text, ".pos") ||
		strings.Contains(text, "NAME") ||
		strings.Contains(text, "NORM") ||
		(strings.HasPrefix(text, "time:") && strings.Contains(text, "ms") && strings.Contains(text, "("))
}
