package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/carpit680/openbot-go/internal/daemon/session"
)

// MotorSetup starts and supervises lerobot.setup_motors runs.
type MotorSetup struct {
	runner *session.Runner
	python string
	suffix func() string
}

// NewMotorSetup returns a MotorSetup service spawning processes with
// the given interpreter.
func NewMotorSetup(runner *session.Runner, python string) *MotorSetup {
	if python == "" {
		python = "python"
	}
	return &MotorSetup{runner: runner, python: python, suffix: newSuffix}
}

// MotorSetupRequest names the bus to configure.
type MotorSetupRequest struct {
	RobotType string `json:"robot_type"`
	Port      string `json:"port"`
}

func (r *MotorSetupRequest) validate() error {
	switch {
	case r.RobotType == "":
		return errors.New("services: motor setup request missing robot_type")
	case r.Port == "":
		return errors.New("services: motor setup request missing port")
	}
	return nil
}

// Start launches a motor setup process and returns its session ID.
func (m *MotorSetup) Start(req MotorSetupRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	id := fmt.Sprintf("%s_%s_%s", req.RobotType, sanitizePort(req.Port), m.suffix())
	_, err := m.runner.Start(session.Config{
		ID:          id,
		Kind:        "Motor setup",
		Target:      req.RobotType,
		Command:     m.command(req),
		Env:         baseEnv(),
		Banner:      fmt.Sprintf("Motor setup started for %s on port %s", req.RobotType, req.Port),
		Interceptor: promptInterceptor{},
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (m *MotorSetup) command(req MotorSetupRequest) []string {
	return []string{
		m.python, "-u", "-m", "lerobot.setup_motors",
		"--robot.type=" + req.RobotType,
		"--robot.port=" + req.Port,
	}
}

// promptInterceptor flags the "press enter" prompts the setup_motors
// CLI prints between motors. Detection runs on the raw line so escape
// sequences inside the prompt cannot hide the trigger words.
type promptInterceptor struct{}

func (promptInterceptor) Line(raw, clean string) ([]session.Item, bool) {
	waiting := containsAny(strings.ToLower(raw),
		"press enter", "hit enter", "press <enter>", "press return")
	return []session.Item{{Kind: session.ItemLine, Text: clean}}, waiting
}

func (promptInterceptor) InputSent() {}
