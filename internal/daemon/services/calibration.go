package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/carpit680/openbot-go/internal/daemon/session"
)

// Calibration phases. The lerobot calibrate CLI walks the operator
// through two steps; the phase decides when the process is genuinely
// blocked on input rather than just quiet.
const (
	phaseInitial    = "initial"
	phaseFirstStep  = "first_step"
	phaseSecondStep = "second_step"
	phaseNextPhase  = "next_phase"
	phaseWaiting    = "waiting"
)

// Calibration starts and supervises lerobot.calibrate runs.
type Calibration struct {
	runner *session.Runner
	python string
	creds  CredentialSource
}

// NewCalibration returns a Calibration service spawning processes with
// the given interpreter. creds may be nil.
func NewCalibration(runner *session.Runner, python string, creds CredentialSource) *Calibration {
	if python == "" {
		python = "python"
	}
	return &Calibration{runner: runner, python: python, creds: creds}
}

// CalibrationRequest identifies the arm to calibrate.
type CalibrationRequest struct {
	ArmType   string `json:"arm_type"`
	RobotType string `json:"robot_type"`
	Port      string `json:"port"`
	RobotID   string `json:"robot_id"`
}

func (r *CalibrationRequest) validate() error {
	switch {
	case r.ArmType == "":
		return errors.New("services: calibration request missing arm_type")
	case r.RobotType == "":
		return errors.New("services: calibration request missing robot_type")
	case r.Port == "":
		return errors.New("services: calibration request missing port")
	case r.RobotID == "":
		return errors.New("services: calibration request missing robot_id")
	}
	return nil
}

// Start launches a calibration process and returns its session ID.
func (c *Calibration) Start(req CalibrationRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	id := req.RobotID + "_" + req.ArmType
	_, err := c.runner.Start(session.Config{
		ID:              id,
		Kind:            "Calibration",
		Target:          req.RobotID,
		Command:         c.command(req),
		Env:             credEnv(baseEnv(), c.creds),
		Banner:          fmt.Sprintf("Calibration started for %s on port %s", req.RobotID, req.Port),
		Interceptor:     newCalibrationInterceptor(),
		SilenceAfter:    session.DefaultSilenceAfter,
		SilenceReminder: "Still waiting for calibration process...",
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// command builds the calibrate argv. Leader arms calibrate as
// teleoperators, everything else as robots.
func (c *Calibration) command(req CalibrationRequest) []string {
	typ := normalizeArmType(req.RobotType)
	if req.ArmType == "leader" {
		return []string{
			c.python, "-m", "lerobot.calibrate",
			"--teleop.type=" + typ,
			"--teleop.port=" + req.Port,
			"--teleop.id=" + req.RobotID,
		}
	}
	return []string{
		c.python, "-m", "lerobot.calibrate",
		"--robot.type=" + typ,
		"--robot.port=" + req.Port,
		"--robot.id=" + req.RobotID,
	}
}

// calibrationInterceptor tags error lines, tracks the calibration phase
// machine, and flags explicit "press enter" prompts.
type calibrationInterceptor struct {
	phase string
}

func newCalibrationInterceptor() *calibrationInterceptor {
	return &calibrationInterceptor{phase: phaseInitial}
}

func (ci *calibrationInterceptor) Line(_, clean string) ([]session.Item, bool) {
	lower := strings.ToLower(clean)
	text := clean
	if containsAny(lower, "traceback", "error", "exception") {
		text = "ERROR: " + clean
	}

	waiting := false
	switch ci.phase {
	case phaseInitial:
		if strings.Contains(lower, "move test") && strings.Contains(lower, "middle of its range") {
			ci.phase = phaseFirstStep
		}
	case phaseFirstStep:
		// The second step is where the CLI actually blocks.
		if strings.Contains(lower, "move all joints") && strings.Contains(lower, "entire ranges") {
			ci.phase = phaseSecondStep
			waiting = true
		}
	}
	if containsAny(lower, "press enter....", "press enter to stop", "press enter to continue") {
		ci.phase = phaseWaiting
		waiting = true
	}
	return []session.Item{{Kind: session.ItemLine, Text: text}}, waiting
}

func (ci *calibrationInterceptor) InputSent() {
	switch ci.phase {
	case phaseSecondStep:
		ci.phase = phaseNextPhase
	case phaseWaiting:
		// Back to the start so the next prompt is detected afresh.
		ci.phase = phaseInitial
	}
}
