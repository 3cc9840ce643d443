// Package training runs the single lerobot training job the dashboard
// manages. Unlike the session services there is one slot: starting a
// job while another is running is an error, and the full output buffer
// is returned with every status query.
package training

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dropbox/godropbox/time2"

	"github.com/carpit680/openbot-go/pkg/openbot/logging"
)

var (
	// ErrAlreadyRunning is returned when a job is started while one is
	// still active.
	ErrAlreadyRunning = errors.New("training: already running")

	// ErrNotRunning is returned by Stop when no job is active.
	ErrNotRunning = errors.New("training: not running")
)

// stopGrace is how long Stop waits after SIGTERM before killing.
const stopGrace = 2 * time.Second

var wandbURL = regexp.MustCompile(`https://wandb\.ai/\S+`)

// Clock supplies start timestamps. *time2.MockClock satisfies it in
// tests.
type Clock interface {
	Now() time.Time
}

// Config describes one training job.
type Config struct {
	DatasetRepoID string `json:"dataset_repo_id"`
	PolicyType    string `json:"policy_type"`
	OutputDir     string `json:"output_dir"`
	JobName       string `json:"job_name"`
	PolicyDevice  string `json:"policy_device"`
	WandbEnable   bool   `json:"wandb_enable"`
	Resume        bool   `json:"resume"`
}

func (c *Config) validate() error {
	switch {
	case c.DatasetRepoID == "":
		return errors.New("training: config missing dataset_repo_id")
	case c.PolicyType == "":
		return errors.New("training: config missing policy_type")
	case c.OutputDir == "":
		return errors.New("training: config missing output_dir")
	case c.JobName == "":
		return errors.New("training: config missing job_name")
	case c.PolicyDevice == "":
		return errors.New("training: config missing policy_device")
	}
	return nil
}

// Status is the dashboard view of the training slot. Empty Error,
// StartTime, and WandbLink stand for "none".
type Status struct {
	IsRunning   bool     `json:"is_running"`
	IsCompleted bool     `json:"is_completed"`
	Error       string   `json:"error"`
	Output      []string `json:"output"`
	StartTime   string   `json:"start_time"`
	WandbLink   string   `json:"wandb_link"`
}

// Service owns the training slot.
type Service struct {
	log    logging.Logger
	python string
	clock  Clock

	mu        sync.Mutex
	cmd       *exec.Cmd
	done      chan struct{}
	running   bool
	completed bool
	stopped   bool
	errMsg    string
	output    []string
	startTime time.Time
}

// New returns a Service spawning jobs with the given interpreter. A nil
// logger falls back to the default slog logger, a nil clock to the wall
// clock.
func New(log logging.Logger, python string, clock Clock) *Service {
	if log == nil {
		log = logging.New(nil)
	}
	if python == "" {
		python = "python"
	}
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &Service{log: log, python: python, clock: clock}
}

// Start launches a training job. token, when non-empty, is exported to
// the process as HF_TOKEN; it is never logged.
func (s *Service) Start(cfg Config, token string) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	command := s.command(cfg)
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Env = os.Environ()
	if token != "" {
		cmd.Env = append(cmd.Env, "HF_TOKEN="+token)
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("training: output pipe: %w", err)
	}
	cmd.Stdout = outW
	cmd.Stderr = outW

	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		s.errMsg = fmt.Sprintf("Failed to start training: %v", err)
		return fmt.Errorf("training: start: %w", err)
	}
	outW.Close()

	s.cmd = cmd
	s.done = make(chan struct{})
	s.running = true
	s.completed = false
	s.stopped = false
	s.errMsg = ""
	s.output = nil
	s.startTime = s.clock.Now()

	go s.monitor(outR, cmd, s.done)
	s.log.Info(context.Background(), "training started",
		"job_name", cfg.JobName, "dataset", cfg.DatasetRepoID, "policy", cfg.PolicyType)
	return nil
}

// Stop terminates the active job: SIGTERM, then SIGKILL after a grace
// period.
func (s *Service) Stop() error {
	ctx := context.Background()

	s.mu.Lock()
	if !s.running || s.cmd == nil {
		s.mu.Unlock()
		return ErrNotRunning
	}
	cmd := s.cmd
	done := s.done
	s.stopped = true
	s.mu.Unlock()

	s.log.Info(ctx, "stopping training process")
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.log.Warn(ctx, "terminate failed", "error", err)
	}
	select {
	case <-done:
	case <-time.After(stopGrace):
		s.log.Warn(ctx, "training ignored SIGTERM, killing")
		if err := cmd.Process.Kill(); err != nil {
			s.log.Warn(ctx, "kill failed", "error", err)
		}
		<-done
	}

	s.mu.Lock()
	s.output = append(s.output, "Training stopped by user")
	s.mu.Unlock()
	return nil
}

// Status returns a snapshot of the slot, output buffer included.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		IsRunning:   s.running,
		IsCompleted: s.completed,
		Error:       s.errMsg,
		Output:      append([]string(nil), s.output...),
		WandbLink:   wandbLink(s.output),
	}
	if !s.startTime.IsZero() {
		st.StartTime = s.startTime.Format(time.RFC3339)
	}
	return st
}

// ClearOutput discards the output buffer.
func (s *Service) ClearOutput() {
	s.mu.Lock()
	s.output = nil
	s.mu.Unlock()
}

func (s *Service) command(cfg Config) []string {
	args := []string{
		s.python, "-m", "lerobot.scripts.train",
		"--dataset.repo_id=" + cfg.DatasetRepoID,
		"--policy.type=" + cfg.PolicyType,
		"--output_dir=" + cfg.OutputDir,
		"--job_name=" + cfg.JobName,
		"--policy.device=" + cfg.PolicyDevice,
		"--wandb.enable=" + strconv.FormatBool(cfg.WandbEnable),
		"--resume=" + strconv.FormatBool(cfg.Resume),
	}
	if cfg.Resume {
		args = append(args, "--policy.checkpoint_path="+filepath.Join(cfg.OutputDir, "checkpoints/last/pretrained_model"))
	}
	return args
}

func (s *Service) monitor(out *os.File, cmd *exec.Cmd, done chan struct{}) {
	ctx := context.Background()

	sc := bufio.NewScanner(out)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if line == "" {
			continue
		}
		s.log.Debug(ctx, "training output", "line", line)
		s.mu.Lock()
		s.output = append(s.output, line)
		s.mu.Unlock()
	}
	if err := sc.Err(); err != nil {
		s.log.Warn(ctx, "training output read failed", "error", err)
	}
	out.Close()

	err := cmd.Wait()
	code := 0
	if err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			code = exit.ExitCode()
		} else {
			s.log.Warn(ctx, "training wait failed", "error", err)
			code = -1
		}
	}

	s.mu.Lock()
	switch {
	case code == 0:
		s.completed = true
		s.output = append(s.output, "Training completed successfully!")
	case s.stopped:
		// Operator cancellation is not a failure.
	default:
		s.errMsg = fmt.Sprintf("Training failed with return code %d", code)
	}
	s.running = false
	s.cmd = nil
	s.mu.Unlock()

	s.log.Info(ctx, "training process finished", "exit_code", code)
	close(done)
}

// wandbLink returns the first Weights & Biases run URL in the output.
func wandbLink(lines []string) string {
	for _, line := range lines {
		if m := wandbURL.FindString(line); m != "" {
			return m
		}
	}
	return ""
}
