package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dropbox/godropbox/time2"

	"github.com/carpit680/openbot-go/pkg/openbot/logging"
)

var (
	// ErrNotFound is returned when no session exists for an ID.
	ErrNotFound = errors.New("session: not found")

	// ErrNotRunning is returned when an operation requires a live
	// process but the session has already finished.
	ErrNotRunning = errors.New("session: process not running")
)

const (
	// DefaultSilenceAfter is how long a session may stay quiet before
	// silence detection assumes the process is waiting for input.
	DefaultSilenceAfter = 3 * time.Second

	// defaultSilenceNotice is published when silence detection first
	// fires and no notice text was configured.
	defaultSilenceNotice = "Waiting for user input..."

	termGrace = 5 * time.Second
	killGrace = 2 * time.Second

	watchTick     = 50 * time.Millisecond
	maxQueue      = 1000
	maxScrollback = 2000
	maxLineBytes  = 1 << 20

	// resultTail is how many trailing output lines a Result carries.
	resultTail = 20
)

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ItemKind distinguishes ordinary output lines from coalesced
// telemetry tables.
type ItemKind int

const (
	// ItemLine is a plain output line delivered through the queue.
	ItemLine ItemKind = iota

	// ItemTable is a multi-line telemetry table. Tables bypass the
	// queue: the session retains only the most recent one.
	ItemTable
)

// Item is one unit of session output.
type Item struct {
	Kind ItemKind
	Text string
}

// Interceptor lets a caller shape session output before it is
// published. The runner serializes calls on a given session, so
// implementations need no locking of their own.
type Interceptor interface {
	// Line receives each non-empty output line, raw as read from the
	// process and with ANSI escapes stripped. It returns the items to
	// publish (nil drops the line) and whether the line indicates the
	// process is now waiting for operator input.
	Line(raw, clean string) (items []Item, waiting bool)

	// InputSent is invoked after input is written to the process.
	InputSent()
}

// passthrough publishes every cleaned line unchanged.
type passthrough struct{}

func (passthrough) Line(_, clean string) ([]Item, bool) {
	return []Item{{Kind: ItemLine, Text: clean}}, false
}

func (passthrough) InputSent() {}

// Clock is the subset of time2.Clock the runner needs. Both
// time2.DefaultClock and *time2.MockClock satisfy it.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// Result summarizes a finished session for history recording.
type Result struct {
	ID        string
	Kind      string
	Target    string
	Status    Status
	ExitCode  int
	StartedAt time.Time
	EndedAt   time.Time

	// Tail holds the last output lines, final status line included.
	Tail []string
}

// Config describes one supervised process.
type Config struct {
	// ID keys the session within the runner. Starting a second session
	// with the same ID stops the first.
	ID string

	// Kind is the human-readable label used in published status lines,
	// for example "Calibration".
	Kind string

	// Target names what the session operates on, for example a robot
	// ID. Recorded in history, not validated.
	Target string

	// Command is the argv to execute. Command[0] is resolved through
	// PATH when not absolute.
	Command []string

	// Env holds extra KEY=VALUE pairs appended to the parent
	// environment.
	Env []string

	// Banner, when set, is published as the first output line.
	Banner string

	// Interceptor post-processes output lines. Nil publishes every
	// cleaned line unchanged.
	Interceptor Interceptor

	// SilenceAfter enables silence detection: when the process emits
	// no output for this long, the session is flagged as waiting for
	// input and SilenceNotice is published. Zero disables detection.
	SilenceAfter time.Duration

	// SilenceNotice is published when silence detection first fires.
	// Empty defaults to "Waiting for user input...".
	SilenceNotice string

	// SilenceReminder, when set, is republished at SilenceAfter
	// intervals while the process stays quiet.
	SilenceReminder string
}

func (c *Config) validate() error {
	if c.ID == "" {
		return errors.New("session: config missing ID")
	}
	if c.Kind == "" {
		return errors.New("session: config missing kind")
	}
	if len(c.Command) == 0 {
		return errors.New("session: config missing command")
	}
	return nil
}

// Runner starts and supervises sessions keyed by ID.
type Runner struct {
	log      logging.Logger
	clock    Clock
	onResult func(Result)

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRunner returns a Runner. A nil logger falls back to the default
// slog logger and a nil clock to the wall clock. onResult, when
// non-nil, receives a Result for every session that reaches a terminal
// status.
func NewRunner(log logging.Logger, clock Clock, onResult func(Result)) *Runner {
	if log == nil {
		log = logging.New(nil)
	}
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &Runner{
		log:      log,
		clock:    clock,
		onResult: onResult,
		sessions: make(map[string]*Session),
	}
}

// Start launches the configured command and begins monitoring it. An
// existing session with the same ID is stopped first.
func (r *Runner) Start(cfg Config) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if _, ok := r.Get(cfg.ID); ok {
		r.log.Warn(context.Background(), "session already exists, stopping previous", "session_id", cfg.ID)
		if err := r.Stop(cfg.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("session: stop previous %q: %w", cfg.ID, err)
		}
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	cmd.Env = append(os.Environ(), cfg.Env...)

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("session: output pipe: %w", err)
	}
	cmd.Stdout = outW
	cmd.Stderr = outW

	stdin, err := cmd.StdinPipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("session: stdin pipe: %w", err)
	}

	interceptor := cfg.Interceptor
	if interceptor == nil {
		interceptor = passthrough{}
	}
	notice := cfg.SilenceNotice
	if notice == "" {
		notice = defaultSilenceNotice
	}

	s := &Session{
		ID:              cfg.ID,
		Kind:            cfg.Kind,
		Target:          cfg.Target,
		log:             r.log.With("session_id", cfg.ID),
		clock:           r.clock,
		cmd:             cmd,
		out:             outR,
		stdin:           stdin,
		interceptor:     interceptor,
		silenceAfter:    cfg.SilenceAfter,
		silenceNotice:   notice,
		silenceReminder: cfg.SilenceReminder,
		onResult:        r.onResult,
		done:            make(chan struct{}),
		status:          StatusStarting,
	}

	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		stdin.Close()
		return nil, fmt.Errorf("session: start %q: %w", cfg.Command[0], err)
	}
	// The child holds its own copy of the write end.
	outW.Close()

	now := r.clock.Now()
	s.startedAt = now
	s.lastOutput = now

	r.mu.Lock()
	r.sessions[cfg.ID] = s
	r.mu.Unlock()

	if cfg.Banner != "" {
		s.publish(Item{Kind: ItemLine, Text: cfg.Banner})
	}
	go s.monitor()
	if s.silenceAfter > 0 {
		go s.watch()
	}
	s.log.Info(context.Background(), "session started",
		"kind", cfg.Kind, "command", strings.Join(cfg.Command, " "))
	return s, nil
}

// Get returns the session for id.
func (r *Runner) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// SendInput writes data to the process stdin of the named session.
// Empty input sends a bare newline, which is what the "press enter"
// flows expect.
func (r *Runner) SendInput(id, data string) error {
	s, ok := r.Get(id)
	if !ok {
		return ErrNotFound
	}
	return s.sendInput(data)
}

// Stop cancels a session: SIGTERM first, SIGKILL after a grace period.
// The session is removed from the runner once its monitor has recorded
// the final status.
func (r *Runner) Stop(id string) error {
	s, ok := r.Get(id)
	if !ok {
		return ErrNotFound
	}
	ctx := context.Background()

	s.mu.Lock()
	s.cancelled = true
	running := !s.status.Terminal()
	s.mu.Unlock()

	if running {
		s.log.Info(ctx, "terminating session process")
		if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			s.log.Warn(ctx, "terminate failed", "error", err)
		}
		select {
		case <-s.done:
		case <-time.After(termGrace):
			s.log.Warn(ctx, "session ignored SIGTERM, killing")
			if err := s.cmd.Process.Kill(); err != nil {
				s.log.Warn(ctx, "kill failed", "error", err)
			}
			select {
			case <-s.done:
			case <-time.After(killGrace):
				s.log.Error(ctx, "session process did not exit after SIGKILL")
			}
		}
	} else {
		<-s.done
	}

	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
	s.log.Info(ctx, "session stopped", "status", string(s.Status()))
	return nil
}

// Shutdown stops every active session so child processes do not
// outlive the daemon.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		if err := r.Stop(id); err != nil && !errors.Is(err, ErrNotFound) {
			r.log.Warn(context.Background(), "session stop during shutdown failed",
				"session_id", id, "error", err)
		}
	}
}

// Session is one supervised process.
type Session struct {
	// ID keys the session within its Runner.
	ID string

	// Kind is the label used in published status lines.
	Kind string

	// Target names what the session operates on.
	Target string

	log   logging.Logger
	clock Clock

	cmd   *exec.Cmd
	out   *os.File
	stdin io.WriteCloser

	interceptor     Interceptor
	silenceAfter    time.Duration
	silenceNotice   string
	silenceReminder string
	onResult        func(Result)

	done chan struct{}

	mu          sync.Mutex
	status      Status
	waiting     bool
	cancelled   bool
	silenceSeen bool
	lastOutput  time.Time
	lastNudge   time.Time
	startedAt   time.Time
	queue       []string
	scrollback  []Item
	latestTable string
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Running reports whether the process has not yet finished.
func (s *Session) Running() bool {
	return !s.Status().Terminal()
}

// WaitingForInput reports whether the process appears blocked on
// operator input. The flag clears when input is sent.
func (s *Session) WaitingForInput() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting
}

// StartedAt returns when the process was launched.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Done is closed once the monitor has recorded the final status.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// NextOutput pops the oldest queued output line.
func (s *Session) NextOutput() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return "", false
	}
	line := s.queue[0]
	s.queue = s.queue[1:]
	return line, true
}

// DrainOutput pops every queued output line.
func (s *Session) DrainOutput() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	out := s.queue
	s.queue = nil
	return out
}

// Scrollback returns a copy of the retained output history, tables
// included.
func (s *Session) Scrollback() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.scrollback...)
}

// LatestTable returns the most recent telemetry table.
func (s *Session) LatestTable() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestTable, s.latestTable != ""
}

func (s *Session) sendInput(data string) error {
	if data == "" {
		data = "\n"
	}
	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.waiting = false
	s.interceptor.InputSent()
	s.mu.Unlock()

	if _, err := io.WriteString(s.stdin, data); err != nil {
		return fmt.Errorf("session: write input: %w", err)
	}
	return nil
}

func (s *Session) publish(it Item) {
	s.mu.Lock()
	s.publishLocked(it)
	s.mu.Unlock()
}

func (s *Session) publishLocked(it Item) {
	if it.Kind == ItemTable {
		s.latestTable = it.Text
		// A fresh table supersedes any earlier one in the scrollback.
		n := 0
		for _, old := range s.scrollback {
			if old.Kind != ItemTable {
				s.scrollback[n] = old
				n++
			}
		}
		s.scrollback = append(s.scrollback[:n], it)
		return
	}
	if len(s.queue) >= maxQueue {
		s.queue = s.queue[1:]
	}
	s.queue = append(s.queue, it.Text)
	s.scrollback = append(s.scrollback, it)
	if len(s.scrollback) > maxScrollback {
		s.scrollback = append([]Item(nil), s.scrollback[len(s.scrollback)-maxScrollback:]...)
	}
}

func (s *Session) handleLine(raw string) {
	clean := CleanANSI(raw)
	if clean == "" {
		return
	}
	s.log.Debug(context.Background(), "session output", "line", clean)

	s.mu.Lock()
	items, waiting := s.interceptor.Line(raw, clean)
	s.lastOutput = s.clock.Now()
	s.silenceSeen = false
	if waiting {
		s.waiting = true
	}
	for _, it := range items {
		s.publishLocked(it)
	}
	s.mu.Unlock()
}

// monitor consumes process output line by line, waits for the process
// to exit, and records the final status.
func (s *Session) monitor() {
	ctx := context.Background()

	s.mu.Lock()
	s.status = StatusRunning
	s.mu.Unlock()
	s.log.Info(ctx, "monitoring session process", "pid", s.cmd.Process.Pid)

	sc := bufio.NewScanner(s.out)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		s.handleLine(line)
	}
	if err := sc.Err(); err != nil {
		s.log.Warn(ctx, "session output read failed", "error", err)
	}
	s.out.Close()

	err := s.cmd.Wait()
	s.stdin.Close()
	code := 0
	if err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			code = exit.ExitCode()
		} else {
			s.log.Warn(ctx, "session wait failed", "error", err)
			code = -1
		}
	}

	s.mu.Lock()
	var status Status
	var final string
	switch {
	case s.cancelled:
		status = StatusCancelled
		final = s.Kind + " cancelled by user"
	case code == 0:
		status = StatusCompleted
		final = s.Kind + " completed successfully!"
	default:
		status = StatusFailed
		final = fmt.Sprintf("%s failed with exit code %d", s.Kind, code)
	}
	s.status = status
	s.waiting = false
	s.publishLocked(Item{Kind: ItemLine, Text: final})
	started := s.startedAt
	from := len(s.scrollback) - resultTail
	if from < 0 {
		from = 0
	}
	tail := make([]string, 0, len(s.scrollback)-from)
	for _, it := range s.scrollback[from:] {
		tail = append(tail, it.Text)
	}
	s.mu.Unlock()

	if status == StatusFailed {
		s.log.Error(ctx, "session process failed", "exit_code", code)
	} else {
		s.log.Info(ctx, "session process finished", "status", string(status))
	}
	if s.onResult != nil {
		s.onResult(Result{
			ID:        s.ID,
			Kind:      s.Kind,
			Target:    s.Target,
			Status:    status,
			ExitCode:  code,
			StartedAt: started,
			EndedAt:   s.clock.Now(),
			Tail:      tail,
		})
	}
	close(s.done)
}

// watch flags the session as waiting for input when the process stays
// quiet past the configured threshold. Elapsed time is measured through
// the injected clock; the ticker only paces the checks.
func (s *Session) watch() {
	ticker := time.NewTicker(watchTick)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
		s.mu.Lock()
		if s.status.Terminal() {
			s.mu.Unlock()
			return
		}
		switch {
		case !s.silenceSeen && s.clock.Since(s.lastOutput) > s.silenceAfter:
			s.silenceSeen = true
			s.waiting = true
			s.lastNudge = s.clock.Now()
			s.publishLocked(Item{Kind: ItemLine, Text: s.silenceNotice})
		case s.silenceSeen && s.silenceReminder != "" && s.clock.Since(s.lastNudge) >= s.silenceAfter:
			s.lastNudge = s.clock.Now()
			s.publishLocked(Item{Kind: ItemLine, Text: s.silenceReminder})
		}
		s.mu.Unlock()
	}
}
