// Package daemon assembles the openbot dashboard daemon: session runner,
// robot tooling services, stores, and the HTTP API, built from one
// Config and run until the context ends.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carpit680/openbot-go/internal/config"
	"github.com/carpit680/openbot-go/internal/daemon/api"
	"github.com/carpit680/openbot-go/internal/daemon/armconfig"
	"github.com/carpit680/openbot-go/internal/daemon/calfiles"
	"github.com/carpit680/openbot-go/internal/daemon/envstore"
	"github.com/carpit680/openbot-go/internal/daemon/history"
	"github.com/carpit680/openbot-go/internal/daemon/hub"
	"github.com/carpit680/openbot-go/internal/daemon/ports"
	"github.com/carpit680/openbot-go/internal/daemon/services"
	"github.com/carpit680/openbot-go/internal/daemon/session"
	"github.com/carpit680/openbot-go/internal/daemon/training"
	"github.com/carpit680/openbot-go/pkg/openbot/device/camera"
	"github.com/carpit680/openbot-go/pkg/openbot/logging"
)

const shutdownTimeout = 5 * time.Second

// Daemon owns the daemon components and the HTTP server fronting them.
type Daemon struct {
	log    logging.Logger
	cfg    *config.Config
	hist   *history.Store
	runner *session.Runner
	cal    *calfiles.Index
	server *http.Server

	mu   sync.Mutex
	addr string
}

// New builds the daemon from cfg. Nil log binds slog.Default, nil cfg
// selects the defaults.
func New(log logging.Logger, cfg *config.Config) (*Daemon, error) {
	if log == nil {
		log = logging.New(nil)
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	for _, dir := range []string{filepath.Dir(cfg.Storage.HistoryDB), filepath.Dir(cfg.Storage.ArmConfig)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	hist, err := history.Open(log, cfg.Storage.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	runner := session.NewRunner(log, nil, hist.Recorder())

	calIndex, err := calfiles.NewIndex(log, cfg.Storage.CalibrationDir, 0)
	if err != nil {
		_ = hist.Close()
		return nil, fmt.Errorf("failed to create calibration index: %w", err)
	}

	hubClient, err := hub.NewClient(log, cfg.Hub.BaseURL, cfg.Hub.ParsedTimeout())
	if err != nil {
		calIndex.Stop()
		_ = hist.Close()
		return nil, fmt.Errorf("failed to build hub client: %w", err)
	}

	env := envstore.New(log)
	python := cfg.Python.Interpreter
	comps := api.Components{
		Runner:      runner,
		Calibration: services.NewCalibration(runner, python, env),
		Teleop:      services.NewTeleoperation(runner, python),
		MotorSetup:  services.NewMotorSetup(runner, python),
		Recording:   services.NewRecording(runner, python, env),
		Replay:      services.NewReplay(runner, python, env),
		Training:    training.New(log, python, nil),
		Env:         env,
		Arms:        armconfig.NewStore(log, cfg.Storage.ArmConfig),
		CalFiles:    calIndex,
		Ports:       ports.NewScanner(""),
		History:     hist,
		Hub:         hubClient,
		Camera: camera.Config{
			Width:     cfg.Camera.Width,
			Height:    cfg.Camera.Height,
			FrameRate: cfg.Camera.FrameRate,
		},
		MaxScan: cfg.Camera.MaxScanIndex,
		// Synthetic frames until a V4L2 Source implementation lands.
		OpenSource: func(_ int, c camera.Config) (camera.Source, error) {
			return camera.NewTestPattern(c.Width, c.Height), nil
		},
	}

	srv := api.NewServer(log, comps, cfg.Server.AllowedOrigins)
	return &Daemon{
		log:    log,
		cfg:    cfg,
		hist:   hist,
		runner: runner,
		cal:    calIndex,
		server: &http.Server{Handler: srv.Routes()},
	}, nil
}

// Addr reports the bound listen address once Run is serving.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

// Run serves the API until ctx is cancelled, then drains connections,
// stops running sessions, and closes the stores.
func (d *Daemon) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.cfg.Server.Listen, err)
	}

	if err := d.cal.Start(ctx); err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to start calibration index: %w", err)
	}
	d.mu.Lock()
	d.addr = ln.Addr().String()
	d.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)

	// Request contexts inherit the run context so streaming handlers
	// stop when shutdown begins.
	d.server.BaseContext = func(net.Listener) context.Context { return ctx }

	g.Go(func() error {
		d.log.Info(ctx, "openbotd listening", "addr", d.Addr())
		if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		d.log.Info(context.Background(), "openbotd shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.log.Warn(context.Background(), "graceful shutdown incomplete, closing", "error", err)
			_ = d.server.Close()
		}
		return nil
	})

	err = g.Wait()

	d.runner.Shutdown()
	d.cal.Stop()
	if cerr := d.hist.Close(); cerr != nil {
		d.log.Warn(context.Background(), "failed to close history store", "error", cerr)
	}
	return err
}
