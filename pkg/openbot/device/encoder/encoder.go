// Package encoder reads a chain of AS5600 magnetic joint encoders streamed
// over a serial port as comma-separated raw counts, one sample per line, and
// converts them to joint angles.
package encoder

import (
	"bufio"
	"context"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/carpit680/openbot-go/pkg/openbot/logging"
)

var (
	ErrNotStarted     = errors.New("encoder: not started")
	ErrAlreadyStarted = errors.New("encoder: already started")
)

// counts per revolution of the AS5600.
const counts = 4096

// pi is truncated to five digits; existing joint calibrations were recorded
// against this constant.
const pi = 3.14159

// The gripper channel carries a linear span, not an angle.
const (
	gripperIndex  = 5
	gripperRawMin = 1325
	gripperRawMax = 2808
	gripperOutMin = 0
	gripperOutMax = 25
)

// Config holds the serial parameters and per-joint calibration.
type Config struct {
	// Port is the serial device path. Defaults to /dev/ttyUSB0.
	Port string
	// Baud defaults to 115200.
	Baud int
	// Zero holds per-joint zero offsets in raw counts. Its length fixes the
	// expected number of channels per line.
	Zero []int
	// Inverted flags joints whose angle sign is flipped after conversion.
	Inverted []bool
	// Degrees selects degree output instead of radians.
	Degrees bool
}

func (cfg Config) withDefaults() Config {
	if cfg.Port == "" {
		cfg.Port = "/dev/ttyUSB0"
	}
	if cfg.Baud <= 0 {
		cfg.Baud = 115200
	}
	if cfg.Zero == nil {
		cfg.Zero = []int{2330, 845, 3450, 590, 3030, 1330}
	}
	if cfg.Inverted == nil {
		cfg.Inverted = []bool{false, false, true, true, true, false}
	}
	return cfg
}

// Encoder polls the serial stream in a background goroutine and caches the
// newest joint vector. It implements device.Sensor.
type Encoder struct {
	cfg  Config
	port io.ReadCloser
	log  logging.Logger

	mu     sync.Mutex
	latest []float64

	done    chan struct{}
	started bool
}

// New wraps an already-open serial stream. Tests feed in-memory pipes here;
// production callers usually use Open.
func New(port io.ReadCloser, cfg Config, log logging.Logger) *Encoder {
	if log == nil {
		log = logging.New(nil)
	}
	return &Encoder{cfg: cfg.withDefaults(), port: port, log: log}
}

// Open opens the configured serial port and wraps it.
func Open(cfg Config, log logging.Logger) (*Encoder, error) {
	cfg = cfg.withDefaults()
	port, err := openPort(cfg.Port, cfg.Baud)
	if err != nil {
		return nil, err
	}
	return New(port, cfg, log), nil
}

// Start launches the polling loop.
func (e *Encoder) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return ErrAlreadyStarted
	}
	e.done = make(chan struct{})
	e.started = true
	go e.loop()
	e.log.Info(ctx, "encoder started", "port", e.cfg.Port, "baud", e.cfg.Baud)
	return nil
}

// loop exits when the port read fails, which Stop triggers by closing it.
func (e *Encoder) loop() {
	defer close(e.done)
	scanner := bufio.NewScanner(e.port)
	for scanner.Scan() {
		sample, ok := e.convertLine(scanner.Text())
		if !ok {
			continue
		}
		e.mu.Lock()
		e.latest = sample
		e.mu.Unlock()
	}
}

// Latest returns a copy of the most recent joint vector, or false when no
// complete sample has arrived yet.
func (e *Encoder) Latest() ([]float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.latest == nil {
		return nil, false
	}
	return append([]float64(nil), e.latest...), true
}

// Stop halts the polling loop and closes the port.
func (e *Encoder) Stop() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return ErrNotStarted
	}
	e.started = false
	done := e.done
	e.mu.Unlock()

	err := e.port.Close()
	<-done
	return err
}

// convertLine parses one CSV sample line. Lines that do not parse as
// integers are skipped silently (partial lines are routine at startup);
// lines with the wrong channel count are logged.
func (e *Encoder) convertLine(line string) ([]float64, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}
	fields := strings.Split(line, ",")
	raws := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, false
		}
		raws = append(raws, v)
	}
	if len(raws) != len(e.cfg.Zero) {
		e.log.Warn(context.Background(), "sample with wrong channel count",
			"got", len(raws), "want", len(e.cfg.Zero))
		return nil, false
	}

	out := make([]float64, len(raws))
	for i, raw := range raws {
		var angle float64
		if e.cfg.Degrees {
			angle = RawToDegrees(raw, e.cfg.Zero[i])
		} else {
			angle = RawToRadians(raw, e.cfg.Zero[i])
		}
		if i < len(e.cfg.Inverted) && e.cfg.Inverted[i] {
			angle = -angle
		}
		out[i] = angle
	}
	if gripperIndex < len(raws) {
		out[gripperIndex] = mapRange(float64(raws[gripperIndex]),
			gripperRawMin, gripperRawMax, gripperOutMin, gripperOutMax)
	}
	return out, true
}

// RawToRadians converts a raw count (0..4095) to radians relative to the
// reference count, normalized to [-pi, pi) and rounded to five decimals.
func RawToRadians(raw, reference int) float64 {
	adjusted := wrapCounts(raw - reference + counts)
	radians := (float64(adjusted) / counts) * 2 * pi
	radians = math.Mod(radians+pi, 2*pi) - pi
	return round5(radians)
}

// RawToDegrees converts a raw count (0..4095) to degrees relative to the
// reference count, normalized to [-180, 180) and rounded to five decimals.
func RawToDegrees(raw, reference int) float64 {
	adjusted := wrapCounts(raw - reference + counts)
	degrees := (float64(adjusted) / counts) * 360.0
	degrees = math.Mod(degrees+180, 360) - 180
	return round5(degrees)
}

// mapRange linearly maps x from [inMin, inMax] to [outMin, outMax], clamped
// to the output range and rounded to five decimals.
func mapRange(x, inMin, inMax, outMin, outMax float64) float64 {
	mapped := (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
	return round5(math.Max(outMin, math.Min(outMax, mapped)))
}

// wrapCounts reduces v into [0, counts) with a non-negative result for
// negative inputs.
func wrapCounts(v int) int {
	v %= counts
	if v < 0 {
		v += counts
	}
	return v
}

func round5(x float64) float64 {
	return math.Round(x*1e5) / 1e5
}
