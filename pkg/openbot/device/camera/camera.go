// Package camera manages a single camera device: it grabs frames from a
// Source in a background loop at a configured frame rate and caches the
// newest one for retrieval.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"golang.org/x/time/rate"

	"github.com/carpit680/openbot-go/pkg/openbot/logging"
)

var (
	ErrNotStarted     = errors.New("camera: not started")
	ErrAlreadyStarted = errors.New("camera: already started")
)

// Source abstracts the capture backend. Grab returns the next frame; it may
// block up to ctx.
type Source interface {
	Grab(ctx context.Context) (*image.RGBA, error)
	Close() error
}

// Config holds capture parameters.
type Config struct {
	Index     int
	Width     int
	Height    int
	FrameRate int
}

func (cfg Config) withDefaults() Config {
	if cfg.Width <= 0 {
		cfg.Width = 640
	}
	if cfg.Height <= 0 {
		cfg.Height = 480
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	return cfg
}

// Camera drives a Source in a background goroutine and caches the latest
// frame. It implements device.Sensor.
type Camera struct {
	cfg Config
	src Source
	log logging.Logger

	mu     sync.Mutex
	latest *image.RGBA

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New wraps src with the grab loop. Zero config fields take the defaults
// 640x480 at 30 frames per second.
func New(src Source, cfg Config, log logging.Logger) *Camera {
	if log == nil {
		log = logging.New(nil)
	}
	return &Camera{cfg: cfg.withDefaults(), src: src, log: log}
}

// Config reports the effective capture parameters.
func (c *Camera) Config() Config { return c.cfg }

// Start launches the grab loop. ctx bounds startup; the loop itself runs
// until Stop.
func (c *Camera) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return ErrAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.started = true
	go c.loop(loopCtx)
	c.log.Info(ctx, "camera started",
		"index", c.cfg.Index, "width", c.cfg.Width, "height", c.cfg.Height, "fps", c.cfg.FrameRate)
	return nil
}

func (c *Camera) loop(ctx context.Context) {
	defer close(c.done)
	lim := rate.NewLimiter(rate.Limit(c.cfg.FrameRate), 1)
	for {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		frame, err := c.src.Grab(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn(ctx, "frame grab failed", "index", c.cfg.Index, "err", err)
			continue
		}
		c.mu.Lock()
		c.latest = frame
		c.mu.Unlock()
	}
}

// Latest returns a copy of the most recent frame, or false when no frame has
// been captured yet.
func (c *Camera) Latest() (*image.RGBA, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return nil, false
	}
	return cloneRGBA(c.latest), true
}

// Stop halts the grab loop and closes the source.
func (c *Camera) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	c.started = false
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done
	return c.src.Close()
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	return &image.RGBA{
		Pix:    append([]uint8(nil), src.Pix...),
		Stride: src.Stride,
		Rect:   src.Rect,
	}
}

// DefaultMaxIndex is how many device indexes Scan probes by default.
const DefaultMaxIndex = 10

// Scan probes camera indexes [0, maxIndex) and returns those with an
// openable device. A nil probe checks for /dev/video<N>.
func Scan(maxIndex int, probe func(index int) bool) []int {
	if maxIndex <= 0 {
		maxIndex = DefaultMaxIndex
	}
	if probe == nil {
		probe = DevicePresent
	}
	var available []int
	for index := 0; index < maxIndex; index++ {
		if probe(index) {
			available = append(available, index)
		}
	}
	return available
}

// DevicePresent reports whether /dev/video<index> exists. It is the
// default Scan probe.
func DevicePresent(index int) bool {
	_, err := os.Stat(fmt.Sprintf("/dev/video%d", index))
	return err == nil
}
