// Package device defines the sensor and actuator contracts shared by all
// openbot hardware drivers, plus a Manager that owns a named set of devices
// and handles their collective lifecycle.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/carpit680/openbot-go/pkg/openbot/logging"
)

// Sensor is a device that continuously produces readings once started.
// Implementations expose their own typed accessor for the most recent
// reading; Latest-style accessors must return copies.
type Sensor interface {
	// Start begins background acquisition. ctx bounds startup only; the
	// acquisition loop runs until Stop.
	Start(ctx context.Context) error
	// Stop halts acquisition and releases the underlying device.
	Stop() error
}

// Actuator is a device that accepts position commands.
type Actuator interface {
	Connect(ctx context.Context) error
	Disconnect() error
	// Write sends one command vector, typically joint targets in radians.
	Write(ctx context.Context, values []float64) error
}

type entry struct {
	name     string
	sensor   Sensor
	actuator Actuator
}

func (e entry) start(ctx context.Context) error {
	if e.sensor != nil {
		return e.sensor.Start(ctx)
	}
	return e.actuator.Connect(ctx)
}

func (e entry) stop() error {
	if e.sensor != nil {
		return e.sensor.Stop()
	}
	return e.actuator.Disconnect()
}

// Manager owns a named set of devices and starts and stops them as a group.
type Manager struct {
	log logging.Logger

	mu      sync.Mutex
	entries []entry
}

// NewManager returns an empty manager. Passing a nil logger binds to
// slog.Default by way of logging.New.
func NewManager(log logging.Logger) *Manager {
	if log == nil {
		log = logging.New(nil)
	}
	return &Manager{log: log}
}

// AddSensor registers a sensor under name. Names must be unique across both
// sensors and actuators.
func (m *Manager) AddSensor(name string, s Sensor) error {
	return m.add(entry{name: name, sensor: s})
}

// AddActuator registers an actuator under name.
func (m *Manager) AddActuator(name string, a Actuator) error {
	return m.add(entry{name: name, actuator: a})
}

func (m *Manager) add(e entry) error {
	if e.name == "" {
		return errors.New("device: empty name")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.entries {
		if existing.name == e.name {
			return fmt.Errorf("device: duplicate name %q", e.name)
		}
	}
	m.entries = append(m.entries, e)
	return nil
}

// Sensor returns the named sensor.
func (m *Manager) Sensor(name string) (Sensor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.name == name && e.sensor != nil {
			return e.sensor, true
		}
	}
	return nil, false
}

// Actuator returns the named actuator.
func (m *Manager) Actuator(name string) (Actuator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.name == name && e.actuator != nil {
			return e.actuator, true
		}
	}
	return nil, false
}

// Start brings up every registered device concurrently. If any device fails,
// the ones already started are stopped in reverse registration order and the
// first error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	entries := append([]entry(nil), m.entries...)
	m.mu.Unlock()

	var (
		startedMu sync.Mutex
		started   = make(map[string]bool, len(entries))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		g.Go(func() error {
			if err := e.start(gctx); err != nil {
				return fmt.Errorf("device: start %s: %w", e.name, err)
			}
			startedMu.Lock()
			started[e.name] = true
			startedMu.Unlock()
			m.log.Debug(gctx, "device started", "name", e.name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for i := len(entries) - 1; i >= 0; i-- {
			if started[entries[i].name] {
				if stopErr := entries[i].stop(); stopErr != nil {
					m.log.Warn(ctx, "device stop during rollback failed",
						"name", entries[i].name, "err", stopErr)
				}
			}
		}
		return err
	}
	m.log.Info(ctx, "devices started", "count", len(entries))
	return nil
}

// Stop halts every registered device in reverse registration order and joins
// any errors.
func (m *Manager) Stop() error {
	m.mu.Lock()
	entries := append([]entry(nil), m.entries...)
	m.mu.Unlock()

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		if err := entries[i].stop(); err != nil {
			errs = append(errs, fmt.Errorf("device: stop %s: %w", entries[i].name, err))
		}
	}
	return errors.Join(errs...)
}
