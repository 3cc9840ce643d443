// Package armconfig persists the leader/follower arm pairing the dashboard
// operates on.
//
// The pairing lives in a single JSON file. It is loaded once at startup
// and every update is written back immediately, so a daemon restart picks
// up where the operator left off. A missing or unreadable file yields the
// empty pairing rather than an error.
package armconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/carpit680/openbot-go/pkg/openbot/logging"
)

// Arm describes one configured arm.
type Arm struct {
	Port      string `json:"port"`
	RobotType string `json:"robot_type"`
	RobotID   string `json:"robot_id"`
	Connected bool   `json:"connected"`
}

// Config is the full pairing.
type Config struct {
	Leader   Arm `json:"leader"`
	Follower Arm `json:"follower"`
}

// Update carries a partial arm update. Nil fields keep their current
// values, so a PUT with only a port changes only the port.
type Update struct {
	Port      *string `json:"port"`
	RobotType *string `json:"robot_type"`
	RobotID   *string `json:"robot_id"`
}

func (u Update) apply(a *Arm) {
	if u.Port != nil {
		a.Port = *u.Port
	}
	if u.RobotType != nil {
		a.RobotType = *u.RobotType
	}
	if u.RobotID != nil {
		a.RobotID = *u.RobotID
	}
}

// Store is the persisted pairing. Safe for concurrent use.
type Store struct {
	log  logging.Logger
	path string

	mu  sync.Mutex
	cfg Config
}

// NewStore loads the pairing at path, falling back to the empty pairing
// when the file is absent or malformed.
func NewStore(log logging.Logger, path string) *Store {
	if log == nil {
		log = logging.New(nil)
	}
	s := &Store{log: log, path: path}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn(context.Background(), "failed to read arm config, using defaults",
				"path", s.path, "error", err)
		}
		return
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		s.log.Warn(context.Background(), "failed to parse arm config, using defaults",
			"path", s.path, "error", err)
		return
	}
	s.cfg = cfg
}

// save writes the current pairing. Callers hold s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("armconfig: marshal: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("armconfig: create dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("armconfig: write: %w", err)
	}
	return nil
}

// Config returns a copy of the current pairing.
func (s *Store) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Leader returns the leader arm.
func (s *Store) Leader() Arm {
	return s.Config().Leader
}

// Follower returns the follower arm.
func (s *Store) Follower() Arm {
	return s.Config().Follower
}

// UpdateLeader applies a partial update to the leader arm and persists it.
func (s *Store) UpdateLeader(u Update) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.apply(&s.cfg.Leader)
	return s.cfg, s.save()
}

// UpdateFollower applies a partial update to the follower arm and
// persists it.
func (s *Store) UpdateFollower(u Update) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.apply(&s.cfg.Follower)
	return s.cfg, s.save()
}
