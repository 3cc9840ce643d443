// Package config loads the openbotd daemon configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all openbotd configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Python  PythonConfig  `yaml:"python"`
	Camera  CameraConfig  `yaml:"camera"`
	Storage StorageConfig `yaml:"storage"`
	Hub     HubConfig     `yaml:"hub"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Listen is the host:port the API binds.
	Listen string `yaml:"listen"`
	// AllowedOrigins lists dashboard origins accepted for CORS.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// PythonConfig configures how robot tooling subprocesses are launched.
type PythonConfig struct {
	// Interpreter runs the lerobot CLI modules.
	Interpreter string `yaml:"interpreter"`
}

// CameraConfig holds capture defaults for dashboard video streams.
type CameraConfig struct {
	Width        int `yaml:"width"`
	Height       int `yaml:"height"`
	FrameRate    int `yaml:"frame_rate"`
	MaxScanIndex int `yaml:"max_scan_index"`
}

// StorageConfig holds filesystem and database locations.
type StorageConfig struct {
	// CalibrationDir is where the robot tooling writes calibration files.
	CalibrationDir string `yaml:"calibration_dir"`
	// HistoryDB is the SQLite file recording finished sessions.
	HistoryDB string `yaml:"history_db"`
	// ArmConfig is the JSON file holding the leader/follower arm pairing.
	ArmConfig string `yaml:"arm_config"`
}

// HubConfig configures the Hugging Face Hub client.
type HubConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// ParsedTimeout returns the request timeout, falling back to 30s when the
// configured value is missing or malformed.
func (h HubConfig) ParsedTimeout() time.Duration {
	d, err := time.ParseDuration(h.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// LoggingConfig configures daemon logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		Server: ServerConfig{
			Listen: ":8000",
			AllowedOrigins: []string{
				"http://localhost:5173", "http://127.0.0.1:5173",
				"http://localhost:3001", "http://127.0.0.1:3001",
				"http://localhost:3000", "http://127.0.0.1:3000",
			},
		},
		Python: PythonConfig{Interpreter: "python"},
		Camera: CameraConfig{Width: 640, Height: 480, FrameRate: 30, MaxScanIndex: 10},
		Storage: StorageConfig{
			CalibrationDir: filepath.Join(home, ".cache", "huggingface", "lerobot", "calibration"),
			HistoryDB:      filepath.Join(home, ".openbot", "history.db"),
			ArmConfig:      filepath.Join(home, ".openbot", "arm_config.json"),
		},
		Hub:     HubConfig{BaseURL: "https://huggingface.co/api", Timeout: "30s"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads the configuration at path on top of the defaults. A missing
// file is not an error; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OPENBOT_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("OPENBOT_PYTHON"); v != "" {
		c.Python.Interpreter = v
	}
	if v := os.Getenv("OPENBOT_CALIBRATION_DIR"); v != "" {
		c.Storage.CalibrationDir = v
	}
	if v := os.Getenv("OPENBOT_HISTORY_DB"); v != "" {
		c.Storage.HistoryDB = v
	}
	if v := os.Getenv("OPENBOT_ARM_CONFIG"); v != "" {
		c.Storage.ArmConfig = v
	}
	if v := os.Getenv("OPENBOT_HUB_URL"); v != "" {
		c.Hub.BaseURL = v
	}
	if v := os.Getenv("OPENBOT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("OPENBOT_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate rejects values the daemon cannot start with.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must not be empty")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q not one of debug/info/warn/error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q not one of text/json", c.Logging.Format)
	}
	if c.Camera.FrameRate <= 0 || c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("camera geometry and frame rate must be positive")
	}
	return nil
}
