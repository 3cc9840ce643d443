package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/carpit680/openbot-go/internal/config"
	"github.com/carpit680/openbot-go/internal/daemon"
	"github.com/carpit680/openbot-go/pkg/openbot"
	"github.com/carpit680/openbot-go/pkg/openbot/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "openbotd",
	Short: "openbotd serves the OpenBot dashboard API",
	Long: `openbotd is the robot control daemon behind the OpenBot dashboard.

It runs calibration, teleoperation, recording, replay and training
sessions through the robot tooling, tracks their history, and exposes
serial port, calibration file and camera inspection over HTTP.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard daemon",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "openbotd %s (build %s, native %s)\n",
			openbot.SDKVersion(), openbot.BuildSHA, openbot.NativeVersion())
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to the YAML configuration")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "openbotd.yaml"
	}
	return filepath.Join(home, ".openbot", "openbotd.yaml")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := buildLogger(cfg.Logging)

	d, err := daemon.New(log, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			log.Info(ctx, "received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	return d.Run(ctx)
}

func buildLogger(cfg config.LoggingConfig) logging.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return logging.New(slog.New(handler))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
