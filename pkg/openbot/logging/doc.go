// Package logging provides a minimal logging facade for the openbot SDK.
//
// This package defines a Logger interface that wraps a subset of the standard
// library's log/slog functionality. The interface is intentionally small to
// allow applications to provide custom implementations for testing, redaction,
// or integration with existing logging systems.
//
// # Logger Interface
//
// The Logger interface provides context-aware logging methods:
//
//	type Logger interface {
//	    Debug(ctx context.Context, msg string, args ...any)
//	    Info(ctx context.Context, msg string, args ...any)
//	    Warn(ctx context.Context, msg string, args ...any)
//	    Error(ctx context.Context, msg string, args ...any)
//	    With(args ...any) Logger
//	}
//
// # Default Implementation
//
// The package provides a default slog-backed implementation:
//
//	import (
//	    "log/slog"
//	    "github.com/carpit680/openbot-go/pkg/openbot/logging"
//	)
//
//	// Use default logger (slog.Default())
//	logger := logging.New(nil)
//
//	// Use custom slog.Logger
//	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})
//	customLogger := logging.New(slog.New(handler))
//
// # Redaction Support
//
// The package provides utilities for redacting sensitive information:
//
//	// Mark an attribute as redacted
//	logger.Info(ctx, "credentials stored", logging.Redacted("hf_token"))
//	// Logs: hf_token="[redacted]"
//
//	// Get the redaction placeholder
//	placeholder := logging.Placeholder() // Returns "[redacted]"
//
// # Usage in SDK Code
//
// Loggers can be passed to device drivers, comm links, and the dashboard
// daemon for debugging and observability:
//
//	logger := logging.New(nil)
//	logger.Info(ctx, "camera started", "index", 0, "fps", 30)
//
//	// Log with redaction for credentials
//	logger.Debug(ctx, "hub request",
//	    logging.Redacted("token"),
//	    "author", "lerobot",
//	)
//
// # Security Considerations
//
//   - Never log Hugging Face tokens or other account credentials
//   - Use logging.Redacted() to mark sensitive attributes
//   - Consider using structured logging for better auditability
//   - Ensure log storage is secure and access-controlled
package logging
