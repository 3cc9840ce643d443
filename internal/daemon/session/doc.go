// Package session supervises the external command-line processes the
// dashboard daemon drives.
//
// # Lifecycle
//
// A Runner starts one Session per identifier. Each session spawns the
// configured command with merged stdout and stderr, streams its output
// through an ANSI-stripping pipeline, and tracks a status that moves
// from starting through running to one of completed, failed, or
// cancelled. Stopping a session delivers SIGTERM, escalates to SIGKILL
// after a grace period, and removes the session from the runner.
//
// # Output
//
// Output lines are cleaned with CleanANSI and published to a bounded
// per-session queue that drops the oldest entry when full. Consumers
// poll with NextOutput or DrainOutput; a capped scrollback of
// everything published stays available for inspection. An optional
// Interceptor lets the caller rewrite, suppress, or reclassify lines
// before they are published, and flag the process as waiting for
// operator input.
//
// # Clocks
//
// Silence detection measures elapsed time through a narrow Clock
// interface satisfied by both time2.DefaultClock and *time2.MockClock,
// so tests can advance time without sleeping.
package session
