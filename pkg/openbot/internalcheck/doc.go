// Package internalcheck holds repository policy tests.
//
// The tests load the SDK source with go/packages and reject patterns the
// project bans: library packages printing to stdout, and credential values
// reaching a log call. It is not intended for external use and the API may
// change without notice.
package internalcheck
