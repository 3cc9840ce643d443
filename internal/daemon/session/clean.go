package session

import (
	"regexp"
	"strings"
)

var (
	// ansiEscape matches two-byte escapes and CSI control sequences.
	ansiEscape = regexp.MustCompile(`\x1B(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)

	// blankRuns collapses the runs of blank lines left behind once the
	// escape sequences are gone.
	blankRuns = regexp.MustCompile(`\n\s*\n`)

	// leftovers are cursor-control fragments that survive when a
	// process emits the CSI introducer and its payload in separate
	// writes.
	leftovers = strings.NewReplacer("[8A", "", "[K", "", "[2K", "")
)

// CleanANSI strips ANSI escape sequences, carriage returns, and stray
// cursor-control fragments from process output, then collapses blank
// lines and trims surrounding whitespace.
func CleanANSI(text string) string {
	cleaned := ansiEscape.ReplaceAllString(text, "")
	cleaned = strings.ReplaceAll(cleaned, "\r", "")
	cleaned = leftovers.Replace(cleaned)
	cleaned = blankRuns.ReplaceAllString(cleaned, "\n")
	return strings.TrimSpace(cleaned)
}
