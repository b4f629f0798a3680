// Package verbose provides leveled debug logging for the kernel.
package verbose

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Level represents the verbosity level for debug output.
type Level int

const (
	// LevelQuiet suppresses all debug output.
	LevelQuiet Level = iota
	// LevelNormal shows no debug output.
	LevelNormal
	// LevelVerbose (-v) shows resolver decisions, fetch sources, and
	// summaries. It is the default level.
	LevelVerbose
	// LevelDebug (-vv) adds registry retries and unsatisfiable-resolution
	// notes.
	LevelDebug
	// LevelTrace (-vvv) adds skipped unparsable versions and skipped
	// archive entries.
	LevelTrace
)

var (
	mu         sync.RWMutex
	enabled    bool
	suppressed bool
	level      Level     = LevelVerbose
	writer     io.Writer = os.Stderr
)

// Enable turns on verbose logging and allows debug messages to be printed.
func Enable() {
	mu.Lock()
	defer mu.Unlock()
	enabled = true
}

// Disable turns off verbose logging.
func Disable() {
	mu.Lock()
	defer mu.Unlock()
	enabled = false
}

// Suppress temporarily suppresses verbose output without disabling it.
// Use this around resolver retries that would otherwise flood the log.
func Suppress() {
	mu.Lock()
	defer mu.Unlock()
	suppressed = true
}

// Unsuppress restores verbose output after a Suppress call.
func Unsuppress() {
	mu.Lock()
	defer mu.Unlock()
	suppressed = false
}

// SetLevel sets the verbosity level. 1=Verbose (-v), 2=Debug (-vv), 3+=Trace (-vvv).
func SetLevel(l int) {
	mu.Lock()
	defer mu.Unlock()
	switch {
	case l <= 1:
		level = LevelVerbose
	case l == 2:
		level = LevelDebug
	default:
		level = LevelTrace
	}
}

// GetLevel returns the current verbosity level.
func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// AtLevel returns true if verbose output is enabled, unsuppressed, and at least l.
func AtLevel(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled && !suppressed && level >= l
}

// IsDebug returns true if debug level (-vv) or higher is enabled.
func IsDebug() bool { return AtLevel(LevelDebug) }

// IsTrace returns true if trace level (-vvv) is enabled.
func IsTrace() bool { return AtLevel(LevelTrace) }

// IsEnabled returns whether verbose logging is currently enabled.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// SetWriter sets the output writer for verbose messages.
func SetWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w != nil {
		writer = w
	}
}

func getWriter() io.Writer {
	mu.RLock()
	defer mu.RUnlock()
	return writer
}

func isEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled && !suppressed
}

// Printf prints a formatted verbose message if enabled.
func Printf(format string, args ...any) {
	if isEnabled() {
		_, _ = fmt.Fprintf(getWriter(), "[DEBUG] "+format+"\n", args...)
	}
}

// Debugf prints a formatted debug message (-vv) if enabled.
func Debugf(format string, args ...any) {
	if AtLevel(LevelDebug) {
		_, _ = fmt.Fprintf(getWriter(), "[DEBUG] "+format+"\n", args...)
	}
}

// Tracef prints a formatted trace message (-vvv) if enabled.
func Tracef(format string, args ...any) {
	if AtLevel(LevelTrace) {
		_, _ = fmt.Fprintf(getWriter(), "[TRACE] "+format+"\n", args...)
	}
}

// ResolveDecision logs which version of a package the resolver committed to.
func ResolveDecision(name, version, reason string) {
	if isEnabled() {
		_, _ = fmt.Fprintf(getWriter(), "[DEBUG] resolver: selected %s@%s (%s)\n", name, version, reason)
	}
}

// FetchSource logs where a package's content came from during install.
func FetchSource(name, version, source string) {
	if isEnabled() {
		_, _ = fmt.Fprintf(getWriter(), "[DEBUG] fetch: %s@%s from %s\n", name, version, source)
	}
}

