// Package tzerr defines the closed error taxonomy used throughout the
// kernel. Every failure that can surface to a caller or to the CLI is
// represented as an *Error with one of the fixed Kind values below, a
// compact message, optional structured context, and a stable exit code.
//
// Callers should prefer the per-kind constructors (IntegrityMismatchErr,
// VersionConflictErr, and so on) over constructing Error literals directly.
package tzerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind is one member of the closed set of failure categories the kernel
// can produce. New values are never added casually: every caller that
// switches on Kind must be revisited.
type Kind string

const (
	ConfigNotFound        Kind = "CONFIG_NOT_FOUND"
	ConfigInvalid         Kind = "CONFIG_INVALID"
	NetworkError          Kind = "NETWORK_ERROR"
	AuthRequired          Kind = "AUTH_REQUIRED"
	PackageNotFound       Kind = "PACKAGE_NOT_FOUND"
	VersionNotFound       Kind = "VERSION_NOT_FOUND"
	VersionConflict       Kind = "VERSION_CONFLICT"
	IntegrityMismatchKind Kind = "INTEGRITY_MISMATCH"
	YankedVersion         Kind = "YANKED_VERSION"
	StorageError          Kind = "STORAGE_ERROR"
	SecurityViolation     Kind = "SECURITY_VIOLATION"
	InvalidArgument       Kind = "INVALID_ARGUMENT"
	UnsupportedOperation  Kind = "UNSUPPORTED_OPERATION"
	Internal              Kind = "INTERNAL"
)

// Exit codes for scripting integration. 0 is reserved for success and is
// never returned by Error.ExitCode.
const (
	ExitConfig      = 10
	ExitNetwork     = 20
	ExitAuth        = 21
	ExitNotFound    = 30
	ExitConflict    = 31
	ExitIntegrity   = 40
	ExitYanked      = 41
	ExitStorage     = 50
	ExitSecurity    = 60
	ExitInvalidArg  = 70
	ExitUnsupported = 71
	ExitInternal    = 99
)

var exitCodes = map[Kind]int{
	ConfigNotFound:        ExitConfig,
	ConfigInvalid:         ExitConfig,
	NetworkError:          ExitNetwork,
	AuthRequired:          ExitAuth,
	PackageNotFound:       ExitNotFound,
	VersionNotFound:       ExitNotFound,
	VersionConflict:       ExitConflict,
	IntegrityMismatchKind: ExitIntegrity,
	YankedVersion:         ExitYanked,
	StorageError:          ExitStorage,
	SecurityViolation:     ExitSecurity,
	InvalidArgument:       ExitInvalidArg,
	UnsupportedOperation:  ExitUnsupported,
	Internal:              ExitInternal,
}

// Error is the kernel's single error type. Every function that can fail
// in a way visible to a caller returns one of these (or nil), never a
// bare fmt.Errorf.
type Error struct {
	// Kind identifies which of the fourteen failure categories this is.
	Kind Kind

	// Message is the compact, single-line, human-readable description.
	Message string

	// Context carries structured detail (package name, requested range,
	// file path, and so on). Rendered only in verbose mode.
	Context map[string]string

	// Cause is the underlying error, if any, that triggered this one.
	Cause error
}

// Error implements the error interface with the compact single-line form.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Kind)
}

// Unwrap enables errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Verbose renders the compact message followed by sorted context entries,
// one per line, for use under -v.
func (e *Error) Verbose() string {
	if len(e.Context) == 0 {
		return e.Error()
	}
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(e.Error())
	for _, k := range keys {
		fmt.Fprintf(&b, "\n  %s: %s", k, e.Context[k])
	}
	return b.String()
}

// ExitCode maps the error's Kind to its stable numeric exit code.
func (e *Error) ExitCode() int {
	if code, ok := exitCodes[e.Kind]; ok {
		return code
	}
	return ExitInternal
}

// New constructs an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error of the given kind that carries cause as its
// underlying error. If format is empty, cause's message is used verbatim.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	msg := ""
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	} else if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// WithContext returns e with the given key/value merged into its Context.
// e is mutated and returned for chaining.
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string, 2)
	}
	e.Context[key] = value
	return e
}

// As reports whether err is (or wraps) a *tzerr.Error and returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err is (or wraps) a *tzerr.Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// ExitCode extracts the exit code from err: 0 if err is nil, the error's
// own code if it is a *tzerr.Error, or ExitInternal for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if e, ok := As(err); ok {
		return e.ExitCode()
	}
	return ExitInternal
}
