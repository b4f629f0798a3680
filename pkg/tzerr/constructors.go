package tzerr

import "fmt"

// ConfigNotFoundErr reports a missing project manifest or lockfile.
func ConfigNotFoundErr(path string) *Error {
	return New(ConfigNotFound, "no manifest found at %s", path).WithContext("path", path)
}

// ConfigInvalidErr reports a manifest or lockfile that failed to parse or
// violated a structural invariant.
func ConfigInvalidErr(reason string) *Error {
	return New(ConfigInvalid, "invalid configuration: %s", reason)
}

// NetworkErr wraps a transport-level failure talking to a registry.
func NetworkErr(cause error, url string) *Error {
	return Wrap(NetworkError, cause, "").WithContext("url", url)
}

// AuthRequiredErr reports a 401 from a registry call.
func AuthRequiredErr(url string) *Error {
	return New(AuthRequired, "authentication required for %s", url).WithContext("url", url)
}

// PackageNotFoundErr reports a package name unknown to the registry.
func PackageNotFoundErr(name string) *Error {
	return New(PackageNotFound, "package not found: %s", name).WithContext("package", name)
}

// VersionNotFoundErr reports a known package with no matching exact version.
func VersionNotFoundErr(name, version string) *Error {
	return New(VersionNotFound, "%s: version %s not found", name, version).
		WithContext("package", name).WithContext("version", version)
}

// VersionConflictErr reports resolution infeasibility, naming the package
// at the center of the witness and the two incompatible ranges.
func VersionConflictErr(name, rangeA, rangeB string) *Error {
	return New(VersionConflict, "no version of %s satisfies both %q and %q", name, rangeA, rangeB).
		WithContext("package", name).WithContext("range_a", rangeA).WithContext("range_b", rangeB)
}

// IntegrityMismatchErr reports a downloaded or stored archive whose hash
// does not match its declared integrity string.
func IntegrityMismatchErr(name, version, want, got string) *Error {
	return New(IntegrityMismatchKind, "%s@%s: integrity mismatch", name, version).
		WithContext("package", name).WithContext("version", version).
		WithContext("want", want).WithContext("got", got)
}

// YankedVersionErr reports an attempt to resolve to a version the
// registry has marked yanked, outside of a lock-pinned allowance.
func YankedVersionErr(name, version string) *Error {
	return New(YankedVersion, "%s@%s has been yanked", name, version).
		WithContext("package", name).WithContext("version", version)
}

// StorageErr wraps a filesystem failure in the content store or link layer.
func StorageErr(cause error, path string) *Error {
	return Wrap(StorageError, cause, "").WithContext("path", path)
}

// SecurityViolationErr reports a path escape, symlink archive member, or
// other input that must never be acted on.
func SecurityViolationErr(reason, path string) *Error {
	return New(SecurityViolation, "security violation: %s", reason).WithContext("path", path)
}

// InvalidArgumentErr reports a caller-supplied argument that fails
// validation before any network or filesystem work begins.
func InvalidArgumentErr(format string, args ...any) *Error {
	return New(InvalidArgument, "invalid argument: %s", fmt.Sprintf(format, args...))
}

// UnsupportedOperationErr reports an operation that cannot be performed
// given the current mode or package configuration (e.g. an update
// requested in offline mode with no lock entry).
func UnsupportedOperationErr(operation, reason string) *Error {
	return New(UnsupportedOperation, "%s not supported: %s", operation, reason).
		WithContext("operation", operation)
}

// InternalErr wraps a failure that should never happen in practice and
// has no better-fitting kind.
func InternalErr(cause error, context string) *Error {
	return Wrap(Internal, cause, "").WithContext("context", context)
}
