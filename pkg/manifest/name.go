package manifest

import (
	"regexp"
	"strings"

	"github.com/terrazul/tpm/pkg/tzerr"
)

var nameSegmentRe = regexp.MustCompile(`^[a-z0-9_-]+$`)

// ValidatePackageName reports whether name has the form "@owner/name"
// with owner and name each matching [a-z0-9_-]+. Two names are equal
// iff byte-equal after trimming, so callers should not case-fold.
func ValidatePackageName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed != name || name == "" {
		return tzerr.InvalidArgumentErr("package name must not have leading or trailing whitespace")
	}
	if !strings.HasPrefix(name, "@") {
		return tzerr.InvalidArgumentErr("package name must start with '@owner/'")
	}
	rest := name[1:]
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return tzerr.InvalidArgumentErr("package name must have the form @owner/name")
	}
	owner, pkg := rest[:idx], rest[idx+1:]
	if !nameSegmentRe.MatchString(owner) {
		return tzerr.InvalidArgumentErr("package owner %q must match [a-z0-9_-]+", owner)
	}
	if !nameSegmentRe.MatchString(pkg) {
		return tzerr.InvalidArgumentErr("package name %q must match [a-z0-9_-]+", pkg)
	}
	if strings.Contains(pkg, "/") {
		return tzerr.InvalidArgumentErr("package name must not contain additional '/' segments")
	}
	return nil
}

// SplitPackageName splits "@owner/name" into its owner and name parts.
// Callers should validate with ValidatePackageName first.
func SplitPackageName(name string) (owner, pkg string, ok bool) {
	if !strings.HasPrefix(name, "@") {
		return "", "", false
	}
	rest := name[1:]
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}
