// Package link projects a package's extracted store tree into a
// project's working directory, preferring a symlink and falling back
// through a Windows junction to a recursive copy when a symlink cannot
// be created.
package link

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/terrazul/tpm/internal/winjunction"
	"github.com/terrazul/tpm/pkg/tzerr"
)

// Strategy names the mechanism Link actually used.
type Strategy string

const (
	StrategyLinked   Strategy = "linked"
	StrategyJunction Strategy = "junction"
	StrategyCopied   Strategy = "copied"
)

// Result reports what Link did.
type Result struct {
	Strategy Strategy
	Path     string
}

// symlinkFunc is os.Symlink by default; tests override it to exercise
// the junction/copy fallback path on platforms where symlinks always
// succeed.
var symlinkFunc = os.Symlink

// Link makes linkPath resolve to storePath's content, by whatever
// mechanism the platform and filesystem permit. root bounds where
// linkPath is allowed to live: its parent directory must resolve
// inside root, or Link refuses with tzerr.SecurityViolation rather
// than remove or create something outside the project tree.
func Link(root, storePath, linkPath string) (Result, error) {
	if err := guardWithinRoot(root, linkPath); err != nil {
		return Result{}, err
	}

	if info, err := os.Lstat(linkPath); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if target, err := os.Readlink(linkPath); err == nil {
				if samePath(target, storePath, filepath.Dir(linkPath)) {
					return Result{Strategy: StrategyLinked, Path: linkPath}, nil
				}
			}
		}
		if err := os.RemoveAll(linkPath); err != nil {
			return Result{}, tzerr.StorageErr(err, linkPath)
		}
	} else if !os.IsNotExist(err) {
		return Result{}, tzerr.StorageErr(err, linkPath)
	}

	if err := os.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
		return Result{}, tzerr.StorageErr(err, filepath.Dir(linkPath))
	}

	if err := symlinkFunc(storePath, linkPath); err == nil {
		return Result{Strategy: StrategyLinked, Path: linkPath}, nil
	}

	if err := winjunction.Create(storePath, linkPath); err == nil {
		return Result{Strategy: StrategyJunction, Path: linkPath}, nil
	}
	os.RemoveAll(linkPath)

	if err := copyTree(storePath, linkPath); err != nil {
		return Result{}, err
	}
	return Result{Strategy: StrategyCopied, Path: linkPath}, nil
}

// guardWithinRoot rejects any linkPath whose parent directory does not
// resolve inside root, so a malicious profile name (e.g. "../../etc")
// cannot make Link remove or overwrite something outside the project.
func guardWithinRoot(root, linkPath string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return tzerr.StorageErr(err, root)
	}
	parent := filepath.Dir(linkPath)
	absParent, err := filepath.Abs(parent)
	if err != nil {
		return tzerr.StorageErr(err, parent)
	}
	rel, err := filepath.Rel(absRoot, absParent)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return tzerr.SecurityViolationErr("link target escapes the project root", linkPath)
	}
	return nil
}

// samePath reports whether a symlink's raw target (which may be
// relative to linkDir) resolves to the same place as storePath.
func samePath(target, storePath, linkDir string) bool {
	if filepath.Clean(target) == filepath.Clean(storePath) {
		return true
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(linkDir, target)
	}
	absStore, err := filepath.Abs(storePath)
	if err != nil {
		return false
	}
	return filepath.Clean(target) == filepath.Clean(absStore)
}
