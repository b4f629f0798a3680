package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/terrazul/tpm/pkg/link"
	"github.com/terrazul/tpm/pkg/manifest"
	"github.com/terrazul/tpm/pkg/tzerr"
)

// IsLocalPath reports whether a dependency spec names a filesystem path
// rather than a registry range: "./...", "/...", or "~/...".
func IsLocalPath(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "/") || strings.HasPrefix(spec, "~/") || spec == "."
}

// LocalPackageResult is a local-path dependency's link outcome.
type LocalPackageResult struct {
	Name       string
	SourcePath string
	StoreKey   string
}

// LinkLocal materializes a local-path dependency spec directly: it
// validates a manifest exists at the target, derives a deterministic
// store key from the target's declared name plus a hash of its
// absolute path, and links linkRoot/<name> straight to the absolute
// package directory. It is never recorded in the lockfile and always
// re-links on every run. linkRoot is normally
// ProjectRoot/agent_modules, but Update's staging run passes the
// agent_modules.new tree so a local dep is swapped atomically along
// with everything else.
func (o *Orchestrator) LinkLocal(spec, linkRoot string) (*LocalPackageResult, error) {
	target, err := expandLocalPath(o.ProjectRoot, spec)
	if err != nil {
		return nil, err
	}

	manifestPath := filepath.Join(target, manifest.FileName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, tzerr.ConfigNotFoundErr(manifestPath)
	}
	targetManifest, err := manifest.Parse(data)
	if err != nil {
		return nil, err
	}
	if targetManifest.Package.Name == "" {
		return nil, tzerr.ConfigInvalidErr("local package at " + target + " declares no [package] name")
	}

	storeKey := targetManifest.Package.Name + "@local-" + pathHash(target)

	linkPath := filepath.Join(linkRoot, filepath.FromSlash(stripScope(targetManifest.Package.Name)))
	if _, err := link.Link(o.ProjectRoot, target, linkPath); err != nil {
		return nil, err
	}

	return &LocalPackageResult{Name: targetManifest.Package.Name, SourcePath: target, StoreKey: storeKey}, nil
}

func expandLocalPath(projectRoot, spec string) (string, error) {
	path := spec
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", tzerr.StorageErr(err, path)
		}
		path = filepath.Join(home, path[2:])
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(projectRoot, path)
	}
	return filepath.Clean(path), nil
}

func pathHash(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(sum[:])[:16]
}
