// Package store implements the content-addressable archive store: one
// tarball and one extracted tree per (scope, name, version), laid out
// under a base directory as store/<scope>/<name>/<version>[.tgz].
package store

import (
	"path/filepath"

	"github.com/terrazul/tpm/pkg/manifest"
	"github.com/terrazul/tpm/pkg/tzerr"
)

const (
	defaultMaxEntrySize = 64 << 20  // 64 MiB per archive entry
	defaultMaxTotalSize = 512 << 20 // 512 MiB per extracted tree
)

// Store roots the on-disk layout at Base.
type Store struct {
	Base string

	// MaxEntrySize caps any single archive entry's decompressed size.
	// Zero means defaultMaxEntrySize.
	MaxEntrySize int64

	// MaxTotalSize caps the sum of every entry's decompressed size in one
	// archive. Zero means defaultMaxTotalSize.
	MaxTotalSize int64

	// ExecutableAllowlist names archive-relative paths (or directories,
	// matched as a prefix) that may be written with the executable bit
	// set. Empty by default: every file lands 0644.
	ExecutableAllowlist []string
}

// New returns a Store rooted at base.
func New(base string) *Store {
	return &Store{Base: base}
}

func (s *Store) maxEntrySize() int64 {
	if s.MaxEntrySize > 0 {
		return s.MaxEntrySize
	}
	return defaultMaxEntrySize
}

func (s *Store) maxTotalSize() int64 {
	if s.MaxTotalSize > 0 {
		return s.MaxTotalSize
	}
	return defaultMaxTotalSize
}

// packageDir returns store/<scope>/<name> for a "@owner/name" package.
func (s *Store) packageDir(name string) (string, error) {
	owner, pkg, ok := manifest.SplitPackageName(name)
	if !ok {
		return "", tzerr.InvalidArgumentErr("package name %q must have the form @owner/name", name)
	}
	return filepath.Join(s.Base, owner, pkg), nil
}

// ArchivePath returns the path of name@version's stored tarball.
func (s *Store) ArchivePath(name, version string) (string, error) {
	dir, err := s.packageDir(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, version+".tgz"), nil
}

// ExtractedPath returns the root of name@version's extracted tree.
func (s *Store) ExtractedPath(name, version string) (string, error) {
	dir, err := s.packageDir(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, version), nil
}

// HasExtracted reports whether name@version is already extracted.
func (s *Store) HasExtracted(name, version string) (bool, error) {
	dir, err := s.ExtractedPath(name, version)
	if err != nil {
		return false, err
	}
	return pathExists(dir)
}

// HasArchive reports whether name@version's tarball is already stored.
func (s *Store) HasArchive(name, version string) (bool, error) {
	path, err := s.ArchivePath(name, version)
	if err != nil {
		return false, err
	}
	return pathExists(path)
}
