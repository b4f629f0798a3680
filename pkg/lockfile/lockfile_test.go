package lockfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMissingLockfileReturnsNilNil(t *testing.T) {
	dir := t.TempDir()
	lf, err := Read(dir)
	require.NoError(t, err)
	assert.Nil(t, lf)
}

func TestEncodeParseRoundTrip(t *testing.T) {
	lf := New()
	lf.Packages["@t/starter"] = LockedPackage{
		Version:   "1.0.0",
		Resolved:  "https://registry.example.com/tarball/starter-1.0.0.tgz",
		Integrity: "sha256-abc123",
		Dependencies: []Dependency{
			{Name: "@t/base", Range: "^2.0.0"},
		},
	}
	lf.Packages["@t/base"] = LockedPackage{
		Version:   "2.0.0",
		Resolved:  "https://registry.example.com/tarball/base-2.0.0.tgz",
		Integrity: "sha256-def456",
		Yanked:    false,
	}
	lf.Metadata = Metadata{GeneratedAt: "2026-01-01T00:00:00Z", CLIVersion: "0.1.0"}

	encoded := lf.Encode()
	lf2, err := Parse(encoded)
	require.NoError(t, err)

	assert.Equal(t, lf.SchemaVersion, lf2.SchemaVersion)
	assert.Equal(t, lf.Metadata, lf2.Metadata)
	require.Contains(t, lf2.Packages, "@t/starter")
	assert.Equal(t, "1.0.0", lf2.Packages["@t/starter"].Version)
	assert.Equal(t, "sha256-abc123", lf2.Packages["@t/starter"].Integrity)
	require.Len(t, lf2.Packages["@t/starter"].Dependencies, 1)
	assert.Equal(t, "@t/base", lf2.Packages["@t/starter"].Dependencies[0].Name)
}

func TestMergePreservesUnchangedEntries(t *testing.T) {
	previous := New()
	previous.Packages["@t/starter"] = LockedPackage{Version: "1.0.0"}
	previous.Packages["@t/base"] = LockedPackage{Version: "2.0.0"}

	updates := map[string]LockedPackage{
		"@t/starter": {Version: "1.2.0"},
	}

	merged := Merge(previous, updates, "2026-02-01T00:00:00Z", "0.2.0")

	assert.Equal(t, "1.2.0", merged.Packages["@t/starter"].Version)
	assert.Equal(t, "2.0.0", merged.Packages["@t/base"].Version)
	assert.Equal(t, "2026-02-01T00:00:00Z", merged.Metadata.GeneratedAt)
}

func TestPrune(t *testing.T) {
	lock := New()
	lock.Packages["@t/starter"] = LockedPackage{Version: "1.0.0"}
	lock.Packages["@t/orphan"] = LockedPackage{Version: "0.1.0"}

	pruned := Prune(lock, map[string]bool{"@t/starter": true})

	assert.Contains(t, pruned.Packages, "@t/starter")
	assert.NotContains(t, pruned.Packages, "@t/orphan")
}

func TestSortedNames(t *testing.T) {
	lock := New()
	lock.Packages["@t/zeta"] = LockedPackage{Version: "1.0.0"}
	lock.Packages["@t/alpha"] = LockedPackage{Version: "1.0.0"}

	assert.Equal(t, []string{"@t/alpha", "@t/zeta"}, lock.SortedNames())
}

func TestWriteAtomicThenRead(t *testing.T) {
	dir := t.TempDir()
	lf := New()
	lf.Packages["@t/starter"] = LockedPackage{
		Version:   "1.0.0",
		Resolved:  "https://registry.example.com/tarball/starter-1.0.0.tgz",
		Integrity: "sha256-abc123",
	}
	lf.Metadata = Metadata{GeneratedAt: "2026-01-01T00:00:00Z", CLIVersion: "0.1.0"}

	require.NoError(t, WriteAtomic(lf, dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}

	got, err := Read(dir)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "1.0.0", got.Packages["@t/starter"].Version)

	assert.FileExists(t, filepath.Join(dir, FileName))
}

func TestReadMalformedLockfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte("version = 1\nversion = 2\n"), 0o644))

	_, err := Read(dir)
	require.Error(t, err)
}
