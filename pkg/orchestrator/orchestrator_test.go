package orchestrator

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrazul/tpm/pkg/integrity"
	"github.com/terrazul/tpm/pkg/lockfile"
	"github.com/terrazul/tpm/pkg/manifest"
	"github.com/terrazul/tpm/pkg/registry"
)

// buildTarball constructs a minimal in-memory gzip+tar archive, mirroring
// the store package's own test fixture builder. Writing to an in-memory
// buffer cannot fail, so errors here indicate a broken fixture and panic
// rather than needing a *testing.T.
func buildTarball(files map[string]string) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		hdr := &tar.Header{Name: name, Typeflag: tar.TypeReg, Size: int64(len(body)), Mode: 0o644}
		if err := tw.WriteHeader(hdr); err != nil {
			panic(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			panic(err)
		}
	}
	if err := tw.Close(); err != nil {
		panic(err)
	}
	if err := gz.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// fakeRegistry is an in-memory registry.Client fake that also tracks how
// many times each version's tarball was actually downloaded, so cache-hit
// tests can assert a second run touches the network zero times.
type fakeRegistry struct {
	mu        sync.Mutex
	versions  map[string]map[string]registry.VersionMeta
	tarballs  map[string][]byte // "name@version" -> archive bytes
	downloads map[string]int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		versions:  map[string]map[string]registry.VersionMeta{},
		tarballs:  map[string][]byte{},
		downloads: map[string]int{},
	}
}

func (f *fakeRegistry) addVersion(name, version string, meta registry.VersionMeta, files map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.versions[name] == nil {
		f.versions[name] = map[string]registry.VersionMeta{}
	}
	data := buildTarball(files)
	f.tarballs[name+"@"+version] = data
	meta.Integrity = integrity.ComputeBytes(data)
	f.versions[name][version] = meta
}

func (f *fakeRegistry) GetPackage(ctx context.Context, name string) (*registry.PackageMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vs, ok := f.versions[name]
	if !ok {
		return nil, nil
	}
	return &registry.PackageMeta{Name: name, Versions: vs}, nil
}

func (f *fakeRegistry) GetVersions(ctx context.Context, name string) (map[string]registry.VersionMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versions[name], nil
}

func (f *fakeRegistry) GetTarballInfo(ctx context.Context, name, version string) (*registry.TarballInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta := f.versions[name][version]
	return &registry.TarballInfo{URL: name + "@" + version, Integrity: meta.Integrity}, nil
}

func (f *fakeRegistry) DownloadTarball(ctx context.Context, url string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads[url]++
	return io.NopCloser(bytes.NewReader(f.tarballs[url])), nil
}

func (f *fakeRegistry) downloadCount(name, version string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads[name+"@"+version]
}

func dep(name, r string) map[string]string { return map[string]string{name: r} }

func newTestOrchestrator(t *testing.T, client registry.Client) (*Orchestrator, string) {
	t.Helper()
	root := t.TempDir()
	o := New(root, client, filepath.Join(root, ".tz", "store"))
	o.Now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	o.CLIVersion = "test"
	return o, root
}

func manifestWithDeps(deps map[string]string) *manifest.Manifest {
	m := &manifest.Manifest{}
	for name, r := range deps {
		m.Dependencies = append(m.Dependencies, manifest.Dependency{Name: name, Range: r})
	}
	return m
}

// TestOrchestrator_BasicInstall: a plain
// install of @t/starter, which pulls in @t/base transitively, links both
// into agent_modules, and writes a lockfile.
func TestOrchestrator_BasicInstall(t *testing.T) {
	reg := newFakeRegistry()
	reg.addVersion("@t/base", "1.0.0", registry.VersionMeta{}, map[string]string{"agents.toml": "name = base\n"})
	reg.addVersion("@t/starter", "1.0.0", registry.VersionMeta{Dependencies: dep("@t/base", "^1.0.0")}, map[string]string{"agents.toml": "name = starter\n"})

	o, root := newTestOrchestrator(t, reg)
	m := manifestWithDeps(map[string]string{"@t/starter": "^1.0.0"})

	summary, err := o.Install(context.Background(), m, Mode{})
	require.NoError(t, err)
	require.Len(t, summary.Packages, 2)
	assert.Equal(t, "@t/base", summary.Packages[0].Name)
	assert.Equal(t, "1.0.0", summary.Packages[0].Version)
	assert.Equal(t, SourceRemote, summary.Packages[0].Source)
	assert.Equal(t, "@t/starter", summary.Packages[1].Name)
	assert.Equal(t, SourceRemote, summary.Packages[1].Source)

	baseBody, err := os.ReadFile(filepath.Join(root, "agent_modules", "t", "base", "agents.toml"))
	require.NoError(t, err)
	assert.Equal(t, "name = base\n", string(baseBody))

	starterBody, err := os.ReadFile(filepath.Join(root, "agent_modules", "t", "starter", "agents.toml"))
	require.NoError(t, err)
	assert.Equal(t, "name = starter\n", string(starterBody))

	lock, err := lockfile.Read(root)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, "1.0.0", lock.Packages["@t/base"].Version)
	assert.Equal(t, "1.0.0", lock.Packages["@t/starter"].Version)
	assert.NotEmpty(t, lock.Packages["@t/base"].Integrity)
}

// TestOrchestrator_CacheHit covers scenario 2: a second install with the
// store already populated must not re-download anything.
func TestOrchestrator_CacheHit(t *testing.T) {
	reg := newFakeRegistry()
	reg.addVersion("@t/base", "1.0.0", registry.VersionMeta{}, map[string]string{"agents.toml": "name = base\n"})

	o, _ := newTestOrchestrator(t, reg)
	m := manifestWithDeps(map[string]string{"@t/base": "^1.0.0"})

	_, err := o.Install(context.Background(), m, Mode{})
	require.NoError(t, err)
	assert.Equal(t, 1, reg.downloadCount("@t/base", "1.0.0"))

	summary, err := o.Install(context.Background(), m, Mode{})
	require.NoError(t, err)
	require.Len(t, summary.Packages, 1)
	assert.Equal(t, SourceCache, summary.Packages[0].Source)
	assert.Equal(t, 1, reg.downloadCount("@t/base", "1.0.0"), "a cache hit must not re-download the tarball")
}

// TestOrchestrator_YankedRejection covers scenario 3: a package whose only
// published version is yanked must fail resolution outright, with no
// lockfile pin to permit it.
func TestOrchestrator_YankedRejection(t *testing.T) {
	reg := newFakeRegistry()
	reg.addVersion("@t/extra", "1.0.0", registry.VersionMeta{Yanked: true}, map[string]string{"agents.toml": "name = extra\n"})

	o, _ := newTestOrchestrator(t, reg)
	m := manifestWithDeps(map[string]string{"@t/extra": "^1.0.0"})

	_, err := o.Install(context.Background(), m, Mode{})
	require.Error(t, err)
}

// TestOrchestrator_ConflictDiagnostic covers scenario 4: two roots require
// incompatible ranges of the same transitive package, and the failure must
// name the implicated package.
func TestOrchestrator_ConflictDiagnostic(t *testing.T) {
	reg := newFakeRegistry()
	reg.addVersion("@t/base", "1.0.0", registry.VersionMeta{}, map[string]string{"agents.toml": "name = base\n"})
	reg.addVersion("@t/starter", "1.0.0", registry.VersionMeta{Dependencies: dep("@t/base", "^2.0.0")}, map[string]string{"agents.toml": "name = starter\n"})

	o, _ := newTestOrchestrator(t, reg)
	m := manifestWithDeps(map[string]string{"@t/starter": "^1.0.0", "@t/base": "^1.0.0"})

	_, err := o.Install(context.Background(), m, Mode{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "@t/base")
}

// TestOrchestrator_UpdateDryRun covers scenario 5: update --dry-run must
// report the plan without touching agent_modules or the lockfile.
func TestOrchestrator_UpdateDryRun(t *testing.T) {
	reg := newFakeRegistry()
	reg.addVersion("@t/base", "1.0.0", registry.VersionMeta{}, map[string]string{"agents.toml": "v1\n"})

	o, root := newTestOrchestrator(t, reg)
	m := manifestWithDeps(map[string]string{"@t/base": "^1.0.0"})
	_, err := o.Install(context.Background(), m, Mode{})
	require.NoError(t, err)

	reg.addVersion("@t/base", "1.1.0", registry.VersionMeta{}, map[string]string{"agents.toml": "v1.1\n"})

	lockBefore, err := os.ReadFile(filepath.Join(root, lockfile.FileName))
	require.NoError(t, err)

	summary, plan, err := o.Update(context.Background(), m, Mode{}, true)
	require.NoError(t, err)
	assert.Nil(t, summary)
	require.NotNil(t, plan)
	require.Len(t, plan.Diff, 1)
	assert.Equal(t, "@t/base", plan.Diff[0].Name)
	assert.Equal(t, "1.0.0", plan.Diff[0].Old)
	assert.Equal(t, "1.1.0", plan.Diff[0].New)

	_, err = os.Stat(filepath.Join(root, "agent_modules.new"))
	assert.True(t, os.IsNotExist(err), "dry-run update must not create a staging tree")

	lockAfter, err := os.ReadFile(filepath.Join(root, lockfile.FileName))
	require.NoError(t, err)
	assert.Equal(t, lockBefore, lockAfter, "dry-run update must not rewrite the lockfile")

	body, err := os.ReadFile(filepath.Join(root, "agent_modules", "t", "base", "agents.toml"))
	require.NoError(t, err)
	assert.Equal(t, "v1\n", string(body), "dry-run update must not relink agent_modules")
}

// TestOrchestrator_AtomicUpdate covers scenario 6: a real update swaps
// agent_modules in place, leaving no .new or .old directory behind.
func TestOrchestrator_AtomicUpdate(t *testing.T) {
	reg := newFakeRegistry()
	reg.addVersion("@t/base", "1.0.0", registry.VersionMeta{}, map[string]string{"agents.toml": "v1\n"})

	o, root := newTestOrchestrator(t, reg)
	m := manifestWithDeps(map[string]string{"@t/base": "^1.0.0"})
	_, err := o.Install(context.Background(), m, Mode{})
	require.NoError(t, err)

	reg.addVersion("@t/base", "1.1.0", registry.VersionMeta{}, map[string]string{"agents.toml": "v1.1\n"})

	summary, plan, err := o.Update(context.Background(), m, Mode{}, false)
	require.NoError(t, err)
	assert.Nil(t, plan)
	require.Len(t, summary.Packages, 1)
	assert.Equal(t, "1.1.0", summary.Packages[0].Version)

	body, err := os.ReadFile(filepath.Join(root, "agent_modules", "t", "base", "agents.toml"))
	require.NoError(t, err)
	assert.Equal(t, "v1.1\n", string(body))

	_, err = os.Stat(filepath.Join(root, "agent_modules.new"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "agent_modules.old"))
	assert.True(t, os.IsNotExist(err))

	lock, err := lockfile.Read(root)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", lock.Packages["@t/base"].Version)
}

// TestOrchestrator_UpdateFailureLeavesTreeIntact exercises the failure arm
// of scenario 6: when the new manifest cannot be resolved at all, the
// previous agent_modules tree and lockfile must remain exactly as they
// were.
func TestOrchestrator_UpdateFailureLeavesTreeIntact(t *testing.T) {
	reg := newFakeRegistry()
	reg.addVersion("@t/base", "1.0.0", registry.VersionMeta{}, map[string]string{"agents.toml": "v1\n"})

	o, root := newTestOrchestrator(t, reg)
	m := manifestWithDeps(map[string]string{"@t/base": "^1.0.0"})
	_, err := o.Install(context.Background(), m, Mode{})
	require.NoError(t, err)

	lockBefore, err := os.ReadFile(filepath.Join(root, lockfile.FileName))
	require.NoError(t, err)

	broken := manifestWithDeps(map[string]string{"@t/base": "^1.0.0", "@t/missing": "^1.0.0"})
	_, _, err = o.Update(context.Background(), broken, Mode{}, false)
	require.Error(t, err)

	lockAfter, err := os.ReadFile(filepath.Join(root, lockfile.FileName))
	require.NoError(t, err)
	assert.Equal(t, lockBefore, lockAfter)

	body, err := os.ReadFile(filepath.Join(root, "agent_modules", "t", "base", "agents.toml"))
	require.NoError(t, err)
	assert.Equal(t, "v1\n", string(body))

	_, err = os.Stat(filepath.Join(root, "agent_modules.new"))
	assert.True(t, os.IsNotExist(err), "a failed update must not leave a staging tree behind")
}

// TestOrchestrator_OfflineInstall covers offline mode: resolution comes
// entirely from the lockfile and the store is never queried over the
// network.
func TestOrchestrator_OfflineInstall(t *testing.T) {
	reg := newFakeRegistry()
	reg.addVersion("@t/base", "1.0.0", registry.VersionMeta{}, map[string]string{"agents.toml": "v1\n"})

	o, root := newTestOrchestrator(t, reg)
	m := manifestWithDeps(map[string]string{"@t/base": "^1.0.0"})
	_, err := o.Install(context.Background(), m, Mode{})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(root, "agent_modules")))

	downloadsBefore := reg.downloadCount("@t/base", "1.0.0")
	summary, err := o.Install(context.Background(), m, Mode{Offline: true})
	require.NoError(t, err)
	require.Len(t, summary.Packages, 1)
	assert.Equal(t, SourceOffline, summary.Packages[0].Source)
	assert.Equal(t, downloadsBefore, reg.downloadCount("@t/base", "1.0.0"))

	body, err := os.ReadFile(filepath.Join(root, "agent_modules", "t", "base", "agents.toml"))
	require.NoError(t, err, "offline install must relink agent_modules from the store")
	assert.Equal(t, "v1\n", string(body))
}

// TestOrchestrator_OfflineRejectsEmptyProvenance: an offline install
// against a lockfile entry with an empty Integrity field
// must fail before any file mutation rather than being treated as
// usable.
func TestOrchestrator_OfflineRejectsEmptyProvenance(t *testing.T) {
	reg := newFakeRegistry()
	reg.addVersion("@t/base", "1.0.0", registry.VersionMeta{}, map[string]string{"agents.toml": "v1\n"})

	o, root := newTestOrchestrator(t, reg)
	m := manifestWithDeps(map[string]string{"@t/base": "^1.0.0"})
	_, err := o.Install(context.Background(), m, Mode{})
	require.NoError(t, err)

	lock, err := lockfile.Read(root)
	require.NoError(t, err)
	entry := lock.Packages["@t/base"]
	entry.Integrity = ""
	lock.Packages["@t/base"] = entry
	require.NoError(t, lockfile.WriteAtomic(lock, root))

	_, err = o.Install(context.Background(), m, Mode{Offline: true})
	require.Error(t, err)

	body, err := os.ReadFile(filepath.Join(root, "agent_modules", "t", "base", "agents.toml"))
	require.NoError(t, err)
	assert.Equal(t, "v1\n", string(body), "an offline failure must not mutate agent_modules")
}

// TestOrchestrator_OfflineIgnoresOrphanedLockEntries covers resolveOffline
// walking only the closure reachable from roots: a lock entry for a
// dependency that was dropped from the manifest while offline, left with
// an incomplete (empty-Integrity) provenance, must not block the offline
// install, and must not survive the subsequent prune.
func TestOrchestrator_OfflineIgnoresOrphanedLockEntries(t *testing.T) {
	reg := newFakeRegistry()
	reg.addVersion("@t/base", "1.0.0", registry.VersionMeta{}, map[string]string{"agents.toml": "v1\n"})
	reg.addVersion("@t/extra", "1.0.0", registry.VersionMeta{}, map[string]string{"agents.toml": "extra\n"})

	o, root := newTestOrchestrator(t, reg)
	full := manifestWithDeps(map[string]string{"@t/base": "^1.0.0", "@t/extra": "^1.0.0"})
	_, err := o.Install(context.Background(), full, Mode{})
	require.NoError(t, err)

	lock, err := lockfile.Read(root)
	require.NoError(t, err)
	orphan := lock.Packages["@t/extra"]
	orphan.Integrity = ""
	lock.Packages["@t/extra"] = orphan
	require.NoError(t, lockfile.WriteAtomic(lock, root))

	// @t/extra dropped from the manifest while offline; its stale,
	// now-incomplete lock entry must be ignored rather than block the
	// install.
	dropped := manifestWithDeps(map[string]string{"@t/base": "^1.0.0"})
	summary, err := o.Install(context.Background(), dropped, Mode{Offline: true})
	require.NoError(t, err)
	require.Len(t, summary.Packages, 1)
	assert.Equal(t, "@t/base", summary.Packages[0].Name)

	after, err := lockfile.Read(root)
	require.NoError(t, err)
	_, stillPresent := after.Packages["@t/extra"]
	assert.False(t, stillPresent, "orphaned lock entry must be pruned out of the closure-only offline resolution")
}

// TestOrchestrator_CacheHitRefetchesOnEmptyProvenance covers the
// non-offline counterpart: a store-extracted package whose lockfile
// entry lost its Resolved/Integrity fields must not be treated as a
// cache hit.
func TestOrchestrator_CacheHitRefetchesOnEmptyProvenance(t *testing.T) {
	reg := newFakeRegistry()
	reg.addVersion("@t/base", "1.0.0", registry.VersionMeta{}, map[string]string{"agents.toml": "v1\n"})

	o, root := newTestOrchestrator(t, reg)
	m := manifestWithDeps(map[string]string{"@t/base": "^1.0.0"})
	_, err := o.Install(context.Background(), m, Mode{})
	require.NoError(t, err)
	assert.Equal(t, 1, reg.downloadCount("@t/base", "1.0.0"))

	lock, err := lockfile.Read(root)
	require.NoError(t, err)
	entry := lock.Packages["@t/base"]
	entry.Resolved = ""
	entry.Integrity = ""
	lock.Packages["@t/base"] = entry
	require.NoError(t, lockfile.WriteAtomic(lock, root))

	summary, err := o.Install(context.Background(), m, Mode{})
	require.NoError(t, err)
	require.Len(t, summary.Packages, 1)
	assert.Equal(t, SourceRemote, summary.Packages[0].Source)
	assert.Equal(t, 2, reg.downloadCount("@t/base", "1.0.0"), "an empty-provenance lock entry must not be trusted as a cache hit")

	relocked, err := lockfile.Read(root)
	require.NoError(t, err)
	assert.NotEmpty(t, relocked.Packages["@t/base"].Integrity)
	assert.NotEmpty(t, relocked.Packages["@t/base"].Resolved)
}

// TestOrchestrator_FrozenLockfileRejectsDrift covers --frozen-lockfile:
// a manifest change that would alter the resolution must fail rather than
// silently relock.
func TestOrchestrator_FrozenLockfileRejectsDrift(t *testing.T) {
	reg := newFakeRegistry()
	reg.addVersion("@t/base", "1.0.0", registry.VersionMeta{}, map[string]string{"agents.toml": "v1\n"})
	reg.addVersion("@t/base", "1.1.0", registry.VersionMeta{}, map[string]string{"agents.toml": "v1.1\n"})

	o, _ := newTestOrchestrator(t, reg)
	m := manifestWithDeps(map[string]string{"@t/base": "~1.0.0"})
	_, err := o.Install(context.Background(), m, Mode{})
	require.NoError(t, err)

	broken := manifestWithDeps(map[string]string{"@t/base": "^1.1.0"})
	_, err = o.Install(context.Background(), broken, Mode{FrozenLockfile: true})
	require.Error(t, err)
}

// TestOrchestrator_LocalPathDependency: a "./path"
// dependency spec bypasses the resolver entirely, links straight to the
// target directory, and is never recorded in the lockfile.
func TestOrchestrator_LocalPathDependency(t *testing.T) {
	reg := newFakeRegistry()
	o, root := newTestOrchestrator(t, reg)

	localDir := filepath.Join(root, "local-pkg")
	require.NoError(t, os.MkdirAll(localDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(localDir, "agents.toml"), []byte("[package]\nname = \"@me/local\"\n"), 0o644))

	m := manifestWithDeps(map[string]string{"@me/local": "./local-pkg"})

	summary, err := o.Install(context.Background(), m, Mode{})
	require.NoError(t, err)
	require.Len(t, summary.Packages, 1)
	assert.Equal(t, "@me/local", summary.Packages[0].Name)
	assert.Equal(t, SourceLocal, summary.Packages[0].Source)

	linked, err := os.Stat(filepath.Join(root, "agent_modules", "me", "local"))
	require.NoError(t, err)
	assert.True(t, linked.IsDir())

	lock, err := lockfile.Read(root)
	require.NoError(t, err)
	require.NotNil(t, lock)
	_, recorded := lock.Packages["@me/local"]
	assert.False(t, recorded, "a local-path dependency must never be recorded in the lockfile")
}
