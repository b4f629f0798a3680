package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFixtureTarball constructs a minimal gzip+tar archive for a
// registry test fixture, mirroring pkg/orchestrator's own test helper.
func buildFixtureTarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		hdr := &tar.Header{Name: name, Typeflag: tar.TypeReg, Size: int64(len(body)), Mode: 0o644}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// newFixtureRegistry serves the registry HTTP contract for a single
// "@t/base" package at version "1.0.0", returning the server and the
// tarball bytes it serves.
func newFixtureRegistry(t *testing.T) (*httptest.Server, []byte) {
	t.Helper()
	archive := buildFixtureTarball(t, map[string]string{"agents.toml": "[package]\nname = \"@t/base\"\n"})

	mux := http.NewServeMux()
	mux.HandleFunc("/packages/v1/t/base/versions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"versions":{"1.0.0":{"dependencies":{},"yanked":false,"published_at":"2026-01-01T00:00:00Z"}}}`)
	})
	var srv *httptest.Server
	mux.HandleFunc("/packages/v1/t/base/tarball/1.0.0", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"url":"%s/tarballs/t-base-1.0.0.tgz"}`, srv.URL)
	})
	mux.HandleFunc("/tarballs/t-base-1.0.0.tgz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/gzip")
		w.Write(archive)
	})
	srv = httptest.NewServer(mux)
	return srv, archive
}

func writeTestManifest(t *testing.T, dir string) {
	t.Helper()
	content := "[package]\nname = \"@t/project\"\nversion = \"0.1.0\"\n\n[dependencies]\n\"@t/base\" = \"^1.0.0\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents.toml"), []byte(content), 0o644))
}

func resetCLIFlags(t *testing.T, dir, registryURL string) {
	t.Helper()
	dirFlag = dir
	registryFlag = registryURL
	storeDirFlag = filepath.Join(dir, ".tz-store")
	installOffline, installFrozen, installForce = false, false, false
	updateDryRun, updateOffline, updateFrozen, updateForce = false, false, false, false
	verboseCount = 0
}

// TestInstallCommand_EndToEnd drives the real cobra "install" command
// against a fixture HTTP registry and checks agent_modules and the
// lockfile land on disk, exercising the full CLI → orchestrator wiring.
func TestInstallCommand_EndToEnd(t *testing.T) {
	srv, _ := newFixtureRegistry(t)
	defer srv.Close()

	dir := t.TempDir()
	writeTestManifest(t, dir)
	resetCLIFlags(t, dir, srv.URL)

	err := executeTest("install", "--dir", dir, "--registry", srv.URL, "--store-dir", storeDirFlag)
	require.NoError(t, err)

	body, err := os.ReadFile(filepath.Join(dir, "agent_modules", "t", "base", "agents.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "@t/base")

	_, err = os.Stat(filepath.Join(dir, "agents-lock.toml"))
	require.NoError(t, err)
}

// TestInstallCommand_MissingManifest covers CONFIG_NOT_FOUND surfacing
// through the CLI's error path.
func TestInstallCommand_MissingManifest(t *testing.T) {
	dir := t.TempDir()
	resetCLIFlags(t, dir, "https://127.0.0.1:0")

	err := executeTest("install", "--dir", dir)
	require.Error(t, err)
}
