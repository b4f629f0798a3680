package main

import (
	"os"
	"path/filepath"

	"github.com/terrazul/tpm/pkg/manifest"
	"github.com/terrazul/tpm/pkg/orchestrator"
	"github.com/terrazul/tpm/pkg/registry"
	"github.com/terrazul/tpm/pkg/tzerr"
)

// defaultStoreBase returns the content store's root under the user's
// cache directory, unless overridden by --store-dir.
func defaultStoreBase() string {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = "."
	}
	return filepath.Join(cacheDir, "tz", "store")
}

// loadManifest reads and validates the project manifest at dir.
func loadManifest(dir string) (*manifest.Manifest, error) {
	path := filepath.Join(dir, manifest.FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tzerr.ConfigNotFoundErr(path)
		}
		return nil, tzerr.StorageErr(err, path)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// newOrchestrator builds an Orchestrator rooted at dir, talking to the
// configured registry with the environment-provided token.
func newOrchestrator(dir, storeDir string) *orchestrator.Orchestrator {
	base := storeDir
	if base == "" {
		base = defaultStoreBase()
	}
	client := registry.NewHTTPClient(registryFlag, registryToken())
	o := orchestrator.New(dir, client, base)
	o.CLIVersion = Version
	return o
}
