package lockfile

import (
	"os"
	"path/filepath"

	"github.com/terrazul/tpm/pkg/tzerr"
)

// WriteAtomic serializes lf and writes it to project_root/agents-lock.toml
// by writing a temp file in the same directory, fsyncing it, and
// renaming it over the target — so a crash or concurrent reader never
// observes a partially written lockfile.
func WriteAtomic(lf *Lockfile, projectRoot string) error {
	target := filepath.Join(projectRoot, FileName)
	data := lf.Encode()

	tmp, err := os.CreateTemp(projectRoot, ".agents-lock-*.tmp")
	if err != nil {
		return tzerr.StorageErr(err, projectRoot)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return tzerr.StorageErr(err, tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return tzerr.StorageErr(err, tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return tzerr.StorageErr(err, tmpPath)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return tzerr.StorageErr(err, tmpPath)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return tzerr.StorageErr(err, target)
	}
	return nil
}
