package store

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/terrazul/tpm/pkg/integrity"
	"github.com/terrazul/tpm/pkg/tzerr"
)

// StoreArchive writes r's content to name@version's archive path,
// verifying it against want (the registry's integrity string for the
// tarball; empty skips the check) as it streams. The write lands at a temp name in the same
// directory and is renamed into place only once both the copy and the
// integrity check succeed, so a reader never observes a partial file.
//
// It returns the archive's path plus the hash computed while streaming,
// so a caller can adopt the computed hash when want was empty.
func (s *Store) StoreArchive(ctx context.Context, name, version string, r io.Reader, want string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	path, err := s.ArchivePath(name, version)
	if err != nil {
		return "", "", err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", tzerr.StorageErr(err, dir)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*.tgz")
	if err != nil {
		return "", "", tzerr.StorageErr(err, dir)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	hashing := integrity.NewHashingReader(r)
	if _, err := io.Copy(tmp, hashing); err != nil {
		return "", "", tzerr.StorageErr(err, tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		return "", "", tzerr.StorageErr(err, tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return "", "", tzerr.StorageErr(err, tmpPath)
	}

	got := hashing.Sum()
	if want != "" && got != want {
		return "", "", tzerr.IntegrityMismatchErr(name, version, want, got)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return "", "", tzerr.StorageErr(err, path)
	}
	cleanup = false
	return path, got, nil
}
