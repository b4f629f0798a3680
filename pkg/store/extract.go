package store

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/terrazul/tpm/pkg/tzerr"
	"github.com/terrazul/tpm/pkg/verbose"
)

// Extract unpacks name@version's stored tarball into its extracted
// tree, enforcing every hard requirement a hostile archive must not be
// allowed to violate: no entry may resolve outside the destination
// root, no symlink or unvalidated hard link entries, and both a
// per-entry and a total decompressed-size cap. Extraction writes to a
// freshly named staging directory and renames it into place only on
// full success; any failure removes the staging directory.
func (s *Store) Extract(ctx context.Context, name, version string) (string, error) {
	archivePath, err := s.ArchivePath(name, version)
	if err != nil {
		return "", err
	}
	dest, err := s.ExtractedPath(name, version)
	if err != nil {
		return "", err
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return "", tzerr.StorageErr(err, archivePath)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", tzerr.StorageErr(err, archivePath)
	}
	defer gz.Close()

	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", tzerr.StorageErr(err, parent)
	}
	staging, err := os.MkdirTemp(parent, ".tmp-"+version+"-*")
	if err != nil {
		return "", tzerr.StorageErr(err, parent)
	}
	succeeded := false
	defer func() {
		if !succeeded {
			os.RemoveAll(staging)
		}
	}()

	maxEntry := s.maxEntrySize()
	maxTotal := s.maxTotalSize()
	var total int64

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", tzerr.StorageErr(err, archivePath)
		}

		target, err := s.safeJoin(staging, hdr.Name)
		if err != nil {
			return "", err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", tzerr.StorageErr(err, target)
			}
		case tar.TypeReg:
			if hdr.Size > maxEntry {
				return "", tzerr.SecurityViolationErr("archive entry exceeds the per-entry size cap", hdr.Name)
			}
			total += hdr.Size
			if total > maxTotal {
				return "", tzerr.SecurityViolationErr("archive exceeds the total decompressed size cap", hdr.Name)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return "", tzerr.StorageErr(err, target)
			}
			mode := os.FileMode(0o644)
			if hdr.Mode&0o111 != 0 && s.isExecutable(hdr.Name) {
				mode = 0o755
			}
			if err := writeRegularFile(target, io.LimitReader(tr, maxEntry+1), mode, hdr.Size); err != nil {
				return "", err
			}
		case tar.TypeSymlink:
			return "", tzerr.SecurityViolationErr("archive contains a symlink entry", hdr.Name)
		case tar.TypeLink:
			linkTarget, err := s.safeJoin(staging, hdr.Linkname)
			if err != nil {
				return "", tzerr.SecurityViolationErr("hard link entry resolves outside the extraction root", hdr.Name)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return "", tzerr.StorageErr(err, target)
			}
			if err := os.Link(linkTarget, target); err != nil {
				return "", tzerr.StorageErr(err, target)
			}
		default:
			verbose.Tracef("store: skipping unsupported archive entry type %d for %s", hdr.Typeflag, hdr.Name)
		}
	}

	if err := os.RemoveAll(dest); err != nil && !os.IsNotExist(err) {
		return "", tzerr.StorageErr(err, dest)
	}
	if err := os.Rename(staging, dest); err != nil {
		return "", tzerr.StorageErr(err, dest)
	}
	succeeded = true
	return dest, nil
}

// safeJoin resolves name against root, rejecting anything that would
// escape it: absolute paths, ".." components, and a final
// filepath.Rel-based check against the cleaned result.
func (s *Store) safeJoin(root, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", tzerr.SecurityViolationErr("archive entry has an absolute path", name)
	}
	cleaned := filepath.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", tzerr.SecurityViolationErr("archive entry traverses outside the extraction root", name)
	}
	joined := filepath.Join(root, cleaned)
	rel, err := filepath.Rel(root, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", tzerr.SecurityViolationErr("archive entry resolves outside the extraction root", name)
	}
	return joined, nil
}

func (s *Store) isExecutable(name string) bool {
	for _, allowed := range s.ExecutableAllowlist {
		if name == allowed || strings.HasPrefix(name, strings.TrimSuffix(allowed, "/")+"/") {
			return true
		}
	}
	return false
}

func writeRegularFile(target string, r io.Reader, mode os.FileMode, declaredSize int64) error {
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return tzerr.StorageErr(err, target)
	}
	n, err := io.Copy(out, r)
	if err != nil {
		out.Close()
		return tzerr.StorageErr(err, target)
	}
	if err := out.Close(); err != nil {
		return tzerr.StorageErr(err, target)
	}
	if n > declaredSize {
		return tzerr.SecurityViolationErr("archive entry content exceeds its declared size", target)
	}
	return nil
}
