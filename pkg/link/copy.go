package link

import (
	"io"
	"os"
	"path/filepath"

	"github.com/terrazul/tpm/pkg/tzerr"
)

// copyTree recursively copies src into dst, used only when neither a
// symlink nor a junction can be created. Regular files are copied with
// their source permission bits; directories are created 0755.
func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return tzerr.StorageErr(err, src)
	}
	if !info.IsDir() {
		return copyFile(src, dst, info.Mode())
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return tzerr.StorageErr(err, dst)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return tzerr.StorageErr(err, src)
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		entryInfo, err := entry.Info()
		if err != nil {
			return tzerr.StorageErr(err, srcPath)
		}
		if err := copyFile(srcPath, dstPath, entryInfo.Mode()); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return tzerr.StorageErr(err, src)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return tzerr.StorageErr(err, dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return tzerr.StorageErr(err, dst)
	}
	if err := out.Close(); err != nil {
		return tzerr.StorageErr(err, dst)
	}
	return nil
}
