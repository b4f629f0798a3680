package orchestrator

import (
	"os"

	"github.com/terrazul/tpm/pkg/tzerr"
)

// swapStagedTree replaces final with staged, leaving final untouched if
// anything goes wrong; the caller must never observe a half-linked
// tree. staged is removed once the swap
// succeeds or if the swap itself fails.
func swapStagedTree(staged, final string) error {
	backup := final + ".old"
	os.RemoveAll(backup)

	hadPrevious := true
	if err := os.Rename(final, backup); err != nil {
		if !os.IsNotExist(err) {
			os.RemoveAll(staged)
			return tzerr.StorageErr(err, final)
		}
		hadPrevious = false
	}

	if err := os.Rename(staged, final); err != nil {
		if hadPrevious {
			os.Rename(backup, final)
		}
		os.RemoveAll(staged)
		return tzerr.StorageErr(err, staged)
	}

	if hadPrevious {
		os.RemoveAll(backup)
	}
	return nil
}
