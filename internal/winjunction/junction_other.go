//go:build !windows
// +build !windows

// Package winjunction creates NTFS directory junctions as a fallback
// link strategy when a plain symlink cannot be created. Off Windows
// this is never a viable strategy, so Create always reports it as
// unsupported and the caller falls through to a recursive copy.
package winjunction

import "github.com/terrazul/tpm/pkg/tzerr"

// Create always fails off Windows.
func Create(target, link string) error {
	return tzerr.UnsupportedOperationErr("junction", "directory junctions are a Windows-only link strategy")
}
