// Package integrity computes and verifies the content-addressable
// integrity strings carried by registry tarball metadata and lockfile
// entries: "sha256-" followed by the unpadded standard base64 encoding
// of the raw SHA-256 digest.
package integrity

import (
	"crypto/sha256"
	"encoding/base64"
	"hash"
	"io"
	"strings"
)

const algoPrefix = "sha256-"

// Compute streams r through SHA-256 and returns its integrity string.
func Compute(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return encode(h), nil
}

// ComputeBytes returns the integrity string for data already in memory.
func ComputeBytes(data []byte) string {
	h := sha256.New()
	h.Write(data)
	return encode(h)
}

func encode(h hash.Hash) string {
	sum := h.Sum(nil)
	return algoPrefix + base64.RawStdEncoding.EncodeToString(sum)
}

// Verify reports whether data's computed integrity string matches want,
// after trimming surrounding whitespace from want.
func Verify(data []byte, want string) bool {
	want = strings.TrimSpace(want)
	if want == "" {
		return false
	}
	return ComputeBytes(data) == want
}

// VerifyReader reports whether the content read from r matches want. It
// always drains r fully so callers relying on the underlying connection
// being consumed (e.g. to enable keep-alive) aren't surprised by a short
// read on mismatch.
func VerifyReader(r io.Reader, want string) (bool, error) {
	got, err := Compute(r)
	if err != nil {
		return false, err
	}
	want = strings.TrimSpace(want)
	return want != "" && got == want, nil
}

// HashingReader wraps an io.Reader, computing its SHA-256 digest
// incrementally as the caller streams the body elsewhere (typically to
// disk during an extraction or store write). Call Sum after the last
// Read returns io.EOF to obtain the integrity string.
type HashingReader struct {
	r io.Reader
	h hash.Hash
}

// NewHashingReader wraps r so that reads through it are hashed as they occur.
func NewHashingReader(r io.Reader) *HashingReader {
	return &HashingReader{r: r, h: sha256.New()}
}

// Read implements io.Reader, feeding every byte read through the digest.
func (hr *HashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		hr.h.Write(p[:n])
	}
	return n, err
}

// Sum returns the integrity string for all bytes read so far.
func (hr *HashingReader) Sum() string {
	return encode(hr.h)
}
