package integrity

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBytes(t *testing.T) {
	got := ComputeBytes([]byte("hello world"))
	assert.True(t, strings.HasPrefix(got, "sha256-"))
	// deterministic
	assert.Equal(t, got, ComputeBytes([]byte("hello world")))
	assert.NotEqual(t, got, ComputeBytes([]byte("hello world!")))
}

func TestCompute(t *testing.T) {
	got, err := Compute(strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, ComputeBytes([]byte("hello world")), got)
}

func TestVerify(t *testing.T) {
	data := []byte("package contents")
	want := ComputeBytes(data)

	assert.True(t, Verify(data, want))
	assert.True(t, Verify(data, "  "+want+"\n"))
	assert.False(t, Verify(data, "sha256-deadbeef"))
	assert.False(t, Verify(data, ""))
	assert.False(t, Verify([]byte("tampered"), want))
}

func TestVerifyReader(t *testing.T) {
	data := []byte("archive bytes")
	want := ComputeBytes(data)

	ok, err := VerifyReader(bytes.NewReader(data), want)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyReader(bytes.NewReader(data), "sha256-wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashingReader(t *testing.T) {
	data := []byte("streamed content for hashing reader")
	hr := NewHashingReader(bytes.NewReader(data))

	out, err := io.ReadAll(hr)
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.Equal(t, ComputeBytes(data), hr.Sum())
}

func TestHashingReaderPartialReads(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 10000)
	hr := NewHashingReader(bytes.NewReader(data))

	buf := make([]byte, 37)
	for {
		_, err := hr.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, ComputeBytes(data), hr.Sum())
}
