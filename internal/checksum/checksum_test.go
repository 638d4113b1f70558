package checksum

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlgorithm(t *testing.T) {
	cases := []struct {
		in   string
		want Algorithm
	}{
		{"", SHA256},
		{"SHA-256", SHA256},
		{"sha256", SHA256},
		{"sha_512", SHA512},
		{"SHA1", SHA1},
		{"md5", MD5},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got, err := ParseAlgorithm(c.in)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}

	_, err := ParseAlgorithm("crc32")
	assert.Error(t, err)
}

func TestFile_SHA256(t *testing.T) {
	content := []byte("hello, archive")
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	sum, err := File(path, SHA256)
	require.NoError(t, err)

	want := sha256.Sum256(content)
	assert.Equal(t, int64(len(content)), sum.Size)
	assert.Equal(t, hex.EncodeToString(want[:]), sum.Hex)
}

func TestFile_SpansManyChunks(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789abcdef"), ChunkSize/4+3)
	path := filepath.Join(t.TempDir(), "large.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	sum, err := File(path, MD5)
	require.NoError(t, err)

	want := md5.Sum(content)
	assert.Equal(t, int64(len(content)), sum.Size)
	assert.Equal(t, hex.EncodeToString(want[:]), sum.Hex)
}

func TestFile_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	sum, err := File(path, SHA256)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.Size)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", sum.Hex)
}

func TestFile_Missing(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "nope"), SHA256)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBytes(t *testing.T) {
	got, err := Bytes([]byte("abc"), SHA256)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", got)

	_, err = Bytes([]byte("abc"), Algorithm("CRC32"))
	assert.Error(t, err)
}
