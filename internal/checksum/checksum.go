// Package checksum computes content digests for archived files.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// ChunkSize is the read size used when streaming a file through the hash.
const ChunkSize = 64 * 1024

// Algorithm is a digest scheme, named the way METS CHECKSUMTYPE spells it.
type Algorithm string

const (
	SHA256 Algorithm = "SHA-256"
	SHA512 Algorithm = "SHA-512"
	SHA1   Algorithm = "SHA-1"
	MD5    Algorithm = "MD5"
)

// Default is the algorithm written to documents unless a run asks otherwise.
const Default = SHA256

// ParseAlgorithm accepts the METS spelling or a relaxed form ("sha256", "sha-256").
func ParseAlgorithm(s string) (Algorithm, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "_", "-"))
	switch norm {
	case "", "SHA-256", "SHA256":
		return SHA256, nil
	case "SHA-512", "SHA512":
		return SHA512, nil
	case "SHA-1", "SHA1":
		return SHA1, nil
	case "MD5":
		return MD5, nil
	}
	return "", fmt.Errorf("unsupported checksum algorithm %q", s)
}

func (a Algorithm) String() string {
	return string(a)
}

// New returns a fresh hash for the algorithm.
func (a Algorithm) New() (hash.Hash, error) {
	switch a {
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case SHA1:
		return sha1.New(), nil
	case MD5:
		return md5.New(), nil
	}
	return nil, fmt.Errorf("unsupported checksum algorithm %q", string(a))
}

// Sum is the result of hashing one file.
type Sum struct {
	Size int64
	Hex  string
}

// File streams the file at path through the algorithm in ChunkSize reads.
// The returned size is the number of bytes actually hashed.
func File(path string, algo Algorithm) (Sum, error) {
	h, err := algo.New()
	if err != nil {
		return Sum{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Sum{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, ChunkSize)
	n, err := io.CopyBuffer(h, onlyReader{f}, buf)
	if err != nil {
		return Sum{}, fmt.Errorf("read %s: %w", path, err)
	}

	return Sum{Size: n, Hex: hex.EncodeToString(h.Sum(nil))}, nil
}

// Bytes hashes an in-memory buffer.
func Bytes(data []byte, algo Algorithm) (string, error) {
	h, err := algo.New()
	if err != nil {
		return "", err
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// onlyReader hides *os.File's WriterTo so io.CopyBuffer honors the buffer size.
type onlyReader struct {
	r io.Reader
}

func (o onlyReader) Read(p []byte) (int, error) {
	return o.r.Read(p)
}
