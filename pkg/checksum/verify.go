package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"strings"

	"golang.org/x/mod/sumdb/dirhash"

	"github.com/matzehuels/prefetch/pkg/errors"
)

// NewHash returns a streaming hash for plain digest algorithms.
func (a Algorithm) NewHash() (hash.Hash, bool) {
	switch a {
	case MD5:
		return md5.New(), true
	case SHA1:
		return sha1.New(), true
	case SHA256:
		return sha256.New(), true
	case SHA384:
		return sha512.New384(), true
	case SHA512:
		return sha512.New(), true
	}
	return nil, false
}

// Compute hashes the file at path with algo. H1 treats the file as a
// module zip and H1Mod as a go.mod file.
func Compute(algo Algorithm, path string) (Checksum, error) {
	switch algo {
	case H1:
		sum, err := dirhash.HashZip(path, dirhash.Hash1)
		if err != nil {
			return Checksum{}, errors.Wrap(errors.ErrCodeChecksumMismatch, err, "hash module zip %s", path)
		}
		return fromDirhash(H1, sum), nil
	case H1Mod:
		sum, err := dirhash.Hash1([]string{"go.mod"}, func(string) (io.ReadCloser, error) {
			return os.Open(path)
		})
		if err != nil {
			return Checksum{}, err
		}
		return fromDirhash(H1Mod, sum), nil
	}

	h := NewHasher(algo)
	if len(h.hashes) == 0 {
		return Checksum{}, errors.New(errors.ErrCodeUnsupported, "cannot compute %s checksums", algo)
	}
	f, err := os.Open(path)
	if err != nil {
		return Checksum{}, err
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return Checksum{}, err
	}
	sum, _ := h.Sum(algo)
	return sum, nil
}

// HashDir returns the h1 dirhash of a directory tree. Local directories and
// workspaces are identified this way instead of being copied.
func HashDir(dir string) (Checksum, error) {
	sum, err := dirhash.HashDir(dir, "", dirhash.Hash1)
	if err != nil {
		return Checksum{}, err
	}
	return fromDirhash(H1, sum), nil
}

// Verify hashes the file at path and compares it to want. A difference fails
// with CHECKSUM_MISMATCH.
func Verify(path string, want Checksum) error {
	if !want.Verifiable() {
		return errors.New(errors.ErrCodeUnsupported, "checksum %s cannot be verified locally", want)
	}
	got, err := Compute(want.Algorithm, path)
	if err != nil {
		return err
	}
	if got != want {
		return errors.New(errors.ErrCodeChecksumMismatch, "%s: expected %s, got %s", path, want, got)
	}
	return nil
}

// Hasher computes several plain digests of one stream in a single pass.
type Hasher struct {
	hashes map[Algorithm]hash.Hash
	n      int64
}

// NewHasher returns a Hasher for algos. Non-streaming algorithms are skipped.
func NewHasher(algos ...Algorithm) *Hasher {
	h := &Hasher{hashes: make(map[Algorithm]hash.Hash, len(algos))}
	for _, a := range algos {
		if hh, ok := a.NewHash(); ok {
			h.hashes[a] = hh
		}
	}
	return h
}

// Write implements io.Writer.
func (h *Hasher) Write(p []byte) (int, error) {
	for _, hh := range h.hashes {
		hh.Write(p)
	}
	h.n += int64(len(p))
	return len(p), nil
}

// Size returns the number of bytes written.
func (h *Hasher) Size() int64 { return h.n }

// Sum returns the digest for algo, if it was requested.
func (h *Hasher) Sum(algo Algorithm) (Checksum, bool) {
	hh, ok := h.hashes[algo]
	if !ok {
		return Checksum{}, false
	}
	return Checksum{Algorithm: algo, Value: hex.EncodeToString(hh.Sum(nil))}, true
}

func fromDirhash(algo Algorithm, sum string) Checksum {
	return Checksum{Algorithm: algo, Value: strings.TrimPrefix(sum, "h1:")}
}
