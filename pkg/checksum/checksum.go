// Package checksum models algorithm-tagged artifact digests.
//
// Lockfiles declare checksums in many spellings. npm and yarn use Subresource
// Integrity strings ("sha512-<base64>"), pip uses "sha256:<hex>", Cargo
// uses bare hex, go.sum uses "h1:<base64>" dirhashes and yarn berry uses
// "10c0/<hex>" cache keys. [Parse] normalizes all of them into a [Checksum]
// whose Value is lower-case hex for plain digests and base64 for h1.
//
// [Verify] and [Compute] check and produce checksums for files on disk,
// including Go module zips and go.mod files via golang.org/x/mod/sumdb/dirhash.
package checksum

import (
	"encoding/base64"
	"encoding/hex"
	"slices"
	"strings"

	"github.com/matzehuels/prefetch/pkg/errors"
)

// Algorithm names a digest algorithm.
type Algorithm string

const (
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA384 Algorithm = "sha384"
	SHA512 Algorithm = "sha512"
	MD5    Algorithm = "md5"

	// H1 is the Go module zip dirhash recorded in go.sum.
	H1 Algorithm = "h1"
	// H1Mod is the dirhash of a module's go.mod file.
	H1Mod Algorithm = "h1-mod"
	// YarnCache is the digest of a yarn berry cache zip. It cannot be
	// reproduced without yarn itself.
	YarnCache Algorithm = "yarn-cache"
)

// strength orders algorithms when a record declares several.
var strength = map[Algorithm]int{
	MD5:    1,
	SHA1:   2,
	SHA256: 3,
	SHA384: 4,
	SHA512: 5,
	H1:     6,
	H1Mod:  6,
}

// Verifiable reports whether fetched bytes can be checked against a.
func (a Algorithm) Verifiable() bool {
	return strength[a] > 0
}

// Checksum is an algorithm-tagged digest.
type Checksum struct {
	Algorithm Algorithm
	Value     string
}

// IsZero reports whether c is the zero Checksum.
func (c Checksum) IsZero() bool { return c.Algorithm == "" && c.Value == "" }

// Verifiable reports whether c can be checked locally.
func (c Checksum) Verifiable() bool { return c.Algorithm.Verifiable() && c.Value != "" }

// String returns the canonical "algo:value" form.
func (c Checksum) String() string {
	if c.IsZero() {
		return ""
	}
	return string(c.Algorithm) + ":" + c.Value
}

// Hex returns the digest bytes hex-encoded, decoding base64 values first.
func (c Checksum) Hex() string {
	switch c.Algorithm {
	case H1, H1Mod:
		raw, err := base64.StdEncoding.DecodeString(c.Value)
		if err != nil {
			return ""
		}
		return hex.EncodeToString(raw)
	}
	return c.Value
}

// SRI returns the Subresource Integrity form for plain digests, or "" when
// the algorithm has no SRI spelling.
func (c Checksum) SRI() string {
	switch c.Algorithm {
	case SHA1, SHA256, SHA384, SHA512:
		raw, err := hex.DecodeString(c.Value)
		if err != nil {
			return ""
		}
		return string(c.Algorithm) + "-" + base64.StdEncoding.EncodeToString(raw)
	}
	return ""
}

// New builds a Checksum from a hex digest, validating the digest length.
func New(algo Algorithm, hexValue string) (Checksum, error) {
	v := strings.ToLower(strings.TrimSpace(hexValue))
	if n, ok := hexLen[algo]; ok {
		if len(v) != n {
			return Checksum{}, errors.New(errors.ErrCodeMalformedLockfile, "%s digest must be %d hex characters, got %d", algo, n, len(v))
		}
		if _, err := hex.DecodeString(v); err != nil {
			return Checksum{}, errors.New(errors.ErrCodeMalformedLockfile, "invalid %s digest %q", algo, hexValue)
		}
	}
	return Checksum{Algorithm: algo, Value: v}, nil
}

var hexLen = map[Algorithm]int{
	MD5:    32,
	SHA1:   40,
	SHA256: 64,
	SHA384: 96,
	SHA512: 128,
}

// Parse accepts "algo:hex", "algo=hex", SRI "algo-base64", "h1:base64" and
// the yarn berry "<cacheKey>/<hex>" form. Invalid input fails with
// MALFORMED_LOCKFILE.
func Parse(s string) (Checksum, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Checksum{}, errors.New(errors.ErrCodeMalformedLockfile, "empty checksum")
	}

	if rest, ok := strings.CutPrefix(s, "h1:"); ok {
		return parseH1(H1, rest)
	}
	if rest, ok := strings.CutPrefix(s, "h1-mod:"); ok {
		return parseH1(H1Mod, rest)
	}

	if i := strings.IndexAny(s, ":="); i > 0 {
		algo := Algorithm(strings.ToLower(s[:i]))
		if algo == YarnCache {
			return Checksum{Algorithm: YarnCache, Value: s[i+1:]}, nil
		}
		if _, ok := hexLen[algo]; ok {
			return New(algo, s[i+1:])
		}
	}

	if i := strings.IndexByte(s, '-'); i > 0 {
		algo := Algorithm(strings.ToLower(s[:i]))
		if _, ok := hexLen[algo]; ok {
			return parseSRI(algo, s[i+1:])
		}
	}

	if key, value, ok := strings.Cut(s, "/"); ok && key != "" && isHex(value) {
		return Checksum{Algorithm: YarnCache, Value: strings.ToLower(s)}, nil
	}

	return Checksum{}, errors.New(errors.ErrCodeMalformedLockfile, "unrecognized checksum %q", s)
}

// ParseIntegrity parses a whitespace-separated SRI list as found in
// package-lock.json and yarn.lock "integrity" fields.
func ParseIntegrity(s string) ([]Checksum, error) {
	var out []Checksum
	for _, tok := range strings.Fields(s) {
		c, err := Parse(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func parseSRI(algo Algorithm, b64 string) (Checksum, error) {
	// SRI allows "?opts" suffixes.
	b64, _, _ = strings.Cut(b64, "?")
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return Checksum{}, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "invalid %s integrity", algo)
	}
	return New(algo, hex.EncodeToString(raw))
}

func parseH1(algo Algorithm, b64 string) (Checksum, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil || len(raw) != 32 {
		return Checksum{}, errors.New(errors.ErrCodeMalformedLockfile, "invalid h1 hash %q", b64)
	}
	return Checksum{Algorithm: algo, Value: b64}, nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil && len(s)%2 == 0
}

// Strongest returns the strongest verifiable checksum in sums.
func Strongest(sums []Checksum) (Checksum, bool) {
	var best Checksum
	for _, c := range sums {
		if c.Verifiable() && strength[c.Algorithm] > strength[best.Algorithm] {
			best = c
		}
	}
	return best, !best.IsZero()
}

// VerifiableOnly filters sums down to the locally verifiable ones.
func VerifiableOnly(sums []Checksum) []Checksum {
	var out []Checksum
	for _, c := range sums {
		if c.Verifiable() {
			out = append(out, c)
		}
	}
	return out
}

// Sorted returns a sorted, de-duplicated copy of sums.
func Sorted(sums []Checksum) []Checksum {
	out := slices.Clone(sums)
	slices.SortFunc(out, func(a, b Checksum) int { return strings.Compare(a.String(), b.String()) })
	return slices.CompactFunc(out, func(a, b Checksum) bool { return a == b })
}

// SameSet reports whether a and b contain the same checksums, ignoring order
// and duplicates.
func SameSet(a, b []Checksum) bool {
	return slices.Equal(Sorted(a), Sorted(b))
}

// Contains reports whether sums contains c.
func Contains(sums []Checksum, c Checksum) bool {
	return slices.Contains(sums, c)
}
