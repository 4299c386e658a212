package cache

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/observability"
)

// LocatorAddressPrefix marks addresses derived from a package identity
// rather than a declared checksum. Their content checksum is kept in a
// sidecar file published together with the entry.
const LocatorAddressPrefix = "locator:"

// Names inside a locator-addressed entry directory.
const (
	locatorArtifact = "artifact"
	locatorSum      = "checksum"
)

// entryMode is the permission of published entries.
const entryMode = 0o444

// DefaultMemoSize bounds how many verified addresses a [Store] remembers.
const DefaultMemoSize = 4096

// Entry is a verified artifact in the store.
type Entry struct {
	Address  string
	Path     string
	Size     int64
	Checksum checksum.Checksum
}

// Store is a content-addressed artifact store on the local filesystem.
//
// Layout:
//
//	<root>/tmp/                                 in-progress downloads
//	<root>/<algo>/<hex[:2]>/<hex>               published entries
//	<root>/locator/<hex[:2]>/<hex>/artifact     locator-addressed entry
//	<root>/locator/<hex[:2]>/<hex>/checksum     its content checksum
//
// Entries are written once and are read-only. [Store.Publish] links a
// verified temporary file into place and never replaces an existing entry.
// A locator-addressed entry and its checksum appear in one rename. [Store.Lookup] re-hashes
// an entry before reuse unless the same process already verified it and the
// file has not changed since.
type Store struct {
	root string
	memo *lru.Cache[string, stamp]
}

// stamp records what a verified entry looked like.
type stamp struct {
	size    int64
	modTime time.Time
	sum     checksum.Checksum
}

// OpenStore opens or creates a store rooted at root.
func OpenStore(root string) (*Store, error) {
	return OpenStoreWithMemo(root, DefaultMemoSize)
}

// OpenStoreWithMemo is [OpenStore] with a custom memo size.
func OpenStoreWithMemo(root string, memoSize int) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, "tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	memo, err := lru.New[string, stamp](max(memoSize, 1))
	if err != nil {
		return nil, err
	}
	return &Store{root: root, memo: memo}, nil
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// IsLocatorAddress reports whether address is identity-derived.
func IsLocatorAddress(address string) bool {
	return strings.HasPrefix(address, LocatorAddressPrefix)
}

// LocatorAddress returns the address used for an identity with no usable
// checksum.
func LocatorAddress(identity string) string {
	return LocatorAddressPrefix + Hash([]byte(identity))
}

// Path returns where the entry for address lives.
func (s *Store) Path(address string) (string, error) {
	algo, hexValue, err := splitAddress(address)
	if err != nil {
		return "", err
	}
	if algo == "locator" {
		return filepath.Join(s.root, algo, hexValue[:2], hexValue, locatorArtifact), nil
	}
	return filepath.Join(s.root, algo, hexValue[:2], hexValue), nil
}

func splitAddress(address string) (algo, hexValue string, err error) {
	if IsLocatorAddress(address) {
		hexValue = strings.TrimPrefix(address, LocatorAddressPrefix)
		algo = "locator"
	} else {
		c, perr := checksum.Parse(address)
		if perr != nil {
			return "", "", errors.Wrap(errors.ErrCodeInternal, perr, "invalid store address %q", address)
		}
		algo, hexValue = string(c.Algorithm), c.Hex()
	}
	if len(hexValue) < 3 || strings.ContainsAny(hexValue, `/\.`) {
		return "", "", errors.New(errors.ErrCodeInternal, "invalid store address %q", address)
	}
	return algo, hexValue, nil
}

// expected returns the checksum the entry at address must have.
func (s *Store) expected(address, path string) (checksum.Checksum, error) {
	if !IsLocatorAddress(address) {
		return checksum.Parse(address)
	}
	data, err := os.ReadFile(filepath.Join(filepath.Dir(path), locatorSum))
	if err != nil {
		return checksum.Checksum{}, errors.Wrap(errors.ErrCodeChecksumMismatch, err, "store entry %s has no recorded checksum", address)
	}
	return checksum.Parse(strings.TrimSpace(string(data)))
}

// Lookup returns the entry for address if present. A present entry whose
// content no longer matches its address fails with CHECKSUM_MISMATCH.
func (s *Store) Lookup(ctx context.Context, address string) (Entry, bool, error) {
	path, err := s.Path(address)
	if err != nil {
		return Entry{}, false, err
	}
	info, err := os.Stat(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		observability.Cache().OnCacheMiss(ctx, "store")
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	if st, ok := s.memo.Get(address); ok && st.size == info.Size() && st.modTime.Equal(info.ModTime()) {
		observability.Cache().OnCacheHit(ctx, "store")
		return Entry{Address: address, Path: path, Size: st.size, Checksum: st.sum}, true, nil
	}

	want, err := s.expected(address, path)
	if err == nil {
		err = checksum.Verify(path, want)
	}
	if err != nil {
		observability.Cache().OnCacheCorrupt(ctx, "store")
		return Entry{}, false, errors.Wrap(errors.ErrCodeChecksumMismatch, err, "corrupted store entry %s", address)
	}

	s.memo.Add(address, stamp{size: info.Size(), modTime: info.ModTime(), sum: want})
	observability.Cache().OnCacheHit(ctx, "store")
	return Entry{Address: address, Path: path, Size: info.Size(), Checksum: want}, true, nil
}

// CreateTemp creates a file in the store's tmp directory. Callers either
// [Store.Publish] it or remove it.
func (s *Store) CreateTemp() (*os.File, error) {
	return os.CreateTemp(filepath.Join(s.root, "tmp"), "fetch-*")
}

// Publish moves the verified file tmp into place under address. sum is the
// checksum tmp was verified against. If the entry already exists, tmp is
// discarded and the existing entry is returned after verification.
func (s *Store) Publish(ctx context.Context, tmp, address string, sum checksum.Checksum) (Entry, error) {
	defer os.Remove(tmp)

	path, err := s.Path(address)
	if err != nil {
		return Entry{}, err
	}
	if _, err := os.Stat(path); err == nil {
		return s.existing(ctx, address)
	}
	if err := os.Chmod(tmp, entryMode); err != nil {
		return Entry{}, err
	}

	var won bool
	if IsLocatorAddress(address) {
		won, err = s.publishDir(tmp, filepath.Dir(path), sum)
	} else {
		won, err = publishFile(tmp, path)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("publish %s: %w", address, err)
	}
	if !won {
		return s.existing(ctx, address)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, err
	}
	s.memo.Add(address, stamp{size: info.Size(), modTime: info.ModTime(), sum: sum})
	observability.Cache().OnCacheSet(ctx, "store", int(info.Size()))
	return Entry{Address: address, Path: path, Size: info.Size(), Checksum: sum}, nil
}

// publishFile links tmp to path unless path exists. It reports whether tmp
// became the entry.
func publishFile(tmp, path string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	err := os.Link(tmp, path)
	switch {
	case err == nil:
		return true, nil
	case stderrors.Is(err, fs.ErrExist):
		return false, nil
	}
	if _, serr := os.Stat(path); serr == nil {
		return false, nil
	}
	if err := os.Rename(tmp, path); err != nil {
		return false, err
	}
	return true, nil
}

// publishDir stages tmp and its checksum in a directory and renames that
// directory to dir. A rename onto an existing entry directory fails, so the
// artifact and its checksum always come from the same publisher.
func (s *Store) publishDir(tmp, dir string, sum checksum.Checksum) (bool, error) {
	stage, err := os.MkdirTemp(filepath.Join(s.root, "tmp"), "publish-*")
	if err != nil {
		return false, err
	}
	defer os.RemoveAll(stage)

	if err := os.Link(tmp, filepath.Join(stage, locatorArtifact)); err != nil {
		return false, err
	}
	if err := os.WriteFile(filepath.Join(stage, locatorSum), []byte(sum.String()+"\n"), entryMode); err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return false, err
	}
	if err := os.Rename(stage, dir); err != nil {
		if _, serr := os.Stat(filepath.Join(dir, locatorArtifact)); serr == nil {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) existing(ctx context.Context, address string) (Entry, error) {
	e, ok, err := s.Lookup(ctx, address)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, errors.New(errors.ErrCodeInternal, "store entry %s vanished", address)
	}
	return e, nil
}

// Export copies the entry at address to dst, replacing an existing dst.
// The copy is independent of the store, so changes to it never reach the
// entry.
func (s *Store) Export(address, dst string) error {
	src, err := s.Path(address)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return err
	}
	return copyFile(src, dst)
}

// Clear removes every published entry and any leftover temporary files.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			return err
		}
	}
	s.memo.Purge()
	return os.MkdirAll(filepath.Join(s.root, "tmp"), 0o755)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
