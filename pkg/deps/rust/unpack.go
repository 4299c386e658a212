package rust

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/prefetch/pkg/archive"
	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/locator"
)

// checksumFile is the .cargo-checksum.json cargo expects in every crate of
// a directory source. Package is null for git crates.
type checksumFile struct {
	Files   map[string]string `json:"files"`
	Package *string           `json:"package"`
}

// Unpacks implements [deps.Unpacker]: every remote crate is vendored as a
// directory.
func (c *Cargo) Unpacks(a deps.Artifact) bool { return c.Layout(a) != "" }

// Unpack implements [deps.Unpacker]. Registry crates are .crate archives
// holding one "<name>-<version>/" directory; git crates are archives of
// the whole repository, searched for the Cargo.toml naming the crate.
func (*Cargo) Unpack(a deps.Artifact, src, dst string) error {
	return archive.ExtractInto(src, dst, func(root string) (string, error) {
		dir, err := findCrate(root, a.Name)
		if err != nil {
			return "", err
		}

		sums := checksumFile{Files: map[string]string{}}
		if _, ok := locator.Unwrap(a.Locator).(*locator.Registry); ok {
			if c, ok := checksum.Strongest(a.Checksums); ok && c.Algorithm == checksum.SHA256 {
				sums.Package = &c.Value
			}
		}
		data, err := json.Marshal(sums)
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeInternal, err, "encode checksum file")
		}
		if err := os.WriteFile(filepath.Join(dir, ".cargo-checksum.json"), data, 0o644); err != nil {
			return "", errors.Wrap(errors.ErrCodeInternal, err, "write checksum file")
		}
		return dir, nil
	})
}

// findCrate returns the shallowest directory below dir whose Cargo.toml
// declares package name.
func findCrate(dir, name string) (string, error) {
	best, bestDepth := "", -1
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && (d.Name() == "target" || d.Name() == ".git") {
			return filepath.SkipDir
		}
		if d.IsDir() || d.Name() != cargoToml {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		m, err := parseManifest(data)
		if err != nil || m.Package == nil || m.Package.Name != name {
			return nil
		}
		depth := strings.Count(filepath.ToSlash(strings.TrimPrefix(p, dir)), "/")
		if bestDepth < 0 || depth < bestDepth {
			best, bestDepth = filepath.Dir(p), depth
		}
		return nil
	})
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "search crate %s", name)
	}
	if best == "" {
		return "", errors.New(errors.ErrCodeFetchFailed, "archive contains no Cargo.toml for crate %s", name)
	}
	return best, nil
}
