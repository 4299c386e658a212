package golang

import (
	"bufio"
	"bytes"
	"path"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/locator"
)

const (
	goMod = "go.mod"
	goSum = "go.sum"

	// modSuffix marks go.sum entries that hash a module's go.mod only.
	modSuffix = "/go.mod"
)

// sumLine is one "<module> <version>[/go.mod] h1:<hash>" line of go.sum.
type sumLine struct {
	Path    string
	Version string // without the /go.mod suffix
	ModOnly bool
	Sum     checksum.Checksum
	line    int
}

func (s sumLine) reference() locator.Reference {
	ref := s.Path + "@" + s.Version
	if s.ModOnly {
		ref += modSuffix
	}
	return locator.Reference(ref)
}

func parseSum(data []byte) ([]sumLine, error) {
	var out []sumLine
	sc := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s:%d: want 3 fields, got %d", goSum, n, len(fields))
		}
		s := sumLine{Path: fields[0], line: n}
		s.Version, s.ModOnly = strings.CutSuffix(fields[1], modSuffix)
		if err := module.Check(s.Path, s.Version); err != nil {
			return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "%s:%d", goSum, n)
		}

		b64, ok := strings.CutPrefix(fields[2], "h1:")
		if !ok {
			return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s:%d: unsupported hash %q", goSum, n, fields[2])
		}
		prefix := "h1:"
		if s.ModOnly {
			prefix = "h1-mod:"
		}
		sum, err := checksum.Parse(prefix + b64)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "%s:%d", goSum, n)
		}
		s.Sum = sum
		out = append(out, s)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "read %s", goSum)
	}
	return out, nil
}

func parseMod(data []byte) (*modfile.File, error) {
	f, err := modfile.Parse(goMod, data, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "parse %s", goMod)
	}
	if f.Module == nil {
		return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s has no module directive", goMod)
	}
	return f, nil
}

// isLocalReplacement reports whether a replace directive points at a
// directory instead of a module.
func isLocalReplacement(r *modfile.Replace) bool {
	return r.New.Version == "" && modfile.IsDirectoryPath(r.New.Path)
}

// replacement returns the module a requirement is served by after
// replace directives; version-specific replacements win over wildcards.
func replacement(f *modfile.File, m module.Version) (*modfile.Replace, bool) {
	var wildcard *modfile.Replace
	for _, r := range f.Replace {
		if r.Old.Path != m.Path {
			continue
		}
		if r.Old.Version == m.Version {
			return r, true
		}
		if r.Old.Version == "" {
			wildcard = r
		}
	}
	return wildcard, wildcard != nil
}

func localReference(dir string) locator.Reference {
	dir = path.Clean(strings.TrimPrefix(dir, "./"))
	return locator.Reference("workspace:" + dir)
}

// buildRecords emits the main module, one record per local replacement and
// one record per go.sum line. The main module depends on its requirements
// as served after replacement.
func buildRecords(f *modfile.File, sums []sumLine) []deps.RawRecord {
	zips := make(map[string]bool)
	for _, s := range sums {
		if !s.ModOnly {
			zips[s.Path+"@"+s.Version] = true
		}
	}

	root := deps.RawRecord{Name: f.Module.Mod.Path, Reference: "workspace:."}
	var locals []deps.RawRecord
	indirect := make(map[string]bool)
	seenLocal := make(map[locator.Reference]bool)

	for _, req := range f.Require {
		target := req.Mod
		if r, ok := replacement(f, req.Mod); ok {
			if isLocalReplacement(r) {
				ref := localReference(r.New.Path)
				root.Dependencies = append(root.Dependencies, ref)
				if !seenLocal[ref] {
					seenLocal[ref] = true
					locals = append(locals, deps.RawRecord{Name: req.Mod.Path, Reference: ref})
				}
				continue
			}
			target = r.New
		}
		key := target.Path + "@" + target.Version
		if !zips[key] {
			continue
		}
		root.Dependencies = append(root.Dependencies, locator.Reference(key))
		if req.Indirect {
			indirect[key] = true
		}
	}

	records := append([]deps.RawRecord{root}, locals...)
	for _, s := range sums {
		rec := deps.RawRecord{
			Name:      s.Path,
			Version:   s.Version,
			Reference: s.reference(),
			Checksums: []checksum.Checksum{s.Sum},
		}
		if s.ModOnly {
			rec.SetProperty(deps.PropArtifactKind, kindMod)
		} else {
			rec.SetProperty(deps.PropArtifactKind, kindZip)
		}
		if indirect[s.Path+"@"+s.Version] && !s.ModOnly {
			rec.SetProperty(deps.PropIndirect, "true")
		}
		records = append(records, rec)
	}
	return records
}
