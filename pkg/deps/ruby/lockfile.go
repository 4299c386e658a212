package ruby

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/errors"
)

const gemfileLock = "Gemfile.lock"

// Source kinds of a Gemfile.lock section.
const (
	sourceGem  = "GEM"
	sourceGit  = "GIT"
	sourcePath = "PATH"
)

// source is one GEM, GIT or PATH section.
type source struct {
	Kind     string
	Remote   string
	Revision string
	Branch   string
	Tag      string
	Ref      string
	Specs    []*spec
}

// spec is a gem resolved from a source, with the names it depends on.
type spec struct {
	Name     string
	Version  string
	Platform string
	Deps     []string
	Source   *source
}

// key is "name (version[-platform])" as used by the CHECKSUMS section.
func (s *spec) key() string {
	v := s.Version
	if s.Platform != "" {
		v += "-" + s.Platform
	}
	return s.Name + " (" + v + ")"
}

func (s *spec) fullName() string {
	if s.Platform == "" {
		return s.Name + "-" + s.Version
	}
	return s.Name + "-" + s.Version + "-" + s.Platform
}

// lockfile is a parsed Gemfile.lock.
type lockfile struct {
	Sources      []*source
	Platforms    []string
	Dependencies []string
	Checksums    map[string]checksum.Checksum
}

var (
	specLine = regexp.MustCompile(`^    ([^\s(]+) \(([^)]+)\)$`)
	depLine  = regexp.MustCompile(`^      ([^\s(]+)(?: \(.*\))?$`)
	topDep   = regexp.MustCompile(`^  ([^\s(!]+)(?: \(.*\))?(!)?$`)
	sumLine  = regexp.MustCompile(`^  ([^\s(]+ \([^)]+\))(?: (.+))?$`)
)

// parseLockfile reads the sections prefetching needs. RUBY VERSION,
// BUNDLED WITH and plugin sections are skipped.
func parseLockfile(data []byte) (*lockfile, error) {
	lock := &lockfile{Checksums: make(map[string]checksum.Checksum)}
	var (
		section string
		src     *source
		last    *spec
	)
	malformed := func(n int, format string, args ...any) error {
		return errors.New(errors.ErrCodeMalformedLockfile, "%s:%d: "+format, append([]any{gemfileLock, n}, args...)...)
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimRight(sc.Text(), " \r")
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, " ") {
			section, src, last = line, nil, nil
			switch section {
			case sourceGem, sourceGit, sourcePath:
				src = &source{Kind: section}
				lock.Sources = append(lock.Sources, src)
			}
			continue
		}

		switch section {
		case sourceGem, sourceGit, sourcePath:
			if s, ok := strings.CutPrefix(line, "  "); ok && !strings.HasPrefix(s, " ") {
				key, value, _ := strings.Cut(s, ":")
				value = strings.TrimSpace(value)
				switch key {
				case "remote":
					src.Remote = value
				case "revision":
					src.Revision = value
				case "branch":
					src.Branch = value
				case "tag":
					src.Tag = value
				case "ref":
					src.Ref = value
				}
				continue
			}
			if m := specLine.FindStringSubmatch(line); m != nil {
				last = &spec{Name: m[1], Source: src}
				last.Version, last.Platform, _ = strings.Cut(m[2], "-")
				src.Specs = append(src.Specs, last)
				continue
			}
			if m := depLine.FindStringSubmatch(line); m != nil {
				if last == nil {
					return nil, malformed(n, "dependency %q outside a spec", m[1])
				}
				last.Deps = append(last.Deps, m[1])
				continue
			}
			return nil, malformed(n, "unexpected line %q", strings.TrimSpace(line))
		case "PLATFORMS":
			lock.Platforms = append(lock.Platforms, strings.TrimSpace(line))
		case "DEPENDENCIES":
			m := topDep.FindStringSubmatch(line)
			if m == nil {
				return nil, malformed(n, "unexpected dependency %q", strings.TrimSpace(line))
			}
			lock.Dependencies = append(lock.Dependencies, m[1])
		case "CHECKSUMS":
			m := sumLine.FindStringSubmatch(line)
			if m == nil {
				return nil, malformed(n, "unexpected checksum entry %q", strings.TrimSpace(line))
			}
			if m[2] == "" {
				continue
			}
			for _, raw := range strings.Split(m[2], ",") {
				c, err := checksum.Parse(raw)
				if err != nil {
					return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "%s:%d", gemfileLock, n)
				}
				if c.Verifiable() {
					lock.Checksums[m[1]] = c
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "read %s", gemfileLock)
	}

	for _, src := range lock.Sources {
		if src.Remote == "" {
			return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s: %s section without remote", gemfileLock, src.Kind)
		}
		if src.Kind == sourceGit && src.Revision == "" {
			return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s: git source %s is not pinned to a revision", gemfileLock, src.Remote)
		}
	}
	return lock, nil
}
