package javascript

import (
	"bufio"
	"bytes"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/package-url/packageurl-go"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/locator"
)

const (
	yarnLock    = "yarn.lock"
	packageJSON = "package.json"
)

// YarnClassic reads yarn.lock v1 files.
type YarnClassic struct {
	registryResolver
}

// NewYarnClassic returns the yarn v1 ecosystem.
func NewYarnClassic(opts deps.Options) *YarnClassic {
	return &YarnClassic{registryResolver: newRegistryResolver(opts.WithDefaults())}
}

func (*YarnClassic) Name() string               { return "yarn-classic" }
func (*YarnClassic) Experimental() bool         { return false }
func (*YarnClassic) Resolver() locator.Resolver { return locator.ResolverFunc(locator.Parse) }

func (*YarnClassic) Lockfiles() []deps.Lockfile {
	return []deps.Lockfile{{Name: yarnLock}, {Name: packageJSON, Optional: true}}
}

func (*YarnClassic) PackageURL(a deps.Artifact) packageurl.PackageURL { return packageURL(a) }

// Layout follows the yarn offline mirror naming: the basename of the
// resolved URL, prefixed with the scope for scoped registry packages.
func (*YarnClassic) Layout(a deps.Artifact) string {
	reg, ok := locator.Unwrap(a.Locator).(*locator.Registry)
	if !ok || reg.URL == "" {
		return tarballLayout(a)
	}
	u, err := url.Parse(reg.URL)
	if err != nil {
		return tarballLayout(a)
	}
	base := path.Base(u.Path)
	if scope, _, ok := strings.Cut(a.Name, "/"); ok && strings.HasPrefix(scope, "@") && !strings.HasPrefix(base, "@") {
		base = scope + "-" + base
	}
	return base
}

// classicEntry is one block of a v1 lockfile.
type classicEntry struct {
	descriptors          []string
	line                 int
	fields               map[string]string
	dependencies         [][2]string
	optionalDependencies [][2]string
}

// Parse implements [deps.Ecosystem].
func (*YarnClassic) Parse(files deps.Files) ([]deps.RawRecord, error) {
	data, err := files.Require(yarnLock)
	if err != nil {
		return nil, err
	}
	entries, err := parseClassicLock(data)
	if err != nil {
		return nil, err
	}

	byDescriptor := make(map[string]locator.Reference)
	refs := make([]locator.Reference, len(entries))
	for i, e := range entries {
		ref, err := classicReference(e)
		if err != nil {
			return nil, err
		}
		refs[i] = ref
		for _, d := range e.descriptors {
			byDescriptor[d] = ref
		}
	}

	records := make([]deps.RawRecord, 0, len(entries)+1)
	var pkg *packageFile
	if raw, ok := files[packageJSON]; ok {
		if pkg, err = parsePackageJSON(raw); err != nil {
			return nil, err
		}
		records = append(records, deps.RawRecord{
			Name:      pkg.Name,
			Version:   pkg.Version,
			Reference: "workspace:.",
			License:   licenseString(pkg.License),
		})
	}

	for i, e := range entries {
		rec := deps.RawRecord{
			Name:      descriptorName(e.descriptors[0]),
			Version:   e.fields["version"],
			Reference: refs[i],
		}
		if rec.Version == "" {
			return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s:%d: entry has no version", yarnLock, e.line)
		}
		sums, err := classicChecksums(e)
		if err != nil {
			return nil, err
		}
		rec.Checksums = sums
		if r := e.fields["resolved"]; r != "" {
			rec.SetProperty(deps.PropResolved, r)
		}
		for _, dep := range e.dependencies {
			if ref, ok := byDescriptor[dep[0]+"@"+dep[1]]; ok {
				rec.Dependencies = appendRef(rec.Dependencies, ref)
			}
		}
		for _, dep := range e.optionalDependencies {
			if ref, ok := byDescriptor[dep[0]+"@"+dep[1]]; ok {
				rec.Dependencies = appendRef(rec.Dependencies, ref)
			}
		}
		records = append(records, rec)
	}

	if pkg != nil {
		prod := descriptorRefs(pkg.prodDeps(), byDescriptor)
		dev := descriptorRefs(pkg.devDeps(), byDescriptor)
		records[0].Dependencies = append(append([]locator.Reference(nil), prod...), dev...)
		markDev(records[1:], prod, dev)
	}
	return records, nil
}

func descriptorRefs(pairs [][2]string, index map[string]locator.Reference) []locator.Reference {
	var out []locator.Reference
	for _, p := range pairs {
		if ref, ok := index[p[0]+"@"+p[1]]; ok {
			out = appendRef(out, ref)
		}
	}
	return out
}

// classicReference derives the reference from the resolved field, or from
// the descriptor range for local packages, which have none.
func classicReference(e classicEntry) (locator.Reference, error) {
	name := descriptorName(e.descriptors[0])
	if resolved := e.fields["resolved"]; resolved != "" {
		return locator.Reference(name + "@" + resolved), nil
	}
	_, rng, _ := locator.SplitDescriptor(e.descriptors[0])
	for _, proto := range []string{"file:", "link:"} {
		if strings.HasPrefix(rng, proto) {
			return locator.Reference(name + "@" + rng), nil
		}
	}
	return "", errors.New(errors.ErrCodeMalformedLockfile, "%s:%d: %s has no resolved URL", yarnLock, e.line, e.descriptors[0])
}

func classicChecksums(e classicEntry) ([]checksum.Checksum, error) {
	if integrity := e.fields["integrity"]; integrity != "" {
		sums, err := checksum.ParseIntegrity(integrity)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "%s:%d", yarnLock, e.line)
		}
		return sums, nil
	}
	resolved := e.fields["resolved"]
	if _, frag, ok := strings.Cut(resolved, "#"); ok && !strings.HasPrefix(resolved, "git") && len(frag) == 40 {
		c, err := checksum.New(checksum.SHA1, frag)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "%s:%d", yarnLock, e.line)
		}
		return []checksum.Checksum{c}, nil
	}
	return nil, nil
}

// descriptorName returns the package name of "name@range".
func descriptorName(d string) string {
	if name, _, ok := locator.SplitDescriptor(d); ok {
		return name
	}
	return d
}

// parseClassicLock tokenizes a v1 lockfile. The format is indentation
// based: unindented "desc, desc:" headers, two-space "key value" fields
// and four-space "name range" pairs below "dependencies:".
func parseClassicLock(data []byte) ([]classicEntry, error) {
	var (
		entries []classicEntry
		cur     *classicEntry
		section string
		lineNo  int
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lineNo++
		raw := strings.TrimRight(sc.Text(), " \t\r")
		trimmed := strings.TrimLeft(raw, " ")
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		indent := len(raw) - len(trimmed)

		toks, err := tokenize(trimmed)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "%s:%d", yarnLock, lineNo)
		}

		switch {
		case indent == 0:
			if !strings.HasSuffix(trimmed, ":") {
				return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s:%d: expected an entry header", yarnLock, lineNo)
			}
			entries = append(entries, classicEntry{line: lineNo, fields: make(map[string]string)})
			cur = &entries[len(entries)-1]
			section = ""
			for _, t := range toks {
				if t.value != "" {
					cur.descriptors = append(cur.descriptors, t.value)
				}
			}
			if len(cur.descriptors) == 0 {
				return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s:%d: empty entry header", yarnLock, lineNo)
			}
		case cur == nil:
			return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s:%d: field outside of an entry", yarnLock, lineNo)
		case indent == 2 && len(toks) == 1 && toks[0].colon:
			section = toks[0].value
		case indent == 2 && len(toks) == 2:
			section = ""
			cur.fields[toks[0].value] = toks[1].value
		case indent == 4 && len(toks) == 2 && section != "":
			pair := [2]string{toks[0].value, toks[1].value}
			switch section {
			case "dependencies":
				cur.dependencies = append(cur.dependencies, pair)
			case "optionalDependencies":
				cur.optionalDependencies = append(cur.optionalDependencies, pair)
			}
		default:
			return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s:%d: unexpected line %q", yarnLock, lineNo, trimmed)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "read %s", yarnLock)
	}
	return entries, nil
}

type token struct {
	value string
	colon bool // token was followed by ':'
}

// tokenize splits a line into quoted or bare tokens. Commas separate
// header descriptors; a trailing colon ends a key.
func tokenize(line string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(line) {
		switch c := line[i]; {
		case c == ' ' || c == ',':
			i++
		case c == ':':
			if len(toks) == 0 {
				return nil, fmt.Errorf("unexpected ':'")
			}
			toks[len(toks)-1].colon = true
			i++
		case c == '"':
			end := i + 1
			for end < len(line) && line[end] != '"' {
				if line[end] == '\\' {
					end++
				}
				end++
			}
			if end >= len(line) {
				return nil, fmt.Errorf("unterminated string")
			}
			v, err := strconv.Unquote(line[i : end+1])
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{value: v})
			i = end + 1
		default:
			end := i
			for end < len(line) && line[end] != ' ' && line[end] != ',' && !(line[end] == ':' && (end+1 == len(line) || line[end+1] == ' ')) {
				end++
			}
			toks = append(toks, token{value: line[i:end]})
			i = end
		}
	}
	return toks, nil
}

// Render configures the yarn offline mirror.
func (*YarnClassic) Render(in deps.RenderInput) (*deps.Directives, error) {
	d := deps.NewDirectives().
		Set("YARN_YARN_OFFLINE_MIRROR", in.DepsDir).
		Set("YARN_YARN_OFFLINE_MIRROR_PRUNING", "false")
	d.AddFile(".yarnrc", fmt.Sprintf("yarn-offline-mirror %s\nyarn-offline-mirror-pruning false\n", strconv.Quote(in.DepsDir)))
	return d, nil
}
