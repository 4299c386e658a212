package javascript

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/package-url/packageurl-go"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/locator"
)

// minBerryVersion is the oldest __metadata.version written by yarn 2.
const minBerryVersion = 4

// BuiltinProviderYarn names the patches bundled with yarn.
const BuiltinProviderYarn = "yarn"

// YarnBerry reads yarn.lock files written by yarn 2 and later.
type YarnBerry struct {
	registryResolver
}

// NewYarnBerry returns the yarn berry ecosystem.
func NewYarnBerry(opts deps.Options) *YarnBerry {
	return &YarnBerry{registryResolver: newRegistryResolver(opts.WithDefaults())}
}

func (*YarnBerry) Name() string                  { return "yarn-berry" }
func (*YarnBerry) Experimental() bool            { return true }
func (*YarnBerry) Resolver() locator.Resolver    { return locator.ResolverFunc(locator.Parse) }
func (*YarnBerry) Layout(a deps.Artifact) string { return tarballLayout(a) }

func (*YarnBerry) Lockfiles() []deps.Lockfile {
	return []deps.Lockfile{{Name: yarnLock}, {Name: packageJSON, Optional: true}}
}

func (*YarnBerry) PackageURL(a deps.Artifact) packageurl.PackageURL { return packageURL(a) }

// Builtins returns the compat patches yarn applies to a few packages. They
// ship inside yarn and need no fetch.
func (*YarnBerry) Builtins() []locator.BuiltinProvider {
	bundled := func(names ...string) map[string]locator.BuiltinSource {
		out := make(map[string]locator.BuiltinSource, len(names))
		for _, n := range names {
			out[n] = locator.BuiltinSource{}
		}
		return out
	}
	return []locator.BuiltinProvider{&locator.StaticProvider{
		ProviderName: BuiltinProviderYarn,
		Sources:      bundled("compat/typescript", "compat/resolve", "compat/fsevents"),
	}}
}

// BerryLockfileEntry is one package of a berry lockfile.
type BerryLockfileEntry struct {
	Version              string                     `yaml:"version"`
	Resolution           string                     `yaml:"resolution,omitempty"`
	Dependencies         map[string]string          `yaml:"dependencies,omitempty"`
	OptionalDependencies map[string]string          `yaml:"optionalDependencies,omitempty"`
	DependenciesMeta     map[string]map[string]bool `yaml:"dependenciesMeta,omitempty"`
	PeerDependencies     map[string]string          `yaml:"peerDependencies,omitempty"`
	Checksum             string                     `yaml:"checksum,omitempty"`
	Conditions           string                     `yaml:"conditions,omitempty"`
	LanguageName         string                     `yaml:"languageName,omitempty"`
	LinkType             string                     `yaml:"linkType,omitempty"`
}

type berryMetadata struct {
	Metadata struct {
		Version  string `yaml:"version"`
		CacheKey string `yaml:"cacheKey"`
	} `yaml:"__metadata"`
}

// Parse implements [deps.Ecosystem].
func (*YarnBerry) Parse(files deps.Files) ([]deps.RawRecord, error) {
	data, err := files.Require(yarnLock)
	if err != nil {
		return nil, err
	}

	var meta berryMetadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "parse %s", yarnLock)
	}
	version, err := strconv.Atoi(meta.Metadata.Version)
	if err != nil || version < minBerryVersion {
		return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s: unsupported __metadata.version %q", yarnLock, meta.Metadata.Version)
	}

	var lock map[string]*BerryLockfileEntry
	if err := yaml.Unmarshal(data, &lock); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "parse %s", yarnLock)
	}
	delete(lock, "__metadata")

	keys := slices.Sorted(maps.Keys(lock))
	byDescriptor := make(map[string]locator.Reference)
	for _, key := range keys {
		e := lock[key]
		if e == nil || e.Resolution == "" {
			return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s: %q has no resolution", yarnLock, key)
		}
		for _, d := range strings.Split(key, ",") {
			byDescriptor[strings.TrimSpace(d)] = locator.Reference(e.Resolution)
		}
	}

	lookup := func(name, rng string) (locator.Reference, bool) {
		for _, d := range []string{name + "@" + rng, name + "@npm:" + rng} {
			if ref, ok := byDescriptor[d]; ok {
				return ref, true
			}
		}
		return "", false
	}

	var (
		records []deps.RawRecord
		rootIdx = -1
	)
	for _, key := range keys {
		e := lock[key]
		name, _, _ := locator.SplitDescriptor(e.Resolution)
		rec := deps.RawRecord{
			Name:      name,
			Version:   e.Version,
			Reference: locator.Reference(e.Resolution),
		}
		if strings.HasPrefix(rec.Version, "0.0.0-use.local") {
			rec.Version = ""
		}
		if e.Checksum != "" {
			c, err := berryChecksum(e.Checksum, meta.Metadata.CacheKey)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "%s: %q", yarnLock, key)
			}
			rec.Checksums = []checksum.Checksum{c}
		}

		for _, dep := range sortedPairs(e.Dependencies) {
			ref, ok := lookup(dep[0], dep[1])
			if !ok {
				if e.DependenciesMeta[dep[0]]["optional"] {
					continue
				}
				return nil, errors.New(errors.ErrCodeMalformedLockfile,
					"%s: %s depends on %s@%s, which has no entry", yarnLock, e.Resolution, dep[0], dep[1])
			}
			rec.Dependencies = appendRef(rec.Dependencies, ref)
		}
		for _, dep := range sortedPairs(e.OptionalDependencies) {
			if ref, ok := lookup(dep[0], dep[1]); ok {
				rec.Dependencies = appendRef(rec.Dependencies, ref)
			}
		}
		if strings.HasSuffix(e.Resolution, "@workspace:.") {
			rootIdx = len(records)
		}
		records = append(records, rec)
	}

	if raw, ok := files[packageJSON]; ok && rootIdx >= 0 {
		pkg, err := parsePackageJSON(raw)
		if err != nil {
			return nil, err
		}
		var prod, dev []locator.Reference
		for _, p := range pkg.prodDeps() {
			if ref, ok := lookup(p[0], p[1]); ok {
				prod = appendRef(prod, ref)
			}
		}
		for _, p := range pkg.devDeps() {
			if ref, ok := lookup(p[0], p[1]); ok {
				dev = appendRef(dev, ref)
			}
		}
		records[rootIdx].License = licenseString(pkg.License)
		markDev(records, prod, dev)
	}
	return records, nil
}

// berryChecksum accepts the "<cacheKey>/<hex>" form of yarn 4 and the bare
// hex form of older lockfiles, which keep the cache key in __metadata.
func berryChecksum(raw, cacheKey string) (checksum.Checksum, error) {
	if strings.Contains(raw, "/") {
		return checksum.Parse(raw)
	}
	if cacheKey == "" {
		cacheKey = "0"
	}
	return checksum.Parse(cacheKey + "/" + raw)
}

// Render disables network access and points yarn at the fetched packages.
func (*YarnBerry) Render(in deps.RenderInput) (*deps.Directives, error) {
	return deps.NewDirectives().
		Set("YARN_ENABLE_NETWORK", "0").
		Set("YARN_ENABLE_GLOBAL_CACHE", "false").
		Set("YARN_ENABLE_IMMUTABLE_INSTALLS", "true").
		Set("YARN_GLOBAL_FOLDER", in.DepsDir).
		Set("YARN_CACHE_FOLDER", in.DepsDir+"/cache"), nil
}
