package ruby

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/package-url/packageurl-go"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/prefetch/pkg/archive"
	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/locator"
)

// bundleConfig is the project-level bundler config Render writes.
const bundleConfig = ".bundle/config"

// Bundler reads Gemfile.lock and fills a bundler package cache.
type Bundler struct{}

// NewBundler returns the bundler ecosystem.
func NewBundler(deps.Options) *Bundler { return &Bundler{} }

func (*Bundler) Name() string               { return "bundler" }
func (*Bundler) Experimental() bool         { return false }
func (*Bundler) Resolver() locator.Resolver { return locator.ResolverFunc(locator.Parse) }

func (*Bundler) Lockfiles() []deps.Lockfile {
	return []deps.Lockfile{{Name: gemfileLock}}
}

// Parse implements [deps.Ecosystem]. The project is the root and depends
// on the DEPENDENCIES entries; a PATH source at "." is the project's own
// gemspec and names the root.
func (*Bundler) Parse(files deps.Files) ([]deps.RawRecord, error) {
	data, err := files.Require(gemfileLock)
	if err != nil {
		return nil, err
	}
	lock, err := parseLockfile(data)
	if err != nil {
		return nil, err
	}

	byName := make(map[string][]*spec)
	refs := make(map[*spec]locator.Reference)
	for _, src := range lock.Sources {
		for _, s := range src.Specs {
			byName[s.Name] = append(byName[s.Name], s)
			ref, err := reference(s)
			if err != nil {
				return nil, err
			}
			refs[s] = ref
		}
	}
	edges := func(names []string) []locator.Reference {
		var out []locator.Reference
		for _, name := range names {
			for _, s := range byName[name] {
				if refs[s] != "workspace:." {
					out = append(out, refs[s])
				}
			}
		}
		return out
	}

	root := deps.RawRecord{Reference: "workspace:.", Dependencies: edges(lock.Dependencies)}
	records := []deps.RawRecord{root}
	for _, src := range lock.Sources {
		for _, s := range src.Specs {
			if refs[s] == "workspace:." {
				records[0].Name, records[0].Version = s.Name, s.Version
				records[0].Dependencies = append(records[0].Dependencies, edges(s.Deps)...)
				continue
			}
			rec := deps.RawRecord{
				Name:         s.Name,
				Version:      s.Version,
				Reference:    refs[s],
				Dependencies: edges(s.Deps),
			}
			rec.SetProperty(deps.PropArtifactKind, strings.ToLower(src.Kind))
			if s.Platform != "" {
				rec.SetProperty(deps.PropPlatform, s.Platform)
			}
			if src.Kind == sourceGem {
				if c, ok := lock.Checksums[s.key()]; ok {
					rec.Checksums = []checksum.Checksum{c}
				} else {
					rec.SetProperty(deps.PropMissingHash, "true")
				}
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

// reference returns the identity of a spec:
//
//	GEM:  rack@https://rubygems.org/gems/rack-3.0.8.gem
//	GIT:  foo@git+https://github.com/org/foo.git#commit=<sha>&path=foo
//	PATH: bar@workspace:vendor/bar
func reference(s *spec) (locator.Reference, error) {
	switch s.Source.Kind {
	case sourceGem:
		remote := strings.TrimSuffix(s.Source.Remote, "/")
		if !strings.HasPrefix(remote, "http://") && !strings.HasPrefix(remote, "https://") {
			return "", errors.New(errors.ErrCodeUnsupportedFeature, "%s: gem source %s is not an HTTP(S) server", gemfileLock, s.Source.Remote)
		}
		return locator.Reference(s.Name + "@" + remote + "/gems/" + s.fullName() + ".gem"), nil
	case sourceGit:
		return locator.Reference(s.Name + "@git+" + s.Source.Remote + "#commit=" + s.Source.Revision + "&path=" + s.Name), nil
	}
	dir := path.Clean(s.Source.Remote)
	if dir == "." {
		return "workspace:.", nil
	}
	return locator.Reference(s.Name + "@workspace:" + dir), nil
}

// Layout follows bundler's package cache: gems by file name, git sources
// as "<repo>-<12 hex digits of the revision>" checkouts.
func (*Bundler) Layout(a deps.Artifact) string {
	switch l := locator.Unwrap(a.Locator).(type) {
	case *locator.Registry:
		if l.URL != "" {
			return path.Base(l.URL)
		}
		return a.Name + "-" + a.Version + ".gem"
	case *locator.Git:
		return gitCacheDir(l)
	}
	return ""
}

func gitCacheDir(g *locator.Git) string {
	base := strings.TrimSuffix(path.Base(strings.TrimSuffix(g.URL, "/")), ".git")
	ref := g.Ref
	if len(ref) > 12 {
		ref = ref[:12]
	}
	return base + "-" + ref
}

// Unpacks implements [deps.Unpacker]: git sources are expected unpacked.
func (*Bundler) Unpacks(a deps.Artifact) bool {
	_, ok := locator.Unwrap(a.Locator).(*locator.Git)
	return ok
}

// Unpack implements [deps.Unpacker]. Bundler only accepts cached git
// checkouts that carry a .bundlecache marker.
func (*Bundler) Unpack(_ deps.Artifact, src, dst string) error {
	return archive.ExtractInto(src, dst, func(root string) (string, error) {
		dir := root
		if entries, err := os.ReadDir(root); err == nil && len(entries) == 1 && entries[0].IsDir() {
			dir = filepath.Join(root, entries[0].Name())
		}
		if err := os.WriteFile(filepath.Join(dir, ".bundlecache"), nil, 0o644); err != nil {
			return "", errors.Wrap(errors.ErrCodeInternal, err, "write .bundlecache")
		}
		return dir, nil
	})
}

// PackageURL records the platform of native gems and the origin of git
// gems.
func (*Bundler) PackageURL(a deps.Artifact) packageurl.PackageURL {
	var qs packageurl.Qualifiers
	if p := a.Properties[deps.PropPlatform]; p != "" {
		qs = append(qs, packageurl.Qualifier{Key: "platform", Value: p})
	}
	if g, ok := locator.Unwrap(a.Locator).(*locator.Git); ok {
		qs = append(qs, packageurl.Qualifier{Key: "vcs_url", Value: "git+" + g.URL + "@" + g.Ref})
	}
	return *packageurl.NewPackageURL(packageurl.TypeGem, "", a.Name, a.Version, qs, "")
}

// Render configures bundler for an offline deployment install from the
// package cache, both as variables and as .bundle/config.
func (*Bundler) Render(in deps.RenderInput) (*deps.Directives, error) {
	settings := map[string]string{
		"BUNDLE_CACHE_PATH":            in.DepsDir,
		"BUNDLE_DEPLOYMENT":            "true",
		"BUNDLE_NO_PRUNE":              "true",
		"BUNDLE_ALLOW_OFFLINE_INSTALL": "true",
		"BUNDLE_DISABLE_VERSION_CHECK": "true",
		"BUNDLE_VERSION":               "system",
	}
	d := deps.NewDirectives()
	for k, v := range settings {
		d.Set(k, v)
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode %s", bundleConfig)
	}
	return d.AddFile(bundleConfig, "---\n"+string(data)), nil
}
