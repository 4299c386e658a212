package rust

import (
	"context"
	stderrors "errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/package-url/packageurl-go"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/integrations"
	"github.com/matzehuels/prefetch/pkg/locator"
)

// vendoredSource is the source name the generated cargo config replaces
// every remote source with.
const vendoredSource = "vendored-sources"

// Cargo reads Cargo.lock and vendors crates as unpacked directories.
type Cargo struct {
	client   *integrations.Client
	cratesDL string
}

// NewCargo returns the cargo ecosystem. crates.io downloads come from
// opts.CratesDL; alternate sparse registries are asked for their download
// template.
func NewCargo(opts deps.Options) *Cargo {
	opts = opts.WithDefaults()
	return &Cargo{
		client:   integrations.NewClient(opts.Cache, "cargo:", opts.CacheTTL, nil),
		cratesDL: strings.TrimSuffix(opts.CratesDL, "/"),
	}
}

func (*Cargo) Name() string               { return "cargo" }
func (*Cargo) Experimental() bool         { return false }
func (*Cargo) Resolver() locator.Resolver { return locator.ResolverFunc(Resolve) }

func (*Cargo) Lockfiles() []deps.Lockfile {
	return []deps.Lockfile{{Name: cargoLock}, {Name: cargoToml}, {Name: cargoConfig, Optional: true}}
}

// Resolve handles "name@version::registry=<index>" for alternate registries
// and defers everything else to [locator.Parse].
func Resolve(ref locator.Reference, ctx locator.Context) (locator.Locator, error) {
	base, index, ok := strings.Cut(string(ref), "::registry=")
	if !ok {
		return locator.Parse(ref, ctx)
	}
	name, version, ok := locator.SplitDescriptor(base)
	if !ok || index == "" {
		return nil, errors.New(errors.ErrCodeInvalidLocator, "invalid registry reference %q", ref)
	}
	if err := errors.ValidateCratesPackageName(name); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLocator, err, "reference %q", ref)
	}
	if _, err := semver.StrictNewVersion(version); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLocator, err, "reference %q is not pinned to a version", ref)
	}
	return &locator.Registry{Name: name, Version: version, RegistryURL: index}, nil
}

// Parse implements [deps.Ecosystem].
func (*Cargo) Parse(files deps.Files) ([]deps.RawRecord, error) {
	lockData, err := files.Require(cargoLock)
	if err != nil {
		return nil, err
	}
	manifestData, err := files.Require(cargoToml)
	if err != nil {
		return nil, err
	}
	lock, err := parseLock(lockData)
	if err != nil {
		return nil, err
	}
	m, err := parseManifest(manifestData)
	if err != nil {
		return nil, err
	}
	return parseRecords(lock, m)
}

// ResolveArtifact implements [deps.ArtifactResolver] for registry crates.
func (c *Cargo) ResolveArtifact(ctx context.Context, a deps.Artifact) (deps.Download, error) {
	reg, ok := locator.Unwrap(a.Locator).(*locator.Registry)
	if !ok {
		return deps.Download{}, errors.New(errors.ErrCodeUnsupportedFeature, "%s is not a registry crate", a.Locator)
	}
	sum, _ := checksum.Strongest(a.Checksums)
	file := reg.Name + "-" + reg.Version + ".crate"
	if reg.RegistryURL == "" {
		return deps.Download{
			URL:      c.cratesDL + "/" + reg.Name + "/" + file,
			Checksum: sum,
			Filename: file,
		}, nil
	}

	dl, err := c.downloadTemplate(ctx, reg.RegistryURL)
	if err != nil {
		return deps.Download{}, err
	}
	return deps.Download{URL: expandTemplate(dl, reg.Name, reg.Version, sum), Checksum: sum, Filename: file}, nil
}

type registryConfig struct {
	DL string `json:"dl"`
}

// downloadTemplate reads the "dl" key of a sparse index's config.json.
func (c *Cargo) downloadTemplate(ctx context.Context, index string) (string, error) {
	base, ok := strings.CutPrefix(index, "sparse+")
	if !ok {
		return "", errors.New(errors.ErrCodeUnsupportedFeature, "git registry index %s is not supported, use a sparse index", index)
	}
	var cfg registryConfig
	err := c.client.Cached(ctx, base, false, &cfg, func() error {
		return c.client.Get(ctx, strings.TrimSuffix(base, "/")+"/config.json", &cfg)
	})
	if err != nil {
		if stderrors.Is(err, integrations.ErrNotFound) {
			return "", errors.Wrap(errors.ErrCodeUnresolvableReference, err, "registry %s has no config.json", base)
		}
		return "", errors.Wrap(errors.ErrCodeFetchFailed, err, "registry config of %s", base)
	}
	if cfg.DL == "" {
		return "", errors.New(errors.ErrCodeUnresolvableReference, "registry %s publishes no download URL", base)
	}
	return cfg.DL, nil
}

// expandTemplate fills a registry "dl" template. Templates without markers
// get "/{crate}/{version}/download" appended.
func expandTemplate(dl, name, version string, sum checksum.Checksum) string {
	markers := []string{"{crate}", "{version}", "{prefix}", "{lowerprefix}", "{sha256-checksum}"}
	if !slices.ContainsFunc(markers, func(m string) bool { return strings.Contains(dl, m) }) {
		return strings.TrimSuffix(dl, "/") + "/" + name + "/" + version + "/download"
	}
	prefix := cratePrefix(name)
	return strings.NewReplacer(
		"{crate}", name,
		"{version}", version,
		"{prefix}", prefix,
		"{lowerprefix}", strings.ToLower(prefix),
		"{sha256-checksum}", sum.Value,
	).Replace(dl)
}

// cratePrefix is the index directory of a crate: "1", "2", "3/a" or
// "ab/cd".
func cratePrefix(name string) string {
	switch len(name) {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3/" + name[:1]
	}
	return name[:2] + "/" + name[2:4]
}

// Layout places every remote crate in its own "<name>-<version>" directory
// of the vendored source. Local crates are not materialized.
func (*Cargo) Layout(a deps.Artifact) string {
	switch locator.Unwrap(a.Locator).(type) {
	case *locator.Registry, *locator.Git:
		return a.Name + "-" + a.Version
	}
	return ""
}

// PackageURL adds the lockfile checksum, the git origin of git crates and
// the index of alternate registries.
func (*Cargo) PackageURL(a deps.Artifact) packageurl.PackageURL {
	var qs packageurl.Qualifiers
	if c, ok := checksum.Strongest(a.Checksums); ok && c.Algorithm == checksum.SHA256 {
		qs = append(qs, packageurl.Qualifier{Key: "checksum", Value: c.Value})
	}
	src := a.Properties[deps.PropResolved]
	switch sourceKind(src) {
	case sourceGit:
		repo, _, commit := gitSource(src)
		qs = append(qs, packageurl.Qualifier{Key: "vcs_url", Value: "git+" + repo + "@" + commit})
	case sourceRegistry:
		qs = append(qs, packageurl.Qualifier{Key: "repository_url", Value: strings.TrimPrefix(registryIndex(src), "sparse+")})
	}
	return *packageurl.NewPackageURL(packageurl.TypeCargo, "", a.Name, a.Version, qs, "")
}

// Render writes .cargo/config.toml: the project's sanitized registries
// followed by source replacement of crates.io, every git source and every
// alternate registry with the vendored directory.
func (*Cargo) Render(in deps.RenderInput) (*deps.Directives, error) {
	var b strings.Builder
	if raw, ok := in.Files[cargoConfig]; ok {
		regs, err := SanitizeConfig(string(raw))
		if err != nil {
			return nil, err
		}
		if regs != "" {
			b.WriteString(regs)
			b.WriteString("\n")
		}
	}

	b.WriteString("[source.crates-io]\nreplace-with = \"" + vendoredSource + "\"\n")

	sources := make(map[string]string)
	for _, a := range in.Artifacts {
		src := a.Properties[deps.PropResolved]
		if k := sourceKind(src); k == sourceGit || k == sourceRegistry {
			sources[sourceKey(src)] = src
		}
	}
	for _, key := range slices.Sorted(maps.Keys(sources)) {
		src := sources[key]
		fmt.Fprintf(&b, "\n[source.%s]\n", strconv.Quote(key))
		if sourceKind(src) == sourceGit {
			repo, query, _ := gitSource(src)
			fmt.Fprintf(&b, "git = %s\n", strconv.Quote(repo))
			if k, v, ok := strings.Cut(query, "="); ok {
				fmt.Fprintf(&b, "%s = %s\n", k, strconv.Quote(v))
			}
		} else {
			fmt.Fprintf(&b, "registry = %s\n", strconv.Quote(registryIndex(src)))
		}
		fmt.Fprintf(&b, "replace-with = %q\n", vendoredSource)
	}

	fmt.Fprintf(&b, "\n[source.%s]\ndirectory = %s\n", vendoredSource, strconv.Quote(in.DepsDir))

	return deps.NewDirectives().
		Set("CARGO_NET_OFFLINE", "true").
		AddFile(cargoConfig, b.String()), nil
}

// sourceKey names a replaced source after its lockfile source without
// the commit.
func sourceKey(src string) string {
	key, _, _ := strings.Cut(src, "#")
	return key
}

