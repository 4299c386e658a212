package golang

import (
	"context"
	"encoding/json"
	"path"
	"path/filepath"
	"strings"

	"github.com/package-url/packageurl-go"
	"golang.org/x/mod/module"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/locator"
)

// Artifact kinds of a go.sum entry.
const (
	kindZip = "zip"
	kindMod = "mod"
)

// downloadDir is the module download cache below the deps directory; it
// doubles as a file:// GOPROXY.
const downloadDir = "pkg/mod/cache/download"

// GoMod reads go.sum and go.mod and populates a module download cache.
type GoMod struct {
	proxy string
}

// NewGoMod returns the gomod ecosystem. Module zips and go.mod files are
// downloaded from opts.GoProxy.
func NewGoMod(opts deps.Options) *GoMod {
	opts = opts.WithDefaults()
	proxy, _, _ := strings.Cut(opts.GoProxy, ",")
	return &GoMod{proxy: strings.TrimSuffix(proxy, "/")}
}

func (*GoMod) Name() string               { return "gomod" }
func (*GoMod) Experimental() bool         { return false }
func (*GoMod) Resolver() locator.Resolver { return locator.ResolverFunc(Resolve) }

func (*GoMod) Lockfiles() []deps.Lockfile {
	return []deps.Lockfile{{Name: goMod}, {Name: goSum, Optional: true}}
}

// Resolve handles "<module>@<version>" and "<module>@<version>/go.mod".
// Workspace references of local replacements go to [locator.Parse].
func Resolve(ref locator.Reference, ctx locator.Context) (locator.Locator, error) {
	s := string(ref)
	if strings.HasPrefix(s, "workspace:") {
		return locator.Parse(ref, ctx)
	}
	p, v, ok := strings.Cut(s, "@")
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidLocator, "go module reference %q has no version", ref)
	}
	if err := module.Check(p, strings.TrimSuffix(v, modSuffix)); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLocator, err, "go module reference %q", ref)
	}
	return &locator.Registry{Name: p, Version: v}, nil
}

// Parse implements [deps.Ecosystem]. A module without dependencies has no
// go.sum and yields the main module only.
func (*GoMod) Parse(files deps.Files) ([]deps.RawRecord, error) {
	data, err := files.Require(goMod)
	if err != nil {
		return nil, err
	}
	f, err := parseMod(data)
	if err != nil {
		return nil, err
	}
	var sums []sumLine
	if raw, ok := files[goSum]; ok {
		if sums, err = parseSum(raw); err != nil {
			return nil, err
		}
	}
	return buildRecords(f, sums), nil
}

// ResolveArtifact implements [deps.ArtifactResolver]. go.sum pins no URL,
// so every module file is looked up on the configured proxy.
func (g *GoMod) ResolveArtifact(_ context.Context, a deps.Artifact) (deps.Download, error) {
	reg, ok := locator.Unwrap(a.Locator).(*locator.Registry)
	if !ok {
		return deps.Download{}, errors.New(errors.ErrCodeUnsupportedFeature, "%s is not a go module", a.Locator)
	}
	rel, err := proxyPath(reg)
	if err != nil {
		return deps.Download{}, err
	}
	sum, _ := checksum.Strongest(a.Checksums)
	return deps.Download{URL: g.proxy + "/" + rel, Checksum: sum, Filename: path.Base(rel)}, nil
}

// proxyPath returns "<escaped module>/@v/<escaped version>.zip" or ".mod".
func proxyPath(reg *locator.Registry) (string, error) {
	version, modOnly := strings.CutSuffix(reg.Version, modSuffix)
	escPath, err := module.EscapePath(reg.Name)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidLocator, err, "module path %s", reg.Name)
	}
	escVersion, err := module.EscapeVersion(version)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidLocator, err, "module version %s", version)
	}
	ext := ".zip"
	if modOnly {
		ext = ".mod"
	}
	return escPath + "/@v/" + escVersion + ext, nil
}

// Layout places module files in the download cache layout of GOMODCACHE.
func (*GoMod) Layout(a deps.Artifact) string {
	reg, ok := locator.Unwrap(a.Locator).(*locator.Registry)
	if !ok {
		return ""
	}
	rel, err := proxyPath(reg)
	if err != nil {
		return ""
	}
	return path.Join(downloadDir, rel)
}

// IsComponent implements [deps.ComponentFilter]: go.mod-only entries are
// fetched for module graph pruning but are not part of the build.
func (*GoMod) IsComponent(a deps.Artifact) bool {
	return a.Properties[deps.PropArtifactKind] != kindMod
}

// PackageURL splits the module path into namespace and name.
func (*GoMod) PackageURL(a deps.Artifact) packageurl.PackageURL {
	ns, name := path.Split(a.Name)
	return *packageurl.NewPackageURL(packageurl.TypeGolang, strings.TrimSuffix(ns, "/"), name, a.Version, nil, "")
}

type versionInfo struct {
	Version string
}

// Render points the go command at the populated cache. Each module also
// gets the .info file the proxy protocol serves next to .mod and .zip.
func (*GoMod) Render(in deps.RenderInput) (*deps.Directives, error) {
	modCache := path.Join(filepath.ToSlash(in.DepsDir), "pkg/mod")
	d := deps.NewDirectives().
		Set("GOMODCACHE", modCache).
		Set("GOPROXY", "file://"+path.Join(modCache, "cache/download")).
		Set("GOSUMDB", "off").
		Set("GOFLAGS", "-mod=mod")

	rel, err := filepath.Rel(in.OutputDir, in.DepsDir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "deps directory outside the output directory")
	}
	seen := make(map[string]bool)
	for _, a := range in.Artifacts {
		if a.Path == "" {
			continue
		}
		info := strings.TrimSuffix(strings.TrimSuffix(a.Path, ".zip"), ".mod") + ".info"
		if seen[info] {
			continue
		}
		seen[info] = true
		data, err := json.Marshal(versionInfo{Version: a.Version})
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode %s", info)
		}
		d.AddOutputFile(path.Join(filepath.ToSlash(rel), info), string(data))
	}
	return d, nil
}
