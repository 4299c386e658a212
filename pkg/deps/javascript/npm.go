package javascript

import (
	"encoding/json"
	"maps"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/package-url/packageurl-go"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/locator"
)

const packageLock = "package-lock.json"

// NPM reads package-lock.json (lockfileVersion 2 and 3).
type NPM struct {
	registryResolver
}

// NewNPM returns the npm ecosystem.
func NewNPM(opts deps.Options) *NPM {
	return &NPM{registryResolver: newRegistryResolver(opts.WithDefaults())}
}

func (*NPM) Name() string                  { return "npm" }
func (*NPM) Experimental() bool            { return false }
func (*NPM) Resolver() locator.Resolver    { return locator.ResolverFunc(locator.Parse) }
func (*NPM) Layout(a deps.Artifact) string { return tarballLayout(a) }

func (*NPM) Lockfiles() []deps.Lockfile {
	return []deps.Lockfile{{Name: packageLock}}
}

func (*NPM) PackageURL(a deps.Artifact) packageurl.PackageURL { return packageURL(a) }

// Shrinkwrap is the package-lock.json document.
type Shrinkwrap struct {
	Name            string             `json:"name"`
	Version         string             `json:"version"`
	LockfileVersion int                `json:"lockfileVersion"`
	Packages        map[string]Package `json:"packages"`
}

// Package is one entry of the "packages" map. The key is the install path
// ("node_modules/a/node_modules/b") or, for workspaces, the package path.
type Package struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Resolved             string            `json:"resolved"`
	Integrity            string            `json:"integrity"`
	License              any               `json:"license"`
	Link                 bool              `json:"link"`
	Dev                  bool              `json:"dev"`
	Optional             bool              `json:"optional"`
	InBundle             bool              `json:"inBundle"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
}

// Parse implements [deps.Ecosystem].
func (*NPM) Parse(files deps.Files) ([]deps.RawRecord, error) {
	data, err := files.Require(packageLock)
	if err != nil {
		return nil, err
	}
	var lock Shrinkwrap
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "parse %s", packageLock)
	}
	if lock.LockfileVersion != 2 && lock.LockfileVersion != 3 {
		return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s: unsupported lockfileVersion %d", packageLock, lock.LockfileVersion)
	}
	if _, ok := lock.Packages[""]; !ok {
		return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s has no root package entry", packageLock)
	}

	p := &lockParser{lock: &lock, refs: make(map[string]locator.Reference)}
	keys := slices.Sorted(maps.Keys(lock.Packages))
	for _, key := range keys {
		if err := p.reference(key); err != nil {
			return nil, err
		}
	}

	var records []deps.RawRecord
	for _, key := range keys {
		ref, ok := p.refs[key]
		if !ok {
			continue
		}
		rec, err := p.record(key, ref)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

type lockParser struct {
	lock *Shrinkwrap
	refs map[string]locator.Reference // install path -> reference; links and bundled entries are absent
}

// reference computes the reference of the entry at key.
func (p *lockParser) reference(key string) error {
	pkg := p.lock.Packages[key]
	switch {
	case key == "":
		p.refs[key] = "workspace:."
		return nil
	case pkg.Link, pkg.InBundle:
		return nil
	case !isInstallPath(key):
		if strings.HasPrefix(key, "../") {
			p.refs[key] = locator.Reference("file:" + key)
		} else {
			p.refs[key] = locator.Reference("workspace:" + key)
		}
		return nil
	}

	name := packageName(key, pkg)
	switch {
	case pkg.Resolved == "" && pkg.Version == "":
		return errors.New(errors.ErrCodeMalformedLockfile, "%s: %s has neither version nor resolved", packageLock, key)
	case pkg.Resolved == "":
		p.refs[key] = locator.Reference(name + "@npm:" + pkg.Version)
	case strings.HasPrefix(pkg.Resolved, "file:"), strings.HasPrefix(pkg.Resolved, "git"),
		strings.HasPrefix(pkg.Resolved, "http://"), strings.HasPrefix(pkg.Resolved, "https://"):
		p.refs[key] = locator.Reference(name + "@" + pkg.Resolved)
	default:
		return errors.New(errors.ErrCodeMalformedLockfile, "%s: %s has unrecognized resolved %q", packageLock, key, pkg.Resolved)
	}
	return nil
}

func (p *lockParser) record(key string, ref locator.Reference) (deps.RawRecord, error) {
	pkg := p.lock.Packages[key]
	rec := deps.RawRecord{
		Name:      packageName(key, pkg),
		Version:   pkg.Version,
		Reference: ref,
		Dev:       pkg.Dev,
		Optional:  pkg.Optional,
		License:   licenseString(pkg.License),
	}
	if key == "" && rec.Name == "" {
		rec.Name = p.lock.Name
	}
	if pkg.Integrity != "" {
		sums, err := checksum.ParseIntegrity(pkg.Integrity)
		if err != nil {
			return deps.RawRecord{}, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "%s: %s", packageLock, key)
		}
		rec.Checksums = sums
	}
	if pkg.Resolved != "" && isInstallPath(key) {
		rec.SetProperty(deps.PropResolved, pkg.Resolved)
	}

	required := sortedPairs(pkg.Dependencies)
	if !isInstallPath(key) {
		required = append(required, sortedPairs(pkg.DevDependencies)...)
	}
	optional := append(sortedPairs(pkg.OptionalDependencies), sortedPairs(pkg.PeerDependencies)...)

	for _, dep := range required {
		target, ok := p.lookup(key, dep[0])
		if !ok {
			return deps.RawRecord{}, errors.New(errors.ErrCodeMalformedLockfile,
				"%s: %s depends on %s, which is not installed", packageLock, displayKey(key), dep[0])
		}
		rec.Dependencies = appendRef(rec.Dependencies, target)
	}
	for _, dep := range optional {
		if target, ok := p.lookup(key, dep[0]); ok {
			rec.Dependencies = appendRef(rec.Dependencies, target)
		}
	}
	return rec, nil
}

// lookup applies the node_modules resolution algorithm: the nearest
// node_modules directory from key upwards that contains name wins.
func (p *lockParser) lookup(key, name string) (locator.Reference, bool) {
	dir := key
	for {
		candidate := path.Join(dir, "node_modules", name)
		if dir == "" {
			candidate = "node_modules/" + name
		}
		if ref, ok := p.follow(candidate); ok {
			return ref, true
		}
		if dir == "" {
			return "", false
		}
		dir = parentInstallDir(dir)
	}
}

// follow returns the reference of the entry at key, following links.
func (p *lockParser) follow(key string) (locator.Reference, bool) {
	for range 8 {
		pkg, ok := p.lock.Packages[key]
		if !ok {
			return "", false
		}
		if !pkg.Link {
			ref, ok := p.refs[key]
			return ref, ok
		}
		key = strings.TrimPrefix(path.Clean(pkg.Resolved), "./")
	}
	return "", false
}

// parentInstallDir strips the last "node_modules/<name>" segment, or
// returns "" once the root is reached.
func parentInstallDir(dir string) string {
	i := strings.LastIndex(dir, "node_modules/")
	if i <= 0 {
		return ""
	}
	return strings.TrimSuffix(dir[:i], "/")
}

func isInstallPath(key string) bool {
	return strings.HasPrefix(key, "node_modules/") || strings.Contains(key, "/node_modules/")
}

func packageName(key string, pkg Package) string {
	if pkg.Name != "" {
		return pkg.Name
	}
	if i := strings.LastIndex(key, "node_modules/"); i >= 0 {
		return key[i+len("node_modules/"):]
	}
	return path.Base(key)
}

func displayKey(key string) string {
	if key == "" {
		return "the root package"
	}
	return key
}

func appendRef(refs []locator.Reference, ref locator.Reference) []locator.Reference {
	if slices.Contains(refs, ref) {
		return refs
	}
	return append(refs, ref)
}

// Render points npm at the materialized tarballs by rewriting the resolved
// URLs of package-lock.json and disabling network access.
func (*NPM) Render(in deps.RenderInput) (*deps.Directives, error) {
	d := deps.NewDirectives().
		Set("npm_config_offline", "true").
		Set("npm_config_audit", "false").
		Set("npm_config_fund", "false")
	d.AddFile(".npmrc", "offline=true\naudit=false\nfund=false\n")
	if lock, ok := in.Files[packageLock]; ok {
		d.AddFile(packageLock, rewriteResolved(lock, in, strconv.Quote))
	}
	return d, nil
}
