package rust

import (
	"path"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/locator"
)

const (
	cargoLock   = "Cargo.lock"
	cargoToml   = "Cargo.toml"
	cargoConfig = ".cargo/config.toml"
)

// Cargo.lock format versions accepted besides the unversioned v2 format.
var lockVersions = map[int]bool{3: true, 4: true}

type lockFile struct {
	Version  *int              `toml:"version"`
	Packages []lockPackage     `toml:"package"`
	Metadata map[string]string `toml:"metadata"`
}

type lockPackage struct {
	Name         string   `toml:"name"`
	Version      string   `toml:"version"`
	Source       string   `toml:"source"`
	Checksum     string   `toml:"checksum"`
	Dependencies []string `toml:"dependencies"`
}

// manifest is the part of Cargo.toml needed to place local crates.
type manifest struct {
	Package *struct {
		Name    string `toml:"name"`
		Version any    `toml:"version"`
		License any    `toml:"license"`
	} `toml:"package"`
	Workspace *struct {
		Members      []string       `toml:"members"`
		Dependencies map[string]any `toml:"dependencies"`
		Package      struct {
			Version any `toml:"version"`
			License any `toml:"license"`
		} `toml:"package"`
	} `toml:"workspace"`
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
}

// MainPackage returns the name and version of the project. A virtual
// workspace has no name of its own; its version comes from
// [workspace.package] when set.
func (m *manifest) MainPackage() (name, version string) {
	if m.Package != nil {
		name = m.Package.Name
		version = str(m.Package.Version)
		if version == "" && m.Workspace != nil {
			version = str(m.Workspace.Package.Version)
		}
		return name, version
	}
	if m.Workspace != nil {
		return "", str(m.Workspace.Package.Version)
	}
	return "", ""
}

func (m *manifest) license() string {
	if m.Package != nil {
		if l := str(m.Package.License); l != "" {
			return l
		}
	}
	if m.Workspace != nil {
		return str(m.Workspace.Package.License)
	}
	return ""
}

// pathDependencies maps crate names to their declared path.
func (m *manifest) pathDependencies() map[string]string {
	out := make(map[string]string)
	tables := []map[string]any{m.Dependencies, m.DevDependencies, m.BuildDependencies}
	if m.Workspace != nil {
		tables = append(tables, m.Workspace.Dependencies)
	}
	for _, tbl := range tables {
		for key, v := range tbl {
			spec, ok := v.(map[string]any)
			if !ok {
				continue
			}
			p, ok := spec["path"].(string)
			if !ok {
				continue
			}
			name := key
			if renamed, ok := spec["package"].(string); ok {
				name = renamed
			}
			out[name] = path.Clean(p)
		}
	}
	return out
}

// memberPath finds the workspace member directory of a local crate by
// name. "crates/*" globs match "crates/<name>".
func (m *manifest) memberPath(name string) (string, bool) {
	if m.Workspace == nil {
		return "", false
	}
	for _, member := range m.Workspace.Members {
		member = strings.TrimSuffix(path.Clean(member), "/")
		if strings.ContainsAny(member, "*?[") {
			candidate := path.Join(path.Dir(member), name)
			if ok, _ := path.Match(member, candidate); ok {
				return candidate, true
			}
			continue
		}
		if path.Base(member) == name {
			return member, true
		}
	}
	return "", false
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func parseManifest(data []byte) (*manifest, error) {
	var m manifest
	if _, err := toml.Decode(string(data), &m); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "parse %s", cargoToml)
	}
	return &m, nil
}

func parseLock(data []byte) (*lockFile, error) {
	var lock lockFile
	if _, err := toml.Decode(string(data), &lock); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "parse %s", cargoLock)
	}
	if lock.Version == nil && len(lock.Metadata) > 0 {
		return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s: version 1 lockfiles are not supported, run cargo update", cargoLock)
	}
	if lock.Version != nil && !lockVersions[*lock.Version] {
		return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s: unsupported lockfile version %d", cargoLock, *lock.Version)
	}
	for i, p := range lock.Packages {
		if p.Name == "" || p.Version == "" {
			return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s: package %d lacks a name or version", cargoLock, i+1)
		}
	}
	return &lock, nil
}

// source kinds of a Cargo.lock package
const (
	sourceLocal    = "local"
	sourceCratesIO = "crates.io"
	sourceRegistry = "registry"
	sourceGit      = "git"
)

func sourceKind(src string) string {
	switch {
	case src == "":
		return sourceLocal
	case strings.HasPrefix(src, "git+"):
		return sourceGit
	case strings.Contains(src, "crates.io"):
		return sourceCratesIO
	}
	return sourceRegistry
}

// gitSource splits "git+<url>[?<kind>=<value>]#<commit>".
func gitSource(src string) (repo, query, commit string) {
	rest := strings.TrimPrefix(src, "git+")
	rest, commit, _ = strings.Cut(rest, "#")
	repo, query, _ = strings.Cut(rest, "?")
	return repo, query, commit
}

// registryIndex strips the "registry+" marker; sparse indexes keep their
// "sparse+" prefix, which cargo needs to tell the protocols apart.
func registryIndex(src string) string {
	return strings.TrimPrefix(src, "registry+")
}

// reference returns the identity reference of a lockfile package.
func (p lockPackage) reference(local func(string) (locator.Reference, error)) (locator.Reference, error) {
	switch sourceKind(p.Source) {
	case sourceLocal:
		return local(p.Name)
	case sourceGit:
		repo, _, commit := gitSource(p.Source)
		if commit == "" {
			return "", errors.New(errors.ErrCodeMalformedLockfile, "%s: git source of %s is not pinned to a commit", cargoLock, p.Name)
		}
		return locator.Reference(p.Name + "@git+" + repo + "#commit=" + commit + "&path=" + p.Name), nil
	case sourceRegistry:
		return locator.Reference(p.Name + "@" + p.Version + "::registry=" + registryIndex(p.Source)), nil
	}
	return locator.Reference(p.Name + "@" + p.Version), nil
}

// parseRecords turns a lockfile into records. Local crates resolve to the
// project root, a path dependency or a workspace member; a virtual
// workspace gets a synthetic root listing its members.
func parseRecords(lock *lockFile, m *manifest) ([]deps.RawRecord, error) {
	mainName, mainVersion := m.MainPackage()
	pathDeps := m.pathDependencies()

	local := func(name string) (locator.Reference, error) {
		if name == mainName {
			return "workspace:.", nil
		}
		if p, ok := pathDeps[name]; ok {
			return locator.Reference("workspace:" + p), nil
		}
		if p, ok := m.memberPath(name); ok {
			return locator.Reference("workspace:" + p), nil
		}
		return "", errors.New(errors.ErrCodeMalformedLockfile,
			"%s: local crate %s is neither the main package, a workspace member nor a path dependency", cargoLock, name)
	}

	refs := make([]locator.Reference, len(lock.Packages))
	for i, p := range lock.Packages {
		ref, err := p.reference(local)
		if err != nil {
			return nil, err
		}
		refs[i] = ref
	}

	var records []deps.RawRecord
	if m.Package == nil {
		root := deps.RawRecord{Reference: "workspace:.", Version: mainVersion, License: m.license()}
		for i, p := range lock.Packages {
			if sourceKind(p.Source) != sourceLocal {
				continue
			}
			if _, ok := m.memberPath(p.Name); ok {
				root.Dependencies = append(root.Dependencies, refs[i])
			}
		}
		records = append(records, root)
	}

	for i, p := range lock.Packages {
		rec := deps.RawRecord{
			Name:      p.Name,
			Version:   p.Version,
			Reference: refs[i],
		}
		if refs[i] == "workspace:." {
			rec.License = m.license()
		}
		if p.Checksum != "" {
			c, err := checksum.New(checksum.SHA256, p.Checksum)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "%s: checksum of %s", cargoLock, p.Name)
			}
			rec.Checksums = []checksum.Checksum{c}
		}
		if p.Source != "" {
			rec.SetProperty(deps.PropResolved, p.Source)
		}
		for _, d := range p.Dependencies {
			j, err := findDependency(lock.Packages, d)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "%s: dependency of %s", cargoLock, p.Name)
			}
			rec.Dependencies = append(rec.Dependencies, refs[j])
		}
		records = append(records, rec)
	}
	return records, nil
}

// findDependency resolves "name", "name version" or
// "name version (source)" to a package index.
func findDependency(pkgs []lockPackage, dep string) (int, error) {
	fields := strings.Fields(dep)
	if len(fields) == 0 {
		return 0, errors.New(errors.ErrCodeMalformedLockfile, "empty dependency")
	}
	var version, source string
	if len(fields) > 1 {
		version = fields[1]
	}
	if len(fields) > 2 {
		source = strings.TrimSuffix(strings.TrimPrefix(fields[2], "("), ")")
	}

	match := -1
	for i, p := range pkgs {
		if p.Name != fields[0] || (version != "" && p.Version != version) || (source != "" && p.Source != source) {
			continue
		}
		if match >= 0 {
			return 0, errors.New(errors.ErrCodeMalformedLockfile, "ambiguous dependency %q", dep)
		}
		match = i
	}
	if match < 0 {
		return 0, errors.New(errors.ErrCodeMalformedLockfile, "no package matches %q", dep)
	}
	return match, nil
}
