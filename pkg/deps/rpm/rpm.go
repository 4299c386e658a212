package rpm

import (
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/package-url/packageurl-go"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/locator"
)

const (
	propVendor = "vendor"
	// repoFile is written per arch below the deps directory.
	repoFile = "prefetch.repo"
)

// RPM reads rpms.lock.yaml and lays packages out as local repositories.
type RPM struct{}

// NewRPM returns the rpm ecosystem.
func NewRPM(deps.Options) *RPM { return &RPM{} }

func (*RPM) Name() string               { return "rpm" }
func (*RPM) Experimental() bool         { return true }
func (*RPM) Resolver() locator.Resolver { return locator.ResolverFunc(locator.Parse) }

func (*RPM) Lockfiles() []deps.Lockfile {
	return []deps.Lockfile{{Name: rpmsLock}}
}

// Parse implements [deps.Ecosystem]. Every entry hangs off an unnamed
// project root. A URL listed under several arches is one artifact; its
// properties come from the first occurrence.
func (*RPM) Parse(files deps.Files) ([]deps.RawRecord, error) {
	data, err := files.Require(rpmsLock)
	if err != nil {
		return nil, err
	}
	lock, err := parseLockfile(data)
	if err != nil {
		return nil, err
	}

	records := []deps.RawRecord{{Reference: "workspace:."}}
	for _, a := range lock.Arches {
		for _, e := range a.entries() {
			rec, err := record(lock, a.Arch, e)
			if err != nil {
				return nil, err
			}
			if !slices.Contains(records[0].Dependencies, rec.Reference) {
				records[0].Dependencies = append(records[0].Dependencies, rec.Reference)
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

func record(lock *lockfile, arch string, e entry) (deps.RawRecord, error) {
	name, version, fileArch := nevra(e.URL)
	if e.kind == kindModuleMetadata {
		name, version, fileArch = path.Base(e.URL), "", arch
	}
	rec := deps.RawRecord{
		Name:      name,
		Version:   version,
		Reference: locator.Reference(name + "@" + e.URL),
	}
	rec.SetProperty(deps.PropArtifactKind, e.kind)
	rec.SetProperty(deps.PropArch, firstNonEmpty(fileArch, arch))
	rec.SetProperty(deps.PropRepoID, e.repoID())
	if lock.LockfileVendor != "" {
		rec.SetProperty(propVendor, lock.LockfileVendor)
	}
	if e.Checksum == "" {
		rec.SetProperty(deps.PropMissingHash, "true")
		return rec, nil
	}
	c, err := checksum.Parse(e.Checksum)
	if err != nil {
		return rec, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "%s: %s", rpmsLock, e.URL)
	}
	if !c.Verifiable() {
		return rec, errors.New(errors.ErrCodeMalformedLockfile, "%s: %s has an unusable checksum %s", rpmsLock, e.URL, c)
	}
	rec.Checksums = []checksum.Checksum{c}
	return rec, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Layout groups files by repository: "<repoid>/<file>".
func (*RPM) Layout(a deps.Artifact) string {
	reg, ok := locator.Unwrap(a.Locator).(*locator.Registry)
	if !ok || reg.URL == "" {
		return ""
	}
	e := entry{RepoID: a.Properties[deps.PropRepoID], URL: reg.URL}
	return path.Join(e.repoID(), path.Base(reg.URL))
}

// IsComponent implements [deps.ComponentFilter]: module metadata is
// repository data, not a package.
func (*RPM) IsComponent(a deps.Artifact) bool {
	return a.Properties[deps.PropArtifactKind] != kindModuleMetadata
}

func (*RPM) PackageURL(a deps.Artifact) packageurl.PackageURL {
	qs := packageurl.QualifiersFromMap(map[string]string{
		"arch":          a.Properties[deps.PropArch],
		"repository_id": a.Properties[deps.PropRepoID],
	})
	if c, ok := checksum.Strongest(a.Checksums); ok {
		qs = append(qs, packageurl.Qualifier{Key: "checksum", Value: c.String()})
	}
	return *packageurl.NewPackageURL(packageurl.TypeRPM, a.Properties[propVendor], a.Name, a.Version, qs, "")
}

// Render writes one dnf .repo file per arch listing the repositories its
// entries live in. Repository metadata is generated at build time with
// createrepo_c against the same directories.
func (*RPM) Render(in deps.RenderInput) (*deps.Directives, error) {
	d := deps.NewDirectives()
	data, ok := in.Files[rpmsLock]
	if !ok {
		return d, nil
	}
	lock, err := parseLockfile(data)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(in.OutputDir, in.DepsDir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "deps directory outside the output directory")
	}
	base := filepath.ToSlash(in.DepsDir)

	for _, a := range lock.Arches {
		var repos []string
		for _, e := range a.entries() {
			if !slices.Contains(repos, e.repoID()) {
				repos = append(repos, e.repoID())
			}
		}
		if len(repos) == 0 {
			continue
		}
		var b strings.Builder
		for i, id := range repos {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("[" + id + "]\n")
			b.WriteString("name=" + id + "\n")
			b.WriteString("baseurl=file://" + path.Join(base, id) + "\n")
			b.WriteString("enabled=1\n")
			b.WriteString("gpgcheck=1\n")
		}
		d.AddOutputFile(path.Join(filepath.ToSlash(rel), a.Arch, repoFile), b.String())
	}
	return d, nil
}
