package python

import (
	"context"
	stderrors "errors"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/package-url/packageurl-go"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/integrations"
	"github.com/matzehuels/prefetch/pkg/integrations/pypi"
	"github.com/matzehuels/prefetch/pkg/locator"
)

const (
	requirementsFile = "requirements.txt"
	buildFile        = "requirements-build.txt"
	pyprojectFile    = "pyproject.toml"
)

// Pip reads fully pinned requirements files.
type Pip struct {
	client *pypi.Client
	logger func(string, ...any)
}

// NewPip returns the pip ecosystem. Registry artifacts are looked up in the
// PyPI JSON API at opts.PyPIURL.
func NewPip(opts deps.Options) *Pip {
	opts = opts.WithDefaults()
	return &Pip{
		client: pypi.NewClient(opts.Cache, opts.CacheTTL).WithBaseURL(opts.PyPIURL),
		logger: opts.Logger,
	}
}

func (*Pip) Name() string               { return "pip" }
func (*Pip) Experimental() bool         { return false }
func (*Pip) Resolver() locator.Resolver { return locator.ResolverFunc(Resolve) }

func (*Pip) Lockfiles() []deps.Lockfile {
	return []deps.Lockfile{
		{Name: requirementsFile},
		{Name: buildFile, Optional: true},
		{Name: pyprojectFile, Optional: true},
	}
}

// Resolve handles "name==version" registry pins and defers everything
// else to [locator.Parse].
func Resolve(ref locator.Reference, ctx locator.Context) (locator.Locator, error) {
	if name, version, ok := strings.Cut(string(ref), "=="); ok && !strings.Contains(name, "@") {
		if err := errors.ValidatePythonPackageName(name); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidLocator, err, "pip reference %q", ref)
		}
		if version == "" {
			return nil, errors.New(errors.ErrCodeInvalidLocator, "pip reference %q has no version", ref)
		}
		return &locator.Registry{Name: name, Version: version}, nil
	}
	return locator.Parse(ref, ctx)
}

type pyproject struct {
	Project struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Name    string `toml:"name"`
			Version string `toml:"version"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// Parse implements [deps.Ecosystem]. Runtime requirements come first, then
// build requirements; with a pyproject.toml the project itself leads as
// the root.
func (p *Pip) Parse(files deps.Files) ([]deps.RawRecord, error) {
	data, err := files.Require(requirementsFile)
	if err != nil {
		return nil, err
	}
	reqs, ignored, err := parseRequirements(requirementsFile, data)
	if err != nil {
		return nil, err
	}
	var build []requirement
	if raw, ok := files[buildFile]; ok {
		var more []string
		if build, more, err = parseRequirements(buildFile, raw); err != nil {
			return nil, err
		}
		ignored = append(ignored, more...)
	}
	for _, opt := range ignored {
		p.logger("pip: ignoring option %s", opt)
	}

	var records []deps.RawRecord
	if raw, ok := files[pyprojectFile]; ok {
		var proj pyproject
		if err := toml.Unmarshal(raw, &proj); err != nil {
			return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "parse %s", pyprojectFile)
		}
		root := deps.RawRecord{
			Name:      firstNonEmpty(proj.Project.Name, proj.Tool.Poetry.Name),
			Version:   firstNonEmpty(proj.Project.Version, proj.Tool.Poetry.Version),
			Reference: "workspace:.",
		}
		for _, r := range append(append([]requirement(nil), reqs...), build...) {
			root.Dependencies = append(root.Dependencies, r.reference())
		}
		records = append(records, root)
	}

	for _, r := range reqs {
		records = append(records, r.record(false))
	}
	for _, r := range build {
		records = append(records, r.record(true))
	}
	return records, nil
}

func (r requirement) record(buildDep bool) deps.RawRecord {
	rec := deps.RawRecord{
		Name:      r.name,
		Version:   r.version,
		Reference: r.reference(),
		Checksums: r.hashes,
	}
	rec.SetProperty(deps.PropArtifactKind, r.kind)
	if len(r.hashes) == 0 {
		rec.SetProperty(deps.PropMissingHash, "true")
	}
	if buildDep {
		rec.SetProperty(deps.PropBuildDependency, "true")
	}
	if r.raw != "" {
		rec.SetProperty(deps.PropResolved, r.raw)
	}
	return rec
}

// ResolveArtifact implements [deps.ArtifactResolver]. A pin with hashes
// selects the published file matching one of them; a pin without hashes
// selects the sdist.
func (p *Pip) ResolveArtifact(ctx context.Context, a deps.Artifact) (deps.Download, error) {
	reg, ok := locator.Unwrap(a.Locator).(*locator.Registry)
	if !ok {
		return deps.Download{}, errors.New(errors.ErrCodeUnsupportedFeature, "%s is not a PyPI package", a.Locator)
	}
	if reg.URL != "" {
		return deps.Download{URL: reg.URL, Filename: path.Base(reg.URL)}, nil
	}

	rel, err := p.client.FetchRelease(ctx, reg.Name, reg.Version, false)
	if err != nil {
		if stderrors.Is(err, integrations.ErrNotFound) {
			return deps.Download{}, errors.Wrap(errors.ErrCodeUnresolvableReference, err, "%s==%s", reg.Name, reg.Version)
		}
		return deps.Download{}, errors.Wrap(errors.ErrCodeFetchFailed, err, "PyPI metadata for %s==%s", reg.Name, reg.Version)
	}

	if len(a.Checksums) > 0 {
		f, ok := rel.Match(a.Checksums)
		if !ok {
			return deps.Download{}, errors.New(errors.ErrCodeUnresolvableReference,
				"no file of %s==%s matches the hashes in the requirements file", reg.Name, reg.Version)
		}
		return deps.Download{URL: f.URL, Checksum: f.Checksum(), Filename: f.Filename}, nil
	}
	for _, f := range rel.Files {
		if f.PackageType == "sdist" && !f.Yanked {
			return deps.Download{URL: f.URL, Checksum: f.Checksum(), Filename: f.Filename}, nil
		}
	}
	return deps.Download{}, errors.New(errors.ErrCodeUnresolvableReference, "%s==%s publishes no sdist", reg.Name, reg.Version)
}

// Layout places registry files flat in the find-links directory and direct
// references below external-<name>/.
func (*Pip) Layout(a deps.Artifact) string {
	switch a.Properties[deps.PropArtifactKind] {
	case KindURL:
		src := firstNonEmpty(a.Filename, a.Source)
		if reg, ok := locator.Unwrap(a.Locator).(*locator.Registry); ok && src == "" {
			src = reg.URL
		}
		if c, ok := checksum.Strongest(a.Checksums); ok {
			return path.Join("external-"+a.Name, a.Name+"-external-"+string(c.Algorithm)+"-"+c.Value+archiveExt(src))
		}
		return path.Join("external-"+a.Name, path.Base(firstNonEmpty(src, a.Name)))
	case KindVCS:
		if g, ok := locator.Unwrap(a.Locator).(*locator.Git); ok {
			return path.Join("external-"+a.Name, a.Name+"-external-gitcommit-"+g.Ref+".tar.gz")
		}
	}
	if a.Filename != "" {
		return path.Base(a.Filename)
	}
	return a.Name + "-" + a.Version + ".tar.gz"
}

func archiveExt(name string) string {
	for _, ext := range []string{".tar.gz", ".tar.bz2", ".tar.xz", ".tgz", ".zip", ".whl"} {
		if strings.HasSuffix(name, ext) {
			return ext
		}
	}
	return path.Ext(name)
}

// PackageURL implements [deps.Ecosystem].
func (*Pip) PackageURL(a deps.Artifact) packageurl.PackageURL {
	var qs packageurl.Qualifiers
	version := a.Version
	switch l := locator.Unwrap(a.Locator).(type) {
	case *locator.Git:
		version = ""
		qs = append(qs, packageurl.Qualifier{Key: "vcs_url", Value: "git+" + l.URL + "@" + l.Ref})
	case *locator.Registry:
		if l.URL != "" {
			version = ""
			qs = append(qs, packageurl.Qualifier{Key: "download_url", Value: l.URL})
			if c, ok := checksum.Strongest(a.Checksums); ok {
				qs = append(qs, packageurl.Qualifier{Key: "checksum", Value: string(c.Algorithm) + ":" + c.Value})
			}
		}
	}
	return *packageurl.NewPackageURL(packageurl.TypePyPi, "", a.Name, version, qs, "")
}

// Render disables the index and rewrites direct references in the
// requirements files to the materialized archives.
func (*Pip) Render(in deps.RenderInput) (*deps.Directives, error) {
	d := deps.NewDirectives().
		Set("PIP_FIND_LINKS", in.DepsDir).
		Set("PIP_NO_INDEX", "true")

	for _, name := range []string{requirementsFile, buildFile} {
		data, ok := in.Files[name]
		if !ok {
			continue
		}
		out := string(data)
		for _, a := range in.Artifacts {
			raw := a.Properties[deps.PropResolved]
			if raw == "" || a.Path == "" {
				continue
			}
			out = strings.ReplaceAll(out, raw, "file://"+path.Join(in.DepsDir, a.Path))
		}
		if out != string(data) {
			d.AddFile(name, out)
		}
	}
	return d, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
