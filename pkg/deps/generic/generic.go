package generic

import (
	"bytes"
	"io"
	"net/url"
	"path"

	"github.com/package-url/packageurl-go"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/locator"
)

const (
	artifactsLock = "artifacts.lock.yaml"
	lockVersion   = "1.0"
)

type lockfile struct {
	Metadata struct {
		Version string `yaml:"version"`
	} `yaml:"metadata"`
	Artifacts []artifact `yaml:"artifacts"`
}

type artifact struct {
	DownloadURL string `yaml:"download_url"`
	Checksum    string `yaml:"checksum"`
	Filename    string `yaml:"filename"`
}

// Generic downloads arbitrary files listed in artifacts.lock.yaml.
type Generic struct{}

// NewGeneric returns the generic ecosystem.
func NewGeneric(deps.Options) *Generic { return &Generic{} }

func (*Generic) Name() string               { return "generic" }
func (*Generic) Experimental() bool         { return false }
func (*Generic) Resolver() locator.Resolver { return locator.ResolverFunc(Resolve) }

func (*Generic) Lockfiles() []deps.Lockfile {
	return []deps.Lockfile{{Name: artifactsLock}}
}

// Resolve treats every reference other than the project root as a plain
// download URL, so URLs ending in .git are not taken for repositories.
func Resolve(ref locator.Reference, ctx locator.Context) (locator.Locator, error) {
	s := string(ref)
	if s == "workspace:." {
		return locator.Parse(ref, ctx)
	}
	if err := errors.ValidateURL(s); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLocator, err, "generic reference %q", ref)
	}
	return &locator.Registry{Name: path.Base(s), URL: s}, nil
}

// Parse implements [deps.Ecosystem]. File names and download URLs must be
// unique.
func (*Generic) Parse(files deps.Files) ([]deps.RawRecord, error) {
	data, err := files.Require(artifactsLock)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var lock lockfile
	if err := dec.Decode(&lock); err != nil {
		if err == io.EOF {
			return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s is empty", artifactsLock)
		}
		return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "parse %s", artifactsLock)
	}
	if lock.Metadata.Version != lockVersion {
		return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s: unsupported metadata.version %q", artifactsLock, lock.Metadata.Version)
	}

	records := []deps.RawRecord{{Reference: "workspace:."}}
	seen := make(map[string]int)
	for i, a := range lock.Artifacts {
		rec, err := record(a)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "%s: artifacts[%d]", artifactsLock, i)
		}
		for _, key := range []string{"file:" + rec.Name, "url:" + a.DownloadURL} {
			if j, dup := seen[key]; dup {
				return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s: artifacts[%d] repeats the %s of artifacts[%d]", artifactsLock, i, key, j)
			}
			seen[key] = i
		}
		records[0].Dependencies = append(records[0].Dependencies, rec.Reference)
		records = append(records, rec)
	}
	return records, nil
}

func record(a artifact) (deps.RawRecord, error) {
	if err := errors.ValidateURL(a.DownloadURL); err != nil {
		return deps.RawRecord{}, err
	}
	u, _ := url.Parse(a.DownloadURL)
	if u.Fragment != "" {
		return deps.RawRecord{}, errors.New(errors.ErrCodeInvalidInput, "download_url %q has a fragment", a.DownloadURL)
	}
	name := a.Filename
	if name == "" {
		name = path.Base(u.Path)
	}
	if err := errors.ValidatePath(name); err != nil {
		return deps.RawRecord{}, err
	}
	if name == "." || name == "/" {
		return deps.RawRecord{}, errors.New(errors.ErrCodeInvalidInput, "no file name in %q", a.DownloadURL)
	}
	if a.Checksum == "" {
		return deps.RawRecord{}, errors.New(errors.ErrCodeInvalidInput, "%s has no checksum", name)
	}
	c, err := checksum.Parse(a.Checksum)
	if err != nil {
		return deps.RawRecord{}, err
	}
	if !c.Verifiable() {
		return deps.RawRecord{}, errors.New(errors.ErrCodeInvalidInput, "%s: checksum %s cannot be verified", name, c)
	}

	rec := deps.RawRecord{
		Name:      name,
		Reference: locator.Reference(a.DownloadURL),
		Checksums: []checksum.Checksum{c},
	}
	rec.SetProperty(deps.PropFilename, name)
	return rec, nil
}

// Layout places each artifact at its file name.
func (*Generic) Layout(a deps.Artifact) string {
	if name := a.Properties[deps.PropFilename]; name != "" {
		return path.Clean(name)
	}
	return ""
}

// IsComponent implements [deps.ComponentFilter]. The project root is not
// a component; only the listed artifacts are.
func (*Generic) IsComponent(a deps.Artifact) bool {
	_, root := a.Locator.(*locator.Workspace)
	return !root
}

func (*Generic) PackageURL(a deps.Artifact) packageurl.PackageURL {
	qs := map[string]string{}
	if reg, ok := locator.Unwrap(a.Locator).(*locator.Registry); ok {
		qs["download_url"] = reg.URL
	}
	if c, ok := checksum.Strongest(a.Checksums); ok {
		qs["checksum"] = c.String()
	}
	return *packageurl.NewPackageURL(packageurl.TypeGeneric, "", a.Name, a.Version, packageurl.QualifiersFromMap(qs), "")
}

// Render returns no directives: nothing consumes generic artifacts
// implicitly.
func (*Generic) Render(deps.RenderInput) (*deps.Directives, error) {
	return deps.NewDirectives(), nil
}
