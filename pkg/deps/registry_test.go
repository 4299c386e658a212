package deps

import (
	"context"
	"testing"

	"github.com/package-url/packageurl-go"

	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/locator"
)

type stubEcosystem struct{ name string }

func (s stubEcosystem) Name() string                        { return s.name }
func (s stubEcosystem) Lockfiles() []Lockfile               { return []Lockfile{{Name: "lock"}} }
func (s stubEcosystem) Experimental() bool                  { return false }
func (s stubEcosystem) Parse(Files) ([]RawRecord, error)    { return nil, nil }
func (s stubEcosystem) Resolver() locator.Resolver          { return locator.ResolverFunc(locator.Parse) }
func (s stubEcosystem) Layout(Artifact) string              { return "" }
func (s stubEcosystem) Render(RenderInput) (*Directives, error) { return NewDirectives(), nil }
func (s stubEcosystem) PackageURL(a Artifact) packageurl.PackageURL {
	return *packageurl.NewPackageURL("generic", "", a.Name, a.Version, nil, "")
}

type resolvingEcosystem struct{ stubEcosystem }

func (resolvingEcosystem) ResolveArtifact(context.Context, Artifact) (Download, error) {
	return Download{}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(stubEcosystem{"npm"}, resolvingEcosystem{stubEcosystem{"pip"}}, stubEcosystem{"cargo"})

	if got := r.Names(); len(got) != 3 || got[0] != "cargo" || got[2] != "pip" {
		t.Errorf("Names() = %v", got)
	}

	e, err := r.Get(" NPM ")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if e.Name() != "npm" {
		t.Errorf("Get() = %s, want npm", e.Name())
	}

	if _, err := r.Get("maven"); !errors.Is(err, errors.ErrCodeInvalidEcosystem) {
		t.Errorf("Get(maven) error = %v, want INVALID_ECOSYSTEM", err)
	}

	ars := r.ArtifactResolvers()
	if len(ars) != 1 || ars["pip"] == nil {
		t.Errorf("ArtifactResolvers() = %v", ars)
	}
}

func TestFilesRequire(t *testing.T) {
	files := Files{"Cargo.lock": []byte("x")}
	if _, err := files.Require("Cargo.lock"); err != nil {
		t.Errorf("Require() error = %v", err)
	}
	if _, err := files.Require("Cargo.toml"); !errors.Is(err, errors.ErrCodeMalformedLockfile) {
		t.Errorf("Require(missing) error = %v", err)
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{NpmRegistry: "http://localhost"}.WithDefaults()
	if opts.NpmRegistry != "http://localhost" {
		t.Errorf("NpmRegistry overwritten: %s", opts.NpmRegistry)
	}
	if opts.PyPIURL != DefaultPyPIURL || opts.CacheTTL != DefaultCacheTTL || opts.Cache == nil {
		t.Errorf("defaults not applied: %+v", opts)
	}
	opts.Logger("no-op %d", 1)
}
