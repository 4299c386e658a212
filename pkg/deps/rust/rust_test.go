package rust

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/locator"
)

func TestSanitizeConfig(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{
			name: "only safe fields",
			in: `
[registries.example-registry]
index = "https://my-registry.example.com:8080/index"
`,
			want: "[registries.example-registry]\nindex = \"https://my-registry.example.com:8080/index\"\n",
		},
		{
			name: "unsafe fields dropped",
			in: `
[registries.my-registry]
index =     "https://my-intranet:8080/git/index"
token =     "secret-token"
credential-provider = "cargo:token"
dangerous-field = "should-be-removed"

[registries.other-registry]
index = "https://other.example.com/index"
custom-field = "should-be-removed"

[build]
jobs = 4
`,
			want: `[registries.my-registry]
index = "https://my-intranet:8080/git/index"
token = "secret-token"
credential-provider = "cargo:token"

[registries.other-registry]
index = "https://other.example.com/index"
`,
		},
		{
			name: "credential provider array",
			in:   "[registries.corp]\nindex = \"sparse+https://corp/\"\ncredential-provider = [\"cargo:token-from-stdout\", \"fetch-token\"]\n",
			want: "[registries.corp]\nindex = \"sparse+https://corp/\"\ncredential-provider = [\"cargo:token-from-stdout\", \"fetch-token\"]\n",
		},
		{name: "registries without index", in: "[registries]\n"},
		{name: "registry without value", in: "[registries.example-registry]\n"},
		{name: "no registries", in: "[build]\njobs = 4\n\n[net]\ngit-fetch-with-cli = true\n"},
		{name: "empty", in: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeConfig(tt.in)
			if err != nil {
				t.Fatalf("SanitizeConfig() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("SanitizeConfig() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestSanitizeConfigMalformed(t *testing.T) {
	for _, in := range []string{
		"[registries.my-registry\nindex = \"https://example.com\"\n",
		"[registries.my-registry]\nindex = \"https://example.com\"\ntoken = [this is invalid without quotes\n",
	} {
		if _, err := SanitizeConfig(in); !errors.Is(err, errors.ErrCodeMalformedLockfile) {
			t.Errorf("SanitizeConfig(%q) error = %v, want MALFORMED_LOCKFILE", in, err)
		}
	}
}

func TestCargoPackageURL(t *testing.T) {
	eco := NewCargo(deps.Options{})
	sum := checksum.Checksum{Algorithm: checksum.SHA256, Value: serdeSum}
	tests := []struct {
		name   string
		source string
		sums   []checksum.Checksum
		want   map[string]string
	}{
		{"local", "", nil, map[string]string{}},
		{"crates.io", "registry+https://github.com/rust-lang/crates.io-index", []checksum.Checksum{sum}, map[string]string{"checksum": serdeSum}},
		{"git", "git+https://github.com/rust-random/rand?rev=abc123#abc123", nil, map[string]string{"vcs_url": "git+https://github.com/rust-random/rand@abc123"}},
		{"alternate registry", "registry+https://my-registry.example.com/index", nil, map[string]string{"repository_url": "https://my-registry.example.com/index"}},
		{"sparse registry", "sparse+https://my-registry.example.com/index/", nil, map[string]string{"repository_url": "https://my-registry.example.com/index/"}},
		{"crates.io mirror", "registry+https://my-crates.io-mirror.example.com/index", []checksum.Checksum{sum}, map[string]string{"checksum": serdeSum}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			purl := eco.PackageURL(deps.Artifact{
				Name:       "foo",
				Version:    "0.1.0",
				Checksums:  tt.sums,
				Properties: map[string]string{deps.PropResolved: tt.source},
			})
			if purl.Type != "cargo" || purl.Name != "foo" || purl.Version != "0.1.0" {
				t.Errorf("purl = %s", purl.ToString())
			}
			got := purl.Qualifiers.Map()
			if len(got) != len(tt.want) {
				t.Fatalf("qualifiers = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("qualifier %s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestCargoLayout(t *testing.T) {
	eco := NewCargo(deps.Options{})
	tests := []struct {
		loc  locator.Locator
		want string
	}{
		{&locator.Registry{Name: "serde", Version: "1.0.195"}, "serde-1.0.195"},
		{&locator.Git{URL: "https://github.com/rust-random/rand.git", Ref: randSHA, Subpath: "rand"}, "serde-1.0.195"},
		{&locator.Workspace{PackagePath: "crates/util"}, ""},
	}
	for _, tt := range tests {
		if got := eco.Layout(deps.Artifact{Name: "serde", Version: "1.0.195", Locator: tt.loc}); got != tt.want {
			t.Errorf("Layout(%s) = %q, want %q", tt.loc, got, tt.want)
		}
	}
}

func TestCargoRender(t *testing.T) {
	eco := NewCargo(deps.Options{})
	resolved := func(src string) map[string]string { return map[string]string{deps.PropResolved: src} }
	in := deps.RenderInput{
		DepsDir: "/out/deps/cargo",
		Files: deps.Files{
			cargoConfig: []byte("[registries.corp]\nindex = \"sparse+https://crates.corp.example/index/\"\n\n[build]\njobs = 4\n"),
		},
		Artifacts: []deps.Artifact{
			{Name: "serde", Properties: resolved("registry+https://github.com/rust-lang/crates.io-index")},
			{Name: "rand", Properties: resolved("git+https://github.com/rust-random/rand?branch=main#" + randSHA)},
			{Name: "rand_core", Properties: resolved("git+https://github.com/rust-random/rand?branch=main#" + randSHA)},
			{Name: "private", Properties: resolved("sparse+https://crates.corp.example/index/")},
			{Name: "app", Properties: map[string]string{}},
		},
	}
	d, err := eco.Render(in)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if d.Variables["CARGO_NET_OFFLINE"] != "true" {
		t.Errorf("Variables = %v", d.Variables)
	}
	if len(d.ProjectFiles) != 1 || d.ProjectFiles[0].Path != cargoConfig {
		t.Fatalf("ProjectFiles = %v", d.ProjectFiles)
	}

	want := `[registries.corp]
index = "sparse+https://crates.corp.example/index/"

[source.crates-io]
replace-with = "vendored-sources"

[source."git+https://github.com/rust-random/rand?branch=main"]
git = "https://github.com/rust-random/rand"
branch = "main"
replace-with = "vendored-sources"

[source."sparse+https://crates.corp.example/index/"]
registry = "sparse+https://crates.corp.example/index/"
replace-with = "vendored-sources"

[source.vendored-sources]
directory = "/out/deps/cargo"
`
	if got := d.ProjectFiles[0].Content; got != want {
		t.Errorf("config.toml =\n%s\nwant\n%s", got, want)
	}
}

func fakeSparseIndex(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	r := chi.NewRouter()
	r.Get("/plain/config.json", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"dl": srv.URL + "/api/v1/crates"})
	})
	r.Get("/templated/config.json", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"dl": srv.URL + "/files/{prefix}/{crate}-{version}.crate?sum={sha256-checksum}"})
	})
	r.Get("/empty/config.json", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("{}"))
	})
	srv = httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestCargoResolveArtifact(t *testing.T) {
	srv := fakeSparseIndex(t)
	eco := NewCargo(deps.Options{CratesDL: "https://static.example/crates/"})
	ctx := context.Background()
	sum := checksum.Checksum{Algorithm: checksum.SHA256, Value: privSum}

	tests := []struct {
		name string
		reg  *locator.Registry
		want string
	}{
		{"crates.io", &locator.Registry{Name: "serde", Version: "1.0.195"}, "https://static.example/crates/serde/serde-1.0.195.crate"},
		{"plain dl", &locator.Registry{Name: "private", Version: "1.0.0", RegistryURL: "sparse+" + srv.URL + "/plain/"}, srv.URL + "/api/v1/crates/private/1.0.0/download"},
		{"templated dl", &locator.Registry{Name: "private", Version: "1.0.0", RegistryURL: "sparse+" + srv.URL + "/templated/"}, srv.URL + "/files/pr/iv/private-1.0.0.crate?sum=" + privSum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dl, err := eco.ResolveArtifact(ctx, deps.Artifact{Locator: tt.reg, Checksums: []checksum.Checksum{sum}})
			if err != nil {
				t.Fatalf("ResolveArtifact() error: %v", err)
			}
			if dl.URL != tt.want {
				t.Errorf("URL = %s, want %s", dl.URL, tt.want)
			}
			if dl.Checksum != sum || dl.Filename != tt.reg.Name+"-"+tt.reg.Version+".crate" {
				t.Errorf("ResolveArtifact() = %+v", dl)
			}
		})
	}

	errTests := []struct {
		name string
		loc  locator.Locator
		code errors.Code
	}{
		{"git index", &locator.Registry{Name: "x", Version: "1.0.0", RegistryURL: "registry+https://github.com/org/index"}, errors.ErrCodeUnsupportedFeature},
		{"missing config", &locator.Registry{Name: "x", Version: "1.0.0", RegistryURL: "sparse+" + srv.URL + "/missing/"}, errors.ErrCodeUnresolvableReference},
		{"no dl", &locator.Registry{Name: "x", Version: "1.0.0", RegistryURL: "sparse+" + srv.URL + "/empty/"}, errors.ErrCodeUnresolvableReference},
		{"git crate", &locator.Git{URL: "https://github.com/org/x.git", Ref: randSHA}, errors.ErrCodeUnsupportedFeature},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eco.ResolveArtifact(ctx, deps.Artifact{Locator: tt.loc})
			if !errors.Is(err, tt.code) {
				t.Errorf("ResolveArtifact() error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestCratePrefix(t *testing.T) {
	tests := map[string]string{
		"a":     "1",
		"ab":    "2",
		"abc":   "3/a",
		"serde": "se/rd",
		"Cargo": "Ca/rg",
	}
	for name, want := range tests {
		if got := cratePrefix(name); got != want {
			t.Errorf("cratePrefix(%q) = %q, want %q", name, got, want)
		}
	}
	got := expandTemplate("https://dl/{lowerprefix}/{crate}", "Cargo", "1.0.0", checksum.Checksum{})
	if got != "https://dl/ca/rg/Cargo" {
		t.Errorf("expandTemplate() = %s", got)
	}
}

type tarEntry struct {
	name, body string
	typ        byte
}

func writeTarGz(t *testing.T, entries []tarEntry) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		typ := e.typ
		if typ == 0 {
			typ = tar.TypeReg
		}
		hdr := &tar.Header{Name: e.name, Typeflag: typ, Mode: 0o644, Size: int64(len(e.body))}
		if typ != tar.TypeReg {
			hdr.Size = 0
			hdr.Mode = 0o755
			hdr.Linkname = e.body
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if typ == tar.TypeReg {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "archive.tar.gz")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readChecksumFile(t *testing.T, dir string) checksumFile {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, ".cargo-checksum.json"))
	if err != nil {
		t.Fatalf("read checksum file: %v", err)
	}
	var cf checksumFile
	if err := json.Unmarshal(data, &cf); err != nil {
		t.Fatalf("decode checksum file: %v", err)
	}
	return cf
}

func TestCargoUnpackRegistryCrate(t *testing.T) {
	src := writeTarGz(t, []tarEntry{
		{name: "private-1.0.0/", typ: tar.TypeDir},
		{name: "private-1.0.0/Cargo.toml", body: "[package]\nname = \"private\"\nversion = \"1.0.0\"\n"},
		{name: "private-1.0.0/src/lib.rs", body: "pub fn f() {}\n"},
		{name: "private-1.0.0/link", body: "/etc/passwd", typ: tar.TypeSymlink},
	})
	dst := filepath.Join(t.TempDir(), "deps", "cargo", "private-1.0.0")
	a := deps.Artifact{
		Name:      "private",
		Version:   "1.0.0",
		Locator:   &locator.Registry{Name: "private", Version: "1.0.0"},
		Checksums: []checksum.Checksum{{Algorithm: checksum.SHA256, Value: privSum}},
	}
	if err := NewCargo(deps.Options{}).Unpack(a, src, dst); err != nil {
		t.Fatalf("Unpack() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "src", "lib.rs")); err != nil {
		t.Errorf("src/lib.rs not unpacked: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(dst, "link")); !os.IsNotExist(err) {
		t.Errorf("symlink was extracted: %v", err)
	}
	if cf := readChecksumFile(t, dst); cf.Package == nil || *cf.Package != privSum || cf.Files == nil {
		t.Errorf("checksum file = %+v", cf)
	}

	entries, _ := os.ReadDir(filepath.Dir(dst))
	if len(entries) != 1 {
		t.Errorf("temporary directories left behind: %v", entries)
	}
}

func TestCargoUnpackGitCrate(t *testing.T) {
	src := writeTarGz(t, []tarEntry{
		{name: "package/Cargo.toml", body: "[workspace]\nmembers = [\"rand\", \"rand_core\"]\n"},
		{name: "package/rand/Cargo.toml", body: "[package]\nname = \"rand\"\nversion = \"0.9.0\"\n"},
		{name: "package/rand/src/lib.rs", body: "\n"},
		{name: "package/rand_core/Cargo.toml", body: "[package]\nname = \"rand_core\"\nversion = \"0.9.0\"\n"},
	})
	dst := filepath.Join(t.TempDir(), "rand-0.9.0")
	a := deps.Artifact{
		Name:    "rand",
		Version: "0.9.0",
		Locator: &locator.Git{URL: "https://github.com/rust-random/rand.git", Ref: randSHA, Subpath: "rand"},
	}
	if err := NewCargo(deps.Options{}).Unpack(a, src, dst); err != nil {
		t.Fatalf("Unpack() error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dst, "Cargo.toml"))
	if err != nil || !bytes.Contains(data, []byte(`name = "rand"`)) {
		t.Errorf("wrong crate unpacked: %s (%v)", data, err)
	}
	if cf := readChecksumFile(t, dst); cf.Package != nil {
		t.Errorf("git crate package checksum = %v, want null", *cf.Package)
	}
}

func TestCargoUnpackErrors(t *testing.T) {
	eco := NewCargo(deps.Options{})
	a := deps.Artifact{Name: "x", Version: "1.0.0", Locator: &locator.Registry{Name: "x", Version: "1.0.0"}}

	escaping := writeTarGz(t, []tarEntry{{name: "../evil", body: "x"}})
	if err := eco.Unpack(a, escaping, filepath.Join(t.TempDir(), "x-1.0.0")); err == nil {
		t.Error("Unpack() accepted an escaping entry")
	}

	wrongCrate := writeTarGz(t, []tarEntry{{name: "y-1.0.0/Cargo.toml", body: "[package]\nname = \"y\"\n"}})
	if err := eco.Unpack(a, wrongCrate, filepath.Join(t.TempDir(), "x-1.0.0")); !errors.Is(err, errors.ErrCodeFetchFailed) {
		t.Errorf("Unpack() error = %v, want FETCH_FAILED", err)
	}
}
