package ruby

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/graph"
	"github.com/matzehuels/prefetch/pkg/locator"
)

var (
	rackSum  = strings.Repeat("a", 64)
	revision = strings.Repeat("1", 40)
)

var lockFixture = `GIT
  remote: https://github.com/org/widget.git
  revision: ` + revision + `
  branch: main
  specs:
    widget (0.4.0)
      rack

PATH
  remote: .
  specs:
    myapp (1.0.0)
      rack (>= 2.0)

PATH
  remote: vendor/helper
  specs:
    helper (0.1.0)

GEM
  remote: https://rubygems.org/
  specs:
    nokogiri (1.15.4-x86_64-linux)
      racc (~> 1.4)
    racc (1.7.3)
    rack (3.0.8)

PLATFORMS
  ruby
  x86_64-linux

DEPENDENCIES
  helper!
  myapp!
  nokogiri (~> 1.15)
  widget!

CHECKSUMS
  nokogiri (1.15.4-x86_64-linux)
  racc (1.7.3) sha256=` + strings.Repeat("b", 64) + `
  rack (3.0.8) sha256=` + rackSum + `

BUNDLED WITH
   2.5.3
`

func parseFixture(t *testing.T) []deps.RawRecord {
	t.Helper()
	records, err := NewBundler(deps.Options{}).Parse(deps.Files{gemfileLock: []byte(lockFixture)})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	return records
}

func TestBundlerParse(t *testing.T) {
	records := parseFixture(t)
	if len(records) != 6 {
		t.Fatalf("got %d records, want 6", len(records))
	}

	root := records[0]
	if root.Name != "myapp" || root.Version != "1.0.0" || root.Reference != "workspace:." {
		t.Errorf("root = %+v", root)
	}
	wantRoot := []locator.Reference{
		"helper@workspace:vendor/helper",
		"nokogiri@https://rubygems.org/gems/nokogiri-1.15.4-x86_64-linux.gem",
		locator.Reference("widget@git+https://github.com/org/widget.git#commit=" + revision + "&path=widget"),
		"rack@https://rubygems.org/gems/rack-3.0.8.gem",
	}
	if len(root.Dependencies) != len(wantRoot) {
		t.Fatalf("root dependencies = %v", root.Dependencies)
	}
	for i, want := range wantRoot {
		if root.Dependencies[i] != want {
			t.Errorf("root dependency %d = %s, want %s", i, root.Dependencies[i], want)
		}
	}

	tests := []struct {
		idx      int
		name     string
		kind     string
		platform string
		missing  bool
	}{
		{1, "widget", "git", "", false},
		{2, "helper", "path", "", false},
		{3, "nokogiri", "gem", "x86_64-linux", true},
		{4, "racc", "gem", "", false},
		{5, "rack", "gem", "", false},
	}
	for _, tt := range tests {
		rec := records[tt.idx]
		if rec.Name != tt.name || rec.Properties[deps.PropArtifactKind] != tt.kind || rec.Properties[deps.PropPlatform] != tt.platform {
			t.Errorf("record %d = %+v", tt.idx, rec)
		}
		if (rec.Properties[deps.PropMissingHash] == "true") != tt.missing {
			t.Errorf("%s missing hash = %v, want %v", rec.Name, !tt.missing, tt.missing)
		}
	}
	if sums := records[5].Checksums; len(sums) != 1 || sums[0].Value != rackSum || sums[0].Algorithm != checksum.SHA256 {
		t.Errorf("rack checksums = %v", sums)
	}
	if records[3].Version != "1.15.4" || records[3].Dependencies[0] != "racc@https://rubygems.org/gems/racc-1.7.3.gem" {
		t.Errorf("nokogiri = %+v", records[3])
	}
}

func TestBundlerParseBuildsGraph(t *testing.T) {
	eco := NewBundler(deps.Options{})
	g, err := graph.Build(eco.Name(), parseFixture(t), eco.Resolver(), locator.Context{ProjectRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if g.NodeCount() != 6 || g.EdgeCount() != 6 {
		t.Errorf("graph has %d nodes and %d edges, want 6 and 6", g.NodeCount(), g.EdgeCount())
	}

	layouts := []struct{ id, want string }{
		{"bundler:https://rubygems.org/gems/rack-3.0.8.gem", "rack-3.0.8.gem"},
		{"bundler:https://rubygems.org/gems/nokogiri-1.15.4-x86_64-linux.gem", "nokogiri-1.15.4-x86_64-linux.gem"},
		{"bundler:git+https://github.com/org/widget.git#" + revision + "&path=widget", "widget-111111111111"},
		{"bundler:workspace:vendor/helper", ""},
	}
	for _, tt := range layouts {
		n, ok := g.Node(tt.id)
		if !ok {
			t.Errorf("missing node %s", tt.id)
			continue
		}
		if got := eco.Layout(n.Artifact()); got != tt.want {
			t.Errorf("Layout(%s) = %q, want %q", tt.id, got, tt.want)
		}
	}

	n, _ := g.Node("bundler:https://rubygems.org/gems/nokogiri-1.15.4-x86_64-linux.gem")
	if q := eco.PackageURL(n.Artifact()).Qualifiers.Map(); q["platform"] != "x86_64-linux" {
		t.Errorf("nokogiri purl qualifiers = %v", q)
	}
}

func TestBundlerParseErrors(t *testing.T) {
	tests := []struct {
		name string
		lock string
		code errors.Code
	}{
		{"gem without remote", "GEM\n  specs:\n    rack (3.0.8)\n", errors.ErrCodeMalformedLockfile},
		{"unpinned git", "GIT\n  remote: https://github.com/org/x.git\n  specs:\n    x (1.0)\n", errors.ErrCodeMalformedLockfile},
		{"dependency outside spec", "GEM\n  remote: https://rubygems.org/\n  specs:\n      rack\n", errors.ErrCodeMalformedLockfile},
		{"garbage in section", "GEM\n  remote: https://rubygems.org/\n  specs:\n    rack 3.0.8\n", errors.ErrCodeMalformedLockfile},
		{"bad checksum", "GEM\n  remote: https://rubygems.org/\n  specs:\n    rack (3.0.8)\n\nCHECKSUMS\n  rack (3.0.8) sha256=xyz\n", errors.ErrCodeMalformedLockfile},
		{"non-http gem source", "GEM\n  remote: file:///srv/gems\n  specs:\n    rack (3.0.8)\n", errors.ErrCodeUnsupportedFeature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBundler(deps.Options{}).Parse(deps.Files{gemfileLock: []byte(tt.lock)})
			if !errors.Is(err, tt.code) {
				t.Errorf("Parse() error = %v, want %s", err, tt.code)
			}
		})
	}
	if _, err := NewBundler(deps.Options{}).Parse(deps.Files{}); !errors.Is(err, errors.ErrCodeMalformedLockfile) {
		t.Errorf("missing lockfile error = %v", err)
	}
}

func TestBundlerRender(t *testing.T) {
	d, err := NewBundler(deps.Options{}).Render(deps.RenderInput{DepsDir: "/out/deps/bundler"})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if d.Variables["BUNDLE_CACHE_PATH"] != "/out/deps/bundler" || d.Variables["BUNDLE_DEPLOYMENT"] != "true" {
		t.Errorf("Variables = %v", d.Variables)
	}
	if len(d.ProjectFiles) != 1 || d.ProjectFiles[0].Path != ".bundle/config" {
		t.Fatalf("ProjectFiles = %v", d.ProjectFiles)
	}
	cfg := d.ProjectFiles[0].Content
	for _, want := range []string{"---\n", "BUNDLE_CACHE_PATH: /out/deps/bundler\n", `BUNDLE_ALLOW_OFFLINE_INSTALL: "true"`} {
		if !strings.Contains(cfg, want) {
			t.Errorf(".bundle/config missing %q:\n%s", want, cfg)
		}
	}
}

func TestBundlerUnpack(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	body := "Gem::Specification.new\n"
	tw.WriteHeader(&tar.Header{Name: "package/widget.gemspec", Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body))})
	tw.Write([]byte(body))
	tw.Close()
	gz.Close()
	src := filepath.Join(t.TempDir(), "widget.tar.gz")
	if err := os.WriteFile(src, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	eco := NewBundler(deps.Options{})
	a := deps.Artifact{Name: "widget", Locator: &locator.Git{URL: "https://github.com/org/widget.git", Ref: revision}}
	if !eco.Unpacks(a) || eco.Unpacks(deps.Artifact{Locator: &locator.Registry{Name: "rack", Version: "3.0.8"}}) {
		t.Fatal("Unpacks() should select git sources only")
	}
	dst := filepath.Join(t.TempDir(), eco.Layout(a))
	if err := eco.Unpack(a, src, dst); err != nil {
		t.Fatalf("Unpack() error: %v", err)
	}
	for _, f := range []string{"widget.gemspec", ".bundlecache"} {
		if _, err := os.Stat(filepath.Join(dst, f)); err != nil {
			t.Errorf("%s missing: %v", f, err)
		}
	}
}
