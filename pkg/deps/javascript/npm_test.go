package javascript

import (
	"strings"
	"testing"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/graph"
	"github.com/matzehuels/prefetch/pkg/locator"
)

const (
	leftPadSRI  = "sha512-XRcglhh3p2lHAu4gFg75i5owZ3/uttIZh11iKj+W2fqc4Iu8OvwIHkDSftaw4gURo0WA2fT2oguwTa4HChLwJw=="
	leftPadHex  = "5d1720961877a7694702ee20160ef98b9a30677feeb6d219875d622a3f96d9fa9ce08bbc3afc081e40d27ed6b0e20511a34580d9f4f6a20bb04dae070a12f027"
	nodeSRI     = "sha512-GDjjPPdoyvYprfEf/0UGB28Qnt95i2sUqeTFirVatiCY0dgsPQg9dp1f/LluvwaIVydtS0kPw2AFs43WFC6+Pg=="
	undiciSRI   = "sha512-Q2xXnB6sPZdSS01mfMQloeUiE/GhgpCR74b3ipzudFcdlI6sY8UG/4u5T7VtpSLK9WPeQQp2ZQV4EPGPLLH8nw=="
	oldSHA1SRI  = "sha1-wA27ydrfvh4jLpOnKd1HUvreCr8="
	oldSHA1Hex  = "c00dbbc9dadfbe1e232e93a729dd4752fade0abf"
	tinyCommit  = "0123456789abcdef0123456789abcdef01234567"
	leftPadURL  = "https://registry.npmjs.org/left-pad/-/left-pad-1.3.0.tgz"
	oldLeftPad  = "https://registry.npmjs.org/left-pad/-/left-pad-1.1.0.tgz"
	typesURL    = "https://registry.npmjs.org/@types/node/-/node-20.11.5.tgz"
	undiciTypes = "https://registry.npmjs.org/undici-types/-/undici-types-5.26.5.tgz"
)

var packageLockFixture = `{
  "name": "app",
  "version": "1.0.0",
  "lockfileVersion": 3,
  "requires": true,
  "packages": {
    "": {
      "name": "app",
      "version": "1.0.0",
      "license": "MIT",
      "workspaces": ["packages/*"],
      "dependencies": {"left-pad": "^1.3.0", "lib": "*"},
      "devDependencies": {"@types/node": "^20.0.0"}
    },
    "node_modules/@types/node": {
      "version": "20.11.5",
      "resolved": "` + typesURL + `",
      "integrity": "` + nodeSRI + `",
      "dev": true,
      "license": "MIT",
      "dependencies": {"undici-types": "~5.26.4"}
    },
    "node_modules/left-pad": {
      "version": "1.3.0",
      "resolved": "` + leftPadURL + `",
      "integrity": "` + leftPadSRI + `",
      "license": "WTFPL"
    },
    "node_modules/lib": {"resolved": "packages/lib", "link": true},
    "node_modules/tiny": {
      "version": "1.0.0",
      "resolved": "git+ssh://git@github.com/owner/tiny.git#` + tinyCommit + `"
    },
    "node_modules/undici-types": {
      "version": "5.26.5",
      "resolved": "` + undiciTypes + `",
      "integrity": "` + undiciSRI + `",
      "dev": true
    },
    "packages/lib": {
      "name": "lib",
      "version": "0.1.0",
      "dependencies": {"left-pad": "~1.1.0", "tiny": "github:owner/tiny"}
    },
    "packages/lib/node_modules/left-pad": {
      "version": "1.1.0",
      "resolved": "` + oldLeftPad + `",
      "integrity": "` + oldSHA1SRI + `"
    }
  }
}`

func parseNPM(t *testing.T, lock string) []deps.RawRecord {
	t.Helper()
	records, err := NewNPM(deps.Options{}).Parse(deps.Files{packageLock: []byte(lock)})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	return records
}

func recordByName(t *testing.T, records []deps.RawRecord, name, version string) deps.RawRecord {
	t.Helper()
	for _, r := range records {
		if r.Name == name && (version == "" || r.Version == version) {
			return r
		}
	}
	t.Fatalf("no record %s@%s", name, version)
	return deps.RawRecord{}
}

func TestNPMParse(t *testing.T) {
	records := parseNPM(t, packageLockFixture)

	if len(records) != 7 {
		t.Fatalf("got %d records, want 7 (links are not packages)", len(records))
	}
	if records[0].Reference != "workspace:." || records[0].Name != "app" || records[0].License != "MIT" {
		t.Errorf("root record = %+v", records[0])
	}

	wantRoot := []locator.Reference{
		locator.Reference("left-pad@" + leftPadURL),
		"workspace:packages/lib",
		locator.Reference("@types/node@" + typesURL),
	}
	if got := records[0].Dependencies; len(got) != len(wantRoot) {
		t.Fatalf("root dependencies = %v, want %v", got, wantRoot)
	}
	for i, want := range wantRoot {
		if records[0].Dependencies[i] != want {
			t.Errorf("root dependency %d = %s, want %s", i, records[0].Dependencies[i], want)
		}
	}

	lib := recordByName(t, records, "lib", "")
	if lib.Reference != "workspace:packages/lib" {
		t.Errorf("lib reference = %s", lib.Reference)
	}
	wantLib := []locator.Reference{
		locator.Reference("left-pad@" + oldLeftPad),
		locator.Reference("tiny@git+ssh://git@github.com/owner/tiny.git#" + tinyCommit),
	}
	for i, want := range wantLib {
		if i >= len(lib.Dependencies) || lib.Dependencies[i] != want {
			t.Errorf("lib dependencies = %v, want %v", lib.Dependencies, wantLib)
			break
		}
	}

	nested := recordByName(t, records, "left-pad", "1.1.0")
	if len(nested.Checksums) != 1 || nested.Checksums[0] != (checksum.Checksum{Algorithm: checksum.SHA1, Value: oldSHA1Hex}) {
		t.Errorf("nested left-pad checksums = %v", nested.Checksums)
	}

	types := recordByName(t, records, "@types/node", "")
	if !types.Dev || types.Properties[deps.PropResolved] != typesURL {
		t.Errorf("@types/node = %+v", types)
	}
}

func TestNPMParseBuildsGraph(t *testing.T) {
	eco := NewNPM(deps.Options{})
	records := parseNPM(t, packageLockFixture)

	g, err := graph.Build(eco.Name(), records, eco.Resolver(), locator.Context{ProjectRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if g.NodeCount() != 7 {
		t.Errorf("NodeCount() = %d, want 7", g.NodeCount())
	}
	if g.EdgeCount() != 6 {
		t.Errorf("EdgeCount() = %d, want 6", g.EdgeCount())
	}

	n, ok := g.Node("npm:git+ssh://git@github.com/owner/tiny.git#" + tinyCommit)
	if !ok {
		t.Fatal("git dependency missing from graph")
	}
	if got := eco.Layout(n.Artifact()); got != "git/github.com/owner/tiny/tiny-"+tinyCommit+".tgz" {
		t.Errorf("Layout(git) = %q", got)
	}

	n, ok = g.Node("npm:" + typesURL)
	if !ok {
		t.Fatal("@types/node missing from graph")
	}
	if got := eco.Layout(n.Artifact()); got != "@types-node-20.11.5.tgz" {
		t.Errorf("Layout(@types/node) = %q", got)
	}
	purl := eco.PackageURL(n.Artifact())
	if purl.Namespace != "@types" || purl.Name != "node" || purl.Version != "20.11.5" || len(purl.Qualifiers) != 0 {
		t.Errorf("PackageURL() = %+v", purl)
	}
}

func TestNPMParseErrors(t *testing.T) {
	tests := []struct {
		name string
		lock string
	}{
		{"invalid json", `{`},
		{"lockfile v1", `{"lockfileVersion": 1, "packages": {"": {}}}`},
		{"no root", `{"lockfileVersion": 3, "packages": {}}`},
		{"missing dependency", `{"lockfileVersion": 3, "packages": {"": {"dependencies": {"x": "1"}}}}`},
		{"bad integrity", `{"lockfileVersion": 2, "packages": {"": {}, "node_modules/x": {"version": "1.0.0", "resolved": "https://r/x/-/x-1.0.0.tgz", "integrity": "sha512-???"}}}`},
		{"no version", `{"lockfileVersion": 3, "packages": {"": {}, "node_modules/x": {}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNPM(deps.Options{}).Parse(deps.Files{packageLock: []byte(tt.lock)})
			if !errors.Is(err, errors.ErrCodeMalformedLockfile) {
				t.Errorf("Parse() error = %v, want MALFORMED_LOCKFILE", err)
			}
		})
	}
}

func TestNPMParseMissingLockfile(t *testing.T) {
	if _, err := NewNPM(deps.Options{}).Parse(deps.Files{}); !errors.Is(err, errors.ErrCodeMalformedLockfile) {
		t.Errorf("Parse() error = %v, want MALFORMED_LOCKFILE", err)
	}
}

func TestNPMRender(t *testing.T) {
	eco := NewNPM(deps.Options{})
	lock := []byte(packageLockFixture)
	in := deps.RenderInput{
		DepsDir: "/out/deps/npm",
		Files:   deps.Files{packageLock: lock},
		Artifacts: []deps.Artifact{{
			Name:       "left-pad",
			Version:    "1.3.0",
			Path:       "left-pad-1.3.0.tgz",
			Properties: map[string]string{deps.PropResolved: leftPadURL},
		}},
	}

	d, err := eco.Render(in)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if d.Variables["npm_config_offline"] != "true" {
		t.Errorf("Variables = %v", d.Variables)
	}

	var rewritten string
	for _, f := range d.ProjectFiles {
		if f.Path == packageLock {
			rewritten = f.Content
		}
	}
	if !strings.Contains(rewritten, `"resolved": "file:///out/deps/npm/left-pad-1.3.0.tgz"`) {
		t.Errorf("package-lock.json not rewritten:\n%s", rewritten)
	}
	if strings.Contains(rewritten, leftPadURL) {
		t.Error("original URL still present")
	}
	if !strings.Contains(rewritten, typesURL) {
		t.Error("artifacts without a path must keep their URL")
	}
}
