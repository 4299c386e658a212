package python

import (
	"strings"
	"testing"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/errors"
)

var (
	shaA   = strings.Repeat("a", 64)
	shaB   = strings.Repeat("b", 64)
	commit = "3f2a1b0c9d8e7f6a5b4c3d2e1f0a9b8c7d6e5f4a"
)

func TestParseRequirement(t *testing.T) {
	tests := []struct {
		line    string
		name    string
		version string
		kind    string
		hashes  int
	}{
		{"requests==2.31.0", "requests", "2.31.0", KindPyPI, 0},
		{"Flask_SQLAlchemy == 3.1.1", "flask-sqlalchemy", "3.1.1", KindPyPI, 0},
		{"urllib3[socks]===2.0.7", "urllib3", "2.0.7", KindPyPI, 0},
		{"idna==3.6; python_version >= '3.8'", "idna", "3.6", KindPyPI, 0},
		{"certifi==2024.2.2 --hash=sha256:" + shaA + " --hash=sha256:" + shaB, "certifi", "2024.2.2", KindPyPI, 2},
		{"certifi==2024.2.2 --hash sha256:" + shaA, "certifi", "2024.2.2", KindPyPI, 1},
		{"foo @ https://example.com/foo-1.0.tar.gz#cachito_hash=sha256:" + shaA, "foo", "https://example.com/foo-1.0.tar.gz#cachito_hash=sha256:" + shaA, KindURL, 1},
		{"foo@https://example.com/foo-1.0.tar.gz", "foo", "https://example.com/foo-1.0.tar.gz", KindURL, 0},
		{"https://example.com/bar.zip#egg=Bar&sha256=" + shaA, "bar", "https://example.com/bar.zip#egg=Bar&sha256=" + shaA, KindURL, 1},
		{"baz @ git+https://github.com/org/baz.git@" + commit, "baz", "git+https://github.com/org/baz.git@" + commit, KindVCS, 0},
		{"git+ssh://git@github.com/org/qux@" + commit + "#egg=qux", "qux", "git+ssh://git@github.com/org/qux@" + commit, KindVCS, 0},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			req, err := parseRequirement(tt.line)
			if err != nil {
				t.Fatalf("parseRequirement() error: %v", err)
			}
			if req.name != tt.name || req.version != tt.version || req.kind != tt.kind {
				t.Errorf("got name=%q version=%q kind=%q", req.name, req.version, req.kind)
			}
			if len(req.hashes) != tt.hashes {
				t.Errorf("got %d hashes, want %d", len(req.hashes), tt.hashes)
			}
		})
	}
}

func TestParseRequirementErrors(t *testing.T) {
	tests := []struct {
		line string
		code errors.Code
	}{
		{"requests>=2.0", errors.ErrCodeUnsupportedFeature},
		{"requests", errors.ErrCodeUnsupportedFeature},
		{"requests==2.*", errors.ErrCodeUnsupportedFeature},
		{"baz @ git+https://github.com/org/baz.git@main", errors.ErrCodeUnsupportedFeature},
		{"baz @ git+https://github.com/org/baz.git", errors.ErrCodeUnsupportedFeature},
		{"baz @ hg+https://hg.example/baz@" + commit, errors.ErrCodeUnsupportedFeature},
		{"https://example.com/bar.zip", errors.ErrCodeUnsupportedFeature},
		{"requests==2.31.0 --hash=sha256:xyz", errors.ErrCodeMalformedLockfile},
		{"requests==2.31.0 --install-option=--prefix", errors.ErrCodeUnsupportedFeature},
		{"==1.0", errors.ErrCodeMalformedLockfile},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, err := parseRequirement(tt.line)
			if !errors.Is(err, tt.code) {
				t.Errorf("parseRequirement() error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestParseRequirements(t *testing.T) {
	content := `# pinned with pip-compile
--index-url https://pypi.org/simple

requests==2.31.0 \
    --hash=sha256:` + shaA + ` \
    --hash=sha256:` + shaB + `
    # via app
idna==3.6  # trailing comment
foo @ https://example.com/foo-1.0.tar.gz#cachito_hash=sha256:` + shaA + `
`
	reqs, ignored, err := parseRequirements(requirementsFile, []byte(content))
	if err != nil {
		t.Fatalf("parseRequirements() error: %v", err)
	}
	if len(reqs) != 3 {
		t.Fatalf("got %d requirements, want 3", len(reqs))
	}
	if reqs[0].line != 4 || len(reqs[0].hashes) != 2 {
		t.Errorf("requests = %+v", reqs[0])
	}
	if reqs[0].hashes[1] != (checksum.Checksum{Algorithm: checksum.SHA256, Value: shaB}) {
		t.Errorf("second hash = %v", reqs[0].hashes[1])
	}
	if reqs[2].url != "https://example.com/foo-1.0.tar.gz" {
		t.Errorf("foo url = %q, fragment must not survive", reqs[2].url)
	}
	if len(ignored) != 1 || ignored[0] != "--index-url" {
		t.Errorf("ignored = %v", ignored)
	}
}

func TestParseRequirementsRejectsIndirection(t *testing.T) {
	for _, line := range []string{"-r other.txt", "--requirement=other.txt", "-c constraints.txt", "-e ./local"} {
		t.Run(line, func(t *testing.T) {
			_, _, err := parseRequirements(requirementsFile, []byte(line+"\n"))
			if !errors.Is(err, errors.ErrCodeUnsupportedFeature) {
				t.Errorf("error = %v, want UNSUPPORTED_FEATURE", err)
			}
			if err != nil && !strings.Contains(err.Error(), "requirements.txt:1") {
				t.Errorf("error %q lacks the file position", err)
			}
		})
	}
}

func TestStripComment(t *testing.T) {
	tests := map[string]string{
		"# whole line":              "",
		"a==1 # note":               "a==1",
		"https://x/a.tgz#sha256=00": "https://x/a.tgz#sha256=00",
		"b==2\t# tab":               "b==2",
		"  c==3  ":                  "c==3",
	}
	for in, want := range tests {
		if got := stripComment(in); got != want {
			t.Errorf("stripComment(%q) = %q, want %q", in, got, want)
		}
	}
}
