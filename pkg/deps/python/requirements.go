package python

import (
	"bufio"
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/integrations"
	"github.com/matzehuels/prefetch/pkg/locator"
)

// Artifact kinds recorded in the kind property.
const (
	KindPyPI = "pypi"
	KindURL  = "url"
	KindVCS  = "vcs"
)

var (
	nameRE   = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)\s*(\[[^\]]*\])?`)
	pinnedRE = regexp.MustCompile(`^===?\s*([A-Za-z0-9][A-Za-z0-9.+!_-]*)$`)
)

// requirement is one pinned line of a requirements file.
type requirement struct {
	name    string // PEP 503 normalized
	version string // release version, the URL, or "git+<url>@<ref>"
	kind    string
	url     string // direct reference as written, without the hash fragment
	raw     string // direct reference as written
	ref     string // VCS commit
	hashes  []checksum.Checksum
	line    int
}

// reference is the locator reference the pip resolver understands.
func (r requirement) reference() locator.Reference {
	switch r.kind {
	case KindURL:
		return locator.Reference(r.name + "@" + r.url)
	case KindVCS:
		return locator.Reference(r.name + "@" + r.url + "#" + r.ref)
	}
	return locator.Reference(r.name + "==" + r.version)
}

// parseRequirements reads a fully pinned requirements file. Nested
// requirement files, constraints and editable installs are rejected;
// global options such as --index-url are returned for the caller to log.
func parseRequirements(file string, data []byte) (reqs []requirement, ignored []string, err error) {
	for _, l := range logicalLines(data) {
		line := stripComment(l.text)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "-") {
			opt := strings.Fields(line)[0]
			name, _, _ := strings.Cut(opt, "=")
			switch name {
			case "-r", "--requirement", "-c", "--constraint", "-e", "--editable":
				return nil, nil, errors.New(errors.ErrCodeUnsupportedFeature, "%s:%d: %s is not supported", file, l.no, name)
			}
			ignored = append(ignored, name)
			continue
		}

		req, err := parseRequirement(line)
		if err != nil {
			return nil, nil, withLine(err, file, l.no)
		}
		req.line = l.no
		reqs = append(reqs, req)
	}
	return reqs, ignored, nil
}

func withLine(err error, file string, no int) error {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeMalformedLockfile
	}
	return errors.Wrap(code, err, "%s:%d", file, no)
}

type logicalLine struct {
	text string
	no   int
}

// logicalLines joins backslash continuations. Each logical line keeps the
// number of its first physical line.
func logicalLines(data []byte) []logicalLine {
	var (
		out  []logicalLine
		buf  strings.Builder
		no   int
		cont bool
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for i := 1; sc.Scan(); i++ {
		text := strings.TrimRight(sc.Text(), " \t\r")
		if !cont {
			no = i
		}
		if strings.HasSuffix(text, `\`) {
			buf.WriteString(strings.TrimSuffix(text, `\`))
			buf.WriteByte(' ')
			cont = true
			continue
		}
		buf.WriteString(text)
		out = append(out, logicalLine{text: buf.String(), no: no})
		buf.Reset()
		cont = false
	}
	if buf.Len() > 0 {
		out = append(out, logicalLine{text: buf.String(), no: no})
	}
	return out
}

// stripComment drops "#" comments. A "#" only starts a comment at the
// start of the line or after whitespace, so URL fragments survive.
func stripComment(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '#' && (i == 0 || s[i-1] == ' ' || s[i-1] == '\t') {
			s = s[:i]
			break
		}
	}
	return strings.TrimSpace(s)
}

// parseRequirement parses "<spec> [--hash=algo:hex ...]".
func parseRequirement(line string) (requirement, error) {
	spec, opts := line, ""
	if i := strings.Index(line, " --"); i >= 0 {
		spec, opts = strings.TrimSpace(line[:i]), line[i+1:]
	}

	var req requirement
	if isDirectURL(spec) {
		name, err := eggName(spec)
		if err != nil {
			return requirement{}, err
		}
		req.name = name
		if err := req.setDirect(spec); err != nil {
			return requirement{}, err
		}
	} else {
		m := nameRE.FindStringSubmatch(spec)
		if m == nil {
			return requirement{}, errors.New(errors.ErrCodeMalformedLockfile, "invalid requirement %q", spec)
		}
		req.name = integrations.NormalizePkgName(m[1])
		rest := strings.TrimSpace(spec[len(m[0]):])
		if marker := strings.Index(rest, ";"); marker >= 0 {
			rest = strings.TrimSpace(rest[:marker])
		}

		switch {
		case strings.HasPrefix(rest, "@"):
			if err := req.setDirect(strings.TrimSpace(strings.TrimPrefix(rest, "@"))); err != nil {
				return requirement{}, err
			}
		case pinnedRE.MatchString(rest):
			req.kind = KindPyPI
			req.version = pinnedRE.FindStringSubmatch(rest)[1]
		default:
			return requirement{}, errors.New(errors.ErrCodeUnsupportedFeature,
				"%s is not pinned to an exact version (%q)", req.name, rest)
		}
	}

	fields := strings.Fields(opts)
	for i := 0; i < len(fields); i++ {
		name, value, hasValue := strings.Cut(fields[i], "=")
		if name != "--hash" {
			return requirement{}, errors.New(errors.ErrCodeUnsupportedFeature, "per-requirement option %s is not supported", name)
		}
		if !hasValue {
			if i+1 >= len(fields) {
				return requirement{}, errors.New(errors.ErrCodeMalformedLockfile, "--hash needs a value")
			}
			i++
			value = fields[i]
		}
		c, err := checksum.Parse(value)
		if err != nil {
			return requirement{}, err
		}
		req.hashes = append(req.hashes, c)
	}
	return req, nil
}

func isDirectURL(s string) bool {
	for _, p := range []string{"http://", "https://", "git+", "hg+", "svn+", "bzr+"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// eggName takes the project name of a bare URL requirement from its
// "#egg=" fragment.
func eggName(raw string) (string, error) {
	_, frag, _ := strings.Cut(raw, "#")
	q, _ := url.ParseQuery(frag)
	egg := q.Get("egg")
	if egg == "" {
		return "", errors.New(errors.ErrCodeUnsupportedFeature, "URL requirement %q has no name (add #egg=<name>)", raw)
	}
	return integrations.NormalizePkgName(egg), nil
}

// setDirect fills a URL or VCS requirement from a direct reference.
func (r *requirement) setDirect(raw string) error {
	if marker := strings.Index(raw, " ;"); marker >= 0 {
		raw = strings.TrimSpace(raw[:marker])
	}
	r.raw = raw
	base, frag, _ := strings.Cut(raw, "#")
	q, err := url.ParseQuery(frag)
	if err != nil {
		return errors.Wrap(errors.ErrCodeMalformedLockfile, err, "URL fragment of %q", raw)
	}

	switch {
	case strings.HasPrefix(base, "git+"):
		repo, ref, err := splitVCS(strings.TrimPrefix(base, "git+"))
		if err != nil {
			return err
		}
		if !locator.IsFullSHA(ref) {
			return errors.New(errors.ErrCodeUnsupportedFeature, "VCS requirement %q must pin a full commit hash", raw)
		}
		r.kind, r.url, r.ref = KindVCS, "git+"+repo, ref
		r.version = "git+" + repo + "@" + ref
	case strings.HasPrefix(base, "http://"), strings.HasPrefix(base, "https://"):
		if err := errors.ValidateURL(base); err != nil {
			return errors.Wrap(errors.ErrCodeMalformedLockfile, err, "requirement URL")
		}
		r.kind, r.url = KindURL, base
		r.version = raw
		for _, key := range []string{"cachito_hash", "sha256", "sha384", "sha512", "sha1", "md5"} {
			v := q.Get(key)
			if v == "" {
				continue
			}
			if key != "cachito_hash" {
				v = key + ":" + v
			}
			c, err := checksum.Parse(v)
			if err != nil {
				return err
			}
			r.hashes = append(r.hashes, c)
		}
	default:
		return errors.New(errors.ErrCodeUnsupportedFeature, "unsupported VCS in %q, only git is supported", raw)
	}
	return nil
}

// splitVCS splits "scheme://host/path@ref". An "@" inside the authority
// belongs to the user info, not the ref.
func splitVCS(s string) (repo, ref string, err error) {
	pathStart := 0
	if i := strings.Index(s, "://"); i >= 0 {
		pathStart = i + 3
		if j := strings.IndexByte(s[pathStart:], '/'); j >= 0 {
			pathStart += j
		}
	}
	at := strings.LastIndexByte(s, '@')
	if at <= pathStart {
		return "", "", errors.New(errors.ErrCodeUnsupportedFeature, "VCS requirement %q is not pinned to a ref", s)
	}
	return s[:at], s[at+1:], nil
}
