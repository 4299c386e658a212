package rpm

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/url"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/prefetch/pkg/errors"
)

const rpmsLock = "rpms.lock.yaml"

// Entry kinds, recorded as the artifact kind property.
const (
	kindPackage        = "package"
	kindSource         = "source"
	kindModuleMetadata = "module_metadata"
)

// lockfile is rpms.lock.yaml as written by rpm-lockfile-prototype.
type lockfile struct {
	LockfileVersion int         `yaml:"lockfileVersion"`
	LockfileVendor  string      `yaml:"lockfileVendor"`
	Arches          []archEntry `yaml:"arches"`
}

type archEntry struct {
	Arch           string  `yaml:"arch"`
	Packages       []entry `yaml:"packages"`
	Source         []entry `yaml:"source"`
	ModuleMetadata []entry `yaml:"module_metadata"`
}

type entry struct {
	URL      string `yaml:"url"`
	RepoID   string `yaml:"repoid"`
	Checksum string `yaml:"checksum"`
	Size     int64  `yaml:"size"`

	kind string
}

// entries returns the packages, sources and module metadata of an arch in
// lockfile order, with their kind set.
func (a archEntry) entries() []entry {
	var out []entry
	for _, group := range []struct {
		kind    string
		entries []entry
	}{
		{kindPackage, a.Packages},
		{kindSource, a.Source},
		{kindModuleMetadata, a.ModuleMetadata},
	} {
		for _, e := range group.entries {
			e.kind = group.kind
			out = append(out, e)
		}
	}
	return out
}

// repoID returns the entry's repository id, or a stable one derived from
// the download host when the lockfile leaves it out.
func (e entry) repoID() string {
	if e.RepoID != "" {
		return e.RepoID
	}
	host := e.URL
	if u, err := url.Parse(e.URL); err == nil {
		host = u.Host
	}
	sum := sha256.Sum256([]byte(host))
	return "prefetch-" + hex.EncodeToString(sum[:3])
}

// parseLockfile decodes and validates rpms.lock.yaml. Unknown keys are
// rejected.
func parseLockfile(data []byte) (*lockfile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var lock lockfile
	if err := dec.Decode(&lock); err != nil {
		if err == io.EOF {
			return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s is empty", rpmsLock)
		}
		return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "parse %s", rpmsLock)
	}
	if lock.LockfileVersion != 1 {
		return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s: unsupported lockfileVersion %d", rpmsLock, lock.LockfileVersion)
	}
	if lock.LockfileVendor != "" && lock.LockfileVendor != "redhat" {
		return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s: unsupported lockfileVendor %q", rpmsLock, lock.LockfileVendor)
	}
	for i, a := range lock.Arches {
		if a.Arch == "" {
			return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s: arches[%d] has no arch", rpmsLock, i)
		}
		for _, e := range a.entries() {
			if err := errors.ValidateURL(e.URL); err != nil {
				return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "%s: %s %s entry", rpmsLock, a.Arch, e.kind)
			}
		}
	}
	return &lock, nil
}

// nevra splits "name-version-release.arch.rpm" into name, version-release
// and arch. Files not following the convention keep their base name.
func nevra(filename string) (name, version, arch string) {
	base := strings.TrimSuffix(path.Base(filename), ".rpm")
	i := strings.LastIndexByte(base, '.')
	if i < 0 {
		return base, "", ""
	}
	nvr, arch := base[:i], base[i+1:]
	rel := strings.LastIndexByte(nvr, '-')
	if rel < 0 {
		return base, "", ""
	}
	ver := strings.LastIndexByte(nvr[:rel], '-')
	if ver < 0 {
		return base, "", ""
	}
	return nvr[:ver], nvr[ver+1:], arch
}
