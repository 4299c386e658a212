package deps

import (
	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/locator"
)

// Files maps lockfile names to their contents.
type Files map[string][]byte

// Require returns the named file or a MALFORMED_LOCKFILE error.
func (f Files) Require(name string) ([]byte, error) {
	data, ok := f[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeMalformedLockfile, "%s is missing", name)
	}
	return data, nil
}

// Property keys shared by several ecosystems.
const (
	PropMissingHash     = "missing_hash_in_file"
	PropBuildDependency = "build_dependency"
	PropArtifactKind    = "kind"
	PropPlatform        = "platform"
	PropArch            = "arch"
	PropRepoID          = "repoid"
	PropFilename        = "filename"
	PropResolved        = "resolved"
	PropIndirect        = "indirect"
)

// RawRecord is one package entry of a lockfile.
type RawRecord struct {
	Name         string
	Version      string
	Reference    locator.Reference
	Checksums    []checksum.Checksum
	Dev          bool
	Optional     bool
	License      string
	Dependencies []locator.Reference
	Properties   map[string]string
}

// SetProperty records an ecosystem-specific attribute.
func (r *RawRecord) SetProperty(key, value string) {
	if r.Properties == nil {
		r.Properties = make(map[string]string)
	}
	r.Properties[key] = value
}
