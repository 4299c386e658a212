package report

import (
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
)

// CycloneDX document constants.
const (
	BOMFormat   = "CycloneDX"
	SpecVersion = "1.5"
)

// PropertyPrefix namespaces the properties prefetch adds to components.
const PropertyPrefix = "prefetch:"

// BOM is a CycloneDX 1.5 JSON document.
type BOM struct {
	BOMFormat    string       `json:"bomFormat"`
	SpecVersion  string       `json:"specVersion"`
	SerialNumber string       `json:"serialNumber"`
	Version      int          `json:"version"`
	Metadata     Metadata     `json:"metadata"`
	Components   []Component  `json:"components"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
}

type Metadata struct {
	Timestamp string     `json:"timestamp,omitempty"`
	Tools     *Tools     `json:"tools,omitempty"`
	Component *Component `json:"component,omitempty"`
}

type Tools struct {
	Components []Component `json:"components"`
}

type Component struct {
	Type               string              `json:"type"`
	BOMRef             string              `json:"bom-ref,omitempty"`
	Name               string              `json:"name"`
	Version            string              `json:"version,omitempty"`
	PURL               string              `json:"purl,omitempty"`
	Hashes             []Hash              `json:"hashes,omitempty"`
	Licenses           []LicenseChoice     `json:"licenses,omitempty"`
	ExternalReferences []ExternalReference `json:"externalReferences,omitempty"`
	Properties         []Property          `json:"properties,omitempty"`
}

type Hash struct {
	Alg     string `json:"alg"`
	Content string `json:"content"`
}

// LicenseChoice holds either a single license or an SPDX expression.
type LicenseChoice struct {
	License    *License `json:"license,omitempty"`
	Expression string   `json:"expression,omitempty"`
}

type License struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type ExternalReference struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Dependency struct {
	Ref       string   `json:"ref"`
	DependsOn []string `json:"dependsOn,omitempty"`
}

// Component returns the component with the given bom-ref.
func (b *BOM) Component(ref string) (Component, bool) {
	i, ok := slices.BinarySearchFunc(b.Components, ref, func(c Component, ref string) int {
		return strings.Compare(c.BOMRef, ref)
	})
	if !ok {
		return Component{}, false
	}
	return b.Components[i], true
}

// Property returns the value of the named property.
func (c Component) Property(name string) (string, bool) {
	for _, p := range c.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

var hashAlgs = map[checksum.Algorithm]string{
	checksum.MD5:    "MD5",
	checksum.SHA1:   "SHA-1",
	checksum.SHA256: "SHA-256",
	checksum.SHA384: "SHA-384",
	checksum.SHA512: "SHA-512",
}

// hashes converts the digests CycloneDX can express. Module dirhashes and
// yarn cache keys have no CycloneDX algorithm and are left out.
func hashes(sums []checksum.Checksum) []Hash {
	var out []Hash
	for _, c := range checksum.Sorted(sums) {
		alg, ok := hashAlgs[c.Algorithm]
		if !ok {
			continue
		}
		h := Hash{Alg: alg, Content: c.Hex()}
		if !slices.Contains(out, h) {
			out = append(out, h)
		}
	}
	return out
}

var spdxID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.+-]*$`)

func licenses(license string) []LicenseChoice {
	license = strings.TrimSpace(license)
	switch {
	case license == "":
		return nil
	case strings.Contains(license, " OR ") || strings.Contains(license, " AND ") || strings.Contains(license, " WITH "):
		return []LicenseChoice{{Expression: license}}
	case spdxID.MatchString(license):
		return []LicenseChoice{{License: &License{ID: license}}}
	default:
		return []LicenseChoice{{License: &License{Name: license}}}
	}
}

// properties lists the prefetch properties of a component, sorted by name.
func properties(ecosystem string, a deps.Artifact, optional bool) []Property {
	props := map[string]string{"ecosystem": ecosystem}
	if a.Dev {
		props["dev"] = "true"
	}
	if optional {
		props["optional"] = "true"
	}
	for _, key := range []string{deps.PropMissingHash, deps.PropBuildDependency, deps.PropArtifactKind} {
		if v := a.Properties[key]; v != "" {
			props[key] = v
		}
	}
	out := make([]Property, 0, len(props))
	for _, k := range slices.Sorted(maps.Keys(props)) {
		out = append(out, Property{Name: PropertyPrefix + k, Value: props[k]})
	}
	return out
}
