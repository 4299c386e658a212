package javascript

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/matzehuels/prefetch/pkg/errors"
)

// packageFile is the part of package.json the lockfile parsers need: the
// root package's identity and its declared dependency ranges.
type packageFile struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	License              any               `json:"license"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
}

func parsePackageJSON(data []byte) (*packageFile, error) {
	var pkg packageFile
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedLockfile, err, "parse package.json")
	}
	return &pkg, nil
}

// prodDeps returns dependencies and optionalDependencies as sorted
// name/range pairs.
func (p *packageFile) prodDeps() [][2]string {
	merged := maps.Clone(p.Dependencies)
	if merged == nil {
		merged = make(map[string]string)
	}
	maps.Copy(merged, p.OptionalDependencies)
	return sortedPairs(merged)
}

func (p *packageFile) devDeps() [][2]string {
	return sortedPairs(p.DevDependencies)
}

func sortedPairs(m map[string]string) [][2]string {
	out := make([][2]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, [2]string{k, m[k]})
	}
	return out
}

// licenseString accepts the string and legacy {"type": ...} forms.
func licenseString(v any) string {
	switch l := v.(type) {
	case string:
		return l
	case map[string]any:
		if s, ok := l["type"].(string); ok {
			return s
		}
	}
	return ""
}
