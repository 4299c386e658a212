package rust

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/prefetch/pkg/errors"
)

// registryFields are the [registries.<name>] keys carried over from the
// project's cargo config. Everything else is dropped.
var registryFields = []string{"index", "token", "credential-provider"}

var bareKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// SanitizeConfig reduces a .cargo/config.toml to its registry definitions.
// Registries without an index are dropped; no registries yield "".
func SanitizeConfig(data string) (string, error) {
	var raw map[string]any
	md, err := toml.Decode(data, &raw)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeMalformedLockfile, err, "parse %s", cargoConfig)
	}
	regs, _ := raw["registries"].(map[string]any)

	var blocks []string
	var seen []string
	for _, key := range md.Keys() {
		if len(key) != 2 || key[0] != "registries" || slices.Contains(seen, key[1]) {
			continue
		}
		name := key[1]
		seen = append(seen, name)
		tbl, ok := regs[name].(map[string]any)
		if !ok {
			continue
		}
		if _, ok := tbl["index"].(string); !ok {
			continue
		}

		var b strings.Builder
		fmt.Fprintf(&b, "[registries.%s]\n", tomlKey(name))
		for _, field := range registryFields {
			if v, ok := tomlValue(tbl[field]); ok {
				fmt.Fprintf(&b, "%s = %s\n", field, v)
			}
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n"), nil
}

func tomlKey(k string) string {
	if bareKey.MatchString(k) {
		return k
	}
	return strconv.Quote(k)
}

// tomlValue formats strings and string arrays, the only shapes the
// registry fields take.
func tomlValue(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return strconv.Quote(v), true
	case []any:
		parts := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return "", false
			}
			parts = append(parts, strconv.Quote(s))
		}
		return "[" + strings.Join(parts, ", ") + "]", true
	}
	return "", false
}
