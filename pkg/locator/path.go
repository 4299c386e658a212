package locator

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/matzehuels/prefetch/pkg/errors"
)

// PathKind classifies a patch or file path.
type PathKind int

const (
	// PathRelative is resolved against the parent package location.
	PathRelative PathKind = iota
	// PathProjectRelative ("~/a/b") is resolved against the project root.
	PathProjectRelative
	// PathAbsolute is used as-is.
	PathAbsolute
	// PathBuiltin ("builtin<name>") is looked up in the builtin registry.
	PathBuiltin
)

func (k PathKind) String() string {
	switch k {
	case PathProjectRelative:
		return "project-relative"
	case PathAbsolute:
		return "absolute"
	case PathBuiltin:
		return "builtin"
	default:
		return "relative"
	}
}

// ClassifyPath returns the kind of a path payload (flags already removed).
func ClassifyPath(p string) PathKind {
	switch {
	case isBuiltin(p):
		return PathBuiltin
	case strings.HasPrefix(p, "~/"):
		return PathProjectRelative
	case filepath.IsAbs(p):
		return PathAbsolute
	default:
		return PathRelative
	}
}

func isBuiltin(p string) bool {
	name, ok := builtinName(p)
	return ok && name != ""
}

func builtinName(p string) (string, bool) {
	rest, ok := strings.CutPrefix(p, "builtin<")
	if !ok {
		return "", false
	}
	return strings.CutSuffix(rest, ">")
}

// FlagOptional marks a patch that is skipped when its target does not
// accept it.
const FlagOptional = "optional"

// FlagSet is an ordered set of patch flags. Unknown flags are preserved.
type FlagSet []string

// Has reports whether flag is present.
func (f FlagSet) Has(flag string) bool { return slices.Contains(f, flag) }

// Optional reports whether the optional flag is present.
func (f FlagSet) Optional() bool { return f.Has(FlagOptional) }

// String joins the flags with "!".
func (f FlagSet) String() string { return strings.Join(f, "!") }

// PatchPath is one path component of a patch reference.
type PatchPath struct {
	Raw         string   // component as written, flags included
	Path        string   // payload after flag removal
	Kind        PathKind // classification of Path
	Flags       FlagSet
	Resolved    string        // absolute filesystem path, empty for builtins
	ProjectPath string        // slash-separated path below the project root, if inside
	Builtin     BuiltinSource // set for PathBuiltin once resolved
}

// BuiltinName returns the name inside builtin<...>.
func (p PatchPath) BuiltinName() string {
	name, _ := builtinName(p.Path)
	return name
}

// String returns the canonical form used in patch identities.
func (p PatchPath) String() string {
	loc := p.Path
	switch {
	case p.Kind == PathBuiltin:
	case p.ProjectPath != "":
		loc = "~/" + p.ProjectPath
	case p.Resolved != "":
		loc = filepath.ToSlash(p.Resolved)
	}
	if len(p.Flags) == 0 {
		return loc
	}
	return p.Flags.String() + "!" + loc
}

// ParsePatchPath tokenizes "[<flags>!]<path>".
//
// When the component contains "!", everything before the last "!" is the
// flag list (empty tokens dropped, order kept). Otherwise a single leading
// "~" is the legacy optional flag, unless it starts "~/", which is always a
// project-relative path.
func ParsePatchPath(raw string) (PatchPath, error) {
	pp := PatchPath{Raw: raw}
	payload := raw

	if i := strings.LastIndexByte(raw, '!'); i >= 0 {
		for _, tok := range strings.Split(raw[:i], "!") {
			if tok != "" {
				pp.Flags = append(pp.Flags, tok)
			}
		}
		payload = raw[i+1:]
	} else if strings.HasPrefix(raw, "~") && !strings.HasPrefix(raw, "~/") {
		pp.Flags = FlagSet{FlagOptional}
		payload = raw[1:]
	}

	if payload == "" {
		return PatchPath{}, errors.New(errors.ErrCodeInvalidLocator, "patch path %q has no path", raw)
	}
	if strings.HasPrefix(payload, "builtin<") && !isBuiltin(payload) {
		return PatchPath{}, errors.New(errors.ErrCodeInvalidLocator, "malformed builtin reference %q", payload)
	}
	pp.Path = payload
	pp.Kind = ClassifyPath(payload)
	return pp, nil
}

// RequiresParent reports whether any path is plain relative. Builtin,
// absolute and project-relative components never require a parent.
func RequiresParent(paths []PatchPath) bool {
	for _, p := range paths {
		if p.Kind == PathRelative {
			return true
		}
	}
	return false
}

// resolvePath fills Resolved and ProjectPath for a filesystem path. base is
// the directory plain relative paths are joined to.
func resolvePath(root, base string, kind PathKind, p string) (resolved, projectPath string, err error) {
	switch kind {
	case PathProjectRelative:
		resolved = filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(p, "~/")))
	case PathAbsolute:
		resolved = filepath.Clean(p)
	case PathRelative:
		resolved = filepath.Join(base, filepath.FromSlash(p))
	default:
		return "", "", nil
	}

	projectPath, inside := relToRoot(root, resolved)
	if !inside && kind != PathAbsolute {
		return "", "", errors.New(errors.ErrCodeInvalidLocator, "path %q escapes the project root", p)
	}
	return resolved, projectPath, nil
}

func relToRoot(root, p string) (string, bool) {
	if root == "" {
		return "", false
	}
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
