package report

import (
	"maps"
	"slices"
	"strings"

	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
)

// Environment is the merged set of directives of all ecosystems.
type Environment struct {
	Variables    map[string]string  `json:"variables"`
	ProjectFiles []deps.ProjectFile `json:"project_files"`
	OutputFiles  []deps.ProjectFile `json:"output_files"`

	owners map[string]string
}

// NewEnvironment returns an empty environment.
func NewEnvironment() *Environment {
	return &Environment{
		Variables:    make(map[string]string),
		ProjectFiles: []deps.ProjectFile{},
		OutputFiles:  []deps.ProjectFile{},
		owners:       make(map[string]string),
	}
}

// Merge adds the directives of ecosystem eco. Two ecosystems may set the
// same variable or file only to the same value.
func (e *Environment) Merge(eco string, d *deps.Directives) error {
	if d == nil {
		return nil
	}
	for _, k := range slices.Sorted(maps.Keys(d.Variables)) {
		v := d.Variables[k]
		if prev, ok := e.Variables[k]; ok && prev != v {
			return errors.New(errors.ErrCodeUnsupportedFeature, "%s and %s set %s to different values", e.owners["var:"+k], eco, k)
		}
		e.Variables[k] = v
		e.owners["var:"+k] = eco
	}
	var err error
	if e.ProjectFiles, err = e.mergeFiles(eco, "project", e.ProjectFiles, d.ProjectFiles); err != nil {
		return err
	}
	e.OutputFiles, err = e.mergeFiles(eco, "output", e.OutputFiles, d.OutputFiles)
	return err
}

func (e *Environment) mergeFiles(eco, kind string, have, add []deps.ProjectFile) ([]deps.ProjectFile, error) {
	for _, f := range add {
		i := slices.IndexFunc(have, func(h deps.ProjectFile) bool { return h.Path == f.Path })
		if i < 0 {
			have = append(have, f)
			e.owners[kind+":"+f.Path] = eco
			continue
		}
		if have[i].Content != f.Content {
			return have, errors.New(errors.ErrCodeUnsupportedFeature, "%s and %s both write %s", e.owners[kind+":"+f.Path], eco, f.Path)
		}
	}
	return have, nil
}

// Shell renders the variables as sorted export statements for a shell.
func (e *Environment) Shell() string {
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(e.Variables)) {
		b.WriteString("export " + k + "=" + shellQuote(e.Variables[k]) + "\n")
	}
	return b.String()
}

func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=,+@%", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
