package prefetch

import (
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/prefetch/pkg/cache"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/fetch"
	"github.com/matzehuels/prefetch/pkg/httputil"
	"github.com/matzehuels/prefetch/pkg/integrations"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and library callers
// =============================================================================

const (
	// DefaultWorkers is the fetch concurrency.
	DefaultWorkers = fetch.DefaultWorkers

	// DepsDir is the directory below the output root that holds the
	// materialized artifacts, one subdirectory per ecosystem.
	DepsDir = "deps"
)

// Mode selects how missing optional metadata is treated.
type Mode string

const (
	// ModeStrict fails the run when optional metadata is missing.
	ModeStrict Mode = "strict"
	// ModePermissive logs a warning and continues.
	ModePermissive Mode = "permissive"
)

// ParseMode validates a mode name. The empty string selects strict mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStrict:
		return ModeStrict, nil
	case ModePermissive:
		return ModePermissive, nil
	}
	return "", errors.New(errors.ErrCodeInvalidInput, "invalid mode %q (must be strict or permissive)", s)
}

// Package is one ecosystem tag applied to one directory of the project.
type Package struct {
	Ecosystem string
	Path      string // relative to the project root; "" or "." is the root
}

// Config configures a [Runner]. Enabled ecosystems are exactly the ones
// named in Packages.
type Config struct {
	ProjectRoot string
	OutputDir   string
	Packages    []Package

	// Store holds verified artifacts. Required.
	Store *cache.Store

	// Registry provides the ecosystems. Defaults to every supported
	// ecosystem constructed with Options.
	Registry *deps.Registry
	Options  deps.Options

	AllowExperimental bool
	Mode              Mode

	Workers int
	Retry   httputil.Policy
	Mirror  fetch.Mirror
	Client  *integrations.Client
	Git     fetch.GitRunner

	Logger *log.Logger
	// Now stamps the bill of materials. Defaults to time.Now.
	Now func() time.Time
}

// validate checks the configuration and fills in defaults.
func (c *Config) validate() error {
	if c.Store == nil {
		return errors.New(errors.ErrCodeInvalidInput, "a store is required")
	}
	if c.ProjectRoot == "" {
		return errors.New(errors.ErrCodeInvalidInput, "project root is required")
	}
	root, err := filepath.Abs(c.ProjectRoot)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "project root %s", c.ProjectRoot)
	}
	c.ProjectRoot = root
	if c.OutputDir == "" {
		return errors.New(errors.ErrCodeInvalidInput, "output directory is required")
	}
	if c.OutputDir, err = filepath.Abs(c.OutputDir); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "output directory %s", c.OutputDir)
	}
	if len(c.Packages) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "at least one package is required")
	}
	c.Packages = slices.Clone(c.Packages)
	for i, p := range c.Packages {
		if strings.TrimSpace(p.Ecosystem) == "" {
			return errors.New(errors.ErrCodeInvalidEcosystem, "package %d has no ecosystem", i)
		}
		p.Path = filepath.ToSlash(filepath.Clean(filepath.FromSlash(p.Path)))
		if p.Path != "." {
			if err := errors.ValidatePath(p.Path); err != nil {
				return errors.Wrap(errors.ErrCodeInvalidPath, err, "package path %q", c.Packages[i].Path)
			}
		}
		c.Packages[i] = p
	}
	if c.Mode == "" {
		c.Mode = ModeStrict
	}
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Retry.Attempts <= 0 {
		c.Retry = httputil.DefaultPolicy
	}
	if c.Registry == nil {
		c.Registry = defaultRegistry(c.Options)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Git == nil {
		c.Git = fetch.RunGit
	}
	return nil
}

// dir returns the absolute directory of p.
func (c *Config) dir(p Package) string {
	return filepath.Join(c.ProjectRoot, filepath.FromSlash(p.Path))
}

// depsDir returns <output>/deps/<ecosystem>.
func (c *Config) depsDir(eco string) string {
	return filepath.Join(c.OutputDir, DepsDir, eco)
}
