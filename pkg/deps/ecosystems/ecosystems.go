// Package ecosystems provides the complete list of supported package
// ecosystems.
//
// This package exists to break import cycles: the individual ecosystem
// packages (npm, cargo, etc.) import pkg/deps, so pkg/deps cannot import
// them back. Consumers that need the full list import this package.
//
// Usage:
//
//	import "github.com/matzehuels/prefetch/pkg/deps/ecosystems"
//
//	reg := ecosystems.NewRegistry(deps.Options{Cache: c})
//	eco, err := reg.Get("cargo")
package ecosystems

import (
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/deps/generic"
	"github.com/matzehuels/prefetch/pkg/deps/golang"
	"github.com/matzehuels/prefetch/pkg/deps/javascript"
	"github.com/matzehuels/prefetch/pkg/deps/python"
	"github.com/matzehuels/prefetch/pkg/deps/rpm"
	"github.com/matzehuels/prefetch/pkg/deps/ruby"
	"github.com/matzehuels/prefetch/pkg/deps/rust"
)

// All returns every supported ecosystem, constructed with opts.
func All(opts deps.Options) []deps.Ecosystem {
	return []deps.Ecosystem{
		javascript.NewNPM(opts),
		javascript.NewYarnClassic(opts),
		javascript.NewYarnBerry(opts),
		python.NewPip(opts),
		rust.NewCargo(opts),
		golang.NewGoMod(opts),
		ruby.NewBundler(opts),
		rpm.NewRPM(opts),
		generic.NewGeneric(opts),
	}
}

// NewRegistry returns a registry of [All].
func NewRegistry(opts deps.Options) *deps.Registry {
	return deps.NewRegistry(All(opts)...)
}
