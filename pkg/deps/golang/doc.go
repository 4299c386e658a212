// Package golang implements the gomod ecosystem.
//
// # Overview
//
// [GoMod] turns every go.sum line into a record. Module zips carry their
// h1 hash, go.mod-only lines their h1-mod hash:
//
//	github.com/spf13/cobra v1.8.0 h1:...         -> github.com/spf13/cobra@v1.8.0
//	github.com/spf13/cobra v1.8.0/go.mod h1:...  -> github.com/spf13/cobra@v1.8.0/go.mod
//
// go.mod contributes the main module ("workspace:.") and its edges to the
// required modules after replace directives. Local replacements become
// workspace records.
//
// # Layout
//
// Files are fetched from the module proxy and laid out as a module
// download cache, which the go command then uses as a file:// GOPROXY.
// go.mod-only entries are not components of the build and are left out of
// the bill of materials through [deps.ComponentFilter].
//
// [deps.ComponentFilter]: github.com/matzehuels/prefetch/pkg/deps.ComponentFilter
package golang
