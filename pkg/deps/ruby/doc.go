// Package ruby implements the bundler ecosystem.
//
// [Bundler] reads the GEM, GIT and PATH sections of Gemfile.lock together
// with DEPENDENCIES and, when present, the CHECKSUMS section bundler 2.5
// writes. Gems without a checksum are fetched anyway; their computed
// sha256 is recorded and the SBOM marks them missing_hash_in_file.
//
// The output is a bundler package cache: .gem files by name and git
// sources unpacked to "<repo>-<revision prefix>" with a .bundlecache
// marker, consumed by "bundle install --local" through BUNDLE_CACHE_PATH.
package ruby
