// Package javascript implements the npm-compatible ecosystems.
//
// # Overview
//
// Three [deps.Ecosystem] implementations share this package because they
// share a registry, a purl type and the tarball layout:
//
//   - [NPM] reads package-lock.json (lockfileVersion 2 and 3)
//   - [YarnClassic] reads yarn.lock v1 with a hand-written tokenizer
//   - [YarnBerry] reads the YAML yarn.lock of yarn 2 and later (experimental)
//
// # Dependency Edges
//
// package-lock.json records dependency names, not locations. Edges are
// resolved with the node_modules lookup rule: the nearest node_modules
// directory from the dependent upwards wins. Yarn lockfiles record
// descriptors ("name@range"), which are matched against entry headers.
//
// # Artifact Resolution
//
// Yarn berry checksums cover yarn's cache zips, not the registry tarballs,
// so they cannot be verified after download. All three ecosystems implement
// [deps.ArtifactResolver] and look up the tarball URL and published
// integrity in the npm registry when the lockfile lacks them.
//
// # Environment
//
// npm gets a package-lock.json whose resolved URLs point at the
// materialized tarballs. Yarn classic gets an offline mirror. Yarn berry
// gets its network disabled.
//
// [deps.Ecosystem]: github.com/matzehuels/prefetch/pkg/deps.Ecosystem
// [deps.ArtifactResolver]: github.com/matzehuels/prefetch/pkg/deps.ArtifactResolver
package javascript
