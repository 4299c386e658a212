// Package python implements the pip ecosystem.
//
// requirements.txt must pin every requirement: "name==version" for index
// packages, "name @ https://..." for archives and "name @ git+...@<commit>"
// for git repositories. Hashes come from --hash options or, for archives,
// from a cachito_hash or sha256 URL fragment. Requirements without a hash
// are fetched anyway; their checksum is computed on download and the
// missing_hash_in_file property marks them in the bill of materials.
//
// Index packages carry no URL, so [Pip.ResolveArtifact] looks the matching
// file up in the PyPI JSON API. requirements-build.txt lists build-time
// requirements and pyproject.toml, when present, names the root package.
package python
