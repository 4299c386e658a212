// Package rust implements the cargo ecosystem.
//
// # Lockfiles
//
// [Cargo] reads Cargo.lock (format v2 to v4) together with Cargo.toml. The
// manifest tells local crates apart: the main package becomes
// "workspace:.", path dependencies and workspace members become
// "workspace:<dir>". A virtual workspace has no package of its own, so a
// synthetic root is emitted that depends on every member.
//
// Remote crates come from one of three source kinds:
//
//   - crates.io:  "serde@1.0.195"
//   - alternate:  "foo@0.1.0::registry=sparse+https://reg.example.com/index/"
//   - git:        "bar@git+https://github.com/org/bar.git#commit=<sha>&path=bar"
//
// # Vendoring
//
// Cargo consumes vendored crates as unpacked directories, so [Cargo]
// implements [deps.Unpacker]: every downloaded archive is extracted to
// "<name>-<version>/" with a .cargo-checksum.json. [Cargo.Render] writes a
// .cargo/config.toml that replaces crates.io, every git source and every
// alternate registry with that directory. Registry definitions from the
// project's own config are carried over by [SanitizeConfig], minus
// everything but index, token and credential-provider.
//
// [deps.Unpacker]: github.com/matzehuels/prefetch/pkg/deps.Unpacker
package rust
