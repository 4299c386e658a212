// Package integrations provides HTTP clients for package registry APIs.
//
// Registries are consulted only when a lockfile does not say enough to
// fetch an artifact on its own, for example when a yarn berry lockfile
// carries a cache checksum that cannot be verified against the registry
// tarball. Each registry has its own subpackage:
//
//   - [pypi]: Python Package Index JSON API (release files and digests)
//   - [npm]: npm registry metadata (tarball URL and integrity)
//
// # Client Pattern
//
// Registry clients embed [Client], which provides caching through any
// [cache.Cache] backend, retries and request hooks:
//
//	client := npm.NewClient(backend, 24*time.Hour)
//	v, err := client.FetchVersion(ctx, "left-pad", "1.3.0", false)
//
// [Client.Download] streams artifacts with the same retry policy; the fetch
// orchestrator uses it for every HTTP source.
//
// [pypi]: github.com/matzehuels/prefetch/pkg/integrations/pypi
// [npm]: github.com/matzehuels/prefetch/pkg/integrations/npm
// [cache.Cache]: github.com/matzehuels/prefetch/pkg/cache.Cache
package integrations
