// Package npm provides an HTTP client for npm registry metadata.
//
// Only the per-version document is used: it names the tarball URL and the
// integrity digests the registry published for it.
//
//	client := npm.NewClient(backend, 24*time.Hour)
//	v, err := client.FetchVersion(ctx, "@types/node", "20.11.5", false)
//	fmt.Println(v.Tarball, v.Checksums())
//
// Responses are cached through the backend. Pass refresh=true to bypass the
// cache.
package npm
