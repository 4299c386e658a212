// Package pypi provides an HTTP client for the Python Package Index JSON API.
//
// A requirements file pins a version and lists the sha256 of every file
// the build may install, but not where those files live. [Client.FetchRelease]
// returns the release's distribution files and [Release.Match] picks the one
// whose digest the lockfile allows:
//
//	client := pypi.NewClient(backend, 24*time.Hour)
//	rel, err := client.FetchRelease(ctx, "requests", "2.31.0", false)
//	f, ok := rel.Match(record.Checksums)
//
// Responses are cached through the backend. Pass refresh=true to bypass the
// cache.
package pypi
