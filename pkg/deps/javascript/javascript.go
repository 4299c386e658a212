package javascript

import (
	"context"
	stderrors "errors"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/package-url/packageurl-go"

	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/deps"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/integrations"
	"github.com/matzehuels/prefetch/pkg/integrations/npm"
	"github.com/matzehuels/prefetch/pkg/locator"
)

// registryResolver looks up tarball URLs and verifiable checksums for
// registry packages in npm registry metadata.
type registryResolver struct {
	client *npm.Client
}

func newRegistryResolver(opts deps.Options) registryResolver {
	return registryResolver{
		client: npm.NewClient(opts.Cache, opts.CacheTTL).WithBaseURL(opts.NpmRegistry),
	}
}

// ResolveArtifact implements [deps.ArtifactResolver].
func (r registryResolver) ResolveArtifact(ctx context.Context, a deps.Artifact) (deps.Download, error) {
	reg, ok := locator.Unwrap(a.Locator).(*locator.Registry)
	if !ok {
		return deps.Download{}, errors.New(errors.ErrCodeUnsupportedFeature, "%s is not a registry package", a.Locator)
	}
	name, version := reg.Name, reg.Version
	if name == "" || strings.HasSuffix(name, ".tgz") {
		name = a.Name
	}
	if version == "" {
		version = a.Version
	}

	info, err := r.client.FetchVersion(ctx, name, version, false)
	if err != nil {
		if stderrors.Is(err, integrations.ErrNotFound) {
			return deps.Download{}, errors.Wrap(errors.ErrCodeUnresolvableReference, err, "%s@%s", name, version)
		}
		return deps.Download{}, errors.Wrap(errors.ErrCodeFetchFailed, err, "registry metadata for %s@%s", name, version)
	}

	want, ok := checksum.Strongest(info.Checksums())
	if !ok {
		return deps.Download{}, errors.New(errors.ErrCodeUnresolvableReference, "registry publishes no checksum for %s@%s", name, version)
	}
	dl := deps.Download{URL: reg.URL, Checksum: want}
	if dl.URL == "" {
		dl.URL = info.Tarball
	}
	dl.Filename = path.Base(dl.URL)
	return dl, nil
}

// packageURL builds the purl shared by the npm-compatible ecosystems.
func packageURL(a deps.Artifact) packageurl.PackageURL {
	namespace, name := "", a.Name
	if i := strings.LastIndex(a.Name, "/"); i > 0 && strings.HasPrefix(a.Name, "@") {
		namespace, name = a.Name[:i], a.Name[i+1:]
	}

	var qs packageurl.Qualifiers
	switch l := locator.Unwrap(a.Locator).(type) {
	case *locator.Git:
		qs = append(qs, packageurl.Qualifier{Key: "vcs_url", Value: "git+" + l.URL + "@" + l.Ref})
	case *locator.Registry:
		if l.URL != "" && !isRegistryTarball(l.URL) {
			qs = append(qs, packageurl.Qualifier{Key: "download_url", Value: l.URL})
		}
	case *locator.Workspace, *locator.File:
		// Local packages carry no registry coordinates.
	}
	return *packageurl.NewPackageURL(packageurl.TypeNPM, namespace, name, a.Version, qs, "")
}

// isRegistryTarball reports whether u follows the registry tarball scheme
// ".../<name>/-/<file>.tgz".
func isRegistryTarball(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	return strings.Contains(parsed.Path, "/-/") && strings.HasSuffix(parsed.Path, ".tgz")
}

// tarballLayout is the materialized file name of a fetched package.
// Scoped names flatten to "@scope-name", matching the offline mirror naming
// of the package managers.
func tarballLayout(a deps.Artifact) string {
	switch l := locator.Unwrap(a.Locator).(type) {
	case *locator.Registry:
		version := a.Version
		if version == "" {
			version = l.Version
		}
		if version == "" {
			return flatten(path.Base(strings.TrimSuffix(l.URL, "/")))
		}
		return flatten(a.Name) + "-" + version + ".tgz"
	case *locator.Git:
		return path.Join("git", gitSlug(l.URL), flatten(a.Name)+"-"+l.Ref+".tgz")
	}
	return ""
}

func flatten(name string) string {
	return strings.ReplaceAll(name, "/", "-")
}

// gitSlug turns a repository URL into "host/owner/repo".
func gitSlug(raw string) string {
	u, err := url.Parse(strings.TrimPrefix(raw, "git+"))
	if err != nil || u.Host == "" {
		return "unknown"
	}
	p := strings.TrimSuffix(strings.Trim(u.Path, "/"), ".git")
	return path.Join(u.Hostname(), strings.ReplaceAll(p, "..", ""))
}

// markDev flags records that only development dependencies reach. prod and
// dev are the root's references; edges are followed through the records'
// Dependencies.
func markDev(records []deps.RawRecord, prod, dev []locator.Reference) {
	index := make(map[locator.Reference][]int, len(records))
	for i, r := range records {
		index[r.Reference] = append(index[r.Reference], i)
	}

	reach := func(roots []locator.Reference) map[locator.Reference]bool {
		seen := make(map[locator.Reference]bool)
		queue := append([]locator.Reference(nil), roots...)
		for len(queue) > 0 {
			ref := queue[0]
			queue = queue[1:]
			if seen[ref] {
				continue
			}
			seen[ref] = true
			for _, i := range index[ref] {
				queue = append(queue, records[i].Dependencies...)
			}
		}
		return seen
	}

	prodSet := reach(prod)
	devSet := reach(dev)
	for i := range records {
		ref := records[i].Reference
		if devSet[ref] && !prodSet[ref] {
			records[i].Dev = true
		}
	}
}

// rewriteResolved replaces "resolved" values in a lockfile with file URLs
// of the materialized artifacts. Text outside those values is untouched.
func rewriteResolved(lock []byte, in deps.RenderInput, quote func(string) string) string {
	out := string(lock)
	for _, a := range in.Artifacts {
		raw := a.Properties[deps.PropResolved]
		if raw == "" || a.Path == "" {
			continue
		}
		local := "file://" + path.Join(filepath.ToSlash(in.DepsDir), a.Path)
		out = strings.ReplaceAll(out, quote(raw), quote(local))
	}
	return out
}
