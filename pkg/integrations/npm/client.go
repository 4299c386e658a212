package npm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matzehuels/prefetch/pkg/cache"
	"github.com/matzehuels/prefetch/pkg/checksum"
	perrors "github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/integrations"
)

// DefaultRegistry is the public npm registry.
const DefaultRegistry = "https://registry.npmjs.org"

// VersionInfo is the registry's record of one published version.
type VersionInfo struct {
	Name      string
	Version   string
	Tarball   string
	Integrity string // SRI string, usually sha512
	Shasum    string // legacy sha1 hex
	License   string
}

// Checksums returns the digests the registry publishes for the tarball,
// strongest first.
func (v *VersionInfo) Checksums() []checksum.Checksum {
	var out []checksum.Checksum
	if v.Integrity != "" {
		if sums, err := checksum.ParseIntegrity(v.Integrity); err == nil {
			out = append(out, sums...)
		}
	}
	if v.Shasum != "" {
		if c, err := checksum.New(checksum.SHA1, strings.ToLower(v.Shasum)); err == nil && !checksum.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// Client provides access to npm registry metadata.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates an npm registry client with the given cache backend.
func NewClient(backend cache.Cache, cacheTTL time.Duration) *Client {
	return &Client{
		Client:  integrations.NewClient(backend, "npm:", cacheTTL, nil),
		baseURL: DefaultRegistry,
	}
}

// WithBaseURL points the client at another registry and returns c.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimSuffix(u, "/")
	return c
}

// FetchVersion retrieves the registry record of name@version. Scoped names
// ("@scope/name") are supported.
func (c *Client) FetchVersion(ctx context.Context, name, version string, refresh bool) (*VersionInfo, error) {
	name = strings.TrimSpace(name)
	if err := perrors.ValidateNpmPackageName(name); err != nil {
		return nil, err
	}
	key := cache.Key(name, version)

	var info VersionInfo
	err := c.Cached(ctx, key, refresh, &info, func() error {
		return c.fetch(ctx, name, version, &info)
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) fetch(ctx context.Context, name, version string, info *VersionInfo) error {
	var data versionDetails
	if err := c.Get(ctx, c.baseURL+"/"+EscapeName(name)+"/"+version, &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return fmt.Errorf("%w: npm package %s@%s", err, name, version)
		}
		return err
	}
	if data.Dist.Tarball == "" {
		data.Dist.Tarball = TarballURL(c.baseURL, name, version)
	}

	*info = VersionInfo{
		Name:      data.Name,
		Version:   data.Version,
		Tarball:   data.Dist.Tarball,
		Integrity: data.Dist.Integrity,
		Shasum:    data.Dist.Shasum,
		License:   extractField(data.License, "type"),
	}
	return nil
}

// EscapeName encodes the slash of a scoped package name the way the
// registry expects in metadata URLs.
func EscapeName(name string) string {
	return strings.Replace(name, "/", "%2f", 1)
}

// TarballURL returns the conventional tarball location of name@version on
// registry.
func TarballURL(registry, name, version string) string {
	base := name
	if i := strings.LastIndex(name, "/"); i >= 0 {
		base = name[i+1:]
	}
	return strings.TrimSuffix(registry, "/") + "/" + name + "/-/" + base + "-" + version + ".tgz"
}

func extractField(v any, field string) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if s, ok := val[field].(string); ok {
			return s
		}
	}
	return ""
}

type versionDetails struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	License any    `json:"license"`
	Dist    struct {
		Tarball   string `json:"tarball"`
		Integrity string `json:"integrity"`
		Shasum    string `json:"shasum"`
	} `json:"dist"`
}
