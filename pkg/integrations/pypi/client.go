package pypi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/matzehuels/prefetch/pkg/cache"
	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/integrations"
)

// DefaultBaseURL is the PyPI JSON API root.
const DefaultBaseURL = "https://pypi.org/pypi"

// Release describes one version of a project and its distribution files.
//
// Project names are normalized following PEP 503 (lowercase, runs of
// '-', '_' and '.' collapsed to '-').
type Release struct {
	Name    string // Normalized project name
	Version string // Version as published
	License string // Short license identifier (may be empty)
	Files   []File // Distribution files, sdists and wheels
}

// File is one distribution file of a release.
type File struct {
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	PackageType string `json:"packagetype"` // "sdist" or "bdist_wheel"
	SHA256      string `json:"sha256"`
	Yanked      bool   `json:"yanked"`
}

// Checksum returns the file's sha256 checksum.
func (f File) Checksum() checksum.Checksum {
	return checksum.Checksum{Algorithm: checksum.SHA256, Value: strings.ToLower(f.SHA256)}
}

// Match returns the first file whose sha256 is among sums. Lockfiles such
// as requirements.txt list one hash per acceptable file, so any match
// identifies the file to fetch.
func (r *Release) Match(sums []checksum.Checksum) (File, bool) {
	for _, f := range r.Files {
		if f.SHA256 != "" && checksum.Contains(sums, f.Checksum()) {
			return f, true
		}
	}
	return File{}, false
}

// Client provides access to the PyPI JSON API.
// It handles HTTP requests with caching and automatic retries.
//
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a PyPI client with the given cache backend.
// cacheTTL controls how long responses are cached (typical: 1-24 hours).
func NewClient(backend cache.Cache, cacheTTL time.Duration) *Client {
	return &Client{
		Client:  integrations.NewClient(backend, "pypi:", cacheTTL, nil),
		baseURL: DefaultBaseURL,
	}
}

// WithBaseURL points the client at a PyPI mirror and returns c.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimSuffix(u, "/")
	return c
}

// FetchRelease retrieves the files of one project version.
//
// If refresh is true, the cache is bypassed and a fresh API call is made.
//
// Returns:
//   - [integrations.ErrNotFound] if the project or version doesn't exist
//   - [integrations.ErrNetwork] for HTTP failures (timeout, 5xx, etc.)
func (c *Client) FetchRelease(ctx context.Context, name, version string, refresh bool) (*Release, error) {
	name = integrations.NormalizePkgName(name)
	key := cache.Key(name, version)

	var rel Release
	err := c.Cached(ctx, key, refresh, &rel, func() error {
		return c.fetch(ctx, name, version, &rel)
	})
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

func (c *Client) fetch(ctx context.Context, name, version string, rel *Release) error {
	var data apiResponse
	u := fmt.Sprintf("%s/%s/%s/json", c.baseURL, url.PathEscape(name), url.PathEscape(version))
	if err := c.Get(ctx, u, &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return fmt.Errorf("%w: pypi release %s==%s", err, name, version)
		}
		return err
	}

	*rel = Release{
		Name:    name,
		Version: data.Info.Version,
		License: extractLicenseType(data.Info.License, data.Info.Classifiers),
	}
	for _, f := range data.URLs {
		rel.Files = append(rel.Files, File{
			Filename:    f.Filename,
			URL:         f.URL,
			PackageType: f.PackageType,
			SHA256:      f.Digests.SHA256,
			Yanked:      f.Yanked,
		})
	}
	return nil
}

type apiResponse struct {
	Info apiInfo   `json:"info"`
	URLs []apiFile `json:"urls"`
}

type apiInfo struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	License     string   `json:"license"`
	Classifiers []string `json:"classifiers"`
}

type apiFile struct {
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	PackageType string `json:"packagetype"`
	Yanked      bool   `json:"yanked"`
	Digests     struct {
		SHA256 string `json:"sha256"`
	} `json:"digests"`
}

// extractLicenseType extracts a short license identifier from PyPI data.
// It prefers the classifier (e.g., "License :: OSI Approved :: MIT License" -> "MIT License")
// and falls back to the license field if it's short enough.
func extractLicenseType(license string, classifiers []string) string {
	for _, c := range classifiers {
		if strings.HasPrefix(c, "License :: ") {
			parts := strings.Split(c, " :: ")
			if len(parts) >= 3 {
				return parts[len(parts)-1]
			}
		}
	}

	if license != "" && len(license) < 100 && !strings.Contains(license, "\n") {
		return strings.TrimSpace(license)
	}

	if license != "" {
		firstLine := strings.TrimSpace(strings.Split(license, "\n")[0])
		if len(firstLine) < 50 {
			return firstLine
		}
	}

	return ""
}
