package pypi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/prefetch/pkg/cache"
	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/integrations"
)

const (
	sdistSHA = "942c5a758f98d790eaed1a29cb6eefc7ffb0d1cf7af05c3d2791656dbd6ad1e1"
	wheelSHA = "58cd2187c01e70e6e26505bca751777aa9f2ee0b7f4300988b709f44e013003f"
)

func fakePyPI(t *testing.T, hits *int) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/{name}/{version}/json", func(w http.ResponseWriter, req *http.Request) {
		if hits != nil {
			*hits++
		}
		if chi.URLParam(req, "name") != "requests" || chi.URLParam(req, "version") != "2.31.0" {
			http.NotFound(w, req)
			return
		}
		resp := apiResponse{
			Info: apiInfo{
				Name:        "requests",
				Version:     "2.31.0",
				License:     "Apache 2.0",
				Classifiers: []string{"License :: OSI Approved :: Apache Software License"},
			},
		}
		for _, f := range []struct{ name, typ, sha string }{
			{"requests-2.31.0.tar.gz", "sdist", sdistSHA},
			{"requests-2.31.0-py3-none-any.whl", "bdist_wheel", wheelSHA},
		} {
			af := apiFile{Filename: f.name, URL: "https://files.example/" + f.name, PackageType: f.typ}
			af.Digests.SHA256 = f.sha
			resp.URLs = append(resp.URLs, af)
		}
		json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_FetchRelease(t *testing.T) {
	srv := fakePyPI(t, nil)
	c := testClient(t, srv.URL)

	rel, err := c.FetchRelease(context.Background(), "Requests", "2.31.0", true)
	if err != nil {
		t.Fatalf("FetchRelease failed: %v", err)
	}
	if rel.Name != "requests" {
		t.Errorf("expected normalized name requests, got %s", rel.Name)
	}
	if len(rel.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(rel.Files))
	}
	if rel.License != "Apache Software License" {
		t.Errorf("license = %q", rel.License)
	}

	f, ok := rel.Match([]checksum.Checksum{{Algorithm: checksum.SHA256, Value: wheelSHA}})
	if !ok || f.PackageType != "bdist_wheel" {
		t.Errorf("Match() = %+v, %v", f, ok)
	}
	if _, ok := rel.Match([]checksum.Checksum{{Algorithm: checksum.SHA256, Value: "00"}}); ok {
		t.Error("Match() should fail for unknown digest")
	}
}

func TestClient_FetchRelease_Cached(t *testing.T) {
	hits := 0
	srv := fakePyPI(t, &hits)
	c := testClient(t, srv.URL)

	for range 2 {
		if _, err := c.FetchRelease(context.Background(), "requests", "2.31.0", false); err != nil {
			t.Fatal(err)
		}
	}
	if hits != 1 {
		t.Errorf("registry hits = %d, want 1", hits)
	}
}

func TestClient_FetchRelease_NotFound(t *testing.T) {
	srv := fakePyPI(t, nil)
	c := testClient(t, srv.URL)

	_, err := c.FetchRelease(context.Background(), "missing-pkg", "1.0", true)
	if err == nil {
		t.Fatal("expected error for missing package")
	}
	if !errors.Is(err, integrations.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExtractLicenseType(t *testing.T) {
	tests := []struct {
		license     string
		classifiers []string
		want        string
	}{
		{"", []string{"License :: OSI Approved :: MIT License"}, "MIT License"},
		{"BSD-3-Clause", nil, "BSD-3-Clause"},
		{"", nil, ""},
	}
	for _, tt := range tests {
		if got := extractLicenseType(tt.license, tt.classifiers); got != tt.want {
			t.Errorf("extractLicenseType(%q, %v) = %q, want %q", tt.license, tt.classifiers, got, tt.want)
		}
	}
}

func testClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	backend, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewClient(backend, time.Hour).WithBaseURL(serverURL)
}
