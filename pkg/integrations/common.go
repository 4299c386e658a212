package integrations

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// httpTimeout bounds a whole request including the body, so it has to
// cover the largest artifact download.
const httpTimeout = 5 * time.Minute

// Sentinel errors shared by the registry clients. Match them with
// errors.Is.
var (
	ErrNotFound = errors.New("resource not found")
	ErrNetwork  = errors.New("network error")
)

// NewHTTPClient returns the HTTP client registry clients use by default.
func NewHTTPClient() *http.Client { return &http.Client{Timeout: httpTimeout} }

var separatorRun = regexp.MustCompile(`[-_.]+`)

// NormalizePkgName returns the PEP 503 form of a Python project name:
// lower case, with every run of '-', '_' and '.' replaced by one '-'.
func NormalizePkgName(name string) string {
	return separatorRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}
