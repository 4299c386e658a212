package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/matzehuels/prefetch/pkg/cache"
	"github.com/matzehuels/prefetch/pkg/httputil"
	"github.com/matzehuels/prefetch/pkg/observability"
)

// Client is the HTTP layer shared by the registry clients and the artifact
// fetcher. Metadata lookups go through a [cache.Cache]; every request runs
// under a retry [httputil.Policy] and reports to the HTTP hooks.
type Client struct {
	http    *http.Client
	cache   cache.Cache
	prefix  string
	ttl     time.Duration
	headers map[string]string
	retry   httputil.Policy
}

// NewClient returns a client storing metadata in backend under prefix for
// ttl. A nil backend caches nothing. headers are sent with every request.
func NewClient(backend cache.Cache, prefix string, ttl time.Duration, headers map[string]string) *Client {
	if backend == nil {
		backend = cache.NewNullCache()
	}
	return &Client{
		http:    NewHTTPClient(),
		cache:   backend,
		prefix:  prefix,
		ttl:     ttl,
		headers: headers,
		retry:   httputil.DefaultPolicy,
	}
}

// WithHTTPClient swaps the transport, typically for an httptest server.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// WithRetry sets the retry policy.
func (c *Client) WithRetry(p httputil.Policy) *Client {
	c.retry = p
	return c
}

// Cached fills v from the cache entry for key, or runs fetch under the
// retry policy and caches what it put into v. refresh skips the lookup but
// still stores the fresh value. Entries that no longer decode into v are
// treated as misses.
func (c *Client) Cached(ctx context.Context, key string, refresh bool, v any, fetch func() error) error {
	key = c.prefix + key
	if !refresh {
		data, hit, err := c.cache.Get(ctx, key)
		if err == nil && hit && json.Unmarshal(data, v) == nil {
			return nil
		}
	}
	if err := c.retry.Do(ctx, fetch); err != nil {
		return err
	}
	if data, err := json.Marshal(v); err == nil {
		c.cache.Set(ctx, key, data, c.ttl)
	}
	return nil
}

// Get fetches url once and decodes the JSON body into v. Retries are the
// caller's business, normally through [Client.Cached].
func (c *Client) Get(ctx context.Context, url string, v any) error {
	body, err := c.Open(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// Download copies url into w and returns the byte count. Transient
// failures are retried; before each retry reset is called so w can be
// rewound.
func (c *Client) Download(ctx context.Context, url string, w io.Writer, reset func() error) (int64, error) {
	var written int64
	attempt := 0
	err := c.retry.Do(ctx, func() error {
		if attempt++; attempt > 1 && reset != nil {
			if err := reset(); err != nil {
				return err
			}
		}
		body, err := c.Open(ctx, url)
		if err != nil {
			return err
		}
		defer body.Close()

		if written, err = io.Copy(w, body); err != nil {
			return httputil.Retryable(fmt.Errorf("%w: read %s: %v", ErrNetwork, url, err))
		}
		return nil
	})
	return written, err
}

// Open issues one GET and returns the body of a 200 response for the
// caller to close. 404 maps to [ErrNotFound]; 429, 5xx and transport
// failures to a retryable [ErrNetwork].
func (c *Client) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	hooks := observability.HTTP()
	host, path := req.URL.Host, req.URL.Path
	hooks.OnRequest(ctx, req.Method, host, path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, host, path, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, httputil.Retryable(fmt.Errorf("%w: %v", ErrNetwork, err))
	}
	hooks.OnResponse(ctx, req.Method, host, path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	return resp.Body, nil
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return httputil.Retryable(fmt.Errorf("%w: status %d", ErrNetwork, code))
	}
	return fmt.Errorf("%w: status %d", ErrNetwork, code)
}
