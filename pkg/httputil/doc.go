// Package httputil provides retry helpers for registry clients and artifact
// downloads.
//
// [Retry] re-runs an operation with exponential backoff, but only when the
// error is wrapped in [RetryableError]. Callers decide what is transient:
// the registry client marks network errors, 5xx responses and 429 rate
// limits as retryable, and everything else fails immediately.
//
//	err := httputil.Retry(ctx, 3, time.Second, func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return &httputil.RetryableError{Err: err}
//	    }
//	    ...
//	})
//
// [Policy] bundles attempts and delay so they can come from configuration.
package httputil
