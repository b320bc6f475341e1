// Package httputil provides the HTTP plumbing shared by the repository
// client and server: a preconfigured client, status classification and
// retry with exponential backoff.
//
// # Retry
//
// [Retry] re-runs an operation while it fails with a [RetryableError]:
//
//	err := httputil.Retry(ctx, 3, time.Second, func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return &httputil.RetryableError{Err: err}
//	    }
//	    return httputil.CheckStatus(resp.StatusCode)
//	})
//
// Only errors wrapped in [RetryableError] are retried: network failures,
// 5xx responses and 429 Too Many Requests. Everything else, including
// [ErrNotFound], is returned immediately.
package httputil
