// Package httpx is the shared HTTP retry layer used by all three provider
// adapters, generalized from the teacher's GitHubLicenseChecker.CheckLicense
// (a single-endpoint retry loop) to a reusable client that every adapter's
// list/validate/health calls go through.
package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Client wraps http.Client with retry-with-backoff on rate limiting and
// transient server errors, honoring Retry-After and X-RateLimit-Reset
// response headers when present.
type Client struct {
	http       *http.Client
	maxRetries int
	userAgent  string
}

// New creates a Client. If httpClient is nil, http.DefaultClient is used.
func New(httpClient *http.Client, userAgent string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{http: httpClient, maxRetries: 3, userAgent: userAgent}
}

// Do issues req, retrying up to maxRetries times on 403/429/5xx responses
// and on transport errors, honoring Retry-After / X-RateLimit-Reset for
// the wait duration and falling back to exponential backoff otherwise.
// The caller's context governs overall cancellation; Do never retries
// past ctx's deadline.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var lastErr error
	waited := false
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && !waited {
			wait := backoffFor(nil, attempt)
			log.Info().Str("url", req.URL.String()).Int("attempt", attempt).Dur("wait", wait).Msg("retrying provider request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		waited = false

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			wait := backoffFor(resp, attempt+1)
			drain(resp)
			lastErr = fmt.Errorf("provider request to %s failed with status %d", req.URL, resp.StatusCode)
			if attempt < c.maxRetries {
				log.Warn().Str("url", req.URL.String()).Int("status", resp.StatusCode).Dur("wait", wait).Msg("provider request rate limited or unavailable, backing off")
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(wait):
				}
				waited = true
				continue
			}
			return nil, lastErr
		}

		return resp, nil
	}

	return nil, lastErr
}

// drain discards and closes a response body so the underlying connection
// can be reused for the retry instead of being abandoned mid-read.
func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// backoffFor computes the wait before the next attempt. When resp carries
// a Retry-After (seconds) or X-RateLimit-Reset (unix timestamp) header,
// that takes precedence over the exponential fallback.
func backoffFor(resp *http.Response, attempt int) time.Duration {
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
		if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
			if ts, err := strconv.ParseInt(reset, 10, 64); err == nil {
				if d := time.Until(time.Unix(ts, 0)); d > 0 {
					return d
				}
			}
		}
	}
	return time.Duration(1<<uint(attempt)) * time.Second
}
