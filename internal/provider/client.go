package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const userAgent = "multigit"

// restClient is the shared REST plumbing for provider objects: a
// TLS-enforcing HTTP client, a per-host token bucket, and uniform
// status-code classification.
type restClient struct {
	name    string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	// authorize mutates the request with this provider's auth scheme.
	authorize func(*http.Request)
}

func newRESTClient(name, baseURL string, timeout time.Duration, limiter *rate.Limiter, authorize func(*http.Request)) *restClient {
	return &restClient{
		name:    name,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		limiter:   limiter,
		authorize: authorize,
	}
}

// doJSON performs one API call. A nil out discards the response body.
// The call blocks on the host's token bucket first, so the per-host
// request rate stays bounded regardless of fan-out.
func (c *restClient) doJSON(ctx context.Context, method, path string, body, out interface{}) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := c.baseURL + path
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Provider: c.name, URL: url, Wrapped: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return resp, fmt.Errorf("%w: %s", ErrNotFound, url)

	case resp.StatusCode == http.StatusTooManyRequests:
		return resp, c.rateLimitError(resp, url)

	case resp.StatusCode == http.StatusForbidden:
		// 403 is a rate limit when the headers say so, otherwise auth.
		if resp.Header.Get("X-RateLimit-Remaining") == "0" || resp.Header.Get("Retry-After") != "" {
			return resp, c.rateLimitError(resp, url)
		}
		return resp, &AuthError{Provider: c.name, Host: req.URL.Hostname(), Status: resp.StatusCode}

	case resp.StatusCode == http.StatusUnauthorized:
		return resp, &AuthError{Provider: c.name, Host: req.URL.Hostname(), Status: resp.StatusCode}

	case resp.StatusCode >= 500:
		return resp, &NetworkError{
			Provider: c.name,
			URL:      url,
			Wrapped:  fmt.Errorf("server error: HTTP %d", resp.StatusCode),
		}

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return resp, fmt.Errorf("%s API error: HTTP %d", c.name, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return resp, nil
}

// rateLimitError builds a RateLimitError from standard and GitHub-style
// throttling headers, honoring Retry-After when present.
func (c *restClient) rateLimitError(resp *http.Response, url string) error {
	rl := &RateLimitError{
		Provider: c.name,
		Message:  fmt.Sprintf("HTTP %d for %s", resp.StatusCode, url),
	}

	if v := resp.Header.Get("X-RateLimit-Limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			rl.Limit = parsed
		}
	}
	if v := resp.Header.Get("X-RateLimit-Remaining"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			rl.Remaining = parsed
		}
	}
	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			rl.RetryAfter = time.Unix(unix, 0)
		}
	}
	if v := resp.Header.Get("Retry-After"); v != "" && rl.RetryAfter.IsZero() {
		if secs, err := strconv.Atoi(v); err == nil {
			rl.RetryAfter = time.Now().Add(time.Duration(secs) * time.Second)
		}
	}
	return rl
}

// classifyProbe maps a probe error onto a ConnectionStatus.
func classifyProbe(err error) (ConnectionStatus, error) {
	switch {
	case err == nil:
		return StatusOK, nil
	case IsAuth(err):
		return StatusAuthFailed, err
	case IsRateLimit(err):
		return StatusRateLimited, err
	default:
		return StatusNetwork, err
	}
}
