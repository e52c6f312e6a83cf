package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"github.com/victorxys/dify-0.15.3/internal/logger"
)

const maxBodyBytes = 1 << 20

type (
	// Client posts JSON documents to a single upstream with a per-call
	// timeout and a bounded number of retries on transient failures.
	Client struct {
		name    string
		timeout time.Duration
		headers http.Header
		http    *retryablehttp.Client
	}

	Config struct {
		// Name identifies the upstream in logs.
		Name string
		// Timeout bounds one call, retries included.
		Timeout time.Duration
		// RetryMax is the number of retries after the first attempt.
		// Zero disables retries.
		RetryMax int
		// Headers are added to every request.
		Headers http.Header
		// Transport overrides http.DefaultTransport.
		Transport http.RoundTripper
	}

	// Response is a fully read upstream response.
	Response struct {
		Status int
		Header http.Header
		Body   []byte
	}
)

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	if cfg.Headers == nil {
		cfg.Headers = make(http.Header)
	}

	c := &Client{
		name:    cfg.Name,
		timeout: cfg.Timeout,
		headers: cfg.Headers,
	}
	c.http = &retryablehttp.Client{
		HTTPClient:   &http.Client{Transport: cfg.Transport},
		Backoff:      retryablehttp.DefaultBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
		RetryWaitMin: 200 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
		RetryMax:     cfg.RetryMax,
	}
	if cfg.RetryMax > 0 {
		c.http.CheckRetry = retryablehttp.DefaultRetryPolicy
		c.http.RequestLogHook = func(_ retryablehttp.Logger, r *http.Request, attempt int) {
			if attempt > 0 {
				logger.Warn("retrying upstream request", map[string]any{
					"upstream": c.name,
					"url":      r.URL.Redacted(),
					"attempt":  attempt,
				})
			}
		}
	} else {
		c.http.CheckRetry = func(_ context.Context, _ *http.Response, err error) (bool, error) {
			return false, err
		}
	}
	return c
}

// PostJSON sends v as a JSON body to url and returns the response. An error
// is returned only when no response was obtained (transport failure,
// timeout or cancellation); HTTP error statuses are returned as responses.
func (c *Client) PostJSON(ctx context.Context, url string, v any) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	maps.Copy(req.Header, c.headers)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// JSON reports whether the response declares a JSON content type.
func (r *Response) JSON() bool {
	return strings.Contains(r.Header.Get("Content-Type"), "json")
}
