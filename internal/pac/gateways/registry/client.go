// Package registry fetches the canonical blocked-domain list from the remote
// registry API.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/haukened/rr-pac/internal/pac/domain"
)

const (
	defaultTimeout = 30 * time.Second
	// maxBodyBytes guards against a runaway registry response.
	maxBodyBytes = 64 << 20
	userAgent    = "rr-pacd/registry-sync"
)

// Doer is the subset of *http.Client the registry client uses.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Client.
type Options struct {
	// required parameters
	URL string
	// optional
	Timeout time.Duration
	// options to inject for testing purposes
	HTTP Doer
}

// Client performs GET <URL> and expects {"domains":[...]}.
type Client struct {
	url     string
	timeout time.Duration
	http    Doer
}

// response is the registry body.
type response struct {
	Domains []string `json:"domains"`
}

// NewClient validates opts and returns a Client.
func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(opts.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid registry url %q", opts.URL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{url: u.String(), timeout: opts.Timeout, http: opts.HTTP}, nil
}

// URL returns the registry endpoint.
func (c *Client) URL() string { return c.url }

// FetchDomains downloads the registry. Every failure is wrapped in
// domain.ErrRegistryFetch; no partial result is returned.
func (c *Client) FetchDomains(ctx context.Context) ([]string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", domain.ErrRegistryFetch, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: do request: %v", domain.ErrRegistryFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: unexpected status: %s", domain.ErrRegistryFetch, resp.Status)
	}

	var body response
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", domain.ErrRegistryFetch, err)
	}
	if body.Domains == nil {
		return nil, fmt.Errorf("%w: body has no domains array", domain.ErrRegistryFetch)
	}
	return body.Domains, nil
}
