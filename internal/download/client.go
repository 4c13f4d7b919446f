package download

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// ClientOptions configures the HTTP client.
type ClientOptions struct {
	// Timeout bounds a whole request including reading the body.
	// Default: 10s
	Timeout time.Duration

	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 2
	MaxIdleConnsPerHost int
}

// DefaultClientOptions returns options matching the image service defaults.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout:             10 * time.Second,
		MaxIdleConnsPerHost: 2,
	}
}

// Client performs streaming GET requests against the image service.
// One Client is reused for every image of a run so the connection is kept alive.
type Client struct {
	client *http.Client
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultClientOptions().Timeout
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = DefaultClientOptions().MaxIdleConnsPerHost
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = opts.MaxIdleConnsPerHost
	transport.IdleConnTimeout = 90 * time.Second

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
	}
}

// Get issues a GET request and returns the response body for streaming.
// The caller must close the returned body.
func (c *Client) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "create request", goerr.V("url", url))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "request image", goerr.V("url", url))
	}

	if err := checkStatusCode(resp.StatusCode); err != nil {
		// Drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		resp.Body.Close()
		return nil, goerr.Wrap(err, "image service rejected request",
			goerr.V("url", url),
			goerr.V("status", resp.StatusCode))
	}

	return resp.Body, nil
}

// CloseIdleConnections releases pooled connections at the end of a run.
func (c *Client) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code >= 500:
		return ErrServerError
	default:
		return ErrUnexpectedStatus
	}
}
