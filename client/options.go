package client

import (
	"log/slog"
	"net/http"
	"time"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Useful for custom
// transports or test servers.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithTimeout sets a per-request timeout on the underlying HTTP client.
// Runs execute within the start/resume request, so this bounds how long
// the client waits for a run to finish.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		clone := *c.httpc
		clone.Timeout = d
		c.httpc = &clone
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}
