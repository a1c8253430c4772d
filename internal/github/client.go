package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v58/github"
)

// DefaultTimeout bounds every single API call made by the client.
const DefaultTimeout = 30 * time.Second

// Options configures a Client. The zero value talks to api.github.com
// without credentials.
type Options struct {
	// Token is sent as a bearer credential on every request when set.
	Token string
	// BaseURL overrides the REST endpoint, e.g. for GitHub Enterprise.
	BaseURL string
	// HTTPClient is used for all requests; http.DefaultClient when nil.
	HTTPClient *http.Client
	// Timeout bounds each API call; DefaultTimeout when zero.
	Timeout time.Duration
}

// Client is a read-only view over the parts of the GitHub REST API needed to
// resolve action references. It holds no mutable state and is safe for
// concurrent use.
type Client struct {
	client  *github.Client
	timeout time.Duration
}

func NewClient(opts Options) (*Client, error) {
	client := github.NewClient(opts.HTTPClient)
	if opts.Token != "" {
		client = client.WithAuthToken(opts.Token)
	}

	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid API URL %q: %w", opts.BaseURL, err)
		}
		client.BaseURL = u
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		client:  client,
		timeout: timeout,
	}, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}
