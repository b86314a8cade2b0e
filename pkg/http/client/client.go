package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

type Response struct {
	StatusCode int
	Body       []byte
}

type Interface interface {
	Get(ctx context.Context, path string, params url.Values) (*Response, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	GetFunc    func(ctx context.Context, path string, params url.Values) (*Response, error)
}

type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RatePerSecond caps outbound requests. Zero disables limiting.
	RatePerSecond int
}

func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.RatePerSecond)
	}

	return &Client{
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter: limiter,
	}
}

func (c *Client) Get(ctx context.Context, path string, params url.Values) (*Response, error) {
	if c.GetFunc != nil {
		return c.GetFunc(ctx, path, params)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	fullURL := c.buildURL(path, params)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: c.baseURL + path}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

func (c *Client) buildURL(path string, params url.Values) string {
	// If no base URL, treat path as full URL
	fullURL := c.baseURL + path

	q := url.Values{}
	for k, v := range params {
		q[k] = append([]string(nil), v...)
	}
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	if len(q) > 0 {
		fullURL += "?" + q.Encode()
	}
	return fullURL
}
