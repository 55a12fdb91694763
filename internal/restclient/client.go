// Package restclient provides a rate-limited, retrying HTTP client for the
// platform REST API.
package restclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/dbsmedya/goapidiscovery/internal/config"
	"github.com/dbsmedya/goapidiscovery/internal/logger"
)

const (
	// minRate is the floor applied to the configured requests-per-second.
	minRate = 0.1

	defaultMaxAttempts    = 5
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaxBackoff     = 4 * time.Second
	defaultTimeout        = 30 * time.Second
)

// Options configures a Client.
type Options struct {
	BaseURL            string
	Username           string
	Password           string
	OAuthToken         string
	UserAgent          string
	VerifyTLS          bool
	Timeout            time.Duration
	RateLimitPerSecond float64
	MaxAttempts        int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration

	// HTTPClient replaces the client built from VerifyTLS and Timeout.
	HTTPClient *http.Client
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// IsHTML reports whether the response carries an HTML document.
func (r *Response) IsHTML() bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "text/html")
}

// Client issues requests against one platform instance. Consecutive attempts
// (including retries) are spaced at least 1/max(rate, 0.1) seconds apart.
// A Client is meant to be used from a single goroutine per run.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	limiter        *rate.Limiter
	username       string
	password       string
	token          string
	userAgent      string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *logger.Logger
}

// New creates a Client from explicit options.
func New(opts Options, log *logger.Logger) (*Client, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", opts.BaseURL)
	}

	if log == nil {
		log = logger.NewDefault()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if !opts.VerifyTLS {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator toggle
		}
		httpClient = &http.Client{Timeout: timeout, Transport: transport}
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	initial := opts.InitialBackoff
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}

	rps := math.Max(opts.RateLimitPerSecond, minRate)

	return &Client{
		baseURL:        base,
		httpClient:     httpClient,
		limiter:        rate.NewLimiter(rate.Limit(rps), 1),
		username:       opts.Username,
		password:       opts.Password,
		token:          opts.OAuthToken,
		userAgent:      opts.UserAgent,
		maxAttempts:    maxAttempts,
		initialBackoff: initial,
		maxBackoff:     maxBackoff,
		logger:         log.WithComponent("restclient").WithInstance(opts.BaseURL),
	}, nil
}

// NewFromConfig creates a Client from the application configuration.
func NewFromConfig(cfg *config.Config, log *logger.Logger) (*Client, error) {
	return New(Options{
		BaseURL:            cfg.Instance.BaseURL,
		Username:           cfg.Instance.Username,
		Password:           cfg.Instance.Password,
		OAuthToken:         cfg.Instance.OAuthToken,
		UserAgent:          cfg.HTTP.UserAgent,
		VerifyTLS:          cfg.HTTP.VerifyTLS,
		Timeout:            cfg.HTTP.Timeout(),
		RateLimitPerSecond: cfg.HTTP.RateLimitPerSecond,
		MaxAttempts:        cfg.HTTP.MaxAttempts,
	}, log)
}

// BaseURL returns the instance base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get is shorthand for Request with GET.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, params)
}

// Request performs one logical call, retrying transient failures with jittered
// exponential backoff up to the configured attempt ceiling. The error of the
// final attempt is returned when all attempts fail. Non-2xx statuses map to
// *TransportError, *AuthError, *NotFoundError or *ValidationError.
func (c *Client) Request(ctx context.Context, method, path string, params url.Values) (*Response, error) {
	target := c.resolve(path, params)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = c.maxBackoff

	attempt := 0
	operation := func() (*Response, error) {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		resp, err := c.do(ctx, method, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, &TransportError{Method: method, URL: target, Err: err}
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		statusErr, retryable := classifyStatus(method, target, resp.StatusCode, resp.Body)
		if !retryable {
			return nil, backoff.Permanent(statusErr)
		}
		return nil, statusErr
	}

	notify := func(err error, next time.Duration) {
		c.logger.Debugw("Retrying request",
			"method", method,
			"url", target,
			"attempt", attempt,
			"next_in", next,
			"error", err,
		)
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err != nil {
		// The attempt ceiling is checked before permanence, so the final
		// attempt may still carry the wrapper.
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		c.logger.Debugw("Request failed", "method", method, "url", target, "attempts", attempt, "error", err)
		return nil, err
	}
	return resp, nil
}

func (c *Client) resolve(path string, params url.Values) string {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		target = c.baseURL + path
	}
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + params.Encode()
	}
	return target
}

func (c *Client) do(ctx context.Context, method, target string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	switch {
	case c.username != "" && c.password != "":
		req.SetBasicAuth(c.username, c.password)
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}
