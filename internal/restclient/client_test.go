package restclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/dbsmedya/goapidiscovery/internal/config"
	"github.com/dbsmedya/goapidiscovery/internal/logger"
)

// newTestClient builds a client with fast retries and a high rate so tests
// only pay for the behaviour they measure.
func newTestClient(t *testing.T, baseURL string, mutate func(*Options)) *Client {
	t.Helper()
	opts := Options{
		BaseURL:            baseURL,
		UserAgent:          "api-discovery-test",
		VerifyTLS:          true,
		Timeout:            5 * time.Second,
		RateLimitPerSecond: 1000,
		MaxAttempts:        5,
		InitialBackoff:     time.Millisecond,
		MaxBackoff:         2 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts, logger.NewNop())
	require.NoError(t, err)
	return c
}

func TestNew_InvalidBaseURL(t *testing.T) {
	tests := []string{"", "not a url", "/relative/only", "dev.service-now.com"}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, err := New(Options{BaseURL: raw}, logger.NewNop())
			assert.Error(t, err)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Options{BaseURL: "https://dev.example.com/"}, logger.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "https://dev.example.com", c.BaseURL())
	assert.Equal(t, defaultMaxAttempts, c.maxAttempts)
	assert.Equal(t, defaultInitialBackoff, c.initialBackoff)
	assert.Equal(t, defaultMaxBackoff, c.maxBackoff)
	assert.Equal(t, rate.Limit(minRate), c.limiter.Limit(), "zero rate is floored")
	assert.Equal(t, 1, c.limiter.Burst())
}

func TestNew_RateFloor(t *testing.T) {
	tests := []struct {
		name     string
		rps      float64
		expected rate.Limit
	}{
		{"negative", -3, rate.Limit(0.1)},
		{"below floor", 0.01, rate.Limit(0.1)},
		{"at floor", 0.1, rate.Limit(0.1)},
		{"configured", 5, rate.Limit(5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(Options{BaseURL: "https://x.example.com", RateLimitPerSecond: tt.rps}, logger.NewNop())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, c.limiter.Limit())
		})
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Instance.BaseURL = "https://dev.example.com"
	cfg.HTTP.MaxAttempts = 3
	cfg.HTTP.RateLimitPerSecond = 2

	c, err := NewFromConfig(cfg, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, c.maxAttempts)
	assert.Equal(t, rate.Limit(2), c.limiter.Limit())
	assert.Equal(t, 30*time.Second, c.httpClient.Timeout)
}

func TestRequest_Headers(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(o *Options) {
		o.Username = "admin"
		o.Password = "secret"
	})

	resp, err := c.Get(context.Background(), "/api/now/table/incident", url.Values{"sysparm_limit": {"1"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "api-discovery-test", got.Get("User-Agent"))

	req := &http.Request{Header: got}
	user, pass, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "admin", user)
	assert.Equal(t, "secret", pass)
}

func TestRequest_AuthPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		opts     func(*Options)
		expected string
	}{
		{
			name: "basic wins over token",
			opts: func(o *Options) {
				o.Username, o.Password, o.OAuthToken = "u", "p", "tok"
			},
			expected: "Basic dTpw",
		},
		{
			name: "token when no basic",
			opts: func(o *Options) {
				o.OAuthToken = "tok"
			},
			expected: "Bearer tok",
		},
		{
			name: "token when basic incomplete",
			opts: func(o *Options) {
				o.Username, o.OAuthToken = "u", "tok"
			},
			expected: "Bearer tok",
		},
		{
			name:     "anonymous",
			opts:     nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var auth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				auth = r.Header.Get("Authorization")
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL, tt.opts)
			_, err := c.Get(context.Background(), "/", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, auth)
		})
	}
}

func TestRequest_RateSpacing(t *testing.T) {
	var mu sync.Mutex
	var arrivals []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		mu.Unlock()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(o *Options) { o.RateLimitPerSecond = 5 })

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background(), "/", nil)
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 380*time.Millisecond, "3 calls at 5 rps need two 200ms gaps")
	require.Len(t, arrivals, 3)
	for i := 1; i < len(arrivals); i++ {
		assert.GreaterOrEqual(t, arrivals[i].Sub(arrivals[i-1]), 180*time.Millisecond)
	}
}

func TestRequest_RetriesAreSpaced(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(o *Options) {
		o.RateLimitPerSecond = 10
		o.MaxAttempts = 3
	})

	start := time.Now()
	_, err := c.Get(context.Background(), "/", nil)
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)
}

func TestRequest_RetryCeiling(t *testing.T) {
	for _, status := range []int{408, 429, 500, 502, 503, 504} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(status)
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL, nil)
			_, err := c.Get(context.Background(), "/", nil)

			require.Error(t, err)
			assert.Equal(t, int32(5), atomic.LoadInt32(&calls), "never more than max attempts")

			var transportErr *TransportError
			require.True(t, errors.As(err, &transportErr), "last failure propagates: %v", err)
			assert.Equal(t, status, transportErr.StatusCode)
		})
	}
}

func TestRequest_RetryThenSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	resp, err := c.Get(context.Background(), "/", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	var body map[string]bool
	require.NoError(t, resp.JSON(&body))
	assert.True(t, body["ok"])
}

func TestRequest_NonRetryable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "401 auth",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				var e *AuthError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, 401, e.StatusCode)
			},
		},
		{
			name:   "403 auth",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				var e *AuthError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, 403, e.StatusCode)
			},
		},
		{
			name:   "404 not found",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				var e *NotFoundError
				assert.True(t, errors.As(err, &e))
			},
		},
		{
			name:   "400 validation",
			status: http.StatusBadRequest,
			check: func(t *testing.T, err error) {
				var e *ValidationError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, 400, e.StatusCode)
				assert.Contains(t, e.Error(), "bad query")
			},
		},
		{
			name:   "501 transport without retry",
			status: http.StatusNotImplemented,
			check: func(t *testing.T, err error) {
				var e *TransportError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, 501, e.StatusCode)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("bad query"))
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL, nil)
			_, err := c.Get(context.Background(), "/", nil)

			require.Error(t, err)
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
			tt.check(t, err)
		})
	}
}

func TestRequest_NonRetryableOnLastAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(o *Options) { o.MaxAttempts = 1 })
	_, err := c.Get(context.Background(), "/", nil)

	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, notFound, err, "no retry wrapper leaks out")
}

func TestRequest_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := newTestClient(t, addr, func(o *Options) { o.MaxAttempts = 2 })
	_, err := c.Get(context.Background(), "/", nil)

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, 0, transportErr.StatusCode)
	assert.Contains(t, transportErr.Error(), "transport error")
}

func TestRequest_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, "/", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolve(t *testing.T) {
	c := newTestClient(t, "https://dev.example.com/", nil)

	assert.Equal(t, "https://dev.example.com/api/now/table/x", c.resolve("/api/now/table/x", nil))
	assert.Equal(t, "https://dev.example.com/sn_rpexplorer.do", c.resolve("sn_rpexplorer.do", nil))
	assert.Equal(t, "https://dev.example.com/a?sysparm_limit=1", c.resolve("/a", url.Values{"sysparm_limit": {"1"}}))
	assert.Equal(t, "https://dev.example.com/a?x=1&y=2", c.resolve("/a?x=1", url.Values{"y": {"2"}}))
	assert.Equal(t, "https://other.example.com/p", c.resolve("https://other.example.com/p", nil))
}

func TestResponse_IsHTML(t *testing.T) {
	html := &Response{Header: http.Header{"Content-Type": {"text/html; charset=UTF-8"}}}
	js := &Response{Header: http.Header{"Content-Type": {"application/json"}}}

	assert.True(t, html.IsHTML())
	assert.False(t, js.IsHTML())
}

func TestResponse_JSONError(t *testing.T) {
	r := &Response{Body: []byte("<html>")}
	var v map[string]interface{}
	err := r.JSON(&v)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}
