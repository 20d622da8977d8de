// Package transport is the HTTP side of pulse: it opens the feed and
// generation streams and calls the REST collaborators.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/papercomputeco/pulse/pkg/generation"
	"github.com/papercomputeco/pulse/pkg/logger"
	"github.com/papercomputeco/pulse/pkg/utils"
)

const (
	// RequestIDHeader carries a fresh UUID on every request.
	RequestIDHeader = "X-Request-ID"

	// DefaultRESTTimeout bounds each REST collaborator call. Streams are
	// never given a timeout.
	DefaultRESTTimeout = 10 * time.Second

	maxErrorBody = 4 * 1024
)

// ErrNoBaseURL is returned by New without a server base URL.
var ErrNoBaseURL = errors.New("server base URL is required")

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Token   string

	FeedPath       string
	GenerationPath string
	SettingsPath   string
	StatusPath     string

	// RESTTimeout defaults to DefaultRESTTimeout.
	RESTTimeout time.Duration

	// HTTPClient defaults to a client without a timeout.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client talks to one pulse server.
type Client struct {
	base        *url.URL
	token       string
	paths       Config
	restTimeout time.Duration
	http        *http.Client
	breaker     *gobreaker.CircuitBreaker
	logger      *slog.Logger
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}

	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base URL scheme %q", base.Scheme)
	}

	c := &Client{
		base:        base,
		token:       cfg.Token,
		paths:       cfg,
		restTimeout: cfg.RESTTimeout,
		http:        cfg.HTTPClient,
		logger:      logger.OrNop(cfg.Logger),
	}
	if c.restTimeout <= 0 {
		c.restTimeout = DefaultRESTTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pulse-rest",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return c, nil
}

// BaseURL returns the normalised server URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Dial opens the live feed. It satisfies supervisor.Dialer.
func (c *Client) Dial(ctx context.Context) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.paths.FeedPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	return c.stream(req)
}

// Open posts a generation request and returns the streaming response body.
// It satisfies generation.Opener.
func (c *Client) Open(ctx context.Context, in generation.Request) (io.ReadCloser, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encoding generation request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.paths.GenerationPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	return c.stream(req)
}

func (c *Client) stream(req *http.Request) (io.ReadCloser, error) {
	c.logger.Debug("opening stream",
		"method", req.Method,
		"url", req.URL.String(),
		"request_id", req.Header.Get(RequestIDHeader),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", req.URL.Path, err)
	}

	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u := c.base.JoinPath(path)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set(RequestIDHeader, uuid.NewString())
	req.Header.Set("User-Agent", "pulse/"+utils.Version)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Code: resp.StatusCode,
		Body: strings.TrimSpace(string(body)),
	}
}
