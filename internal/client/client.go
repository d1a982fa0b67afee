package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/muurk/smartrelay/internal/api"
)

const (
	// DefaultPort is the default API port of the daemon
	DefaultPort = 8080

	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 5 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for failed requests
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the default delay between retry attempts
	DefaultRetryDelay = 250 * time.Millisecond

	// DefaultMaxRetryDelay is the maximum delay for exponential backoff
	DefaultMaxRetryDelay = 5 * time.Second
)

// Client is an HTTP client for the daemon API.
type Client struct {
	// BaseURL is the base URL of the daemon (e.g., "http://192.168.4.16:8080")
	BaseURL string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// MaxRetries is the maximum number of retry attempts for failed requests
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts
	RetryDelay time.Duration

	// MaxRetryDelay is the maximum delay for exponential backoff
	MaxRetryDelay time.Duration

	// UseExponentialBackoff doubles the delay after every failed attempt
	UseExponentialBackoff bool

	// Dialer opens event streams
	Dialer *websocket.Dialer
}

// NewClient creates a client for the daemon at host:port.
func NewClient(host string, port int) *Client {
	return NewClientWithURL("http://" + net.JoinHostPort(host, strconv.Itoa(port)))
}

// NewClientWithURL creates a client with a full base URL.
func NewClientWithURL(baseURL string) *Client {
	return &Client{
		BaseURL:               strings.TrimRight(baseURL, "/"),
		HTTPClient:            &http.Client{Timeout: DefaultTimeout},
		MaxRetries:            DefaultMaxRetries,
		RetryDelay:            DefaultRetryDelay,
		MaxRetryDelay:         DefaultMaxRetryDelay,
		UseExponentialBackoff: true,
		Dialer:                &websocket.Dialer{HandshakeTimeout: DefaultTimeout},
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
	c.Dialer.HandshakeTimeout = timeout
}

// SetRetry configures retry behavior
func (c *Client) SetRetry(maxRetries int, retryDelay time.Duration) {
	c.MaxRetries = maxRetries
	c.RetryDelay = retryDelay
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.doWithRetry(ctx, http.MethodGet, api.PathHealth, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetState returns the state last reported by the device.
func (c *Client) GetState(ctx context.Context) (*api.StateResponse, error) {
	var resp api.StateResponse
	if err := c.doWithRetry(ctx, http.MethodGet, api.PathState, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetState requests power on or off. Setting a state is idempotent, so
// the request is retried.
func (c *Client) SetState(ctx context.Context, on bool) (*api.StateResponse, error) {
	var resp api.StateResponse
	body := api.SetStateRequest{On: &on}
	if err := c.doWithRetry(ctx, http.MethodPut, api.PathState, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Toggle inverts the power state. It is never retried.
func (c *Client) Toggle(ctx context.Context) (*api.StateResponse, error) {
	var resp api.StateResponse
	if err := c.do(ctx, http.MethodPost, api.PathToggle, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Watch streams events to fn until ctx is cancelled or the connection
// drops. The first event is the current state.
func (c *Client) Watch(ctx context.Context, fn func(api.Event)) error {
	wsURL, err := c.eventsURL()
	if err != nil {
		return newParseError("invalid base URL", err)
	}

	conn, resp, err := c.Dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return newHTTPError(resp.StatusCode, "event stream rejected")
		}
		return ClassifyNetworkError(err, c.host())
	}
	defer func() { _ = conn.Close() }()

	// Unblock ReadJSON on cancellation.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var ev api.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return nil
			}
			return ClassifyNetworkError(err, c.host())
		}
		fn(ev)
	}
}

func (c *Client) eventsURL() (string, error) {
	u, err := url.Parse(c.BaseURL + api.PathEvents)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

func (c *Client) host() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func (c *Client) doWithRetry(ctx context.Context, method, path string, body, out any) error {
	var lastErr error
	currentDelay := c.RetryDelay

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(currentDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			if c.UseExponentialBackoff {
				currentDelay *= 2
				if currentDelay > c.MaxRetryDelay {
					currentDelay = c.MaxRetryDelay
				}
			}
		}

		err := c.do(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) || ctx.Err() != nil {
			return err
		}
	}

	return lastErr
}

// do performs a single request.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return newParseError("failed to encode request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return &Error{Type: ErrTypeNetwork, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return ClassifyNetworkError(err, c.host())
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ClassifyNetworkError(err, c.host())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		msg := fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		e := newHTTPError(resp.StatusCode, msg)
		e.Host = c.host()
		return e
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return newParseError("failed to parse JSON response", err)
	}
	return nil
}
