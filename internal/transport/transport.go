// Package transport wraps a single account's network identity: cookies,
// headers, retry policy, and the choice between direct HTTP requests and a
// headless browser page. Responses are surfaced uninterpreted; the site
// client decides what they mean.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Response is the raw result of one request
type Response struct {
	StatusCode int
	Body       string
	Header     http.Header
}

// Client is the per-account transport handle. One client serves exactly one
// run of one account; operations on it must not be issued concurrently.
type Client interface {
	Get(ctx context.Context, path string) (*Response, error)
	PostForm(ctx context.Context, path string, form url.Values) (*Response, error)
	BaseURL() string
	Cookies() []*http.Cookie
	SetCookies(cookies []*http.Cookie)
	Close() error
}

// Error is a transport-level failure. Retryable errors (timeouts, 5xx) were
// already retried with backoff before being surfaced; terminal errors (4xx,
// malformed responses) were not.
type Error struct {
	Op        string
	Status    int
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport: %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether err is a transport error that may succeed on a
// later run
func Retryable(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}

// Options configures a transport client
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Retries   int
	Proxy     string // forward proxy URL, empty for a direct connection

	// Browser mode
	Browser        bool
	Headless       bool
	BrowserTimeout time.Duration
	ExecPath       string
}

// Open creates the transport selected by opts. The strategy is fixed for
// the lifetime of the returned client.
func Open(opts Options) (Client, error) {
	if opts.BaseURL == "" {
		return nil, &Error{Op: "open", Err: errors.New("no base URL")}
	}
	if opts.Browser {
		return newBrowser(opts)
	}
	return newDirect(opts)
}

func joinURL(base, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(base, "/") + path
}
