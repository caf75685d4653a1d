package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// Direct issues plain HTTP requests with a browser-like header set and a
// cookie jar carried across calls.
type Direct struct {
	base    string
	baseU   *url.URL
	ua      string
	retries int
	jar     *cookiejar.Jar
	http    *http.Client
}

func newDirect(opts Options) (*Direct, error) {
	baseU, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	client := &http.Client{Jar: jar, Timeout: timeout}
	if opts.Proxy != "" {
		proxyU, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, &Error{Op: "open", Err: err}
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyU)}
	}

	return &Direct{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		baseU:   baseU,
		ua:      opts.UserAgent,
		retries: opts.Retries,
		jar:     jar,
		http:    client,
	}, nil
}

// Get fetches a page. Transient network failures and 5xx responses are
// retried with bounded exponential backoff; 4xx responses fail fast.
func (d *Direct) Get(ctx context.Context, path string) (*Response, error) {
	return d.do(ctx, http.MethodGet, path, nil)
}

// PostForm submits a form. POSTs are not idempotent and are never retried.
func (d *Direct) PostForm(ctx context.Context, path string, form url.Values) (*Response, error) {
	return d.do(ctx, http.MethodPost, path, form)
}

func (d *Direct) do(ctx context.Context, method, path string, form url.Values) (*Response, error) {
	op := strings.ToLower(method) + " " + path

	attempts := 1
	if method == http.MethodGet || method == http.MethodHead {
		attempts += d.retries
	}

	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &Error{Op: op, Retryable: true, Err: ctx.Err()}
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		resp, err := d.once(ctx, method, path, form)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !Retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (d *Direct) once(ctx context.Context, method, path string, form url.Values) (*Response, error) {
	op := strings.ToLower(method) + " " + path

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, joinURL(d.base, path), body)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	req.Header.Set("User-Agent", d.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Referer", d.base+"/")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := d.http.Do(req)
	if err != nil {
		// Timeouts, DNS failures, refused connections: all retryable.
		return nil, &Error{Op: op, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: op, Retryable: true, Err: err}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &Error{Op: op, Status: resp.StatusCode, Retryable: true}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &Error{Op: op, Status: resp.StatusCode}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       string(data),
		Header:     resp.Header,
	}, nil
}

// BaseURL returns the resolved base URL for this run
func (d *Direct) BaseURL() string { return d.base }

// Cookies exports the jar's cookies for the base URL
func (d *Direct) Cookies() []*http.Cookie {
	return d.jar.Cookies(d.baseU)
}

// SetCookies seeds the jar for the base URL
func (d *Direct) SetCookies(cookies []*http.Cookie) {
	d.jar.SetCookies(d.baseU, cookies)
}

// Close releases idle connections
func (d *Direct) Close() error {
	d.http.CloseIdleConnections()
	return nil
}
