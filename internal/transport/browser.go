package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// Browser drives a headless browser page to the same URLs as Direct, so
// JavaScript-gated redirects and cookie-setting scripts execute. Form
// submissions run as fetch() calls inside the page's own script context,
// which attaches cookies exactly as a real browser would.
type Browser struct {
	base    string
	baseU   *url.URL
	timeout time.Duration

	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
	tab         context.Context

	navigated bool
}

func newBrowser(opts Options) (*Browser, error) {
	baseU, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}

	timeout := opts.BrowserTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.Proxy != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.Proxy))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tab, tabCancel := chromedp.NewContext(allocCtx)

	return &Browser{
		base:        strings.TrimRight(opts.BaseURL, "/"),
		baseU:       baseU,
		timeout:     timeout,
		allocCancel: allocCancel,
		tabCancel:   tabCancel,
		tab:         tab,
	}, nil
}

// Get navigates the page to path and returns the rendered document
func (b *Browser) Get(ctx context.Context, path string) (*Response, error) {
	op := "get " + path

	runCtx, cancel := b.runContext(ctx)
	defer cancel()

	var html string
	resp, err := chromedp.RunResponse(runCtx,
		chromedp.Navigate(joinURL(b.base, path)),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, b.classify(op, err)
	}
	b.navigated = true

	status := http.StatusOK
	if resp != nil {
		status = int(resp.Status)
	}
	if status >= 500 {
		return nil, &Error{Op: op, Status: status, Retryable: true}
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, &Error{Op: op, Status: status}
	}
	return &Response{StatusCode: status, Body: html, Header: http.Header{}}, nil
}

// PostForm submits the form from inside the page's script context
func (b *Browser) PostForm(ctx context.Context, path string, form url.Values) (*Response, error) {
	op := "post " + path

	runCtx, cancel := b.runContext(ctx)
	defer cancel()

	// fetch() needs a same-origin document to run from.
	if !b.navigated {
		if _, err := chromedp.RunResponse(runCtx, chromedp.Navigate(b.base+"/")); err != nil {
			return nil, b.classify(op, err)
		}
		b.navigated = true
	}

	script := fmt.Sprintf(`fetch(%q, {
		method: "POST",
		headers: {"Content-Type": "application/x-www-form-urlencoded"},
		body: %q,
		credentials: "include",
		redirect: "follow",
	}).then(r => r.text().then(t => ({status: r.status, body: t})))`,
		joinURL(b.base, path), form.Encode())

	var result struct {
		Status int    `json:"status"`
		Body   string `json:"body"`
	}
	err := chromedp.Run(runCtx,
		chromedp.Evaluate(script, &result, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		return nil, b.classify(op, err)
	}

	if result.Status >= 500 {
		return nil, &Error{Op: op, Status: result.Status, Retryable: true}
	}
	if result.Status == http.StatusUnauthorized || result.Status == http.StatusForbidden {
		return nil, &Error{Op: op, Status: result.Status}
	}
	return &Response{StatusCode: result.Status, Body: result.Body, Header: http.Header{}}, nil
}

// BaseURL returns the resolved base URL for this run
func (b *Browser) BaseURL() string { return b.base }

// Cookies exports the browser's cookies for the base URL
func (b *Browser) Cookies() []*http.Cookie {
	runCtx, cancel := b.runContext(context.Background())
	defer cancel()

	var out []*http.Cookie
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := network.GetCookies().WithURLs([]string{b.base}).Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
		}
		return nil
	}))
	if err != nil {
		return nil
	}
	return out
}

// SetCookies seeds the browser's cookie store for the site's domain
func (b *Browser) SetCookies(cookies []*http.Cookie) {
	runCtx, cancel := b.runContext(context.Background())
	defer cancel()

	_ = chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			err := network.SetCookie(c.Name, c.Value).
				WithDomain(b.baseU.Hostname()).
				WithPath("/").
				Do(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	}))
}

// Close shuts the tab and the browser process down
func (b *Browser) Close() error {
	b.tabCancel()
	b.allocCancel()
	return nil
}

func (b *Browser) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel1 := context.WithTimeout(b.tab, b.timeout)
	stop := context.AfterFunc(ctx, cancel1)
	return merged, func() {
		stop()
		cancel1()
	}
}

// classify wraps chromedp failures. Navigation errors and deadline
// exceedances are network-level faults here, so they count as retryable.
func (b *Browser) classify(op string, err error) error {
	return &Error{Op: op, Retryable: true, Err: err}
}
