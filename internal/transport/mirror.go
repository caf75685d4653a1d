package transport

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"
)

// Resolve picks the base URL for a run: the primary first, then each mirror
// in order, the first one that answers winning. Reachability means any HTTP
// response at all; an error page still proves the host is up. Probes go
// through opts.Proxy when one is configured, the same route the run will use.
func Resolve(ctx context.Context, primary string, mirrors []string, opts Options) (string, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	if opts.Proxy != "" {
		proxyU, err := url.Parse(opts.Proxy)
		if err != nil {
			return "", &Error{Op: "resolve", Err: err}
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyU)}
	}

	candidates := append([]string{primary}, mirrors...)
	var lastErr error
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", &Error{Op: "resolve", Retryable: true, Err: err}
		}
		if reachable(ctx, client, candidate, opts.UserAgent) {
			return candidate, nil
		}
		lastErr = errors.New("unreachable: " + candidate)
	}
	if lastErr == nil {
		lastErr = errors.New("no base URL configured")
	}
	return "", &Error{Op: "resolve", Retryable: true, Err: lastErr}
}

func reachable(ctx context.Context, client *http.Client, base, userAgent string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, base+"/", nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		// Some sites reject HEAD; fall back to GET before giving up.
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, base+"/", nil)
		if err != nil {
			return false
		}
		req.Header.Set("User-Agent", userAgent)
		resp, err = client.Do(req)
		if err != nil {
			return false
		}
	}
	resp.Body.Close()
	return true
}
