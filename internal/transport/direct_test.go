package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func newTestDirect(t *testing.T, base string, retries int) *Direct {
	t.Helper()
	d, err := newDirect(Options{
		BaseURL:   base,
		UserAgent: "test-agent",
		Timeout:   2 * time.Second,
		Retries:   retries,
	})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestDirectGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	d := newTestDirect(t, srv.URL, 0)
	resp, err := d.Get(context.Background(), "/index.php")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 || resp.Body != "hello" {
		t.Errorf("got %d %q", resp.StatusCode, resp.Body)
	}
}

func TestDirectRetriesTransient5xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d := newTestDirect(t, srv.URL, 3)
	resp, err := d.Get(context.Background(), "/")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Body != "ok" {
		t.Errorf("body = %q", resp.Body)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestDirectFailsFastOnAuthError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	d := newTestDirect(t, srv.URL, 3)
	_, err := d.Get(context.Background(), "/")
	if err == nil {
		t.Fatal("expected error")
	}
	if Retryable(err) {
		t.Error("403 classified retryable, want terminal")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", got)
	}
}

func TestDirectDoesNotRetryPost(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := newTestDirect(t, srv.URL, 3)
	_, err := d.PostForm(context.Background(), "/submit", url.Values{"a": {"1"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !Retryable(err) {
		t.Error("5xx should be classified retryable")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1 (POST never retried)", got)
	}
}

func TestDirectCarriesCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/set":
			http.SetCookie(w, &http.Cookie{Name: "auth", Value: "tok", Path: "/"})
		case "/need":
			c, err := r.Cookie("auth")
			if err != nil || c.Value != "tok" {
				w.WriteHeader(http.StatusTeapot)
				return
			}
			w.Write([]byte("authed"))
		}
	}))
	defer srv.Close()

	d := newTestDirect(t, srv.URL, 0)
	if _, err := d.Get(context.Background(), "/set"); err != nil {
		t.Fatal(err)
	}
	resp, err := d.Get(context.Background(), "/need")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Body != "authed" {
		t.Errorf("body = %q, cookie not carried", resp.Body)
	}

	found := false
	for _, c := range d.Cookies() {
		if c.Name == "auth" && c.Value == "tok" {
			found = true
		}
	}
	if !found {
		t.Error("Cookies() does not include auth cookie")
	}
}

func TestDirectSetCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("uid"); err == nil && c.Value == "42" {
			w.Write([]byte("yes"))
			return
		}
		w.Write([]byte("no"))
	}))
	defer srv.Close()

	d := newTestDirect(t, srv.URL, 0)
	d.SetCookies([]*http.Cookie{{Name: "uid", Value: "42"}})
	resp, err := d.Get(context.Background(), "/")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Body != "yes" {
		t.Error("seeded cookie was not sent")
	}
}

func TestDirectRoutesThroughProxy(t *testing.T) {
	// The proxy server sees requests with an absolute URI; the origin host
	// does not exist, so a response proves the proxy carried the request.
	var proxied atomic.Int32
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Host != "origin.invalid" {
			t.Errorf("proxied host = %q, want origin.invalid", r.URL.Host)
		}
		proxied.Add(1)
		w.Write([]byte("via proxy"))
	}))
	defer proxy.Close()

	d, err := newDirect(Options{
		BaseURL:   "http://origin.invalid",
		UserAgent: "test-agent",
		Timeout:   2 * time.Second,
		Proxy:     proxy.URL,
	})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := d.Get(context.Background(), "/")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Body != "via proxy" {
		t.Errorf("body = %q", resp.Body)
	}
	if proxied.Load() != 1 {
		t.Errorf("proxy saw %d requests, want 1", proxied.Load())
	}
}

func TestDirectConnectionRefusedIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close() // now refused

	d := newTestDirect(t, base, 0)
	_, err := d.Get(context.Background(), "/")
	if err == nil {
		t.Fatal("expected error")
	}
	if !Retryable(err) {
		t.Error("connection refused should be retryable")
	}
}

func TestJoinURL(t *testing.T) {
	cases := []struct{ base, path, want string }{
		{"https://x.test", "/a", "https://x.test/a"},
		{"https://x.test/", "a", "https://x.test/a"},
		{"https://x.test", "https://y.test/b", "https://y.test/b"},
	}
	for _, c := range cases {
		if got := joinURL(c.base, c.path); got != c.want {
			t.Errorf("joinURL(%q, %q) = %q, want %q", c.base, c.path, got, c.want)
		}
	}
}
