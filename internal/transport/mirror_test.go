package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestResolvePrefersPrimary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	got, err := Resolve(context.Background(), srv.URL, []string{"http://127.0.0.1:1"}, Options{UserAgent: "ua", Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if got != srv.URL {
		t.Errorf("resolved %q, want primary %q", got, srv.URL)
	}
}

func TestResolveFallsBackToMirror(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer mirror.Close()

	got, err := Resolve(context.Background(), deadURL, []string{mirror.URL}, Options{UserAgent: "ua", Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if got != mirror.URL {
		t.Errorf("resolved %q, want mirror %q", got, mirror.URL)
	}
}

func TestResolveAllUnreachable(t *testing.T) {
	_, err := Resolve(context.Background(), "http://127.0.0.1:1", []string{"http://127.0.0.1:2"}, Options{UserAgent: "ua", Timeout: 500 * time.Millisecond})
	if err == nil {
		t.Fatal("expected error when nothing is reachable")
	}
	if !Retryable(err) {
		t.Error("unreachable site should be a retryable transport error")
	}
}

func TestResolveProbesThroughProxy(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Host != "primary.invalid" {
			t.Errorf("proxied host = %q, want primary.invalid", r.URL.Host)
		}
	}))
	defer proxy.Close()

	got, err := Resolve(context.Background(), "http://primary.invalid", nil,
		Options{UserAgent: "ua", Timeout: time.Second, Proxy: proxy.URL})
	if err != nil {
		t.Fatal(err)
	}
	if got != "http://primary.invalid" {
		t.Errorf("resolved %q", got)
	}
}

func TestResolveAcceptsErrorPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	got, err := Resolve(context.Background(), srv.URL, nil, Options{UserAgent: "ua", Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if got != srv.URL {
		t.Errorf("resolved %q, want %q", got, srv.URL)
	}
}
