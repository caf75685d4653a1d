package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth header = %q", got)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req["model"] != "test-model" {
			t.Errorf("model = %v", req["model"])
		}
		msgs := req["messages"].([]any)
		user := msgs[1].(map[string]any)["content"].(string)
		if !strings.Contains(user, "thread about cats") {
			t.Errorf("context text missing from prompt: %q", user)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"  好帖，支持一下！  "}}]}`))
	}))
	defer srv.Close()

	g := New(Options{APIKey: "sk-test", BaseURL: srv.URL, Model: "test-model"})
	text, err := g.Generate(context.Background(), "thread about cats")
	if err != nil {
		t.Fatal(err)
	}
	if text != "好帖，支持一下！" {
		t.Errorf("text = %q", text)
	}
}

func TestGenerateBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	g := New(Options{BaseURL: srv.URL, Model: "m"})
	if _, err := g.Generate(context.Background(), "ctx"); err == nil {
		t.Fatal("expected error on 401")
	}
}

func TestGenerateEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	g := New(Options{BaseURL: srv.URL, Model: "m"})
	if _, err := g.Generate(context.Background(), "ctx"); err == nil {
		t.Fatal("expected error on empty choices")
	}
}

func TestGenerateDoesNotRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := New(Options{BaseURL: srv.URL, Model: "m"})
	if _, err := g.Generate(context.Background(), "ctx"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no silent retry)", calls)
	}
}
