package genai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"signboard/pkg/logx"
)

func TestCompleteDisabledWithoutKey(t *testing.T) {
	t.Parallel()
	c := NewClient(Config{}, logx.Nop())
	if c.Enabled() {
		t.Fatal("client must be disabled without an API key")
	}
	if _, err := c.Complete(context.Background(), "hi", 50); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()
	var gotAuth, gotPath string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "  Happy Birthday Alice! 🎉  "}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k-test", Model: "test-model"}, logx.Nop())
	got, err := c.Complete(context.Background(), "Generate a greeting", 50)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Happy Birthday Alice! 🎉" {
		t.Fatalf("unexpected text: %q", got)
	}
	if gotAuth != "Bearer k-test" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if gotPath != "/chat/completions" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if gotReq.Model != "test-model" || gotReq.MaxTokens != 50 {
		t.Fatalf("unexpected request: %+v", gotReq)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Fatalf("unexpected messages: %+v", gotReq.Messages)
	}
}

func TestCompleteErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "provider error", status: http.StatusTooManyRequests, body: `{"error":{"message":"rate limited"}}`},
		{name: "server error", status: http.StatusInternalServerError, body: `{}`},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`},
		{name: "empty text", status: http.StatusOK, body: `{"choices":[{"message":{"role":"assistant","content":"   "}}]}`},
		{name: "garbage", status: http.StatusOK, body: `not json`},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, logx.Nop())
			if _, err := c.Complete(context.Background(), "p", 10); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	c := NewClient(Config{APIKey: "k"}, logx.Nop())
	if c.baseURL != defaultBaseURL {
		t.Fatalf("unexpected base url: %q", c.baseURL)
	}
	if c.model != defaultModel {
		t.Fatalf("unexpected model: %q", c.model)
	}
}
