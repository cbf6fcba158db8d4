package news

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"signboard/pkg/logx"
)

func TestTopHeadline(t *testing.T) {
	t.Parallel()
	var gotCountry, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCountry = r.URL.Query().Get("country")
		gotKey = r.URL.Query().Get("apiKey")
		_, _ = w.Write([]byte(`{"status":"ok","articles":[{"title":""},{"title":"Markets rally on rate cut"},{"title":"Second story"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "n-key", Country: "us"}, logx.Nop())
	got, err := c.TopHeadline(context.Background())
	if err != nil {
		t.Fatalf("TopHeadline: %v", err)
	}
	// First non-empty title wins.
	if got != "Markets rally on rate cut" {
		t.Fatalf("unexpected headline: %q", got)
	}
	if gotCountry != "us" || gotKey != "n-key" {
		t.Fatalf("unexpected query: country=%q apiKey=%q", gotCountry, gotKey)
	}
}

func TestTopHeadlineNoArticles(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{name: "empty list", body: `{"status":"ok","articles":[]}`},
		{name: "blank titles", body: `{"status":"ok","articles":[{"title":"  "},{"title":""}]}`},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, logx.Nop())
			if _, err := c.TopHeadline(context.Background()); !errors.Is(err, ErrNoHeadline) {
				t.Fatalf("expected ErrNoHeadline, got %v", err)
			}
		})
	}
}

func TestTopHeadlineProviderError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":"error","message":"bad key"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, logx.Nop())
	_, err := c.TopHeadline(context.Background())
	if err == nil || errors.Is(err, ErrNoHeadline) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestTopHeadlineDisabled(t *testing.T) {
	t.Parallel()
	c := NewClient(Config{}, logx.Nop())
	if _, err := c.TopHeadline(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}
