// Package news fetches the current top headline from a NewsAPI-style
// endpoint.
package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"signboard/pkg/logx"
)

const (
	defaultBaseURL = "https://newsapi.org/v2"
	defaultCountry = "us"
	defaultTimeout = 10 * time.Second
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("news disabled: no api key")

// ErrNoHeadline means the provider answered but had nothing usable.
// Callers skip the dispatch entirely; there is no fallback headline.
var ErrNoHeadline = errors.New("no headline available")

type Config struct {
	BaseURL string
	APIKey  string
	Country string
	Timeout time.Duration
}

type Client struct {
	baseURL string
	apiKey  string
	country string
	httpc   *http.Client
	log     logx.Logger
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	country := strings.TrimSpace(cfg.Country)
	if country == "" {
		country = defaultCountry
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: base,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		country: country,
		httpc:   &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (c *Client) Enabled() bool { return c != nil && c.apiKey != "" }

type headlinesResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Articles []struct {
		Title string `json:"title"`
	} `json:"articles"`
}

// TopHeadline returns the first non-empty headline title, or
// ErrNoHeadline when the provider has none.
func (c *Client) TopHeadline(ctx context.Context) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	q := url.Values{}
	q.Set("country", c.country)
	q.Set("apiKey", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/top-headlines?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	rb, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var hr headlinesResponse
	if err := json.Unmarshal(rb, &hr); err != nil {
		return "", fmt.Errorf("bad headlines response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if hr.Message != "" {
			return "", fmt.Errorf("headlines failed: %s: %s", resp.Status, hr.Message)
		}
		return "", fmt.Errorf("headlines failed: %s", resp.Status)
	}
	if hr.Status != "" && hr.Status != "ok" {
		return "", fmt.Errorf("headlines failed: status %q: %s", hr.Status, hr.Message)
	}

	for _, a := range hr.Articles {
		title := strings.TrimSpace(a.Title)
		if title != "" {
			return title, nil
		}
	}
	return "", ErrNoHeadline
}
