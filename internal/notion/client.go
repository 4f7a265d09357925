// Package notion is a small client for the parts of the Notion REST API the
// digest needs: listing users, reading pages and querying databases.
//
// Page and query results are returned as decoded JSON (any) and navigated
// with the record package.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	logx "digestbot/pkg/logx"
)

const (
	DefaultBaseURL    = "https://api.notion.com"
	DefaultVersion    = "2022-06-28"
	DefaultRatePerSec = 3
	DefaultTimeout    = 30 * time.Second

	maxResponseBytes = 8 << 20
)

type Config struct {
	Token      string
	BaseURL    string
	Version    string
	RatePerSec int
	Timeout    time.Duration
}

type Client struct {
	baseURL string
	version string
	hasTok  bool
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	ver := strings.TrimSpace(cfg.Version)
	if ver == "" {
		ver = DefaultVersion
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = DefaultRatePerSec
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tok := strings.TrimSpace(cfg.Token)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok, TokenType: "Bearer"})

	return &Client{
		baseURL: base,
		version: ver,
		hasTok:  tok != "",
		http: &http.Client{
			Timeout:   timeout,
			Transport: &oauth2.Transport{Source: ts, Base: http.DefaultTransport},
		},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}
}

// Person is a workspace member returned by ListUsers.
type Person struct {
	ID    string
	Name  string
	Email string
}

// ListUsers returns person users (bots excluded). If include is empty or
// contains "all" every person is returned, otherwise only those whose name
// is listed.
func (c *Client) ListUsers(ctx context.Context, include ...string) ([]Person, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/users", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Results []struct {
			Object string `json:"object"`
			ID     string `json:"id"`
			Type   string `json:"type"`
			Name   string `json:"name"`
			Person struct {
				Email string `json:"email"`
			} `json:"person"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("notion: decode users: %w", err)
	}

	all := len(include) == 0
	names := make(map[string]bool, len(include))
	for _, n := range include {
		if n == "all" {
			all = true
		}
		names[n] = true
	}

	out := make([]Person, 0, len(resp.Results))
	for _, u := range resp.Results {
		if u.Object != "user" || u.Type != "person" {
			continue
		}
		if !all && !names[u.Name] {
			continue
		}
		out = append(out, Person{ID: u.ID, Name: u.Name, Email: u.Person.Email})
	}
	return out, nil
}

// GetPage fetches a single page by id.
func (c *Client) GetPage(ctx context.Context, id string) (any, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/pages/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var page any
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("notion: decode page %s: %w", id, err)
	}
	return page, nil
}

// QueryDatabase runs q against a database and returns the first page of
// results. Pagination cursors are ignored.
func (c *Client) QueryDatabase(ctx context.Context, dbID string, q Query) ([]any, error) {
	body, err := c.do(ctx, http.MethodPost, "/v1/databases/"+url.PathEscape(dbID)+"/query", q)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Results []any `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("notion: decode query %s: %w", dbID, err)
	}
	return resp.Results, nil
}

// do sends one request and returns the body of a 2xx response.
// Other statuses return *APIError.
func (c *Client) do(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	if !c.hasTok {
		return nil, ErrNoToken
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var rd io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("notion: encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("notion: build request: %w", err)
	}
	req.Header.Set("Notion-Version", c.version)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("notion: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("notion: read %s %s: %w", method, path, err)
	}
	c.log.Debug("request done",
		logx.String("method", method),
		logx.String("path", path),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	apiErr := &APIError{}
	if jerr := json.Unmarshal(body, apiErr); jerr != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	apiErr.Status = resp.StatusCode
	return nil, apiErr
}
