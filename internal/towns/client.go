// Package towns is a thin client for the Towns Protocol HTTP API.
//
// The client does not retry; the scheduled job that calls it decides the
// cadence. An optional client-side rate limit keeps bursts (manual runs plus
// scheduled runs) polite toward the upstream.
package towns

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	logx "dchbot/pkg/logx"
)

const (
	DefaultBaseURL   = "https://api.towns.com"
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "dchbot/1.0"

	maxBodyBytes  = 8 << 20
	maxErrorBytes = 512
)

var ErrNotJSONObject = errors.New("response is not a JSON object")

// Record is one opaque JSON object returned by the API.
type Record map[string]any

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// RatePerSec limits outgoing requests. 0 disables the limit.
	RatePerSec float64
	Burst      int
}

type Client struct {
	base    string
	ua      string
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("towns: invalid base url %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}

	c := &Client{
		base: base,
		ua:   ua,
		http: &http.Client{Timeout: timeout},
		log:  log.With(logx.String("comp", "towns")),
	}
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	c.log.Info("towns client ready", logx.String("base_url", base), logx.Duration("timeout", timeout))
	return c, nil
}

// GetPrices fetches price records, optionally for a single town.
func (c *Client) GetPrices(ctx context.Context, townID string) ([]Record, error) {
	u := c.base + "/prices"
	if id := strings.TrimSpace(townID); id != "" {
		u += "?" + url.Values{"town_id": {id}}.Encode()
	}
	var out []Record
	if err := c.do(ctx, "get_prices", http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	c.log.Debug("prices fetched", logx.Int("records", len(out)), logx.String("town_id", townID))
	return out, nil
}

// GetTownData fetches the data of one town.
func (c *Client) GetTownData(ctx context.Context, townID string) (Record, error) {
	id := strings.TrimSpace(townID)
	if id == "" {
		return nil, &FetchError{Op: "get_town_data", Method: http.MethodGet, URL: c.base + "/towns/", Err: errors.New("town id required")}
	}
	var out Record
	if err := c.do(ctx, "get_town_data", http.MethodGet, c.base+"/towns/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, &FetchError{Op: "get_town_data", Method: http.MethodGet, URL: c.base + "/towns/" + id, Err: ErrNotJSONObject}
	}
	return out, nil
}

// PostData posts payload as JSON to endpoint (relative to the base URL) and
// returns the decoded response object. An empty response body yields an
// empty Record.
func (c *Client) PostData(ctx context.Context, endpoint string, payload any) (Record, error) {
	ep := strings.TrimLeft(strings.TrimSpace(endpoint), "/")
	u := c.base + "/" + ep
	if ep == "" {
		return nil, &FetchError{Op: "post_data", Method: http.MethodPost, URL: u, Err: errors.New("endpoint required")}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &FetchError{Op: "post_data", Method: http.MethodPost, URL: u, Err: fmt.Errorf("encode payload: %w", err)}
	}
	var out Record
	if err := c.do(ctx, "post_data", http.MethodPost, u, body, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = Record{}
	}
	return out, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
	c.log.Debug("towns client closed")
}

func (c *Client) do(ctx context.Context, op, method, u string, body []byte, out any) error {
	fail := func(status int, snippet string, err error) error {
		return &FetchError{Op: op, Method: method, URL: u, StatusCode: status, Body: snippet, Err: err}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fail(0, "", fmt.Errorf("rate limit: %w", err))
		}
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fail(0, "", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.ua)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fail(0, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fail(resp.StatusCode, "", fmt.Errorf("read body: %w", err))
	}
	c.log.Trace("towns request",
		logx.String("op", op),
		logx.String("method", method),
		logx.Int("status", resp.StatusCode),
		logx.Int("bytes", len(raw)),
		logx.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(resp.StatusCode, snippet(raw), fmt.Errorf("unexpected status %s", resp.Status))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fail(resp.StatusCode, "", fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBytes {
		cut := maxErrorBytes
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "…"
	}
	return s
}
