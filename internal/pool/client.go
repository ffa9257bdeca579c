// Package pool fetches worker statistics from CKPool and the current network
// difficulty. Fetch failures are logged and reported as "not available"; no
// error crosses this package boundary.
package pool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/toyoshi/solo-block-report-bot/internal/domain"
)

const (
	DefaultBaseURL       = "https://solo.ckpool.org"
	DefaultDifficultyURL = "https://blockchain.info/q/getdifficulty"

	maxStatsBody      = 1 << 20
	maxDifficultyBody = 1 << 10
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL           string
	DifficultyURL     string
	StatsTimeout      time.Duration // default 20s
	DifficultyTimeout time.Duration // default 10s
	RequestsPerSecond float64       // pool requests only; 0 disables limiting
	HTTPClient        *http.Client
}

// Client is the External Data Gateway. The limiter paces pool requests only;
// the difficulty feed is a different host and is never queued behind them.
type Client struct {
	http              *http.Client
	baseURL           string
	difficultyURL     string
	statsTimeout      time.Duration
	difficultyTimeout time.Duration
	limiter           *rate.Limiter
	log               *zap.Logger
}

// New creates a gateway client.
func New(opts Options, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		http:              opts.HTTPClient,
		baseURL:           strings.TrimRight(opts.BaseURL, "/"),
		difficultyURL:     opts.DifficultyURL,
		statsTimeout:      opts.StatsTimeout,
		difficultyTimeout: opts.DifficultyTimeout,
		log:               log,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.difficultyURL == "" {
		c.difficultyURL = DefaultDifficultyURL
	}
	if c.statsTimeout <= 0 {
		c.statsTimeout = 20 * time.Second
	}
	if c.difficultyTimeout <= 0 {
		c.difficultyTimeout = 10 * time.Second
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c
}

// WorkerURL returns the pool page for an address.
func (c *Client) WorkerURL(address string) string {
	return c.baseURL + "/users/" + url.PathEscape(address)
}

// wireStats is the CKPool /users/{address} payload.
type wireStats struct {
	Hashrate1m  number `json:"hashrate1m"`
	Hashrate5m  number `json:"hashrate5m"`
	Hashrate1hr number `json:"hashrate1hr"`
	Hashrate1d  number `json:"hashrate1d"`
	Hashrate7d  number `json:"hashrate7d"`
	Shares      number `json:"shares"`
	BestShare   number `json:"bestshare"`
	BestEver    number `json:"bestever"`
	LastShare   number `json:"lastshare"`
	Authorised  number `json:"authorised"`
}

func (w wireStats) snapshot() domain.Snapshot {
	return domain.Snapshot{
		Hashrate1m:  float64(w.Hashrate1m),
		Hashrate5m:  float64(w.Hashrate5m),
		Hashrate1hr: float64(w.Hashrate1hr),
		Hashrate1d:  float64(w.Hashrate1d),
		Hashrate7d:  float64(w.Hashrate7d),
		Shares:      int64(w.Shares),
		BestShare:   float64(w.BestShare),
		BestEver:    float64(w.BestEver),
		LastShare:   unixTime(w.LastShare),
		Authorised:  unixTime(w.Authorised),
	}
}

func unixTime(n number) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(n), 0).UTC()
}

// FetchWorkerStats returns the pool snapshot for address, or ok=false when
// the pool could not be read.
func (c *Client) FetchWorkerStats(ctx context.Context, address string) (domain.Snapshot, bool) {
	s, err := c.fetchWorkerStats(ctx, address)
	if err != nil {
		c.log.Warn("fetch worker stats failed",
			zap.String("address", address),
			zap.String("endpoint", c.WorkerURL(address)),
			zap.Error(err),
		)
		return domain.Snapshot{}, false
	}
	return s, true
}

// FetchNetworkDifficulty returns the current difficulty, or ok=false when the
// feed could not be read.
func (c *Client) FetchNetworkDifficulty(ctx context.Context) (float64, bool) {
	d, err := c.fetchNetworkDifficulty(ctx)
	if err != nil {
		c.log.Warn("fetch network difficulty failed",
			zap.String("endpoint", c.difficultyURL),
			zap.Error(err),
		)
		return 0, false
	}
	return d, true
}

func (c *Client) fetchWorkerStats(ctx context.Context, address string) (domain.Snapshot, error) {
	// queueing on the limiter does not count against the request timeout
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.Snapshot{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, c.statsTimeout)
	defer cancel()

	body, err := c.get(ctx, c.WorkerURL(address), "application/json", maxStatsBody)
	if err != nil {
		return domain.Snapshot{}, err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return domain.Snapshot{}, fmt.Errorf("unexpected payload: %s", truncate(body, 120))
	}

	var w wireStats
	if err := sonic.Unmarshal(body, &w); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode stats: %w", err)
	}
	return w.snapshot(), nil
}

func (c *Client) fetchNetworkDifficulty(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.difficultyTimeout)
	defer cancel()

	body, err := c.get(ctx, c.difficultyURL, "text/plain", maxDifficultyBody)
	if err != nil {
		return 0, err
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(body)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse difficulty: %w", err)
	}
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, fmt.Errorf("difficulty out of range: %v", d)
	}
	return d, nil
}

// get performs a GET and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, u, accept string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("timeout: %w", err)
		}
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("http status %s: %s", resp.Status, truncate(body, 120))
	}
	return body, nil
}

func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
