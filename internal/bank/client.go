// Package bank is a small client for the GoCardless Bank Account Data API
// (balances, account details and transactions of one account).
package bank

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"chispitas/internal/ratelimit"
	"chispitas/pkg/logx"
)

const (
	maxBody        = 4 << 20
	defaultTimeout = 30 * time.Second
	dateLayout     = "2006-01-02"
)

type Config struct {
	BaseURL    string
	AccountID  string
	Token      string
	Timeout    time.Duration
	RatePerSec int
}

// Client calls the account endpoints. Every failure is either a
// *RateLimitedError or an *ExternalError.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, hc *http.Client, log logx.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 2
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:     cfg,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log.With(logx.String("comp", "bank")),
	}
}

func (c *Client) Balances(ctx context.Context) ([]Balance, error) {
	var out struct {
		Balances []Balance `json:"balances"`
	}
	if err := c.get(ctx, "balances/", nil, &out); err != nil {
		return nil, err
	}
	return out.Balances, nil
}

func (c *Client) Details(ctx context.Context) (Account, error) {
	var out struct {
		Account Account `json:"account"`
	}
	if err := c.get(ctx, "details/", nil, &out); err != nil {
		return Account{}, err
	}
	return out.Account, nil
}

// Transactions lists movements booked between from and to, both inclusive
// calendar dates. A zero bound is left to the API default.
func (c *Client) Transactions(ctx context.Context, from, to time.Time) (Transactions, error) {
	q := url.Values{}
	if !from.IsZero() {
		q.Set("date_from", from.Format(dateLayout))
	}
	if !to.IsZero() {
		q.Set("date_to", to.Format(dateLayout))
	}
	var out struct {
		Transactions Transactions `json:"transactions"`
	}
	if err := c.get(ctx, "transactions/", q, &out); err != nil {
		return Transactions{}, err
	}
	return out.Transactions, nil
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &ExternalError{Message: err.Error(), Err: err}
	}

	u := fmt.Sprintf("%s/accounts/%s/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.AccountID), endpoint)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &ExternalError{Message: err.Error(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("bank request failed", logx.String("endpoint", endpoint), logx.Err(err))
		return &ExternalError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return &ExternalError{Status: resp.StatusCode, Message: err.Error(), Err: err}
	}
	c.log.Debug("bank request",
		logx.String("endpoint", endpoint),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)

	return decode(ratelimit.Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, dst)
}

// decode classifies r and, on success, unmarshals the body into dst.
func decode(r ratelimit.Response, dst any) error {
	if wait, limited := ratelimit.Check(r); limited {
		return &RateLimitedError{Wait: wait}
	}
	if r.StatusCode < 200 || r.StatusCode > 299 {
		return &ExternalError{Status: r.StatusCode, Message: errorMessage(r.Body)}
	}
	if err := json.Unmarshal(r.Body, dst); err != nil {
		return &ExternalError{Status: r.StatusCode, Message: "invalid json: " + err.Error(), Err: err}
	}
	return nil
}

// errorMessage prefers the API's summary/detail fields over the raw body.
func errorMessage(body []byte) string {
	var e struct {
		Summary string `json:"summary"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(body, &e) == nil {
		switch {
		case e.Summary != "" && e.Detail != "":
			return e.Summary + ": " + e.Detail
		case e.Detail != "":
			return e.Detail
		case e.Summary != "":
			return e.Summary
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}
