// Package source is the client for the ACS tracking API, the log source
// that reports clicks, conversions, and master data.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/jassnet/Fraudhunter/internal/metrics"
	"github.com/jassnet/Fraudhunter/internal/model"
)

const (
	// DefaultPageSize is the number of records requested per page.
	DefaultPageSize = 500
	// DefaultTimeout is the total request timeout.
	DefaultTimeout = 30 * time.Second
	// DefaultClickEndpoint is the click log search path.
	DefaultClickEndpoint = "track_log/search"
	// DefaultConversionEndpoint is the conversion log search path.
	DefaultConversionEndpoint = "action_log_raw/search"

	mediaEndpoint     = "media/search"
	promotionEndpoint = "promotion/search"
	userEndpoint      = "user/search"

	authHeader      = "X-Auth-Token"
	maxErrorBodyLen = 512
)

// Config configures a Client.
type Config struct {
	BaseURL            string
	AccessKey          string
	SecretKey          string
	ClickEndpoint      string
	ConversionEndpoint string
	Timeout            time.Duration
	// RateLimit caps requests per second. Zero disables limiting.
	RateLimit float64
	// Location is the timezone naive source timestamps are read in.
	Location *time.Location
}

// Page is one page of mapped events. Received counts the raw records the
// source returned, before unparseable ones were dropped, so callers can
// detect the last page.
type Page[T any] struct {
	Items    []T
	Received int
}

// Client fetches logs and masters from the ACS API.
type Client struct {
	baseURL            *url.URL
	token              string
	clickEndpoint      string
	conversionEndpoint string
	location           *time.Location

	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(recorder metrics.Recorder) Option {
	return func(c *Client) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("invalid log source base url %q", cfg.BaseURL)
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("log source access key and secret key are required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	c := &Client{
		baseURL:            base,
		token:              cfg.AccessKey + ":" + cfg.SecretKey,
		clickEndpoint:      strings.TrimLeft(orDefault(cfg.ClickEndpoint, DefaultClickEndpoint), "/"),
		conversionEndpoint: strings.TrimLeft(orDefault(cfg.ConversionEndpoint, DefaultConversionEndpoint), "/"),
		location:           loc,
		http:               NewHTTPClient(timeout),
		limiter:            rate.NewLimiter(rate.Inf, 1),
		logger:             logger.With("component", "source.acs"),
		metrics:            metrics.NewNoop(),
		now:                time.Now,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "acs-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewHTTPClient creates an HTTP client for log source requests.
// Redirects are not followed so the auth token never leaves the host.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   5,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// FetchClicks fetches one page of clicks registered on date.
func (c *Client) FetchClicks(ctx context.Context, date time.Time, page, limit int) (Page[model.ClickEvent], error) {
	return c.FetchClicksInRange(ctx, startOfDay(date, c.location), endOfDay(date, c.location), page, limit)
}

// FetchClicksInRange fetches one page of clicks for the dates covering
// [start, end] and keeps those whose click time falls inside the range.
func (c *Client) FetchClicksInRange(ctx context.Context, start, end time.Time, page, limit int) (Page[model.ClickEvent], error) {
	raws, recs, err := c.search(ctx, c.clickEndpoint, dateRangeParams(start.In(c.location), end.In(c.location), page, limit))
	if err != nil {
		return Page[model.ClickEvent]{}, err
	}

	out := Page[model.ClickEvent]{Items: make([]model.ClickEvent, 0, len(recs)), Received: len(recs)}
	for i, rec := range recs {
		ev, err := toClick(raws[i], rec, c.location)
		var cut []string
		if err == nil {
			cut, err = ValidateClick(&ev)
		}
		if err != nil {
			c.logger.Warn("dropping click record", "error", err, "index", i)
			c.metrics.IncSourceRecordDropped("click")
			continue
		}
		c.noteTruncated("click", ev.ID, cut)
		if ev.ClickTime.Before(start) || ev.ClickTime.After(end) {
			continue
		}
		out.Items = append(out.Items, ev)
	}
	return out, nil
}

// FetchConversions fetches one page of conversions registered on date.
func (c *Client) FetchConversions(ctx context.Context, date time.Time, page, limit int) (Page[model.ConversionEvent], error) {
	return c.FetchConversionsInRange(ctx, startOfDay(date, c.location), endOfDay(date, c.location), page, limit)
}

// FetchConversionsInRange fetches one page of conversions for the dates
// covering [start, end] and keeps those inside the range.
func (c *Client) FetchConversionsInRange(ctx context.Context, start, end time.Time, page, limit int) (Page[model.ConversionEvent], error) {
	raws, recs, err := c.search(ctx, c.conversionEndpoint, dateRangeParams(start.In(c.location), end.In(c.location), page, limit))
	if err != nil {
		return Page[model.ConversionEvent]{}, err
	}

	out := Page[model.ConversionEvent]{Items: make([]model.ConversionEvent, 0, len(recs)), Received: len(recs)}
	for i, rec := range recs {
		ev, err := toConversion(raws[i], rec, c.location)
		var cut []string
		if err == nil {
			cut, err = ValidateConversion(&ev)
		}
		if err != nil {
			c.logger.Warn("dropping conversion record", "error", err, "index", i)
			c.metrics.IncSourceRecordDropped("conversion")
			continue
		}
		c.noteTruncated("conversion", ev.ID, cut)
		if ev.ConversionTime.Before(start) || ev.ConversionTime.After(end) {
			continue
		}
		out.Items = append(out.Items, ev)
	}
	return out, nil
}

// FetchAllMedia pages through the media master.
func (c *Client) FetchAllMedia(ctx context.Context) ([]model.Media, error) {
	now := c.now()
	return fetchAll(ctx, c, mediaEndpoint, func(rec record) model.Media { return toMedia(rec, now) })
}

// FetchAllPromotions pages through the promotion master.
func (c *Client) FetchAllPromotions(ctx context.Context) ([]model.Promotion, error) {
	now := c.now()
	return fetchAll(ctx, c, promotionEndpoint, func(rec record) model.Promotion { return toPromotion(rec, now) })
}

// FetchAllAffiliates pages through the user (affiliate) master.
func (c *Client) FetchAllAffiliates(ctx context.Context) ([]model.Affiliate, error) {
	now := c.now()
	return fetchAll(ctx, c, userEndpoint, func(rec record) model.Affiliate { return toAffiliate(rec, now) })
}

func fetchAll[T any](ctx context.Context, c *Client, endpoint string, mapFn func(record) T) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(DefaultPageSize))
		params.Set("offset", strconv.Itoa((page-1)*DefaultPageSize))

		_, recs, err := c.search(ctx, endpoint, params)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			all = append(all, mapFn(rec))
		}
		if len(recs) < DefaultPageSize {
			return all, nil
		}
	}
}

// search performs one GET against endpoint and decodes the records array.
// It returns each record's raw bytes alongside the decoded map.
func (c *Client) search(ctx context.Context, endpoint string, params url.Values) ([][]byte, []record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	reqURL := c.baseURL.JoinPath(endpoint)
	reqURL.RawQuery = params.Encode()

	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.get(ctx, reqURL.String(), endpoint)
	})
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.metrics.ObserveSourceRequest(endpoint, "rejected", duration)
			return nil, nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		c.metrics.ObserveSourceRequest(endpoint, "error", duration)
		return nil, nil, err
	}
	c.metrics.ObserveSourceRequest(endpoint, "ok", duration)

	raws, recs, err := decodeRecords(body)
	if err != nil {
		c.logger.Error("log source response was not JSON", "endpoint", endpoint, "error", err)
		return nil, nil, err
	}

	c.logger.Debug("log source response",
		"endpoint", endpoint,
		"offset", params.Get("offset"),
		"records", len(recs),
		"duration_ms", duration.Milliseconds(),
	)
	return raws, recs, nil
}

func (c *Client) get(ctx context.Context, rawURL, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(authHeader, c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > maxErrorBodyLen {
			snippet = snippet[:maxErrorBodyLen]
		}
		c.logger.Error("log source returned error status",
			"endpoint", endpoint,
			"status_code", resp.StatusCode,
			"body", snippet,
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Endpoint: endpoint, Body: snippet}
	}
	return body, nil
}

func decodeRecords(body []byte) ([][]byte, []record, error) {
	var envelope struct {
		Records []json.RawMessage `json:"records"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	raws := make([][]byte, len(envelope.Records))
	recs := make([]record, len(envelope.Records))
	for i, raw := range envelope.Records {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var rec record
		if err := dec.Decode(&rec); err != nil {
			return nil, nil, fmt.Errorf("%w: record %d: %w", ErrDecode, i, err)
		}
		raws[i] = []byte(raw)
		recs[i] = rec
	}
	return raws, recs, nil
}

func dateRangeParams(start, end time.Time, page, limit int) url.Values {
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa((page-1)*limit))
	params.Set("regist_unix", "between_date")
	params.Set("regist_unix_A_Y", strconv.Itoa(start.Year()))
	params.Set("regist_unix_A_M", strconv.Itoa(int(start.Month())))
	params.Set("regist_unix_A_D", strconv.Itoa(start.Day()))
	params.Set("regist_unix_B_Y", strconv.Itoa(end.Year()))
	params.Set("regist_unix_B_M", strconv.Itoa(int(end.Month())))
	params.Set("regist_unix_B_D", strconv.Itoa(end.Day()))
	return params
}

// startOfDay interprets date's calendar day in loc.
func startOfDay(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func endOfDay(date time.Time, loc *time.Location) time.Time {
	return startOfDay(date, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (c *Client) noteTruncated(kind, id string, fields []string) {
	for _, field := range fields {
		c.logger.Debug("truncated oversized field", "kind", kind, "id", id, "field", field)
		c.metrics.IncSourceFieldTruncated(kind, field)
	}
}
