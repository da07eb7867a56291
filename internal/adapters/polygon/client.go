// Package polygon fetches dividend records from the Polygon reference API,
// following pagination cursors and waiting out rate limits.
package polygon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/darylmathison/dividend-stock-analysis/internal/domain/model"
	"github.com/darylmathison/dividend-stock-analysis/pkg/logger"
	"github.com/darylmathison/dividend-stock-analysis/pkg/metrics"
)

const (
	dividendsPath = "/v3/reference/dividends"
	apiKeyParam   = "apiKey"
	maxErrorBody  = 512
)

// page is one response of the dividends endpoint.
type page struct {
	Results   []model.DividendEvent `json:"results"`
	NextURL   string                `json:"next_url"`
	Status    string                `json:"status"`
	RequestID string                `json:"request_id"`
}

// Client retrieves dividend events for a window.
type Client struct {
	baseURL  string
	apiKey   string
	pageSize int
	http     *http.Client
	retry    RetryPolicy
	sleep    Sleeper
	log      logger.Logger
}

// New constructs a client with configuration options.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		pageSize: DefaultPageSize,
		http:     newHTTPClient(defaultConnectTimeout, defaultReadTimeout),
		retry:    DefaultRetryPolicy(),
		sleep:    SleepContext,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch pages through the dividends of w.Symbol with ex-dividend dates from
// w.Start onward, stopping when the cursor runs out or the last ex-dividend
// date passes w.End.
//
// HTTP 429 is waited out per the retry policy. Any other error status aborts
// the fetch with a *ProviderError. A transport or decode failure stops
// pagination and returns what was accumulated with Complete set to false and
// a nil error.
func (c *Client) Fetch(ctx context.Context, w model.FetchWindow) (model.FetchResult, error) {
	fetchID := uuid.NewString()
	started := time.Now()
	defer func() { metrics.RecordFetchDuration(time.Since(started).Seconds()) }()

	res := model.FetchResult{Complete: true}
	lastDate := model.DayKey(w.Start)
	end := model.DayKey(w.End)
	next := c.firstURL(w)

	for next != "" && lastDate <= end {
		p, err := c.getPage(ctx, next, fetchID)
		if err != nil {
			if errors.Is(err, ErrTransport) || errors.Is(err, ErrDecode) {
				c.log.Warn(ctx, "dividend fetch stopped early, returning partial result",
					logger.String("symbol", w.Symbol),
					logger.String("fetch_id", fetchID),
					logger.Int("events", len(res.Events)),
					logger.Int("pages", res.Pages),
					logger.Error(err),
				)
				metrics.RecordFetchDegraded()
				res.Complete = false
				res.Cause = err
				return res, nil
			}
			metrics.RecordFetchError()
			return model.FetchResult{}, err
		}
		res.Pages++
		metrics.RecordFetchPage(len(p.Results))
		if len(p.Results) == 0 {
			break
		}
		res.Events = append(res.Events, p.Results...)

		last := p.Results[len(p.Results)-1]
		ex, err := last.ExDate()
		if err != nil {
			c.log.Warn(ctx, "unreadable ex-dividend date, returning partial result",
				logger.String("symbol", w.Symbol),
				logger.String("fetch_id", fetchID),
				logger.String("ex_dividend_date", last.ExDividendDate),
			)
			metrics.RecordFetchDegraded()
			res.Complete = false
			res.Cause = fmt.Errorf("%w: ex_dividend_date %q: %w", ErrDecode, last.ExDividendDate, err)
			return res, nil
		}
		lastDate = model.DayKey(ex)

		c.log.Info(ctx, "fetched dividend page",
			logger.Int("size", len(p.Results)),
			logger.String("ex_dividend_date", lastDate),
			logger.String("symbol", w.Symbol),
			logger.String("fetch_id", fetchID),
		)

		next, err = c.continuation(p.NextURL)
		if err != nil {
			metrics.RecordFetchDegraded()
			res.Complete = false
			res.Cause = err
			return res, nil
		}
	}
	return res, nil
}

// getPage requests u until it is answered with something other than 429.
func (c *Client) getPage(ctx context.Context, u, fetchID string) (page, error) {
	for retries := 0; ; retries++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return page{}, fmt.Errorf("%w: %w", ErrTransport, err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return page{}, ctxErr
			}
			return page{}, fmt.Errorf("%w: %s: %w", ErrTransport, redact(u), err)
		}
		metrics.RecordFetchRequest(strconv.Itoa(resp.StatusCode))

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			drain(resp)
			if c.retry.exhausted(retries) {
				return page{}, fmt.Errorf("%w: %d retries of %s", ErrRateLimited, retries, redact(u))
			}
			wait := c.retry.delay(retries)
			metrics.RecordFetchRateLimited()
			c.log.Warn(ctx, "rate limited by provider, waiting",
				logger.Duration("wait", wait),
				logger.Int("retry", retries+1),
				logger.String("fetch_id", fetchID),
			)
			if err := c.sleep(ctx, wait); err != nil {
				return page{}, err
			}
			continue

		case resp.StatusCode >= http.StatusBadRequest:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			drain(resp)
			return page{}, &ProviderError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				URL:        redact(u),
				Body:       strings.TrimSpace(string(body)),
			}
		}

		var p page
		err = json.NewDecoder(resp.Body).Decode(&p)
		drain(resp)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return page{}, ctxErr
			}
			return page{}, fmt.Errorf("%w: %s: %w", ErrDecode, redact(u), err)
		}
		return p, nil
	}
}

func (c *Client) firstURL(w model.FetchWindow) string {
	q := url.Values{}
	q.Set("ticker", w.Symbol)
	q.Set("ex_dividend_date.gte", model.DayKey(w.Start))
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("order", "asc")
	q.Set("sort", "ex_dividend_date")
	q.Set(apiKeyParam, c.apiKey)
	return strings.TrimRight(c.baseURL, "/") + dividendsPath + "?" + q.Encode()
}

// continuation resolves next_url against the base and re-attaches the key,
// which the provider omits from cursors.
func (c *Client) continuation(next string) (string, error) {
	if next == "" {
		return "", nil
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: base url: %w", ErrDecode, err)
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("%w: next_url %q: %w", ErrDecode, next, err)
	}
	u := base.ResolveReference(ref)
	q := u.Query()
	q.Set(apiKeyParam, c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redact hides the credential in URLs that end up in logs and errors.
func redact(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	q := parsed.Query()
	if q.Has(apiKeyParam) {
		q.Set(apiKeyParam, "REDACTED")
		parsed.RawQuery = q.Encode()
	}
	return parsed.String()
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
