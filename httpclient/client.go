// Package httpclient implements RateLimitedHttpClient: authenticated JSON
// GETs against the code-hosting API with retry and bounded exponential
// backoff honoring server-provided reset hints, adapted from the raw
// net/http request construction used in the teacher's registry/client.go and
// network package rather than any generated SDK, since the retry and
// rate-limit-phrase handling this spec requires is not exposed by one.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/evalgo/digestengine/common"
)

const (
	rateLimitMaxRetries  = 4
	rateLimitBaseWait    = 2 * time.Second
	rateLimitMaxWait     = 30 * time.Second
	transportMaxRetries  = 3
	transportBaseWait    = 2 * time.Second
	transportBackoffBase = 2.0
	perPageSize          = 100
)

var rateLimitPhrases = []string{
	"secondary rate",
	"rate limit exceeded",
	"abuse detection",
}

// Client is a rate-limit-aware JSON client for a single code-hosting API.
// It is effectively immutable after construction: the underlying
// http.Client is safe for concurrent use, matching the "HTTP client is
// exclusively immutable" resource guarantee in the spec's concurrency model.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *common.ContextLogger
}

// Config configures a new Client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Logger  *common.ContextLogger
}

// New constructs a Client. A zero Timeout defaults to 30s, the upper bound
// of the per-request timeout range the spec allows (5-30s open, 15-120s
// overall depending on endpoint); callers needing a tighter bound should set
// Timeout explicitly.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = common.NewContextLogger(nil, map[string]interface{}{"component": "httpclient"})
	}
	logger.WithFields(map[string]interface{}{
		"base_url": cfg.BaseURL, "token": common.MaskSecret(cfg.Token),
	}).Debug("httpclient configured")
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// TokenPresent reports whether the client is authenticated. Several policies
// fork on this: page sizes, pagination eligibility, and reference-limit caps.
func (c *Client) TokenPresent() bool { return c.token != "" }

// Get performs an authenticated JSON GET against path with the given query
// parameters and returns the decoded JSON value (object, array, or scalar).
func (c *Client) Get(ctx context.Context, path string, query url.Values) (interface{}, error) {
	return c.doWithRetry(ctx, "GET", path, query, nil)
}

// GetPaginated walks a paginated listing endpoint, requesting per_page=100
// and advancing until a page returns fewer than 100 rows (invariant: pure
// function of the fixture sequence, no hidden state beyond the page index).
func (c *Client) GetPaginated(ctx context.Context, path string, query url.Values) ([]interface{}, error) {
	var all []interface{}
	page := 1
	for {
		q := cloneValues(query)
		q.Set("per_page", strconv.Itoa(perPageSize))
		q.Set("page", strconv.Itoa(page))

		raw, err := c.doWithRetry(ctx, "GET", path, q, nil)
		if err != nil {
			return all, err
		}
		rows, ok := raw.([]interface{})
		if !ok {
			return all, &Error{Kind: KindParseFailure, Op: "GetPaginated", Path: path, Message: "expected JSON array"}
		}
		all = append(all, rows...)
		if len(rows) < perPageSize {
			return all, nil
		}
		page++
	}
}

// GetPage is the non-paginating shortcut used when the caller is token-less
// and specifies a maximum page size, avoiding exhausting the unauthenticated
// rate budget walking every page.
func (c *Client) GetPage(ctx context.Context, path string, query url.Values, maxResults int) ([]interface{}, error) {
	q := cloneValues(query)
	q.Set("per_page", strconv.Itoa(maxResults))
	raw, err := c.doWithRetry(ctx, "GET", path, q, nil)
	if err != nil {
		return nil, err
	}
	rows, ok := raw.([]interface{})
	if !ok {
		return nil, &Error{Kind: KindParseFailure, Op: "GetPage", Path: path, Message: "expected JSON array"}
	}
	if len(rows) > maxResults {
		rows = rows[:maxResults]
	}
	return rows, nil
}

func cloneValues(v url.Values) url.Values {
	out := url.Values{}
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// doWithRetry implements the rate-limit retry state machine from §4.10:
// idle -> requesting -> success | not-found | backoff[k]->requesting | error.
// Transient transport failures are retried by a separate, lower-cap loop.
func (c *Client) doWithRetry(ctx context.Context, method, path string, query url.Values, body io.Reader) (interface{}, error) {
	var lastErr error
	for transportAttempt := 0; transportAttempt <= transportMaxRetries; transportAttempt++ {
		result, err := c.rateLimitedAttempt(ctx, method, path, query, body)
		if err == nil {
			return result, nil
		}
		if !isTransientTransport(err) {
			return nil, err
		}
		lastErr = err
		if transportAttempt == transportMaxRetries {
			break
		}
		wait := time.Duration(float64(transportBaseWait) * pow(transportBackoffBase, float64(transportAttempt)))
		c.logger.WithFields(map[string]interface{}{
			"path": path, "attempt": transportAttempt + 1, "wait": wait.String(),
		}).Warn("transient transport error, retrying")
		if sleepErr := sleepCtx(ctx, wait); sleepErr != nil {
			return nil, &Error{Kind: KindCancelled, Op: method, Path: path, Err: sleepErr}
		}
	}
	return nil, &Error{Kind: KindTransientTransport, Op: method, Path: path, Err: lastErr}
}

// rateLimitedAttempt performs one logical request, internally retrying up to
// rateLimitMaxRetries times on 429 or rate-limited 403 responses.
func (c *Client) rateLimitedAttempt(ctx context.Context, method, path string, query url.Values, body io.Reader) (interface{}, error) {
	for attempt := 1; attempt <= rateLimitMaxRetries+1; attempt++ {
		req, err := c.newRequest(ctx, method, path, query, body)
		if err != nil {
			return nil, &Error{Kind: KindTransientTransport, Op: method, Path: path, Err: err}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &Error{Kind: KindCancelled, Op: method, Path: path, Err: ctx.Err()}
			}
			return nil, &Error{Kind: KindTransientTransport, Op: method, Path: path, Err: err}
		}

		result, retryAfter, rlErr := c.handleResponse(method, path, resp)
		if rlErr == nil {
			return result, nil
		}
		if !isRateLimited(rlErr) {
			return nil, rlErr
		}
		if attempt > rateLimitMaxRetries {
			return nil, rlErr
		}

		wait := retryAfter
		if wait <= 0 {
			wait = backoffFor(attempt)
		}
		c.logger.WithFields(map[string]interface{}{
			"path": path, "attempt": attempt, "wait": wait.String(),
		}).Warn("rate limited, backing off")
		if sleepErr := sleepCtx(ctx, wait); sleepErr != nil {
			return nil, &Error{Kind: KindCancelled, Op: method, Path: path, Err: sleepErr}
		}
	}
	return nil, &Error{Kind: KindRateLimited, Op: method, Path: path}
}

// backoffFor computes min(base * 2^(k-1), max) for retry count k (1-indexed).
func backoffFor(k int) time.Duration {
	wait := time.Duration(float64(rateLimitBaseWait) * pow(2, float64(k-1)))
	if wait > rateLimitMaxWait {
		return rateLimitMaxWait
	}
	return wait
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	full := c.baseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, full, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// handleResponse classifies a response, returning either a parsed value or a
// rate-limited error carrying the wait hint so the caller can back off.
func (c *Client) handleResponse(method, path string, resp *http.Response) (interface{}, time.Duration, error) {
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	c.logRateLimitTelemetry(resp, path)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var value interface{}
		if len(raw) == 0 {
			return nil, 0, nil
		}
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, 0, &Error{Kind: KindParseFailure, Op: method, Path: path, Status: resp.StatusCode, Err: err, Message: truncate(string(raw), 200)}
		}
		return value, 0, nil

	case resp.StatusCode == http.StatusNotFound:
		return nil, 0, &Error{Kind: KindNotFound, Op: method, Path: path, Status: resp.StatusCode}

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, retryAfterDuration(resp, raw), &Error{Kind: KindRateLimited, Op: method, Path: path, Status: resp.StatusCode}

	case resp.StatusCode == http.StatusForbidden && containsRateLimitPhrase(string(raw)):
		return nil, retryAfterDuration(resp, raw), &Error{Kind: KindRateLimited, Op: method, Path: path, Status: resp.StatusCode}

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, 0, &Error{Kind: KindAuthFailure, Op: method, Path: path, Status: resp.StatusCode, Message: truncate(string(raw), 200)}

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, 0, &Error{Kind: KindParseFailure, Op: method, Path: path, Status: resp.StatusCode, Message: truncate(string(raw), 200)}

	default:
		return nil, 0, &Error{Kind: KindTransientTransport, Op: method, Path: path, Status: resp.StatusCode, Message: truncate(string(raw), 200)}
	}
}

func (c *Client) logRateLimitTelemetry(resp *http.Response, path string) {
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	limit := resp.Header.Get("X-RateLimit-Limit")
	reset := resp.Header.Get("X-RateLimit-Reset")
	retryAfter := resp.Header.Get("Retry-After")
	if remaining == "" && limit == "" && reset == "" && retryAfter == "" {
		return
	}
	c.logger.WithFields(map[string]interface{}{
		"path":       path,
		"remaining":  remaining,
		"limit":      limit,
		"reset_at":   reset,
		"retryAfter": retryAfter,
	}).Debug("rate limit telemetry")
}

func retryAfterDuration(resp *http.Response, body []byte) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

var rateLimitPhraseRe = func() *regexp.Regexp {
	escaped := make([]string, len(rateLimitPhrases))
	for i, p := range rateLimitPhrases {
		escaped[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`(?i)` + strings.Join(escaped, "|"))
}()

func containsRateLimitPhrase(body string) bool {
	return rateLimitPhraseRe.MatchString(body)
}

func isRateLimited(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == KindRateLimited
}

func isTransientTransport(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == KindTransientTransport
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// PostJSON marshals payload and sends it as a JSON POST to path. Nothing in
// this module calls it; the collection core issues GETs only.
func (c *Client) PostJSON(ctx context.Context, path string, payload interface{}) (interface{}, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Kind: KindParseFailure, Op: "POST", Path: path, Err: err}
	}
	return c.doWithRetry(ctx, "POST", path, nil, bytes.NewReader(buf))
}

// BaseURL exposes the configured base URL for consumers building web URLs
// (e.g. forge.Client.TreeURL's tag link) that must not re-derive it.
func (c *Client) BaseURL() string { return c.baseURL }
