// Package rest is the shared HTTP plumbing for exchange market data clients.
// It maps transport and status failures onto domain.FetchError kinds so every
// adapter reports transient and terminal causes the same way.
package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// maxBody caps how much of a response is read. Full ticker lists for large
// exchanges are a few megabytes.
const maxBody = 32 << 20

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// Client issues GET requests against one exchange's REST API.
type Client struct {
	exchange   domain.ExchangeID
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client. A zero timeout defaults to 10 seconds.
func NewClient(exchange domain.ExchangeID, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		exchange: exchange,
		baseURL:  strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetJSON fetches path with the query parameters and decodes the body into
// out. Every failure is returned as a *domain.FetchError.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := sonnet.Unmarshal(body, out); err != nil {
		return c.fail(domain.FetchTransient, fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, c.fail(domain.FetchTerminal, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(classifyTransport(err), fmt.Errorf("http request %s: %w", path, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, c.fail(domain.FetchTransient, fmt.Errorf("read response %s: %w", path, err))
	}

	if err := checkStatus(resp.StatusCode, body); err != nil {
		return nil, c.fail(classifyStatus(resp.StatusCode), fmt.Errorf("%s: %w", path, err))
	}
	return body, nil
}

func (c *Client) fail(kind domain.FetchKind, err error) error {
	return domain.NewFetchError(c.exchange, kind, fmt.Errorf("%s: %w", c.exchange, err))
}

// checkStatus maps non-2xx HTTP status codes to errors. Auth and rate limit
// responses also wrap the matching domain sentinel.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	snippet := string(body)
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}
	se := &StatusError{Code: statusCode, Body: snippet}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.Join(domain.ErrUnauthorized, se)
	case http.StatusTooManyRequests, 418:
		return errors.Join(domain.ErrRateLimited, se)
	default:
		return se
	}
}

// classifyStatus decides whether a failed status is worth retrying on the
// next iteration. Auth failures and other client errors are terminal; rate
// limits (418 is Binance's IP ban escalation) and server errors are not.
func classifyStatus(code int) domain.FetchKind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return domain.FetchTerminal
	case code == http.StatusTooManyRequests, code == 418, code == http.StatusRequestTimeout:
		return domain.FetchTransient
	case code >= 500:
		return domain.FetchTransient
	default:
		return domain.FetchTerminal
	}
}

// classifyTransport treats network and timeout failures as transient. What
// remains, such as an unsupported URL scheme, is a configuration problem.
func classifyTransport(err error) domain.FetchKind {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return domain.FetchTransient
		}
		err = urlErr.Err
	}
	var netErr net.Error
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return domain.FetchTransient
	default:
		return domain.FetchTerminal
	}
}

// ParseNumber parses an exchange decimal string. Empty input is a missing
// value and yields 0; malformed input yields NaN so the graph builder can
// count it as a data error.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return math.NaN()
	}
	f, _ := d.Float64()
	return f
}
