// Package twilio implements the TelephonyClient port against the Twilio
// REST API.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"
	"github.com/gregjones/httpcache"

	"github.com/twilman/twilman/internal/domain/model"
	"github.com/twilman/twilman/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TelephonyClient = (*Client)(nil)

const (
	defaultBaseURL = "https://api.twilio.com"
	apiVersion     = "2010-04-01"

	// pageSize is the per-page record count requested from the provider.
	pageSize = 100

	// maxRetries bounds rate-limit retries after the first attempt,
	// so a request makes at most maxRetries+1 attempts.
	maxRetries = 2

	// fallbackRetryWait is used when a 429 carries no Retry-After header.
	fallbackRetryWait = time.Second

	defaultTimeout = 30 * time.Second
)

// Client is a TelephonyClient bound to one account's credentials. Requests
// carry the account SID and auth token as HTTP basic credentials and go
// through an in-memory caching transport.
type Client struct {
	http       *http.Client
	baseURL    string
	accountSID string
	authToken  string
}

// NewClient creates a Client for the given account. timeout bounds each
// HTTP request; zero or negative selects the 30s default.
func NewClient(acc model.Account, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		http: &http.Client{
			Transport: httpcache.NewMemoryCacheTransport(),
			Timeout:   timeout,
		},
		baseURL:    defaultBaseURL,
		accountSID: acc.SID,
		authToken:  acc.AuthToken,
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and
// base URL. This constructor is intended for testing, allowing injection
// of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string, acc model.Account) *Client {
	return &Client{
		http:       httpClient,
		baseURL:    baseURL,
		accountSID: acc.SID,
		authToken:  acc.AuthToken,
	}
}

// SearchCalls returns all calls to and from the number within the range,
// both directions fully paginated, in provider order.
func (c *Client) SearchCalls(ctx context.Context, number string, r model.DateRange) ([]model.ActivityRecord, error) {
	to, err := c.fetchCalls(ctx, callParams("To", number, r))
	if err != nil {
		return nil, err
	}
	from, err := c.fetchCalls(ctx, callParams("From", number, r))
	if err != nil {
		return nil, err
	}
	return append(to, from...), nil
}

// SearchMessages returns all messages to and from the number within the
// range, both directions fully paginated, in provider order.
func (c *Client) SearchMessages(ctx context.Context, number string, r model.DateRange) ([]model.ActivityRecord, error) {
	to, err := c.fetchMessages(ctx, messageParams("To", number, r))
	if err != nil {
		return nil, err
	}
	from, err := c.fetchMessages(ctx, messageParams("From", number, r))
	if err != nil {
		return nil, err
	}
	return append(to, from...), nil
}

// ListNumbers returns every phone number owned by the account.
func (c *Client) ListNumbers(ctx context.Context) ([]model.OwnedNumber, error) {
	endpoint := c.accountURL("IncomingPhoneNumbers.json") + "?" + pagedParams(nil).Encode()

	numbers := []model.OwnedNumber{}
	for endpoint != "" {
		var page numberPage
		if err := c.get(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		for _, n := range page.IncomingPhoneNumbers {
			numbers = append(numbers, mapNumber(n))
		}
		endpoint = c.nextPageURL(page.NextPageURI)
	}
	return numbers, nil
}

// GetNumberConfig returns the configuration snapshot of one number.
func (c *Client) GetNumberConfig(ctx context.Context, numberSID string) (*model.NumberConfig, error) {
	var rec numberConfigRecord
	if err := c.get(ctx, c.accountURL("IncomingPhoneNumbers/"+numberSID+".json"), &rec); err != nil {
		return nil, err
	}
	return mapNumberConfig(rec), nil
}

// GetCallEvents returns the event trail of one call.
func (c *Client) GetCallEvents(ctx context.Context, callSID string) ([]model.CallEvent, error) {
	var page callEventsPage
	if err := c.get(ctx, c.accountURL("Calls/"+callSID+"/Events.json"), &page); err != nil {
		return nil, err
	}

	events := make([]model.CallEvent, 0, len(page.Events))
	for _, e := range page.Events {
		events = append(events, mapCallEvent(e))
	}
	return events, nil
}

// GetMessageDetail returns the full record of one message.
func (c *Client) GetMessageDetail(ctx context.Context, messageSID string) (*model.MessageDetail, error) {
	var rec messageDetailRecord
	if err := c.get(ctx, c.accountURL("Messages/"+messageSID+".json"), &rec); err != nil {
		return nil, err
	}
	return mapMessageDetail(rec), nil
}

// fetchCalls follows pagination cursors until exhausted, accumulating all
// pages into one sequence.
func (c *Client) fetchCalls(ctx context.Context, params url.Values) ([]model.ActivityRecord, error) {
	endpoint := c.accountURL("Calls.json") + "?" + params.Encode()

	records := []model.ActivityRecord{}
	for endpoint != "" {
		var page callPage
		if err := c.get(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		for _, call := range page.Calls {
			records = append(records, mapCall(call))
		}
		endpoint = c.nextPageURL(page.NextPageURI)
	}
	return records, nil
}

// fetchMessages follows pagination cursors until exhausted.
func (c *Client) fetchMessages(ctx context.Context, params url.Values) ([]model.ActivityRecord, error) {
	endpoint := c.accountURL("Messages.json") + "?" + params.Encode()

	records := []model.ActivityRecord{}
	for endpoint != "" {
		var page messagePage
		if err := c.get(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		for _, msg := range page.Messages {
			records = append(records, mapMessage(msg))
		}
		endpoint = c.nextPageURL(page.NextPageURI)
	}
	return records, nil
}

// get performs one authenticated GET and decodes the JSON body into v.
// Rate-limit responses are retried after the provider-specified interval,
// bounded by maxRetries; every other failure is surfaced immediately as a
// typed *driven.APIError. Authentication failures are never retried.
func (c *Client) get(ctx context.Context, endpoint string, v any) error {
	wait := &retryAfterBackOff{fallback: fallbackRetryWait}

	op := func() error {
		err := c.doOnce(ctx, endpoint, v, wait)
		if err == nil {
			return nil
		}

		var apiErr *driven.APIError
		if errors.As(err, &apiErr) && apiErr.Kind == driven.APIErrRateLimited {
			slog.Debug("rate limited, backing off", "url", endpoint, "retry_after", wait.wait)
			return err // retryable; WithMaxRetries bounds the attempts
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(wait, maxRetries), ctx))
}

// doOnce performs a single request/decode cycle. On a 429 it records the
// provider's Retry-After interval on wait before returning the typed error.
func (c *Client) doOnce(ctx context.Context, endpoint string, v any, wait *retryAfterBackOff) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &driven.APIError{Kind: driven.APIErrUnknown, Message: fmt.Sprintf("building request: %v", err)}
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &driven.APIError{Kind: driven.APIErrNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &driven.APIError{Kind: driven.APIErrNetwork, Message: fmt.Sprintf("reading response: %v", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			wait.set(d)
		}
		return &driven.APIError{
			Kind:       driven.APIErrRateLimited,
			StatusCode: resp.StatusCode,
			Message:    "rate limited by provider",
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &driven.APIError{
			Kind:       driven.APIErrAuth,
			StatusCode: resp.StatusCode,
			Message:    "authentication rejected; check account SID and auth token",
		}
	case resp.StatusCode == http.StatusNotFound:
		return &driven.APIError{
			Kind:       driven.APIErrNotFound,
			StatusCode: resp.StatusCode,
			Message:    trimBody(body),
		}
	case resp.StatusCode != http.StatusOK:
		return &driven.APIError{
			Kind:       driven.APIErrUnknown,
			StatusCode: resp.StatusCode,
			Message:    trimBody(body),
		}
	}

	if err := json.Unmarshal(body, v); err != nil {
		return &driven.APIError{
			Kind:       driven.APIErrUnknown,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("malformed response body: %v", err),
		}
	}
	return nil
}

// accountURL builds an endpoint path under the account's API root.
func (c *Client) accountURL(path string) string {
	return fmt.Sprintf("%s/%s/Accounts/%s/%s", c.baseURL, apiVersion, c.accountSID, path)
}

// nextPageURL resolves the provider's relative pagination cursor. The
// cursor already carries the query parameters of the original request.
func (c *Client) nextPageURL(nextPageURI string) string {
	if nextPageURI == "" {
		return ""
	}
	return c.baseURL + nextPageURI
}

// callParams builds the filter query for one direction of a call search.
// The provider's upper bound is exclusive, so the inclusive domain range
// end is extended by one day.
func callParams(directionField, number string, r model.DateRange) url.Values {
	return pagedParams(url.Values{
		directionField: {number},
		"StartTime>":   {r.Start.Format("2006-01-02")},
		"StartTime<":   {r.End.AddDate(0, 0, 1).Format("2006-01-02")},
	})
}

// messageParams builds the filter query for one direction of a message search.
func messageParams(directionField, number string, r model.DateRange) url.Values {
	return pagedParams(url.Values{
		directionField: {number},
		"DateSent>":    {r.Start.Format("2006-01-02")},
		"DateSent<":    {r.End.AddDate(0, 0, 1).Format("2006-01-02")},
	})
}

func pagedParams(params url.Values) url.Values {
	if params == nil {
		params = url.Values{}
	}
	params.Set("PageSize", strconv.Itoa(pageSize))
	return params
}

// parseRetryAfter reads a Retry-After header given in seconds. A missing
// or malformed header reports false and the fallback delay applies.
func parseRetryAfter(header string) (time.Duration, bool) {
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func trimBody(body []byte) string {
	const max = 512
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}

// retryAfterBackOff waits exactly the interval the provider asked for,
// falling back to a fixed delay when none was given.
type retryAfterBackOff struct {
	wait     time.Duration
	has      bool
	fallback time.Duration
}

func (b *retryAfterBackOff) set(d time.Duration) {
	b.wait, b.has = d, true
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	if b.has {
		b.has = false
		return b.wait
	}
	return b.fallback
}

func (b *retryAfterBackOff) Reset() {
	b.wait, b.has = 0, false
}
