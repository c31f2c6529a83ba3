package driven

import (
	"context"
	"fmt"

	"github.com/twilman/twilman/internal/domain/model"
)

// APIErrorKind classifies provider API failures.
type APIErrorKind string

const (
	APIErrNetwork     APIErrorKind = "network"
	APIErrAuth        APIErrorKind = "auth"
	APIErrRateLimited APIErrorKind = "rate_limited"
	APIErrNotFound    APIErrorKind = "not_found"
	APIErrUnknown     APIErrorKind = "unknown"
)

// APIError is the typed failure surfaced by TelephonyClient operations.
// StatusCode is zero for transport-level failures.
type APIError struct {
	Kind       APIErrorKind
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider api error (%s, status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider api error (%s): %s", e.Kind, e.Message)
}

// TelephonyClient performs authenticated requests against the telephony
// provider for a single account. Search operations issue one query per
// direction ("to" and "from" the number), follow pagination cursors until
// exhausted, and return the combined, non-deduplicated records; the
// aggregator owns dedup and ordering. Rate-limit responses are retried
// after the provider-specified interval, a bounded number of times;
// authentication failures are never retried.
type TelephonyClient interface {
	// SearchCalls returns all calls to and from the number within the range.
	SearchCalls(ctx context.Context, number string, r model.DateRange) ([]model.ActivityRecord, error)

	// SearchMessages returns all messages to and from the number within the range.
	SearchMessages(ctx context.Context, number string, r model.DateRange) ([]model.ActivityRecord, error)

	// ListNumbers returns every phone number owned by the account.
	ListNumbers(ctx context.Context) ([]model.OwnedNumber, error)

	// GetNumberConfig returns the configuration snapshot of one number.
	GetNumberConfig(ctx context.Context, numberSID string) (*model.NumberConfig, error)

	// GetCallEvents returns the event trail of one call for drill-down.
	GetCallEvents(ctx context.Context, callSID string) ([]model.CallEvent, error)

	// GetMessageDetail returns the full record of one message for drill-down.
	GetMessageDetail(ctx context.Context, messageSID string) (*model.MessageDetail, error)
}
