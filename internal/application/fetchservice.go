package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twilman/twilman/internal/domain/model"
	"github.com/twilman/twilman/internal/domain/port/driven"
)

// ErrFetchInProgress is returned when a fetch is triggered for an account
// that already has one in flight. Callers surface it and leave the running
// fetch alone; this is the "disable the control until it resolves" policy
// made explicit.
var ErrFetchInProgress = errors.New("a fetch is already in progress for this account")

// ClientFactory builds a TelephonyClient bound to one account's credentials.
type ClientFactory func(acc model.Account) driven.TelephonyClient

// FetchService orchestrates provider fetches: it validates requests before
// any network call, resolves accounts through the registry, and serializes
// long-running fetches per account. Each query is a stateless
// request/response cycle; no result is carried across queries.
type FetchService struct {
	registry     *AccountRegistry
	newClient    ClientFactory
	lookbackDays int
	logger       *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewFetchService creates a FetchService. lookbackDays bounds how far back
// inactivity scans search for a number's last activity.
func NewFetchService(registry *AccountRegistry, newClient ClientFactory, lookbackDays int) *FetchService {
	return &FetchService{
		registry:     registry,
		newClient:    newClient,
		lookbackDays: lookbackDays,
		logger:       slog.Default(),
		inFlight:     map[string]bool{},
	}
}

// SearchOutcome is the completion signal of an asynchronous search.
type SearchOutcome struct {
	Records []model.ActivityRecord
	Err     error
}

// SearchActivity fetches call or message activity for the request's number
// over its date range, both directions merged, deduplicated, newest first.
// Validation failures are reported before any network call is issued.
func (s *FetchService) SearchActivity(ctx context.Context, req model.QueryRequest) ([]model.ActivityRecord, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	acc, err := s.registry.Get(req.AccountName)
	if err != nil {
		return nil, err
	}
	if err := acc.Validate(); err != nil {
		return nil, err
	}

	if err := s.acquire(acc.Name); err != nil {
		return nil, err
	}
	defer s.release(acc.Name)

	start := time.Now()
	client := s.newClient(acc)

	var records []model.ActivityRecord
	switch req.Kind {
	case model.KindCall:
		records, err = client.SearchCalls(ctx, req.Number, req.Range)
	case model.KindMessage:
		records, err = client.SearchMessages(ctx, req.Number, req.Range)
	default:
		return nil, &model.ValidationError{Field: "kind", Reason: "unsupported record kind"}
	}
	if err != nil {
		return nil, err
	}

	combined := Combine(records)
	s.logger.Info("activity search complete",
		"account", acc.Name,
		"kind", req.Kind,
		"number", req.Number,
		"fetched", len(records),
		"combined", len(combined),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return combined, nil
}

// SearchActivityAsync runs SearchActivity off the caller's goroutine and
// delivers exactly one SearchOutcome on the returned channel. The channel
// is buffered, so an abandoned receiver never blocks the fetch.
func (s *FetchService) SearchActivityAsync(ctx context.Context, req model.QueryRequest) <-chan SearchOutcome {
	ch := make(chan SearchOutcome, 1)
	go func() {
		records, err := s.SearchActivity(ctx, req)
		ch <- SearchOutcome{Records: records, Err: err}
	}()
	return ch
}

// ScanInactive lists the account's numbers and reports those with no
// activity in the trailing thresholdDays window. progress, if non-nil, is
// called after each number is checked.
func (s *FetchService) ScanInactive(
	ctx context.Context,
	accountName string,
	thresholdDays int,
	progress func(done, total int),
) ([]model.InactiveNumber, error) {
	if thresholdDays < 1 {
		return nil, &model.ValidationError{Field: "threshold days", Reason: "must be at least 1"}
	}

	acc, err := s.registry.Get(accountName)
	if err != nil {
		return nil, err
	}
	if err := acc.Validate(); err != nil {
		return nil, err
	}

	if err := s.acquire(acc.Name); err != nil {
		return nil, err
	}
	defer s.release(acc.Name)

	start := time.Now()
	client := s.newClient(acc)

	numbers, err := client.ListNumbers(ctx)
	if err != nil {
		return nil, err
	}

	// Look further back than the threshold so a number inactive for, say,
	// 31 of 30 days still reports when it was last seen instead of "never".
	lookback := s.lookbackDays
	if lookback < thresholdDays {
		lookback = thresholdDays
	}
	now := time.Now()
	window := model.DateRange{Start: now.AddDate(0, 0, -lookback), End: now}

	done := 0
	lookup := func(ctx context.Context, number string) ([]model.ActivityRecord, error) {
		calls, err := client.SearchCalls(ctx, number, window)
		if err != nil {
			return nil, fmt.Errorf("checking calls for %s: %w", number, err)
		}
		messages, err := client.SearchMessages(ctx, number, window)
		if err != nil {
			return nil, fmt.Errorf("checking messages for %s: %w", number, err)
		}
		done++
		if progress != nil {
			progress(done, len(numbers))
		}
		return append(calls, messages...), nil
	}

	inactive, err := FindInactive(ctx, numbers, lookup, thresholdDays, now)
	if err != nil {
		return nil, err
	}

	s.logger.Info("inactivity scan complete",
		"account", acc.Name,
		"numbers", len(numbers),
		"inactive", len(inactive),
		"threshold_days", thresholdDays,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return inactive, nil
}

// ListNumbers returns the account's provisioned numbers.
func (s *FetchService) ListNumbers(ctx context.Context, accountName string) ([]model.OwnedNumber, error) {
	client, err := s.client(accountName)
	if err != nil {
		return nil, err
	}
	return client.ListNumbers(ctx)
}

// NumberConfig returns the configuration snapshot of one number.
func (s *FetchService) NumberConfig(ctx context.Context, accountName, numberSID string) (*model.NumberConfig, error) {
	client, err := s.client(accountName)
	if err != nil {
		return nil, err
	}
	return client.GetNumberConfig(ctx, numberSID)
}

// CallEvents returns the drill-down event trail of one call.
func (s *FetchService) CallEvents(ctx context.Context, accountName, callSID string) ([]model.CallEvent, error) {
	client, err := s.client(accountName)
	if err != nil {
		return nil, err
	}
	return client.GetCallEvents(ctx, callSID)
}

// MessageDetail returns the drill-down record of one message.
func (s *FetchService) MessageDetail(ctx context.Context, accountName, messageSID string) (*model.MessageDetail, error) {
	client, err := s.client(accountName)
	if err != nil {
		return nil, err
	}
	return client.GetMessageDetail(ctx, messageSID)
}

// client resolves and validates an account, then builds its client.
// Single-request lookups skip the per-account fetch gate; only paginated
// multi-request operations take it.
func (s *FetchService) client(accountName string) (driven.TelephonyClient, error) {
	acc, err := s.registry.Get(accountName)
	if err != nil {
		return nil, err
	}
	if err := acc.Validate(); err != nil {
		return nil, err
	}
	return s.newClient(acc), nil
}

func (s *FetchService) acquire(account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[account] {
		return fmt.Errorf("account %q: %w", account, ErrFetchInProgress)
	}
	s.inFlight[account] = true
	return nil
}

func (s *FetchService) release(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, account)
}
