package application_test

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/twilman/twilman/internal/domain/model"
	"github.com/twilman/twilman/internal/domain/port/driven"
)

// memStore is an in-memory CredentialStore for registry and service tests.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]model.Account

	// failNext makes the next mutation fail, for write-failure paths.
	failNext error
}

var _ driven.CredentialStore = (*memStore)(nil)

func newMemStore(accounts ...model.Account) *memStore {
	s := &memStore{accounts: map[string]model.Account{}}
	for _, acc := range accounts {
		s.accounts[acc.Name] = acc
	}
	return s
}

func (s *memStore) takeErr() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *memStore) Load(_ context.Context) (map[string]model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return nil, err
	}
	out := make(map[string]model.Account, len(s.accounts))
	for name, acc := range s.accounts {
		out[name] = acc
	}
	return out, nil
}

func (s *memStore) Save(_ context.Context, accounts map[string]model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return err
	}
	s.accounts = accounts
	return nil
}

func (s *memStore) Put(_ context.Context, acc model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return err
	}
	s.accounts[acc.Name] = acc
	return nil
}

func (s *memStore) Add(_ context.Context, acc model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return err
	}
	if _, exists := s.accounts[acc.Name]; exists {
		return fmt.Errorf("add account %q: %w", acc.Name, driven.ErrDuplicateName)
	}
	s.accounts[acc.Name] = acc
	return nil
}

func (s *memStore) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return err
	}
	if _, exists := s.accounts[name]; !exists {
		return fmt.Errorf("remove account %q: %w", name, driven.ErrNotFound)
	}
	delete(s.accounts, name)
	return nil
}

// fakeClient is a canned TelephonyClient. Every search returns calls or
// messages regardless of number unless perNumber is set.
type fakeClient struct {
	mu sync.Mutex

	calls     []model.ActivityRecord
	messages  []model.ActivityRecord
	numbers   []model.OwnedNumber
	perNumber map[string][]model.ActivityRecord

	searchErr error

	searchCallCount int
	block           chan struct{} // when set, searches wait until closed
}

var _ driven.TelephonyClient = (*fakeClient)(nil)

func (c *fakeClient) SearchCalls(_ context.Context, number string, _ model.DateRange) ([]model.ActivityRecord, error) {
	c.mu.Lock()
	c.searchCallCount++
	block := c.block
	c.mu.Unlock()

	if block != nil {
		<-block
	}
	if c.searchErr != nil {
		return nil, c.searchErr
	}
	if c.perNumber != nil {
		return c.perNumber[number], nil
	}
	return c.calls, nil
}

func (c *fakeClient) SearchMessages(_ context.Context, _ string, _ model.DateRange) ([]model.ActivityRecord, error) {
	if c.searchErr != nil {
		return nil, c.searchErr
	}
	return c.messages, nil
}

func (c *fakeClient) ListNumbers(_ context.Context) ([]model.OwnedNumber, error) {
	return c.numbers, nil
}

func (c *fakeClient) GetNumberConfig(_ context.Context, numberSID string) (*model.NumberConfig, error) {
	return &model.NumberConfig{SID: numberSID}, nil
}

func (c *fakeClient) GetCallEvents(_ context.Context, _ string) ([]model.CallEvent, error) {
	return nil, nil
}

func (c *fakeClient) GetMessageDetail(_ context.Context, messageSID string) (*model.MessageDetail, error) {
	return &model.MessageDetail{SID: messageSID}, nil
}

func account(name string) model.Account {
	return model.Account{
		Name:      name,
		SID:       "AC" + strings.Repeat("0", 32),
		AuthToken: strings.Repeat("a", 32),
	}
}
