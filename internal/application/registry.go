// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/twilman/twilman/internal/domain/model"
	"github.com/twilman/twilman/internal/domain/port/driven"
)

// ErrNoAccountSelected is returned when an operation needs an account but
// none was named and no active account is set.
var ErrNoAccountSelected = errors.New("no account selected")

// AccountRegistry is the session-level view over the credential store.
// It caches the account mapping in memory, tracks the active account, and
// delegates every mutation to the store before refreshing its copy. It has
// no network access and no disk access of its own.
type AccountRegistry struct {
	store driven.CredentialStore

	mu       sync.RWMutex
	accounts map[string]model.Account
	active   string
}

// NewAccountRegistry creates a registry over the given store. Call Reload
// to populate it.
func NewAccountRegistry(store driven.CredentialStore) *AccountRegistry {
	return &AccountRegistry{
		store:    store,
		accounts: map[string]model.Account{},
	}
}

// Reload replaces the session copy with the persisted mapping. On error
// (including a corrupt store) the previous session copy is kept.
func (r *AccountRegistry) Reload(ctx context.Context) error {
	accounts, err := r.store.Load(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = accounts
	if _, ok := r.accounts[r.active]; !ok {
		r.active = ""
	}
	return nil
}

// List returns all accounts sorted by name.
func (r *AccountRegistry) List() []model.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := make([]model.Account, 0, len(r.accounts))
	for _, acc := range r.accounts {
		accounts = append(accounts, acc)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })
	return accounts
}

// Get returns the named account. An empty name means "whichever account is
// active"; if none is, ErrNoAccountSelected.
func (r *AccountRegistry) Get(name string) (model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.active
	}
	if name == "" {
		return model.Account{}, ErrNoAccountSelected
	}

	acc, ok := r.accounts[name]
	if !ok {
		return model.Account{}, fmt.Errorf("account %q: %w", name, driven.ErrNotFound)
	}
	return acc, nil
}

// Active returns the currently selected account.
func (r *AccountRegistry) Active() (model.Account, error) {
	return r.Get("")
}

// SetActive selects the named account for subsequent operations.
func (r *AccountRegistry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[name]; !ok {
		return fmt.Errorf("account %q: %w", name, driven.ErrNotFound)
	}
	r.active = name
	return nil
}

// Put inserts or replaces an account through the store, then refreshes the
// session copy. The session copy is untouched when the store write fails.
func (r *AccountRegistry) Put(ctx context.Context, acc model.Account) error {
	if err := acc.Validate(); err != nil {
		return err
	}
	if err := r.store.Put(ctx, acc); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[acc.Name] = acc
	return nil
}

// Add inserts an account with create-only semantics.
func (r *AccountRegistry) Add(ctx context.Context, acc model.Account) error {
	if err := acc.Validate(); err != nil {
		return err
	}
	if err := r.store.Add(ctx, acc); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[acc.Name] = acc
	return nil
}

// Remove deletes an account, clearing the active selection if it pointed
// at the removed account.
func (r *AccountRegistry) Remove(ctx context.Context, name string) error {
	if err := r.store.Remove(ctx, name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, name)
	if r.active == name {
		r.active = ""
	}
	return nil
}
