// Package jsonfile implements the CredentialStore port as a single JSON
// file at a per-user path.
//
// Auth tokens are base64-encoded at rest. This is a reversible encoding,
// not encryption: anyone with read access to the file can recover the
// tokens. The trade-off is deliberate so the file stays portable and
// hand-recoverable; keep its permissions tight instead.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/natefinch/atomic"

	"github.com/twilman/twilman/internal/domain/model"
	"github.com/twilman/twilman/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*Store)(nil)

// storedAccount is the on-disk shape of one account. The field names match
// the historical config format so existing files stay readable.
type storedAccount struct {
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"auth_token"` // base64-encoded
}

// Store reads and writes the account mapping. Mutations take the whole-file
// lock, rewrite the complete snapshot, and commit it with a rename so a
// crash mid-write can never leave a half-written store behind.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a Store persisting at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultPath returns the fixed per-user store location,
// $HOME/.twilman/accounts.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".twilman", "accounts.json"), nil
}

// Load reads the persisted mapping. A missing file is an empty store.
func (s *Store) Load(ctx context.Context) (map[string]model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Save atomically replaces the persisted mapping.
func (s *Store) Save(ctx context.Context, accounts map[string]model.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(accounts)
}

// Put inserts or replaces the account by name and rewrites the file.
func (s *Store) Put(ctx context.Context, acc model.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.read()
	if err != nil {
		return err
	}
	accounts[acc.Name] = acc
	return s.write(accounts)
}

// Add inserts the account with create-only semantics.
func (s *Store) Add(ctx context.Context, acc model.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.read()
	if err != nil {
		return err
	}
	if _, exists := accounts[acc.Name]; exists {
		return fmt.Errorf("add account %q: %w", acc.Name, driven.ErrDuplicateName)
	}
	accounts[acc.Name] = acc
	return s.write(accounts)
}

// Remove deletes the account by name and rewrites the file.
func (s *Store) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.read()
	if err != nil {
		return err
	}
	if _, exists := accounts[name]; !exists {
		return fmt.Errorf("remove account %q: %w", name, driven.ErrNotFound)
	}
	delete(accounts, name)
	return s.write(accounts)
}

// read loads and decodes the store file. Caller holds the lock.
func (s *Store) read() (map[string]model.Account, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]model.Account{}, nil
		}
		return nil, fmt.Errorf("reading credential store %s: %w", s.path, err)
	}

	var raw map[string]storedAccount
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w: %v", s.path, driven.ErrCorruptStore, err)
	}

	accounts := make(map[string]model.Account, len(raw))
	for name, sa := range raw {
		token, err := base64.StdEncoding.DecodeString(sa.AuthToken)
		if err != nil {
			return nil, fmt.Errorf("decoding token for %q: %w: %v", name, driven.ErrCorruptStore, err)
		}
		accounts[name] = model.Account{
			Name:      name,
			SID:       sa.AccountSID,
			AuthToken: string(token),
		}
	}
	return accounts, nil
}

// write encodes and atomically persists the full mapping. Caller holds the lock.
func (s *Store) write(accounts map[string]model.Account) error {
	raw := make(map[string]storedAccount, len(accounts))
	for name, acc := range accounts {
		raw[name] = storedAccount{
			AccountSID: acc.SID,
			AuthToken:  base64.StdEncoding.EncodeToString([]byte(acc.AuthToken)),
		}
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credential store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing credential store %s: %w", s.path, err)
	}
	return nil
}
