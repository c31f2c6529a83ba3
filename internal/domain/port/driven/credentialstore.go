// Package driven defines the ports implemented by driven adapters.
package driven

import (
	"context"
	"errors"

	"github.com/twilman/twilman/internal/domain/model"
)

var (
	// ErrCorruptStore is returned when the persisted credential file exists
	// but cannot be parsed into the expected account mapping.
	ErrCorruptStore = errors.New("credential store file is corrupt")

	// ErrDuplicateName is returned by create-only inserts when the account
	// name is already taken.
	ErrDuplicateName = errors.New("account name already exists")

	// ErrNotFound is returned when no account with the given name exists.
	ErrNotFound = errors.New("account not found")
)

// CredentialStore persists named accounts in a single file at a fixed
// per-user path. Secrets are stored with a reversible encoding, not
// encryption; the adapter documents this to the user. Every mutation
// rewrites the full file so it always holds a complete snapshot.
type CredentialStore interface {
	// Load reads the persisted mapping. A missing file yields an empty
	// mapping and no error; an unparseable file yields an error wrapping
	// ErrCorruptStore.
	Load(ctx context.Context) (map[string]model.Account, error)

	// Save atomically replaces the persisted mapping with the given one.
	Save(ctx context.Context, accounts map[string]model.Account) error

	// Put inserts or replaces the account by name.
	Put(ctx context.Context, acc model.Account) error

	// Add inserts the account with create-only semantics. Returns an error
	// wrapping ErrDuplicateName if the name is taken.
	Add(ctx context.Context, acc model.Account) error

	// Remove deletes the account by name. Returns an error wrapping
	// ErrNotFound if absent; the store is left unchanged on failure.
	Remove(ctx context.Context, name string) error
}
