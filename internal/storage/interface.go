package storage

import (
	"context"

	"github.com/mcoot/wordgroups/internal/model"
)

// Storage persists snapshots of the durable server state.
// Load on an empty store returns no items and no error.
type Storage interface {
	// SaveAccounts replaces every stored account
	SaveAccounts(ctx context.Context, accounts []model.UserAccount) error
	LoadAccounts(ctx context.Context) ([]model.UserAccount, error)

	// SaveHistory upserts matches keyed by run; LoadHistory returns them ordered by run
	SaveHistory(ctx context.Context, matches []model.MatchRecord) error
	LoadHistory(ctx context.Context) ([]model.MatchRecord, error)

	Close() error
}
