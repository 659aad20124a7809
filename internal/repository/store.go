package repository // AccountStore contract

import (
	"context" // cancellation and deadlines

	"github.com/iliyamo/auth-session/internal/model" // domain models
)

// AccountStore is the query contract the session state machine relies on.
// Implementations must bind every value as a parameter.  Lookups return at
// most one account; if the backing data holds duplicates the first is used.
type AccountStore interface {
	// FindByUsername returns ErrAccountNotFound when the username is absent.
	FindByUsername(ctx context.Context, username string) (model.Account, error)
	// FindByRefreshToken returns the account whose stored refresh token equals token.
	FindByRefreshToken(ctx context.Context, token string) (model.Account, error)
	// SetRefreshToken overwrites the stored refresh token; nil clears it.
	SetRefreshToken(ctx context.Context, username string, token *string) error
	// Create inserts a new account with no refresh token.
	Create(ctx context.Context, acct model.Account) error
}
