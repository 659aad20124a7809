package model // model holds the account entity

import "time" // timeouts and timestamps

// Account represents a row of the account table.  The column names depend on
// the configured schema mapping (see repository.Schema); the struct itself is
// schema independent.
//
// Fields:
//
//	Username     – unique, case-sensitive login name.
//	PasswordHash – bcrypt hash of the password; only ever compared through bcrypt.
//	RefreshToken – the single currently trusted refresh token, nil when there is no session.
//	IsActive     – activation flag; schemas without the column report true.
//	CreatedAt    – registration timestamp; zero when the schema has no such column.
type Account struct {
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	RefreshToken *string   `db:"refresh_token"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
}

// HasSession reports whether the account currently holds a refresh token.
func (a Account) HasSession() bool {
	return a.RefreshToken != nil && *a.RefreshToken != ""
}
