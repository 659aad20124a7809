package repository // repository holds data access logic for accounts

import (
	"context"      // cancellation and deadlines
	"database/sql" // SQL database interactions
	"errors"       // error wrapping and matching
	"fmt"          // formatted errors and strings
	"strings"      // string manipulation utilities
	"time"         // timeouts and timestamps

	"github.com/go-sql-driver/mysql" // MySQL driver and error codes
	"github.com/jackc/pgx/v5/pgconn" // Postgres error codes
	"github.com/jmoiron/sqlx"        // sqlx wraps database/sql with struct scanning

	"github.com/iliyamo/auth-session/internal/model" // domain models
)

// SQLAccountStore persists accounts in a relational table described by a
// Schema.  Queries are written with `?` placeholders and rebound for the
// driver the *sqlx.DB was opened with.
type SQLAccountStore struct {
	db     *sqlx.DB
	schema Schema

	qByUsername string
	qByRefresh  string
	qSetRefresh string
	qInsert     string
}

// NewSQLAccountStore validates the schema and prepares the query text.
func NewSQLAccountStore(db *sqlx.DB, schema Schema) (*SQLAccountStore, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	s := &SQLAccountStore{db: db, schema: schema}

	sel := "SELECT " + schema.selectList() + " FROM " + schema.Table
	s.qByUsername = db.Rebind(sel + " WHERE " + schema.Username + " = ? LIMIT 1")
	s.qByRefresh = db.Rebind(sel + " WHERE " + schema.RefreshToken + " = ? LIMIT 1")
	s.qSetRefresh = db.Rebind("UPDATE " + schema.Table + " SET " + schema.RefreshToken + " = ? WHERE " + schema.Username + " = ?")

	cols := []string{schema.Username, schema.PasswordHash, schema.RefreshToken}
	if schema.IsActive != "" {
		cols = append(cols, schema.IsActive)
	}
	if schema.CreatedAt != "" {
		cols = append(cols, schema.CreatedAt)
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	s.qInsert = db.Rebind("INSERT INTO " + schema.Table + " (" + strings.Join(cols, ", ") + ") VALUES (" + marks + ")")
	return s, nil
}

// FindByUsername fetches an account by its exact username.
func (s *SQLAccountStore) FindByUsername(ctx context.Context, username string) (model.Account, error) {
	return s.getOne(ctx, "find account by username", s.qByUsername, username)
}

// FindByRefreshToken fetches the account currently holding token.
func (s *SQLAccountStore) FindByRefreshToken(ctx context.Context, token string) (model.Account, error) {
	return s.getOne(ctx, "find account by refresh token", s.qByRefresh, token)
}

// SetRefreshToken stores token (or NULL when token is nil) for username.
// Updating a username that does not exist is not an error.
func (s *SQLAccountStore) SetRefreshToken(ctx context.Context, username string, token *string) error {
	var v sql.NullString
	if token != nil {
		v = sql.NullString{String: *token, Valid: true}
	}
	if _, err := s.db.ExecContext(ctx, s.qSetRefresh, v, username); err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	return nil
}

// Create inserts acct with a NULL refresh token.
func (s *SQLAccountStore) Create(ctx context.Context, acct model.Account) error {
	args := []any{acct.Username, acct.PasswordHash, nil}
	if s.schema.IsActive != "" {
		args = append(args, acct.IsActive)
	}
	if s.schema.CreatedAt != "" {
		created := acct.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		args = append(args, created)
	}
	if _, err := s.db.ExecContext(ctx, s.qInsert, args...); err != nil {
		if isDuplicateKey(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *SQLAccountStore) getOne(ctx context.Context, op, query string, arg any) (model.Account, error) {
	var acct model.Account
	if err := s.db.GetContext(ctx, &acct, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrAccountNotFound
		}
		return model.Account{}, fmt.Errorf("%s: %w", op, err)
	}
	if s.schema.IsActive == "" {
		acct.IsActive = true
	}
	return acct, nil
}

// isDuplicateKey recognises unique violations from the supported drivers.
func isDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
