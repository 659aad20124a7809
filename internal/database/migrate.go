package database // embedded goose migrations

import (
	"context"      // cancellation and deadlines
	"database/sql" // SQL database interactions
	"embed"        // migrations compiled into the binary
	"fmt"          // formatted errors and strings

	"github.com/pressly/goose/v3" // schema migrations

	"github.com/iliyamo/auth-session/internal/config" // app configuration
)

//go:embed migrations/mysql/*.sql migrations/postgres/*.sql
var migrations embed.FS

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded migrations for the given store driver.  The
// two dialects keep separate directories because MySQL needs a binary
// collation for case-sensitive usernames.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	switch driver {
	case config.DriverMySQL, config.DriverPostgres:
	default:
		return fmt.Errorf("migrate: unsupported driver %q", driver)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(driver); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, "migrations/"+driver)
}
