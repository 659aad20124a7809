// Package database opens the SQL connection pool for the account store and
// applies the embedded schema migrations.
package database // database connection setup

import (
	"context" // cancellation and deadlines
	"fmt"     // formatted errors and strings
	"net"     // host:port joining
	"net/url" // DSN building for Postgres
	"time"    // timeouts and timestamps

	"github.com/go-sql-driver/mysql"   // MySQL driver and error codes
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"          // sqlx wraps database/sql with struct scanning

	"github.com/iliyamo/auth-session/internal/config" // app configuration
)

// Open connects to MySQL or PostgreSQL according to cfg.StoreDriver and
// verifies the connection.
func Open(ctx context.Context, cfg config.Config) (*sqlx.DB, error) {
	driver, dsn, err := driverDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.StoreDriver, err)
	}
	return db, nil
}

func driverDSN(cfg config.Config) (driver, dsn string, err error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		return "mysql", mysqlDSN(cfg), nil
	case config.DriverPostgres:
		return "pgx", postgresDSN(cfg), nil
	}
	return "", "", fmt.Errorf("database: unsupported driver %q", cfg.StoreDriver)
}

// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
func mysqlDSN(cfg config.Config) string {
	mc := mysql.NewConfig()
	mc.User = cfg.DBUser
	mc.Passwd = cfg.DBPass
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.DBHost, cfg.DBPort)
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

func postgresDSN(cfg config.Config) string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(cfg.DBHost, cfg.DBPort),
		Path:     "/" + cfg.DBName,
		RawQuery: "sslmode=disable",
	}
	if cfg.DBPass != "" {
		u.User = url.UserPassword(cfg.DBUser, cfg.DBPass)
	} else {
		u.User = url.User(cfg.DBUser)
	}
	return u.String()
}
