package config // Redis client construction from the environment

// This file defines the Redis client constructor.  Redis backs the account
// store when STORE_DRIVER=redis.  Connection parameters are read from the
// environment, separately from Parse, because they only matter for that driver.

import (
	"context"    // cancellation and deadlines
	"crypto/tls" // TLS config for managed Redis
	"fmt"        // formatted errors and strings
	"os"         // environment and file access
	"strconv"    // strconv converts strings to other types
	"strings"    // string manipulation utilities
	"time"       // timeouts and timestamps

	"github.com/redis/go-redis/v9" // Redis client
)

// NewRedisClient instantiates a Redis client using environment variables.
// Supported variables are:
//
//	REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//	REDIS_ADDR – host:port shorthand (host/port take precedence when both are set)
//	REDIS_PASSWORD – optional password
//	REDIS_DB – database number (default 0)
//	REDIS_TLS – enable TLS when "true" or "1"
//
// Unlike a cache, the account store cannot degrade gracefully, so an
// unreachable server is reported as an error.
func NewRedisClient(ctx context.Context) (*redis.Client, error) {
	host := os.Getenv("REDIS_HOST")
	port := os.Getenv("REDIS_PORT")
	addr := os.Getenv("REDIS_ADDR")
	if host != "" && port != "" {
		addr = host + ":" + port
	}
	if addr == "" {
		addr = "localhost:6379"
	}
	dbNum := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		n, err := strconv.Atoi(dbStr)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB %q: %w", dbStr, err)
		}
		dbNum = n
	}
	var tlsConf *tls.Config
	if tlsEnv := os.Getenv("REDIS_TLS"); strings.EqualFold(tlsEnv, "true") || tlsEnv == "1" {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      addr,
		Password:  os.Getenv("REDIS_PASSWORD"),
		DB:        dbNum,
		TLSConfig: tlsConf,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}
