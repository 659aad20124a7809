package repository // repository for accounts kept in Redis

import (
	"context" // cancellation and deadlines
	"errors"  // error wrapping and matching
	"fmt"     // formatted errors and strings
	"time"    // timeouts and timestamps

	"github.com/redis/go-redis/v9" // Redis client

	"github.com/iliyamo/auth-session/internal/model" // domain models
	"github.com/iliyamo/auth-session/internal/utils" // helper functions (hashing, token issuing)
)

// RedisAccountStore keeps each account in a hash at <prefix>:account:<username>
// and indexes the active refresh token at <prefix>:refresh:<sha256(token)>.
// Lookups confirm the index against the hash before returning.
type RedisAccountStore struct {
	rdb    *redis.Client
	prefix string
}

const (
	fieldPasswordHash = "password_hash"
	fieldRefreshToken = "refresh_token"
	fieldIsActive     = "is_active"
	fieldCreatedAt    = "created_at"
)

// createScript inserts the account hash only when the key does not exist yet.
var createScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 1 then
		return 0
	end
	redis.call('HSET', KEYS[1], 'password_hash', ARGV[1], 'is_active', ARGV[2], 'created_at', ARGV[3])
	return 1
`)

func NewRedisAccountStore(rdb *redis.Client, prefix string) *RedisAccountStore {
	if prefix == "" {
		prefix = "auth"
	}
	return &RedisAccountStore{rdb: rdb, prefix: prefix}
}

func (s *RedisAccountStore) accountKey(username string) string {
	return s.prefix + ":account:" + username
}

func (s *RedisAccountStore) refreshKey(token string) string {
	return s.prefix + ":refresh:" + utils.HashRefreshRaw(token)
}

func (s *RedisAccountStore) FindByUsername(ctx context.Context, username string) (model.Account, error) {
	vals, err := s.rdb.HGetAll(ctx, s.accountKey(username)).Result()
	if err != nil {
		return model.Account{}, fmt.Errorf("find account by username: %w", err)
	}
	if len(vals) == 0 {
		return model.Account{}, ErrAccountNotFound
	}
	return decodeAccount(username, vals), nil
}

func (s *RedisAccountStore) FindByRefreshToken(ctx context.Context, token string) (model.Account, error) {
	username, err := s.rdb.Get(ctx, s.refreshKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Account{}, ErrAccountNotFound
		}
		return model.Account{}, fmt.Errorf("find account by refresh token: %w", err)
	}
	acct, err := s.FindByUsername(ctx, username)
	if err != nil {
		return model.Account{}, err
	}
	if acct.RefreshToken == nil || *acct.RefreshToken != token {
		return model.Account{}, ErrAccountNotFound
	}
	return acct, nil
}

// maxTxRetries bounds optimistic retries when a concurrent writer touches the
// watched account key.
const maxTxRetries = 100

// SetRefreshToken replaces the stored token and moves the index entry.  It
// is a no-op for unknown usernames, matching an UPDATE that hits no rows.
// The account key is watched, so a concurrent login forces a retry instead of
// leaving the losing token's index entry behind.
func (s *RedisAccountStore) SetRefreshToken(ctx context.Context, username string, token *string) error {
	key := s.accountKey(username)
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 { // unknown account
			return nil
		}
		old, err := tx.HGet(ctx, key, fieldRefreshToken).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if old != "" {
				pipe.Del(ctx, s.refreshKey(old))
			}
			if token == nil {
				pipe.HDel(ctx, key, fieldRefreshToken)
				return nil
			}
			pipe.HSet(ctx, key, fieldRefreshToken, *token)
			pipe.Set(ctx, s.refreshKey(*token), username, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) { // account changed under us
			continue
		}
		if err != nil {
			return fmt.Errorf("set refresh token: %w", err)
		}
		return nil
	}
	return fmt.Errorf("set refresh token: %w", redis.TxFailedErr)
}

func (s *RedisAccountStore) Create(ctx context.Context, acct model.Account) error {
	created := acct.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	active := "0"
	if acct.IsActive {
		active = "1"
	}
	ok, err := createScript.Run(ctx, s.rdb, []string{s.accountKey(acct.Username)},
		acct.PasswordHash, active, created.Format(time.RFC3339Nano)).Int()
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	if ok == 0 {
		return ErrUsernameTaken
	}
	return nil
}

func decodeAccount(username string, vals map[string]string) model.Account {
	acct := model.Account{
		Username:     username,
		PasswordHash: vals[fieldPasswordHash],
		IsActive:     vals[fieldIsActive] != "0",
	}
	if rt, ok := vals[fieldRefreshToken]; ok && rt != "" {
		acct.RefreshToken = &rt
	}
	if ts, err := time.Parse(time.RFC3339Nano, vals[fieldCreatedAt]); err == nil {
		acct.CreatedAt = ts
	}
	return acct
}
