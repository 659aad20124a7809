package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/auth-session/internal/logging"
	"github.com/iliyamo/auth-session/internal/model"
	"github.com/iliyamo/auth-session/internal/repository"
	"github.com/iliyamo/auth-session/internal/utils"
)

// memStore is an in-memory AccountStore with per-method error injection.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]model.Account

	findErr   error
	setErr    error
	createErr error
}

func newMemStore() *memStore {
	return &memStore{accounts: map[string]model.Account{}}
}

func (m *memStore) FindByUsername(_ context.Context, username string) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return model.Account{}, m.findErr
	}
	a, ok := m.accounts[username]
	if !ok {
		return model.Account{}, repository.ErrAccountNotFound
	}
	return a, nil
}

func (m *memStore) FindByRefreshToken(_ context.Context, token string) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return model.Account{}, m.findErr
	}
	for _, a := range m.accounts {
		if a.RefreshToken != nil && *a.RefreshToken == token {
			return a, nil
		}
	}
	return model.Account{}, repository.ErrAccountNotFound
}

func (m *memStore) SetRefreshToken(_ context.Context, username string, token *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	a, ok := m.accounts[username]
	if !ok {
		return nil
	}
	if token != nil {
		t := *token
		token = &t
	}
	a.RefreshToken = token
	m.accounts[username] = a
	return nil
}

func (m *memStore) Create(_ context.Context, acct model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.accounts[acct.Username]; ok {
		return repository.ErrUsernameTaken
	}
	acct.RefreshToken = nil
	m.accounts[acct.Username] = acct
	return nil
}

func (m *memStore) stored(username string) *string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[username].RefreshToken
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestIssuer() *utils.TokenIssuer {
	return utils.NewTokenIssuer("access-secret", "refresh-secret", 5*time.Minute, time.Hour)
}

func newTestService(t *testing.T, rotate bool) (*AuthService, *memStore, *recordingPublisher) {
	t.Helper()
	store := newMemStore()
	pub := &recordingPublisher{}
	svc := NewAuthService(store, utils.NewPasswordHasher(bcrypt.MinCost), newTestIssuer(), Options{
		RotateRefresh: rotate,
		Events:        pub,
	})
	return svc, store, pub
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	ctx := context.Background()

	tests := []struct {
		name                string
		user, pass, confirm string
		want                error
	}{
		{"missing username", "", "pw123", "pw123", ErrMissingFields},
		{"missing password", "alice", "", "pw123", ErrMissingFields},
		{"missing confirmation", "alice", "pw123", "", ErrMissingFields},
		{"mismatch", "alice", "pw123", "pw124", ErrPasswordMismatch},
		{"mismatch wins over bad chars", "al!ce", "pw 1", "pw 2", ErrPasswordMismatch},
		{"special in username", "al!ce", "pw123", "pw123", ErrInvalidCharacters},
		{"space in username", "al ice", "pw123", "pw123", ErrInvalidCharacters},
		{"special in password", "alice", "pw-123", "pw-123", ErrInvalidCharacters},
		{"non ascii", "alicé", "pw123", "pw123", ErrInvalidCharacters},
		{"password over bcrypt limit", "bob", strings.Repeat("a", 73), strings.Repeat("a", 73), ErrPasswordTooLong},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Register(ctx, tc.user, tc.pass, tc.confirm)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestRegister_LongestPasswordLogsIn(t *testing.T) {
	svc, store, _ := newTestService(t, true)
	ctx := context.Background()
	pw := strings.Repeat("a", utils.MaxPasswordBytes)

	require.NoError(t, svc.Register(ctx, "bob", pw, pw))
	_, err := store.FindByUsername(ctx, "bob")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "bob", pw)
	assert.NoError(t, err)
}

func TestRegister_CreatesAccountWithoutSession(t *testing.T) {
	svc, store, pub := newTestService(t, true)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "alice", "pw123", "pw123"))

	acct, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, acct.RefreshToken)
	assert.True(t, acct.IsActive)
	assert.False(t, acct.CreatedAt.IsZero())
	assert.NotEqual(t, "pw123", acct.PasswordHash)
	assert.True(t, utils.VerifyPassword(acct.PasswordHash, "pw123"))
	assert.Equal(t, []string{EventUserRegistered}, pub.types())
}

func TestRegister_UsernameTakenLeavesRowUntouched(t *testing.T) {
	svc, store, _ := newTestService(t, true)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "alice", "pw123", "pw123"))
	before, _ := store.FindByUsername(ctx, "alice")

	err := svc.Register(ctx, "alice", "pw456", "pw456")
	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.Equal(t, KindConflict, KindOf(err))

	after, _ := store.FindByUsername(ctx, "alice")
	assert.Equal(t, before, after)
}

func TestRegister_UsernameIsCaseSensitive(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "alice", "pw123", "pw123"))
	require.NoError(t, svc.Register(ctx, "Alice", "pw123", "pw123"))
}

func TestRegister_CreateRaceMapsToConflict(t *testing.T) {
	svc, store, _ := newTestService(t, true)
	store.createErr = repository.ErrUsernameTaken

	err := svc.Register(context.Background(), "alice", "pw123", "pw123")
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestRegister_StoreFailure(t *testing.T) {
	svc, store, _ := newTestService(t, true)
	ctx := context.Background()

	store.findErr = errors.New("connection refused")
	err := svc.Register(ctx, "alice", "pw123", "pw123")
	assert.ErrorIs(t, err, ErrInternal)
	assert.NotContains(t, err.Error(), "connection refused")

	store.findErr = nil
	store.createErr = errors.New("disk full")
	err = svc.Register(ctx, "alice", "pw123", "pw123")
	assert.ErrorIs(t, err, ErrInternal)
}

func TestLogin_Scenario(t *testing.T) {
	svc, store, _ := newTestService(t, true)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "alice", "pw123", "pw123"))
	assert.ErrorIs(t, svc.Register(ctx, "alice", "pw456", "pw456"), ErrUsernameTaken)

	_, err := svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	start := time.Now()
	toks, err := svc.Login(ctx, "alice", "pw123")
	require.NoError(t, err)
	require.NotNil(t, toks.Refresh)
	assert.Equal(t, "alice", toks.Username)
	assert.WithinDuration(t, start.Add(5*time.Minute), toks.Access.Exp, 2*time.Second)

	claims, err := newTestIssuer().VerifyAccess(toks.Access.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)

	stored := store.stored("alice")
	require.NotNil(t, stored)
	assert.Equal(t, toks.Refresh.Token, *stored)
}

func TestLogin_InvalidCredentialsAreIndistinguishable(t *testing.T) {
	svc, store, _ := newTestService(t, true)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "alice", "pw123", "pw123"))

	_, errUnknown := svc.Login(ctx, "bob", "pw123")
	_, errWrong := svc.Login(ctx, "alice", "nope")
	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.Equal(t, errUnknown, errWrong)
	assert.Nil(t, store.stored("alice"))
}

func TestLogin_MissingFields(t *testing.T) {
	svc, _, _ := newTestService(t, true)

	_, err := svc.Login(context.Background(), "alice", "")
	assert.ErrorIs(t, err, ErrMissingFields)
	_, err = svc.Login(context.Background(), "", "pw")
	assert.ErrorIs(t, err, ErrMissingFields)
}

func TestLogin_InactiveAccount(t *testing.T) {
	svc, store, _ := newTestService(t, true)
	ctx := context.Background()

	hash, err := utils.HashPassword("pw123", bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, model.Account{Username: "bob", PasswordHash: hash, IsActive: false}))

	_, err = svc.Login(ctx, "bob", "pw123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_StoreFailures(t *testing.T) {
	svc, store, _ := newTestService(t, true)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "alice", "pw123", "pw123"))

	store.setErr = errors.New("timeout")
	_, err := svc.Login(ctx, "alice", "pw123")
	assert.ErrorIs(t, err, ErrInternal)

	store.setErr = nil
	store.findErr = errors.New("timeout")
	_, err = svc.Login(ctx, "alice", "pw123")
	assert.ErrorIs(t, err, ErrInternal)
}

func TestLoginThenAuthorizeAccess(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "alice", "pw123", "pw123"))

	toks, err := svc.Login(ctx, "alice", "pw123")
	require.NoError(t, err)

	user, err := svc.AuthorizeAccess(toks.Access.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
}

func TestAuthorizeAccess_Rejects(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "alice", "pw123", "pw123"))
	toks, err := svc.Login(ctx, "alice", "pw123")
	require.NoError(t, err)

	expired, err := newTestIssuer().WithClock(func() time.Time { return time.Now().Add(-time.Hour) }).IssueAccess("alice")
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"empty":         "",
		"garbage":       "not-a-jwt",
		"refresh token": toks.Refresh.Token,
		"expired":       expired.Token,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.AuthorizeAccess(raw)
			assert.ErrorIs(t, err, ErrUnauthorized)
			assert.Equal(t, KindAuthentication, KindOf(err))
		})
	}
}

func TestRefresh_Rotates(t *testing.T) {
	svc, store, pub := newTestService(t, true)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "alice", "pw123", "pw123"))
	login, err := svc.Login(ctx, "alice", "pw123")
	require.NoError(t, err)

	out, err := svc.Refresh(ctx, login.Refresh.Token)
	require.NoError(t, err)
	require.NotNil(t, out.Refresh)
	assert.NotEqual(t, login.Refresh.Token, out.Refresh.Token)
	assert.True(t, out.Access.Exp.After(login.Access.IssuedAt))
	assert.Equal(t, out.Refresh.Token, *store.stored("alice"))

	user, err := svc.AuthorizeAccess(out.Access.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	// the rotated-out token no longer matches anything
	_, err = svc.Refresh(ctx, login.Refresh.Token)
	assert.ErrorIs(t, err, ErrNoSuchSession)

	assert.Equal(t, []string{EventUserRegistered, EventSessionStarted, EventSessionRefreshed}, pub.types())
}

func TestRefresh_WithoutRotationKeepsToken(t *testing.T) {
	svc, store, _ := newTestService(t, false)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "alice", "pw123", "pw123"))
	login, err := svc.Login(ctx, "alice", "pw123")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		out, err := svc.Refresh(ctx, login.Refresh.Token)
		require.NoError(t, err)
		assert.Nil(t, out.Refresh)
		assert.NotEmpty(t, out.Access.Token)
	}
	assert.Equal(t, login.Refresh.Token, *store.stored("alice"))
}

func TestRefresh_LogsAtDebugLevel(t *testing.T) {
	var dev, prod bytes.Buffer
	for _, tc := range []struct {
		env string
		buf *bytes.Buffer
	}{{"dev", &dev}, {"prod", &prod}} {
		svc := NewAuthService(newMemStore(), utils.NewPasswordHasher(bcrypt.MinCost), newTestIssuer(), Options{
			RotateRefresh: true,
			Logger:        logging.NewWithWriter(tc.env, tc.buf),
		})
		ctx := context.Background()
		require.NoError(t, svc.Register(ctx, "alice", "pw123", "pw123"))
		login, err := svc.Login(ctx, "alice", "pw123")
		require.NoError(t, err)
		_, err = svc.Refresh(ctx, login.Refresh.Token)
		require.NoError(t, err)
	}

	assert.Contains(t, dev.String(), "session refreshed")
	assert.Contains(t, dev.String(), "rotated=true")
	assert.NotContains(t, prod.String(), "session refreshed")
	assert.Contains(t, prod.String(), "session started")
}

func TestRefresh_MissingToken(t *testing.T) {
	svc, _, _ := newTestService(t, true)

	_, err := svc.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingRefreshToken)
}

func TestRefresh_SecondLoginInvalidatesFirst(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "alice", "pw123", "pw123"))

	first, err := svc.Login(ctx, "alice", "pw123")
	require.NoError(t, err)
	second, err := svc.Login(ctx, "alice", "pw123")
	require.NoError(t, err)
	assert.NotEqual(t, first.Refresh.Token, second.Refresh.Token)

	_, err = svc.Refresh(ctx, first.Refresh.Token)
	assert.ErrorIs(t, err, ErrNoSuchSession)

	_, err = svc.Refresh(ctx, second.Refresh.Token)
	assert.NoError(t, err)
}

func TestRefresh_ExpiredTokenIsClearedEvenWhenStored(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{}
	hasher := utils.NewPasswordHasher(bcrypt.MinCost)
	past := newTestIssuer().WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	ctx := context.Background()

	old := NewAuthService(store, hasher, past, Options{RotateRefresh: true})
	require.NoError(t, old.Register(ctx, "alice", "pw123", "pw123"))
	login, err := old.Login(ctx, "alice", "pw123")
	require.NoError(t, err)
	require.NotNil(t, store.stored("alice"))

	svc := NewAuthService(store, hasher, newTestIssuer(), Options{RotateRefresh: true, Events: pub})
	_, err = svc.Refresh(ctx, login.Refresh.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Nil(t, store.stored("alice"))
	assert.Equal(t, []string{EventSessionExpired}, pub.types())

	_, err = svc.Refresh(ctx, login.Refresh.Token)
	assert.ErrorIs(t, err, ErrNoSuchSession)
}

func TestRefresh_ForgedTokenForOtherUserIsCleared(t *testing.T) {
	svc, store, _ := newTestService(t, true)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "alice", "pw123", "pw123"))

	bobs, err := newTestIssuer().IssueRefresh("bob")
	require.NoError(t, err)
	require.NoError(t, store.SetRefreshToken(ctx, "alice", &bobs.Token))

	_, err = svc.Refresh(ctx, bobs.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Nil(t, store.stored("alice"))
}

func TestRefresh_StoreFailures(t *testing.T) {
	svc, store, _ := newTestService(t, true)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "alice", "pw123", "pw123"))
	login, err := svc.Login(ctx, "alice", "pw123")
	require.NoError(t, err)

	store.setErr = errors.New("read-only replica")
	_, err = svc.Refresh(ctx, login.Refresh.Token)
	assert.ErrorIs(t, err, ErrInternal)

	store.setErr = nil
	store.findErr = errors.New("down")
	_, err = svc.Refresh(ctx, login.Refresh.Token)
	assert.ErrorIs(t, err, ErrInternal)
}

func TestLogout_IsIdempotent(t *testing.T) {
	svc, store, pub := newTestService(t, true)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "alice", "pw123", "pw123"))
	login, err := svc.Login(ctx, "alice", "pw123")
	require.NoError(t, err)

	svc.Logout(ctx, login.Refresh.Token)
	assert.Nil(t, store.stored("alice"))

	svc.Logout(ctx, login.Refresh.Token)
	svc.Logout(ctx, "")
	svc.Logout(ctx, "unknown")
	assert.Nil(t, store.stored("alice"))

	_, err = svc.Refresh(ctx, login.Refresh.Token)
	assert.ErrorIs(t, err, ErrNoSuchSession)

	assert.Equal(t, []string{EventUserRegistered, EventSessionStarted, EventSessionRevoked}, pub.types())
}

func TestLogout_StoreFailureIsSwallowed(t *testing.T) {
	svc, store, _ := newTestService(t, true)
	store.findErr = errors.New("down")

	assert.NotPanics(t, func() { svc.Logout(context.Background(), "some-token") })
}

func TestPublishFailureDoesNotFailTransition(t *testing.T) {
	svc, store, pub := newTestService(t, true)
	pub.err = errors.New("broker unavailable")
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "alice", "pw123", "pw123"))
	_, err := svc.Login(ctx, "alice", "pw123")
	require.NoError(t, err)
	assert.NotNil(t, store.stored("alice"))
	for _, ev := range pub.events {
		assert.Equal(t, "alice", ev.Username)
		assert.False(t, ev.OccurredAt.IsZero())
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindValidation, KindOf(ErrMissingFields))
	assert.Equal(t, "conflict", KindConflict.String())
}
