// Package service implements the authentication session state machine:
// register, login, refresh, logout and access authorization.  Accounts move
// between three observable states (unregistered, registered without a
// session, registered with an active session) solely through the refresh
// token stored for them.
package service // auth session state machine

import (
	"context" // cancellation and deadlines
	"errors"  // error wrapping and matching
	"sync"    // locking and one-time init
	"time"    // timeouts and timestamps

	validation "github.com/go-ozzo/ozzo-validation" // input validation rules
	"github.com/go-ozzo/ozzo-validation/is"         // character-class rules

	"github.com/iliyamo/auth-session/internal/logging"    // structured logger
	"github.com/iliyamo/auth-session/internal/model"      // domain models
	"github.com/iliyamo/auth-session/internal/repository" // account stores
	"github.com/iliyamo/auth-session/internal/utils"      // helper functions (hashing, token issuing)
)

// Options configures an AuthService.  Zero values are usable: no rotation,
// events dropped, logs discarded.
type Options struct {
	RotateRefresh bool
	Events        EventPublisher
	Logger        logging.Logger
}

type AuthService struct {
	store  repository.AccountStore
	hasher utils.PasswordHasher
	tokens *utils.TokenIssuer
	rotate bool
	events EventPublisher
	log    logging.Logger
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(store repository.AccountStore, hasher utils.PasswordHasher, tokens *utils.TokenIssuer, opts Options) *AuthService {
	s := &AuthService{
		store:  store,
		hasher: hasher,
		tokens: tokens,
		rotate: opts.RotateRefresh,
		events: opts.Events,
		log:    opts.Logger,
		now:    time.Now,
	}
	if s.events == nil {
		s.events = NoopPublisher{}
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	return s
}

// Tokens is the credential material handed back to the client.  Refresh is
// nil when a refresh call did not rotate.
type Tokens struct {
	Username string
	Access   utils.IssuedToken
	Refresh  *utils.IssuedToken
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Username        string
	Password        string
	ConfirmPassword string
}

// Validate reports the first failing rule in order: presence, confirmation,
// character class, password length.
func (in RegisterInput) Validate() error {
	if err := validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.Required),
		validation.Field(&in.Password, validation.Required),
		validation.Field(&in.ConfirmPassword, validation.Required),
	); err != nil {
		return ErrMissingFields
	}
	if in.Password != in.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if err := validation.ValidateStruct(&in,
		validation.Field(&in.Username, is.Alphanumeric),
		validation.Field(&in.Password, is.Alphanumeric),
	); err != nil {
		return ErrInvalidCharacters
	}
	// alphanumeric input is single-byte, so runes and bytes agree here
	if err := validation.Validate(in.Password, validation.Length(1, utils.MaxPasswordBytes)); err != nil {
		return ErrPasswordTooLong
	}
	return nil
}

// Register creates an account with no active session.
func (s *AuthService) Register(ctx context.Context, username, password, confirmPassword string) error {
	in := RegisterInput{Username: username, Password: password, ConfirmPassword: confirmPassword}
	if err := in.Validate(); err != nil {
		return err
	}

	_, err := s.store.FindByUsername(ctx, username)
	switch {
	case err == nil:
		return ErrUsernameTaken
	case !errors.Is(err, repository.ErrAccountNotFound):
		return s.internal(ctx, "register: lookup", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return s.internal(ctx, "register: hash password", err)
	}

	err = s.store.Create(ctx, model.Account{
		Username:     username,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	})
	if errors.Is(err, repository.ErrUsernameTaken) {
		return ErrUsernameTaken
	}
	if err != nil {
		return s.internal(ctx, "register: create", err)
	}

	s.log.Info(ctx, "account registered", "username", username)
	s.publish(ctx, EventUserRegistered, username)
	return nil
}

// Login checks the password and starts a new session, replacing any refresh
// token stored for the account.
func (s *AuthService) Login(ctx context.Context, username, password string) (Tokens, error) {
	if username == "" || password == "" {
		return Tokens{}, ErrMissingFields
	}

	acct, err := s.store.FindByUsername(ctx, username)
	if errors.Is(err, repository.ErrAccountNotFound) {
		// one bcrypt compare on every failure path
		s.hasher.Verify(password, s.dummy())
		return Tokens{}, ErrInvalidCredentials
	}
	if err != nil {
		return Tokens{}, s.internal(ctx, "login: lookup", err)
	}
	if !s.hasher.Verify(password, acct.PasswordHash) || !acct.IsActive {
		return Tokens{}, ErrInvalidCredentials
	}

	access, err := s.tokens.IssueAccess(acct.Username)
	if err != nil {
		return Tokens{}, s.internal(ctx, "login: issue access token", err)
	}
	refresh, err := s.tokens.IssueRefresh(acct.Username)
	if err != nil {
		return Tokens{}, s.internal(ctx, "login: issue refresh token", err)
	}
	if err := s.store.SetRefreshToken(ctx, acct.Username, &refresh.Token); err != nil {
		return Tokens{}, s.internal(ctx, "login: store refresh token", err)
	}

	s.log.Info(ctx, "session started", "username", acct.Username, "replaced_session", acct.HasSession())
	s.publish(ctx, EventSessionStarted, acct.Username)
	return Tokens{Username: acct.Username, Access: access, Refresh: &refresh}, nil
}

// Refresh exchanges the stored refresh token for a new access token.  The
// presented token must equal the stored one and still verify; a stored token
// that no longer verifies is cleared so the account has to log in again.
func (s *AuthService) Refresh(ctx context.Context, token string) (Tokens, error) {
	if token == "" {
		return Tokens{}, ErrMissingRefreshToken
	}

	acct, err := s.store.FindByRefreshToken(ctx, token)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return Tokens{}, ErrNoSuchSession
	}
	if err != nil {
		return Tokens{}, s.internal(ctx, "refresh: lookup", err)
	}

	claims, err := s.tokens.VerifyRefresh(token)
	if err != nil || claims.Username != acct.Username {
		if err := s.store.SetRefreshToken(ctx, acct.Username, nil); err != nil {
			return Tokens{}, s.internal(ctx, "refresh: clear refresh token", err)
		}
		s.log.Info(ctx, "session expired", "username", acct.Username)
		s.publish(ctx, EventSessionExpired, acct.Username)
		return Tokens{}, ErrSessionExpired
	}

	access, err := s.tokens.IssueAccess(acct.Username)
	if err != nil {
		return Tokens{}, s.internal(ctx, "refresh: issue access token", err)
	}
	out := Tokens{Username: acct.Username, Access: access}

	if s.rotate {
		next, err := s.tokens.IssueRefresh(acct.Username)
		if err != nil {
			return Tokens{}, s.internal(ctx, "refresh: issue refresh token", err)
		}
		if err := s.store.SetRefreshToken(ctx, acct.Username, &next.Token); err != nil {
			return Tokens{}, s.internal(ctx, "refresh: store refresh token", err)
		}
		out.Refresh = &next
	}

	s.log.Debug(ctx, "session refreshed", "username", acct.Username, "rotated", out.Refresh != nil)
	s.publish(ctx, EventSessionRefreshed, acct.Username)
	return out, nil
}

// Logout clears the session owning token, if any.  It always succeeds from
// the caller's point of view; store failures are only logged.
func (s *AuthService) Logout(ctx context.Context, token string) {
	if token == "" {
		return
	}
	acct, err := s.store.FindByRefreshToken(ctx, token)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return
	}
	if err != nil {
		s.log.Error(ctx, "logout: lookup failed", "err", err)
		return
	}
	if err := s.store.SetRefreshToken(ctx, acct.Username, nil); err != nil {
		s.log.Error(ctx, "logout: clear refresh token failed", "username", acct.Username, "err", err)
		return
	}
	s.log.Info(ctx, "session revoked", "username", acct.Username)
	s.publish(ctx, EventSessionRevoked, acct.Username)
}

// AuthorizeAccess verifies an access token without touching the store and
// returns the username it was issued to.
func (s *AuthService) AuthorizeAccess(token string) (string, error) {
	claims, err := s.tokens.VerifyAccess(token)
	if err != nil {
		return "", ErrUnauthorized
	}
	return claims.Username, nil
}

// RefreshTTL is the lifetime of refresh tokens, used for the cookie max-age.
func (s *AuthService) RefreshTTL() time.Duration { return s.tokens.RefreshTTL() }

func (s *AuthService) internal(ctx context.Context, op string, err error) error {
	s.log.Error(ctx, op+" failed", "err", err)
	return ErrInternal
}

func (s *AuthService) publish(ctx context.Context, typ, username string) {
	ev := Event{Type: typ, Username: username, OccurredAt: s.now().UTC()}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn(ctx, "publish auth event failed", "type", typ, "err", err)
	}
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("dummy-password")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}
