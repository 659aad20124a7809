package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/sha256" // SHA-256 hashing for refresh token index keys
	"encoding/hex"  // hex encoding of digests
	"errors"        // error wrapping and matching
	"time"          // timeouts and timestamps

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
	"github.com/google/uuid"       // unique token ids
)

// Token verification failures.  Every other parse problem (bad signature,
// wrong algorithm, malformed input, wrong secret) collapses into
// ErrTokenInvalid so callers only branch on two outcomes.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

const issuer = "auth-session"

// Claims carried by both access and refresh tokens.  The ID (jti) is random
// so two tokens minted for the same user in the same second still differ.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// IssuedToken is a signed JWT together with its timestamps.
type IssuedToken struct {
	Token    string    // the serialized JWT string
	IssuedAt time.Time // UTC issue time (second precision)
	Exp      time.Time // UTC expiration time
}

// TokenIssuer signs and verifies access and refresh tokens.  The two token
// kinds use different secrets so a leak of one cannot forge the other.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenIssuer builds an issuer.  Secrets must be non-empty and distinct;
// the config layer enforces this before the issuer is constructed.
func NewTokenIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// WithClock returns a copy of the issuer that reads time from now.  It is
// used for both signing and expiry validation.
func (i *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	cp := *i
	cp.now = now
	return &cp
}

// RefreshTTL reports the configured refresh token lifetime.
func (i *TokenIssuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssueAccess signs a short-lived access token for username.
func (i *TokenIssuer) IssueAccess(username string) (IssuedToken, error) {
	return i.issue(username, i.accessSecret, i.accessTTL)
}

// IssueRefresh signs a refresh token for username.
func (i *TokenIssuer) IssueRefresh(username string) (IssuedToken, error) {
	return i.issue(username, i.refreshSecret, i.refreshTTL)
}

// VerifyAccess checks signature and expiry against the access secret.
func (i *TokenIssuer) VerifyAccess(raw string) (*Claims, error) {
	return i.Verify(raw, i.accessSecret)
}

// VerifyRefresh checks signature and expiry against the refresh secret.
func (i *TokenIssuer) VerifyRefresh(raw string) (*Claims, error) {
	return i.Verify(raw, i.refreshSecret)
}

// Verify parses raw with secret and returns its claims, or ErrTokenExpired /
// ErrTokenInvalid.
func (i *TokenIssuer) Verify(raw string, secret []byte) (*Claims, error) {
	if raw == "" {
		return nil, ErrTokenInvalid
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !tok.Valid || claims.Username == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (i *TokenIssuer) issue(username string, secret []byte, ttl time.Duration) (IssuedToken, error) {
	now := i.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{
		Token:    signed,
		IssuedAt: claims.IssuedAt.Time,
		Exp:      claims.ExpiresAt.Time,
	}, nil
}

// HashRefreshRaw returns the SHA-256 hash of a refresh token as a hex
// string.  Stores that index accounts by token use it so the key space never
// contains the bearer credential itself.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
