package handler // declare the package name; contains HTTP handlers

import (
	"context"  // cancellation and deadlines
	"errors"   // error wrapping and matching
	"net/http" // HTTP status codes and primitives
	"time"     // timeouts and timestamps

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/auth-session/internal/middleware" // auth middleware
	"github.com/iliyamo/auth-session/internal/service"    // auth state machine
)

// RefreshCookie is the httpOnly cookie carrying the refresh token.
const RefreshCookie = "refreshToken"

// AuthHandler maps the auth endpoints onto the session service.
type AuthHandler struct {
	Svc          *service.AuthService
	CookieSecure bool
}

func NewAuthHandler(svc *service.AuthService, cookieSecure bool) *AuthHandler {
	return &AuthHandler{Svc: svc, CookieSecure: cookieSecure}
}

// ----- DTOs -----

type registerReq struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	CfmPassword string `json:"cfmPassword"`
}
type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
type messageResp struct {
	Message string `json:"message"`
}
type tokenResp struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// Register: create an account with no session.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, messageResp{"invalid request body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Svc.Register(ctx, req.Username, req.Password, req.CfmPassword); err != nil {
		status := http.StatusBadRequest // validation and conflict share 400
		if service.KindOf(err) == service.KindInternal {
			status = http.StatusInternalServerError
		}
		return fail(c, status, err)
	}
	return c.JSON(http.StatusOK, messageResp{"registration successful"})
}

// Login: verify credentials, return the access token and set the refresh cookie.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, messageResp{"invalid request body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	toks, err := h.Svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingFields):
			return fail(c, http.StatusBadRequest, err)
		case errors.Is(err, service.ErrInvalidCredentials):
			return fail(c, http.StatusUnauthorized, err)
		}
		return fail(c, http.StatusInternalServerError, err)
	}

	h.setRefreshCookie(c, toks.Refresh.Token) // refresh travels only in the cookie
	return c.JSON(http.StatusOK, tokenResp{Message: "login successful", Token: toks.Access.Token})
}

// Refresh: exchange the refresh cookie for a new access token, rotating the
// cookie when the service rotated the token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var raw string
	if ck, err := c.Cookie(RefreshCookie); err == nil {
		raw = ck.Value // empty cookie reads the same as a missing one
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	toks, err := h.Svc.Refresh(ctx, raw)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingRefreshToken):
			return fail(c, http.StatusUnauthorized, err)
		case errors.Is(err, service.ErrSessionExpired):
			h.clearRefreshCookie(c) // the stored token is gone, drop the client copy too
			return fail(c, http.StatusUnauthorized, err)
		case errors.Is(err, service.ErrNoSuchSession):
			return fail(c, http.StatusForbidden, err)
		}
		return fail(c, http.StatusInternalServerError, err)
	}

	if toks.Refresh != nil { // rotated
		h.setRefreshCookie(c, toks.Refresh.Token)
	}
	return c.JSON(http.StatusOK, tokenResp{Message: "access token refreshed", Token: toks.Access.Token})
}

// Logout: always 200, always clears the cookie.
func (h *AuthHandler) Logout(c echo.Context) error {
	var raw string
	if ck, err := c.Cookie(RefreshCookie); err == nil {
		raw = ck.Value
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	h.Svc.Logout(ctx, raw)
	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, messageResp{"logged out"})
}

// Secret: the protected resource, reachable only through AccessAuth.
func (h *AuthHandler) Secret(c echo.Context) error {
	username := middleware.CurrentUsername(c)
	return c.JSON(http.StatusOK, messageResp{"Hello " + username + ", this is the secret area"})
}

func (h *AuthHandler) setRefreshCookie(c echo.Context, token string) {
	ttl := h.Svc.RefreshTTL()
	c.SetCookie(&http.Cookie{
		Name:     RefreshCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     RefreshCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // delete now
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// fail writes the client-safe message of a service error.
func fail(c echo.Context, status int, err error) error {
	var se *service.Error
	if !errors.As(err, &se) {
		se = service.ErrInternal
	}
	return c.JSON(status, messageResp{se.Message})
}
