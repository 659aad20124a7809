package router // package router registers the HTTP routes of the auth API

import (
	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/auth-session/internal/handler"    // HTTP handlers
	"github.com/iliyamo/auth-session/internal/middleware" // auth middleware
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the session endpoints under /api.  Register, login,
// refresh and logout are public; the refresh token travels in a cookie.
// /api/secret requires a Bearer access token checked by authz.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, authz middleware.Authorizer) {
	g := e.Group("/api")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	g.GET("/secret", a.Secret, middleware.AccessAuth(authz))
}
