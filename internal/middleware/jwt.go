package middleware // reusable Echo middleware for the auth endpoints

import (
	"net/http" // HTTP status codes and primitives
	"strings"  // string manipulation utilities

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing
)

// Authorizer verifies an access token and returns the username it carries.
type Authorizer interface {
	AuthorizeAccess(token string) (string, error)
}

const bearerPrefix = "Bearer "

// AccessAuth returns an Echo middleware that requires a valid Bearer access
// token.  On success the username is stored under UsernameKey; any missing,
// malformed, forged or expired token is answered with 403.
func AccessAuth(auth Authorizer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization) // expect "Bearer <token>"
			if !strings.HasPrefix(header, bearerPrefix) {
				return c.JSON(http.StatusForbidden, echo.Map{"message": "missing access token"})
			}
			raw := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))

			username, err := auth.AuthorizeAccess(raw)
			if err != nil {
				return c.JSON(http.StatusForbidden, echo.Map{"message": "invalid or expired token"})
			}
			c.Set(UsernameKey, username) // read back by CurrentUsername
			return next(c)
		}
	}
}
