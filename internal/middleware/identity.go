package middleware // middleware provides shared request processing for handlers

import "github.com/labstack/echo/v4" // Echo framework for HTTP routing

// UsernameKey is the echo.Context key AccessAuth stores the caller under.
const UsernameKey = "username"

// CurrentUsername returns the authenticated username, or "" when the request
// did not pass through AccessAuth.
func CurrentUsername(c echo.Context) string {
	if v, ok := c.Get(UsernameKey).(string); ok {
		return v
	}
	return ""
}
