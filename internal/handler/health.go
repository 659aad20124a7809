package handler // handler defines http handlers

import (
	"net/http" // HTTP status codes and primitives

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing
)

// Health is the liveness check.  It does not touch the account store.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
