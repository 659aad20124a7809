package middleware // request logging middleware

import (
	"context" // cancellation and deadlines

	"github.com/labstack/echo/v4"                   // Echo framework for HTTP routing
	echomw "github.com/labstack/echo/v4/middleware" // Echo built-in middleware

	"github.com/iliyamo/auth-session/internal/logging" // structured logger
)

// RequestLogger logs one line per request through log.  It runs after the
// handler, so the authenticated username is included when there is one.
// Bodies, cookies and headers are never logged.
func RequestLogger(log logging.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			args := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			if u := CurrentUsername(c); u != "" {
				args = append(args, "username", u)
			}
			ctx := c.Request().Context()
			if v.Error != nil {
				log.Error(ctx, "request", append(args, "err", v.Error)...)
				return nil
			}
			logAt(ctx, log, v.Status, args)
			return nil
		},
	})
}

func logAt(ctx context.Context, log logging.Logger, status int, args []any) {
	if status >= 500 {
		log.Error(ctx, "request", args...)
		return
	}
	log.Info(ctx, "request", args...)
}
