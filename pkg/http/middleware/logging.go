package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "SignalForge/pkg/logger"
)

// RequestLogging logs one line per request. Health and metrics checks are
// logged at debug so they do not drown the analyze traffic.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("route", c.Path()),
				applogger.Int("status", res.Status),
				applogger.String("remote_ip", c.RealIP()),
				applogger.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				applogger.Duration("duration_ms", time.Since(start)),
			}
			switch {
			case res.Status >= 500:
				l.Error("http request", fields...)
			case c.Path() == "/healthz" || c.Path() == "/metrics":
				l.Debug("http request", fields...)
			default:
				l.Info("http request", fields...)
			}
			return nil
		}
	}
}
