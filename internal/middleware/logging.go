package middleware

import (
	"fmt"

	"qtc-marketplace/internal/logger"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// RequestContext puts the request id on the context logger; run it after echo's RequestID.
func RequestContext(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = c.Request().Header.Get(echo.HeaderXRequestID)
			}
			req := c.Request()
			c.SetRequest(req.WithContext(log.WithRequestID(req.Context(), requestID)))
			return next(c)
		}
	}
}

// RequestLogger writes one structured line per request.
func RequestLogger(log *logger.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		HandleError:  true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := map[string]any{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"remote_ip":  v.RemoteIP,
			}
			if v.Error != nil {
				fields["error"] = v.Error.Error()
			}
			log.Fields(c.Request().Context(), fmt.Sprintf("%s %s", v.Method, v.URI), fields)
			return nil
		},
	})
}
