package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	applogger "StockWatchdog/pkg/logger"
)

// RequestLogging logs one structured line per request.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []applogger.Field{
				applogger.String("method", v.Method),
				applogger.String("uri", v.URI),
				applogger.Int("status", v.Status),
				applogger.Duration("latency_ms", v.Latency),
				applogger.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				l.Warn("http request", append(fields, applogger.Error(v.Error))...)
				return nil
			}
			l.Debug("http request", fields...)
			return nil
		},
	})
}
