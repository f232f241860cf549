package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	applogger "StockWatchdog/pkg/logger"
)

// Recover logs handler panics with their stack; Echo's error handler answers 500.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return echomw.RecoverWithConfig(echomw.RecoverConfig{
		StackSize: 4 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			l.Error("panic recovered",
				applogger.String("path", c.Path()),
				applogger.Error(err),
				applogger.String("stack", string(stack)),
			)
			return err
		},
	})
}
