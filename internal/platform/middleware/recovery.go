package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/wardops/wardops/internal/platform/apperr"
)

// Recovery turns a handler panic into a 500. It logs through the request
// logger set by RequestID so the panic carries the request id; fallback is
// used when no request logger is present.
func Recovery(fallback zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				log := zerolog.Ctx(c.Request().Context())
				if log.GetLevel() == zerolog.Disabled {
					log = &fallback
				}
				stack := make([]byte, 4096)
				stack = stack[:runtime.Stack(stack, false)]
				log.Error().
					Str("method", c.Request().Method).
					Str("route", c.Path()).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", stack).
					Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, apperr.ErrorBody{
					Error: "internal server error",
					Code:  "internal",
				})
			}()
			return next(c)
		}
	}
}
