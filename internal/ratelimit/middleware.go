package ratelimit

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Middleware returns an Echo middleware enforcing the preset for the matched
// route, keyed by the resolved client identifier.
func Middleware(store *Store, p Preset) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := ClientIdentifier(c.Request())
			res, err := store.Limit(id, c.Path(), p)
			SetHeaders(c.Response().Header(), res)

			var le *LimitError
			if errors.As(err, &le) {
				c.Response().Header().Set("Retry-After",
					strconv.Itoa(int(res.ResetIn.Seconds())+1))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
