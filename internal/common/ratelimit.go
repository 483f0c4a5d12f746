package common

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// UploadRateLimiter limits requests per client IP. A rate of zero disables limiting.
func UploadRateLimiter(ratePerSecond float64) echo.MiddlewareFunc {
	if ratePerSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	burst := max(1, int(ratePerSecond*3))
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "could not identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			slog.Warn("RateLimiter: upload rejected", "client", identifier, "path", c.Path())
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many uploads, please wait a moment")
		},
	})
}
