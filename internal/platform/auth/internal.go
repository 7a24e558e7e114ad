package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// InternalSecretHeader carries the shared secret on service-to-service calls.
const InternalSecretHeader = "X-Internal-Secret"

var (
	ErrInvalidSecret = errors.New("invalid internal secret")
	ErrNoSecret      = errors.New("internal secret not configured")
)

// CheckSecret compares the presented secret in constant time. An empty
// configured secret rejects everything.
func CheckSecret(configured, presented string) error {
	if configured == "" {
		return ErrNoSecret
	}
	if subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) != 1 {
		return ErrInvalidSecret
	}
	return nil
}

// InternalSecret guards internal endpoints called by the classifier service.
func InternalSecret(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := CheckSecret(secret, c.Request().Header.Get(InternalSecretHeader)); err != nil {
				if errors.Is(err, ErrNoSecret) {
					return echo.NewHTTPError(http.StatusServiceUnavailable, "internal endpoint disabled")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}
			return next(c)
		}
	}
}
