package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths bypass session auth. Internal routes carry their own shared
// secret check.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
}

const internalPrefix = "/internal/"

// AuthSkipper is the Skipper for JWTMiddleware.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Path())
}

func IsPublicPath(path string) bool {
	return publicPaths[path] || strings.HasPrefix(path, internalPrefix)
}
