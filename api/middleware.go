package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"taskman/domain"
)

const identityContextKey = "taskman.identity"

// Authenticate verifies the bearer credential on every request and stores
// the resulting identity in the echo context. A missing credential is 401;
// a credential that fails verification is 403.
func Authenticate(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ident, err := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				if errors.Is(err, errMissingAuthorization) {
					return c.JSON(http.StatusUnauthorized, errorResponse{Error: "access token required"})
				}
				return c.JSON(http.StatusForbidden, errorResponse{Error: "invalid or expired token"})
			}
			c.Set(identityContextKey, ident)
			return next(c)
		}
	}
}

// RequireRoles denies the request unless the authenticated identity carries
// one of the allowed roles. Ownership is not considered here; row-level
// checks happen in the task handlers.
func RequireRoles(allowed ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ident, ok := IdentityFrom(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: "access token required"})
			}
			if !roleAllowed(ident.Role, allowed) {
				return c.JSON(http.StatusForbidden, errorResponse{Error: "access denied"})
			}
			return next(c)
		}
	}
}

// IdentityFrom returns the identity placed in the context by Authenticate.
func IdentityFrom(c echo.Context) (Identity, bool) {
	ident, ok := c.Get(identityContextKey).(Identity)
	return ident, ok
}

func roleAllowed(role domain.Role, allowed []domain.Role) bool {
	for _, r := range allowed {
		if role == r {
			return true
		}
	}
	return false
}
