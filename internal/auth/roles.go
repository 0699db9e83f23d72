package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/belgrano/ticketera/internal/domain"
	apperrors "github.com/belgrano/ticketera/pkg/util/errorutil"
)

// RequireAdmin ensures the principal is an administrator.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.Role != domain.RoleAdmin {
			return apperrors.NewForbidden("administrator role required")
		}
		return c.Next()
	}
}

// RequireAnyRole ensures the caller is authenticated as admin or flota.
func RequireAnyRole() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}
