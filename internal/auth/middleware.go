package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/belgrano/ticketera/internal/domain"
	"github.com/belgrano/ticketera/internal/repository"
	apperrors "github.com/belgrano/ticketera/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	Role     domain.Role
	Identity string
	// Courier is resolved for flota principals; nil for admins.
	Courier *domain.Courier
}

// Middleware validates bearer tokens and loads principals. Flota identities
// must resolve to an active courier account.
type Middleware struct {
	tokens   *TokenManager
	couriers repository.CourierRepository
}

// NewMiddleware constructs middleware.
func NewMiddleware(tokens *TokenManager, couriers repository.CourierRepository) *Middleware {
	return &Middleware{tokens: tokens, couriers: couriers}
}

// Handle enforces authentication for protected routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	principal := &Principal{Role: claims.Role, Identity: claims.Identity}

	if claims.Role == domain.RoleFlota {
		courier, err := m.couriers.GetByID(c.UserContext(), claims.Identity)
		if err != nil {
			if errors.Is(err, repository.ErrCourierNotFound) {
				return apperrors.NewUnauthorized("courier account not found")
			}
			return apperrors.MapError(err)
		}
		if !courier.Active {
			return apperrors.NewUnauthorized("courier account disabled")
		}
		principal.Courier = courier
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
