package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/belgrano/ticketera/pkg/util/errorutil"
)

// RequireAPIKey guards the ingestion endpoint with the pre-shared upstream
// key. The configured value may be the key itself or a bcrypt hash of it, so
// deployments never have to keep the plaintext in the environment.
func RequireAPIKey(configured string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if configured == "" {
			return apperrors.NewUnauthorized("ingestion is not configured")
		}
		presented := c.Get("X-API-Key")
		if presented == "" {
			return apperrors.NewUnauthorized("missing API key")
		}
		if !keyMatches(configured, presented) {
			return apperrors.NewUnauthorized("invalid API key")
		}
		return c.Next()
	}
}

func keyMatches(configured, presented string) bool {
	if strings.HasPrefix(configured, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}
