package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/hrishi0102/patchpay/internal/database/models"
	"github.com/hrishi0102/patchpay/internal/database/stores"
)

// Key under which the authenticated user is stored on the request context.
const UserKey = "user"

// Protect verifies the bearer token and loads the user onto the request
// context for downstream handlers.
func Protect(s *stores.Stores, secretKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		splits := strings.Split(authHeader, " ")
		if len(splits) != 2 || splits[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Not authorized, no token provided",
			})
		}

		claims, err := VerifyToken(splits[1], secretKey)
		if err != nil {
			log.Debugf("token rejected: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Not authorized, token failed",
			})
		}

		user, err := s.Users.GetByID(claims.UserID)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Not authorized, token failed",
			})
		}

		c.Locals(UserKey, user)
		return c.Next()
	}
}

// CurrentUser returns the user loaded by Protect, or nil.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(UserKey).(*models.User)
	return user
}

// RequireCompany allows only users with the company role.
func RequireCompany() fiber.Handler {
	return requireRole(models.RoleCompany, "Not authorized, company access required")
}

// RequireResearcher allows only users with the researcher role.
func RequireResearcher() fiber.Handler {
	return requireRole(models.RoleResearcher, "Not authorized, researcher access required")
}

func requireRole(role, message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if user := CurrentUser(c); user == nil || user.Role != role {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": message})
		}
		return c.Next()
	}
}
