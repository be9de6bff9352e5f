package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ticketdesk/ticketdesk/internal/domain"
	apperrors "github.com/ticketdesk/ticketdesk/pkg/util"
)

// RequireRole gates a route on an exact role match. Authentication is
// checked before authorization: a missing principal is unauthenticated,
// a principal with the wrong role is forbidden.
func RequireRole(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthenticated(unauthenticatedMessage)
		}
		if user.Role != role {
			return apperrors.NewForbidden("insufficient permissions")
		}
		return c.Next()
	}
}
