package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ticketdesk/ticketdesk/internal/domain"
	"github.com/ticketdesk/ticketdesk/internal/observability"
	apperrors "github.com/ticketdesk/ticketdesk/pkg/util"
)

const principalKey = "auth_principal"

// Every authentication failure, from a missing header to an expired
// token to a deleted account, produces this one message. The true cause
// is logged and counted but never returned to the caller.
const unauthenticatedMessage = "could not validate credentials"

// Middleware validates bearer tokens and loads the authenticated user.
type Middleware struct {
	resolver *Resolver
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewMiddleware constructs the authentication middleware.
func NewMiddleware(resolver *Resolver, logger *zap.Logger, metrics *observability.Metrics) *Middleware {
	return &Middleware{resolver: resolver, logger: logger, metrics: metrics}
}

// Handle enforces authentication for protected routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return m.reject(c, "missing_header", nil)
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return m.reject(c, "invalid_header", nil)
	}

	user, err := m.resolver.Resolve(c.UserContext(), parts[1])
	if err != nil {
		switch {
		case errors.Is(err, ErrMalformedToken):
			return m.reject(c, "malformed_token", err)
		case errors.Is(err, ErrInvalidSignature):
			return m.reject(c, "invalid_signature", err)
		case errors.Is(err, ErrTokenExpired):
			return m.reject(c, "token_expired", err)
		case errors.Is(err, ErrUnknownSubject):
			return m.reject(c, "unknown_subject", err)
		default:
			return apperrors.ToDomainError(err)
		}
	}

	c.Locals(principalKey, user)
	return c.Next()
}

func (m *Middleware) reject(c *fiber.Ctx, kind string, err error) error {
	if m.metrics != nil {
		m.metrics.RecordAuthFailure(kind)
	}
	if m.logger != nil {
		m.logger.Debug("authentication rejected",
			zap.String("kind", kind),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return apperrors.NewUnauthenticated(unauthenticatedMessage)
}

// PrincipalFromContext retrieves the authenticated user.
func PrincipalFromContext(c *fiber.Ctx) (*domain.User, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	user, ok := val.(*domain.User)
	return user, ok
}
