package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ticketdesk/ticketdesk/internal/auth"
	"github.com/ticketdesk/ticketdesk/internal/domain"
	"github.com/ticketdesk/ticketdesk/internal/events"
	"github.com/ticketdesk/ticketdesk/internal/repository"
	apperrors "github.com/ticketdesk/ticketdesk/pkg/util"
)

// Unknown username and wrong password collapse into this one message so
// the response never confirms whether an account exists.
const invalidCredentialsMessage = "incorrect username or password"

// LoginLimiter bounds failed login attempts per username. Implemented
// by LoginThrottle; a nil limiter disables throttling.
type LoginLimiter interface {
	Allowed(ctx context.Context, username string) bool
	RecordFailure(ctx context.Context, username string)
	Reset(ctx context.Context, username string)
}

// AuthService coordinates registration and login flows.
type AuthService struct {
	users      repository.UserRepository
	tokens     *auth.TokenManager
	throttle   LoginLimiter
	dispatcher events.Dispatcher
	logger     *zap.Logger
	bcryptCost int
}

// AuthDependencies bundles collaborators for the auth service.
type AuthDependencies struct {
	UserRepo   repository.UserRepository
	Tokens     *auth.TokenManager
	Throttle   LoginLimiter
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	BcryptCost int
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	return &AuthService{
		users:      deps.UserRepo,
		tokens:     deps.Tokens,
		throttle:   deps.Throttle,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		bcryptCost: deps.BcryptCost,
	}
}

// Register creates a new account with the default role.
func (s *AuthService) Register(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if n := utf8.RuneCountInString(username); n < 3 || n > 50 {
		return nil, apperrors.NewValidationError("username must be 3-50 characters", nil)
	}
	if utf8.RuneCountInString(password) < 6 {
		return nil, apperrors.NewValidationError("password must be at least 6 characters", nil)
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, apperrors.NewConflict("username already taken", nil)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Role:         domain.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			Type:       events.EventUserRegistered,
			ActorID:    user.ID,
			OccurredAt: time.Now(),
		})
	}
	return user, nil
}

// Login verifies credentials and issues a bearer token.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	if s.throttle != nil && !s.throttle.Allowed(ctx, username) {
		return "", time.Time{}, apperrors.NewTooManyRequests("too many failed login attempts")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.recordLoginFailure(ctx, username, "unknown_username")
			return "", time.Time{}, apperrors.NewUnauthenticated(invalidCredentialsMessage)
		}
		return "", time.Time{}, err
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		s.recordLoginFailure(ctx, username, "password_mismatch")
		return "", time.Time{}, apperrors.NewUnauthenticated(invalidCredentialsMessage)
	}

	token, expiresAt, err := s.tokens.Generate(user.ID, user.Role)
	if err != nil {
		return "", time.Time{}, err
	}

	if s.throttle != nil {
		s.throttle.Reset(ctx, username)
	}
	return token, expiresAt, nil
}

func (s *AuthService) recordLoginFailure(ctx context.Context, username, reason string) {
	if s.throttle != nil {
		s.throttle.RecordFailure(ctx, username)
	}
	s.logger.Debug("login rejected", zap.String("reason", reason))
}
