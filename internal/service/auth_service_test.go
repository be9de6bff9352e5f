package service

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ticketdesk/ticketdesk/internal/auth"
	"github.com/ticketdesk/ticketdesk/internal/domain"
	apperrors "github.com/ticketdesk/ticketdesk/pkg/util"
)

type fakeUserRepo struct {
	byID map[string]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[string]*domain.User{}}
}

func (f *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	f.byID[user.ID] = user
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	user, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

func (f *fakeUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	for _, user := range f.byID {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func newTestAuthService(t *testing.T, repo *fakeUserRepo) *AuthService {
	t.Helper()
	tokens, err := auth.NewTokenManager("test-secret", "HS256", 15*time.Minute)
	require.NoError(t, err)
	return NewAuthService(AuthDependencies{
		UserRepo:   repo,
		Tokens:     tokens,
		Logger:     zap.NewNop(),
		BcryptCost: bcrypt.MinCost,
	})
}

func TestRegisterDefaultsRoleAndHashesPassword(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	user, err := svc.Register(context.Background(), "alice", "secret123")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.NotEmpty(t, user.ID)
	assert.NotEqual(t, "secret123", user.PasswordHash)
	assert.True(t, auth.CheckPassword(user.PasswordHash, "secret123"))
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	_, err := svc.Register(context.Background(), "al", "secret123")
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	_, err = svc.Register(context.Background(), "alice", "short")
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	_, err := svc.Register(context.Background(), "alice", "secret123")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "alice", "another-pass")
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperrors.ToDomainError(err).Code)
}

func TestLoginIssuesBearerToken(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	user, err := svc.Register(context.Background(), "alice", "secret123")
	require.NoError(t, err)

	token, expiresAt, err := svc.Login(context.Background(), "alice", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)
	assert.Equal(t, domain.RoleUser, claims.Role)
}

func TestRegisterCountsCharactersNotBytes(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())
	ctx := context.Background()

	// Three multibyte characters satisfy the minimum despite the byte
	// length being nine.
	user, err := svc.Register(ctx, "ありす", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "ありす", user.Username)

	_, err = svc.Register(ctx, "あり", "secret123")
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	// Five multibyte characters are below the six-character password
	// minimum.
	_, err = svc.Register(ctx, "bobby", "パスワード")
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
}

type fakeLimiter struct {
	limit    int
	failures map[string]int
}

func newFakeLimiter(limit int) *fakeLimiter {
	return &fakeLimiter{limit: limit, failures: map[string]int{}}
}

func (f *fakeLimiter) Allowed(_ context.Context, username string) bool {
	return f.failures[username] < f.limit
}

func (f *fakeLimiter) RecordFailure(_ context.Context, username string) {
	f.failures[username]++
}

func (f *fakeLimiter) Reset(_ context.Context, username string) {
	delete(f.failures, username)
}

func TestLoginThrottledAfterRepeatedFailures(t *testing.T) {
	repo := newFakeUserRepo()
	limiter := newFakeLimiter(3)
	tokens, err := auth.NewTokenManager("test-secret", "HS256", 15*time.Minute)
	require.NoError(t, err)
	svc := NewAuthService(AuthDependencies{
		UserRepo:   repo,
		Tokens:     tokens,
		Throttle:   limiter,
		Logger:     zap.NewNop(),
		BcryptCost: bcrypt.MinCost,
	})
	ctx := context.Background()

	_, err = svc.Register(ctx, "alice", "secret123")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, loginErr := svc.Login(ctx, "alice", "wrong-pass")
		require.Error(t, loginErr)
		assert.Equal(t, "UNAUTHENTICATED", apperrors.ToDomainError(loginErr).Code)
	}

	// Past the limit even the correct password is rejected with a
	// throttle error, not a credential error.
	_, _, err = svc.Login(ctx, "alice", "secret123")
	require.Error(t, err)
	assert.Equal(t, "TOO_MANY_REQUESTS", apperrors.ToDomainError(err).Code)

	// Other usernames are unaffected.
	_, err = svc.Register(ctx, "bobby", "secret456")
	require.NoError(t, err)
	_, _, err = svc.Login(ctx, "bobby", "secret456")
	assert.NoError(t, err)
}

func TestLoginSuccessResetsThrottle(t *testing.T) {
	repo := newFakeUserRepo()
	limiter := newFakeLimiter(2)
	tokens, err := auth.NewTokenManager("test-secret", "HS256", 15*time.Minute)
	require.NoError(t, err)
	svc := NewAuthService(AuthDependencies{
		UserRepo:   repo,
		Tokens:     tokens,
		Throttle:   limiter,
		Logger:     zap.NewNop(),
		BcryptCost: bcrypt.MinCost,
	})
	ctx := context.Background()

	_, err = svc.Register(ctx, "alice", "secret123")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "alice", "wrong-pass")
	require.Error(t, err)
	_, _, err = svc.Login(ctx, "alice", "secret123")
	require.NoError(t, err)

	// The failure counter was cleared, so one more failure does not
	// trip the limit.
	_, _, err = svc.Login(ctx, "alice", "wrong-pass")
	require.Error(t, err)
	assert.Equal(t, "UNAUTHENTICATED", apperrors.ToDomainError(err).Code)
	_, _, err = svc.Login(ctx, "alice", "secret123")
	assert.NoError(t, err)
}

func TestLoginCollapsesFailureReasons(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	_, err := svc.Register(context.Background(), "alice", "secret123")
	require.NoError(t, err)

	_, _, wrongPassErr := svc.Login(context.Background(), "alice", "wrong-pass")
	require.Error(t, wrongPassErr)
	_, _, unknownUserErr := svc.Login(context.Background(), "nobody", "whatever")
	require.Error(t, unknownUserErr)

	wrongPass := apperrors.ToDomainError(wrongPassErr)
	unknownUser := apperrors.ToDomainError(unknownUserErr)
	assert.Equal(t, "UNAUTHENTICATED", wrongPass.Code)
	assert.Equal(t, wrongPass.Code, unknownUser.Code)
	assert.Equal(t, wrongPass.Message, unknownUser.Message,
		"responses must not reveal whether the username exists")
}
