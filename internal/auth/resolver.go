package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ticketdesk/ticketdesk/internal/domain"
	"github.com/ticketdesk/ticketdesk/internal/repository"
)

// ErrUnknownSubject means the token was valid but its subject no longer
// exists, e.g. the account was deleted after issuance.
var ErrUnknownSubject = errors.New("unknown token subject")

// Resolver recovers the authenticated user from a bearer token. It holds
// no mutable state and is safe for concurrent per-request use.
type Resolver struct {
	tokens *TokenManager
	users  repository.UserRepository
}

// NewResolver constructs a resolver.
func NewResolver(tokens *TokenManager, users repository.UserRepository) *Resolver {
	return &Resolver{tokens: tokens, users: users}
}

// Resolve validates the token and loads the user record for its subject.
func (r *Resolver) Resolve(ctx context.Context, tokenStr string) (*domain.User, error) {
	claims, err := r.tokens.Parse(tokenStr)
	if err != nil {
		return nil, err
	}

	user, err := r.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnknownSubject
		}
		return nil, err
	}
	return user, nil
}
