package auth

import (
	"context"
	"errors"

	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/repository"
	apperrors "github.com/spec-kit/booking-service/pkg/util/errorutil"
)

// Principal represents the authenticated caller.
type Principal struct {
	IdentityID string
	Role       domain.Role
	Identity   *domain.Identity
}

// Gate turns bearer tokens into principals.
type Gate struct {
	tokens     *TokenManager
	identities repository.IdentityRepository
}

// NewGate constructs a Gate.
func NewGate(tokens *TokenManager, identities repository.IdentityRepository) *Gate {
	return &Gate{tokens: tokens, identities: identities}
}

// Resolve verifies token and loads its identity. The principal carries the stored role,
// so a promotion applies to tokens issued before it. Operator claims must match a stored
// operator identity.
func (g *Gate) Resolve(ctx context.Context, token string) (*Principal, error) {
	claims, err := g.tokens.ParseToken(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, apperrors.NewAuthError(apperrors.CodeTokenExpired, "token expired")
		}
		return nil, apperrors.NewAuthError(apperrors.CodeInvalidToken, "invalid token")
	}

	identity, err := g.identities.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewAuthError(apperrors.CodeUnknownIdentity, "identity not found")
		}
		return nil, apperrors.MapError(err)
	}

	if (claims.Role == domain.RoleOperator) != (identity.Role == domain.RoleOperator) {
		return nil, apperrors.NewAuthError(apperrors.CodeInvalidToken, "role claim does not match identity")
	}

	return &Principal{IdentityID: identity.ID, Role: identity.Role, Identity: identity}, nil
}
