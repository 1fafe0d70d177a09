package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/booking-service/internal/auth"
	"github.com/spec-kit/booking-service/internal/config"
	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/ratelimiter"
	"github.com/spec-kit/booking-service/internal/repository"
	apperrors "github.com/spec-kit/booking-service/pkg/util/errorutil"
)

const loginNotificationLimit = 20

// AuthService coordinates registration, login and operator provisioning.
type AuthService struct {
	identities    repository.IdentityRepository
	practitioners repository.PractitionerRepository
	sink          *NotificationSink
	tokenMgr      *auth.TokenManager
	limiter       *ratelimiter.KeyedLimiter
	bcryptCost    int
	logger        *zap.Logger
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	IdentityRepo     repository.IdentityRepository
	PractitionerRepo repository.PractitionerRepository
	Sink             *NotificationSink
	LoginLimiter     *ratelimiter.KeyedLimiter
	Logger           *zap.Logger
}

// RegisterInput describes a new patient account.
type RegisterInput struct {
	DisplayName string
	Email       string
	PhoneNumber string
	Password    string
}

// LoginInput carries credentials plus the client address used for throttling.
type LoginInput struct {
	Email    string
	Password string
	ClientIP string
}

// LoginResult is everything a client needs right after signing in.
type LoginResult struct {
	Identity      *domain.Identity
	Token         string
	ExpiresAt     time.Time
	Notifications []domain.Notification
	UnreadCount   int
	Profile       *domain.PractitionerProfile
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		identities:    deps.IdentityRepo,
		practitioners: deps.PractitionerRepo,
		sink:          deps.Sink,
		tokenMgr:      auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		limiter:       deps.LoginLimiter,
		bcryptCost:    cfg.Auth.BcryptCost,
		logger:        logger,
	}
}

func (in RegisterInput) validate() error {
	problems := fieldErrors{}
	problems.require("display_name", in.DisplayName)
	if !validEmail(normalizeEmail(in.Email)) {
		problems["email"] = "must be a valid email address"
	}
	if n := len(in.Password); n < auth.MinPasswordLength || n > auth.MaxPasswordLength {
		problems["password"] = auth.ErrPasswordLength.Error()
	}
	return problems.err("invalid registration")
}

// Register creates a patient identity and signs a token for it.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.Identity, string, time.Time, error) {
	identity, err := s.createIdentity(ctx, input, domain.RolePatient)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	token, exp, err := s.tokenMgr.GenerateToken(identity.ID, identity.Role)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	s.logger.Info("identity registered", zap.String("identity_id", identity.ID))
	return identity, token, exp, nil
}

func (s *AuthService) createIdentity(ctx context.Context, input RegisterInput, role domain.Role) (*domain.Identity, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	email := normalizeEmail(input.Email)

	if _, err := s.identities.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewEmailTaken(email)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	identity := &domain.Identity{
		DisplayName:    strings.TrimSpace(input.DisplayName),
		Email:          email,
		PhoneNumber:    strings.TrimSpace(input.PhoneNumber),
		CredentialHash: hash,
		Role:           role,
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperrors.NewEmailTaken(email)
		}
		return nil, apperrors.MapError(err)
	}
	return identity, nil
}

// Login verifies credentials and returns a token with the caller's recent notifications
// and, for applicants and practitioners, their profile.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, apperrors.NewValidationError("email and password required", nil)
	}
	if !s.limiter.Allow(input.ClientIP+"|"+email, time.Now()) {
		s.logger.Warn("login throttled", zap.String("ip", input.ClientIP))
		return nil, apperrors.NewRateLimited("too many login attempts")
	}

	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewAuthError(apperrors.CodeInvalidCredentials, "invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(identity.CredentialHash, input.Password); err != nil {
		return nil, apperrors.NewAuthError(apperrors.CodeInvalidCredentials, "invalid credentials")
	}

	token, exp, err := s.tokenMgr.GenerateToken(identity.ID, identity.Role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	result := &LoginResult{Identity: identity, Token: token, ExpiresAt: exp}
	if result.Notifications, err = s.sink.ListFor(ctx, identity.ID, repository.Page{Limit: loginNotificationLimit}); err != nil {
		return nil, err
	}
	if result.UnreadCount, err = s.sink.UnreadCount(ctx, identity.ID); err != nil {
		return nil, err
	}
	profile, err := s.practitioners.GetByIdentityID(ctx, identity.ID)
	switch {
	case err == nil:
		result.Profile = profile
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.MapError(err)
	}
	return result, nil
}

// ProvisionOperator creates an operator identity, or reuses an existing one, and signs a
// token valid for ttl. It is meant for deployment tooling, never for HTTP callers.
func (s *AuthService) ProvisionOperator(ctx context.Context, input RegisterInput, ttl time.Duration) (*domain.Identity, string, time.Time, error) {
	identity, err := s.identities.GetByEmail(ctx, normalizeEmail(input.Email))
	switch {
	case err == nil:
		if identity.Role != domain.RoleOperator {
			return nil, "", time.Time{}, apperrors.NewEmailTaken(identity.Email)
		}
	case errors.Is(err, repository.ErrNotFound):
		if identity, err = s.createIdentity(ctx, input, domain.RoleOperator); err != nil {
			return nil, "", time.Time{}, err
		}
		s.logger.Info("operator provisioned", zap.String("identity_id", identity.ID))
	default:
		return nil, "", time.Time{}, apperrors.MapError(err)
	}

	token, exp, err := s.tokenMgr.GenerateTokenWithTTL(identity.ID, domain.RoleOperator, ttl)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	return identity, token, exp, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
