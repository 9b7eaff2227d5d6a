package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/commdir/apiserver/internal/auth"
	"github.com/commdir/apiserver/types"
)

// AdminLookup finds admins by login email.
type AdminLookup interface {
	GetByEmail(ctx context.Context, email string) (types.AdminAccount, error)
}

// TokenIssuer signs bearer tokens for authenticated admins.
type TokenIssuer interface {
	Issue(id int, email string, roles types.RoleList) (string, error)
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token string             `json:"token"`
	User  types.AdminProfile `json:"user"`
}

// LogoutAck acknowledges a logout. No server-side state changes: the client
// discards its token, which otherwise stays valid until it expires.
type LogoutAck struct {
	Message string `json:"message"`
}

// AuthService orchestrates admin login and logout.
type AuthService struct {
	admins AdminLookup
	hasher auth.PasswordHasher
	issuer TokenIssuer
	logger *slog.Logger

	dummyMu   sync.Mutex
	dummyHash string
}

// NewAuthService constructs an AuthService.
func NewAuthService(admins AdminLookup, hasher auth.PasswordHasher, issuer TokenIssuer, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		admins: admins,
		hasher: hasher,
		issuer: issuer,
		logger: logger,
	}
}

// Login verifies credentials and issues a token embedding the admin's current roles.
// Unknown emails and wrong passwords fail identically with ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{}, newValidationError("credentials", "are required")
	}

	admin, lookupErr := s.admins.GetByEmail(ctx, email)
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return LoginResult{}, internalError("look up admin", lookupErr)
		}
		// Spend the same hashing time as a real verification.
		_, _ = s.hasher.Verify(ctx, password, s.timingHash(ctx))
		s.logger.InfoContext(ctx, "login failed", "reason", "unknown email")
		return LoginResult{}, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(ctx, password, admin.PasswordHash)
	if err != nil {
		return LoginResult{}, internalError("verify password", err)
	}
	if !ok {
		s.logger.InfoContext(ctx, "login failed", "reason", "password mismatch", "admin_id", admin.ID)
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.issuer.Issue(admin.ID, admin.Email, admin.Roles)
	if err != nil {
		return LoginResult{}, internalError("issue token", err)
	}

	s.logger.InfoContext(ctx, "login succeeded", "admin_id", admin.ID)
	return LoginResult{Token: token, User: admin.Profile()}, nil
}

// Logout acknowledges the request. Tokens are not revoked.
func (s *AuthService) Logout(ctx context.Context) LogoutAck {
	return LogoutAck{Message: "logged out"}
}

// timingHash lazily computes a throwaway hash used to equalize login timing.
// It ignores the caller's cancellation and is cached only once computed.
func (s *AuthService) timingHash(ctx context.Context) string {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()

	if s.dummyHash != "" {
		return s.dummyHash
	}
	hash, err := s.hasher.Hash(context.WithoutCancel(ctx), "timing-equalizer-not-a-credential")
	if err != nil {
		s.logger.WarnContext(ctx, "failed to compute timing hash", "error", err)
		return ""
	}
	s.dummyHash = hash
	return hash
}
