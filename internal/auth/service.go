package auth

import (
	"context"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/cascade/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *Tokens
	audit  shared.AuditPort
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *Tokens, audit shared.AuditPort, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, audit: audit, logger: logger}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues an access token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	user, err := s.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		s.logger.Info("login rejected", slog.String("email", req.Email))
		return LoginResult{}, err
	}
	token, expires, err := s.tokens.Issue(*user)
	if err != nil {
		return LoginResult{}, err
	}
	ctx = shared.ContextWithActor(ctx, shared.Actor{UserID: user.ID, Email: user.Email, Role: user.Role})
	if err := s.audit.Record(ctx, shared.AuditLog{Action: "auth.login", Entity: "user", EntityID: user.Email}); err != nil {
		s.logger.Warn("audit login", slog.Any("error", err))
	}
	return LoginResult{Token: token, ExpiresAt: expires, User: *user}, nil
}
