package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/ashureev/skill-worlds/internal/shared"
	"github.com/ashureev/skill-worlds/internal/store"
	"github.com/google/uuid"
)

// RegisterRequest creates an account with its profile.
type RegisterRequest struct {
	FullName          string `json:"full_name" validate:"required,max=120"`
	Email             string `json:"email" validate:"required,email"`
	Password          string `json:"password" validate:"required,min=8,max=64"`
	Age               int    `json:"age" validate:"required,min=1,max=120"`
	EducationLevel    string `json:"education_level" validate:"required,max=80"`
	CurrentlyStudying string `json:"currently_studying" validate:"max=120"`
}

// LoginRequest signs in with email and password.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User      *domain.User    `json:"user"`
	Profile   *domain.Profile `json:"profile"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Service manages accounts.
type Service struct {
	repo   store.Repository
	tokens *TokenService
	hasher PasswordHasher
	retry  shared.RetryPolicy
	now    func() time.Time
}

// NewService creates an account service.
func NewService(repo store.Repository, tokens *TokenService, hasher PasswordHasher, retry shared.RetryPolicy) *Service {
	return &Service{
		repo:   repo,
		tokens: tokens,
		hasher: hasher,
		retry:  retry,
		now:    time.Now,
	}
}

// Tokens returns the token service used by the middleware.
func (s *Service) Tokens() *TokenService { return s.tokens }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates the user and profile rows and signs the user in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	req.Email = normalizeEmail(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := shared.Validate(req); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &domain.User{
		UserID:       uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	profile := &domain.Profile{
		UserID:            user.UserID,
		FullName:          req.FullName,
		Age:               req.Age,
		EducationLevel:    req.EducationLevel,
		CurrentlyStudying: req.CurrentlyStudying,
		UpdatedAt:         now,
	}

	err = shared.RetryOnConflict(ctx, s.retry, "create user", func(ctx context.Context) error {
		return s.repo.CreateUser(ctx, user, profile)
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		return nil, &domain.StorageError{Op: "insert", Table: "users", Err: err}
	}
	slog.Info("User registered", "user_id", user.UserID)

	return s.issue(user, profile)
}

// Login checks credentials. Unknown emails and wrong passwords fail alike.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	req.Email = normalizeEmail(req.Email)
	if err := shared.Validate(req); err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, &domain.StorageError{Op: "select", Table: "users", Err: err}
	}
	if user == nil || !s.hasher.Verify(req.Password, user.PasswordHash) {
		slog.Info("Login rejected", "email_domain", emailDomain(req.Email))
		return nil, domain.ErrInvalidCredentials
	}

	profile, err := s.repo.GetProfile(ctx, user.UserID)
	if err != nil {
		return nil, &domain.StorageError{Op: "select", Table: "profiles", Err: err}
	}
	return s.issue(user, profile)
}

func (s *Service) issue(user *domain.User, profile *domain.Profile) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(user.UserID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Profile: profile, Token: token, ExpiresAt: expiresAt}, nil
}

// SignOut revokes the token carried by the request.
func (s *Service) SignOut(ctx context.Context, claims *Claims) error {
	if claims == nil {
		return domain.ErrUnauthenticated
	}
	err := shared.RetryOnConflict(ctx, s.retry, "revoke token", func(ctx context.Context) error {
		return s.tokens.Revoke(ctx, claims)
	})
	if err != nil {
		return err
	}
	slog.Info("User signed out", "user_id", claims.UserID)
	return nil
}

// Me returns the signed-in user and profile.
func (s *Service) Me(ctx context.Context, sess domain.Session) (*domain.User, *domain.Profile, error) {
	if !sess.Authenticated() {
		return nil, nil, domain.ErrUnauthenticated
	}
	user, err := s.repo.GetUser(ctx, sess.UserID)
	if err != nil {
		return nil, nil, &domain.StorageError{Op: "select", Table: "users", Err: err}
	}
	if user == nil {
		return nil, nil, domain.ErrUnauthenticated
	}
	profile, err := s.repo.GetProfile(ctx, sess.UserID)
	if err != nil {
		return nil, nil, &domain.StorageError{Op: "select", Table: "profiles", Err: err}
	}
	return user, profile, nil
}

func emailDomain(email string) string {
	if i := strings.LastIndexByte(email, '@'); i >= 0 {
		return email[i+1:]
	}
	return ""
}
