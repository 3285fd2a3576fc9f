// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/skill-worlds/internal/domain"
)

// Repository defines the interface for persisting accounts and guided-flow
// outcomes. Lookups of a single record return (nil, nil) when it does not
// exist.
type Repository interface {
	// CreateUser inserts a user and its profile atomically.
	// Returns domain.ErrConflict if the email is already registered.
	CreateUser(ctx context.Context, user *domain.User, profile *domain.Profile) error

	// GetUser retrieves a user by their user ID.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// GetUserByEmail retrieves a user by their normalized email.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetProfile retrieves the profile of a user.
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)

	// UpsertProfile creates or updates a profile.
	UpsertProfile(ctx context.Context, profile *domain.Profile) error

	// InsertCareerSelection records the two careers picked by a user.
	InsertCareerSelection(ctx context.Context, sel *domain.SelectionResult) error

	// LatestCareerSelection returns the most recent selection of a user.
	LatestCareerSelection(ctx context.Context, userID string) (*domain.SelectionResult, error)

	// InsertTestResult records a submitted assessment.
	InsertTestResult(ctx context.Context, result *domain.AssessmentResult) error

	// ListTestResults returns a user's results, newest first.
	ListTestResults(ctx context.Context, userID string) ([]*domain.AssessmentResult, error)

	// InsertCareerPreference records a primary/secondary ranking.
	InsertCareerPreference(ctx context.Context, pref *domain.CareerPreference) error

	// LatestCareerPreference returns the most recent ranking of a user.
	LatestCareerPreference(ctx context.Context, userID string) (*domain.CareerPreference, error)

	// InsertCompletedResource marks a resource completed. Repeated calls keep
	// the first completion time.
	InsertCompletedResource(ctx context.Context, completed *domain.CompletedResource) error

	// ListCompletedResources returns the resources a user has completed.
	ListCompletedResources(ctx context.Context, userID string) ([]domain.CompletedResource, error)

	// RevokeToken blocks a token id until it expires.
	RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error

	// IsTokenRevoked reports whether a token id was revoked.
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)

	// CleanupRevokedTokens removes revocations whose tokens expired before now.
	CleanupRevokedTokens(ctx context.Context, now time.Time) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
