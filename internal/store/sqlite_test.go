package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func seedUser(t *testing.T, repo Repository, id, email string) {
	t.Helper()
	now := time.Now()
	err := repo.CreateUser(context.Background(),
		&domain.User{UserID: id, Email: email, PasswordHash: "hash", CreatedAt: now, UpdatedAt: now},
		&domain.Profile{UserID: id, FullName: "Ada Lovelace", Age: 20, EducationLevel: "undergraduate", CurrentlyStudying: "Mathematics", UpdatedAt: now},
	)
	require.NoError(t, err)
}

func TestCreateUserAndProfile(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	seedUser(t, repo, "u1", "ada@example.com")

	user, err := repo.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "u1", user.UserID)

	profile, err := repo.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "Ada Lovelace", profile.FullName)

	missing, err := repo.GetUser(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	repo := newTestStore(t)
	seedUser(t, repo, "u1", "ada@example.com")

	now := time.Now()
	err := repo.CreateUser(context.Background(),
		&domain.User{UserID: "u2", Email: "ada@example.com", PasswordHash: "x", CreatedAt: now, UpdatedAt: now}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))

	// the failed transaction must not leave a partial user behind
	u2, err := repo.GetUser(context.Background(), "u2")
	require.NoError(t, err)
	assert.Nil(t, u2)
}

func TestTestResultRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	seedUser(t, repo, "u1", "ada@example.com")

	base := time.Now().Truncate(time.Millisecond)
	older := &domain.AssessmentResult{
		ID: "r1", UserID: "u1", TestID: "se-test-1", CareerID: "software-engineer",
		Score: 60, Answers: map[string]string{"se-q1": "A", "se-q2": "B"}, CompletedAt: base,
	}
	newer := &domain.AssessmentResult{
		ID: "r2", UserID: "u1", TestID: "ds-test-1", CareerID: "data-scientist",
		Score: 80, Answers: map[string]string{"ds-q1": "C"}, CompletedAt: base.Add(time.Second),
	}
	require.NoError(t, repo.InsertTestResult(ctx, older))
	require.NoError(t, repo.InsertTestResult(ctx, newer))

	results, err := repo.ListTestResults(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "r2", results[0].ID)
	assert.Equal(t, 60.0, results[1].Score)
	assert.Equal(t, older.Answers, results[1].Answers)
	assert.True(t, results[1].CompletedAt.Equal(base))
}

func TestSelectionAndPreference(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	seedUser(t, repo, "u1", "ada@example.com")

	prefs := &domain.PreferenceProfile{Subjects: []string{"Science & Math"}}
	sel := &domain.SelectionResult{
		ID: "s1", UserID: "u1", CareerIDs: [2]string{"software-engineer", "data-scientist"},
		Method: domain.MethodChatbot, Preferences: prefs, CreatedAt: time.Now(),
	}
	require.NoError(t, repo.InsertCareerSelection(ctx, sel))

	got, err := repo.LatestCareerSelection(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sel.CareerIDs, got.CareerIDs)
	assert.Equal(t, domain.MethodChatbot, got.Method)
	require.NotNil(t, got.Preferences)
	assert.Equal(t, []string{"Science & Math"}, got.Preferences.Subjects)

	none, err := repo.LatestCareerPreference(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, none)

	pref := &domain.CareerPreference{
		ID: "p1", UserID: "u1", PrimaryCareerID: "software-engineer", SecondaryCareerID: "data-scientist",
		PrimaryScore: 80, SecondaryScore: 60, CreatedAt: time.Now(),
	}
	require.NoError(t, repo.InsertCareerPreference(ctx, pref))

	latest, err := repo.LatestCareerPreference(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "software-engineer", latest.PrimaryCareerID)
	assert.Equal(t, 60.0, latest.SecondaryScore)
}

func TestCompletedResourcesIdempotent(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	seedUser(t, repo, "u1", "ada@example.com")

	first := time.Now().Truncate(time.Millisecond)
	require.NoError(t, repo.InsertCompletedResource(ctx, &domain.CompletedResource{UserID: "u1", ResourceID: "se-resource-1", CompletedAt: first}))
	require.NoError(t, repo.InsertCompletedResource(ctx, &domain.CompletedResource{UserID: "u1", ResourceID: "se-resource-1", CompletedAt: first.Add(time.Hour)}))

	list, err := repo.ListCompletedResources(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].CompletedAt.Equal(first))
}

func TestRevokedTokens(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.RevokeToken(ctx, "expired", now.Add(-time.Minute)))
	require.NoError(t, repo.RevokeToken(ctx, "live", now.Add(time.Hour)))

	revoked, err := repo.IsTokenRevoked(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)

	deleted, err := repo.CleanupRevokedTokens(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	revoked, err = repo.IsTokenRevoked(ctx, "expired")
	require.NoError(t, err)
	assert.False(t, revoked)
}
