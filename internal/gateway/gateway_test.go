package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/ashureev/skill-worlds/internal/shared"
	"github.com/ashureev/skill-worlds/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sess = domain.Session{UserID: "u1", SessionID: "tab-1"}

func newGateway(t *testing.T) (*Gateway, *storetest.Memory) {
	t.Helper()
	repo := storetest.NewMemory()
	repo.SeedUser("u1", "ada@example.com", "Ada Lovelace")
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := New(repo, WithClock(func() time.Time { return fixed }), WithRetry(shared.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}))
	return g, repo
}

func TestRequiresSession(t *testing.T) {
	g, repo := newGateway(t)
	ctx := context.Background()

	_, err := g.SaveSelection(ctx, domain.Session{}, domain.SelectionResult{CareerIDs: [2]string{"a", "b"}})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = g.SaveTestResult(ctx, domain.Session{}, domain.AssessmentResult{})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = g.TestResults(ctx, domain.Session{})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	assert.Zero(t, repo.Calls("InsertCareerSelection"))
	assert.Zero(t, repo.Calls("InsertTestResult"))
}

func TestSaveSelectionAssignsIdentity(t *testing.T) {
	g, repo := newGateway(t)
	prefs := &domain.PreferenceProfile{Subjects: []string{"Law & Justice"}}

	saved, err := g.SaveSelection(context.Background(), sess, domain.SelectionResult{
		CareerIDs:   [2]string{"lawyer", "doctor"},
		Method:      domain.MethodChatbot,
		Preferences: prefs,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "u1", saved.UserID)

	prefs.Subjects[0] = "mutated"
	latest, err := g.LatestSelection(context.Background(), sess)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "Law & Justice", latest.Preferences.Subjects[0])
	assert.Equal(t, 1, repo.Calls("InsertCareerSelection"))
}

func TestSaveSelectionRejectsDuplicates(t *testing.T) {
	g, _ := newGateway(t)
	_, err := g.SaveSelection(context.Background(), sess, domain.SelectionResult{CareerIDs: [2]string{"doctor", "doctor"}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStorageFailureIsTyped(t *testing.T) {
	g, repo := newGateway(t)
	repo.Fail("InsertTestResult", errors.New("disk full"))

	_, err := g.SaveTestResult(context.Background(), sess, domain.AssessmentResult{TestID: "se-test-1", CareerID: "software-engineer", Score: 60})
	require.Error(t, err)
	assert.True(t, IsStorageError(err))
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Equal(t, 1, repo.Calls("InsertTestResult"))
}

func TestBusyErrorsAreRetried(t *testing.T) {
	g, repo := newGateway(t)
	repo.Fail("InsertCareerPreference", errors.New("database is locked"))

	_, err := g.SavePreference(context.Background(), sess, domain.CareerPreference{PrimaryCareerID: "a", SecondaryCareerID: "b"})
	require.Error(t, err)
	assert.Equal(t, 2, repo.Calls("InsertCareerPreference"))
}

func TestTestResultRoundTrip(t *testing.T) {
	g, _ := newGateway(t)
	ctx := context.Background()
	answers := map[string]string{"se-q1": "x", "se-q2": "y"}

	saved, err := g.SaveTestResult(ctx, sess, domain.AssessmentResult{
		TestID: "se-test-1", CareerID: "software-engineer", Score: 60, Answers: answers,
	})
	require.NoError(t, err)

	answers["se-q1"] = "mutated"

	results, err := g.TestResults(ctx, sess)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, saved.ID, results[0].ID)
	assert.Equal(t, 60.0, results[0].Score)
	assert.Equal(t, "x", results[0].Answers["se-q1"])
}

func TestProfileAndResources(t *testing.T) {
	g, _ := newGateway(t)
	ctx := context.Background()

	p, err := g.Profile(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", p.FullName)

	_, err = g.Profile(ctx, domain.Session{UserID: "ghost"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, g.MarkResourceCompleted(ctx, sess, "se-resource-1"))
	done, err := g.CompletedResources(ctx, sess)
	require.NoError(t, err)
	assert.Contains(t, done, "se-resource-1")

	user, err := g.CurrentUser(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)

	_, err = g.CurrentUser(ctx, domain.Session{UserID: "ghost"})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}
