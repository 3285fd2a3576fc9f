package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashureev/skill-worlds/internal/catalog"
	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/ashureev/skill-worlds/internal/gateway"
	"github.com/ashureev/skill-worlds/internal/shared"
	"github.com/ashureev/skill-worlds/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sess = domain.Session{UserID: "u1", SessionID: "tab-1"}

type fixture struct {
	svc  *Service
	gw   *gateway.Gateway
	repo *storetest.Memory
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	repo := storetest.NewMemory()
	repo.SeedUser("u1", "ada@example.com", "Ada Lovelace")

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gw := gateway.New(repo,
		gateway.WithRetry(shared.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond}),
		gateway.WithClock(func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		}),
	)
	return fixture{svc: NewService(gw, cat), gw: gw, repo: repo}
}

func (f fixture) result(t *testing.T, careerID string, score float64) {
	t.Helper()
	_, err := f.gw.SaveTestResult(context.Background(), sess, domain.AssessmentResult{
		TestID:   careerID + "-test",
		CareerID: careerID,
		Score:    score,
	})
	require.NoError(t, err)
}

func TestLoadEmpty(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.Load(context.Background(), sess)
	require.NoError(t, err)
	require.NotNil(t, d.Profile)
	assert.Equal(t, "Ada Lovelace", d.Profile.FullName)
	assert.Nil(t, d.Preference)
	assert.Empty(t, d.Careers)
	assert.Empty(t, d.Resources)
	assert.Empty(t, d.Results)
}

func TestLoadAggregatesProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.result(t, "software-engineer", 60)
	f.result(t, "doctor", 40)
	f.result(t, "software-engineer", 81)
	_, err := f.gw.SavePreference(ctx, sess, domain.CareerPreference{
		PrimaryCareerID:   "software-engineer",
		SecondaryCareerID: "doctor",
		PrimaryScore:      81,
		SecondaryScore:    40,
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkResourceCompleted(ctx, sess, "se-resource-1"))

	d, err := f.svc.Load(ctx, sess)
	require.NoError(t, err)

	require.NotNil(t, d.Primary)
	assert.Equal(t, "software-engineer", d.Primary.ID)
	require.NotNil(t, d.Secondary)
	assert.Equal(t, "doctor", d.Secondary.ID)
	assert.Len(t, d.Results, 3)

	require.Len(t, d.Careers, 2)
	se := d.Careers[0]
	assert.Equal(t, "software-engineer", se.Career.ID)
	assert.Equal(t, 71, se.Progress) // round(70.5)
	require.NotNil(t, se.LatestScore)
	assert.Equal(t, 81.0, *se.LatestScore)
	assert.Len(t, se.Results, 2)
	assert.Equal(t, 40, d.Careers[1].Progress)

	var found bool
	for _, r := range d.Resources {
		assert.Contains(t, []string{"software-engineer", "doctor"}, r.CareerID)
		if r.ID == "se-resource-1" {
			found = true
			assert.True(t, r.Completed)
			assert.NotNil(t, r.CompletedAt)
		} else {
			assert.False(t, r.Completed)
		}
	}
	assert.True(t, found)
}

func TestLoadFallsBackToSelection(t *testing.T) {
	f := newFixture(t)
	_, err := f.gw.SaveSelection(context.Background(), sess, domain.SelectionResult{
		CareerIDs: [2]string{"lawyer", "graphic-designer"},
		Method:    domain.MethodManual,
	})
	require.NoError(t, err)

	d, err := f.svc.Load(context.Background(), sess)
	require.NoError(t, err)
	assert.Nil(t, d.Primary)
	require.Len(t, d.Careers, 2)
	assert.Equal(t, "lawyer", d.Careers[0].Career.ID)
	assert.Zero(t, d.Careers[0].Progress)
	assert.Nil(t, d.Careers[0].LatestScore)
	assert.NotEmpty(t, d.Resources)
}

func TestLoadPropagatesStorageErrors(t *testing.T) {
	f := newFixture(t)
	f.repo.Fail("ListCompletedResources", errors.New("disk gone"))

	_, err := f.svc.Load(context.Background(), sess)
	assert.ErrorIs(t, err, domain.ErrStorage)

	_, err = f.svc.Load(context.Background(), domain.Session{})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestMarkResourceCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.MarkResourceCompleted(ctx, sess, "no-such-resource")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, f.repo.Calls("InsertCompletedResource"))

	require.NoError(t, f.svc.MarkResourceCompleted(ctx, sess, "se-resource-1"))
	require.NoError(t, f.svc.MarkResourceCompleted(ctx, sess, "se-resource-1"))
	done, err := f.gw.CompletedResources(ctx, sess)
	require.NoError(t, err)
	assert.Len(t, done, 1)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateProfile(ctx, sess, ProfileUpdate{FullName: "", Age: 20, EducationLevel: "college"})
	var ie *domain.InputError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "full_name", ie.Field)

	saved, err := f.svc.UpdateProfile(ctx, sess, ProfileUpdate{
		FullName:          "Ada King",
		Age:               28,
		EducationLevel:    "university",
		CurrentlyStudying: "Computing",
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", saved.UserID)

	d, err := f.svc.Load(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "Ada King", d.Profile.FullName)
	assert.Equal(t, 28, d.Profile.Age)
}
