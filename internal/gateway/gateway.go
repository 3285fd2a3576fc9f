// Package gateway is the typed persistence client used by the guided flow.
// Every call takes an explicit domain.Session; failures are reported as
// domain.ErrUnauthenticated or *domain.StorageError.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/ashureev/skill-worlds/internal/metrics"
	"github.com/ashureev/skill-worlds/internal/shared"
	"github.com/ashureev/skill-worlds/internal/store"
	"github.com/google/uuid"
)

// Gateway wraps a store.Repository.
type Gateway struct {
	repo    store.Repository
	retry   shared.RetryPolicy
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRetry sets the retry policy for busy database errors.
func WithRetry(p shared.RetryPolicy) Option {
	return func(g *Gateway) { g.retry = p }
}

// WithMetrics records persistence failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New creates a Gateway.
func New(repo store.Repository, opts ...Option) *Gateway {
	g := &Gateway{
		repo:  repo,
		retry: shared.DefaultRetryPolicy,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) fail(op, table string, err error) error {
	g.metrics.GatewayError(op + ":" + table)
	slog.Warn("Persistence call failed", "op", op, "table", table, "error", err)
	return &domain.StorageError{Op: op, Table: table, Err: err}
}

func (g *Gateway) write(ctx context.Context, op, table string, fn func(context.Context) error) error {
	if err := shared.RetryOnConflict(ctx, g.retry, op+" "+table, fn); err != nil {
		return g.fail(op, table, err)
	}
	return nil
}

func requireUser(sess domain.Session) error {
	if !sess.Authenticated() {
		return domain.ErrUnauthenticated
	}
	return nil
}

// CurrentUser returns the signed-in user of the session.
func (g *Gateway) CurrentUser(ctx context.Context, sess domain.Session) (*domain.User, error) {
	if err := requireUser(sess); err != nil {
		return nil, err
	}
	user, err := g.repo.GetUser(ctx, sess.UserID)
	if err != nil {
		return nil, g.fail("select", "users", err)
	}
	if user == nil {
		return nil, domain.ErrUnauthenticated
	}
	return user, nil
}

// SaveSelection persists the two selected careers. ID, UserID and CreatedAt
// are assigned here.
func (g *Gateway) SaveSelection(ctx context.Context, sess domain.Session, sel domain.SelectionResult) (domain.SelectionResult, error) {
	if err := requireUser(sess); err != nil {
		return domain.SelectionResult{}, err
	}
	if sel.CareerIDs[0] == "" || sel.CareerIDs[1] == "" || sel.CareerIDs[0] == sel.CareerIDs[1] {
		return domain.SelectionResult{}, domain.NewInputError("selected_careers", "exactly two distinct careers are required")
	}

	sel.ID = g.newID()
	sel.UserID = sess.UserID
	sel.CreatedAt = g.now()
	if sel.Preferences != nil {
		prefs := sel.Preferences.Clone()
		sel.Preferences = &prefs
	}

	err := g.write(ctx, "insert", "career_selections", func(ctx context.Context) error {
		return g.repo.InsertCareerSelection(ctx, &sel)
	})
	if err != nil {
		return domain.SelectionResult{}, err
	}
	return sel, nil
}

// SaveTestResult persists a submitted assessment.
func (g *Gateway) SaveTestResult(ctx context.Context, sess domain.Session, result domain.AssessmentResult) (domain.AssessmentResult, error) {
	if err := requireUser(sess); err != nil {
		return domain.AssessmentResult{}, err
	}

	result.ID = g.newID()
	result.UserID = sess.UserID
	result.CompletedAt = g.now()
	answers := make(map[string]string, len(result.Answers))
	for k, v := range result.Answers {
		answers[k] = v
	}
	result.Answers = answers

	err := g.write(ctx, "insert", "test_results", func(ctx context.Context) error {
		return g.repo.InsertTestResult(ctx, &result)
	})
	if err != nil {
		return domain.AssessmentResult{}, err
	}
	return result, nil
}

// SavePreference persists a primary/secondary ranking.
func (g *Gateway) SavePreference(ctx context.Context, sess domain.Session, pref domain.CareerPreference) (domain.CareerPreference, error) {
	if err := requireUser(sess); err != nil {
		return domain.CareerPreference{}, err
	}

	pref.ID = g.newID()
	pref.UserID = sess.UserID
	pref.CreatedAt = g.now()

	err := g.write(ctx, "insert", "career_preferences", func(ctx context.Context) error {
		return g.repo.InsertCareerPreference(ctx, &pref)
	})
	if err != nil {
		return domain.CareerPreference{}, err
	}
	return pref, nil
}

// MarkResourceCompleted records a finished learning resource.
func (g *Gateway) MarkResourceCompleted(ctx context.Context, sess domain.Session, resourceID string) error {
	if err := requireUser(sess); err != nil {
		return err
	}
	completed := &domain.CompletedResource{UserID: sess.UserID, ResourceID: resourceID, CompletedAt: g.now()}
	return g.write(ctx, "insert", "completed_resources", func(ctx context.Context) error {
		return g.repo.InsertCompletedResource(ctx, completed)
	})
}

// SaveProfile updates the session user's profile.
func (g *Gateway) SaveProfile(ctx context.Context, sess domain.Session, profile domain.Profile) (domain.Profile, error) {
	if err := requireUser(sess); err != nil {
		return domain.Profile{}, err
	}
	profile.UserID = sess.UserID
	profile.UpdatedAt = g.now()
	err := g.write(ctx, "upsert", "profiles", func(ctx context.Context) error {
		return g.repo.UpsertProfile(ctx, &profile)
	})
	if err != nil {
		return domain.Profile{}, err
	}
	return profile, nil
}

// TestResults returns the session user's results, newest first.
func (g *Gateway) TestResults(ctx context.Context, sess domain.Session) ([]*domain.AssessmentResult, error) {
	if err := requireUser(sess); err != nil {
		return nil, err
	}
	results, err := g.repo.ListTestResults(ctx, sess.UserID)
	if err != nil {
		return nil, g.fail("select", "test_results", err)
	}
	return results, nil
}

// LatestPreference returns the most recent ranking, or nil if none exists.
func (g *Gateway) LatestPreference(ctx context.Context, sess domain.Session) (*domain.CareerPreference, error) {
	if err := requireUser(sess); err != nil {
		return nil, err
	}
	pref, err := g.repo.LatestCareerPreference(ctx, sess.UserID)
	if err != nil {
		return nil, g.fail("select", "career_preferences", err)
	}
	return pref, nil
}

// LatestSelection returns the most recent selection, or nil if none exists.
func (g *Gateway) LatestSelection(ctx context.Context, sess domain.Session) (*domain.SelectionResult, error) {
	if err := requireUser(sess); err != nil {
		return nil, err
	}
	sel, err := g.repo.LatestCareerSelection(ctx, sess.UserID)
	if err != nil {
		return nil, g.fail("select", "career_selections", err)
	}
	return sel, nil
}

// CompletedResources returns the ids of resources the user has finished.
func (g *Gateway) CompletedResources(ctx context.Context, sess domain.Session) (map[string]time.Time, error) {
	if err := requireUser(sess); err != nil {
		return nil, err
	}
	list, err := g.repo.ListCompletedResources(ctx, sess.UserID)
	if err != nil {
		return nil, g.fail("select", "completed_resources", err)
	}
	out := make(map[string]time.Time, len(list))
	for _, c := range list {
		out[c.ResourceID] = c.CompletedAt
	}
	return out, nil
}

// Profile returns the session user's profile.
func (g *Gateway) Profile(ctx context.Context, sess domain.Session) (*domain.Profile, error) {
	if err := requireUser(sess); err != nil {
		return nil, err
	}
	p, err := g.repo.GetProfile(ctx, sess.UserID)
	if err != nil {
		return nil, g.fail("select", "profiles", err)
	}
	if p == nil {
		return nil, fmt.Errorf("profile for %s: %w", sess.UserID, domain.ErrNotFound)
	}
	return p, nil
}

// IsStorageError reports whether err came from a failed persistence call.
func IsStorageError(err error) bool {
	var se *domain.StorageError
	return errors.As(err, &se)
}
