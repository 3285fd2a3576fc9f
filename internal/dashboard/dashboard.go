// Package dashboard aggregates a user's results, ranking, profile and
// learning resources.
package dashboard

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/ashureev/skill-worlds/internal/shared"
	"golang.org/x/sync/errgroup"
)

// Gateway is the persistence surface the dashboard reads and writes.
type Gateway interface {
	TestResults(ctx context.Context, sess domain.Session) ([]*domain.AssessmentResult, error)
	LatestPreference(ctx context.Context, sess domain.Session) (*domain.CareerPreference, error)
	LatestSelection(ctx context.Context, sess domain.Session) (*domain.SelectionResult, error)
	CompletedResources(ctx context.Context, sess domain.Session) (map[string]time.Time, error)
	Profile(ctx context.Context, sess domain.Session) (*domain.Profile, error)
	MarkResourceCompleted(ctx context.Context, sess domain.Session, resourceID string) error
	SaveProfile(ctx context.Context, sess domain.Session, profile domain.Profile) (domain.Profile, error)
}

// Catalog resolves careers and resources.
type Catalog interface {
	Career(id string) (domain.Career, bool)
	Resources(careerID string) []domain.LearningResource
	Resource(id string) (domain.LearningResource, bool)
}

// CareerProgress summarises the tests taken for one chosen career.
type CareerProgress struct {
	Career       domain.Career             `json:"career"`
	Progress     int                       `json:"progress"`
	LatestScore  *float64                  `json:"latest_score,omitempty"`
	LatestTestAt *time.Time                `json:"latest_test_at,omitempty"`
	Results      []domain.AssessmentResult `json:"results"`
}

// Resource is a learning resource with its completion state.
type Resource struct {
	domain.LearningResource
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Dashboard is everything the dashboard page renders.
type Dashboard struct {
	Profile    *domain.Profile           `json:"profile"`
	Preference *domain.CareerPreference  `json:"preference,omitempty"`
	Primary    *domain.Career            `json:"primary_career,omitempty"`
	Secondary  *domain.Career            `json:"secondary_career,omitempty"`
	Careers    []CareerProgress          `json:"careers"`
	Resources  []Resource                `json:"resources"`
	Results    []domain.AssessmentResult `json:"results"`
}

// ProfileUpdate edits the profile tab.
type ProfileUpdate struct {
	FullName          string `json:"full_name" validate:"required,max=120"`
	Age               int    `json:"age" validate:"required,min=1,max=120"`
	EducationLevel    string `json:"education_level" validate:"required,max=80"`
	CurrentlyStudying string `json:"currently_studying" validate:"max=120"`
}

// Service loads dashboards.
type Service struct {
	gw      Gateway
	catalog Catalog
}

// NewService creates a dashboard service.
func NewService(gw Gateway, catalog Catalog) *Service {
	return &Service{gw: gw, catalog: catalog}
}

// Load fetches results, ranking, selection, completions and profile in
// parallel and assembles the dashboard.
func (s *Service) Load(ctx context.Context, sess domain.Session) (*Dashboard, error) {
	if !sess.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}

	var (
		results   []*domain.AssessmentResult
		pref      *domain.CareerPreference
		selection *domain.SelectionResult
		completed map[string]time.Time
		profile   *domain.Profile
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		results, err = s.gw.TestResults(gctx, sess)
		return err
	})
	g.Go(func() (err error) {
		pref, err = s.gw.LatestPreference(gctx, sess)
		return err
	})
	g.Go(func() (err error) {
		selection, err = s.gw.LatestSelection(gctx, sess)
		return err
	})
	g.Go(func() (err error) {
		completed, err = s.gw.CompletedResources(gctx, sess)
		return err
	})
	g.Go(func() (err error) {
		profile, err = s.gw.Profile(gctx, sess)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load dashboard: %w", err)
	}

	d := &Dashboard{
		Profile:    profile,
		Preference: pref,
		Results:    make([]domain.AssessmentResult, 0, len(results)),
	}
	for _, r := range results {
		d.Results = append(d.Results, *r)
	}

	var chosen []string
	switch {
	case pref != nil:
		chosen = []string{pref.PrimaryCareerID, pref.SecondaryCareerID}
		if c, ok := s.catalog.Career(pref.PrimaryCareerID); ok {
			d.Primary = &c
		}
		if c, ok := s.catalog.Career(pref.SecondaryCareerID); ok {
			d.Secondary = &c
		}
	case selection != nil:
		chosen = []string{selection.CareerIDs[0], selection.CareerIDs[1]}
	}

	d.Careers = make([]CareerProgress, 0, len(chosen))
	d.Resources = []Resource{}
	for _, id := range chosen {
		career, ok := s.catalog.Career(id)
		if !ok {
			continue
		}
		d.Careers = append(d.Careers, progressFor(career, d.Results))
		for _, res := range s.catalog.Resources(id) {
			item := Resource{LearningResource: res}
			if at, done := completed[res.ID]; done {
				item.Completed = true
				item.CompletedAt = &at
			}
			d.Resources = append(d.Resources, item)
		}
	}
	return d, nil
}

// progressFor expects results newest first.
func progressFor(career domain.Career, results []domain.AssessmentResult) CareerProgress {
	p := CareerProgress{Career: career, Results: []domain.AssessmentResult{}}
	var sum float64
	for _, r := range results {
		if r.CareerID != career.ID {
			continue
		}
		if p.LatestScore == nil {
			score, at := r.Score, r.CompletedAt
			p.LatestScore = &score
			p.LatestTestAt = &at
		}
		sum += r.Score
		p.Results = append(p.Results, r)
	}
	if n := len(p.Results); n > 0 {
		p.Progress = int(math.Round(sum / float64(n)))
	}
	return p
}

// MarkResourceCompleted records a finished resource. Marking it again is a no-op.
func (s *Service) MarkResourceCompleted(ctx context.Context, sess domain.Session, resourceID string) error {
	if _, ok := s.catalog.Resource(resourceID); !ok {
		return fmt.Errorf("resource %q: %w", resourceID, domain.ErrNotFound)
	}
	return s.gw.MarkResourceCompleted(ctx, sess, resourceID)
}

// UpdateProfile validates and saves profile edits.
func (s *Service) UpdateProfile(ctx context.Context, sess domain.Session, upd ProfileUpdate) (domain.Profile, error) {
	if err := shared.Validate(upd); err != nil {
		return domain.Profile{}, err
	}
	return s.gw.SaveProfile(ctx, sess, domain.Profile{
		FullName:          upd.FullName,
		Age:               upd.Age,
		EducationLevel:    upd.EducationLevel,
		CurrentlyStudying: upd.CurrentlyStudying,
	})
}
