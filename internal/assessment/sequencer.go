package assessment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/ashureev/skill-worlds/internal/metrics"
)

// TestSource looks up the test for a career.
type TestSource interface {
	Test(careerID string) (domain.Test, bool)
}

// Saver persists test results and the final ranking.
type Saver interface {
	ResultSaver
	SavePreference(ctx context.Context, sess domain.Session, pref domain.CareerPreference) (domain.CareerPreference, error)
}

// Phase is the sequencer's overall position.
type Phase string

const (
	PhaseTesting  Phase = "testing"
	PhaseRanking  Phase = "ranking"
	PhaseComplete Phase = "complete"
)

// Config wires a Sequencer.
type Config struct {
	Tests          TestSource
	Saver          Saver
	Metrics        *metrics.Metrics
	OnTestComplete func(domain.AssessmentResult)
	OnBothComplete func(domain.CareerPreference)
}

// Outcome reports what a Next or Submit call persisted.
type Outcome struct {
	Result     *domain.AssessmentResult `json:"result,omitempty"`
	Preference *domain.CareerPreference `json:"preference,omitempty"`
}

// View is the sequencer state for the test screen.
type View struct {
	Phase      Phase                     `json:"phase"`
	Index      int                       `json:"index"`
	CareerIDs  [2]string                 `json:"career_ids"`
	Question   *QuestionView             `json:"question,omitempty"`
	Results    []domain.AssessmentResult `json:"results"`
	Preference *domain.CareerPreference  `json:"preference,omitempty"`
}

// Sequencer runs the two tests in pick order and ranks the careers.
type Sequencer struct {
	mu        sync.Mutex
	careerIDs [2]string
	attempts  [2]*Attempt
	index     int
	results   []domain.AssessmentResult
	pref      *domain.CareerPreference
	finishing bool

	saver          Saver
	metrics        *metrics.Metrics
	onTestComplete func(domain.AssessmentResult)
	onBothComplete func(domain.CareerPreference)
}

// NewSequencer prepares both tests. Every career must have a test.
func NewSequencer(careerIDs [2]string, cfg Config) (*Sequencer, error) {
	if careerIDs[0] == careerIDs[1] {
		return nil, domain.NewInputError("career_ids", "careers must be distinct")
	}
	s := &Sequencer{
		careerIDs:      careerIDs,
		saver:          cfg.Saver,
		metrics:        cfg.Metrics,
		onTestComplete: cfg.OnTestComplete,
		onBothComplete: cfg.OnBothComplete,
	}
	for i, id := range careerIDs {
		test, ok := cfg.Tests.Test(id)
		if !ok || len(test.Questions) == 0 {
			return nil, fmt.Errorf("no test for career %q: %w", id, domain.ErrNotFound)
		}
		s.attempts[i] = NewAttempt(test, cfg.Saver, cfg.Metrics)
	}
	return s, nil
}

// Current returns the attempt in progress and its index, or nil once both
// tests are submitted.
func (s *Sequencer) Current() (*Attempt, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index >= len(s.attempts) {
		return nil, s.index
	}
	return s.attempts[s.index], s.index
}

func (s *Sequencer) current() (*Attempt, error) {
	a, _ := s.Current()
	if a == nil {
		return nil, domain.NewInputError("test", "both tests are already submitted")
	}
	return a, nil
}

// Select answers the current question of the current test.
func (s *Sequencer) Select(option string) error {
	a, err := s.current()
	if err != nil {
		return err
	}
	return a.Select(option)
}

// Explanation reveals the answer to the current question.
func (s *Sequencer) Explanation() (ExplanationView, error) {
	a, err := s.current()
	if err != nil {
		return ExplanationView{}, err
	}
	return a.Explanation()
}

// Next advances the current test, submitting it after the last question.
func (s *Sequencer) Next(ctx context.Context, sess domain.Session) (Outcome, error) {
	a, err := s.current()
	if err != nil {
		return Outcome{}, err
	}
	result, err := a.Next(ctx, sess)
	if err != nil || result == nil {
		return Outcome{}, err
	}
	return s.completed(ctx, sess, a, *result)
}

// Submit retries the submission of the current test.
func (s *Sequencer) Submit(ctx context.Context, sess domain.Session) (Outcome, error) {
	a, err := s.current()
	if err != nil {
		return Outcome{}, err
	}
	result, err := a.Submit(ctx, sess)
	if err != nil {
		return Outcome{}, err
	}
	return s.completed(ctx, sess, a, result)
}

// completed moves past a submitted attempt. When it was the second test the
// ranking is persisted too; if that fails the result still stands and
// Finish can be retried.
func (s *Sequencer) completed(ctx context.Context, sess domain.Session, a *Attempt, result domain.AssessmentResult) (Outcome, error) {
	out := Outcome{Result: &result}

	s.mu.Lock()
	if s.index >= len(s.attempts) || s.attempts[s.index] != a {
		s.mu.Unlock()
		return out, nil
	}
	s.results = append(s.results, result)
	s.index++
	last := s.index == len(s.attempts)
	s.mu.Unlock()

	if s.onTestComplete != nil {
		s.onTestComplete(result)
	}
	if !last {
		return out, nil
	}

	pref, err := s.Finish(ctx, sess)
	if err != nil {
		return out, err
	}
	out.Preference = &pref
	return out, nil
}

// Finish ranks both results and persists the preference once.
func (s *Sequencer) Finish(ctx context.Context, sess domain.Session) (domain.CareerPreference, error) {
	s.mu.Lock()
	if s.pref != nil {
		p := *s.pref
		s.mu.Unlock()
		return p, nil
	}
	if len(s.results) < len(s.attempts) {
		s.mu.Unlock()
		return domain.CareerPreference{}, domain.NewInputError("test", "both tests must be submitted first")
	}
	if s.finishing {
		s.mu.Unlock()
		return domain.CareerPreference{}, domain.ErrBusy
	}
	s.finishing = true
	primary, secondary := Rank(s.results[0], s.results[1])
	s.mu.Unlock()

	saved, err := s.saver.SavePreference(ctx, sess, domain.CareerPreference{
		PrimaryCareerID:   primary.CareerID,
		SecondaryCareerID: secondary.CareerID,
		PrimaryScore:      primary.Score,
		SecondaryScore:    secondary.Score,
	})

	s.mu.Lock()
	s.finishing = false
	if err != nil {
		s.mu.Unlock()
		slog.Warn("Failed to save career preference", "user_id", sess.UserID, "error", err)
		return domain.CareerPreference{}, err
	}
	s.pref = &saved
	s.mu.Unlock()

	slog.Info("Careers ranked", "user_id", sess.UserID, "primary", saved.PrimaryCareerID, "secondary", saved.SecondaryCareerID)
	if s.onBothComplete != nil {
		s.onBothComplete(saved)
	}
	return saved, nil
}

// Phase reports whether tests are running, the ranking is pending, or
// everything is persisted.
func (s *Sequencer) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phaseLocked()
}

func (s *Sequencer) phaseLocked() Phase {
	switch {
	case s.pref != nil:
		return PhaseComplete
	case s.index >= len(s.attempts):
		return PhaseRanking
	default:
		return PhaseTesting
	}
}

// View returns a snapshot for rendering.
func (s *Sequencer) View() View {
	s.mu.Lock()
	v := View{
		Phase:      s.phaseLocked(),
		Index:      s.index,
		CareerIDs:  s.careerIDs,
		Results:    append([]domain.AssessmentResult(nil), s.results...),
		Preference: s.pref,
	}
	var a *Attempt
	if s.index < len(s.attempts) {
		a = s.attempts[s.index]
	}
	s.mu.Unlock()

	if a != nil {
		q := a.Current()
		v.Question = &q
	}
	return v
}
