// Package assessment runs the mock test for each selected career, scores it
// and ranks the two careers once both tests are submitted.
package assessment

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/ashureev/skill-worlds/internal/metrics"
)

// ResultSaver persists a scored test.
type ResultSaver interface {
	SaveTestResult(ctx context.Context, sess domain.Session, result domain.AssessmentResult) (domain.AssessmentResult, error)
}

// Stage is the position inside a single test.
type Stage string

const (
	StageAwaitingAnswer  Stage = "awaiting_answer"
	StageAnswerSelected  Stage = "answer_selected"
	StageShowExplanation Stage = "show_explanation"
	StageSubmitting      Stage = "submitting"
	StageComplete        Stage = "complete"
)

// QuestionView is what the test screen renders for the current question.
type QuestionView struct {
	TestID   string          `json:"test_id"`
	CareerID string          `json:"career_id"`
	Title    string          `json:"title"`
	Index    int             `json:"index"`
	Total    int             `json:"total"`
	Question domain.Question `json:"question"`
	Selected string          `json:"selected,omitempty"`
	Stage    Stage           `json:"stage"`
	Last     bool            `json:"last"`
}

// ExplanationView reveals the answer to the current question.
type ExplanationView struct {
	QuestionID    string `json:"question_id"`
	Selected      string `json:"selected"`
	CorrectAnswer string `json:"correct_answer"`
	Correct       bool   `json:"correct"`
	Explanation   string `json:"explanation"`
}

// Attempt is one pass through a career's test.
type Attempt struct {
	mu         sync.Mutex
	test       domain.Test
	index      int
	answers    map[string]string
	explained  bool
	submitting bool
	result     *domain.AssessmentResult
	saver      ResultSaver
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewAttempt starts a test at its first question.
func NewAttempt(test domain.Test, saver ResultSaver, m *metrics.Metrics) *Attempt {
	return &Attempt{
		test:    test,
		answers: make(map[string]string, len(test.Questions)),
		saver:   saver,
		metrics: m,
		now:     time.Now,
	}
}

// Test returns the test being taken.
func (a *Attempt) Test() domain.Test { return a.test }

func (a *Attempt) stageLocked() Stage {
	switch {
	case a.result != nil:
		return StageComplete
	case a.submitting:
		return StageSubmitting
	case a.explained:
		return StageShowExplanation
	case a.answers[a.test.Questions[a.index].ID] != "":
		return StageAnswerSelected
	default:
		return StageAwaitingAnswer
	}
}

// Current returns the question on screen.
func (a *Attempt) Current() QuestionView {
	a.mu.Lock()
	defer a.mu.Unlock()

	q := a.test.Questions[a.index]
	return QuestionView{
		TestID:   a.test.ID,
		CareerID: a.test.CareerID,
		Title:    a.test.Title,
		Index:    a.index,
		Total:    len(a.test.Questions),
		Question: q,
		Selected: a.answers[q.ID],
		Stage:    a.stageLocked(),
		Last:     a.index == len(a.test.Questions)-1,
	}
}

// Select records an answer for the current question, replacing any earlier one.
func (a *Attempt) Select(option string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.submitting {
		return domain.ErrBusy
	}
	if a.result != nil {
		return domain.NewInputError("option", "test already submitted")
	}
	q := a.test.Questions[a.index]
	if !q.HasOption(option) {
		return domain.NewInputError("option", fmt.Sprintf("%q is not an option for %s", option, q.ID))
	}
	if a.answers[q.ID] != option {
		a.explained = false
	}
	a.answers[q.ID] = option
	return nil
}

// Explanation shows whether the selected answer is right and why.
func (a *Attempt) Explanation() (ExplanationView, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	q := a.test.Questions[a.index]
	selected := a.answers[q.ID]
	if selected == "" {
		return ExplanationView{}, domain.NewInputError("option", "select an answer first")
	}
	if a.result == nil && !a.submitting {
		a.explained = true
	}
	return ExplanationView{
		QuestionID:    q.ID,
		Selected:      selected,
		CorrectAnswer: q.CorrectAnswer,
		Correct:       selected == q.CorrectAnswer,
		Explanation:   q.Explanation,
	}, nil
}

// Next moves to the following question. On the last question it submits
// and returns the stored result.
func (a *Attempt) Next(ctx context.Context, sess domain.Session) (*domain.AssessmentResult, error) {
	a.mu.Lock()
	if a.submitting {
		a.mu.Unlock()
		return nil, domain.ErrBusy
	}
	if a.result != nil {
		a.mu.Unlock()
		return nil, domain.NewInputError("option", "test already submitted")
	}
	q := a.test.Questions[a.index]
	if a.answers[q.ID] == "" {
		a.mu.Unlock()
		return nil, domain.NewInputError("option", "select an answer first")
	}
	if a.index < len(a.test.Questions)-1 {
		a.index++
		a.explained = false
		a.mu.Unlock()
		return nil, nil
	}
	a.mu.Unlock()

	result, err := a.Submit(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Submit scores the answers and persists the result. A submit already in
// flight fails with ErrBusy; a completed attempt returns its stored result.
// Failures leave the attempt open so the caller can submit again.
func (a *Attempt) Submit(ctx context.Context, sess domain.Session) (domain.AssessmentResult, error) {
	a.mu.Lock()
	if a.result != nil {
		r := *a.result
		a.mu.Unlock()
		return r, nil
	}
	if a.submitting {
		a.mu.Unlock()
		return domain.AssessmentResult{}, domain.ErrBusy
	}
	for _, q := range a.test.Questions {
		if a.answers[q.ID] == "" {
			a.mu.Unlock()
			return domain.AssessmentResult{}, domain.NewInputError("answers", fmt.Sprintf("question %s is unanswered", q.ID))
		}
	}
	a.submitting = true
	pending := domain.AssessmentResult{
		TestID:      a.test.ID,
		CareerID:    a.test.CareerID,
		Score:       Score(a.test, a.answers),
		Answers:     maps.Clone(a.answers),
		CompletedAt: a.now(),
	}
	a.mu.Unlock()

	saved, err := a.saver.SaveTestResult(ctx, sess, pending)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.submitting = false
	if err != nil {
		slog.Warn("Failed to save test result", "user_id", sess.UserID, "test_id", a.test.ID, "error", err)
		return domain.AssessmentResult{}, err
	}
	a.result = &saved
	a.metrics.Assessment(saved.CareerID, saved.Score)
	slog.Info("Test submitted", "user_id", sess.UserID, "test_id", saved.TestID, "score", saved.Score)
	return saved, nil
}

// Result returns the stored result once submitted.
func (a *Attempt) Result() (domain.AssessmentResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result == nil {
		return domain.AssessmentResult{}, false
	}
	return *a.result, true
}

// Score is the percentage of questions answered correctly.
func Score(test domain.Test, answers map[string]string) float64 {
	total := len(test.Questions)
	if total == 0 {
		return 0
	}
	correct := 0
	for _, q := range test.Questions {
		if answers[q.ID] == q.CorrectAnswer {
			correct++
		}
	}
	return float64(correct*100) / float64(total)
}

// Rank orders two results by score. The first result wins a tie.
func Rank(first, second domain.AssessmentResult) (primary, secondary domain.AssessmentResult) {
	if second.Score > first.Score {
		return second, first
	}
	return first, second
}
