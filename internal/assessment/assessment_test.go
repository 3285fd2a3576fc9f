package assessment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/skill-worlds/internal/catalog"
	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/ashureev/skill-worlds/internal/gateway"
	"github.com/ashureev/skill-worlds/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sess = domain.Session{UserID: "u1", SessionID: "tab-1"}

type fakeSaver struct {
	mu        sync.Mutex
	resultErr error
	prefErr   error
	gate      chan struct{}
	results   []domain.AssessmentResult
	prefs     []domain.CareerPreference
	prefCalls int
	saveCalls int
}

func (f *fakeSaver) SaveTestResult(ctx context.Context, _ domain.Session, r domain.AssessmentResult) (domain.AssessmentResult, error) {
	f.mu.Lock()
	f.saveCalls++
	gate, err := f.gate, f.resultErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return domain.AssessmentResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r.ID = fmt.Sprintf("res-%d", len(f.results)+1)
	f.results = append(f.results, r)
	return r, nil
}

func (f *fakeSaver) SavePreference(_ context.Context, _ domain.Session, p domain.CareerPreference) (domain.CareerPreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefCalls++
	if f.prefErr != nil {
		return domain.CareerPreference{}, f.prefErr
	}
	p.ID = "pref-1"
	f.prefs = append(f.prefs, p)
	return p, nil
}

func (f *fakeSaver) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveCalls
}

// quiz builds a test whose correct answer is always "right".
func quiz(careerID string, n int) domain.Test {
	t := domain.Test{ID: careerID + "-test", CareerID: careerID, Title: careerID}
	for i := 1; i <= n; i++ {
		t.Questions = append(t.Questions, domain.Question{
			ID:            fmt.Sprintf("%s-q%d", careerID, i),
			Text:          "?",
			Options:       []string{"right", "wrong"},
			CorrectAnswer: "right",
			Explanation:   "because",
		})
	}
	return t
}

type tests map[string]domain.Test

func (t tests) Test(careerID string) (domain.Test, bool) {
	v, ok := t[careerID]
	return v, ok
}

// answer walks an attempt answering the first `correct` questions right.
func answer(t *testing.T, a *Attempt, correct int) {
	t.Helper()
	for i := range a.Test().Questions {
		opt := "wrong"
		if i < correct {
			opt = "right"
		}
		require.NoError(t, a.Select(opt))
		if i < len(a.Test().Questions)-1 {
			r, err := a.Next(context.Background(), sess)
			require.NoError(t, err)
			require.Nil(t, r)
		}
	}
}

func TestScore(t *testing.T) {
	test := quiz("x", 5)
	answers := map[string]string{"x-q1": "right", "x-q2": "right", "x-q3": "right", "x-q4": "wrong"}
	assert.Equal(t, 60.0, Score(test, answers))
	assert.Equal(t, 0.0, Score(domain.Test{}, nil))

	for correct := 0; correct <= 5; correct++ {
		a := map[string]string{}
		for i := 1; i <= correct; i++ {
			a[fmt.Sprintf("x-q%d", i)] = "right"
		}
		s := Score(test, a)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 100.0)
	}
}

func TestRank(t *testing.T) {
	a := domain.AssessmentResult{CareerID: "a", Score: 80}
	b := domain.AssessmentResult{CareerID: "b", Score: 60}
	p, s := Rank(a, b)
	assert.Equal(t, "a", p.CareerID)
	assert.Equal(t, "b", s.CareerID)

	p, s = Rank(b, a)
	assert.Equal(t, "a", p.CareerID)
	assert.Equal(t, "b", s.CareerID)

	a.Score, b.Score = 70, 70
	p, _ = Rank(a, b)
	assert.Equal(t, "a", p.CareerID)
}

func TestAttemptFlow(t *testing.T) {
	saver := &fakeSaver{}
	a := NewAttempt(quiz("x", 3), saver, nil)

	v := a.Current()
	assert.Equal(t, StageAwaitingAnswer, v.Stage)
	assert.Equal(t, 3, v.Total)

	_, err := a.Next(context.Background(), sess)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = a.Explanation()
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.ErrorIs(t, a.Select("maybe"), domain.ErrInvalidInput)

	require.NoError(t, a.Select("wrong"))
	require.NoError(t, a.Select("right"))
	assert.Equal(t, StageAnswerSelected, a.Current().Stage)

	exp, err := a.Explanation()
	require.NoError(t, err)
	assert.True(t, exp.Correct)
	assert.Equal(t, "because", exp.Explanation)
	assert.Equal(t, StageShowExplanation, a.Current().Stage)

	r, err := a.Next(context.Background(), sess)
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.Equal(t, 1, a.Current().Index)
	assert.Equal(t, StageAwaitingAnswer, a.Current().Stage)

	require.NoError(t, a.Select("wrong"))
	_, err = a.Next(context.Background(), sess)
	require.NoError(t, err)
	require.NoError(t, a.Select("right"))
	assert.True(t, a.Current().Last)

	r, err = a.Next(context.Background(), sess)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.InDelta(t, 66.666, r.Score, 0.01)
	assert.Equal(t, map[string]string{"x-q1": "right", "x-q2": "wrong", "x-q3": "right"}, r.Answers)
	assert.Equal(t, StageComplete, a.Current().Stage)

	again, err := a.Submit(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, r.ID, again.ID)
	assert.Equal(t, 1, saver.calls())
}

func TestAttemptChangingAnswerHidesExplanation(t *testing.T) {
	a := NewAttempt(quiz("x", 2), &fakeSaver{}, nil)

	require.NoError(t, a.Select("wrong"))
	exp, err := a.Explanation()
	require.NoError(t, err)
	assert.False(t, exp.Correct)
	assert.Equal(t, StageShowExplanation, a.Current().Stage)

	require.NoError(t, a.Select("wrong"))
	assert.Equal(t, StageShowExplanation, a.Current().Stage)

	require.NoError(t, a.Select("right"))
	assert.Equal(t, StageAnswerSelected, a.Current().Stage)

	exp, err = a.Explanation()
	require.NoError(t, err)
	assert.True(t, exp.Correct)
	assert.Equal(t, StageShowExplanation, a.Current().Stage)
}

func TestAttemptSubmitFailureIsRetryable(t *testing.T) {
	saver := &fakeSaver{resultErr: errors.New("offline")}
	a := NewAttempt(quiz("x", 2), saver, nil)
	answer(t, a, 2)

	_, err := a.Submit(context.Background(), sess)
	require.Error(t, err)
	_, done := a.Result()
	assert.False(t, done)
	assert.Equal(t, StageAnswerSelected, a.Current().Stage)

	saver.mu.Lock()
	saver.resultErr = nil
	saver.mu.Unlock()

	r, err := a.Submit(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, 100.0, r.Score)
	assert.Equal(t, 2, saver.calls())
}

func TestAttemptDoubleSubmit(t *testing.T) {
	saver := &fakeSaver{gate: make(chan struct{})}
	a := NewAttempt(quiz("x", 5), saver, nil)
	answer(t, a, 3)

	done := make(chan error, 1)
	go func() {
		_, err := a.Submit(context.Background(), sess)
		done <- err
	}()
	require.Eventually(t, func() bool { return saver.calls() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err := a.Submit(context.Background(), sess)
	assert.ErrorIs(t, err, domain.ErrBusy)
	_, err = a.Next(context.Background(), sess)
	assert.ErrorIs(t, err, domain.ErrBusy)
	assert.ErrorIs(t, a.Select("right"), domain.ErrBusy)

	close(saver.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, saver.calls())

	r, ok := a.Result()
	require.True(t, ok)
	assert.Equal(t, 60.0, r.Score)
}

func TestSequencerRanksAfterBothTests(t *testing.T) {
	saver := &fakeSaver{}
	var completed []domain.AssessmentResult
	var final *domain.CareerPreference
	seq, err := NewSequencer([2]string{"a", "b"}, Config{
		Tests:          tests{"a": quiz("a", 5), "b": quiz("b", 5)},
		Saver:          saver,
		OnTestComplete: func(r domain.AssessmentResult) { completed = append(completed, r) },
		OnBothComplete: func(p domain.CareerPreference) { final = &p },
	})
	require.NoError(t, err)

	first, idx := seq.Current()
	assert.Equal(t, 0, idx)
	answer(t, first, 3)
	out, err := seq.Next(context.Background(), sess)
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.Nil(t, out.Preference)
	assert.Equal(t, PhaseTesting, seq.Phase())

	second, idx := seq.Current()
	assert.Equal(t, 1, idx)
	assert.Equal(t, "b", second.Test().CareerID)
	answer(t, second, 4)
	out, err = seq.Next(context.Background(), sess)
	require.NoError(t, err)
	require.NotNil(t, out.Preference)

	assert.Equal(t, "b", out.Preference.PrimaryCareerID)
	assert.Equal(t, 80.0, out.Preference.PrimaryScore)
	assert.Equal(t, "a", out.Preference.SecondaryCareerID)
	assert.Equal(t, 60.0, out.Preference.SecondaryScore)
	assert.Len(t, completed, 2)
	require.NotNil(t, final)
	assert.Equal(t, PhaseComplete, seq.Phase())

	_, err = seq.Finish(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, 1, saver.prefCalls)
}

func TestSequencerFinishRetry(t *testing.T) {
	saver := &fakeSaver{prefErr: errors.New("offline")}
	seq, err := NewSequencer([2]string{"a", "b"}, Config{
		Tests: tests{"a": quiz("a", 2), "b": quiz("b", 2)},
		Saver: saver,
	})
	require.NoError(t, err)

	for range 2 {
		a, _ := seq.Current()
		answer(t, a, 1)
		_, err = seq.Next(context.Background(), sess)
	}
	require.Error(t, err)
	assert.Equal(t, PhaseRanking, seq.Phase())
	assert.Len(t, seq.View().Results, 2)

	saver.mu.Lock()
	saver.prefErr = nil
	saver.mu.Unlock()

	pref, err := seq.Finish(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "a", pref.PrimaryCareerID)
	assert.Equal(t, PhaseComplete, seq.Phase())
}

func TestSequencerRejectsMissingTest(t *testing.T) {
	_, err := NewSequencer([2]string{"a", "missing"}, Config{Tests: tests{"a": quiz("a", 1)}, Saver: &fakeSaver{}})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = NewSequencer([2]string{"a", "a"}, Config{Tests: tests{"a": quiz("a", 1)}, Saver: &fakeSaver{}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSubmittedResultReadsBack(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	repo := storetest.NewMemory()
	repo.SeedUser("u1", "ada@example.com", "Ada Lovelace")
	gw := gateway.New(repo)

	test, ok := cat.Test("software-engineer")
	require.True(t, ok)
	a := NewAttempt(test, gw, nil)
	for i, q := range test.Questions {
		opt := q.CorrectAnswer
		if i >= 3 {
			for _, o := range q.Options {
				if o != q.CorrectAnswer {
					opt = o
					break
				}
			}
		}
		require.NoError(t, a.Select(opt))
		if i < len(test.Questions)-1 {
			_, err := a.Next(context.Background(), sess)
			require.NoError(t, err)
		}
	}
	submitted, err := a.Submit(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, 60.0, submitted.Score)

	stored, err := gw.TestResults(context.Background(), sess)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, submitted.Score, stored[0].Score)
	assert.Equal(t, submitted.Answers, stored[0].Answers)
}
