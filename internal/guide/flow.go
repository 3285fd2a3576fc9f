// Package guide owns the per-tab guided flow: career selection, then the two
// assessments, then the dashboard hand-off.
package guide

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/skill-worlds/internal/assessment"
	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/ashureev/skill-worlds/internal/metrics"
	"github.com/ashureev/skill-worlds/internal/selection"
)

// Stage is where a flow is in the guided journey.
type Stage string

const (
	StageChoosingMethod Stage = "choosing_method"
	StageSelecting      Stage = "selecting"
	StageAssessing      Stage = "assessing"
	StageComplete       Stage = "complete"
)

// Catalog is the read-only data a flow needs.
type Catalog interface {
	selection.CareerSource
	assessment.TestSource
	Resources(careerID string) []domain.LearningResource
}

// Saver persists everything a flow produces.
type Saver interface {
	selection.SelectionSaver
	assessment.Saver
}

// TranscriptSink receives every chatbot message.
type TranscriptSink interface {
	Message(sess domain.Session, msg domain.ChatMessage)
}

// Deps are shared by every flow.
type Deps struct {
	Catalog    Catalog
	Saver      Saver
	ThinkDelay time.Duration
	Metrics    *metrics.Metrics
	Transcript TranscriptSink
	Now        func() time.Time
}

// View is the flow snapshot rendered by the client.
type View struct {
	Stage      Stage                     `json:"stage"`
	Method     domain.SelectionMethod    `json:"method,omitempty"`
	Chat       *selection.ChatView       `json:"chat,omitempty"`
	Manual     *selection.ManualView     `json:"manual,omitempty"`
	Assessment *assessment.View          `json:"assessment,omitempty"`
	Resources  []domain.LearningResource `json:"resources,omitempty"`
	Preference *domain.CareerPreference  `json:"preference,omitempty"`
	Selected   []string                  `json:"selected_careers,omitempty"`
}

// Flow is one tab's journey.
type Flow struct {
	mu        sync.Mutex
	sess      domain.Session
	stage     Stage
	method    domain.SelectionMethod
	chatbot   *selection.Chatbot
	manual    *selection.Manual
	sequencer *assessment.Sequencer
	selected  [2]string
	pref      *domain.CareerPreference
	lastSeen  time.Time

	deps Deps
}

// NewFlow starts a flow with the given selection method. An empty method
// leaves the flow waiting for a choice.
func NewFlow(sess domain.Session, method domain.SelectionMethod, deps Deps) (*Flow, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	f := &Flow{
		sess:     sess,
		stage:    StageChoosingMethod,
		deps:     deps,
		lastSeen: deps.Now(),
	}
	if method == "" {
		return f, nil
	}
	if err := f.Choose(method); err != nil {
		return nil, err
	}
	return f, nil
}

// Choose picks the selection method. It can only be made once.
func (f *Flow) Choose(method domain.SelectionMethod) error {
	if !method.Valid() {
		return domain.NewInputError("method", fmt.Sprintf("unknown method %q", method))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSeen = f.deps.Now()

	if f.stage != StageChoosingMethod {
		return domain.NewInputError("method", "selection method already chosen")
	}

	switch method {
	case domain.MethodChatbot:
		f.chatbot = selection.NewChatbot(selection.ChatbotConfig{
			Catalog:    f.deps.Catalog,
			Saver:      f.deps.Saver,
			ThinkDelay: f.deps.ThinkDelay,
			OnSelected: f.careersSelected,
			OnMessage:  f.logMessage,
			Metrics:    f.deps.Metrics,
			Now:        f.deps.Now,
		})
	case domain.MethodManual:
		f.manual = selection.NewManual(selection.ManualConfig{
			Catalog:    f.deps.Catalog,
			Saver:      f.deps.Saver,
			OnSelected: f.careersSelected,
			Metrics:    f.deps.Metrics,
		})
	}
	f.method = method
	f.stage = StageSelecting
	return nil
}

func (f *Flow) logMessage(msg domain.ChatMessage) {
	if f.deps.Transcript != nil {
		f.deps.Transcript.Message(f.sess, msg)
	}
}

// careersSelected starts the assessments for the two picked careers.
func (f *Flow) careersSelected(ids [2]string) {
	seq, err := assessment.NewSequencer(ids, assessment.Config{
		Tests:          f.deps.Catalog,
		Saver:          f.deps.Saver,
		Metrics:        f.deps.Metrics,
		OnBothComplete: f.bothComplete,
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = ids
	if err != nil {
		slog.Error("Failed to start assessments", "user_id", f.sess.UserID, "careers", ids, "error", err)
		return
	}
	f.sequencer = seq
	f.stage = StageAssessing
}

func (f *Flow) bothComplete(pref domain.CareerPreference) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pref = &pref
	f.stage = StageComplete
}

// Touch records activity for the idle sweeper.
func (f *Flow) Touch() {
	f.mu.Lock()
	f.lastSeen = f.deps.Now()
	f.mu.Unlock()
}

// IdleSince returns the last time the flow was used.
func (f *Flow) IdleSince() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSeen
}

// Session returns the owning session.
func (f *Flow) Session() domain.Session { return f.sess }

// Stage returns the current stage.
func (f *Flow) Stage() Stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stage
}

// Chatbot returns the chatbot while the chatbot method is selecting.
func (f *Flow) Chatbot() (*selection.Chatbot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSeen = f.deps.Now()
	if f.chatbot == nil {
		return nil, domain.NewInputError("method", "flow is not using the chatbot")
	}
	return f.chatbot, nil
}

// Manual returns the manual picker while the manual method is selecting.
func (f *Flow) Manual() (*selection.Manual, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSeen = f.deps.Now()
	if f.manual == nil {
		return nil, domain.NewInputError("method", "flow is not using manual selection")
	}
	return f.manual, nil
}

// Assessment returns the sequencer once two careers are selected.
func (f *Flow) Assessment() (*assessment.Sequencer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSeen = f.deps.Now()
	if f.sequencer == nil {
		return nil, domain.NewInputError("stage", "select two careers before taking the tests")
	}
	return f.sequencer, nil
}

// Finish retries persisting the ranking after both tests.
func (f *Flow) Finish(ctx context.Context) (domain.CareerPreference, error) {
	seq, err := f.Assessment()
	if err != nil {
		return domain.CareerPreference{}, err
	}
	return seq.Finish(ctx, f.sess)
}

// View returns a snapshot of the whole flow. Resources are listed for every
// career whose test has been submitted.
func (f *Flow) View() View {
	f.mu.Lock()
	v := View{
		Stage:      f.stage,
		Method:     f.method,
		Preference: f.pref,
	}
	if f.selected[0] != "" {
		v.Selected = []string{f.selected[0], f.selected[1]}
	}
	chatbot, manual, seq := f.chatbot, f.manual, f.sequencer
	f.mu.Unlock()

	if chatbot != nil {
		cv := chatbot.View()
		v.Chat = &cv
	}
	if manual != nil {
		mv := manual.View()
		v.Manual = &mv
	}
	if seq != nil {
		av := seq.View()
		v.Assessment = &av
		for _, r := range av.Results {
			v.Resources = append(v.Resources, f.deps.Catalog.Resources(r.CareerID)...)
		}
	}
	return v
}
