package selection

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/ashureev/skill-worlds/internal/metrics"
	"github.com/google/uuid"
)

// ChatbotConfig wires a Chatbot.
type ChatbotConfig struct {
	Catalog    CareerSource
	Saver      SelectionSaver
	ThinkDelay time.Duration
	OnSelected CompletionFunc
	// OnMessage observes every appended transcript entry.
	OnMessage func(domain.ChatMessage)
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Chatbot is the menu-driven conversation that ends with two careers picked.
// Each reply advances Step by one and appends one user and one bot message.
// Chip toggles never advance Step.
type Chatbot struct {
	mu          sync.Mutex
	busy        bool
	state       State
	step        int
	transcript  []domain.ChatMessage
	prefs       domain.PreferenceProfile
	userName    string
	subject     string
	recommended []domain.Career
	picks       Picks
	result      *domain.SelectionResult

	catalog    CareerSource
	saver      SelectionSaver
	think      time.Duration
	onSelected CompletionFunc
	onMessage  func(domain.ChatMessage)
	metrics    *metrics.Metrics
	now        func() time.Time
}

// ChatView is a read-only snapshot of the conversation.
type ChatView struct {
	State       State                    `json:"state"`
	Step        int                      `json:"step"`
	Messages    []domain.ChatMessage     `json:"messages"`
	Options     []string                 `json:"options,omitempty"`
	Recommended []domain.Career          `json:"recommended,omitempty"`
	Selected    []string                 `json:"selected"`
	CanContinue bool                     `json:"can_continue"`
	Preferences domain.PreferenceProfile `json:"preferences"`
	Result      *domain.SelectionResult  `json:"result,omitempty"`
}

// NewChatbot starts a conversation with the greeting already in the transcript.
func NewChatbot(cfg ChatbotConfig) *Chatbot {
	c := &Chatbot{
		state:      StateAskName,
		catalog:    cfg.Catalog,
		saver:      cfg.Saver,
		think:      cfg.ThinkDelay,
		onSelected: cfg.OnSelected,
		onMessage:  cfg.OnMessage,
		metrics:    cfg.Metrics,
		now:        cfg.Now,
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.appendLocked(c.prompt(StateAskName))
	return c
}

func (c *Chatbot) appendLocked(msg domain.ChatMessage) domain.ChatMessage {
	msg.ID = uuid.NewString()
	msg.CreatedAt = c.now()
	c.transcript = append(c.transcript, msg)
	if c.onMessage != nil {
		c.onMessage(msg)
	}
	return msg
}

// begin marks an operation in flight. Every mutating call goes through it so
// no two transitions interleave.
func (c *Chatbot) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return domain.ErrBusy
	}
	c.busy = true
	return nil
}

func (c *Chatbot) end() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

// pause simulates the bot typing. A cancelled context aborts the transition.
func (c *Chatbot) pause(ctx context.Context) error {
	if c.think <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.think)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Reply answers the current question. Menu steps accept only one of the
// offered options; anything else is rejected without changing state.
// It returns the user and bot messages it appended.
func (c *Chatbot) Reply(ctx context.Context, text string) ([]domain.ChatMessage, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()

	text = strings.TrimSpace(text)

	c.mu.Lock()
	state := c.state
	var tr transition
	var known bool
	if state != StatePickCareers {
		tr, known = transitions[state]
	}
	var options []string
	if known && tr.options != nil {
		options = tr.options(c)
	}
	c.mu.Unlock()

	if err := validateReply(state, known, options, text); err != nil {
		c.metrics.ChatReply(state.String(), "invalid")
		return nil, err
	}

	if err := c.pause(ctx); err != nil {
		c.metrics.ChatReply(state.String(), "cancelled")
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	userMsg := c.appendLocked(domain.ChatMessage{Speaker: domain.SpeakerUser, Text: text})
	var botMsg domain.ChatMessage
	if state == StatePickCareers {
		botMsg = c.appendLocked(domain.ChatMessage{Speaker: domain.SpeakerBot, Text: pickReminderText})
	} else {
		tr.record(c, text)
		c.state = tr.next
		botMsg = c.appendLocked(c.prompt(tr.next))
	}
	c.step++
	c.metrics.ChatReply(state.String(), "ok")

	return []domain.ChatMessage{userMsg, botMsg}, nil
}

func validateReply(state State, known bool, options []string, text string) error {
	switch {
	case state == StateDone:
		return domain.NewInputError("text", "the conversation has finished")
	case state != StatePickCareers && !known:
		return domain.NewInputError("text", fmt.Sprintf("no transition from %s", state))
	case text == "":
		return domain.NewInputError("text", "reply cannot be empty")
	case options != nil && !contains(options, text):
		return domain.NewInputError("text", "choose one of the offered options")
	}
	return nil
}

func contains(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}

// Toggle flips a recommended career chip. Only allowed while picking, and
// only for recommended careers; a third pick while two are selected is
// ignored. It reports whether the career is selected afterwards.
func (c *Chatbot) Toggle(careerID string) (bool, error) {
	if err := c.begin(); err != nil {
		return false, err
	}
	defer c.end()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePickCareers {
		return false, domain.NewInputError("career_id", "careers can only be selected after the questions")
	}
	recommended := false
	for _, r := range c.recommended {
		if r.ID == careerID {
			recommended = true
			break
		}
	}
	if !recommended {
		return false, domain.NewInputError("career_id", fmt.Sprintf("%q was not recommended", careerID))
	}
	return c.picks.Toggle(careerID), nil
}

// Continue persists the two picked careers and closes the conversation.
// On failure nothing changes and the call may be retried.
func (c *Chatbot) Continue(ctx context.Context, sess domain.Session) (domain.SelectionResult, error) {
	if err := c.begin(); err != nil {
		return domain.SelectionResult{}, err
	}
	defer c.end()

	c.mu.Lock()
	state := c.state
	pair, ready := c.picks.Pair()
	prefs := c.prefs.Clone()
	c.mu.Unlock()

	if state != StatePickCareers {
		return domain.SelectionResult{}, domain.NewInputError("state", fmt.Sprintf("cannot continue from %s", state))
	}
	if !ready {
		return domain.SelectionResult{}, domain.NewInputError("selected_careers", pickReminderText)
	}

	if err := c.pause(ctx); err != nil {
		return domain.SelectionResult{}, err
	}

	saved, err := c.saver.SaveSelection(ctx, sess, domain.SelectionResult{
		CareerIDs:   pair,
		Method:      domain.MethodChatbot,
		Preferences: &prefs,
	})
	if err != nil {
		slog.Warn("Failed to save chatbot selection", "user_id", sess.UserID, "error", err)
		return domain.SelectionResult{}, err
	}

	c.mu.Lock()
	c.result = &saved
	c.state = StateDone
	c.appendLocked(c.prompt(StateDone))
	c.step++
	c.mu.Unlock()

	c.metrics.Selection(string(domain.MethodChatbot))
	slog.Info("Careers selected", "user_id", sess.UserID, "method", domain.MethodChatbot, "careers", pair)

	if c.onSelected != nil {
		c.onSelected(pair)
	}
	return saved, nil
}

// State returns the current conversation state.
func (c *Chatbot) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Step returns the number of transitions taken.
func (c *Chatbot) Step() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// View returns a snapshot of the conversation.
func (c *Chatbot) View() ChatView {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := ChatView{
		State:       c.state,
		Step:        c.step,
		Messages:    append([]domain.ChatMessage(nil), c.transcript...),
		Recommended: append([]domain.Career(nil), c.recommended...),
		Selected:    c.picks.IDs(),
		CanContinue: c.state == StatePickCareers && c.picks.Ready(),
		Preferences: c.prefs.Clone(),
		Result:      c.result,
	}
	if tr, ok := transitions[c.state]; ok && tr.options != nil {
		v.Options = append([]string(nil), tr.options(c)...)
	}
	return v
}
