package selection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/ashureev/skill-worlds/internal/metrics"
)

// ManualConfig wires a Manual selection.
type ManualConfig struct {
	Catalog    CareerSource
	Saver      SelectionSaver
	OnSelected CompletionFunc
	Metrics    *metrics.Metrics
}

// Manual lets the user browse the whole catalog and pick two careers.
type Manual struct {
	mu     sync.Mutex
	busy   bool
	picks  Picks
	result *domain.SelectionResult

	catalog    CareerSource
	saver      SelectionSaver
	onSelected CompletionFunc
	metrics    *metrics.Metrics
}

// ManualView is a read-only snapshot of the manual selection.
type ManualView struct {
	Careers    []domain.Career         `json:"careers"`
	Selected   []string                `json:"selected"`
	CanProceed bool                    `json:"can_proceed"`
	Result     *domain.SelectionResult `json:"result,omitempty"`
}

// NewManual creates a manual selection over the catalog.
func NewManual(cfg ManualConfig) *Manual {
	return &Manual{
		catalog:    cfg.Catalog,
		saver:      cfg.Saver,
		onSelected: cfg.OnSelected,
		metrics:    cfg.Metrics,
	}
}

// Toggle adds or removes a career; a third pick is ignored. It reports
// whether the career is selected afterwards.
func (m *Manual) Toggle(careerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy {
		return false, domain.ErrBusy
	}
	if m.result != nil {
		return false, domain.NewInputError("career_id", "selection already submitted")
	}
	if _, ok := m.catalog.Career(careerID); !ok {
		return false, domain.NewInputError("career_id", fmt.Sprintf("unknown career %q", careerID))
	}
	return m.picks.Toggle(careerID), nil
}

// CanProceed reports whether exactly two careers are selected.
func (m *Manual) CanProceed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result == nil && m.picks.Ready()
}

// Proceed persists the selection and hands the pair to the completion
// callback. It cannot run twice concurrently or after it succeeded.
func (m *Manual) Proceed(ctx context.Context, sess domain.Session) (domain.SelectionResult, error) {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return domain.SelectionResult{}, domain.ErrBusy
	}
	if m.result != nil {
		m.mu.Unlock()
		return domain.SelectionResult{}, domain.NewInputError("selected_careers", "selection already submitted")
	}
	pair, ready := m.picks.Pair()
	if !ready {
		m.mu.Unlock()
		return domain.SelectionResult{}, domain.NewInputError("selected_careers", pickReminderText)
	}
	m.busy = true
	m.mu.Unlock()

	saved, err := m.saver.SaveSelection(ctx, sess, domain.SelectionResult{
		CareerIDs: pair,
		Method:    domain.MethodManual,
	})

	m.mu.Lock()
	m.busy = false
	if err != nil {
		m.mu.Unlock()
		slog.Warn("Failed to save manual selection", "user_id", sess.UserID, "error", err)
		return domain.SelectionResult{}, err
	}
	m.result = &saved
	m.mu.Unlock()

	m.metrics.Selection(string(domain.MethodManual))
	slog.Info("Careers selected", "user_id", sess.UserID, "method", domain.MethodManual, "careers", pair)

	if m.onSelected != nil {
		m.onSelected(pair)
	}
	return saved, nil
}

// View returns a snapshot of the manual selection.
func (m *Manual) View() ManualView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ManualView{
		Careers:    m.catalog.Careers(),
		Selected:   m.picks.IDs(),
		CanProceed: m.result == nil && m.picks.Ready(),
		Result:     m.result,
	}
}
