// Package selection drives the choice of exactly two careers, either through
// a scripted chatbot conversation or by browsing the catalog.
package selection

import (
	"context"

	"github.com/ashureev/skill-worlds/internal/domain"
)

// MaxPicks is the number of careers a selection must contain.
const MaxPicks = 2

// CareerSource is the catalog view the selection flow needs.
type CareerSource interface {
	Careers() []domain.Career
	Career(id string) (domain.Career, bool)
}

// SelectionSaver persists a finished selection.
type SelectionSaver interface {
	SaveSelection(ctx context.Context, sess domain.Session, sel domain.SelectionResult) (domain.SelectionResult, error)
}

// CompletionFunc receives the two selected career ids in pick order.
type CompletionFunc func(careerIDs [2]string)

// Picks is an insertion-ordered set capped at MaxPicks. Adding a third id
// while the set is full is a no-op.
type Picks struct {
	ids []string
}

// Toggle removes id if present, otherwise adds it when there is room.
// It reports whether id is selected afterwards.
func (p *Picks) Toggle(id string) bool {
	for i, existing := range p.ids {
		if existing == id {
			p.ids = append(p.ids[:i:i], p.ids[i+1:]...)
			return false
		}
	}
	if len(p.ids) >= MaxPicks {
		return false
	}
	p.ids = append(p.ids, id)
	return true
}

// Has reports whether id is selected.
func (p *Picks) Has(id string) bool {
	for _, existing := range p.ids {
		if existing == id {
			return true
		}
	}
	return false
}

// Len returns the number of selected ids.
func (p *Picks) Len() int { return len(p.ids) }

// Ready reports whether exactly MaxPicks ids are selected.
func (p *Picks) Ready() bool { return len(p.ids) == MaxPicks }

// IDs returns a copy of the selected ids in pick order.
func (p *Picks) IDs() []string {
	return append([]string(nil), p.ids...)
}

// Pair returns the two selected ids once Ready.
func (p *Picks) Pair() ([2]string, bool) {
	if !p.Ready() {
		return [2]string{}, false
	}
	return [2]string{p.ids[0], p.ids[1]}, true
}
