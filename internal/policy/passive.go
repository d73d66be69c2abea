package policy

import (
	"fmt"

	"github.com/bamsammich/ferry/internal/decision"
	"github.com/bamsammich/ferry/internal/entry"
	"github.com/bamsammich/ferry/internal/task"
)

// Passive is the interactive machinery with nobody to ask: every
// question kind is seeded with a blanket answer at construction, so
// the surface shows the run but never prompts. Conflicting
// destinations are overwritten, failed entries skipped, non-empty
// directories deleted, and partial files removed. The surface refuses
// operator close requests while the task runs.
type Passive struct {
	*Interactive
}

// NewPassive returns a passive policy presenting through surf.
func NewPassive(surf Surface, st *State, rec Recorder) *Passive {
	st.Passive = true
	st.Seed(decision.KindOverwrite, decision.Overwrite)
	st.Seed(decision.KindIOError, decision.Skip)
	st.Seed(decision.KindNonEmptyDir, decision.Delete)
	return &Passive{Interactive: NewInteractive(surf, st, rec)}
}

// DecidePartial deletes without asking; partial questions have no
// blanket memory, so the override is hard-wired here.
func (p *Passive) DecidePartial(_, _ entry.Entry) decision.Decision {
	return decision.Decision{Tag: decision.Delete}
}

// Start mirrors Interactive.Start with the passive policy as the
// driver's target. The embedded Start would pump through the inner
// value and bypass the DecidePartial override.
func (p *Passive) Start(t *task.Task) error {
	drv := NewDriver(t, p, p.rec)
	if err := p.surf.Run(drv); err != nil {
		return fmt.Errorf("passive: %w", err)
	}
	return nil
}
