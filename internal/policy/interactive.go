package policy

import (
	"fmt"

	"github.com/bamsammich/ferry/internal/decision"
	"github.com/bamsammich/ferry/internal/entry"
	"github.com/bamsammich/ferry/internal/task"
)

// Interactive surfaces each question as a modal choice and blocks until
// the operator answers. An answer marked for-all is remembered, and
// later questions of that kind are answered from memory without a
// prompt. The pump cadence belongs to the surface, so the host stays
// responsive between steps.
type Interactive struct {
	state *State
	surf  Surface
	rec   Recorder
}

// NewInteractive returns an interactive policy asking through surf.
func NewInteractive(surf Surface, st *State, rec Recorder) *Interactive {
	return &Interactive{state: st, surf: surf, rec: rec}
}

func (p *Interactive) DecideOverwrite(src, dst entry.Entry) decision.Decision {
	if d, ok := p.state.Memo(decision.KindOverwrite); ok {
		return d
	}
	d := p.surf.AskOverwrite(src, dst)
	p.state.Remember(decision.KindOverwrite, d)
	return d
}

func (p *Interactive) DecideIOError(err error) decision.Decision {
	if d, ok := p.state.Memo(decision.KindIOError); ok {
		return d
	}
	d := p.surf.AskIOError(err)
	p.state.Remember(decision.KindIOError, d)
	return d
}

// DecidePartial always asks: whether a half-written file is worth
// keeping depends on the file, so no blanket answer applies.
func (p *Interactive) DecidePartial(src, dst entry.Entry) decision.Decision {
	return p.surf.AskPartial(src, dst)
}

func (p *Interactive) DecideNonEmptyDir(src entry.Entry) decision.Decision {
	if d, ok := p.state.Memo(decision.KindNonEmptyDir); ok {
		return d
	}
	d := p.surf.AskNonEmptyDir(src)
	p.state.Remember(decision.KindNonEmptyDir, d)
	return d
}

func (p *Interactive) NotifyStarting(op task.Op, src, dst string) {
	p.surf.ShowStarting(op, src, dst)
}

func (p *Interactive) NotifyProgress(part, whole int64) {
	p.surf.ShowProgress(task.Percent(part, whole), part, whole)
}

// Start hands the pump to the surface and returns when the task is
// terminal. Only contract faults come back as errors.
func (p *Interactive) Start(t *task.Task) error {
	drv := NewDriver(t, p, p.rec)
	if err := p.surf.Run(drv); err != nil {
		return fmt.Errorf("interactive: %w", err)
	}
	return nil
}
