package policy

import (
	"fmt"
	"io"

	"github.com/bamsammich/ferry/internal/decision"
	"github.com/bamsammich/ferry/internal/entry"
	"github.com/bamsammich/ferry/internal/task"
)

// Batch answers every question with a fixed decision and pumps its task
// in a tight synchronous loop. Notifications come out as one-line
// prints; nothing ever blocks on an operator.
type Batch struct {
	state  *State
	out    io.Writer
	rec    Recorder
	abortC <-chan struct{}
}

// NewBatch returns a batch policy writing notification lines to out.
func NewBatch(out io.Writer, st *State, rec Recorder) *Batch {
	return &Batch{state: st, out: out, rec: rec}
}

// DecideOverwrite replaces the destination unless a seeded blanket
// answer says otherwise.
func (b *Batch) DecideOverwrite(_, _ entry.Entry) decision.Decision {
	if d, ok := b.state.Memo(decision.KindOverwrite); ok {
		return d
	}
	return decision.Decision{Tag: decision.Overwrite}
}

// DecideIOError skips the failed entry and moves on.
func (b *Batch) DecideIOError(err error) decision.Decision {
	if d, ok := b.state.Memo(decision.KindIOError); ok {
		return d
	}
	fmt.Fprintf(b.out, "error: %v (skipped)\n", err)
	return decision.Decision{Tag: decision.Skip}
}

// DecidePartial removes incomplete destination files unless a seeded
// blanket answer keeps them for a later resume.
func (b *Batch) DecidePartial(_, _ entry.Entry) decision.Decision {
	if d, ok := b.state.Memo(decision.KindPartial); ok {
		return d
	}
	return decision.Decision{Tag: decision.Delete}
}

// DecideNonEmptyDir deletes directories recursively.
func (b *Batch) DecideNonEmptyDir(_ entry.Entry) decision.Decision {
	if d, ok := b.state.Memo(decision.KindNonEmptyDir); ok {
		return d
	}
	return decision.Decision{Tag: decision.Delete}
}

func (b *Batch) NotifyStarting(op task.Op, src, dst string) {
	if op == task.Delete {
		fmt.Fprintf(b.out, "rm %s\n", src)
		return
	}
	fmt.Fprintf(b.out, "%s -> %s\n", src, dst)
}

func (b *Batch) NotifyProgress(int64, int64) {}

// Start runs the task to completion. Contract faults surface as the
// returned error; the task's own outcome is read from its state.
func (b *Batch) Start(t *task.Task) error {
	drv := NewDriver(t, b, b.rec)
	if b.abortC != nil {
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-b.abortC:
				drv.RequestAbort()
			case <-done:
			}
		}()
	}
	if _, err := drv.Run(); err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	return nil
}
