package policy

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bamsammich/ferry/internal/decision"
	"github.com/bamsammich/ferry/internal/task"
)

// Recorder receives every answer a pump routes back into its task.
// Implementations must not block; nil disables recording.
type Recorder interface {
	Record(taskID string, reason task.Reason, src, dst string, d decision.Decision)
}

// Driver pumps a single task on behalf of a policy: each Step resumes
// the task once, translates the resulting suspension into exactly one
// policy call, and holds the answer for the next resume. All Step and
// Run calls must come from one goroutine; RequestAbort may come from
// any.
type Driver struct {
	task *task.Task
	pol  Policy
	rec  Recorder

	// pending is the answer produced by the previous step, consumed by
	// the next resume. Empty for notifications.
	pending task.Command

	mu     sync.Mutex
	cancel bool
}

// NewDriver pairs a task with the policy that answers for it.
func NewDriver(t *task.Task, p Policy, rec Recorder) *Driver {
	return &Driver{task: t, pol: p, rec: rec}
}

// Task returns the driven task.
func (d *Driver) Task() *task.Task { return d.task }

// RequestAbort marks the next resume to carry a cancel request. The
// task honors it at its next checkpoint; any pending partial-transfer
// question still arrives before it unwinds. Safe from any goroutine.
func (d *Driver) RequestAbort() {
	d.mu.Lock()
	d.cancel = true
	d.mu.Unlock()
	slog.Debug("abort requested", "task", d.task.ID())
}

func (d *Driver) takeCancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.cancel
	d.cancel = false
	return c
}

// Step performs one resume and dispatches the outcome. A Suspended
// return means the pump should step again on its next tick; a terminal
// state means the task is finished and the pump must stop. A non-nil
// error is a contract fault and the task is already terminated.
func (d *Driver) Step() (task.State, error) {
	cmd := d.pending
	d.pending = task.Command{}
	if d.takeCancel() {
		cmd.Cancel = true
	}

	s, st, err := d.task.Resume(cmd)
	if err != nil {
		return st, fmt.Errorf("pump task %s: %w", d.task.ID(), err)
	}
	if st.Terminal() {
		return st, nil
	}

	switch s.Reason {
	case task.Starting:
		d.pol.NotifyStarting(d.task.Op(), s.Src.Path, s.Dst.Path)
	case task.Progress:
		d.pol.NotifyProgress(s.Part, s.Whole)
	case task.OverwriteConflict:
		d.answer(s, d.pol.DecideOverwrite(s.Src, s.Dst))
	case task.IOError:
		d.answer(s, d.pol.DecideIOError(s.Err))
	case task.PartialTransfer:
		d.answer(s, d.pol.DecidePartial(s.Src, s.Dst))
	case task.NonEmptyDir:
		d.answer(s, d.pol.DecideNonEmptyDir(s.Src))
	}
	return st, nil
}

func (d *Driver) answer(s task.Suspension, dec decision.Decision) {
	d.pending = task.Command{Decision: dec}
	if d.rec != nil {
		d.rec.Record(d.task.ID(), s.Reason, s.Src.Path, s.Dst.Path, dec)
	}
}

// Run steps the task to a terminal state in a tight loop.
func (d *Driver) Run() (task.State, error) {
	for {
		st, err := d.Step()
		if err != nil || st.Terminal() {
			return st, err
		}
	}
}
