// Package task implements the suspendable operation unit behind copy, move
// and delete. A Task runs its tree walk on a dedicated goroutine and parks
// at every decision point or progress checkpoint; the driver advances it
// one suspension at a time through Resume. The task never decides anything
// itself: conflicts, I/O errors, partial files and non-empty directories
// are all surfaced as suspensions and answered from outside.
package task

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/bamsammich/ferry/internal/decision"
	"github.com/bamsammich/ferry/internal/entry"
)

// State describes where a task is in its lifecycle.
type State int

const (
	// Running: advancing between suspension points. Externally this is
	// only observable before the first Resume; Resume itself blocks
	// until the task parks again.
	Running State = iota + 1
	// Suspended: parked at a decision point or progress checkpoint,
	// waiting for the next Resume.
	Suspended
	// Terminated: cancelled mid-flight and finished unwinding.
	Terminated
	// Dead: ran to natural completion.
	Dead
)

var stateNames = [...]string{
	Running:    "Running",
	Suspended:  "Suspended",
	Terminated: "Terminated",
	Dead:       "Dead",
}

func (s State) String() string {
	if s > 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// Terminal reports whether no further Resume calls are legal.
func (s State) Terminal() bool {
	return s == Terminated || s == Dead
}

// Reason identifies why a task suspended.
type Reason int

const (
	Starting Reason = iota + 1
	Progress
	OverwriteConflict
	IOError
	PartialTransfer
	NonEmptyDir
)

var reasonNames = [...]string{
	Starting:          "Starting",
	Progress:          "Progress",
	OverwriteConflict: "OverwriteConflict",
	IOError:           "IOError",
	PartialTransfer:   "PartialTransfer",
	NonEmptyDir:       "NonEmptyDir",
}

func (r Reason) String() string {
	if r > 0 && int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return "Unknown"
}

// Kind maps a question suspension to its decision kind. Notification
// reasons (Starting, Progress) map to zero.
func (r Reason) Kind() decision.Kind {
	switch r {
	case OverwriteConflict:
		return decision.KindOverwrite
	case IOError:
		return decision.KindIOError
	case PartialTransfer:
		return decision.KindPartial
	case NonEmptyDir:
		return decision.KindNonEmptyDir
	}
	return 0
}

// Question reports whether this suspension requires a Decision to resume.
func (r Reason) Question() bool {
	return r.Kind() != 0
}

// Suspension is one parked position of a task.
type Suspension struct {
	Reason Reason
	Src    entry.Entry
	Dst    entry.Entry // zero when the reason has no destination side
	Err    error       // IOError only
	Part   int64       // Progress only
	Whole  int64       // Progress only; always > 0 when emitted
}

// Command answers a suspension. Questions require a Decision whose tag is
// legal for the pending kind; notifications take the zero Command. Cancel
// may ride along on any command and is honored at the task's next
// checkpoint, still allowing one partial-file question on the way out.
type Command struct {
	Decision decision.Decision
	Cancel   bool
}

// FaultError reports a contract violation: the task was resumed with a
// decision outside the legal set for its pending suspension. Faults are
// not operational conditions; they terminate the pump.
type FaultError struct {
	Reason Reason
	Tag    decision.Tag
	Src    string
	Dst    string
}

func (e *FaultError) Error() string {
	if e.Dst != "" {
		return fmt.Sprintf("illegal decision %q for %s suspension (src=%s dst=%s)",
			e.Tag, e.Reason, e.Src, e.Dst)
	}
	return fmt.Sprintf("illegal decision %q for %s suspension (src=%s)", e.Tag, e.Reason, e.Src)
}

// errAborted unwinds the walk after a cancel was honored. It never
// escapes the task; the loop converts it into the Terminated state.
var errAborted = errors.New("aborted")

// Percent converts a transfer position into a percentage in [0, 100].
// whole is expected to be positive; non-positive values report 100.
func Percent(part, whole int64) float64 {
	if whole <= 0 {
		return 100
	}
	p := 100 * float64(part) / float64(whole)
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Task is one cooperative copy, move or delete operation.
//
// A Task is single-consumer: exactly one driver calls Resume, and Stats,
// Totals and Fault are only meaningful while the task is suspended or
// terminal. The walk goroutine parks on an unbuffered channel at every
// suspension point, so no filesystem work happens between Resume calls.
type Task struct {
	id  string
	req Request

	susp chan Suspension
	cmd  chan Command
	done chan struct{}

	started bool
	state   State
	pending Suspension

	// Owned by the walk goroutine.
	cancelled bool
	stats     Stats
	totals    Totals

	// Written by the walk goroutine before done closes.
	exit  State
	fault error
}

// New validates the request and starts the walk goroutine. The goroutine
// performs no work until the first Resume collects the Starting
// suspension.
func New(req Request) (*Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	t := &Task{
		id:    uuid.NewString(),
		req:   req,
		susp:  make(chan Suspension),
		cmd:   make(chan Command),
		done:  make(chan struct{}),
		state: Running,
	}
	slog.Debug("task created", "id", t.id, "op", req.Op, "sources", len(req.Sources))
	go t.loop()
	return t, nil
}

// ID returns the unique identifier assigned at creation.
func (t *Task) ID() string { return t.id }

// Op returns the operation kind, fixed for the task's lifetime.
func (t *Task) Op() Op { return t.req.Op }

// Request returns the request the task was built from.
func (t *Task) Request() Request { return t.req }

// State returns the last observed state. It is maintained by Resume and
// must only be read by the driver goroutine.
func (t *Task) State() State { return t.state }

// Fault returns the contract violation that terminated the task, if any.
func (t *Task) Fault() error { return t.fault }

// Stats returns a snapshot of the work counters. Only valid while the
// task is suspended or terminal.
func (t *Task) Stats() Stats { return t.stats }

// Totals returns the prescan totals, if a prescan ran. Only valid while
// the task is suspended or terminal.
func (t *Task) Totals() Totals { return t.totals }

// Resume advances the task to its next suspension point or terminal
// state. The first call ignores cmd; every later call answers the pending
// suspension. A non-nil error is a contract fault: the task is already
// terminal and the pump must stop.
func (t *Task) Resume(cmd Command) (Suspension, State, error) {
	if t.state.Terminal() {
		return Suspension{}, t.state, fmt.Errorf("resume after %s", t.state)
	}
	if !t.started {
		t.started = true
	} else {
		t.cmd <- cmd
	}
	t.state = Running
	select {
	case s := <-t.susp:
		t.state = Suspended
		t.pending = s
		return s, t.state, nil
	case <-t.done:
		t.state = t.exit
		if t.fault != nil {
			return Suspension{}, t.state, t.fault
		}
		return Suspension{}, t.state, nil
	}
}

func (t *Task) loop() {
	defer close(t.done)
	err := t.run()
	switch {
	case err == nil:
		t.exit = Dead
	case errors.Is(err, errAborted):
		t.exit = Terminated
	default:
		t.fault = err
		t.exit = Terminated
	}
	slog.Debug("task finished", "id", t.id, "state", t.exit,
		"files", t.stats.Files, "bytes", t.stats.Bytes, "skipped", t.stats.Skipped)
}

func (t *Task) run() error {
	label := t.req.Sources[0]
	if n := len(t.req.Sources); n > 1 {
		label = fmt.Sprintf("%s (+%d more)", label, n-1)
	}
	t.notify(Suspension{
		Reason: Starting,
		Src:    entry.Entry{Path: label},
		Dst:    entry.Entry{Path: t.req.Dest},
	})
	if t.cancelled {
		return errAborted
	}

	if t.req.Prescan {
		totals, err := prescan(t.req.Sources)
		if err != nil {
			slog.Debug("prescan failed", "id", t.id, "error", err)
		} else {
			t.totals = totals
		}
	}

	switch t.req.Op {
	case Copy:
		return t.runCopy()
	case Move:
		return t.runMove()
	case Delete:
		return t.runDelete()
	}
	return fmt.Errorf("unknown operation %d", t.req.Op)
}

// suspend parks the walk goroutine until the driver answers.
func (t *Task) suspend(s Suspension) Command {
	t.susp <- s
	cmd := <-t.cmd
	if cmd.Cancel {
		t.cancelled = true
	}
	return cmd
}

// notify suspends for a notification reason; any decision in the answer
// is ignored.
func (t *Task) notify(s Suspension) {
	t.suspend(s)
}

// ask suspends with a question and validates the answer against the
// legal tag set of its kind. An abort answer flags cancellation for the
// next checkpoint in addition to being returned.
func (t *Task) ask(s Suspension) (decision.Tag, error) {
	cmd := t.suspend(s)
	if !s.Reason.Kind().Allows(cmd.Decision.Tag) {
		return 0, &FaultError{
			Reason: s.Reason,
			Tag:    cmd.Decision.Tag,
			Src:    s.Src.Path,
			Dst:    s.Dst.Path,
		}
	}
	if cmd.Decision.Tag == decision.Abort {
		t.cancelled = true
	}
	return cmd.Decision.Tag, nil
}

// progress reports a transfer position. Callers must guarantee whole > 0.
func (t *Task) progress(src, dst entry.Entry, part, whole int64) {
	t.notify(Suspension{Reason: Progress, Src: src, Dst: dst, Part: part, Whole: whole})
}

// reportError routes an I/O error through the policy. A skip answer
// returns nil and the walk continues past the failed object; abort
// returns errAborted.
func (t *Task) reportError(src entry.Entry, err error) error {
	tag, ferr := t.ask(Suspension{Reason: IOError, Src: src, Err: err})
	if ferr != nil {
		return ferr
	}
	if tag == decision.Abort {
		return errAborted
	}
	t.stats.Errors++
	return nil
}

// partial asks for the disposition of an incomplete destination file.
// Asked exactly once per interrupted transfer, including on the way out
// after an abort.
func (t *Task) partial(src entry.Entry, dst string) error {
	tag, err := t.ask(Suspension{
		Reason: PartialTransfer,
		Src:    src,
		Dst:    entry.Entry{Path: dst},
	})
	if err != nil {
		return err
	}
	if tag == decision.Delete {
		if rmErr := os.Remove(dst); rmErr != nil {
			slog.Debug("remove partial failed", "path", dst, "error", rmErr)
			return nil
		}
		t.stats.Removed++
	}
	return nil
}
