package policy

import (
	"github.com/bamsammich/ferry/internal/decision"
	"github.com/bamsammich/ferry/internal/entry"
	"github.com/bamsammich/ferry/internal/task"
)

// Surface is the presentation layer an interactive policy talks to. Ask
// methods block the pump goroutine until the operator answers; Show
// methods must return promptly. Run owns the pump schedule: it steps
// the driver at its own pace, keeps the host program responsive while
// a question is open, and tears the surface down exactly once when the
// task reaches a terminal state.
type Surface interface {
	AskOverwrite(src, dst entry.Entry) decision.Decision
	AskIOError(err error) decision.Decision
	AskPartial(src, dst entry.Entry) decision.Decision
	AskNonEmptyDir(src entry.Entry) decision.Decision

	ShowStarting(op task.Op, src, dst string)
	ShowProgress(percent float64, part, whole int64)

	Run(drv *Driver) error
}
