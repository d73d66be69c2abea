package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bamsammich/ferry/internal/config"
	"github.com/bamsammich/ferry/internal/decision"
	"github.com/bamsammich/ferry/internal/entry"
	"github.com/bamsammich/ferry/internal/policy"
	"github.com/bamsammich/ferry/internal/task"
)

// Config configures the full-screen surface.
type Config struct {
	// Passive marks a run whose policy answers for itself. The surface
	// then refuses close requests until the task is terminal.
	Passive bool
	Theme   config.ThemeConfig
}

// Surface wraps a Bubble Tea program and implements policy.Surface.
// Ask methods are called from the pump goroutine and block until the
// operator answers; Show methods are fire-and-forget.
type Surface struct {
	cfg   Config
	model Model
	prog  *tea.Program
}

// New creates a full-screen surface.
func New(cfg Config) *Surface {
	ApplyTheme(cfg.Theme)
	return &Surface{cfg: cfg}
}

// Run starts the Bubble Tea program and blocks until the task reaches a
// terminal state and the operator closes the screen. A contract fault
// tears the screen down immediately and is returned here.
func (s *Surface) Run(drv *policy.Driver) error {
	s.model = NewModel(drv, s.cfg.Passive)
	prog := tea.NewProgram(
		s.model,
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)
	s.prog = prog
	final, err := prog.Run()
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	s.model = final.(Model)
	return s.model.Fault()
}

// Summary returns the final one-line result for printing after the
// alternate screen is torn down.
func (s *Surface) Summary() string {
	return s.model.summaryLine()
}

func (s *Surface) ask(kind decision.Kind, src, dst entry.Entry, errMsg string) decision.Decision {
	reply := make(chan decision.Decision, 1)
	s.prog.Send(askMsg{kind: kind, src: src, dst: dst, errMsg: errMsg, reply: reply})
	return <-reply
}

func (s *Surface) AskOverwrite(src, dst entry.Entry) decision.Decision {
	return s.ask(decision.KindOverwrite, src, dst, "")
}

func (s *Surface) AskIOError(err error) decision.Decision {
	return s.ask(decision.KindIOError, entry.Entry{}, entry.Entry{}, err.Error())
}

func (s *Surface) AskPartial(src, dst entry.Entry) decision.Decision {
	return s.ask(decision.KindPartial, src, dst, "")
}

func (s *Surface) AskNonEmptyDir(src entry.Entry) decision.Decision {
	return s.ask(decision.KindNonEmptyDir, src, entry.Entry{}, "")
}

func (s *Surface) ShowStarting(op task.Op, src, dst string) {
	s.prog.Send(startingMsg{op: op, src: src, dst: dst})
}

func (s *Surface) ShowProgress(percent float64, part, whole int64) {
	s.prog.Send(progressMsg{percent: percent, part: part, whole: whole})
}
