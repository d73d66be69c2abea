// Package tui is the full-screen surface for interactive and passive
// runs. The driver is pumped one step per completed Bubble Tea command,
// so the event loop never blocks on the task: questions park the pump
// goroutine on a reply channel while the operator keeps a live screen.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bamsammich/ferry/internal/decision"
	"github.com/bamsammich/ferry/internal/entry"
	"github.com/bamsammich/ferry/internal/policy"
	"github.com/bamsammich/ferry/internal/task"
	"github.com/bamsammich/ferry/internal/ui"
)

// Bubble Tea messages.
type stepDoneMsg struct {
	state  task.State
	stats  task.Stats
	totals task.Totals
	err    error
}

type askMsg struct {
	kind   decision.Kind
	src    entry.Entry
	dst    entry.Entry
	errMsg string
	reply  chan decision.Decision
}

type startingMsg struct {
	op  task.Op
	src string
	dst string
}

type progressMsg struct {
	percent float64
	part    int64
	whole   int64
}

type tickMsg time.Time

// stepCmd resumes the task once on a command goroutine. The returned
// message carries a stats snapshot taken while the task is parked, so
// the model never races the walk goroutine.
func stepCmd(drv *policy.Driver) tea.Cmd {
	return func() tea.Msg {
		st, err := drv.Step()
		return stepDoneMsg{
			state:  st,
			stats:  drv.Task().Stats(),
			totals: drv.Task().Totals(),
			err:    err,
		}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// promptState is the open modal question. reply unblocks the pump
// goroutine parked inside the policy's Ask call.
type promptState struct {
	kind   decision.Kind
	src    entry.Entry
	dst    entry.Entry
	errMsg string
	forAll bool
	reply  chan decision.Decision
}

func (p *promptState) subject() string {
	if p.errMsg != "" {
		return p.errMsg
	}
	return p.src.Path
}

// Model is the root Bubble Tea model.
type Model struct {
	drv     *policy.Driver
	passive bool

	op       task.Op
	opSrc    string
	opDst    string
	started  time.Time
	finished time.Time

	width     int
	height    int
	statusMsg string // transient notification

	paused  bool
	stalled bool // a step finished while paused; resume must reschedule

	closeRequested bool
	done           bool
	quitting       bool
	finalState     task.State
	faultErr       error

	stats  task.Stats
	totals task.Totals

	percent float64 // current transfer position
	part    int64
	whole   int64

	prevBytes int64
	speed     float64
	speeds    []float64

	prompt *promptState
	hist   historyView
}

// NewModel creates the surface model for one driven task.
func NewModel(drv *policy.Driver, passive bool) Model {
	return Model{
		drv:     drv,
		passive: passive,
		op:      drv.Task().Op(),
		hist:    newHistoryView(),
		width:   80,
		height:  24,
		started: time.Now(),
	}
}

// Fault returns the contract violation that ended the run, if any.
func (m Model) Fault() error { return m.faultErr }

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		stepCmd(m.drv),
		tickCmd(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case startingMsg:
		m.op = msg.op
		m.opSrc = msg.src
		m.opDst = msg.dst
		label := msg.src
		if msg.dst != "" {
			label = msg.src + " -> " + msg.dst
		}
		m.hist.add(histInfo, label, msg.op.String())
		return m, nil

	case progressMsg:
		m.percent = msg.percent
		m.part = msg.part
		m.whole = msg.whole
		return m, nil

	case askMsg:
		m.prompt = &promptState{
			kind:   msg.kind,
			src:    msg.src,
			dst:    msg.dst,
			errMsg: msg.errMsg,
			reply:  msg.reply,
		}
		m.statusMsg = ""
		if msg.kind == decision.KindIOError {
			m.hist.add(histFail, msg.errMsg, "")
		}
		return m, nil

	case stepDoneMsg:
		return m.handleStepDone(msg)

	case tickMsg:
		if !m.done {
			delta := m.stats.Bytes - m.prevBytes
			m.prevBytes = m.stats.Bytes
			m.speed = float64(delta)
			m.speeds = append(m.speeds, m.speed)
			if len(m.speeds) > 120 {
				m.speeds = m.speeds[1:]
			}
		}
		return m, tickCmd()
	}

	return m, nil
}

func (m Model) handleStepDone(msg stepDoneMsg) (tea.Model, tea.Cmd) {
	m.stats = msg.stats
	m.totals = msg.totals

	if msg.err != nil {
		// Contract fault: tear the surface down and let Run propagate it.
		m.faultErr = msg.err
		m.finalState = msg.state
		m.done = true
		m.finished = time.Now()
		m.quitting = true
		return m, tea.Quit
	}
	if msg.state.Terminal() {
		m.done = true
		m.finalState = msg.state
		m.finished = time.Now()
		m.hist.add(histInfo, m.summaryLine(), "")
		if m.closeRequested {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}
	if m.paused {
		m.stalled = true
		return m, nil
	}
	return m, stepCmd(m.drv)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Close keys are intercepted in every phase; the rules differ.
	switch key {
	case "q", "esc", "ctrl+c":
		return m.handleClose()
	}

	if m.prompt != nil {
		return m.handlePromptKey(key)
	}

	switch key {
	case " ":
		return m.togglePause()
	case "j", "down":
		m.hist.scrollDown()
	case "k", "up":
		m.hist.scrollUp()
	case "g":
		m.hist.scrollToTop()
	case "G":
		m.hist.scrollToBottom()
	}
	return m, nil
}

// handleClose translates a close request: refused while a passive run
// is in flight, forwarded as an abort while interactive work is in
// flight, honored once the task is terminal.
func (m Model) handleClose() (tea.Model, tea.Cmd) {
	if m.done {
		m.quitting = true
		return m, tea.Quit
	}
	if m.passive {
		m.statusMsg = "not closed: run continues until finished"
		return m, nil
	}
	if m.prompt != nil {
		if m.prompt.kind.Allows(decision.Abort) {
			m.closeRequested = true
			return m.answerPrompt(decision.Abort)
		}
		// A partial file still needs its disposition before unwinding.
		m.statusMsg = "answer the pending question first"
		return m, nil
	}
	m.closeRequested = true
	m.drv.RequestAbort()
	m.statusMsg = "aborting at next checkpoint"
	if m.paused {
		m.paused = false
		if m.stalled {
			m.stalled = false
			return m, stepCmd(m.drv)
		}
	}
	return m, nil
}

func (m Model) togglePause() (tea.Model, tea.Cmd) {
	if m.done {
		return m, nil
	}
	m.paused = !m.paused
	if m.paused {
		m.statusMsg = "paused"
		return m, nil
	}
	m.statusMsg = ""
	if m.stalled {
		m.stalled = false
		return m, stepCmd(m.drv)
	}
	return m, nil
}

func (m Model) handlePromptKey(key string) (tea.Model, tea.Cmd) {
	p := m.prompt
	if key == "!" {
		if p.kind != decision.KindPartial {
			p.forAll = !p.forAll
		}
		return m, nil
	}
	if len(key) == 1 {
		if n := int(key[0] - '1'); n >= 0 && n < len(p.kind.Tags()) {
			return m.answerPrompt(p.kind.Tags()[n])
		}
		for _, tag := range p.kind.Tags() {
			if key == keyForTag(tag) {
				return m.answerPrompt(tag)
			}
		}
	}
	return m, nil
}

func (m Model) answerPrompt(tag decision.Tag) (tea.Model, tea.Cmd) {
	p := m.prompt
	if p == nil {
		return m, nil
	}
	if !p.kind.Allows(tag) {
		m.statusMsg = fmt.Sprintf("%s is not an answer for %s", tag, p.kind)
		return m, nil
	}
	d := decision.Decision{Tag: tag, ForAll: p.forAll && p.kind != decision.KindPartial}
	m.hist.add(histAnswer, p.subject(), d.String())
	p.reply <- d
	m.prompt = nil
	m.statusMsg = ""
	return m, nil
}

func keyForTag(tag decision.Tag) string {
	return tag.String()[:1]
}

func (m Model) overallPercent() float64 {
	if m.totals.Known && m.totals.Bytes > 0 {
		return 100 * float64(m.stats.Bytes) / float64(m.totals.Bytes)
	}
	return m.percent
}

func (m Model) itemsDone() int64 {
	if m.op == task.Delete {
		return m.stats.Removed
	}
	return m.stats.Processed()
}

func (m Model) eta() time.Duration {
	if !m.totals.Known || m.speed <= 0 || m.totals.Bytes <= m.stats.Bytes {
		return 0
	}
	return time.Duration(float64(m.totals.Bytes-m.stats.Bytes)/m.speed) * time.Second
}

func (m Model) elapsed() time.Duration {
	if m.finished.IsZero() {
		return time.Since(m.started)
	}
	return m.finished.Sub(m.started)
}

func (m Model) summaryLine() string {
	return ui.Summary(m.stats, m.elapsed(), m.finalState == task.Terminated)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteByte('\n')
	b.WriteString(m.renderOpLine())
	b.WriteByte('\n')
	b.WriteString(m.renderGauge())
	b.WriteByte('\n')

	width := min(m.width-4, 60)
	b.WriteString("  " + styleSparkline.Render(ui.Sparkline(m.speeds, width)))
	b.WriteByte('\n')

	// header, op, gauge, sparkline, prompt/status, footer
	contentHeight := m.height - 8
	if contentHeight < 3 {
		contentHeight = 3
	}
	b.WriteString(m.hist.view(m.width, contentHeight))

	switch {
	case m.prompt != nil:
		b.WriteString(m.renderPrompt())
	case m.statusMsg != "":
		b.WriteString(styleStatus.Render("  " + m.statusMsg))
		b.WriteByte('\n')
	default:
		b.WriteByte('\n')
	}

	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	if m.done {
		return styleHeader.Render("  " + styleHeaderLabel.Render("ferry") + "  " + m.summaryLine())
	}

	pct := m.overallPercent()
	header := fmt.Sprintf("  %s  %s  %3.0f%%  %s  %s  %s",
		styleHeaderLabel.Render("ferry"),
		m.op,
		pct,
		styleProgressFilled.Render(ui.ProgressBar(pct/100, 10)),
		ui.FormatBytes(m.stats.Bytes),
		styleSpeed.Render(ui.FormatRate(m.speed)),
	)
	if m.totals.Known {
		header += fmt.Sprintf("  %s / %s items  eta %s",
			ui.FormatCount(m.itemsDone()),
			ui.FormatCount(m.totals.Items),
			ui.FormatETA(m.eta()),
		)
	}
	if m.paused {
		header += "  " + styleStatus.Render("paused")
	}
	return styleHeader.Render(header)
}

func (m Model) renderOpLine() string {
	if m.opSrc == "" {
		return ""
	}
	line := "  " + styleDir.Render(m.op.String()+"  ") + stylePath.Render(ui.TruncatePath(m.opSrc, m.width/2))
	if m.opDst != "" {
		line += styleDir.Render("  ->  ") + stylePath.Render(ui.TruncatePath(m.opDst, m.width/2))
	}
	return line
}

func (m Model) renderGauge() string {
	if m.whole <= 0 {
		return ""
	}
	pos := ui.FormatBytes(m.part) + " / " + ui.FormatBytes(m.whole)
	if m.op == task.Delete {
		pos = ui.FormatCount(m.part) + " / " + ui.FormatCount(m.whole)
	}
	return fmt.Sprintf("  %s  %s",
		styleProgressFilled.Render(ui.ProgressBar(m.percent/100, 30)),
		styleSize.Render(pos),
	)
}

func promptTitle(kind decision.Kind) string {
	switch kind {
	case decision.KindOverwrite:
		return "? destination exists"
	case decision.KindIOError:
		return "? operation failed"
	case decision.KindPartial:
		return "? partial file"
	case decision.KindNonEmptyDir:
		return "? directory not empty"
	}
	return "?"
}

func entryDetail(e entry.Entry) string {
	if e.Stat.Kind != entry.File || e.Stat.ModTime.IsZero() {
		return ""
	}
	return styleSize.Render(fmt.Sprintf("  %s  %s",
		ui.FormatBytes(e.Stat.Size), e.Stat.ModTime.Format("2006-01-02 15:04")))
}

func (m Model) renderPrompt() string {
	p := m.prompt
	var b strings.Builder

	b.WriteString("  " + stylePromptTitle.Render(promptTitle(p.kind)))
	b.WriteByte('\n')

	switch p.kind {
	case decision.KindOverwrite:
		b.WriteString("  " + styleDir.Render("src  ") + stylePath.Render(p.src.Path) + entryDetail(p.src))
		b.WriteByte('\n')
		b.WriteString("  " + styleDir.Render("dst  ") + stylePath.Render(p.dst.Path) + entryDetail(p.dst))
		b.WriteByte('\n')
	case decision.KindIOError:
		b.WriteString("  " + styleError.Render(p.errMsg))
		b.WriteByte('\n')
	case decision.KindPartial:
		b.WriteString("  " + stylePath.Render(p.dst.Path) + styleSize.Render("  incomplete transfer"))
		b.WriteByte('\n')
	case decision.KindNonEmptyDir:
		b.WriteString("  " + stylePath.Render(p.src.Path) + styleSize.Render("  contains entries"))
		b.WriteByte('\n')
	}

	var parts []string
	for _, tag := range p.kind.Tags() {
		parts = append(parts, stylePromptKey.Render("["+keyForTag(tag)+"]")+" "+stylePromptChoice.Render(tag.String()))
	}
	line := "  " + strings.Join(parts, "  ")
	if p.kind != decision.KindPartial {
		state := "off"
		if p.forAll {
			state = "on"
		}
		line += "   " + stylePromptAll.Render("[!] all: "+state)
	}
	b.WriteString(line)
	b.WriteByte('\n')
	return b.String()
}

func (m Model) renderFooter() string {
	type keybind struct {
		key   string
		label string
	}

	var binds []keybind
	switch {
	case m.done:
		binds = []keybind{
			{"q", "quit"},
			{"j/k", "scroll"},
		}
	case m.prompt != nil:
		binds = []keybind{
			{"1-9", "choose"},
			{"!", "apply to all"},
		}
	case m.passive:
		binds = []keybind{
			{"space", "pause"},
			{"j/k", "scroll"},
		}
	default:
		binds = []keybind{
			{"space", "pause"},
			{"q", "abort"},
			{"j/k", "scroll"},
		}
	}

	var parts []string
	for _, kb := range binds {
		parts = append(parts,
			styleKeybindKey.Render(kb.key)+" "+styleKeybindLabel.Render(kb.label))
	}

	return "  " + strings.Join(parts, "   ")
}
