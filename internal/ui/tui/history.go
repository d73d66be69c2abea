package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bamsammich/ferry/internal/ui"
)

type histKind int

const (
	histInfo histKind = iota
	histDone
	histSkip
	histFail
	histAnswer
)

type histEntry struct {
	kind  histKind
	text  string
	extra string
}

// historyView is a scrollable log of everything the run has decided and
// touched: answers given, errors hit, files finished.
type historyView struct {
	entries      []histEntry
	scrollOffset int  // viewport offset into entries
	autoScroll   bool // follow new entries
}

func newHistoryView() historyView {
	return historyView{autoScroll: true}
}

func (h *historyView) add(kind histKind, text, extra string) {
	h.entries = append(h.entries, histEntry{kind: kind, text: text, extra: extra})
}

// scrollDown moves the viewport down one line and disables autoScroll.
func (h *historyView) scrollDown() {
	h.autoScroll = false
	h.scrollOffset++
}

// scrollUp moves the viewport up one line and disables autoScroll.
func (h *historyView) scrollUp() {
	h.autoScroll = false
	if h.scrollOffset > 0 {
		h.scrollOffset--
	}
}

// scrollToTop jumps to the first entry.
func (h *historyView) scrollToTop() {
	h.autoScroll = false
	h.scrollOffset = 0
}

// scrollToBottom jumps to the most recent entry and re-enables autoScroll.
func (h *historyView) scrollToBottom() {
	h.autoScroll = true
}

func (h *historyView) view(width, height int) string {
	if len(h.entries) == 0 || height < 1 {
		return ""
	}

	// Clamp scroll offset to the viewport.
	maxOffset := len(h.entries) - height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if h.autoScroll {
		h.scrollOffset = maxOffset
	}
	if h.scrollOffset > maxOffset {
		h.scrollOffset = maxOffset
	}
	if h.scrollOffset < 0 {
		h.scrollOffset = 0
	}

	end := h.scrollOffset + height
	if end > len(h.entries) {
		end = len(h.entries)
	}

	var b strings.Builder
	b.WriteString(styleDivider.Render(fmt.Sprintf("─ activity (%d)", len(h.entries))))
	b.WriteByte('\n')
	for _, e := range h.entries[h.scrollOffset:end] {
		var icon string
		switch e.kind {
		case histDone:
			icon = styleIconDone.Render("✓")
		case histSkip:
			icon = styleIconSkipped.Render("–")
		case histFail:
			icon = styleIconFailed.Render("✗")
		case histAnswer:
			icon = styleIconQuestion.Render("?")
		default:
			icon = styleDivider.Render("·")
		}

		text := ui.TruncatePath(e.text, width-20)
		line := "  " + icon + "  " + styledPath(text)
		if e.extra != "" {
			line += "  " + styleSize.Render(e.extra)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func styledPath(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if dir == "." || dir == "" || dir == "/" {
		return stylePath.Render(path)
	}
	return styleDir.Render(dir+"/") + stylePath.Render(base)
}
