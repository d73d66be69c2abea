package task

import (
	"os"
	"path/filepath"

	"github.com/bamsammich/ferry/internal/decision"
	"github.com/bamsammich/ferry/internal/entry"
)

func (t *Task) runDelete() error {
	for _, src := range t.req.Sources {
		if t.cancelled {
			return errAborted
		}
		e, err := entry.Snapshot(src, false)
		if err != nil {
			if ferr := t.reportError(pathEntry(src), err); ferr != nil {
				return ferr
			}
			continue
		}
		if err := t.deleteEntry(e, true); err != nil {
			return err
		}
	}
	return nil
}

// deleteEntry removes one filesystem object. ask marks deletion roots:
// a non-empty directory needs approval there, but once approved its
// subtree goes without further questions.
func (t *Task) deleteEntry(e entry.Entry, ask bool) error {
	if e.Stat.Kind == entry.Dir {
		return t.deleteDir(e, ask)
	}
	if err := os.Remove(e.Path); err != nil {
		return t.reportError(e, err)
	}
	t.stats.Removed++
	t.deleteProgress(e)
	return nil
}

func (t *Task) deleteDir(e entry.Entry, ask bool) error {
	children, err := os.ReadDir(e.Path)
	if err != nil {
		return t.reportError(e, err)
	}
	if len(children) > 0 && ask {
		tag, ferr := t.ask(Suspension{Reason: NonEmptyDir, Src: e})
		if ferr != nil {
			return ferr
		}
		switch tag {
		case decision.Skip:
			t.stats.Skipped++
			return nil
		case decision.Abort:
			return errAborted
		}
	}

	for _, child := range children {
		if t.cancelled {
			return errAborted
		}
		path := filepath.Join(e.Path, child.Name())
		ce, cerr := entry.Snapshot(path, false)
		if cerr != nil {
			if ferr := t.reportError(pathEntry(path), cerr); ferr != nil {
				return ferr
			}
			continue
		}
		if dErr := t.deleteEntry(ce, false); dErr != nil {
			return dErr
		}
	}

	if err := os.Remove(e.Path); err != nil {
		return t.reportError(e, err)
	}
	t.stats.Removed++
	t.stats.Dirs++
	t.deleteProgress(e)
	return nil
}

// deleteProgress reports items removed against the prescan total, when
// one is known. A task that skipped the prescan stays silent rather than
// report against a zero whole.
func (t *Task) deleteProgress(e entry.Entry) {
	if !t.totals.Known || t.totals.Items <= 0 {
		return
	}
	part := t.stats.Removed
	if part > t.totals.Items {
		part = t.totals.Items
	}
	t.progress(e, entry.Entry{}, part, t.totals.Items)
}
