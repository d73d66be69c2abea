package task

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/bamsammich/ferry/internal/decision"
	"github.com/bamsammich/ferry/internal/entry"
)

// Move is rename-first: when the destination slot is free a single rename
// moves the whole entry. Conflicts and cross-device moves fall back to
// copy-then-unlink, per entry, so skipped children survive in the source.
func (t *Task) runMove() error {
	multi := len(t.req.Sources) > 1
	for _, src := range t.req.Sources {
		if t.cancelled {
			return errAborted
		}
		// Never dereference on move: renaming a symlink moves the link.
		e, err := entry.Snapshot(src, false)
		if err != nil {
			if ferr := t.reportError(pathEntry(src), err); ferr != nil {
				return ferr
			}
			continue
		}
		tgt := resolveTarget(src, t.req.Dest, multi)
		if nerr := checkNotNested(src, tgt); nerr != nil {
			if ferr := t.reportError(e, nerr); ferr != nil {
				return ferr
			}
			continue
		}
		if err := t.moveEntry(e, tgt); err != nil {
			return err
		}
	}
	return nil
}

func (t *Task) moveEntry(src entry.Entry, dst string) error {
	if _, err := os.Lstat(dst); err != nil {
		rnErr := os.Rename(src.Path, dst)
		if rnErr == nil {
			t.bump(src.Stat.Kind)
			return nil
		}
		if !errors.Is(rnErr, unix.EXDEV) {
			return t.reportError(src, rnErr)
		}
		// Cross-device: fall through to copy+unlink.
	}

	// The occupied slot may be the source itself under another name;
	// copy+unlink would then destroy the only copy.
	if sameFile(src.Path, dst) {
		return t.refuseIdentity(src, dst)
	}

	if src.Stat.Kind == entry.Dir {
		return t.moveDir(src, dst)
	}

	out, err := t.copyEntry(src, dst)
	if err != nil {
		return err
	}
	if out != copied {
		return nil
	}
	if rmErr := os.Remove(src.Path); rmErr != nil {
		return t.reportError(src, rmErr)
	}
	return nil
}

func (t *Task) moveDir(src entry.Entry, dst string) error {
	if de, err := entry.Snapshot(dst, false); err == nil {
		// Merging into an existing directory is silent; a non-dir in
		// the slot raises a conflict first.
		if de.Stat.Kind != entry.Dir {
			tag, ferr := t.ask(Suspension{Reason: OverwriteConflict, Src: src, Dst: de})
			if ferr != nil {
				return ferr
			}
			switch tag {
			case decision.Skip:
				t.stats.Skipped++
				return nil
			case decision.Abort:
				return errAborted
			case decision.Update:
				if !src.Stat.ModTime.After(de.Stat.ModTime) {
					t.stats.Skipped++
					return nil
				}
			}
			if rmErr := os.Remove(dst); rmErr != nil {
				return t.reportError(de, rmErr)
			}
			if mkErr := os.Mkdir(dst, src.Stat.Mode.Perm()); mkErr != nil {
				return t.reportError(src, mkErr)
			}
		}
	} else {
		if mkErr := os.MkdirAll(dst, src.Stat.Mode.Perm()); mkErr != nil {
			return t.reportError(src, mkErr)
		}
	}

	children, err := os.ReadDir(src.Path)
	if err != nil {
		return t.reportError(src, err)
	}
	for _, child := range children {
		if t.cancelled {
			return errAborted
		}
		path := filepath.Join(src.Path, child.Name())
		ce, cerr := entry.Snapshot(path, false)
		if cerr != nil {
			if ferr := t.reportError(pathEntry(path), cerr); ferr != nil {
				return ferr
			}
			continue
		}
		if mvErr := t.moveEntry(ce, filepath.Join(dst, child.Name())); mvErr != nil {
			return mvErr
		}
	}

	if t.req.Preserve {
		if perr := preserveAttrs(dst, src); perr != nil {
			if ferr := t.reportError(src, perr); ferr != nil {
				return ferr
			}
		}
	}
	t.stats.Dirs++
	return t.removeMovedDir(src)
}

// removeMovedDir unlinks a source directory after its contents moved.
// Skipped children legitimately leave it non-empty; that is kept silently.
func (t *Task) removeMovedDir(src entry.Entry) error {
	err := os.Remove(src.Path)
	if err == nil {
		t.stats.Removed++
		return nil
	}
	if errors.Is(err, unix.ENOTEMPTY) || errors.Is(err, unix.EEXIST) {
		return nil
	}
	return t.reportError(src, err)
}

func (t *Task) bump(kind entry.Kind) {
	switch kind {
	case entry.Dir:
		t.stats.Dirs++
	case entry.Symlink:
		t.stats.Symlinks++
	default:
		t.stats.Files++
	}
}
