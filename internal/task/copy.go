package task

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bamsammich/ferry/internal/decision"
	"github.com/bamsammich/ferry/internal/entry"
)

// outcome tells a move walk whether the copy half finished, so it knows
// whether the source may be removed.
type outcome int

const (
	copied outcome = iota + 1
	skipped
	incomplete
)

func (t *Task) runCopy() error {
	multi := len(t.req.Sources) > 1
	for _, src := range t.req.Sources {
		if t.cancelled {
			return errAborted
		}
		e, err := entry.Snapshot(src, t.req.Deref)
		if err != nil {
			if ferr := t.reportError(pathEntry(src), err); ferr != nil {
				return ferr
			}
			continue
		}
		tgt := resolveTarget(src, t.req.Dest, multi)
		// Validate saw only the raw destination; naming the source's own
		// parent directory resolves the target back onto the source.
		if nerr := checkNotNested(src, tgt); nerr != nil {
			if ferr := t.reportError(e, nerr); ferr != nil {
				return ferr
			}
			continue
		}
		if _, err := t.copyEntry(e, tgt); err != nil {
			return err
		}
	}
	return nil
}

func (t *Task) copyEntry(src entry.Entry, dst string) (outcome, error) {
	switch src.Stat.Kind {
	case entry.Dir:
		return t.copyDir(src, dst)
	case entry.File:
		return t.copyFile(src, dst)
	case entry.Symlink:
		return t.copySymlink(src, dst)
	}
	err := t.reportError(src, fmt.Errorf("%s: unsupported file type", src.Path))
	return skipped, err
}

func (t *Task) copyDir(src entry.Entry, dst string) (outcome, error) {
	if de, err := entry.Snapshot(dst, false); err == nil {
		if sameFile(src.Path, dst) {
			return skipped, t.refuseIdentity(src, dst)
		}
		// Merging into an existing directory is silent; only a non-dir
		// in the way raises a conflict.
		if de.Stat.Kind != entry.Dir {
			tag, ferr := t.ask(Suspension{Reason: OverwriteConflict, Src: src, Dst: de})
			if ferr != nil {
				return incomplete, ferr
			}
			switch tag {
			case decision.Skip:
				t.stats.Skipped++
				return skipped, nil
			case decision.Abort:
				return incomplete, errAborted
			case decision.Update:
				if !src.Stat.ModTime.After(de.Stat.ModTime) {
					t.stats.Skipped++
					return skipped, nil
				}
			}
			if rmErr := os.Remove(dst); rmErr != nil {
				return skipped, t.reportError(de, rmErr)
			}
			if mkErr := os.Mkdir(dst, src.Stat.Mode.Perm()); mkErr != nil {
				return skipped, t.reportError(src, mkErr)
			}
		}
	} else {
		if mkErr := os.MkdirAll(dst, src.Stat.Mode.Perm()); mkErr != nil {
			return skipped, t.reportError(src, mkErr)
		}
	}

	out := copied
	children, err := os.ReadDir(src.Path)
	if err != nil {
		return incomplete, t.reportError(src, err)
	}
	for _, child := range children {
		if t.cancelled {
			return incomplete, errAborted
		}
		path := filepath.Join(src.Path, child.Name())
		ce, cerr := entry.Snapshot(path, t.req.Deref)
		if cerr != nil {
			if ferr := t.reportError(pathEntry(path), cerr); ferr != nil {
				return incomplete, ferr
			}
			out = incomplete
			continue
		}
		childOut, cpErr := t.copyEntry(ce, filepath.Join(dst, child.Name()))
		if cpErr != nil {
			return incomplete, cpErr
		}
		if childOut != copied {
			out = incomplete
		}
	}

	// Attributes go on last: copying children would disturb the times.
	if t.req.Preserve {
		if perr := preserveAttrs(dst, src); perr != nil {
			if ferr := t.reportError(src, perr); ferr != nil {
				return incomplete, ferr
			}
		}
	}
	t.stats.Dirs++
	return out, nil
}

//nolint:gocyclo // sequential conflict/transfer/partial handling reads best in one place
func (t *Task) copyFile(src entry.Entry, dst string) (outcome, error) {
	var offset int64
	if de, err := entry.Snapshot(dst, false); err == nil {
		if sameFile(src.Path, dst) {
			return skipped, t.refuseIdentity(src, dst)
		}
		tag, ferr := t.ask(Suspension{Reason: OverwriteConflict, Src: src, Dst: de})
		if ferr != nil {
			return incomplete, ferr
		}
		switch tag {
		case decision.Skip:
			t.stats.Skipped++
			return skipped, nil
		case decision.Abort:
			return incomplete, errAborted
		case decision.Update:
			if !src.Stat.ModTime.After(de.Stat.ModTime) {
				t.stats.Skipped++
				return skipped, nil
			}
		case decision.Reget:
			if de.Stat.Kind == entry.File {
				offset = de.Stat.Size
			}
		}
	}

	in, err := os.Open(src.Path)
	if err != nil {
		return skipped, t.reportError(src, err)
	}
	defer in.Close()
	if offset > 0 {
		if _, serr := in.Seek(offset, io.SeekStart); serr != nil {
			return skipped, t.reportError(src, serr)
		}
	}

	flags := os.O_WRONLY | os.O_CREATE
	if offset == 0 {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(dst, flags, src.Stat.Mode.Perm())
	if err != nil {
		return skipped, t.reportError(src, err)
	}
	if offset > 0 {
		if _, serr := out.Seek(offset, io.SeekStart); serr != nil {
			out.Close()
			return skipped, t.reportError(src, serr)
		}
	}

	dstE := pathEntry(dst)
	pos := offset
	size := src.Stat.Size
	buf := make([]byte, t.req.chunkSize())
	for {
		if t.cancelled {
			out.Close()
			if perr := t.partial(src, dst); perr != nil {
				return incomplete, perr
			}
			return incomplete, errAborted
		}
		n, rerr := in.Read(buf)
		if n > 0 {
			wn, werr := out.Write(buf[:n])
			pos += int64(wn)
			t.stats.Bytes += int64(wn)
			if werr != nil {
				out.Close()
				return t.abandonFile(src, dst, werr)
			}
			if size > 0 {
				t.progress(src, dstE, pos, size)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			return t.abandonFile(src, dst, rerr)
		}
	}

	if cerr := out.Close(); cerr != nil {
		return t.abandonFile(src, dst, cerr)
	}
	if t.req.Preserve {
		if perr := preserveAttrs(dst, src); perr != nil {
			if ferr := t.reportError(src, perr); ferr != nil {
				return incomplete, ferr
			}
		}
	}
	t.stats.Files++
	return copied, nil
}

// abandonFile handles an I/O error that interrupted a transfer: the error
// is routed through the policy, then the partial destination gets its one
// disposition question regardless of the skip/abort answer.
func (t *Task) abandonFile(src entry.Entry, dst string, cause error) (outcome, error) {
	aerr := t.reportError(src, cause)
	if aerr != nil && !isAborted(aerr) {
		return incomplete, aerr
	}
	if perr := t.partial(src, dst); perr != nil {
		return incomplete, perr
	}
	return incomplete, aerr
}

func (t *Task) copySymlink(src entry.Entry, dst string) (outcome, error) {
	target, err := os.Readlink(src.Path)
	if err != nil {
		return skipped, t.reportError(src, err)
	}
	if de, derr := entry.Snapshot(dst, false); derr == nil {
		if sameFile(src.Path, dst) {
			return skipped, t.refuseIdentity(src, dst)
		}
		tag, ferr := t.ask(Suspension{Reason: OverwriteConflict, Src: src, Dst: de})
		if ferr != nil {
			return incomplete, ferr
		}
		switch tag {
		case decision.Skip:
			t.stats.Skipped++
			return skipped, nil
		case decision.Abort:
			return incomplete, errAborted
		case decision.Update:
			if !src.Stat.ModTime.After(de.Stat.ModTime) {
				t.stats.Skipped++
				return skipped, nil
			}
		}
		if rmErr := os.Remove(dst); rmErr != nil {
			return skipped, t.reportError(de, rmErr)
		}
	}
	if err := os.Symlink(target, dst); err != nil {
		return skipped, t.reportError(src, err)
	}
	t.stats.Symlinks++
	return copied, nil
}

// refuseIdentity routes a source/destination identity through the
// policy as an I/O error: a transfer onto the same inode would read
// back its own output.
func (t *Task) refuseIdentity(src entry.Entry, dst string) error {
	noun := "file"
	if src.Stat.Kind == entry.Dir {
		noun = "directory"
	}
	return t.reportError(src, fmt.Errorf("%s and %s are the same %s", src.Path, dst, noun))
}

// sameFile reports whether two paths land on the same inode, links
// followed on both sides.
func sameFile(a, b string) bool {
	ai, aerr := os.Stat(a)
	bi, berr := os.Stat(b)
	return aerr == nil && berr == nil && os.SameFile(ai, bi)
}

func isAborted(err error) bool {
	return errors.Is(err, errAborted)
}

func pathEntry(path string) entry.Entry {
	return entry.Entry{Path: path, Name: filepath.Base(path)}
}
