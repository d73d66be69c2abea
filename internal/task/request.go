package task

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Op is the operation kind, fixed for the lifetime of a task.
type Op int

const (
	Copy Op = iota + 1
	Move
	Delete
)

var opNames = [...]string{
	Copy:   "copy",
	Move:   "move",
	Delete: "delete",
}

func (o Op) String() string {
	if o > 0 && int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// ParseOp maps an operation name back to its Op.
func ParseOp(s string) (Op, error) {
	for o, name := range opNames {
		if name != "" && name == s {
			return Op(o), nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// Options tune how the walk behaves.
type Options struct {
	// Deref follows symlinks on copy instead of recreating them.
	Deref bool
	// Preserve copies mode bits, timestamps, ownership and xattrs.
	Preserve bool
	// Prescan sizes the operation up front so progress can report
	// overall totals.
	Prescan bool
	// ChunkSize overrides the copy buffer size. Zero means 64 KiB.
	ChunkSize int64
}

const defaultChunkSize = 64 * 1024

// Request describes one operation over a set of sources.
type Request struct {
	Op      Op
	Sources []string
	Dest    string
	Options
}

// Validate rejects requests the walk could not execute sensibly.
func (r Request) Validate() error {
	if len(r.Sources) == 0 {
		return fmt.Errorf("%s: no sources", r.Op)
	}
	switch r.Op {
	case Copy, Move:
		if r.Dest == "" {
			return fmt.Errorf("%s: destination required", r.Op)
		}
		for _, src := range r.Sources {
			if err := checkNotNested(src, r.Dest); err != nil {
				return fmt.Errorf("%s: %w", r.Op, err)
			}
		}
	case Delete:
		if r.Dest != "" {
			return fmt.Errorf("delete: unexpected destination %q", r.Dest)
		}
	default:
		return fmt.Errorf("unknown operation %d", r.Op)
	}
	return nil
}

func (r Request) chunkSize() int64 {
	if r.ChunkSize > 0 {
		return r.ChunkSize
	}
	return defaultChunkSize
}

// checkNotNested rejects a destination that equals a source or lives
// inside one; the walk would otherwise recurse into its own output.
func checkNotNested(src, dest string) error {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	absDst, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(absSrc, absDst)
	if err != nil {
		return nil
	}
	if rel == "." {
		return fmt.Errorf("%q and %q are the same path", src, dest)
	}
	if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("destination %q is inside source %q", dest, src)
	}
	return nil
}

// resolveTarget maps one source onto the destination: into the directory
// when the destination is an existing directory or when several sources
// share it, otherwise the destination path itself.
func resolveTarget(src, dest string, multi bool) string {
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		return filepath.Join(dest, filepath.Base(src))
	}
	if multi {
		return filepath.Join(dest, filepath.Base(src))
	}
	return dest
}
