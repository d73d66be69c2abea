package task

import (
	"io/fs"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Totals holds the prescan size of an operation. Known is false when no
// prescan ran; progress then reports per-file positions only.
type Totals struct {
	Items int64
	Bytes int64
	Known bool
}

// prescan walks all sources concurrently, summing entry counts and
// regular-file sizes. The totals are advisory: unreadable subtrees are
// counted as far as they could be walked, and the walk never follows
// symlinks.
func prescan(sources []string) (Totals, error) {
	var items, bytes atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(4)
	for _, src := range sources {
		g.Go(func() error {
			return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					if path == src {
						return err
					}
					return nil
				}
				items.Add(1)
				if d.Type().IsRegular() {
					if info, ierr := d.Info(); ierr == nil {
						bytes.Add(info.Size())
					}
				}
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return Totals{}, err
	}
	return Totals{Items: items.Load(), Bytes: bytes.Load(), Known: true}, nil
}
