package entry

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Kind identifies the kind of filesystem object an Entry describes.
type Kind int

const (
	File Kind = iota
	Dir
	Symlink
	Other
)

var kindNames = [...]string{
	File:    "file",
	Dir:     "dir",
	Symlink: "symlink",
	Other:   "other",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Stat is an immutable snapshot of an object's metadata, taken when the
// operation encounters it. Policies read it; nothing updates it afterward.
type Stat struct {
	Kind    Kind
	Size    int64
	Mode    fs.FileMode
	ModTime time.Time
}

// Entry describes one filesystem object passed between the operation and a
// policy. Path is absolute; Name is the base component for display.
type Entry struct {
	Path string
	Name string
	Stat Stat
}

// KindOf maps a file mode to an Entry kind.
func KindOf(mode fs.FileMode) Kind {
	switch {
	case mode.IsRegular():
		return File
	case mode.IsDir():
		return Dir
	case mode&fs.ModeSymlink != 0:
		return Symlink
	default:
		return Other
	}
}

// FromInfo builds an Entry from a path and its FileInfo.
func FromInfo(path string, info fs.FileInfo) Entry {
	return Entry{
		Path: path,
		Name: filepath.Base(path),
		Stat: Stat{
			Kind:    KindOf(info.Mode()),
			Size:    info.Size(),
			Mode:    info.Mode(),
			ModTime: info.ModTime(),
		},
	}
}

// Snapshot stats path and returns its Entry. With deref set, symlinks are
// followed (os.Stat); otherwise the link itself is described (os.Lstat).
func Snapshot(path string, deref bool) (Entry, error) {
	var (
		info os.FileInfo
		err  error
	)
	if deref {
		info, err = os.Stat(path)
	} else {
		info, err = os.Lstat(path)
	}
	if err != nil {
		return Entry{}, err
	}
	return FromInfo(path, info), nil
}
