package task

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bamsammich/ferry/internal/entry"
)

// preserveAttrs copies mode, timestamps, xattrs and ownership from the
// source entry onto dst. Ownership goes last and failures there are
// ignored: chown needs CAP_CHOWN and the rest of the attributes are
// still worth keeping without it.
func preserveAttrs(dst string, src entry.Entry) error {
	if src.Stat.Kind == entry.Symlink {
		return nil
	}

	if err := os.Chmod(dst, src.Stat.Mode.Perm()); err != nil {
		return fmt.Errorf("chmod %s: %w", dst, err)
	}

	times := []unix.Timespec{
		unix.NsecToTimespec(src.Stat.ModTime.UnixNano()),
		unix.NsecToTimespec(src.Stat.ModTime.UnixNano()),
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, dst, times, 0); err != nil {
		return fmt.Errorf("utimensat %s: %w", dst, err)
	}

	copyXattrs(src.Path, dst)

	var st unix.Stat_t
	if err := unix.Stat(src.Path, &st); err == nil {
		_ = unix.Chown(dst, int(st.Uid), int(st.Gid))
	}

	return nil
}

// copyXattrs is best-effort: unsupported filesystems and unreadable
// attributes are silently skipped.
func copyXattrs(src, dst string) {
	sz, err := unix.Listxattr(src, nil)
	if err != nil || sz == 0 {
		return
	}
	buf := make([]byte, sz)
	sz, err = unix.Listxattr(src, buf)
	if err != nil {
		return
	}
	for _, name := range parseXattrNames(buf[:sz]) {
		val, err := getXattr(src, name)
		if err != nil {
			continue
		}
		_ = unix.Setxattr(dst, name, val, 0)
	}
}

func getXattr(path, name string) ([]byte, error) {
	sz, err := unix.Getxattr(path, name, nil)
	if err != nil || sz == 0 {
		return nil, err
	}
	buf := make([]byte, sz)
	_, err = unix.Getxattr(path, name, buf)
	return buf, err
}

func parseXattrNames(buf []byte) []string {
	var names []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i > start {
				names = append(names, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return names
}
