package ui

import (
	"fmt"
	"time"

	"github.com/bamsammich/ferry/internal/task"
)

// Summary builds the final one-line report for a finished operation.
// Format: done ✓  files 48,917  dirs 12  size 2.1 GiB  time 3m 17s  errors 0
func Summary(st task.Stats, elapsed time.Duration, aborted bool) string {
	verb := "done"
	icon := "✓"
	if aborted {
		verb = "aborted"
		icon = "·"
	} else if st.Errors > 0 {
		icon = "✗"
	}

	base := fmt.Sprintf("%s %s  files %s  dirs %s  size %s  time %s",
		verb, icon,
		FormatCount(st.Files),
		FormatCount(st.Dirs),
		FormatBytes(st.Bytes),
		FormatDuration(elapsed),
	)

	if st.Symlinks > 0 {
		base += fmt.Sprintf("  links %s", FormatCount(st.Symlinks))
	}
	if st.Removed > 0 {
		base += fmt.Sprintf("  removed %s", FormatCount(st.Removed))
	}
	if st.Skipped > 0 {
		base += fmt.Sprintf("  skipped %s", FormatCount(st.Skipped))
	}
	base += fmt.Sprintf("  errors %d", st.Errors)

	return base
}
