package task

// Stats counts the work a task has performed. The counters are owned by
// the walk goroutine; read them only while the task is suspended or
// terminal.
type Stats struct {
	Files    int64 // regular files fully transferred
	Dirs     int64 // directories created or removed
	Symlinks int64 // symlinks recreated or moved
	Bytes    int64 // payload bytes written
	Skipped  int64 // entries left untouched by decision
	Errors   int64 // entries abandoned after an I/O error skip
	Removed  int64 // entries deleted
}

// Processed returns the number of entries the task finished with.
func (s Stats) Processed() int64 {
	return s.Files + s.Dirs + s.Symlinks
}
