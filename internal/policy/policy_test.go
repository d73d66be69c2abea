package policy

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/decision"
	"github.com/bamsammich/ferry/internal/entry"
	"github.com/bamsammich/ferry/internal/task"
)

// stubSurface scripts operator answers and records everything shown to
// it. Run pumps the driver in a tight loop; abortAfterProgress injects
// an abort request after that many progress updates, the way a real
// surface would on a close key.
type stubSurface struct {
	t       *testing.T
	answers map[decision.Kind][]decision.Decision

	asked    []decision.Kind
	askedSrc []string
	starting []string
	percents []float64

	abortAfterProgress int
	progressSeen       int
	drv                *Driver
	closed             int
}

func newStubSurface(t *testing.T) *stubSurface {
	t.Helper()
	return &stubSurface{t: t, answers: make(map[decision.Kind][]decision.Decision)}
}

func (s *stubSurface) answer(kind decision.Kind, tag decision.Tag, forAll bool) *stubSurface {
	s.answers[kind] = append(s.answers[kind], decision.Decision{Tag: tag, ForAll: forAll})
	return s
}

func (s *stubSurface) pop(kind decision.Kind, src string) decision.Decision {
	s.t.Helper()
	s.asked = append(s.asked, kind)
	s.askedSrc = append(s.askedSrc, src)
	queue := s.answers[kind]
	require.NotEmpty(s.t, queue, "unscripted %s question for %s", kind, src)
	d := queue[0]
	s.answers[kind] = queue[1:]
	return d
}

func (s *stubSurface) AskOverwrite(src, _ entry.Entry) decision.Decision {
	return s.pop(decision.KindOverwrite, src.Path)
}

func (s *stubSurface) AskIOError(err error) decision.Decision {
	return s.pop(decision.KindIOError, err.Error())
}

func (s *stubSurface) AskPartial(src, _ entry.Entry) decision.Decision {
	return s.pop(decision.KindPartial, src.Path)
}

func (s *stubSurface) AskNonEmptyDir(src entry.Entry) decision.Decision {
	return s.pop(decision.KindNonEmptyDir, src.Path)
}

func (s *stubSurface) ShowStarting(op task.Op, src, _ string) {
	s.starting = append(s.starting, op.String()+" "+src)
}

func (s *stubSurface) ShowProgress(percent float64, _, _ int64) {
	s.percents = append(s.percents, percent)
	s.progressSeen++
	if s.abortAfterProgress > 0 && s.progressSeen == s.abortAfterProgress {
		s.drv.RequestAbort()
	}
}

func (s *stubSurface) Run(drv *Driver) error {
	s.drv = drv
	defer func() { s.closed++ }()
	for {
		st, err := drv.Step()
		if err != nil || st.Terminal() {
			return err
		}
	}
}

type recordedAnswer struct {
	taskID string
	reason task.Reason
	src    string
	dst    string
	dec    decision.Decision
}

type captureRecorder struct {
	records []recordedAnswer
}

func (r *captureRecorder) Record(taskID string, reason task.Reason, src, dst string, d decision.Decision) {
	r.records = append(r.records, recordedAnswer{taskID, reason, src, dst, d})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func newTask(t *testing.T, req task.Request) *task.Task {
	t.Helper()
	tk, err := task.New(req)
	require.NoError(t, err)
	return tk
}

func TestBatch_DecisionsAreConstant(t *testing.T) {
	b := NewBatch(&bytes.Buffer{}, NewState(false, false), nil)
	junk := entry.Entry{Path: "/nowhere"}
	for range 2 {
		assert.Equal(t, decision.Decision{Tag: decision.Overwrite}, b.DecideOverwrite(junk, junk))
		assert.Equal(t, decision.Decision{Tag: decision.Skip}, b.DecideIOError(errors.New("boom")))
		assert.Equal(t, decision.Decision{Tag: decision.Delete}, b.DecidePartial(junk, junk))
		assert.Equal(t, decision.Decision{Tag: decision.Delete}, b.DecideNonEmptyDir(junk))
	}
}

func TestBatch_CleanCopyAsksNothing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "a.txt"), "alpha")
	writeFile(t, filepath.Join(dir, "src", "b.txt"), "bravo")
	dst := filepath.Join(dir, "dst")

	tk := newTask(t, task.Request{
		Op:      task.Copy,
		Sources: []string{filepath.Join(dir, "src")},
		Dest:    dst,
	})

	var out bytes.Buffer
	rec := &captureRecorder{}
	b := NewBatch(&out, NewState(false, false), rec)
	require.NoError(t, b.Start(tk))

	assert.Equal(t, task.Dead, tk.State())
	assert.Empty(t, rec.records, "clean run must not route any decisions")
	assert.Equal(t, 1, strings.Count(out.String(), "\n"), "one starting line only")
	assert.Contains(t, out.String(), "->")
	assert.Equal(t, "alpha", readFile(t, filepath.Join(dst, "a.txt")))
	assert.Equal(t, "bravo", readFile(t, filepath.Join(dst, "b.txt")))
}

func TestBatch_OverwriteReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	dst := filepath.Join(dir, "out", "a.txt")
	writeFile(t, src, "fresh")
	writeFile(t, dst, "stale")

	tk := newTask(t, task.Request{Op: task.Copy, Sources: []string{src}, Dest: dst})
	rec := &captureRecorder{}
	b := NewBatch(&bytes.Buffer{}, NewState(false, false), rec)
	require.NoError(t, b.Start(tk))

	assert.Equal(t, task.Dead, tk.State())
	assert.Equal(t, "fresh", readFile(t, dst))
	require.Len(t, rec.records, 1)
	assert.Equal(t, task.OverwriteConflict, rec.records[0].reason)
	assert.Equal(t, decision.Overwrite, rec.records[0].dec.Tag)
}

func TestBatch_DeletePrintsRmLine(t *testing.T) {
	dir := t.TempDir()
	victim := filepath.Join(dir, "victim.txt")
	writeFile(t, victim, "bye")

	tk := newTask(t, task.Request{Op: task.Delete, Sources: []string{victim}})
	var out bytes.Buffer
	b := NewBatch(&out, NewState(false, false), nil)
	require.NoError(t, b.Start(tk))

	assert.Equal(t, task.Dead, tk.State())
	assert.Contains(t, out.String(), "rm "+victim)
	assert.NoFileExists(t, victim)
}

func TestInteractive_ForAllMemoizes(t *testing.T) {
	dir := t.TempDir()
	srcA := filepath.Join(dir, "src", "a.txt")
	srcB := filepath.Join(dir, "src", "b.txt")
	dstDir := filepath.Join(dir, "dst")
	dstA := filepath.Join(dstDir, "a.txt")
	dstB := filepath.Join(dstDir, "b.txt")
	writeFile(t, dstA, "stale-a")
	writeFile(t, dstB, "stale-b")
	writeFile(t, srcA, "fresh-a")
	writeFile(t, srcB, "fresh-b")
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(dstA, old, old))
	require.NoError(t, os.Chtimes(dstB, old, old))

	tk := newTask(t, task.Request{Op: task.Copy, Sources: []string{srcA, srcB}, Dest: dstDir})
	surf := newStubSurface(t).answer(decision.KindOverwrite, decision.Update, true)
	rec := &captureRecorder{}
	p := NewInteractive(surf, NewState(false, false), rec)
	require.NoError(t, p.Start(tk))

	assert.Equal(t, task.Dead, tk.State())
	assert.Equal(t, []decision.Kind{decision.KindOverwrite}, surf.asked, "second conflict answered from memory")
	assert.Equal(t, "fresh-a", readFile(t, dstA))
	assert.Equal(t, "fresh-b", readFile(t, dstB))
	assert.Len(t, surf.starting, 1)
	assert.Equal(t, 1, surf.closed)

	// Both answers flow through the recorder, asked or memoized.
	require.Len(t, rec.records, 2)
	for _, r := range rec.records {
		assert.Equal(t, decision.Update, r.dec.Tag)
	}
}

func TestInteractive_AsksEachConflictWithoutForAll(t *testing.T) {
	dir := t.TempDir()
	srcA := filepath.Join(dir, "src", "a.txt")
	srcB := filepath.Join(dir, "src", "b.txt")
	dstDir := filepath.Join(dir, "dst")
	writeFile(t, srcA, "fresh-a")
	writeFile(t, srcB, "fresh-b")
	writeFile(t, filepath.Join(dstDir, "a.txt"), "stale-a")
	writeFile(t, filepath.Join(dstDir, "b.txt"), "stale-b")

	tk := newTask(t, task.Request{Op: task.Copy, Sources: []string{srcA, srcB}, Dest: dstDir})
	surf := newStubSurface(t).
		answer(decision.KindOverwrite, decision.Skip, false).
		answer(decision.KindOverwrite, decision.Overwrite, false)
	p := NewInteractive(surf, NewState(false, false), nil)
	require.NoError(t, p.Start(tk))

	assert.Equal(t, task.Dead, tk.State())
	assert.Equal(t, []string{srcA, srcB}, surf.askedSrc, "questions arrive in encounter order")
	assert.Equal(t, "stale-a", readFile(t, filepath.Join(dstDir, "a.txt")))
	assert.Equal(t, "fresh-b", readFile(t, filepath.Join(dstDir, "b.txt")))
	assert.Equal(t, int64(1), tk.Stats().Skipped)
}

func TestInteractive_IOErrorSkipAll(t *testing.T) {
	dir := t.TempDir()
	bad1 := filepath.Join(dir, "bad1")
	bad2 := filepath.Join(dir, "bad2")
	good := filepath.Join(dir, "good.txt")
	require.NoError(t, os.Symlink(filepath.Join(dir, "missing1"), bad1))
	require.NoError(t, os.Symlink(filepath.Join(dir, "missing2"), bad2))
	writeFile(t, good, "payload")
	dstDir := filepath.Join(dir, "dst")
	require.NoError(t, os.MkdirAll(dstDir, 0o755))

	tk := newTask(t, task.Request{
		Op:      task.Copy,
		Sources: []string{bad1, bad2, good},
		Dest:    dstDir,
		Options: task.Options{Deref: true},
	})
	surf := newStubSurface(t).answer(decision.KindIOError, decision.Skip, true)
	p := NewInteractive(surf, NewState(false, false), nil)
	require.NoError(t, p.Start(tk))

	assert.Equal(t, task.Dead, tk.State())
	assert.Equal(t, []decision.Kind{decision.KindIOError}, surf.asked, "second error answered from memory")
	assert.Equal(t, int64(2), tk.Stats().Errors)
	assert.Equal(t, "payload", readFile(t, filepath.Join(dstDir, "good.txt")))
}

func TestInteractive_AbortMidTransferAsksPartialOnce(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "big.bin")
	dst := filepath.Join(dir, "out.bin")
	writeFile(t, src, strings.Repeat("x", 200))

	tk := newTask(t, task.Request{
		Op:      task.Copy,
		Sources: []string{src},
		Dest:    dst,
		Options: task.Options{ChunkSize: 50},
	})
	surf := newStubSurface(t).answer(decision.KindPartial, decision.Delete, false)
	surf.abortAfterProgress = 1
	p := NewInteractive(surf, NewState(false, false), nil)
	require.NoError(t, p.Start(tk), "abort is an outcome, not a fault")

	assert.Equal(t, task.Terminated, tk.State())
	assert.Equal(t, []decision.Kind{decision.KindPartial}, surf.asked, "exactly one partial question on the way out")
	assert.NoFileExists(t, dst)
	assert.Equal(t, int64(1), tk.Stats().Removed)
	require.NotEmpty(t, surf.percents)
	assert.InDelta(t, 25.0, surf.percents[0], 0.001)
	assert.Equal(t, 1, surf.closed)
}

func TestInteractive_IllegalAnswerIsFault(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	dst := filepath.Join(dir, "b.txt")
	writeFile(t, src, "fresh")
	writeFile(t, dst, "stale")

	tk := newTask(t, task.Request{Op: task.Copy, Sources: []string{src}, Dest: dst})
	surf := newStubSurface(t).answer(decision.KindOverwrite, decision.Keep, false)
	p := NewInteractive(surf, NewState(false, false), nil)

	err := p.Start(tk)
	require.Error(t, err)
	var fe *task.FaultError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, task.OverwriteConflict, fe.Reason)
	assert.Equal(t, decision.Keep, fe.Tag)
	assert.Equal(t, src, fe.Src)
	assert.Contains(t, err.Error(), "pump task")
	assert.Equal(t, task.Terminated, tk.State())
	assert.Equal(t, 1, surf.closed, "surface torn down despite the fault")
}

func TestPassive_NeverAsks(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad")
	require.NoError(t, os.Symlink(filepath.Join(dir, "missing"), bad))
	src := filepath.Join(dir, "a.txt")
	writeFile(t, src, "fresh")
	dstDir := filepath.Join(dir, "dst")
	writeFile(t, filepath.Join(dstDir, "a.txt"), "stale")

	tk := newTask(t, task.Request{
		Op:      task.Copy,
		Sources: []string{bad, src},
		Dest:    dstDir,
		Options: task.Options{Deref: true},
	})
	surf := newStubSurface(t) // no scripted answers: any Ask fails the test
	p := NewPassive(surf, NewState(false, false), nil)
	require.NoError(t, p.Start(tk))

	assert.Equal(t, task.Dead, tk.State())
	assert.Empty(t, surf.asked)
	assert.Equal(t, int64(1), tk.Stats().Errors)
	assert.Equal(t, "fresh", readFile(t, filepath.Join(dstDir, "a.txt")))
}

func TestPassive_PartialDeleteHardwired(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "big.bin")
	dst := filepath.Join(dir, "out.bin")
	writeFile(t, src, strings.Repeat("y", 200))

	tk := newTask(t, task.Request{
		Op:      task.Copy,
		Sources: []string{src},
		Dest:    dst,
		Options: task.Options{ChunkSize: 50},
	})
	surf := newStubSurface(t)
	surf.abortAfterProgress = 1
	p := NewPassive(surf, NewState(false, false), nil)
	require.NoError(t, p.Start(tk))

	assert.Equal(t, task.Terminated, tk.State())
	assert.Empty(t, surf.asked, "partial disposition must not reach the surface")
	assert.NoFileExists(t, dst)
}

func TestPassive_DeleteNonEmptyDirSeeded(t *testing.T) {
	dir := t.TempDir()
	victim := filepath.Join(dir, "victim")
	writeFile(t, filepath.Join(victim, "child.txt"), "gone")

	tk := newTask(t, task.Request{Op: task.Delete, Sources: []string{victim}})
	surf := newStubSurface(t)
	p := NewPassive(surf, NewState(false, false), nil)
	require.NoError(t, p.Start(tk))

	assert.Equal(t, task.Dead, tk.State())
	assert.Empty(t, surf.asked)
	assert.NoDirExists(t, victim)
}

func TestDriver_RecordsRoutedAnswers(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	dst := filepath.Join(dir, "b.txt")
	writeFile(t, src, "fresh")
	writeFile(t, dst, "stale")

	tk := newTask(t, task.Request{Op: task.Copy, Sources: []string{src}, Dest: dst})
	surf := newStubSurface(t).answer(decision.KindOverwrite, decision.Skip, false)
	rec := &captureRecorder{}
	p := NewInteractive(surf, NewState(false, false), rec)
	require.NoError(t, p.Start(tk))

	require.Len(t, rec.records, 1)
	r := rec.records[0]
	assert.Equal(t, tk.ID(), r.taskID)
	assert.Equal(t, task.OverwriteConflict, r.reason)
	assert.Equal(t, src, r.src)
	assert.Equal(t, dst, r.dst)
	assert.Equal(t, decision.Skip, r.dec.Tag)
}

func TestNew_FactoryVariants(t *testing.T) {
	p, err := New(VariantBatch, Config{Out: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.IsType(t, &Batch{}, p)

	_, err = New(VariantInteractive, Config{})
	require.ErrorContains(t, err, "requires a surface")

	surf := newStubSurface(t)
	p, err = New(VariantInteractive, Config{Surface: surf})
	require.NoError(t, err)
	assert.IsType(t, &Interactive{}, p)

	p, err = New(VariantPassive, Config{Surface: surf})
	require.NoError(t, err)
	assert.IsType(t, &Passive{}, p)

	_, err = New(Variant(9), Config{})
	require.ErrorContains(t, err, "unknown policy variant")
}

func TestNew_SeedOverridesVariantDefaults(t *testing.T) {
	surf := newStubSurface(t)
	p, err := New(VariantPassive, Config{
		Surface: surf,
		Seed:    map[decision.Kind]decision.Tag{decision.KindOverwrite: decision.Skip},
	})
	require.NoError(t, err)

	d := p.DecideOverwrite(entry.Entry{}, entry.Entry{})
	assert.Equal(t, decision.Decision{Tag: decision.Skip, ForAll: true}, d)
}

func TestState_RememberOnlyForAll(t *testing.T) {
	st := NewState(false, false)

	st.Remember(decision.KindOverwrite, decision.Decision{Tag: decision.Skip})
	_, ok := st.Memo(decision.KindOverwrite)
	assert.False(t, ok, "single-shot answers must not stick")

	st.Remember(decision.KindOverwrite, decision.Decision{Tag: decision.Update, ForAll: true})
	d, ok := st.Memo(decision.KindOverwrite)
	require.True(t, ok)
	assert.Equal(t, decision.Update, d.Tag)

	st.Seed(decision.KindIOError, decision.Skip)
	d, ok = st.Memo(decision.KindIOError)
	require.True(t, ok)
	assert.Equal(t, decision.Decision{Tag: decision.Skip, ForAll: true}, d)
}

func TestVariant_ParseAndString(t *testing.T) {
	for _, name := range []string{"batch", "interactive", "passive"} {
		v, err := ParseVariant(name)
		require.NoError(t, err)
		assert.Equal(t, name, v.String())
	}
	_, err := ParseVariant("chatty")
	require.ErrorContains(t, err, "unknown policy variant")
}

func TestBatch_AbortChannelTerminatesRun(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "big.bin")
	dst := filepath.Join(dir, "out.bin")
	writeFile(t, src, strings.Repeat("x", 64*1024))

	abortC := make(chan struct{})
	close(abortC)

	pol, err := New(VariantBatch, Config{Out: &bytes.Buffer{}, AbortC: abortC})
	require.NoError(t, err)

	tk := newTask(t, task.Request{
		Op:      task.Copy,
		Sources: []string{src},
		Dest:    dst,
		Options: task.Options{ChunkSize: 64},
	})
	require.NoError(t, pol.Start(tk))

	assert.Equal(t, task.Terminated, tk.State())
	assert.NoFileExists(t, dst, "batch deletes the partial on abort")
}

func TestBatch_DecidePartialHonorsSeed(t *testing.T) {
	st := NewState(false, false)
	st.Seed(decision.KindPartial, decision.Keep)
	b := NewBatch(&bytes.Buffer{}, st, nil)

	d := b.DecidePartial(entry.Entry{}, entry.Entry{})
	assert.Equal(t, decision.Keep, d.Tag)
	assert.True(t, d.ForAll)
}

// TestBatch_SeededPartialKeptOnAbort mirrors a plan run that answered
// partial-transfer with keep: the interrupted destination must survive
// for a later reget.
func TestBatch_SeededPartialKeptOnAbort(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "big.bin")
	dst := filepath.Join(dir, "out.bin")
	writeFile(t, src, strings.Repeat("x", 4096))

	st := NewState(false, false)
	st.Seed(decision.KindPartial, decision.Keep)
	b := NewBatch(&bytes.Buffer{}, st, nil)

	tk := newTask(t, task.Request{
		Op:      task.Copy,
		Sources: []string{src},
		Dest:    dst,
		Options: task.Options{ChunkSize: 1024},
	})
	drv := NewDriver(tk, b, nil)

	// Step until the transfer is under way, then request the abort; the
	// partial question on the way out must come back keep.
	for tk.Stats().Bytes == 0 {
		state, err := drv.Step()
		require.NoError(t, err)
		require.Equal(t, task.Suspended, state)
	}
	drv.RequestAbort()

	state, err := drv.Run()
	require.NoError(t, err)
	assert.Equal(t, task.Terminated, state)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, tk.Stats().Bytes, int64(len(data)), "kept partial holds the bytes written so far")
}
