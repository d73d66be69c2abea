package task

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/decision"
)

func buildTree(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deep"), 0755))
	writeFile(t, filepath.Join(root, "top.txt"), "top")
	writeFile(t, filepath.Join(root, "sub", "mid.txt"), "mid")
	writeFile(t, filepath.Join(root, "sub", "deep", "leaf.txt"), "leaf")
}

func TestDelete_EmptyDirNoQuestion(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "empty")
	require.NoError(t, os.MkdirAll(target, 0755))

	tk, err := New(Request{Op: Delete, Sources: []string{target}})
	require.NoError(t, err)

	p := newPump(t)
	st, err := p.run(tk)
	require.NoError(t, err)
	assert.Equal(t, Dead, st)
	assert.Zero(t, p.questions())

	_, statErr := os.Lstat(target)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDelete_NonEmptyDirAsksOnceForSubtree(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "tree")
	buildTree(t, target)

	tk, err := New(Request{Op: Delete, Sources: []string{target}})
	require.NoError(t, err)

	// One approval covers the whole subtree, nested non-empty dirs
	// included.
	p := newPump(t)
	p.answer(decision.KindNonEmptyDir, decision.Delete)

	st, err := p.run(tk)
	require.NoError(t, err)
	assert.Equal(t, Dead, st)
	assert.Equal(t, []decision.Kind{decision.KindNonEmptyDir}, p.asked)

	_, statErr := os.Lstat(target)
	assert.True(t, os.IsNotExist(statErr))
	// 3 files + 3 dirs.
	assert.Equal(t, int64(6), tk.Stats().Removed)
}

func TestDelete_SkipKeepsDir(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "tree")
	buildTree(t, target)

	tk, err := New(Request{Op: Delete, Sources: []string{target}})
	require.NoError(t, err)

	p := newPump(t)
	p.answer(decision.KindNonEmptyDir, decision.Skip)

	st, err := p.run(tk)
	require.NoError(t, err)
	assert.Equal(t, Dead, st)

	_, statErr := os.Lstat(filepath.Join(target, "sub", "deep", "leaf.txt"))
	assert.NoError(t, statErr)
	assert.Equal(t, int64(1), tk.Stats().Skipped)
}

func TestDelete_AbortStopsBeforeLaterSources(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first")
	second := filepath.Join(dir, "second.txt")
	buildTree(t, first)
	writeFile(t, second, "still here")

	tk, err := New(Request{Op: Delete, Sources: []string{first, second}})
	require.NoError(t, err)

	p := newPump(t)
	p.answer(decision.KindNonEmptyDir, decision.Abort)

	st, err := p.run(tk)
	require.NoError(t, err)
	assert.Equal(t, Terminated, st)

	// Abort at the approval question left everything in place.
	_, firstErr := os.Lstat(filepath.Join(first, "top.txt"))
	assert.NoError(t, firstErr)
	assert.Equal(t, "still here", readFile(t, second))
}

func TestDelete_PlainFileNoQuestion(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "x.txt")
	writeFile(t, target, "x")

	tk, err := New(Request{Op: Delete, Sources: []string{target}})
	require.NoError(t, err)

	p := newPump(t)
	st, err := p.run(tk)
	require.NoError(t, err)
	assert.Equal(t, Dead, st)
	assert.Zero(t, p.questions())
	assert.Equal(t, int64(1), tk.Stats().Removed)
}

func TestDelete_PrescanDrivesProgress(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "tree")
	buildTree(t, target)

	tk, err := New(Request{
		Op: Delete, Sources: []string{target},
		Options: Options{Prescan: true},
	})
	require.NoError(t, err)

	p := newPump(t)
	p.answer(decision.KindNonEmptyDir, decision.Delete)

	st, err := p.run(tk)
	require.NoError(t, err)
	assert.Equal(t, Dead, st)

	require.NotEmpty(t, p.parts)
	// Prescan counted 6 entries; the final tick reports all removed.
	assert.Equal(t, int64(6), p.wholes[0])
	assert.Equal(t, int64(6), p.parts[len(p.parts)-1])
	for _, whole := range p.wholes {
		assert.Positive(t, whole)
	}
}
