package plan_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/decision"
	"github.com/bamsammich/ferry/internal/plan"
	"github.com/bamsammich/ferry/internal/task"
)

func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullPlan(t *testing.T) {
	path := writePlan(t, `
operations:
  - operation: copy
    sources: [/data/in, /data/extra]
    destination: /backup
    preserve: true
    answers:
      overwrite-conflict: update
      io-error: skip
      partial-transfer: keep
  - operation: delete
    sources: [/tmp/junk]
    answers:
      non-empty-dir: delete
`)

	p, err := plan.Load(path)
	require.NoError(t, err)
	require.Len(t, p.Operations, 2)

	req, err := p.Operations[0].Request()
	require.NoError(t, err)
	assert.Equal(t, task.Copy, req.Op)
	assert.Equal(t, []string{"/data/in", "/data/extra"}, req.Sources)
	assert.Equal(t, "/backup", req.Dest)
	assert.True(t, req.Preserve)
	assert.False(t, req.Deref)

	seed, err := p.Operations[0].Seed()
	require.NoError(t, err)
	assert.Equal(t, decision.Update, seed[decision.KindOverwrite])
	assert.Equal(t, decision.Skip, seed[decision.KindIOError])
	assert.Equal(t, decision.Keep, seed[decision.KindPartial])

	req, err = p.Operations[1].Request()
	require.NoError(t, err)
	assert.Equal(t, task.Delete, req.Op)
	assert.Empty(t, req.Dest)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := plan.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_EmptyPlan(t *testing.T) {
	path := writePlan(t, "operations: []\n")
	_, err := plan.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no operations")
}

func TestLoad_UnknownOperation(t *testing.T) {
	path := writePlan(t, `
operations:
  - operation: teleport
    sources: [/a]
    destination: /b
`)
	_, err := plan.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operation")
}

func TestLoad_NoSources(t *testing.T) {
	path := writePlan(t, `
operations:
  - operation: copy
    destination: /b
`)
	_, err := plan.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sources")
}

func TestLoad_UnknownAnswerKind(t *testing.T) {
	path := writePlan(t, `
operations:
  - operation: copy
    sources: [/a]
    destination: /b
    answers:
      disk-full: skip
`)
	_, err := plan.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown decision kind")
}

func TestLoad_UnknownAnswerTag(t *testing.T) {
	path := writePlan(t, `
operations:
  - operation: copy
    sources: [/a]
    destination: /b
    answers:
      io-error: shrug
`)
	_, err := plan.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown decision tag")
}

func TestLoad_IllegalAnswerForKind(t *testing.T) {
	// reget is a legal tag, but not for io-error.
	path := writePlan(t, `
operations:
  - operation: copy
    sources: [/a]
    destination: /b
    answers:
      io-error: reget
`)
	_, err := plan.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not legal")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writePlan(t, "operations: [unclosed\n")
	_, err := plan.Load(path)
	assert.Error(t, err)
}

func TestOperation_SeedEmpty(t *testing.T) {
	op := plan.Operation{Operation: "copy", Sources: []string{"/a"}, Destination: "/b"}
	seed, err := op.Seed()
	require.NoError(t, err)
	assert.Nil(t, seed)
}
