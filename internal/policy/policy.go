// Package policy implements the decision layer that answers a suspended
// task: Batch with fixed answers and a tight synchronous pump,
// Interactive with modal questions through a presentation surface, and
// Passive, which reuses the interactive machinery with every blanket
// answer seeded up front. The task never learns which variant drives it.
package policy

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bamsammich/ferry/internal/decision"
	"github.com/bamsammich/ferry/internal/entry"
	"github.com/bamsammich/ferry/internal/task"
)

// Variant selects a policy implementation.
type Variant int

const (
	VariantBatch Variant = iota + 1
	VariantInteractive
	VariantPassive
)

var variantNames = [...]string{
	VariantBatch:       "batch",
	VariantInteractive: "interactive",
	VariantPassive:     "passive",
}

func (v Variant) String() string {
	if v > 0 && int(v) < len(variantNames) {
		return variantNames[v]
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// ParseVariant maps a variant name back to its Variant.
func ParseVariant(s string) (Variant, error) {
	for v, name := range variantNames {
		if name != "" && name == s {
			return Variant(v), nil
		}
	}
	return 0, fmt.Errorf("unknown policy variant %q", s)
}

// Policy answers a task's decision points and receives its notifications
// without knowing how the task performs its work. Start owns the pump
// and returns once the task is terminal; only contract faults escape it.
type Policy interface {
	DecideOverwrite(src, dst entry.Entry) decision.Decision
	DecideIOError(err error) decision.Decision
	DecidePartial(src, dst entry.Entry) decision.Decision
	DecideNonEmptyDir(src entry.Entry) decision.Decision
	NotifyStarting(op task.Op, src, dst string)
	NotifyProgress(part, whole int64)
	Start(t *task.Task) error
}

// Config carries the collaborators a variant may need. Surface is
// required for interactive and passive; Out defaults to stdout. Seed
// pre-answers decision kinds before the first question, overriding any
// answers the variant seeds itself. AbortC, when closed, requests a
// cooperative abort at the task's next checkpoint; only the batch
// variant watches it, surfaces route their own close keys.
type Config struct {
	Surface  Surface
	Out      io.Writer
	Deref    bool
	Preserve bool
	Recorder Recorder
	Seed     map[decision.Kind]decision.Tag
	AbortC   <-chan struct{}
}

// New builds a policy of the given variant.
//
//nolint:ireturn // factory returns interface by design
func New(v Variant, cfg Config) (Policy, error) {
	st := NewState(cfg.Deref, cfg.Preserve)

	var p Policy
	switch v {
	case VariantBatch:
		out := cfg.Out
		if out == nil {
			out = os.Stdout
		}
		b := NewBatch(out, st, cfg.Recorder)
		b.abortC = cfg.AbortC
		p = b
	case VariantInteractive:
		if cfg.Surface == nil {
			return nil, errors.New("interactive policy requires a surface")
		}
		p = NewInteractive(cfg.Surface, st, cfg.Recorder)
	case VariantPassive:
		if cfg.Surface == nil {
			return nil, errors.New("passive policy requires a surface")
		}
		p = NewPassive(cfg.Surface, st, cfg.Recorder)
	default:
		return nil, fmt.Errorf("unknown policy variant %d", v)
	}

	for kind, tag := range cfg.Seed {
		st.Seed(kind, tag)
	}
	return p, nil
}
