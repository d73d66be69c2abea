// Package plan loads YAML plan files for unattended runs. A plan lists
// operations together with blanket answers for the questions they may
// raise; answers use the literal wire forms of the decision vocabulary.
package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bamsammich/ferry/internal/decision"
	"github.com/bamsammich/ferry/internal/task"
)

// Plan is the root of a plan file.
type Plan struct {
	Operations []Operation `yaml:"operations"`
}

// Operation is one planned operation. Answers maps a decision kind to
// the tag applied whenever that question comes up; a planned answer is
// always a blanket answer.
type Operation struct {
	Operation   string            `yaml:"operation"`
	Sources     []string          `yaml:"sources"`
	Destination string            `yaml:"destination,omitempty"`
	Deref       bool              `yaml:"deref"`
	Preserve    bool              `yaml:"preserve"`
	Answers     map[string]string `yaml:"answers,omitempty"`
}

// Load reads and validates a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}

	if len(p.Operations) == 0 {
		return nil, fmt.Errorf("plan %s: no operations", path)
	}
	for i, op := range p.Operations {
		if err := op.validate(); err != nil {
			return nil, fmt.Errorf("operation %d: %w", i+1, err)
		}
	}
	return &p, nil
}

func (o Operation) validate() error {
	if _, err := task.ParseOp(o.Operation); err != nil {
		return err
	}
	if len(o.Sources) == 0 {
		return fmt.Errorf("%s: no sources", o.Operation)
	}
	if _, err := o.Seed(); err != nil {
		return err
	}
	return nil
}

// Request builds the task request for this operation.
func (o Operation) Request() (task.Request, error) {
	op, err := task.ParseOp(o.Operation)
	if err != nil {
		return task.Request{}, err
	}
	return task.Request{
		Op:      op,
		Sources: o.Sources,
		Dest:    o.Destination,
		Options: task.Options{
			Deref:    o.Deref,
			Preserve: o.Preserve,
		},
	}, nil
}

// Seed translates the planned answers into policy seeds, rejecting
// tags outside the legal set of their kind.
func (o Operation) Seed() (map[decision.Kind]decision.Tag, error) {
	if len(o.Answers) == 0 {
		return nil, nil
	}
	seed := make(map[decision.Kind]decision.Tag, len(o.Answers))
	for k, t := range o.Answers {
		kind, err := decision.ParseKind(k)
		if err != nil {
			return nil, err
		}
		tag, err := decision.ParseTag(t)
		if err != nil {
			return nil, err
		}
		if !kind.Allows(tag) {
			return nil, fmt.Errorf("answer %q is not legal for %s", t, k)
		}
		seed[kind] = tag
	}
	return seed, nil
}
