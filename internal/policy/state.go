package policy

import "github.com/bamsammich/ferry/internal/decision"

// State is the mutable memory a policy carries across one task run:
// the option flags the operation was created with and the blanket
// answers accumulated so far. Only the owning policy's decision
// methods write to it, so no locking is needed.
type State struct {
	Deref    bool
	Preserve bool
	Passive  bool

	forAll map[decision.Kind]decision.Decision
}

// NewState returns an empty state with the given option flags.
func NewState(deref, preserve bool) *State {
	return &State{
		Deref:    deref,
		Preserve: preserve,
		forAll:   make(map[decision.Kind]decision.Decision),
	}
}

// Memo reports the blanket answer recorded for kind, if any.
func (s *State) Memo(kind decision.Kind) (decision.Decision, bool) {
	d, ok := s.forAll[kind]
	return d, ok
}

// Remember records d as the blanket answer for kind when it is marked
// for-all. Later questions of the same kind are then answered without
// being asked.
func (s *State) Remember(kind decision.Kind, d decision.Decision) {
	if d.ForAll {
		s.forAll[kind] = d
	}
}

// Seed installs a blanket answer up front, before any question has been
// asked. Passive policies and plan files use it to pre-answer kinds.
func (s *State) Seed(kind decision.Kind, tag decision.Tag) {
	s.forAll[kind] = decision.Decision{Tag: tag, ForAll: true}
}
