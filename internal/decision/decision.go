// Package decision defines the closed vocabulary a policy may answer with
// at each point a running operation suspends for input. The string forms are
// a compatibility surface: batch plans and the journal store them verbatim.
package decision

import "fmt"

// Tag is one answer from the decision vocabulary.
type Tag int

const (
	// Overwrite replaces the destination unconditionally.
	Overwrite Tag = iota + 1
	// Skip leaves the current object untouched and moves on.
	Skip
	// Update overwrites only when the source is newer than the destination.
	Update
	// Reget resumes an interrupted transfer, appending from the
	// destination's current size.
	Reget
	// Abort cancels the whole operation at its next checkpoint.
	Abort
	// Delete removes the object in question (a partial file, or a
	// non-empty directory together with its contents).
	Delete
	// Keep preserves a partially transferred destination file.
	Keep
)

var tagNames = [...]string{
	Overwrite: "overwrite",
	Skip:      "skip",
	Update:    "update",
	Reget:     "reget",
	Abort:     "abort",
	Delete:    "delete",
	Keep:      "keep",
}

func (t Tag) String() string {
	if t > 0 && int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", int(t))
}

// ParseTag maps a wire string back to its Tag.
func ParseTag(s string) (Tag, error) {
	for t, name := range tagNames {
		if name != "" && name == s {
			return Tag(t), nil
		}
	}
	return 0, fmt.Errorf("unknown decision tag %q", s)
}

// Kind identifies which question is being asked. Each kind admits a fixed
// subset of tags; anything outside it is a contract violation, not a choice.
type Kind int

const (
	// KindOverwrite: the destination already exists.
	KindOverwrite Kind = iota + 1
	// KindIOError: an I/O error occurred mid-operation.
	KindIOError
	// KindPartial: a destination file was only partially written.
	KindPartial
	// KindNonEmptyDir: a directory marked for deletion is not empty.
	KindNonEmptyDir
)

var kindNames = [...]string{
	KindOverwrite:   "overwrite-conflict",
	KindIOError:     "io-error",
	KindPartial:     "partial-transfer",
	KindNonEmptyDir: "non-empty-dir",
}

func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a wire string back to its Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name != "" && name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown decision kind %q", s)
}

var legalTags = map[Kind][]Tag{
	KindOverwrite:   {Overwrite, Skip, Update, Reget, Abort},
	KindIOError:     {Skip, Abort},
	KindPartial:     {Delete, Keep},
	KindNonEmptyDir: {Delete, Skip, Abort},
}

// Allows reports whether tag is a legal answer for this decision kind.
func (k Kind) Allows(tag Tag) bool {
	for _, t := range legalTags[k] {
		if t == tag {
			return true
		}
	}
	return false
}

// Tags returns the legal answers for this kind, in presentation order.
func (k Kind) Tags() []Tag {
	return legalTags[k]
}

// Decision is a policy's answer to one suspension. ForAll marks it as a
// blanket answer: the policy memoizes it and applies it to every later
// question of the same kind for the rest of the operation.
type Decision struct {
	Tag    Tag
	ForAll bool
}

func (d Decision) String() string {
	if d.ForAll {
		return d.Tag.String() + " (all)"
	}
	return d.Tag.String()
}
