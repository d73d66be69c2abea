package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTag_String(t *testing.T) {
	cases := map[Tag]string{
		Overwrite: "overwrite",
		Skip:      "skip",
		Update:    "update",
		Reget:     "reget",
		Abort:     "abort",
		Delete:    "delete",
		Keep:      "keep",
	}
	for tag, want := range cases {
		assert.Equal(t, want, tag.String())
	}
	assert.Equal(t, "tag(99)", Tag(99).String())
}

func TestParseTag_RoundTrip(t *testing.T) {
	for _, tag := range []Tag{Overwrite, Skip, Update, Reget, Abort, Delete, Keep} {
		got, err := ParseTag(tag.String())
		require.NoError(t, err)
		assert.Equal(t, tag, got)
	}
}

func TestParseTag_Unknown(t *testing.T) {
	_, err := ParseTag("retry")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry")
}

func TestKind_Allows(t *testing.T) {
	tests := []struct {
		name  string
		kind  Kind
		legal []Tag
	}{
		{"overwrite", KindOverwrite, []Tag{Overwrite, Skip, Update, Reget, Abort}},
		{"ioerror", KindIOError, []Tag{Skip, Abort}},
		{"partial", KindPartial, []Tag{Delete, Keep}},
		{"nonemptydir", KindNonEmptyDir, []Tag{Delete, Skip, Abort}},
	}
	all := []Tag{Overwrite, Skip, Update, Reget, Abort, Delete, Keep}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inLegal := func(tag Tag) bool {
				for _, l := range tt.legal {
					if l == tag {
						return true
					}
				}
				return false
			}
			for _, tag := range all {
				assert.Equal(t, inLegal(tag), tt.kind.Allows(tag), "kind %s tag %s", tt.kind, tag)
			}
		})
	}
}

func TestKind_AllowsRejectsCrossKind(t *testing.T) {
	// The emblematic misuse: answering an I/O error with "overwrite".
	assert.False(t, KindIOError.Allows(Overwrite))
	// And a partial-transfer question with "abort".
	assert.False(t, KindPartial.Allows(Abort))
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "skip", Decision{Tag: Skip}.String())
	assert.Equal(t, "overwrite (all)", Decision{Tag: Overwrite, ForAll: true}.String())
}
