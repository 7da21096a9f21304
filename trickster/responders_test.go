package trickster

import (
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedResponse(t *testing.T) {
	t.Parallel()

	cmd, ok := scriptedResponse("f")
	require.True(t, ok)
	assert.Equal(t, CommandReact, cmd.Kind)
	assert.Equal(t, "🇫", cmd.Emoji)

	cmd, ok = scriptedResponse("Who Asked")
	require.True(t, ok)
	assert.Equal(t, CommandText, cmd.Kind)
	assert.Equal(t, "me. I asked.", cmd.Text)

	_, ok = scriptedResponse("f in the chat")
	assert.False(t, ok, "matching is exact, not substring")

	_, ok = scriptedResponse("")
	assert.False(t, ok)
}

func TestIMResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		content string
		want    string
		wantOK  bool
	}{
		{"im hungry", "Hi hungry i'm The Trickster", true},
		{"wow Im Tired now", "Hi Tired now i'm The Trickster", true},
		{"at the limit", "Hi it i'm The Trickster", true},
		{"im", "", false},
		{"im   ", "", false},
		{"hello there", "", false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(
			tc.content, func(t *testing.T) {
				t.Parallel()
				cmd, ok := imResponse(tc.content)
				assert.Equal(t, tc.wantOK, ok)
				if tc.wantOK {
					assert.Equal(t, CommandReply, cmd.Kind)
					assert.Equal(t, tc.want, cmd.Text)
				}
			},
		)
	}
}

func TestShuffleWordsPreservesWords(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(5))
	original := "the quick brown fox jumps over the lazy dog"
	shuffled := shuffleWords(rng, original)

	got := strings.Split(shuffled, " ")
	want := strings.Split(original, " ")
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)
}

func TestZalgifyKeepsBaseCharacters(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(11))
	input := "hello"
	out := zalgify(rng, input)

	// stripping the combining-character range recovers the original text
	var stripped []rune
	for _, r := range out {
		if r < 0x0300 {
			stripped = append(stripped, r)
		}
	}
	assert.Equal(t, input, string(stripped))
	assert.Greater(t, len(out), len(input))
}
