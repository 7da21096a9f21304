package trickster

import (
	"math/rand"
	"strings"
)

var zalgoUp = []rune{
	'̎', '̄', '̅', '̿', '̑', '̆', '̐',
	'͒', '͗', '͑', '̇', '̈', '̊', '͂',
	'̓', '̈́', '͊', '͋', '͌', '̃', '̂',
	'̌', '͐', '̀', '́', '̋', '̏', '̒',
	'̓', '̔', '̽', '̉', 'ͣ', 'ͤ', 'ͥ',
	'ͦ', 'ͧ', 'ͨ', 'ͩ', 'ͪ', 'ͫ', 'ͬ',
	'ͭ', 'ͮ', 'ͯ', '̾', '͛', '͆', '̚',
	'̍',
}

var zalgoDown = []rune{
	'̗', '̘', '̙', '̜', '̝', '̞', '̟',
	'̠', '̤', '̥', '̦', '̩', '̪', '̫',
	'̬', '̭', '̮', '̯', '̰', '̱', '̲',
	'̳', '̹', '̺', '̻', '̼', 'ͅ', '͇',
	'͈', '͉', '͍', '͎', '͓', '͔', '͕',
	'͖', '͙', '͚', '̣', '̖',
}

var zalgoMid = []rune{
	'̛', '̀', '́', '͘', '̡', '̢', '̧',
	'̨', '̴', '̵', '̶', '͏', '͜', '͝',
	'͞', '͟', '͠', '͢', '̸', '̷', '͡',
	'҉', '̕',
}

// zalgify corrupts the input by stacking random combining diacritics
// above, through and below every rune.
func zalgify(rng *rand.Rand, s string) string {
	var b strings.Builder
	b.Grow(len(s) * 2)
	for _, c := range s {
		b.WriteRune(c)
		for i := 0; i < rng.Intn(8)/2+1; i++ {
			b.WriteRune(zalgoUp[rng.Intn(len(zalgoUp))])
		}
		for i := 0; i < rng.Intn(3)/2; i++ {
			b.WriteRune(zalgoMid[rng.Intn(len(zalgoMid))])
		}
		for i := 0; i < rng.Intn(4)/2+1; i++ {
			b.WriteRune(zalgoDown[rng.Intn(len(zalgoDown))])
		}
	}
	return b.String()
}
