package trickster

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/fogleman/gg"
)

const (
	colorQuizWindowSeconds = 60
	colorQuizImageWidth    = 640
	colorQuizImageHeight   = 360

	// sum of absolute per-channel differences accepted for hex guesses
	colorHexTolerance = 20

	// OKLCH acceptance windows
	colorLightnessTolerance = 5.0
	colorChromaTolerance    = 0.05
	colorHueTolerance       = 10.0
)

// ColorQuiz is a guess-the-color challenge around a uniformly sampled
// RGB triple.
type ColorQuiz struct {
	R, G, B uint8
}

func GenerateColorQuiz(rng *rand.Rand) ColorQuiz {
	return ColorQuiz{
		R: uint8(rng.Intn(256)),
		G: uint8(rng.Intn(256)),
		B: uint8(rng.Intn(256)),
	}
}

// Hex renders the quiz color as #rrggbb.
func (q ColorQuiz) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", q.R, q.G, q.B)
}

// Image renders a 16:9 flat fill of the quiz color as PNG bytes.
func (q ColorQuiz) Image() ([]byte, error) {
	dc := gg.NewContext(colorQuizImageWidth, colorQuizImageHeight)
	dc.SetRGB255(int(q.R), int(q.G), int(q.B))
	dc.Clear()
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("error encoding quiz image: %w", err)
	}
	return buf.Bytes(), nil
}

// ValidateAnswer accepts a hex guess (#RRGGBB) or an OKLCH guess in
// several notations.
func (q ColorQuiz) ValidateAnswer(userAnswer string) bool {
	answer := strings.TrimSpace(userAnswer)
	if strings.HasPrefix(answer, "#") {
		return q.validateHex(answer)
	}
	return q.validateOKLCH(answer)
}

func (q ColorQuiz) validateHex(hex string) bool {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return false
	}
	r, errR := strconv.ParseUint(hex[0:2], 16, 8)
	g, errG := strconv.ParseUint(hex[2:4], 16, 8)
	b, errB := strconv.ParseUint(hex[4:6], 16, 8)
	if errR != nil || errG != nil || errB != nil {
		return false
	}
	diff := abs(int(q.R)-int(r)) + abs(int(q.G)-int(g)) + abs(int(q.B)-int(b))
	return diff <= colorHexTolerance
}

func (q ColorQuiz) validateOKLCH(input string) bool {
	lUser, cUser, hUser, ok := parseOKLCH(input)
	if !ok {
		return false
	}
	lActual, cActual, hActual := rgbToOKLCH(q.R, q.G, q.B)

	hDiff := math.Abs(hActual - hUser)
	hDiff = math.Min(hDiff, 360.0-hDiff)

	return math.Abs(lActual-lUser) <= colorLightnessTolerance &&
		math.Abs(cActual-cUser) <= colorChromaTolerance &&
		hDiff <= colorHueTolerance
}

// parseOKLCH accepts "oklch(45.0% 0.306 65.4)", bare triples, comma
// separators and an optional % suffix on the lightness component.
func parseOKLCH(input string) (l float64, c float64, h float64, ok bool) {
	inner := strings.TrimSpace(input)
	if rest, found := strings.CutPrefix(inner, "oklch("); found {
		inner, found = strings.CutSuffix(rest, ")")
		if !found {
			inner = input
		}
	}
	parts := strings.FieldsFunc(
		inner, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ','
		},
	)
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	var err error
	if l, err = strconv.ParseFloat(strings.TrimSuffix(parts[0], "%"), 64); err != nil {
		return 0, 0, 0, false
	}
	if c, err = strconv.ParseFloat(parts[1], 64); err != nil {
		return 0, 0, 0, false
	}
	if h, err = strconv.ParseFloat(parts[2], 64); err != nil {
		return 0, 0, 0, false
	}
	return l, c, h, true
}

// rgbToOKLCH converts an sRGB triple through linear RGB and OKLab to
// OKLCH, with lightness on a 0-100 scale and hue in [0, 360) degrees.
func rgbToOKLCH(r uint8, g uint8, b uint8) (float64, float64, float64) {
	rLin := srgbToLinear(float64(r) / 255.0)
	gLin := srgbToLinear(float64(g) / 255.0)
	bLin := srgbToLinear(float64(b) / 255.0)

	l := 0.4122214708*rLin + 0.5363325363*gLin + 0.0514459929*bLin
	m := 0.2119034982*rLin + 0.6806995451*gLin + 0.1073969566*bLin
	s := 0.0883024619*rLin + 0.2817188376*gLin + 0.6299787005*bLin

	lc := math.Cbrt(l)
	mc := math.Cbrt(m)
	sc := math.Cbrt(s)

	lOklab := 0.2104542553*lc + 0.7936177850*mc - 0.0040720468*sc
	aOklab := 1.9779984951*lc - 2.4285922050*mc + 0.4505937099*sc
	bOklab := 0.0259040371*lc + 0.7827717662*mc - 0.8086757660*sc

	lightness := lOklab * 100.0
	chroma := math.Sqrt(aOklab*aOklab + bOklab*bOklab)
	hue := math.Atan2(bOklab, aOklab) * 180.0 / math.Pi
	if hue < 0 {
		hue += 360.0
	}
	return lightness, chroma, hue
}

func srgbToLinear(c float64) float64 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
