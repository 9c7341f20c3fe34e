package textnorm

import (
	"errors"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
	"golang.org/x/text/unicode/norm"

	"github.com/kirillkom/clinical-intake/internal/core/domain"
)

const (
	zeroWidthJoiner     = '\u200d'
	emojiPresentation   = '\ufe0f'
	combiningKeycap     = '\u20e3'
	skinToneFirst       = 0x1f3fb
	skinToneLast        = 0x1f3ff
	regionalIndicatorLo = 0x1f1e6
	regionalIndicatorHi = 0x1f1ff
)

// pictographic lists code points that can render as emoji, including text-default
// ones such as ‼ ℹ © and ↔.
var pictographic = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x00a9, Hi: 0x00a9, Stride: 1},
		{Lo: 0x00ae, Hi: 0x00ae, Stride: 1},
		{Lo: 0x203c, Hi: 0x203c, Stride: 1},
		{Lo: 0x2049, Hi: 0x2049, Stride: 1},
		{Lo: 0x2122, Hi: 0x2122, Stride: 1},
		{Lo: 0x2139, Hi: 0x2139, Stride: 1},
		{Lo: 0x2194, Hi: 0x2199, Stride: 1},
		{Lo: 0x21a9, Hi: 0x21aa, Stride: 1},
		{Lo: 0x231a, Hi: 0x231b, Stride: 1},
		{Lo: 0x2328, Hi: 0x2328, Stride: 1},
		{Lo: 0x23cf, Hi: 0x23cf, Stride: 1},
		{Lo: 0x23e9, Hi: 0x23f3, Stride: 1},
		{Lo: 0x23f8, Hi: 0x23fa, Stride: 1},
		{Lo: 0x24c2, Hi: 0x24c2, Stride: 1},
		{Lo: 0x25aa, Hi: 0x25ab, Stride: 1},
		{Lo: 0x25b6, Hi: 0x25b6, Stride: 1},
		{Lo: 0x25c0, Hi: 0x25c0, Stride: 1},
		{Lo: 0x25fb, Hi: 0x25fe, Stride: 1},
		{Lo: 0x2600, Hi: 0x27bf, Stride: 1},
		{Lo: 0x2934, Hi: 0x2935, Stride: 1},
		{Lo: 0x2b05, Hi: 0x2b07, Stride: 1},
		{Lo: 0x2b1b, Hi: 0x2b1c, Stride: 1},
		{Lo: 0x2b50, Hi: 0x2b50, Stride: 1},
		{Lo: 0x2b55, Hi: 0x2b55, Stride: 1},
		{Lo: 0x3030, Hi: 0x3030, Stride: 1},
		{Lo: 0x303d, Hi: 0x303d, Stride: 1},
		{Lo: 0x3297, Hi: 0x3297, Stride: 1},
		{Lo: 0x3299, Hi: 0x3299, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1f000, Hi: 0x1faff, Stride: 1},
	},
}

// Normalizer strips emoji, control and format characters, collapses whitespace and
// returns NFC text. Letters, digits, punctuation, math and currency symbols are kept.
// Emoji are removed as whole grapheme clusters, so keycaps, flags, ZWJ sequences and
// text-default symbols shown as emoji leave nothing behind.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

func (n *Normalizer) Normalize(text string) (string, error) {
	var b strings.Builder
	b.Grow(len(text))

	graphemes := uniseg.NewGraphemes(text)
	for graphemes.Next() {
		cluster := graphemes.Runes()
		if isEmojiCluster(cluster) {
			continue
		}
		for _, r := range cluster {
			switch {
			case unicode.IsSpace(r):
				b.WriteRune(' ')
			case keepRune(r):
				b.WriteRune(r)
			}
		}
	}

	out := strings.Join(strings.Fields(b.String()), " ")
	out = norm.NFC.String(out)
	if out == "" {
		return "", domain.WrapError(domain.ErrEmptyInput, "normalize text", errors.New("no printable text left after cleaning"))
	}
	return out, nil
}

func isEmojiCluster(cluster []rune) bool {
	for _, r := range cluster {
		switch {
		case r == zeroWidthJoiner, r == emojiPresentation, r == combiningKeycap:
			return true
		case r >= skinToneFirst && r <= skinToneLast:
			return true
		case r >= regionalIndicatorLo && r <= regionalIndicatorHi:
			return true
		case unicode.Is(pictographic, r):
			return true
		case r > 0xff && unicode.In(r, unicode.So, unicode.Sk):
			return true
		}
	}
	return false
}

func keepRune(r rune) bool {
	if r == unicode.ReplacementChar {
		return false
	}
	if r < 0x7f {
		return r >= 0x20
	}
	if isVariationSelector(r) {
		return false
	}
	switch {
	case unicode.IsLetter(r), unicode.IsNumber(r), unicode.IsPunct(r):
		return true
	case unicode.In(r, unicode.Mn, unicode.Mc):
		return true
	case unicode.In(r, unicode.Sm, unicode.Sc):
		return true
	case unicode.In(r, unicode.So, unicode.Sk):
		// Latin-1 symbols such as the degree sign; everything above is pictographic.
		return r <= 0xff
	default:
		return false
	}
}

func isVariationSelector(r rune) bool {
	return (r >= 0xfe00 && r <= 0xfe0f) || (r >= 0xe0100 && r <= 0xe01ef)
}
