// SPDX-License-Identifier: Unlicense OR MIT

// Package shape adapts github.com/go-text/typesetting/shaping into the
// "shaping service" role spec.md §6 describes: convert a Unicode run, a
// font, and a script/direction hint into ordered glyph records with
// advances and cluster indices. It plays the role HarfBuzz plays in the
// reference system this spec was distilled from, via the same
// HarfbuzzShaper the teacher's own text shaper wraps.
//
// A Shaper owns exactly one shaping.HarfbuzzShaper, reused across
// calls, per spec.md §5's "shared resources" rule that the shaping
// buffer is owned by the LayoutEngine and never shared across engines.
package shape

import (
	"github.com/go-text/typesetting/di"
	gofont "github.com/go-text/typesetting/font"
	ot "github.com/go-text/typesetting/font/opentype"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/unicode/bidi"
)

// ligatureFeatureTags are the two OpenType features spec.md §4.5 step 1
// asks to be disabled: standard ligatures ("liga") and contextual
// ligatures ("clig"). Disabling both, not just "liga", matches fonts
// that fold multi-char ligation into "clig" instead.
var ligatureFeatureTags = struct {
	liga ot.Tag
	clig ot.Tag
}{
	liga: ot.MustNewTag("liga"),
	clig: ot.MustNewTag("clig"),
}

// Direction mirrors the two flow directions spec.md's ShapedGlyph.flags
// low bit distinguishes.
type Direction uint8

const (
	LeftToRight Direction = iota
	RightToLeft
)

func (d Direction) toDi() di.Direction {
	if d == RightToLeft {
		return di.DirectionRTL
	}
	return di.DirectionLTR
}

// Font is a shaper-side twin of an outline.Face, the createFontFromFace
// role of spec.md §6. Font values are cheap to copy; go-text/typesetting
// shapes directly against the *font.Face, caching nothing per-Font.
type Font struct {
	face *gofont.Face
}

// NewFont wraps a face (an outline.Face's Raw() result) into a shaper
// Font.
func NewFont(face *gofont.Face) Font {
	return Font{face: face}
}

// NotifyFaceChanged exists for symmetry with the reference system's
// notifyFaceChanged hook (spec.md §6). go-text/typesetting's shaper
// holds no per-Font scaled-metrics cache to invalidate, so this is a
// deliberate no-op; the comment documents that absence rather than
// leaving callers to wonder whether it was forgotten.
func (f Font) NotifyFaceChanged() {}

// Glyph is one shaped glyph, re-exposed in the core's own vocabulary
// rather than shaping's, so that callers never import the shaping
// package directly (spec.md §6 treats it as wholly opaque).
type Glyph struct {
	GID          uint32
	ClusterIndex int // rune offset within the run passed to Shape
	RuneCount    int
	GlyphCount   int
	XAdvance     fixed.Int26_6
	YAdvance     fixed.Int26_6
	XOffset      fixed.Int26_6
	YOffset      fixed.Int26_6
}

// Run is the result of shaping a single piece of text with uniform
// style, direction, and language.
type Run struct {
	Glyphs    []Glyph
	Advance   fixed.Int26_6
	Direction Direction
}

// Shaper shapes successive text runs through one HarfbuzzShaper.
type Shaper struct {
	hb shaping.HarfbuzzShaper
}

// NewShaper constructs a Shaper with its own font cache, sized the way
// gio's own text shaper sizes its HarfbuzzShaper cache.
func NewShaper() *Shaper {
	s := &Shaper{}
	s.hb.SetFontCacheSize(32)
	return s
}

// Shape converts a rune run into ordered glyphs. dir/hasDir is a
// direction hint (callers derive it with GuessDirection); when hasDir is
// false, LeftToRight is used. The script is taken from the first rune
// whose script is not Common; the language is always English.
func (s *Shaper) Shape(font Font, text []rune, ppem fixed.Int26_6, dir Direction, hasDir bool, disableLigatures bool) Run {
	d := LeftToRight
	if hasDir {
		d = dir
	}
	script := language.Common
	for _, r := range text {
		if sc := language.LookupScript(r); sc != language.Common {
			script = sc
			break
		}
	}
	input := shaping.Input{
		Text:      text,
		RunStart:  0,
		RunEnd:    len(text),
		Direction: d.toDi(),
		Face:      font.face,
		Size:      ppem,
		Script:    script,
		Language:  language.NewLanguage("EN"),
	}
	if disableLigatures {
		// CAD precision wants one-char-one-glyph wherever the font
		// permits it, so ligation features are turned off by tag
		// rather than left at HarfBuzz's defaults.
		input.FontFeatures = []shaping.FontFeature{
			{Tag: ligatureFeatureTags.liga, Value: 0},
			{Tag: ligatureFeatureTags.clig, Value: 0},
		}
	}

	out := s.hb.Shape(input)
	glyphs := make([]Glyph, len(out.Glyphs))
	for i, g := range out.Glyphs {
		glyphs[i] = Glyph{
			GID:          uint32(g.GlyphID),
			ClusterIndex: g.ClusterIndex,
			RuneCount:    g.RuneCount,
			GlyphCount:   g.GlyphCount,
			XAdvance:     g.XAdvance,
			YAdvance:     g.YAdvance,
			XOffset:      g.XOffset,
			YOffset:      g.YOffset,
		}
	}
	direction := LeftToRight
	if out.Direction.Progression() == di.TowardTopLeft {
		direction = RightToLeft
	}
	return Run{Glyphs: glyphs, Advance: out.Advance, Direction: direction}
}

// GuessDirection applies a first-strong-character heuristic (via
// golang.org/x/text/unicode/bidi's character class lookup) to pick a
// paragraph base direction without performing full UBA reordering, the
// bounded use described in SPEC_FULL.md's domain stack table — the same
// library the teacher's own shaper uses for its bidi paragraph
// ordering. It is a hint only: the shaping service still has the final
// say once the Face resolves script-specific behavior.
func GuessDirection(text []rune) (dir Direction, ok bool) {
	for _, r := range text {
		props, _ := bidi.LookupRune(r)
		switch props.Class() {
		case bidi.L:
			return LeftToRight, true
		case bidi.R, bidi.AL:
			return RightToLeft, true
		}
	}
	return LeftToRight, false
}
