// SPDX-License-Identifier: Unlicense OR MIT

// Package outline adapts github.com/go-text/typesetting/font into the
// "outline font service" role spec.md §6 describes: load a face,
// enumerate glyphs by codepoint, decompose an outline into path
// segments, and report advances and font-wide metrics. It plays the
// role FreeType plays in the reference system this spec was distilled
// from.
package outline

import (
	"bytes"
	"fmt"

	gofont "github.com/go-text/typesetting/font"
	ot "github.com/go-text/typesetting/font/opentype"
	"golang.org/x/image/math/fixed"
)

// GID identifies a glyph within a Face.
type GID = gofont.GID

// SegmentOp identifies the kind of a path segment produced by Decompose.
type SegmentOp uint8

const (
	OpMoveTo SegmentOp = iota
	OpLineTo
	OpQuadTo
	OpCubeTo
)

// Segment is one command of a decomposed glyph outline, expressed in the
// font's native design units (before scaling by fontSize/unitsPerEM).
type Segment struct {
	Op   SegmentOp
	Args [3]fixed.Point26_6
}

// Bounds is an axis-aligned bounding box in design units.
type Bounds struct {
	Left, Top, Right, Bottom float32
}

// Metrics holds the font-wide metrics a FontManager scales for caret and
// line-height math (spec.md §3, Font/FontHandle.metrics).
type Metrics struct {
	UnitsPerEM         uint16
	Ascender           float32
	Descender          float32
	LineGap            float32
	UnderlinePosition  float32
	UnderlineThickness float32
}

// Face is an opened, shapeable font file. Face holds a reference to the
// font bytes it was parsed from; the caller (textfont.Manager) is
// responsible for keeping those bytes alive for the Face's lifetime, as
// spec.md §3 requires ("Font bytes are owned by the handle").
type Face struct {
	face  *gofont.Face
	bytes []byte
}

// Parse constructs a Face from font file bytes (TrueType/OpenType).
// On failure (malformed font data), returns an error — callers in the
// core must treat this as the "external service failure" case of
// spec.md §7 and return a zero font id rather than propagating a panic.
func Parse(src []byte) (Face, error) {
	face, err := gofont.ParseTTF(bytes.NewReader(src))
	if err != nil {
		return Face{}, fmt.Errorf("outline: failed parsing font: %w", err)
	}
	return Face{face: face, bytes: src}, nil
}

// Bytes returns the font bytes the Face was parsed from.
func (f Face) Bytes() []byte { return f.bytes }

// Raw exposes the underlying go-text/typesetting font.Face, the type
// the shape package's shaping.Input.Face field expects directly — the
// two packages share the same *font.Face type, so no further adaptation
// is needed at that boundary.
func (f Face) Raw() *gofont.Face { return f.face }

// GlyphForRune resolves a Unicode codepoint to a glyph id, the
// getCharIndex role of spec.md §6.
func (f Face) GlyphForRune(r rune) (GID, bool) {
	return f.face.NominalGlyph(r)
}

// Advance returns the glyph's horizontal advance in design units.
func (f Face) Advance(g GID) float32 {
	return f.face.HorizontalAdvance(g)
}

// GlyphBounds returns the glyph's visual bounding box in design units,
// measured over the decomposed outline (control points included, so
// curved edges may report slightly generous boxes — harmless for the
// margin-padded MSDF projection that consumes them).
func (f Face) GlyphBounds(g GID) (Bounds, bool) {
	segs := f.Decompose(g)
	if len(segs) == 0 {
		return Bounds{}, false
	}
	return SegmentBounds(segs), true
}

// SegmentBounds computes the axis-aligned bounding box of a decomposed
// outline in design units.
func SegmentBounds(segs []Segment) Bounds {
	var b Bounds
	first := true
	consider := func(p fixed.Point26_6) {
		x, y := float32(p.X)/64, float32(p.Y)/64
		if first {
			b = Bounds{Left: x, Right: x, Top: y, Bottom: y}
			first = false
			return
		}
		if x < b.Left {
			b.Left = x
		}
		if x > b.Right {
			b.Right = x
		}
		if y > b.Top {
			b.Top = y
		}
		if y < b.Bottom {
			b.Bottom = y
		}
	}
	for _, s := range segs {
		switch s.Op {
		case OpMoveTo, OpLineTo:
			consider(s.Args[0])
		case OpQuadTo:
			consider(s.Args[0])
			consider(s.Args[1])
		case OpCubeTo:
			consider(s.Args[0])
			consider(s.Args[1])
			consider(s.Args[2])
		}
	}
	return b
}

// Metrics reports the font's design-unit metrics, preferring OS/2 typo
// metrics when the underlying face reports them (non-zero), else the
// face's native horizontal extents, matching spec.md §4.2's "prefer the
// OS/2 typo metrics when non-zero" rule. go-text/typesetting folds both
// sources behind FontHExtents, so there is nothing left for this
// adapter to arbitrate beyond the unitsPerEM-derived underline defaults
// FreeType itself does not expose uniformly across formats.
func (f Face) Metrics() Metrics {
	upem := f.face.Upem()
	if upem == 0 {
		upem = 1000
	}
	m := Metrics{UnitsPerEM: upem}
	if ext, ok := f.face.FontHExtents(); ok {
		m.Ascender = ext.Ascender
		m.Descender = ext.Descender
		m.LineGap = ext.LineGap
	} else {
		m.Ascender = float32(upem) * 0.8
		m.Descender = -float32(upem) * 0.2
		m.LineGap = float32(upem) * 0.1
	}
	m.UnderlinePosition = -float32(upem) * 0.1
	m.UnderlineThickness = float32(upem) * 0.05
	return m
}

// Decompose converts a glyph's vector outline into a sequence of path
// segments in design units, the decomposeOutline role of spec.md §6.
// Glyphs with no outline (space, control characters, bitmap-only glyphs
// the core does not support) return an empty (possibly nil) slice — callers treat
// that as the "store a metrics-only entry" case of spec.md §4.4.
func (f Face) Decompose(g GID) []Segment {
	data := f.face.GlyphData(g)
	outline, ok := data.(gofont.GlyphOutline)
	if !ok {
		return nil
	}
	segs := make([]Segment, 0, len(outline.Segments))
	for _, s := range outline.Segments {
		seg := Segment{Op: segmentOp(s.Op)}
		for i, p := range s.Args {
			seg.Args[i] = fixed.Point26_6{
				X: fixed.Int26_6(p.X * 64),
				Y: fixed.Int26_6(p.Y * 64),
			}
		}
		segs = append(segs, seg)
	}
	return segs
}

func segmentOp(op ot.SegmentOp) SegmentOp {
	switch op {
	case ot.SegmentOpMoveTo:
		return OpMoveTo
	case ot.SegmentOpLineTo:
		return OpLineTo
	case ot.SegmentOpQuadTo:
		return OpQuadTo
	case ot.SegmentOpCubeTo:
		return OpCubeTo
	default:
		return OpLineTo
	}
}
