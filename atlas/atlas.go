// SPDX-License-Identifier: Unlicense OR MIT

// Package atlas implements the GlyphAtlas role of spec.md §4.4: it owns
// the RGBA pixel buffer and a cache keyed by (fontId, glyphId,
// styleSubset), generates MSDFs on demand, packs them via pack.Packer,
// and returns UVs plus normalized glyph metrics. It plays the role
// gio's gpu compute-atlas lifecycle plays for texture management,
// adapted to whole-atlas reset instead of LRU per-entry eviction since
// the packer cannot free individual rectangles (spec.md §4.1/§4.4).
package atlas

import (
	"math"

	"github.com/vectorcad/textcore/msdf"
	"github.com/vectorcad/textcore/outline"
	"github.com/vectorcad/textcore/pack"
	"github.com/vectorcad/textcore/store"
	"github.com/vectorcad/textcore/textfont"
	"golang.org/x/image/math/fixed"
)

// Config parameterizes the atlas canvas. Padding must be at least
// msdfPixelRange to prevent distance-field bleeding between neighbors
// (spec.md §4.4's invariant).
type Config struct {
	Width, Height  int
	Padding        int
	MSDFPixelRange int
	MSDFSize       int
}

// Key identifies a cached glyph rasterization.
type Key struct {
	FontID     textfont.FontID
	GlyphID    outline.GID
	StyleFlags store.Flags // masked to StyleSubset() at insertion time
}

// Entry is a cached glyph: atlas placement plus EM-normalized metrics.
// It records no font size; the metrics are independent of it.
type Entry struct {
	UV0, UV1                       [2]float32
	AtlasX, AtlasY, AtlasW, AtlasH int
	Width, Height                  float32
	BearingX, BearingY             float32
	Advance                        float32
}

// Atlas owns the RGBA pixel buffer, the glyph cache, and the packer.
type Atlas struct {
	cfg       Config
	packer    *pack.Packer
	pix       []byte // RGBA, top-down, Width*Height*4
	cache     map[Key]Entry
	dirty     bool
	version   uint64
	whiteCell pack.Rect

	fonts *textfont.Manager
}

// NewAtlas constructs an Atlas over cfg, backed by fonts for variant
// resolution and glyph outline access. Panics if cfg violates the
// padding≥msdfPixelRange invariant, the way a misconfigured canvas
// should fail loudly at construction rather than silently corrupt
// every glyph it ever rasterizes.
func NewAtlas(cfg Config, fonts *textfont.Manager) *Atlas {
	if cfg.Padding < cfg.MSDFPixelRange {
		panic("atlas: padding must be >= msdfPixelRange")
	}
	a := &Atlas{cfg: cfg, fonts: fonts}
	a.initialize()
	return a
}

func (a *Atlas) initialize() {
	a.packer = pack.NewPacker(a.cfg.Width, a.cfg.Height, a.cfg.Padding)
	a.pix = make([]byte, a.cfg.Width*a.cfg.Height*4)
	a.cache = make(map[Key]Entry)
	a.version = 1
	a.dirty = true

	// Reserve a 2x2 pure-white cell for solid rendering (caret,
	// underline, strikethrough), per spec.md §4.4.
	if rect, ok := a.packer.Pack(2, 2); ok {
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			for x := rect.Min.X; x < rect.Max.X; x++ {
				idx := (y*a.cfg.Width + x) * 4
				a.pix[idx] = 255
				a.pix[idx+1] = 255
				a.pix[idx+2] = 255
				a.pix[idx+3] = 255
			}
		}
		a.whiteCell = rect
	}
}

// WhiteUV returns the UV rect of the reserved 2x2 solid-white cell,
// for renderers drawing carets, underlines, and strikethroughs without
// a dedicated glyph.
func (a *Atlas) WhiteUV() (uv0, uv1 [2]float32) {
	return [2]float32{float32(a.whiteCell.Min.X) / float32(a.cfg.Width), float32(a.whiteCell.Min.Y) / float32(a.cfg.Height)},
		[2]float32{float32(a.whiteCell.Max.X) / float32(a.cfg.Width), float32(a.whiteCell.Max.Y) / float32(a.cfg.Height)}
}

// GetGlyph resolves (fontId, glyphId, style) to a cached Entry,
// generating it on first use, per spec.md §4.4's getGlyph algorithm.
func (a *Atlas) GetGlyph(fontID textfont.FontID, glyphID outline.GID, style store.Flags) (Entry, bool) {
	normalized := style & (store.Bold | store.Italic)
	wantBold := normalized&store.Bold != 0
	wantItalic := normalized&store.Italic != 0

	resolvedFontID := a.fonts.GetVariant(fontID, wantBold, wantItalic)
	effective := normalized
	if gotBold, gotItalic, ok := a.fonts.Variant(resolvedFontID); ok {
		if wantBold && gotBold {
			effective &^= store.Bold
		}
		if wantItalic && gotItalic {
			effective &^= store.Italic
		}
	}

	key := Key{FontID: resolvedFontID, GlyphID: glyphID, StyleFlags: effective}
	if e, ok := a.cache[key]; ok {
		return e, true
	}

	face, ok := a.fonts.Face(resolvedFontID)
	if !ok {
		return Entry{}, false
	}
	metrics := face.Metrics()
	upem := metrics.UnitsPerEM
	advance := face.Advance(glyphID)
	segs := face.Decompose(glyphID)

	needsSyntheticBold := effective&store.Bold != 0
	needsSyntheticItalic := effective&store.Italic != 0
	if needsSyntheticItalic {
		segs, advance = shearOutline(segs, 0.2, advance)
	}
	if needsSyntheticBold {
		segs, advance = emboldenOutline(segs, float32(upem)/32, advance)
	}

	if len(segs) == 0 {
		e := Entry{Advance: advance / float32(upem)}
		a.cache[key] = e
		return e, true
	}

	// Bounds are measured over the (possibly sheared/emboldened) segments
	// actually rasterized, so synthetic transforms never clip.
	bounds := outline.SegmentBounds(segs)

	scale := float32(a.cfg.MSDFSize) / float32(upem)
	margin := float32(a.cfg.MSDFPixelRange)
	bmpW := clampDim(int(math.Ceil(float64((bounds.Right-bounds.Left)*scale+2*margin))), a.cfg.MSDFSize)
	bmpH := clampDim(int(math.Ceil(float64((bounds.Top-bounds.Bottom)*scale+2*margin))), a.cfg.MSDFSize)

	rect, ok := a.packer.Pack(bmpW, bmpH)
	if !ok {
		a.clearAtlas()
		rect, ok = a.packer.Pack(bmpW, bmpH)
		if !ok {
			return Entry{}, false
		}
	}

	bmp := msdf.Generate(segs, bounds, upem, bmpW, bmpH, float64(margin))
	a.blit(rect, bmp)

	e := Entry{
		UV0:      [2]float32{float32(rect.Min.X) / float32(a.cfg.Width), float32(rect.Min.Y) / float32(a.cfg.Height)},
		UV1:      [2]float32{float32(rect.Max.X) / float32(a.cfg.Width), float32(rect.Max.Y) / float32(a.cfg.Height)},
		AtlasX:   rect.Min.X,
		AtlasY:   rect.Min.Y,
		AtlasW:   bmpW,
		AtlasH:   bmpH,
		Width:    float32(bmpW) / float32(a.cfg.MSDFSize),
		Height:   float32(bmpH) / float32(a.cfg.MSDFSize),
		BearingX: bounds.Left/float32(upem) - margin/float32(a.cfg.MSDFSize),
		BearingY: bounds.Top/float32(upem) + margin/float32(a.cfg.MSDFSize),
		Advance:  advance / float32(upem),
	}
	a.cache[key] = e
	a.version++
	a.dirty = true
	return e, true
}

func clampDim(v, msdfSize int) int {
	if v < 1 {
		return 1
	}
	if max := 2 * msdfSize; v > max {
		return max
	}
	return v
}

func (a *Atlas) blit(rect pack.Rect, bmp msdf.Bitmap) {
	w := rect.Dx()
	h := rect.Dy()
	for row := 0; row < h; row++ {
		// Flip Y: the generator is bottom-up, the atlas buffer top-down.
		srcRow := h - 1 - row
		for col := 0; col < w; col++ {
			srcIdx := (srcRow*bmp.Width + col) * 3
			dstX := rect.Min.X + col
			dstY := rect.Min.Y + row
			dstIdx := (dstY*a.cfg.Width + dstX) * 4
			a.pix[dstIdx] = bmp.Pix[srcIdx]
			a.pix[dstIdx+1] = bmp.Pix[srcIdx+1]
			a.pix[dstIdx+2] = bmp.Pix[srcIdx+2]
			a.pix[dstIdx+3] = 255
		}
	}
}

// clearAtlas resets the packer, zero-fills the buffer, empties the
// cache, bumps the version, and sets dirty — the one-shot overflow
// recovery of spec.md §4.4.
func (a *Atlas) clearAtlas() {
	v := a.version
	a.initialize()
	// Version must keep strictly increasing across resets; initialize
	// rewinds it to the fresh-construction value.
	a.version = v + 1
}

// PreloadAscii ensures every printable ASCII codepoint is cached for
// fontID, the preloadAscii role of spec.md §4.4.
func (a *Atlas) PreloadAscii(fontID textfont.FontID) {
	face, ok := a.fonts.Face(fontID)
	if !ok {
		return
	}
	for r := rune(0x20); r < 0x7F; r++ {
		if gid, ok := face.GlyphForRune(r); ok {
			a.GetGlyph(fontID, gid, 0)
		}
	}
}

// PreloadString ensures every codepoint in s is cached for fontID, a
// naive UTF-8 walk that tolerates malformed bytes silently, per
// spec.md §4.4.
func (a *Atlas) PreloadString(fontID textfont.FontID, s string) {
	face, ok := a.fonts.Face(fontID)
	if !ok {
		return
	}
	for _, r := range s {
		if gid, ok := face.GlyphForRune(r); ok {
			a.GetGlyph(fontID, gid, 0)
		}
	}
}

// GetTextureData returns a stable view of the RGBA top-down pixel
// buffer. Callers must treat it as opaque and read-only.
func (a *Atlas) GetTextureData() []byte { return a.pix }

// Width and Height report the atlas canvas dimensions.
func (a *Atlas) Width() int  { return a.cfg.Width }
func (a *Atlas) Height() int { return a.cfg.Height }

// IsDirty reports whether the buffer has changed since the last
// ClearDirty.
func (a *Atlas) IsDirty() bool { return a.dirty }

// ClearDirty clears the dirty flag after the renderer re-uploads.
func (a *Atlas) ClearDirty() { a.dirty = false }

// Version increments on every rasterized glyph inserted into the cache
// and on every reset. Metrics-only entries (glyphs with no outline, such
// as a space) leave the texture untouched and do not bump it.
func (a *Atlas) Version() uint64 { return a.version }

// shearOutline applies the synthetic-italic horizontal shear of
// spec.md §4.4: x' = x + shearFactor*y. The advance grows by the same
// factor applied to the glyph's own advance, a cheap but serviceable
// correction for the slant introduced at the glyph's trailing edge.
func shearOutline(segs []outline.Segment, shearFactor float32, advance float32) ([]outline.Segment, float32) {
	if len(segs) == 0 {
		return segs, advance
	}
	out := make([]outline.Segment, len(segs))
	for i, s := range segs {
		ns := s
		for _, j := range argIndices(s.Op) {
			p := s.Args[j]
			y := float32(p.Y) / 64
			x := float32(p.X) / 64
			nx := x + shearFactor*y
			ns.Args[j].X = fixedFromFloat(nx)
		}
		out[i] = ns
	}
	return out, advance + shearFactor*advance
}

// argIndices reports which Args slots op actually populates, so
// outline transforms never touch (or average in) the unused zero-value
// slots a MoveTo/LineTo segment leaves behind.
func argIndices(op outline.SegmentOp) []int {
	switch op {
	case outline.OpMoveTo, outline.OpLineTo:
		return []int{0}
	case outline.OpQuadTo:
		return []int{0, 1}
	case outline.OpCubeTo:
		return []int{0, 1, 2}
	default:
		return nil
	}
}

// emboldenOutline approximates the synthetic-bold outline emboldening
// of spec.md §4.4 by expanding every contour point away from the
// outline's own centroid by amount design units — a simple isotropic
// proxy for true stroke-normal emboldening, serviceable at the small
// pixel sizes MSDF glyphs are cached at. The advance grows by 2*amount,
// matching the width added on both sides of the glyph.
func emboldenOutline(segs []outline.Segment, amount float32, advance float32) ([]outline.Segment, float32) {
	if len(segs) == 0 {
		return segs, advance
	}
	var cx, cy float32
	n := 0
	for _, s := range segs {
		for _, j := range argIndices(s.Op) {
			p := s.Args[j]
			cx += float32(p.X) / 64
			cy += float32(p.Y) / 64
			n++
		}
	}
	if n == 0 {
		return segs, advance
	}
	cx /= float32(n)
	cy /= float32(n)

	out := make([]outline.Segment, len(segs))
	for i, s := range segs {
		ns := s
		for _, j := range argIndices(s.Op) {
			p := s.Args[j]
			x := float32(p.X) / 64
			y := float32(p.Y) / 64
			dx, dy := x-cx, y-cy
			length := float32(math.Hypot(float64(dx), float64(dy)))
			if length == 0 {
				continue
			}
			nx := x + dx/length*amount
			ny := y + dy/length*amount
			ns.Args[j].X = fixedFromFloat(nx)
			ns.Args[j].Y = fixedFromFloat(ny)
		}
		out[i] = ns
	}
	return out, advance + 2*amount
}

func fixedFromFloat(v float32) fixed.Int26_6 {
	return fixed.Int26_6(v * 64)
}
