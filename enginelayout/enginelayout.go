// SPDX-License-Identifier: Unlicense OR MIT

// Package enginelayout implements the TextLayoutEngine role of
// spec.md §4.5: it shapes every style run of an entity, breaks the
// shaped glyphs into lines, aligns and measures them, and writes the
// result back to the store. It also answers hit-testing, caret, and
// caret-navigation queries over the cached Layout. It plays the role
// gio's text.Shaper.layoutParagraph/NextGlyph plays for run/line/glyph
// iteration, and widget.Editor.closestPosition/moveWord/scrollToCaret
// plays for hit-testing and navigation.
package enginelayout

import (
	"unicode/utf8"

	"github.com/vectorcad/textcore/shape"
	"github.com/vectorcad/textcore/store"
	"github.com/vectorcad/textcore/textfont"
	"golang.org/x/image/math/fixed"
)

// ShapedGlyph is one shaped glyph, re-biased so ClusterIndex is a byte
// offset into the entity's whole content rather than the offset the
// shaper reports within its own run-local rune slice (spec.md §4.5
// step 1).
type ShapedGlyph struct {
	GID          uint32
	ClusterIndex int
	FontID       textfont.FontID
	Advance      float32
	XOffset      float32
	YOffset      float32
	RTL          bool
	Ascent       float32
	Descent      float32
	LineHeight   float32
	// RunStart marks the first glyph produced by each style run, so a
	// run boundary can be detected even when two adjacent runs resolve
	// to the same FontID (e.g. a size-only change keeps the same font
	// variant).
	RunStart bool
}

// Line is one laid-out line: a half-open glyph range, the matching
// byte range, the run-attributed metrics that won the "tallest run"
// contest, and the alignment offset applied in step 4.
type Line struct {
	StartGlyph, EndGlyph int
	StartByte, EndByte   int
	Ascent, Descent      float32
	LineHeight           float32
	Width                float32
	XOffset              float32
}

// Layout is the cached shaping/line-break result of one entity.
type Layout struct {
	Glyphs      []ShapedGlyph
	Lines       []Line
	TotalWidth  float32
	TotalHeight float32
	BaselineY   float32
}

// Engine owns the shaping buffer and the per-entity Layout cache, the
// TextLayoutEngine of spec.md §4.5. The shaping buffer is reused
// across calls and never shared with another Engine, per spec.md §5's
// shared-resources rule.
type Engine struct {
	store   *store.Store
	fonts   *textfont.Manager
	shaper  *shape.Shaper
	layouts map[store.EntityID]*Layout

	// maxLines/truncator implement the MaxLines/Truncator line-capping
	// feature gio's own text.Shaper exposes (Parameters.MaxLines,
	// Truncator); spec.md itself has no notion of line capping, so an
	// entity with no entry here behaves exactly per spec.md §4.5.
	maxLines  map[store.EntityID]int
	truncator map[store.EntityID]string
}

// NewEngine constructs an Engine over st and fonts.
func NewEngine(st *store.Store, fonts *textfont.Manager) *Engine {
	return &Engine{
		store:     st,
		fonts:     fonts,
		shaper:    shape.NewShaper(),
		layouts:   make(map[store.EntityID]*Layout),
		maxLines:  make(map[store.EntityID]int),
		truncator: make(map[store.EntityID]string),
	}
}

// SetMaxLines caps id's rendered line count to n; n<=0 removes the cap.
// Marks id dirty so the next layout pass picks up the change.
func (e *Engine) SetMaxLines(id store.EntityID, n int) {
	if n <= 0 {
		delete(e.maxLines, id)
	} else {
		e.maxLines[id] = n
	}
	e.store.MarkDirty(id)
}

// SetTruncator sets the text appended to the last kept line when id's
// layout exceeds its MaxLines cap; an empty string removes it. Marks
// id dirty so the next layout pass picks up the change.
func (e *Engine) SetTruncator(id store.EntityID, s string) {
	if s == "" {
		delete(e.truncator, id)
	} else {
		e.truncator[id] = s
	}
	e.store.MarkDirty(id)
}

func fixedToFloat(v fixed.Int26_6) float32 { return float32(v) / 64 }

// Layout returns the cached Layout for id, if one has ever been
// computed.
func (e *Engine) Layout(id store.EntityID) (*Layout, bool) {
	l, ok := e.layouts[id]
	return l, ok
}

// EnsureLayout lays out id iff the store reports it dirty or no cached
// Layout exists yet, clearing the store-side dirty flag on success,
// per spec.md §4.5.
func (e *Engine) EnsureLayout(id store.EntityID) bool {
	_, cached := e.layouts[id]
	if cached && !e.store.IsDirty(id) {
		return true
	}
	if !e.layoutText(id) {
		return false
	}
	e.store.ClearDirtyOne(id)
	return true
}

// LayoutDirtyTexts consumes the store's dirty ids, lays each out, and
// returns the ids actually processed, per spec.md §4.5.
func (e *Engine) LayoutDirtyTexts() []store.EntityID {
	ids := e.store.ConsumeDirtyIds()
	for _, id := range ids {
		e.layoutText(id)
	}
	return ids
}

// layoutText implements spec.md §4.5 step by step: the empty-content
// shortcut, then shape/break/aggregate/align/write-back.
func (e *Engine) layoutText(id store.EntityID) bool {
	entity, ok := e.store.GetEntity(id)
	if !ok {
		return false
	}
	content, _ := e.store.GetContent(id)
	runs, _ := e.store.GetRuns(id)

	if len(content) == 0 {
		e.layoutEmpty(id, entity, runs)
		return true
	}

	glyphs := e.shapeRuns(content, runs)
	lines := e.breakLines(entity, content, glyphs, runs)
	lines, glyphs = e.applyTruncation(id, runs, glyphs, lines)
	e.alignLines(entity, lines)

	totalHeight := float32(0)
	totalWidth := float32(0)
	for _, ln := range lines {
		totalHeight += ln.LineHeight
		if ln.Width > totalWidth {
			totalWidth = ln.Width
		}
	}
	baselineY := float32(0)
	if len(lines) > 0 {
		baselineY = lines[0].Ascent
	}

	e.layouts[id] = &Layout{
		Glyphs:      glyphs,
		Lines:       lines,
		TotalWidth:  totalWidth,
		TotalHeight: totalHeight,
		BaselineY:   baselineY,
	}

	finalWidth := totalWidth
	if entity.BoxMode == store.FixedWidth {
		finalWidth = entity.ConstraintWidth
	}
	e.store.SetLayoutResult(id, store.LayoutBounds{
		LayoutWidth:  finalWidth,
		LayoutHeight: totalHeight,
		MinX:         entity.X,
		MinY:         entity.Y - totalHeight,
		MaxX:         entity.X + finalWidth,
		MaxY:         entity.Y,
	})
	return true
}

func (e *Engine) layoutEmpty(id store.EntityID, entity store.Entity, runs []store.StyleRun) {
	var fontID textfont.FontID
	var fontSize fixed.Int26_6
	if len(runs) > 0 {
		fontID = textfont.FontID(runs[0].FontID)
		fontSize = fixed.Int26_6(runs[0].FontSize)
	} else {
		fontID, _ = e.fonts.DefaultID()
		fontSize = fixed.Int26_6(store.DefaultFontSize)
	}
	m := e.fonts.ScaledMetrics(fontID, fontSize)
	ascent := fixedToFloat(m.Ascender)
	descent := fixedToFloat(m.Descender)
	lineGap := fixedToFloat(m.LineGap)
	lineHeight := ascent - descent + lineGap

	line := Line{Ascent: ascent, Descent: descent, LineHeight: lineHeight}
	e.layouts[id] = &Layout{Lines: []Line{line}, TotalHeight: lineHeight, BaselineY: ascent}

	width := float32(0)
	if entity.BoxMode == store.FixedWidth {
		width = entity.ConstraintWidth
	}
	e.store.SetLayoutResult(id, store.LayoutBounds{
		LayoutWidth:  width,
		LayoutHeight: lineHeight,
		MinX:         entity.X,
		MinY:         entity.Y - lineHeight,
		MaxX:         entity.X + width,
		MaxY:         entity.Y,
	})
}

// byteOffsetsAndRunes decodes b into runes and records, for each rune,
// its byte offset within b (with a trailing sentinel at len(b)) — the
// table used to rebias a shaper's rune-indexed ClusterIndex back into
// byte offsets (spec.md §4.5 step 1).
func byteOffsetsAndRunes(b []byte) (offsets []int, runes []rune) {
	pos := 0
	for pos < len(b) {
		r, size := utf8.DecodeRune(b[pos:])
		offsets = append(offsets, pos)
		runes = append(runes, r)
		pos += size
	}
	offsets = append(offsets, pos)
	return offsets, runes
}

// shapeRuns shapes every run in logical order, rebiases cluster
// indices to whole-content byte offsets, and concatenates the glyphs.
// A run that cannot be shaped (unknown font, empty after decoding) is
// skipped; shaping failures must not abort the whole layout.
func (e *Engine) shapeRuns(content []byte, runs []store.StyleRun) []ShapedGlyph {
	var glyphs []ShapedGlyph
	for _, run := range runs {
		end := run.StartIndex + run.Length
		if run.StartIndex < 0 || run.Length < 0 || end > len(content) {
			continue
		}
		offsets, runes := byteOffsetsAndRunes(content[run.StartIndex:end])
		if len(runes) == 0 {
			continue
		}

		variantID := e.fonts.GetVariant(textfont.FontID(run.FontID), run.Flags&store.Bold != 0, run.Flags&store.Italic != 0)
		fontSize := fixed.Int26_6(run.FontSize)
		e.fonts.SetFontSize(variantID, fontSize)
		font, ok := e.fonts.ShaperFont(variantID)
		if !ok {
			continue
		}

		dir, hasDir := shape.GuessDirection(runes)
		out := e.shaper.Shape(font, runes, fontSize, dir, hasDir, true)
		isRTL := out.Direction == shape.RightToLeft

		m := e.fonts.ScaledMetrics(variantID, fontSize)
		ascent := fixedToFloat(m.Ascender)
		descent := fixedToFloat(m.Descender)
		lineHeight := ascent - descent + fixedToFloat(m.LineGap)

		for gi, g := range out.Glyphs {
			if g.ClusterIndex < 0 || g.ClusterIndex >= len(offsets) {
				continue
			}
			glyphs = append(glyphs, ShapedGlyph{
				GID:          g.GID,
				ClusterIndex: run.StartIndex + offsets[g.ClusterIndex],
				FontID:       variantID,
				Advance:      fixedToFloat(g.XAdvance),
				XOffset:      fixedToFloat(g.XOffset),
				YOffset:      fixedToFloat(g.YOffset),
				RTL:          isRTL,
				Ascent:       ascent,
				Descent:      descent,
				LineHeight:   lineHeight,
				RunStart:     gi == 0,
			})
		}
	}
	return glyphs
}

func isBreakByte(b byte) bool { return b == ' ' || b == '\t' || b == '-' }

// nextByteBoundary returns the byte offset immediately after the
// UTF-8 rune starting at i in content.
func nextByteBoundary(content []byte, i int) int {
	if i >= len(content) {
		return len(content)
	}
	_, size := utf8.DecodeRune(content[i:])
	return i + size
}

// breakLines implements spec.md §4.5 step 2: a single left-to-right
// scan over the shaped glyphs tracking the current line's width and
// the rewindable break opportunity.
func (e *Engine) breakLines(entity store.Entity, content []byte, glyphs []ShapedGlyph, runs []store.StyleRun) []Line {
	var lines []Line
	if len(glyphs) == 0 {
		a, d, lh := emptyContentMetrics(e, runs)
		return []Line{{StartByte: 0, EndByte: len(content), Ascent: a, Descent: d, LineHeight: lh}}
	}

	lineStartGlyph := 0
	lineStartByte := glyphs[0].ClusterIndex
	currentWidth := float32(0)
	lastBreakGlyph := -1
	lastBreakByte := -1
	widthAtLastBreak := float32(0)
	curAscent, curDescent, curLineHeight := glyphs[0].Ascent, glyphs[0].Descent, glyphs[0].LineHeight

	closeLine := func(endGlyph, endByte int, width float32) {
		lines = append(lines, Line{
			StartGlyph: lineStartGlyph, EndGlyph: endGlyph,
			StartByte: lineStartByte, EndByte: endByte,
			Ascent: curAscent, Descent: curDescent, LineHeight: curLineHeight,
			Width: width,
		})
	}

	recomputeMetrics := func(lo, hi int) (float32, float32, float32) {
		a, d, lh := glyphs[lo].Ascent, glyphs[lo].Descent, glyphs[lo].LineHeight
		for i := lo + 1; i < hi; i++ {
			if glyphs[i].LineHeight > lh {
				a, d, lh = glyphs[i].Ascent, glyphs[i].Descent, glyphs[i].LineHeight
			}
		}
		return a, d, lh
	}

	resetBreak := func() {
		lastBreakGlyph, lastBreakByte, widthAtLastBreak = -1, -1, 0
	}

	for i := 0; i < len(glyphs); i++ {
		g := glyphs[i]
		if content[g.ClusterIndex] == '\n' {
			closeLine(i, g.ClusterIndex, currentWidth)
			lineStartGlyph = i + 1
			lineStartByte = nextByteBoundary(content, g.ClusterIndex)
			currentWidth = 0
			resetBreak()
			if i+1 < len(glyphs) {
				curAscent, curDescent, curLineHeight = glyphs[i+1].Ascent, glyphs[i+1].Descent, glyphs[i+1].LineHeight
			}
			continue
		}

		if entity.BoxMode == store.FixedWidth && i > lineStartGlyph && currentWidth+g.Advance > entity.ConstraintWidth {
			if lastBreakGlyph >= lineStartGlyph {
				endGlyph := lastBreakGlyph + 1
				endByte := nextByteBoundary(content, lastBreakByte)
				curAscent, curDescent, curLineHeight = recomputeMetrics(lineStartGlyph, endGlyph)
				closeLine(endGlyph, endByte, widthAtLastBreak)

				residual := currentWidth - widthAtLastBreak
				lineStartGlyph = endGlyph
				lineStartByte = endByte
				currentWidth = residual
				resetBreak()
				// The new line inherits the mid-word residual glyphs;
				// its metrics come from them plus the current glyph, not
				// from the line just closed.
				curAscent, curDescent, curLineHeight = recomputeMetrics(endGlyph, i+1)
			} else {
				curAscent, curDescent, curLineHeight = recomputeMetrics(lineStartGlyph, i)
				closeLine(i, g.ClusterIndex, currentWidth)

				lineStartGlyph = i
				lineStartByte = g.ClusterIndex
				currentWidth = 0
				resetBreak()
				curAscent, curDescent, curLineHeight = g.Ascent, g.Descent, g.LineHeight
			}
		} else if i == lineStartGlyph {
			curAscent, curDescent, curLineHeight = g.Ascent, g.Descent, g.LineHeight
		} else if g.RunStart && g.LineHeight > curLineHeight {
			curAscent, curDescent, curLineHeight = g.Ascent, g.Descent, g.LineHeight
		}

		currentWidth += g.Advance
		if isBreakByte(content[g.ClusterIndex]) {
			lastBreakGlyph = i
			lastBreakByte = g.ClusterIndex
			widthAtLastBreak = currentWidth
		}
	}

	closeLine(len(glyphs), len(content), currentWidth)

	trailingEmptyLineExists := len(lines) > 0 && lines[len(lines)-1].StartByte == len(content) && lines[len(lines)-1].EndByte == len(content)
	if content[len(content)-1] == '\n' && !trailingEmptyLineExists {
		var a, d, lh float32
		if len(runs) > 0 {
			lastRun := runs[len(runs)-1]
			variantID := e.fonts.GetVariant(textfont.FontID(lastRun.FontID), lastRun.Flags&store.Bold != 0, lastRun.Flags&store.Italic != 0)
			m := e.fonts.ScaledMetrics(variantID, fixed.Int26_6(lastRun.FontSize))
			a = fixedToFloat(m.Ascender)
			d = fixedToFloat(m.Descender)
			lh = a - d + fixedToFloat(m.LineGap)
		} else {
			a, d, lh = emptyContentMetrics(e, runs)
		}
		lines = append(lines, Line{
			StartGlyph: len(glyphs), EndGlyph: len(glyphs),
			StartByte: len(content), EndByte: len(content),
			Ascent: a, Descent: d, LineHeight: lh,
		})
	}

	return lines
}

// applyTruncation implements the MaxLines/Truncator supplemented
// feature (SPEC_FULL.md's "Truncation with an ellipsis/truncator run"):
// if id's layout produced more lines than its configured cap, drop the
// excess lines and glyphs, then append the truncator string's shaped
// glyphs to the end of the last kept line. It does not trim glyphs off
// the kept line to make room for the truncator — the truncator simply
// extends the line's measured width.
func (e *Engine) applyTruncation(id store.EntityID, runs []store.StyleRun, glyphs []ShapedGlyph, lines []Line) ([]Line, []ShapedGlyph) {
	maxLines, ok := e.maxLines[id]
	if !ok || maxLines <= 0 || len(lines) <= maxLines {
		return lines, glyphs
	}
	kept := lines[:maxLines]
	last := kept[len(kept)-1]
	glyphs = glyphs[:last.EndGlyph]

	truncator := e.truncator[id]
	if truncator == "" || len(runs) == 0 {
		return kept, glyphs
	}

	run := runs[len(runs)-1]
	for _, r := range runs {
		if last.EndByte >= r.StartIndex && last.EndByte <= r.StartIndex+r.Length {
			run = r
			break
		}
	}
	variantID := e.fonts.GetVariant(textfont.FontID(run.FontID), run.Flags&store.Bold != 0, run.Flags&store.Italic != 0)
	fontSize := fixed.Int26_6(run.FontSize)
	e.fonts.SetFontSize(variantID, fontSize)
	font, ok := e.fonts.ShaperFont(variantID)
	if !ok {
		return kept, glyphs
	}

	runesT := []rune(truncator)
	if len(runesT) == 0 {
		return kept, glyphs
	}
	out := e.shaper.Shape(font, runesT, fontSize, shape.LeftToRight, true, true)

	m := e.fonts.ScaledMetrics(variantID, fontSize)
	ascent := fixedToFloat(m.Ascender)
	descent := fixedToFloat(m.Descender)
	lineHeight := ascent - descent + fixedToFloat(m.LineGap)

	truncWidth := float32(0)
	for _, g := range out.Glyphs {
		sg := ShapedGlyph{
			GID:          g.GID,
			ClusterIndex: last.EndByte,
			FontID:       variantID,
			Advance:      fixedToFloat(g.XAdvance),
			XOffset:      fixedToFloat(g.XOffset),
			YOffset:      fixedToFloat(g.YOffset),
			Ascent:       ascent,
			Descent:      descent,
			LineHeight:   lineHeight,
		}
		glyphs = append(glyphs, sg)
		truncWidth += sg.Advance
	}
	last.EndGlyph = len(glyphs)
	last.Width += truncWidth
	if lineHeight > last.LineHeight {
		last.Ascent, last.Descent, last.LineHeight = ascent, descent, lineHeight
	}
	kept[len(kept)-1] = last
	return kept, glyphs
}

func emptyContentMetrics(e *Engine, runs []store.StyleRun) (float32, float32, float32) {
	var fontID textfont.FontID
	var fontSize fixed.Int26_6
	if len(runs) > 0 {
		fontID = textfont.FontID(runs[0].FontID)
		fontSize = fixed.Int26_6(runs[0].FontSize)
	} else {
		fontID, _ = e.fonts.DefaultID()
		fontSize = fixed.Int26_6(store.DefaultFontSize)
	}
	m := e.fonts.ScaledMetrics(fontID, fontSize)
	a := fixedToFloat(m.Ascender)
	d := fixedToFloat(m.Descender)
	return a, d, a - d + fixedToFloat(m.LineGap)
}

// alignLines implements spec.md §4.5 step 4, setting each line's
// XOffset in place.
func (e *Engine) alignLines(entity store.Entity, lines []Line) {
	containerWidth := float32(0)
	if entity.BoxMode == store.FixedWidth {
		containerWidth = entity.ConstraintWidth
	} else {
		for _, ln := range lines {
			if ln.Width > containerWidth {
				containerWidth = ln.Width
			}
		}
	}
	for i := range lines {
		var off float32
		switch entity.Align {
		case store.Center:
			off = (containerWidth - lines[i].Width) / 2
		case store.Right:
			off = containerWidth - lines[i].Width
		}
		if off < 0 {
			off = 0
		}
		lines[i].XOffset = off
	}
}

// HitResult is the outcome of hitTest.
type HitResult struct {
	CharIndex     int
	LineIndex     int
	IsLeadingEdge bool
}

// HitTest implements spec.md §4.5's hitTest: find the line at localY,
// then the byte index at localX within it.
func (e *Engine) HitTest(id store.EntityID, localX, localY float32) (HitResult, bool) {
	l, ok := e.layouts[id]
	if !ok || len(l.Lines) == 0 {
		return HitResult{}, false
	}
	content, _ := e.store.GetContent(id)
	lineIndex := e.findLineAtY(l, localY)
	charIndex, leading := e.getCharIndexAtX(l, content, lineIndex, localX)
	return HitResult{CharIndex: charIndex, LineIndex: lineIndex, IsLeadingEdge: leading}, true
}

// findLineAtY walks lines top-down; line i occupies
// [yTop(i), yTop(i)-lineHeight(i)] in Y-up (yTop decreases downward).
func (e *Engine) findLineAtY(l *Layout, localY float32) int {
	yTop := float32(0)
	for i, ln := range l.Lines {
		yBottom := yTop - ln.LineHeight
		if localY > yBottom || i == len(l.Lines)-1 {
			return i
		}
		yTop = yBottom
	}
	return len(l.Lines) - 1
}

func (e *Engine) getCharIndexAtX(l *Layout, content []byte, lineIndex int, localX float32) (int, bool) {
	ln := l.Lines[lineIndex]
	x := ln.XOffset
	for gi := ln.StartGlyph; gi < ln.EndGlyph; gi++ {
		g := l.Glyphs[gi]
		if localX >= x && localX < x+g.Advance {
			leftHalf := localX < x+g.Advance/2
			if g.RTL == leftHalf {
				return nextByteBoundary(content, g.ClusterIndex), false
			}
			return g.ClusterIndex, true
		}
		x += g.Advance
	}
	return ln.EndByte, false
}

// CaretPosition is the outcome of getCaretPosition.
type CaretPosition struct {
	X, Y      float32
	Height    float32
	LineIndex int
}

// caretXOnLine sums the advances of ln's glyphs whose cluster precedes
// charIndex, starting from the line's alignment offset.
func caretXOnLine(l *Layout, ln Line, charIndex int) float32 {
	x := ln.XOffset
	for gi := ln.StartGlyph; gi < ln.EndGlyph; gi++ {
		if l.Glyphs[gi].ClusterIndex < charIndex {
			x += l.Glyphs[gi].Advance
		}
	}
	return x
}

// GetCaretPosition implements spec.md §4.5's getCaretPosition.
func (e *Engine) GetCaretPosition(id store.EntityID, charIndex int) (CaretPosition, bool) {
	l, ok := e.layouts[id]
	if !ok || len(l.Lines) == 0 {
		return CaretPosition{}, false
	}
	lineIndex := len(l.Lines) - 1
	for i, ln := range l.Lines {
		if charIndex >= ln.StartByte && charIndex <= ln.EndByte {
			lineIndex = i
			break
		}
	}
	y := float32(0)
	for i := 0; i < lineIndex; i++ {
		y -= l.Lines[i].LineHeight
	}
	ln := l.Lines[lineIndex]
	return CaretPosition{X: caretXOnLine(l, ln, charIndex), Y: y, Height: ln.LineHeight, LineIndex: lineIndex}, true
}

// SelectionRect is one rectangle of a (possibly multi-line) selection.
type SelectionRect struct {
	X, Y, Width, Height float32
	LineIndex           int
}

// GetSelectionRects implements spec.md §4.5's getSelectionRects.
func (e *Engine) GetSelectionRects(id store.EntityID, start, end int) []SelectionRect {
	if start > end {
		start, end = end, start
	}
	l, ok := e.layouts[id]
	if !ok {
		return nil
	}
	var rects []SelectionRect
	yTop := float32(0)
	for i, ln := range l.Lines {
		lineTop := yTop
		yTop -= ln.LineHeight
		if ln.EndByte < start || ln.StartByte > end {
			continue
		}
		lo := start
		if lo < ln.StartByte {
			lo = ln.StartByte
		}
		hi := end
		if hi > ln.EndByte {
			hi = ln.EndByte
		}
		if lo >= hi {
			continue
		}
		// Both endpoints are measured on THIS line: at a soft wrap the
		// boundary byte belongs to two lines, and a caret lookup would
		// resolve it to the earlier one.
		x0 := caretXOnLine(l, ln, lo)
		x1 := caretXOnLine(l, ln, hi)
		width := x1 - x0
		if width <= 0 {
			continue
		}
		rects = append(rects, SelectionRect{X: x0, Y: lineTop - ln.LineHeight, Width: width, Height: ln.LineHeight, LineIndex: i})
	}
	return rects
}

func isWordByte(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '_' || b >= 128
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}

// charIndexToGap maps a logical byte index to the visual-gap index
// spec.md §4.5's navigation section defines.
func charIndexToGap(l *Layout, charIndex int) int {
	for i, g := range l.Glyphs {
		if g.ClusterIndex == charIndex {
			if g.RTL {
				return i + 1
			}
			return i
		}
	}
	return len(l.Glyphs)
}

// gapToCharIndex maps a visual gap back to a logical byte index.
func gapToCharIndex(l *Layout, content []byte, gap int) int {
	if gap >= len(l.Glyphs) {
		if len(l.Lines) == 0 {
			return 0
		}
		return l.Lines[len(l.Lines)-1].EndByte
	}
	g := l.Glyphs[gap]
	if g.RTL {
		return nextByteBoundary(content, g.ClusterIndex)
	}
	return g.ClusterIndex
}

// GetVisualPrevCharIndex implements spec.md §4.5's visual-gap
// navigation: gap-1, clamped.
func (e *Engine) GetVisualPrevCharIndex(id store.EntityID, charIndex int) int {
	l, content := e.layoutAndContent(id)
	if l == nil {
		return charIndex
	}
	gap := charIndexToGap(l, charIndex)
	if gap > 0 {
		gap--
	}
	return gapToCharIndex(l, content, gap)
}

// GetVisualNextCharIndex implements spec.md §4.5's visual-gap
// navigation: gap+1, clamped.
func (e *Engine) GetVisualNextCharIndex(id store.EntityID, charIndex int) int {
	l, content := e.layoutAndContent(id)
	if l == nil {
		return charIndex
	}
	gap := charIndexToGap(l, charIndex)
	if gap < len(l.Glyphs) {
		gap++
	}
	return gapToCharIndex(l, content, gap)
}

func (e *Engine) layoutAndContent(id store.EntityID) (*Layout, []byte) {
	l, ok := e.layouts[id]
	if !ok {
		return nil, nil
	}
	content, _ := e.store.GetContent(id)
	return l, content
}

// GetWordLeftIndex implements spec.md §4.5's getWordLeftIndex. Like the
// Visual* pair above, it walks the visual-gap array rather than raw
// content bytes, so "left" stays visual: over an RTL run, stepping left
// moves forward through the logical bytes.
func (e *Engine) GetWordLeftIndex(id store.EntityID, charIndex int) int {
	l, content := e.layoutAndContent(id)
	if l == nil || len(l.Glyphs) == 0 {
		return 0
	}
	byteAt := func(gap int) byte { return content[l.Glyphs[gap].ClusterIndex] }
	gap := charIndexToGap(l, charIndex)
	for gap > 0 && isSpaceByte(byteAt(gap-1)) {
		gap--
	}
	for gap > 0 && isWordByte(byteAt(gap-1)) {
		gap--
	}
	return gapToCharIndex(l, content, gap)
}

// GetWordRightIndex implements spec.md §4.5's getWordRightIndex, on the
// same visual-gap array as GetWordLeftIndex.
func (e *Engine) GetWordRightIndex(id store.EntityID, charIndex int) int {
	l, content := e.layoutAndContent(id)
	if l == nil || len(l.Glyphs) == 0 {
		return 0
	}
	n := len(l.Glyphs)
	byteAt := func(gap int) byte { return content[l.Glyphs[gap].ClusterIndex] }
	gap := charIndexToGap(l, charIndex)
	if gap < n && isSpaceByte(byteAt(gap)) {
		for gap < n && isSpaceByte(byteAt(gap)) {
			gap++
		}
		return gapToCharIndex(l, content, gap)
	}
	for gap < n && !isSpaceByte(byteAt(gap)) {
		gap++
	}
	for gap < n && isSpaceByte(byteAt(gap)) {
		gap++
	}
	return gapToCharIndex(l, content, gap)
}

// GetLineStartIndex implements spec.md §4.5's getLineStartIndex.
func (e *Engine) GetLineStartIndex(id store.EntityID, charIndex int) int {
	l, ok := e.layouts[id]
	if !ok {
		return 0
	}
	for _, ln := range l.Lines {
		if charIndex >= ln.StartByte && charIndex <= ln.EndByte {
			return ln.StartByte
		}
	}
	return 0
}

// GetLineEndIndex implements spec.md §4.5's getLineEndIndex.
func (e *Engine) GetLineEndIndex(id store.EntityID, charIndex int) int {
	l, ok := e.layouts[id]
	if !ok || len(l.Lines) == 0 {
		return 0
	}
	for _, ln := range l.Lines {
		if charIndex >= ln.StartByte && charIndex <= ln.EndByte {
			return ln.EndByte
		}
	}
	return l.Lines[len(l.Lines)-1].EndByte
}

// GetLineUpIndex implements spec.md §4.5's getLineUpIndex: reads the
// caret's current (x, lineIndex) and re-hits the line above at that x.
func (e *Engine) GetLineUpIndex(id store.EntityID, charIndex int) int {
	l, ok := e.layouts[id]
	if !ok {
		return charIndex
	}
	pos, ok := e.GetCaretPosition(id, charIndex)
	if !ok {
		return charIndex
	}
	if pos.LineIndex == 0 {
		return 0
	}
	content, _ := e.store.GetContent(id)
	idx, _ := e.getCharIndexAtX(l, content, pos.LineIndex-1, pos.X)
	return idx
}

// GetLineDownIndex implements spec.md §4.5's getLineDownIndex.
func (e *Engine) GetLineDownIndex(id store.EntityID, charIndex int) int {
	l, ok := e.layouts[id]
	if !ok {
		return charIndex
	}
	pos, ok := e.GetCaretPosition(id, charIndex)
	if !ok {
		return charIndex
	}
	if pos.LineIndex >= len(l.Lines)-1 {
		return l.Lines[len(l.Lines)-1].EndByte
	}
	content, _ := e.store.GetContent(id)
	idx, _ := e.getCharIndexAtX(l, content, pos.LineIndex+1, pos.X)
	return idx
}
