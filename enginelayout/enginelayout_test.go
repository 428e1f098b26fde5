// SPDX-License-Identifier: Unlicense OR MIT

package enginelayout

import (
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/vectorcad/textcore/store"
	"github.com/vectorcad/textcore/textfont"
	"golang.org/x/image/font/gofont/goregular"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store, textfont.FontID) {
	t.Helper()
	st := store.NewStore()
	fonts := textfont.NewManager()
	id := fonts.Load(goregular.TTF, "Go Regular", false, false)
	if id == 0 {
		t.Fatal("failed to load test font")
	}
	store.DefaultFontID = uint32(id)
	return NewEngine(st, fonts), st, id
}

func TestLayoutEmptyContentProducesOneZeroWidthLine(t *testing.T) {
	e, st, _ := newTestEngine(t)
	st.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Left, 0, nil, nil)
	if !e.EnsureLayout(1) {
		t.Fatal("expected layout to succeed on empty content")
	}
	l, ok := e.Layout(1)
	if !ok {
		t.Fatal("expected a cached layout")
	}
	if len(l.Lines) != 1 {
		t.Fatalf("expected exactly one line for empty content, got %d", len(l.Lines))
	}
	if l.Lines[0].LineHeight <= 0 {
		t.Fatalf("expected a positive synthesized line height, got %v", l.Lines[0].LineHeight)
	}
	entity, _ := st.GetEntity(1)
	if entity.Bounds.LayoutHeight != l.TotalHeight {
		t.Fatalf("expected bounds written back to match layout height, got %v vs %v", entity.Bounds.LayoutHeight, l.TotalHeight)
	}
}

func TestLayoutSingleLineAutoWidthProducesGlyphsAndPositiveWidth(t *testing.T) {
	e, st, id := newTestEngine(t)
	st.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Left, 0,
		[]store.StyleRun{{StartIndex: 0, Length: 5, FontID: uint32(id), FontSize: 16 * 64, ColorRGBA: 0xFFFFFFFF}},
		[]byte("hello"))
	if !e.EnsureLayout(1) {
		t.Fatal("expected layout to succeed")
	}
	l, _ := e.Layout(1)
	if len(l.Glyphs) == 0 {
		t.Fatal("expected shaped glyphs for non-empty content")
	}
	if len(l.Lines) != 1 {
		t.Fatalf("expected a single line with no newlines and AutoWidth, got %d", len(l.Lines))
	}
	if l.TotalWidth <= 0 {
		t.Fatalf("expected positive total width, got %v", l.TotalWidth)
	}
	if l.Lines[0].StartByte != 0 || l.Lines[0].EndByte != 5 {
		t.Fatalf("expected the line to span the whole content, got %+v", l.Lines[0])
	}
}

func TestLayoutRespectsExplicitNewlines(t *testing.T) {
	e, st, id := newTestEngine(t)
	content := []byte("ab\ncd")
	st.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Left, 0,
		[]store.StyleRun{{StartIndex: 0, Length: len(content), FontID: uint32(id), FontSize: 16 * 64, ColorRGBA: 0xFFFFFFFF}},
		content)
	e.EnsureLayout(1)
	l, _ := e.Layout(1)
	if len(l.Lines) != 2 {
		t.Fatalf("expected two lines split at the newline, got %d: %+v", len(l.Lines), l.Lines)
	}
	if l.Lines[0].EndByte != 2 {
		t.Fatalf("expected first line to end before the newline byte, got %d", l.Lines[0].EndByte)
	}
	if l.Lines[1].StartByte != 3 {
		t.Fatalf("expected second line to start after the newline byte, got %d", l.Lines[1].StartByte)
	}
}

func TestLayoutTrailingNewlineAppendsEmptyLine(t *testing.T) {
	e, st, id := newTestEngine(t)
	content := []byte("ab\n")
	st.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Left, 0,
		[]store.StyleRun{{StartIndex: 0, Length: len(content), FontID: uint32(id), FontSize: 16 * 64, ColorRGBA: 0xFFFFFFFF}},
		content)
	e.EnsureLayout(1)
	l, _ := e.Layout(1)
	if len(l.Lines) != 2 {
		t.Fatalf("expected a trailing empty line after the final newline, got %d: %+v", len(l.Lines), l.Lines)
	}
	last := l.Lines[len(l.Lines)-1]
	if last.StartByte != len(content) || last.EndByte != len(content) {
		t.Fatalf("expected the trailing line to be zero-width at end of content, got %+v", last)
	}
}

func TestLayoutFixedWidthWrapsAtWhitespace(t *testing.T) {
	e, st, id := newTestEngine(t)
	content := []byte("a bb ccc dddd")
	// A tight constraint forces multiple lines; exact wrap points depend
	// on font metrics, so this only asserts wrapping occurred at all and
	// that the lines together cover every content byte exactly once.
	st.UpsertText(1, 0, 0, 0, store.FixedWidth, store.Left, 40,
		[]store.StyleRun{{StartIndex: 0, Length: len(content), FontID: uint32(id), FontSize: 16 * 64, ColorRGBA: 0xFFFFFFFF}},
		content)
	e.EnsureLayout(1)
	l, _ := e.Layout(1)
	if len(l.Lines) < 2 {
		t.Fatalf("expected wrapping to produce multiple lines under a tight constraint, got %d", len(l.Lines))
	}
	covered := 0
	for _, ln := range l.Lines {
		covered += ln.EndByte - ln.StartByte
	}
	if covered != len(content) {
		t.Fatalf("expected every byte of content to be covered by exactly one line, got %d vs %d", covered, len(content))
	}
}

func TestEnsureLayoutSkipsWhenNotDirty(t *testing.T) {
	e, st, id := newTestEngine(t)
	st.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Left, 0,
		[]store.StyleRun{{StartIndex: 0, Length: 2, FontID: uint32(id), FontSize: 16 * 64, ColorRGBA: 0xFFFFFFFF}},
		[]byte("hi"))
	e.EnsureLayout(1)
	l1, _ := e.Layout(1)
	if !e.EnsureLayout(1) {
		t.Fatal("expected EnsureLayout to succeed on an already-clean entity")
	}
	l2, _ := e.Layout(1)
	if l1 != l2 {
		t.Fatal("expected EnsureLayout to be a no-op (same cached pointer) when not dirty")
	}
}

func TestLayoutDirtyTextsProcessesAscendingOrder(t *testing.T) {
	e, st, id := newTestEngine(t)
	st.UpsertText(3, 0, 0, 0, store.AutoWidth, store.Left, 0,
		[]store.StyleRun{{StartIndex: 0, Length: 1, FontID: uint32(id), FontSize: 16 * 64}}, []byte("a"))
	st.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Left, 0,
		[]store.StyleRun{{StartIndex: 0, Length: 1, FontID: uint32(id), FontSize: 16 * 64}}, []byte("a"))
	ids := e.LayoutDirtyTexts()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("expected ascending [1 3], got %v", ids)
	}
	if _, ok := e.Layout(1); !ok {
		t.Fatal("expected entity 1 to be laid out")
	}
	if _, ok := e.Layout(3); !ok {
		t.Fatal("expected entity 3 to be laid out")
	}
}

func TestHitTestAndCaretPositionRoundTrip(t *testing.T) {
	e, st, id := newTestEngine(t)
	st.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Left, 0,
		[]store.StyleRun{{StartIndex: 0, Length: 5, FontID: uint32(id), FontSize: 16 * 64, ColorRGBA: 0xFFFFFFFF}},
		[]byte("hello"))
	e.EnsureLayout(1)

	startPos, ok := e.GetCaretPosition(1, 0)
	if !ok {
		t.Fatal("expected a caret position at index 0")
	}
	if startPos.X != 0 {
		t.Fatalf("expected the first caret position to be at x=0, got %v", startPos.X)
	}
	endPos, ok := e.GetCaretPosition(1, 5)
	if !ok {
		t.Fatal("expected a caret position at end of content")
	}
	if endPos.X <= startPos.X {
		t.Fatalf("expected caret x to advance across the word, got %v -> %v", startPos.X, endPos.X)
	}

	hit, ok := e.HitTest(1, startPos.X, 0)
	if !ok {
		t.Fatal("expected a hit result near the start of the line")
	}
	if hit.LineIndex != 0 {
		t.Fatalf("expected line 0, got %d", hit.LineIndex)
	}
	if hit.CharIndex != 0 {
		t.Fatalf("expected hitting the caret x of index 0 to return 0, got %d", hit.CharIndex)
	}
}

func TestGetSelectionRectsNonEmptyForForwardRange(t *testing.T) {
	e, st, id := newTestEngine(t)
	st.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Left, 0,
		[]store.StyleRun{{StartIndex: 0, Length: 5, FontID: uint32(id), FontSize: 16 * 64, ColorRGBA: 0xFFFFFFFF}},
		[]byte("hello"))
	e.EnsureLayout(1)
	rects := e.GetSelectionRects(1, 0, 5)
	if len(rects) != 1 {
		t.Fatalf("expected a single selection rect for a single-line selection, got %d", len(rects))
	}
	if rects[0].Width <= 0 {
		t.Fatalf("expected a positive selection width, got %v", rects[0].Width)
	}
}

func TestGetWordRightAndLeftIndex(t *testing.T) {
	e, st, id := newTestEngine(t)
	content := []byte("foo bar baz")
	st.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Left, 0,
		[]store.StyleRun{{StartIndex: 0, Length: len(content), FontID: uint32(id), FontSize: 16 * 64}},
		content)
	e.EnsureLayout(1)

	right := e.GetWordRightIndex(1, 0)
	if right != 4 {
		t.Fatalf("expected word-right from 0 to land at 4 (start of \"bar\"), got %d", right)
	}
	left := e.GetWordLeftIndex(1, 7)
	if left != 4 {
		t.Fatalf("expected word-left from 7 to land at 4 (start of \"bar\"), got %d", left)
	}
}

func TestGetLineStartAndEndIndex(t *testing.T) {
	e, st, id := newTestEngine(t)
	content := []byte("ab\ncd")
	st.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Left, 0,
		[]store.StyleRun{{StartIndex: 0, Length: len(content), FontID: uint32(id), FontSize: 16 * 64}},
		content)
	e.EnsureLayout(1)

	if got := e.GetLineStartIndex(1, 4); got != 3 {
		t.Fatalf("expected line start of second line to be 3, got %d", got)
	}
	if got := e.GetLineEndIndex(1, 0); got != 2 {
		t.Fatalf("expected line end of first line to be 2, got %d", got)
	}
}

func TestGetVisualNextAndPrevCharIndexClamp(t *testing.T) {
	e, st, id := newTestEngine(t)
	st.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Left, 0,
		[]store.StyleRun{{StartIndex: 0, Length: 2, FontID: uint32(id), FontSize: 16 * 64}},
		[]byte("hi"))
	e.EnsureLayout(1)

	prev := e.GetVisualPrevCharIndex(1, 0)
	if prev != 0 {
		t.Fatalf("expected clamping at the start, got %d", prev)
	}
	next := e.GetVisualNextCharIndex(1, 0)
	if next <= 0 {
		t.Fatalf("expected forward motion from the start, got %d", next)
	}
}

func TestMaxLinesTruncatesAndAppendsTruncator(t *testing.T) {
	e, st, id := newTestEngine(t)
	content := []byte("a\nb\nc\nd")
	st.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Left, 0,
		[]store.StyleRun{{StartIndex: 0, Length: len(content), FontID: uint32(id), FontSize: 16 * 64}},
		content)
	e.SetMaxLines(1, 2)
	e.SetTruncator(1, "...")
	if !e.EnsureLayout(1) {
		t.Fatal("expected layout to succeed")
	}
	l, ok := e.Layout(1)
	if !ok {
		t.Fatal("expected a cached layout")
	}
	if len(l.Lines) != 2 {
		t.Fatalf("expected line count capped at 2, got %d", len(l.Lines))
	}
	last := l.Lines[len(l.Lines)-1]
	if last.EndGlyph <= last.StartGlyph {
		t.Fatalf("expected the last line to carry the truncator's glyphs, got %+v", last)
	}
	if last.Width <= 0 {
		t.Fatalf("expected the truncator to widen the last kept line, got width=%v", last.Width)
	}
}

func TestMaxLinesNoopWhenContentFits(t *testing.T) {
	e, st, id := newTestEngine(t)
	content := []byte("a\nb")
	st.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Left, 0,
		[]store.StyleRun{{StartIndex: 0, Length: len(content), FontID: uint32(id), FontSize: 16 * 64}},
		content)
	e.SetMaxLines(1, 5)
	e.SetTruncator(1, "...")
	e.EnsureLayout(1)
	l, _ := e.Layout(1)
	if len(l.Lines) != 2 {
		t.Fatalf("expected 2 lines unaffected by a cap that isn't hit, got %d", len(l.Lines))
	}
}

// TestLineHeightPicksUpSizeBumpWithinSameRunFont exercises two adjacent
// runs on one line that resolve to the same font variant (no bold/italic
// change) but differ only in FontSize, so the run boundary can't be
// inferred from a FontID change: the line's metrics must still come
// from the taller, larger-size run.
func TestLineHeightPicksUpSizeBumpWithinSameRunFont(t *testing.T) {
	e, st, id := newTestEngine(t)
	content := []byte("aaBB")
	runs := []store.StyleRun{
		{StartIndex: 0, Length: 2, FontID: uint32(id), FontSize: 12 * 64, ColorRGBA: 0xFFFFFFFF},
		{StartIndex: 2, Length: 2, FontID: uint32(id), FontSize: 48 * 64, ColorRGBA: 0xFFFFFFFF},
	}
	st.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Left, 0, runs, content)
	if !e.EnsureLayout(1) {
		t.Fatal("expected layout to succeed")
	}
	l, ok := e.Layout(1)
	if !ok {
		t.Fatal("expected a cached layout")
	}
	if len(l.Lines) != 1 {
		t.Fatalf("expected a single line, got %d", len(l.Lines))
	}

	e2, st2, id2 := newTestEngine(t)
	st2.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Left, 0,
		[]store.StyleRun{{StartIndex: 0, Length: 2, FontID: uint32(id2), FontSize: 12 * 64, ColorRGBA: 0xFFFFFFFF}},
		[]byte("aa"))
	e2.EnsureLayout(1)
	small, _ := e2.Layout(1)

	if l.Lines[0].LineHeight <= small.Lines[0].LineHeight {
		t.Fatalf("expected the mixed-size line's height (%v) to exceed the all-small line's height (%v)",
			l.Lines[0].LineHeight, small.Lines[0].LineHeight)
	}
	if l.Lines[0].Ascent <= small.Lines[0].Ascent {
		t.Fatalf("expected the mixed-size line's ascent (%v) to exceed the all-small line's ascent (%v)",
			l.Lines[0].Ascent, small.Lines[0].Ascent)
	}
}

// TestLayoutIsDeterministicAcrossEntities re-lays-out the same content
// on two separate entities and asserts the resulting Layout values are
// structurally identical, the way spec.md §8 expects repeated layout
// passes over identical input to be deterministic. On mismatch it dumps
// both Layout values with spew.Sdump rather than relying on %+v, which
// truncates nested slices and elides unexported book-keeping.
func TestLayoutIsDeterministicAcrossEntities(t *testing.T) {
	e, st, id := newTestEngine(t)
	content := []byte("Hello, textcore")
	runs := []store.StyleRun{{StartIndex: 0, Length: len(content), FontID: uint32(id), FontSize: 16 * 64, ColorRGBA: 0xFFFFFFFF}}
	st.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Left, 0, runs, content)
	st.UpsertText(2, 0, 0, 0, store.AutoWidth, store.Left, 0, runs, content)
	e.EnsureLayout(1)
	e.EnsureLayout(2)

	a, okA := e.Layout(1)
	b, okB := e.Layout(2)
	if !okA || !okB {
		t.Fatal("expected both entities to have cached layouts")
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected identical layouts for identical content, got:\n--- entity 1 ---\n%s\n--- entity 2 ---\n%s",
			spew.Sdump(a), spew.Sdump(b))
	}
}

func TestCenterAlignmentSymmetry(t *testing.T) {
	e, st, id := newTestEngine(t)
	content := []byte("ab\ncde")
	st.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Center, 0,
		[]store.StyleRun{{StartIndex: 0, Length: len(content), FontID: uint32(id), FontSize: 16 * 64, ColorRGBA: 0xFFFFFFFF}},
		content)
	if !e.EnsureLayout(1) {
		t.Fatal("expected layout to succeed")
	}
	l, _ := e.Layout(1)
	if len(l.Lines) != 2 {
		t.Fatalf("expected two lines, got %d", len(l.Lines))
	}
	w0, w1 := l.Lines[0].Width, l.Lines[1].Width
	if w1 <= w0 {
		t.Fatalf("expected the three-glyph line to be wider, got %v vs %v", w0, w1)
	}
	container := l.TotalWidth
	if got, want := l.Lines[0].XOffset, (container-w0)/2; got != want {
		t.Fatalf("expected line 0 centered at %v, got %v", want, got)
	}
	if got := l.Lines[1].XOffset; got != 0 {
		t.Fatalf("expected the widest line to sit at offset 0, got %v", got)
	}
}

func TestRightAlignmentFillsContainer(t *testing.T) {
	e, st, id := newTestEngine(t)
	content := []byte("ab")
	st.UpsertText(1, 0, 0, 0, store.FixedWidth, store.Right, 200,
		[]store.StyleRun{{StartIndex: 0, Length: len(content), FontID: uint32(id), FontSize: 16 * 64, ColorRGBA: 0xFFFFFFFF}},
		content)
	if !e.EnsureLayout(1) {
		t.Fatal("expected layout to succeed")
	}
	l, _ := e.Layout(1)
	ln := l.Lines[0]
	if ln.XOffset+ln.Width != 200 {
		t.Fatalf("expected right edge flush with container: xOffset %v + width %v != 200", ln.XOffset, ln.Width)
	}
}

func TestSelectionRectsAcrossSoftWrapStartAtLineOffset(t *testing.T) {
	e, st, id := newTestEngine(t)
	content := []byte("aaaa bbbb cccc")
	st.UpsertText(1, 0, 0, 0, store.FixedWidth, store.Left, 60,
		[]store.StyleRun{{StartIndex: 0, Length: len(content), FontID: uint32(id), FontSize: 16 * 64, ColorRGBA: 0xFFFFFFFF}},
		content)
	if !e.EnsureLayout(1) {
		t.Fatal("expected layout to succeed")
	}
	l, _ := e.Layout(1)
	if len(l.Lines) < 2 {
		t.Fatalf("expected the constraint to wrap into multiple lines, got %d", len(l.Lines))
	}
	rects := e.GetSelectionRects(1, 0, len(content))
	if len(rects) != len(l.Lines) {
		t.Fatalf("expected one rect per line, got %d rects for %d lines", len(rects), len(l.Lines))
	}
	for i, r := range rects {
		if r.X != l.Lines[i].XOffset {
			t.Fatalf("rect %d starts at %v, expected the line's own offset %v", i, r.X, l.Lines[i].XOffset)
		}
		if r.Height != l.Lines[i].LineHeight {
			t.Fatalf("rect %d height %v != line height %v", i, r.Height, l.Lines[i].LineHeight)
		}
	}
}

func TestHitTestPastLineEndReturnsEndByte(t *testing.T) {
	e, st, id := newTestEngine(t)
	content := []byte("hello")
	st.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Left, 0,
		[]store.StyleRun{{StartIndex: 0, Length: len(content), FontID: uint32(id), FontSize: 16 * 64, ColorRGBA: 0xFFFFFFFF}},
		content)
	if !e.EnsureLayout(1) {
		t.Fatal("expected layout to succeed")
	}
	l, _ := e.Layout(1)
	hit, ok := e.HitTest(1, l.TotalWidth+100, 0)
	if !ok {
		t.Fatal("expected hit test to resolve")
	}
	if hit.CharIndex != len(content) {
		t.Fatalf("expected end-of-line byte %d, got %d", len(content), hit.CharIndex)
	}
}

func TestHitTestRightHalfOfLastGlyphAdvancesPastIt(t *testing.T) {
	e, st, id := newTestEngine(t)
	content := []byte("ab")
	st.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Left, 0,
		[]store.StyleRun{{StartIndex: 0, Length: len(content), FontID: uint32(id), FontSize: 16 * 64, ColorRGBA: 0xFFFFFFFF}},
		content)
	if !e.EnsureLayout(1) {
		t.Fatal("expected layout to succeed")
	}
	l, _ := e.Layout(1)
	last := l.Glyphs[len(l.Glyphs)-1]
	x := l.TotalWidth - last.Advance*0.25
	hit, ok := e.HitTest(1, x, 0)
	if !ok {
		t.Fatal("expected hit test to resolve")
	}
	if hit.CharIndex != len(content) {
		t.Fatalf("expected trailing edge of the last glyph to map to %d, got %d", len(content), hit.CharIndex)
	}
}

func TestSynthesizedDefaultRunShapesWithZeroFontID(t *testing.T) {
	e, st, _ := newTestEngine(t)
	// Leave the synthesized run's FontID at the reserved value 0; the
	// font manager resolves it to the default face at its own boundary.
	store.DefaultFontID = 0
	st.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Left, 0, nil, []byte("hello"))
	if !e.EnsureLayout(1) {
		t.Fatal("expected layout to succeed")
	}
	l, _ := e.Layout(1)
	if len(l.Glyphs) == 0 {
		t.Fatal("expected the default run with font id 0 to shape against the default face")
	}
	if l.TotalWidth <= 0 {
		t.Fatalf("expected positive width from the default face, got %v", l.TotalWidth)
	}
}

func TestWordNavigationRTLMovesVisually(t *testing.T) {
	e, st, id := newTestEngine(t)
	// Two Arabic words; each letter is two bytes, the space sits at
	// byte 4 and the second word spans [5, 9).
	content := []byte("اب جد")
	st.UpsertText(1, 0, 0, 0, store.AutoWidth, store.Left, 0,
		[]store.StyleRun{{StartIndex: 0, Length: len(content), FontID: uint32(id), FontSize: 16 * 64}},
		content)
	if !e.EnsureLayout(1) {
		t.Fatal("expected layout to succeed")
	}
	l, _ := e.Layout(1)
	if len(l.Glyphs) == 0 || !l.Glyphs[0].RTL {
		t.Fatalf("expected the run to shape right-to-left, got %+v", l.Glyphs)
	}

	// From the start of the second word: visually left crosses that
	// word toward the line's left edge, which in RTL is FORWARD through
	// the logical bytes; visually right moves logically backward.
	if got := e.GetWordLeftIndex(1, 5); got <= 5 {
		t.Fatalf("expected word-left over RTL text to advance logically, got %d from 5", got)
	}
	if got := e.GetWordRightIndex(1, 5); got >= 5 {
		t.Fatalf("expected word-right over RTL text to retreat logically, got %d from 5", got)
	}
}
