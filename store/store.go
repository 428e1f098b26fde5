// SPDX-License-Identifier: Unlicense OR MIT

// Package store implements the TextStore role of spec.md §4.3: it owns
// every text entity (position, box mode, alignment, constraint width),
// its UTF-8 content, its ordered style runs, the single focused
// caret/selection, and a dirty set of entity ids. It plays the role
// gio's widget.Editor plays for a single editable buffer, generalized
// to many independent entities with no gap-buffer amortization (see
// SPEC_FULL.md §3).
package store

import "sort"

// EntityID identifies a TextEntity, nonzero and stable for its
// lifetime, per spec.md §3.
type EntityID uint32

// BoxMode selects whether an entity's width is the widest line
// (AutoWidth) or a caller-supplied constraint (FixedWidth).
type BoxMode uint8

const (
	AutoWidth BoxMode = iota
	FixedWidth
)

// Align selects horizontal line alignment within the entity's box.
type Align uint8

const (
	Left Align = iota
	Center
	Right
)

// Flags is a subset of {Bold, Italic, Underline, Strikethrough}. Only
// Bold/Italic affect face selection and MSDF caching; the others are
// purely decorative, per spec.md §3.
type Flags uint8

const (
	Bold Flags = 1 << iota
	Italic
	Underline
	Strikethrough
)

// StyleSubset masks Flags down to the bits that affect rasterized
// shape, the atlas cache key's styleSubset (spec.md §3).
func (f Flags) StyleSubset() Flags { return f & (Bold | Italic) }

// StyleRun is one run of uniform style over a byte range of an
// entity's content.
type StyleRun struct {
	StartIndex int
	Length     int
	FontID     uint32
	FontSize   int32 // 26.6 fixed-point pixels
	ColorRGBA  uint32
	Flags      Flags
}

func (r StyleRun) endIndex() int { return r.StartIndex + r.Length }

// LayoutBounds is the cached layout result written back by the layout
// engine via SetLayoutResult; it must never be written by any other
// caller (spec.md §4.3).
type LayoutBounds struct {
	LayoutWidth, LayoutHeight float32
	MinX, MinY, MaxX, MaxY    float32
}

// Entity is a TextEntity: anchor, box mode, alignment, constraint
// width, and the last layout result written back by the engine.
type Entity struct {
	ID              EntityID
	X, Y            float32
	Rotation        float32
	BoxMode         BoxMode
	Align           Align
	ConstraintWidth float32
	Bounds          LayoutBounds
}

type entityState struct {
	entity  Entity
	content []byte
	runs    []StyleRun
}

// CaretState is the single focused caret/selection the whole store may
// hold at once, per spec.md §3.
type CaretState struct {
	TextID     EntityID
	CaretByte  int
	AnchorByte int
	FocusByte  int
}

// DefaultFontID and DefaultFontSize parameterize the synthetic default
// run upsertText creates for non-empty content with no caller-supplied
// runs (spec.md §4.3). Both are exported so the orchestrating package
// can point them at the FontManager's actual default font id.
var (
	DefaultFontID   uint32 = 0
	DefaultFontSize int32  = 16 * 64
)

// Store holds every text entity in the document.
type Store struct {
	entities map[EntityID]*entityState
	dirty    map[EntityID]struct{}
	caret    *CaretState
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		entities: make(map[EntityID]*entityState),
		dirty:    make(map[EntityID]struct{}),
	}
}

// UpsertText creates or replaces an entity, copying content verbatim.
// If no runs are provided and content is non-empty, a default run
// covering the whole content is synthesized. Resets the layout fields
// to the anchor point and marks the entity dirty.
func (s *Store) UpsertText(id EntityID, x, y, rotation float32, boxMode BoxMode, align Align, constraintWidth float32, runs []StyleRun, content []byte) {
	buf := make([]byte, len(content))
	copy(buf, content)

	var runCopy []StyleRun
	if len(runs) > 0 {
		runCopy = append(runCopy, runs...)
	} else if len(content) > 0 {
		runCopy = []StyleRun{{
			StartIndex: 0,
			Length:     len(content),
			FontID:     DefaultFontID,
			FontSize:   DefaultFontSize,
			ColorRGBA:  0xFFFFFFFF,
		}}
	}

	es := &entityState{
		entity: Entity{
			ID:              id,
			X:               x,
			Y:               y,
			Rotation:        rotation,
			BoxMode:         boxMode,
			Align:           align,
			ConstraintWidth: constraintWidth,
			Bounds: LayoutBounds{
				MinX: x, MinY: y, MaxX: x, MaxY: y,
			},
		},
		content: buf,
		runs:    runCopy,
	}
	s.entities[id] = es
	s.markDirty(id)
}

// DeleteText drops the entity, its content and runs, and clears any
// caret/selection targeting it.
func (s *Store) DeleteText(id EntityID) {
	delete(s.entities, id)
	delete(s.dirty, id)
	if s.caret != nil && s.caret.TextID == id {
		s.caret = nil
	}
}

// GetContent returns a read-only view of an entity's content.
func (s *Store) GetContent(id EntityID) ([]byte, bool) {
	es, ok := s.entities[id]
	if !ok {
		return nil, false
	}
	return es.content, true
}

// GetRuns returns a read-only view of an entity's style runs.
func (s *Store) GetRuns(id EntityID) ([]StyleRun, bool) {
	es, ok := s.entities[id]
	if !ok {
		return nil, false
	}
	return es.runs, true
}

// GetEntity returns the entity header (anchor, box mode, bounds, …).
func (s *Store) GetEntity(id EntityID) (Entity, bool) {
	es, ok := s.entities[id]
	if !ok {
		return Entity{}, false
	}
	return es.entity, true
}

// HasText reports whether id is a live entity.
func (s *Store) HasText(id EntityID) bool {
	_, ok := s.entities[id]
	return ok
}

// GetAllTextIds returns every live entity id, in a deterministic
// (ascending) order.
func (s *Store) GetAllTextIds() []EntityID {
	ids := make([]EntityID, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func clampByte(b, max int) int {
	if b < 0 {
		return 0
	}
	if b > max {
		return max
	}
	return b
}

// InsertContent clamps byteIndex to [0, len], inserts text, adjusts
// runs per spec.md §4.3's insert rules, and marks the entity dirty.
func (s *Store) InsertContent(id EntityID, byteIndex int, text []byte) bool {
	es, ok := s.entities[id]
	if !ok {
		return false
	}
	p := clampByte(byteIndex, len(es.content))
	k := len(text)
	if k == 0 {
		return true
	}

	grown := make([]byte, 0, len(es.content)+k)
	grown = append(grown, es.content[:p]...)
	grown = append(grown, text...)
	grown = append(grown, es.content[p:]...)
	es.content = grown

	es.runs = adjustRunsOnInsert(es.runs, p, k)
	s.markDirty(id)
	return true
}

// startCountAt counts how many runs start exactly at p, so a run that
// itself starts at p can tell whether some OTHER run shares that start
// (only possible alongside a zero-length "typing attribute" run).
func startCountAt(runs []StyleRun, p int) int {
	n := 0
	for _, r := range runs {
		if r.StartIndex == p {
			n++
		}
	}
	return n
}

func adjustRunsOnInsert(runs []StyleRun, p, k int) []StyleRun {
	othersStartAtP := startCountAt(runs, p) > 1
	anyStartsAtP := startCountAt(runs, p) > 0
	expandedZero := false
	out := make([]StyleRun, 0, len(runs))
	for _, r := range runs {
		switch {
		case r.StartIndex == p && r.Length == 0 && !expandedZero:
			r.Length += k
			expandedZero = true
			out = append(out, r)
		case r.StartIndex == p && r.Length == 0:
			// Any other zero-length run at p is dropped.
			continue
		case r.StartIndex == p && r.Length > 0:
			if expandedZero || othersStartAtP {
				r.StartIndex += k
			} else {
				r.Length += k
			}
			out = append(out, r)
		case r.StartIndex > p:
			r.StartIndex += k
			out = append(out, r)
		case r.endIndex() > p:
			r.Length += k
			out = append(out, r)
		case r.endIndex() == p && !anyStartsAtP:
			r.Length += k
			out = append(out, r)
		default:
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartIndex < out[j].StartIndex })
	return out
}

// DeleteContent clamps [startByte, endByte), no-ops on an empty range,
// removes the bytes, adjusts runs per spec.md §4.3's delete rules, and
// marks the entity dirty.
func (s *Store) DeleteContent(id EntityID, startByte, endByte int) bool {
	es, ok := s.entities[id]
	if !ok {
		return false
	}
	start := clampByte(startByte, len(es.content))
	end := clampByte(endByte, len(es.content))
	if start > end {
		start, end = end, start
	}
	if start == end {
		return true
	}

	shrunk := make([]byte, 0, len(es.content)-(end-start))
	shrunk = append(shrunk, es.content[:start]...)
	shrunk = append(shrunk, es.content[end:]...)
	es.content = shrunk

	es.runs = adjustRunsOnDelete(es.runs, start, end)
	s.markDirty(id)
	return true
}

func adjustRunsOnDelete(runs []StyleRun, s, e int) []StyleRun {
	n := e - s
	out := make([]StyleRun, 0, len(runs))
	for _, r := range runs {
		rs, re := r.StartIndex, r.endIndex()
		switch {
		case re <= s:
			// Entirely before s: unchanged.
			out = append(out, r)
		case rs >= e:
			// Entirely after e: shift start left by n.
			r.StartIndex -= n
			out = append(out, r)
		case rs >= s && re <= e:
			// Entirely within [s,e): remove.
			continue
		case rs <= s && re >= e:
			// Contains [s,e): shrink by n.
			r.Length -= n
			out = append(out, r)
		case rs < s && re > s && re <= e:
			// Partial left overlap: truncate at s.
			r.Length = s - rs
			out = append(out, r)
		case rs >= s && rs < e && re > e:
			// Partial right overlap: snap start to s, shrink by overlap.
			overlap := e - rs
			r.StartIndex = s
			r.Length -= overlap
			out = append(out, r)
		default:
			out = append(out, r)
		}
	}
	return out
}

// UpdateRun replaces the run at index with run and marks the entity
// dirty.
func (s *Store) UpdateRun(id EntityID, index int, run StyleRun) bool {
	es, ok := s.entities[id]
	if !ok || index < 0 || index >= len(es.runs) {
		return false
	}
	es.runs[index] = run
	s.markDirty(id)
	return true
}

// SetRuns replaces every run for id and marks the entity dirty.
func (s *Store) SetRuns(id EntityID, runs []StyleRun) bool {
	es, ok := s.entities[id]
	if !ok {
		return false
	}
	es.runs = append([]StyleRun(nil), runs...)
	s.markDirty(id)
	return true
}

// SetConstraintWidth sets the entity's constraint width, forces the box
// mode to FixedWidth (a constraint on an AutoWidth box would be inert),
// and marks the entity dirty.
func (s *Store) SetConstraintWidth(id EntityID, w float32) bool {
	es, ok := s.entities[id]
	if !ok {
		return false
	}
	es.entity.ConstraintWidth = w
	es.entity.BoxMode = FixedWidth
	s.markDirty(id)
	return true
}

// SetLayoutResult is called by the layout engine to write bounds back
// and must NOT mark the entity dirty — marking dirty here would create
// an infinite layout loop (spec.md §4.3).
func (s *Store) SetLayoutResult(id EntityID, bounds LayoutBounds) bool {
	es, ok := s.entities[id]
	if !ok {
		return false
	}
	es.entity.Bounds = bounds
	return true
}

// SetCaret sets the store's single caret, clamping byte to the
// entity's content length.
func (s *Store) SetCaret(id EntityID, byteOffset int) bool {
	es, ok := s.entities[id]
	if !ok {
		return false
	}
	b := clampByte(byteOffset, len(es.content))
	s.caret = &CaretState{TextID: id, CaretByte: b, AnchorByte: b, FocusByte: b}
	return true
}

// SetSelection sets the store's single selection, clamping both ends
// to the entity's content length and swapping them so anchor ≤ focus.
func (s *Store) SetSelection(id EntityID, start, end int) bool {
	es, ok := s.entities[id]
	if !ok {
		return false
	}
	a := clampByte(start, len(es.content))
	f := clampByte(end, len(es.content))
	if a > f {
		a, f = f, a
	}
	s.caret = &CaretState{TextID: id, CaretByte: f, AnchorByte: a, FocusByte: f}
	return true
}

// GetCaretState returns the store's single caret/selection, if any.
func (s *Store) GetCaretState() (CaretState, bool) {
	if s.caret == nil {
		return CaretState{}, false
	}
	return *s.caret, true
}

// ClearCaretState drops the store's caret/selection.
func (s *Store) ClearCaretState() {
	s.caret = nil
}

func (s *Store) markDirty(id EntityID) {
	s.dirty[id] = struct{}{}
}

// MarkDirty inserts id into the dirty set.
func (s *Store) MarkDirty(id EntityID) {
	s.markDirty(id)
}

// IsDirty reports whether id is currently in the dirty set, without
// consuming it — the single-id check ensureLayout needs to decide
// whether a cached layout is stale (spec.md §4.5).
func (s *Store) IsDirty(id EntityID) bool {
	_, ok := s.dirty[id]
	return ok
}

// ClearDirtyOne removes a single id from the dirty set, for callers
// (ensureLayout) that lay out one entity at a time rather than
// draining the whole set via ConsumeDirtyIds.
func (s *Store) ClearDirtyOne(id EntityID) {
	delete(s.dirty, id)
}

// ConsumeDirtyIds empties the dirty set and returns a deterministic
// (ascending) snapshot of what it held.
func (s *Store) ConsumeDirtyIds() []EntityID {
	ids := make([]EntityID, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	s.dirty = make(map[EntityID]struct{})
	return ids
}
