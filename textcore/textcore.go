// SPDX-License-Identifier: Unlicense OR MIT

// Package textcore is the top-level orchestration of spec.md §6: it
// decodes the six binary command opcodes into calls against store and
// enginelayout, and exposes the queryable outputs a host application
// reads back (layout bounds, caret/selection geometry, hit results,
// navigation indices, style snapshots, the atlas texture, and the
// per-glyph quad stream). It plays the role gio's app/io packages play
// in translating a wire-level event into calls against gio's own
// widget/op trees, adapted to this core's five internal components
// instead of gio's retained-mode op list.
package textcore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vectorcad/textcore/atlas"
	"github.com/vectorcad/textcore/enginelayout"
	"github.com/vectorcad/textcore/outline"
	"github.com/vectorcad/textcore/store"
	"github.com/vectorcad/textcore/textfont"
)

// Opcode identifies one of the binary commands spec.md §6 defines.
type Opcode byte

const (
	OpTextUpsert       Opcode = 0x20
	OpTextDelete       Opcode = 0x21
	OpTextSetCaret     Opcode = 0x22
	OpTextSetSelection Opcode = 0x23
	OpTextInsert       Opcode = 0x24
	OpTextDeleteRange  Opcode = 0x25
)

// EventKind identifies one of the observer events spec.md §6 lists as
// a queryable output.
type EventKind int

const (
	DocChanged EventKind = iota
	EntityCreated
	EntityChanged
	EntityDeleted
	SelectionChanged
	// HistoryChanged is exposed for host parity with spec.md §6's event
	// list but is never emitted by the core itself: undo/history is an
	// external collaborator per spec.md §1, so only the host's
	// snapshot/undo layer ever produces it.
	HistoryChanged
)

// Event is one observer notification produced while applying commands.
type Event struct {
	Kind EventKind
	ID   store.EntityID
}

// Engine wires the five core components together behind the wire
// protocol and query surface: Store owns entities/content/runs/caret,
// Fonts resolves faces and variants, Layout shapes and breaks lines,
// Atlas rasterizes and packs glyphs.
type Engine struct {
	Store  *store.Store
	Fonts  *textfont.Manager
	Layout *enginelayout.Engine
	Atlas  *atlas.Atlas

	events []Event
}

// NewEngine constructs an Engine over a fresh Store and the caller's
// Fonts and Atlas (both typically shared across many Engines' worth of
// scene content in the host, but an Engine owns exactly one Store and
// one layout Engine per spec.md §5's single-threaded, single-writer
// model).
func NewEngine(fonts *textfont.Manager, atl *atlas.Atlas) *Engine {
	st := store.NewStore()
	// Runs synthesized by UpsertText for run-less content carry
	// store.DefaultFontID; point it at the manager's actual default so
	// those runs shape with a real face rather than the reserved id 0.
	if def, ok := fonts.DefaultID(); ok {
		store.DefaultFontID = uint32(def)
	}
	return &Engine{
		Store:  st,
		Fonts:  fonts,
		Layout: enginelayout.NewEngine(st, fonts),
		Atlas:  atl,
	}
}

func (e *Engine) emit(kind EventKind, id store.EntityID) {
	e.events = append(e.events, Event{Kind: kind, ID: id})
}

// DrainEvents returns every event queued since the last drain and
// empties the queue, mirroring store.ConsumeDirtyIds's consume-once
// contract.
func (e *Engine) DrainEvents() []Event {
	evs := e.events
	e.events = nil
	return evs
}

// ApplyCommands decodes and applies every command in data in order,
// per spec.md §6's "commands are applied in order" caller invariant.
// A malformed trailing command stops processing and returns an error;
// every command fully consumed before the error has already been
// applied (no rollback — the wire protocol has no transactional
// envelope, matching spec.md §7's "never crash the core for bad caller
// data" stance: the caller sees a short read, not corrupted state).
func (e *Engine) ApplyCommands(data []byte) error {
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		var op byte
		if err := binary.Read(r, binary.LittleEndian, &op); err != nil {
			return fmt.Errorf("textcore: read opcode: %w", err)
		}
		if err := e.applyOne(Opcode(op), r); err != nil {
			return fmt.Errorf("textcore: opcode 0x%02x: %w", op, err)
		}
	}
	return nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readF32(r *bytes.Reader) (float32, error) {
	var v float32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readU8(r *bytes.Reader) (uint8, error) {
	return r.ReadByte()
}

func (e *Engine) applyOne(op Opcode, r *bytes.Reader) error {
	switch op {
	case OpTextUpsert:
		return e.applyUpsert(r)
	case OpTextDelete:
		id, err := readU32(r)
		if err != nil {
			return err
		}
		existed := e.Store.HasText(store.EntityID(id))
		e.Store.DeleteText(store.EntityID(id))
		if existed {
			e.emit(EntityDeleted, store.EntityID(id))
			e.emit(DocChanged, store.EntityID(id))
		}
		return nil
	case OpTextSetCaret:
		id, err := readU32(r)
		if err != nil {
			return err
		}
		byteIndex, err := readU32(r)
		if err != nil {
			return err
		}
		if e.Store.SetCaret(store.EntityID(id), int(byteIndex)) {
			e.emit(SelectionChanged, store.EntityID(id))
		}
		return nil
	case OpTextSetSelection:
		id, err := readU32(r)
		if err != nil {
			return err
		}
		anchor, err := readU32(r)
		if err != nil {
			return err
		}
		focus, err := readU32(r)
		if err != nil {
			return err
		}
		if e.Store.SetSelection(store.EntityID(id), int(anchor), int(focus)) {
			e.emit(SelectionChanged, store.EntityID(id))
		}
		return nil
	case OpTextInsert:
		id, err := readU32(r)
		if err != nil {
			return err
		}
		byteIndex, err := readU32(r)
		if err != nil {
			return err
		}
		n, err := readU32(r)
		if err != nil {
			return err
		}
		buf := make([]byte, n)
		if _, err := readFull(r, buf); err != nil {
			return err
		}
		if e.Store.InsertContent(store.EntityID(id), int(byteIndex), buf) {
			e.emit(EntityChanged, store.EntityID(id))
			e.emit(DocChanged, store.EntityID(id))
		}
		return nil
	case OpTextDeleteRange:
		id, err := readU32(r)
		if err != nil {
			return err
		}
		start, err := readU32(r)
		if err != nil {
			return err
		}
		end, err := readU32(r)
		if err != nil {
			return err
		}
		if e.Store.DeleteContent(store.EntityID(id), int(start), int(end)) {
			e.emit(EntityChanged, store.EntityID(id))
			e.emit(DocChanged, store.EntityID(id))
		}
		return nil
	default:
		return fmt.Errorf("unknown opcode")
	}
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	return io.ReadFull(r, buf)
}

// applyUpsert decodes TEXT_UPSERT's header, run payloads, and trailing
// content, then replaces the entity atomically via Store.UpsertText
// (spec.md §6's "a single TEXT_UPSERT replaces the entity's content
// and runs atomically").
func (e *Engine) applyUpsert(r *bytes.Reader) error {
	id, err := readU32(r)
	if err != nil {
		return err
	}
	x, err := readF32(r)
	if err != nil {
		return err
	}
	y, err := readF32(r)
	if err != nil {
		return err
	}
	rotation, err := readF32(r)
	if err != nil {
		return err
	}
	boxMode, err := readU8(r)
	if err != nil {
		return err
	}
	align, err := readU8(r)
	if err != nil {
		return err
	}
	constraintWidth, err := readF32(r)
	if err != nil {
		return err
	}
	runCount, err := readU32(r)
	if err != nil {
		return err
	}
	runs := make([]store.StyleRun, 0, runCount)
	for i := uint32(0); i < runCount; i++ {
		startIndex, err := readU32(r)
		if err != nil {
			return err
		}
		length, err := readU32(r)
		if err != nil {
			return err
		}
		fontID, err := readU32(r)
		if err != nil {
			return err
		}
		fontSize, err := readF32(r)
		if err != nil {
			return err
		}
		colorRGBA, err := readU32(r)
		if err != nil {
			return err
		}
		flags, err := readU8(r)
		if err != nil {
			return err
		}
		runs = append(runs, store.StyleRun{
			StartIndex: int(startIndex),
			Length:     int(length),
			FontID:     fontID,
			FontSize:   floatToFixed(fontSize),
			ColorRGBA:  colorRGBA,
			Flags:      store.Flags(flags),
		})
	}
	contentLen, err := readU32(r)
	if err != nil {
		return err
	}
	content := make([]byte, contentLen)
	if _, err := readFull(r, content); err != nil {
		return err
	}

	existed := e.Store.HasText(store.EntityID(id))
	e.Store.UpsertText(store.EntityID(id), x, y, rotation, store.BoxMode(boxMode), store.Align(align), constraintWidth, runs, content)
	if existed {
		e.emit(EntityChanged, store.EntityID(id))
	} else {
		e.emit(EntityCreated, store.EntityID(id))
	}
	e.emit(DocChanged, store.EntityID(id))
	return nil
}

// floatToFixed converts a wire fontSize(f32) point size to the store's
// 26.6 fixed-point pixel representation.
func floatToFixed(pt float32) int32 {
	return int32(pt*64 + 0.5)
}

// StyleSnapshot is the "style snapshot at caret" queryable output of
// spec.md §6: the StyleRun covering the store's single caret/focus
// byte, or the entity's last run if the caret sits at end-of-content.
type StyleSnapshot struct {
	FontID    uint32
	FontSize  int32
	ColorRGBA uint32
	Flags     store.Flags
	Found     bool
}

// StyleAtCaret reports the style in effect at the store's current
// caret/selection focus.
func (e *Engine) StyleAtCaret() StyleSnapshot {
	cs, ok := e.Store.GetCaretState()
	if !ok {
		return StyleSnapshot{}
	}
	runs, ok := e.Store.GetRuns(cs.TextID)
	if !ok || len(runs) == 0 {
		return StyleSnapshot{}
	}
	b := cs.FocusByte
	for _, run := range runs {
		if b >= run.StartIndex && b < run.StartIndex+run.Length {
			return StyleSnapshot{run.FontID, run.FontSize, run.ColorRGBA, run.Flags, true}
		}
	}
	last := runs[len(runs)-1]
	return StyleSnapshot{last.FontID, last.FontSize, last.ColorRGBA, last.Flags, true}
}

// EnsureLayout lays out id iff it is dirty or uncached, per
// enginelayout.Engine.EnsureLayout.
func (e *Engine) EnsureLayout(id store.EntityID) bool { return e.Layout.EnsureLayout(id) }

// LayoutDirtyTexts lays out every dirty entity and returns the ids
// processed, per enginelayout.Engine.LayoutDirtyTexts.
func (e *Engine) LayoutDirtyTexts() []store.EntityID { return e.Layout.LayoutDirtyTexts() }

// Bounds returns an entity's cached layout bounds.
func (e *Engine) Bounds(id store.EntityID) (store.LayoutBounds, bool) {
	ent, ok := e.Store.GetEntity(id)
	if !ok {
		return store.LayoutBounds{}, false
	}
	return ent.Bounds, true
}

func findRunAt(runs []store.StyleRun, byteIndex int) (store.StyleRun, bool) {
	for _, r := range runs {
		if byteIndex >= r.StartIndex && byteIndex < r.StartIndex+r.Length {
			return r, true
		}
	}
	if len(runs) > 0 {
		return runs[len(runs)-1], true
	}
	return store.StyleRun{}, false
}

func colorToFloats(c uint32) (r, g, b, a float32) {
	r = float32((c>>24)&0xFF) / 255
	g = float32((c>>16)&0xFF) / 255
	b = float32((c>>8)&0xFF) / 255
	a = float32(c&0xFF) / 255
	return
}

// BuildQuadStream builds the quad stream queryable output of spec.md
// §6 for one entity: 9 floats (x, y, z, u, v, r, g, b, a) per vertex,
// 6 vertices per glyph (two triangles), skipping glyphs with no atlas
// footprint (e.g. spaces). It plays the role op/paint's quad emission
// plays for gio's own text-as-images drawing, adapted to the atlas's
// EM-normalized Entry metrics instead of gio's image.Image glyphs.
func (e *Engine) BuildQuadStream(id store.EntityID) []float32 {
	l, ok := e.Layout.Layout(id)
	if !ok {
		return nil
	}
	ent, ok := e.Store.GetEntity(id)
	if !ok {
		return nil
	}
	runs, _ := e.Store.GetRuns(id)

	out := make([]float32, 0, len(l.Glyphs)*6*9)
	yTop := ent.Y
	for _, ln := range l.Lines {
		x := ent.X + ln.XOffset
		baseline := yTop - ln.Ascent
		for gi := ln.StartGlyph; gi < ln.EndGlyph; gi++ {
			g := l.Glyphs[gi]
			run, found := findRunAt(runs, g.ClusterIndex)
			if !found {
				x += g.Advance
				continue
			}
			entry, ok := e.Atlas.GetGlyph(g.FontID, outline.GID(g.GID), run.Flags)
			if ok && entry.Width > 0 && entry.Height > 0 {
				fontSize := float32(run.FontSize) / 64
				w := entry.Width * fontSize
				h := entry.Height * fontSize
				x0 := x + g.XOffset + entry.BearingX*fontSize
				yTopGlyph := baseline + g.YOffset + entry.BearingY*fontSize
				y0 := yTopGlyph - h
				x1 := x0 + w
				y1 := yTopGlyph
				cr, cg, cb, ca := colorToFloats(run.ColorRGBA)
				u0, v0 := entry.UV0[0], entry.UV0[1]
				u1, v1 := entry.UV1[0], entry.UV1[1]
				out = append(out,
					x0, y0, 0, u0, v1, cr, cg, cb, ca,
					x1, y0, 0, u1, v1, cr, cg, cb, ca,
					x1, y1, 0, u1, v0, cr, cg, cb, ca,
					x0, y0, 0, u0, v1, cr, cg, cb, ca,
					x1, y1, 0, u1, v0, cr, cg, cb, ca,
					x0, y1, 0, u0, v0, cr, cg, cb, ca,
				)
			}
			x += g.Advance
		}
		yTop -= ln.LineHeight
	}
	return out
}
