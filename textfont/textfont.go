// SPDX-License-Identifier: Unlicense OR MIT

// Package textfont implements the FontManager role of spec.md §4.2: it
// owns loaded faces and their shaper-font twins, resolves families and
// bold/italic variants, reports scaled metrics, and sets per-face pixel
// size. It plays the role gio's text.Shaper plays for face management,
// generalized to the spec's explicit family→ids multimap and exact-
// match variant resolution.
package textfont

import (
	"fmt"

	"github.com/vectorcad/textcore/outline"
	"github.com/vectorcad/textcore/shape"
	"golang.org/x/image/math/fixed"
)

// FontID identifies a loaded font. Zero means "the default font", the
// first successfully loaded face, per spec.md §3.
type FontID uint32

// Metrics holds scaled, pixel-space metrics for a given font size,
// the scaledMetrics role of spec.md §4.2.
type Metrics struct {
	UnitsPerEM         uint16
	Ascender           fixed.Int26_6
	Descender          fixed.Int26_6
	LineGap            fixed.Int26_6
	UnderlinePosition  fixed.Int26_6
	UnderlineThickness fixed.Int26_6
}

type handle struct {
	id         FontID
	family     string
	bold       bool
	italic     bool
	face       outline.Face
	shaperFont shape.Font
	metrics    outline.Metrics
	sizePx     fixed.Int26_6
}

// Manager owns every loaded font handle, the family→ids multimap, and
// the default font id, exactly the state spec.md §4.2 assigns to the
// FontManager.
type Manager struct {
	handles    map[FontID]*handle
	families   map[string][]FontID
	nextID     FontID
	defaultID  FontID
	hasDefault bool
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{
		handles:  make(map[FontID]*handle),
		families: make(map[string][]FontID),
		nextID:   1,
	}
}

// Load parses font bytes, opens a face via the outline service, wraps a
// shaper-side twin, extracts metrics, and registers the new font under
// familyName — the load operation of spec.md §4.2. Returns 0 on any
// service failure (malformed font data), never panics.
func (m *Manager) Load(src []byte, familyName string, bold, italic bool) FontID {
	face, err := outline.Parse(src)
	if err != nil {
		return 0
	}
	id := m.nextID
	m.nextID++
	return m.register(id, face, familyName, bold, italic)
}

// RegisterExisting is Load with a caller-chosen id; it rejects id
// collisions with an already-registered handle, per spec.md §4.2.
func (m *Manager) RegisterExisting(id FontID, src []byte, familyName string, bold, italic bool) (FontID, error) {
	if _, exists := m.handles[id]; exists {
		return 0, fmt.Errorf("textfont: id %d already registered", id)
	}
	face, err := outline.Parse(src)
	if err != nil {
		return 0, fmt.Errorf("textfont: %w", err)
	}
	if id >= m.nextID {
		m.nextID = id + 1
	}
	return m.register(id, face, familyName, bold, italic), nil
}

func (m *Manager) register(id FontID, face outline.Face, familyName string, bold, italic bool) FontID {
	h := &handle{
		id:         id,
		family:     familyName,
		bold:       bold,
		italic:     italic,
		face:       face,
		shaperFont: shape.NewFont(face.Raw()),
		metrics:    face.Metrics(),
	}
	m.handles[id] = h
	m.families[familyName] = append(m.families[familyName], id)
	if !m.hasDefault {
		m.defaultID = id
		m.hasDefault = true
	}
	return id
}

// Unload destroys a face + shaper twin, removes it from the family map,
// and reassigns the default id if it was the one unloaded.
func (m *Manager) Unload(id FontID) {
	h, ok := m.handles[id]
	if !ok {
		return
	}
	delete(m.handles, id)
	ids := m.families[h.family]
	for i, fid := range ids {
		if fid == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(m.families, h.family)
	} else {
		m.families[h.family] = ids
	}
	if m.hasDefault && m.defaultID == id {
		m.hasDefault = false
		for other := range m.handles {
			m.defaultID = other
			m.hasDefault = true
			break
		}
	}
}

// resolve maps the reserved id 0 to the current default font; every
// Manager entry point routes through it so "fontId == 0 means the
// default font" holds at this boundary (spec.md §3) without callers
// having to know which font became the default.
func (m *Manager) resolve(id FontID) FontID {
	if id == 0 && m.hasDefault {
		return m.defaultID
	}
	return id
}

// GetVariant finds baseFontId's family and returns the id whose
// (bold, italic) exactly equals the requested pair, falling back to
// baseFontId when no exact match is registered — exact match only, per
// spec.md §4.2; no coercion to a nearby style.
func (m *Manager) GetVariant(baseFontID FontID, bold, italic bool) FontID {
	resolved := m.resolve(baseFontID)
	base, ok := m.handles[resolved]
	if !ok {
		return baseFontID
	}
	for _, id := range m.families[base.family] {
		h := m.handles[id]
		if h.bold == bold && h.italic == italic {
			return id
		}
	}
	return resolved
}

// ScaledMetrics scales the handle's design-unit metrics by
// fontSize/unitsPerEM. Unknown ids synthesize the fallback metrics
// spec.md §4.2 specifies so callers never have to special-case a
// missing font.
func (m *Manager) ScaledMetrics(id FontID, fontSize fixed.Int26_6) Metrics {
	h, ok := m.handles[m.resolve(id)]
	if !ok {
		s := float32(fontSize) / 64
		return Metrics{
			UnitsPerEM:         1000,
			Ascender:           fixed.Int26_6(0.8 * s * 64),
			Descender:          fixed.Int26_6(-0.2 * s * 64),
			LineGap:            fixed.Int26_6(0.1 * s * 64),
			UnderlinePosition:  fixed.Int26_6(-0.1 * s * 64),
			UnderlineThickness: fixed.Int26_6(0.05 * s * 64),
		}
	}
	scale := float32(fontSize) / float32(h.metrics.UnitsPerEM) / 64
	return Metrics{
		UnitsPerEM:         h.metrics.UnitsPerEM,
		Ascender:           scaleToFixed(h.metrics.Ascender, scale),
		Descender:          scaleToFixed(h.metrics.Descender, scale),
		LineGap:            scaleToFixed(h.metrics.LineGap, scale),
		UnderlinePosition:  scaleToFixed(h.metrics.UnderlinePosition, scale),
		UnderlineThickness: scaleToFixed(h.metrics.UnderlineThickness, scale),
	}
}

func scaleToFixed(designUnits float32, scale float32) fixed.Int26_6 {
	return fixed.Int26_6(designUnits * scale * 64)
}

// SetFontSize records fontSize (26.6 fixed-point pixels, so 1pt == 1px)
// as id's current size and calls the shaper twin's NotifyFaceChanged
// hook. The underlying face holds no size state of its own: shaping
// takes its size from each Shape call. Fractional sizes are preserved;
// there is no separate shaper-scale API to desync from the face.
func (m *Manager) SetFontSize(id FontID, fontSize fixed.Int26_6) bool {
	h, ok := m.handles[m.resolve(id)]
	if !ok {
		return false
	}
	h.sizePx = fontSize
	h.shaperFont.NotifyFaceChanged()
	return true
}

// FontSize returns the pixel size last set via SetFontSize.
func (m *Manager) FontSize(id FontID) fixed.Int26_6 {
	h, ok := m.handles[m.resolve(id)]
	if !ok {
		return 0
	}
	return h.sizePx
}

// DefaultID returns the current default font id and whether one exists.
func (m *Manager) DefaultID() (FontID, bool) {
	return m.defaultID, m.hasDefault
}

// Face returns the outline.Face backing id, for callers (the atlas,
// the layout engine) that need direct glyph/outline access.
func (m *Manager) Face(id FontID) (outline.Face, bool) {
	h, ok := m.handles[m.resolve(id)]
	if !ok {
		return outline.Face{}, false
	}
	return h.face, true
}

// ShaperFont returns the shape.Font twin backing id.
func (m *Manager) ShaperFont(id FontID) (shape.Font, bool) {
	h, ok := m.handles[m.resolve(id)]
	if !ok {
		return shape.Font{}, false
	}
	return h.shaperFont, true
}

// Variant reports whether id was registered bold/italic.
func (m *Manager) Variant(id FontID) (bold, italic bool, ok bool) {
	h, exists := m.handles[m.resolve(id)]
	if !exists {
		return false, false, false
	}
	return h.bold, h.italic, true
}
