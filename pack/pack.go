// SPDX-License-Identifier: Unlicense OR MIT

// Package pack implements a shelf-based rectangle packer for a fixed
// W×H canvas, as used by atlas to place MSDF glyph bitmaps.
package pack

import "image"

// Rect is an axis-aligned placement returned by Pack.
type Rect struct {
	Min, Max image.Point
}

// Dx returns the width of the rectangle.
func (r Rect) Dx() int { return r.Max.X - r.Min.X }

// Dy returns the height of the rectangle.
func (r Rect) Dy() int { return r.Max.Y - r.Min.Y }

// shelf is a horizontal strip of the canvas that glyphs of similar
// height are packed into, left to right.
type shelf struct {
	y         int
	height    int
	usedWidth int
}

// Packer packs rectangles onto a fixed-size canvas using best-fit-height
// shelves. It is append-only: individual rectangles cannot be freed.
// Call Reset to reclaim the whole canvas.
type Packer struct {
	width, height int
	padding       int

	shelves    []shelf
	nextY      int
	usedPixels int
}

// NewPacker constructs a Packer over a width×height canvas with the given
// padding inserted around every packed rectangle.
func NewPacker(width, height, padding int) *Packer {
	p := &Packer{width: width, height: height, padding: padding}
	p.Reset()
	return p
}

// Reset empties all shelves, reclaiming the whole canvas.
func (p *Packer) Reset() {
	p.shelves = p.shelves[:0]
	p.nextY = p.padding
	p.usedPixels = 0
}

// UsedPixels returns the sum of unpadded w*h areas successfully packed
// since the last Reset.
func (p *Packer) UsedPixels() int { return p.usedPixels }

// Width and Height return the canvas dimensions.
func (p *Packer) Width() int  { return p.width }
func (p *Packer) Height() int { return p.height }

// Pack places a w×h rectangle and returns its position, or reports that
// it does not fit. A zero-area request (w==0 or h==0) always "succeeds"
// with a zero-sized rect at the origin, matching spec.md's fail-fast rule
// for glyphs with no visible area (e.g. the space character).
func (p *Packer) Pack(w, h int) (Rect, bool) {
	if w == 0 || h == 0 {
		return Rect{}, true
	}
	if w+p.padding > p.width || h+p.padding > p.height {
		return Rect{}, false
	}

	bestIdx := -1
	bestWaste := -1
	needW, needH := w+p.padding, h+p.padding
	for i := range p.shelves {
		s := &p.shelves[i]
		if s.height < needH {
			continue
		}
		if s.usedWidth+needW > p.width {
			continue
		}
		waste := s.height - needH
		if bestIdx == -1 || waste < bestWaste {
			bestIdx = i
			bestWaste = waste
			if waste == 0 {
				break
			}
		}
	}

	if bestIdx == -1 {
		if p.nextY+needH > p.height {
			return Rect{}, false
		}
		p.shelves = append(p.shelves, shelf{y: p.nextY, height: needH})
		bestIdx = len(p.shelves) - 1
		p.nextY += needH
	}

	s := &p.shelves[bestIdx]
	x := s.usedWidth + p.padding
	y := s.y
	s.usedWidth += needW
	p.usedPixels += w * h

	return Rect{
		Min: image.Point{X: x, Y: y},
		Max: image.Point{X: x + w, Y: y + h},
	}, true
}
