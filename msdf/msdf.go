// SPDX-License-Identifier: Unlicense OR MIT

// Package msdf implements the "MSDF generator" role of spec.md §6: turn
// a decomposed vector glyph outline, a projection, and a pixel
// distance range into a distance-field bitmap the atlas can pack.
//
// The reference system's msdfgen assigns each outline edge to one of
// three color channels by corner angle, so that channel-median
// reconstruction sharpens corners at small sizes. No redistributable Go
// port of that algorithm is present anywhere in this module's retrieval
// pack (see DESIGN.md); this adapter instead computes one true signed
// distance field and duplicates it across all three channels, matching
// the grid-rasterize-then-distance idiom the pack's own from-scratch
// SDF generator uses. The result is a slightly softer corner at very
// small sizes than a real MSDF but an otherwise correct, crisp distance
// field, and the wire encoding (§6) is unaffected.
package msdf

import (
	"math"

	"github.com/vectorcad/textcore/outline"
)

// Bitmap is a generated distance field, 3 channels (duplicated), 8 bits
// per channel, row-major, bottom-up: row 0 is the bottom scanline, the
// same orientation the reference msdfgen produces. Consumers copying
// into a top-down buffer must flip rows (the atlas does).
type Bitmap struct {
	Width, Height int
	Pix           []byte // len == Width*Height*3
}

// segment is an outline edge flattened to line segments for distance
// queries (quadratics/cubics are flattened at generation time so the
// hot distance loop only ever does point-to-segment math).
type segment struct {
	x0, y0, x1, y1 float64
}

// Generate rasterizes a glyph's decomposed outline into a Bitmap of the
// given pixel size. Design units are normalized by unitsPerEM; margin is
// the padding (in bitmap pixels) reserved around the glyph's bounding
// box, equal to pixelRange per spec.md §4.4.
func Generate(segs []outline.Segment, bounds outline.Bounds, unitsPerEM uint16, width, height int, margin float64) Bitmap {
	bmp := Bitmap{Width: width, Height: height, Pix: make([]byte, width*height*3)}
	flat := flatten(segs)
	if len(flat) == 0 {
		return bmp
	}

	upem := float64(unitsPerEM)
	bw := float64(bounds.Right-bounds.Left) / upem
	bh := float64(bounds.Top-bounds.Bottom) / upem
	// Map the outline's bounding box into the bitmap with margin padding
	// on every side, matching spec.md's projection description.
	innerW := float64(width) - 2*margin
	innerH := float64(height) - 2*margin
	scaleX, scaleY := 1.0, 1.0
	if bw > 0 {
		scaleX = innerW / bw
	}
	if bh > 0 {
		scaleY = innerH / bh
	}

	toBitmap := func(ux, uy float64) (float64, float64) {
		ex := ux/upem - float64(bounds.Left)/upem
		ey := uy/upem - float64(bounds.Bottom)/upem
		return margin + ex*scaleX, margin + ey*scaleY
	}

	bpoints := make([]segment, len(flat))
	for i, s := range flat {
		x0, y0 := toBitmap(s.x0, s.y0)
		x1, y1 := toBitmap(s.x1, s.y1)
		bpoints[i] = segment{x0, y0, x1, y1}
	}

	for row := 0; row < height; row++ {
		cy := float64(row) + 0.5
		for col := 0; col < width; col++ {
			cx := float64(col) + 0.5
			d := signedDistance(bpoints, cx, cy)
			// Normalize distance in bitmap pixels to the [-1,1] range
			// implied by pixelRange, then to [0,1] as the wire contract
			// (§6, §4.4) requires: clamp(d/pixelRange + 0.5, 0, 1). The
			// field saturates at half a pixel range from the outline, so
			// with the margin equal to the pixel range it is already
			// saturated before the bitmap border.
			pixelRange := margin
			if pixelRange <= 0 {
				pixelRange = 1
			}
			v := d/pixelRange + 0.5
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			c := byte(v*255 + 0.5)
			idx := (row*width + col) * 3
			bmp.Pix[idx] = c
			bmp.Pix[idx+1] = c
			bmp.Pix[idx+2] = c
		}
	}
	return bmp
}

// flatten converts quadratic/cubic segments into straight line segments
// by fixed subdivision, sufficient for MSDF-sized bitmaps (the error is
// sub-pixel at typical msdfSize values of 32-64).
func flatten(segs []outline.Segment) []segment {
	var (
		out       []segment
		cur       [2]float64
		start     [2]float64
		haveStart bool
	)
	lineTo := func(x, y float64) {
		out = append(out, segment{cur[0], cur[1], x, y})
		cur = [2]float64{x, y}
	}
	closeContour := func() {
		if haveStart && cur != start {
			out = append(out, segment{cur[0], cur[1], start[0], start[1]})
		}
	}
	const steps = 8
	for _, s := range segs {
		switch s.Op {
		case outline.OpMoveTo:
			// Each MoveTo opens a new contour; the previous one must be
			// closed or inner contours (the hole of an 'o') leak winding.
			closeContour()
			cur = [2]float64{fx(s.Args[0].X), fx(s.Args[0].Y)}
			start = cur
			haveStart = true
		case outline.OpLineTo:
			lineTo(fx(s.Args[0].X), fx(s.Args[0].Y))
		case outline.OpQuadTo:
			p1 := [2]float64{fx(s.Args[0].X), fx(s.Args[0].Y)}
			p2 := [2]float64{fx(s.Args[1].X), fx(s.Args[1].Y)}
			for i := 1; i <= steps; i++ {
				t := float64(i) / steps
				x, y := quadAt(cur, p1, p2, t)
				lineTo(x, y)
			}
		case outline.OpCubeTo:
			p1 := [2]float64{fx(s.Args[0].X), fx(s.Args[0].Y)}
			p2 := [2]float64{fx(s.Args[1].X), fx(s.Args[1].Y)}
			p3 := [2]float64{fx(s.Args[2].X), fx(s.Args[2].Y)}
			for i := 1; i <= steps; i++ {
				t := float64(i) / steps
				x, y := cubicAt(cur, p1, p2, p3, t)
				lineTo(x, y)
			}
		}
	}
	closeContour()
	return out
}

func fx(v interface{ Round() int }) float64 { return float64(v.Round()) }

func quadAt(p0, p1, p2 [2]float64, t float64) (float64, float64) {
	mt := 1 - t
	x := mt*mt*p0[0] + 2*mt*t*p1[0] + t*t*p2[0]
	y := mt*mt*p0[1] + 2*mt*t*p1[1] + t*t*p2[1]
	return x, y
}

func cubicAt(p0, p1, p2, p3 [2]float64, t float64) (float64, float64) {
	mt := 1 - t
	x := mt*mt*mt*p0[0] + 3*mt*mt*t*p1[0] + 3*mt*t*t*p2[0] + t*t*t*p3[0]
	y := mt*mt*mt*p0[1] + 3*mt*mt*t*p1[1] + 3*mt*t*t*p2[1] + t*t*t*p3[1]
	return x, y
}

// signedDistance returns the distance from (x,y) to the nearest edge,
// positive when the point lies inside the contour (nonzero winding) and
// negative outside, so the encoded field reads >0.5 inside the glyph.
func signedDistance(segs []segment, x, y float64) float64 {
	minDist := math.Inf(1)
	winding := 0
	for _, s := range segs {
		d := pointSegmentDistance(x, y, s.x0, s.y0, s.x1, s.y1)
		if d < minDist {
			minDist = d
		}
		if (s.y0 <= y) != (s.y1 <= y) {
			t := (y - s.y0) / (s.y1 - s.y0)
			xCross := s.x0 + t*(s.x1-s.x0)
			if xCross > x {
				if s.y1 > s.y0 {
					winding++
				} else {
					winding--
				}
			}
		}
	}
	if winding != 0 {
		return minDist
	}
	return -minDist
}

func pointSegmentDistance(px, py, x0, y0, x1, y1 float64) float64 {
	dx, dy := x1-x0, y1-y0
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(px-x0, py-y0)
	}
	t := ((px-x0)*dx + (py-y0)*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	cx, cy := x0+t*dx, y0+t*dy
	return math.Hypot(px-cx, py-cy)
}
