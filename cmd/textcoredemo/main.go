// SPDX-License-Identifier: Unlicense OR MIT

// Command textcoredemo is a smoke-test executable for the textcore
// engine: it loads a font file, upserts one sample text entity, drives
// one layout pass, and prints the resulting bounds and atlas stats. It
// is not part of textcore's public surface, grounded on cmd/gio/gio.go's
// flag-driven CLI shape.
package main

import (
	"bytes"
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	"github.com/vectorcad/textcore/atlas"
	"github.com/vectorcad/textcore/textcore"
	"github.com/vectorcad/textcore/textfont"
)

const (
	wireAutoWidth  uint8 = 0
	wireFixedWidth uint8 = 1
)

// buildUpsertCommand encodes one spec.md §6 TEXT_UPSERT command with a
// single default run spanning the whole content.
func buildUpsertCommand(id uint32, x, y float32, boxMode, align uint8, constraintWidth float32, fontID uint32, content string) []byte {
	var buf bytes.Buffer
	write := func(v any) { binary.Write(&buf, binary.LittleEndian, v) }
	buf.WriteByte(byte(textcore.OpTextUpsert))
	write(id)
	write(x)
	write(y)
	write(float32(0)) // rotation
	buf.WriteByte(boxMode)
	buf.WriteByte(align)
	write(constraintWidth)
	write(uint32(1)) // runCount
	write(uint32(0)) // run.startIndex
	write(uint32(len(content)))
	write(fontID)
	write(float32(16)) // fontSize
	write(uint32(0xFFFFFFFF))
	buf.WriteByte(0) // flags
	write(uint32(len(content)))
	buf.WriteString(content)
	return buf.Bytes()
}

func main() {
	fontPath := flag.String("font", "", "path to a TTF/OTF font file")
	content := flag.String("text", "Hello, textcore", "sample text to lay out")
	width := flag.Float64("width", 0, "constraint width in pixels (0 = AutoWidth)")
	flag.Parse()

	if *fontPath == "" {
		fmt.Fprintln(os.Stderr, "textcoredemo: -font is required")
		os.Exit(1)
	}
	fontBytes, err := os.ReadFile(*fontPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "textcoredemo: reading font: %v\n", err)
		os.Exit(1)
	}

	fonts := textfont.NewManager()
	fontID := fonts.Load(fontBytes, "demo", false, false)
	if fontID == 0 {
		fmt.Fprintln(os.Stderr, "textcoredemo: failed to load font")
		os.Exit(1)
	}

	atlasCfg := atlas.Config{Width: 1024, Height: 1024, Padding: 4, MSDFPixelRange: 4, MSDFSize: 32}
	atl := atlas.NewAtlas(atlasCfg, fonts)
	engine := textcore.NewEngine(fonts, atl)

	boxMode := wireAutoWidth
	constraintWidth := float32(0)
	if *width > 0 {
		boxMode = wireFixedWidth
		constraintWidth = float32(*width)
	}

	cmd := buildUpsertCommand(1, 0, 0, boxMode, 0, constraintWidth, uint32(fontID), *content)
	if err := engine.ApplyCommands(cmd); err != nil {
		fmt.Fprintf(os.Stderr, "textcoredemo: applying command: %v\n", err)
		os.Exit(1)
	}

	engine.LayoutDirtyTexts()
	engine.Atlas.PreloadString(fontID, *content)

	bounds, ok := engine.Bounds(1)
	if !ok {
		fmt.Fprintln(os.Stderr, "textcoredemo: no bounds for entity 1")
		os.Exit(1)
	}

	fmt.Printf("layout: width=%.2f height=%.2f bounds=(%.2f,%.2f)-(%.2f,%.2f)\n",
		bounds.LayoutWidth, bounds.LayoutHeight, bounds.MinX, bounds.MinY, bounds.MaxX, bounds.MaxY)
	fmt.Printf("atlas: %dx%d version=%d dirty=%v\n",
		engine.Atlas.Width(), engine.Atlas.Height(), engine.Atlas.Version(), engine.Atlas.IsDirty())

	quads := engine.BuildQuadStream(1)
	fmt.Printf("quad stream: %d floats (%d glyph quads)\n", len(quads), len(quads)/(9*6))
}
