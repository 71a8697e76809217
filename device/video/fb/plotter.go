package fb

import (
	"encoding/binary"

	"github.com/FacelessSociety/FacelessLoader2/device/video/console/font"
	"github.com/FacelessSociety/FacelessLoader2/firmware"
)

// Plotter renders font glyphs onto a 32bpp surface. A surface is either the
// framebuffer or the back buffer; both share the geometry of the
// framebuffer descriptor.
type Plotter struct {
	memory firmware.Memory
	font   *font.Font

	pitch  uint32
	height uint32
}

// NewPlotter returns a plotter that draws glyphs from f onto surfaces with
// the geometry described by d.
func NewPlotter(memory firmware.Memory, d *Descriptor, f *font.Font) *Plotter {
	return &Plotter{
		memory: memory,
		font:   f,
		pitch:  d.PixelsPerScanLine,
		height: d.Height,
	}
}

// PutChar draws the glyph for ch with its top-left corner at pixel (x, y)
// of the surface at physical address target. Only the glyph foreground is
// drawn; pixels outside the surface are clipped.
func (p *Plotter) PutChar(color uint32, ch byte, x, y uint32, target uint64) {
	glyph := p.font.Glyph(uint32(ch))
	if glyph == nil || x >= p.pitch || y >= p.height {
		return
	}

	surface, err := p.memory.Bytes(target, uint64(p.pitch)*uint64(p.height)*BytesPerPixel)
	if err != nil {
		return
	}

	var (
		rowOffset = (y*p.pitch + x) * BytesPerPixel
		offset    uint32
		mask      uint8
		glyphRow  uint32
	)

	for row := uint32(0); row < p.font.GlyphHeight && y+row < p.height; row, rowOffset = row+1, rowOffset+p.pitch*BytesPerPixel {
		offset = rowOffset
		glyphRow = row * p.font.BytesPerRow
		rowData := glyph[glyphRow]
		mask = 1 << 7
		for col := uint32(0); col < p.font.GlyphWidth; col, offset, mask = col+1, offset+BytesPerPixel, mask>>1 {
			// Fonts wider than 8 pixels use more than one byte per row.
			if mask == 0 {
				glyphRow++
				rowData = glyph[glyphRow]
				mask = 1 << 7
			}

			if x+col >= p.pitch {
				break
			}

			if rowData&mask != 0 {
				binary.LittleEndian.PutUint32(surface[offset:], color)
			}
		}
	}
}

// PutString draws s starting at pixel (x, y), advancing one glyph width per
// character.
func (p *Plotter) PutString(color uint32, s string, x, y uint32, target uint64) {
	for i := 0; i < len(s); i++ {
		p.PutChar(color, s[i], x+uint32(i)*p.font.GlyphWidth, y, target)
	}
}
