// Package font loads PSF1 bitmap fonts from the boot volume.
package font

import (
	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/loader"
	"github.com/FacelessSociety/FacelessLoader2/loader/asset"
	"github.com/FacelessSociety/FacelessLoader2/loader/mem"
	"github.com/pkg/errors"
)

const (
	// HeaderSize is the size of the PSF1 header.
	HeaderSize = 4

	// Mode512 is set in the header mode byte if the font contains 512
	// glyphs instead of 256.
	Mode512 = 0x01

	// The width of a PSF1 glyph in pixels. Each glyph row is one byte.
	glyphWidth = 8
)

// Magic is the PSF1 signature.
var Magic = [2]byte{0x36, 0x04}

var (
	errBadMagic    = &loader.Error{Module: "font", Message: "font header has an invalid magic number", Kind: loader.FormatInvalid}
	errBadCharSize = &loader.Error{Module: "font", Message: "font header declares empty glyphs", Kind: loader.FormatInvalid}
)

// Header is the PSF1 font header.
type Header struct {
	Magic [2]byte
	Mode  uint8

	// The number of bytes per glyph. Since each row occupies a single
	// byte this is also the glyph height.
	CharSize uint8
}

// GlyphCount returns the number of glyphs in the font.
func (h Header) GlyphCount() uint32 {
	if h.Mode&Mode512 != 0 {
		return 512
	}

	return 256
}

// GlyphBufferSize returns the size of the glyph table.
func (h Header) GlyphBufferSize() uint64 {
	return uint64(h.CharSize) * uint64(h.GlyphCount())
}

// Resource is a font that has been loaded into pool memory.
type Resource struct {
	Header Header

	// The physical address of the header and glyph buffers.
	HeaderAddr uint64
	GlyphAddr  uint64

	// Glyphs aliases the glyph buffer at GlyphAddr.
	Glyphs []byte
}

// Font describes a bitmap font that can be used by a console device.
type Font struct {
	// The width of each glyph in pixels.
	GlyphWidth uint32

	// The height of each glyph in pixels.
	GlyphHeight uint32

	// The number of bytes describing a row in a glyph.
	BytesPerRow uint32

	// The font bitmap. Each character consists of BytesPerRow * Height
	// bytes where each bit indicates whether a pixel should be set to the
	// foreground or the background color.
	Data []byte
}

// Font returns a Font view of the loaded glyph table.
func (r *Resource) Font() *Font {
	return &Font{
		GlyphWidth:  glyphWidth,
		GlyphHeight: uint32(r.Header.CharSize),
		BytesPerRow: 1,
		Data:        r.Glyphs,
	}
}

// Glyph returns the bitmap for character ch or nil if the font has no
// glyph for it.
func (f *Font) Glyph(ch uint32) []byte {
	size := f.BytesPerRow * f.GlyphHeight
	offset := ch * size
	if size == 0 || uint64(offset)+uint64(size) > uint64(len(f.Data)) {
		return nil
	}

	return f.Data[offset : offset+size]
}

// Build loads the PSF1 font at path. The header and the glyph table are
// placed in two separate pool allocations.
func Build(vol firmware.Volume, pool *mem.Pool, path string) (*Resource, error) {
	f, _, err := asset.Open(vol, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var res Resource

	var hdrBuf []byte
	if res.HeaderAddr, hdrBuf, err = pool.Alloc(HeaderSize); err != nil {
		return nil, err
	}

	if err = asset.ReadExact(f, hdrBuf); err != nil {
		return nil, errors.Wrapf(err, "%s header", path)
	}

	res.Header = Header{
		Magic:    [2]byte{hdrBuf[0], hdrBuf[1]},
		Mode:     hdrBuf[2],
		CharSize: hdrBuf[3],
	}

	if res.Header.Magic != Magic {
		return nil, errors.Wrapf(errBadMagic, "%s: got 0x%02x 0x%02x", path, hdrBuf[0], hdrBuf[1])
	}

	if res.Header.CharSize == 0 {
		return nil, errors.Wrapf(errBadCharSize, "%s", path)
	}

	if res.GlyphAddr, res.Glyphs, err = pool.Alloc(res.Header.GlyphBufferSize()); err != nil {
		return nil, err
	}

	if err = asset.ReadAt(f, HeaderSize, res.Glyphs); err != nil {
		return nil, errors.Wrapf(err, "%s glyphs", path)
	}

	return &res, nil
}
