// Package fb initializes the linear framebuffer exposed by the firmware
// graphics output protocol and provides the character plotter that is handed
// over to the kernel.
package fb

import (
	"fmt"
	"io"

	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/loader"
	"github.com/FacelessSociety/FacelessLoader2/loader/mem"
	"github.com/pkg/errors"
)

// BytesPerPixel is the size of a framebuffer pixel. The loader only
// supports 32bpp direct color modes.
const BytesPerPixel = 4

var (
	errNoGraphics     = &loader.Error{Module: "fb", Message: "graphics output protocol not found", Kind: loader.NotFound}
	errLocateGraphics = &loader.Error{Module: "fb", Message: "could not locate graphics output protocol", Kind: loader.FirmwareCallFailure}
	errQueryMode      = &loader.Error{Module: "fb", Message: "could not query graphics mode", Kind: loader.FirmwareCallFailure}
	errUnsupportedFmt = &loader.Error{Module: "fb", Message: "graphics mode has no linear framebuffer", Kind: loader.FormatInvalid}
)

// Descriptor describes the active framebuffer and the back buffer allocated
// for the kernel.
type Descriptor struct {
	// The physical address and size of the framebuffer.
	Base uint64
	Size uint64

	// The visible resolution in pixels.
	Width  uint32
	Height uint32

	// The number of pixels between the start of two consecutive rows.
	PixelsPerScanLine uint32

	// The back buffer has exactly Size bytes.
	BackBufferAddr uint64
	BackBuffer     []byte
}

// Init locates the graphics output protocol, records the active mode and
// allocates a back buffer matching the framebuffer size.
func Init(bs firmware.BootServices, pool *mem.Pool) (*Descriptor, error) {
	gop, err := bs.LocateGraphicsOutput()
	switch firmware.StatusOf(err) {
	case firmware.Success:
	case firmware.NotFound:
		return nil, errNoGraphics
	default:
		return nil, errors.Wrap(errLocateGraphics, err.Error())
	}

	mode, err := gop.Mode()
	if err != nil {
		return nil, errors.Wrap(errQueryMode, err.Error())
	}

	if mode.PixelFormat == firmware.PixelBltOnly || mode.FrameBufferSize == 0 {
		return nil, errors.Wrapf(errUnsupportedFmt, "pixel format %d", mode.PixelFormat)
	}

	d := &Descriptor{
		Base:              mode.FrameBufferBase,
		Size:              mode.FrameBufferSize,
		Width:             mode.HorizontalResolution,
		Height:            mode.VerticalResolution,
		PixelsPerScanLine: mode.PixelsPerScanLine,
	}

	if d.BackBufferAddr, d.BackBuffer, err = pool.Alloc(d.Size); err != nil {
		return nil, err
	}

	return d, nil
}

// Dump writes the framebuffer geometry to w.
func (d *Descriptor) Dump(w io.Writer) {
	fmt.Fprintf(w, "base: 0x%x, size: %d bytes\n", d.Base, d.Size)
	fmt.Fprintf(w, "resolution: %dx%d, pixels per scan line: %d\n", d.Width, d.Height, d.PixelsPerScanLine)
	fmt.Fprintf(w, "back buffer: 0x%x\n", d.BackBufferAddr)
}
