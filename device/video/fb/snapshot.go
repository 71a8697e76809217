package fb

import (
	"encoding/binary"
	"image"
	"io"

	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/fogleman/gg"
)

// surfaceContext copies the surface at target into a drawing context. Pixels
// are stored as little-endian 0x00RRGGBB words.
func surfaceContext(memory firmware.Memory, d *Descriptor, target uint64) (*gg.Context, []byte, error) {
	surface, err := memory.Bytes(target, uint64(d.PixelsPerScanLine)*uint64(d.Height)*BytesPerPixel)
	if err != nil {
		return nil, nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, int(d.Width), int(d.Height)))
	for y := 0; y < int(d.Height); y++ {
		row := surface[y*int(d.PixelsPerScanLine)*BytesPerPixel:]
		for x := 0; x < int(d.Width); x++ {
			px := binary.LittleEndian.Uint32(row[x*BytesPerPixel:])
			i := img.PixOffset(x, y)
			img.Pix[i+0] = uint8(px >> 16)
			img.Pix[i+1] = uint8(px >> 8)
			img.Pix[i+2] = uint8(px)
			img.Pix[i+3] = 0xff
		}
	}

	return gg.NewContextForRGBA(img), surface, nil
}

// Snapshot encodes the surface at target as a PNG image.
func Snapshot(memory firmware.Memory, d *Descriptor, target uint64, w io.Writer) error {
	dc, _, err := surfaceContext(memory, d, target)
	if err != nil {
		return err
	}

	return dc.EncodePNG(w)
}

// Blit draws img onto the surface at target with its top-left corner at
// pixel (x, y).
func Blit(memory firmware.Memory, d *Descriptor, target uint64, img image.Image, x, y int) error {
	dc, surface, err := surfaceContext(memory, d, target)
	if err != nil {
		return err
	}

	dc.DrawImage(img, x, y)

	rgba := dc.Image().(*image.RGBA)
	for py := 0; py < int(d.Height); py++ {
		row := surface[py*int(d.PixelsPerScanLine)*BytesPerPixel:]
		for px := 0; px < int(d.Width); px++ {
			i := rgba.PixOffset(px, py)
			c := uint32(rgba.Pix[i+0])<<16 | uint32(rgba.Pix[i+1])<<8 | uint32(rgba.Pix[i+2])
			binary.LittleEndian.PutUint32(row[px*BytesPerPixel:], c)
		}
	}

	return nil
}
