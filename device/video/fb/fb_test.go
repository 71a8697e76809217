package fb

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/FacelessSociety/FacelessLoader2/device/video/console/font"
	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/firmware/hostfw"
	"github.com/FacelessSociety/FacelessLoader2/loader"
	"github.com/FacelessSociety/FacelessLoader2/loader/mem"
)

func initFb(t *testing.T, g *hostfw.Graphics) (*hostfw.Machine, *Descriptor) {
	t.Helper()

	m := hostfw.New(hostfw.Config{Graphics: g})
	st := m.SystemTable()
	d, err := Init(st.Boot, &mem.Pool{Boot: st.Boot, Memory: st.Memory})
	if err != nil {
		t.Fatal(err)
	}
	return m, d
}

func TestInit(t *testing.T) {
	_, d := initFb(t, &hostfw.Graphics{Width: 30, Height: 20, PixelsPerScanLine: 32})

	if d.Width != 30 || d.Height != 20 || d.PixelsPerScanLine != 32 {
		t.Fatalf("unexpected geometry %dx%d (pitch %d)", d.Width, d.Height, d.PixelsPerScanLine)
	}

	if exp := uint64(32 * 20 * BytesPerPixel); d.Size != exp || uint64(len(d.BackBuffer)) != exp {
		t.Fatalf("expected framebuffer and back buffer of %d bytes; got %d and %d", exp, d.Size, len(d.BackBuffer))
	}

	if d.BackBufferAddr == d.Base {
		t.Fatal("expected back buffer to be a separate allocation")
	}

	var out bytes.Buffer
	d.Dump(&out)
	if !strings.Contains(out.String(), "resolution: 30x20") {
		t.Fatalf("unexpected dump output: %q", out.String())
	}
}

func TestInitWithoutGraphics(t *testing.T) {
	m := hostfw.New(hostfw.Config{})
	st := m.SystemTable()

	_, err := Init(st.Boot, &mem.Pool{Boot: st.Boot, Memory: st.Memory})
	if err != errNoGraphics {
		t.Fatalf("expected errNoGraphics; got %v", err)
	}

	if loader.KindOf(err) != loader.NotFound {
		t.Fatalf("expected a NotFound error; got %s", loader.KindOf(err))
	}
}

type bltOnly struct{}

func (bltOnly) Mode() (*firmware.GraphicsMode, error) {
	return &firmware.GraphicsMode{PixelFormat: firmware.PixelBltOnly, FrameBufferSize: 4}, nil
}

type bltBoot struct{ firmware.BootServices }

func (bltBoot) LocateGraphicsOutput() (firmware.GraphicsOutput, error) { return bltOnly{}, nil }

func TestInitBltOnly(t *testing.T) {
	if _, err := Init(bltBoot{}, nil); loader.KindOf(err) != loader.FormatInvalid {
		t.Fatalf("expected blt-only mode to be rejected; got %v", err)
	}
}

// testFont has 2 glyphs of 8x4 pixels. Glyph 1 is a diagonal.
var testFont = &font.Font{
	GlyphWidth:  8,
	GlyphHeight: 4,
	BytesPerRow: 1,
	Data: []byte{
		0x00, 0x00, 0x00, 0x00,
		0x80, 0x40, 0x20, 0x10,
	},
}

func pixel(surface []byte, pitch, x, y uint32) uint32 {
	return binary.LittleEndian.Uint32(surface[(y*pitch+x)*BytesPerPixel:])
}

func TestPlotter(t *testing.T) {
	m, d := initFb(t, &hostfw.Graphics{Width: 16, Height: 8})
	p := NewPlotter(m, d, testFont)

	surface, _ := m.Bytes(d.Base, d.Size)
	for i := range surface {
		surface[i] = 0
	}

	p.PutChar(0x00ff00ff, 1, 2, 1, d.Base)

	for y := uint32(0); y < d.Height; y++ {
		for x := uint32(0); x < d.Width; x++ {
			var exp uint32
			if y >= 1 && y < 5 && x == 2+(y-1) {
				exp = 0x00ff00ff
			}
			if got := pixel(surface, d.PixelsPerScanLine, x, y); got != exp {
				t.Fatalf("pixel (%d, %d): expected 0x%x; got 0x%x", x, y, exp, got)
			}
		}
	}

	// Background pixels are left untouched.
	binary.LittleEndian.PutUint32(surface[(1*d.PixelsPerScanLine+3)*BytesPerPixel:], 0xabcdef)
	p.PutChar(0x1, 1, 2, 1, d.Base)
	if got := pixel(surface, d.PixelsPerScanLine, 3, 1); got != 0xabcdef {
		t.Fatalf("expected background pixel to be preserved; got 0x%x", got)
	}

	// Glyphs crossing the surface edge are clipped; out of range glyphs
	// and origins are ignored.
	p.PutChar(0x2, 1, 14, 6, d.Base)
	p.PutChar(0x3, 200, 0, 0, d.Base)
	p.PutChar(0x4, 1, 16, 0, d.Base)
	if got := pixel(surface, d.PixelsPerScanLine, 15, 7); got != 0x2 {
		t.Fatalf("expected clipped glyph to draw visible pixels; got 0x%x", got)
	}

	// Drawing onto the back buffer leaves the framebuffer alone.
	before := append([]byte(nil), surface...)
	p.PutString(0x5, "\x01\x01", 0, 0, d.BackBufferAddr)
	if !bytes.Equal(before, surface) {
		t.Fatal("expected back buffer drawing not to touch the framebuffer")
	}
	if got := pixel(d.BackBuffer, d.PixelsPerScanLine, 8, 0); got != 0x5 {
		t.Fatalf("expected second glyph at x=8; got 0x%x", got)
	}
}

func TestSnapshotAndBlit(t *testing.T) {
	m, d := initFb(t, &hostfw.Graphics{Width: 8, Height: 4})

	surface, _ := m.Bytes(d.Base, d.Size)
	for i := range surface {
		surface[i] = 0
	}
	binary.LittleEndian.PutUint32(surface[(1*d.PixelsPerScanLine+2)*BytesPerPixel:], 0x00112233)

	var buf bytes.Buffer
	if err := Snapshot(m, d, d.Base, &buf); err != nil {
		t.Fatal(err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}

	if got := color.RGBAModel.Convert(img.At(2, 1)).(color.RGBA); got != (color.RGBA{0x11, 0x22, 0x33, 0xff}) {
		t.Fatalf("unexpected snapshot pixel %v", got)
	}

	square := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < len(square.Pix); i += 4 {
		copy(square.Pix[i:], []byte{0xff, 0x00, 0x00, 0xff})
	}

	if err = Blit(m, d, d.Base, square, 5, 2); err != nil {
		t.Fatal(err)
	}

	if got := pixel(surface, d.PixelsPerScanLine, 6, 3); got != 0x00ff0000 {
		t.Fatalf("expected blitted pixel to be red; got 0x%x", got)
	}

	if got := pixel(surface, d.PixelsPerScanLine, 2, 1); got != 0x00112233 {
		t.Fatalf("expected existing pixels to be preserved; got 0x%x", got)
	}
}
