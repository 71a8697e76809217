package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/FacelessSociety/FacelessLoader2/device/video/console/font"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// glyphWidth is the fixed width of PSF1 glyphs.
const glyphWidth = 8

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[mkpsf] error: %s\n", err.Error())
	os.Exit(1)
}

// rasterize renders the glyph for r into a glyphWidth x height bitmap with
// one byte per row.
func rasterize(face xfont.Face, r rune, height int) []byte {
	rows := make([]byte, height)

	metrics := face.Metrics()
	top := (height - metrics.Height.Ceil()) / 2
	dot := fixed.P(0, top+metrics.Ascent.Ceil())

	dr, mask, maskp, _, ok := face.Glyph(dot, r)
	if !ok {
		return rows
	}

	clip := dr.Intersect(image.Rect(0, 0, glyphWidth, height))
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		for x := clip.Min.X; x < clip.Max.X; x++ {
			_, _, _, a := mask.At(maskp.X+x-dr.Min.X, maskp.Y+y-dr.Min.Y).RGBA()
			if a >= 0x8000 {
				rows[y] |= 0x80 >> uint(x)
			}
		}
	}

	return rows
}

// writePSF emits a 256 glyph PSF1 font. Glyph i renders the rune with the
// same Latin-1 code point.
func writePSF(w io.Writer, face xfont.Face, height int) error {
	if height < 1 || height > 255 {
		return fmt.Errorf("glyph height must be between 1 and 255; got %d", height)
	}

	bw := bufio.NewWriter(w)
	bw.Write([]byte{font.Magic[0], font.Magic[1], 0, byte(height)})
	for ch := 0; ch < 256; ch++ {
		bw.Write(rasterize(face, rune(ch), height))
	}

	return bw.Flush()
}

func runTool() error {
	height := flag.Int("height", 16, "the glyph height in pixels")
	output := flag.String("out", "-", "a file to write the generated font or - to output to STDOUT")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "mkpsf: render the built-in 7x13 face into a PSF1 console font\n\n")
		fmt.Fprint(os.Stderr, "Usage: mkpsf [options]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 0 {
		exit(errors.New("unexpected arguments"))
	}

	switch *output {
	case "-":
		return writePSF(os.Stdout, basicfont.Face7x13, *height)
	default:
		fOut, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer fOut.Close()

		return writePSF(fOut, basicfont.Face7x13, *height)
	}
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
