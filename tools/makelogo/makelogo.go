package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"os"

	"github.com/fogleman/gg"
	"golang.org/x/image/bmp"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[makelogo] error: %s\n", err.Error())
	os.Exit(1)
}

// countColors returns the number of distinct opaque colors in img.
func countColors(img image.Image) int {
	seen := make(map[color.RGBA]struct{})

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			seen[color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}] = struct{}{}
		}
	}

	return len(seen)
}

// flatten returns an opaque copy of img where fully transparent pixels are
// replaced by transColor. If width is non-zero, the image is scaled so that
// its width matches while preserving the aspect ratio.
func flatten(img image.Image, transColor color.RGBA, width int) *image.RGBA {
	bounds := img.Bounds()
	if width > 0 && width != bounds.Dx() {
		height := bounds.Dy() * width / bounds.Dx()

		dc := gg.NewContext(width, height)
		dc.Scale(float64(width)/float64(bounds.Dx()), float64(height)/float64(bounds.Dy()))
		dc.DrawImage(img, -bounds.Min.X, -bounds.Min.Y)
		img, bounds = dc.Image(), image.Rect(0, 0, width, height)
	}

	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), image.NewUniform(transColor), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Over)
	return out
}

func writeLogo(w io.Writer, img image.Image, transColor color.RGBA, width, maxColors int) error {
	if maxColors > 0 {
		if got := countColors(img); got > maxColors {
			return fmt.Errorf("logo should not contain more than %d colors; got %d", maxColors, got)
		}
	}

	return bmp.Encode(w, flatten(img, transColor, width))
}

func runTool() error {
	transR := flag.Uint("trans-r", 255, "the red component value for the transparent color")
	transG := flag.Uint("trans-g", 0, "the green component value for the transparent color")
	transB := flag.Uint("trans-b", 255, "the blue component value for the transparent color")
	width := flag.Int("width", 0, "scale the logo to this width (0 keeps the original size)")
	maxColors := flag.Int("max-colors", 0, "reject images with more colors than this (0 disables the check)")
	output := flag.String("out", "-", "a file to write the generated bitmap or - to output to STDOUT")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "makelogo: convert a png/jpg or gif image to a BMP logo for the boot volume\n\n")
		fmt.Fprint(os.Stderr, "Usage: makelogo [options] image\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		exit(errors.New("missing image file argument"))
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return err
	}

	transColor := color.RGBA{R: uint8(*transR), G: uint8(*transG), B: uint8(*transB), A: 0xff}

	switch *output {
	case "-":
		return writeLogo(os.Stdout, img, transColor, *width, *maxColors)
	default:
		fOut, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer fOut.Close()

		return writeLogo(fOut, img, transColor, *width, *maxColors)
	}
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
