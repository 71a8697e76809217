package main

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"golang.org/x/image/bmp"
)

func TestWriteLogo(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	src.Set(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 0xff})
	src.Set(1, 0, color.NRGBA{A: 0})

	trans := color.RGBA{R: 255, B: 255, A: 255}

	var buf bytes.Buffer
	if err := writeLogo(&buf, src, trans, 0, 0); err != nil {
		t.Fatal(err)
	}

	if !bytes.HasPrefix(buf.Bytes(), []byte("BM")) {
		t.Fatal("expected output to carry the BMP signature")
	}

	img, err := bmp.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}

	if got := img.Bounds().Size(); got != (image.Point{X: 4, Y: 2}) {
		t.Fatalf("expected a 4x2 image; got %v", got)
	}

	if r, g, b, _ := img.At(1, 0).RGBA(); r>>8 != 255 || g>>8 != 0 || b>>8 != 255 {
		t.Fatalf("expected transparent pixel to be replaced by the transparent color; got %d %d %d", r>>8, g>>8, b>>8)
	}

	if r, g, b, _ := img.At(0, 0).RGBA(); r>>8 != 10 || g>>8 != 20 || b>>8 != 30 {
		t.Fatalf("unexpected pixel color %d %d %d", r>>8, g>>8, b>>8)
	}
}

func TestWriteLogoScaling(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 4))

	var buf bytes.Buffer
	if err := writeLogo(&buf, src, color.RGBA{A: 255}, 4, 0); err != nil {
		t.Fatal(err)
	}

	cfg, err := bmp.DecodeConfig(&buf)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Width != 4 || cfg.Height != 2 {
		t.Fatalf("expected a 4x2 image; got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestWriteLogoColorLimit(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 1))
	src.Set(0, 0, color.RGBA{R: 1, A: 255})
	src.Set(1, 0, color.RGBA{G: 1, A: 255})
	src.Set(2, 0, color.RGBA{B: 1, A: 255})

	var buf bytes.Buffer
	if err := writeLogo(&buf, src, color.RGBA{A: 255}, 0, 2); err == nil {
		t.Fatal("expected an error for an image exceeding the color limit")
	}
}
