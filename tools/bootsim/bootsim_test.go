package main

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/firmware/hostfw"
	"golang.org/x/image/bmp"
)

func writeVolume(t *testing.T, withLogo bool) string {
	dir := t.TempDir()

	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     0x200000,
		Phoff:     64,
		Ehsize:    64,
		Phentsize: 56,
		Phnum:     1,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	prog := elf.Prog64{
		Type:   uint32(elf.PT_LOAD),
		Off:    0x1000,
		Paddr:  0x200000,
		Filesz: 16,
		Memsz:  16,
	}

	var kernel bytes.Buffer
	binary.Write(&kernel, binary.LittleEndian, &hdr)
	binary.Write(&kernel, binary.LittleEndian, &prog)
	kernel.Write(make([]byte, 0x1000+16-kernel.Len()))

	psf := []byte{0x36, 0x04, 0, 8}
	for ch := 0; ch < 256; ch++ {
		psf = append(psf, bytes.Repeat([]byte{0xff}, 8)...)
	}

	files := map[string][]byte{
		"kernel.elf":      kernel.Bytes(),
		"zap-light16.psf": psf,
	}

	if withLogo {
		logo := image.NewRGBA(image.Rect(0, 0, 16, 8))
		for i := range logo.Pix {
			logo.Pix[i] = 0xff
		}

		var buf bytes.Buffer
		if err := bmp.Encode(&buf, logo); err != nil {
			t.Fatal(err)
		}
		files["logo.bmp"] = buf.Bytes()
	}

	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			t.Fatal(err)
		}
	}

	return dir
}

func TestBootToShutdown(t *testing.T) {
	dir := writeVolume(t, true)
	snapshot := filepath.Join(t.TempDir(), "screen.png")

	var console bytes.Buffer
	outcome, err := boot(options{
		dir:      dir,
		memMb:    16,
		width:    320,
		height:   200,
		acpi:     2,
		images:   []string{"logo.bmp"},
		noWait:   true,
		snapshot: snapshot,
	}, &console, false)
	if err != nil {
		t.Fatal(err)
	}

	if outcome.Kind != hostfw.Reset || outcome.ResetType != firmware.ResetShutdown || outcome.ResetStatus != firmware.Success {
		t.Fatalf("expected a clean shutdown; got %+v\n%s", outcome, console.String())
	}

	for _, exp := range []string{
		"Welcome, Friend. Today is: ",
		"[kernel] memory map received",
		"[kernel] e820 map built (ram Kb) entries=",
		"[kernel] ACPI tables available",
		"[kernel] framebuffer initialized height=200 width=320",
		"[kernel] shutting down",
	} {
		if !strings.Contains(console.String(), exp) {
			t.Errorf("expected console output to contain %q; got:\n%s", exp, console.String())
		}
	}

	// Both views of the map must agree on the number of entries.
	var mapEntries, e820Entries int
	for _, line := range strings.Split(console.String(), "\n") {
		switch {
		case strings.Contains(line, "[kernel] memory map received"):
			fmt.Sscanf(line[strings.Index(line, "entries="):], "entries=%d", &mapEntries)
		case strings.Contains(line, "[kernel] e820 map built"):
			fmt.Sscanf(line[strings.Index(line, "entries="):], "entries=%d", &e820Entries)
		}
	}

	if mapEntries == 0 || mapEntries != e820Entries {
		t.Errorf("expected matching non-zero entry counts; got %d memory map and %d e820 entries", mapEntries, e820Entries)
	}

	f, err := os.Open(snapshot)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}

	if got := img.Bounds().Size(); got != (image.Point{X: 320, Y: 200}) {
		t.Fatalf("expected a 320x200 snapshot; got %v", got)
	}

	white := color.RGBAModel.Convert(color.White)
	specs := []struct {
		x, y int
		exp  bool
	}{
		// logo
		{160, 10, true},
		// banner text below the logo
		{margin, margin + 8 + margin, true},
		// background
		{0, 0, false},
		{319, 199, false},
	}

	for specIndex, spec := range specs {
		if got := color.RGBAModel.Convert(img.At(spec.x, spec.y)) == white; got != spec.exp {
			t.Errorf("[spec %d] expected pixel (%d, %d) lit: %t; got %t", specIndex, spec.x, spec.y, spec.exp, got)
		}
	}
}

func TestBootFailure(t *testing.T) {
	dir := writeVolume(t, false)
	if err := os.Remove(filepath.Join(dir, "kernel.elf")); err != nil {
		t.Fatal(err)
	}

	var console bytes.Buffer
	outcome, err := boot(options{dir: dir, memMb: 16, width: 64, height: 64, noWait: true}, &console, false)
	if err != nil {
		t.Fatal(err)
	}

	if outcome.Kind != hostfw.Reset || outcome.ResetStatus != firmware.NotFound {
		t.Fatalf("expected a shutdown with a not found status; got %+v", outcome)
	}

	if !strings.Contains(console.String(), "[asset] unrecoverable error: kernel.elf: file not found") {
		t.Fatalf("unexpected console output:\n%s", console.String())
	}
}
