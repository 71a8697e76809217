package main

import (
	"io"
	"os"

	"github.com/FacelessSociety/FacelessLoader2/device/video/fb"
	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/loader"
	"github.com/FacelessSociety/FacelessLoader2/loader/handoff"
	"github.com/FacelessSociety/FacelessLoader2/loader/kfmt"
	"github.com/FacelessSociety/FacelessLoader2/loader/mmap"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/u-root/u-root/pkg/boot/bzimage"
)

const (
	bannerText  = "FacelessLoader2: handoff complete"
	bannerColor = 0x00ffffff
	margin      = 8
)

var errBadRecord = &loader.Error{Module: "kernel", Message: "handoff record has an unexpected magic or version", Kind: loader.FormatInvalid}

// stubKernel stands in for the real kernel. It consumes every part of the
// handoff record and then powers off the machine.
type stubKernel struct {
	memory   firmware.Memory
	record   *handoff.Record
	out      io.Writer
	snapshot string
}

func (k *stubKernel) run() error {
	log := kfmt.Module(kfmt.NewLogger(logrus.InfoLevel), "kernel")
	if err := kfmt.SetOutputSink(log.Logger, k.out); err != nil {
		return err
	}

	rec := k.record
	if rec.Magic != handoff.Magic || rec.Version != handoff.Version {
		return errors.Wrapf(errBadRecord, "magic 0x%x version %d", rec.Magic, rec.Version)
	}

	var usable, entries uint64
	for i := uint64(0); i < rec.MemoryMapAccessor.Entries(rec.MemoryMap); i++ {
		d, ok := rec.MemoryMapAccessor.Descriptor(rec.MemoryMap, i)
		if !ok {
			break
		}

		entries++
		if d.Type == mmap.Usable {
			usable += d.Size()
		}
	}
	log.WithFields(logrus.Fields{
		"entries": int(entries),
		"usable":  int(usable >> 10),
	}).Info("memory map received (usable Kb)")

	// Legacy consumers get the same map in E820 form.
	var ram uint64
	e820 := rec.MemoryMap.E820()
	for _, e := range e820 {
		if e.MemType == bzimage.RAM {
			ram += e.Size
		}
	}
	log.WithFields(logrus.Fields{
		"entries": len(e820),
		"ram":     int(ram >> 10),
	}).Info("e820 map built (ram Kb)")

	if rec.RSDP != 0 {
		log.WithField("rsdp", rec.RSDP).Info("ACPI tables available")
	}

	if rec.Framebuffer != nil {
		if err := k.draw(); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"width":  int(rec.Framebuffer.Width),
			"height": int(rec.Framebuffer.Height),
		}).Info("framebuffer initialized")
	}

	log.Info("shutting down")
	rec.Power.Shutdown()
	return nil
}

// draw composes the boot screen in the back buffer, presents it and
// optionally saves a snapshot of the framebuffer.
func (k *stubKernel) draw() error {
	rec := k.record
	d := rec.Framebuffer

	loader.Memset(d.BackBuffer, 0)

	y := uint32(margin)
	if img := rec.Images[0]; img != nil {
		decoded, err := img.Image()
		if err != nil {
			return err
		}

		x := (int(d.Width) - decoded.Bounds().Dx()) / 2
		if err = fb.Blit(k.memory, d, d.BackBufferAddr, decoded, x, int(y)); err != nil {
			return err
		}
		y += uint32(decoded.Bounds().Dy()) + margin
	}

	if rec.Font != nil {
		for i := 0; i < len(bannerText); i++ {
			rec.Plotter.PutChar(bannerColor, bannerText[i], uint32(margin+i*8), y, d.BackBufferAddr)
		}
	}

	front, err := k.memory.Bytes(d.Base, d.Size)
	if err != nil {
		return err
	}
	loader.Memcopy(d.BackBuffer, front)

	if k.snapshot == "" {
		return nil
	}

	f, err := os.Create(k.snapshot)
	if err != nil {
		return err
	}
	defer f.Close()

	return fb.Snapshot(k.memory, d, d.Base, f)
}
