package bmain

import (
	"fmt"

	"github.com/FacelessSociety/FacelessLoader2/device/video/console/font"
	"github.com/FacelessSociety/FacelessLoader2/device/video/console/logo"
	"github.com/FacelessSociety/FacelessLoader2/device/video/fb"
	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/loader"
	"github.com/FacelessSociety/FacelessLoader2/loader/asset"
	"github.com/FacelessSociety/FacelessLoader2/loader/elf"
	"github.com/FacelessSociety/FacelessLoader2/loader/handoff"
	"github.com/FacelessSociety/FacelessLoader2/loader/kfmt"
	"github.com/FacelessSociety/FacelessLoader2/loader/mmap"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var errTransferReturned = &loader.Error{Module: "bmain", Message: "kernel entry point returned"}

// stage is a single step of the boot pipeline.
type stage struct {
	name string
	run  func(*Context) error
}

// The pipeline stages in execution order. The font is loaded before the
// graphics output is touched so that a bad font aborts the boot early.
var stages = []stage{
	{"greet", (*Context).greet},
	{"services", (*Context).setupServices},
	{"font", (*Context).loadFont},
	{"graphics", (*Context).initGraphics},
	{"images", (*Context).loadImages},
	{"kernel", (*Context).loadKernel},
	{"handoff", (*Context).buildRecord},
}

// Main runs the boot pipeline. Main never returns: it either transfers
// control to the kernel or aborts the boot through Fatal.
func Main(c *Context) {
	if err := kfmt.SetOutputSink(c.Log, c.System.ConOut); err != nil {
		c.CPU.Halt()
		return
	}

	for _, s := range stages {
		c.logger("bmain").WithField("stage", s.name).Debug("entering stage")
		if err := s.run(c); err != nil {
			c.Fatal(err)
			return
		}
	}

	Transfer(c)
}

// greet prints the firmware date and time and waits for a key press.
func (c *Context) greet() error {
	if !c.Config.Greet {
		return nil
	}

	now, err := c.System.Runtime.GetTime()
	if err != nil {
		c.logger("bmain").WithError(err).Warn("could not read the platform clock")
	} else {
		fmt.Fprintf(c.System.ConOut, "Welcome, Friend. Today is: %s\n", now.Format("01/02/2006 15:04:05"))
	}

	fmt.Fprintf(c.System.ConOut, "Press any key to boot.\n")
	c.waitForKey()
	return nil
}

// waitForKey polls the console input until a key is pressed.
func (c *Context) waitForKey() {
	for {
		if _, err := c.System.ConIn.ReadKeyStroke(); err == nil {
			return
		}
	}
}

// setupServices opens the boot volume, reserves the memory map buffers and
// takes an initial snapshot of the memory map.
func (c *Context) setupServices() error {
	log := c.logger("mmap")

	var err error
	if c.Volume, err = asset.OpenVolume(c.System.Boot); err != nil {
		return err
	}

	log.Info("fetching memory map")
	if c.MapBuffers, err = mmap.Reserve(c.Pool); err != nil {
		return err
	}

	if c.MemoryMap, _, err = c.MapBuffers.Snapshot(c.System.Boot); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"entries": int(c.MemoryMap.Count()),
		"base":    c.MemoryMap.Base(),
	}).Info("memory map fetched")

	if log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		c.MemoryMap.Dump(&kfmt.PrefixWriter{Sink: log.Logger.Out, Prefix: []byte("[mmap] ")})
	}

	return nil
}

// loadFont loads the console font.
func (c *Context) loadFont() error {
	var err error
	if c.Font, err = font.Build(c.Volume, c.Pool, c.Config.FontPath); err != nil {
		return err
	}

	c.logger("font").WithFields(logrus.Fields{
		"path":   c.Config.FontPath,
		"glyphs": c.Font.Header.GlyphCount(),
		"height": c.Font.Header.CharSize,
	}).Info("font loaded")
	return nil
}

// initGraphics sets up the framebuffer.
func (c *Context) initGraphics() error {
	var err error
	if c.Framebuffer, err = fb.Init(c.System.Boot, c.Pool); err != nil {
		return err
	}

	log := c.logger("fb")
	log.WithFields(logrus.Fields{
		"base":   c.Framebuffer.Base,
		"width":  c.Framebuffer.Width,
		"height": c.Framebuffer.Height,
	}).Info("graphics output initialized")

	if log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		c.Framebuffer.Dump(&kfmt.PrefixWriter{Sink: log.Logger.Out, Prefix: []byte("[fb] ")})
	}
	return nil
}

// loadImages fills the image slots.
func (c *Context) loadImages() error {
	var err error
	if c.Images, err = logo.BuildAll(c.Volume, c.Pool, c.Config.ImagePaths); err != nil {
		return err
	}

	for slot, img := range c.Images {
		if img == nil {
			continue
		}
		c.logger("logo").WithFields(logrus.Fields{
			"slot":   slot,
			"width":  img.Info.Width,
			"height": img.Info.Height,
			"bpp":    img.Info.BitsPerPixel,
		}).Info("image loaded")
	}
	return nil
}

// loadKernel validates the kernel image and copies its segments to their
// physical addresses.
func (c *Context) loadKernel() error {
	var err error
	if c.Kernel, err = elf.Load(c.Volume, c.Pool, c.Config.KernelPath, c.Config.Machine); err != nil {
		return err
	}

	log := c.logger("elf")
	for _, seg := range c.Kernel.Segments {
		log.WithFields(logrus.Fields{
			"addr":  seg.PhysAddress,
			"pages": int(seg.PageCount),
			"size":  seg.MemSize,
		}).Info("segment loaded")
	}
	log.WithField("entry", c.Kernel.Entry).Info("kernel image loaded")
	return nil
}

// buildRecord aggregates the products of the previous stages.
func (c *Context) buildRecord() error {
	var err error
	c.Record, err = handoff.Build(handoff.Sources{
		MemoryMap:           c.MemoryMap,
		Framebuffer:         c.Framebuffer,
		Font:                c.Font,
		Images:              c.Images,
		ConfigurationTables: c.System.ConfigurationTables,
		Runtime:             c.System.Runtime,
		Memory:              c.System.Memory,
	})
	if err != nil {
		return err
	}

	log := c.logger("acpi")
	if c.Record.RSDP == 0 {
		log.Warn("no ACPI RSDP found; booting without ACPI")
	} else {
		log.WithField("rsdp", c.Record.RSDP).Info("found ACPI RSDP")
	}
	return nil
}

// Transfer takes the final memory map snapshot, growing the reserved
// buffers if needed, terminates boot services and enters the kernel. If
// boot services cannot be exited or the kernel returns, the CPU is halted;
// the console may already be gone so there is no key prompt.
func Transfer(c *Context) {
	// Clear the console before handing it over.
	if err := c.System.ConOut.Reset(); err != nil {
		c.logger("bmain").WithError(err).Warn("console reset failed")
	}

	// Loading the kernel may have split enough regions for the map to
	// outgrow the buffers reserved at startup.
	memMap, mapKey, err := c.MapBuffers.Fetch(c.Pool)
	if err != nil {
		c.Fatal(err)
		return
	}
	c.Record.MemoryMap = memMap

	if err = c.System.Boot.ExitBootServices(mapKey); err != nil {
		c.CPU.Halt()
		return
	}

	c.CPU.Enter(c.Kernel.Entry, c.Record)

	// Only reachable if the kernel returns.
	kfmt.Panic(c.System.ConOut, errors.Wrapf(errTransferReturned, "entry 0x%x", c.Kernel.Entry))
	c.CPU.Halt()
}

// statusFor maps err to the status reported through ResetSystem.
func statusFor(err error) firmware.Status {
	switch loader.KindOf(err) {
	case loader.NotFound:
		return firmware.NotFound
	case loader.FormatInvalid:
		return firmware.LoadError
	case loader.AllocationFailure:
		return firmware.OutOfResources
	default:
		return firmware.Aborted
	}
}
