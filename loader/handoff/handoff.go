// Package handoff assembles the record that is passed to the kernel entry
// point. The record is the only channel between the loader and the kernel:
// once control is transferred, none of the firmware interfaces used by the
// loader are reachable.
package handoff

import (
	"github.com/FacelessSociety/FacelessLoader2/device/acpi"
	"github.com/FacelessSociety/FacelessLoader2/device/video/console/font"
	"github.com/FacelessSociety/FacelessLoader2/device/video/console/logo"
	"github.com/FacelessSociety/FacelessLoader2/device/video/fb"
	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/loader"
	"github.com/FacelessSociety/FacelessLoader2/loader/mmap"
	"github.com/pkg/errors"
)

const (
	// Magic identifies a handoff record ("FLS2").
	Magic uint32 = 0x32534c46

	// Version is bumped whenever the record layout changes.
	Version uint32 = 1
)

var errIncomplete = &loader.Error{Module: "handoff", Message: "handoff record is incomplete"}

// PowerManager lets the kernel power off the platform.
type PowerManager interface {
	Shutdown()
}

// MemoryMapAccessor provides iteration over a memory map view. Its methods
// hold no per-boot state.
type MemoryMapAccessor interface {
	// Entries returns the number of descriptors in m.
	Entries(m mmap.MemoryMap) uint64

	// Descriptor returns the descriptor at index within m.
	Descriptor(m mmap.MemoryMap, index uint64) (mmap.Descriptor, bool)
}

// CharPlotter draws font glyphs onto a framebuffer surface identified by
// its physical address.
type CharPlotter interface {
	PutChar(color uint32, ch byte, x, y uint32, target uint64)
}

// Record is the boot handoff record.
type Record struct {
	Magic   uint32
	Version uint32

	Power PowerManager

	MemoryMap         mmap.MemoryMap
	MemoryMapAccessor MemoryMapAccessor

	Framebuffer *fb.Descriptor
	Font        *font.Resource
	Images      [logo.MaxImages]*logo.Resource

	// The physical address of the ACPI RSDP or 0 if the platform does
	// not provide one.
	RSDP uint64

	Plotter CharPlotter
}

// Sources lists the products of the loader stages that are aggregated into
// a Record.
type Sources struct {
	MemoryMap   mmap.MemoryMap
	Framebuffer *fb.Descriptor
	Font        *font.Resource
	Images      [logo.MaxImages]*logo.Resource

	// Used for the ACPI lookup.
	ConfigurationTables []firmware.ConfigurationTable

	Runtime firmware.RuntimeServices
	Memory  firmware.Memory
}

// Build aggregates src into a Record. A missing ACPI RSDP is not an error;
// the record then carries a zero RSDP address.
func Build(src Sources) (*Record, error) {
	switch {
	case src.Framebuffer == nil:
		return nil, errors.Wrap(errIncomplete, "missing framebuffer")
	case src.Font == nil:
		return nil, errors.Wrap(errIncomplete, "missing font")
	case src.MemoryMap.Count() == 0:
		return nil, errors.Wrap(errIncomplete, "empty memory map")
	}

	rsdp, _ := acpi.LocateRSDP(src.ConfigurationTables, src.Memory)

	return &Record{
		Magic:             Magic,
		Version:           Version,
		Power:             firmwarePower{rt: src.Runtime},
		MemoryMap:         src.MemoryMap,
		MemoryMapAccessor: viewAccessor{},
		Framebuffer:       src.Framebuffer,
		Font:              src.Font,
		Images:            src.Images,
		RSDP:              rsdp,
		Plotter:           fb.NewPlotter(src.Memory, src.Framebuffer, src.Font.Font()),
	}, nil
}

// firmwarePower shuts the platform down through the runtime services, which
// remain available after boot services have been terminated.
type firmwarePower struct {
	rt firmware.RuntimeServices
}

func (p firmwarePower) Shutdown() {
	p.rt.ResetSystem(firmware.ResetShutdown, firmware.Success)
}

type viewAccessor struct{}

func (viewAccessor) Entries(m mmap.MemoryMap) uint64 {
	return m.Count()
}

func (viewAccessor) Descriptor(m mmap.MemoryMap, index uint64) (mmap.Descriptor, bool) {
	return m.Descriptor(index)
}
