// Package mmap translates the firmware memory map into the kernel-native
// memory map that is handed over to the kernel.
package mmap

import (
	"encoding/binary"

	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/loader/mem"
)

// RegionType defines the type of a memory region. The values form a closed
// set shared with the kernel.
type RegionType uint32

const (
	// Reserved marks regions that must not be used by the kernel. Any
	// firmware region type without a kernel equivalent maps to Reserved.
	Reserved RegionType = iota
	LoaderCode
	LoaderData
	BootServicesCode
	BootServicesData
	RuntimeServicesCode
	RuntimeServicesData

	// Usable indicates that the memory region is available for use.
	Usable
	Unusable

	// ACPIReclaim indicates a memory region that holds ACPI tables that
	// can be reused by the kernel once they have been parsed.
	ACPIReclaim

	// ACPINVS indicates memory that must be preserved when hibernating.
	ACPINVS
	MMIO
	MMIOPortSpace
	PALCode

	// Any value >= regionTypeCount is invalid.
	regionTypeCount
)

var regionTypeNames = [regionTypeCount]string{
	"reserved",
	"loader code",
	"loader data",
	"boot services code",
	"boot services data",
	"runtime services code",
	"runtime services data",
	"usable",
	"unusable",
	"ACPI (reclaimable)",
	"ACPI NVS",
	"MMIO",
	"MMIO port space",
	"PAL code",
}

// String implements fmt.Stringer for RegionType.
func (t RegionType) String() string {
	if t >= regionTypeCount {
		return "unknown"
	}

	return regionTypeNames[t]
}

// firmwareRegionTypes maps firmware memory types to their kernel counterpart.
var firmwareRegionTypes = map[firmware.MemoryType]RegionType{
	firmware.ReservedMemoryType:      Reserved,
	firmware.LoaderCode:              LoaderCode,
	firmware.LoaderData:              LoaderData,
	firmware.BootServicesCode:        BootServicesCode,
	firmware.BootServicesData:        BootServicesData,
	firmware.RuntimeServicesCode:     RuntimeServicesCode,
	firmware.RuntimeServicesData:     RuntimeServicesData,
	firmware.ConventionalMemory:      Usable,
	firmware.UnusableMemory:          Unusable,
	firmware.ACPIReclaimMemory:       ACPIReclaim,
	firmware.ACPIMemoryNVS:           ACPINVS,
	firmware.MemoryMappedIO:          MMIO,
	firmware.MemoryMappedIOPortSpace: MMIOPortSpace,
	firmware.PalCode:                 PALCode,
}

// RegionTypeOf returns the kernel region type for a firmware memory type.
func RegionTypeOf(t firmware.MemoryType) RegionType {
	if rt, ok := firmwareRegionTypes[t]; ok {
		return rt
	}

	return Reserved
}

// DescriptorSize is the size in bytes of an encoded Descriptor. Unlike the
// firmware stride, it never changes.
const DescriptorSize = 40

// Descriptor describes a memory region in the kernel-native format.
type Descriptor struct {
	// The type of this region.
	Type RegionType

	// The physical and virtual address of the first byte in the region.
	PhysAddress uint64
	VirtAddress uint64

	// The number of 4K pages in the region.
	PageCount uint64

	// Region capability flags as reported by the firmware.
	Attributes uint64
}

// Size returns the region length in bytes.
func (d Descriptor) Size() uint64 {
	return d.PageCount << mem.PageShift
}

// End returns the physical address of the first byte after the region.
func (d Descriptor) End() uint64 {
	return d.PhysAddress + d.Size()
}

// encode writes d into buf using the kernel-native layout.
func (d Descriptor) encode(buf []byte) {
	_ = buf[DescriptorSize-1]
	binary.LittleEndian.PutUint32(buf[0:], uint32(d.Type))
	binary.LittleEndian.PutUint32(buf[4:], 0)
	binary.LittleEndian.PutUint64(buf[8:], d.PhysAddress)
	binary.LittleEndian.PutUint64(buf[16:], d.VirtAddress)
	binary.LittleEndian.PutUint64(buf[24:], d.PageCount)
	binary.LittleEndian.PutUint64(buf[32:], d.Attributes)
}

// decodeDescriptor reads a kernel-native descriptor from buf.
func decodeDescriptor(buf []byte) Descriptor {
	_ = buf[DescriptorSize-1]
	return Descriptor{
		Type:        RegionType(binary.LittleEndian.Uint32(buf[0:])),
		PhysAddress: binary.LittleEndian.Uint64(buf[8:]),
		VirtAddress: binary.LittleEndian.Uint64(buf[16:]),
		PageCount:   binary.LittleEndian.Uint64(buf[24:]),
		Attributes:  binary.LittleEndian.Uint64(buf[32:]),
	}
}
