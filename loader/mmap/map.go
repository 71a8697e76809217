package mmap

import (
	"fmt"
	"io"

	"github.com/u-root/u-root/pkg/boot/bzimage"
)

// MemoryMap is an immutable view over a translated memory map: a base
// address, the map size in bytes and the stride between descriptors. The
// backing memory is owned by the kernel once control has been transferred;
// the view itself offers no way to modify it.
type MemoryMap struct {
	base   uint64
	buf    []byte
	size   uint64
	stride uint64
}

// NewMemoryMap returns a view over size bytes of buf which is located at
// physical address base. Descriptors are stride bytes apart.
func NewMemoryMap(base uint64, buf []byte, size, stride uint64) MemoryMap {
	if size > uint64(len(buf)) {
		size = uint64(len(buf))
	}

	return MemoryMap{
		base:   base,
		buf:    buf[:size:size],
		size:   size,
		stride: stride,
	}
}

// Base returns the physical address of the first descriptor.
func (m MemoryMap) Base() uint64 { return m.base }

// Size returns the size of the map in bytes.
func (m MemoryMap) Size() uint64 { return m.size }

// Stride returns the distance in bytes between two descriptors.
func (m MemoryMap) Stride() uint64 { return m.stride }

// Count returns the number of descriptors in the map.
func (m MemoryMap) Count() uint64 {
	if m.stride == 0 {
		return 0
	}

	return m.size / m.stride
}

// Descriptor returns the descriptor at the given index, located at
// base + index*stride. It returns false if index is out of range.
func (m MemoryMap) Descriptor(index uint64) (Descriptor, bool) {
	if index >= m.Count() {
		return Descriptor{}, false
	}

	offset := index * m.stride
	return decodeDescriptor(m.buf[offset : offset+DescriptorSize]), true
}

// RegionVisitor is invoked by Visit for each region. The visitor must return
// true to continue or false to abort the scan.
type RegionVisitor func(index uint64, d Descriptor) bool

// Visit invokes visitor for each descriptor in map order.
func (m MemoryMap) Visit(visitor RegionVisitor) {
	for index, count := uint64(0), m.Count(); index < count; index++ {
		d, _ := m.Descriptor(index)
		if !visitor(index, d) {
			return
		}
	}
}

// TotalUsable returns the number of bytes in Usable regions.
func (m MemoryMap) TotalUsable() uint64 {
	var total uint64
	m.Visit(func(_ uint64, d Descriptor) bool {
		if d.Type == Usable {
			total += d.Size()
		}
		return true
	})

	return total
}

// E820 converts the map into x86 E820 entries. Loader and boot services
// memory is reported as RAM since the firmware no longer owns it once the
// kernel runs.
func (m MemoryMap) E820() []bzimage.E820Entry {
	entries := make([]bzimage.E820Entry, 0, m.Count())
	m.Visit(func(_ uint64, d Descriptor) bool {
		e := bzimage.E820Entry{
			Addr: d.PhysAddress,
			Size: d.Size(),
		}

		switch d.Type {
		case Usable, LoaderCode, LoaderData, BootServicesCode, BootServicesData:
			e.MemType = bzimage.RAM
		case ACPIReclaim:
			e.MemType = bzimage.ACPI
		case ACPINVS:
			e.MemType = bzimage.NVS
		default:
			e.MemType = bzimage.Reserved
		}

		entries = append(entries, e)
		return true
	})

	return entries
}

// Dump writes a human readable listing of the map to w.
func (m MemoryMap) Dump(w io.Writer) {
	m.Visit(func(_ uint64, d Descriptor) bool {
		fmt.Fprintf(w, "[0x%010x - 0x%010x] pages: %8d type: %s\n", d.PhysAddress, d.End(), d.PageCount, d.Type)
		return true
	})
	fmt.Fprintf(w, "usable memory: %dKb\n", m.TotalUsable()>>10)
}
