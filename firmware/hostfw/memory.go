package hostfw

import (
	"sort"

	"github.com/FacelessSociety/FacelessLoader2/device/acpi/table"
	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/loader/mem"
)

const (
	// Fresh allocations are filled with this value; firmware makes no
	// promise about the contents of allocated memory.
	poisonByte = 0xcc

	lowMemEnd  = 0x9f000
	highMemBeg = 0x100000
)

// region is a contiguous range of frames sharing the same memory type.
type region struct {
	typ   firmware.MemoryType
	start mem.Frame
	pages uint64
}

func (r region) end() mem.Frame {
	return r.start + mem.Frame(r.pages)
}

// initMemory lays out the emulated physical address space:
//
//	[0, 4K)                  reserved (null page)
//	[4K, 0x9f000)            conventional
//	[0x9f000, 1M)            reserved (legacy BIOS area)
//	[1M, top)                conventional
//	runtime services page    runtime services data
//	firmware tables page     ACPI reclaim (RSDP, SMBIOS anchor)
//	framebuffer              memory mapped I/O
func (m *Machine) initMemory() {
	totalPages := uint64(len(m.arena)) >> mem.PageShift

	var fbPages uint64
	if g := m.cfg.Graphics; g != nil {
		stride := g.PixelsPerScanLine
		if stride == 0 {
			stride = g.Width
		}

		fbSize := uint64(stride) * uint64(g.Height) * 4
		fbPages = mem.Size(fbSize).Pages()
		m.gop = &firmware.GraphicsMode{
			FrameBufferBase:      (totalPages - fbPages) << mem.PageShift,
			FrameBufferSize:      fbSize,
			HorizontalResolution: g.Width,
			VerticalResolution:   g.Height,
			PixelsPerScanLine:    stride,
			PixelFormat:          firmware.PixelBlueGreenRedReserved8BitPerColor,
		}
	}

	tablesFrame := mem.Frame(totalPages - fbPages - 1)
	runtimeFrame := tablesFrame - 1

	m.regions = []region{
		{firmware.ReservedMemoryType, 0, 1},
		{firmware.ConventionalMemory, 1, lowMemEnd>>mem.PageShift - 1},
		{firmware.ReservedMemoryType, mem.FrameFromAddress(lowMemEnd), (highMemBeg - lowMemEnd) >> mem.PageShift},
		{firmware.ConventionalMemory, mem.FrameFromAddress(highMemBeg), uint64(runtimeFrame) - highMemBeg>>mem.PageShift},
		{firmware.RuntimeServicesData, runtimeFrame, 1},
		{firmware.ACPIReclaimMemory, tablesFrame, 1},
	}

	if fbPages != 0 {
		m.regions = append(m.regions, region{firmware.MemoryMappedIO, tablesFrame + 1, fbPages})
	}

	m.installTables(tablesFrame.Address())
}

// installTables populates the firmware tables page and the configuration
// table list.
func (m *Machine) installTables(base uint64) {
	const smbiosOffset = 0x100

	copy(m.arena[base+smbiosOffset:], "_SM3_")
	m.tables = append(m.tables, firmware.ConfigurationTable{
		VendorGUID:  firmware.SMBIOSTableGUID,
		VendorTable: base + smbiosOffset,
	})

	if m.cfg.ACPIRevision == 0 {
		return
	}

	rsdp := table.ExtRSDPDescriptor{
		RSDPDescriptor: table.RSDPDescriptor{
			Signature: table.RSDPSignature,
			OEMID:     [6]byte{'H', 'O', 'S', 'T', 'F', 'W'},
		},
		Length: table.ExtRSDPSize,
	}

	if m.cfg.ACPIRevision > 1 {
		rsdp.Revision = 2
	}
	rsdp.Encode(m.arena[base:])

	if rsdp.Revision > 1 {
		m.tables = append(m.tables, firmware.ConfigurationTable{VendorGUID: firmware.ACPI20TableGUID, VendorTable: base})
	}
	m.tables = append(m.tables, firmware.ConfigurationTable{VendorGUID: firmware.ACPITableGUID, VendorTable: base})
}

// Bytes implements firmware.Memory.
func (m *Machine) Bytes(addr, size uint64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}

	if end := addr + size; end < addr || end > uint64(len(m.arena)) {
		return nil, firmware.InvalidParameter
	}

	return m.arena[addr : addr+size : addr+size], nil
}

// AllocatePool implements firmware.BootServices. Pool allocations are page
// granular and are carved from the top of the highest conventional region.
func (m *Machine) AllocatePool(memType firmware.MemoryType, size uint64) (uint64, error) {
	m.record("AllocatePool %d", size)
	if err := m.checkBootServices(); err != nil {
		return 0, err
	}

	if size == 0 {
		return 0, firmware.InvalidParameter
	}

	return m.allocTopDown(memType, mem.Size(size).Pages())
}

// AllocatePages implements firmware.BootServices.
func (m *Machine) AllocatePages(allocType firmware.AllocateType, memType firmware.MemoryType, pages, addr uint64) (uint64, error) {
	m.record("AllocatePages 0x%x %d", addr, pages)
	if err := m.checkBootServices(); err != nil {
		return 0, err
	}

	if pages == 0 {
		return 0, firmware.InvalidParameter
	}

	switch allocType {
	case firmware.AllocateAnyPages:
		return m.allocTopDown(memType, pages)
	case firmware.AllocateAddress:
		if !mem.PageAligned(addr) {
			return 0, firmware.InvalidParameter
		}
		return m.allocAt(memType, mem.FrameFromAddress(addr), pages)
	default:
		return 0, firmware.Unsupported
	}
}

// allocTopDown scans the memory regions from the highest address downwards
// and reserves pages at the top of the first conventional region that is
// large enough.
func (m *Machine) allocTopDown(memType firmware.MemoryType, pages uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.regions) - 1; i >= 0; i-- {
		r := m.regions[i]
		if r.typ != firmware.ConventionalMemory || r.pages < pages {
			continue
		}

		start := r.end() - mem.Frame(pages)
		m.claim(memType, start, pages)
		return start.Address(), nil
	}

	return 0, firmware.OutOfResources
}

// allocAt reserves pages starting at an exact frame. The whole range must
// lie within a single conventional region.
func (m *Machine) allocAt(memType firmware.MemoryType, start mem.Frame, pages uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := start + mem.Frame(pages)
	for _, r := range m.regions {
		if r.typ != firmware.ConventionalMemory || start < r.start || end > r.end() {
			continue
		}

		m.claim(memType, start, pages)
		return start.Address(), nil
	}

	return 0, firmware.NotFound
}

// claim splits the conventional region containing [start, start+pages) and
// assigns memType to the range. It must be called with mu held.
func (m *Machine) claim(memType firmware.MemoryType, start mem.Frame, pages uint64) {
	end := start + mem.Frame(pages)

	var out []region
	for _, r := range m.regions {
		if start < r.start || end > r.end() {
			out = append(out, r)
			continue
		}

		if start > r.start {
			out = append(out, region{r.typ, r.start, uint64(start - r.start)})
		}
		out = append(out, region{memType, start, pages})
		if end < r.end() {
			out = append(out, region{r.typ, end, uint64(r.end() - end)})
		}
	}

	m.regions = coalesce(out)
	m.mapKey++

	buf := m.arena[start.Address():end.Address()]
	for i := range buf {
		buf[i] = poisonByte
	}
}

// coalesce merges adjacent regions of the same type.
func coalesce(regions []region) []region {
	sort.Slice(regions, func(i, j int) bool { return regions[i].start < regions[j].start })

	out := regions[:0]
	for _, r := range regions {
		if n := len(out); n != 0 && out[n-1].typ == r.typ && out[n-1].end() == r.start {
			out[n-1].pages += r.pages
			continue
		}
		out = append(out, r)
	}

	return out
}

// GetMemoryMap implements firmware.BootServices.
func (m *Machine) GetMemoryMap(buf []byte) (firmware.MemoryMapInfo, error) {
	m.record("GetMemoryMap %d", len(buf))
	if err := m.checkBootServices(); err != nil {
		return firmware.MemoryMapInfo{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stride := m.cfg.DescriptorSize
	info := firmware.MemoryMapInfo{
		MapSize:           uint64(len(m.regions)) * stride,
		MapKey:            m.mapKey,
		DescriptorSize:    stride,
		DescriptorVersion: firmware.DescriptorVersion,
	}

	if uint64(len(buf)) < info.MapSize {
		return info, firmware.BufferTooSmall
	}

	for i, r := range m.regions {
		entry := buf[uint64(i)*stride : uint64(i+1)*stride]
		d := firmware.MemoryDescriptor{
			Type:          r.typ,
			PhysicalStart: r.start.Address(),
			NumberOfPages: r.pages,
		}
		if r.typ == firmware.RuntimeServicesData || r.typ == firmware.MemoryMappedIO {
			d.Attribute = 1 << 63
		}
		d.Encode(entry)
		for j := firmware.DescriptorSize; j < len(entry); j++ {
			entry[j] = 0
		}
	}

	return info, nil
}

// ExitBootServices implements firmware.BootServices.
func (m *Machine) ExitBootServices(mapKey uint64) error {
	m.record("ExitBootServices 0x%x", mapKey)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.exited {
		return firmware.Unsupported
	}

	if mapKey != m.mapKey {
		return firmware.InvalidParameter
	}

	m.exited = true
	return nil
}

func (m *Machine) checkBootServices() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.exited {
		return firmware.Unsupported
	}
	return nil
}
