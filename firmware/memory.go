package firmware

import "encoding/binary"

// MemoryType classifies a region of the firmware memory map.
type MemoryType uint32

// Memory types reported by the firmware. The loader allocates everything it
// hands to the kernel as LoaderData.
const (
	ReservedMemoryType MemoryType = iota
	LoaderCode
	LoaderData
	BootServicesCode
	BootServicesData
	RuntimeServicesCode
	RuntimeServicesData
	ConventionalMemory
	UnusableMemory
	ACPIReclaimMemory
	ACPIMemoryNVS
	MemoryMappedIO
	MemoryMappedIOPortSpace
	PalCode
	PersistentMemory
	UnacceptedMemoryType
	MaxMemoryType
)

// AllocateType selects the page allocation strategy.
type AllocateType uint32

const (
	// AllocateAnyPages lets the firmware pick the physical address.
	AllocateAnyPages AllocateType = iota

	// AllocateMaxAddress allocates pages below a caller supplied address.
	AllocateMaxAddress

	// AllocateAddress reserves pages at exactly the caller supplied address.
	AllocateAddress
)

// DescriptorSize is the size of the UEFI memory descriptor layout.
// Firmware implementations may report a larger stride; consumers must always
// advance by the reported descriptor size.
const DescriptorSize = 40

// DescriptorVersion is the memory descriptor version understood by the loader.
const DescriptorVersion = 1

// MemoryDescriptor is the firmware-native description of a memory region.
type MemoryDescriptor struct {
	Type          MemoryType
	PhysicalStart uint64
	VirtualStart  uint64
	NumberOfPages uint64
	Attribute     uint64
}

// Decode populates d from the first DescriptorSize bytes of buf.
func (d *MemoryDescriptor) Decode(buf []byte) {
	_ = buf[DescriptorSize-1]
	d.Type = MemoryType(binary.LittleEndian.Uint32(buf[0:]))
	d.PhysicalStart = binary.LittleEndian.Uint64(buf[8:])
	d.VirtualStart = binary.LittleEndian.Uint64(buf[16:])
	d.NumberOfPages = binary.LittleEndian.Uint64(buf[24:])
	d.Attribute = binary.LittleEndian.Uint64(buf[32:])
}

// Encode writes d into the first DescriptorSize bytes of buf.
func (d *MemoryDescriptor) Encode(buf []byte) {
	_ = buf[DescriptorSize-1]
	binary.LittleEndian.PutUint32(buf[0:], uint32(d.Type))
	binary.LittleEndian.PutUint32(buf[4:], 0)
	binary.LittleEndian.PutUint64(buf[8:], d.PhysicalStart)
	binary.LittleEndian.PutUint64(buf[16:], d.VirtualStart)
	binary.LittleEndian.PutUint64(buf[24:], d.NumberOfPages)
	binary.LittleEndian.PutUint64(buf[32:], d.Attribute)
}

// MemoryMapInfo is returned by GetMemoryMap.
type MemoryMapInfo struct {
	// MapSize is the number of bytes written into the buffer. When
	// GetMemoryMap fails with BufferTooSmall, MapSize holds the size of
	// the buffer required to store the current map.
	MapSize uint64

	// MapKey identifies the map snapshot; ExitBootServices only accepts
	// the key of the most recent snapshot.
	MapKey uint64

	DescriptorSize    uint64
	DescriptorVersion uint32
}

// Memory provides access to physical memory.
type Memory interface {
	// Bytes returns a slice aliasing size bytes of physical memory
	// starting at addr.
	Bytes(addr, size uint64) ([]byte, error)
}
