package mmap

import (
	"math"
	"sort"

	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/loader"
	"github.com/FacelessSociety/FacelessLoader2/loader/mem"
	"github.com/pkg/errors"
)

var (
	errBadStride      = &loader.Error{Module: "mmap", Message: "firmware reported an invalid memory descriptor size", Kind: loader.FormatInvalid}
	errTruncatedMap   = &loader.Error{Module: "mmap", Message: "memory map size exceeds the supplied buffer", Kind: loader.FormatInvalid}
	errOverlap        = &loader.Error{Module: "mmap", Message: "memory map contains overlapping regions", Kind: loader.FormatInvalid}
	errRegionRange    = &loader.Error{Module: "mmap", Message: "memory map region extends past the end of the address space", Kind: loader.FormatInvalid}
	errMapBufTooSmall = &loader.Error{Module: "mmap", Message: "translated memory map buffer is too small", Kind: loader.AllocationFailure}
)

// Translate converts size bytes of firmware descriptors in raw, spaced stride
// bytes apart, into kernel-native descriptors written to dst and returns the
// number of translated descriptors.
//
// The raw buffer is never modified, so translating the same frozen firmware
// map twice always produces identical output.
func Translate(raw []byte, size, stride uint64, dst []byte) (uint64, error) {
	if stride < firmware.DescriptorSize || size%stride != 0 {
		return 0, errors.Wrapf(errBadStride, "stride %d, map size %d", stride, size)
	}

	if size > uint64(len(raw)) {
		return 0, errors.Wrapf(errTruncatedMap, "map size %d, buffer size %d", size, len(raw))
	}

	count := size / stride
	if need := count * DescriptorSize; need > uint64(len(dst)) {
		return 0, errors.Wrapf(errMapBufTooSmall, "need %d bytes, have %d", need, len(dst))
	}

	var (
		fwDesc  firmware.MemoryDescriptor
		regions = make([]Descriptor, 0, count)
	)

	for index := uint64(0); index < count; index++ {
		fwDesc.Decode(raw[index*stride:])

		d := Descriptor{
			Type:        RegionTypeOf(fwDesc.Type),
			PhysAddress: fwDesc.PhysicalStart,
			VirtAddress: fwDesc.VirtualStart,
			PageCount:   fwDesc.NumberOfPages,
			Attributes:  fwDesc.Attribute,
		}

		if d.PageCount > (math.MaxUint64-d.PhysAddress)>>mem.PageShift {
			return 0, errors.Wrapf(errRegionRange, "entry %d: 0x%x + %d pages", index, d.PhysAddress, d.PageCount)
		}

		d.encode(dst[index*DescriptorSize:])
		regions = append(regions, d)
	}

	if err := checkOverlaps(regions); err != nil {
		return 0, err
	}

	return count, nil
}

// checkOverlaps sorts a copy of the supplied regions by address and ensures
// that no region starts before the previous one ends.
func checkOverlaps(regions []Descriptor) error {
	sort.Slice(regions, func(i, j int) bool {
		return regions[i].PhysAddress < regions[j].PhysAddress
	})

	for i := 1; i < len(regions); i++ {
		prev, cur := regions[i-1], regions[i]
		if cur.PhysAddress < prev.End() {
			return errors.Wrapf(errOverlap, "[0x%x - 0x%x] overlaps [0x%x - 0x%x]",
				cur.PhysAddress, cur.End(), prev.PhysAddress, prev.End())
		}
	}

	return nil
}
