package mem

// Frame describes a physical memory page index.
type Frame uint64

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() uint64 {
	return uint64(f << PageShift)
}

// FrameFromAddress returns a Frame that corresponds to
// the given physical address. This function can handle
// both page-aligned and not aligned addresses. in the
// latter case, the input address will be rounded down
// to the frame that contains it.
func FrameFromAddress(physAddr uint64) Frame {
	return Frame((physAddr & ^(uint64(PageSize) - 1)) >> PageShift)
}

// PageAligned returns true if addr is a multiple of PageSize.
func PageAligned(addr uint64) bool {
	return addr&(uint64(PageSize)-1) == 0
}
