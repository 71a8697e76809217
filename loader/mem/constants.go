package mem

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the firmware page size in bytes. UEFI always uses
	// 4K pages regardless of the size used by the CPU.
	PageSize = Size(1 << PageShift)
)
