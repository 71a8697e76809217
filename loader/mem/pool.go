package mem

import (
	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/loader"
	"github.com/pkg/errors"
)

var (
	errPoolAlloc  = &loader.Error{Module: "mem", Message: "pool allocation failed", Kind: loader.AllocationFailure}
	errPagesAlloc = &loader.Error{Module: "mem", Message: "could not reserve pages at the requested address", Kind: loader.AllocationFailure}
	errMisaligned = &loader.Error{Module: "mem", Message: "fixed address is not page aligned", Kind: loader.FormatInvalid}
)

// Pool hands out firmware-owned LoaderData memory. Everything allocated
// through a Pool survives ExitBootServices and is never freed by the loader.
type Pool struct {
	Boot   firmware.BootServices
	Memory firmware.Memory
}

// Alloc allocates size bytes from the firmware pool and returns the physical
// address of the allocation together with a slice aliasing it.
func (p *Pool) Alloc(size uint64) (uint64, []byte, error) {
	addr, err := p.Boot.AllocatePool(firmware.LoaderData, size)
	if err != nil {
		return 0, nil, errors.Wrapf(errPoolAlloc, "%d bytes: %v", size, err)
	}

	buf, err := p.Memory.Bytes(addr, size)
	if err != nil {
		return 0, nil, errors.Wrapf(errPoolAlloc, "access 0x%x: %v", addr, err)
	}

	return addr, buf, nil
}

// AllocAt reserves pageCount pages starting at the exact physical address
// addr and returns a slice aliasing them. Unlike Alloc, the caller chooses
// the address; the firmware either grants it or the call fails.
func (p *Pool) AllocAt(addr, pageCount uint64) ([]byte, error) {
	if !PageAligned(addr) {
		return nil, errors.Wrapf(errMisaligned, "address 0x%x", addr)
	}

	got, err := p.Boot.AllocatePages(firmware.AllocateAddress, firmware.LoaderData, pageCount, addr)
	if err != nil {
		return nil, errors.Wrapf(errPagesAlloc, "%d pages at 0x%x: %v", pageCount, addr, err)
	}

	if got != addr {
		return nil, errors.Wrapf(errPagesAlloc, "firmware returned 0x%x instead of 0x%x", got, addr)
	}

	buf, err := p.Memory.Bytes(addr, pageCount<<PageShift)
	if err != nil {
		return nil, errors.Wrapf(errPagesAlloc, "access 0x%x: %v", addr, err)
	}

	return buf, nil
}
