package mmap

import (
	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/loader"
	"github.com/FacelessSociety/FacelessLoader2/loader/mem"
	"github.com/pkg/errors"
)

// SlackEntries is the number of extra descriptors reserved in the raw map
// buffer. Allocating the buffers themselves may split existing regions so
// the map is always a bit larger than first reported.
const SlackEntries = 8

// The number of snapshot attempts made by Fetch before giving up on a map
// that keeps outgrowing its buffers.
const maxFetchAttempts = 4

var (
	errMapQuery = &loader.Error{Module: "mmap", Message: "memory map query failed", Kind: loader.FirmwareCallFailure}
	errMapGrown = &loader.Error{Module: "mmap", Message: "memory map outgrew the reserved buffer", Kind: loader.AllocationFailure}
)

// Buffers holds the memory map buffers allocated up front. Both are
// allocated before the final map snapshot is taken because any allocation
// after that point would make the snapshot stale.
type Buffers struct {
	// The buffer that receives the firmware map.
	RawAddr uint64
	Raw     []byte

	// The buffer that receives the translated map.
	MapAddr uint64
	Map     []byte
}

// Reserve negotiates the memory map size with the firmware and allocates
// buffers large enough to receive and translate it.
func Reserve(pool *mem.Pool) (*Buffers, error) {
	// Query with an empty buffer to find out how large the map is.
	info, err := pool.Boot.GetMemoryMap(nil)
	switch firmware.StatusOf(err) {
	case firmware.Success, firmware.BufferTooSmall:
	default:
		return nil, errors.Wrapf(errMapQuery, "size query: %v", err)
	}

	stride := info.DescriptorSize
	if stride < firmware.DescriptorSize {
		return nil, errors.Wrapf(errBadStride, "stride %d", stride)
	}

	var (
		b       Buffers
		rawSize = info.MapSize + SlackEntries*stride
		mapSize = (rawSize / stride) * DescriptorSize
	)

	if b.RawAddr, b.Raw, err = pool.Alloc(rawSize); err != nil {
		return nil, err
	}

	if b.MapAddr, b.Map, err = pool.Alloc(mapSize); err != nil {
		return nil, err
	}

	return &b, nil
}

// Snapshot fetches the current firmware map into the reserved buffers and
// translates it. It returns the translated map and the key identifying the
// snapshot. Snapshot performs no allocations. A map that no longer fits the
// raw buffer is reported as an allocation failure; any other query failure
// is a firmware call failure since a map that failed to refresh cannot be
// trusted.
func (b *Buffers) Snapshot(bs firmware.BootServices) (MemoryMap, uint64, error) {
	info, err := bs.GetMemoryMap(b.Raw)
	switch firmware.StatusOf(err) {
	case firmware.Success:
	case firmware.BufferTooSmall:
		return MemoryMap{}, 0, errors.Wrapf(errMapGrown, "map size %d, buffer size %d", info.MapSize, len(b.Raw))
	default:
		return MemoryMap{}, 0, errors.Wrapf(errMapQuery, "fetch into %d byte buffer: %v", len(b.Raw), err)
	}

	count, err := Translate(b.Raw, info.MapSize, info.DescriptorSize, b.Map)
	if err != nil {
		return MemoryMap{}, 0, err
	}

	size := count * DescriptorSize
	return NewMemoryMap(b.MapAddr, b.Map, size, DescriptorSize), info.MapKey, nil
}

// Fetch takes a snapshot into b. Allocations made since b was reserved may
// have split enough regions for the map to outgrow it; in that case Fetch
// reserves larger buffers, replaces the contents of b and tries again.
// Fetch may therefore allocate, but never after the snapshot it returns.
func (b *Buffers) Fetch(pool *mem.Pool) (MemoryMap, uint64, error) {
	for attempt := 1; ; attempt++ {
		m, mapKey, err := b.Snapshot(pool.Boot)
		if errors.Cause(err) != errMapGrown || attempt == maxFetchAttempts {
			return m, mapKey, err
		}

		grown, err := Reserve(pool)
		if err != nil {
			return MemoryMap{}, 0, err
		}
		*b = *grown
	}
}
