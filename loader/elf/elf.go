// Package elf loads 64-bit ELF executables into the physical addresses
// requested by their program headers.
package elf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"math"

	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/loader"
	"github.com/FacelessSociety/FacelessLoader2/loader/asset"
	"github.com/FacelessSociety/FacelessLoader2/loader/mem"
	"github.com/pkg/errors"
)

const (
	headerSize     = 64
	progHeaderSize = 56
)

var (
	errBadMagic      = &loader.Error{Module: "elf", Message: "kernel image is not an ELF file", Kind: loader.FormatInvalid}
	errBadClass      = &loader.Error{Module: "elf", Message: "kernel image is not a 64-bit ELF file", Kind: loader.FormatInvalid}
	errBadEncoding   = &loader.Error{Module: "elf", Message: "kernel image is not little-endian", Kind: loader.FormatInvalid}
	errBadType       = &loader.Error{Module: "elf", Message: "kernel image is not an executable", Kind: loader.FormatInvalid}
	errBadMachine    = &loader.Error{Module: "elf", Message: "kernel image targets an unsupported machine", Kind: loader.FormatInvalid}
	errBadVersion    = &loader.Error{Module: "elf", Message: "kernel image has an unsupported ELF version", Kind: loader.FormatInvalid}
	errBadProgHeader = &loader.Error{Module: "elf", Message: "kernel image has an invalid program header table", Kind: loader.FormatInvalid}
	errBadSegment    = &loader.Error{Module: "elf", Message: "kernel image has an invalid loadable segment", Kind: loader.FormatInvalid}
	errNoSegments    = &loader.Error{Module: "elf", Message: "kernel image has no loadable segments", Kind: loader.FormatInvalid}
	errBadState      = &loader.Error{Module: "elf", Message: "loader operation invoked out of order"}
)

// State describes the progress of a Loader.
type State uint8

const (
	Unopened State = iota
	HeaderRead
	HeaderValidated
	ProgramHeadersRead
	SegmentsLoaded
	Ready
)

var stateNames = []string{
	"unopened",
	"header read",
	"header validated",
	"program headers read",
	"segments loaded",
	"ready",
}

// String implements fmt.Stringer for State.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Segment describes a PT_LOAD segment that has been copied into memory.
type Segment struct {
	// The physical address requested by the program header.
	PhysAddress uint64

	// The number of pages reserved for the segment.
	PageCount uint64

	FileSize   uint64
	MemSize    uint64
	FileOffset uint64

	// Data aliases the MemSize bytes of memory at PhysAddress.
	Data []byte
}

// Image is a loaded kernel image.
type Image struct {
	// The kernel entry point.
	Entry uint64

	Segments []Segment
}

// Loader drives the loading of a single ELF image through its states:
// Unopened, HeaderRead, HeaderValidated, ProgramHeadersRead,
// SegmentsLoaded and Ready. Each step must be invoked in order.
type Loader struct {
	// The machine the image must target.
	Machine elf.Machine

	state    State
	file     firmware.File
	fileSize uint64
	path     string

	header elf.Header64
	progs  []elf.Prog64
	image  Image
}

// NewLoader returns a loader for images targeting the given machine.
func NewLoader(machine elf.Machine) *Loader {
	return &Loader{Machine: machine}
}

// State returns the current loader state.
func (l *Loader) State() State {
	return l.state
}

// Header returns the ELF header. It is only meaningful once the header has
// been read.
func (l *Loader) Header() elf.Header64 {
	return l.header
}

func (l *Loader) expect(s State) error {
	if l.state != s {
		return errors.Wrapf(errBadState, "expected state %q; current state %q", s, l.state)
	}
	return nil
}

// ReadHeader opens the image at path and reads its ELF header.
func (l *Loader) ReadHeader(vol firmware.Volume, path string) error {
	if err := l.expect(Unopened); err != nil {
		return err
	}

	f, size, err := asset.Open(vol, path)
	if err != nil {
		return err
	}

	var buf [headerSize]byte
	if err = asset.ReadExact(f, buf[:]); err != nil {
		f.Close()
		return errors.Wrapf(err, "%s header", path)
	}

	if err = binary.Read(bytes.NewReader(buf[:]), binary.LittleEndian, &l.header); err != nil {
		f.Close()
		return errors.Wrap(errBadMagic, err.Error())
	}

	l.file, l.fileSize, l.path = f, size, path
	l.state = HeaderRead
	return nil
}

// Validate checks, in order, the magic number, the class, the object type,
// the target machine and the format version of the header.
func (l *Loader) Validate() error {
	if err := l.expect(HeaderRead); err != nil {
		return err
	}

	h := &l.header
	switch {
	case !bytes.Equal(h.Ident[:elf.EI_CLASS], []byte(elf.ELFMAG)):
		return errors.Wrapf(errBadMagic, "%s: got % x", l.path, h.Ident[:elf.EI_CLASS])
	case elf.Class(h.Ident[elf.EI_CLASS]) != elf.ELFCLASS64:
		return errors.Wrapf(errBadClass, "%s: %s", l.path, elf.Class(h.Ident[elf.EI_CLASS]))
	case elf.Data(h.Ident[elf.EI_DATA]) != elf.ELFDATA2LSB:
		return errors.Wrapf(errBadEncoding, "%s: %s", l.path, elf.Data(h.Ident[elf.EI_DATA]))
	case elf.Type(h.Type) != elf.ET_EXEC:
		return errors.Wrapf(errBadType, "%s: %s", l.path, elf.Type(h.Type))
	case elf.Machine(h.Machine) != l.Machine:
		return errors.Wrapf(errBadMachine, "%s: got %s, expected %s", l.path, elf.Machine(h.Machine), l.Machine)
	case elf.Version(h.Version) != elf.EV_CURRENT:
		return errors.Wrapf(errBadVersion, "%s: %d", l.path, h.Version)
	case h.Phnum != 0 && h.Phentsize < progHeaderSize:
		return errors.Wrapf(errBadProgHeader, "%s: entry size %d", l.path, h.Phentsize)
	}

	l.state = HeaderValidated
	return nil
}

// ReadProgramHeaders reads the whole program header table in one block.
func (l *Loader) ReadProgramHeaders() error {
	if err := l.expect(HeaderValidated); err != nil {
		return err
	}

	var (
		entSize   = uint64(l.header.Phentsize)
		tableSize = uint64(l.header.Phnum) * entSize
	)

	// The table must lie within the file.
	if l.header.Phoff > l.fileSize || tableSize > l.fileSize-l.header.Phoff {
		return errors.Wrapf(errBadProgHeader, "%s: table [%d, +%d) exceeds file size %d", l.path, l.header.Phoff, tableSize, l.fileSize)
	}

	buf := make([]byte, tableSize)

	if err := asset.ReadAt(l.file, l.header.Phoff, buf); err != nil {
		return errors.Wrapf(err, "%s program headers", l.path)
	}

	l.progs = make([]elf.Prog64, l.header.Phnum)
	for i := range l.progs {
		entry := buf[uint64(i)*entSize : uint64(i)*entSize+progHeaderSize]
		if err := binary.Read(bytes.NewReader(entry), binary.LittleEndian, &l.progs[i]); err != nil {
			return errors.Wrapf(errBadProgHeader, "%s: entry %d: %v", l.path, i, err)
		}
	}

	l.state = ProgramHeadersRead
	return nil
}

// LoadSegments reserves the pages requested by each PT_LOAD segment at
// its physical address and copies the segment contents. The part of the
// segment that is not backed by the file is zeroed.
func (l *Loader) LoadSegments(pool *mem.Pool) error {
	if err := l.expect(ProgramHeadersRead); err != nil {
		return err
	}

	for i, prog := range l.progs {
		if elf.ProgType(prog.Type) != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}

		if prog.Memsz < prog.Filesz {
			return errors.Wrapf(errBadSegment, "%s: segment %d: file size %d exceeds memory size %d", l.path, i, prog.Filesz, prog.Memsz)
		}

		// The page-rounded end of the segment must be addressable.
		if end := prog.Paddr + prog.Memsz; end < prog.Paddr || end > math.MaxUint64-(uint64(mem.PageSize)-1) {
			return errors.Wrapf(errBadSegment, "%s: segment %d: range 0x%x +0x%x overflows the address space", l.path, i, prog.Paddr, prog.Memsz)
		}

		seg, err := l.loadSegment(pool, &prog)
		if err != nil {
			return errors.Wrapf(err, "%s: segment %d", l.path, i)
		}

		l.image.Segments = append(l.image.Segments, seg)
	}

	if len(l.image.Segments) == 0 {
		return errors.Wrapf(errNoSegments, "%s", l.path)
	}

	l.state = SegmentsLoaded
	return nil
}

func (l *Loader) loadSegment(pool *mem.Pool, prog *elf.Prog64) (Segment, error) {
	var (
		pageBase  = mem.FrameFromAddress(prog.Paddr).Address()
		pageDelta = prog.Paddr - pageBase
		seg       = Segment{
			PhysAddress: prog.Paddr,
			PageCount:   mem.Size(pageDelta + prog.Memsz).Pages(),
			FileSize:    prog.Filesz,
			MemSize:     prog.Memsz,
			FileOffset:  prog.Off,
		}
	)

	pages, err := pool.AllocAt(pageBase, seg.PageCount)
	if err != nil {
		return seg, err
	}

	seg.Data = pages[pageDelta : pageDelta+prog.Memsz]
	if err = asset.ReadAt(l.file, prog.Off, seg.Data[:prog.Filesz]); err != nil {
		return seg, err
	}

	loader.Memset(seg.Data[prog.Filesz:], 0)
	return seg, nil
}

// Finish closes the image file and returns the loaded image.
func (l *Loader) Finish() (*Image, error) {
	if err := l.expect(SegmentsLoaded); err != nil {
		return nil, err
	}

	l.file.Close()
	l.file = nil

	l.image.Entry = l.header.Entry
	l.state = Ready
	return &l.image, nil
}

// Close releases the image file. It is safe to call Close in any state.
func (l *Loader) Close() {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

// Load runs all loader steps for the image at path.
func Load(vol firmware.Volume, pool *mem.Pool, path string, machine elf.Machine) (*Image, error) {
	l := NewLoader(machine)
	defer l.Close()

	if err := l.ReadHeader(vol, path); err != nil {
		return nil, err
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}

	if err := l.ReadProgramHeaders(); err != nil {
		return nil, err
	}

	if err := l.LoadSegments(pool); err != nil {
		return nil, err
	}

	return l.Finish()
}
