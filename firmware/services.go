// Package firmware defines the narrow set of firmware services consumed by
// the loader. Implementations either bind to real UEFI boot and runtime
// services or emulate them (see package hostfw).
package firmware

import (
	"io"
	"time"
)

// ResetType selects the kind of platform reset requested via ResetSystem.
type ResetType uint32

const (
	ResetCold ResetType = iota
	ResetWarm
	ResetShutdown
	ResetPlatformSpecific
)

// Key describes a keystroke read from the console input device.
type Key struct {
	ScanCode    uint16
	UnicodeChar rune
}

// File is an open file on the boot volume.
type File interface {
	// Read reads up to len(p) bytes from the current position. A short
	// read is not an error; reading at the end of the file returns 0, nil.
	Read(p []byte) (int, error)

	// SetPosition moves the file position to the absolute offset pos.
	SetPosition(pos uint64) error

	// Size queries the file info and returns the file size in bytes.
	Size() (uint64, error)

	Close() error
}

// Volume is the root directory of the volume the loader was started from.
type Volume interface {
	// Open opens a file by its path relative to the volume root.
	Open(path string) (File, error)
}

// PixelFormat describes the layout of a framebuffer pixel.
type PixelFormat uint32

const (
	PixelRedGreenBlueReserved8BitPerColor PixelFormat = iota
	PixelBlueGreenRedReserved8BitPerColor
	PixelBitMask
	PixelBltOnly
)

// GraphicsMode describes the active graphics output mode.
type GraphicsMode struct {
	FrameBufferBase      uint64
	FrameBufferSize      uint64
	HorizontalResolution uint32
	VerticalResolution   uint32
	PixelsPerScanLine    uint32
	PixelFormat          PixelFormat
}

// GraphicsOutput is the graphics output protocol.
type GraphicsOutput interface {
	// Mode returns the currently active mode.
	Mode() (*GraphicsMode, error)
}

// BootServices are available until ExitBootServices succeeds.
type BootServices interface {
	// AllocatePool allocates size bytes of memory of the requested type
	// and returns its physical address.
	AllocatePool(memType MemoryType, size uint64) (uint64, error)

	// AllocatePages allocates pages of memory. When allocType is
	// AllocateAddress, addr specifies the exact physical address that
	// must be reserved.
	AllocatePages(allocType AllocateType, memType MemoryType, pages, addr uint64) (uint64, error)

	// GetMemoryMap copies the current memory map into buf. If buf is too
	// small, it fails with BufferTooSmall and info.MapSize holds the
	// required size.
	GetMemoryMap(buf []byte) (MemoryMapInfo, error)

	// LocateGraphicsOutput locates the graphics output protocol.
	LocateGraphicsOutput() (GraphicsOutput, error)

	// OpenVolume opens the root directory of the boot volume.
	OpenVolume() (Volume, error)

	// ExitBootServices terminates all boot services. The mapKey must
	// match the key returned by the last GetMemoryMap call.
	ExitBootServices(mapKey uint64) error
}

// RuntimeServices remain available after ExitBootServices.
type RuntimeServices interface {
	// GetTime returns the current time as reported by the platform clock.
	GetTime() (time.Time, error)

	// ResetSystem resets the platform. It does not return on real
	// hardware.
	ResetSystem(resetType ResetType, status Status)
}

// TextInput is the console input device.
type TextInput interface {
	// ReadKeyStroke returns the next pending keystroke or NotReady if no
	// key has been pressed.
	ReadKeyStroke() (Key, error)
}

// TextOutput is the console output device.
type TextOutput interface {
	io.Writer

	// Reset clears the output device.
	Reset() error
}

// SystemTable groups the firmware services handed to the loader entry point.
type SystemTable struct {
	ConIn   TextInput
	ConOut  TextOutput
	Boot    BootServices
	Runtime RuntimeServices

	// ConfigurationTables lists the vendor tables installed by the
	// firmware (ACPI, SMBIOS, ...).
	ConfigurationTables []ConfigurationTable

	// Memory provides access to physical memory.
	Memory Memory
}
