package firmware

import (
	"fmt"

	"github.com/pkg/errors"
)

// Status is the result code returned by firmware services. Error codes have
// the high bit set.
type Status uint64

const errorBit = Status(1) << 63

// Status codes returned by the firmware services used by the loader.
const (
	Success          Status = 0
	LoadError               = errorBit | 1
	InvalidParameter        = errorBit | 2
	Unsupported             = errorBit | 3
	BadBufferSize           = errorBit | 4
	BufferTooSmall          = errorBit | 5
	NotReady                = errorBit | 6
	DeviceError             = errorBit | 7
	WriteProtected          = errorBit | 8
	OutOfResources          = errorBit | 9
	VolumeCorrupted         = errorBit | 10
	VolumeFull              = errorBit | 11
	NoMedia                 = errorBit | 12
	MediaChanged            = errorBit | 13
	NotFound                = errorBit | 14
	AccessDenied            = errorBit | 15
	Aborted                 = errorBit | 21
	EndOfFile               = errorBit | 31
)

var statusNames = map[Status]string{
	Success:          "success",
	LoadError:        "load error",
	InvalidParameter: "invalid parameter",
	Unsupported:      "unsupported",
	BadBufferSize:    "bad buffer size",
	BufferTooSmall:   "buffer too small",
	NotReady:         "not ready",
	DeviceError:      "device error",
	WriteProtected:   "write protected",
	OutOfResources:   "out of resources",
	VolumeCorrupted:  "volume corrupted",
	VolumeFull:       "volume full",
	NoMedia:          "no media",
	MediaChanged:     "media changed",
	NotFound:         "not found",
	AccessDenied:     "access denied",
	Aborted:          "aborted",
	EndOfFile:        "end of file",
}

// IsError returns true if s describes a failure.
func (s Status) IsError() bool {
	return s&errorBit != 0
}

// Error implements the error interface.
func (s Status) Error() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return fmt.Sprintf("status 0x%x", uint64(s))
}

// StatusOf returns the Status that caused err. A nil error maps to Success
// and errors that were not produced by the firmware map to DeviceError.
func StatusOf(err error) Status {
	if err == nil {
		return Success
	}

	if s, ok := errors.Cause(err).(Status); ok {
		return s
	}

	return DeviceError
}
