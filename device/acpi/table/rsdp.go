// Package table defines the ACPI structures located by the loader.
package table

import "encoding/binary"

const (
	// RSDPSize is the encoded size of an ACPI 1.0 RSDPDescriptor.
	RSDPSize = 20

	// ExtRSDPSize is the encoded size of an ExtRSDPDescriptor.
	ExtRSDPSize = 36
)

// RSDPSignature is the signature of the root system descriptor pointer.
var RSDPSignature = [8]byte{'R', 'S', 'D', ' ', 'P', 'T', 'R', ' '}

// RSDPDescriptor defines the root system descriptor pointer for ACPI 1.0. This
// is used as the entry-point for parsing ACPI data.
type RSDPDescriptor struct {
	// The signature must contain "RSD PTR " (last byte is a space).
	Signature [8]byte

	// A value that when added to the sum of all other bytes contained in
	// this descriptor should result in the value 0.
	Checksum uint8

	OEMID [6]byte

	// ACPI revision number. It is 0 for ACPI1.0 and 2 for versions 2.0 to 6.2.
	Revision uint8

	// Physical address of 32-bit root system descriptor table.
	RSDTAddr uint32
}

// ExtRSDPDescriptor extends RSDPDescriptor with additional fields. It is used
// when RSDPDescriptor.Revision > 1.
type ExtRSDPDescriptor struct {
	RSDPDescriptor

	// The size of the whole descriptor.
	Length uint32

	// Physical address of 64-bit root system descriptor table.
	XSDTAddr uint64

	// A value that when added to the sum of all bytes contained in
	// this descriptor should result in the value 0.
	ExtendedChecksum uint8
}

// DecodeRSDP parses an ACPI 1.0 descriptor from the first RSDPSize bytes of
// buf.
func DecodeRSDP(buf []byte) RSDPDescriptor {
	_ = buf[RSDPSize-1]

	var d RSDPDescriptor
	copy(d.Signature[:], buf[0:8])
	d.Checksum = buf[8]
	copy(d.OEMID[:], buf[9:15])
	d.Revision = buf[15]
	d.RSDTAddr = binary.LittleEndian.Uint32(buf[16:])
	return d
}

// DecodeExtRSDP parses an extended descriptor from the first ExtRSDPSize
// bytes of buf.
func DecodeExtRSDP(buf []byte) ExtRSDPDescriptor {
	_ = buf[ExtRSDPSize-1]

	return ExtRSDPDescriptor{
		RSDPDescriptor:   DecodeRSDP(buf),
		Length:           binary.LittleEndian.Uint32(buf[20:]),
		XSDTAddr:         binary.LittleEndian.Uint64(buf[24:]),
		ExtendedChecksum: buf[32],
	}
}

// Encode writes d into buf and fills in both checksums.
func (d *ExtRSDPDescriptor) Encode(buf []byte) {
	_ = buf[ExtRSDPSize-1]

	copy(buf[0:8], d.Signature[:])
	buf[8] = 0
	copy(buf[9:15], d.OEMID[:])
	buf[15] = d.Revision
	binary.LittleEndian.PutUint32(buf[16:], d.RSDTAddr)
	binary.LittleEndian.PutUint32(buf[20:], d.Length)
	binary.LittleEndian.PutUint64(buf[24:], d.XSDTAddr)
	buf[32] = 0
	buf[33], buf[34], buf[35] = 0, 0, 0

	d.Checksum = -Sum(buf[:RSDPSize])
	buf[8] = d.Checksum

	if d.Revision > 1 {
		d.ExtendedChecksum = -Sum(buf[:ExtRSDPSize])
		buf[32] = d.ExtendedChecksum
	}
}

// Sum returns the 8-bit sum of all bytes in buf.
func Sum(buf []byte) uint8 {
	var sum uint8
	for _, b := range buf {
		sum += b
	}

	return sum
}

// Valid returns true if the bytes in buf sum to zero.
func Valid(buf []byte) bool {
	return Sum(buf) == 0
}
