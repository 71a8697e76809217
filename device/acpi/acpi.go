// Package acpi locates the ACPI root system descriptor pointer among the
// configuration tables installed by the firmware.
package acpi

import (
	"github.com/FacelessSociety/FacelessLoader2/device/acpi/table"
	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/loader"
	"github.com/Microsoft/go-winio/pkg/guid"
	"github.com/pkg/errors"
)

const (
	acpiRev1 uint8 = 0
)

var (
	errMissingRSDP = &loader.Error{Module: "acpi", Message: "could not locate ACPI RSDP", Kind: loader.NotFound}

	// The vendor GUIDs to look for, in order of preference.
	rsdpGUIDs = []guid.GUID{
		firmware.ACPI20TableGUID,
		firmware.ACPITableGUID,
	}
)

// LocateRSDP scans the firmware configuration tables for the ACPI root
// system descriptor pointer and returns its physical address. Tables
// installed under the ACPI 2.0 GUID are preferred over ACPI 1.0 ones. A
// candidate is only accepted if it carries the "RSD PTR " signature and a
// valid checksum.
//
// If no usable RSDP exists, LocateRSDP returns 0 together with an error of
// kind loader.NotFound. Callers are expected to proceed without ACPI.
func LocateRSDP(tables []firmware.ConfigurationTable, memory firmware.Memory) (uint64, error) {
	for _, id := range rsdpGUIDs {
		for _, t := range tables {
			if t.VendorGUID != id || t.VendorTable == 0 {
				continue
			}

			if validRSDP(t.VendorTable, memory) {
				return t.VendorTable, nil
			}
		}
	}

	return 0, errors.Wrapf(errMissingRSDP, "searched %d configuration tables", len(tables))
}

// validRSDP checks the signature and checksum of the descriptor at addr.
func validRSDP(addr uint64, memory firmware.Memory) bool {
	buf, err := memory.Bytes(addr, table.RSDPSize)
	if err != nil {
		return false
	}

	rsdp := table.DecodeRSDP(buf)
	if rsdp.Signature != table.RSDPSignature || !table.Valid(buf) {
		return false
	}

	if rsdp.Revision == acpiRev1 {
		return true
	}

	// System uses ACPI revision > 1 and provides an extended RSDP
	if buf, err = memory.Bytes(addr, table.ExtRSDPSize); err != nil {
		return false
	}

	return table.Valid(buf)
}
