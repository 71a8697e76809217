package firmware

import "github.com/Microsoft/go-winio/pkg/guid"

// GUIDs of the configuration tables known to the loader.
var (
	ACPITableGUID   = mustParseGUID("eb9d2d30-2d88-11d3-9a16-0090273fc14d")
	ACPI20TableGUID = mustParseGUID("8868e871-e4f1-11d3-bc22-0080c73c8881")
	SMBIOSTableGUID = mustParseGUID("eb9d2d31-2d88-11d3-9a16-0090273fc14d")
)

func mustParseGUID(s string) guid.GUID {
	g, err := guid.FromString(s)
	if err != nil {
		panic(err)
	}

	return g
}

// ConfigurationTable describes an entry of the firmware configuration table
// list: a vendor GUID and the physical address of the vendor table.
type ConfigurationTable struct {
	VendorGUID  guid.GUID
	VendorTable uint64
}
