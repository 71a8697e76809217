package hostfw

import (
	"bytes"
	"testing"
	"testing/fstest"
	"time"

	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/loader/mem"
)

func readMap(t *testing.T, m *Machine) []firmware.MemoryDescriptor {
	t.Helper()

	info, err := m.GetMemoryMap(nil)
	if firmware.StatusOf(err) != firmware.BufferTooSmall {
		t.Fatalf("expected size query to fail with BufferTooSmall; got %v", err)
	}

	buf := make([]byte, info.MapSize)
	if info, err = m.GetMemoryMap(buf); err != nil {
		t.Fatal(err)
	}

	var out []firmware.MemoryDescriptor
	for off := uint64(0); off < info.MapSize; off += info.DescriptorSize {
		var d firmware.MemoryDescriptor
		d.Decode(buf[off:])
		out = append(out, d)
	}
	return out
}

func TestMemoryLayout(t *testing.T) {
	m := New(Config{Graphics: &Graphics{Width: 64, Height: 32}})
	regions := readMap(t, m)

	var (
		next  uint64
		total uint64
	)
	for i, d := range regions {
		if d.PhysicalStart != next {
			t.Fatalf("region %d: expected start 0x%x; got 0x%x", i, next, d.PhysicalStart)
		}
		next = d.PhysicalStart + d.NumberOfPages<<mem.PageShift
		total += d.NumberOfPages
	}

	if exp := uint64(DefaultMemorySize) >> mem.PageShift; total != exp {
		t.Fatalf("expected map to cover %d pages; got %d", exp, total)
	}

	if last := regions[len(regions)-1]; last.Type != firmware.MemoryMappedIO || last.PhysicalStart != m.gop.FrameBufferBase {
		t.Fatalf("expected framebuffer region at the top of memory; got %+v", last)
	}
}

func TestAllocation(t *testing.T) {
	m := New(Config{})
	before := len(readMap(t, m))
	key := m.mapKey

	addr, err := m.AllocatePool(firmware.LoaderData, 100)
	if err != nil {
		t.Fatal(err)
	}

	if m.mapKey == key {
		t.Fatal("expected allocation to change the map key")
	}

	buf, err := m.Bytes(addr, 100)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, bytes.Repeat([]byte{poisonByte}, 100)) {
		t.Fatal("expected fresh allocation to be poisoned")
	}

	// A second pool allocation is placed next to the first one and both
	// are merged into a single loader data region.
	if _, err = m.AllocatePool(firmware.LoaderData, 1); err != nil {
		t.Fatal(err)
	}
	if got := len(readMap(t, m)); got != before+1 {
		t.Fatalf("expected %d regions; got %d", before+1, got)
	}

	specs := []struct {
		addr   uint64
		pages  uint64
		expErr error
	}{
		{0x200000, 4, nil},
		{0x200000, 1, firmware.NotFound},
		{0x204000, 1, nil},
		{0x9f000, 1, firmware.NotFound},
		{0x200800, 1, firmware.InvalidParameter},
	}

	for specIndex, spec := range specs {
		got, err := m.AllocatePages(firmware.AllocateAddress, firmware.LoaderData, spec.pages, spec.addr)
		if err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
			continue
		}
		if err == nil && got != spec.addr {
			t.Errorf("[spec %d] expected allocation at 0x%x; got 0x%x", specIndex, spec.addr, got)
		}
	}

	if _, err = m.AllocatePool(firmware.LoaderData, uint64(DefaultMemorySize)); err != firmware.OutOfResources {
		t.Fatalf("expected OutOfResources; got %v", err)
	}
}

func TestExitBootServices(t *testing.T) {
	m := New(Config{})
	info, _ := m.GetMemoryMap(nil)

	if _, err := m.AllocatePool(firmware.LoaderData, 1); err != nil {
		t.Fatal(err)
	}

	if err := m.ExitBootServices(info.MapKey); err != firmware.InvalidParameter {
		t.Fatalf("expected stale map key to be rejected; got %v", err)
	}

	info, _ = m.GetMemoryMap(nil)
	if err := m.ExitBootServices(info.MapKey); err != nil {
		t.Fatal(err)
	}

	if !m.BootServicesExited() {
		t.Fatal("expected boot services to be exited")
	}

	if _, err := m.AllocatePool(firmware.LoaderData, 1); err != firmware.Unsupported {
		t.Fatalf("expected boot services to be unavailable; got %v", err)
	}
}

func TestVolume(t *testing.T) {
	m := New(Config{Files: fstest.MapFS{
		"EFI/kernel.elf": &fstest.MapFile{Data: []byte("0123456789")},
	}})

	vol, err := m.OpenVolume()
	if err != nil {
		t.Fatal(err)
	}

	if _, err = vol.Open("missing"); err != firmware.NotFound {
		t.Fatalf("expected NotFound; got %v", err)
	}

	f, err := vol.Open(`\EFI\kernel.elf`)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if size, err := f.Size(); err != nil || size != 10 {
		t.Fatalf("expected size 10; got %d, %v", size, err)
	}

	if err = f.SetPosition(6); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 8)
	n, err := f.Read(buf)
	if err != nil || string(buf[:n]) != "6789" {
		t.Fatalf("expected to read 6789; got %q, %v", buf[:n], err)
	}

	if n, err = f.Read(buf); n != 0 || err != nil {
		t.Fatalf("expected 0, nil at end of file; got %d, %v", n, err)
	}

	if !m.Called(`SetPosition \EFI\kernel.elf 6`) {
		t.Fatalf("expected SetPosition to be traced; trace: %v", m.Trace())
	}

	if _, err = New(Config{}).OpenVolume(); err != firmware.NoMedia {
		t.Fatalf("expected NoMedia; got %v", err)
	}
}

func TestConsoleAndRuntime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := New(Config{Keys: "x", Time: now})
	st := m.SystemTable()

	if key, err := st.ConIn.ReadKeyStroke(); err != nil || key.UnicodeChar != 'x' {
		t.Fatalf("expected key x; got %v, %v", key, err)
	}
	if _, err := st.ConIn.ReadKeyStroke(); err != firmware.NotReady {
		t.Fatalf("expected NotReady; got %v", err)
	}

	m.PressKey('y')
	if key, _ := st.ConIn.ReadKeyStroke(); key.UnicodeChar != 'y' {
		t.Fatalf("expected key y; got %v", key)
	}

	st.ConOut.Write([]byte("hello"))
	st.ConOut.Reset()
	if m.Console() != "hello" || m.ConsoleResets() != 1 {
		t.Fatalf("unexpected console state %q, %d resets", m.Console(), m.ConsoleResets())
	}

	if got, _ := st.Runtime.GetTime(); !got.Equal(now) {
		t.Fatalf("expected time %v; got %v", now, got)
	}
}

func TestRunOutcome(t *testing.T) {
	specs := []struct {
		fn      func(m *Machine)
		expKind OutcomeKind
	}{
		{func(m *Machine) {}, Returned},
		{func(m *Machine) { m.Halt() }, Halted},
		{func(m *Machine) { m.Jump(0x100000, "record") }, Entered},
		{func(m *Machine) { m.ResetSystem(firmware.ResetShutdown, firmware.LoadError) }, Reset},
	}

	for specIndex, spec := range specs {
		m := New(Config{})
		reached := false
		outcome := m.Run(func() {
			spec.fn(m)
			reached = true
		})

		if outcome.Kind != spec.expKind {
			t.Errorf("[spec %d] expected outcome %s; got %s", specIndex, spec.expKind, outcome.Kind)
		}

		if reached != (spec.expKind == Returned) {
			t.Errorf("[spec %d] code after a stopping call must not run", specIndex)
		}
	}
}

func TestACPITables(t *testing.T) {
	specs := []struct {
		rev       int
		expTables int
	}{
		{0, 1},
		{1, 2},
		{2, 3},
	}

	for specIndex, spec := range specs {
		m := New(Config{ACPIRevision: spec.rev})
		if got := len(m.SystemTable().ConfigurationTables); got != spec.expTables {
			t.Errorf("[spec %d] expected %d configuration tables; got %d", specIndex, spec.expTables, got)
		}
	}
}
