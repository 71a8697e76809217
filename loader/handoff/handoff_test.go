package handoff

import (
	"testing"

	"github.com/FacelessSociety/FacelessLoader2/device/video/console/font"
	"github.com/FacelessSociety/FacelessLoader2/device/video/fb"
	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/firmware/hostfw"
	"github.com/FacelessSociety/FacelessLoader2/loader"
	"github.com/FacelessSociety/FacelessLoader2/loader/mem"
	"github.com/FacelessSociety/FacelessLoader2/loader/mmap"
)

func sources(t *testing.T, acpiRev int) (*hostfw.Machine, Sources) {
	t.Helper()

	m := hostfw.New(hostfw.Config{
		Graphics:     &hostfw.Graphics{Width: 32, Height: 16},
		ACPIRevision: acpiRev,
	})
	st := m.SystemTable()
	pool := &mem.Pool{Boot: st.Boot, Memory: st.Memory}

	bufs, err := mmap.Reserve(pool)
	if err != nil {
		t.Fatal(err)
	}

	memMap, _, err := bufs.Snapshot(st.Boot)
	if err != nil {
		t.Fatal(err)
	}

	fbDesc, err := fb.Init(st.Boot, pool)
	if err != nil {
		t.Fatal(err)
	}

	glyphs := make([]byte, 256*16)
	for i := 16 * 'A'; i < 16*'A'+16; i++ {
		glyphs[i] = 0xff
	}

	return m, Sources{
		MemoryMap:   memMap,
		Framebuffer: fbDesc,
		Font: &font.Resource{
			Header: font.Header{Magic: font.Magic, CharSize: 16},
			Glyphs: glyphs,
		},
		ConfigurationTables: st.ConfigurationTables,
		Runtime:             st.Runtime,
		Memory:              st.Memory,
	}
}

func TestBuild(t *testing.T) {
	m, src := sources(t, 2)

	rec, err := Build(src)
	if err != nil {
		t.Fatal(err)
	}

	if rec.Magic != Magic || rec.Version != Version {
		t.Fatalf("unexpected record header 0x%x v%d", rec.Magic, rec.Version)
	}

	if rec.RSDP == 0 {
		t.Fatal("expected RSDP to be located")
	}

	if exp, got := src.MemoryMap.Count(), rec.MemoryMapAccessor.Entries(rec.MemoryMap); got != exp {
		t.Fatalf("expected accessor to report %d entries; got %d", exp, got)
	}

	for i := uint64(0); i < rec.MemoryMap.Count(); i++ {
		got, ok := rec.MemoryMapAccessor.Descriptor(rec.MemoryMap, i)
		exp, _ := src.MemoryMap.Descriptor(i)
		if !ok || got != exp {
			t.Fatalf("descriptor %d: expected %+v; got %+v", i, exp, got)
		}
	}

	for i, img := range rec.Images {
		if img != nil {
			t.Fatalf("expected image slot %d to be empty", i)
		}
	}

	rec.Plotter.PutChar(0xffffff, 'A', 0, 0, rec.Framebuffer.BackBufferAddr)
	if px := rec.Framebuffer.BackBuffer[:4]; px[0] != 0xff || px[1] != 0xff || px[2] != 0xff {
		t.Fatalf("expected plotter to draw into the back buffer; got % x", px)
	}

	outcome := m.Run(func() { rec.Power.Shutdown() })
	if outcome.Kind != hostfw.Reset || outcome.ResetType != firmware.ResetShutdown {
		t.Fatalf("expected shutdown reset; got %+v", outcome)
	}
}

func TestBuildWithoutACPI(t *testing.T) {
	_, src := sources(t, 0)

	rec, err := Build(src)
	if err != nil {
		t.Fatalf("a missing RSDP must not be fatal; got %v", err)
	}

	if rec.RSDP != 0 {
		t.Fatalf("expected a zero RSDP; got 0x%x", rec.RSDP)
	}
}

func TestBuildIncomplete(t *testing.T) {
	_, src := sources(t, 0)

	specs := []func(*Sources){
		func(s *Sources) { s.Framebuffer = nil },
		func(s *Sources) { s.Font = nil },
		func(s *Sources) { s.MemoryMap = mmap.MemoryMap{} },
	}

	for specIndex, mutate := range specs {
		s := src
		mutate(&s)

		if _, err := Build(s); loader.ModuleOf(err) != "handoff" {
			t.Errorf("[spec %d] expected an incomplete record error; got %v", specIndex, err)
		}
	}
}
