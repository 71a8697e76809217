// Package bmain drives the boot pipeline: it greets the user, prepares the
// resources required by the kernel while boot services are available, builds
// the handoff record and finally transfers control to the kernel.
package bmain

import (
	"github.com/FacelessSociety/FacelessLoader2/device/video/console/font"
	"github.com/FacelessSociety/FacelessLoader2/device/video/console/logo"
	"github.com/FacelessSociety/FacelessLoader2/device/video/fb"
	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/loader/elf"
	"github.com/FacelessSociety/FacelessLoader2/loader/handoff"
	"github.com/FacelessSociety/FacelessLoader2/loader/kfmt"
	"github.com/FacelessSociety/FacelessLoader2/loader/mem"
	"github.com/FacelessSociety/FacelessLoader2/loader/mmap"
	"github.com/sirupsen/logrus"
)

// CPU abstracts the platform operations that leave the loader.
type CPU interface {
	// Enter jumps to the kernel entry point passing rec as its only
	// argument. It does not return on real hardware.
	Enter(entry uint64, rec *handoff.Record)

	// Halt stops the CPU. It never returns.
	Halt()
}

// Context carries the state shared by the pipeline stages. Each stage fills
// in its product; nothing is kept in package-level variables.
type Context struct {
	Config Config
	System *firmware.SystemTable
	CPU    CPU
	Log    *logrus.Logger

	Pool   *mem.Pool
	Volume firmware.Volume

	MapBuffers  *mmap.Buffers
	MemoryMap   mmap.MemoryMap
	Font        *font.Resource
	Framebuffer *fb.Descriptor
	Images      [logo.MaxImages]*logo.Resource
	Kernel      *elf.Image
	Record      *handoff.Record
}

// NewContext returns a Context for booting with cfg on the platform
// described by st.
func NewContext(cfg Config, st *firmware.SystemTable, cpu CPU) *Context {
	return &Context{
		Config: cfg,
		System: st,
		CPU:    cpu,
		Log:    kfmt.NewLogger(cfg.LogLevel),
		Pool:   &mem.Pool{Boot: st.Boot, Memory: st.Memory},
	}
}

func (c *Context) logger(module string) *logrus.Entry {
	return kfmt.Module(c.Log, module)
}
