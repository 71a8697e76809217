package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/FacelessSociety/FacelessLoader2/firmware/hostfw"
	"github.com/FacelessSociety/FacelessLoader2/loader/bmain"
	"github.com/FacelessSociety/FacelessLoader2/loader/handoff"
	"github.com/FacelessSociety/FacelessLoader2/loader/mem"
	"github.com/sirupsen/logrus"
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[bootsim] error: %s\n", err.Error())
	os.Exit(1)
}

// hostCPU forwards control transfers to the emulated machine.
type hostCPU struct {
	m *hostfw.Machine
}

func (c hostCPU) Enter(entry uint64, rec *handoff.Record) {
	c.m.Jump(entry, rec)
}

func (c hostCPU) Halt() {
	c.m.Halt()
}

// options collects the command line settings.
type options struct {
	dir        string
	memMb      uint64
	width      uint
	height     uint
	acpi       int
	images     []string
	noWait     bool
	verbose    bool
	snapshot   string
	kernelPath string
	fontPath   string
}

// boot runs the loader on a machine configured from opts and, if control
// reaches the kernel, runs the stub kernel against the handoff record.
func boot(opts options, console io.Writer, tty bool) (hostfw.Outcome, error) {
	hwCfg := hostfw.Config{
		MemorySize:   mem.Size(opts.memMb) * mem.Mb,
		Files:        os.DirFS(opts.dir),
		ACPIRevision: opts.acpi,
		Console:      console,
	}

	if opts.width != 0 && opts.height != 0 {
		hwCfg.Graphics = &hostfw.Graphics{Width: uint32(opts.width), Height: uint32(opts.height)}
	}

	if opts.noWait {
		// One key for the greeting and one for a possible halt prompt.
		hwCfg.Keys = "  "
	}

	m := hostfw.New(hwCfg)
	if tty && !opts.noWait {
		detach, err := hostfw.AttachTTY(m)
		if err != nil {
			return hostfw.Outcome{}, err
		}
		defer detach()
	}

	cfg := bmain.DefaultConfig()
	cfg.ImagePaths = opts.images
	if opts.kernelPath != "" {
		cfg.KernelPath = opts.kernelPath
	}
	if opts.fontPath != "" {
		cfg.FontPath = opts.fontPath
	}
	if opts.verbose {
		cfg.LogLevel = logrus.DebugLevel
	}

	outcome := m.Run(func() {
		bmain.Main(bmain.NewContext(cfg, m.SystemTable(), hostCPU{m}))
	})

	if outcome.Kind != hostfw.Entered {
		return outcome, nil
	}

	rec, ok := outcome.Arg.(*handoff.Record)
	if !ok {
		return outcome, errors.New("kernel entered without a handoff record")
	}

	k := &stubKernel{
		memory:   m,
		record:   rec,
		out:      console,
		snapshot: opts.snapshot,
	}

	var stubErr error
	final := m.Run(func() {
		stubErr = k.run()
	})
	return final, stubErr
}

func runTool() error {
	var (
		opts   options
		images string
	)

	flag.StringVar(&opts.dir, "dir", ".", "the directory holding the boot volume contents")
	flag.Uint64Var(&opts.memMb, "mem", 64, "the amount of emulated memory in MiB")
	flag.UintVar(&opts.width, "width", 800, "the horizontal resolution of the graphics output (0 disables graphics)")
	flag.UintVar(&opts.height, "height", 600, "the vertical resolution of the graphics output (0 disables graphics)")
	flag.IntVar(&opts.acpi, "acpi", 2, "the advertised ACPI revision (0 for none)")
	flag.StringVar(&images, "image", "", "a BMP image to hand over to the kernel")
	flag.StringVar(&opts.kernelPath, "kernel", "", "override the kernel image path")
	flag.StringVar(&opts.fontPath, "font", "", "override the console font path")
	flag.BoolVar(&opts.noWait, "nowait", false, "do not wait for key presses")
	flag.BoolVar(&opts.verbose, "v", false, "enable debug logging")
	flag.StringVar(&opts.snapshot, "snapshot", "", "write the framebuffer contents to this PNG file")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "bootsim: run the boot loader against an emulated firmware\n\n")
		fmt.Fprint(os.Stderr, "Usage: bootsim [options]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 0 {
		exit(errors.New("unexpected arguments"))
	}

	if images != "" {
		opts.images = []string{images}
	}

	outcome, err := boot(opts, os.Stdout, true)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "\n[bootsim] machine %s", outcome.Kind)
	if outcome.Kind == hostfw.Reset {
		fmt.Fprintf(os.Stdout, " (status: %s)", outcome.ResetStatus)
	}
	fmt.Fprintln(os.Stdout)
	return nil
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
