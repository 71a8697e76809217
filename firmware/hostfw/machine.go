// Package hostfw emulates the firmware services consumed by the loader on a
// regular host process. Physical memory is backed by a byte arena, the boot
// volume by an fs.FS and the graphics output by a framebuffer inside the
// arena. Every service call is recorded in a trace so tests can assert on
// the order of firmware interactions.
package hostfw

import (
	"fmt"
	"io"
	"io/fs"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/loader/mem"
)

// Graphics describes the emulated graphics output mode.
type Graphics struct {
	Width, Height uint32

	// PixelsPerScanLine defaults to Width if zero.
	PixelsPerScanLine uint32
}

// Config describes the emulated platform.
type Config struct {
	// The amount of emulated physical memory. Defaults to DefaultMemorySize.
	MemorySize mem.Size

	// The stride of the firmware memory map. Defaults to 48 bytes which
	// is what most firmware implementations report.
	DescriptorSize uint64

	// The contents of the boot volume. If nil, OpenVolume fails.
	Files fs.FS

	// The graphics output mode. If nil, no graphics output protocol is
	// installed.
	Graphics *Graphics

	// The ACPI revision advertised by the configuration tables: 0 for
	// none, 1 for an ACPI 1.0 RSDP and 2 for an extended RSDP.
	ACPIRevision int

	// Keys that are pending on the console input when the machine starts.
	Keys string

	// If set, console output is mirrored to this writer.
	Console io.Writer

	// The time reported by GetTime. Defaults to the host clock.
	Time time.Time
}

// DefaultMemorySize is the amount of emulated memory when Config.MemorySize
// is not specified.
const DefaultMemorySize = 32 * mem.Mb

// OutcomeKind describes how the emulated machine stopped.
type OutcomeKind uint8

const (
	// Running means that the machine has not stopped yet.
	Running OutcomeKind = iota

	// Entered means that control was transferred to the kernel.
	Entered

	// Reset means that the platform was reset or powered off.
	Reset

	// Halted means that the CPU was halted.
	Halted

	// Returned means that the code passed to Run returned normally.
	Returned
)

var outcomeNames = []string{"running", "entered kernel", "reset", "halted", "returned"}

// String implements fmt.Stringer for OutcomeKind.
func (k OutcomeKind) String() string {
	if int(k) < len(outcomeNames) {
		return outcomeNames[k]
	}
	return "unknown"
}

// Outcome describes the final state of the machine.
type Outcome struct {
	Kind OutcomeKind

	// The kernel entry point and argument when Kind is Entered.
	Entry uint64
	Arg   interface{}

	// The reset parameters when Kind is Reset.
	ResetType   firmware.ResetType
	ResetStatus firmware.Status
}

// Machine is an emulated firmware platform.
type Machine struct {
	cfg Config

	mu sync.Mutex

	arena   []byte
	regions []region
	mapKey  uint64
	exited  bool

	gop    *firmware.GraphicsMode
	tables []firmware.ConfigurationTable

	trace   []string
	console strings.Builder
	keys    []firmware.Key
	resets  int

	outcome Outcome
}

// New creates a Machine for the supplied configuration.
func New(cfg Config) *Machine {
	if cfg.MemorySize == 0 {
		cfg.MemorySize = DefaultMemorySize
	}

	if cfg.DescriptorSize == 0 {
		cfg.DescriptorSize = 48
	}

	m := &Machine{
		cfg:   cfg,
		arena: make([]byte, uint64(cfg.MemorySize)),
	}

	m.initMemory()
	for _, r := range cfg.Keys {
		m.keys = append(m.keys, firmware.Key{UnicodeChar: r})
	}

	return m
}

// SystemTable returns the firmware system table for this machine.
func (m *Machine) SystemTable() *firmware.SystemTable {
	c := &console{m: m}
	return &firmware.SystemTable{
		ConIn:               c,
		ConOut:              c,
		Boot:                m,
		Runtime:             m,
		ConfigurationTables: append([]firmware.ConfigurationTable(nil), m.tables...),
		Memory:              m,
	}
}

// Run invokes fn on a separate goroutine and waits until it either returns
// or the machine stops via Jump, Halt or ResetSystem.
func (m *Machine) Run(fn func()) Outcome {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()

		m.mu.Lock()
		m.outcome.Kind = Returned
		m.mu.Unlock()
	}()
	<-done

	return m.Outcome()
}

// Outcome returns the current machine state.
func (m *Machine) Outcome() Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcome
}

// Jump emulates a control transfer to the kernel entry point. It never
// returns to the caller.
func (m *Machine) Jump(entry uint64, arg interface{}) {
	m.stop(fmt.Sprintf("Enter 0x%x", entry), Outcome{Kind: Entered, Entry: entry, Arg: arg})
}

// Halt emulates halting the CPU. It never returns to the caller.
func (m *Machine) Halt() {
	m.stop("Halt", Outcome{Kind: Halted})
}

// ResetSystem implements firmware.RuntimeServices. It never returns to the
// caller.
func (m *Machine) ResetSystem(resetType firmware.ResetType, status firmware.Status) {
	m.stop(fmt.Sprintf("ResetSystem %d", resetType), Outcome{Kind: Reset, ResetType: resetType, ResetStatus: status})
}

func (m *Machine) stop(call string, outcome Outcome) {
	m.mu.Lock()
	m.trace = append(m.trace, call)
	m.outcome = outcome
	m.mu.Unlock()

	runtime.Goexit()
}

// GetTime implements firmware.RuntimeServices.
func (m *Machine) GetTime() (time.Time, error) {
	m.record("GetTime")
	if m.cfg.Time.IsZero() {
		return time.Now(), nil
	}

	return m.cfg.Time, nil
}

func (m *Machine) record(format string, args ...interface{}) {
	m.mu.Lock()
	m.trace = append(m.trace, fmt.Sprintf(format, args...))
	m.mu.Unlock()
}

// Trace returns the list of recorded firmware calls.
func (m *Machine) Trace() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.trace...)
}

// CallIndex returns the index of the first recorded call starting with
// prefix or -1 if no such call was made.
func (m *Machine) CallIndex(prefix string) int {
	for i, call := range m.Trace() {
		if strings.HasPrefix(call, prefix) {
			return i
		}
	}

	return -1
}

// Called returns true if a call starting with prefix was recorded.
func (m *Machine) Called(prefix string) bool {
	return m.CallIndex(prefix) != -1
}

// Console returns everything written to the console output.
func (m *Machine) Console() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.console.String()
}

// ConsoleResets returns the number of times the console output was reset.
func (m *Machine) ConsoleResets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

// BootServicesExited returns true after a successful ExitBootServices call.
func (m *Machine) BootServicesExited() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exited
}
