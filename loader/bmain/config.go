package bmain

import (
	"debug/elf"

	"github.com/sirupsen/logrus"
)

// Config holds the compiled-in loader settings.
type Config struct {
	// The path of the kernel image relative to the volume root.
	KernelPath string

	// The path of the PSF1 console font.
	FontPath string

	// The BMP images handed over to the kernel. At most logo.MaxImages
	// entries are allowed.
	ImagePaths []string

	// The machine the kernel image must be built for.
	Machine elf.Machine

	// If set, the loader greets the user and waits for a key press
	// before booting.
	Greet bool

	// The minimum level of emitted log entries.
	LogLevel logrus.Level
}

// DefaultConfig returns the settings used by the firmware application.
func DefaultConfig() Config {
	return Config{
		KernelPath: "kernel.elf",
		FontPath:   "zap-light16.psf",
		Machine:    elf.EM_X86_64,
		Greet:      true,
		LogLevel:   logrus.InfoLevel,
	}
}
