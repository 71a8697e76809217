package bmain

import (
	"fmt"

	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/loader"
	"github.com/FacelessSociety/FacelessLoader2/loader/kfmt"
	goerrors "github.com/go-errors/errors"
)

// Fatal aborts the boot process: it prints a diagnostic for err, waits for
// the user to acknowledge it with a key press and powers the platform off.
// Fatal never returns.
func (c *Context) Fatal(err error) {
	kfmt.Panic(c.System.ConOut, err)

	c.logger(loader.ModuleOf(err)).
		WithField("kind", loader.KindOf(err).String()).
		Debug(goerrors.Wrap(err, 1).ErrorStack())

	fmt.Fprint(c.System.ConOut, "System halted. Upon pressing a key, the system will shutdown.\n")
	c.waitForKey()

	c.System.Runtime.ResetSystem(firmware.ResetShutdown, statusFor(err))

	// ResetSystem does not return on real hardware.
	c.CPU.Halt()
}
