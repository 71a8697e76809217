package kfmt

import (
	"fmt"
	"io"

	"github.com/FacelessSociety/FacelessLoader2/loader"
)

// Panic writes the diagnostic banner for err (if not nil) to w. The caller is
// responsible for halting the system afterwards.
func Panic(w io.Writer, err error) {
	fmt.Fprintf(w, "\n-----------------------------------\n")
	if err != nil {
		fmt.Fprintf(w, "[%s] unrecoverable error: %s\n", loader.ModuleOf(err), err.Error())
	}
	fmt.Fprintf(w, "*** boot aborted: system halted ***")
	fmt.Fprintf(w, "\n-----------------------------------\n")
}
