// qaioscfg is a host-side build-pipeline tool for QAIOS+ boot images
// https://github.com/dmorton63/qaiosplus-sub000
//
// It never links against anything built for the tamago/amd64 target: it
// exists so an image-prep step can validate a startup.cfg and the module
// cmdline list that will be handed to the kernel, before either is burned
// into a boot image.
package main

import (
	"fmt"
	"os"

	"github.com/dmorton63/qaiosplus-sub000/cmd/qaioscfg/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
