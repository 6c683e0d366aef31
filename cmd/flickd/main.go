// Command flickd relays playback commands from a companion device to a
// media host. Run "flickd companion" on the device that produces commands
// and "flickd host" on the device that plays media; "flickd demo" runs both
// in one process with fake backends.
package main

import (
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "flickd:", err)
		os.Exit(1)
	}
}
