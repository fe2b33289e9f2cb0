// driftbox stores a folder tree in a metadata store and file bytes in a
// blob store, with a CLI and a desktop GUI.
//
// - No args + display available → GUI
// - No args + no display → CLI help
// - Any subcommand or flag → CLI
package main

import (
	"os"
	"runtime"

	"github.com/driftbox/driftbox/internal/cli"
)

func main() {
	if len(os.Args) == 1 && hasDisplay() {
		os.Args = append(os.Args, "gui")
	}
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

func hasDisplay() bool {
	if runtime.GOOS != "linux" {
		return true
	}
	return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
}
