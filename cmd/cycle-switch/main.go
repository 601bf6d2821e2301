// Command cycle-switch drives a relay on a GPIO line through timed work/pause
// cycles and reports every phase change over MQTT and HTTP.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// Version is set during build using ldflags
var Version = "dev"

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "cycle-switch",
		Version: Version,
		Usage:   "Cyclic timed switch daemon",
		Commands: []*cli.Command{
			runCmd,
			validateCmd,
			versionCmd,
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
