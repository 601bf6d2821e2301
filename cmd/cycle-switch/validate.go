package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/sweeney/cycle-switch/internal/config"
)

var validateCmd = &cli.Command{
	Name:      "validate",
	Aliases:   []string{"lint"},
	Usage:     "Validate a configuration file",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "print",
			Aliases: []string{"p"},
			Usage:   "Print the effective configuration, defaults included",
		},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() < 1 {
			return fmt.Errorf("config file path required")
		}
		return validateFile(cmd.Root().Writer, cmd.Args().Get(0), cmd.Bool("print"))
	},
}

func validateFile(w io.Writer, path string, full bool) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	fmt.Fprintf(w, "Configuration file %s is valid\n", path)
	if full {
		fmt.Fprintf(w, "\n%s", cfg)
		return nil
	}
	if cfg.HasCycle() {
		fmt.Fprintf(w, "- Switch: %s on pin %d, cycle %s\n", cfg.Name, cfg.Output.Pin, cfg.Params())
	} else {
		fmt.Fprintf(w, "- Switch: %s on pin %d, no cycle configured\n", cfg.Name, cfg.Output.Pin)
	}
	return nil
}
