package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = "none"    //nolint:unused // set via ldflags at build time
	date    = "unknown" //nolint:unused // set via ldflags at build time
)

func newApp() *cli.App {
	return &cli.App{
		Name:    "auspex",
		Usage:   "Static analysis for Python codebases",
		Version: version,
		Description: `Auspex parses a Python project and reports architectural defects:
import cycles, unreachable code, duplicated logic, low class cohesion,
and dependency-injection anti-patterns.`,
		Commands: []*cli.Command{
			analyzeCmd(),
			cyclesCmd(),
			deadcodeCmd(),
			clonesCmd(),
			cohesionCmd(),
			diCmd(),
		},
		DefaultCommand: "analyze",
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			if msg := exitErr.Error(); msg != "" {
				color.Red("Error: %v", msg)
			}
			os.Exit(exitErr.ExitCode())
		}
		color.Red("Error: %v", err)
		os.Exit(2)
	}
}
