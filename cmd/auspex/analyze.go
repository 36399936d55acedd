package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/auspex/internal/output"
	"github.com/panbanda/auspex/internal/progress"
	"github.com/panbanda/auspex/internal/scanner"
	"github.com/panbanda/auspex/pkg/config"
	"github.com/panbanda/auspex/pkg/engine"
	"github.com/panbanda/auspex/pkg/models"
)

func analyzeCmd() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Aliases:   []string{"a"},
		Usage:     "Run every enabled analyzer and report findings",
		ArgsUsage: "[path...]",
		Flags:     analyzeFlags(),
		Action: func(c *cli.Context) error {
			return runAnalyze(c, nil)
		},
	}
}

// singleAnalyzerCmd builds a subcommand that runs exactly one analyzer,
// regardless of what the config file enables.
func singleAnalyzerCmd(name, usage string, enable func(*config.AnalysisConfig)) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "[path...]",
		Flags:     analyzeFlags(),
		Action: func(c *cli.Context) error {
			return runAnalyze(c, enable)
		},
	}
}

func cyclesCmd() *cli.Command {
	return singleAnalyzerCmd("cycles", "Report circular import chains between modules",
		func(a *config.AnalysisConfig) { a.Cycles = true })
}

func deadcodeCmd() *cli.Command {
	return singleAnalyzerCmd("deadcode", "Report unreachable code and shadowed exception handlers",
		func(a *config.AnalysisConfig) { a.DeadCode = true })
}

func clonesCmd() *cli.Command {
	return singleAnalyzerCmd("clones", "Report duplicated and near-duplicated functions",
		func(a *config.AnalysisConfig) { a.Clones = true })
}

func cohesionCmd() *cli.Command {
	return singleAnalyzerCmd("cohesion", "Report classes whose methods split into disconnected groups",
		func(a *config.AnalysisConfig) { a.Cohesion = true })
}

func diCmd() *cli.Command {
	return singleAnalyzerCmd("di", "Report dependency-injection anti-patterns in constructors",
		func(a *config.AnalysisConfig) { a.DI = true })
}

func analyzeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to config file (TOML, YAML, or JSON)",
			EnvVars: []string{"AUSPEX_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Value:   "text",
			Usage:   "Output format: text, json, markdown",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write output to file",
		},
		&cli.StringFlag{
			Name:  "fail-on",
			Usage: "Exit non-zero when findings at or above this severity exist: info, warning, critical",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Parse worker count (0 = CPU-based default)",
		},
		&cli.IntFlag{
			Name:  "timeout",
			Usage: "Global timeout in seconds (0 = none)",
		},
		&cli.StringSliceFlag{
			Name:  "exclude",
			Usage: "Additional file patterns to exclude",
		},
		&cli.BoolFlag{
			Name:  "no-progress",
			Usage: "Disable the progress bar",
		},
	}
}

// runAnalyze drives a full run. A non-nil enable restricts the run to the
// analyzers it switches on.
func runAnalyze(c *cli.Context, enable func(*config.AnalysisConfig)) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	if enable != nil {
		cfg.Analysis = config.AnalysisConfig{}
		enable(&cfg.Analysis)
	}

	paths := c.Args().Slice()
	if len(paths) == 0 {
		paths = []string{"."}
	}

	scan := scanner.New(cfg)
	var files []string
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("invalid path %s: %v", path, err), 2)
		}
		found, err := scan.ScanDir(abs)
		if err != nil {
			return cli.Exit(fmt.Sprintf("scanning %s: %v", path, err), 2)
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		color.Yellow("No Python source files found")
		return nil
	}

	format := output.ParseFormat(c.String("format"))

	opts := []engine.Option{}
	if format == output.FormatText && !c.Bool("no-progress") && c.String("output") == "" {
		bar := progress.NewTracker("Analyzing...", len(files))
		defer bar.FinishSuccess()
		opts = append(opts, engine.WithProgress(func(current, total int, _ string) {
			bar.Update(current, total)
		}))
	}

	report, err := engine.New(cfg, opts...).Run(c.Context, files)
	if err != nil {
		return cli.Exit(fmt.Sprintf("analysis failed: %v", err), 2)
	}

	formatter, err := output.NewFormatter(format, c.String("output"), cfg.Output.Color)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer formatter.Close()

	if err := formatter.Output(&output.FindingsReport{Run: report}); err != nil {
		return cli.Exit(err.Error(), 2)
	}

	failOn, err := models.ParseSeverity(cfg.Run.FailOn)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	if report.Failed(failOn) {
		return cli.Exit("", 1)
	}
	return nil
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.LoadOrDefault()
	}

	if c.IsSet("workers") {
		cfg.Run.Workers = c.Int("workers")
	}
	if c.IsSet("timeout") {
		cfg.Run.TimeoutSeconds = c.Int("timeout")
	}
	if c.IsSet("fail-on") {
		cfg.Run.FailOn = c.String("fail-on")
	}
	if patterns := c.StringSlice("exclude"); len(patterns) > 0 {
		cfg.Exclude.Patterns = append(cfg.Exclude.Patterns, patterns...)
	}
	if c.IsSet("format") {
		cfg.Output.Format = c.String("format")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
