// =============================================================================
// tbgen - Verilog Testbench Generator
// =============================================================================
//
// tbgen reads a Verilog module declaration and writes a self-contained
// simulation testbench for it: the module instantiated with every port wired
// to a local signal, a free-running clock, a reset pulse and a stream of
// random input stimulus.
//
// THE PIPELINE:
//   1. Sources are resolved from the path and the config file patterns
//   2. Optionally, tree-sitter parses each file and reports syntax errors
//   3. The extractor reads the module name, parameters and ports
//   4. The CUE validator enforces the interface contract
//   5. The harness synthesizer emits tb_<module>.v
//
// WHEN A TESTBENCH LOOKS WRONG:
//   Run `tbgen facts <file>` first and check the extracted widths and
//   diagnostics before touching the synthesizer.
// =============================================================================

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/robert-at-pretension-io/tbgen/internal/config"
	"github.com/robert-at-pretension-io/tbgen/internal/pipeline"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Generation flags
	outDir      string
	clockPeriod int
	rounds      int
	seed        uint64
	toStdout    bool

	// Logger
	logger *zap.Logger
)

// rootCmd generates testbenches for the given path
var rootCmd = &cobra.Command{
	Use:   "tbgen [flags] <path>",
	Short: "Generate Verilog testbenches from module declarations",
	Long: `tbgen extracts the interface of each Verilog module under <path> and
writes a tb_<module>.v testbench next to it (or into --out).

<path> may be a single .v/.sv file or a directory. Directories are scanned
using the source patterns from the configuration file.

Configuration is read from the first of:
  1. ./tbgen.json, ./tbgen.yaml, ./.tbgen.json
  2. <path>/tbgen.json, <path>/tbgen.yaml
  3. ~/.config/tbgen/config.json

Run 'tbgen init' to create a default configuration file.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runGenerate,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: search order above)")

	addGenerationFlags(rootCmd)
	rootCmd.Flags().BoolVar(&toStdout, "stdout", false, "print testbenches to stdout instead of writing files")

	rootCmd.AddCommand(initCmd, factsCmd, watchCmd)
}

// addGenerationFlags registers the flags that override harness settings
func addGenerationFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory for generated testbenches")
	cmd.Flags().IntVar(&clockPeriod, "clock-period", config.DefaultClockPeriod, "CLK_PERIOD value in simulation time units")
	cmd.Flags().IntVar(&rounds, "rounds", config.DefaultStimulusRounds, "number of random stimulus rounds")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed for reproducible stimulus")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flags the user set explicitly
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("out") {
		cfg.Output.Dir = outDir
	}
	if flags.Changed("clock-period") {
		cfg.Harness.ClockPeriod = clockPeriod
	}
	if flags.Changed("rounds") {
		cfg.Harness.StimulusRounds = rounds
	}
	if flags.Changed("seed") {
		s := seed
		cfg.Harness.Seed = &s
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	path := args[0]
	cfg, err := loadConfig(cmd, path)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	p := pipeline.New(cfg, logger)
	if toStdout {
		p.Stdout = cmd.OutOrStdout()
	}
	res, err := p.Run(ctx, path)
	if err != nil {
		return err
	}

	if !toStdout {
		for _, f := range res.Files {
			if f.Output != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", f.Path, f.Output)
			}
		}
	}
	return failureError(res)
}

func failureError(res *pipeline.Result) error {
	failed := res.Failed()
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d files failed:\n%w", len(failed), len(res.Files), res.Err())
}
