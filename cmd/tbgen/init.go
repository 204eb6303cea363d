package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/robert-at-pretension-io/tbgen/internal/config"
)

var (
	initYAML  bool
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default tbgen.json (or tbgen.yaml) in the current directory",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initYAML, "yaml", false, "write tbgen.yaml instead of tbgen.json")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := "tbgen.json"
	if initYAML {
		path = "tbgen.yaml"
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return fmt.Errorf("creating config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created %s\n", path)
	fmt.Fprintln(out, "\nEdit this file to configure:")
	fmt.Fprintln(out, "  - Source file patterns and exclusions")
	fmt.Fprintln(out, "  - Clock period, stimulus rounds and seed")
	fmt.Fprintln(out, "  - Output directory and interface cache")
	return nil
}
