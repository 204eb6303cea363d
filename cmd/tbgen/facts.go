package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/robert-at-pretension-io/tbgen/internal/facts"
	"github.com/robert-at-pretension-io/tbgen/internal/pipeline"
	"github.com/robert-at-pretension-io/tbgen/internal/validator"
)

var (
	factsOutput    string
	factsDeltaFrom string
	factsDeltaOut  string
)

var factsCmd = &cobra.Command{
	Use:   "facts <path>",
	Short: "Print the extracted interfaces as relational JSON tables",
	Long: `facts extracts every module interface under <path> and prints the
modules, parameters and ports tables as JSON, without generating testbenches.

With --delta-from and --delta-out, the rows added and removed since a
previous facts file are written as well.`,
	Args: cobra.ExactArgs(1),
	RunE: runFacts,
}

func init() {
	factsCmd.Flags().StringVarP(&factsOutput, "output", "o", "", "write facts JSON to file (default: stdout)")
	factsCmd.Flags().StringVar(&factsDeltaFrom, "delta-from", "", "previous facts JSON to compute delta from")
	factsCmd.Flags().StringVar(&factsDeltaOut, "delta-out", "", "write delta JSON to file (requires --delta-from)")
}

func runFacts(cmd *cobra.Command, args []string) error {
	if (factsDeltaFrom == "") != (factsDeltaOut == "") {
		return fmt.Errorf("--delta-from and --delta-out must be used together")
	}

	path := args[0]
	cfg, err := loadConfig(cmd, path)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	res, err := pipeline.New(cfg, logger).Extract(ctx, path)
	if err != nil {
		return err
	}

	tables := facts.BuildTables(res.Entries())
	fv, err := validator.NewFactsValidator()
	if err != nil {
		return err
	}
	if err := fv.Validate(tables); err != nil {
		return err
	}

	if factsOutput != "" {
		if err := writeJSONFile(factsOutput, tables); err != nil {
			return fmt.Errorf("writing facts: %w", err)
		}
	} else if err := writeJSON(cmd.OutOrStdout(), tables); err != nil {
		return fmt.Errorf("encoding facts: %w", err)
	}

	if factsDeltaFrom != "" {
		prev, err := readTables(factsDeltaFrom)
		if err != nil {
			return fmt.Errorf("reading delta-from: %w", err)
		}
		delta := facts.ComputeDelta(prev, tables)
		if err := writeJSONFile(factsDeltaOut, delta); err != nil {
			return fmt.Errorf("writing delta: %w", err)
		}
		logger.Info("wrote facts delta",
			zap.String("path", factsDeltaOut),
			zap.Bool("empty", delta.Empty()))
	}

	return failureError(res)
}

func readTables(path string) (facts.Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return facts.Tables{}, err
	}
	defer func() { _ = f.Close() }()

	var tables facts.Tables
	if err := json.NewDecoder(f).Decode(&tables); err != nil {
		return facts.Tables{}, err
	}
	return tables, nil
}

func writeJSONFile(path string, data interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return writeJSON(f, data)
}

func writeJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
