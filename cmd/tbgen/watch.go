package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/robert-at-pretension-io/tbgen/internal/config"
	"github.com/robert-at-pretension-io/tbgen/internal/extractor"
	"github.com/robert-at-pretension-io/tbgen/internal/facts"
	"github.com/robert-at-pretension-io/tbgen/internal/pipeline"
	"github.com/robert-at-pretension-io/tbgen/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Regenerate testbenches whenever sources under <dir> change",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	addGenerationFlags(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	if info, err := os.Stat(dir); err != nil {
		return err
	} else if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	cfg, err := loadConfig(cmd, dir)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	p := pipeline.New(cfg, logger)
	tracker := newInterfaceTracker()

	res, err := p.Run(ctx, dir)
	if err != nil {
		return err
	}
	tracker.update(res)

	w, err := watch.New(dir, func(ctx context.Context, files []string) {
		res, err := p.RunFiles(ctx, dir, files)
		if err != nil {
			logger.Warn("regeneration interrupted", zap.Error(err))
			return
		}
		logInterfaceChanges(logger, tracker.update(res))
	}, logger)
	if err != nil {
		return err
	}
	w.Filter = sourceFilter(cfg)

	return w.Run(ctx)
}

func sourceFilter(cfg *config.Config) func(string) bool {
	return func(path string) bool {
		return config.IsVerilogFile(path) && !cfg.ShouldIgnoreFile(path)
	}
}

// interfaceTracker remembers the last interface seen per file so changes
// between regenerations can be reported as fact rows
type interfaceTracker struct {
	byFile map[string]*extractor.ModuleInterface
}

func newInterfaceTracker() *interfaceTracker {
	return &interfaceTracker{byFile: make(map[string]*extractor.ModuleInterface)}
}

func (t *interfaceTracker) tables() facts.Tables {
	entries := make([]facts.Entry, 0, len(t.byFile))
	for file, iface := range t.byFile {
		entries = append(entries, facts.Entry{File: file, Interface: iface})
	}
	return facts.BuildTables(entries)
}

// update records the interfaces in res and returns the rows that changed
// for the files it covers
func (t *interfaceTracker) update(res *pipeline.Result) facts.Delta {
	prev := t.tables()
	touched := make(map[string]bool)
	for _, f := range res.Files {
		touched[f.Path] = true
		if f.Interface != nil {
			t.byFile[f.Path] = f.Interface
		}
	}
	return facts.FilterDeltaByFiles(facts.ComputeDelta(prev, t.tables()), touched)
}

func logInterfaceChanges(log *zap.Logger, delta facts.Delta) {
	if delta.Empty() {
		return
	}
	logRows(log, "removed", delta.Removed)
	logRows(log, "added", delta.Added)
}

func logRows(log *zap.Logger, change string, t facts.Tables) {
	for _, row := range t.Modules {
		log.Info("module "+change,
			zap.String("module", row.Name),
			zap.String("file", row.File),
			zap.Int("ports", row.PortCount),
			zap.Int("parameters", row.ParameterCount))
	}
	for _, row := range t.Parameters {
		log.Info("parameter "+change,
			zap.String("module", row.Module),
			zap.String("parameter", row.Name),
			zap.Int("value", row.Value))
	}
	for _, row := range t.Ports {
		log.Info("port "+change,
			zap.String("module", row.Module),
			zap.String("port", row.Name),
			zap.String("direction", row.Direction),
			zap.Int("width", row.Width))
	}
}
