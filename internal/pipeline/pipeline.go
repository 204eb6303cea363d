// Package pipeline runs extraction and testbench synthesis over a source tree.
//
// Files are processed in parallel. Each file is hashed, looked up in the
// optional interface cache, optionally checked by the tree-sitter grammar,
// extracted, validated against the interface contract and synthesized.
// Testbenches are then written sequentially in file order so that output is
// deterministic and module name collisions are reported against the later
// file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/robert-at-pretension-io/tbgen/internal/config"
	"github.com/robert-at-pretension-io/tbgen/internal/extractor"
	"github.com/robert-at-pretension-io/tbgen/internal/facts"
	"github.com/robert-at-pretension-io/tbgen/internal/harness"
	"github.com/robert-at-pretension-io/tbgen/internal/syntax"
	"github.com/robert-at-pretension-io/tbgen/internal/validator"
)

// InterfaceExtractor abstracts extraction for caching tests
type InterfaceExtractor interface {
	Extract(path string) (*extractor.ModuleInterface, error)
}

// Pipeline turns Verilog sources into testbench files
type Pipeline struct {
	Config *config.Config
	Logger *zap.Logger

	// Stdout, when set, receives every testbench instead of files
	Stdout io.Writer

	// TimingPath enables JSONL timing output; TBGEN_TIMING_JSONL overrides it
	TimingPath string

	extractorFactory func() InterfaceExtractor
}

// New creates a Pipeline. A nil config selects the defaults and a nil logger
// discards log output.
func New(cfg *config.Config, logger *zap.Logger) *Pipeline {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{Config: cfg, Logger: logger}
}

func (p *Pipeline) newExtractor() InterfaceExtractor {
	if p.extractorFactory != nil {
		return p.extractorFactory()
	}
	return extractor.New()
}

// FileResult is the outcome for one source file
type FileResult struct {
	Path      string
	Module    string
	Output    string
	CacheHit  bool
	Interface *extractor.ModuleInterface
	Syntax    []syntax.Diagnostic
	Err       error

	lines harness.Lines
}

// Result collects per-file outcomes in source order
type Result struct {
	Root     string
	Files    []FileResult
	Duration time.Duration
}

// Failed returns the files that could not be processed
func (r *Result) Failed() []FileResult {
	var failed []FileResult
	for _, f := range r.Files {
		if f.Err != nil {
			failed = append(failed, f)
		}
	}
	return failed
}

// Err joins every per-file error, or returns nil when all files succeeded
func (r *Result) Err() error {
	var errs []error
	for _, f := range r.Failed() {
		var extractErr *extractor.ExtractError
		if errors.As(f.Err, &extractErr) {
			errs = append(errs, f.Err)
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", f.Path, f.Err))
	}
	return errors.Join(errs...)
}

// Entries returns the extracted interfaces for the facts export
func (r *Result) Entries() []facts.Entry {
	var entries []facts.Entry
	for _, f := range r.Files {
		if f.Interface != nil {
			entries = append(entries, facts.Entry{File: f.Path, Interface: f.Interface})
		}
	}
	return entries
}

// Run resolves the sources under root and generates a testbench for each.
// root may be a directory or a single file. Per-file failures are recorded
// in the Result; the returned error is reserved for failures that stop the
// whole run, such as an unreadable root or a cancelled context.
func (p *Pipeline) Run(ctx context.Context, root string) (*Result, error) {
	files, err := p.Config.ResolveSources(root)
	if err != nil {
		return nil, fmt.Errorf("resolve sources: %w", err)
	}
	return p.run(ctx, root, files, true)
}

// RunFiles generates testbenches for the given files only. root anchors
// relative cache and output directories.
func (p *Pipeline) RunFiles(ctx context.Context, root string, files []string) (*Result, error) {
	return p.run(ctx, root, files, true)
}

// Extract runs the pipeline without synthesis or writes
func (p *Pipeline) Extract(ctx context.Context, root string) (*Result, error) {
	files, err := p.Config.ResolveSources(root)
	if err != nil {
		return nil, fmt.Errorf("resolve sources: %w", err)
	}
	return p.run(ctx, root, files, false)
}

func (p *Pipeline) run(ctx context.Context, root string, files []string, synthesize bool) (*Result, error) {
	runStart := time.Now()
	timing := newTimingRecorder(runStart, p.resolveTimingPath())
	if err := timing.Err(); err != nil {
		p.Logger.Warn("timing output disabled", zap.Error(err))
	}
	defer timing.Close()

	baseDir := baseDirFor(root)
	result := &Result{Root: root, Files: make([]FileResult, len(files))}
	p.Logger.Info("processing sources", zap.String("root", root), zap.Int("files", len(files)))

	v, err := validator.New()
	if err != nil {
		return nil, fmt.Errorf("load interface contract: %w", err)
	}

	var cache *interfaceCache
	if p.Config.CacheEnabled() {
		cache = newInterfaceCache(resolveCacheDir(baseDir, p.Config), extractor.Version)
		if err := cache.Load(); err != nil {
			p.Logger.Warn("cache disabled", zap.Error(err))
			cache = nil
		}
	}

	stepStart := time.Now()
	ext := p.newExtractor()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism())
	for i, file := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fileStart := time.Now()
			fr := p.processFile(gctx, ext, v, cache, baseDir, file, synthesize)
			result.Files[i] = fr
			timing.RecordFile("extract", file, fileStatus(fr), fileStart)
			return nil
		})
	}
	waitErr := g.Wait()
	if waitErr == nil {
		waitErr = ctx.Err()
	}
	timing.RecordStage("process", stepStart, "")

	if cache != nil {
		if err := cache.Save(); err != nil {
			p.Logger.Warn("cache save failed", zap.Error(err))
		}
	}
	if waitErr != nil {
		result.Duration = time.Since(runStart)
		return result, waitErr
	}

	if synthesize {
		stepStart = time.Now()
		p.emit(result, baseDir)
		timing.RecordStage("write", stepStart, "")
	}

	result.Duration = time.Since(runStart)
	timing.RecordStage("total", runStart, "")
	p.Logger.Info("run complete",
		zap.Int("files", len(result.Files)),
		zap.Int("failed", len(result.Failed())),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (p *Pipeline) parallelism() int {
	if n := p.Config.Analysis.MaxParallelFiles; n > 0 {
		return n
	}
	return runtime.GOMAXPROCS(0)
}

func (p *Pipeline) processFile(ctx context.Context, ext InterfaceExtractor, v *validator.Validator, cache *interfaceCache, baseDir, file string, synthesize bool) FileResult {
	fr := FileResult{Path: file}
	log := p.Logger.With(zap.String("file", file))

	if p.Config.Analysis.SyntaxCheck {
		checker := syntax.New()
		diags, err := checker.CheckFile(ctx, file)
		checker.Close()
		if err != nil {
			fr.Err = fmt.Errorf("syntax check: %w", err)
			return fr
		}
		fr.Syntax = diags
		for _, d := range diags {
			log.Warn("syntax error", zap.Int("line", d.Line), zap.Int("column", d.Column), zap.String("message", d.Message))
		}
	}

	var contentHash string
	if cache != nil {
		h, err := hashFile(file)
		if err != nil {
			fr.Err = err
			return fr
		}
		contentHash = h
		iface, raw, ok, err := cache.Get(file, contentHash)
		if err != nil {
			log.Warn("cache read failed", zap.Error(err))
		} else if ok {
			if err := v.ValidateJSON(raw); err != nil {
				log.Warn("discarding cached interface", zap.Error(err))
			} else {
				log.Debug("cache hit", zap.String("module", iface.Name))
				fr.CacheHit = true
				fr.Interface = iface
			}
		}
	}

	if fr.Interface == nil {
		iface, err := ext.Extract(file)
		if err != nil {
			fr.Err = err
			return fr
		}
		if err := v.Validate(iface); err != nil {
			fr.Err = fmt.Errorf("interface contract: %w", err)
			return fr
		}
		if cache != nil {
			if err := cache.Put(file, contentHash, iface); err != nil {
				log.Warn("cache write failed", zap.Error(err))
			}
		}
		fr.Interface = iface
	}

	fr.Module = fr.Interface.Name
	for _, d := range fr.Interface.Diagnostics {
		log.Warn("interface diagnostic",
			zap.String("module", fr.Module),
			zap.String("kind", string(d.Kind)),
			zap.Int("line", d.Line),
			zap.String("message", d.Message))
	}

	if synthesize {
		fr.lines = harness.Synthesize(fr.Interface, p.harnessOptions(baseDir, file))
	}
	return fr
}

func (p *Pipeline) harnessOptions(baseDir, file string) harness.Options {
	opts := harness.Options{
		ClockPeriod:    p.Config.Harness.ClockPeriod,
		StimulusRounds: p.Config.Harness.StimulusRounds,
	}
	if seed := p.Config.Harness.Seed; seed != nil {
		opts.Rand = rand.New(rand.NewPCG(*seed, pathSeed(baseDir, file)))
	}
	return opts
}

// pathSeed keys a file's generator on its path relative to the run root so
// the same seed reproduces the same stimulus on any checkout.
func pathSeed(baseDir, file string) uint64 {
	key := file
	if rel, err := filepath.Rel(baseDir, file); err == nil {
		key = filepath.ToSlash(rel)
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}

// emit writes synthesized testbenches in file order
func (p *Pipeline) emit(result *Result, baseDir string) {
	owners := make(map[string]string)
	for i := range result.Files {
		fr := &result.Files[i]
		if fr.Err != nil || fr.lines == nil {
			continue
		}

		if p.Stdout != nil {
			if _, err := fr.lines.WriteTo(p.Stdout); err != nil {
				fr.Err = fmt.Errorf("write testbench: %w", err)
			}
			continue
		}

		out := p.outputPath(baseDir, fr.Path, fr.Module)
		if owner, taken := owners[out]; taken {
			fr.Err = fmt.Errorf("module %s: testbench %s already generated from %s", fr.Module, out, owner)
			continue
		}
		if samePath(out, fr.Path) {
			fr.Err = fmt.Errorf("module %s: testbench %s would overwrite its source", fr.Module, out)
			continue
		}
		if err := writeFileAtomic(out, []byte(fr.lines.String()), ".tmp-*.v"); err != nil {
			fr.Err = fmt.Errorf("write testbench: %w", err)
			continue
		}
		owners[out] = fr.Path
		fr.Output = out
		p.Logger.Info("generated testbench",
			zap.String("file", fr.Path),
			zap.String("module", fr.Module),
			zap.String("output", out))
	}

	for _, fr := range result.Failed() {
		p.Logger.Error("file failed", zap.String("file", fr.Path), zap.Error(fr.Err))
	}
}

func (p *Pipeline) outputPath(baseDir, source, module string) string {
	dir := p.Config.Output.Dir
	switch {
	case dir == "":
		dir = filepath.Dir(source)
	case !filepath.IsAbs(dir):
		dir = filepath.Join(baseDir, dir)
	}
	return filepath.Join(dir, harness.FileName(module))
}

func baseDirFor(root string) string {
	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		return filepath.Dir(root)
	}
	return root
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

func fileStatus(fr FileResult) string {
	switch {
	case fr.Err != nil:
		return "failed"
	case fr.CacheHit:
		return "cache_hit"
	default:
		return "extracted"
	}
}
