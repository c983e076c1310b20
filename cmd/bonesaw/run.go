package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/api"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/cache"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/metrics"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/pipeline"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/processing"
)

// assignments collects repeated -set key=value flags.
type assignments []string

func (a *assignments) String() string { return strings.Join(*a, ",") }

func (a *assignments) Set(v string) error {
	*a = append(*a, v)
	return nil
}

// contextFlags are shared by run and run-all.
type contextFlags struct {
	contextFile string
	sets        assignments
	cache       string
	metricsFile string
}

func (c *contextFlags) register(set *flag.FlagSet) {
	set.StringVar(&c.contextFile, "context-file", "", "YAML file with initial context entries")
	set.Var(&c.sets, "set", "context entry as key=value (repeatable)")
	set.StringVar(&c.cache, "cache", defaultCacheLocation(), "cache location: memory, <dir>, file:<dir>, sqlite:<path> or redis://… (empty disables)")
	set.StringVar(&c.metricsFile, "metrics-file", "", "write prometheus metrics to this file")
}

func cmdRun(ctx context.Context, args []string) int {
	set := newFlagSet("run", "<config.pipeline.yaml>")
	var (
		cf        contextFlags
		input     string
		inputFile string
		watch     bool
	)
	cf.register(set)
	set.StringVar(&input, "input", "", "initial data as a string")
	set.StringVar(&inputFile, "input-file", "", "read initial data from a file (- for stdin)")
	set.BoolVar(&watch, "watch", false, "re-run when the config file changes")

	if err := set.Parse(args); err != nil || set.NArg() != 1 {
		set.Usage()
		return exitUsage
	}
	configFile := set.Arg(0)

	extra, code := loadExtraContext(cf)
	if code != 0 {
		return code
	}

	data, err := readInput(input, inputFile)
	if err != nil {
		slog.Error("failed to read input", "error", err)
		return exitReadInputFailed
	}

	stores := &lazyStore{location: cf.cache}
	defer stores.close()

	runOnce := func() int {
		cfg, err := api.LoadConfig(configFile)
		if err != nil {
			slog.Error("failed to load pipeline config", "filename", configFile, "error", err)
			return exitLoadConfigurationFileFailed
		}

		store, err := stores.get(ctx, cfg)
		if err != nil {
			slog.Error("failed to open cache", "location", cf.cache, "error", err)
			return exitCacheOpenFailed
		}

		code := execute(ctx, os.Stdout, cfg, data, processing.Options{Store: store, Context: extra})
		if mCode := writeMetrics(cf.metricsFile); mCode != 0 && code == 0 {
			code = mCode
		}
		return code
	}

	code = runOnce()
	if !watch {
		return code
	}

	err = processing.Watch(ctx, configFile, processing.DefaultDebounce, func() {
		runOnce()
	})
	if err != nil {
		slog.Error("watch failed", "filename", configFile, "error", err)
		return exitPipelineFailed
	}
	return 0
}

func cmdRunAll(ctx context.Context, args []string) int {
	set := newFlagSet("run-all", "[directory]")
	var (
		cf       contextFlags
		maxDepth int
	)
	cf.register(set)
	set.IntVar(&maxDepth, "max-depth", -1, "max directory recursion depth (-1 = unlimited, 0 = root only)")

	if err := set.Parse(args); err != nil || set.NArg() > 1 {
		set.Usage()
		return exitUsage
	}
	root := "."
	if set.NArg() == 1 {
		root = set.Arg(0)
	}

	extra, code := loadExtraContext(cf)
	if code != 0 {
		return code
	}

	var store cache.Store
	if cf.cache != "" {
		s, err := cache.Open(ctx, cf.cache)
		if err != nil {
			slog.Error("failed to open cache", "location", cf.cache, "error", err)
			return exitCacheOpenFailed
		}
		defer s.Close()
		store = s
	}

	err := processing.RunAll(ctx, root, maxDepth, processing.Options{Store: store, Context: extra})
	code = writeMetrics(cf.metricsFile)
	if err != nil {
		slog.Error("processing failed", "error", err)
		return exitPipelineFailed
	}
	return code
}

// execute runs cfg and prints its final result to w.
func execute(ctx context.Context, w io.Writer, cfg *api.Config, data any, opts processing.Options) int {
	res, err := processing.RunConfig(ctx, cfg, data, opts)
	if err != nil {
		var stepErr *pipeline.StepError
		if errors.As(err, &stepErr) {
			slog.Error("pipeline failed", "filename", cfg.FilePath, "error", err)
			return exitPipelineFailed
		}
		slog.Error("failed to build pipeline", "filename", cfg.FilePath, "error", err)
		return exitBuildFailed
	}

	if err := writeResult(w, res.Output); err != nil {
		slog.Error("failed to write result", "error", err)
		return exitPipelineFailed
	}
	return 0
}

// writeResult prints strings as they are and anything else as indented JSON.
func writeResult(w io.Writer, out any) error {
	switch v := out.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		if !strings.HasSuffix(v, "\n") {
			v += "\n"
		}
		_, err := io.WriteString(w, v)
		return err
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			_, err = fmt.Fprintln(w, v)
			return err
		}
		return nil
	}
}

func loadExtraContext(cf contextFlags) (map[string]any, int) {
	var fileCtx map[string]any
	if cf.contextFile != "" {
		var err error
		fileCtx, err = processing.LoadContextFile(cf.contextFile)
		if err != nil {
			slog.Error("failed to load context file", "filename", cf.contextFile, "error", err)
			return nil, exitLoadContextFailed
		}
	}

	setCtx, err := processing.ParseAssignments(cf.sets)
	if err != nil {
		slog.Error("invalid -set value", "error", err)
		return nil, exitUsage
	}

	return processing.MergeContext(fileCtx, setCtx), 0
}

func readInput(input, inputFile string) (any, error) {
	switch {
	case input != "" && inputFile != "":
		return nil, errors.New("-input and -input-file are mutually exclusive")
	case input != "":
		return input, nil
	case inputFile == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return string(b), nil
	case inputFile != "":
		b, err := os.ReadFile(inputFile)
		if err != nil {
			return nil, fmt.Errorf("reading input file: %w", err)
		}
		return string(b), nil
	default:
		return nil, nil
	}
}

func writeMetrics(filename string) int {
	if filename == "" {
		return 0
	}
	if err := metrics.Default.WriteTextfile(filename); err != nil {
		slog.Error("failed to write metrics", "filename", filename, "error", err)
		return exitMetricsWriteFailed
	}
	return 0
}

// lazyStore opens the cache the first time a config with cached steps needs
// it, so runs without cache_ttl never touch the cache location.
type lazyStore struct {
	location string
	store    cache.Store
}

func (l *lazyStore) get(ctx context.Context, cfg *api.Config) (cache.Store, error) {
	if l.store != nil || l.location == "" || !usesCache(cfg) {
		return l.store, nil
	}
	s, err := cache.Open(ctx, l.location)
	if err != nil {
		return nil, err
	}
	l.store = s
	return s, nil
}

func (l *lazyStore) close() {
	if l.store == nil {
		return
	}
	if err := l.store.Close(); err != nil {
		slog.Warn("failed to close cache", "error", err)
	}
}

func usesCache(cfg *api.Config) bool {
	if cfg.Pipeline == nil {
		return false
	}
	for _, d := range cfg.Pipeline.Steps {
		if d.CacheTTL > 0 {
			return true
		}
	}
	return false
}
