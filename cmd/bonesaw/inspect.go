package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/api"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/cache"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/processing"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/registry"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/steps"
)

const noDescription = "No description provided."

func cmdInspect(_ context.Context, args []string) int {
	cfg, name, code := loadForDisplay("inspect", args)
	if code != 0 {
		return code
	}
	printInspect(os.Stdout, name, cfg)
	return 0
}

func cmdDryRun(_ context.Context, args []string) int {
	cfg, name, code := loadForDisplay("dry-run", args)
	if code != 0 {
		return code
	}
	printDryRun(os.Stdout, name, cfg)
	return 0
}

// loadForDisplay loads a config and builds it without running, so unknown
// step types and bad parameters are reported the same way run would.
func loadForDisplay(command string, args []string) (*api.Config, string, int) {
	set := newFlagSet(command, "<config.pipeline.yaml>")
	if err := set.Parse(args); err != nil || set.NArg() != 1 {
		set.Usage()
		return nil, "", exitUsage
	}

	cfg, err := api.LoadConfig(set.Arg(0))
	if err != nil {
		slog.Error("failed to load pipeline config", "filename", set.Arg(0), "error", err)
		return nil, "", exitLoadConfigurationFileFailed
	}

	p, err := processing.Build(cfg, registry.Default, cache.NewMemoryStore())
	if err != nil {
		slog.Error("failed to build pipeline", "filename", cfg.FilePath, "error", err)
		return nil, "", exitBuildFailed
	}
	return cfg, p.Name(), 0
}

func describe(stepType string) string {
	if d := steps.Describe(stepType); d != "" {
		return d
	}
	return noDescription
}

func printInspect(w io.Writer, name string, cfg *api.Config) {
	fmt.Fprintf(w, "Pipeline: %s\n\n", name)
	for i, d := range cfg.Pipeline.Steps {
		line := fmt.Sprintf("%d. %s  → %s", i+1, d.Type, describe(d.Type))
		if d.CacheTTL > 0 {
			line += fmt.Sprintf(" (cached %s)", d.CacheTTL)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "\nTotal steps: %d\n", len(cfg.Pipeline.Steps))
}

func printDryRun(w io.Writer, name string, cfg *api.Config) {
	fmt.Fprintf(w, "NOTE: This is a dry-run; no data will be processed or written.\n\n")
	fmt.Fprintf(w, "Dry run: %s\n\n", name)

	for i, d := range cfg.Pipeline.Steps {
		fmt.Fprintf(w, "Step %d: %s\n", i+1, d.Type)
		fmt.Fprintf(w, "  - Description: %s\n", describe(d.Type))
		if d.CacheTTL > 0 {
			fmt.Fprintf(w, "  - Cache TTL: %s\n", d.CacheTTL)
		}
		if len(d.Params) > 0 {
			fmt.Fprintf(w, "  - Parameters: %s\n", formatParams(d.Params))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total steps: %d\n\n", len(cfg.Pipeline.Steps))
	fmt.Fprintln(w, "Dry-run complete. Use 'run' to execute the pipeline.")
}

func formatParams(params map[string]any) string {
	keys := slices.Sorted(maps.Keys(params))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, ", ")
}

func cmdSteps(_ context.Context, args []string) int {
	set := newFlagSet("steps", "")
	if err := set.Parse(args); err != nil || set.NArg() != 0 {
		set.Usage()
		return exitUsage
	}
	printSteps(os.Stdout, registry.Default)
	return 0
}

func printSteps(w io.Writer, reg *registry.Registry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range reg.Names() {
		fmt.Fprintf(tw, "%s\t%s\n", name, describe(name))
	}
	_ = tw.Flush()
}

func cmdList(_ context.Context, args []string) int {
	set := newFlagSet("list", "[directory]")
	maxDepth := set.Int("max-depth", -1, "max directory recursion depth (-1 = unlimited, 0 = root only)")
	if err := set.Parse(args); err != nil || set.NArg() > 1 {
		set.Usage()
		return exitUsage
	}
	root := "."
	if set.NArg() == 1 {
		root = set.Arg(0)
	}

	paths, err := processing.DiscoverPaths(root, *maxDepth)
	if err != nil {
		slog.Error("failed to discover pipelines", "dir", root, "error", err)
		return exitDiscoveryFailed
	}
	if len(paths) == 0 {
		fmt.Fprintf(os.Stdout, "No pipeline configs found under %s\n", root)
		return 0
	}
	printList(os.Stdout, paths)
	return 0
}

// printList shows each config with its name and step count. Configs that do
// not load are listed with the reason instead.
func printList(w io.Writer, paths []string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tNAME\tSTEPS")
	for _, p := range paths {
		cfg, err := api.LoadConfig(p)
		if err != nil {
			fmt.Fprintf(tw, "%s\t(invalid)\t%v\n", p, err)
			continue
		}
		name := cfg.Pipeline.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", p, name, len(cfg.Pipeline.Steps))
	}
	_ = tw.Flush()
}
