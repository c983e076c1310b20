package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/cache"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/logging"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/registry"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/steps"
	"github.com/joho/godotenv"
)

var version = "dev"

const (
	_ = iota
	exitUsage
	exitDotenvError
	exitLoggingSetupFailed
	exitLoadConfigurationFileFailed
	exitBuildFailed
	exitPipelineFailed
	exitLoadContextFailed
	exitReadInputFailed
	exitCacheOpenFailed
	exitCacheCommandFailed
	exitMetricsWriteFailed
	exitDiscoveryFailed
)

const (
	envCache    = "BONESAW_CACHE"
	envLogLevel = "BONESAW_LOG_LEVEL"
	envLogType  = "BONESAW_LOG_TYPE"
)

var (
	loggingType string
	logLevel    string
	showVersion bool
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string) int
}

var commands []command

func init() {
	commands = []command{
		{"run", "run a pipeline config", cmdRun},
		{"run-all", "run every *.pipeline.yaml under a directory", cmdRunAll},
		{"inspect", "show a pipeline's steps without running it", cmdInspect},
		{"dry-run", "show a pipeline's steps and parameters without running it", cmdDryRun},
		{"steps", "list registered step types", cmdSteps},
		{"list", "list pipeline configs under a directory", cmdList},
		{"cache", "manage the step cache (list, clear, prune, stats)", cmdCache},
	}

	flag.StringVar(
		&loggingType,
		"logging-type",
		"tint",
		"logging type: json, text or tint (env "+envLogType+")")
	flag.StringVar(
		&logLevel,
		"log-level",
		"info",
		"logging level: debug, info, warn, error (env "+envLogLevel+")")
	flag.BoolVar(
		&showVersion,
		"version",
		false,
		"print version and exit")

	flag.Usage = usage
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "usage: bonesaw [flags] <command> [command flags]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-9s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(out, "\nflags:\n")
	flag.PrintDefaults()
}

func main() {
	includeEnv()
	applyEnvDefaults()
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := logging.Initialize(os.Stderr, loggingType, logLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitLoggingSetupFailed)
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(exitUsage)
	}

	steps.RegisterBuiltins(registry.Default)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := dispatch(ctx, flag.Arg(0), flag.Args()[1:])
	stop()
	os.Exit(code)
}

func dispatch(ctx context.Context, name string, args []string) int {
	for _, c := range commands {
		if c.name == name {
			return c.run(ctx, args)
		}
	}
	slog.Error("unknown command", "command", name)
	flag.Usage()
	return exitUsage
}

// includeEnv loads .env before flags are parsed so it can feed env defaults.
func includeEnv() {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(exitDotenvError)
	}
}

func applyEnvDefaults() {
	if v := os.Getenv(envLogType); v != "" {
		loggingType = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		logLevel = v
	}
}

// defaultCacheLocation is where cached steps are stored when -cache is not
// given.
func defaultCacheLocation() string {
	if v := os.Getenv(envCache); v != "" {
		return v
	}
	return cache.DefaultDir
}

// newFlagSet creates a subcommand flag set that reports errors instead of
// exiting.
func newFlagSet(name, args string) *flag.FlagSet {
	set := flag.NewFlagSet(name, flag.ContinueOnError)
	set.Usage = func() {
		fmt.Fprintf(set.Output(), "usage: bonesaw %s [flags] %s\n", name, args)
		set.PrintDefaults()
	}
	return set
}
