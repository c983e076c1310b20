package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/cache"
	"github.com/dustin/go-humanize"
)

func cmdCache(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: bonesaw cache <list|clear|prune|stats> [flags]")
		return exitUsage
	}

	sub, args := args[0], args[1:]
	set := newFlagSet("cache "+sub, "")
	location := set.String("cache", defaultCacheLocation(), "cache location: memory, <dir>, file:<dir>, sqlite:<path> or redis://…")
	var olderThan time.Duration
	if sub == "prune" {
		set.DurationVar(&olderThan, "older-than", 0, "also remove entries at least this old (0 = expired entries only)")
	}

	switch sub {
	case "list", "clear", "prune", "stats":
	default:
		slog.Error("unknown cache command", "command", sub)
		return exitUsage
	}

	if err := set.Parse(args); err != nil || set.NArg() != 0 {
		set.Usage()
		return exitUsage
	}

	store, err := cache.Open(ctx, *location)
	if err != nil {
		slog.Error("failed to open cache", "location", *location, "error", err)
		return exitCacheOpenFailed
	}
	defer store.Close()

	now := time.Now()
	switch sub {
	case "list":
		err = cacheList(ctx, os.Stdout, store, now)
	case "clear":
		err = cacheClear(ctx, os.Stdout, store)
	case "prune":
		err = cachePrune(ctx, os.Stdout, store, now, olderThan)
	case "stats":
		err = cacheStats(ctx, os.Stdout, store, now, *location)
	}
	if err != nil {
		slog.Error("cache command failed", "command", sub, "location", *location, "error", err)
		return exitCacheCommandFailed
	}
	return 0
}

func cacheList(ctx context.Context, w io.Writer, store cache.Store, now time.Time) error {
	infos, err := cache.List(ctx, store, now)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(w, "Cache is empty")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSTEP\tCREATED\tTTL\tREMAINING\tSIZE\tSTATUS")
	for _, info := range infos {
		status := "fresh"
		if info.Expired {
			status = "expired"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortKey(info.Key),
			info.Step,
			humanize.RelTime(info.CreatedAt, now, "ago", "from now"),
			info.TTL,
			info.Remaining.Round(time.Second),
			humanize.Bytes(uint64(info.Size)),
			status,
		)
	}
	return tw.Flush()
}

func cacheClear(ctx context.Context, w io.Writer, store cache.Store) error {
	entries, err := store.List(ctx)
	if err != nil {
		return err
	}
	if err := store.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintf(w, "Cleared %s cache entries\n", humanize.Comma(int64(len(entries))))
	return nil
}

func cachePrune(ctx context.Context, w io.Writer, store cache.Store, now time.Time, olderThan time.Duration) error {
	removed, err := cache.Prune(ctx, store, now, olderThan)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Pruned %s cache entries\n", humanize.Comma(int64(removed)))
	return nil
}

func cacheStats(ctx context.Context, w io.Writer, store cache.Store, now time.Time, location string) error {
	infos, err := cache.List(ctx, store, now)
	if err != nil {
		return err
	}
	st := cache.Summarize(infos)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Location:\t%s\n", location)
	fmt.Fprintf(tw, "Entries:\t%s\n", humanize.Comma(int64(st.Count)))
	fmt.Fprintf(tw, "Expired:\t%s\n", humanize.Comma(int64(st.Expired)))
	fmt.Fprintf(tw, "Total size:\t%s\n", humanize.Bytes(uint64(st.TotalBytes)))
	if st.Count > 0 {
		fmt.Fprintf(tw, "Oldest:\t%s\n", humanize.RelTime(now.Add(-st.Oldest), now, "ago", ""))
		fmt.Fprintf(tw, "Newest:\t%s\n", humanize.RelTime(now.Add(-st.Newest), now, "ago", ""))
	}
	return tw.Flush()
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
