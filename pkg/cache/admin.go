package cache

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// Info describes one stored entry for management commands.
type Info struct {
	Key       string
	Step      string
	CreatedAt time.Time
	Age       time.Duration
	TTL       time.Duration
	Remaining time.Duration
	Size      int
	Expired   bool
}

// Stats summarises a store.
type Stats struct {
	Count      int
	Expired    int
	TotalBytes int64
	Oldest     time.Duration
	Newest     time.Duration
}

// List describes every entry in store, newest first.
func List(ctx context.Context, store Store, now time.Time) ([]Info, error) {
	entries, err := store.List(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, Info{
			Key:       e.Key,
			Step:      e.Step,
			CreatedAt: e.CreatedAt,
			Age:       e.Age(now),
			TTL:       e.TTL,
			Remaining: e.Remaining(now),
			Size:      len(e.Value),
			Expired:   !e.Fresh(now),
		})
	}

	slices.SortFunc(infos, func(a, b Info) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return infos, nil
}

// Prune deletes expired entries, and with olderThan > 0 also every entry at
// least that old. It returns the number of entries removed.
func Prune(ctx context.Context, store Store, now time.Time, olderThan time.Duration) (int, error) {
	infos, err := List(ctx, store, now)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, info := range infos {
		if !info.Expired && (olderThan <= 0 || info.Age < olderThan) {
			continue
		}
		if err := store.Delete(ctx, info.Key); err != nil {
			return removed, fmt.Errorf("pruning %s: %w", info.Key, err)
		}
		removed++
	}
	return removed, nil
}

// Summarize computes Stats over infos.
func Summarize(infos []Info) Stats {
	var st Stats
	for i, info := range infos {
		st.Count++
		st.TotalBytes += int64(info.Size)
		if info.Expired {
			st.Expired++
		}
		if i == 0 || info.Age > st.Oldest {
			st.Oldest = info.Age
		}
		if i == 0 || info.Age < st.Newest {
			st.Newest = info.Age
		}
	}
	return st
}
