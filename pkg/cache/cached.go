package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"reflect"
	"strconv"
	"time"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/metrics"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/pipeline"
	"golang.org/x/sync/singleflight"
)

// inflight collapses concurrent misses on the same fingerprint within the
// process; the fingerprint already includes the step identity.
var inflight singleflight.Group

// Option configures a cached step.
type Option func(*cachedStep)

// WithClock replaces time.Now for freshness checks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *cachedStep) { s.now = now }
}

type cachedStep struct {
	identity string
	params   map[string]any
	step     pipeline.Step
	store    Store
	ttl      time.Duration
	now      func() time.Time
}

// Wrap returns a step that serves results of step from store while they are
// younger than ttl. identity must be stable across runs (the registered type
// name) and params must be the construction parameters that affect output.
//
// A hit returns the stored output without running step, so none of step's
// side effects, including writes to the pipeline Context, happen. Outputs
// restored from the store are JSON-decoded values (string, bool, []any,
// map[string]any, and int64, uint64 or float64 for numbers). Outputs holding
// strings that are not valid UTF-8 are never stored. Store failures are
// logged and treated as misses.
// A ttl of zero or less disables caching.
func Wrap(identity string, params map[string]any, step pipeline.Step, store Store, ttl time.Duration, opts ...Option) pipeline.Step {
	if ttl <= 0 || store == nil {
		return step
	}

	s := &cachedStep{
		identity: identity,
		params:   params,
		step:     step,
		store:    store,
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *cachedStep) Name() string { return s.identity }

func (s *cachedStep) Run(ctx context.Context, data any, pc pipeline.Context) (any, error) {
	key, err := Fingerprint(s.identity, s.params, data)
	if err != nil {
		slog.Warn("step input is not cacheable, executing", "step", s.identity, "error", err)
		metrics.Default.ObserveCache(s.identity, metrics.CacheError)
		return s.step.Run(ctx, data, pc)
	}

	if out, ok := s.lookup(ctx, key); ok {
		return out, nil
	}

	out, err, _ := inflight.Do(key, func() (any, error) {
		out, err := s.step.Run(ctx, data, pc)
		if err != nil {
			return nil, err
		}
		s.save(ctx, key, out)
		return out, nil
	})
	return out, err
}

func (s *cachedStep) lookup(ctx context.Context, key string) (any, bool) {
	entry, err := s.store.Get(ctx, key)
	if err != nil {
		slog.Warn("cache read failed, executing step", "step", s.identity, "key", key, "error", err)
		metrics.Default.ObserveCache(s.identity, metrics.CacheError)
		return nil, false
	}
	if entry == nil {
		slog.Info("cache miss", "step", s.identity)
		metrics.Default.ObserveCache(s.identity, metrics.CacheMiss)
		return nil, false
	}

	now := s.now()
	if !entry.Fresh(now) {
		slog.Info("cache expired", "step", s.identity, "age", entry.Age(now).Truncate(time.Second))
		metrics.Default.ObserveCache(s.identity, metrics.CacheExpired)
		return nil, false
	}

	out, err := decodeValue(entry.Value)
	if err != nil {
		slog.Warn("cache entry unreadable, executing step", "step", s.identity, "key", key, "error", err)
		metrics.Default.ObserveCache(s.identity, metrics.CacheError)
		return nil, false
	}

	slog.Info("cache hit", "step", s.identity,
		"age", entry.Age(now).Truncate(time.Second), "ttl", entry.TTL)
	metrics.Default.ObserveCache(s.identity, metrics.CacheHit)
	return out, true
}

func (s *cachedStep) save(ctx context.Context, key string, out any) {
	value, err := json.Marshal(out)
	if err == nil {
		err = checkUTF8(reflect.ValueOf(out))
	}
	if err != nil {
		slog.Warn("step output is not cacheable", "step", s.identity, "error", err)
		return
	}

	entry := &Entry{
		Key:       key,
		Step:      s.identity,
		Value:     value,
		CreatedAt: s.now(),
		TTL:       s.ttl,
	}
	if err := s.store.Put(ctx, entry); err != nil {
		slog.Warn("cache write failed", "step", s.identity, "key", key, "error", err)
		return
	}
	slog.Debug("cached step result", "step", s.identity, "key", key, "bytes", len(value))
}

// decodeValue unmarshals a stored output, keeping integers exact.
func decodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return restoreNumbers(out), nil
}

func restoreNumbers(v any) any {
	switch v := v.(type) {
	case json.Number:
		if n, err := strconv.ParseInt(v.String(), 10, 64); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(v.String(), 10, 64); err == nil {
			return n
		}
		f, _ := v.Float64()
		return f
	case []any:
		for i := range v {
			v[i] = restoreNumbers(v[i])
		}
	case map[string]any:
		for k := range v {
			v[k] = restoreNumbers(v[k])
		}
	}
	return v
}
