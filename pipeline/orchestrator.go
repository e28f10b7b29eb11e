package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweetpotato0/queryweave/cache"
	"github.com/sweetpotato0/queryweave/evidence"
	"github.com/sweetpotato0/queryweave/source"
)

// FetchResult ties the evidence (or failure) of one adapter call back to the
// sub-query that requested it.
type FetchResult struct {
	SubQuery SubQuery
	Items    []evidence.Item
	Err      error
	Cached   bool
}

// Failed reports whether the sub-query produced no usable evidence.
func (r FetchResult) Failed() bool { return r.Err != nil }

type orchestrator struct {
	registry       *source.Registry
	cache          cache.Cache
	adapterTimeout time.Duration
	passBudget     time.Duration
	defaultTTL     time.Duration
	ttlBySource    map[evidence.SourceKind]time.Duration
	logger         *slog.Logger
}

func newOrchestrator(registry *source.Registry, cfg *Config, logger *slog.Logger) *orchestrator {
	return &orchestrator{
		registry:       registry,
		cache:          cfg.cache,
		adapterTimeout: cfg.AdapterTimeout,
		passBudget:     cfg.PassBudget,
		defaultTTL:     cfg.SubQueryTTL,
		ttlBySource:    cfg.SubQueryTTLBySource,
		logger:         logger,
	}
}

// Fetch runs all sub-queries of one pass concurrently, one goroutine per
// sub-query. Each result carries its own error so one failing adapter never
// disturbs its siblings. Sub-queries still unfinished when the pass budget
// expires are reported as timed out and excluded from evidence.
func (o *orchestrator) Fetch(ctx context.Context, subqueries []SubQuery) []FetchResult {
	if len(subqueries) == 0 {
		return nil
	}

	passCtx := ctx
	var cancel context.CancelFunc
	if o.passBudget > 0 {
		passCtx, cancel = context.WithTimeout(ctx, o.passBudget)
		defer cancel()
	}

	resultCh := make(chan FetchResult, len(subqueries))
	for _, sq := range subqueries {
		go func(sq SubQuery) {
			resultCh <- o.fetchOne(passCtx, sq)
		}(sq)
	}

	results := make([]FetchResult, 0, len(subqueries))
	done := make(map[string]struct{}, len(subqueries))
	for range subqueries {
		select {
		case res := <-resultCh:
			results = append(results, res)
			done[res.SubQuery.ID] = struct{}{}
		case <-passCtx.Done():
			for _, sq := range subqueries {
				if _, ok := done[sq.ID]; ok {
					continue
				}
				o.logger.Warn("sub-query exceeded pass budget", "id", sq.ID, "source", sq.Source)
				results = append(results, FetchResult{
					SubQuery: sq,
					Err:      source.NewError(sq.Source, source.ErrTimeout, passCtx.Err()),
				})
			}
			return results
		}
	}
	return results
}

func (o *orchestrator) fetchOne(ctx context.Context, sq SubQuery) FetchResult {
	res := FetchResult{SubQuery: sq}

	adapter, ok := o.registry.Get(sq.Source)
	if !ok {
		res.Err = source.NewError(sq.Source, source.ErrUpstream,
			fmt.Errorf("no adapter registered for %s", sq.Source))
		return res
	}

	key := o.cacheKey(sq)
	var cached []evidence.Item
	if err := cache.GetJSON(ctx, o.cache, key, &cached); err == nil {
		o.logger.Debug("sub-query served from cache", "id", sq.ID, "source", sq.Source)
		res.Items = cached
		res.Cached = true
		return res
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if o.adapterTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, o.adapterTimeout)
		defer cancel()
	}

	items, err := adapter.Call(callCtx, source.Request{
		ID:          sq.ID,
		Query:       sq.Query,
		Description: sq.Description,
	})
	if err != nil {
		if _, typed := source.AsError(err); !typed {
			kind := source.ErrUpstream
			if errors.Is(err, context.DeadlineExceeded) {
				kind = source.ErrTimeout
			}
			err = source.NewError(sq.Source, kind, err)
		}
		o.logger.Warn("sub-query failed", "id", sq.ID, "source", sq.Source, "error", err)
		res.Err = err
		return res
	}

	for idx := range items {
		if items[idx].Source == "" {
			items[idx].Source = sq.Source
		}
	}
	res.Items = items

	if err := cache.SetJSON(ctx, o.cache, key, items, o.ttl(sq.Source)); err != nil {
		o.logger.Debug("sub-query cache write failed", "id", sq.ID, "error", err)
	}
	return res
}

func (o *orchestrator) cacheKey(sq SubQuery) string {
	return cache.Key("subquery", map[string]string{
		"source": string(sq.Source),
		"query":  sq.Query,
	})
}

func (o *orchestrator) ttl(kind evidence.SourceKind) time.Duration {
	if ttl, ok := o.ttlBySource[kind]; ok {
		return ttl
	}
	return o.defaultTTL
}
