package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/biomed-sul/leadscout/internal/cache"
	"github.com/biomed-sul/leadscout/internal/classify"
	"github.com/biomed-sul/leadscout/internal/contacts"
	"github.com/biomed-sul/leadscout/internal/dedupe"
	"github.com/biomed-sul/leadscout/internal/directory"
	"github.com/biomed-sul/leadscout/internal/enrich"
	"github.com/biomed-sul/leadscout/internal/fetcher"
	"github.com/biomed-sul/leadscout/internal/geo"
	"github.com/biomed-sul/leadscout/internal/monitoring"
	"github.com/biomed-sul/leadscout/internal/resilience"
	"github.com/biomed-sul/leadscout/internal/search"
	"github.com/biomed-sul/leadscout/internal/store"
	"github.com/biomed-sul/leadscout/pkg/ibge"
)

func newFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:    60 * time.Second,
		MaxRetries: 3,
	})
}

func newClassifier() (*classify.Classifier, error) {
	var (
		rules *classify.Rules
		err   error
	)
	if cfg.Filters.RulesPath != "" {
		rules, err = classify.LoadRules(cfg.Filters.RulesPath)
	} else {
		rules, err = classify.DefaultRules()
	}
	if err != nil {
		return nil, err
	}
	return classify.New(rules, cfg.Filters.Filters)
}

// newSearchCollector validates the search settings first so a missing API key
// stops the command before any request is made.
func newSearchCollector(st store.Store, m *monitoring.Metrics) (*search.Collector, error) {
	if err := cfg.Validate("search"); err != nil {
		return nil, err
	}
	cls, err := newClassifier()
	if err != nil {
		return nil, err
	}
	gate := resilience.NewGate(resilience.GateConfig{
		Name:        "search",
		Concurrency: cfg.Collect.Concurrency,
		Delay:       cfg.Collect.Delay(),
		Cooldown:    cfg.Collect.Cooldown(),
	})
	return search.NewCollector(cfg.Search.APIKey, st, cls, gate, search.Config{
		Keywords:          cfg.Search.Keywords,
		Country:           cfg.Search.Country,
		Language:          cfg.Search.Language,
		Num:               cfg.Search.ResultsPerPage,
		LogRejections:     cfg.Filters.LogRejections,
		ReferenceLocation: cfg.Collect.ReferenceLocation,
		MaxDistanceKm:     cfg.Collect.MaxDistanceKm,
		BaseURL:           cfg.Search.BaseURL,
		Timeout:           time.Duration(cfg.Search.TimeoutSecs) * time.Second,
	}, search.WithMetrics(m))
}

func newLocationLoader(ctx context.Context, st store.Store) (*geo.Loader, error) {
	fallback, err := geo.DefaultFallback(ctx)
	if err != nil {
		return nil, err
	}
	client := ibge.NewClient(ibge.WithBaseURL(cfg.Geo.BaseURL))
	return geo.NewLoader(client, st, geo.LoaderConfig{
		Regions:       cfg.Collect.Regions,
		MinPopulation: cfg.Collect.MinPopulation,
	}, fallback), nil
}

func newDirectoryCollector(st store.Store, m *monitoring.Metrics) *directory.Collector {
	return directory.NewCollector(newFetcher(), st, cfg.Directory.URL, m)
}

func newDeduplicator(st store.Store, m *monitoring.Metrics) (*dedupe.Deduplicator, error) {
	if err := cfg.Validate("dedupe"); err != nil {
		return nil, err
	}
	return dedupe.New(st, dedupe.Config{
		FuzzyEnabled: cfg.Dedupe.FuzzyEnabled,
		Threshold:    cfg.Dedupe.FuzzyThreshold,
		MaxPartition: cfg.Dedupe.MaxPartition,
	}, m), nil
}

func newEnricher(ctx context.Context, st store.Store, m *monitoring.Metrics) (*enrich.Enricher, error) {
	if err := cfg.Validate("enrich"); err != nil {
		return nil, err
	}
	pc, err := newPageCache(ctx)
	if err != nil {
		return nil, err
	}
	ext := contacts.NewExtractor(contacts.Options{
		Timeout:           cfg.Enrich.Timeout(),
		MaxBytes:          cfg.Enrich.MaxBytes,
		MaxRedirects:      cfg.Enrich.MaxRedirects,
		MaxText:           cfg.Enrich.MaxText,
		FollowContactPage: cfg.Enrich.FollowContactPage,
	}, nil)
	gate := resilience.NewGate(resilience.GateConfig{
		Name:        "enrich",
		Concurrency: cfg.Enrich.Concurrency,
		Delay:       cfg.Enrich.Delay(),
	})
	return enrich.New(st, ext, pc, gate, enrich.Config{
		BatchSize: cfg.Enrich.BatchSize,
		CacheTTL:  cfg.Enrich.CacheTTL(),
		Caps:      contacts.DefaultCaps(),
	}, m), nil
}

// newPageCache falls back to the in-process cache when Redis is unreachable.
func newPageCache(ctx context.Context) (cache.PageCache, error) {
	pc, err := cache.New(cfg.Enrich.Cache, cache.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	r, ok := pc.(*cache.Redis)
	if !ok {
		return pc, nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.Ping(pingCtx); err != nil {
		zap.L().Warn("redis unavailable, using in-memory page cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		return cache.NewMemory(), nil
	}
	return pc, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}
