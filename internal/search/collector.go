// Package search issues one web search per (location, keyword) pair, filters
// the hits through the relevance classifier and stores the survivors. A
// search-log row marks each completed pair so re-runs skip it.
package search

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/biomed-sul/leadscout/internal/classify"
	"github.com/biomed-sul/leadscout/internal/geo"
	"github.com/biomed-sul/leadscout/internal/model"
	"github.com/biomed-sul/leadscout/internal/monitoring"
	"github.com/biomed-sul/leadscout/internal/resilience"
	"github.com/biomed-sul/leadscout/internal/textnorm"
	"github.com/biomed-sul/leadscout/pkg/serper"
)

// ErrMissingAPIKey is returned by NewCollector when no API key is configured.
var ErrMissingAPIKey = errors.New("search: api key is required")

const progressEvery = 10

// Store is the persistence the collector needs.
type Store interface {
	ListLocations(ctx context.Context) ([]model.Location, error)
	SearchLogged(ctx context.Context, locationID int64, keyword string, source model.Source) (bool, error)
	LogSearch(ctx context.Context, entry model.SearchLogEntry) error
	InsertEstablishment(ctx context.Context, e *model.Establishment) (bool, error)
	InsertRejection(ctx context.Context, r model.RejectedResult) error
}

// Config controls what is searched.
type Config struct {
	Keywords []string
	Country  string
	Language string
	// Num is the number of results requested per query.
	Num int
	// LogRejections persists discarded results.
	LogRejections bool
	// ReferenceLocation ("Name" or "Name/UF") and MaxDistanceKm restrict the
	// search to locations within a radius. Zero disables the filter.
	ReferenceLocation string
	MaxDistanceKm     float64
	// BaseURL and Timeout configure the default client.
	BaseURL string
	Timeout time.Duration
}

// Result counts what a Collect call did.
type Result struct {
	Locations   int `json:"locations"`
	Queries     int `json:"queries"`
	Skipped     int `json:"skipped"`
	RateLimited int `json:"rate_limited"`
	Failed      int `json:"failed"`
	Accepted    int `json:"accepted"`
	Rejected    int `json:"rejected"`
	Inserted    int `json:"inserted"`
}

type counters struct {
	queries, skipped, rateLimited, failed atomic.Int64
	accepted, rejected, inserted          atomic.Int64
}

func (c *counters) result(locations int) *Result {
	return &Result{
		Locations:   locations,
		Queries:     int(c.queries.Load()),
		Skipped:     int(c.skipped.Load()),
		RateLimited: int(c.rateLimited.Load()),
		Failed:      int(c.failed.Load()),
		Accepted:    int(c.accepted.Load()),
		Rejected:    int(c.rejected.Load()),
		Inserted:    int(c.inserted.Load()),
	}
}

// Option configures a Collector.
type Option func(*Collector)

// WithClient replaces the default Serper client.
func WithClient(client serper.Client) Option {
	return func(c *Collector) {
		c.client = client
	}
}

// WithMetrics records query and result counters.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Collector) {
		c.metrics = m
	}
}

// Collector runs the search stage.
type Collector struct {
	client     serper.Client
	store      Store
	classifier *classify.Classifier
	gate       *resilience.Gate
	cfg        Config
	metrics    *monitoring.Metrics
	log        *zap.Logger
}

// NewCollector builds a Collector. It fails before any network activity when
// apiKey is empty.
func NewCollector(apiKey string, st Store, cls *classify.Classifier, gate *resilience.Gate, cfg Config, opts ...Option) (*Collector, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, eris.Wrap(ErrMissingAPIKey, "search: new collector")
	}
	if len(cfg.Keywords) == 0 {
		return nil, eris.New("search: no keywords configured")
	}

	c := &Collector{
		store:      st,
		classifier: cls,
		gate:       gate,
		cfg:        cfg,
		log:        zap.L().With(zap.String("component", "search")),
	}
	for _, o := range opts {
		o(c)
	}
	if c.client == nil {
		var sopts []serper.Option
		if cfg.BaseURL != "" {
			sopts = append(sopts, serper.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Timeout > 0 {
			sopts = append(sopts, serper.WithTimeout(cfg.Timeout))
		}
		c.client = serper.NewClient(apiKey, sopts...)
	}
	return c, nil
}

// QueryText builds the search string for a pair.
func QueryText(keyword string, loc model.Location) string {
	return keyword + " " + loc.Label()
}

// Collect walks locations by population, largest first. The keywords of one
// location run concurrently through the gate and all finish before the next
// location starts. Query failures are logged and left unlogged for a later
// pass; store errors abort.
func (c *Collector) Collect(ctx context.Context) (*Result, error) {
	start := time.Now()
	cnt := &counters{}

	locs, err := c.locations(ctx)
	if err != nil {
		return cnt.result(0), err
	}
	c.log.Info("search: starting",
		zap.Int("locations", len(locs)),
		zap.Int("keywords", len(c.cfg.Keywords)),
	)

	for i, loc := range locs {
		if err := ctx.Err(); err != nil {
			return cnt.result(i), eris.Wrap(err, "search: cancelled")
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, kw := range c.cfg.Keywords {
			g.Go(func() error {
				return c.searchPair(gctx, loc, kw, cnt)
			})
		}
		if err := g.Wait(); err != nil {
			return cnt.result(i + 1), err
		}

		if (i+1)%progressEvery == 0 {
			c.log.Info("search: progress",
				zap.Int("locations_done", i+1),
				zap.Int("locations_total", len(locs)),
				zap.Int64("queries", cnt.queries.Load()),
				zap.Int64("inserted", cnt.inserted.Load()),
			)
		}
	}

	res := cnt.result(len(locs))
	c.log.Info("search: complete",
		zap.Int("locations", res.Locations),
		zap.Int("queries", res.Queries),
		zap.Int("skipped", res.Skipped),
		zap.Int("rate_limited", res.RateLimited),
		zap.Int("failed", res.Failed),
		zap.Int("accepted", res.Accepted),
		zap.Int("rejected", res.Rejected),
		zap.Int("inserted", res.Inserted),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (c *Collector) locations(ctx context.Context) ([]model.Location, error) {
	locs, err := c.store.ListLocations(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "search: list locations")
	}
	if c.cfg.MaxDistanceKm <= 0 {
		return locs, nil
	}
	ref, ok := geo.FindLocation(locs, c.cfg.ReferenceLocation)
	if !ok {
		return nil, eris.Errorf("search: reference location %q not found", c.cfg.ReferenceLocation)
	}
	within := geo.WithinRadius(locs, ref, c.cfg.MaxDistanceKm)
	c.log.Info("search: radius filter",
		zap.String("reference", ref.Label()),
		zap.Float64("max_distance_km", c.cfg.MaxDistanceKm),
		zap.Int("locations", len(within)),
	)
	return within, nil
}

func (c *Collector) searchPair(ctx context.Context, loc model.Location, keyword string, cnt *counters) error {
	done, err := c.store.SearchLogged(ctx, loc.ID, keyword, model.SourceSearch)
	if err != nil {
		return eris.Wrap(err, "search: check search log")
	}
	if done {
		cnt.skipped.Add(1)
		return nil
	}

	q := serper.Query{
		Text:     QueryText(keyword, loc),
		Country:  c.cfg.Country,
		Language: c.cfg.Language,
		Num:      c.cfg.Num,
	}
	results, err := resilience.Run(ctx, c.gate, func(ctx context.Context) ([]serper.Result, error) {
		return c.search(ctx, q)
	})
	if err != nil {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "search: cancelled")
		}
		if resilience.IsRateLimited(err) {
			cnt.rateLimited.Add(1)
			c.metrics.IncSearchQuery("rate_limited")
			c.metrics.IncCooldown()
			c.log.Warn("search: rate limited", zap.String("query", q.Text))
			return nil
		}
		cnt.failed.Add(1)
		c.metrics.IncSearchQuery("failed")
		c.log.Warn("search: query failed", zap.String("query", q.Text), zap.Error(err))
		return nil
	}
	cnt.queries.Add(1)
	c.metrics.IncSearchQuery("ok")

	for _, r := range results {
		if err := c.handleResult(ctx, loc, keyword, r, cnt); err != nil {
			return err
		}
	}

	// The pair is logged only after its results are stored, so a crash in
	// between repeats the query instead of losing results.
	entry := model.SearchLogEntry{
		LocationID:   loc.ID,
		Keyword:      keyword,
		Source:       model.SourceSearch,
		ResultsCount: len(results),
	}
	if err := c.store.LogSearch(ctx, entry); err != nil {
		return eris.Wrap(err, "search: log search")
	}
	return nil
}

// search maps a 429 to a RateLimitError so the gate cools down.
func (c *Collector) search(ctx context.Context, q serper.Query) ([]serper.Result, error) {
	results, err := c.client.Search(ctx, q)
	if err == nil {
		return results, nil
	}
	if errors.Is(err, serper.ErrRateLimited) {
		rl := &resilience.RateLimitError{Service: "serper", Err: err}
		var se *serper.StatusError
		if errors.As(err, &se) {
			rl.RetryAfter = se.RetryAfter
		}
		return nil, rl
	}
	return nil, err
}

func (c *Collector) handleResult(ctx context.Context, loc model.Location, keyword string, r serper.Result, cnt *counters) error {
	out := c.classifier.Classify(classify.Result{Title: r.Title, Link: r.Link, Snippet: r.Snippet})
	name := strings.TrimSpace(r.Title)
	normalized := textnorm.Normalize(name)
	if out.Accepted && normalized == "" {
		out = classify.Reject(classify.ReasonGenericTitle)
	}

	if !out.Accepted {
		cnt.rejected.Add(1)
		c.metrics.IncSearchResult("rejected", out.Reason)
		if !c.cfg.LogRejections {
			return nil
		}
		err := c.store.InsertRejection(ctx, model.RejectedResult{
			LocationID: loc.ID,
			Keyword:    keyword,
			Title:      r.Title,
			Link:       r.Link,
			Snippet:    r.Snippet,
			Reason:     out.Reason,
		})
		if err != nil {
			return eris.Wrap(err, "search: record rejection")
		}
		return nil
	}

	cnt.accepted.Add(1)
	c.metrics.IncSearchResult("accepted", "")
	e := &model.Establishment{
		Name:           name,
		NameNormalized: normalized,
		LocationID:     loc.ID,
		Category:       out.Category,
		Website:        strings.TrimSpace(r.Link),
		Source:         model.SourceSearch,
		SourceURL:      strings.TrimSpace(r.Link),
	}
	inserted, err := c.store.InsertEstablishment(ctx, e)
	if err != nil {
		return eris.Wrapf(err, "search: insert %q", name)
	}
	if inserted {
		cnt.inserted.Add(1)
		c.metrics.IncEstablishment(string(model.SourceSearch))
	}
	return nil
}
