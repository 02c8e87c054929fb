// Package enrich fills in contacts for establishments that have a website and
// none yet. Runs are resumable: an establishment that got contacts is not
// listed again.
package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/biomed-sul/leadscout/internal/cache"
	"github.com/biomed-sul/leadscout/internal/contacts"
	"github.com/biomed-sul/leadscout/internal/model"
	"github.com/biomed-sul/leadscout/internal/monitoring"
	"github.com/biomed-sul/leadscout/internal/resilience"
	"github.com/biomed-sul/leadscout/internal/textnorm"
)

// Store is the persistence the enricher needs.
type Store interface {
	ListEstablishmentsWithoutContacts(ctx context.Context) ([]model.Establishment, error)
	InsertContact(ctx context.Context, c model.Contact) (bool, error)
}

// Extractor pulls contacts from one page. *contacts.Extractor implements it.
type Extractor interface {
	Extract(ctx context.Context, pageURL string) contacts.Result
}

// Config sizes a run.
type Config struct {
	BatchSize int
	CacheTTL  time.Duration
	Caps      contacts.Caps
}

// DefaultConfig returns batches of 50, a day-long cache and the default caps.
func DefaultConfig() Config {
	return Config{BatchSize: 50, CacheTTL: 24 * time.Hour, Caps: contacts.DefaultCaps()}
}

// Result counts what a Run did.
type Result struct {
	Candidates       int `json:"candidates"`
	Batches          int `json:"batches"`
	Fetched          int `json:"fetched"`
	Cached           int `json:"cached"`
	WithContacts     int `json:"with_contacts"`
	Empty            int `json:"empty"`
	ContactsInserted int `json:"contacts_inserted"`
}

// Enricher runs the enrichment stage.
type Enricher struct {
	store     Store
	extractor Extractor
	cache     cache.PageCache
	gate      *resilience.Gate
	cfg       Config
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// New creates an Enricher. A nil cache disables caching; m may be nil.
func New(st Store, ext Extractor, pc cache.PageCache, gate *resilience.Gate, cfg Config, m *monitoring.Metrics) *Enricher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if pc == nil {
		pc = cache.Nop{}
	}
	return &Enricher{
		store:     st,
		extractor: ext,
		cache:     pc,
		gate:      gate,
		cfg:       cfg,
		metrics:   m,
		log:       zap.L().With(zap.String("component", "enrich")),
	}
}

// Run processes every establishment lacking contacts in sequential batches.
// Pages within a batch are fetched concurrently through the gate; contacts
// are written once the whole batch has been fetched.
func (en *Enricher) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	ests, err := en.store.ListEstablishmentsWithoutContacts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: list establishments")
	}
	res := &Result{Candidates: len(ests)}
	en.log.Info("enrich: starting", zap.Int("candidates", len(ests)), zap.Int("batch_size", en.cfg.BatchSize))

	for lo := 0; lo < len(ests); lo += en.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "enrich: cancelled")
		}
		hi := min(lo+en.cfg.BatchSize, len(ests))
		if err := en.runBatch(ctx, ests[lo:hi], res); err != nil {
			return res, err
		}
		res.Batches++
		en.log.Info("enrich: batch done",
			zap.Int("batch", res.Batches),
			zap.Int("done", hi),
			zap.Int("total", len(ests)),
			zap.Int("contacts_inserted", res.ContactsInserted),
		)
	}

	en.log.Info("enrich: complete",
		zap.Int("candidates", res.Candidates),
		zap.Int("fetched", res.Fetched),
		zap.Int("cached", res.Cached),
		zap.Int("with_contacts", res.WithContacts),
		zap.Int("empty", res.Empty),
		zap.Int("contacts_inserted", res.ContactsInserted),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (en *Enricher) runBatch(ctx context.Context, batch []model.Establishment, res *Result) error {
	// Establishments sharing a website share one fetch.
	pages := make(map[string]*contacts.Result)
	var urls []string
	for _, e := range batch {
		key := textnorm.CanonicalURL(e.Website)
		if key == "" {
			continue
		}
		if _, ok := pages[key]; !ok {
			pages[key] = nil
			urls = append(urls, key)
		}
	}

	fetched := make([]contacts.Result, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		g.Go(func() error {
			r, err := en.page(gctx, u)
			fetched[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, u := range urls {
		if fetched[i].Outcome == contacts.OutcomeCached {
			res.Cached++
		} else {
			res.Fetched++
		}
		pages[u] = &fetched[i]
	}

	for _, e := range batch {
		page := pages[textnorm.CanonicalURL(e.Website)]
		if page == nil || page.Empty() {
			res.Empty++
			continue
		}
		res.WithContacts++
		for _, c := range page.Capped(en.cfg.Caps).Contacts(e.ID) {
			inserted, err := en.store.InsertContact(ctx, c)
			if err != nil {
				return eris.Wrapf(err, "enrich: insert contact for establishment %d", e.ID)
			}
			if inserted {
				res.ContactsInserted++
				en.metrics.IncContact(string(c.Type))
			}
		}
	}
	return nil
}

// page returns the contacts for a canonical URL, from the cache when
// possible. Only cancellation is returned as an error.
func (en *Enricher) page(ctx context.Context, url string) (contacts.Result, error) {
	cached, ok, err := en.cache.Get(ctx, url)
	if err != nil {
		en.log.Warn("enrich: cache read failed", zap.String("url", url), zap.Error(err))
	}
	if ok {
		cached.Outcome = contacts.OutcomeCached
		en.metrics.IncPageFetch(string(contacts.OutcomeCached))
		return cached, nil
	}

	var r contacts.Result
	err = en.gate.Do(ctx, func(ctx context.Context) error {
		r = en.extractor.Extract(ctx, url)
		return nil
	})
	if err != nil {
		return contacts.Result{}, eris.Wrap(err, "enrich: wait for gate")
	}
	en.metrics.IncPageFetch(string(r.Outcome))

	if r.Outcome == contacts.OutcomeOK {
		if err := en.cache.Set(ctx, url, r, en.cfg.CacheTTL); err != nil {
			en.log.Warn("enrich: cache write failed", zap.String("url", url), zap.Error(err))
		}
	} else {
		en.log.Debug("enrich: page not usable", zap.String("url", url), zap.String("outcome", string(r.Outcome)))
	}
	return r, nil
}
