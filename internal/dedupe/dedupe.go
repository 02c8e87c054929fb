// Package dedupe removes duplicate establishments in three ordered passes:
// exact natural key, shared website, and fuzzy name similarity within a
// location.
package dedupe

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/biomed-sul/leadscout/internal/model"
	"github.com/biomed-sul/leadscout/internal/monitoring"
	"github.com/biomed-sul/leadscout/internal/textnorm"
)

// Pass names, as logged and exported in metrics.
const (
	PassExact = "exact"
	PassURL   = "url"
	PassFuzzy = "fuzzy"
)

// Store is the persistence the deduplicator needs.
type Store interface {
	ListEstablishments(ctx context.Context) ([]model.Establishment, error)
	DeleteEstablishments(ctx context.Context, ids []int64) (int64, error)
}

// Config tunes the fuzzy pass.
type Config struct {
	FuzzyEnabled bool
	Threshold    float64
	// MaxPartition is the largest location partition compared pairwise in
	// full. Bigger partitions are only compared within first-token blocks.
	MaxPartition int
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{FuzzyEnabled: true, Threshold: 0.85, MaxPartition: 500}
}

// Report counts removals per pass.
type Report struct {
	Scanned   int `json:"scanned"`
	Exact     int `json:"exact"`
	URL       int `json:"url"`
	Fuzzy     int `json:"fuzzy"`
	Remaining int `json:"remaining"`
}

// Removed is the total across passes.
func (r *Report) Removed() int {
	return r.Exact + r.URL + r.Fuzzy
}

type pass struct {
	name    string
	find    func([]model.Establishment) []int64
	removed *int
}

// Deduplicator runs the passes against a store.
type Deduplicator struct {
	store   Store
	cfg     Config
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// New creates a Deduplicator. m may be nil.
func New(st Store, cfg Config, m *monitoring.Metrics) *Deduplicator {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	return &Deduplicator{
		store:   st,
		cfg:     cfg,
		metrics: m,
		log:     zap.L().With(zap.String("component", "dedupe")),
	}
}

// Run executes every pass once. Running it again on a clean table removes
// nothing.
func (d *Deduplicator) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	ests, err := d.store.ListEstablishments(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "dedupe: list establishments")
	}
	sort.Slice(ests, func(i, j int) bool { return ests[i].ID < ests[j].ID })
	rep := &Report{Scanned: len(ests)}

	passes := []pass{
		{PassExact, ExactDuplicates, &rep.Exact},
		{PassURL, URLDuplicates, &rep.URL},
	}
	if d.cfg.FuzzyEnabled {
		passes = append(passes, pass{PassFuzzy, d.fuzzy, &rep.Fuzzy})
	}

	for _, p := range passes {
		ids := p.find(ests)
		if len(ids) > 0 {
			if _, err := d.store.DeleteEstablishments(ctx, ids); err != nil {
				return rep, eris.Wrapf(err, "dedupe: delete %s duplicates", p.name)
			}
			ests = without(ests, ids)
		}
		*p.removed = len(ids)
		d.metrics.AddDedupeRemoved(p.name, len(ids))
		d.log.Info("dedupe: pass complete", zap.String("pass", p.name), zap.Int("removed", len(ids)))
	}

	rep.Remaining = len(ests)
	d.log.Info("dedupe: complete",
		zap.Int("scanned", rep.Scanned),
		zap.Int("removed", rep.Removed()),
		zap.Int("remaining", rep.Remaining),
		zap.Duration("elapsed", time.Since(start)),
	)
	return rep, nil
}

func (d *Deduplicator) fuzzy(ests []model.Establishment) []int64 {
	ids, oversized := FuzzyDuplicates(ests, d.cfg.Threshold, d.cfg.MaxPartition)
	for _, locID := range oversized {
		d.log.Warn("dedupe: partition too large, comparing within name blocks only",
			zap.Int64("location_id", locID),
			zap.Int("max_partition", d.cfg.MaxPartition),
		)
	}
	return ids
}

// ExactDuplicates returns every establishment sharing (NameNormalized,
// LocationID) with one of lower ID. ests must be sorted by ID.
func ExactDuplicates(ests []model.Establishment) []int64 {
	type key struct {
		name string
		loc  int64
	}
	seen := make(map[key]bool, len(ests))
	var dup []int64
	for _, e := range ests {
		k := key{e.NameNormalized, e.LocationID}
		if seen[k] {
			dup = append(dup, e.ID)
			continue
		}
		seen[k] = true
	}
	return dup
}

// URLDuplicates returns every establishment whose canonical website was
// already seen on one of lower ID. Empty websites never match. ests must be
// sorted by ID.
func URLDuplicates(ests []model.Establishment) []int64 {
	seen := make(map[string]bool, len(ests))
	var dup []int64
	for _, e := range ests {
		site := textnorm.CanonicalURL(e.Website)
		if site == "" {
			continue
		}
		if seen[site] {
			dup = append(dup, e.ID)
			continue
		}
		seen[site] = true
	}
	return dup
}

type candidate struct {
	est     model.Establishment
	key     string
	runes   int
	removed bool
}

// FuzzyDuplicates compares names within each location in ID order. Of a
// similar pair the one without a website goes when exactly one has it,
// otherwise the later one. It also returns the locations whose partition
// exceeded maxPartition and was split into first-token blocks.
func FuzzyDuplicates(ests []model.Establishment, threshold float64, maxPartition int) ([]int64, []int64) {
	partitions := make(map[int64][]*candidate)
	var order []int64
	for _, e := range ests {
		key := textnorm.StripLegalSuffix(e.NameNormalized)
		if _, ok := partitions[e.LocationID]; !ok {
			order = append(order, e.LocationID)
		}
		partitions[e.LocationID] = append(partitions[e.LocationID], &candidate{
			est:   e,
			key:   key,
			runes: utf8.RuneCountInString(key),
		})
	}

	var dup, oversized []int64
	for _, locID := range order {
		part := partitions[locID]
		if maxPartition > 0 && len(part) > maxPartition {
			oversized = append(oversized, locID)
			for _, block := range firstTokenBlocks(part) {
				dup = append(dup, comparePairs(block, threshold)...)
			}
			continue
		}
		dup = append(dup, comparePairs(part, threshold)...)
	}
	sort.Slice(dup, func(i, j int) bool { return dup[i] < dup[j] })
	return dup, oversized
}

func comparePairs(cands []*candidate, threshold float64) []int64 {
	var dup []int64
	for i, a := range cands {
		if a.removed {
			continue
		}
		for _, b := range cands[i+1:] {
			if b.removed {
				continue
			}
			if textnorm.LengthBound(a.runes, b.runes) < threshold {
				continue
			}
			if textnorm.Similarity(a.key, b.key) < threshold {
				continue
			}
			loser := b
			if !a.est.HasWebsite() && b.est.HasWebsite() {
				loser = a
			}
			loser.removed = true
			dup = append(dup, loser.est.ID)
			if loser == a {
				break
			}
		}
	}
	return dup
}

// firstTokenBlocks groups candidates by the first word of their key, keeping
// ID order inside each block.
func firstTokenBlocks(cands []*candidate) [][]*candidate {
	idx := make(map[string]int)
	var blocks [][]*candidate
	for _, c := range cands {
		tok, _, _ := strings.Cut(c.key, " ")
		i, ok := idx[tok]
		if !ok {
			i = len(blocks)
			idx[tok] = i
			blocks = append(blocks, nil)
		}
		blocks[i] = append(blocks[i], c)
	}
	return blocks
}

func without(ests []model.Establishment, ids []int64) []model.Establishment {
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := ests[:0]
	for _, e := range ests {
		if !drop[e.ID] {
			kept = append(kept, e)
		}
	}
	return kept
}
