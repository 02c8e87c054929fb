package geo

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/biomed-sul/leadscout/internal/model"
	"github.com/biomed-sul/leadscout/internal/resilience"
	"github.com/biomed-sul/leadscout/pkg/ibge"
)

// LocationWriter persists loaded locations.
type LocationWriter interface {
	UpsertLocations(ctx context.Context, locs []model.Location) (int64, error)
}

// LoaderConfig selects which municipalities become locations.
type LoaderConfig struct {
	Regions       []string
	MinPopulation int64
	Retry         resilience.RetryPolicy
}

// LoadResult summarizes a Load call.
type LoadResult struct {
	Regions        int   `json:"regions"`
	Failed         int   `json:"failed"`
	Municipalities int   `json:"municipalities"`
	Kept           int   `json:"kept"`
	Degraded       int   `json:"degraded"`
	Upserted       int64 `json:"upserted"`
}

// Loader reads municipalities and populations per region and stores the ones
// at or above the population threshold.
type Loader struct {
	client   ibge.Client
	store    LocationWriter
	cfg      LoaderConfig
	fallback PopulationTable
	log      *zap.Logger
}

// NewLoader creates a Loader. fallback may be nil.
func NewLoader(client ibge.Client, store LocationWriter, cfg LoaderConfig, fallback PopulationTable) *Loader {
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = resilience.DefaultRetryPolicy()
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = retryableIBGE
	}
	return &Loader{
		client:   client,
		store:    store,
		cfg:      cfg,
		fallback: fallback,
		log:      zap.L().With(zap.String("component", "geo.loader")),
	}
}

func retryableIBGE(err error) bool {
	var se *ibge.StatusError
	if errors.As(err, &se) {
		return resilience.IsTransientHTTPStatus(se.StatusCode)
	}
	return resilience.IsTransient(err)
}

// Load fetches every configured region. A region whose municipality list
// cannot be read is skipped; Load fails only when no region loads.
func (l *Loader) Load(ctx context.Context) (*LoadResult, error) {
	start := time.Now()
	res := &LoadResult{Regions: len(l.cfg.Regions)}

	var locs []model.Location
	for _, uf := range l.cfg.Regions {
		regionLocs, degraded, err := l.loadRegion(ctx, uf)
		if err != nil {
			if ctx.Err() != nil {
				return res, eris.Wrap(ctx.Err(), "geo: load cancelled")
			}
			l.log.Warn("geo: region failed", zap.String("region", uf), zap.Error(err))
			res.Failed++
			continue
		}
		if degraded {
			res.Degraded++
		}
		res.Municipalities += len(regionLocs.all)
		res.Kept += len(regionLocs.kept)
		locs = append(locs, regionLocs.kept...)
	}

	if res.Regions > 0 && res.Failed == res.Regions {
		return res, eris.New("geo: no region could be loaded")
	}

	n, err := l.store.UpsertLocations(ctx, locs)
	if err != nil {
		return res, eris.Wrap(err, "geo: store locations")
	}
	res.Upserted = n

	l.log.Info("geo: locations loaded",
		zap.Int("regions", res.Regions),
		zap.Int("failed", res.Failed),
		zap.Int("degraded", res.Degraded),
		zap.Int("municipalities", res.Municipalities),
		zap.Int("kept", res.Kept),
		zap.Int64("min_population", l.cfg.MinPopulation),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

type regionLocations struct {
	all  []ibge.Municipality
	kept []model.Location
}

func (l *Loader) loadRegion(ctx context.Context, uf string) (regionLocations, bool, error) {
	policy := l.cfg.Retry
	policy.Notify = resilience.LogRetry("geo.loader", "municipalities "+uf)
	munis, err := resilience.Retry(ctx, policy, func(ctx context.Context) ([]ibge.Municipality, error) {
		return l.client.Municipalities(ctx, uf)
	})
	if err != nil {
		return regionLocations{}, false, err
	}

	policy.Notify = resilience.LogRetry("geo.loader", "populations "+uf)
	pops, err := resilience.Retry(ctx, policy, func(ctx context.Context) (map[int64]int64, error) {
		return l.client.Populations(ctx, uf)
	})

	degraded := false
	unfiltered := false
	if err != nil {
		if ctx.Err() != nil {
			return regionLocations{}, false, err
		}
		degraded = true
		pops = l.fallback.ForRegion(uf)
		if len(pops) == 0 {
			unfiltered = true
			l.log.Warn("geo: no population data, admitting every municipality",
				zap.String("region", uf), zap.Error(err))
		} else {
			l.log.Warn("geo: population service failed, using fallback table",
				zap.String("region", uf), zap.Int("fallback_entries", len(pops)), zap.Error(err))
		}
	}

	out := regionLocations{all: munis}
	for _, m := range munis {
		pop := pops[m.ID]
		if !unfiltered && pop < l.cfg.MinPopulation {
			continue
		}
		out.kept = append(out.kept, model.Location{
			Region:     uf,
			Name:       m.Name,
			IBGEID:     m.ID,
			Population: pop,
		})
	}
	l.log.Debug("geo: region loaded",
		zap.String("region", uf),
		zap.Int("municipalities", len(munis)),
		zap.Int("kept", len(out.kept)),
		zap.Bool("degraded", degraded),
	)
	return out, degraded, nil
}
