// Package pipeline runs the acquisition stages in order: schema, locations,
// directory, search, dedupe, enrich and a final dedupe.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/biomed-sul/leadscout/internal/dedupe"
	"github.com/biomed-sul/leadscout/internal/directory"
	"github.com/biomed-sul/leadscout/internal/enrich"
	"github.com/biomed-sul/leadscout/internal/geo"
	"github.com/biomed-sul/leadscout/internal/model"
	"github.com/biomed-sul/leadscout/internal/search"
)

// Stage names.
const (
	StageSchema     = "schema"
	StageLocations  = "locations"
	StageDirectory  = "directory"
	StageSearch     = "search"
	StageDedupe     = "dedupe"
	StageEnrich     = "enrich"
	StageDedupeLast = "dedupe_final"
)

// Store is what the pipeline itself touches.
type Store interface {
	EnsureSchema(ctx context.Context) error
	ListLocations(ctx context.Context) ([]model.Location, error)
}

// LocationLoader loads municipalities.
type LocationLoader interface {
	Load(ctx context.Context) (*geo.LoadResult, error)
}

// DirectoryCollector scrapes the specialist directory.
type DirectoryCollector interface {
	Collect(ctx context.Context) (*directory.Result, error)
}

// SearchCollector runs web searches.
type SearchCollector interface {
	Collect(ctx context.Context) (*search.Result, error)
}

// Deduplicator removes duplicate establishments.
type Deduplicator interface {
	Run(ctx context.Context) (*dedupe.Report, error)
}

// Enricher extracts contacts.
type Enricher interface {
	Run(ctx context.Context) (*enrich.Result, error)
}

// Stages holds the stage implementations. A nil stage is skipped, except
// Dedupe which is required.
type Stages struct {
	Locations LocationLoader
	Directory DirectoryCollector
	Search    SearchCollector
	Dedupe    Deduplicator
	Enrich    Enricher
}

// Options selects stages for one run.
type Options struct {
	// RefreshLocations reloads locations even when some exist already.
	RefreshLocations bool
	SkipDirectory    bool
	SkipSearch       bool
	SkipEnrich       bool
}

// StageStatus is the outcome of one stage.
type StageStatus string

const (
	StageComplete StageStatus = "complete"
	StageFailed   StageStatus = "failed"
	StageSkipped  StageStatus = "skipped"
)

// StageResult records how a stage went.
type StageResult struct {
	Name     string      `json:"name"`
	Status   StageStatus `json:"status"`
	Duration int64       `json:"duration_ms"`
	Error    string      `json:"error,omitempty"`
}

// Report aggregates the stage results of a run.
type Report struct {
	RunID     string            `json:"run_id"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
	Stages    []StageResult     `json:"stages"`
	Locations *geo.LoadResult   `json:"locations,omitempty"`
	Directory *directory.Result `json:"directory,omitempty"`
	Search    *search.Result    `json:"search,omitempty"`
	Dedupe    []*dedupe.Report  `json:"dedupe,omitempty"`
	Enrich    *enrich.Result    `json:"enrich,omitempty"`
}

// Stage returns the result of the named stage.
func (r *Report) Stage(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// Pipeline wires the stages together.
type Pipeline struct {
	store  Store
	stages Stages
}

// New creates a Pipeline.
func New(st Store, stages Stages) *Pipeline {
	return &Pipeline{store: st, stages: stages}
}

// Run executes one pass. Directory and location-refresh failures are logged
// and the run continues; any other stage failure ends it.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	if p.stages.Dedupe == nil {
		return nil, eris.New("pipeline: dedupe stage is required")
	}

	rep := &Report{RunID: uuid.New().String(), StartedAt: time.Now()}
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", rep.RunID))
	log.Info("pipeline: starting")
	defer func() {
		rep.Duration = time.Since(rep.StartedAt)
	}()

	track := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		sr := StageResult{Name: name, Status: StageComplete, Duration: time.Since(start).Milliseconds()}
		if err != nil {
			sr.Status = StageFailed
			sr.Error = err.Error()
			log.Error("pipeline: stage failed", zap.String("stage", name), zap.Int64("duration_ms", sr.Duration), zap.Error(err))
		} else {
			log.Info("pipeline: stage complete", zap.String("stage", name), zap.Int64("duration_ms", sr.Duration))
		}
		rep.Stages = append(rep.Stages, sr)
		return err
	}
	skip := func(name string) {
		rep.Stages = append(rep.Stages, StageResult{Name: name, Status: StageSkipped})
		log.Info("pipeline: stage skipped", zap.String("stage", name))
	}

	if err := track(StageSchema, func() error {
		return p.store.EnsureSchema(ctx)
	}); err != nil {
		return rep, eris.Wrap(err, "pipeline: ensure schema")
	}

	if err := p.locations(ctx, opts, rep, track, skip); err != nil {
		return rep, err
	}

	if opts.SkipDirectory || p.stages.Directory == nil {
		skip(StageDirectory)
	} else {
		// Non-fatal: the directory only seeds a handful of centers.
		_ = track(StageDirectory, func() error {
			res, err := p.stages.Directory.Collect(ctx)
			rep.Directory = res
			return err
		})
	}

	if opts.SkipSearch || p.stages.Search == nil {
		skip(StageSearch)
	} else if err := track(StageSearch, func() error {
		res, err := p.stages.Search.Collect(ctx)
		rep.Search = res
		return err
	}); err != nil {
		return rep, eris.Wrap(err, "pipeline: search")
	}

	if err := p.dedupe(ctx, StageDedupe, rep, track); err != nil {
		return rep, err
	}

	if opts.SkipEnrich || p.stages.Enrich == nil {
		skip(StageEnrich)
	} else {
		if err := track(StageEnrich, func() error {
			res, err := p.stages.Enrich.Run(ctx)
			rep.Enrich = res
			return err
		}); err != nil {
			return rep, eris.Wrap(err, "pipeline: enrich")
		}
	}

	if err := p.dedupe(ctx, StageDedupeLast, rep, track); err != nil {
		return rep, err
	}

	log.Info("pipeline: complete", zap.Duration("elapsed", time.Since(rep.StartedAt)))
	return rep, nil
}

func (p *Pipeline) locations(ctx context.Context, opts Options, rep *Report, track func(string, func() error) error, skip func(string)) error {
	existing, err := p.store.ListLocations(ctx)
	if err != nil {
		return eris.Wrap(err, "pipeline: list locations")
	}
	if p.stages.Locations == nil || (len(existing) > 0 && !opts.RefreshLocations) {
		skip(StageLocations)
		if len(existing) == 0 {
			return eris.New("pipeline: no locations loaded")
		}
		return nil
	}

	err = track(StageLocations, func() error {
		res, err := p.stages.Locations.Load(ctx)
		rep.Locations = res
		return err
	})
	if err == nil {
		return nil
	}
	if len(existing) > 0 && ctx.Err() == nil {
		zap.L().Warn("pipeline: location refresh failed, keeping existing locations",
			zap.Int("locations", len(existing)), zap.Error(err))
		return nil
	}
	return eris.Wrap(err, "pipeline: load locations")
}

func (p *Pipeline) dedupe(ctx context.Context, name string, rep *Report, track func(string, func() error) error) error {
	err := track(name, func() error {
		res, err := p.stages.Dedupe.Run(ctx)
		if res != nil {
			rep.Dedupe = append(rep.Dedupe, res)
		}
		return err
	})
	if err != nil {
		return eris.Wrapf(err, "pipeline: %s", name)
	}
	return nil
}
