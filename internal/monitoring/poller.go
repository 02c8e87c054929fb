package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/biomed-sul/leadscout/internal/model"
)

// StatsReader returns per-table row counts.
type StatsReader interface {
	Stats(ctx context.Context) (*model.Stats, error)
}

// Poller copies table sizes into the TableRows gauge on an interval.
type Poller struct {
	stats    StatsReader
	metrics  *Metrics
	interval time.Duration
}

// NewPoller creates a Poller. A non-positive interval defaults to 30s.
func NewPoller(stats StatsReader, m *Metrics, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{stats: stats, metrics: m, interval: interval}
}

// Run polls until ctx is cancelled. It polls once immediately.
func (p *Poller) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.poller"))
	log.Debug("starting stats poller", zap.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			log.Warn("monitoring: poll stats", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			log.Debug("stats poller stopped")
			return
		case <-ticker.C:
		}
	}
}

// Poll reads the stats once and updates the gauges.
func (p *Poller) Poll(ctx context.Context) error {
	st, err := p.stats.Stats(ctx)
	if err != nil {
		return err
	}
	if p.metrics == nil {
		return nil
	}
	for table, n := range map[string]int{
		"locations":        st.Locations,
		"search_log":       st.SearchLog,
		"establishments":   st.Establishments,
		"contacts":         st.Contacts,
		"rejected_results": st.Rejected,
	} {
		p.metrics.TableRows.WithLabelValues(table).Set(float64(n))
	}
	return nil
}
