package monitoring

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biomed-sul/leadscout/internal/model"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.IncSearchQuery("ok")
	m.IncSearchQuery("ok")
	m.IncSearchResult("rejected", "pdf_or_document")
	m.IncEstablishment("serper")
	m.IncContact("email")
	m.AddDedupeRemoved("fuzzy", 3)
	m.AddDedupeRemoved("url", 0)
	m.IncPageFetch("ok")
	m.IncCooldown()

	assert.InDelta(t, 2, testutil.ToFloat64(m.SearchQueries.WithLabelValues("ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SearchResults.WithLabelValues("rejected", "pdf_or_document")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.DedupeRemoved.WithLabelValues("fuzzy")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.GateCooldowns), 0)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncSearchQuery("ok")
		m.IncSearchResult("accepted", "")
		m.IncEstablishment("serper")
		m.IncContact("email")
		m.AddDedupeRemoved("exact", 1)
		m.IncPageFetch("failed")
		m.IncCooldown()
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.IncEstablishment("redlara")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `leadscout_establishments_inserted_total{source="redlara"} 1`)
}

type fakeStats struct {
	stats *model.Stats
	err   error
}

func (f fakeStats) Stats(context.Context) (*model.Stats, error) { return f.stats, f.err }

func TestPoller_Poll(t *testing.T) {
	m := NewMetrics()
	p := NewPoller(fakeStats{stats: &model.Stats{Locations: 120, Establishments: 45, Contacts: 80}}, m, 0)

	require.NoError(t, p.Poll(context.Background()))
	assert.InDelta(t, 120, testutil.ToFloat64(m.TableRows.WithLabelValues("locations")), 0)
	assert.InDelta(t, 45, testutil.ToFloat64(m.TableRows.WithLabelValues("establishments")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.TableRows.WithLabelValues("search_log")), 0)

	p = NewPoller(fakeStats{err: errors.New("db closed")}, m, 0)
	assert.Error(t, p.Poll(context.Background()))
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	m := NewMetrics()
	p := NewPoller(fakeStats{stats: &model.Stats{Contacts: 7}}, m, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.TableRows.WithLabelValues("contacts")) == 7
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
