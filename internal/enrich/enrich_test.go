package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biomed-sul/leadscout/internal/cache"
	"github.com/biomed-sul/leadscout/internal/contacts"
	"github.com/biomed-sul/leadscout/internal/model"
	"github.com/biomed-sul/leadscout/internal/resilience"
	"github.com/biomed-sul/leadscout/internal/store"
)

func testGate() *resilience.Gate {
	return resilience.NewGate(resilience.GateConfig{Name: "enrich", Concurrency: 2})
}

func website(id int64, url string) model.Establishment {
	return model.Establishment{ID: id, Name: fmt.Sprintf("est %d", id), LocationID: 1, Website: url}
}

func TestRun_CapsContacts(t *testing.T) {
	emails := make([]string, 10)
	for i := range emails {
		emails[i] = fmt.Sprintf("contato%d@clinica.com.br", i)
	}
	ext := &fakeExtractor{pages: map[string]contacts.Result{
		"https://clinica.com.br": {
			Emails:   emails,
			Phones:   []string{"(49) 3522-1000", "(49) 3522-1001", "(49) 3522-1002", "(49) 3522-1003"},
			WhatsApp: []string{"https://wa.me/5549999990000"},
			Social:   map[model.ContactType][]string{model.ContactInstagram: {"clinica", "clinica2", "clinica3"}},
		},
	}}
	st := &fakeStore{ests: []model.Establishment{website(1, "https://clinica.com.br/")}}

	res, err := New(st, ext, nil, testGate(), DefaultConfig(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.WithContacts)
	assert.Equal(t, 3+3+1+2, res.ContactsInserted)
	assert.Equal(t, emails[:3], st.byType(1, model.ContactEmail))
	assert.Len(t, st.byType(1, model.ContactPhone), 3)
	assert.Equal(t, []string{"clinica", "clinica2"}, st.byType(1, model.ContactInstagram))
}

func TestRun_Batches(t *testing.T) {
	pages := map[string]contacts.Result{}
	var ests []model.Establishment
	for i := int64(1); i <= 5; i++ {
		url := fmt.Sprintf("https://site%d.com.br", i)
		pages[url] = contacts.Result{Emails: []string{fmt.Sprintf("a@site%d.com.br", i)}}
		ests = append(ests, website(i, url))
	}
	st := &fakeStore{ests: ests}
	cfg := DefaultConfig()
	cfg.BatchSize = 2

	res, err := New(st, &fakeExtractor{pages: pages}, nil, testGate(), cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Result{Candidates: 5, Batches: 3, Fetched: 5, WithContacts: 5, ContactsInserted: 5}, res)
}

func TestRun_SharedWebsiteFetchedOnce(t *testing.T) {
	ext := &fakeExtractor{pages: map[string]contacts.Result{
		"https://rede.com.br": {Emails: []string{"rede@rede.com.br"}},
	}}
	st := &fakeStore{ests: []model.Establishment{
		website(1, "https://rede.com.br"),
		website(2, "https://REDE.com.br/"),
		website(3, "https://rede.com.br#unidades"),
	}}

	t.Run("same batch", func(t *testing.T) {
		res, err := New(st, ext, nil, testGate(), DefaultConfig(), nil).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, ext.total())
		assert.Equal(t, 1, res.Fetched)
		assert.Equal(t, 3, res.WithContacts)
	})

	t.Run("across batches via cache", func(t *testing.T) {
		st.contacts, st.seen = nil, nil
		ext.calls = nil
		cfg := DefaultConfig()
		cfg.BatchSize = 1

		res, err := New(st, ext, cache.NewMemory(), testGate(), cfg, nil).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, ext.total())
		assert.Equal(t, 1, res.Fetched)
		assert.Equal(t, 2, res.Cached)
		assert.Equal(t, 3, res.ContactsInserted)
	})
}

func TestRun_FailedPagesAreNotCached(t *testing.T) {
	ext := &fakeExtractor{}
	st := &fakeStore{ests: []model.Establishment{website(1, "https://fora.com.br")}}
	pc := cache.NewMemory()

	res, err := New(st, ext, pc, testGate(), DefaultConfig(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Empty)
	assert.Zero(t, res.ContactsInserted)
	assert.Zero(t, pc.Len())
}

func TestRun_IsResumable(t *testing.T) {
	ext := &fakeExtractor{pages: map[string]contacts.Result{
		"https://a.com.br": {Emails: []string{"a@a.com.br"}},
	}}
	st := &fakeStore{ests: []model.Establishment{website(1, "https://a.com.br"), website(2, "https://b.com.br")}}
	en := New(st, ext, nil, testGate(), DefaultConfig(), nil)

	first, err := en.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Candidates)

	second, err := en.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Candidates)
	assert.Equal(t, 1, second.Empty)
}

func TestRun_StoreErrorAborts(t *testing.T) {
	ext := &fakeExtractor{pages: map[string]contacts.Result{
		"https://a.com.br": {Emails: []string{"a@a.com.br"}},
	}}
	st := &fakeStore{ests: []model.Establishment{website(1, "https://a.com.br")}, insertErr: errBoom}

	_, err := New(st, ext, nil, testGate(), DefaultConfig(), nil).Run(context.Background())
	assert.ErrorIs(t, err, errBoom)
}

func TestRun_CancelledContext(t *testing.T) {
	ext := &fakeExtractor{}
	st := &fakeStore{ests: []model.Establishment{website(1, "https://a.com.br")}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(st, ext, nil, testGate(), DefaultConfig(), nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, ext.total())
}

func TestRun_SQLiteWithRealPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><footer>
			<p>Fale conosco: contato@fertilsul.com.br | (49) 3522-1234</p>
			<a href="https://www.instagram.com/fertilsul/">Instagram</a>
		</footer></body></html>`)
	}))
	defer srv.Close()

	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "enrich.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.EnsureSchema(ctx))
	_, err = st.UpsertLocations(ctx, []model.Location{{Region: "SC", Name: "Joaçaba", IBGEID: 4209003, Population: 30146}})
	require.NoError(t, err)
	locs, err := st.ListLocations(ctx)
	require.NoError(t, err)

	e := &model.Establishment{
		Name: "Fertil Sul", NameNormalized: "fertil sul", LocationID: locs[0].ID,
		Category: model.CategoryHumanReproduction, Website: srv.URL, Source: model.SourceSearch,
	}
	_, err = st.InsertEstablishment(ctx, e)
	require.NoError(t, err)

	opts := contacts.DefaultOptions()
	opts.Timeout = 5 * time.Second
	en := New(st, contacts.NewExtractor(opts, nil), cache.NewMemory(), testGate(), DefaultConfig(), nil)

	res, err := en.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.WithContacts)
	assert.GreaterOrEqual(t, res.ContactsInserted, 2)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.ContactsInserted, stats.Contacts)

	again, err := en.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Candidates)
}
