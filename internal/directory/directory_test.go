package directory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biomed-sul/leadscout/internal/model"
)

const listing = `<html><body>
<table>
  <tr><th>País</th><th>Centro</th></tr>
  <tr><td>Brasil</td><td>Clínica Fertilidade Joaçaba</td><td>SC</td></tr>
  <tr><td> Brasil </td><td>  Centro de Reprodução   Chapecó </td></tr>
  <tr><td>Brasil</td><td>Instituto Paulista de Fertilidade</td></tr>
  <tr><td>Argentina</td><td>Centro Chapecó Buenos Aires</td></tr>
  <tr><td>Brasil</td><td>   </td></tr>
  <tr><td>Brasil</td></tr>
</table>
</body></html>`

func testLocations() []model.Location {
	return []model.Location{
		{ID: 1, Region: "RS", Name: "Passo Fundo", Population: 206224},
		{ID: 2, Region: "SC", Name: "Chapecó", Population: 254785},
		{ID: 3, Region: "SC", Name: "Joaçaba", Population: 30146},
		{ID: 4, Region: "PR", Name: "São José dos Pinhais", Population: 329058},
		{ID: 5, Region: "SC", Name: "São José", Population: 250181},
	}
}

func TestParseListing(t *testing.T) {
	names, err := ParseListing(strings.NewReader(listing))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Clínica Fertilidade Joaçaba",
		"Centro de Reprodução Chapecó",
		"Instituto Paulista de Fertilidade",
	}, names)
}

func TestParseListing_NoTable(t *testing.T) {
	names, err := ParseListing(strings.NewReader("<p>manutenção</p>"))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMatcher(t *testing.T) {
	m := NewMatcher(testLocations())

	tests := []struct {
		name   string
		wantID int64
		wantOK bool
	}{
		{"Clínica Fertilidade Joaçaba", 3, true},
		{"CENTRO DE REPRODUCAO CHAPECO", 2, true},
		{"Fertilidade São José dos Pinhais", 4, true},
		{"Clínica São José", 5, true},
		{"Instituto Paulista de Fertilidade", 0, false},
		{"Passo Fundos Clinic", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, ok := m.Match(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, loc.ID)
		})
	}
}

func TestCollect(t *testing.T) {
	st := &fakeStore{locs: testLocations()}
	c := NewCollector(fakeFetcher{body: listing}, st, "", nil)

	res, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Result{Listed: 3, Matched: 2, Inserted: 2}, res)

	require.Len(t, st.inserted, 2)
	first := st.inserted[0]
	assert.Equal(t, "Clínica Fertilidade Joaçaba", first.Name)
	assert.Equal(t, "clinica fertilidade joacaba", first.NameNormalized)
	assert.Equal(t, int64(3), first.LocationID)
	assert.Equal(t, model.CategoryHumanReproduction, first.Category)
	assert.Equal(t, model.SourceDirectory, first.Source)
	assert.Equal(t, DefaultURL, first.SourceURL)
	assert.Empty(t, first.Website)
}

func TestCollect_SecondRunInsertsNothing(t *testing.T) {
	st := &fakeStore{locs: testLocations()}
	c := NewCollector(fakeFetcher{body: listing}, st, "", nil)

	_, err := c.Collect(context.Background())
	require.NoError(t, err)
	res, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Matched)
	assert.Zero(t, res.Inserted)
	assert.Len(t, st.inserted, 2)
}

func TestCollect_FetchFailureIsNotFatal(t *testing.T) {
	st := &fakeStore{locs: testLocations()}
	c := NewCollector(fakeFetcher{err: errBoom}, st, "http://example.invalid", nil)

	res, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Result{}, res)
	assert.Empty(t, st.inserted)
}

func TestCollect_StoreErrors(t *testing.T) {
	_, err := NewCollector(fakeFetcher{body: listing}, &fakeStore{listErr: errBoom}, "", nil).
		Collect(context.Background())
	assert.ErrorIs(t, err, errBoom)

	_, err = NewCollector(fakeFetcher{body: listing}, &fakeStore{locs: testLocations(), insertErr: errBoom}, "", nil).
		Collect(context.Background())
	assert.ErrorIs(t, err, errBoom)
}
