package dedupe

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biomed-sul/leadscout/internal/model"
	"github.com/biomed-sul/leadscout/internal/store"
	"github.com/biomed-sul/leadscout/internal/textnorm"
)

func est(id, loc int64, name, website string) model.Establishment {
	return model.Establishment{
		ID:             id,
		Name:           name,
		NameNormalized: textnorm.Normalize(name),
		LocationID:     loc,
		Website:        website,
	}
}

func TestExactDuplicates(t *testing.T) {
	ests := []model.Establishment{
		est(1, 1, "Clínica Vida", ""),
		est(2, 1, "CLINICA VIDA", "https://vida.com.br"),
		est(3, 2, "Clínica Vida", ""),
		est(4, 1, "Clinica Vida!", ""),
	}
	assert.Equal(t, []int64{2, 4}, ExactDuplicates(ests))
}

func TestURLDuplicates(t *testing.T) {
	ests := []model.Establishment{
		est(1, 1, "Fertilidade Sul", "https://FertilSul.com.br/"),
		est(2, 2, "Fertil Sul Chapecó", "https://fertilsul.com.br"),
		est(3, 1, "Genética Oeste", ""),
		est(4, 2, "Andrologia Oeste", ""),
		est(5, 3, "Fertil Sul", " https://fertilsul.com.br#contato "),
		est(6, 3, "Outro", "https://fertilsul.com.br/unidades"),
	}
	assert.Equal(t, []int64{2, 5}, URLDuplicates(ests))
}

func TestFuzzyDuplicates(t *testing.T) {
	tests := []struct {
		name string
		ests []model.Establishment
		want []int64
	}{
		{
			name: "legal suffix ignored, website kept",
			ests: []model.Establishment{
				est(1, 1, "Laboratório XYZ Análises", ""),
				est(2, 1, "Laboratorio XYZ Analises LTDA", "https://xyz.com.br"),
			},
			want: []int64{1},
		},
		{
			name: "ltda variant with website survives",
			ests: []model.Establishment{
				est(1, 1, "clinica fertilidade sul", ""),
				est(2, 1, "clinica fertilidade sul ltda", "https://fertilidadesul.com.br"),
			},
			want: []int64{1},
		},
		{
			name: "later one removed when both have websites",
			ests: []model.Establishment{
				est(1, 1, "Clínica Fertilidade Vida", "https://a.com.br"),
				est(2, 1, "Clinica Fertilidade Vidas", "https://b.com.br"),
			},
			want: []int64{2},
		},
		{
			name: "later one removed when neither has a website",
			ests: []model.Establishment{
				est(1, 1, "Centro de Reprodução Humana Sul", ""),
				est(2, 1, "Centro de Reproducao Humana Sul ME", ""),
			},
			want: []int64{2},
		},
		{
			name: "different locations never match",
			ests: []model.Establishment{
				est(1, 1, "Laboratório XYZ Análises", ""),
				est(2, 2, "Laboratorio XYZ Analises LTDA", ""),
			},
		},
		{
			name: "dissimilar names kept",
			ests: []model.Establishment{
				est(1, 1, "Clínica Fertilidade Sul", ""),
				est(2, 1, "Laboratório Genética Sul", ""),
			},
		},
		{
			name: "removed entry is not compared again",
			ests: []model.Establishment{
				est(1, 1, "Clinica Vida", "https://vida.com.br"),
				est(2, 1, "Clinica Vidas", ""),
				est(3, 1, "Clinica Vida", ""),
			},
			want: []int64{2, 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, oversized := FuzzyDuplicates(tt.ests, 0.85, 500)
			assert.Equal(t, tt.want, got)
			assert.Empty(t, oversized)
		})
	}
}

func TestFuzzyDuplicates_OversizedPartitionUsesBlocks(t *testing.T) {
	ests := []model.Establishment{
		est(1, 9, "Clinica Vida", ""),
		est(2, 9, "Vida Clinica", ""),
		est(3, 9, "Clinica Vidas", ""),
		est(4, 8, "Clinica Vida", ""),
	}
	got, oversized := FuzzyDuplicates(ests, 0.85, 2)
	assert.Equal(t, []int64{3}, got)
	assert.Equal(t, []int64{9}, oversized)
}

func TestRun(t *testing.T) {
	st := &fakeStore{ests: []model.Establishment{
		est(4, 1, "Clinica Vida", "https://vida.com.br"),
		est(1, 1, "Clínica Vida", ""),
		est(2, 2, "Fertil Sul", "https://fertilsul.com.br/"),
		est(3, 3, "Fertil Sul Joaçaba", "https://fertilsul.com.br"),
		est(5, 2, "Laboratório XYZ Análises", ""),
		est(6, 2, "Laboratorio XYZ Analises LTDA", "https://xyz.com.br"),
	}}
	d := New(st, DefaultConfig(), nil)

	rep, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Report{Scanned: 6, Exact: 1, URL: 1, Fuzzy: 1, Remaining: 3}, rep)
	assert.Equal(t, 3, rep.Removed())
	assert.Equal(t, [][]int64{{4}, {3}, {5}}, st.deletes)

	again, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Removed())
	assert.Len(t, st.deletes, 3)
}

func TestRun_FuzzyDisabled(t *testing.T) {
	st := &fakeStore{ests: []model.Establishment{
		est(1, 1, "Laboratório XYZ Análises", ""),
		est(2, 1, "Laboratorio XYZ Analises LTDA", ""),
	}}
	cfg := DefaultConfig()
	cfg.FuzzyEnabled = false

	rep, err := New(st, cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Removed())
	assert.Empty(t, st.deletes)
}

func TestRun_StoreErrors(t *testing.T) {
	_, err := New(&fakeStore{listErr: errBoom}, DefaultConfig(), nil).Run(context.Background())
	assert.ErrorIs(t, err, errBoom)

	st := &fakeStore{
		ests:      []model.Establishment{est(1, 1, "Vida", ""), est(2, 1, "vida", "")},
		deleteErr: errBoom,
	}
	_, err = New(st, DefaultConfig(), nil).Run(context.Background())
	assert.ErrorIs(t, err, errBoom)
}

func TestRun_SQLite(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "dedupe.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.EnsureSchema(ctx))
	_, err = st.UpsertLocations(ctx, []model.Location{{Region: "SC", Name: "Joaçaba", IBGEID: 4209003, Population: 30146}})
	require.NoError(t, err)
	locs, err := st.ListLocations(ctx)
	require.NoError(t, err)
	loc := locs[0].ID

	for _, e := range []model.Establishment{
		est(0, loc, "Clínica Vida", "https://vida.com.br"),
		est(0, loc, "Clinica Vida LTDA", ""),
		est(0, loc, "Vida Reprodução", "https://VIDA.com.br/"),
	} {
		e.Source = model.SourceSearch
		e.Category = model.CategoryHumanReproduction
		ok, err := st.InsertEstablishment(ctx, &e)
		require.NoError(t, err)
		require.True(t, ok)
	}

	rep, err := New(st, DefaultConfig(), nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.URL)
	assert.Equal(t, 1, rep.Fuzzy)

	left, err := st.ListEstablishments(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "Clínica Vida", left[0].Name)
}
