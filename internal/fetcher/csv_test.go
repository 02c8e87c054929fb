package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRecords(t *testing.T, recCh <-chan Record, errCh <-chan error) ([]Record, error) {
	t.Helper()
	var recs []Record
	for rec := range recCh {
		recs = append(recs, rec)
	}
	for err := range errCh {
		if err != nil {
			return recs, err
		}
	}
	return recs, nil
}

func TestStreamCSV_KeyedByHeader(t *testing.T) {
	input := "\ufeffcodigo_ibge, Nome ,latitude,longitude\n4209003,Joaçaba,-27.1721,-51.5108\n4204202, Chapecó ,-27.1004,-52.6152\n"
	recCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})

	recs, err := collectRecords(t, recCh, errCh)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "4209003", recs[0].Get("codigo_ibge"))
	assert.Equal(t, "Joaçaba", recs[0].Get("NOME"))
	assert.Equal(t, 2, recs[0].Line)
	assert.Equal(t, "Chapecó", recs[1].Get("nome"))
	assert.Equal(t, "", recs[1].Get("missing"))
}

func TestStreamCSV_Delimiter(t *testing.T) {
	input := "a;b\n1;2\n"
	recCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{Delimiter: ';'})

	recs, err := collectRecords(t, recCh, errCh)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2", recs[0].Get("b"))
}

func TestStreamCSV_ShortRow(t *testing.T) {
	input := "a,b,c\n1\n"
	recCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})

	recs, err := collectRecords(t, recCh, errCh)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "1", recs[0].Get("a"))
	assert.Equal(t, "", recs[0].Get("c"))
}

func TestStreamCSV_Empty(t *testing.T) {
	recCh, errCh := StreamCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	recs, err := collectRecords(t, recCh, errCh)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestStreamCSV_MalformedQuote(t *testing.T) {
	input := "a,b\n\"unterminated,2\n"
	recCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	_, err := collectRecords(t, recCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read line")
}

func TestStreamCSV_ContextCancellation(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("a,b\n")
	for range 10000 {
		sb.WriteString("1,2\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	recCh, errCh := StreamCSV(ctx, strings.NewReader(sb.String()), CSVOptions{})

	count := 0
	for range recCh {
		count++
		if count == 5 {
			cancel()
		}
	}
	var gotErr error
	for err := range errCh {
		gotErr = err
	}
	require.Error(t, gotErr)
	assert.Less(t, count, 10000)
}
