package geo

import (
	"bytes"
	"context"
	_ "embed"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/biomed-sul/leadscout/internal/fetcher"
)

// Census 2022 counts for the larger municipalities of the southern states,
// used when the population service is unavailable.
//
//go:embed fallback_population.csv
var fallbackCSV []byte

// PopulationTable maps region code to IBGE id to population.
type PopulationTable map[string]map[int64]int64

// ForRegion returns the entries for uf, or nil.
func (t PopulationTable) ForRegion(uf string) map[int64]int64 {
	return t[strings.ToUpper(uf)]
}

// DefaultFallback parses the embedded population table.
func DefaultFallback(ctx context.Context) (PopulationTable, error) {
	return ParsePopulationTable(ctx, fallbackCSV)
}

// ParsePopulationTable reads a uf,ibge_id,population CSV.
func ParsePopulationTable(ctx context.Context, data []byte) (PopulationTable, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	records, errs := fetcher.StreamCSV(ctx, bytes.NewReader(data), fetcher.CSVOptions{})

	table := make(PopulationTable)
	for rec := range records {
		uf := strings.ToUpper(rec.Get("uf"))
		id, err := strconv.ParseInt(rec.Get("ibge_id"), 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: fallback line %d: ibge_id", rec.Line)
		}
		pop, err := strconv.ParseInt(rec.Get("population"), 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: fallback line %d: population", rec.Line)
		}
		if table[uf] == nil {
			table[uf] = make(map[int64]int64)
		}
		table[uf][id] = pop
	}
	if err := <-errs; err != nil {
		return nil, eris.Wrap(err, "geo: parse fallback table")
	}
	return table, nil
}
