package geo

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/biomed-sul/leadscout/internal/fetcher"
)

// CoordinateWriter sets the coordinates of a stored location.
type CoordinateWriter interface {
	SetLocationCoordinates(ctx context.Context, ibgeID int64, lat, lng float64) (bool, error)
}

// ImportResult summarizes an ImportCoordinates call.
type ImportResult struct {
	Rows    int `json:"rows"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// ImportCoordinates streams a municipality dataset with codigo_ibge,
// latitude and longitude columns and sets coordinates on the matching
// stored locations. Rows for municipalities that are not stored are counted
// as skipped.
func ImportCoordinates(ctx context.Context, f fetcher.Fetcher, w CoordinateWriter, url string) (*ImportResult, error) {
	log := zap.L().With(zap.String("component", "geo.coordinates"))

	body, err := f.Download(ctx, url)
	if err != nil {
		return nil, eris.Wrap(err, "geo: download coordinates")
	}
	defer body.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	records, errs := fetcher.StreamCSV(ctx, body, fetcher.CSVOptions{})

	res := &ImportResult{}
	for rec := range records {
		res.Rows++
		id, err1 := strconv.ParseInt(rec.Get("codigo_ibge"), 10, 64)
		lat, err2 := strconv.ParseFloat(rec.Get("latitude"), 64)
		lng, err3 := strconv.ParseFloat(rec.Get("longitude"), 64)
		if err1 != nil || err2 != nil || err3 != nil {
			log.Debug("geo: malformed coordinate row", zap.Int("line", rec.Line))
			res.Skipped++
			continue
		}
		ok, err := w.SetLocationCoordinates(ctx, id, lat, lng)
		if err != nil {
			return res, eris.Wrapf(err, "geo: set coordinates line %d", rec.Line)
		}
		if ok {
			res.Updated++
		} else {
			res.Skipped++
		}
	}
	if err := <-errs; err != nil {
		return res, eris.Wrap(err, "geo: read coordinates")
	}

	log.Info("geo: coordinates imported",
		zap.Int("rows", res.Rows),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}
