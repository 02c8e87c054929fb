// Package directory seeds establishments from a specialist-society listing of
// accredited human reproduction centers.
package directory

import (
	"context"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/biomed-sul/leadscout/internal/fetcher"
	"github.com/biomed-sul/leadscout/internal/model"
	"github.com/biomed-sul/leadscout/internal/monitoring"
	"github.com/biomed-sul/leadscout/internal/textnorm"
)

// DefaultURL lists the Brazilian REDLARA centers.
const DefaultURL = "https://www.redlara.com/quem_somos.asp?MYPK3=Centros&centro_pais=Brasil"

const country = "Brasil"

// Store is the persistence the collector needs.
type Store interface {
	ListLocations(ctx context.Context) ([]model.Location, error)
	InsertEstablishment(ctx context.Context, e *model.Establishment) (bool, error)
}

// Result summarizes a Collect call.
type Result struct {
	Listed   int `json:"listed"`
	Matched  int `json:"matched"`
	Inserted int `json:"inserted"`
}

// Collector scrapes the listing and inserts the centers it can place in a
// known location.
type Collector struct {
	fetch   fetcher.Fetcher
	store   Store
	url     string
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewCollector creates a Collector. An empty url uses DefaultURL.
func NewCollector(f fetcher.Fetcher, st Store, url string, m *monitoring.Metrics) *Collector {
	if url == "" {
		url = DefaultURL
	}
	return &Collector{
		fetch:   f,
		store:   st,
		url:     url,
		metrics: m,
		log:     zap.L().With(zap.String("component", "directory")),
	}
}

// Collect fetches and parses the listing. A listing that cannot be fetched
// or parsed is logged and yields an empty Result; only store errors are
// returned.
func (c *Collector) Collect(ctx context.Context) (*Result, error) {
	res := &Result{}

	body, err := c.fetch.Download(ctx, c.url)
	if err != nil {
		c.log.Warn("directory: fetch listing", zap.String("url", c.url), zap.Error(err))
		return res, nil
	}
	defer body.Close() //nolint:errcheck

	names, err := ParseListing(body)
	if err != nil {
		c.log.Warn("directory: parse listing", zap.Error(err))
		return res, nil
	}
	res.Listed = len(names)

	locs, err := c.store.ListLocations(ctx)
	if err != nil {
		return res, eris.Wrap(err, "directory: list locations")
	}
	matcher := NewMatcher(locs)

	for _, name := range names {
		loc, ok := matcher.Match(name)
		if !ok {
			continue
		}
		res.Matched++

		e := &model.Establishment{
			Name:           name,
			NameNormalized: textnorm.Normalize(name),
			LocationID:     loc.ID,
			Category:       model.CategoryHumanReproduction,
			Source:         model.SourceDirectory,
			SourceURL:      c.url,
		}
		inserted, err := c.store.InsertEstablishment(ctx, e)
		if err != nil {
			return res, eris.Wrapf(err, "directory: insert %q", name)
		}
		if inserted {
			res.Inserted++
			c.metrics.IncEstablishment(string(model.SourceDirectory))
		}
	}

	c.log.Info("directory: centers collected",
		zap.Int("listed", res.Listed),
		zap.Int("matched", res.Matched),
		zap.Int("inserted", res.Inserted),
	)
	return res, nil
}

// ParseListing returns the center names from table rows whose first cell is
// the country and whose second cell is non-empty.
func ParseListing(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "directory: parse html")
	}

	var names []string
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		if strings.TrimSpace(cells.Eq(0).Text()) != country {
			return
		}
		name := strings.Join(strings.Fields(cells.Eq(1).Text()), " ")
		if name != "" {
			names = append(names, name)
		}
	})
	return names, nil
}
