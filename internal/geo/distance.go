// Package geo loads municipalities for the configured regions, attaches
// coordinates to them and answers distance questions between them.
package geo

import (
	"math"
	"strings"

	"github.com/twpayne/go-geom"

	"github.com/biomed-sul/leadscout/internal/model"
	"github.com/biomed-sul/leadscout/internal/textnorm"
)

const earthRadiusKM = 6371.0

// Distance returns the great-circle distance in kilometers between two
// lon/lat points.
func Distance(a, b *geom.Point) float64 {
	lat1, lat2 := radians(a.Y()), radians(b.Y())
	dLat := lat2 - lat1
	dLng := radians(b.X() - a.X())

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// WithinRadius keeps the locations at most km from ref. Locations without
// coordinates are kept; an unknown distance is not a reason to skip a place.
func WithinRadius(locs []model.Location, ref model.Location, km float64) []model.Location {
	center := ref.Point()
	if center == nil || km <= 0 {
		return locs
	}
	out := make([]model.Location, 0, len(locs))
	for _, l := range locs {
		p := l.Point()
		if p == nil || Distance(center, p) <= km {
			out = append(out, l)
		}
	}
	return out
}

// FindLocation looks a location up by name, optionally qualified with its
// region as "Name/UF". Matching ignores case and accents.
func FindLocation(locs []model.Location, query string) (model.Location, bool) {
	name, region, _ := strings.Cut(query, "/")
	want := textnorm.Normalize(name)
	region = strings.ToUpper(strings.TrimSpace(region))
	for _, l := range locs {
		if textnorm.Normalize(l.Name) != want {
			continue
		}
		if region != "" && !strings.EqualFold(l.Region, region) {
			continue
		}
		return l, true
	}
	return model.Location{}, false
}
