// Package model defines the records shared by the collectors, the deduplicator
// and the store.
package model

import "github.com/twpayne/go-geom"

// Location is a municipality that search queries are issued against. It is the
// partition key for fuzzy deduplication.
type Location struct {
	ID         int64    `json:"id"`
	Region     string   `json:"region"`
	Name       string   `json:"name"`
	IBGEID     int64    `json:"ibge_id"`
	Population int64    `json:"population"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are known.
func (l Location) HasCoordinates() bool {
	return l.Lat != nil && l.Lng != nil
}

// Point returns the location as a lon/lat point, or nil when coordinates are
// unknown.
func (l Location) Point() *geom.Point {
	if !l.HasCoordinates() {
		return nil
	}
	return geom.NewPointFlat(geom.XY, []float64{*l.Lng, *l.Lat})
}

// Label renders the location the way it is embedded in search queries.
func (l Location) Label() string {
	if l.Region == "" {
		return l.Name
	}
	return l.Name + " " + l.Region
}
