package model

import "time"

// Category buckets an establishment by specialty.
type Category string

const (
	CategoryHumanReproduction Category = "REPRODUCAO_HUMANA"
	CategoryGeneticsLab       Category = "LABORATORIO_GENETICA"
	CategoryAndrologyLab      Category = "LABORATORIO_ANDROLOGIA"
	CategoryClinicalLab       Category = "LABORATORIO_ANALISES"
	CategoryHospital          Category = "HOSPITAL"
	CategoryOther             Category = "OUTROS"
)

// Source identifies where an establishment was first seen.
type Source string

const (
	SourceSearch    Source = "serper"
	SourceDirectory Source = "redlara"
)

// Establishment is a candidate organization. Its natural key is
// (NameNormalized, LocationID); the first writer wins.
type Establishment struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	NameNormalized string    `json:"name_normalized"`
	LocationID     int64     `json:"location_id"`
	Category       Category  `json:"category"`
	Website        string    `json:"website,omitempty"`
	Source         Source    `json:"source"`
	SourceURL      string    `json:"source_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// HasWebsite reports whether the establishment carries a non-empty website.
func (e Establishment) HasWebsite() bool {
	return e.Website != ""
}
