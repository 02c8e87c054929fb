package model

import "time"

// SearchLogEntry records that a (location, keyword, source) query completed.
// At most one exists per triple and it is never mutated.
type SearchLogEntry struct {
	ID           int64     `json:"id"`
	LocationID   int64     `json:"location_id"`
	Keyword      string    `json:"keyword"`
	Source       Source    `json:"source"`
	ResultsCount int       `json:"results_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// RejectedResult is a search result the relevance classifier discarded, kept
// for diagnostics only.
type RejectedResult struct {
	LocationID int64     `json:"location_id"`
	Keyword    string    `json:"keyword"`
	Title      string    `json:"title"`
	Link       string    `json:"link"`
	Snippet    string    `json:"snippet"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// Stats holds row counts per table.
type Stats struct {
	Locations      int `json:"locations"`
	SearchLog      int `json:"search_log"`
	Establishments int `json:"establishments"`
	Contacts       int `json:"contacts"`
	Rejected       int `json:"rejected"`
}
