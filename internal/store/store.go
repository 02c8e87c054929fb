// Package store persists locations, the search log, establishments, contacts
// and rejected results. Every insert treats a natural-key conflict as a silent
// no-op.
package store

import (
	"context"

	"github.com/biomed-sul/leadscout/internal/model"
)

// Store is the full persistence surface. Consumers declare the narrower
// subsets they need.
type Store interface {
	// EnsureSchema creates tables and indexes if missing. It is idempotent.
	EnsureSchema(ctx context.Context) error
	Close() error

	// UpsertLocations inserts locations keyed by IBGE id, refreshing name,
	// region and population of existing rows.
	UpsertLocations(ctx context.Context, locs []model.Location) (int64, error)
	// ListLocations returns locations ordered by population, largest first.
	ListLocations(ctx context.Context) ([]model.Location, error)
	// SetLocationCoordinates sets lat/lng for the location with the given
	// IBGE id. It reports whether a row matched.
	SetLocationCoordinates(ctx context.Context, ibgeID int64, lat, lng float64) (bool, error)

	// SearchLogged reports whether the (location, keyword, source) query ran.
	SearchLogged(ctx context.Context, locationID int64, keyword string, source model.Source) (bool, error)
	// LogSearch records a completed query. A repeated triple is ignored.
	LogSearch(ctx context.Context, entry model.SearchLogEntry) error
	// ResetSearchLog empties the search log and returns the rows removed.
	ResetSearchLog(ctx context.Context) (int64, error)

	// InsertEstablishment inserts e and sets e.ID. It reports false, without
	// error, when the natural key already exists.
	InsertEstablishment(ctx context.Context, e *model.Establishment) (bool, error)
	// ListEstablishments returns every establishment ordered by id.
	ListEstablishments(ctx context.Context) ([]model.Establishment, error)
	// ListEstablishmentsWithoutContacts returns establishments that have a
	// website and no contacts, ordered by id.
	ListEstablishmentsWithoutContacts(ctx context.Context) ([]model.Establishment, error)
	// DeleteEstablishments removes establishments and their contacts.
	DeleteEstablishments(ctx context.Context, ids []int64) (int64, error)

	// InsertContact inserts c. It reports false when the value already exists
	// for that establishment and type.
	InsertContact(ctx context.Context, c model.Contact) (bool, error)

	// InsertRejection records a discarded search result.
	InsertRejection(ctx context.Context, r model.RejectedResult) error

	// ResetCollected removes establishments, contacts, the search log and
	// rejections. Locations are kept.
	ResetCollected(ctx context.Context) error
	// Stats returns row counts per table.
	Stats(ctx context.Context) (*model.Stats, error)
}
