package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/biomed-sul/leadscout/internal/db"
	"github.com/biomed-sul/leadscout/internal/model"
)

// PostgresStore implements Store using a pgx pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns, minConns := int32(8), int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS locations (
	id         BIGSERIAL PRIMARY KEY,
	region     TEXT NOT NULL,
	name       TEXT NOT NULL,
	ibge_id    BIGINT NOT NULL UNIQUE,
	population BIGINT NOT NULL DEFAULT 0,
	lat        DOUBLE PRECISION,
	lng        DOUBLE PRECISION,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS search_log (
	id            BIGSERIAL PRIMARY KEY,
	location_id   BIGINT NOT NULL REFERENCES locations(id),
	keyword       TEXT NOT NULL,
	source        TEXT NOT NULL,
	results_count INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (location_id, keyword, source)
);

CREATE TABLE IF NOT EXISTS establishments (
	id              BIGSERIAL PRIMARY KEY,
	name            TEXT NOT NULL,
	name_normalized TEXT NOT NULL,
	location_id     BIGINT NOT NULL REFERENCES locations(id),
	category        TEXT NOT NULL,
	website         TEXT,
	source          TEXT NOT NULL,
	source_url      TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (name_normalized, location_id)
);

CREATE TABLE IF NOT EXISTS contacts (
	id               BIGSERIAL PRIMARY KEY,
	establishment_id BIGINT NOT NULL REFERENCES establishments(id) ON DELETE CASCADE,
	type             TEXT NOT NULL,
	value            TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (establishment_id, type, value)
);

CREATE TABLE IF NOT EXISTS rejected_results (
	id          BIGSERIAL PRIMARY KEY,
	location_id BIGINT NOT NULL,
	keyword     TEXT NOT NULL,
	title       TEXT,
	link        TEXT,
	snippet     TEXT,
	reason      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_establishments_location ON establishments(location_id);
CREATE INDEX IF NOT EXISTS idx_establishments_website ON establishments(website);
CREATE INDEX IF NOT EXISTS idx_contacts_establishment ON contacts(establishment_id);
CREATE INDEX IF NOT EXISTS idx_rejected_reason ON rejected_results(reason);
`

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return eris.Wrap(err, "postgres: ensure schema")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var locationColumns = []string{"region", "name", "ibge_id", "population"}

func (s *PostgresStore) UpsertLocations(ctx context.Context, locs []model.Location) (int64, error) {
	rows := make([][]any, len(locs))
	for i, l := range locs {
		rows[i] = []any{l.Region, l.Name, l.IBGEID, l.Population}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "locations",
		Columns:      locationColumns,
		ConflictKeys: []string{"ibge_id"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert locations")
}

func (s *PostgresStore) ListLocations(ctx context.Context) ([]model.Location, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, region, name, ibge_id, population, lat, lng FROM locations ORDER BY population DESC, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list locations")
	}
	defer rows.Close()

	var out []model.Location
	for rows.Next() {
		var l model.Location
		if err := rows.Scan(&l.ID, &l.Region, &l.Name, &l.IBGEID, &l.Population, &l.Lat, &l.Lng); err != nil {
			return nil, eris.Wrap(err, "postgres: scan location")
		}
		if !l.HasCoordinates() {
			l.Lat, l.Lng = nil, nil
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate locations")
}

func (s *PostgresStore) SetLocationCoordinates(ctx context.Context, ibgeID int64, lat, lng float64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE locations SET lat = $1, lng = $2 WHERE ibge_id = $3`, lat, lng, ibgeID)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: set coordinates %d", ibgeID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SearchLogged(ctx context.Context, locationID int64, keyword string, source model.Source) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM search_log WHERE location_id = $1 AND keyword = $2 AND source = $3)`,
		locationID, keyword, string(source),
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "postgres: check search log")
	}
	return exists, nil
}

func (s *PostgresStore) LogSearch(ctx context.Context, e model.SearchLogEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO search_log (location_id, keyword, source, results_count) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (location_id, keyword, source) DO NOTHING`,
		e.LocationID, e.Keyword, string(e.Source), e.ResultsCount,
	)
	return eris.Wrap(err, "postgres: log search")
}

func (s *PostgresStore) ResetSearchLog(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM search_log`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reset search log")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) InsertEstablishment(ctx context.Context, e *model.Establishment) (bool, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO establishments (name, name_normalized, location_id, category, website, source, source_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (name_normalized, location_id) DO NOTHING
		 RETURNING id, created_at`,
		e.Name, e.NameNormalized, e.LocationID, string(e.Category), optional(e.Website),
		string(e.Source), optional(e.SourceURL),
	).Scan(&e.ID, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert establishment %q", e.NameNormalized)
	}
	return true, nil
}

const pgEstablishmentColumns = `e.id, e.name, e.name_normalized, e.location_id, e.category, e.website, e.source, e.source_url, e.created_at`

func (s *PostgresStore) ListEstablishments(ctx context.Context) ([]model.Establishment, error) {
	return s.queryEstablishments(ctx, `SELECT `+pgEstablishmentColumns+` FROM establishments e ORDER BY e.id`)
}

func (s *PostgresStore) ListEstablishmentsWithoutContacts(ctx context.Context) ([]model.Establishment, error) {
	return s.queryEstablishments(ctx, `
		SELECT `+pgEstablishmentColumns+` FROM establishments e
		WHERE e.website IS NOT NULL AND e.website <> ''
		  AND NOT EXISTS (SELECT 1 FROM contacts c WHERE c.establishment_id = e.id)
		ORDER BY e.id`)
}

func (s *PostgresStore) queryEstablishments(ctx context.Context, query string) ([]model.Establishment, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list establishments")
	}
	defer rows.Close()

	var out []model.Establishment
	for rows.Next() {
		var e model.Establishment
		var website, sourceURL *string
		var category, source string
		if err := rows.Scan(&e.ID, &e.Name, &e.NameNormalized, &e.LocationID, &category,
			&website, &source, &sourceURL, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan establishment")
		}
		e.Category = model.Category(category)
		e.Source = model.Source(source)
		if website != nil {
			e.Website = *website
		}
		if sourceURL != nil {
			e.SourceURL = *sourceURL
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate establishments")
}

// DeleteEstablishments relies on ON DELETE CASCADE to drop contacts.
func (s *PostgresStore) DeleteEstablishments(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM establishments WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete establishments")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) InsertContact(ctx context.Context, c model.Contact) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO contacts (establishment_id, type, value) VALUES ($1, $2, $3)
		 ON CONFLICT (establishment_id, type, value) DO NOTHING`,
		c.EstablishmentID, string(c.Type), c.Value,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert contact for %d", c.EstablishmentID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) InsertRejection(ctx context.Context, r model.RejectedResult) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rejected_results (location_id, keyword, title, link, snippet, reason) VALUES ($1, $2, $3, $4, $5, $6)`,
		r.LocationID, r.Keyword, r.Title, r.Link, r.Snippet, r.Reason,
	)
	return eris.Wrap(err, "postgres: insert rejection")
}

func (s *PostgresStore) ResetCollected(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE contacts, establishments, search_log, rejected_results`)
	return eris.Wrap(err, "postgres: reset collected")
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.Stats, error) {
	var st model.Stats
	err := s.pool.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM locations),
		(SELECT COUNT(*) FROM search_log),
		(SELECT COUNT(*) FROM establishments),
		(SELECT COUNT(*) FROM contacts),
		(SELECT COUNT(*) FROM rejected_results)`,
	).Scan(&st.Locations, &st.SearchLog, &st.Establishments, &st.Contacts, &st.Rejected)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	return &st, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
