package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/biomed-sul/leadscout/internal/model"
)

// deleteChunk bounds the number of ids bound into one IN clause.
const deleteChunk = 500

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn in WAL mode. A single connection is
// used so per-connection pragmas (foreign keys, busy timeout) always apply.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS locations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	region     TEXT NOT NULL,
	name       TEXT NOT NULL,
	ibge_id    INTEGER NOT NULL UNIQUE,
	population INTEGER NOT NULL DEFAULT 0,
	lat        REAL,
	lng        REAL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS search_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	location_id   INTEGER NOT NULL REFERENCES locations(id),
	keyword       TEXT NOT NULL,
	source        TEXT NOT NULL,
	results_count INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL,
	UNIQUE (location_id, keyword, source)
);

CREATE TABLE IF NOT EXISTS establishments (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	name            TEXT NOT NULL,
	name_normalized TEXT NOT NULL,
	location_id     INTEGER NOT NULL REFERENCES locations(id),
	category        TEXT NOT NULL,
	website         TEXT,
	source          TEXT NOT NULL,
	source_url      TEXT,
	created_at      DATETIME NOT NULL,
	UNIQUE (name_normalized, location_id)
);

CREATE TABLE IF NOT EXISTS contacts (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	establishment_id INTEGER NOT NULL REFERENCES establishments(id) ON DELETE CASCADE,
	type             TEXT NOT NULL,
	value            TEXT NOT NULL,
	created_at       DATETIME NOT NULL,
	UNIQUE (establishment_id, type, value)
);

CREATE TABLE IF NOT EXISTS rejected_results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	location_id INTEGER NOT NULL,
	keyword     TEXT NOT NULL,
	title       TEXT,
	link        TEXT,
	snippet     TEXT,
	reason      TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_establishments_location ON establishments(location_id);
CREATE INDEX IF NOT EXISTS idx_establishments_website ON establishments(website);
CREATE INDEX IF NOT EXISTS idx_contacts_establishment ON contacts(establishment_id);
CREATE INDEX IF NOT EXISTS idx_rejected_reason ON rejected_results(reason);
`

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return eris.Wrap(err, "sqlite: ensure schema")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertLocations(ctx context.Context, locs []model.Location) (int64, error) {
	if len(locs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert locations")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO locations (region, name, ibge_id, population, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (ibge_id) DO UPDATE SET region = excluded.region, name = excluded.name, population = excluded.population`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert location")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var total int64
	for _, l := range locs {
		res, err := stmt.ExecContext(ctx, l.Region, l.Name, l.IBGEID, l.Population, now)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert location %d", l.IBGEID)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert locations")
	}
	return total, nil
}

func (s *SQLiteStore) ListLocations(ctx context.Context) ([]model.Location, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, region, name, ibge_id, population, lat, lng FROM locations ORDER BY population DESC, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list locations")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Location
	for rows.Next() {
		var l model.Location
		var lat, lng sql.NullFloat64
		if err := rows.Scan(&l.ID, &l.Region, &l.Name, &l.IBGEID, &l.Population, &lat, &lng); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan location")
		}
		if lat.Valid && lng.Valid {
			l.Lat, l.Lng = &lat.Float64, &lng.Float64
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate locations")
}

func (s *SQLiteStore) SetLocationCoordinates(ctx context.Context, ibgeID int64, lat, lng float64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE locations SET lat = ?, lng = ? WHERE ibge_id = ?`, lat, lng, ibgeID)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: set coordinates %d", ibgeID)
	}
	return affected(res)
}

func (s *SQLiteStore) SearchLogged(ctx context.Context, locationID int64, keyword string, source model.Source) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM search_log WHERE location_id = ? AND keyword = ? AND source = ?`,
		locationID, keyword, string(source),
	).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: check search log")
	}
	return n > 0, nil
}

func (s *SQLiteStore) LogSearch(ctx context.Context, e model.SearchLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_log (location_id, keyword, source, results_count, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (location_id, keyword, source) DO NOTHING`,
		e.LocationID, e.Keyword, string(e.Source), e.ResultsCount, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: log search")
}

func (s *SQLiteStore) ResetSearchLog(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM search_log`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reset search log")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) InsertEstablishment(ctx context.Context, e *model.Establishment) (bool, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO establishments (name, name_normalized, location_id, category, website, source, source_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (name_normalized, location_id) DO NOTHING`,
		e.Name, e.NameNormalized, e.LocationID, string(e.Category), nullString(e.Website),
		string(e.Source), nullString(e.SourceURL), e.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert establishment %q", e.NameNormalized)
	}
	ok, err := affected(res)
	if err != nil || !ok {
		return false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: last insert id")
	}
	e.ID = id
	return true, nil
}

const establishmentColumns = `e.id, e.name, e.name_normalized, e.location_id, e.category, e.website, e.source, e.source_url, e.created_at`

func (s *SQLiteStore) ListEstablishments(ctx context.Context) ([]model.Establishment, error) {
	return s.queryEstablishments(ctx, `SELECT `+establishmentColumns+` FROM establishments e ORDER BY e.id`)
}

func (s *SQLiteStore) ListEstablishmentsWithoutContacts(ctx context.Context) ([]model.Establishment, error) {
	return s.queryEstablishments(ctx, `
		SELECT `+establishmentColumns+` FROM establishments e
		LEFT JOIN contacts c ON c.establishment_id = e.id
		WHERE e.website IS NOT NULL AND e.website <> '' AND c.id IS NULL
		ORDER BY e.id`)
}

func (s *SQLiteStore) queryEstablishments(ctx context.Context, query string) ([]model.Establishment, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list establishments")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Establishment
	for rows.Next() {
		e, err := scanEstablishment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate establishments")
}

func (s *SQLiteStore) DeleteEstablishments(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin delete establishments")
	}
	defer tx.Rollback() //nolint:errcheck

	var total int64
	for start := 0; start < len(ids); start += deleteChunk {
		chunk := ids[start:min(start+deleteChunk, len(ids))]
		in, args := inClause(chunk)
		if _, err := tx.ExecContext(ctx, `DELETE FROM contacts WHERE establishment_id IN (`+in+`)`, args...); err != nil {
			return 0, eris.Wrap(err, "sqlite: delete contacts")
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM establishments WHERE id IN (`+in+`)`, args...)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: delete establishments")
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit delete establishments")
	}
	return total, nil
}

func (s *SQLiteStore) InsertContact(ctx context.Context, c model.Contact) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (establishment_id, type, value, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (establishment_id, type, value) DO NOTHING`,
		c.EstablishmentID, string(c.Type), c.Value, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert contact for %d", c.EstablishmentID)
	}
	return affected(res)
}

func (s *SQLiteStore) InsertRejection(ctx context.Context, r model.RejectedResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rejected_results (location_id, keyword, title, link, snippet, reason, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.LocationID, r.Keyword, r.Title, r.Link, r.Snippet, r.Reason, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: insert rejection")
}

func (s *SQLiteStore) ResetCollected(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin reset")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"contacts", "establishments", "search_log", "rejected_results"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return eris.Wrapf(err, "sqlite: reset %s", table)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit reset")
}

func (s *SQLiteStore) Stats(ctx context.Context) (*model.Stats, error) {
	var st model.Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM locations),
		(SELECT COUNT(*) FROM search_log),
		(SELECT COUNT(*) FROM establishments),
		(SELECT COUNT(*) FROM contacts),
		(SELECT COUNT(*) FROM rejected_results)`,
	).Scan(&st.Locations, &st.SearchLog, &st.Establishments, &st.Contacts, &st.Rejected)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	return &st, nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanEstablishment(row scannable) (*model.Establishment, error) {
	var e model.Establishment
	var website, sourceURL sql.NullString
	var category, source string
	if err := row.Scan(&e.ID, &e.Name, &e.NameNormalized, &e.LocationID, &category,
		&website, &source, &sourceURL, &e.CreatedAt); err != nil {
		return nil, eris.Wrap(err, "scan establishment")
	}
	e.Category = model.Category(category)
	e.Source = model.Source(source)
	e.Website = website.String
	e.SourceURL = sourceURL.String
	return &e, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}
