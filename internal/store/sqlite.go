package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/pricetrack/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; a single connection keeps them applied and
	// serializes writers from concurrent batch workers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS battery_classes (
	id           TEXT PRIMARY KEY,
	short_name   TEXT NOT NULL,
	capacity_kwh REAL NOT NULL DEFAULT 0,
	cpower_w     INTEGER NOT NULL DEFAULT 0,
	ppower_w     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS batteries (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	supplier         TEXT NOT NULL DEFAULT '',
	current_price    REAL,
	updated_at       DATETIME,
	url              TEXT NOT NULL DEFAULT '',
	battery_class_id TEXT REFERENCES battery_classes(id)
);

CREATE TABLE IF NOT EXISTS price_history (
	id         TEXT PRIMARY KEY,
	battery_id TEXT NOT NULL REFERENCES batteries(id),
	price      REAL NOT NULL,
	scraped_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batteries_name ON batteries(name);
CREATE INDEX IF NOT EXISTS idx_price_history_battery ON price_history(battery_id, scraped_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const entityColumns = `b.id, b.name, b.supplier, b.current_price, b.updated_at, b.url, b.battery_class_id`

// FindEntitiesByNamePattern matches name against a LIKE pattern. SQLite's
// LIKE is case-insensitive for ASCII.
func (s *SQLiteStore) FindEntitiesByNamePattern(ctx context.Context, pattern string) ([]model.CatalogEntity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM batteries b WHERE b.name LIKE ? ORDER BY b.name, b.id`,
		pattern,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find batteries like %q", pattern)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CatalogEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate batteries")
}

func (s *SQLiteStore) UpdateEntityPrice(ctx context.Context, id string, price float64, at time.Time) (*model.CatalogEntity, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE batteries SET current_price = ?, updated_at = ? WHERE id = ?`,
		price, at.UTC(), id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update price %s", id)
	}
	if err := checkRowsAffected(res, id); err != nil {
		return nil, err
	}
	return s.getEntity(ctx, id)
}

func (s *SQLiteStore) getEntity(ctx context.Context, id string) (*model.CatalogEntity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM batteries b WHERE b.id = ?`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: battery %s", id)
	}
	return e, err
}

func (s *SQLiteStore) ListEntitiesWithClassInfo(ctx context.Context) ([]model.CatalogEntity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumns+`, c.id, c.short_name, c.capacity_kwh, c.cpower_w, c.ppower_w
		FROM batteries b LEFT JOIN battery_classes c ON c.id = b.battery_class_id
		ORDER BY b.name, b.id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list batteries")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CatalogEntity
	for rows.Next() {
		var (
			e       model.CatalogEntity
			price   sql.NullFloat64
			updated sql.NullTime
			classID sql.NullString
			cID     sql.NullString
			cName   sql.NullString
			cKWh    sql.NullFloat64
			cCont   sql.NullInt64
			cPeak   sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Supplier, &price, &updated, &e.URL, &classID,
			&cID, &cName, &cKWh, &cCont, &cPeak); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan battery")
		}
		applyNullable(&e, price, updated, classID)
		if cID.Valid {
			e.Class = &model.BatteryClass{
				ID:               cID.String,
				ShortName:        cName.String,
				CapacityKWh:      cKWh.Float64,
				ContinuousPowerW: int(cCont.Int64),
				PeakPowerW:       int(cPeak.Int64),
			}
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate batteries")
}

func (s *SQLiteStore) ListClasses(ctx context.Context) ([]model.BatteryClass, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, short_name, capacity_kwh, cpower_w, ppower_w FROM battery_classes ORDER BY short_name, id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list classes")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.BatteryClass
	for rows.Next() {
		var c model.BatteryClass
		if err := rows.Scan(&c.ID, &c.ShortName, &c.CapacityKWh, &c.ContinuousPowerW, &c.PeakPowerW); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan class")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate classes")
}

func (s *SQLiteStore) AppendHistory(ctx context.Context, entityID string, price float64, observedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_history (id, battery_id, price, scraped_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), entityID, price, observedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: append history %s", entityID)
}

func (s *SQLiteStore) ReadHistory(ctx context.Context, entityID string, limit int) ([]model.PriceHistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, battery_id, price, scraped_at FROM price_history
		WHERE battery_id = ? ORDER BY scraped_at DESC, rowid DESC LIMIT ?`,
		entityID, clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: read history %s", entityID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PriceHistoryRecord
	for rows.Next() {
		var r model.PriceHistoryRecord
		if err := rows.Scan(&r.ID, &r.EntityID, &r.Price, &r.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate history")
}

// ImportHistory inserts records in one transaction. Records without an ID
// get a new one.
func (s *SQLiteStore) ImportHistory(ctx context.Context, records []model.PriceHistoryRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import history: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO price_history (id, battery_id, price, scraped_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import history: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx, id, r.EntityID, r.Price, r.ObservedAt.UTC()); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import history %s", r.EntityID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import history: commit")
	}
	return int64(len(records)), nil
}

func (s *SQLiteStore) UpsertClass(ctx context.Context, c model.BatteryClass) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO battery_classes (id, short_name, capacity_kwh, cpower_w, ppower_w) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET short_name = excluded.short_name, capacity_kwh = excluded.capacity_kwh,
			cpower_w = excluded.cpower_w, ppower_w = excluded.ppower_w`,
		c.ID, c.ShortName, c.CapacityKWh, c.ContinuousPowerW, c.PeakPowerW,
	)
	return eris.Wrapf(err, "sqlite: upsert class %s", c.ID)
}

// UpsertEntity creates or updates catalog metadata. The seeded price only
// lands on insert so reseeding never clobbers an observed price.
func (s *SQLiteStore) UpsertEntity(ctx context.Context, e model.CatalogEntity) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batteries (id, name, supplier, current_price, url, battery_class_id) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, supplier = excluded.supplier, url = excluded.url,
			battery_class_id = excluded.battery_class_id`,
		e.ID, e.Name, e.Supplier, nullFloat(e.CurrentPrice), e.URL, nullString(e.ClassID),
	)
	return eris.Wrapf(err, "sqlite: upsert battery %s", e.ID)
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: battery %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEntity(row scannable) (*model.CatalogEntity, error) {
	var (
		e       model.CatalogEntity
		price   sql.NullFloat64
		updated sql.NullTime
		classID sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Name, &e.Supplier, &price, &updated, &e.URL, &classID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan battery")
	}
	applyNullable(&e, price, updated, classID)
	return &e, nil
}

func applyNullable(e *model.CatalogEntity, price sql.NullFloat64, updated sql.NullTime, classID sql.NullString) {
	if price.Valid {
		e.CurrentPrice = model.Float64Ptr(price.Float64)
	}
	if updated.Valid {
		t := updated.Time.UTC()
		e.UpdatedAt = &t
	}
	if classID.Valid {
		id := classID.String
		e.ClassID = &id
	}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
