package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pricetrack/internal/db"
	"github.com/sells-group/pricetrack/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	pgFindByPattern = `SELECT id, name, supplier, current_price, updated_at, url, battery_class_id FROM batteries WHERE name ILIKE $1 ORDER BY name, id`
	pgUpdatePrice   = `UPDATE batteries SET current_price = $1, updated_at = $2 WHERE id = $3 RETURNING id, name, supplier, current_price, updated_at, url, battery_class_id`
	pgAppendHistory = `INSERT INTO price_history (id, battery_id, price, scraped_at) VALUES ($1, $2, $3, $4)`
	pgReadHistory   = `SELECT id, battery_id, price, scraped_at FROM price_history WHERE battery_id = $1 ORDER BY scraped_at DESC, seq DESC LIMIT $2`
)

// preparedStatements lists queries to prepare on each new connection. A
// batch run hits each of them once per supplier.
var preparedStatements = map[string]string{
	"find_by_pattern": pgFindByPattern,
	"update_price":    pgUpdatePrice,
	"append_history":  pgAppendHistory,
	"read_history":    pgReadHistory,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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

// NewPostgresFromPool wraps an existing pool. The caller owns its lifecycle.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS battery_classes (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	short_name   TEXT NOT NULL,
	capacity_kwh DOUBLE PRECISION NOT NULL DEFAULT 0,
	cpower_w     INTEGER NOT NULL DEFAULT 0,
	ppower_w     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS batteries (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name             TEXT NOT NULL,
	supplier         TEXT NOT NULL DEFAULT '',
	current_price    DOUBLE PRECISION,
	updated_at       TIMESTAMPTZ,
	url              TEXT NOT NULL DEFAULT '',
	battery_class_id TEXT REFERENCES battery_classes(id)
);

CREATE TABLE IF NOT EXISTS price_history (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	seq        BIGSERIAL,
	battery_id TEXT NOT NULL REFERENCES batteries(id),
	price      DOUBLE PRECISION NOT NULL,
	scraped_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_batteries_name ON batteries(name);
CREATE INDEX IF NOT EXISTS idx_price_history_battery ON price_history(battery_id, scraped_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) FindEntitiesByNamePattern(ctx context.Context, pattern string) ([]model.CatalogEntity, error) {
	rows, err := s.pool.Query(ctx, pgFindByPattern, pattern)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find batteries like %q", pattern)
	}
	defer rows.Close()

	var out []model.CatalogEntity
	for rows.Next() {
		e, err := scanPgEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate batteries")
}

func (s *PostgresStore) UpdateEntityPrice(ctx context.Context, id string, price float64, at time.Time) (*model.CatalogEntity, error) {
	e, err := scanPgEntity(s.pool.QueryRow(ctx, pgUpdatePrice, price, at.UTC(), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: battery %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update price %s", id)
	}
	return e, nil
}

func (s *PostgresStore) ListEntitiesWithClassInfo(ctx context.Context) ([]model.CatalogEntity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT b.id, b.name, b.supplier, b.current_price, b.updated_at, b.url, b.battery_class_id,
			c.id, c.short_name, c.capacity_kwh, c.cpower_w, c.ppower_w
		FROM batteries b LEFT JOIN battery_classes c ON c.id = b.battery_class_id
		ORDER BY b.name, b.id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list batteries")
	}
	defer rows.Close()

	var out []model.CatalogEntity
	for rows.Next() {
		var (
			e     model.CatalogEntity
			cID   *string
			cName *string
			cKWh  *float64
			cCont *int32
			cPeak *int32
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Supplier, &e.CurrentPrice, &e.UpdatedAt, &e.URL, &e.ClassID,
			&cID, &cName, &cKWh, &cCont, &cPeak); err != nil {
			return nil, eris.Wrap(err, "postgres: scan battery")
		}
		if cID != nil {
			e.Class = &model.BatteryClass{ID: *cID}
			if cName != nil {
				e.Class.ShortName = *cName
			}
			if cKWh != nil {
				e.Class.CapacityKWh = *cKWh
			}
			if cCont != nil {
				e.Class.ContinuousPowerW = int(*cCont)
			}
			if cPeak != nil {
				e.Class.PeakPowerW = int(*cPeak)
			}
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate batteries")
}

func (s *PostgresStore) ListClasses(ctx context.Context) ([]model.BatteryClass, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, short_name, capacity_kwh, cpower_w, ppower_w FROM battery_classes ORDER BY short_name, id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list classes")
	}
	defer rows.Close()

	var out []model.BatteryClass
	for rows.Next() {
		var c model.BatteryClass
		var cont, peak int32
		if err := rows.Scan(&c.ID, &c.ShortName, &c.CapacityKWh, &cont, &peak); err != nil {
			return nil, eris.Wrap(err, "postgres: scan class")
		}
		c.ContinuousPowerW = int(cont)
		c.PeakPowerW = int(peak)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate classes")
}

func (s *PostgresStore) AppendHistory(ctx context.Context, entityID string, price float64, observedAt time.Time) error {
	_, err := s.pool.Exec(ctx, pgAppendHistory, uuid.New().String(), entityID, price, observedAt.UTC())
	return eris.Wrapf(err, "postgres: append history %s", entityID)
}

func (s *PostgresStore) ReadHistory(ctx context.Context, entityID string, limit int) ([]model.PriceHistoryRecord, error) {
	rows, err := s.pool.Query(ctx, pgReadHistory, entityID, clampLimit(limit))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: read history %s", entityID)
	}
	defer rows.Close()

	var out []model.PriceHistoryRecord
	for rows.Next() {
		var r model.PriceHistoryRecord
		if err := rows.Scan(&r.ID, &r.EntityID, &r.Price, &r.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate history")
}

var historyCopyColumns = []string{"id", "battery_id", "price", "scraped_at"}

// ImportHistory bulk-loads records with COPY.
func (s *PostgresStore) ImportHistory(ctx context.Context, records []model.PriceHistoryRecord) (int64, error) {
	rows := make([][]any, len(records))
	for i, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.New().String()
		}
		rows[i] = []any{id, r.EntityID, r.Price, r.ObservedAt.UTC()}
	}
	n, err := db.CopyFrom(ctx, s.pool, "price_history", historyCopyColumns, rows)
	return n, eris.Wrap(err, "postgres: import history")
}

var classUpsert = db.UpsertConfig{
	Table:        "battery_classes",
	Columns:      []string{"id", "short_name", "capacity_kwh", "cpower_w", "ppower_w"},
	ConflictKeys: []string{"id"},
}

func (s *PostgresStore) UpsertClass(ctx context.Context, c model.BatteryClass) error {
	_, err := db.Upsert(ctx, s.pool, classUpsert, [][]any{
		{c.ID, c.ShortName, c.CapacityKWh, c.ContinuousPowerW, c.PeakPowerW},
	})
	return eris.Wrapf(err, "postgres: upsert class %s", c.ID)
}

// entityUpsert leaves current_price out of the update set so reseeding never
// clobbers an observed price; the seeded price only lands on insert.
var entityUpsert = db.UpsertConfig{
	Table:        "batteries",
	Columns:      []string{"id", "name", "supplier", "current_price", "url", "battery_class_id"},
	ConflictKeys: []string{"id"},
	UpdateCols:   []string{"name", "supplier", "url", "battery_class_id"},
}

func (s *PostgresStore) UpsertEntity(ctx context.Context, e model.CatalogEntity) error {
	_, err := db.Upsert(ctx, s.pool, entityUpsert, [][]any{
		{e.ID, e.Name, e.Supplier, e.CurrentPrice, e.URL, e.ClassID},
	})
	return eris.Wrapf(err, "postgres: upsert battery %s", e.ID)
}

func scanPgEntity(row pgx.Row) (*model.CatalogEntity, error) {
	var e model.CatalogEntity
	if err := row.Scan(&e.ID, &e.Name, &e.Supplier, &e.CurrentPrice, &e.UpdatedAt, &e.URL, &e.ClassID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan battery")
	}
	if e.UpdatedAt != nil {
		t := e.UpdatedAt.UTC()
		e.UpdatedAt = &t
	}
	return &e, nil
}
