package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/espressomap/espressomap/internal/entity"
	"github.com/espressomap/espressomap/internal/vocab"
)

// Config mirrors the pool knobs we care about.
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// PGStore is the Postgres-backed record store.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ RecordStore = (*PGStore)(nil)

// Open creates a pgx pool and ensures the schema exists.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*PGStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("remote.store.connecting")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "espressomap"

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	s := &PGStore{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("remote.store.connected")
	return s, nil
}

// Close shuts the pool down.
func (s *PGStore) Close() {
	s.pool.Close()
}

// Ping verifies connectivity, for startup health checks.
func (s *PGStore) Ping(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.pool.Ping(ctx)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS locations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL,
	latitude   DOUBLE PRECISION NOT NULL,
	longitude  DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS price_records (
	id          BIGSERIAL PRIMARY KEY,
	location_id TEXT NOT NULL REFERENCES locations(id),
	drinks      JSONB NOT NULL,
	note        TEXT NOT NULL DEFAULT '',
	image       BYTEA,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS drink_prices (
	record_id       BIGINT NOT NULL REFERENCES price_records(id) ON DELETE CASCADE,
	name            TEXT NOT NULL,
	normalized_name TEXT NOT NULL,
	price           DOUBLE PRECISION NOT NULL,
	position        INT NOT NULL
);
CREATE INDEX IF NOT EXISTS drink_prices_normalized_idx ON drink_prices (normalized_name);`

func (s *PGStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const upsertLocationSQL = `
INSERT INTO locations (id, name, address, latitude, longitude, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	address = EXCLUDED.address,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	updated_at = now()`

func (s *PGStore) SaveLocation(ctx context.Context, cafe entity.CafeSnapshot) error {
	_, err := s.pool.Exec(ctx, upsertLocationSQL,
		cafe.ID, cafe.Name, cafe.Address, cafe.Latitude, cafe.Longitude)
	if err != nil {
		return fmt.Errorf("upsert location: %w", err)
	}
	return nil
}

func (s *PGStore) GetLocation(ctx context.Context, id string) (*entity.CafeSnapshot, error) {
	var cafe entity.CafeSnapshot
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, address, latitude, longitude FROM locations WHERE id = $1`, id).
		Scan(&cafe.ID, &cafe.Name, &cafe.Address, &cafe.Latitude, &cafe.Longitude)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query location: %w", err)
	}
	return &cafe, nil
}

func (s *PGStore) AddPriceForLocation(ctx context.Context, rec entity.PriceRecord) error {
	drinksJSON, err := json.Marshal(rec.Drinks)
	if err != nil {
		return fmt.Errorf("encode drinks: %w", err)
	}
	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, upsertLocationSQL,
		rec.Cafe.ID, rec.Cafe.Name, rec.Cafe.Address, rec.Cafe.Latitude, rec.Cafe.Longitude); err != nil {
		return fmt.Errorf("upsert location: %w", err)
	}

	var recordID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO price_records (location_id, drinks, note, image, recorded_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		rec.Cafe.ID, drinksJSON, rec.Note, rec.ImageBytes, recordedAt).Scan(&recordID)
	if err != nil {
		return fmt.Errorf("insert price record: %w", err)
	}

	for i, d := range rec.Drinks {
		if _, err := tx.Exec(ctx,
			`INSERT INTO drink_prices (record_id, name, normalized_name, price, position)
			 VALUES ($1, $2, $3, $4, $5)`,
			recordID, d.Name, vocab.NormalizeDrinkName(d.Name), d.Price, i); err != nil {
			return fmt.Errorf("insert drink price: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("remote.price.committed", "location_id", rec.Cafe.ID, "drinks", len(rec.Drinks))
	return nil
}

func (s *PGStore) ListPriceRecords(ctx context.Context, locationID string) ([]entity.PriceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT l.id, l.name, l.address, l.latitude, l.longitude, p.drinks, p.note, p.recorded_at
		 FROM price_records p
		 JOIN locations l ON l.id = p.location_id
		 WHERE p.location_id = $1
		 ORDER BY p.recorded_at DESC`, locationID)
	if err != nil {
		return nil, fmt.Errorf("query price records: %w", err)
	}
	defer rows.Close()

	var out []entity.PriceRecord
	for rows.Next() {
		var rec entity.PriceRecord
		var drinksJSON []byte
		if err := rows.Scan(&rec.Cafe.ID, &rec.Cafe.Name, &rec.Cafe.Address,
			&rec.Cafe.Latitude, &rec.Cafe.Longitude, &drinksJSON, &rec.Note, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan price record: %w", err)
		}
		if err := json.Unmarshal(drinksJSON, &rec.Drinks); err != nil {
			return nil, fmt.Errorf("decode drinks: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DrinkPrices feeds the stats service: every observed price for one
// canonical drink name, in no particular order.
func (s *PGStore) DrinkPrices(ctx context.Context, drinkName string) ([]float64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT price FROM drink_prices WHERE normalized_name = $1`,
		vocab.NormalizeDrinkName(drinkName))
	if err != nil {
		return nil, fmt.Errorf("query drink prices: %w", err)
	}
	defer rows.Close()

	var prices []float64
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}
