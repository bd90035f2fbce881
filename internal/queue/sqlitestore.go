package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/espressomap/espressomap/constants"
	"github.com/espressomap/espressomap/internal/entity"
)

// SQLiteStore is the embedded alternative to FileStore: records live in a
// SQLite table keyed by job id, so each mutation touches one row instead of
// rewriting the whole list. Image blobs stay on the filesystem under the
// same layout as FileStore.
type SQLiteStore struct {
	db        *sql.DB
	dataDir   string
	sharedDir string
	logger    *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pending_extractions (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	created_at   TEXT NOT NULL,
	cafe_id      TEXT NOT NULL,
	cafe_name    TEXT NOT NULL,
	cafe_address TEXT NOT NULL,
	cafe_lat     REAL NOT NULL,
	cafe_lng     REAL NOT NULL,
	image_file   TEXT NOT NULL,
	drinks       TEXT,
	status       TEXT NOT NULL,
	last_error   TEXT,
	retry_count  INTEGER NOT NULL DEFAULT 0,
	last_attempt TEXT,
	source       TEXT NOT NULL
);`

// NewSQLiteStore opens (creating if needed) the queue database at path and
// the image directory under dataDir.
func NewSQLiteStore(ctx context.Context, path, dataDir, sharedDir string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Join(dataDir, imagesDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init queue schema: %w", err)
	}
	logger.Info("queue.sqlite.opened", "path", path)
	return &SQLiteStore{db: db, dataDir: dataDir, sharedDir: sharedDir, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

const insertJobSQL = `
INSERT INTO pending_extractions
	(id, created_at, cafe_id, cafe_name, cafe_address, cafe_lat, cafe_lng,
	 image_file, drinks, status, last_error, retry_count, last_attempt, source)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *SQLiteStore) QueueExtraction(ctx context.Context, cafe entity.CafeSnapshot, imageBytes []byte, source constants.Source) (*entity.PendingExtraction, error) {
	id := uuid.New()
	fileName := id.String() + constants.ImageExtension
	imagePath := filepath.Join(s.dataDir, imagesDirName, fileName)
	if err := os.WriteFile(imagePath, imageBytes, 0o644); err != nil {
		s.logger.Error("queue.enqueue.image_write_failed", "cafe", cafe.Name, "err", err)
		return nil, fmt.Errorf("persist image: %w", err)
	}

	rec := entity.PendingExtraction{
		ID:            id,
		CreatedAt:     time.Now().UTC(),
		Cafe:          cafe,
		ImageFileName: fileName,
		Status:        constants.StatusQueued,
		Source:        source,
	}
	if err := s.insert(ctx, rec); err != nil {
		// keep the invariant: no record, no image
		_ = os.Remove(imagePath)
		return nil, err
	}
	s.logger.Info("queue.enqueue.ok", "job_id", id, "cafe", cafe.Name, "source", source, "image_bytes", len(imageBytes))
	return &rec, nil
}

func (s *SQLiteStore) insert(ctx context.Context, rec entity.PendingExtraction) error {
	drinks, lastAttempt, err := encodeOptional(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, insertJobSQL,
		rec.ID.String(), rec.CreatedAt.Format(time.RFC3339Nano),
		rec.Cafe.ID, rec.Cafe.Name, rec.Cafe.Address, rec.Cafe.Latitude, rec.Cafe.Longitude,
		rec.ImageFileName, drinks, string(rec.Status), rec.LastError, rec.RetryCount, lastAttempt, string(rec.Source))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func encodeOptional(rec entity.PendingExtraction) (drinks sql.NullString, lastAttempt sql.NullString, err error) {
	if rec.Drinks != nil {
		raw, mErr := json.Marshal(rec.Drinks)
		if mErr != nil {
			return drinks, lastAttempt, fmt.Errorf("encode drinks: %w", mErr)
		}
		drinks = sql.NullString{String: string(raw), Valid: true}
	}
	if rec.LastAttempt != nil {
		lastAttempt = sql.NullString{String: rec.LastAttempt.Format(time.RFC3339Nano), Valid: true}
	}
	return drinks, lastAttempt, nil
}

const selectJobSQL = `
SELECT id, created_at, cafe_id, cafe_name, cafe_address, cafe_lat, cafe_lng,
       image_file, drinks, status, last_error, retry_count, last_attempt, source
FROM pending_extractions`

func scanJob(row interface{ Scan(...any) error }) (entity.PendingExtraction, error) {
	var (
		rec         entity.PendingExtraction
		idStr       string
		createdAt   string
		drinks      sql.NullString
		lastError   sql.NullString
		lastAttempt sql.NullString
		status      string
		source      string
	)
	err := row.Scan(&idStr, &createdAt,
		&rec.Cafe.ID, &rec.Cafe.Name, &rec.Cafe.Address, &rec.Cafe.Latitude, &rec.Cafe.Longitude,
		&rec.ImageFileName, &drinks, &status, &lastError, &rec.RetryCount, &lastAttempt, &source)
	if err != nil {
		return rec, err
	}
	if rec.ID, err = uuid.Parse(idStr); err != nil {
		return rec, fmt.Errorf("parse job id: %w", err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return rec, fmt.Errorf("parse created_at: %w", err)
	}
	if drinks.Valid {
		if err := json.Unmarshal([]byte(drinks.String), &rec.Drinks); err != nil {
			return rec, fmt.Errorf("decode drinks: %w", err)
		}
	}
	if lastError.Valid {
		rec.LastError = &lastError.String
	}
	if lastAttempt.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastAttempt.String)
		if err != nil {
			return rec, fmt.Errorf("parse last_attempt: %w", err)
		}
		rec.LastAttempt = &t
	}
	rec.Status = constants.ExtractionStatus(status)
	rec.Source = constants.Source(source)
	return rec, nil
}

func (s *SQLiteStore) GetNextPending(ctx context.Context) (*entity.PendingExtraction, error) {
	row := s.db.QueryRowContext(ctx, selectJobSQL+` WHERE status = ? ORDER BY seq LIMIT 1`, string(constants.StatusQueued))
	rec, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) GetPendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_extractions WHERE status = ? OR (status = ? AND retry_count < ?)`,
		string(constants.StatusQueued), string(constants.StatusFailed), constants.MaxRetries).Scan(&count)
	return count, err
}

func (s *SQLiteStore) List(ctx context.Context) ([]entity.PendingExtraction, error) {
	rows, err := s.db.QueryContext(ctx, selectJobSQL+` ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.PendingExtraction
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkAsExtracting(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.exec(ctx,
		`UPDATE pending_extractions SET status = ?, last_attempt = ? WHERE id = ?`,
		string(constants.StatusExtracting), now, id.String())
}

func (s *SQLiteStore) UpdateWithResults(ctx context.Context, id uuid.UUID, drinks []entity.DrinkPrice) error {
	raw, err := json.Marshal(drinks)
	if err != nil {
		return fmt.Errorf("encode drinks: %w", err)
	}
	return s.exec(ctx,
		`UPDATE pending_extractions SET status = ?, drinks = ? WHERE id = ?`,
		string(constants.StatusSaving), string(raw), id.String())
}

func (s *SQLiteStore) MarkAsFailed(ctx context.Context, id uuid.UUID, errorText string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := s.exec(ctx,
		`UPDATE pending_extractions SET status = ?, last_error = ?, retry_count = retry_count + 1, last_attempt = ? WHERE id = ?`,
		string(constants.StatusFailed), errorText, now, id.String())
	if err == nil {
		s.logger.Warn("queue.job.failed", "job_id", id, "error", errorText)
	}
	return err
}

func (s *SQLiteStore) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx,
		`UPDATE pending_extractions SET status = ?, last_error = NULL WHERE id = ?`,
		string(constants.StatusQueued), id.String())
}

func (s *SQLiteStore) MarkAsCompleted(ctx context.Context, id uuid.UUID) error {
	var fileName string
	err := s.db.QueryRowContext(ctx,
		`SELECT image_file FROM pending_extractions WHERE id = ?`, id.String()).Scan(&fileName)
	if err == sql.ErrNoRows {
		return ErrJobNotFound
	}
	if err != nil {
		return err
	}
	s.removeImages(fileName)
	if err := s.exec(ctx, `DELETE FROM pending_extractions WHERE id = ?`, id.String()); err != nil {
		return err
	}
	s.logger.Info("queue.job.completed", "job_id", id)
	return nil
}

func (s *SQLiteStore) RemoveExtraction(ctx context.Context, rec *entity.PendingExtraction) error {
	s.removeImages(rec.ImageFileName)
	if err := s.exec(ctx, `DELETE FROM pending_extractions WHERE id = ?`, rec.ID.String()); err != nil {
		return err
	}
	s.logger.Info("queue.job.removed", "job_id", rec.ID)
	return nil
}

func (s *SQLiteStore) LoadImage(_ context.Context, rec *entity.PendingExtraction) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(s.dataDir, imagesDirName, rec.ImageFileName))
	if err == nil {
		return raw, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if s.sharedDir != "" {
		if raw, err := os.ReadFile(filepath.Join(s.sharedDir, imagesDirName, rec.ImageFileName)); err == nil {
			return raw, nil
		}
	}
	return nil, ErrImageNotFound
}

func (s *SQLiteStore) Import(ctx context.Context, rec entity.PendingExtraction) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_extractions WHERE id = ?`, rec.ID.String()).Scan(&exists)
	if err != nil {
		return false, err
	}
	if exists > 0 {
		return false, nil
	}
	if err := s.insert(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// ImagePath returns the local blob path for fileName, mirroring FileStore.
func (s *SQLiteStore) ImagePath(fileName string) string {
	return filepath.Join(s.dataDir, imagesDirName, fileName)
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *SQLiteStore) removeImages(fileName string) {
	if fileName == "" {
		return
	}
	if err := os.Remove(filepath.Join(s.dataDir, imagesDirName, fileName)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("queue.image.delete_failed", "file", fileName, "err", err)
	}
	if s.sharedDir != "" {
		if err := os.Remove(filepath.Join(s.sharedDir, imagesDirName, fileName)); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("queue.image.shared_delete_failed", "file", fileName, "err", err)
		}
	}
}
