package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/espressomap/espressomap/constants"
	"github.com/espressomap/espressomap/internal/entity"
)

const (
	pendingFileName = "pending.json"
	imagesDirName   = "images"
)

// FileStore keeps the pending list in a single JSON file under dataDir and
// image blobs in dataDir/images. sharedDir, when set, is the cross-process
// handoff area consulted as a read fallback for imported jobs.
//
// Every mutation rewrites the whole list via write-temp-then-rename. A
// failed persist is logged and the in-memory state kept; callers needing
// strict durability check Persist themselves.
type FileStore struct {
	dataDir   string
	sharedDir string
	logger    *slog.Logger

	mu   sync.Mutex
	jobs []entity.PendingExtraction
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the data directories and loads any previously
// persisted pending list.
func NewFileStore(dataDir, sharedDir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Join(dataDir, imagesDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}
	s := &FileStore{dataDir: dataDir, sharedDir: sharedDir, logger: logger}
	if err := s.load(); err != nil {
		return nil, err
	}
	logger.Info("queue.store.opened", "data_dir", dataDir, "jobs", len(s.jobs))
	return s, nil
}

func (s *FileStore) load() error {
	raw, err := os.ReadFile(filepath.Join(s.dataDir, pendingFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read pending list: %w", err)
	}
	if err := json.Unmarshal(raw, &s.jobs); err != nil {
		return fmt.Errorf("decode pending list: %w", err)
	}
	return nil
}

// persistLocked writes the full list atomically (temp file then rename).
// Caller holds s.mu. A write failure is logged and returned but the
// in-memory list is not rolled back.
func (s *FileStore) persistLocked() error {
	raw, err := json.MarshalIndent(s.jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode pending list: %w", err)
	}
	target := filepath.Join(s.dataDir, pendingFileName)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		s.logger.Error("queue.store.persist_failed", "err", err)
		return fmt.Errorf("write pending list: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		s.logger.Error("queue.store.persist_failed", "err", err)
		return fmt.Errorf("replace pending list: %w", err)
	}
	return nil
}

// Persist flushes the current in-memory list to disk. For callers that need
// confirmation after a mutation whose persist failure was only logged.
func (s *FileStore) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *FileStore) QueueExtraction(_ context.Context, cafe entity.CafeSnapshot, imageBytes []byte, source constants.Source) (*entity.PendingExtraction, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, rec)
	if err := s.persistLocked(); err != nil {
		// accepted caveat: memory keeps the record, disk may lag
		s.logger.Warn("queue.enqueue.persist_lagging", "job_id", id, "err", err)
	}
	s.logger.Info("queue.enqueue.ok", "job_id", id, "cafe", cafe.Name, "source", source, "image_bytes", len(imageBytes))
	return &rec, nil
}

func (s *FileStore) GetNextPending(_ context.Context) (*entity.PendingExtraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jobs {
		if s.jobs[i].Status == constants.StatusQueued {
			rec := s.jobs[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *FileStore) GetPendingCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for i := range s.jobs {
		if s.jobs[i].Pending() {
			count++
		}
	}
	return count, nil
}

func (s *FileStore) List(_ context.Context) ([]entity.PendingExtraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.PendingExtraction, len(s.jobs))
	copy(out, s.jobs)
	return out, nil
}

func (s *FileStore) MarkAsExtracting(_ context.Context, id uuid.UUID) error {
	return s.mutate(id, func(rec *entity.PendingExtraction) {
		now := time.Now().UTC()
		rec.Status = constants.StatusExtracting
		rec.LastAttempt = &now
	})
}

func (s *FileStore) UpdateWithResults(_ context.Context, id uuid.UUID, drinks []entity.DrinkPrice) error {
	return s.mutate(id, func(rec *entity.PendingExtraction) {
		rec.Drinks = drinks
		rec.Status = constants.StatusSaving
	})
}

func (s *FileStore) MarkAsFailed(_ context.Context, id uuid.UUID, errorText string) error {
	err := s.mutate(id, func(rec *entity.PendingExtraction) {
		now := time.Now().UTC()
		rec.Status = constants.StatusFailed
		rec.LastError = &errorText
		rec.RetryCount++
		rec.LastAttempt = &now
	})
	if err == nil {
		s.logger.Warn("queue.job.failed", "job_id", id, "error", errorText)
	}
	return err
}

func (s *FileStore) ResetForRetry(_ context.Context, id uuid.UUID) error {
	return s.mutate(id, func(rec *entity.PendingExtraction) {
		rec.Status = constants.StatusQueued
		rec.LastError = nil
	})
}

func (s *FileStore) MarkAsCompleted(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return ErrJobNotFound
	}
	rec := s.jobs[idx]
	s.deleteImages(rec.ImageFileName)
	s.jobs = append(s.jobs[:idx], s.jobs[idx+1:]...)
	if err := s.persistLocked(); err != nil {
		s.logger.Warn("queue.complete.persist_lagging", "job_id", id, "err", err)
	}
	s.logger.Info("queue.job.completed", "job_id", id, "cafe", rec.Cafe.Name)
	return nil
}

func (s *FileStore) RemoveExtraction(_ context.Context, rec *entity.PendingExtraction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteImages(rec.ImageFileName)
	idx := s.indexLocked(rec.ID)
	if idx < 0 {
		return ErrJobNotFound
	}
	s.jobs = append(s.jobs[:idx], s.jobs[idx+1:]...)
	if err := s.persistLocked(); err != nil {
		s.logger.Warn("queue.remove.persist_lagging", "job_id", rec.ID, "err", err)
	}
	s.logger.Info("queue.job.removed", "job_id", rec.ID)
	return nil
}

func (s *FileStore) LoadImage(_ context.Context, rec *entity.PendingExtraction) ([]byte, error) {
	local := filepath.Join(s.dataDir, imagesDirName, rec.ImageFileName)
	raw, err := os.ReadFile(local)
	if err == nil {
		return raw, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read image: %w", err)
	}
	// imported jobs may still have their image only in the shared area
	if s.sharedDir != "" {
		shared := filepath.Join(s.sharedDir, imagesDirName, rec.ImageFileName)
		if raw, err := os.ReadFile(shared); err == nil {
			return raw, nil
		}
	}
	return nil, ErrImageNotFound
}

func (s *FileStore) Import(_ context.Context, rec entity.PendingExtraction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(rec.ID) >= 0 {
		return false, nil
	}
	s.jobs = append(s.jobs, rec)
	if err := s.persistLocked(); err != nil {
		s.logger.Warn("queue.import.persist_lagging", "job_id", rec.ID, "err", err)
	}
	return true, nil
}

// ImagePath returns where the store keeps (or expects) the local image blob
// for fileName. Used by the importer when copying shared-area images in.
func (s *FileStore) ImagePath(fileName string) string {
	return filepath.Join(s.dataDir, imagesDirName, fileName)
}

func (s *FileStore) mutate(id uuid.UUID, apply func(*entity.PendingExtraction)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return ErrJobNotFound
	}
	apply(&s.jobs[idx])
	if err := s.persistLocked(); err != nil {
		s.logger.Warn("queue.update.persist_lagging", "job_id", id, "err", err)
	}
	return nil
}

func (s *FileStore) indexLocked(id uuid.UUID) int {
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			return i
		}
	}
	return -1
}

// deleteImages removes the blob from the local and, when configured, the
// shared area. Best effort on both.
func (s *FileStore) deleteImages(fileName string) {
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
