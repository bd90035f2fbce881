// Package queue persists pending extractions and their menu photos between
// process runs. The store exclusively owns job records and image files: an
// image exists exactly as long as its record is queued, extracting, saving
// or failed.
package queue

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/espressomap/espressomap/constants"
	"github.com/espressomap/espressomap/internal/entity"
)

var (
	// ErrJobNotFound reports an id with no matching record in the store.
	ErrJobNotFound = errors.New("pending extraction not found")
	// ErrImageNotFound reports image bytes missing from both the local and
	// the shared-area blob directory.
	ErrImageNotFound = errors.New("extraction image not found")
)

// Store is the durable, process-local pending-extraction list. Mutations are
// whole-list read-modify-persist cycles; there are no partial writes.
type Store interface {
	// QueueExtraction persists imageBytes under a fresh filename, then
	// appends a queued record. If the image cannot be persisted, nothing is
	// enqueued.
	QueueExtraction(ctx context.Context, cafe entity.CafeSnapshot, imageBytes []byte, source constants.Source) (*entity.PendingExtraction, error)

	// GetNextPending returns the first record in insertion order with
	// status queued, or nil when none. Failed records are not considered;
	// they need an explicit ResetForRetry.
	GetNextPending(ctx context.Context) (*entity.PendingExtraction, error)

	// GetPendingCount counts records eligible for processing now or after a
	// retry: queued, plus failed with retryCount below the retry bound.
	GetPendingCount(ctx context.Context) (int, error)

	// List returns a snapshot of all records in insertion order.
	List(ctx context.Context) ([]entity.PendingExtraction, error)

	MarkAsExtracting(ctx context.Context, id uuid.UUID) error
	UpdateWithResults(ctx context.Context, id uuid.UUID, drinks []entity.DrinkPrice) error
	// MarkAsCompleted removes the record and deletes its image. Completed is
	// a transient signal, never a stored state.
	MarkAsCompleted(ctx context.Context, id uuid.UUID) error
	MarkAsFailed(ctx context.Context, id uuid.UUID, errorText string) error
	ResetForRetry(ctx context.Context, id uuid.UUID) error

	// LoadImage reads the job's image bytes, falling back to the shared
	// handoff area for records that arrived via cross-process import.
	LoadImage(ctx context.Context, rec *entity.PendingExtraction) ([]byte, error)

	// RemoveExtraction discards a record and best-effort deletes its image
	// from both blob areas.
	RemoveExtraction(ctx context.Context, rec *entity.PendingExtraction) error

	// Import appends an externally constructed record unless its id is
	// already present. Reports whether the record was added.
	Import(ctx context.Context, rec entity.PendingExtraction) (bool, error)
}
