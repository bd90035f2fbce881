// Package remote is the pipeline's view of the shared record store holding
// durable cafe locations and price history. The pipeline only sinks records
// into it; schema and query concerns beyond that stay out of scope.
package remote

import (
	"context"
	"errors"

	"github.com/espressomap/espressomap/internal/entity"
)

// ErrNotFound distinguishes a missing record from any other store failure.
var ErrNotFound = errors.New("record not found")

// RecordStore is the save/query surface the worker and export code consume.
type RecordStore interface {
	// SaveLocation upserts the cafe location record.
	SaveLocation(ctx context.Context, cafe entity.CafeSnapshot) error

	// GetLocation loads a location by id, returning ErrNotFound when absent.
	GetLocation(ctx context.Context, id string) (*entity.CafeSnapshot, error)

	// AddPriceForLocation is the pipeline's commit operation: upsert the
	// location from the record's snapshot, then append the price record
	// (full drinks list, optional note and image bytes).
	AddPriceForLocation(ctx context.Context, rec entity.PriceRecord) error

	// ListPriceRecords returns the price history for one location, newest
	// first. Image bytes are not loaded.
	ListPriceRecords(ctx context.Context, locationID string) ([]entity.PriceRecord, error)

	// DrinkPrices returns every observed price for a canonical drink name,
	// feeding the quartile stats.
	DrinkPrices(ctx context.Context, drinkName string) ([]float64, error)
}
