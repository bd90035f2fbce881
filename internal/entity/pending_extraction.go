package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/espressomap/espressomap/constants"
)

// PendingExtraction is one photographed-menu extraction request staged for
// processing. The record itself never embeds image bytes; ImageFileName
// points into the queue store's blob area.
type PendingExtraction struct {
	ID            uuid.UUID                  `json:"id"`
	CreatedAt     time.Time                  `json:"created_at"`
	Cafe          CafeSnapshot               `json:"cafe"`
	ImageFileName string                     `json:"image_file_name"`
	Drinks        []DrinkPrice               `json:"extracted_drinks,omitempty"`
	Status        constants.ExtractionStatus `json:"status"`
	LastError     *string                    `json:"last_error,omitempty"`
	RetryCount    int                        `json:"retry_count"`
	LastAttempt   *time.Time                 `json:"last_attempt,omitempty"`
	Source        constants.Source           `json:"source"`
}

// CafeSnapshot is the denormalized target location captured at enqueue time.
// It is a copy, not a live reference; the location record may not yet exist
// remotely.
type CafeSnapshot struct {
	ID        string  `json:"cafe_id"`
	Name      string  `json:"cafe_name"`
	Address   string  `json:"cafe_address"`
	Latitude  float64 `json:"cafe_latitude"`
	Longitude float64 `json:"cafe_longitude"`
}

// Pending reports whether the job is still eligible for processing, now or
// after a retry reset.
func (p *PendingExtraction) Pending() bool {
	if p.Status == constants.StatusQueued {
		return true
	}
	return p.Status == constants.StatusFailed && p.RetryCount < constants.MaxRetries
}
