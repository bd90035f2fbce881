package constants

// ExtractionStatus is the canonical lifecycle status for a pending extraction.
type ExtractionStatus string

// Stable values (store these exact strings on disk).
const (
	StatusQueued     ExtractionStatus = "queued"     // waiting for the worker
	StatusExtracting ExtractionStatus = "extracting" // remote extraction in flight
	StatusSaving     ExtractionStatus = "saving"     // drinks extracted, committing to the record store
	StatusCompleted  ExtractionStatus = "completed"  // transient; a completed job is removed, not kept
	StatusFailed     ExtractionStatus = "failed"     // waiting for an explicit retry reset
)

// MaxRetries bounds how often a failed job still counts as pending.
const MaxRetries = 3

// Source tags where a job was enqueued from. Informational only.
type Source string

const (
	SourceMainApp        Source = "mainApp"
	SourceShareExtension Source = "shareExtension"
)
