package importer

import (
	"context"
	"log/slog"
	"os"

	"github.com/espressomap/espressomap/constants"
	"github.com/espressomap/espressomap/internal/entity"
)

// TargetStore is the slice of the queue store the importer needs: id-deduped
// appends and a destination path for copied image blobs. Both queue store
// implementations satisfy it.
type TargetStore interface {
	Import(ctx context.Context, rec entity.PendingExtraction) (bool, error)
	ImagePath(fileName string) string
}

// Importer drains the shared inbox into the primary queue. Run on process
// start and whenever the host app returns to the foreground.
type Importer struct {
	inbox  Inbox
	store  TargetStore
	logger *slog.Logger
}

func New(inbox Inbox, store TargetStore, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{inbox: inbox, store: store, logger: logger}
}

// Run imports every inbox entry not already present in the queue. Image
// copies are best effort; LoadImage's shared-area fallback covers a blob
// that stayed behind. Returns how many jobs were added.
func (i *Importer) Run(ctx context.Context) (int, error) {
	entries, err := i.inbox.Drain(ctx)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	imported := 0
	for _, entry := range entries {
		rec := entry
		rec.Status = constants.StatusQueued
		rec.Source = constants.SourceShareExtension

		added, err := i.store.Import(ctx, rec)
		if err != nil {
			i.logger.Error("importer.job.append_failed", "job_id", rec.ID, "err", err)
			continue
		}
		if !added {
			// a re-delivered entry must not recreate a blob for a job
			// that already ran to completion
			i.logger.Debug("importer.job.already_present", "job_id", rec.ID)
			continue
		}
		i.copyImage(rec.ImageFileName)
		imported++
		i.logger.Info("importer.job.imported", "job_id", rec.ID, "cafe", rec.Cafe.Name)
	}
	i.logger.Info("importer.run.done", "found", len(entries), "imported", imported)
	return imported, nil
}

func (i *Importer) copyImage(fileName string) {
	if fileName == "" {
		return
	}
	src := i.inbox.ImagePath(fileName)
	raw, err := os.ReadFile(src)
	if err != nil {
		i.logger.Warn("importer.image.copy_skipped", "file", fileName, "err", err)
		return
	}
	if err := os.WriteFile(i.store.ImagePath(fileName), raw, 0o644); err != nil {
		i.logger.Warn("importer.image.copy_failed", "file", fileName, "err", err)
	}
}
