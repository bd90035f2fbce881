// Package importer moves queued jobs from a secondary process's shared
// storage area into the primary queue store. The handoff is a one-way
// mailbox: the secondary process only writes, we read and delete. There is
// no locking; a writer racing the drain can lose entries, which the host
// environment rules out by only writing while the primary process is
// inactive.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/espressomap/espressomap/internal/entity"
)

const (
	inboxFileName = "inbox.json"
	imagesDirName = "images"
)

// Inbox is the mailbox contract. Drain empties it and returns whatever jobs
// were waiting; the emptying happens whether or not the caller can use them.
type Inbox interface {
	Drain(ctx context.Context) ([]entity.PendingExtraction, error)
	// ImagePath locates the shared-area image blob for fileName.
	ImagePath(fileName string) string
}

// FilesystemInbox reads the job-list file a share/import extension leaves in
// the shared container directory.
type FilesystemInbox struct {
	sharedDir string
	logger    *slog.Logger
}

var _ Inbox = (*FilesystemInbox)(nil)

func NewFilesystemInbox(sharedDir string, logger *slog.Logger) *FilesystemInbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilesystemInbox{sharedDir: sharedDir, logger: logger}
}

// Drain reads and then deletes the inbox file. The delete happens even when
// the file fails to parse, so a corrupt mailbox is dropped rather than
// re-read forever.
func (b *FilesystemInbox) Drain(_ context.Context) ([]entity.PendingExtraction, error) {
	path := filepath.Join(b.sharedDir, inboxFileName)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}

	var entries []entity.PendingExtraction
	decodeErr := json.Unmarshal(raw, &entries)

	if err := os.Remove(path); err != nil {
		b.logger.Warn("importer.inbox.delete_failed", "path", path, "err", err)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode inbox: %w", decodeErr)
	}
	return entries, nil
}

func (b *FilesystemInbox) ImagePath(fileName string) string {
	return filepath.Join(b.sharedDir, imagesDirName, fileName)
}
