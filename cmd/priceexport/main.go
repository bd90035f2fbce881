// priceexport writes one location's price history to an XLSX file.
//
// Usage: priceexport <location-id> [out.xlsx]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/espressomap/espressomap/internal/common"
	"github.com/espressomap/espressomap/internal/export"
	"github.com/espressomap/espressomap/internal/remote"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: priceexport <location-id> [out.xlsx]")
		os.Exit(2)
	}
	locationID := os.Args[1]
	outPath := locationID + ".xlsx"
	if len(os.Args) > 2 {
		outPath = os.Args[2]
	}

	cfg := common.LoadConfig()
	if cfg.Remote.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DB_URL env var is required")
		os.Exit(2)
	}

	ctx := context.Background()
	records, err := remote.Open(ctx, remote.Config{
		DSN:         cfg.Remote.DatabaseURL,
		DialTimeout: 3 * time.Second,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open record store: %v\n", err)
		os.Exit(1)
	}
	defer records.Close()

	svc, err := export.NewService(records, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init export: %v\n", err)
		os.Exit(1)
	}
	raw, err := svc.ExportPriceHistoryXLSX(ctx, locationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "export: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(outPath, raw, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d bytes)\n", outPath, len(raw))
}
