// Package export produces XLSX workbooks from the remote price history, for
// sharing a cafe's record outside the app.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/espressomap/espressomap/internal/remote"
	"github.com/espressomap/espressomap/internal/vocab"
)

// Service is a tiny façade over the record store that produces XLSX bytes.
type Service struct {
	records remote.RecordStore
	stats   *vocab.StatsService
	logger  *slog.Logger
}

func NewService(records remote.RecordStore, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	// a workbook repeats drink names across records, so cache the stats
	stats, err := vocab.NewStatsService(records, 64, 5*time.Minute, logger)
	if err != nil {
		return nil, err
	}
	return &Service{records: records, stats: stats, logger: logger}, nil
}

// ExportPriceHistoryXLSX returns a workbook with one row per extracted
// drink observation for the given location, newest record first.
func (s *Service) ExportPriceHistoryXLSX(ctx context.Context, locationID string) ([]byte, error) {
	start := time.Now()

	recs, err := s.records.ListPriceRecords(ctx, locationID)
	if err != nil {
		return nil, fmt.Errorf("query price records: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Prices"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Recorded",
		"Cafe",
		"Address",
		"Drink",
		"Canonical Drink",
		"Category",
		"Price",
		"Espresso Price",
		"Notes",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		espresso := ""
		if p := vocab.FindEspressoPrice(r.Drinks); p != nil {
			espresso = fmt.Sprintf("%.2f", *p)
		}

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		for _, d := range r.Drinks {
			write(1, r.RecordedAt.Format("2006-01-02"))
			write(2, r.Cafe.Name)
			write(3, r.Cafe.Address)
			write(4, d.Name)
			write(5, vocab.NormalizeDrinkName(d.Name))
			write(6, s.categoryCell(ctx, d.Name, d.Price))
			write(7, fmt.Sprintf("%.2f", d.Price))
			write(8, espresso)
			write(9, truncate(r.Note, 140))
			row++
		}
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 12) // date
	_ = f.SetColWidth(sheet, "B", "C", 26) // cafe, address
	_ = f.SetColWidth(sheet, "D", "E", 20) // drink, canonical drink

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"location_id", locationID,
		"records", len(recs),
		"rows", row-2,
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// categoryCell buckets a price into the 0..3 category for its drink. A stats
// lookup failure degrades to an empty cell; the export still ships.
func (s *Service) categoryCell(ctx context.Context, drinkName string, price float64) string {
	cat, err := s.stats.CategoryFor(ctx, drinkName, price)
	if err != nil {
		s.logger.Warn("export.category_lookup_failed", "drink", drinkName, "err", err)
		return ""
	}
	return fmt.Sprintf("%d", cat)
}

// truncate cuts on rune boundaries; notes may hold multi-byte text.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
