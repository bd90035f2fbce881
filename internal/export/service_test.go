package export

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/espressomap/espressomap/internal/entity"
	"github.com/espressomap/espressomap/internal/remote"
)

type fakeRecords struct {
	records []entity.PriceRecord
}

func (f *fakeRecords) SaveLocation(context.Context, entity.CafeSnapshot) error { return nil }
func (f *fakeRecords) GetLocation(context.Context, string) (*entity.CafeSnapshot, error) {
	return nil, remote.ErrNotFound
}
func (f *fakeRecords) AddPriceForLocation(context.Context, entity.PriceRecord) error { return nil }
func (f *fakeRecords) DrinkPrices(context.Context, string) ([]float64, error)        { return nil, nil }
func (f *fakeRecords) ListPriceRecords(context.Context, string) ([]entity.PriceRecord, error) {
	return f.records, nil
}

func TestExportPriceHistoryXLSX(t *testing.T) {
	cafe := entity.CafeSnapshot{ID: "cafe-1", Name: "Kaffeehaus", Address: "1 Roast St"}
	records := &fakeRecords{records: []entity.PriceRecord{
		{
			Cafe: cafe,
			Drinks: []entity.DrinkPrice{
				{Name: "Espresso", Price: 2.6},
				{Name: "flat white", Price: 3.8},
			},
			Note:       "sunny terrace",
			RecordedAt: time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
		},
	}}

	svc, err := NewService(records, nil)
	require.NoError(t, err)
	raw, err := svc.ExportPriceHistoryXLSX(context.Background(), "cafe-1")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Prices")
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + two drink rows

	require.Equal(t, "Recorded", rows[0][0])
	require.Equal(t, "Category", rows[0][5])
	require.Equal(t, []string{"2026-08-30", "Kaffeehaus", "1 Roast St", "Espresso", "Espresso", "2", "2.60", "2.60", "sunny terrace"}, rows[1])
	require.Equal(t, "Flat White", rows[2][4])
	require.Equal(t, "3", rows[2][5], "3.80 lands in the top fixed band")
	require.Equal(t, "2.60", rows[2][7], "espresso price repeats per record")
}

func TestExportEmptyHistory(t *testing.T) {
	svc, err := NewService(&fakeRecords{}, nil)
	require.NoError(t, err)
	raw, err := svc.ExportPriceHistoryXLSX(context.Background(), "cafe-1")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Prices")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	long := strings.Repeat("ü", 150)
	got := truncate(long, 140)
	require.True(t, utf8.ValidString(got))
	require.Equal(t, strings.Repeat("ü", 139)+"…", got)

	require.Equal(t, "short", truncate("short", 140))
}
