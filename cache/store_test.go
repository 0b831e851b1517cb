package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ashare_backend/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	return store
}

func sampleEntries() []models.StockListEntry {
	return []models.StockListEntry{
		{Code: "600000", Name: "Pudong Bank", Status: "1", Market: "SH"},
		{Code: "000001", Name: "Ping An Bank", Status: "1", Market: "SZ"},
	}
}

func sampleBars(code string, dates ...string) []models.Bar {
	bars := make([]models.Bar, 0, len(dates))
	for _, d := range dates {
		date, _ := time.Parse("2006-01-02", d)
		bars = append(bars, models.Bar{
			Date:  date,
			Code:  code,
			Open:  models.ParseNullDecimal("10.0"),
			Close: models.ParseNullDecimal("10.5"),
		})
	}
	return bars
}

func TestStockListRoundTrip(t *testing.T) {
	store := newTestStore(t)

	_, ok := store.GetStockList(time.Hour)
	assert.False(t, ok, "empty cache must miss")

	require.NoError(t, store.SaveStockList(sampleEntries()))

	entries, ok := store.GetStockList(time.Hour)
	require.True(t, ok)
	assert.Len(t, entries, 2)
}

func TestStockListFreshnessWindow(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC)

	now := base
	store.SetClock(func() time.Time { return now })
	require.NoError(t, store.SaveStockList(sampleEntries()))

	_, ok := store.GetStockList(24 * time.Hour)
	assert.True(t, ok)

	now = base.Add(25 * time.Hour)
	_, ok = store.GetStockList(24 * time.Hour)
	assert.False(t, ok, "stale rows must miss without being deleted")

	// Data is still there, only the freshness check fails
	info, err := store.GetInfo()
	require.NoError(t, err)
	assert.EqualValues(t, 2, info.StockListCount)
}

func TestSaveStockListReplacesWholesale(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveStockList(sampleEntries()))

	replacement := []models.StockListEntry{
		{Code: "300750", Name: "CATL", Status: "1", Market: "SZ"},
	}
	require.NoError(t, store.SaveStockList(replacement))

	entries, ok := store.GetStockList(time.Hour)
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, "300750", entries[0].Code)
}

func TestHistoricalReplaceIsPerSymbol(t *testing.T) {
	store := newTestStore(t)
	start, _ := time.Parse("2006-01-02", "2024-06-01")
	end, _ := time.Parse("2006-01-02", "2024-06-30")

	require.NoError(t, store.SaveHistoricalData("600000", sampleBars("600000", "2024-06-10", "2024-06-11")))
	require.NoError(t, store.SaveHistoricalData("000001", sampleBars("000001", "2024-06-10")))

	// Re-saving one symbol must not touch the other
	require.NoError(t, store.SaveHistoricalData("600000", sampleBars("600000", "2024-06-12")))

	bars, ok := store.GetHistoricalData("600000", start, end, time.Hour)
	require.True(t, ok)
	require.Len(t, bars, 1)
	assert.Equal(t, "2024-06-12", bars[0].Date.Format("2006-01-02"))

	other, ok := store.GetHistoricalData("000001", start, end, time.Hour)
	require.True(t, ok)
	assert.Len(t, other, 1)
}

func TestHistoricalRangeFilter(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveHistoricalData("600000",
		sampleBars("600000", "2024-05-31", "2024-06-10", "2024-07-01")))

	start, _ := time.Parse("2006-01-02", "2024-06-01")
	end, _ := time.Parse("2006-01-02", "2024-06-30")
	bars, ok := store.GetHistoricalData("600000", start, end, time.Hour)
	require.True(t, ok)
	require.Len(t, bars, 1)
	assert.Equal(t, "2024-06-10", bars[0].Date.Format("2006-01-02"))
}

func TestSpotUpsertAndExpiry(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC)
	now := base
	store.SetClock(func() time.Time { return now })

	quote := &models.Quote{Code: "600000", Date: "2024-06-14", Close: models.ParseNullDecimal("10.5")}
	require.NoError(t, store.SaveSpotData("600000", quote))

	got, ok := store.GetSpotData("600000", time.Hour)
	require.True(t, ok)
	assert.Equal(t, "600000", got.Code)
	assert.True(t, got.Close.Valid)

	// Second save replaces the row, not duplicates it
	require.NoError(t, store.SaveSpotData("600000", quote))
	info, err := store.GetInfo()
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.SpotCount)

	now = base.Add(2 * time.Hour)
	_, ok = store.GetSpotData("600000", time.Hour)
	assert.False(t, ok)
}

func TestNullNumericFieldsSurviveRoundTrip(t *testing.T) {
	store := newTestStore(t)
	date, _ := time.Parse("2006-01-02", "2024-06-14")
	bars := []models.Bar{{
		Date:  date,
		Code:  "600000",
		Open:  models.ParseNullDecimal(""), // null
		Close: models.ParseNullDecimal("10.5"),
	}}
	require.NoError(t, store.SaveHistoricalData("600000", bars))

	start, _ := time.Parse("2006-01-02", "2024-06-01")
	end, _ := time.Parse("2006-01-02", "2024-06-30")
	got, ok := store.GetHistoricalData("600000", start, end, time.Hour)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.False(t, got[0].Open.Valid)
	assert.True(t, got[0].Close.Valid)
}

func TestClear(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveStockList(sampleEntries()))
	require.NoError(t, store.SaveSpotData("600000", &models.Quote{Code: "600000"}))

	require.NoError(t, store.Clear(ClassSpot))
	info, err := store.GetInfo()
	require.NoError(t, err)
	assert.EqualValues(t, 0, info.SpotCount)
	assert.EqualValues(t, 2, info.StockListCount)

	require.NoError(t, store.Clear("all"))
	info, err = store.GetInfo()
	require.NoError(t, err)
	assert.EqualValues(t, 0, info.StockListCount)

	assert.Error(t, store.Clear("bogus"))
}

func TestPrune(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveHistoricalData("600000",
		sampleBars("600000", "2023-01-10", "2024-06-10")))

	cutoff, _ := time.Parse("2006-01-02", "2024-01-01")
	n, err := store.PruneHistoricalBefore(cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	info, err := store.GetInfo()
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.HistoricalCount)
}
