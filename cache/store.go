// Package cache persists vendor market data in a local SQLite file so that
// reads within a freshness window never touch the network.
package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ashare_backend/models"
)

// StockListRow is one cached stock list entry
type StockListRow struct {
	ID        uint      `gorm:"primaryKey"`
	Code      string    `gorm:"uniqueIndex;not null"`
	Name      string
	Status    string
	Market    string
	UpdatedAt time.Time `gorm:"index"`
}

// HistoricalBarRow is one cached daily bar for a stock.
// Dates are stored as YYYY-MM-DD strings so range scans stay lexicographic.
type HistoricalBarRow struct {
	ID        uint   `gorm:"primaryKey"`
	Code      string `gorm:"index:idx_hist_code_date,unique;not null"`
	Date      string `gorm:"index:idx_hist_code_date,unique;not null"`
	Open      *float64
	High      *float64
	Low       *float64
	Close     *float64
	Volume    *float64
	Amount    *float64
	PctChange *float64
	Turnover  *float64
	UpdatedAt time.Time `gorm:"index"`
}

// SpotRow is one cached quote, stored as a JSON blob keyed by code so the
// quote schema can evolve without migrations.
type SpotRow struct {
	ID        uint      `gorm:"primaryKey"`
	Code      string    `gorm:"uniqueIndex;not null"`
	Data      string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"index"`
}

// IndexBarRow is one cached daily bar for a market index
type IndexBarRow struct {
	ID        uint   `gorm:"primaryKey"`
	Code      string `gorm:"index:idx_index_code_date,unique;not null"`
	Date      string `gorm:"index:idx_index_code_date,unique;not null"`
	Open      *float64
	High      *float64
	Low       *float64
	Close     *float64
	Volume    *float64
	Amount    *float64
	PctChange *float64
	UpdatedAt time.Time `gorm:"index"`
}

// Info summarises cache contents for the status endpoint
type Info struct {
	StockListCount  int64   `json:"stock_list_count"`
	HistoricalCount int64   `json:"historical_count"`
	SpotCount       int64   `json:"spot_count"`
	IndexCount      int64   `json:"index_count"`
	DBSizeMB        float64 `json:"db_size_mb"`
	Path            string  `json:"path"`
}

// Data classes accepted by Clear
const (
	ClassStockList  = "stock_list"
	ClassHistorical = "historical"
	ClassSpot       = "spot"
	ClassIndex      = "index"
)

// Store is the SQLite-backed market data cache
type Store struct {
	db   *gorm.DB
	path string
	now  func() time.Time
}

// NewStore opens (creating if needed) the cache database at path
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := db.AutoMigrate(&StockListRow{}, &HistoricalBarRow{}, &SpotRow{}, &IndexBarRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate cache schema: %w", err)
	}

	log.Printf("Cache store ready at %s", path)
	return &Store{db: db, path: path, now: time.Now}, nil
}

// DB exposes the underlying handle for migrations of adjacent tables
func (s *Store) DB() *gorm.DB {
	return s.db
}

// SetClock overrides the store's clock, for tests
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// GetStockList returns the cached stock list if every row is younger than
// maxAge. A stale or empty cache reports a miss.
func (s *Store) GetStockList(maxAge time.Duration) ([]models.StockListEntry, bool) {
	cutoff := s.now().Add(-maxAge)

	var fresh int64
	s.db.Model(&StockListRow{}).Where("updated_at >= ?", cutoff).Count(&fresh)
	if fresh == 0 {
		return nil, false
	}

	var rows []StockListRow
	if err := s.db.Order("code").Find(&rows).Error; err != nil {
		log.Printf("Cache read failed for stock list: %v", err)
		return nil, false
	}

	entries := make([]models.StockListEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, models.StockListEntry{
			Code:   r.Code,
			Name:   r.Name,
			Status: r.Status,
			Market: r.Market,
		})
	}
	return entries, true
}

// SaveStockList replaces the whole cached stock list in one transaction
func (s *Store) SaveStockList(entries []models.StockListEntry) error {
	now := s.now()
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&StockListRow{}).Error; err != nil {
			return fmt.Errorf("failed to clear stock list: %w", err)
		}
		rows := make([]StockListRow, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, StockListRow{
				Code:      e.Code,
				Name:      e.Name,
				Status:    e.Status,
				Market:    e.Market,
				UpdatedAt: now,
			})
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 500).Error; err != nil {
			return fmt.Errorf("failed to insert stock list: %w", err)
		}
		return nil
	})
}

// GetHistoricalData returns cached bars for code within [start, end] if the
// symbol's rows are younger than maxAge
func (s *Store) GetHistoricalData(code string, start, end time.Time, maxAge time.Duration) ([]models.Bar, bool) {
	cutoff := s.now().Add(-maxAge)

	var fresh int64
	s.db.Model(&HistoricalBarRow{}).
		Where("code = ? AND updated_at >= ?", code, cutoff).
		Count(&fresh)
	if fresh == 0 {
		return nil, false
	}

	var rows []HistoricalBarRow
	err := s.db.
		Where("code = ? AND date >= ? AND date <= ?",
			code, start.Format("2006-01-02"), end.Format("2006-01-02")).
		Order("date").
		Find(&rows).Error
	if err != nil {
		log.Printf("Cache read failed for %s bars: %v", code, err)
		return nil, false
	}
	if len(rows) == 0 {
		return nil, false
	}

	bars := make([]models.Bar, 0, len(rows))
	for _, r := range rows {
		date, _ := time.Parse("2006-01-02", r.Date)
		bars = append(bars, models.Bar{
			Date:      date,
			Code:      r.Code,
			Open:      floatToDecimal(r.Open),
			High:      floatToDecimal(r.High),
			Low:       floatToDecimal(r.Low),
			Close:     floatToDecimal(r.Close),
			Volume:    floatToDecimal(r.Volume),
			Amount:    floatToDecimal(r.Amount),
			PctChange: floatToDecimal(r.PctChange),
			Turnover:  floatToDecimal(r.Turnover),
		})
	}
	return bars, true
}

// SaveHistoricalData replaces all cached bars for code in one transaction
func (s *Store) SaveHistoricalData(code string, bars []models.Bar) error {
	now := s.now()
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", code).Delete(&HistoricalBarRow{}).Error; err != nil {
			return fmt.Errorf("failed to clear bars for %s: %w", code, err)
		}
		rows := make([]HistoricalBarRow, 0, len(bars))
		for _, b := range bars {
			rows = append(rows, HistoricalBarRow{
				Code:      code,
				Date:      b.Date.Format("2006-01-02"),
				Open:      decimalToFloat(b.Open),
				High:      decimalToFloat(b.High),
				Low:       decimalToFloat(b.Low),
				Close:     decimalToFloat(b.Close),
				Volume:    decimalToFloat(b.Volume),
				Amount:    decimalToFloat(b.Amount),
				PctChange: decimalToFloat(b.PctChange),
				Turnover:  decimalToFloat(b.Turnover),
				UpdatedAt: now,
			})
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 500).Error; err != nil {
			return fmt.Errorf("failed to insert bars for %s: %w", code, err)
		}
		return nil
	})
}

// GetSpotData returns the cached quote for code if younger than maxAge
func (s *Store) GetSpotData(code string, maxAge time.Duration) (*models.Quote, bool) {
	cutoff := s.now().Add(-maxAge)

	var row SpotRow
	err := s.db.Where("code = ? AND updated_at >= ?", code, cutoff).First(&row).Error
	if err != nil {
		return nil, false
	}

	var quote models.Quote
	if err := json.Unmarshal([]byte(row.Data), &quote); err != nil {
		log.Printf("Corrupt cached quote for %s: %v", code, err)
		return nil, false
	}
	return &quote, true
}

// SaveSpotData upserts the quote for one code
func (s *Store) SaveSpotData(code string, quote *models.Quote) error {
	data, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("failed to encode quote for %s: %w", code, err)
	}
	now := s.now()
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", code).Delete(&SpotRow{}).Error; err != nil {
			return fmt.Errorf("failed to clear quote for %s: %w", code, err)
		}
		row := SpotRow{Code: code, Data: string(data), UpdatedAt: now}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to insert quote for %s: %w", code, err)
		}
		return nil
	})
}

// GetIndexData returns cached index bars for code within [start, end] if the
// symbol's rows are younger than maxAge
func (s *Store) GetIndexData(code string, start, end time.Time, maxAge time.Duration) ([]models.Bar, bool) {
	cutoff := s.now().Add(-maxAge)

	var fresh int64
	s.db.Model(&IndexBarRow{}).
		Where("code = ? AND updated_at >= ?", code, cutoff).
		Count(&fresh)
	if fresh == 0 {
		return nil, false
	}

	var rows []IndexBarRow
	err := s.db.
		Where("code = ? AND date >= ? AND date <= ?",
			code, start.Format("2006-01-02"), end.Format("2006-01-02")).
		Order("date").
		Find(&rows).Error
	if err != nil {
		log.Printf("Cache read failed for index %s: %v", code, err)
		return nil, false
	}
	if len(rows) == 0 {
		return nil, false
	}

	bars := make([]models.Bar, 0, len(rows))
	for _, r := range rows {
		date, _ := time.Parse("2006-01-02", r.Date)
		bars = append(bars, models.Bar{
			Date:      date,
			Code:      r.Code,
			Open:      floatToDecimal(r.Open),
			High:      floatToDecimal(r.High),
			Low:       floatToDecimal(r.Low),
			Close:     floatToDecimal(r.Close),
			Volume:    floatToDecimal(r.Volume),
			Amount:    floatToDecimal(r.Amount),
			PctChange: floatToDecimal(r.PctChange),
		})
	}
	return bars, true
}

// SaveIndexData replaces all cached bars for an index in one transaction
func (s *Store) SaveIndexData(code string, bars []models.Bar) error {
	now := s.now()
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", code).Delete(&IndexBarRow{}).Error; err != nil {
			return fmt.Errorf("failed to clear index bars for %s: %w", code, err)
		}
		rows := make([]IndexBarRow, 0, len(bars))
		for _, b := range bars {
			rows = append(rows, IndexBarRow{
				Code:      code,
				Date:      b.Date.Format("2006-01-02"),
				Open:      decimalToFloat(b.Open),
				High:      decimalToFloat(b.High),
				Low:       decimalToFloat(b.Low),
				Close:     decimalToFloat(b.Close),
				Volume:    decimalToFloat(b.Volume),
				Amount:    decimalToFloat(b.Amount),
				PctChange: decimalToFloat(b.PctChange),
				UpdatedAt: now,
			})
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 500).Error; err != nil {
			return fmt.Errorf("failed to insert index bars for %s: %w", code, err)
		}
		return nil
	})
}

// Clear deletes one data class, or everything when class is empty or "all"
func (s *Store) Clear(class string) error {
	targets := map[string]interface{}{
		ClassStockList:  &StockListRow{},
		ClassHistorical: &HistoricalBarRow{},
		ClassSpot:       &SpotRow{},
		ClassIndex:      &IndexBarRow{},
	}

	if class == "" || class == "all" {
		for name, model := range targets {
			if err := s.db.Where("1 = 1").Delete(model).Error; err != nil {
				return fmt.Errorf("failed to clear %s: %w", name, err)
			}
		}
		log.Println("Cache cleared: all classes")
		return nil
	}

	model, ok := targets[class]
	if !ok {
		return fmt.Errorf("unknown cache class %q", class)
	}
	if err := s.db.Where("1 = 1").Delete(model).Error; err != nil {
		return fmt.Errorf("failed to clear %s: %w", class, err)
	}
	log.Printf("Cache cleared: %s", class)
	return nil
}

// GetInfo returns per-class row counts and the database file size
func (s *Store) GetInfo() (Info, error) {
	info := Info{Path: s.path}

	s.db.Model(&StockListRow{}).Count(&info.StockListCount)
	s.db.Model(&HistoricalBarRow{}).Count(&info.HistoricalCount)
	s.db.Model(&SpotRow{}).Count(&info.SpotCount)
	s.db.Model(&IndexBarRow{}).Count(&info.IndexCount)

	if st, err := os.Stat(s.path); err == nil {
		info.DBSizeMB = float64(st.Size()) / (1024 * 1024)
	}
	return info, nil
}

// PruneSpotBefore deletes quotes last updated before cutoff
func (s *Store) PruneSpotBefore(cutoff time.Time) (int64, error) {
	res := s.db.Where("updated_at < ?", cutoff).Delete(&SpotRow{})
	return res.RowsAffected, res.Error
}

// PruneIndexBefore deletes index bars dated before cutoff
func (s *Store) PruneIndexBefore(cutoff time.Time) (int64, error) {
	res := s.db.Where("date < ?", cutoff.Format("2006-01-02")).Delete(&IndexBarRow{})
	return res.RowsAffected, res.Error
}

// PruneHistoricalBefore deletes stock bars dated before cutoff
func (s *Store) PruneHistoricalBefore(cutoff time.Time) (int64, error) {
	res := s.db.Where("date < ?", cutoff.Format("2006-01-02")).Delete(&HistoricalBarRow{})
	return res.RowsAffected, res.Error
}
