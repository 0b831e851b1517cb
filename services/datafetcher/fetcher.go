package datafetcher

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"ashare_backend/cache"
	"ashare_backend/models"
	"ashare_backend/services/vendor"
)

// Freshness windows per data class
const (
	StockListMaxAge  = 24 * time.Hour
	HistoricalMaxAge = 24 * time.Hour
	SpotMaxAge       = 1 * time.Hour
	IndexMaxAge      = 24 * time.Hour
)

const (
	// How far back to probe for the most recent trading day
	stockListProbeDays = 60
	spotLookbackDays   = 10

	// Batch spot pacing
	basePace          = 200 * time.Millisecond
	coolOffSleep      = 5 * time.Second
	coolOffThreshold  = 3
	elevatedPaceScale = 4
)

// Liquid large caps used to discover the current trading day before a batch
// run. If none of them has a bar for a candidate day, the market was closed.
var referenceSymbols = []string{"sh.600000", "sh.600036", "sz.000001", "sh.601398"}

// A-share board prefixes: Shanghai main/STAR, Shenzhen main, ChiNext.
// Everything else the vendor lists (indices, B-shares, funds) is dropped.
var boardPrefixes = []string{"sh.6", "sz.0", "sz.3"}

// DataFetcher serves stock and index data cache-first. It holds one
// reference on the shared vendor session for its whole lifetime.
type DataFetcher struct {
	cache    *cache.Store
	session  *vendor.SessionManager
	client   vendor.Client
	snapshot vendor.SnapshotSource // nil disables the bulk fast path
	retry    RetryPolicy

	now   func() time.Time
	sleep func(time.Duration)
}

// Option tweaks fetcher construction
type Option func(*DataFetcher)

// WithSnapshot enables the bulk whole-market snapshot fast path
func WithSnapshot(src vendor.SnapshotSource) Option {
	return func(f *DataFetcher) { f.snapshot = src }
}

// WithRetryPolicy overrides the default per-request retry policy
func WithRetryPolicy(p RetryPolicy) Option {
	return func(f *DataFetcher) { f.retry = p }
}

// WithClock overrides the fetcher's clock and sleeper, for tests
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(f *DataFetcher) {
		f.now = now
		f.sleep = sleep
	}
}

// NewDataFetcher acquires the vendor session and returns a ready fetcher.
// A login failure is returned as-is; an *vendor.AuthError means the
// credentials are bad and the process should not continue.
func NewDataFetcher(store *cache.Store, session *vendor.SessionManager, client vendor.Client, opts ...Option) (*DataFetcher, error) {
	f := &DataFetcher{
		cache:   store,
		session: session,
		client:  client,
		retry:   DefaultRetryPolicy,
		now:     time.Now,
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(f)
	}

	if err := session.Acquire(); err != nil {
		return nil, fmt.Errorf("failed to acquire vendor session: %w", err)
	}
	return f, nil
}

// Close releases the fetcher's hold on the vendor session
func (f *DataFetcher) Close() {
	f.session.Release()
}

// GetStockList returns all listed A-share stocks, serving from cache when it
// is younger than 24h. Vendor failures degrade to an empty list.
func (f *DataFetcher) GetStockList() []models.StockListEntry {
	if entries, ok := f.cache.GetStockList(StockListMaxAge); ok {
		return entries
	}

	rows, day, err := f.fetchAllStockRecent(stockListProbeDays)
	if err != nil {
		log.Printf("Stock list fetch failed: %v", err)
		return nil
	}
	log.Printf("Stock list fetched for trading day %s: %d raw rows", day, len(rows))

	entries := make([]models.StockListEntry, 0, len(rows))
	for _, r := range rows {
		if !isAShareBoard(r.Code) || r.TradeStatus != "1" {
			continue
		}
		entries = append(entries, models.StockListEntry{
			Code:   models.BareSymbol(r.Code),
			Name:   r.Name,
			Status: r.TradeStatus,
			Market: models.MarketOf(r.Code),
		})
	}

	if err := f.cache.SaveStockList(entries); err != nil {
		log.Printf("Stock list cache write failed: %v", err)
	}
	return entries
}

// fetchAllStockRecent probes backward from today until a day yields listing
// rows, preferring recent weekdays before the exhaustive walk
func (f *DataFetcher) fetchAllStockRecent(maxDays int) ([]vendor.StockRow, string, error) {
	var lastErr error
	for _, day := range f.candidateDays(maxDays) {
		rows, err := withRetry(f.retry, f.sleep, "query_all_stock", func() ([]vendor.StockRow, error) {
			return f.client.QueryAllStock(day)
		})
		if err != nil {
			lastErr = err
			var ae *vendor.AuthError
			if errors.As(err, &ae) {
				return nil, "", err
			}
			continue
		}
		if len(rows) > 0 {
			return rows, day, nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no trading day found in the last %d days", maxDays)
	}
	return nil, "", lastErr
}

// candidateDays yields probe dates newest-first: the last few weekdays, then
// every calendar day back to maxDays
func (f *DataFetcher) candidateDays(maxDays int) []string {
	today := f.now()
	days := make([]string, 0, maxDays)
	seen := make(map[string]bool, maxDays)

	weekdays := 0
	for i := 0; weekdays < 5 && i <= maxDays; i++ {
		d := today.AddDate(0, 0, -i)
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		s := d.Format("2006-01-02")
		days = append(days, s)
		seen[s] = true
		weekdays++
	}
	for i := 0; i <= maxDays; i++ {
		s := today.AddDate(0, 0, -i).Format("2006-01-02")
		if !seen[s] {
			days = append(days, s)
		}
	}
	return days
}

// isAShareBoard reports whether a market-qualified code belongs to an
// A-share board
func isAShareBoard(code string) bool {
	for _, p := range boardPrefixes {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

// GetHistoricalData returns daily bars for a stock within [start, end].
// adjust is one of "qfq", "hfq", "none"; frequency "daily", "weekly",
// "monthly". Failures degrade to an empty slice.
func (f *DataFetcher) GetHistoricalData(code string, start, end time.Time, frequency, adjust string) []models.Bar {
	qualified := models.NormalizeStockSymbol(code)
	bare := models.BareSymbol(qualified)

	if bars, ok := f.cache.GetHistoricalData(bare, start, end, HistoricalMaxAge); ok {
		return bars
	}

	rows, err := withRetry(f.retry, f.sleep, "query_history_k_data "+bare, func() ([]vendor.KDataRow, error) {
		return f.client.QueryHistoryKData(vendor.KDataQuery{
			Code:       qualified,
			StartDate:  start.Format("2006-01-02"),
			EndDate:    end.Format("2006-01-02"),
			Frequency:  frequencyFlag(frequency),
			AdjustFlag: adjustFlag(adjust),
		})
	})
	if err != nil {
		log.Printf("Historical fetch failed for %s: %v", bare, err)
		return nil
	}

	bars := barsFromKData(rows)
	if err := f.cache.SaveHistoricalData(bare, bars); err != nil {
		log.Printf("Historical cache write failed for %s: %v", bare, err)
	}
	return bars
}

// adjustFlag maps the public adjustment names onto the vendor's wire values
func adjustFlag(adjust string) string {
	switch adjust {
	case "qfq":
		return "3"
	case "hfq":
		return "2"
	default:
		return "1"
	}
}

// frequencyFlag maps bar frequency names onto the vendor's wire values
func frequencyFlag(frequency string) string {
	switch frequency {
	case "weekly":
		return "w"
	case "monthly":
		return "m"
	default:
		return "d"
	}
}

// barsFromKData coerces raw vendor rows into typed bars. Unparseable
// numeric fields become null; the row is kept.
func barsFromKData(rows []vendor.KDataRow) []models.Bar {
	bars := make([]models.Bar, 0, len(rows))
	for _, r := range rows {
		date, err := time.Parse("2006-01-02", r.Date)
		if err != nil {
			continue
		}
		bars = append(bars, models.Bar{
			Date:      date,
			Code:      models.BareSymbol(r.Code),
			Open:      models.ParseNullDecimal(r.Open),
			High:      models.ParseNullDecimal(r.High),
			Low:       models.ParseNullDecimal(r.Low),
			Close:     models.ParseNullDecimal(r.Close),
			Volume:    models.ParseNullDecimal(r.Volume),
			Amount:    models.ParseNullDecimal(r.Amount),
			PctChange: models.ParseNullDecimal(r.PctChange),
			Turnover:  models.ParseNullDecimal(r.Turnover),
		})
	}
	return bars
}

// GetStockSpot returns the latest available quote for one stock, serving
// from cache when younger than 1h. Nil means no data was obtainable.
func (f *DataFetcher) GetStockSpot(code string) *models.Quote {
	qualified := models.NormalizeStockSymbol(code)
	bare := models.BareSymbol(qualified)

	if quote, ok := f.cache.GetSpotData(bare, SpotMaxAge); ok {
		return quote
	}

	end := f.now()
	start := end.AddDate(0, 0, -spotLookbackDays)
	rows, err := withRetry(f.retry, f.sleep, "spot "+bare, func() ([]vendor.KDataRow, error) {
		return f.client.QueryHistoryKData(vendor.KDataQuery{
			Code:       qualified,
			StartDate:  start.Format("2006-01-02"),
			EndDate:    end.Format("2006-01-02"),
			Frequency:  "d",
			AdjustFlag: "1",
		})
	})
	if err != nil {
		log.Printf("Spot fetch failed for %s: %v", bare, err)
		return nil
	}

	bars := barsFromKData(rows)
	if len(bars) == 0 {
		return nil
	}
	quote := models.QuoteFromBar(bars[len(bars)-1])
	if err := f.cache.SaveSpotData(bare, quote); err != nil {
		log.Printf("Spot cache write failed for %s: %v", bare, err)
	}
	return quote
}

// GetBatchSpotData returns quotes for many stocks at once. Cache hits are
// served first; misses are fetched sequentially for one shared trading day
// with paced requests. Individual failures are skipped, never aborting the
// batch, and each success is persisted immediately.
func (f *DataFetcher) GetBatchSpotData(codes []string) map[string]*models.Quote {
	result := make(map[string]*models.Quote, len(codes))
	var misses []string
	for _, code := range codes {
		bare := models.BareSymbol(models.NormalizeStockSymbol(code))
		if quote, ok := f.cache.GetSpotData(bare, SpotMaxAge); ok {
			result[bare] = quote
		} else {
			misses = append(misses, bare)
		}
	}
	if len(misses) == 0 {
		return result
	}

	day, err := f.discoverTradingDay()
	if err != nil {
		log.Printf("Batch spot aborted, no trading day found: %v", err)
		return result
	}
	log.Printf("Batch spot: %d cached, %d to fetch for %s", len(result), len(misses), day)

	pace := basePace
	consecutive := 0
	for _, bare := range misses {
		quote, err := f.fetchSpotForDay(bare, day)
		if err != nil {
			consecutive++
			log.Printf("Batch spot failed for %s (%d consecutive): %v", bare, consecutive, err)
			if consecutive >= coolOffThreshold {
				log.Printf("Batch spot cooling off for %v", coolOffSleep)
				f.sleep(coolOffSleep)
				pace = basePace * elevatedPaceScale
				consecutive = 0
			}
			f.sleep(pace)
			continue
		}
		consecutive = 0
		pace = basePace
		if quote != nil {
			result[bare] = quote
		}
		f.sleep(pace)
	}
	return result
}

// discoverTradingDay finds the most recent day any reference symbol traded
func (f *DataFetcher) discoverTradingDay() (string, error) {
	today := f.now()
	var lastErr error
	for i := 0; i <= spotLookbackDays; i++ {
		day := today.AddDate(0, 0, -i).Format("2006-01-02")
		for _, ref := range referenceSymbols {
			rows, err := withRetry(f.retry, f.sleep, "probe "+ref, func() ([]vendor.KDataRow, error) {
				return f.client.QueryHistoryKData(vendor.KDataQuery{
					Code:       ref,
					StartDate:  day,
					EndDate:    day,
					Frequency:  "d",
					AdjustFlag: "1",
				})
			})
			if err != nil {
				lastErr = err
				continue
			}
			if len(rows) > 0 {
				return day, nil
			}
			// Reference symbol answered with no bar: market was closed,
			// no point probing the other references for this day
			break
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no trading day in the last %d days", spotLookbackDays)
	}
	return "", lastErr
}

// fetchSpotForDay fetches one symbol's bar for an already-discovered
// trading day and persists it
func (f *DataFetcher) fetchSpotForDay(bare, day string) (*models.Quote, error) {
	rows, err := withRetry(f.retry, f.sleep, "spot "+bare, func() ([]vendor.KDataRow, error) {
		return f.client.QueryHistoryKData(vendor.KDataQuery{
			Code:       models.NormalizeStockSymbol(bare),
			StartDate:  day,
			EndDate:    day,
			Frequency:  "d",
			AdjustFlag: "1",
		})
	})
	if err != nil {
		return nil, err
	}
	bars := barsFromKData(rows)
	if len(bars) == 0 {
		return nil, nil
	}
	quote := models.QuoteFromBar(bars[len(bars)-1])
	if err := f.cache.SaveSpotData(bare, quote); err != nil {
		log.Printf("Spot cache write failed for %s: %v", bare, err)
	}
	return quote, nil
}

// GetAllSpotData pulls the whole market in one snapshot call, persisting
// every quote. Returns an error when the snapshot source is unavailable so
// callers can fall back to the per-symbol path.
func (f *DataFetcher) GetAllSpotData() (map[string]*models.Quote, error) {
	if f.snapshot == nil {
		return nil, fmt.Errorf("no snapshot source configured")
	}

	rows, err := f.snapshot.AllSpot()
	if err != nil {
		return nil, fmt.Errorf("snapshot fetch failed: %w", err)
	}

	result := make(map[string]*models.Quote, len(rows))
	for _, r := range rows {
		bare := models.BareSymbol(r.Code)
		quote := &models.Quote{
			Code:      bare,
			Date:      r.Date,
			Open:      models.ParseNullDecimal(r.Open.String()),
			High:      models.ParseNullDecimal(r.High.String()),
			Low:       models.ParseNullDecimal(r.Low.String()),
			Close:     models.ParseNullDecimal(r.Close.String()),
			Volume:    models.ParseNullDecimal(r.Volume.String()),
			Amount:    models.ParseNullDecimal(r.Amount.String()),
			PctChange: models.ParseNullDecimal(r.PctChange.String()),
			Turnover:  models.ParseNullDecimal(r.Turnover.String()),
		}
		if err := f.cache.SaveSpotData(bare, quote); err != nil {
			log.Printf("Spot cache write failed for %s: %v", bare, err)
			continue
		}
		result[bare] = quote
	}
	log.Printf("Snapshot fast path stored %d quotes", len(result))
	return result, nil
}

// HasSnapshot reports whether the bulk fast path is configured
func (f *DataFetcher) HasSnapshot() bool {
	return f.snapshot != nil
}

// GetIndexData returns up to a year of daily bars for one market index
func (f *DataFetcher) GetIndexData(code string) []models.Bar {
	qualified := models.NormalizeIndexSymbol(code)
	bare := models.BareSymbol(qualified)

	end := f.now()
	start := end.AddDate(0, 0, -365)

	if bars, ok := f.cache.GetIndexData(bare, start, end, IndexMaxAge); ok {
		return bars
	}

	rows, err := withRetry(f.retry, f.sleep, "index "+bare, func() ([]vendor.KDataRow, error) {
		return f.client.QueryHistoryKData(vendor.KDataQuery{
			Code:       qualified,
			StartDate:  start.Format("2006-01-02"),
			EndDate:    end.Format("2006-01-02"),
			Frequency:  "d",
			AdjustFlag: "1",
		})
	})
	if err != nil {
		log.Printf("Index fetch failed for %s: %v", bare, err)
		return nil
	}

	bars := barsFromKData(rows)
	if err := f.cache.SaveIndexData(bare, bars); err != nil {
		log.Printf("Index cache write failed for %s: %v", bare, err)
	}
	return bars
}

// GetBatchIndexData returns bars for several indices, skipping failures
func (f *DataFetcher) GetBatchIndexData(codes []string) map[string][]models.Bar {
	result := make(map[string][]models.Bar, len(codes))
	for _, code := range codes {
		bare := models.BareSymbol(models.NormalizeIndexSymbol(code))
		if bars := f.GetIndexData(code); bars != nil {
			result[bare] = bars
		}
	}
	return result
}

// ClearCache drops one cached data class, or all of them
func (f *DataFetcher) ClearCache(class string) error {
	return f.cache.Clear(class)
}

// GetCacheInfo reports cache row counts and file size
func (f *DataFetcher) GetCacheInfo() (cache.Info, error) {
	return f.cache.GetInfo()
}
