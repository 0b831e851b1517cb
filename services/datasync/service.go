// Package datasync drives the fetch-and-persist jobs that keep the cache
// warm: stock list, market-wide quotes, and index bars.
package datasync

import (
	"fmt"
	"log"
	"sync"
	"time"

	"ashare_backend/cache"
	"ashare_backend/models"
)

// IndexCodes is the fixed set of well-known market indices kept in sync
var IndexCodes = []string{
	"000001", // SSE Composite
	"000300", // CSI 300
	"000905", // CSI 500
	"399001", // SZSE Component
	"399006", // ChiNext
}

// Fetcher is the slice of the data fetcher the sync service drives
type Fetcher interface {
	GetStockList() []models.StockListEntry
	GetBatchSpotData(codes []string) map[string]*models.Quote
	GetAllSpotData() (map[string]*models.Quote, error)
	HasSnapshot() bool
	GetIndexData(code string) []models.Bar
	GetCacheInfo() (cache.Info, error)
	Close()
}

// Mirror receives copies of synced data for archival, e.g. the Mongo mirror
type Mirror interface {
	MirrorStockList(entries []models.StockListEntry)
	MirrorQuotes(quotes map[string]*models.Quote)
	MirrorSyncResult(result *models.SyncResult)
}

// Broadcaster pushes refreshed quotes to live subscribers
type Broadcaster interface {
	BroadcastQuotes(quotes map[string]*models.Quote)
}

// Config bounds retries and pacing for sync runs
type Config struct {
	RetryTimes    int
	RetryInterval time.Duration
	BatchSize     int
	BatchCooldown time.Duration
}

// DefaultConfig matches the pacing the vendor tolerates for full-market runs
var DefaultConfig = Config{
	RetryTimes:    3,
	RetryInterval: 5 * time.Second,
	BatchSize:     200,
	BatchCooldown: 2 * time.Second,
}

// Service runs sync tasks against the data fetcher
type Service struct {
	fetcher     Fetcher
	cfg         Config
	mirror      Mirror      // optional
	broadcaster Broadcaster // optional

	mu         sync.Mutex
	inProgress bool

	lastStockListSync  *time.Time
	lastMarketDataSync *time.Time
	lastIndexDataSync  *time.Time

	sleep func(time.Duration)
	now   func() time.Time
}

// NewService creates a sync service. mirror and broadcaster may be nil.
func NewService(fetcher Fetcher, cfg Config, mirror Mirror, broadcaster Broadcaster) *Service {
	if cfg.RetryTimes < 1 {
		cfg.RetryTimes = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultConfig.BatchSize
	}
	return &Service{
		fetcher:     fetcher,
		cfg:         cfg,
		mirror:      mirror,
		broadcaster: broadcaster,
		sleep:       time.Sleep,
		now:         time.Now,
	}
}

// SetClock overrides the service clock and sleeper, for tests
func (s *Service) SetClock(now func() time.Time, sleep func(time.Duration)) {
	s.now = now
	s.sleep = sleep
}

// SyncStockList refreshes the cached stock list, retrying on empty results
func (s *Service) SyncStockList() *models.SyncResult {
	start := s.now()
	result := &models.SyncResult{Task: models.TaskStockList, StartTime: start}
	log.Println("Sync: stock list starting")

	var entries []models.StockListEntry
	for attempt := 1; attempt <= s.cfg.RetryTimes; attempt++ {
		entries = s.fetcher.GetStockList()
		if len(entries) > 0 {
			break
		}
		msg := fmt.Sprintf("stock list attempt %d/%d returned no rows", attempt, s.cfg.RetryTimes)
		log.Println("Sync: " + msg)
		result.Errors = append(result.Errors, msg)
		if attempt < s.cfg.RetryTimes {
			s.sleep(s.cfg.RetryInterval)
		}
	}

	result.TotalSymbols = len(entries)
	result.SuccessCount = len(entries)
	result.Success = len(entries) > 0
	result.DurationSeconds = s.now().Sub(start).Seconds()

	if result.Success {
		now := s.now()
		s.mu.Lock()
		s.lastStockListSync = &now
		s.mu.Unlock()
		if s.mirror != nil {
			s.mirror.MirrorStockList(entries)
		}
	}
	s.archive(result)
	log.Printf("Sync: stock list done, %d symbols in %.1fs", len(entries), result.DurationSeconds)
	return result
}

// SyncMarketData refreshes quotes for the given codes, or for every
// tradeable stock when codes is empty. The full-market run prefers the bulk
// snapshot fast path and otherwise walks the universe in cooled-down
// batches, persisting each batch as it completes.
func (s *Service) SyncMarketData(codes []string) *models.SyncResult {
	start := s.now()
	result := &models.SyncResult{Task: models.TaskMarketData, StartTime: start}
	log.Println("Sync: market data starting")

	fullMarket := len(codes) == 0
	if fullMarket {
		for _, e := range s.fetcher.GetStockList() {
			if e.Tradeable() {
				codes = append(codes, e.Code)
			}
		}
	}
	result.TotalSymbols = len(codes)
	if len(codes) == 0 {
		result.Errors = append(result.Errors, "no symbols to sync")
		result.DurationSeconds = s.now().Sub(start).Seconds()
		s.archive(result)
		return result
	}

	var quotes map[string]*models.Quote
	if fullMarket && s.fetcher.HasSnapshot() {
		all, err := s.fetcher.GetAllSpotData()
		if err != nil {
			log.Printf("Sync: snapshot fast path unavailable, falling back: %v", err)
		} else {
			quotes = all
		}
	}

	if quotes == nil {
		quotes = make(map[string]*models.Quote, len(codes))
		batches := chunkSlice(codes, s.cfg.BatchSize)
		for i, batch := range batches {
			fetched := s.fetcher.GetBatchSpotData(batch)
			for code, q := range fetched {
				quotes[code] = q
			}
			log.Printf("Sync: market data batch %d/%d, %d/%d quotes", i+1, len(batches), len(fetched), len(batch))
			if i < len(batches)-1 {
				s.sleep(s.cfg.BatchCooldown)
			}
		}
	}

	for _, code := range codes {
		if _, ok := quotes[code]; ok {
			result.SuccessCount++
		} else {
			result.FailedCount++
			result.Errors = appendBounded(result.Errors, fmt.Sprintf("no quote for %s", code), 50)
		}
	}
	result.Success = result.FailedCount == 0
	result.DurationSeconds = s.now().Sub(start).Seconds()

	if result.SuccessCount > 0 {
		now := s.now()
		s.mu.Lock()
		s.lastMarketDataSync = &now
		s.mu.Unlock()
		if s.mirror != nil {
			s.mirror.MirrorQuotes(quotes)
		}
		if s.broadcaster != nil {
			s.broadcaster.BroadcastQuotes(quotes)
		}
	}
	s.archive(result)
	log.Printf("Sync: market data done, %d ok / %d failed of %d in %.1fs",
		result.SuccessCount, result.FailedCount, result.TotalSymbols, result.DurationSeconds)
	return result
}

// SyncIndexData refreshes bars for the fixed index set
func (s *Service) SyncIndexData() *models.SyncResult {
	start := s.now()
	result := &models.SyncResult{Task: models.TaskIndexData, StartTime: start}
	result.TotalSymbols = len(IndexCodes)
	log.Println("Sync: index data starting")

	for _, code := range IndexCodes {
		var bars []models.Bar
		for attempt := 1; attempt <= s.cfg.RetryTimes; attempt++ {
			bars = s.fetcher.GetIndexData(code)
			if len(bars) > 0 {
				break
			}
			if attempt < s.cfg.RetryTimes {
				s.sleep(s.cfg.RetryInterval)
			}
		}
		if len(bars) > 0 {
			result.SuccessCount++
		} else {
			result.FailedCount++
			result.Errors = append(result.Errors, fmt.Sprintf("no bars for index %s", code))
		}
	}

	result.Success = result.FailedCount == 0
	result.DurationSeconds = s.now().Sub(start).Seconds()

	if result.SuccessCount > 0 {
		now := s.now()
		s.mu.Lock()
		s.lastIndexDataSync = &now
		s.mu.Unlock()
	}
	s.archive(result)
	log.Printf("Sync: index data done, %d ok / %d failed in %.1fs",
		result.SuccessCount, result.FailedCount, result.DurationSeconds)
	return result
}

// SyncAll runs every sync task in order. Only one full pass runs at a time;
// a concurrent call returns immediately with a message. Individual task
// failures never short-circuit the pass.
func (s *Service) SyncAll() *models.SyncAllResult {
	s.mu.Lock()
	if s.inProgress {
		s.mu.Unlock()
		return &models.SyncAllResult{
			StartTime: s.now(),
			Success:   false,
			Message:   "sync already in progress",
		}
	}
	s.inProgress = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inProgress = false
		s.mu.Unlock()
	}()

	start := s.now()
	log.Println("Sync: full pass starting")

	tasks := []models.SyncResult{
		*s.SyncStockList(),
		*s.SyncMarketData(nil),
		*s.SyncIndexData(),
	}

	all := &models.SyncAllResult{
		StartTime:       start,
		Success:         true,
		Tasks:           tasks,
		DurationSeconds: s.now().Sub(start).Seconds(),
	}
	for _, t := range tasks {
		if !t.Success {
			all.Success = false
		}
	}
	log.Printf("Sync: full pass done in %.1fs, success=%v", all.DurationSeconds, all.Success)
	return all
}

// InProgress reports whether a full sync pass is running
func (s *Service) InProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inProgress
}

// Status reports last completion times per task
func (s *Service) Status() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]interface{}{
		"in_progress":           s.inProgress,
		"last_stock_list_sync":  s.lastStockListSync,
		"last_market_data_sync": s.lastMarketDataSync,
		"last_index_data_sync":  s.lastIndexDataSync,
	}
}

// CacheInfo exposes cache stats for the status endpoint
func (s *Service) CacheInfo() (cache.Info, error) {
	return s.fetcher.GetCacheInfo()
}

// Shutdown releases the fetcher's vendor session
func (s *Service) Shutdown() {
	s.fetcher.Close()
}

// archive records a task result in the mirror when one is configured
func (s *Service) archive(result *models.SyncResult) {
	if s.mirror != nil {
		s.mirror.MirrorSyncResult(result)
	}
}

// chunkSlice splits codes into batches of at most size
func chunkSlice(codes []string, size int) [][]string {
	if size < 1 {
		size = len(codes)
	}
	var batches [][]string
	for i := 0; i < len(codes); i += size {
		end := i + size
		if end > len(codes) {
			end = len(codes)
		}
		batches = append(batches, codes[i:end])
	}
	return batches
}

// appendBounded appends msg unless the list already carries max entries
func appendBounded(errs []string, msg string, max int) []string {
	if len(errs) >= max {
		return errs
	}
	return append(errs, msg)
}
