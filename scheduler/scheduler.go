// Package scheduler owns the periodic sync loop. A dedicated goroutine
// wakes on a fixed tick, dispatches due tasks onto worker goroutines, and
// tracks per-task state for the status API. The fixed-clock retention
// cleanup lives in jobs.go.
package scheduler

import (
	"fmt"
	"log"
	"sync"
	"time"

	"ashare_backend/cache"
	"ashare_backend/models"
)

// SyncRunner is the slice of the sync service the scheduler drives
type SyncRunner interface {
	SyncStockList() *models.SyncResult
	SyncMarketData(codes []string) *models.SyncResult
	SyncIndexData() *models.SyncResult
	SyncAll() *models.SyncAllResult
	CacheInfo() (cache.Info, error)
	Shutdown()
}

// Config holds per-task intervals and loop pacing
type Config struct {
	StockListInterval  time.Duration `json:"stock_list_interval"`
	MarketDataInterval time.Duration `json:"market_data_interval"`
	IndexDataInterval  time.Duration `json:"index_data_interval"`
	Tick               time.Duration `json:"tick"`
	ShutdownWait       time.Duration `json:"shutdown_wait"`
}

// DefaultConfig mirrors the cadence the cache freshness windows expect
var DefaultConfig = Config{
	StockListInterval:  24 * time.Hour,
	MarketDataInterval: 5 * time.Minute,
	IndexDataInterval:  5 * time.Minute,
	Tick:               time.Minute,
	ShutdownWait:       30 * time.Second,
}

// ConfigUpdate carries partial config changes; nil fields stay unchanged
type ConfigUpdate struct {
	StockListInterval  *time.Duration `json:"stock_list_interval,omitempty"`
	MarketDataInterval *time.Duration `json:"market_data_interval,omitempty"`
	IndexDataInterval  *time.Duration `json:"index_data_interval,omitempty"`
}

// Status is the scheduler's externally visible state
type Status struct {
	Running bool                               `json:"running"`
	Config  Config                             `json:"config"`
	Tasks   map[models.TaskKind]taskSnapshot   `json:"tasks"`
	Cache   *cache.Info                        `json:"cache,omitempty"`
}

type taskSnapshot struct {
	LastRun         *time.Time `json:"last_run"`
	NextRun         *time.Time `json:"next_run"`
	Running         bool       `json:"running"`
	Success         *bool      `json:"success"`
	DurationSeconds float64    `json:"duration_seconds"`
}

// Scheduler runs sync tasks on their configured intervals
type Scheduler struct {
	svc SyncRunner

	mu       sync.Mutex
	cfg      Config
	states   map[models.TaskKind]*models.SyncTaskState
	running  bool
	stopChan chan struct{}

	now func() time.Time
}

// NewScheduler creates a scheduler over the given sync service
func NewScheduler(svc SyncRunner, cfg Config) *Scheduler {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultConfig.Tick
	}
	if cfg.ShutdownWait <= 0 {
		cfg.ShutdownWait = DefaultConfig.ShutdownWait
	}
	states := make(map[models.TaskKind]*models.SyncTaskState, len(models.KnownTaskKinds))
	for _, kind := range models.KnownTaskKinds {
		states[kind] = &models.SyncTaskState{}
	}
	return &Scheduler{
		svc:    svc,
		cfg:    cfg,
		states: states,
		now:    time.Now,
	}
}

// SetClock overrides the scheduler clock, for tests
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Start launches the tick loop. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})

	// First runs are due one interval from now, not immediately; an
	// operator who wants data now uses TriggerSync.
	now := s.now()
	s.scheduleNextLocked(models.TaskStockList, now)
	s.scheduleNextLocked(models.TaskMarketData, now)
	s.scheduleNextLocked(models.TaskIndexData, now)

	go s.loop(s.stopChan)
	log.Println("Scheduler started")
}

// Stop halts the tick loop, waits a bounded time for in-flight tasks, then
// shuts down the sync service. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	wait := s.cfg.ShutdownWait
	s.mu.Unlock()

	log.Println("Scheduler stopping, waiting for running tasks...")
	deadline := s.now().Add(wait)
	for s.anyTaskRunning() && s.now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	if s.anyTaskRunning() {
		log.Println("Scheduler stop timed out with tasks still running")
	}

	s.svc.Shutdown()
	log.Println("Scheduler stopped")
}

// Running reports whether the tick loop is active
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) anyTaskRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		if st.Running {
			return true
		}
	}
	return false
}

// loop is the dedicated tick goroutine
func (s *Scheduler) loop(stop <-chan struct{}) {
	s.mu.Lock()
	tick := s.cfg.Tick
	s.mu.Unlock()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.dispatchDue()
		}
	}
}

// dispatchDue starts a worker for every task whose next_run has arrived and
// that is not already running
func (s *Scheduler) dispatchDue() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, kind := range models.KnownTaskKinds {
		st := s.states[kind]
		if st.Running || st.NextRun == nil || now.Before(*st.NextRun) {
			continue
		}
		st.Running = true
		s.scheduleNextLocked(kind, now)
		go s.runTask(kind)
	}
}

// scheduleNextLocked computes next_run from now; caller holds the lock
func (s *Scheduler) scheduleNextLocked(kind models.TaskKind, now time.Time) {
	next := now.Add(s.intervalLocked(kind))
	s.states[kind].NextRun = &next
}

func (s *Scheduler) intervalLocked(kind models.TaskKind) time.Duration {
	switch kind {
	case models.TaskStockList:
		return s.cfg.StockListInterval
	case models.TaskMarketData:
		return s.cfg.MarketDataInterval
	case models.TaskIndexData:
		return s.cfg.IndexDataInterval
	}
	return s.cfg.MarketDataInterval
}

// runTask executes one task on a worker goroutine and records its outcome
func (s *Scheduler) runTask(kind models.TaskKind) {
	start := s.now()
	result := s.execute(kind)
	end := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[kind]
	st.Running = false
	st.LastRun = &start
	st.DurationSeconds = end.Sub(start).Seconds()
	if result != nil {
		success := result.Success
		st.Success = &success
	}
}

func (s *Scheduler) execute(kind models.TaskKind) *models.SyncResult {
	switch kind {
	case models.TaskStockList:
		return s.svc.SyncStockList()
	case models.TaskMarketData:
		return s.svc.SyncMarketData(nil)
	case models.TaskIndexData:
		return s.svc.SyncIndexData()
	}
	return nil
}

// TriggerSync runs one task (or "all") synchronously. A task whose
// scheduled run is in flight is not run twice; the caller gets an error.
func (s *Scheduler) TriggerSync(kind models.TaskKind) (interface{}, error) {
	if kind == models.TaskAll {
		// The sync service's own in-progress flag guards the full pass
		return s.svc.SyncAll(), nil
	}

	s.mu.Lock()
	st, ok := s.states[kind]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("unknown sync task %q", kind)
	}
	if st.Running {
		s.mu.Unlock()
		return nil, fmt.Errorf("task %s is already running", kind)
	}
	st.Running = true
	s.mu.Unlock()

	start := s.now()
	result := s.execute(kind)
	end := s.now()

	s.mu.Lock()
	st.Running = false
	st.LastRun = &start
	st.DurationSeconds = end.Sub(start).Seconds()
	if result != nil {
		success := result.Success
		st.Success = &success
	}
	s.mu.Unlock()

	return result, nil
}

// GetStatus snapshots scheduler and cache state
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	status := Status{
		Running: s.running,
		Config:  s.cfg,
		Tasks:   make(map[models.TaskKind]taskSnapshot, len(s.states)),
	}
	for kind, st := range s.states {
		status.Tasks[kind] = taskSnapshot{
			LastRun:         st.LastRun,
			NextRun:         st.NextRun,
			Running:         st.Running,
			Success:         st.Success,
			DurationSeconds: st.DurationSeconds,
		}
	}
	s.mu.Unlock()

	if info, err := s.svc.CacheInfo(); err == nil {
		status.Cache = &info
	}
	return status
}

// UpdateConfig applies a partial interval update. New intervals take effect
// at each task's next dispatch.
func (s *Scheduler) UpdateConfig(update ConfigUpdate) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	apply := func(target *time.Duration, v *time.Duration, name string) error {
		if v == nil {
			return nil
		}
		if *v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
		*target = *v
		return nil
	}

	if err := apply(&s.cfg.StockListInterval, update.StockListInterval, "stock_list_interval"); err != nil {
		return s.cfg, err
	}
	if err := apply(&s.cfg.MarketDataInterval, update.MarketDataInterval, "market_data_interval"); err != nil {
		return s.cfg, err
	}
	if err := apply(&s.cfg.IndexDataInterval, update.IndexDataInterval, "index_data_interval"); err != nil {
		return s.cfg, err
	}
	log.Printf("Scheduler config updated: %+v", s.cfg)
	return s.cfg, nil
}
