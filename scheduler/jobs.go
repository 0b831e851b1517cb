package scheduler

import (
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"ashare_backend/cache"
)

// RetentionPolicy bounds how long each cached data class is kept
type RetentionPolicy struct {
	SpotDays       int
	IndexDays      int
	HistoricalDays int
}

// Janitor prunes aged cache rows on a fixed clock, independent of the sync
// tick loop
type Janitor struct {
	cron      *gocron.Scheduler
	store     *cache.Store
	retention RetentionPolicy
}

// NewJanitor creates the retention cleanup job runner
func NewJanitor(store *cache.Store, retention RetentionPolicy) *Janitor {
	return &Janitor{
		cron:      gocron.NewScheduler(time.Local),
		store:     store,
		retention: retention,
	}
}

// Start schedules the nightly cleanup at 01:00
func (j *Janitor) Start() {
	j.cron.Every(1).Day().At("01:00").Do(func() {
		j.cleanupOldData()
	})
	j.cron.StartAsync()
	log.Println("Retention janitor started")
}

// Stop halts the cleanup schedule
func (j *Janitor) Stop() {
	j.cron.Stop()
	log.Println("Retention janitor stopped")
}

// cleanupOldData removes cache rows past their retention windows
func (j *Janitor) cleanupOldData() {
	log.Println("Retention cleanup starting")
	now := time.Now()

	if j.retention.SpotDays > 0 {
		cutoff := now.AddDate(0, 0, -j.retention.SpotDays)
		if n, err := j.store.PruneSpotBefore(cutoff); err != nil {
			log.Printf("Spot prune failed: %v", err)
		} else if n > 0 {
			log.Printf("Pruned %d stale quotes", n)
		}
	}

	if j.retention.IndexDays > 0 {
		cutoff := now.AddDate(0, 0, -j.retention.IndexDays)
		if n, err := j.store.PruneIndexBefore(cutoff); err != nil {
			log.Printf("Index prune failed: %v", err)
		} else if n > 0 {
			log.Printf("Pruned %d old index bars", n)
		}
	}

	if j.retention.HistoricalDays > 0 {
		cutoff := now.AddDate(0, 0, -j.retention.HistoricalDays)
		if n, err := j.store.PruneHistoricalBefore(cutoff); err != nil {
			log.Printf("Historical prune failed: %v", err)
		} else if n > 0 {
			log.Printf("Pruned %d old bars", n)
		}
	}

	log.Println("Retention cleanup done")
}
