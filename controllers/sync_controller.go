package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ashare_backend/models"
	"ashare_backend/scheduler"
	"ashare_backend/services/datafetcher"
)

// SyncController exposes scheduler and cache control endpoints
type SyncController struct {
	sched   *scheduler.Scheduler
	fetcher *datafetcher.DataFetcher
}

// NewSyncController creates a sync controller
func NewSyncController(sched *scheduler.Scheduler, fetcher *datafetcher.DataFetcher) *SyncController {
	return &SyncController{sched: sched, fetcher: fetcher}
}

// GetStatus returns scheduler task states and cache stats
// GET /api/v1/sync/status
func (sc *SyncController) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, sc.sched.GetStatus())
}

// TriggerSync runs one task synchronously
// POST /api/v1/sync/trigger/:kind
func (sc *SyncController) TriggerSync(c *gin.Context) {
	kind := models.TaskKind(c.Param("kind"))
	result, err := sc.sched.TriggerSync(kind)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// Start launches the scheduler loop
// POST /api/v1/sync/start
func (sc *SyncController) Start(c *gin.Context) {
	sc.sched.Start()
	c.JSON(http.StatusOK, gin.H{"running": sc.sched.Running()})
}

// Stop halts the scheduler loop
// POST /api/v1/sync/stop
func (sc *SyncController) Stop(c *gin.Context) {
	sc.sched.Stop()
	c.JSON(http.StatusOK, gin.H{"running": sc.sched.Running()})
}

// UpdateConfig applies a partial interval update. Intervals arrive in
// seconds to keep the JSON surface simple.
// PUT /api/v1/sync/config
func (sc *SyncController) UpdateConfig(c *gin.Context) {
	var req struct {
		StockListIntervalSeconds  *int `json:"stock_list_interval_seconds"`
		MarketDataIntervalSeconds *int `json:"market_data_interval_seconds"`
		IndexDataIntervalSeconds  *int `json:"index_data_interval_seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	update := scheduler.ConfigUpdate{}
	if req.StockListIntervalSeconds != nil {
		d := time.Duration(*req.StockListIntervalSeconds) * time.Second
		update.StockListInterval = &d
	}
	if req.MarketDataIntervalSeconds != nil {
		d := time.Duration(*req.MarketDataIntervalSeconds) * time.Second
		update.MarketDataInterval = &d
	}
	if req.IndexDataIntervalSeconds != nil {
		d := time.Duration(*req.IndexDataIntervalSeconds) * time.Second
		update.IndexDataInterval = &d
	}

	cfg, err := sc.sched.UpdateConfig(update)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

// GetCacheInfo returns cache row counts and file size
// GET /api/v1/cache/info
func (sc *SyncController) GetCacheInfo(c *gin.Context) {
	info, err := sc.fetcher.GetCacheInfo()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": info})
}

// ClearCache drops one cached data class, or all of them
// DELETE /api/v1/cache?class=spot
func (sc *SyncController) ClearCache(c *gin.Context) {
	class := c.DefaultQuery("class", "all")
	if err := sc.fetcher.ClearCache(class); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": class})
}
