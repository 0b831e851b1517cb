package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ashare_backend/models"
	"ashare_backend/services/analysis"
	"ashare_backend/services/datafetcher"
)

// StockController serves stock and index data from the cache-first fetcher
type StockController struct {
	fetcher *datafetcher.DataFetcher
}

// NewStockController creates a stock controller
func NewStockController(fetcher *datafetcher.DataFetcher) *StockController {
	return &StockController{fetcher: fetcher}
}

// GetStocks returns the stock universe with optional search and pagination
// GET /api/v1/stocks?search=&market=&page=&limit=
func (sc *StockController) GetStocks(c *gin.Context) {
	search := strings.ToLower(c.Query("search"))
	market := strings.ToUpper(c.Query("market"))
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}

	all := sc.fetcher.GetStockList()
	filtered := make([]models.StockListEntry, 0, len(all))
	for _, e := range all {
		if market != "" && e.Market != market {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(e.Code), search) &&
			!strings.Contains(strings.ToLower(e.Name), search) {
			continue
		}
		filtered = append(filtered, e)
	}

	total := len(filtered)
	offset := (page - 1) * limit
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	c.JSON(http.StatusOK, gin.H{
		"data": filtered[offset:end],
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetHistory returns daily bars for one stock
// GET /api/v1/stocks/:code/history?days=&frequency=&adjust=
func (sc *StockController) GetHistory(c *gin.Context) {
	code := c.Param("code")
	days, _ := strconv.Atoi(c.DefaultQuery("days", "90"))
	if days < 1 || days > 3650 {
		days = 90
	}
	frequency := c.DefaultQuery("frequency", "daily")
	adjust := c.DefaultQuery("adjust", "qfq")

	end := time.Now()
	start := end.AddDate(0, 0, -days)
	bars := sc.fetcher.GetHistoricalData(code, start, end, frequency, adjust)
	if len(bars) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no historical data for " + code})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": models.BareSymbol(models.NormalizeStockSymbol(code)), "data": bars})
}

// GetQuote returns the latest quote for one stock
// GET /api/v1/stocks/:code/quote
func (sc *StockController) GetQuote(c *gin.Context) {
	code := c.Param("code")
	quote := sc.fetcher.GetStockSpot(code)
	if quote == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no quote for " + code})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": quote})
}

// GetBatchQuotes returns quotes for several stocks at once
// POST /api/v1/stocks/quotes  {"codes": ["600000", "000001"]}
func (sc *StockController) GetBatchQuotes(c *gin.Context) {
	var req struct {
		Codes []string `json:"codes" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Codes) > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at most 500 codes per request"})
		return
	}

	quotes := sc.fetcher.GetBatchSpotData(req.Codes)
	c.JSON(http.StatusOK, gin.H{
		"data":      quotes,
		"requested": len(req.Codes),
		"returned":  len(quotes),
	})
}

// GetIndicators returns the latest technical indicator summary for a stock
// GET /api/v1/stocks/:code/indicators?days=
func (sc *StockController) GetIndicators(c *gin.Context) {
	code := c.Param("code")
	days, _ := strconv.Atoi(c.DefaultQuery("days", "120"))
	if days < 30 || days > 3650 {
		days = 120
	}

	end := time.Now()
	start := end.AddDate(0, 0, -days)
	bars := sc.fetcher.GetHistoricalData(code, start, end, "daily", "qfq")

	bare := models.BareSymbol(models.NormalizeStockSymbol(code))
	summary := analysis.Summarize(bare, bars)
	if summary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not enough history for " + code})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// GetIndex returns up to a year of bars for one market index
// GET /api/v1/indices/:code
func (sc *StockController) GetIndex(c *gin.Context) {
	code := c.Param("code")
	bars := sc.fetcher.GetIndexData(code)
	if len(bars) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no index data for " + code})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": models.BareSymbol(models.NormalizeIndexSymbol(code)), "data": bars})
}
