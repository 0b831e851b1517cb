package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ashare_backend/services/screener"
)

// ScreenerController runs screening strategies over the cached universe
type ScreenerController struct {
	screener *screener.Screener
}

// NewScreenerController creates a screener controller
func NewScreenerController(s *screener.Screener) *ScreenerController {
	return &ScreenerController{screener: s}
}

// ListStrategies names the available strategies
// GET /api/v1/screener/strategies
func (sc *ScreenerController) ListStrategies(c *gin.Context) {
	names := make([]string, 0, len(screener.Strategies))
	for name := range screener.Strategies {
		names = append(names, name)
	}
	c.JSON(http.StatusOK, gin.H{"strategies": names})
}

// Run applies one strategy, or a weighted combination when weights are given
// POST /api/v1/screener/run
// {"strategy": "macd_golden_cross", "lookback_days": 90, "limit": 200}
// {"weights": {"macd_golden_cross": 0.4, "rsi_oversold": 0.6}}
func (sc *ScreenerController) Run(c *gin.Context) {
	var req struct {
		Strategy     string             `json:"strategy"`
		Weights      map[string]float64 `json:"weights"`
		LookbackDays int                `json:"lookback_days"`
		Limit        int                `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(req.Weights) > 0 {
		weights := make(map[string]decimal.Decimal, len(req.Weights))
		for name, w := range req.Weights {
			weights[name] = decimal.NewFromFloat(w)
		}
		matches := sc.screener.RunWeighted(weights, req.LookbackDays, req.Limit)
		c.JSON(http.StatusOK, gin.H{"data": matches, "count": len(matches)})
		return
	}

	strategy, ok := screener.Strategies[req.Strategy]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown strategy " + req.Strategy})
		return
	}
	matches := sc.screener.Run(strategy, req.LookbackDays, req.Limit)
	c.JSON(http.StatusOK, gin.H{"data": matches, "count": len(matches)})
}
