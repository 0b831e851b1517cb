package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"ashare_backend/controllers"
	"ashare_backend/middleware"
	"ashare_backend/scheduler"
	"ashare_backend/services/datafetcher"
	"ashare_backend/services/realtime"
	"ashare_backend/services/screener"
)

// SetupRoutes wires the API surface. Read endpoints are public; sync and
// cache control require an operator token.
func SetupRoutes(router *gin.Engine, db *gorm.DB, fetcher *datafetcher.DataFetcher, sched *scheduler.Scheduler, hub *realtime.Hub) {
	stockController := controllers.NewStockController(fetcher)
	syncController := controllers.NewSyncController(sched, fetcher)
	screenerController := controllers.NewScreenerController(screener.NewScreener(fetcher))
	authController := controllers.NewAuthController(db)

	api := router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		auth.Use(middleware.LoginRateLimitMiddleware())
		{
			auth.POST("/login", authController.Login)
		}

		stocks := api.Group("/stocks")
		{
			stocks.GET("", stockController.GetStocks)
			stocks.GET("/:code/history", stockController.GetHistory)
			stocks.GET("/:code/quote", stockController.GetQuote)
			stocks.GET("/:code/indicators", stockController.GetIndicators)
			stocks.POST("/quotes", stockController.GetBatchQuotes)
		}

		api.GET("/indices/:code", stockController.GetIndex)

		screenerGroup := api.Group("/screener")
		{
			screenerGroup.GET("/strategies", screenerController.ListStrategies)
			screenerGroup.POST("/run", screenerController.Run)
		}

		sync := api.Group("/sync")
		{
			sync.GET("/status", syncController.GetStatus)

			protected := sync.Group("")
			protected.Use(middleware.JWTAuthMiddleware())
			{
				protected.POST("/trigger/:kind", syncController.TriggerSync)
				protected.POST("/start", syncController.Start)
				protected.POST("/stop", syncController.Stop)
				protected.PUT("/config", syncController.UpdateConfig)
			}
		}

		cacheGroup := api.Group("/cache")
		{
			cacheGroup.GET("/info", syncController.GetCacheInfo)

			protected := cacheGroup.Group("")
			protected.Use(middleware.JWTAuthMiddleware())
			{
				protected.DELETE("", syncController.ClearCache)
			}
		}
	}

	if hub != nil {
		router.GET("/ws/quotes", func(c *gin.Context) {
			hub.HandleWebSocket(c.Writer, c.Request)
		})
	}
}
