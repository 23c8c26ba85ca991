package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/eonurk/finance-bro/controllers"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, analysisController *controllers.AnalysisController, scannerController *controllers.ScannerController) {
	// API v1 group
	api := router.Group("/api/v1")
	{
		// Per-symbol analysis routes
		stocks := api.Group("/stocks")
		{
			stocks.GET("/:symbol/indicators", analysisController.GetIndicators)
			stocks.GET("/:symbol/signals", analysisController.GetSignals)
			stocks.GET("/:symbol/backtest", analysisController.GetBacktest)
		}

		// Notification feed routes
		notifications := api.Group("/notifications")
		{
			notifications.GET("", scannerController.GetNotifications)
			notifications.GET("/ws", scannerController.HandleWebSocket)
			notifications.GET("/stream/status", scannerController.GetStreamStatus)
		}

		// Scanner control routes
		scan := api.Group("/scanner")
		{
			scan.GET("/config", scannerController.GetConfig)
			scan.PUT("/config", scannerController.UpdateConfig)
			scan.POST("/run", scannerController.RunScan)
		}
	}
}
