package router

import (
	"prebidOptimizer/app/echo-server/metrics"
	"prebidOptimizer/internal/middleware"
	"prebidOptimizer/internal/rest"

	"github.com/labstack/echo/v4"
)

func SetDistributionRoutes(api *echo.Group, handler *rest.DistributionHandler) {
	distributions := api.Group("/distributions", metrics.Instrument())
	distributions.GET("/:config_id", handler.GetDistributions)
}

func SetAdminRoutes(api *echo.Group, handler *rest.AdminHandler) {
	admin := api.Group("/admin", middleware.AuthMiddleware(), middleware.AdminOnly())

	admin.GET("/runs/:config_id", handler.ListRuns)
	admin.POST("/runs", handler.TriggerRun)
}
