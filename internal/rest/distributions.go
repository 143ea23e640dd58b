package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"prebidOptimizer/domain"
	"prebidOptimizer/pkg/logger"

	"github.com/AMFarhan21/fres"
	"github.com/labstack/echo/v4"
)

type (
	DistributionCache interface {
		GetDistributions(ctx context.Context, configID string) (*domain.DistributionSet, error)
	}

	RunReader interface {
		LatestRun(ctx context.Context, configID string) (*domain.OptimizerRun, error)
		ListRuns(ctx context.Context, configID string, limit int) ([]domain.OptimizerRun, error)
	}

	DistributionHandler struct {
		cache   DistributionCache
		runs    RunReader
		timeout time.Duration
	}
)

// NewDistributionHandler accepts a nil cache; lookups then go straight to
// the run table.
func NewDistributionHandler(cache DistributionCache, runs RunReader) *DistributionHandler {
	return &DistributionHandler{
		cache:   cache,
		runs:    runs,
		timeout: 5 * time.Second,
	}
}

// GET /api/v1/distributions/:config_id
func (h *DistributionHandler) GetDistributions(c echo.Context) error {
	configID := c.Param("config_id")
	if configID == "" {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "config_id is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	if h.cache != nil {
		set, err := h.cache.GetDistributions(ctx, configID)
		if err == nil {
			return c.JSON(http.StatusOK, fres.Response.StatusOK(set))
		}
		if !errors.Is(err, domain.ErrDistributionNotFound) {
			logger.Warn("Distribution cache unavailable, reading run table", "config_id", configID, "error", err)
		}
	}

	run, err := h.runs.LatestRun(ctx, configID)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			return c.JSON(http.StatusNotFound, ResponseError{Message: "no distributions for config " + configID})
		}
		logger.Error("Failed to load latest run", "config_id", configID, "error", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: "failed to load distributions"})
	}

	set := run.Distributions().Reduce()
	return c.JSON(http.StatusOK, fres.Response.StatusOK(set))
}
