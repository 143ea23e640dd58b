package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"prebidOptimizer/business/job"
	"prebidOptimizer/domain"
	"prebidOptimizer/pkg/config"
	"prebidOptimizer/pkg/logger"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

const runTimestampLayout = "2006-01-02 15:04:05"

type (
	RunTrigger interface {
		Run(ctx context.Context, req job.RunRequest) (*domain.OptimizerRun, error)
	}

	AdminHandler struct {
		runs       RunReader
		trigger    RunTrigger
		candidates config.Candidates
		defaults   config.OptimizerConfig
		validate   *validator.Validate
		timeout    time.Duration
	}

	// TriggerRunRequest overrides the server defaults for a single run.
	// Omitted candidates are resolved from the candidates file.
	TriggerRunRequest struct {
		ConfigID       string           `json:"config_id" validate:"required"`
		Env            string           `json:"env"`
		BucketSize     int              `json:"bucket_size" validate:"gte=0"`
		HourWindow     int              `json:"hour_window" validate:"gte=0"`
		DataDelayHour  *int             `json:"data_delay_hour" validate:"omitempty,gte=0"`
		ModelType      string           `json:"model_type" validate:"omitempty,oneof=default beta_lognormal gamma"`
		Candidates     map[string][]any `json:"candidates"`
		RunTimestamp   string           `json:"run_timestamp"`
		MinProbability *float64         `json:"min_probability"`
		Seed           *uint64          `json:"seed"`
		DryRun         bool             `json:"dry_run"`
	}
)

func NewAdminHandler(runs RunReader, trigger RunTrigger, candidates config.Candidates, defaults config.OptimizerConfig) *AdminHandler {
	return &AdminHandler{
		runs:       runs,
		trigger:    trigger,
		candidates: candidates,
		defaults:   defaults,
		validate:   validator.New(),
		timeout:    defaults.RunTimeout,
	}
}

// GET /api/v1/admin/runs/:config_id?limit=20
func (h *AdminHandler) ListRuns(c echo.Context) error {
	configID := c.Param("config_id")

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid limit"})
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	runs, err := h.runs.ListRuns(ctx, configID, limit)
	if err != nil {
		logger.Error("Failed to list runs", "config_id", configID, "error", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: "failed to list runs"})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(runs))
}

// POST /api/v1/admin/runs
func (h *AdminHandler) TriggerRun(c echo.Context) error {
	var body TriggerRunRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&body); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	req, err := h.buildRequest(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx := c.Request().Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	started := time.Now()
	run, err := h.trigger.Run(ctx, req)
	if err != nil {
		// mapped to a status by middleware.ErrorHandler
		return err
	}

	logger.Info("Run triggered over HTTP",
		"config_id", run.ConfigID,
		"run_id", run.ID,
		"elapsed", time.Since(started).String(),
	)
	return c.JSON(http.StatusCreated, fres.Response.StatusCreated(run))
}

func (h *AdminHandler) buildRequest(body TriggerRunRequest) (job.RunRequest, error) {
	req := job.RunRequest{
		Env:            firstNonEmpty(body.Env, h.defaults.Env),
		ConfigID:       body.ConfigID,
		BucketSize:     firstPositive(body.BucketSize, h.defaults.BucketSize),
		HourWindow:     firstPositive(body.HourWindow, h.defaults.HourWindow),
		DataDelayHour:  h.defaults.DataDelayHour,
		ModelType:      firstNonEmpty(body.ModelType, h.defaults.ModelType),
		Candidates:     body.Candidates,
		MinProbability: body.MinProbability,
		Seed:           body.Seed,
		Parallelism:    h.defaults.Parallelism,
		DryRun:         body.DryRun,
	}
	if body.DataDelayHour != nil {
		req.DataDelayHour = *body.DataDelayHour
	}
	if req.MinProbability == nil {
		minP := h.defaults.MinProbability
		req.MinProbability = &minP
	}
	if len(req.Candidates) == 0 {
		if cands, ok := h.candidates.For(body.ConfigID); ok {
			req.Candidates = cands
		}
	}
	if body.RunTimestamp != "" {
		ts, err := time.ParseInLocation(runTimestampLayout, body.RunTimestamp, time.UTC)
		if err != nil {
			return job.RunRequest{}, err
		}
		req.RunTimestamp = ts
	}
	return req, nil
}

func firstNonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func firstPositive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
