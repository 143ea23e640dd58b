package middleware

import (
	"errors"
	"net/http"

	"prebidOptimizer/business/job"
	"prebidOptimizer/business/optimizer"
	"prebidOptimizer/business/reward"
	"prebidOptimizer/domain"
	"prebidOptimizer/pkg/logger"
	jsonres "prebidOptimizer/pkg/response"

	"github.com/labstack/echo/v4"
)

// ErrorHandler renders errors that handlers return instead of writing
// themselves.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, jsonres.Error(code, message, nil))
	}
	if err != nil {
		logger.Error("Failed to write error response", "error", err)
	}
}

func classify(err error) (int, string, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return he.Code, codeFor(he.Code), msg
	}

	switch {
	case errors.Is(err, domain.ErrRunNotFound), errors.Is(err, domain.ErrDistributionNotFound):
		return http.StatusNotFound, codeFor(http.StatusNotFound), err.Error()
	case errors.Is(err, job.ErrInvalidRequest),
		errors.Is(err, optimizer.ErrInvalidConfig),
		errors.Is(err, optimizer.ErrInvalidWindow),
		errors.Is(err, reward.ErrUnknownModel):
		return http.StatusBadRequest, codeFor(http.StatusBadRequest), err.Error()
	}

	return http.StatusInternalServerError, codeFor(http.StatusInternalServerError), "internal server error"
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	}
	if status >= http.StatusInternalServerError {
		return "INTERNAL_SERVER_ERROR"
	}
	return "ERROR"
}
