//go:build !integration

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInstrument(t *testing.T) {
	e := echo.New()
	e.GET("/ok/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, Instrument())
	e.GET("/missing/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "missing")
	}, Instrument())

	for _, path := range []string{"/ok/a", "/ok/b", "/missing/a"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(DistributionRequestTotal.WithLabelValues("/ok/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(DistributionRequestTotal.WithLabelValues("/missing/:id", "404")))
}
