package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/farm-bi/internal/logger"
	"github.com/OldStager01/farm-bi/pkg/models"
	"github.com/OldStager01/farm-bi/pkg/validation"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidPeriod), errors.Is(err, validation.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyClosed):
		return http.StatusConflict
	case errors.Is(err, models.ErrPeriodDataMissing):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps domain errors to statuses. Internal failures are
// logged and reported without detail.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).
			WithField("route", c.FullPath()).
			Errorf("%s failed: %v", c.Request.Method, err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// periodParam reads the :year and :month path parameters.
func periodParam(c *gin.Context) (models.Period, bool) {
	year, yerr := strconv.Atoi(c.Param("year"))
	month, merr := strconv.Atoi(c.Param("month"))
	p := models.NewPeriod(year, month)
	if yerr != nil || merr != nil || !p.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period"})
		return models.Period{}, false
	}
	return p, true
}

// periodQuery reads a YYYY-MM query value, falling back to def when absent.
func periodQuery(c *gin.Context, name string, def models.Period) (models.Period, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	p, err := models.ParsePeriod(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.Period{}, false
	}
	return p, true
}
