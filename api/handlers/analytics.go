package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/farm-bi/pkg/models"
)

type AnomalyDetector interface {
	Detect(ctx context.Context, asOf models.Period) ([]models.AnomalyResult, error)
}

type PatternDetector interface {
	Detect(ctx context.Context, asOf models.Period) ([]models.PatternInsight, error)
}

type AnalyticsHandler struct {
	anomalies AnomalyDetector
	patterns  PatternDetector
	now       func() time.Time
}

func NewAnalyticsHandler(anomalies AnomalyDetector, patterns PatternDetector, now func() time.Time) *AnalyticsHandler {
	if now == nil {
		now = time.Now
	}
	return &AnalyticsHandler{anomalies: anomalies, patterns: patterns, now: now}
}

// Anomalies defaults to the previous month, the latest one that can be closed
// and have a snapshot.
func (h *AnalyticsHandler) Anomalies(c *gin.Context) {
	asOf, ok := periodQuery(c, "as_of", models.PeriodOf(h.now()).Prev())
	if !ok {
		return
	}
	results, err := h.anomalies.Detect(c.Request.Context(), asOf)
	if err != nil {
		respondError(c, err)
		return
	}
	if results == nil {
		results = []models.AnomalyResult{}
	}
	c.JSON(http.StatusOK, gin.H{"as_of": asOf, "data": results, "count": len(results)})
}

func (h *AnalyticsHandler) Patterns(c *gin.Context) {
	asOf, ok := periodQuery(c, "as_of", models.PeriodOf(h.now()).Prev())
	if !ok {
		return
	}
	insights, err := h.patterns.Detect(c.Request.Context(), asOf)
	if err != nil {
		respondError(c, err)
		return
	}
	if insights == nil {
		insights = []models.PatternInsight{}
	}
	c.JSON(http.StatusOK, gin.H{"as_of": asOf, "data": insights, "count": len(insights)})
}
