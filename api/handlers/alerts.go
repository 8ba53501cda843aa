package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/farm-bi/pkg/models"
)

type AlertService interface {
	EvaluateAll(ctx context.Context, ref time.Time, candidates ...*models.Alert) ([]*models.Alert, error)
	Persist(ctx context.Context, alerts []*models.Alert) (int, error)
	Active(ctx context.Context, priority models.AlertPriority) ([]models.Alert, error)
}

type AlertHandler struct {
	alerts AlertService
	now    func() time.Time
}

func NewAlertHandler(alerts AlertService, now func() time.Time) *AlertHandler {
	if now == nil {
		now = time.Now
	}
	return &AlertHandler{alerts: alerts, now: now}
}

func (h *AlertHandler) Active(c *gin.Context) {
	priority := models.AlertPriority(c.Query("priority"))
	if priority != "" && !priority.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "priority must be baja, media or alta"})
		return
	}

	active, err := h.alerts.Active(c.Request.Context(), priority)
	if err != nil {
		respondError(c, err)
		return
	}
	if active == nil {
		active = []models.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  active,
		"count": len(active),
	})
}

type EvaluateRequest struct {
	ReferenceDate string `json:"reference_date"`
	Persist       bool   `json:"persist"`
}

// Evaluate runs every rule at the reference date (default today). Rule
// failures are reported next to the alerts the other rules produced.
func (h *AlertHandler) Evaluate(c *gin.Context) {
	var req EvaluateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	ref := h.now()
	if req.ReferenceDate != "" {
		parsed, err := time.Parse("2006-01-02", req.ReferenceDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reference_date must be YYYY-MM-DD"})
			return
		}
		ref = parsed
	}

	ctx := c.Request.Context()
	alerts, evalErr := h.alerts.EvaluateAll(ctx, ref)
	if alerts == nil {
		alerts = []*models.Alert{}
	}

	resp := gin.H{
		"reference_date": models.FormatDate(ref),
		"data":           alerts,
		"count":          len(alerts),
	}
	if evalErr != nil {
		resp["errors"] = evalErr.Error()
	}

	if req.Persist {
		inserted, err := h.alerts.Persist(ctx, alerts)
		resp["inserted"] = inserted
		if err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}
