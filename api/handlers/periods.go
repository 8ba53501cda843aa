package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/farm-bi/api/middleware"
	"github.com/OldStager01/farm-bi/internal/closing"
	"github.com/OldStager01/farm-bi/pkg/models"
	"github.com/OldStager01/farm-bi/pkg/validation"
)

type Closer interface {
	CloseMonth(ctx context.Context, req closing.CloseRequest) (*closing.Report, error)
	RegenerateSnapshot(ctx context.Context, p models.Period, actor string) (*closing.Report, error)
	ListCloses(ctx context.Context, year int) ([]models.PeriodSummary, error)
	Compare(ctx context.Context, a, b models.Period) (models.CloseComparison, error)
}

type PeriodHandler struct {
	closer Closer
}

func NewPeriodHandler(closer Closer) *PeriodHandler {
	return &PeriodHandler{closer: closer}
}

type CloseRequest struct {
	Notes string `json:"notes"`
}

// Close runs the monthly close. A hard failure answers with the error and
// the partial report.
func (h *PeriodHandler) Close(c *gin.Context) {
	period, ok := periodParam(c)
	if !ok {
		return
	}

	var req CloseRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	notes, err := validation.CleanNotes(req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	actor := middleware.GetActor(c)
	if err := validation.ValidateActor(actor); err != nil {
		respondError(c, err)
		return
	}

	report, err := h.closer.CloseMonth(c.Request.Context(), closing.CloseRequest{
		Period: period,
		Actor:  actor,
		Notes:  notes,
	})
	h.respondReport(c, report, err)
}

// Regenerate is the repair path for a closed period's snapshot.
func (h *PeriodHandler) Regenerate(c *gin.Context) {
	period, ok := periodParam(c)
	if !ok {
		return
	}
	actor := middleware.GetActor(c)
	if err := validation.ValidateActor(actor); err != nil {
		respondError(c, err)
		return
	}

	report, err := h.closer.RegenerateSnapshot(c.Request.Context(), period, actor)
	h.respondReport(c, report, err)
}

func (h *PeriodHandler) respondReport(c *gin.Context, report *closing.Report, err error) {
	if err == nil {
		c.JSON(http.StatusOK, report)
		return
	}
	if report == nil {
		respondError(c, err)
		return
	}
	c.JSON(statusFor(err), gin.H{"error": err.Error(), "report": report})
}

func (h *PeriodHandler) List(c *gin.Context) {
	year := 0
	if raw := c.Query("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
			return
		}
		year = y
	}

	closes, err := h.closer.ListCloses(c.Request.Context(), year)
	if err != nil {
		respondError(c, err)
		return
	}
	if closes == nil {
		closes = []models.PeriodSummary{}
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  closes,
		"count": len(closes),
	})
}

func (h *PeriodHandler) Compare(c *gin.Context) {
	if c.Query("a") == "" || c.Query("b") == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameters a and b are required"})
		return
	}
	a, ok := periodQuery(c, "a", models.Period{})
	if !ok {
		return
	}
	b, ok := periodQuery(c, "b", models.Period{})
	if !ok {
		return
	}

	cmp, err := h.closer.Compare(c.Request.Context(), a, b)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}
