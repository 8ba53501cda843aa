package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/farm-bi/pkg/models"
)

type SnapshotReader interface {
	GetSnapshot(ctx context.Context, p models.Period) (*models.Snapshot, error)
	GetSnapshotsInRange(ctx context.Context, start, end models.Period) ([]models.Snapshot, error)
}

type SnapshotHandler struct {
	snapshots SnapshotReader
}

func NewSnapshotHandler(snapshots SnapshotReader) *SnapshotHandler {
	return &SnapshotHandler{snapshots: snapshots}
}

func (h *SnapshotHandler) Get(c *gin.Context) {
	period, ok := periodParam(c)
	if !ok {
		return
	}

	snap, err := h.snapshots.GetSnapshot(c.Request.Context(), period)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *SnapshotHandler) Range(c *gin.Context) {
	if c.Query("from") == "" || c.Query("to") == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameters from and to are required"})
		return
	}
	from, ok := periodQuery(c, "from", models.Period{})
	if !ok {
		return
	}
	to, ok := periodQuery(c, "to", models.Period{})
	if !ok {
		return
	}

	snaps, err := h.snapshots.GetSnapshotsInRange(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	if snaps == nil {
		snaps = []models.Snapshot{}
	}
	c.JSON(http.StatusOK, gin.H{
		"from":  from,
		"to":    to,
		"data":  snaps,
		"count": len(snaps),
	})
}
