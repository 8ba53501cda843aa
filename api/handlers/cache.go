package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/farm-bi/pkg/models"
)

type CacheAdmin interface {
	InvalidatePattern(ctx context.Context, pattern string) (int64, error)
	Sweep(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (models.CacheStats, error)
}

type CacheHandler struct {
	cache CacheAdmin
}

func NewCacheHandler(cache CacheAdmin) *CacheHandler {
	return &CacheHandler{cache: cache}
}

// Invalidate removes entries matching ?pattern= (* and ? wildcards).
func (h *CacheHandler) Invalidate(c *gin.Context) {
	pattern := c.Query("pattern")
	if pattern == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter pattern is required"})
		return
	}

	n, err := h.cache.InvalidatePattern(c.Request.Context(), pattern)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pattern": pattern, "removed": n})
}

func (h *CacheHandler) Sweep(c *gin.Context) {
	n, err := h.cache.Sweep(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

func (h *CacheHandler) Stats(c *gin.Context) {
	stats, err := h.cache.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
