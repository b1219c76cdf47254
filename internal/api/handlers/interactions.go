package handlers

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/polyquery/polyquery/internal/database"
	"github.com/polyquery/polyquery/internal/faults"
	"github.com/polyquery/polyquery/internal/middleware"
	"github.com/polyquery/polyquery/internal/models"
	"github.com/polyquery/polyquery/internal/services"
	"github.com/polyquery/polyquery/pkg/utils"
)

const statsCacheTTL = 30 * time.Second

type InteractionHandler struct {
	tracker *services.TrackingService
	cache   *database.Cache
	logger  *logrus.Logger
}

func NewInteractionHandler(tracker *services.TrackingService, cache *database.Cache, logger *logrus.Logger) *InteractionHandler {
	return &InteractionHandler{
		tracker: tracker,
		cache:   cache,
		logger:  logger,
	}
}

// HandleClick records a click on a result and returns the refreshed stats.
func (h *InteractionHandler) HandleClick(c *gin.Context) {
	var req models.ClickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid click format", err)
		return
	}

	userID := req.UserID
	if userID == nil {
		userID = middleware.UserIDFrom(c)
	}

	click, stats, err := h.tracker.RecordClick(req.ResultID, userID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to record click")
		utils.ErrorResponse(c, faults.HTTPStatus(faults.KindOf(err)), "Failed to record click", err)
		return
	}

	c.JSON(http.StatusOK, models.ClickResponse{
		Success: true,
		Click:   *click,
		Stats:   stats,
	})
}

// HandleFeedback records a thumbs up/down on a result.
func (h *InteractionHandler) HandleFeedback(c *gin.Context) {
	var req models.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid feedback format", err)
		return
	}

	feedback, err := h.tracker.RecordFeedback(req.ResultID, middleware.UserIDFrom(c), models.FeedbackType(req.FeedbackType))
	if err != nil {
		h.logger.WithError(err).Error("Failed to record feedback")
		utils.ErrorResponse(c, faults.HTTPStatus(faults.KindOf(err)), "Failed to record feedback", err)
		return
	}

	c.JSON(http.StatusCreated, models.FeedbackResponse{
		Success:  true,
		Feedback: *feedback,
	})
}

// HandleModelStats returns every model's counters with click-share
// percentages, cache-aside with a short TTL.
func (h *InteractionHandler) HandleModelStats(c *gin.Context) {
	ctx := c.Request.Context()

	if h.cache != nil {
		if cached, err := h.cache.GetCachedModelStats(ctx); err == nil {
			h.logger.Debug("Model stats served from cache")
			utils.SuccessResponse(c, http.StatusOK, "Model stats retrieved", cached)
			return
		}
	}

	stats, err := h.tracker.GetModelStats()
	if err != nil {
		h.logger.WithError(err).Error("Failed to load model stats")
		utils.ErrorResponse(c, faults.HTTPStatus(faults.KindOf(err)), "Failed to load model stats", err)
		return
	}

	if h.cache != nil {
		if err := h.cache.CacheModelStats(ctx, stats, statsCacheTTL); err != nil {
			h.logger.WithError(err).Warn("Failed to cache model stats")
		}
	}

	utils.SuccessResponse(c, http.StatusOK, "Model stats retrieved", stats)
}

// HandleTopModels returns models ordered by click count.
func (h *InteractionHandler) HandleTopModels(c *gin.Context) {
	stats, err := h.tracker.GetModelStats()
	if err != nil {
		h.logger.WithError(err).Error("Failed to load model stats")
		utils.ErrorResponse(c, faults.HTTPStatus(faults.KindOf(err)), "Failed to load model stats", err)
		return
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].ClickCount != stats[j].ClickCount {
			return stats[i].ClickCount > stats[j].ClickCount
		}
		return stats[i].ModelID < stats[j].ModelID
	})

	limit := parseLimit(c, 10)
	if len(stats) > limit {
		stats = stats[:limit]
	}

	utils.SuccessResponse(c, http.StatusOK, "Top models retrieved", stats)
}
