package handlers

import (
	"net/http"
	"strconv"
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

const rankingCacheTTL = time.Minute

type RankingHandler struct {
	ranker *services.RankingService
	cache  *database.Cache
	logger *logrus.Logger
}

func NewRankingHandler(ranker *services.RankingService, cache *database.Cache, logger *logrus.Logger) *RankingHandler {
	return &RankingHandler{
		ranker: ranker,
		cache:  cache,
		logger: logger,
	}
}

// HandleTrendingModels returns the latest trending metrics for a period.
func (h *RankingHandler) HandleTrendingModels(c *gin.Context) {
	period := models.TimePeriod(c.DefaultQuery("period", string(models.PeriodDay)))
	if !period.Valid() {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid period (want hour, day or week)", nil)
		return
	}

	ctx := c.Request.Context()
	if h.cache != nil {
		if cached, err := h.cache.GetCachedTrendingModels(ctx, period); err == nil {
			utils.SuccessResponse(c, http.StatusOK, "Trending models retrieved", cached)
			return
		}
	}

	views, err := h.ranker.GetTrendingModels(period, parseLimit(c, 10))
	if err != nil {
		h.logger.WithError(err).Error("Failed to load trending models")
		utils.ErrorResponse(c, faults.HTTPStatus(faults.KindOf(err)), "Failed to load trending models", err)
		return
	}

	if h.cache != nil {
		if err := h.cache.CacheTrendingModels(ctx, period, views, rankingCacheTTL); err != nil {
			h.logger.WithError(err).Warn("Failed to cache trending models")
		}
	}

	utils.SuccessResponse(c, http.StatusOK, "Trending models retrieved", views)
}

// HandleLeaderboard returns the global leaderboard, overall or trending.
func (h *RankingHandler) HandleLeaderboard(c *gin.Context) {
	rankingType := models.RankingType(c.DefaultQuery("type", string(models.RankingOverall)))
	if rankingType != models.RankingOverall && rankingType != models.RankingTrending {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid leaderboard type (want overall or trending)", nil)
		return
	}

	ctx := c.Request.Context()
	if h.cache != nil {
		if cached, err := h.cache.GetCachedLeaderboard(ctx, rankingType); err == nil {
			utils.SuccessResponse(c, http.StatusOK, "Leaderboard retrieved", cached)
			return
		}
	}

	views, err := h.ranker.GlobalLeaderboard(rankingType, parseLimit(c, 10))
	if err != nil {
		h.logger.WithError(err).Error("Failed to compute leaderboard")
		utils.ErrorResponse(c, faults.HTTPStatus(faults.KindOf(err)), "Failed to compute leaderboard", err)
		return
	}

	if h.cache != nil {
		if err := h.cache.CacheLeaderboard(ctx, rankingType, views, rankingCacheTTL); err != nil {
			h.logger.WithError(err).Warn("Failed to cache leaderboard")
		}
	}

	utils.SuccessResponse(c, http.StatusOK, "Leaderboard retrieved", views)
}

// HandlePersonalizedRankings returns the caller's own ranking. Requires an
// identified caller.
func (h *RankingHandler) HandlePersonalizedRankings(c *gin.Context) {
	userID := middleware.UserIDFrom(c)
	if userID == nil {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Personalized rankings require identification", nil)
		return
	}

	ctx := c.Request.Context()
	if h.cache != nil {
		if cached, err := h.cache.GetCachedPersonalizedRankings(ctx, *userID); err == nil {
			utils.SuccessResponse(c, http.StatusOK, "Personalized rankings retrieved", cached)
			return
		}
	}

	views, err := h.ranker.PersonalizedRanking(*userID, parseLimit(c, 10))
	if err != nil {
		h.logger.WithError(err).Error("Failed to compute personalized rankings")
		utils.ErrorResponse(c, faults.HTTPStatus(faults.KindOf(err)), "Failed to compute personalized rankings", err)
		return
	}

	if h.cache != nil {
		if err := h.cache.CachePersonalizedRankings(ctx, *userID, views, rankingCacheTTL); err != nil {
			h.logger.WithError(err).Warn("Failed to cache personalized rankings")
		}
	}

	utils.SuccessResponse(c, http.StatusOK, "Personalized rankings retrieved", views)
}

func parseLimit(c *gin.Context, fallback int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(fallback)))
	if err != nil || limit <= 0 {
		return fallback
	}
	if limit > 100 {
		return 100
	}
	return limit
}
