package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/polyquery/polyquery/internal/database"
	"github.com/polyquery/polyquery/internal/faults"
	"github.com/polyquery/polyquery/internal/models"
	"github.com/polyquery/polyquery/internal/repository"
)

// TrackingService is the interaction recorder: it persists the write-once
// interaction records (searches, results, clicks, feedback) and keeps the
// per-model counters current. Every counter mutation is a single atomic
// row update in the store.
type TrackingService struct {
	repos        *repository.RepositoryManager
	cache        *database.Cache
	displayNames map[string]string
	logger       *logrus.Logger
}

func NewTrackingService(
	repos *repository.RepositoryManager,
	cache *database.Cache,
	displayNames map[string]string,
	logger *logrus.Logger,
) *TrackingService {
	return &TrackingService{
		repos:        repos,
		cache:        cache,
		displayNames: displayNames,
		logger:       logger,
	}
}

// RecordSearch creates the search row and bumps each dispatched model's
// search counter.
func (s *TrackingService) RecordSearch(queryText string, modelIDs []string) (*models.Search, error) {
	search := &models.Search{QueryText: queryText}
	if err := s.repos.Search.Create(search); err != nil {
		return nil, faults.New(faults.KindInfrastructure, "failed to persist search", err)
	}

	for _, modelID := range modelIDs {
		if err := s.repos.ModelStat.IncrementSearches(modelID); err != nil {
			s.logger.WithError(err).WithField("model_id", modelID).Error("Failed to increment search count")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"search_id": search.ID,
		"providers": len(modelIDs),
	}).Info("Search recorded")

	return search, nil
}

// RecordResult persists one provider's result for a search.
func (s *TrackingService) RecordResult(result *models.Result) error {
	if err := s.repos.Result.Create(result); err != nil {
		return faults.New(faults.KindInfrastructure, "failed to persist result", err)
	}
	return nil
}

// RecordClick looks up the clicked result's owning model, bumps its click
// counter and returns the refreshed stat set so callers can reflect the
// change without another read.
func (s *TrackingService) RecordClick(resultID uint, userID *uint) (*models.Click, []models.ModelStatView, error) {
	result, err := s.repos.Result.GetByID(resultID)
	if err != nil {
		return nil, nil, faults.New(faults.KindValidation, fmt.Sprintf("result %d not found", resultID), err)
	}

	click := &models.Click{ResultID: resultID, UserID: userID}
	if err := s.repos.Click.Create(click); err != nil {
		return nil, nil, faults.New(faults.KindInfrastructure, "failed to persist click", err)
	}

	if err := s.repos.ModelStat.IncrementClicks(result.ModelID); err != nil {
		return nil, nil, faults.New(faults.KindInfrastructure, "failed to increment click count", err)
	}

	s.invalidateCaches(userID)

	s.logger.WithFields(logrus.Fields{
		"result_id": resultID,
		"model_id":  result.ModelID,
	}).Info("Click recorded")

	stats, err := s.GetModelStats()
	if err != nil {
		return nil, nil, err
	}
	return click, stats, nil
}

// RecordFeedback stores a thumbs up/down. Identified users get exactly one
// row per result (a later submission replaces the earlier one); anonymous
// feedback always appends.
func (s *TrackingService) RecordFeedback(resultID uint, userID *uint, feedbackType models.FeedbackType) (*models.Feedback, error) {
	if !feedbackType.Valid() {
		return nil, faults.New(faults.KindValidation, fmt.Sprintf("invalid feedback type: %s", feedbackType), nil)
	}

	if _, err := s.repos.Result.GetByID(resultID); err != nil {
		return nil, faults.New(faults.KindValidation, fmt.Sprintf("result %d not found", resultID), err)
	}

	feedback := &models.Feedback{
		ResultID:     resultID,
		UserID:       userID,
		FeedbackType: feedbackType,
	}

	var err error
	if userID != nil {
		err = s.repos.Feedback.Upsert(feedback)
	} else {
		err = s.repos.Feedback.Insert(feedback)
	}
	if err != nil {
		return nil, faults.New(faults.KindInfrastructure, "failed to persist feedback", err)
	}

	s.invalidateCaches(userID)

	s.logger.WithFields(logrus.Fields{
		"result_id":     resultID,
		"feedback_type": feedbackType,
		"identified":    userID != nil,
	}).Info("Feedback recorded")

	return feedback, nil
}

// GetModelStats returns every tracked model's raw counters annotated with
// the derived click-share percentage and display name. Percentages are
// computed here at read time, never stored.
func (s *TrackingService) GetModelStats() ([]models.ModelStatView, error) {
	stats, err := s.repos.ModelStat.GetAll()
	if err != nil {
		return nil, faults.New(faults.KindInfrastructure, "failed to load model stats", err)
	}
	return s.annotate(stats), nil
}

func (s *TrackingService) annotate(stats []models.ModelStat) []models.ModelStatView {
	var totalClicks int64
	for _, stat := range stats {
		totalClicks += stat.ClickCount
	}

	views := make([]models.ModelStatView, 0, len(stats))
	for _, stat := range stats {
		views = append(views, models.ModelStatView{
			ModelStat:   stat,
			Percentage:  ClickPercentage(stat.ClickCount, totalClicks),
			DisplayName: s.displayName(stat.ModelID),
		})
	}
	return views
}

func (s *TrackingService) displayName(modelID string) string {
	if name, ok := s.displayNames[modelID]; ok {
		return name
	}
	return modelID
}

func (s *TrackingService) invalidateCaches(userID *uint) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cache.InvalidateInteractionCaches(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate interaction caches")
	}
	if userID != nil {
		if err := s.cache.InvalidatePersonalized(ctx, *userID); err != nil {
			s.logger.WithError(err).Warn("Failed to invalidate personalized cache")
		}
	}
}

// ClickPercentage is the rounded share of total clicks, 0 when nothing has
// been clicked yet.
func ClickPercentage(clicks, totalClicks int64) int {
	if totalClicks == 0 {
		return 0
	}
	return int(math.Round(float64(clicks) / float64(totalClicks) * 100))
}
