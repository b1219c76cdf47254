package services

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/polyquery/polyquery/internal/faults"
	"github.com/polyquery/polyquery/internal/models"
	"github.com/polyquery/polyquery/internal/repository"
)

// PersonalizedLookback is how far back user interactions count toward a
// personalized ranking.
const PersonalizedLookback = 30 * 24 * time.Hour

// Leaderboard score weights.
const (
	leaderboardClickWeight    = 1.0
	leaderboardPositiveWeight = 2.0
	leaderboardNegativeWeight = 0.5
)

// RankingService derives trending metrics and ranking snapshots from the
// raw interaction records. Everything it writes is recomputable; dropping
// a metric or snapshot loses nothing.
type RankingService struct {
	repos        *repository.RepositoryManager
	displayNames map[string]string
	logger       *logrus.Logger
	now          func() time.Time
}

func NewRankingService(
	repos *repository.RepositoryManager,
	displayNames map[string]string,
	logger *logrus.Logger,
) *RankingService {
	return &RankingService{
		repos:        repos,
		displayNames: displayNames,
		logger:       logger,
		now:          time.Now,
	}
}

// TrendScore is the momentum score for one window of interaction counts:
// the feedback sentiment balance damped by log-scaled volume. Zero when the
// window saw no interactions at all.
func TrendScore(agg models.InteractionAggregate) float64 {
	total := agg.TotalSearches + agg.TotalClicks
	if total == 0 {
		return 0
	}
	posRatio := float64(agg.PositiveFeedback) / float64(total)
	negRatio := float64(agg.NegativeFeedback) / float64(total)
	return (posRatio - negRatio) * math.Log(float64(total)+1)
}

// RecomputeTrending rebuilds the current window's trending metric for every
// model with activity in it. Windows are aligned to period boundaries, so
// repeated runs within the same window land on the same rows.
func (s *RankingService) RecomputeTrending(period models.TimePeriod) error {
	if !period.Valid() {
		return faults.New(faults.KindValidation, fmt.Sprintf("invalid time period: %s", period), nil)
	}

	now := s.now()
	window := period.Window()
	periodStart := now.Truncate(window)
	periodEnd := periodStart.Add(window)

	aggregates, err := s.repos.TrendingMetric.AggregateWindow(periodStart, now)
	if err != nil {
		return faults.New(faults.KindInfrastructure, "failed to aggregate interaction window", err)
	}

	for _, agg := range aggregates {
		metric := &models.TrendingMetric{
			ModelID:          agg.ModelID,
			TimePeriod:       period,
			PositiveFeedback: agg.PositiveFeedback,
			NegativeFeedback: agg.NegativeFeedback,
			TotalSearches:    agg.TotalSearches,
			TotalClicks:      agg.TotalClicks,
			TrendScore:       TrendScore(agg),
			PeriodStart:      periodStart,
			PeriodEnd:        periodEnd,
		}
		if err := s.repos.TrendingMetric.Upsert(metric); err != nil {
			return faults.New(faults.KindInfrastructure,
				fmt.Sprintf("failed to upsert trending metric for %s", agg.ModelID), err)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"period": period,
		"models": len(aggregates),
	}).Info("Trending metrics recomputed")

	return nil
}

// GetTrendingModels returns the latest window's metrics per model for a
// period, highest score first, annotated with a trend direction tag.
func (s *RankingService) GetTrendingModels(period models.TimePeriod, limit int) ([]models.TrendingModelView, error) {
	if !period.Valid() {
		return nil, faults.New(faults.KindValidation, fmt.Sprintf("invalid time period: %s", period), nil)
	}

	metrics, err := s.repos.TrendingMetric.GetByPeriod(period, limit)
	if err != nil {
		return nil, faults.New(faults.KindInfrastructure, "failed to load trending metrics", err)
	}

	views := make([]models.TrendingModelView, 0, len(metrics))
	for _, metric := range metrics {
		views = append(views, models.TrendingModelView{
			TrendingMetric: metric,
			Trending:       Direction(metric.TrendScore),
			DisplayName:    s.displayName(metric.ModelID),
		})
	}
	return views, nil
}

// Direction tags a trend score for display.
func Direction(score float64) models.TrendDirection {
	switch {
	case score > 0:
		return models.TrendUp
	case score < 0:
		return models.TrendDown
	default:
		return models.TrendStable
	}
}

// PersonalizedRanking ranks models by one user's own interactions over the
// lookback window. With no feedback anywhere in the window the score falls
// back to raw clicks. The snapshot is persisted before being returned.
func (s *RankingService) PersonalizedRanking(userID uint, limit int) ([]models.RankedModelView, error) {
	now := s.now()
	from := now.Add(-PersonalizedLookback)

	aggregates, err := s.repos.TrendingMetric.AggregateUserWindow(userID, from, now)
	if err != nil {
		return nil, faults.New(faults.KindInfrastructure, "failed to aggregate user interactions", err)
	}

	var hasFeedback bool
	for _, agg := range aggregates {
		if agg.Likes > 0 || agg.Dislikes > 0 {
			hasFeedback = true
			break
		}
	}

	scored := make([]scoredModel, 0, len(aggregates))
	for _, agg := range aggregates {
		score := PersonalizedScore(agg)
		if !hasFeedback {
			score = float64(agg.Clicks)
		}
		scored = append(scored, scoredModel{ModelID: agg.ModelID, Score: score})
	}

	rankings := rankModels(scored, models.RankingPersonalized, &userID, from, now)
	if err := s.repos.ModelRanking.Replace(models.RankingPersonalized, &userID, rankings); err != nil {
		return nil, faults.New(faults.KindInfrastructure, "failed to persist personalized rankings", err)
	}

	return s.annotateRankings(rankings, limit), nil
}

// PersonalizedScore weighs explicit feedback over clicks.
func PersonalizedScore(agg models.UserInteractionAggregate) float64 {
	return 2*float64(agg.Likes) + float64(agg.Clicks) - float64(agg.Dislikes)
}

// GlobalLeaderboard ranks all models either by all-time weighted
// interactions (overall) or by the latest day-window trend scores
// (trending). The snapshot is persisted before being returned.
func (s *RankingService) GlobalLeaderboard(rankingType models.RankingType, limit int) ([]models.RankedModelView, error) {
	now := s.now()

	var (
		scored      []scoredModel
		periodStart time.Time
	)

	switch rankingType {
	case models.RankingOverall:
		aggregates, err := s.repos.TrendingMetric.AggregateAllTime()
		if err != nil {
			return nil, faults.New(faults.KindInfrastructure, "failed to aggregate interactions", err)
		}
		for _, agg := range aggregates {
			scored = append(scored, scoredModel{ModelID: agg.ModelID, Score: LeaderboardScore(agg)})
		}
	case models.RankingTrending:
		metrics, err := s.repos.TrendingMetric.GetByPeriod(models.PeriodDay, 0)
		if err != nil {
			return nil, faults.New(faults.KindInfrastructure, "failed to load trending metrics", err)
		}
		for _, metric := range metrics {
			scored = append(scored, scoredModel{ModelID: metric.ModelID, Score: metric.TrendScore})
		}
		periodStart = now.Truncate(models.PeriodDay.Window())
	default:
		return nil, faults.New(faults.KindValidation, fmt.Sprintf("invalid ranking type: %s", rankingType), nil)
	}

	rankings := rankModels(scored, rankingType, nil, periodStart, now)
	if err := s.repos.ModelRanking.Replace(rankingType, nil, rankings); err != nil {
		return nil, faults.New(faults.KindInfrastructure, "failed to persist leaderboard", err)
	}

	return s.annotateRankings(rankings, limit), nil
}

// LeaderboardScore is the all-time weighted interaction score.
func LeaderboardScore(agg models.InteractionAggregate) float64 {
	return float64(agg.TotalClicks)*leaderboardClickWeight +
		float64(agg.PositiveFeedback)*leaderboardPositiveWeight -
		float64(agg.NegativeFeedback)*leaderboardNegativeWeight
}

type scoredModel struct {
	ModelID string
	Score   float64
}

// rankModels sorts by score descending, model ID ascending on ties, and
// assigns dense positions 1..K.
func rankModels(scored []scoredModel, rankingType models.RankingType, userID *uint, periodStart, periodEnd time.Time) []models.ModelRanking {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ModelID < scored[j].ModelID
	})

	rankings := make([]models.ModelRanking, 0, len(scored))
	for i, sm := range scored {
		rankings = append(rankings, models.ModelRanking{
			ModelID:      sm.ModelID,
			RankingType:  rankingType,
			UserID:       userID,
			Score:        sm.Score,
			RankPosition: i + 1,
			PeriodStart:  periodStart,
			PeriodEnd:    periodEnd,
		})
	}
	return rankings
}

func (s *RankingService) annotateRankings(rankings []models.ModelRanking, limit int) []models.RankedModelView {
	if limit > 0 && len(rankings) > limit {
		rankings = rankings[:limit]
	}
	views := make([]models.RankedModelView, 0, len(rankings))
	for _, ranking := range rankings {
		views = append(views, models.RankedModelView{
			ModelRanking: ranking,
			DisplayName:  s.displayName(ranking.ModelID),
		})
	}
	return views
}

func (s *RankingService) displayName(modelID string) string {
	if name, ok := s.displayNames[modelID]; ok {
		return name
	}
	return modelID
}
