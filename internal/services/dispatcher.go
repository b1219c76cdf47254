package services

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/polyquery/polyquery/internal/faults"
	"github.com/polyquery/polyquery/internal/models"
	"github.com/polyquery/polyquery/internal/provider"
	"github.com/polyquery/polyquery/internal/stream"
)

// MaxQueryLength caps accepted query text.
const MaxQueryLength = 2000

// providerQuerier is the slice of the provider client the dispatcher needs.
type providerQuerier interface {
	Query(ctx context.Context, endpoint provider.Endpoint, prompt string) provider.Result
}

// interactionStore is the slice of the tracking service the dispatcher needs.
type interactionStore interface {
	RecordSearch(queryText string, modelIDs []string) (*models.Search, error)
	RecordResult(result *models.Result) error
}

// DispatcherService fans a single query out to every configured provider
// concurrently and emits the lifecycle as an ordered event sequence:
// STARTED, one RESULT per provider in completion order, then a terminal
// DONE (or ERROR if the store gives out mid-flight).
type DispatcherService struct {
	client    providerQuerier
	endpoints []provider.Endpoint
	store     interactionStore
	logger    *logrus.Logger
}

func NewDispatcherService(
	client providerQuerier,
	endpoints []provider.Endpoint,
	store interactionStore,
	logger *logrus.Logger,
) *DispatcherService {
	return &DispatcherService{
		client:    client,
		endpoints: endpoints,
		store:     store,
		logger:    logger,
	}
}

// Dispatch validates and records the search, then runs the fan-out in the
// background. The returned channel carries the full event sequence and is
// closed after the terminal event; it is buffered for the complete
// sequence, so a slow or departed consumer never blocks the workers.
func (s *DispatcherService) Dispatch(ctx context.Context, queryText string) (<-chan stream.Event, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, faults.New(faults.KindValidation, "query text must not be empty", nil)
	}
	if len(queryText) > MaxQueryLength {
		return nil, faults.New(faults.KindValidation, "query text exceeds maximum length", nil)
	}
	if len(s.endpoints) == 0 {
		return nil, faults.New(faults.KindInfrastructure, "no providers configured", nil)
	}

	modelIDs := make([]string, len(s.endpoints))
	for i, ep := range s.endpoints {
		modelIDs[i] = ep.ID
	}

	search, err := s.store.RecordSearch(queryText, modelIDs)
	if err != nil {
		return nil, err
	}

	// STARTED + one RESULT per provider + terminal event.
	events := make(chan stream.Event, len(s.endpoints)+2)

	// A caller abort stops event delivery only. In-flight provider calls
	// and persistence writes are already paid for and run to completion,
	// so the fan-out is detached from the caller's cancellation.
	go s.run(context.WithoutCancel(ctx), search, queryText, events)
	return events, nil
}

func (s *DispatcherService) run(ctx context.Context, search *models.Search, queryText string, events chan<- stream.Event) {
	defer close(events)

	events <- stream.Started(*search)

	var (
		mu      sync.Mutex
		results []models.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, endpoint := range s.endpoints {
		endpoint := endpoint
		g.Go(func() error {
			pr := s.client.Query(gctx, endpoint, queryText)

			result := &models.Result{
				SearchID:       search.ID,
				ModelID:        pr.ModelID,
				Content:        pr.Content,
				Title:          pr.Title,
				Snippet:        pr.Snippet,
				Failed:         !pr.OK,
				ResponseTimeMs: pr.ResponseTimeMs,
			}
			if err := s.store.RecordResult(result); err != nil {
				return err
			}

			mu.Lock()
			results = append(results, *result)
			mu.Unlock()

			events <- stream.ResultEvent(*result)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.WithError(err).WithField("search_id", search.ID).Error("Search fan-out aborted")
		events <- stream.ErrorEvent(faults.KindOf(err), err.Error())
		return
	}

	totalTime := 0
	for _, r := range results {
		if r.ResponseTimeMs > totalTime {
			totalTime = r.ResponseTimeMs
		}
	}

	s.logger.WithFields(logrus.Fields{
		"search_id":     search.ID,
		"results":       len(results),
		"total_time_ms": totalTime,
	}).Info("Search completed")

	events <- stream.Done(stream.DonePayload{
		Search:    *search,
		Results:   results,
		TotalTime: totalTime,
	})
}
