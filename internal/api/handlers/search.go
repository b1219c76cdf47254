package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/polyquery/polyquery/internal/faults"
	"github.com/polyquery/polyquery/internal/models"
	"github.com/polyquery/polyquery/internal/services"
	"github.com/polyquery/polyquery/internal/stream"
	"github.com/polyquery/polyquery/pkg/utils"
)

type SearchHandler struct {
	dispatcher *services.DispatcherService
	logger     *logrus.Logger
}

func NewSearchHandler(dispatcher *services.DispatcherService, logger *logrus.Logger) *SearchHandler {
	return &SearchHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// HandleSearch fans the query out to every provider. Clients that accept
// text/event-stream get the live event sequence; everyone else blocks for
// the full snapshot.
func (h *SearchHandler) HandleSearch(c *gin.Context) {
	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Invalid search request")
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"query":      req.Query,
		"user_agent": c.GetHeader("User-Agent"),
		"ip_address": c.ClientIP(),
	}).Info("Processing search request")

	events, err := h.dispatcher.Dispatch(c.Request.Context(), req.Query)
	if err != nil {
		h.logger.WithError(err).Error("Search dispatch failed")
		utils.ErrorResponse(c, faults.HTTPStatus(faults.KindOf(err)), "Search failed", err)
		return
	}

	if wantsEventStream(c) {
		h.streamEvents(c, events)
		return
	}
	h.snapshot(c, events)
}

func wantsEventStream(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), stream.ContentType)
}

// streamEvents relays the event sequence over SSE as it happens.
func (h *SearchHandler) streamEvents(c *gin.Context, events <-chan stream.Event) {
	c.Header("Content-Type", stream.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Streaming unsupported", nil)
		return
	}

	for event := range events {
		if err := stream.WriteEvent(c.Writer, event); err != nil {
			// Client went away; drain remaining events so the workers
			// finish recording.
			h.logger.WithError(err).Debug("SSE write failed, draining")
			for range events {
			}
			return
		}
		flusher.Flush()
	}
}

// snapshot drains the event sequence and returns the terminal state as a
// single JSON body.
func (h *SearchHandler) snapshot(c *gin.Context, events <-chan stream.Event) {
	var done *stream.DonePayload
	var failure *stream.ErrorPayload
	for event := range events {
		switch event.Type {
		case stream.EventDone:
			done = event.Done
		case stream.EventError:
			failure = event.Err
		}
	}

	if failure != nil {
		err := faults.New(failure.Kind, failure.Message, nil)
		utils.ErrorResponse(c, faults.HTTPStatus(failure.Kind), "Search failed", err)
		return
	}
	if done == nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Search produced no terminal state", nil)
		return
	}

	c.JSON(http.StatusOK, models.SearchSnapshot{
		Search:    done.Search,
		Results:   done.Results,
		TotalTime: done.TotalTime,
	})
}
