package stream

import (
	"github.com/polyquery/polyquery/internal/faults"
	"github.com/polyquery/polyquery/internal/models"
)

// EventType names one step of a search's lifecycle on the wire.
type EventType string

const (
	EventStarted EventType = "started"
	EventResult  EventType = "result"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// Terminal reports whether no further events are valid for the search
// after this one.
func (t EventType) Terminal() bool {
	return t == EventDone || t == EventError
}

// DonePayload is the full snapshot carried by the terminal done event.
// TotalTime is max(responseTimeMs) across all results.
type DonePayload struct {
	Search    models.Search   `json:"search"`
	Results   []models.Result `json:"results"`
	TotalTime int             `json:"totalTime"`
}

// ErrorPayload is the classified error carried by the terminal error event.
type ErrorPayload struct {
	Kind    faults.Kind `json:"kind"`
	Message string      `json:"message"`
}

// Event is one decoded lifecycle event. Exactly one of the payload fields
// is set, matching Type.
type Event struct {
	Type   EventType
	Search *models.Search
	Result *models.Result
	Done   *DonePayload
	Err    *ErrorPayload
}

func Started(search models.Search) Event {
	return Event{Type: EventStarted, Search: &search}
}

func ResultEvent(result models.Result) Event {
	return Event{Type: EventResult, Result: &result}
}

func Done(payload DonePayload) Event {
	return Event{Type: EventDone, Done: &payload}
}

func ErrorEvent(kind faults.Kind, message string) Event {
	return Event{Type: EventError, Err: &ErrorPayload{Kind: kind, Message: message}}
}

// SearchID returns the search the event is correlated to, or 0 when the
// event type carries no correlation (error events).
func (e Event) SearchID() uint {
	switch e.Type {
	case EventStarted:
		if e.Search != nil {
			return e.Search.ID
		}
	case EventResult:
		if e.Result != nil {
			return e.Result.SearchID
		}
	case EventDone:
		if e.Done != nil {
			return e.Done.Search.ID
		}
	}
	return 0
}
