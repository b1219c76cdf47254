package stream

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Subscription is the consumer side of one logical search stream. It
// tracks the active search id announced by the started event and discards
// result/done events tagged with any other search, which guards against a
// slow superseded search's late events being applied to a newer one.
type Subscription struct {
	mu           sync.Mutex
	activeSearch uint
	terminal     bool
	cancelled    bool
	logger       *logrus.Logger
}

func NewSubscription(logger *logrus.Logger) *Subscription {
	return &Subscription{logger: logger}
}

// Accept applies the correlation rules to one decoded event and reports
// whether it should be delivered to the caller.
func (s *Subscription) Accept(event Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled {
		return false
	}

	switch event.Type {
	case EventStarted:
		if event.Search == nil {
			return false
		}
		// A new started event supersedes the previous search entirely.
		s.activeSearch = event.Search.ID
		s.terminal = false
		return true

	case EventResult, EventDone:
		if s.terminal || s.activeSearch == 0 || event.SearchID() != s.activeSearch {
			s.logger.WithFields(logrus.Fields{
				"event":  event.Type,
				"search": event.SearchID(),
				"active": s.activeSearch,
			}).Debug("Discarding stale stream event")
			return false
		}
		if event.Type == EventDone {
			s.terminal = true
		}
		return true

	case EventError:
		if s.terminal {
			return false
		}
		s.terminal = true
		return true

	default:
		return false
	}
}

// Cancel stops delivery; every subsequent Accept returns false. The
// producing side may still run to completion, which is of no interest to
// this consumer.
func (s *Subscription) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

// ActiveSearch returns the search id the subscription is currently bound to.
func (s *Subscription) ActiveSearch() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSearch
}
