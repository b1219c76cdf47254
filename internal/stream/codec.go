package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/polyquery/polyquery/internal/models"
)

// ContentType is the negotiated streaming media type.
const ContentType = "text/event-stream"

const blockTerminator = "\n\n"

// WriteEvent encodes one event as a named SSE block:
// "event: <type>\ndata: <json>\n\n".
func WriteEvent(w io.Writer, event Event) error {
	data, err := marshalPayload(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}

func marshalPayload(event Event) ([]byte, error) {
	switch event.Type {
	case EventStarted:
		return json.Marshal(event.Search)
	case EventResult:
		return json.Marshal(event.Result)
	case EventDone:
		return json.Marshal(event.Done)
	case EventError:
		return json.Marshal(event.Err)
	default:
		return nil, fmt.Errorf("unknown event type %q", event.Type)
	}
}

// Decoder reassembles events from an SSE byte stream. Chunks may split
// anywhere, including mid-line; bytes are buffered until a full block
// terminator is seen. A block that fails to decode is logged and skipped,
// never aborting the stream.
type Decoder struct {
	buf    bytes.Buffer
	logger *logrus.Logger
}

func NewDecoder(logger *logrus.Logger) *Decoder {
	return &Decoder{logger: logger}
}

// Feed appends a chunk and returns every event completed by it, in order.
func (d *Decoder) Feed(chunk []byte) []Event {
	d.buf.Write(chunk)

	var events []Event
	for {
		raw := d.buf.String()
		idx := strings.Index(raw, blockTerminator)
		if idx < 0 {
			return events
		}

		block := raw[:idx]
		d.buf.Next(idx + len(blockTerminator))

		if strings.TrimSpace(block) == "" {
			continue
		}

		event, err := decodeBlock(block)
		if err != nil {
			d.logger.WithError(err).WithField("block", truncateBlock(block)).Warn("Skipping undecodable stream block")
			continue
		}
		events = append(events, event)
	}
}

func decodeBlock(block string) (Event, error) {
	var eventName string
	var dataLines []string

	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "event:") {
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			continue
		}
	}

	if eventName == "" {
		return Event{}, fmt.Errorf("block has no event line")
	}
	if len(dataLines) == 0 {
		return Event{}, fmt.Errorf("block has no data line")
	}

	data := []byte(strings.Join(dataLines, ""))

	switch EventType(eventName) {
	case EventStarted:
		var search models.Search
		if err := json.Unmarshal(data, &search); err != nil {
			return Event{}, fmt.Errorf("invalid started payload: %w", err)
		}
		return Started(search), nil
	case EventResult:
		var result models.Result
		if err := json.Unmarshal(data, &result); err != nil {
			return Event{}, fmt.Errorf("invalid result payload: %w", err)
		}
		return ResultEvent(result), nil
	case EventDone:
		var done DonePayload
		if err := json.Unmarshal(data, &done); err != nil {
			return Event{}, fmt.Errorf("invalid done payload: %w", err)
		}
		return Done(done), nil
	case EventError:
		var payload ErrorPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return Event{}, fmt.Errorf("invalid error payload: %w", err)
		}
		return Event{Type: EventError, Err: &payload}, nil
	default:
		return Event{}, fmt.Errorf("unknown event type %q", eventName)
	}
}

// SynthesizeFromSnapshot converts a non-streaming response body
// ({search, results, totalTime}) into the started -> result x N -> done
// sequence, giving consumers one code path regardless of transport mode.
func SynthesizeFromSnapshot(body []byte) ([]Event, error) {
	var snapshot models.SearchSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, fmt.Errorf("invalid search snapshot: %w", err)
	}

	events := make([]Event, 0, len(snapshot.Results)+2)
	events = append(events, Started(snapshot.Search))
	for _, result := range snapshot.Results {
		events = append(events, ResultEvent(result))
	}
	events = append(events, Done(DonePayload{
		Search:    snapshot.Search,
		Results:   snapshot.Results,
		TotalTime: snapshot.TotalTime,
	}))

	return events, nil
}

func truncateBlock(block string) string {
	if len(block) > 120 {
		return block[:120] + "..."
	}
	return block
}
