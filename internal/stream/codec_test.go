package stream

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyquery/polyquery/internal/faults"
	"github.com/polyquery/polyquery/internal/models"
)

func sampleEvents() []Event {
	search := models.Search{ID: 7, QueryText: "best pasta recipe", CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	r1 := models.Result{ID: 70, SearchID: 7, ModelID: "gpt", Content: "Cacio e pepe.", ResponseTimeMs: 120}
	r2 := models.Result{ID: 71, SearchID: 7, ModelID: "claude", Content: "Carbonara.", ResponseTimeMs: 340}

	return []Event{
		Started(search),
		ResultEvent(r1),
		ResultEvent(r2),
		Done(DonePayload{Search: search, Results: []models.Result{r1, r2}, TotalTime: 340}),
	}
}

func encodeAll(t *testing.T, events []Event) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, event := range events {
		require.NoError(t, WriteEvent(&buf, event))
	}
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	raw := encodeAll(t, sampleEvents())

	decoder := NewDecoder(logrus.New())
	decoded := decoder.Feed(raw)

	require.Len(t, decoded, 4)
	assert.Equal(t, EventStarted, decoded[0].Type)
	assert.Equal(t, uint(7), decoded[0].Search.ID)
	assert.Equal(t, EventResult, decoded[1].Type)
	assert.Equal(t, "gpt", decoded[1].Result.ModelID)
	assert.Equal(t, EventResult, decoded[2].Type)
	assert.Equal(t, EventDone, decoded[3].Type)
	assert.Equal(t, 340, decoded[3].Done.TotalTime)
	assert.Len(t, decoded[3].Done.Results, 2)
}

func TestDecoder_ChunkBoundaryIndependence(t *testing.T) {
	raw := encodeAll(t, sampleEvents())

	whole := NewDecoder(logrus.New()).Feed(raw)
	require.Len(t, whole, 4)

	// Splitting the byte stream at every position must yield the same
	// event sequence as decoding it unsplit.
	for split := 1; split < len(raw); split++ {
		decoder := NewDecoder(logrus.New())
		events := decoder.Feed(raw[:split])
		events = append(events, decoder.Feed(raw[split:])...)

		require.Len(t, events, 4, "split at byte %d", split)
		for i := range whole {
			assert.Equal(t, whole[i].Type, events[i].Type, "split at byte %d", split)
			assert.Equal(t, whole[i].SearchID(), events[i].SearchID(), "split at byte %d", split)
		}
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	raw := encodeAll(t, sampleEvents())

	decoder := NewDecoder(logrus.New())
	var events []Event
	for i := range raw {
		events = append(events, decoder.Feed(raw[i:i+1])...)
	}

	require.Len(t, events, 4)
	assert.Equal(t, EventDone, events[3].Type)
}

func TestDecoder_BadBlockDoesNotAbortStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEvent(&buf, sampleEvents()[0]))
	buf.WriteString("event: result\ndata: {not json\n\n")
	require.NoError(t, WriteEvent(&buf, sampleEvents()[1]))

	events := NewDecoder(logrus.New()).Feed(buf.Bytes())

	require.Len(t, events, 2)
	assert.Equal(t, EventStarted, events[0].Type)
	assert.Equal(t, EventResult, events[1].Type)
}

func TestDecoder_IgnoresCommentsAndUnknownEvents(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(": keepalive\n\n")
	buf.WriteString("event: mystery\ndata: {}\n\n")
	require.NoError(t, WriteEvent(&buf, sampleEvents()[0]))

	events := NewDecoder(logrus.New()).Feed(buf.Bytes())

	require.Len(t, events, 1)
	assert.Equal(t, EventStarted, events[0].Type)
}

func TestDecoder_ErrorEvent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEvent(&buf, ErrorEvent(faults.KindInfrastructure, "persistence unavailable")))

	events := NewDecoder(logrus.New()).Feed(buf.Bytes())

	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Equal(t, faults.KindInfrastructure, events[0].Err.Kind)
}

func TestSynthesizeFromSnapshot(t *testing.T) {
	snapshot := models.SearchSnapshot{
		Search: models.Search{ID: 9, QueryText: "hello"},
		Results: []models.Result{
			{ID: 90, SearchID: 9, ModelID: "gpt", ResponseTimeMs: 100},
			{ID: 91, SearchID: 9, ModelID: "claude", ResponseTimeMs: 250},
			{ID: 92, SearchID: 9, ModelID: "gemini", Failed: true, ResponseTimeMs: 0},
		},
		TotalTime: 250,
	}
	body, err := json.Marshal(snapshot)
	require.NoError(t, err)

	events, err := SynthesizeFromSnapshot(body)
	require.NoError(t, err)

	require.Len(t, events, 5)
	assert.Equal(t, EventStarted, events[0].Type)
	assert.Equal(t, EventResult, events[1].Type)
	assert.Equal(t, EventResult, events[2].Type)
	assert.Equal(t, EventResult, events[3].Type)
	assert.Equal(t, EventDone, events[4].Type)
	assert.Equal(t, 250, events[4].Done.TotalTime)
}

func TestSynthesizeFromSnapshot_Invalid(t *testing.T) {
	_, err := SynthesizeFromSnapshot([]byte("not json"))
	assert.Error(t, err)
}
