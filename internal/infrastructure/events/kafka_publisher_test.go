package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EditaisScanner/internal/domain"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishCapturedPayload(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	p := newPublisher(w, "editais.captured", nil)

	value := 1234.56
	notice := domain.Notice{
		ID:              uuid.New(),
		IdentityHash:    "hash-1",
		SourcePlatform:  "bbmnet",
		RegionCode:      "RJ",
		ProcessNumber:   "PE-15",
		IssuingBodyName: "Fundo Municipal de Saúde de Macaé",
		EstimatedValue:  &value,
		CapturedAt:      time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishCaptured(context.Background(), notice))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "editais.captured", msg.Topic)
	assert.Equal(t, "hash-1", string(msg.Key))

	var event CapturedEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, notice.ID, event.NoticeID)
	assert.Equal(t, "bbmnet", event.SourcePlatform)
	require.NotNil(t, event.EstimatedValue)
	assert.InDelta(t, value, *event.EstimatedValue, 0.001)
	assert.True(t, notice.CapturedAt.Equal(event.CapturedAt))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishCapturedWrapsWriterError(t *testing.T) {
	t.Parallel()

	p := newPublisher(&recordingWriter{err: errors.New("broker down")}, "t", nil)
	err := p.PublishCaptured(context.Background(), domain.Notice{IdentityHash: "h"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), EventCaptured)
}
