package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/efuayankey/aimes-sub001/internal/logger"
	"github.com/efuayankey/aimes-sub001/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestParseBrokers(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"localhost:9092", []string{"localhost:9092"}},
		{" a:1 , ,b:2,", []string{"a:1", "b:2"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseBrokers(tt.in), tt.in)
	}
}

func TestProducer_DisabledIsNoop(t *testing.T) {
	p := NewProducer(nil, "topic", logger.Discard())
	assert.False(t, p.Enabled())
	p.Publish(context.Background(), model.Event{Type: model.EventRequestCreated})
	assert.NoError(t, p.Close())
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, log: logger.Discard()}
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	r := &model.Request{ID: "r1", Status: model.RequestStatusClaimed, Version: 2}

	p.Publish(context.Background(), model.RequestEvent(model.EventRequestClaimed, r, at))
	p.Publish(context.Background(), model.Event{Type: model.EventConversationCreated, At: at, Conversation: &model.Conversation{ID: "c1"}})

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "r1", string(w.msgs[0].Key))
	assert.Equal(t, "request.claimed", string(w.msgs[0].Headers[0].Value))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &body))
	assert.Equal(t, "request.claimed", body["event"])
	assert.Equal(t, float64(2), body["version"])
	assert.Equal(t, "c1", string(w.msgs[1].Key))
}

func TestProducer_WriteError(t *testing.T) {
	p := &Producer{writer: &fakeWriter{err: errors.New("broker down")}, log: logger.Discard()}

	err := p.Write(context.Background(), model.Event{Type: model.EventRequestClosed, RequestID: "r1"})
	assert.EqualError(t, err, "broker down")
	// Publish swallows it.
	p.Publish(context.Background(), model.Event{Type: model.EventRequestClosed, RequestID: "r1"})
}
