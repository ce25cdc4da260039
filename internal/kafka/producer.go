package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/efuayankey/aimes-sub001/internal/model"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer пишет события жизненного цикла в топик Kafka (best-effort, не блокирует API).
type Producer struct {
	writer messageWriter
	log    *slog.Logger
}

// NewProducer создаёт продюсер. Если brokers или topic пустые, методы no-op.
func NewProducer(brokers []string, topic string, log *slog.Logger) *Producer {
	p := &Producer{log: log.With("component", "kafka")}
	if len(brokers) == 0 || topic == "" {
		return p
	}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return p
}

// Enabled reports whether events are actually written.
func (p *Producer) Enabled() bool { return p.writer != nil }

// Publish writes ev keyed by its request or conversation id, so the events
// of one entity stay in one partition.
func (p *Producer) Publish(ctx context.Context, ev model.Event) {
	if err := p.Write(ctx, ev); err != nil {
		p.log.WarnContext(ctx, "write event", "event", ev.Type, "key", eventKey(ev), "error", err)
	}
}

// Write делает то же, что Publish, но возвращает ошибку (для republish).
func (p *Producer) Write(ctx context.Context, events ...model.Event) error {
	if p.writer == nil || len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		body, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(eventKey(ev)),
			Value: body,
			Headers: []kafka.Header{
				{Key: "event", Value: []byte(ev.Type)},
			},
		})
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func eventKey(ev model.Event) string {
	switch {
	case ev.RequestID != "":
		return ev.RequestID
	case ev.Conversation != nil:
		return ev.Conversation.ID
	}
	return ""
}

// ParseBrokers разбивает строку брокеров "host1:9092,host2:9092" на слайс.
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
