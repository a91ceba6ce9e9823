// Package events публикует события учёта недостач после фиксации транзакций.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// Type описывает вид события.
type Type string

const (
	ShortageCompensated Type = "shortage.compensated"
	ShortageIgnored     Type = "shortage.ignored"
	ShortageChanged     Type = "shortage.changed"
)

// Event описывает изменение учёта недостачи по одной позиции.
type Event struct {
	Type           Type            `json:"type"`
	OrderID        uuid.UUID       `json:"orderId"`
	ItemID         uuid.UUID       `json:"itemId"`
	ShortageQty    decimal.Decimal `json:"shortageQty"`
	CompensatedQty decimal.Decimal `json:"compensatedQty"`
	Status         string          `json:"status"`
	// CompensationOrderID заполняется для событий покрытия недостачи.
	CompensationOrderID *uuid.UUID       `json:"compensationOrderId,omitempty"`
	Quantity            *decimal.Decimal `json:"quantity,omitempty"`
	OccurredAt          time.Time        `json:"occurredAt"`
}

// Publisher отправляет события во внешнюю систему.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// New возвращает KafkaPublisher, если указаны брокеры, и NopPublisher в противном случае.
func New(brokersCSV, topic string) Publisher {
	brokers := splitBrokers(brokersCSV)
	if len(brokers) == 0 || topic == "" {
		return NopPublisher{}
	}
	return NewKafkaPublisher(brokers, topic)
}

func splitBrokers(csv string) []string {
	var brokers []string
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// KafkaPublisher публикует события в топик Kafka, ключом сообщения служит идентификатор заказа.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher создаёт публикатора для указанных брокеров и топика.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Publish отправляет события одним пакетом.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		msg, err := toMessage(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write messages: %w", err)
	}
	return nil
}

// Close закрывает соединения с брокерами.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func toMessage(e Event) (kafka.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(e.OrderID.String()),
		Value: data,
		Time:  e.OccurredAt.UTC(),
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}, nil
}

// NopPublisher отбрасывает события; используется, когда Kafka не настроена.
type NopPublisher struct{}

// Publish ничего не делает.
func (NopPublisher) Publish(context.Context, ...Event) error { return nil }

// Close ничего не делает.
func (NopPublisher) Close() error { return nil }
