package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения.
type MessageType string

const (
	MessageTypeSubmit      MessageType = "onboarding.submit"
	MessageTypeStepUpdated MessageType = "step.updated"
	MessageTypeRunFinished MessageType = "run.finished"
)

// Message — конверт любого сообщения сервиса.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage упаковывает payload в конверт.
func NewMessage(msgType MessageType, payload any) (*Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   body,
		Timestamp: time.Now().UTC(),
	}, nil
}

// SubmitPayload — заявка на онбординг.
type SubmitPayload struct {
	URL            string `json:"url"`
	ForceReonboard bool   `json:"force_reonboard"`
}

// StepUpdatedPayload — шаг перешёл в новый статус.
type StepUpdatedPayload struct {
	SessionID  uuid.UUID `json:"session_id"`
	Step       string    `json:"step"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Attempt    int       `json:"attempt"`
	PropertyID string    `json:"property_id,omitempty"`
}

// RunFinishedPayload — run дошёл до финального статуса.
type RunFinishedPayload struct {
	SessionID      uuid.UUID `json:"session_id"`
	Status         string    `json:"status"`
	PropertyID     string    `json:"property_id,omitempty"`
	CompletedSteps []string  `json:"completed_steps"`
	FailedSteps    []string  `json:"failed_steps"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish отправляет конверт в exchange с ключом routingKey.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx, string(exchange), string(routingKey), false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Type:         string(msg.Type),
			Timestamp:    msg.Timestamp,
			Body:         body,
		})
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

func (p *Publisher) publishPayload(ctx context.Context, exchange Exchange, key RoutingKey, msgType MessageType, payload any) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, exchange, key, msg)
}

// PublishSubmit ставит заявку на онбординг в очередь onboarding.submit.
func (p *Publisher) PublishSubmit(ctx context.Context, payload SubmitPayload) error {
	return p.publishPayload(ctx, ExchangeRuns, RoutingKeySubmit, MessageTypeSubmit, payload)
}

// PublishStepUpdated сообщает о переходе шага.
func (p *Publisher) PublishStepUpdated(ctx context.Context, payload StepUpdatedPayload) error {
	return p.publishPayload(ctx, ExchangeEvents, RoutingKeyStepUpdated, MessageTypeStepUpdated, payload)
}

// PublishRunFinished сообщает о завершении run'а.
func (p *Publisher) PublishRunFinished(ctx context.Context, payload RunFinishedPayload) error {
	return p.publishPayload(ctx, ExchangeEvents, RoutingKeyRunFinished, MessageTypeRunFinished, payload)
}
