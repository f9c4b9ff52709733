package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

const (
	ExchangeRuns   Exchange = "onboarding.runs"
	ExchangeEvents Exchange = "onboarding.events"
	ExchangeDLQ    Exchange = "onboarding.dlq"
)

const (
	QueueSubmit    Queue = "onboarding.submit"
	QueueDLQSubmit Queue = "onboarding.submit.dlq"
)

const (
	RoutingKeySubmit      RoutingKey = "submit"
	RoutingKeyStepUpdated RoutingKey = "step.updated"
	RoutingKeyRunFinished RoutingKey = "run.finished"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

func exchanges() []exchangeDecl {
	return []exchangeDecl{
		{ExchangeRuns, amqp.ExchangeDirect},
		{ExchangeEvents, amqp.ExchangeTopic},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}
}

func queues() []queueDecl {
	return []queueDecl{
		{QueueSubmit, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeySubmit),
		}},
		{QueueDLQSubmit, nil},
	}
}

func bindings() []bindingDecl {
	return []bindingDecl{
		{QueueSubmit, RoutingKeySubmit, ExchangeRuns},
		{QueueDLQSubmit, RoutingKeySubmit, ExchangeDLQ},
	}
}

// SetupTopology объявляет обменники, очереди и привязки. Операции идемпотентны.
// Очередей на onboarding.events сервис не заводит: подписчики событий
// создают их сами.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range exchanges() {
			if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range queues() {
			if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range bindings() {
			if err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}
