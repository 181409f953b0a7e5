package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeRequests Exchange = "promptflow"
	ExchangeDLQ      Exchange = "promptflow.dlq"
)

// Queues — имена очередей.
const (
	QueueRequestsPending Queue = "requests.pending"
	QueueDLQRequests     Queue = "dlq.requests"
)

// Routing keys.
const (
	// RoutingKeyRequests — шаблон привязки для всех действий над запросами.
	RoutingKeyRequests RoutingKey = "request.*"

	RoutingKeyDLQRequests RoutingKey = "requests"
)

// RoutingKeyFor возвращает ключ маршрутизации для действия: request.<action>.
func RoutingKeyFor(action string) RoutingKey {
	return RoutingKey("request." + action)
}

// SetupTopology объявляет обменники, очереди и привязки.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.withChannel(ctx, func(ch *amqp.Channel) error {
		// 1. Создаём exchanges
		if err := declareExchanges(ch); err != nil {
			return err
		}

		// 2. Создаём queues
		if err := declareQueues(ch); err != nil {
			return err
		}

		// 3. Привязываем queues к exchanges
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeRequests, "topic"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	// Нечитаемые сообщения уходят в DLQ
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQRequests),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueRequestsPending, dlqArgs},
		{QueueDLQRequests, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueRequestsPending, RoutingKeyRequests, ExchangeRequests},
		{QueueDLQRequests, RoutingKeyDLQRequests, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  promptflow RabbitMQ topology:

    promptflow (topic)
    └── requests.pending [routing: request.*]
            Consumer: orchestrator
            DLQ: dlq.requests

    promptflow.dlq (direct)
    └── dlq.requests [routing: requests]
            Manual processing
  `
}
