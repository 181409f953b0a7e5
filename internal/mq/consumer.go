package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RequestHandler выполняет проверенную команду.
//
// Ошибка возвращает сообщение в очередь; если оно уже доставлялось
// повторно, сообщение уходит в DLQ.
type RequestHandler func(ctx context.Context, cmd RequestCommand) error

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — очередь команд (default: requests.pending).
	Queue Queue

	// Handler — обработчик команд (обязательно).
	Handler RequestHandler

	// Prefetch — неподтверждённых сообщений на consumer (default: 1).
	Prefetch int

	// RetryDelay — пауза перед повторной подпиской после сбоя (default: 1s).
	RetryDelay time.Duration
}

// Consumer читает команды над запросами.
//
// Сообщения, которые не разбираются или содержат неизвестное действие,
// сразу отправляются в DLQ: повтор их не исправит.
type Consumer struct {
	conn       *Connection
	logger     *slog.Logger
	queue      Queue
	handler    RequestHandler
	prefetch   int
	retryDelay time.Duration
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	c := &Consumer{
		conn:       conn,
		logger:     logger,
		queue:      cfg.Queue,
		handler:    cfg.Handler,
		prefetch:   cfg.Prefetch,
		retryDelay: cfg.RetryDelay,
	}
	if c.queue == "" {
		c.queue = QueueRequestsPending
	}
	if c.prefetch <= 0 {
		c.prefetch = 1
	}
	if c.retryDelay <= 0 {
		c.retryDelay = time.Second
	}
	return c
}

// Run потребляет команды до отмены ctx. После потери соединения
// подписка восстанавливается автоматически.
func (c *Consumer) Run(ctx context.Context) error {
	logger := c.logger.With("queue", c.queue)

	for {
		deliveries, err := c.subscribe(ctx)
		if err == nil {
			logger.Info("consumer started")
			c.drain(ctx, deliveries)
		} else if ctx.Err() == nil {
			logger.Warn("failed to subscribe", "error", err)
		}

		if err := c.waitRetry(ctx); err != nil {
			return err
		}
	}
}

func (c *Consumer) subscribe(ctx context.Context) (<-chan amqp.Delivery, error) {
	var deliveries <-chan amqp.Delivery

	err := c.conn.withChannel(ctx, func(ch *amqp.Channel) error {
		if err := ch.Qos(c.prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}

		var err error
		deliveries, err = ch.ConsumeWithContext(ctx,
			string(c.queue),
			"",    // consumer tag
			false, // auto-ack
			false, // exclusive
			false, // no-local
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("consume: %w", err)
		}
		return nil
	})

	return deliveries, err
}

// drain обрабатывает доставки, пока канал открыт и ctx жив.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				c.logger.Warn("delivery channel closed", "queue", c.queue)
				return
			}
			c.deliver(ctx, d)
		}
	}
}

// waitRetry ждёт паузу и восстановления соединения.
func (c *Consumer) waitRetry(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.retryDelay):
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.conn.Ready():
		return nil
	}
}

// deliver обрабатывает одно сообщение и подтверждает его.
func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	cmd, err := decodeCommand(d)
	if err != nil {
		c.logger.Error("rejecting request command",
			"queue", c.queue,
			"message_id", d.MessageId,
			"error", err,
		)
		c.settle(d.Nack(false, false), d)
		return
	}

	logger := c.logger.With("message_id", cmd.ID, "protocol", cmd.Protocol, "action", cmd.Action)
	logger.Debug("received request command")

	if err := c.handler(ctx, cmd); err != nil {
		requeue := !d.Redelivered && !errors.Is(err, ErrInvalidCommand)
		logger.Error("request command failed", "error", err, "requeue", requeue)
		c.settle(d.Nack(false, requeue), d)
		return
	}

	c.settle(d.Ack(false), d)
}

func (c *Consumer) settle(err error, d amqp.Delivery) {
	if err != nil {
		c.logger.Warn("failed to settle delivery", "message_id", d.MessageId, "error", err)
	}
}
