package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher публикует команды над запросами в обменник promptflow.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// PublishRequest публикует команду action для запроса protocol.
// Потребитель: orchestrator.
func (p *Publisher) PublishRequest(ctx context.Context, protocol, action string) error {
	cmd := RequestCommand{
		ID:       uuid.NewString(),
		Protocol: protocol,
		Action:   action,
		IssuedAt: time.Now().UTC(),
	}
	if err := cmd.Validate(); err != nil {
		return err
	}

	msg, err := cmd.encode()
	if err != nil {
		return err
	}

	return p.conn.withChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx,
			string(ExchangeRequests),
			string(cmd.RoutingKey()),
			false, // mandatory
			false, // immediate
			msg,
		)
		if err != nil {
			return fmt.Errorf("publish %s: %w", cmd.RoutingKey(), err)
		}

		p.logger.Debug("published request command",
			"protocol", protocol,
			"action", action,
			"message_id", cmd.ID,
		)
		return nil
	})
}
