package mq

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Действия над запросом; каждое публикуется с ключом request.<action>.
const (
	ActionProcess   = "process"
	ActionResume    = "resume"
	ActionReprocess = "reprocess"
)

var actions = []string{ActionProcess, ActionResume, ActionReprocess}

// ErrInvalidCommand — сообщение нельзя выполнить ни сейчас, ни после повтора.
var ErrInvalidCommand = errors.New("invalid request command")

// messageType — значение свойства type у команд над запросами.
const messageType = "request"

// RequestCommand — команда выполнить действие над запросом.
//
// В теле сообщения передаются только Protocol и Action; ID и IssuedAt
// берутся из свойств AMQP (message_id, timestamp).
type RequestCommand struct {
	ID       string    `json:"-"`
	Protocol string    `json:"protocol"`
	Action   string    `json:"action"`
	IssuedAt time.Time `json:"-"`
}

// Validate проверяет, что команду можно выполнить.
func (c RequestCommand) Validate() error {
	if c.Protocol == "" {
		return fmt.Errorf("%w: empty protocol", ErrInvalidCommand)
	}
	if !slices.Contains(actions, c.Action) {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, c.Action)
	}
	return nil
}

// RoutingKey возвращает ключ маршрутизации команды.
func (c RequestCommand) RoutingKey() RoutingKey {
	return RoutingKeyFor(c.Action)
}

// decodeCommand разбирает и проверяет доставленное сообщение.
func decodeCommand(d amqp.Delivery) (RequestCommand, error) {
	if d.Type != "" && d.Type != messageType {
		return RequestCommand{}, fmt.Errorf("%w: message type %q", ErrInvalidCommand, d.Type)
	}

	var cmd RequestCommand
	if err := json.Unmarshal(d.Body, &cmd); err != nil {
		return RequestCommand{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	cmd.ID = d.MessageId
	cmd.IssuedAt = d.Timestamp

	return cmd, cmd.Validate()
}

// encode строит публикацию для команды.
func (c RequestCommand) encode() (amqp.Publishing, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal command: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         messageType,
		MessageId:    c.ID,
		Timestamp:    c.IssuedAt,
		Body:         body,
	}, nil
}
