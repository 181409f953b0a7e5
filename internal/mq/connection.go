package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected — соединение с RabbitMQ сейчас не установлено.
var ErrNotConnected = errors.New("rabbitmq not connected")

const (
	heartbeat  = 10 * time.Second
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Connection — соединение с RabbitMQ и один рабочий канал.
//
// После разрыва соединение восстанавливается в фоне с экспоненциальной
// задержкой; закрытый брокером канал открывается заново. Пока связи нет,
// операции возвращают ErrNotConnected, а Ready позволяет дождаться
// восстановления.
type Connection struct {
	url    string
	name   string
	logger *slog.Logger

	mu    sync.RWMutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	ready chan struct{} // закрыт, пока есть соединение

	done      chan struct{}
	closeOnce sync.Once
}

// Dial подключается к брокеру. name показывается в списке соединений
// RabbitMQ (connection_name).
func Dial(url, name string, logger *slog.Logger) (*Connection, error) {
	if url == "" {
		return nil, errors.New("rabbitmq url is empty")
	}
	if _, err := amqp.ParseURI(url); err != nil {
		return nil, fmt.Errorf("parse rabbitmq url: %w", err)
	}

	c := &Connection{
		url:    url,
		name:   name,
		logger: logger.With("component", "mq"),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}

	conn, ch, err := c.dial()
	if err != nil {
		return nil, err
	}
	c.attach(conn, ch)

	go c.supervise()

	return c, nil
}

func (c *Connection) dial() (*amqp.Connection, *amqp.Channel, error) {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(c.name)

	conn, err := amqp.DialConfig(c.url, amqp.Config{
		Heartbeat:  heartbeat,
		Properties: props,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	return conn, ch, nil
}

// attach делает соединение текущим и будит ожидающих Ready.
func (c *Connection) attach(conn *amqp.Connection, ch *amqp.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn = conn
	c.ch = ch
	close(c.ready)
}

// detach помечает соединение потерянным.
func (c *Connection) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn = nil
	c.ch = nil
	c.ready = make(chan struct{})
}

// supervise следит за соединением и каналом до Close.
func (c *Connection) supervise() {
	for {
		c.mu.RLock()
		conn, ch := c.conn, c.ch
		c.mu.RUnlock()

		if conn == nil {
			return
		}

		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.done:
			return

		case err := <-chClosed:
			if conn.IsClosed() {
				break
			}
			c.logger.Warn("channel closed, reopening", "error", err)
			fresh, openErr := conn.Channel()
			if openErr == nil {
				c.mu.Lock()
				c.ch = fresh
				c.mu.Unlock()
				continue
			}
			c.logger.Warn("failed to reopen channel", "error", openErr)
			conn.Close()

		case err := <-connClosed:
			c.logger.Warn("connection lost", "error", err)
		}

		c.detach()
		if !c.redial() {
			return
		}
	}
}

// redial подключается заново; false — соединение закрыто через Close.
func (c *Connection) redial() bool {
	delay := minBackoff

	for {
		select {
		case <-c.done:
			return false
		case <-time.After(delay):
		}

		conn, ch, err := c.dial()
		if err != nil {
			c.logger.Warn("reconnect failed", "error", err, "next_attempt", delay)
			delay = min(delay*2, maxBackoff)
			continue
		}

		c.attach(conn, ch)
		c.logger.Info("reconnected to RabbitMQ")
		return true
	}
}

// Ready возвращает канал, закрытый, пока соединение установлено.
func (c *Connection) Ready() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// IsConnected проверяет, установлено ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// withChannel выполняет fn с текущим каналом.
func (c *Connection) withChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	ch := c.ch
	c.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return ErrNotConnected
	}

	return fn(ch)
}

// Close закрывает соединение и останавливает переподключение.
func (c *Connection) Close() error {
	var err error

	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		conn := c.conn
		c.conn, c.ch = nil, nil
		c.mu.Unlock()

		// Закрытие соединения закрывает и его каналы.
		if conn != nil && !conn.IsClosed() {
			if cerr := conn.Close(); cerr != nil {
				err = fmt.Errorf("close connection: %w", cerr)
			}
		}

		c.logger.Info("connection closed")
	})

	return err
}
