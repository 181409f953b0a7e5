package mq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ackRecorder запоминает, как была подтверждена доставка.
type ackRecorder struct {
	acked    bool
	nacked   bool
	requeued bool
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.acked = true
	return nil
}

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}

func (a *ackRecorder) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}

func delivery(ack *ackRecorder, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		Type:         messageType,
		MessageId:    "m-1",
		Timestamp:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Body:         []byte(body),
	}
}

func testConsumer(handler RequestHandler) *Consumer {
	return NewConsumer(nil, slog.New(slog.NewTextHandler(io.Discard, nil)), ConsumerConfig{Handler: handler})
}

func TestRoutingKeyFor(t *testing.T) {
	tests := map[string]RoutingKey{
		ActionProcess:   "request.process",
		ActionResume:    "request.resume",
		ActionReprocess: "request.reprocess",
	}
	for action, want := range tests {
		if got := RoutingKeyFor(action); got != want {
			t.Errorf("RoutingKeyFor(%q) = %q, want %q", action, got, want)
		}
	}
}

func TestRequestCommand_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     RequestCommand
		wantErr bool
	}{
		{"process", RequestCommand{Protocol: "p", Action: ActionProcess}, false},
		{"reprocess", RequestCommand{Protocol: "p", Action: ActionReprocess}, false},
		{"empty protocol", RequestCommand{Action: ActionResume}, true},
		{"unknown action", RequestCommand{Protocol: "p", Action: "explode"}, true},
		{"action is case sensitive", RequestCommand{Protocol: "p", Action: "Process"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidCommand) {
				t.Errorf("Validate() error = %v, want ErrInvalidCommand", err)
			}
		})
	}
}

func TestRequestCommand_EncodeDecode(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cmd := RequestCommand{ID: "m-7", Protocol: "3f1c", Action: ActionResume, IssuedAt: issued}

	msg, err := cmd.encode()
	if err != nil {
		t.Fatalf("encode() error = %v", err)
	}
	if strings.Contains(string(msg.Body), "m-7") {
		t.Errorf("body carries message id: %s", msg.Body)
	}
	if msg.DeliveryMode != amqp.Persistent || msg.MessageId != "m-7" {
		t.Errorf("publishing = %+v", msg)
	}

	got, err := decodeCommand(amqp.Delivery{
		Type:      msg.Type,
		MessageId: msg.MessageId,
		Timestamp: msg.Timestamp,
		Body:      msg.Body,
	})
	if err != nil {
		t.Fatalf("decodeCommand() error = %v", err)
	}
	if got != cmd {
		t.Errorf("decodeCommand() = %+v, want %+v", got, cmd)
	}
}

func TestConsumer_Deliver(t *testing.T) {
	errBusy := errors.New("store unavailable")

	tests := []struct {
		name        string
		body        string
		redelivered bool
		handlerErr  error
		wantCalled  bool
		wantAck     bool
		wantRequeue bool
	}{
		{"valid command", `{"protocol":"p-1","action":"process"}`, false, nil, true, true, false},
		{"malformed json", `{"protocol":`, false, nil, false, false, false},
		{"unknown action", `{"protocol":"p-1","action":"explode"}`, false, nil, false, false, false},
		{"missing protocol", `{"action":"resume"}`, false, nil, false, false, false},
		{"first failure requeues", `{"protocol":"p-1","action":"resume"}`, false, errBusy, true, false, true},
		{"repeated failure goes to dlq", `{"protocol":"p-1","action":"resume"}`, true, errBusy, true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			c := testConsumer(func(_ context.Context, cmd RequestCommand) error {
				called = true
				if cmd.ID != "m-1" || cmd.Protocol != "p-1" {
					t.Errorf("handler got %+v", cmd)
				}
				return tt.handlerErr
			})

			ack := &ackRecorder{}
			d := delivery(ack, tt.body)
			d.Redelivered = tt.redelivered
			c.deliver(context.Background(), d)

			if called != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", called, tt.wantCalled)
			}
			if ack.acked != tt.wantAck || ack.nacked == tt.wantAck {
				t.Errorf("acked = %v, nacked = %v, want ack %v", ack.acked, ack.nacked, tt.wantAck)
			}
			if ack.requeued != tt.wantRequeue {
				t.Errorf("requeued = %v, want %v", ack.requeued, tt.wantRequeue)
			}
		})
	}
}

func TestConsumer_RejectsForeignMessageType(t *testing.T) {
	c := testConsumer(func(context.Context, RequestCommand) error {
		t.Error("handler should not be called")
		return nil
	})

	ack := &ackRecorder{}
	d := delivery(ack, `{"protocol":"p-1","action":"process"}`)
	d.Type = "schedule"
	c.deliver(context.Background(), d)

	if !ack.nacked || ack.requeued {
		t.Errorf("nacked = %v, requeued = %v; want dead-lettered", ack.nacked, ack.requeued)
	}
}

func TestDial_RejectsBadURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for _, url := range []string{"", "http://localhost:5672/"} {
		if _, err := Dial(url, "test", logger); err == nil {
			t.Errorf("Dial(%q) should fail", url)
		}
	}
}
