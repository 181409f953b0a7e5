package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/promptflow/internal/domain"
	"github.com/shaiso/promptflow/internal/mq"
)

// handleRequestCommand обрабатывает команду request.<action>.
//
// Выполнение запускается асинхронно, сообщение подтверждается сразу:
// статус запроса в хранилище — единственный источник правды о прогрессе.
func (o *Orchestrator) handleRequestCommand(_ context.Context, cmd mq.RequestCommand) error {
	action, err := ParseAction(cmd.Action)
	if err != nil {
		return fmt.Errorf("%w: %v", mq.ErrInvalidCommand, err)
	}

	if o.IsActive(cmd.Protocol) {
		o.logger.Debug("request already active, skipping", "protocol", cmd.Protocol, "message_id", cmd.ID)
		return nil
	}

	if err := o.Submit(cmd.Protocol, action); err != nil {
		if errors.Is(err, ErrOrchestratorStopped) {
			return err
		}
		o.logger.Error("failed to submit request", "protocol", cmd.Protocol, "error", err)
	}

	return nil
}

// pollLoop периодически подбирает запросы, для которых не пришла команда.
func (o *Orchestrator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем запросы, созданные пока были выключены)
	o.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling: created-запросы старше staleAfter
// отправляются на process.
func (o *Orchestrator) poll(ctx context.Context) {
	olderThan := o.now().Add(-o.staleAfter)

	requests, err := o.store.ListRequestsByStatus(ctx, domain.RequestStatusCreated, olderThan, o.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Error("failed to list created requests", "error", err)
		}
		return
	}

	if len(requests) == 0 {
		return
	}

	o.logger.Debug("poll found created requests", "count", len(requests))

	for i := range requests {
		protocol := requests[i].Protocol

		// Проверяем, не обрабатывается ли уже
		if o.IsActive(protocol) {
			continue
		}

		if err := o.Submit(protocol, ActionProcess); err != nil {
			o.logger.Error("failed to submit request from poll", "protocol", protocol, "error", err)
			return
		}
	}
}
