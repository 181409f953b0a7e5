package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/shaiso/promptflow/internal/domain"
	"github.com/shaiso/promptflow/internal/engine"
	"github.com/shaiso/promptflow/internal/repo"
	"github.com/shaiso/promptflow/internal/telemetry"
)

// Process выполняет запрос в статусе created от первого шага.
func (o *Orchestrator) Process(ctx context.Context, protocol string) error {
	return o.Execute(ctx, protocol, ActionProcess)
}

// Resume продолжает запрос после последнего сохранённого шага.
// Для завершённого запроса ничего не делает.
func (o *Orchestrator) Resume(ctx context.Context, protocol string) error {
	return o.Execute(ctx, protocol, ActionResume)
}

// Reprocess очищает результаты шагов и выполняет запрос заново.
func (o *Orchestrator) Reprocess(ctx context.Context, protocol string) error {
	return o.Execute(ctx, protocol, ActionReprocess)
}

// Execute синхронно выполняет действие над запросом.
//
// Алгоритм:
//  1. Захватываем protocol (второе выполнение получает ErrRequestAlreadyActive)
//  2. Загружаем запрос и проверяем, допускает ли статус действие
//  3. Переводим запрос в processing через compare-and-set в хранилище;
//     если запрос уже захвачен другим процессом, возвращаем
//     ErrRequestAlreadyActive. Пока шаги выполняются, аренда продлевается
//     (keepLease)
//  4. Для resume восстанавливаем контекст из сохранённых результатов
//  5. Выполняем шаги по порядку, сохраняя результат каждого
//  6. Переводим запрос в completed с итоговым контекстом
//
// Любая ошибка после шага 3 переводит запрос в failed.
func (o *Orchestrator) Execute(ctx context.Context, protocol string, action Action) (err error) {
	if _, err := ParseAction(string(action)); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	state := NewRunState(protocol, action, cancel)
	if err := o.acquire(state); err != nil {
		o.logger.Debug("request not executed", "protocol", protocol, "action", action, "reason", err)
		return err
	}
	defer o.release(protocol)

	logger := telemetry.WithProtocol(o.logger, protocol).With("action", string(action))

	runCtx, span := telemetry.StartSpan(runCtx, o.tracer, "pipeline.execute",
		attribute.String("protocol", protocol),
		attribute.String("action", string(action)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	req, err := o.loadRequest(runCtx, protocol)
	if err != nil {
		logger.Error("failed to load request", "error", err)
		return err
	}

	switch action {
	case ActionProcess:
		switch req.Status {
		case domain.RequestStatusCreated:
		case domain.RequestStatusCompleted:
			logger.Info("request already completed, use reprocess to run it again")
			return fmt.Errorf("%w: %s", ErrRequestCompleted, protocol)
		default:
			logger.Info("request not in created state", "status", req.Status)
			return fmt.Errorf("%w: process from %s", ErrInvalidState, req.Status)
		}
	case ActionResume:
		if req.Status == domain.RequestStatusCompleted {
			logger.Info("request already completed, nothing to resume")
			return nil
		}
	}

	statusBefore := req.Status
	req, err = o.store.ClaimRequest(runCtx, protocol, o.claimFor(action))
	if errors.Is(err, repo.ErrInvalidState) {
		logger.Info("request claimed by another executor", "status", statusBefore)
		return fmt.Errorf("%w: %s", ErrRequestAlreadyActive, protocol)
	}
	if err != nil {
		logger.Error("failed to mark request processing", "error", err)
		return persistence("claim request", err)
	}

	logger.Info("request started", "status_before", statusBefore)

	stopLease := o.keepLease(runCtx, protocol, logger)
	result, err := o.run(runCtx, state, req, logger)
	stopLease()
	if err != nil {
		o.fail(runCtx, protocol, err, logger)
		return err
	}

	if err := o.store.UpdateRequestStatus(runCtx, protocol, domain.Completed(result)); err != nil {
		err = persistence("update status to completed", err)
		o.fail(runCtx, protocol, err, logger)
		return err
	}

	telemetry.RequestsFinished.WithLabelValues(string(domain.RequestStatusCompleted)).Inc()

	stats := state.Stats()
	logger.Info("request completed",
		"steps_executed", stats.CompletedSteps,
		"steps_skipped", stats.SkippedSteps,
		"duration", stats.Elapsed,
	)

	return nil
}

// claimFor строит условие захвата для действия. Запрос в processing
// захватывается, только если его аренда истекла.
func (o *Orchestrator) claimFor(action Action) domain.Claim {
	var from []domain.RequestStatus
	for _, s := range domain.RequestStatuses {
		var ok bool
		switch action {
		case ActionProcess:
			ok = s.CanTransitionTo(domain.RequestStatusProcessing)
		case ActionResume:
			ok = s.CanResume()
		case ActionReprocess:
			ok = s.CanResume() || s.CanTransitionTo(domain.RequestStatusProcessing) || s == domain.RequestStatusCompleted
		}
		if ok {
			from = append(from, s)
		}
	}
	return domain.Claim{From: from, StaleBefore: o.now().Add(-o.lease)}
}

// keepLease продлевает аренду запроса, пока не вызвана возвращённая функция.
func (o *Orchestrator) keepLease(ctx context.Context, protocol string, logger *slog.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(o.lease / 3)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := o.store.TouchRequest(ctx, protocol); err != nil && ctx.Err() == nil {
					logger.Warn("failed to extend request lease", "error", err)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// run выполняет шаги и возвращает итоговый контекст.
func (o *Orchestrator) run(ctx context.Context, state *RunState, req *domain.Request, logger *slog.Logger) (domain.Value, error) {
	if state.Action == ActionReprocess {
		if err := o.store.ResetStepResults(ctx, req.ID); err != nil {
			return domain.Null(), persistence("reset step results", err)
		}
	}

	steps, err := o.store.GetStepsByRequest(ctx, req.ID)
	if err != nil {
		return domain.Null(), persistence("load steps", err)
	}

	ectx := engine.NewExecutionContext()
	resumeFrom := 1

	if state.Action == ActionResume {
		last, err := o.store.GetLastStepResult(ctx, req.ID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
		case err != nil:
			return domain.Null(), persistence("load last step result", err)
		default:
			resumeFrom = last.Order + 1
		}

		results, err := o.store.GetAllStepResults(ctx, req.ID)
		if err != nil {
			return domain.Null(), persistence("load step results", err)
		}
		ectx = engine.Rebuild(results)

		logger.Info("resuming request", "resume_from", resumeFrom, "restored_keys", ectx.Len())
	}

	state.Prepare(req, steps, ectx, resumeFrom)

	for _, step := range state.PendingSteps() {
		if ctx.Err() != nil {
			return domain.Null(), fmt.Errorf("before step %d: %w", step.Order, context.Cause(ctx))
		}

		if err := o.executeStep(ctx, state, step, logger); err != nil {
			return domain.Null(), err
		}
	}

	return ectx.Snapshot(), nil
}

// executeStep выполняет один шаг: подставляет значения, вызывает
// движок, поглощает результат и сохраняет его.
func (o *Orchestrator) executeStep(ctx context.Context, state *RunState, step domain.Step, logger *slog.Logger) (err error) {
	engineName := strings.ToLower(strings.TrimSpace(step.Engine))
	logger = telemetry.WithStep(logger, step.Order, engineName)

	ctx, span := telemetry.StartSpan(ctx, o.tracer, "pipeline.step",
		attribute.Int("step.order", step.Order),
		attribute.String("step.engine", engineName),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	// движки пишут в лог шага (повторы http-command, curl)
	ctx = telemetry.WithLogger(ctx, logger)

	state.StartStep(step.Order)

	params, err := o.store.GetParametersByStep(ctx, step.ID)
	if err != nil {
		return persistence(fmt.Sprintf("load parameters of step %d", step.Order), err)
	}

	bindings := state.Context.Overlay(params)
	content := engine.RenderString(step.Content, bindings)
	rendered := engine.RenderTree(step.Parameters, bindings)

	logger.Debug("executing step", "model", step.Model)

	started := o.now()
	result, err := o.engines.Dispatch(ctx, step.Engine, content, step.Model, rendered)
	elapsed := o.now().Sub(started)
	telemetry.StepDuration.WithLabelValues(engineName).Observe(elapsed.Seconds())

	if err != nil {
		telemetry.StepsTotal.WithLabelValues(engineName, "error").Inc()
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", context.Cause(ctx), err)
		}
		logger.Warn("step failed", "error", err, "duration", elapsed)
		return &StepError{Order: step.Order, Engine: engineName, Err: err}
	}

	telemetry.StepsTotal.WithLabelValues(engineName, "ok").Inc()
	state.Context.Absorb(result)

	// Результат уже получен: сохраняем его даже при отмене,
	// чтобы resume не повторял этот шаг.
	if err := o.store.InsertStepResult(context.WithoutCancel(ctx), state.Request.ID, step.ID, step.Order, result); err != nil {
		return persistence(fmt.Sprintf("save result of step %d", step.Order), err)
	}

	state.CompleteStep()
	logger.Info("step completed", "duration", elapsed)

	return nil
}

// fail переводит запрос в failed. Запись выполняется даже при
// отменённом контексте.
func (o *Orchestrator) fail(ctx context.Context, protocol string, cause error, logger *slog.Logger) {
	telemetry.RequestsFinished.WithLabelValues(string(domain.RequestStatusFailed)).Inc()

	if err := o.store.UpdateRequestStatus(context.WithoutCancel(ctx), protocol, domain.Failed(cause.Error())); err != nil {
		logger.Error("failed to mark request failed", "error", err, "cause", cause)
		return
	}

	logger.Warn("request failed", "error", cause)
}

// loadRequest загружает запрос по protocol.
func (o *Orchestrator) loadRequest(ctx context.Context, protocol string) (*domain.Request, error) {
	req, err := o.store.GetRequestByProtocol(ctx, protocol)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, protocol)
		}
		return nil, persistence("load request", err)
	}
	return req, nil
}
