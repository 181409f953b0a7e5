package engines

import (
	"context"
	"time"

	"github.com/shaiso/promptflow/internal/domain"
	"github.com/shaiso/promptflow/internal/telemetry"
)

// RetryPolicy — политика повторов внутри движка.
//
// Ядро выполнения не повторяет шаги; повторять сетевые вызовы могут сами
// движки (сейчас — http-command и curl через параметры retries/retry_delay_ms).
type RetryPolicy struct {
	// MaxAttempts — общее число попыток (1 — без повторов).
	MaxAttempts int

	// InitialDelay — задержка перед первым повтором.
	InitialDelay time.Duration

	// MaxDelay — потолок задержки.
	MaxDelay time.Duration

	// Exponential — удваивать задержку с каждой попыткой.
	Exponential bool
}

// retryPolicyFromParams читает retries, retry_delay_ms и retry_backoff.
func retryPolicyFromParams(params domain.Value) RetryPolicy {
	policy := RetryPolicy{MaxAttempts: 1, Exponential: true}

	if n, ok := params.IntField("retries"); ok && n > 0 {
		policy.MaxAttempts = n + 1
	}
	if ms, ok := params.IntField("retry_delay_ms"); ok && ms > 0 {
		policy.InitialDelay = time.Duration(ms) * time.Millisecond
	}
	if b, ok := params.StringField("retry_backoff"); ok && b == "fixed" {
		policy.Exponential = false
	}

	return policy
}

// Backoff вычисляет задержку перед повтором номер attempt (начиная с 1).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	initialDelay := p.InitialDelay
	if initialDelay <= 0 {
		initialDelay = 500 * time.Millisecond
	}

	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	if !p.Exponential {
		return min(initialDelay, maxDelay)
	}

	// delay = initialDelay * 2^(attempt-1)
	delay := initialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}

// Do выполняет fn с повторами, пока retryable(err) истинно.
// Ожидание между попытками прерывается отменой ctx.
func (p RetryPolicy) Do(ctx context.Context, retryable func(error) bool, fn func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt == attempts || !retryable(err) {
			return err
		}

		delay := p.Backoff(attempt)
		telemetry.FromContext(ctx).Warn("engine call failed, retrying",
			"attempt", attempt, "max_attempts", attempts, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return cancelled(context.Cause(ctx))
		case <-timer.C:
		}
	}
	return err
}
