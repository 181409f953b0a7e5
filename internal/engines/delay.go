package engines

import (
	"context"
	"strings"
	"time"

	"github.com/shaiso/promptflow/internal/domain"
)

// EngineDelay — имя движка задержки.
const EngineDelay = "delay"

// DelayEngine приостанавливает конвейер на заданное время.
//
// Параметры:
//
//	{"duration_ms": 5000}   // или
//	{"duration_sec": 10}
//
// Если параметров нет, content разбирается как time.Duration ("1.5s").
// Поддерживает отмену через ctx.
type DelayEngine struct {
	// MaxDuration ограничивает задержку сверху (0 — без ограничения).
	MaxDuration time.Duration
}

// Execute выполняет задержку.
func (e *DelayEngine) Execute(ctx context.Context, content, _ string, params domain.Value) (domain.Value, error) {
	duration, err := e.parseDuration(content, params)
	if err != nil {
		return domain.Value{}, err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return domain.Value{}, cancelled(context.Cause(ctx))
	case <-timer.C:
		return domain.Object(map[string]domain.Value{
			"delayed_ms": domain.Int(duration.Milliseconds()),
		}), nil
	}
}

func (e *DelayEngine) parseDuration(content string, params domain.Value) (time.Duration, error) {
	var d time.Duration

	if sec, ok := params.IntField("duration_sec"); ok && sec > 0 {
		d = time.Duration(sec) * time.Second
	} else if ms, ok := params.IntField("duration_ms"); ok && ms > 0 {
		d = time.Duration(ms) * time.Millisecond
	} else if s := strings.TrimSpace(content); s != "" {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, invalidParams(EngineDelay, "parse duration %q: %v", s, err)
		}
		d = parsed
	}

	if d <= 0 {
		return 0, invalidParams(EngineDelay, "duration_sec or duration_ms required")
	}
	if e.MaxDuration > 0 && d > e.MaxDuration {
		return 0, invalidParams(EngineDelay, "duration %s exceeds limit %s", d, e.MaxDuration)
	}
	return d, nil
}
