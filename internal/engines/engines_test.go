package engines

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/promptflow/internal/domain"
)

func mustParse(t *testing.T, s string) domain.Value {
	t.Helper()
	v, err := domain.ParseJSON([]byte(s))
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return v
}

func TestEcho_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Echo().Execute(ctx, "x", "", domain.Null())
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
}

func TestDelayEngine_ParseDuration(t *testing.T) {
	tests := []struct {
		name    string
		content string
		params  string
		max     time.Duration
		want    time.Duration
		wantErr bool
	}{
		{name: "duration_sec", params: `{"duration_sec": 5}`, want: 5 * time.Second},
		{name: "duration_ms", params: `{"duration_ms": 500}`, want: 500 * time.Millisecond},
		{name: "sec wins", params: `{"duration_sec": 1, "duration_ms": 500}`, want: time.Second},
		{name: "string number", params: `{"duration_ms": "250"}`, want: 250 * time.Millisecond},
		{name: "content", content: "1.5s", params: `{}`, want: 1500 * time.Millisecond},
		{name: "bad content", content: "soon", params: `{}`, wantErr: true},
		{name: "empty", params: `{}`, wantErr: true},
		{name: "zero", params: `{"duration_ms": 0}`, wantErr: true},
		{name: "over limit", params: `{"duration_sec": 120}`, max: time.Minute, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &DelayEngine{MaxDuration: tt.max}
			got, err := e.parseDuration(tt.content, mustParse(t, tt.params))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidParams) {
					t.Errorf("expected ErrInvalidParams, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("duration = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDelayEngine_Execute(t *testing.T) {
	e := &DelayEngine{}

	start := time.Now()
	got, err := e.Execute(context.Background(), "", "", mustParse(t, `{"duration_ms": 20}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("returned too early: %v", elapsed)
	}
	if ms, _ := got.IntField("delayed_ms"); ms != 20 {
		t.Errorf("delayed_ms = %d, want 20", ms)
	}
}

func TestDelayEngine_Cancel(t *testing.T) {
	e := &DelayEngine{}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := e.Execute(ctx, "", "", mustParse(t, `{"duration_sec": 10}`))
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected cause DeadlineExceeded, got %v", err)
	}
}

func TestTransformEngine(t *testing.T) {
	params := mustParse(t, `{
		"mappings": {
			"total": "10",
			"flag": "true",
			"items": "[1, 2]",
			"title": "Order 42",
			"raw": {"nested": 1},
			"blank": ""
		}
	}`)

	got, err := TransformEngine{}.Execute(context.Background(), "", "", params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := mustParse(t, `{
		"total": 10,
		"flag": true,
		"items": [1, 2],
		"title": "Order 42",
		"raw": {"nested": 1},
		"blank": ""
	}`)
	if !got.Equal(want) {
		t.Errorf("got %s, want %s", got.Text(), want.Text())
	}

	empty, err := TransformEngine{}.Execute(context.Background(), "", "", mustParse(t, `{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if empty.Kind() != domain.KindObject || empty.Len() != 0 {
		t.Errorf("expected empty object, got %s", empty.Text())
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		attempt int
		want    time.Duration
	}{
		{"default first", RetryPolicy{Exponential: true}, 1, 500 * time.Millisecond},
		{"default second", RetryPolicy{Exponential: true}, 2, time.Second},
		{"exponential", RetryPolicy{InitialDelay: 100 * time.Millisecond, Exponential: true}, 4, 800 * time.Millisecond},
		{"capped", RetryPolicy{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Exponential: true}, 5, 3 * time.Second},
		{"fixed", RetryPolicy{InitialDelay: 200 * time.Millisecond}, 5, 200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Backoff(tt.attempt); got != tt.want {
				t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestRetryPolicy_Do(t *testing.T) {
	transient := errors.New("transient")
	fatal := errors.New("fatal")
	retryable := func(err error) bool { return errors.Is(err, transient) }

	t.Run("succeeds after retries", func(t *testing.T) {
		p := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond}
		calls := 0
		err := p.Do(context.Background(), retryable, func(context.Context) error {
			calls++
			if calls < 3 {
				return transient
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("stops on non retryable", func(t *testing.T) {
		p := RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond}
		calls := 0
		err := p.Do(context.Background(), retryable, func(context.Context) error {
			calls++
			return fatal
		})
		if !errors.Is(err, fatal) || calls != 1 {
			t.Errorf("err = %v, calls = %d", err, calls)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		p := RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond}
		calls := 0
		err := p.Do(context.Background(), retryable, func(context.Context) error {
			calls++
			return transient
		})
		if !errors.Is(err, transient) || calls != 2 {
			t.Errorf("err = %v, calls = %d", err, calls)
		}
	})

	t.Run("cancel during backoff", func(t *testing.T) {
		p := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Hour}
		ctx, cancel := context.WithCancel(context.Background())
		err := p.Do(ctx, retryable, func(context.Context) error {
			cancel()
			return transient
		})
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("expected ErrCancelled, got %v", err)
		}
	})
}

func TestRetryPolicyFromParams(t *testing.T) {
	p := retryPolicyFromParams(mustParse(t, `{"retries": 2, "retry_delay_ms": 50, "retry_backoff": "fixed"}`))
	if p.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", p.MaxAttempts)
	}
	if p.InitialDelay != 50*time.Millisecond {
		t.Errorf("InitialDelay = %v", p.InitialDelay)
	}
	if p.Exponential {
		t.Error("expected fixed backoff")
	}

	def := retryPolicyFromParams(mustParse(t, `{}`))
	if def.MaxAttempts != 1 || !def.Exponential {
		t.Errorf("unexpected default policy: %+v", def)
	}
}
