package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/shaiso/promptflow/internal/domain"
	"github.com/shaiso/promptflow/internal/engine"
)

// RunState — состояние одного выполнения запроса в памяти.
//
// Создаётся при захвате запроса и удаляется после перехода в
// completed или failed. Контекст выполнения принадлежит только
// этому выполнению и никогда не разделяется.
type RunState struct {
	protocol string

	// Request — запрос на момент старта.
	Request *domain.Request

	// Action — действие, запустившее выполнение.
	Action Action

	// Steps — шаги по возрастанию Order.
	Steps []domain.Step

	// Context — накопленный контекст выполнения.
	Context *engine.ExecutionContext

	// ResumeFrom — первый Order, который нужно выполнить.
	ResumeFrom int

	cancel    context.CancelCauseFunc
	startedAt time.Time

	mu        sync.RWMutex
	current   int
	completed int
}

// NewRunState создаёт состояние для выполнения.
func NewRunState(protocol string, action Action, cancel context.CancelCauseFunc) *RunState {
	return &RunState{
		protocol:   protocol,
		Action:     action,
		Context:    engine.NewExecutionContext(),
		ResumeFrom: 1,
		cancel:     cancel,
		startedAt:  time.Now(),
	}
}

// Prepare задаёт запрос, шаги, восстановленный контекст и точку продолжения.
func (s *RunState) Prepare(req *domain.Request, steps []domain.Step, ectx *engine.ExecutionContext, resumeFrom int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Request = req
	s.Steps = steps
	s.Context = ectx
	s.ResumeFrom = resumeFrom
}

// Protocol возвращает protocol запроса.
func (s *RunState) Protocol() string {
	return s.protocol
}

// PendingSteps возвращает шаги с Order >= ResumeFrom.
// Шаги обходятся сравнением Order, поэтому пропуски в нумерации допустимы.
func (s *RunState) PendingSteps() []domain.Step {
	var pending []domain.Step
	for _, step := range s.Steps {
		if step.Order >= s.ResumeFrom {
			pending = append(pending, step)
		}
	}
	return pending
}

// StartStep отмечает начало шага.
func (s *RunState) StartStep(order int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = order
}

// CompleteStep отмечает успешный шаг.
func (s *RunState) CompleteStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
	s.current = 0
}

// RunStats — статистика активного выполнения.
type RunStats struct {
	Protocol       string        `json:"protocol"`
	Action         Action        `json:"action"`
	TotalSteps     int           `json:"total_steps"`
	SkippedSteps   int           `json:"skipped_steps"`
	CompletedSteps int           `json:"completed_steps"`
	CurrentStep    int           `json:"current_step,omitempty"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Stats возвращает статистику выполнения.
func (s *RunState) Stats() RunStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return RunStats{
		Protocol:       s.Protocol(),
		Action:         s.Action,
		TotalSteps:     len(s.Steps),
		SkippedSteps:   len(s.Steps) - len(s.PendingSteps()),
		CompletedSteps: s.completed,
		CurrentStep:    s.current,
		Elapsed:        time.Since(s.startedAt),
	}
}
