package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики конвейера.
var (
	// RequestsFinished — запросы, завершившие выполнение, по итоговому статусу.
	RequestsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptflow_requests_finished_total",
		Help: "Requests that finished execution, by final status",
	}, []string{"status"})

	// StepsTotal — выполненные шаги по движку и исходу (ok, error).
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptflow_steps_total",
		Help: "Executed pipeline steps, by engine and outcome",
	}, []string{"engine", "outcome"})

	// StepDuration — длительность вызова движка.
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "promptflow_step_duration_seconds",
		Help:    "Engine dispatch duration",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"engine"})

	// HTTPRequests — обработанные HTTP-запросы API.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptflow_api_http_requests_total",
		Help: "HTTP requests handled by promptflow-api, by status code class",
	}, []string{"code"})

	// SchedulesFired — срабатывания расписаний.
	SchedulesFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptflow_schedules_fired_total",
		Help: "Schedule ticks that triggered a request reprocess",
	})
)
