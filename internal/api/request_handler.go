package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/promptflow/internal/domain"
	"github.com/shaiso/promptflow/internal/engine"
	"github.com/shaiso/promptflow/internal/orchestrator"
	"github.com/shaiso/promptflow/internal/repo"
	"github.com/shaiso/promptflow/internal/scheduler"
)

// maxBodyBytes — предельный размер тела запроса.
const maxBodyBytes = 4 << 20

// ListRequests возвращает список запросов.
// GET /api/v1/requests?status=...&limit=...&offset=...
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	filter := repo.RequestFilter{
		Limit:  parseIntParam(r.URL.Query().Get("limit"), 50),
		Offset: parseIntParam(r.URL.Query().Get("offset"), 0),
	}

	if s := r.URL.Query().Get("status"); s != "" {
		status, ok := domain.ParseRequestStatus(s)
		if !ok {
			BadRequest(w, "invalid status: "+s)
			return
		}
		filter.Status = status
	}

	requests, err := h.store.ListRequests(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RequestResponse, len(requests))
	for i, req := range requests {
		result[i] = RequestFromDomain(req)
	}

	List(w, result, len(result))
}

// CreateRequest принимает запрос и запускает его асинхронно.
// POST /api/v1/requests
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	spec, err := engine.ParseRequestSpec(body)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	var known engine.EngineLookup
	if h.engines != nil {
		known = h.engines.Has
	}
	if err := engine.Validate(spec, known); err != nil {
		ValidationFailed(w, err)
		return
	}

	schedule, err := h.scheduleFromHeaders(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	protocol := uuid.NewString()

	req, err := h.store.CreateRequestTx(r.Context(), protocol, spec, schedule)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	logger := h.logger.With("protocol", protocol)
	logger.Info("request accepted", "steps", len(spec.Steps), "scheduled", schedule != nil)

	// Ошибка запуска не фатальна: запрос уже сохранён,
	// оркестратор подберёт его через polling
	if err := h.trigger.Trigger(r.Context(), req.Protocol, orchestrator.ActionProcess); err != nil {
		logger.Warn("failed to trigger request processing", "error", err)
	}

	resp := CreateRequestResponse{
		Protocol: req.Protocol,
		Warnings: engine.UnresolvedPlaceholders(spec),
	}
	if schedule != nil {
		s := ScheduleFromDomain(*schedule)
		resp.Schedule = &s
	}

	Accepted(w, resp)
}

// GetRequest возвращает запрос.
// GET /api/v1/requests/{protocol}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := h.loadRequest(w, r)
	if !ok {
		return
	}

	Success(w, RequestFromDomain(*req))
}

// GetProgress возвращает статус и выполненные шаги.
// GET /api/v1/requests/{protocol}/progress
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	req, ok := h.loadRequest(w, r)
	if !ok {
		return
	}

	steps, err := h.store.GetStepsByRequest(r.Context(), req.ID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	results, err := h.store.GetAllStepResults(r.Context(), req.ID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	schedules, err := h.store.ListSchedulesByRequest(r.Context(), req.ID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	progress := BuildProgress(*req, steps, results)
	for _, s := range schedules {
		progress.Schedules = append(progress.Schedules, ScheduleFromDomain(s))
	}

	Success(w, progress)
}

// GetResult возвращает агрегированный результат; {} пока его нет.
// GET /api/v1/requests/{protocol}/result
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	req, ok := h.loadRequest(w, r)
	if !ok {
		return
	}

	result := domain.Object(nil)
	if req.Result != nil {
		result = *req.Result
	}

	Success(w, result)
}

// ResumeRequest продолжает запрос с первого несохранённого шага.
// POST /api/v1/requests/{protocol}/resume
func (h *Handler) ResumeRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := h.loadRequest(w, r)
	if !ok {
		return
	}

	if req.Status == domain.RequestStatusCompleted {
		Conflict(w, "request already completed, use reprocess to run it again")
		return
	}

	h.triggerAction(w, r, req.Protocol, orchestrator.ActionResume)
}

// ReprocessRequest перезапускает запрос целиком.
// POST /api/v1/requests/{protocol}/reprocess
func (h *Handler) ReprocessRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := h.loadRequest(w, r)
	if !ok {
		return
	}

	h.triggerAction(w, r, req.Protocol, orchestrator.ActionReprocess)
}

// CancelRequest отменяет выполняющийся запрос.
// POST /api/v1/requests/{protocol}/cancel
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := h.loadRequest(w, r)
	if !ok {
		return
	}

	if h.canceller == nil {
		Conflict(w, "cancellation is only available when requests run inside the API process")
		return
	}

	if err := h.canceller.Cancel(req.Protocol); err != nil {
		if errors.Is(err, orchestrator.ErrRequestNotActive) {
			Conflict(w, "request is not running")
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	Accepted(w, map[string]string{"protocol": req.Protocol, "action": "cancel"})
}

// DeleteRequest удаляет запрос со всеми шагами, результатами и расписаниями.
// DELETE /api/v1/requests/{protocol}
func (h *Handler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	err := h.store.DeleteRequest(r.Context(), r.PathValue("protocol"))
	if HandleRepoError(w, h.logger, err, "request not found") {
		return
	}

	NoContent(w)
}

// ListEngines возвращает имена зарегистрированных движков.
// GET /api/v1/engines
func (h *Handler) ListEngines(w http.ResponseWriter, _ *http.Request) {
	names := []string{}
	if h.engines != nil {
		names = h.engines.Names()
	}

	Success(w, EnginesResponse{Engines: names})
}

// --- Helpers ---

func (h *Handler) loadRequest(w http.ResponseWriter, r *http.Request) (*domain.Request, bool) {
	req, err := h.store.GetRequestByProtocol(r.Context(), r.PathValue("protocol"))
	if HandleRepoError(w, h.logger, err, "request not found") {
		return nil, false
	}
	return req, true
}

func (h *Handler) triggerAction(w http.ResponseWriter, r *http.Request, protocol string, action orchestrator.Action) {
	if err := h.trigger.Trigger(r.Context(), protocol, action); err != nil {
		InternalError(w, h.logger, fmt.Errorf("trigger %s: %w", action, err))
		return
	}

	Accepted(w, map[string]string{"protocol": protocol, "action": string(action)})
}

// scheduleFromHeaders строит расписание из заголовков x-cron-*.
// Без x-cron-expression возвращает nil.
func (h *Handler) scheduleFromHeaders(r *http.Request) (*domain.Schedule, error) {
	expr := r.Header.Get(HeaderCronExpression)
	if expr == "" {
		return nil, nil
	}

	startAt, err := parseTimeHeader(r, HeaderCronStartAt)
	if err != nil {
		return nil, err
	}
	endAt, err := parseTimeHeader(r, HeaderCronEndAt)
	if err != nil {
		return nil, err
	}

	tz := r.Header.Get(HeaderCronTimezone)
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("invalid %s: %s", HeaderCronTimezone, tz)
		}
	}

	return scheduler.NewSchedule(expr, tz, startAt, endAt, h.now())
}

func parseTimeHeader(r *http.Request, name string) (*time.Time, error) {
	v := r.Header.Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: expected RFC 3339 timestamp", name)
	}
	return &t, nil
}

// parseIntParam разбирает неотрицательное число или возвращает def.
func parseIntParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
