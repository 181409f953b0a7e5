package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shaiso/promptflow/internal/domain"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// RequestResponse — запрос из API.
type RequestResponse struct {
	Protocol   string `json:"protocol"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// ScheduleResponse — расписание из API.
type ScheduleResponse struct {
	ID        int64  `json:"id"`
	CronExpr  string `json:"cron_expr"`
	Timezone  string `json:"timezone"`
	StartAt   string `json:"start_at,omitempty"`
	EndAt     string `json:"end_at,omitempty"`
	Enabled   bool   `json:"enabled"`
	NextDueAt string `json:"next_due_at,omitempty"`
	LastRunAt string `json:"last_run_at,omitempty"`
}

// CreateRequestResponse — ответ на приём запроса.
type CreateRequestResponse struct {
	Protocol string            `json:"protocol"`
	Schedule *ScheduleResponse `json:"schedule,omitempty"`
	Warnings map[int][]string  `json:"warnings,omitempty"`
}

// StepProgress — состояние шага.
type StepProgress struct {
	Order       int    `json:"order"`
	Engine      string `json:"engine"`
	Model       string `json:"model,omitempty"`
	Completed   bool   `json:"completed"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// ProgressResponse — прогресс запроса.
type ProgressResponse struct {
	Protocol       string             `json:"protocol"`
	Status         string             `json:"status"`
	Error          string             `json:"error,omitempty"`
	TotalSteps     int                `json:"total_steps"`
	CompletedSteps int                `json:"completed_steps"`
	Steps          []StepProgress     `json:"steps"`
	Schedules      []ScheduleResponse `json:"schedules,omitempty"`
}

// ActionResponse — ответ на управляющую команду.
type ActionResponse struct {
	Protocol string `json:"protocol"`
	Action   string `json:"action"`
}

// --- Request types ---

// ScheduleOpts — параметры расписания, передаются заголовками x-cron-*.
type ScheduleOpts struct {
	CronExpr string
	Timezone string
	StartAt  string
	EndAt    string
}

func (o ScheduleOpts) headers() http.Header {
	h := http.Header{}
	if o.CronExpr == "" {
		return h
	}
	h.Set("x-cron-expression", o.CronExpr)
	if o.Timezone != "" {
		h.Set("x-cron-timezone", o.Timezone)
	}
	if o.StartAt != "" {
		h.Set("x-cron-start-at", o.StartAt)
	}
	if o.EndAt != "" {
		h.Set("x-cron-end-at", o.EndAt)
	}
	return h
}

// ListRequestsOpts — параметры фильтрации запросов.
type ListRequestsOpts struct {
	Status string
	Limit  int
	Offset int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Step    int    `json:"step,omitempty"`
		Field   string `json:"field,omitempty"`
	} `json:"error"`
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для PromptFlow API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт клиент для API. Пустой apiKey не отправляется.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Requests ---

// ListRequests возвращает список запросов с фильтрацией.
func (c *Client) ListRequests(opts ListRequestsOpts) ([]RequestResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	var requests []RequestResponse
	err := c.list("/api/v1/requests", params, &requests)
	return requests, err
}

// CreateRequest отправляет описание запроса; расписание опционально.
func (c *Client) CreateRequest(spec *domain.RequestSpec, sched ScheduleOpts) (*CreateRequestResponse, error) {
	var created CreateRequestResponse
	err := c.doData(http.MethodPost, "/api/v1/requests", spec, sched.headers(), &created)
	return &created, err
}

// GetRequest возвращает запрос по протоколу.
func (c *Client) GetRequest(protocol string) (*RequestResponse, error) {
	var req RequestResponse
	err := c.get(requestPath(protocol, ""), &req)
	return &req, err
}

// GetProgress возвращает прогресс запроса.
func (c *Client) GetProgress(protocol string) (*ProgressResponse, error) {
	var progress ProgressResponse
	err := c.get(requestPath(protocol, "/progress"), &progress)
	return &progress, err
}

// GetResult возвращает агрегированный результат.
func (c *Client) GetResult(protocol string) (map[string]any, error) {
	var result map[string]any
	err := c.get(requestPath(protocol, "/result"), &result)
	return result, err
}

// Resume продолжает запрос.
func (c *Client) Resume(protocol string) (*ActionResponse, error) {
	return c.action(protocol, "resume")
}

// Reprocess перезапускает запрос целиком.
func (c *Client) Reprocess(protocol string) (*ActionResponse, error) {
	return c.action(protocol, "reprocess")
}

// Cancel отменяет активный запрос.
func (c *Client) Cancel(protocol string) (*ActionResponse, error) {
	return c.action(protocol, "cancel")
}

// DeleteRequest удаляет запрос.
func (c *Client) DeleteRequest(protocol string) error {
	return c.delete(requestPath(protocol, ""))
}

// ListEngines возвращает зарегистрированные движки.
func (c *Client) ListEngines() ([]string, error) {
	var resp struct {
		Engines []string `json:"engines"`
	}
	err := c.get("/api/v1/engines", &resp)
	return resp.Engines, err
}

func (c *Client) action(protocol, action string) (*ActionResponse, error) {
	var resp ActionResponse
	err := c.post(requestPath(protocol, "/"+action), nil, &resp)
	return &resp, err
}

func requestPath(protocol, suffix string) string {
	return "/api/v1/requests/" + url.PathEscape(protocol) + suffix
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, nil, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, header http.Header, result any) error {
	resp, err := c.do(method, path, body, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any, header http.Header) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode}
	}

	msg := er.Error.Message
	if er.Error.Field != "" {
		msg = fmt.Sprintf("step %d, %s: %s", er.Error.Step, er.Error.Field, msg)
	}
	return &APIError{Status: resp.StatusCode, Code: er.Error.Code, Message: msg}
}
