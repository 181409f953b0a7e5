package engines

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shaiso/promptflow/internal/domain"
)

const (
	// EngineHTTPCommand — имя движка произвольного HTTP-вызова.
	EngineHTTPCommand = "http-command"

	// Значения по умолчанию.
	defaultHTTPTimeout = 5 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// HTTPCommandEngine — вызов произвольного HTTP API.
//
// Параметры:
//
//	{
//	    "baseURL": "https://api.example.com",
//	    "endpoint": "/v1/items",
//	    "method": "POST",
//	    "headers": {"Authorization": "Bearer {{token}}"},
//	    "params": {"page": 1},          // query string
//	    "body": {"title": "{{title}}"}, // по умолчанию {"prompt": content, "model": model}
//	    "timeout": 5000,                // мс
//	    "request_id": "req-1",          // по умолчанию req-<unix ms>
//	    "retries": 2,                   // повторы при сетевых ошибках, 429 и 5xx
//	    "validate_ssl": true
//	}
//
// Результат:
//
//	{"request_id": "req-1", "status": 200, "data": {...}}
//
// Ответ со статусом вне 2xx возвращается как *HTTPError.
type HTTPCommandEngine struct {
	// Transport — базовый транспорт (nil — http.DefaultTransport).
	Transport http.RoundTripper
}

// Execute выполняет HTTP-вызов.
func (e *HTTPCommandEngine) Execute(ctx context.Context, content, model string, params domain.Value) (domain.Value, error) {
	cfg, err := parseHTTPCommandConfig(params)
	if err != nil {
		return domain.Value{}, err
	}

	body := cfg.Body
	if body.IsNull() {
		body = domain.Object(map[string]domain.Value{
			"prompt": domain.String(content),
			"model":  domain.String(model),
		})
	}

	client := buildHTTPClient(e.Transport, cfg.Timeout, true, cfg.ValidateSSL)

	var result *httpResult
	err = cfg.Retry.Do(ctx, isRetryableHTTPError, func(ctx context.Context) error {
		req, err := buildJSONRequest(ctx, cfg.Method, cfg.URL, cfg.Headers, body)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		result, err = doHTTP(ctx, client, req)
		return err
	})
	if err != nil {
		return domain.Value{}, err
	}

	return domain.Object(map[string]domain.Value{
		"request_id": domain.String(cfg.RequestID),
		"status":     domain.Int(int64(result.StatusCode)),
		"data":       result.Body,
	}), nil
}

// httpCommandConfig — распарсенные параметры http-command.
type httpCommandConfig struct {
	Method      string
	URL         string
	Headers     map[string]string
	Body        domain.Value
	Timeout     time.Duration
	RequestID   string
	ValidateSSL bool
	Retry       RetryPolicy
}

func parseHTTPCommandConfig(params domain.Value) (*httpCommandConfig, error) {
	baseURL, _ := params.StringField("baseURL")
	endpoint, _ := params.StringField("endpoint")
	method, _ := params.StringField("method")

	if baseURL == "" || endpoint == "" || method == "" {
		return nil, invalidParams(EngineHTTPCommand, `"baseURL", "endpoint" and "method" are required`)
	}

	target, err := joinURL(baseURL, endpoint)
	if err != nil {
		return nil, invalidParams(EngineHTTPCommand, "%v", err)
	}

	if query, ok := params.Field("params"); ok && query.Kind() == domain.KindObject {
		q := target.Query()
		for _, k := range query.Keys() {
			v, _ := query.Field(k)
			q.Set(k, v.Text())
		}
		target.RawQuery = q.Encode()
	}

	cfg := &httpCommandConfig{
		Method:      strings.ToUpper(method),
		URL:         target.String(),
		Headers:     stringMap(params, "headers"),
		Timeout:     defaultHTTPTimeout,
		RequestID:   fmt.Sprintf("req-%d", time.Now().UnixMilli()),
		ValidateSSL: true,
		Retry:       retryPolicyFromParams(params),
	}

	if body, ok := params.Field("body"); ok {
		cfg.Body = body
	}
	if ms, ok := params.IntField("timeout"); ok && ms > 0 {
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}
	if id, ok := params.StringField("request_id"); ok && id != "" {
		cfg.RequestID = id
	}
	if v, ok := params.BoolField("validate_ssl"); ok {
		cfg.ValidateSSL = v
	}

	return cfg, nil
}

// joinURL склеивает baseURL и endpoint. Абсолютный endpoint используется как есть.
func joinURL(baseURL, endpoint string) (*url.URL, error) {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return url.Parse(endpoint)
	}
	return url.Parse(strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(endpoint, "/"))
}

// stringMap читает объект параметров как map[string]string.
func stringMap(params domain.Value, key string) map[string]string {
	out := make(map[string]string)
	obj, ok := params.Field(key)
	if !ok || obj.Kind() != domain.KindObject {
		return out
	}
	for _, k := range obj.Keys() {
		v, _ := obj.Field(k)
		out[k] = v.Text()
	}
	return out
}

// buildHTTPClient создаёт клиент с таймаутом и настройками TLS/редиректов.
func buildHTTPClient(base http.RoundTripper, timeout time.Duration, followRedirects, validateSSL bool) *http.Client {
	transport := base
	if transport == nil {
		if validateSSL {
			transport = http.DefaultTransport
		} else {
			t := http.DefaultTransport.(*http.Transport).Clone()
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
			transport = t
		}
	}

	var checkRedirect func(*http.Request, []*http.Request) error
	if !followRedirects {
		checkRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &http.Client{
		Timeout:       timeout,
		CheckRedirect: checkRedirect,
		Transport:     transport,
	}
}

// buildJSONRequest создаёт запрос; нестроковое тело сериализуется в JSON.
func buildJSONRequest(ctx context.Context, method, target string, headers map[string]string, body domain.Value) (*http.Request, error) {
	var bodyReader io.Reader

	if !body.IsNull() && method != http.MethodGet && method != http.MethodHead {
		var payload []byte
		if s, ok := body.AsString(); ok {
			payload = []byte(s)
		} else {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("serialize body: %w", err)
			}
			payload = data
			if _, has := headers["Content-Type"]; !has {
				headers["Content-Type"] = "application/json"
			}
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// httpResult — разобранный HTTP-ответ.
type httpResult struct {
	StatusCode int
	Headers    map[string]string
	Body       domain.Value
}

// doHTTP выполняет запрос и разбирает ответ. Статус вне 2xx — *HTTPError.
func doHTTP(ctx context.Context, client *http.Client, req *http.Request) (*httpResult, error) {
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(context.Cause(ctx))
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return &httpResult{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       parseBody(raw),
	}, nil
}

// parseBody разбирает тело как JSON, иначе возвращает строку.
func parseBody(raw []byte) domain.Value {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return domain.String("")
	}
	if v, err := domain.ParseJSON(trimmed); err == nil {
		return v
	}
	return domain.String(string(raw))
}

// HTTPError — ответ со статусом вне 2xx.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
	if e.Body != "" {
		body := e.Body
		if len(body) > 512 {
			body = body[:512] + "..."
		}
		msg += ": " + body
	}
	return msg
}

// isRetryableHTTPError — сетевые ошибки, 429 и 5xx. Отмену не повторяем.
func isRetryableHTTPError(err error) bool {
	if errors.Is(err, ErrCancelled) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	return true
}
