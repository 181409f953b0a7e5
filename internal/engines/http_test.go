package engines

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shaiso/promptflow/internal/domain"
)

func TestHTTPCommandEngine_Execute(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/items" {
			t.Errorf("path = %s, want /v1/items", r.URL.Path)
		}
		if r.URL.Query().Get("page") != "2" {
			t.Errorf("query page = %q, want 2", r.URL.Query().Get("page"))
		}
		if r.Header.Get("Authorization") != "Bearer t0k" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 7, "ok": true}`))
	}))
	defer srv.Close()

	params := mustParse(t, `{
		"baseURL": "`+srv.URL+`",
		"endpoint": "/v1/items",
		"method": "post",
		"headers": {"Authorization": "Bearer t0k"},
		"params": {"page": 2},
		"request_id": "req-1"
	}`)

	e := &HTTPCommandEngine{}
	got, err := e.Execute(context.Background(), "write a title", "gpt-4o", params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Тело по умолчанию
	if gotBody["prompt"] != "write a title" || gotBody["model"] != "gpt-4o" {
		t.Errorf("unexpected default body: %v", gotBody)
	}

	want := mustParse(t, `{"request_id": "req-1", "status": 200, "data": {"id": 7, "ok": true}}`)
	if !got.Equal(want) {
		t.Errorf("got %s, want %s", got.Text(), want.Text())
	}
}

func TestHTTPCommandEngine_ExplicitBody(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q", r.Header.Get("Content-Type"))
		}
		w.Write([]byte("plain text"))
	}))
	defer srv.Close()

	params := mustParse(t, `{
		"baseURL": "`+srv.URL+`/",
		"endpoint": "hook",
		"method": "PUT",
		"body": {"title": "hello"}
	}`)

	got, err := (&HTTPCommandEngine{}).Execute(context.Background(), "", "", params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody["title"] != "hello" {
		t.Errorf("unexpected body: %v", gotBody)
	}
	data, _ := got.Field("data")
	if s, _ := data.AsString(); s != "plain text" {
		t.Errorf("data = %s, want plain text", data.Text())
	}
}

func TestHTTPCommandEngine_MissingParams(t *testing.T) {
	_, err := (&HTTPCommandEngine{}).Execute(context.Background(), "", "", mustParse(t, `{"baseURL": "http://x"}`))
	if !errors.Is(err, ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
}

func TestHTTPCommandEngine_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "bad"}`))
	}))
	defer srv.Close()

	params := mustParse(t, `{"baseURL": "`+srv.URL+`", "endpoint": "/", "method": "GET", "retries": 3, "retry_delay_ms": 1}`)
	_, err := (&HTTPCommandEngine{}).Execute(context.Background(), "", "", params)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", httpErr.StatusCode)
	}
}

func TestHTTPCommandEngine_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	params := mustParse(t, `{"baseURL": "`+srv.URL+`", "endpoint": "/", "method": "GET", "retries": 2, "retry_delay_ms": 1}`)
	got, err := (&HTTPCommandEngine{}).Execute(context.Background(), "", "", params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if status, _ := got.IntField("status"); status != 200 {
		t.Errorf("status = %d, want 200", status)
	}
}

func TestIsRetryableHTTPError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", errors.New("connection refused"), true},
		{"429", &HTTPError{StatusCode: 429}, true},
		{"502", &HTTPError{StatusCode: 502}, true},
		{"404", &HTTPError{StatusCode: 404}, false},
		{"cancelled", cancelled(context.Canceled), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableHTTPError(tt.err); got != tt.want {
				t.Errorf("isRetryableHTTPError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestParseBody(t *testing.T) {
	if v := parseBody([]byte(`  {"a": 1} `)); v.Kind() != domain.KindObject {
		t.Errorf("expected object, got %s", v.Kind())
	}
	if v := parseBody(nil); v.Text() != "" {
		t.Errorf("expected empty string, got %q", v.Text())
	}
	if v := parseBody([]byte("oops")); v.Text() != "oops" {
		t.Errorf("expected raw string, got %q", v.Text())
	}
}
