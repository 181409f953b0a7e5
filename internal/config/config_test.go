package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIPort != "8080" || cfg.PollInterval != 10*time.Second || cfg.MaxConcurrent != 16 || cfg.RequestLease != time.Minute {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.LogFormat != "json" || cfg.LogLevel != "info" {
		t.Errorf("log defaults = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "promptflow.yaml")
	content := []byte(`
db_url: postgres://file/db
poll_interval: 30s
openai_api_key: from-file
log_format: text
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("MAX_CONCURRENT", "4")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"db_url from file", cfg.DBURL, "postgres://file/db"},
		{"poll_interval from file", cfg.PollInterval, 30 * time.Second},
		{"openai key from env", cfg.OpenAIKey, "from-env"},
		{"max_concurrent from env", cfg.MaxConcurrent, 4},
		{"log_format from file", cfg.LogFormat, "text"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	if got := cfg.Engines().OpenAIKey; got != "from-env" {
		t.Errorf("Engines().OpenAIKey = %q", got)
	}
	if got := cfg.Log("promptflow-api"); got.Service != "promptflow-api" || got.Format != "text" {
		t.Errorf("Log() = %+v", got)
	}
}

func TestLoad_DiscoversFileInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "promptflow.yaml"), []byte("api_port: \"9999\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIPort != "9999" {
		t.Errorf("APIPort = %q, want 9999", cfg.APIPort)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero poll interval", map[string]string{"POLL_INTERVAL": "0s"}},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"negative concurrency", map[string]string{"MAX_CONCURRENT": "-1"}},
		{"zero request lease", map[string]string{"REQUEST_LEASE": "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Error("Load() should fail")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() with missing explicit file should fail")
	}
}

func TestAddr(t *testing.T) {
	if got := Addr("8080"); got != ":8080" {
		t.Errorf("Addr(8080) = %q", got)
	}
	if got := Addr("127.0.0.1:8080"); got != "127.0.0.1:8080" {
		t.Errorf("Addr(host:port) = %q", got)
	}
}
