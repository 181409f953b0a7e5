// Package config загружает настройки сервисов promptflow.
//
// Источники по возрастанию приоритета: значения по умолчанию, файл
// promptflow.yaml (текущий каталог или ./config), переменные окружения
// (DB_URL, RABBITMQ_URL, OPENAI_API_KEY и т.д.).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shaiso/promptflow/internal/engines"
	"github.com/shaiso/promptflow/internal/telemetry"
)

// Config — настройки всех бинарников. Каждый берёт нужное ему подмножество.
type Config struct {
	// Инфраструктура
	DBURL       string `mapstructure:"db_url"`
	RabbitMQURL string `mapstructure:"rabbitmq_url"`

	// HTTP
	APIPort       string `mapstructure:"api_port"`
	OrchPort      string `mapstructure:"orch_port"`
	SchedulerPort string `mapstructure:"scheduler_port"`
	APIKey        string `mapstructure:"api_key"`
	APIURL        string `mapstructure:"api_url"`

	// Движки
	OpenAIKey     string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL string        `mapstructure:"openai_base_url"`
	OpenAIModel   string        `mapstructure:"openai_model"`
	GeminiKey     string        `mapstructure:"gemini_api_key"`
	GeminiModel   string        `mapstructure:"gemini_model"`
	TelegramToken string        `mapstructure:"telegram_bot_token"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`

	// Оркестратор
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	RequestLease  time.Duration `mapstructure:"request_lease"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`

	// Планировщик
	SchedulerTick time.Duration `mapstructure:"scheduler_tick"`

	// Логирование
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// defaults — значения по умолчанию. Ключ без значения по умолчанию
// не виден viper.Unmarshal из окружения, поэтому здесь перечислены все ключи.
var defaults = map[string]any{
	"db_url":             "",
	"rabbitmq_url":       "",
	"api_port":           "8080",
	"orch_port":          "8082",
	"scheduler_port":     "8081",
	"api_key":            "",
	"api_url":            "http://localhost:8080",
	"openai_api_key":     "",
	"openai_base_url":    "",
	"openai_model":       "",
	"gemini_api_key":     "",
	"gemini_model":       "",
	"telegram_bot_token": "",
	"max_delay":          10 * time.Minute,
	"poll_interval":      10 * time.Second,
	"stale_after":        time.Minute,
	"request_lease":      time.Minute,
	"max_concurrent":     16,
	"scheduler_tick":     time.Second,
	"log_level":          "info",
	"log_format":         "json",
}

// Load читает настройки. path — явный путь к файлу; пустой path
// ищет promptflow.yaml, отсутствие файла ошибкой не считается.
func Load(path string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("promptflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate проверяет значения, которые нельзя исправить молча.
func (c *Config) Validate() error {
	switch {
	case c.PollInterval <= 0:
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	case c.SchedulerTick <= 0:
		return fmt.Errorf("scheduler_tick must be positive, got %s", c.SchedulerTick)
	case c.RequestLease <= 0:
		return fmt.Errorf("request_lease must be positive, got %s", c.RequestLease)
	case c.MaxConcurrent <= 0:
		return fmt.Errorf("max_concurrent must be positive, got %d", c.MaxConcurrent)
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log_format must be json or text, got %q", c.LogFormat)
	}

	return nil
}

// Engines возвращает настройки стандартного набора движков.
func (c *Config) Engines() engines.Config {
	return engines.Config{
		OpenAIKey:     c.OpenAIKey,
		OpenAIBaseURL: c.OpenAIBaseURL,
		OpenAIModel:   c.OpenAIModel,
		GeminiKey:     c.GeminiKey,
		GeminiModel:   c.GeminiModel,
		TelegramToken: c.TelegramToken,
		MaxDelay:      c.MaxDelay,
	}
}

// Log возвращает настройки логгера для сервиса.
func (c *Config) Log(service string) telemetry.LogConfig {
	return telemetry.LogConfig{
		Service: service,
		Level:   c.LogLevel,
		Format:  c.LogFormat,
	}
}

// Addr превращает порт в адрес для http.Server.
func Addr(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}
