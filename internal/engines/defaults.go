package engines

import (
	"net/http"
	"time"
)

// Config — настройки стандартного набора движков.
type Config struct {
	// OpenAIKey включает движок openai.
	OpenAIKey string

	// OpenAIBaseURL — альтернативный OpenAI-совместимый endpoint.
	OpenAIBaseURL string

	// OpenAIModel — модель по умолчанию для openai.
	OpenAIModel string

	// GeminiKey включает движок gemini.
	GeminiKey string

	// GeminiModel — модель по умолчанию для gemini.
	GeminiModel string

	// TelegramToken — токен бота, если шаг не передал botToken.
	TelegramToken string

	// MaxDelay ограничивает движок delay (0 — без ограничения).
	MaxDelay time.Duration

	// Transport — HTTP-транспорт для http-command и curl.
	Transport http.RoundTripper
}

// DefaultRegistry создаёт реестр со всеми стандартными движками.
//
// openai и gemini регистрируются только при наличии ключа.
func DefaultRegistry(cfg Config) *Registry {
	r := NewRegistry()

	r.Register(EngineEcho, Echo())
	r.Register(EngineDelay, &DelayEngine{MaxDuration: cfg.MaxDelay})
	r.Register(EngineTransform, TransformEngine{})
	r.Register(EngineJQ, JQEngine{})
	r.Register(EngineHTTPCommand, &HTTPCommandEngine{Transport: cfg.Transport})
	r.Register(EngineCURL, &CURLEngine{Transport: cfg.Transport})
	r.Register(EngineMySQL, NewMySQL())
	r.Register(EnginePostgres, NewPostgres())
	r.Register(EngineSQLite, NewSQLite())
	r.Register(EngineTelegram, &TelegramEngine{Token: cfg.TelegramToken})

	if cfg.OpenAIKey != "" {
		r.Register(EngineOpenAI, NewOpenAI(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel))
	}
	if cfg.GeminiKey != "" {
		r.Register(EngineGemini, NewGemini(cfg.GeminiKey, cfg.GeminiModel))
	}

	return r
}
