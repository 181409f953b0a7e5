package engines

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/shaiso/promptflow/internal/domain"
)

const (
	// EngineOpenAI — имя движка OpenAI chat completions.
	EngineOpenAI = "openai"

	// EngineGemini — имя движка Gemini (через OpenAI-совместимый endpoint).
	EngineGemini = "gemini"

	// GeminiBaseURL — OpenAI-совместимый endpoint Gemini.
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

	defaultMaxTokens = 4096
)

// jsonFenceRe находит блок ```json ... ``` в ответе модели.
var jsonFenceRe = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// LLMConfig — конфигурация чат-движка.
type LLMConfig struct {
	// Name — имя движка для сообщений об ошибках.
	Name string

	// Token — API-ключ провайдера.
	Token string

	// BaseURL — адрес OpenAI-совместимого API (пусто — api.openai.com).
	BaseURL string

	// DefaultModel — модель, если шаг её не указал.
	DefaultModel string
}

// LLMEngine — чат-модель через langchaingo.
//
// Параметры:
//
//	{
//	    "max_tokens": 4096,
//	    "temperature": 0.7,
//	    "system": "You are ...",
//	    "imageUrl": "https://..."   // добавляется к сообщению как изображение
//	}
//
// Ответ модели разбирается так: сначала ищется блок ```json, затем весь
// ответ пробуется как JSON, иначе возвращается строка как есть.
type LLMEngine struct {
	cfg LLMConfig

	// newModel создаёт клиента для конкретной модели.
	newModel func(model string) (llms.Model, error)
}

// NewLLMEngine создаёт движок на OpenAI-совместимом клиенте langchaingo.
func NewLLMEngine(cfg LLMConfig) *LLMEngine {
	if cfg.Name == "" {
		cfg.Name = EngineOpenAI
	}

	e := &LLMEngine{cfg: cfg}
	e.newModel = func(model string) (llms.Model, error) {
		opts := []openai.Option{
			openai.WithToken(cfg.Token),
			openai.WithModel(model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	}
	return e
}

// NewOpenAI создаёт движок openai.
func NewOpenAI(token, baseURL, defaultModel string) *LLMEngine {
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	return NewLLMEngine(LLMConfig{
		Name:         EngineOpenAI,
		Token:        token,
		BaseURL:      baseURL,
		DefaultModel: defaultModel,
	})
}

// NewGemini создаёт движок gemini.
func NewGemini(token, defaultModel string) *LLMEngine {
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	return NewLLMEngine(LLMConfig{
		Name:         EngineGemini,
		Token:        token,
		BaseURL:      GeminiBaseURL,
		DefaultModel: defaultModel,
	})
}

// NewLLMEngineWithModel создаёт движок поверх готового llms.Model.
// Модель шага игнорируется.
func NewLLMEngineWithModel(name string, model llms.Model) *LLMEngine {
	return &LLMEngine{
		cfg: LLMConfig{Name: name},
		newModel: func(string) (llms.Model, error) {
			return model, nil
		},
	}
}

// Execute отправляет content модели и разбирает ответ.
func (e *LLMEngine) Execute(ctx context.Context, content, model string, params domain.Value) (domain.Value, error) {
	if model == "" {
		model = e.cfg.DefaultModel
	}
	if model == "" {
		return domain.Value{}, invalidParams(e.cfg.Name, "model is required")
	}

	llm, err := e.newModel(model)
	if err != nil {
		return domain.Value{}, fmt.Errorf("create %s client: %w", e.cfg.Name, err)
	}

	messages := buildMessages(content, params)

	maxTokens := defaultMaxTokens
	if n, ok := params.IntField("max_tokens"); ok && n > 0 {
		maxTokens = n
	}
	opts := []llms.CallOption{llms.WithMaxTokens(maxTokens)}
	if t, ok := params.FloatField("temperature"); ok {
		opts = append(opts, llms.WithTemperature(t))
	}

	resp, err := llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Value{}, cancelled(context.Cause(ctx))
		}
		return domain.Value{}, fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return domain.Value{}, fmt.Errorf("%w: %s: no choices", ErrEmptyResponse, e.cfg.Name)
	}

	return ExtractJSON(resp.Choices[0].Content), nil
}

func buildMessages(content string, params domain.Value) []llms.MessageContent {
	var messages []llms.MessageContent

	if system, ok := params.StringField("system"); ok && system != "" {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		})
	}

	parts := []llms.ContentPart{llms.TextPart(content)}
	if imageURL, ok := params.StringField("imageUrl"); ok && imageURL != "" {
		parts = append(parts, llms.ImageURLPart(imageURL))
	}

	return append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: parts,
	})
}

// ExtractJSON разбирает ответ модели.
//
//  1. Блок ```json ... ``` — его содержимое как JSON
//  2. Весь ответ как JSON
//  3. Иначе — строка
//
// Нераспарсенный блок ```json не теряется: возвращается исходная строка.
func ExtractJSON(reply string) domain.Value {
	reply = strings.TrimSpace(reply)

	if m := jsonFenceRe.FindStringSubmatch(reply); m != nil {
		if v, err := domain.ParseJSON([]byte(strings.TrimSpace(m[1]))); err == nil {
			return v
		}
		return domain.String(reply)
	}

	if v, err := domain.ParseJSON([]byte(reply)); err == nil {
		return v
	}
	return domain.String(reply)
}
