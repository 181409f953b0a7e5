package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/promptflow/internal/domain"
)

// EngineLookup сообщает, зарегистрирован ли движок.
type EngineLookup func(name string) bool

// intakeStep принимает оба варианта имён: исходные (prompt, model_parameters)
// и короткие (content, parameters).
type intakeStep struct {
	Prompt           string                 `json:"prompt"`
	Content          string                 `json:"content"`
	Engine           string                 `json:"engine"`
	Model            string                 `json:"model"`
	ModelParameters  *domain.Value          `json:"model_parameters"`
	Parameters       *domain.Value          `json:"parameters"`
	PromptParameters []domain.ParameterSpec `json:"prompt_parameters"`
}

type intakeSpec struct {
	Prompts []intakeStep `json:"prompts"`
	Steps   []intakeStep `json:"steps"`
}

// ParseRequestSpec разбирает RequestSpec из JSON.
//
// Список шагов берётся из "prompts", либо из "steps", если "prompts" пуст.
// Отсутствующие параметры движка превращаются в пустой объект.
func ParseRequestSpec(data []byte) (*domain.RequestSpec, error) {
	var in intakeSpec
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	steps := in.Prompts
	if len(steps) == 0 {
		steps = in.Steps
	}

	spec := &domain.RequestSpec{Steps: make([]domain.StepSpec, len(steps))}
	for i, s := range steps {
		content := s.Prompt
		if content == "" {
			content = s.Content
		}

		params := domain.Object(nil)
		switch {
		case s.ModelParameters != nil && !s.ModelParameters.IsNull():
			params = *s.ModelParameters
		case s.Parameters != nil && !s.Parameters.IsNull():
			params = *s.Parameters
		}

		spec.Steps[i] = domain.StepSpec{
			Prompt:           content,
			Engine:           strings.TrimSpace(s.Engine),
			Model:            s.Model,
			ModelParameters:  params,
			PromptParameters: s.PromptParameters,
		}
	}

	return spec, nil
}

// ParseRequestSpecYAML разбирает RequestSpec из YAML.
// Документ приводится к JSON и проходит тот же путь, что и ParseRequestSpec.
func ParseRequestSpecYAML(data []byte) (*domain.RequestSpec, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	normalized, err := normalizeYAML(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	data, err = json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return ParseRequestSpec(data)
}

// normalizeYAML заменяет map[any]any (нестроковые ключи) на map[string]any.
func normalizeYAML(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			n, err := normalizeYAML(item)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			n, err := normalizeYAML(item)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			n, err := normalizeYAML(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return v, nil
	}
}

// Validate проверяет RequestSpec.
//
// Проверяет:
// - Наличие движка у каждого шага
// - Регистрацию движка (если передан known)
// - Имена локальных параметров: непустые и уникальные в пределах шага
//
// Запрос без шагов допустим: он сразу завершается с пустым агрегатом.
func Validate(spec *domain.RequestSpec, known EngineLookup) error {
	if spec == nil {
		return NewValidationError(0, "prompts", "request spec is nil", ErrInvalidSpec)
	}

	for i := range spec.Steps {
		if err := ValidateStep(i+1, &spec.Steps[i], known); err != nil {
			return err
		}
	}
	return nil
}

// ValidateStep валидирует один шаг; order — его порядковый номер.
func ValidateStep(order int, step *domain.StepSpec, known EngineLookup) error {
	if step.Engine == "" {
		return NewValidationError(order, "engine", "step has empty engine", ErrEmptyEngine)
	}

	if known != nil && !known(step.Engine) {
		return NewValidationError(order, "engine",
			fmt.Sprintf("unknown engine: %s", step.Engine), ErrUnknownEngine)
	}

	seen := make(map[string]bool, len(step.PromptParameters))
	for _, p := range step.PromptParameters {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return NewValidationError(order, "prompt_parameters",
				"parameter has empty name", ErrEmptyParameterName)
		}
		if seen[name] {
			return NewValidationError(order, "prompt_parameters",
				fmt.Sprintf("duplicate parameter: %s", name), ErrDuplicateParameter)
		}
		seen[name] = true
	}

	return nil
}

// UnresolvedPlaceholders возвращает плейсхолдеры шага, которые заведомо не
// будут привязаны: их нет ни среди локальных параметров шага, ни среди
// ключей, которые могли появиться раньше.
//
// Результаты движков заранее неизвестны, поэтому проверяются только шаги
// без предшественников. Используется для предупреждений, не для отказа.
func UnresolvedPlaceholders(spec *domain.RequestSpec) map[int][]string {
	if spec == nil || len(spec.Steps) == 0 {
		return nil
	}

	first := spec.Steps[0]
	local := make(map[string]bool, len(first.PromptParameters))
	for _, p := range first.PromptParameters {
		local[strings.TrimSpace(p.Name)] = true
	}

	var missing []string
	names := append(Placeholders(first.Prompt), TreePlaceholders(first.ModelParameters)...)
	seen := make(map[string]bool)
	for _, name := range names {
		if !local[name] && !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
	}

	if len(missing) == 0 {
		return nil
	}
	return map[int][]string{1: missing}
}
