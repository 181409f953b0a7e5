package domain

// RequestSpec — описание запроса при приёме (HTTP или файл CLI).
//
// Пример (JSON):
//
//	{
//	  "prompts": [
//	    {
//	      "prompt": "Write a title about {{topic}}",
//	      "engine": "openai",
//	      "model": "gpt-4o-mini",
//	      "model_parameters": {"max_tokens": 256},
//	      "prompt_parameters": [{"name": "topic", "value": "golang"}]
//	    }
//	  ]
//	}
//
// Порядок шагов задаётся позицией в списке (первый шаг получает Order = 1).
type RequestSpec struct {
	Steps []StepSpec `json:"prompts"`
}

// StepSpec — описание одного шага при приёме.
type StepSpec struct {
	// Prompt — шаблон основного текста.
	Prompt string `json:"prompt"`

	// Engine — имя движка.
	Engine string `json:"engine"`

	// Model — идентификатор модели.
	Model string `json:"model,omitempty"`

	// ModelParameters — шаблон параметров движка.
	ModelParameters Value `json:"model_parameters"`

	// PromptParameters — локальные подстановки шага.
	PromptParameters []ParameterSpec `json:"prompt_parameters,omitempty"`
}

// ParameterSpec — пара name/value для локальной подстановки.
type ParameterSpec struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// BuildSteps превращает спецификацию в шаги и их параметры.
// ID и RequestID не заполняются — их назначает хранилище.
func (s *RequestSpec) BuildSteps() ([]Step, [][]StepParameter) {
	steps := make([]Step, len(s.Steps))
	params := make([][]StepParameter, len(s.Steps))

	for i, sp := range s.Steps {
		steps[i] = Step{
			Order:      i + 1,
			Engine:     sp.Engine,
			Model:      sp.Model,
			Content:    sp.Prompt,
			Parameters: sp.ModelParameters,
		}

		ps := make([]StepParameter, len(sp.PromptParameters))
		for j, p := range sp.PromptParameters {
			ps[j] = StepParameter{Name: p.Name, Value: p.Value}
		}
		params[i] = ps
	}

	return steps, params
}
