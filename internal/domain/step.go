package domain

import "time"

// Step — один этап запроса.
//
// Order задаёт порядок выполнения (1-based, уникален внутри запроса).
// Content и Parameters — шаблоны: строки могут содержать плейсхолдеры
// {{name}}, которые подставляются перед вызовом движка.
type Step struct {
	// ID — внутренний идентификатор.
	ID int64 `json:"id"`

	// RequestID — запрос-владелец.
	RequestID int64 `json:"request_id"`

	// Order — порядковый номер (начиная с 1).
	Order int `json:"order"`

	// Engine — имя движка (регистр не важен).
	Engine string `json:"engine"`

	// Model — идентификатор модели, передаётся движку как есть.
	Model string `json:"model,omitempty"`

	// Content — шаблон основного текста.
	Content string `json:"content"`

	// Parameters — шаблон параметров движка (произвольное JSON-дерево).
	Parameters Value `json:"parameters"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// StepParameter — локальная для шага подстановка name → value.
//
// Накладывается поверх контекста выполнения только при рендеринге
// своего шага и в общий контекст не попадает.
type StepParameter struct {
	ID     int64  `json:"id"`
	StepID int64  `json:"step_id"`
	Name   string `json:"name"`
	Value  string `json:"value"`
}

// StepResult — сырой результат движка для одного шага.
//
// Записывается один раз после успешного шага и не изменяется.
// Журнал StepResult — источник истины для resume.
type StepResult struct {
	ID        int64     `json:"id"`
	RequestID int64     `json:"request_id"`
	StepID    int64     `json:"step_id"`
	Order     int       `json:"order"`
	Result    Value     `json:"result"`
	CreatedAt time.Time `json:"created_at"`
}
