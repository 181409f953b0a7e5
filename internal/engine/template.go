package engine

import (
	"regexp"
	"strings"

	"github.com/shaiso/promptflow/internal/domain"
)

// placeholderRe находит {{name}}. Имя не может переходить через строку.
var placeholderRe = regexp.MustCompile(`\{\{(.*?)\}\}`)

// Bindings — таблица привязок для рендеринга: имя → значение.
type Bindings map[string]domain.Value

// RenderString подставляет значения в плейсхолдеры {{name}}.
//
// Имя обрезается от пробелов перед поиском. Отсутствующая привязка
// превращается в пустую строку, ошибкой не считается.
// Текст вне плейсхолдеров не меняется.
func RenderString(text string, bindings Bindings) string {
	if !strings.Contains(text, "{{") {
		return text
	}

	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		v, ok := bindings[name]
		if !ok {
			return ""
		}
		return v.Text()
	})
}

// RenderTree рекурсивно рендерит JSON-дерево.
//
// Строки проходят через RenderString, ключи объектов не трогаются,
// порядок элементов массивов сохраняется, остальные скаляры возвращаются
// как есть. Результат всегда имеет ту же форму, что и вход.
func RenderTree(node domain.Value, bindings Bindings) domain.Value {
	switch node.Kind() {
	case domain.KindString:
		s, _ := node.AsString()
		return domain.String(RenderString(s, bindings))

	case domain.KindArray:
		items := make([]domain.Value, node.Len())
		for i := range items {
			item, _ := node.Index(i)
			items[i] = RenderTree(item, bindings)
		}
		return domain.Array(items...)

	case domain.KindObject:
		fields := make(map[string]domain.Value, node.Len())
		for _, k := range node.Keys() {
			f, _ := node.Field(k)
			fields[k] = RenderTree(f, bindings)
		}
		return domain.Object(fields)

	default:
		return node
	}
}

// Placeholders возвращает имена плейсхолдеров в порядке первого появления.
func Placeholders(text string) []string {
	matches := placeholderRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSpace(m[1])
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// TreePlaceholders собирает плейсхолдеры из всех строк дерева.
func TreePlaceholders(node domain.Value) []string {
	var names []string
	seen := make(map[string]bool)

	var walk func(v domain.Value)
	walk = func(v domain.Value) {
		switch v.Kind() {
		case domain.KindString:
			s, _ := v.AsString()
			for _, name := range Placeholders(s) {
				if !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
			}
		case domain.KindArray:
			for i := 0; i < v.Len(); i++ {
				item, _ := v.Index(i)
				walk(item)
			}
		case domain.KindObject:
			for _, k := range v.Keys() {
				f, _ := v.Field(k)
				walk(f)
			}
		}
	}
	walk(node)

	return names
}
