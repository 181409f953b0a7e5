package engine

import (
	"strconv"

	"github.com/shaiso/promptflow/internal/domain"
)

// ResultKey — ключ, под которым привязывается скалярный результат верхнего
// уровня (например, ответ LLM, не являющийся JSON).
const ResultKey = "result"

// Flatten разворачивает value в плоские привязки и пишет их в into.
//
// Объекты дают пути prefix.key, массивы — prefix.i, скаляры привязываются
// к накопленному пути. Пустые массивы и объекты привязок не дают.
// Существующие ключи в into перезаписываются (последняя запись выигрывает).
//
//	{"title": "x", "images": ["a", "b"]}
//	→ title = "x", images.0 = "a", images.1 = "b"
func Flatten(value domain.Value, prefix string, into map[string]domain.Value) {
	switch value.Kind() {
	case domain.KindArray:
		for i := 0; i < value.Len(); i++ {
			item, _ := value.Index(i)
			Flatten(item, joinPath(prefix, strconv.Itoa(i)), into)
		}

	case domain.KindObject:
		for _, k := range value.Keys() {
			f, _ := value.Field(k)
			Flatten(f, joinPath(prefix, k), into)
		}

	default:
		key := prefix
		if key == "" {
			key = ResultKey
		}
		into[key] = value
	}
}

// FlattenValue возвращает плоские привязки value как новую карту.
func FlattenValue(value domain.Value) map[string]domain.Value {
	out := make(map[string]domain.Value)
	Flatten(value, "", out)
	return out
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
