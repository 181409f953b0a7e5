package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind — тип узла Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String возвращает имя типа в терминах JSON.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value — JSON-подобное значение: Null | Bool | Number | String | Array | Object.
//
// Используется везде, где данные приходят или уходят в произвольной форме:
// шаблоны параметров шагов, ответы движков, агрегированный результат запроса.
// Нулевое значение Value — это null.
//
// Value неизменяем с точки зрения API: конструкторы и методы не модифицируют
// переданные срезы и карты после построения.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  map[string]Value

	// exact — десятичная запись целого вне диапазона точных float64
	// (|n| > 2^53); n хранит приближение.
	exact string
}

// maxExactInt — наибольшее целое, которое float64 хранит точно.
const maxExactInt = 1 << 53

// Null возвращает null.
func Null() Value { return Value{} }

// Bool создаёт булево значение.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number создаёт число.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int создаёт число из целого. Целые вне ±2^53 сохраняются точно.
func Int(n int64) Value {
	v := Value{kind: KindNumber, n: float64(n)}
	if n > maxExactInt || n < -maxExactInt {
		v.exact = strconv.FormatInt(n, 10)
	}
	return v
}

// bigInt создаёт число из произвольного целого без потери точности.
func bigInt(b *big.Int) Value {
	f, _ := new(big.Float).SetInt(b).Float64()
	v := Value{kind: KindNumber, n: f}
	if b.CmpAbs(big.NewInt(maxExactInt)) > 0 {
		v.exact = b.String()
	}
	return v
}

// String создаёт строку.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array создаёт массив. Без аргументов — пустой массив, а не null.
func Array(items ...Value) Value {
	arr := make([]Value, len(items))
	copy(arr, items)
	return Value{kind: KindArray, arr: arr}
}

// Object создаёт объект. nil-карта даёт пустой объект.
func Object(fields map[string]Value) Value {
	obj := make(map[string]Value, len(fields))
	for k, v := range fields {
		obj[k] = v
	}
	return Value{kind: KindObject, obj: obj}
}

// Kind возвращает тип значения.
func (v Value) Kind() Kind { return v.kind }

// IsNull возвращает true для null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsScalar возвращает true для null, bool, number и string.
func (v Value) IsScalar() bool { return v.kind != KindArray && v.kind != KindObject }

// AsBool возвращает булево значение, если v — bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber возвращает число, если v — number.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsString возвращает строку, если v — string.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Items возвращает копию элементов массива (nil для не-массивов).
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	out := make([]Value, len(v.arr))
	copy(out, v.arr)
	return out
}

// Len возвращает длину массива или число ключей объекта.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	default:
		return 0
	}
}

// Keys возвращает отсортированные ключи объекта.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Field возвращает поле объекта.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	f, ok := v.obj[name]
	return f, ok
}

// Index возвращает элемент массива.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Value{}, false
	}
	return v.arr[i], true
}

// StringField возвращает строковое представление скалярного поля.
// Числа и bool приводятся к строке, null и составные значения — нет.
func (v Value) StringField(name string) (string, bool) {
	f, ok := v.Field(name)
	if !ok {
		return "", false
	}
	switch f.kind {
	case KindString:
		return f.s, true
	case KindNumber, KindBool:
		return f.Text(), true
	default:
		return "", false
	}
}

// IntField возвращает целое из числового или строкового поля.
func (v Value) IntField(name string) (int, bool) {
	f, ok := v.Field(name)
	if !ok {
		return 0, false
	}
	switch f.kind {
	case KindNumber:
		if f.exact != "" {
			n, err := strconv.Atoi(f.exact)
			return n, err == nil
		}
		return int(f.n), true
	case KindString:
		n, err := strconv.Atoi(strings.TrimSpace(f.s))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// FloatField возвращает число из числового или строкового поля.
func (v Value) FloatField(name string) (float64, bool) {
	f, ok := v.Field(name)
	if !ok {
		return 0, false
	}
	switch f.kind {
	case KindNumber:
		return f.n, true
	case KindString:
		n, err := strconv.ParseFloat(strings.TrimSpace(f.s), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// BoolField возвращает bool из булева или строкового ("true"/"false") поля.
func (v Value) BoolField(name string) (bool, bool) {
	f, ok := v.Field(name)
	if !ok {
		return false, false
	}
	switch f.kind {
	case KindBool:
		return f.b, true
	case KindString:
		b, err := strconv.ParseBool(strings.TrimSpace(f.s))
		if err != nil {
			return false, false
		}
		return b, true
	default:
		return false, false
	}
}

// Text возвращает строковую форму значения для подстановки в шаблон.
//
//	string        — как есть
//	number        — кратчайшая десятичная запись (42, 0.5)
//	bool          — "true" / "false"
//	null          — ""
//	array, object — компактный JSON
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return v.numberText()
	case KindString:
		return v.s
	default:
		data, err := v.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// Equal сравнивает значения структурно.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		if v.exact != "" && o.exact != "" {
			return v.exact == o.exact
		}
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, a := range v.obj {
			b, ok := o.obj[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// Any конвертирует Value в типы encoding/json:
// nil, bool, float64, string, []any, map[string]any.
// Целые вне ±2^53 возвращаются как *big.Int.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		if v.exact != "" {
			b, _ := new(big.Int).SetString(v.exact, 10)
			return b
		}
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Any()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.Any()
		}
		return out
	default:
		return nil
	}
}

// FromAny строит Value из произвольного Go-значения.
//
// Прямо поддерживаются типы encoding/json, целые и вещественные числа,
// json.Number, *big.Int, []byte (как строка) и time.Time (RFC 3339).
// Остальное проходит через json.Marshal.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case []byte:
		return String(string(t)), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return bigInt(new(big.Int).SetUint64(uint64(t))), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return bigInt(new(big.Int).SetUint64(t)), nil
	case *big.Int:
		if t == nil {
			return Null(), nil
		}
		return bigInt(t), nil
	case json.Number:
		if b, ok := new(big.Int).SetString(t.String(), 10); ok {
			return bigInt(b), nil
		}
		n, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("parse number %q: %w", t.String(), err)
		}
		return Number(n), nil
	case time.Time:
		return String(t.UTC().Format(time.RFC3339Nano)), nil
	case []any:
		arr := make([]Value, len(t))
		for i, item := range t {
			iv, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			arr[i] = iv
		}
		return Value{kind: KindArray, arr: arr}, nil
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, item := range t {
			iv, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", k, err)
			}
			obj[k] = iv
		}
		return Value{kind: KindObject, obj: obj}, nil
	case map[string]string:
		obj := make(map[string]Value, len(t))
		for k, s := range t {
			obj[k] = String(s)
		}
		return Value{kind: KindObject, obj: obj}, nil
	case []map[string]any:
		arr := make([]Value, len(t))
		for i, item := range t {
			iv, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			arr[i] = iv
		}
		return Value{kind: KindArray, arr: arr}, nil
	}

	data, err := json.Marshal(x)
	if err != nil {
		return Value{}, fmt.Errorf("convert %T to value: %w", x, err)
	}
	return ParseJSON(data)
}

// ParseJSON разбирает JSON-документ в Value.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, err
	}
	if dec.More() {
		return Value{}, fmt.Errorf("unexpected data after JSON value")
	}
	return FromAny(raw)
}

// MarshalJSON реализует json.Marshaler. Ключи объектов сортируются.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON реализует json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return fmt.Errorf("unsupported number %v", v.n)
		}
		buf.WriteString(v.numberText())
	case KindString:
		if err := writeString(buf, v.s); err != nil {
			return err
		}
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := v.obj[k].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// writeString пишет JSON-строку без HTML-экранирования: шаблоны и
// ответы движков должны видеть <, > и & как есть.
func writeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1) // Encode дописывает '\n'
	return nil
}

func (v Value) numberText() string {
	if v.exact != "" {
		return v.exact
	}
	return formatNumber(v.n)
}

func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e21 {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}
