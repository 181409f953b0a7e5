package engine

import (
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/shaiso/promptflow/internal/domain"
)

func TestRenderString(t *testing.T) {
	bindings := Bindings{
		"name":     domain.String("world"),
		"count":    domain.Int(42),
		"ratio":    domain.Number(0.5),
		"ok":       domain.Bool(true),
		"nothing":  domain.Null(),
		"images.0": domain.String("a.png"),
		"list":     domain.Array(domain.Int(1), domain.Int(2)),
	}

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"no placeholders", "plain text", "plain text"},
		{"simple", "hello {{name}}", "hello world"},
		{"trimmed name", "hello {{  name }}", "hello world"},
		{"integer", "n={{count}}", "n=42"},
		{"float", "r={{ratio}}", "r=0.5"},
		{"bool", "{{ok}}", "true"},
		{"null is empty", "[{{nothing}}]", "[]"},
		{"dotted path", "img: {{images.0}}", "img: a.png"},
		{"array as json", "{{list}}", "[1,2]"},
		{"missing is empty", "{{missing}}", ""},
		{"multiple", "{{name}}-{{count}}-{{name}}", "world-42-world"},
		{"unclosed", "{{name", "{{name"},
		{"empty name", "a{{}}b", "ab"},
		{"multiline not matched", "{{na\nme}}", "{{na\nme}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderString(tt.template, bindings)
			if got != tt.expected {
				t.Errorf("RenderString(%q) = %q, want %q", tt.template, got, tt.expected)
			}
		})
	}
}

func TestRenderString_MissingBinding(t *testing.T) {
	if got := RenderString("{{missing}}", Bindings{}); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
	if got := RenderString("{{missing}}", nil); got != "" {
		t.Errorf("expected empty string with nil bindings, got %q", got)
	}
}

func TestRenderTree(t *testing.T) {
	bindings := Bindings{
		"host":  domain.String("example.com"),
		"token": domain.String("secret"),
	}

	tree := domain.Object(map[string]domain.Value{
		"url":     domain.String("https://{{host}}/api"),
		"timeout": domain.Int(5000),
		"retry":   domain.Bool(false),
		"extra":   domain.Null(),
		"headers": domain.Object(map[string]domain.Value{
			"Authorization": domain.String("Bearer {{token}}"),
		}),
		"tags": domain.Array(domain.String("{{host}}"), domain.Int(1)),
	})

	got := RenderTree(tree, bindings)

	if url, _ := got.StringField("url"); url != "https://example.com/api" {
		t.Errorf("url = %q", url)
	}
	if timeout, _ := got.IntField("timeout"); timeout != 5000 {
		t.Errorf("timeout = %d, want 5000", timeout)
	}
	if retry, ok := got.BoolField("retry"); !ok || retry {
		t.Errorf("retry should stay false")
	}
	if extra, ok := got.Field("extra"); !ok || !extra.IsNull() {
		t.Errorf("extra should stay null")
	}

	headers, _ := got.Field("headers")
	if auth, _ := headers.StringField("Authorization"); auth != "Bearer secret" {
		t.Errorf("Authorization = %q", auth)
	}

	tags, _ := got.Field("tags")
	first, _ := tags.Index(0)
	if s, _ := first.AsString(); s != "example.com" {
		t.Errorf("tags[0] = %q", s)
	}
	second, _ := tags.Index(1)
	if n, _ := second.AsNumber(); n != 1 {
		t.Errorf("tags[1] = %v", n)
	}

	// Исходное дерево не меняется
	if url, _ := tree.StringField("url"); url != "https://{{host}}/api" {
		t.Errorf("input tree was modified: %q", url)
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("{{a}} {{ b }} {{a}} {{c.0}}")
	want := []string{"a", "b", "c.0"}

	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if Placeholders("none") != nil {
		t.Error("expected nil for text without placeholders")
	}
}

func TestTreePlaceholders(t *testing.T) {
	tree := domain.Object(map[string]domain.Value{
		"a": domain.String("{{x}}"),
		"b": domain.Array(domain.String("{{y}} {{x}}")),
	})

	got := TreePlaceholders(tree)
	if len(got) != 2 {
		t.Fatalf("expected 2 names, got %v", got)
	}
}

// Текст без "{{" не меняется при любых привязках.
func TestRenderString_NoPlaceholdersProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Filter(func(s string) bool {
			return !strings.Contains(s, "{{")
		}).Draw(t, "text")

		if got := RenderString(text, Bindings{}); got != text {
			t.Fatalf("RenderString(%q) = %q", text, got)
		}
	})
}

// RenderTree сохраняет форму дерева.
func TestRenderTree_ShapeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tree := valueGen(3).Draw(t, "tree")
		bindings := Bindings{"x": domain.String("X"), "y": domain.Int(7)}

		got := RenderTree(tree, bindings)
		if !sameShape(tree, got) {
			t.Fatalf("shape changed: %s → %s", tree.Text(), got.Text())
		}
	})
}

func sameShape(a, b domain.Value) bool {
	if a.Kind() != b.Kind() || a.Len() != b.Len() {
		return false
	}
	switch a.Kind() {
	case domain.KindArray:
		for i := 0; i < a.Len(); i++ {
			x, _ := a.Index(i)
			y, _ := b.Index(i)
			if !sameShape(x, y) {
				return false
			}
		}
	case domain.KindObject:
		for _, k := range a.Keys() {
			x, _ := a.Field(k)
			y, ok := b.Field(k)
			if !ok || !sameShape(x, y) {
				return false
			}
		}
	case domain.KindString:
		return true
	default:
		return a.Equal(b)
	}
	return true
}

// valueGen генерирует произвольные деревья глубиной до depth.
func valueGen(depth int) *rapid.Generator[domain.Value] {
	return rapid.Custom(func(t *rapid.T) domain.Value {
		kinds := 4
		if depth > 0 {
			kinds = 6
		}

		switch rapid.IntRange(0, kinds-1).Draw(t, "kind") {
		case 0:
			return domain.Null()
		case 1:
			return domain.Bool(rapid.Bool().Draw(t, "bool"))
		case 2:
			return domain.Int(rapid.Int64Range(-1000, 1000).Draw(t, "int"))
		case 3:
			s := rapid.SampledFrom([]string{"", "plain", "{{x}}", "a {{ y }} b", "{{missing}}"}).Draw(t, "str")
			return domain.String(s)
		case 4:
			items := rapid.SliceOfN(valueGen(depth-1), 0, 3).Draw(t, "items")
			return domain.Array(items...)
		default:
			keys := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,4}`), 0, 3, rapid.ID[string]).Draw(t, "keys")
			fields := make(map[string]domain.Value, len(keys))
			for _, k := range keys {
				fields[k] = valueGen(depth-1).Draw(t, "field_"+k)
			}
			return domain.Object(fields)
		}
	})
}
