package engine

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/shaiso/promptflow/internal/domain"
)

func mustParse(t testing.TB, s string) domain.Value {
	t.Helper()
	v, err := domain.ParseJSON([]byte(s))
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func TestFlatten(t *testing.T) {
	got := FlattenValue(mustParse(t, `{"a": {"b": 1}, "c": [10, 20]}`))

	want := map[string]domain.Value{
		"a.b": domain.Int(1),
		"c.0": domain.Int(10),
		"c.1": domain.Int(20),
	}

	if len(got) != len(want) {
		t.Fatalf("got %d bindings, want %d: %v", len(got), len(want), got)
	}
	for k, v := range want {
		if !got[k].Equal(v) {
			t.Errorf("%s = %s, want %s", k, got[k].Text(), v.Text())
		}
	}
}

func TestFlatten_Cases(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]string
	}{
		{
			name:  "title and images",
			input: `{"title": "x", "images": ["a", "b"]}`,
			want:  map[string]string{"title": "x", "images.0": "a", "images.1": "b"},
		},
		{
			name:  "deep nesting",
			input: `{"data": {"items": [{"id": 7, "tags": ["t"]}]}}`,
			want:  map[string]string{"data.items.0.id": "7", "data.items.0.tags.0": "t"},
		},
		{
			name:  "top-level array",
			input: `["x", "y"]`,
			want:  map[string]string{"0": "x", "1": "y"},
		},
		{
			name:  "top-level scalar",
			input: `"raw reply"`,
			want:  map[string]string{ResultKey: "raw reply"},
		},
		{
			name:  "empty containers",
			input: `{"a": [], "b": {}, "c": null}`,
			want:  map[string]string{"c": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlattenValue(mustParse(t, tt.input))
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				b, ok := got[k]
				if !ok {
					t.Errorf("missing binding %q", k)
					continue
				}
				if b.Text() != v {
					t.Errorf("%s = %q, want %q", k, b.Text(), v)
				}
			}
		})
	}
}

func TestFlatten_WithPrefix(t *testing.T) {
	into := make(map[string]domain.Value)
	Flatten(mustParse(t, `{"k": [1]}`), "step1", into)

	if v, ok := into["step1.k.0"]; !ok || v.Text() != "1" {
		t.Errorf("expected step1.k.0 = 1, got %v", into)
	}
}

func TestFlatten_LastWriteWins(t *testing.T) {
	into := make(map[string]domain.Value)
	Flatten(mustParse(t, `{"title": "first", "keep": true}`), "", into)
	Flatten(mustParse(t, `{"title": "second"}`), "", into)

	if into["title"].Text() != "second" {
		t.Errorf("title = %q, want second", into["title"].Text())
	}
	if into["keep"].Text() != "true" {
		t.Error("earlier binding should survive")
	}
}

// Каждая привязка Flatten — скаляр, и число привязок равно числу листьев.
func TestFlatten_LeavesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tree := valueGen(3).Draw(t, "tree")
		if tree.IsScalar() {
			return
		}

		got := FlattenValue(tree)
		for k, v := range got {
			if !v.IsScalar() {
				t.Fatalf("binding %q is not scalar: %s", k, v.Text())
			}
		}
		if leaves := countLeaves(tree); leaves < len(got) {
			t.Fatalf("%d bindings for %d leaves", len(got), leaves)
		}
	})
}

func countLeaves(v domain.Value) int {
	switch v.Kind() {
	case domain.KindArray:
		n := 0
		for i := 0; i < v.Len(); i++ {
			item, _ := v.Index(i)
			n += countLeaves(item)
		}
		return n
	case domain.KindObject:
		n := 0
		for _, k := range v.Keys() {
			f, _ := v.Field(k)
			n += countLeaves(f)
		}
		return n
	default:
		return 1
	}
}
