package engine

import (
	"testing"

	"github.com/shaiso/promptflow/internal/domain"
)

func TestExecutionContext_Overlay(t *testing.T) {
	c := NewExecutionContext()
	c.Absorb(mustParse(t, `{"name": "from-result", "topic": "go"}`))

	b := c.Overlay([]domain.StepParameter{{Name: "name", Value: "from-param"}})

	if b["name"].Text() != "from-param" {
		t.Errorf("parameter should win, got %q", b["name"].Text())
	}
	if b["topic"].Text() != "go" {
		t.Errorf("topic = %q", b["topic"].Text())
	}

	// Параметры не попадают в контекст
	if v, _ := c.Lookup("name"); v.Text() != "from-result" {
		t.Errorf("context was modified by overlay: %q", v.Text())
	}
}

func TestRebuild(t *testing.T) {
	results := []domain.StepResult{
		{Order: 2, Result: mustParse(t, `{"title": "second", "b": 2}`)},
		{Order: 1, Result: mustParse(t, `{"title": "first", "a": 1}`)},
	}

	c := Rebuild(results)

	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
	if v, _ := c.Lookup("title"); v.Text() != "second" {
		t.Errorf("later order should win, got %q", v.Text())
	}

	// Вход не переупорядочен
	if results[0].Order != 2 {
		t.Error("Rebuild must not reorder the input slice")
	}
}

func TestExecutionContext_Snapshot(t *testing.T) {
	c := NewExecutionContext()
	c.Absorb(mustParse(t, `{"a": {"b": 1}}`))
	c.Set("x", domain.String("y"))

	snap := c.Snapshot()
	if snap.Kind() != domain.KindObject {
		t.Fatalf("snapshot kind = %s", snap.Kind())
	}
	if v, _ := snap.StringField("a.b"); v != "1" {
		t.Errorf("a.b = %q", v)
	}
	if v, _ := snap.StringField("x"); v != "y" {
		t.Errorf("x = %q", v)
	}

	// Snapshot — копия
	c.Set("x", domain.String("changed"))
	if v, _ := snap.StringField("x"); v != "y" {
		t.Error("snapshot should not follow later changes")
	}
}

func TestExecutionContext_Empty(t *testing.T) {
	c := NewExecutionContext()
	if c.Snapshot().Len() != 0 {
		t.Error("empty context should snapshot to empty object")
	}
	if len(c.Bindings()) != 0 {
		t.Error("empty context should have no bindings")
	}
}
