package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseJSON_Kinds(t *testing.T) {
	tests := []struct {
		input string
		kind  Kind
	}{
		{`null`, KindNull},
		{`true`, KindBool},
		{`12.5`, KindNumber},
		{`"s"`, KindString},
		{`[1, "a"]`, KindArray},
		{`{"a": 1}`, KindObject},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := ParseJSON([]byte(tt.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v.Kind() != tt.kind {
				t.Errorf("kind = %s, want %s", v.Kind(), tt.kind)
			}
		})
	}
}

func TestParseJSON_TrailingData(t *testing.T) {
	if _, err := ParseJSON([]byte(`{} {}`)); err == nil {
		t.Error("expected error for trailing data")
	}
}

func TestValue_MarshalJSON_SortedKeys(t *testing.T) {
	v := Object(map[string]Value{
		"b": Int(2),
		"a": Array(String("x"), Null(), Bool(false)),
	})

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"a":["x",null,false],"b":2}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestValue_Text(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"null", Null(), ""},
		{"true", Bool(true), "true"},
		{"int", Int(42), "42"},
		{"negative", Int(-7), "-7"},
		{"float", Number(0.25), "0.25"},
		{"large int", Number(1234567890123), "1234567890123"},
		{"string", String("hi"), "hi"},
		{"array", Array(Int(1), String("a")), `[1,"a"]`},
		{"object", Object(map[string]Value{"k": Bool(true)}), `{"k":true}`},
		{"html in object", Object(map[string]Value{"<k>": String("<a href=\"x\">a & b</a>")}), `{"<k>":"<a href=\"x\">a & b</a>"}`},
		{"int beyond float precision", Int(9007199254740993), "9007199254740993"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValue_Fields(t *testing.T) {
	v, err := ParseJSON([]byte(`{"port": "3306", "timeout": 5000, "debug": "true", "name": 7, "list": [1]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if n, ok := v.IntField("port"); !ok || n != 3306 {
		t.Errorf("IntField(port) = %d, %v", n, ok)
	}
	if n, ok := v.IntField("timeout"); !ok || n != 5000 {
		t.Errorf("IntField(timeout) = %d, %v", n, ok)
	}
	if b, ok := v.BoolField("debug"); !ok || !b {
		t.Errorf("BoolField(debug) = %v, %v", b, ok)
	}
	if s, ok := v.StringField("name"); !ok || s != "7" {
		t.Errorf("StringField(name) = %q, %v", s, ok)
	}
	if _, ok := v.StringField("list"); ok {
		t.Error("StringField on array should fail")
	}
	if _, ok := v.Field("missing"); ok {
		t.Error("missing field should not be found")
	}
}

func TestFromAny(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	v, err := FromAny(map[string]any{
		"int":   int64(5),
		"bytes": []byte("raw"),
		"time":  ts,
		"rows":  []map[string]any{{"id": 1}},
		"tags":  map[string]string{"a": "b"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s, _ := v.StringField("bytes"); s != "raw" {
		t.Errorf("bytes = %q", s)
	}
	if s, _ := v.StringField("time"); s != "2024-01-02T03:04:05Z" {
		t.Errorf("time = %q", s)
	}
	rows, _ := v.Field("rows")
	row, _ := rows.Index(0)
	if n, _ := row.IntField("id"); n != 1 {
		t.Errorf("rows[0].id = %d", n)
	}
}

func TestFromAny_Struct(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	v, err := FromAny(payload{Name: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s, _ := v.StringField("name"); s != "x" {
		t.Errorf("name = %q", s)
	}
}

func TestValue_AnyRoundTrip(t *testing.T) {
	v, _ := ParseJSON([]byte(`{"a": [1, {"b": null}], "c": "d"}`))

	back, err := FromAny(v.Any())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !back.Equal(v) {
		t.Errorf("round trip mismatch: %s vs %s", back.Text(), v.Text())
	}
}

func TestValue_ZeroIsNull(t *testing.T) {
	var v Value
	if !v.IsNull() {
		t.Error("zero Value should be null")
	}
	if Array().Kind() != KindArray || Array().Len() != 0 {
		t.Error("Array() should be an empty array")
	}
	if Object(nil).Kind() != KindObject {
		t.Error("Object(nil) should be an empty object")
	}
}

func TestParseJSON_LargeIntegersKeepPrecision(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`9007199254740993`, `9007199254740993`},
		{`-9223372036854775808`, `-9223372036854775808`},
		{`123456789012345678901234567890`, `123456789012345678901234567890`},
		{`{"id":18446744073709551615}`, `{"id":18446744073709551615}`},
		{`[9007199254740992, 0.1, 1e3]`, `[9007199254740992,0.1,1000]`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := ParseJSON([]byte(tt.input))
			if err != nil {
				t.Fatalf("ParseJSON() error = %v", err)
			}
			data, err := json.Marshal(v)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("got %s, want %s", data, tt.want)
			}

			back, err := FromAny(v.Any())
			if err != nil {
				t.Fatalf("FromAny() error = %v", err)
			}
			if !back.Equal(v) {
				t.Errorf("Any round trip: %s vs %s", back.Text(), v.Text())
			}
		})
	}
}

func TestValue_LargeIntegerFields(t *testing.T) {
	v, err := ParseJSON([]byte(`{"id": 9007199254740993, "huge": 123456789012345678901234567890}`))
	if err != nil {
		t.Fatal(err)
	}

	if n, ok := v.IntField("id"); !ok || n != 9007199254740993 {
		t.Errorf("IntField(id) = %d, %v", n, ok)
	}
	if _, ok := v.IntField("huge"); ok {
		t.Error("IntField(huge) should not fit int")
	}
	if s, ok := v.StringField("id"); !ok || s != "9007199254740993" {
		t.Errorf("StringField(id) = %q, %v", s, ok)
	}

	other, _ := ParseJSON([]byte(`{"id": 9007199254740992, "huge": 123456789012345678901234567890}`))
	if v.Equal(other) {
		t.Error("values differing only past 2^53 should not be equal")
	}
}
