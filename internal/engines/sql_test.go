package engines

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shaiso/promptflow/internal/domain"
)

func sqliteParams(t *testing.T, db, query string, values ...string) domain.Value {
	t.Helper()
	vals := "[" + strings.Join(values, ",") + "]"
	return mustParse(t, `{"database": "`+db+`", "query": "`+query+`", "values": `+vals+`}`)
}

func TestSQLEngine_SQLite(t *testing.T) {
	db := filepath.Join(t.TempDir(), "shop.db")
	e := NewSQLite()
	ctx := context.Background()

	exec := func(query string, values ...string) domain.Value {
		t.Helper()
		got, err := e.Execute(ctx, "", "", sqliteParams(t, db, query, values...))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", query, err)
		}
		resp, ok := got.Field("sqliteResponse")
		if !ok {
			t.Fatalf("%s: missing sqliteResponse in %s", query, got.Text())
		}
		return resp
	}

	exec("CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)")

	insert := exec("INSERT INTO items (name) VALUES (?)", `"pen"`)
	if ok, _ := insert.BoolField("success"); !ok {
		t.Fatalf("insert failed: %s", insert.Text())
	}
	data, _ := insert.Field("data")
	if n, _ := data.IntField("rows_affected"); n != 1 {
		t.Errorf("rows_affected = %d, want 1", n)
	}
	if id, _ := data.IntField("last_insert_id"); id != 1 {
		t.Errorf("last_insert_id = %d, want 1", id)
	}

	exec("INSERT INTO items (name) VALUES (?)", `"cup"`)

	sel := exec("SELECT id, name FROM items WHERE id > ? ORDER BY id", "0")
	rows, _ := sel.Field("data")
	want := mustParse(t, `[{"id": 1, "name": "pen"}, {"id": 2, "name": "cup"}]`)
	if !rows.Equal(want) {
		t.Errorf("rows = %s, want %s", rows.Text(), want.Text())
	}
}

func TestSQLEngine_QueryErrorInResponse(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")
	params := mustParse(t, `{"database": "`+db+`", "query": "SELECT * FROM missing", "responseKey": "lookup"}`)

	got, err := NewSQLite().Execute(context.Background(), "", "", params)
	if err != nil {
		t.Fatalf("query errors should be reported in-band, got %v", err)
	}

	resp, ok := got.Field("lookup")
	if !ok {
		t.Fatalf("missing custom response key in %s", got.Text())
	}
	if success, _ := resp.BoolField("success"); success {
		t.Error("expected success=false")
	}
	if msg, _ := resp.StringField("error"); !strings.Contains(msg, "missing") {
		t.Errorf("error = %q", msg)
	}
}

func TestSQLEngine_MissingParams(t *testing.T) {
	tests := []struct {
		name   string
		engine *SQLEngine
		params string
	}{
		{"no query", NewSQLite(), `{"database": "x.db"}`},
		{"sqlite no database", NewSQLite(), `{"query": "SELECT 1"}`},
		{"mysql no host", NewMySQL(), `{"query": "SELECT 1", "user": "u", "database": "d"}`},
		{"postgres no user", NewPostgres(), `{"query": "SELECT 1", "host": "h", "database": "d"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.engine.Execute(context.Background(), "", "", mustParse(t, tt.params))
			if !errors.Is(err, ErrInvalidParams) {
				t.Errorf("expected ErrInvalidParams, got %v", err)
			}
		})
	}
}

func TestSQLDSN(t *testing.T) {
	params := mustParse(t, `{"host": "db", "user": "app", "password": "s3cret", "database": "shop"}`)

	mysqlDSNStr, err := mysqlDSN(params)
	if err != nil {
		t.Fatalf("mysql dsn: %v", err)
	}
	if !strings.HasPrefix(mysqlDSNStr, "app:s3cret@tcp(db:3306)/shop") {
		t.Errorf("mysql dsn = %s", mysqlDSNStr)
	}

	pgDSN, err := postgresDSN(mustParse(t, `{"host": "db", "user": "app", "password": "p", "database": "shop", "port": 6432, "sslmode": "disable"}`))
	if err != nil {
		t.Fatalf("postgres dsn: %v", err)
	}
	if pgDSN != "postgres://app:p@db:6432/shop?sslmode=disable" {
		t.Errorf("postgres dsn = %s", pgDSN)
	}

	explicit, err := postgresDSN(mustParse(t, `{"dsn": "postgres://x"}`))
	if err != nil || explicit != "postgres://x" {
		t.Errorf("explicit dsn = %s, %v", explicit, err)
	}
}

func TestReturnsRows(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"SELECT 1", true},
		{"  with t as (select 1) select * from t", true},
		{"PRAGMA table_info(items)", true},
		{"INSERT INTO t VALUES (1) RETURNING id", true},
		{"UPDATE t SET a = 1", false},
		{"CREATE TABLE t (a int)", false},
	}

	for _, tt := range tests {
		if got := returnsRows(tt.query); got != tt.want {
			t.Errorf("returnsRows(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}
