package engines

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"net"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/glebarez/go-sqlite"
	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/shaiso/promptflow/internal/domain"
)

// Имена SQL-движков.
const (
	EngineMySQL    = "mysql"
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite"
)

// SQLEngine выполняет один SQL-запрос во внешней базе.
//
// Параметры:
//
//	{
//	    "dsn": "...",                          // или host/user/password/database/port
//	    "host": "db", "port": 3306,
//	    "user": "app", "password": "secret", "database": "shop",
//	    "query": "SELECT * FROM items WHERE id = ?",
//	    "values": [42],
//	    "responseKey": "items"                 // по умолчанию <engine>Response
//	}
//
// Результат:
//
//	{"items": {"success": true, "data": [...]}}                 // выборка
//	{"items": {"success": true, "data": {"rows_affected": 1}}}  // изменение
//	{"items": {"success": false, "error": "..."}}               // ошибка запроса
//
// Ошибки подключения и запроса возвращаются в ответе (success=false),
// а не как ошибка движка: следующий шаг может на них отреагировать.
// Отсутствие обязательных параметров — ошибка движка.
type SQLEngine struct {
	name       string
	driver     string
	defaultKey string
	buildDSN   func(params domain.Value) (string, error)
}

// NewMySQL создаёт движок mysql (go-sql-driver/mysql).
func NewMySQL() *SQLEngine {
	return &SQLEngine{
		name:       EngineMySQL,
		driver:     "mysql",
		defaultKey: "mysqlResponse",
		buildDSN:   mysqlDSN,
	}
}

// NewPostgres создаёт движок postgres (pgx stdlib).
func NewPostgres() *SQLEngine {
	return &SQLEngine{
		name:       EnginePostgres,
		driver:     "pgx",
		defaultKey: "postgresResponse",
		buildDSN:   postgresDSN,
	}
}

// NewSQLite создаёт движок sqlite (glebarez/go-sqlite, без cgo).
// Параметр database — путь к файлу базы или ":memory:".
func NewSQLite() *SQLEngine {
	return &SQLEngine{
		name:       EngineSQLite,
		driver:     "sqlite",
		defaultKey: "sqliteResponse",
		buildDSN:   sqliteDSN,
	}
}

// Execute выполняет запрос.
func (e *SQLEngine) Execute(ctx context.Context, _, _ string, params domain.Value) (domain.Value, error) {
	query, _ := params.StringField("query")
	if strings.TrimSpace(query) == "" {
		return domain.Value{}, invalidParams(e.name, `"query" is required`)
	}

	dsn, err := e.buildDSN(params)
	if err != nil {
		return domain.Value{}, invalidParams(e.name, "%v", err)
	}

	key := e.defaultKey
	if k, ok := params.StringField("responseKey"); ok && k != "" {
		key = k
	}

	var args []any
	if values, ok := params.Field("values"); ok && values.Kind() == domain.KindArray {
		for _, v := range values.Items() {
			arg := v.Any()
			if b, ok := arg.(*big.Int); ok {
				arg = b.String()
			}
			args = append(args, arg)
		}
	}

	data, err := e.run(ctx, dsn, query, args)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Value{}, cancelled(context.Cause(ctx))
		}
		return wrapResponse(key, domain.Object(map[string]domain.Value{
			"success": domain.Bool(false),
			"error":   domain.String(err.Error()),
		})), nil
	}

	return wrapResponse(key, domain.Object(map[string]domain.Value{
		"success": domain.Bool(true),
		"data":    data,
	})), nil
}

func wrapResponse(key string, v domain.Value) domain.Value {
	return domain.Object(map[string]domain.Value{key: v})
}

func (e *SQLEngine) run(ctx context.Context, dsn, query string, args []any) (domain.Value, error) {
	db, err := sql.Open(e.driver, dsn)
	if err != nil {
		return domain.Value{}, fmt.Errorf("open %s: %w", e.name, err)
	}
	defer db.Close()

	if returnsRows(query) {
		return queryRows(ctx, db, query, args)
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Value{}, err
	}

	out := map[string]domain.Value{}
	if n, err := res.RowsAffected(); err == nil {
		out["rows_affected"] = domain.Int(n)
	}
	if id, err := res.LastInsertId(); err == nil {
		out["last_insert_id"] = domain.Int(id)
	}
	return domain.Object(out), nil
}

// returnsRows определяет, возвращает ли запрос строки.
func returnsRows(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	for _, prefix := range []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "DESC ", "EXPLAIN", "PRAGMA", "VALUES", "TABLE "} {
		if strings.HasPrefix(q, prefix) {
			return true
		}
	}
	return strings.Contains(q, " RETURNING ")
}

func queryRows(ctx context.Context, db *sql.DB, query string, args []any) (domain.Value, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.Value{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return domain.Value{}, err
	}

	var out []domain.Value
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return domain.Value{}, err
		}

		row := make(map[string]domain.Value, len(cols))
		for i, col := range cols {
			v, err := domain.FromAny(values[i])
			if err != nil {
				return domain.Value{}, fmt.Errorf("column %s: %w", col, err)
			}
			row[col] = v
		}
		out = append(out, domain.Object(row))
	}
	if err := rows.Err(); err != nil {
		return domain.Value{}, err
	}

	return domain.Array(out...), nil
}

// connParams — параметры подключения из host/user/password/database/port.
type connParams struct {
	Host, User, Password, Database string
	Port                           int
}

func readConnParams(params domain.Value, defaultPort int) (connParams, error) {
	var p connParams
	p.Host, _ = params.StringField("host")
	p.User, _ = params.StringField("user")
	p.Password, _ = params.StringField("password")
	p.Database, _ = params.StringField("database")
	p.Port = defaultPort
	if port, ok := params.IntField("port"); ok && port > 0 {
		p.Port = port
	}

	if p.Host == "" || p.User == "" || p.Database == "" {
		return p, fmt.Errorf(`"dsn" or "host", "user" and "database" are required`)
	}
	return p, nil
}

func mysqlDSN(params domain.Value) (string, error) {
	if dsn, ok := params.StringField("dsn"); ok && dsn != "" {
		return dsn, nil
	}

	p, err := readConnParams(params, 3306)
	if err != nil {
		return "", err
	}

	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	cfg.DBName = p.Database
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func postgresDSN(params domain.Value) (string, error) {
	if dsn, ok := params.StringField("dsn"); ok && dsn != "" {
		return dsn, nil
	}

	p, err := readConnParams(params, 5432)
	if err != nil {
		return "", err
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:   "/" + p.Database,
	}
	if mode, ok := params.StringField("sslmode"); ok && mode != "" {
		u.RawQuery = url.Values{"sslmode": {mode}}.Encode()
	}
	return u.String(), nil
}

func sqliteDSN(params domain.Value) (string, error) {
	if dsn, ok := params.StringField("dsn"); ok && dsn != "" {
		return dsn, nil
	}
	if db, ok := params.StringField("database"); ok && db != "" {
		return db, nil
	}
	return "", fmt.Errorf(`"dsn" or "database" is required`)
}
