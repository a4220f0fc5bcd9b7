// Package database wraps PostgreSQL connections behind a small interface so
// catalog reads and script execution can be exercised without a live server.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/reloquent/pgpromote/internal/config"
)

// Conn is one scoped database session.
type Conn interface {
	// Query returns every row of a read-only query.
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	// ExecScript executes a multi-statement script as one unit.
	ExecScript(ctx context.Context, script string) error
	Ping(ctx context.Context) error
	Close() error
}

// Factory opens connections. Each caller owns and closes what it opens.
type Factory interface {
	Open(ctx context.Context) (Conn, error)
	// Describe names the target without credentials, for logs and messages.
	Describe() string
}

// Config holds connection parameters for one database.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSL      bool
}

// FromConfig converts a config file entry.
func FromConfig(c config.DatabaseConfig) Config {
	return Config{
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
		User:     c.Username,
		Password: c.Password,
		SSL:      c.SSL,
	}
}

// DSN builds a keyword/value connection string using the simple query
// protocol so whole scripts can be sent in one round trip.
func (c Config) DSN() string {
	port := c.Port
	if port == 0 {
		port = 5432
	}
	parts := []string{
		"host=" + dsnValue(c.Host),
		"port=" + strconv.Itoa(port),
		"dbname=" + dsnValue(c.Database),
		"user=" + dsnValue(c.User),
	}
	if c.Password != "" {
		parts = append(parts, "password="+dsnValue(c.Password))
	}
	parts = append(parts, "default_query_exec_mode=simple_protocol")
	if c.SSL {
		parts = append(parts, "sslmode=require")
	} else {
		parts = append(parts, "sslmode=disable")
	}
	return strings.Join(parts, " ")
}

// String returns user@host:port/database.
func (c Config) String() string {
	return fmt.Sprintf("%s@%s:%d/%s", c.User, c.Host, c.Port, c.Database)
}

// Env returns libpq environment variables for external tools such as
// pg_dump, so the password never appears in a process argument list.
func (c Config) Env() []string {
	env := []string{
		"PGHOST=" + c.Host,
		"PGPORT=" + strconv.Itoa(c.Port),
		"PGDATABASE=" + c.Database,
		"PGUSER=" + c.User,
	}
	if c.Password != "" {
		env = append(env, "PGPASSWORD="+c.Password)
	}
	if c.SSL {
		env = append(env, "PGSSLMODE=require")
	}
	return env
}

func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// Row is one result row keyed by column name.
type Row struct {
	Columns []string
	Values  map[string]any
}

// NewRow builds a Row from parallel column and value slices.
func NewRow(columns []string, values []any) Row {
	r := Row{Columns: columns, Values: make(map[string]any, len(columns))}
	for i, c := range columns {
		if i < len(values) {
			r.Values[c] = values[i]
		}
	}
	return r
}

// NullString returns the column as text and whether it was non-NULL.
func (r Row) NullString(col string) (string, bool) {
	switch v := r.Values[col].(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case []byte:
		return string(v), true
	case fmt.Stringer:
		return v.String(), true
	default:
		return fmt.Sprint(v), true
	}
}

// String returns the column as text, empty for NULL.
func (r Row) String(col string) string {
	s, _ := r.NullString(col)
	return s
}

// NullInt returns the column as an integer and whether it was non-NULL.
// Text values are parsed, which covers information_schema's cardinal_number
// columns when the driver reports them as strings.
func (r Row) NullInt(col string) (int64, bool) {
	switch v := r.Values[col].(type) {
	case nil:
		return 0, false
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		n, err := strconv.ParseInt(strings.TrimSpace(r.String(col)), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
}

// Int returns the column as an integer, zero for NULL.
func (r Row) Int(col string) int64 {
	n, _ := r.NullInt(col)
	return n
}

// Bool interprets booleans and the YES/NO text used by information_schema.
func (r Row) Bool(col string) bool {
	switch v := r.Values[col].(type) {
	case bool:
		return v
	case nil:
		return false
	default:
		switch strings.ToUpper(r.String(col)) {
		case "YES", "TRUE", "T", "1":
			return true
		}
		return false
	}
}

// Strings decodes a JSON text array column (json_agg output).
func (r Row) Strings(col string) ([]string, error) {
	s, ok := r.NullString(col)
	if !ok || s == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("column %s: decoding array: %w", col, err)
	}
	return out, nil
}
