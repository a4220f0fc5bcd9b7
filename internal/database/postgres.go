package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/reloquent/pgpromote/internal/logging"
)

// PostgresFactory opens single-connection sessions against one database.
type PostgresFactory struct {
	cfg    Config
	logger *slog.Logger
}

// NewPostgresFactory returns a factory for cfg.
func NewPostgresFactory(cfg Config, logger *slog.Logger) *PostgresFactory {
	return &PostgresFactory{cfg: cfg, logger: logging.OrDiscard(logger)}
}

func (f *PostgresFactory) Describe() string { return f.cfg.String() }

// Config returns the connection parameters.
func (f *PostgresFactory) Config() Config { return f.cfg }

func (f *PostgresFactory) Open(ctx context.Context) (Conn, error) {
	poolCfg, err := pgxpool.ParseConfig(f.cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolCfg.MaxConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", f.Describe(), err)
	}

	db := stdlib.OpenDBFromPool(pool)
	conn := NewSQLConn(db, f.logger, pool.Close)
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connecting to %s: %w", f.Describe(), err)
	}

	f.logger.Debug("opened connection", "target", f.Describe())
	return conn, nil
}

var _ Factory = (*PostgresFactory)(nil)

// SQLConn implements Conn over database/sql.
type SQLConn struct {
	db      *sql.DB
	logger  *slog.Logger
	onClose func()
}

// NewSQLConn wraps db. onClose, if set, runs after db is closed.
func NewSQLConn(db *sql.DB, logger *slog.Logger, onClose func()) *SQLConn {
	return &SQLConn{db: db, logger: logging.OrDiscard(logger), onClose: onClose}
}

func (c *SQLConn) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	var result []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result = append(result, NewRow(cols, values))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ExecScript sends script on a pinned connection. When execution fails the
// session is rolled back before returning so an explicit BEGIN inside the
// script cannot leave it in an aborted transaction.
func (c *SQLConn) ExecScript(ctx context.Context, script string) error {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, script); err != nil {
		if _, rbErr := conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK"); rbErr != nil {
			c.logger.Warn("rollback after failed script", "error", rbErr)
		}
		return newScriptError(script, err)
	}
	return nil
}

func (c *SQLConn) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *SQLConn) Close() error {
	err := c.db.Close()
	if c.onClose != nil {
		c.onClose()
	}
	return err
}

var _ Conn = (*SQLConn)(nil)

// ScriptError is a failed script execution with the server's position
// information translated to a line and statement excerpt when available.
type ScriptError struct {
	Line      int
	Statement string
	Err       error
}

func (e *ScriptError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("script failed at line %d (%s): %v", e.Line, e.Statement, e.Err)
	}
	return fmt.Sprintf("script failed: %v", e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

func newScriptError(script string, err error) *ScriptError {
	se := &ScriptError{Err: err}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Position > 0 {
		se.Line, se.Statement = locate(script, int(pgErr.Position))
	}
	return se
}

// locate maps a 1-based character offset to its line number and trimmed text.
func locate(script string, position int) (int, string) {
	runes := []rune(script)
	if position > len(runes) {
		return 0, ""
	}
	prefix := string(runes[:position-1])
	line := strings.Count(prefix, "\n") + 1
	lines := strings.Split(script, "\n")
	text := strings.TrimSpace(lines[line-1])
	if len(text) > 120 {
		text = text[:120] + "..."
	}
	return line, text
}
