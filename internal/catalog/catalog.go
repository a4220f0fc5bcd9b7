// Package catalog runs the fixed introspection queries against a PostgreSQL
// system catalog, one query per object kind.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/reloquent/pgpromote/internal/database"
	"github.com/reloquent/pgpromote/internal/logging"
	"github.com/reloquent/pgpromote/internal/schema"
)

// ReadError wraps a failed introspection query.
type ReadError struct {
	Kind schema.Kind
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading %s from catalog: %v", e.Kind, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Reader reads catalog rows, skipping objects in excluded schemas.
type Reader struct {
	excluded []string
	logger   *slog.Logger
}

// NewReader returns a Reader that ignores the given schemas.
func NewReader(excludedSchemas []string, logger *slog.Logger) *Reader {
	return &Reader{
		excluded: append([]string(nil), excludedSchemas...),
		logger:   logging.OrDiscard(logger),
	}
}

// ExcludedSchemas returns the schemas the reader skips.
func (r *Reader) ExcludedSchemas() []string {
	return append([]string(nil), r.excluded...)
}

// Read runs the query for kind k on conn and returns its rows in catalog
// order. Rows are not interpreted here.
func (r *Reader) Read(ctx context.Context, conn database.Conn, k schema.Kind) ([]database.Row, error) {
	q := Query(k)
	if q == "" {
		return nil, &ReadError{Kind: k, Err: fmt.Errorf("no query for kind")}
	}

	start := time.Now()
	rows, err := conn.Query(ctx, q, pq.Array(r.excluded))
	if err != nil {
		return nil, &ReadError{Kind: k, Err: err}
	}

	r.logger.Debug("catalog read",
		"kind", k.String(),
		"rows", len(rows),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return rows, nil
}
