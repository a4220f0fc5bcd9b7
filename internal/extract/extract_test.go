package extract

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/reloquent/pgpromote/internal/catalog"
	"github.com/reloquent/pgpromote/internal/database"
	"github.com/reloquent/pgpromote/internal/schema"
)

// catalogConn answers each catalog query with the rows registered for its kind.
func catalogConn(dbName string, rows map[schema.Kind][]database.Row, failKind *schema.Kind) *database.MockConn {
	return &database.MockConn{
		QueryFn: func(query string, _ []any) ([]database.Row, error) {
			if strings.Contains(query, "current_database()") {
				return []database.Row{database.NewRow([]string{"name"}, []any{dbName})}, nil
			}
			for _, k := range schema.Kinds {
				if query == catalog.Query(k) {
					if failKind != nil && *failKind == k {
						return nil, errors.New("connection reset by peer")
					}
					return rows[k], nil
				}
			}
			return nil, errors.New("unexpected query")
		},
	}
}

func tableRow(schemaName, name string) database.Row {
	return database.NewRow([]string{"schema_name", "name", "row_security"}, []any{schemaName, name, false})
}

func columnRow(schemaName, table, name, dataType string, pos int64) database.Row {
	return database.NewRow(
		[]string{"schema_name", "table_name", "name", "position", "data_type", "is_nullable"},
		[]any{schemaName, table, name, pos, dataType, "YES"},
	)
}

func newBuilder() *Builder {
	b := NewBuilder(catalog.NewReader([]string{"pg_catalog", "information_schema"}, nil), nil)
	b.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }
	return b
}

func TestExtractComplete(t *testing.T) {
	conn := catalogConn("app_dev", map[schema.Kind][]database.Row{
		schema.Tables: {tableRow("public", "orders"), tableRow("public", "users")},
		schema.Columns: {
			columnRow("public", "orders", "id", "integer", 1),
			columnRow("public", "orders", "total", "numeric", 2),
		},
	}, nil)
	factory := &database.MockFactory{Name: "dev", Conn: conn}

	snap, err := newBuilder().ExtractComplete(context.Background(), factory, "source")
	if err != nil {
		t.Fatalf("ExtractComplete() error: %v", err)
	}

	if snap.Label != "source" || snap.Database != "app_dev" {
		t.Errorf("label/database = %q/%q", snap.Label, snap.Database)
	}
	if snap.Count(schema.Tables) != 2 || snap.Count(schema.Columns) != 2 {
		t.Errorf("counts = %s", snap.Summary())
	}
	if snap.Columns[1].Key() != "public.orders.total" {
		t.Errorf("extraction order not preserved: %s", snap.Columns[1].Key())
	}
	if !conn.Closed {
		t.Error("connection was not closed")
	}
	if factory.Opened != 1 {
		t.Errorf("Opened = %d, want 1", factory.Opened)
	}

	// One current_database() lookup plus one query per kind, in dependency order.
	if len(conn.Queries) != len(schema.Kinds)+1 {
		t.Fatalf("ran %d queries", len(conn.Queries))
	}
	for i, k := range schema.Kinds {
		if conn.Queries[i+1] != catalog.Query(k) {
			t.Errorf("query %d is not the %s query", i+1, k)
		}
	}
}

func TestExtractCompleteFailsWholeSnapshot(t *testing.T) {
	fail := schema.Indexes
	conn := catalogConn("app", map[schema.Kind][]database.Row{
		schema.Tables: {tableRow("public", "orders")},
	}, &fail)

	snap, err := newBuilder().ExtractComplete(context.Background(), &database.MockFactory{Conn: conn}, "destination")
	if err == nil {
		t.Fatal("expected error")
	}
	if snap != nil {
		t.Error("partial snapshot returned")
	}

	var re *catalog.ReadError
	if !errors.As(err, &re) || re.Kind != schema.Indexes {
		t.Errorf("error = %v, want ReadError for indexes", err)
	}
	if !strings.Contains(err.Error(), "destination") {
		t.Errorf("error should name the side: %v", err)
	}
	if !conn.Closed {
		t.Error("connection was not closed after failure")
	}
}

func TestExtractCompleteRejectsDuplicateKeys(t *testing.T) {
	conn := catalogConn("app", map[schema.Kind][]database.Row{
		schema.Tables: {tableRow("public", "orders"), tableRow("public", "orders")},
	}, nil)

	_, err := newBuilder().ExtractComplete(context.Background(), &database.MockFactory{Conn: conn}, "source")
	var dup *schema.DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("error = %v, want DuplicateKeyError", err)
	}
}

func TestExtractWarnsWhenDatabaseNameUnreadable(t *testing.T) {
	inner := catalogConn("app", map[schema.Kind][]database.Row{
		schema.Tables: {tableRow("public", "orders")},
	}, nil)
	conn := &database.MockConn{
		QueryFn: func(query string, args []any) ([]database.Row, error) {
			if strings.Contains(query, "current_database()") {
				return nil, errors.New("permission denied")
			}
			return inner.QueryFn(query, args)
		},
	}

	var buf bytes.Buffer
	b := newBuilder()
	b.logger = slog.New(slog.NewTextHandler(&buf, nil))

	snap, err := b.ExtractFrom(context.Background(), conn, "destination")
	if err != nil {
		t.Fatalf("ExtractFrom() error: %v", err)
	}
	if snap.Database != "" || snap.Count(schema.Tables) != 1 {
		t.Errorf("snapshot = %q with %s", snap.Database, snap.Summary())
	}
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "permission denied") ||
		!strings.Contains(out, "label=destination") {
		t.Errorf("missing warning, log = %q", out)
	}
}

func TestExtractCompleteOpenFailure(t *testing.T) {
	factory := &database.MockFactory{OpenErr: errors.New("password authentication failed")}
	if _, err := newBuilder().ExtractComplete(context.Background(), factory, "source"); err == nil {
		t.Fatal("expected error")
	}
}

func TestExtractPair(t *testing.T) {
	src := &database.MockFactory{Conn: catalogConn("dev", map[schema.Kind][]database.Row{
		schema.Tables: {tableRow("public", "orders"), tableRow("public", "users")},
	}, nil)}
	dst := &database.MockFactory{Conn: catalogConn("prod", map[schema.Kind][]database.Row{
		schema.Tables: {tableRow("public", "users")},
	}, nil)}

	pair, err := newBuilder().ExtractPair(context.Background(), src, dst)
	if err != nil {
		t.Fatalf("ExtractPair() error: %v", err)
	}
	if pair.Source.Count(schema.Tables) != 2 || pair.Destination.Count(schema.Tables) != 1 {
		t.Errorf("source %s / destination %s", pair.Source.Summary(), pair.Destination.Summary())
	}
	if pair.Source.Label != "source" || pair.Destination.Label != "destination" {
		t.Errorf("labels = %q, %q", pair.Source.Label, pair.Destination.Label)
	}
}

func TestExtractPairPropagatesFailure(t *testing.T) {
	fail := schema.Views
	src := &database.MockFactory{Conn: catalogConn("dev", nil, nil)}
	dst := &database.MockFactory{Conn: catalogConn("prod", nil, &fail)}

	if _, err := newBuilder().ExtractPair(context.Background(), src, dst); err == nil {
		t.Fatal("expected error from destination extraction")
	}
}

func TestExtractHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conn := catalogConn("dev", nil, nil)
	if _, err := newBuilder().ExtractFrom(ctx, conn, "source"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
